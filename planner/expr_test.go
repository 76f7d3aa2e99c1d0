package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"mit.edu/dsg/gracejoin/common"
	"mit.edu/dsg/gracejoin/storage"
)

// Helper to create a standard tuple for testing
// Schema: [id(int), name(string), age(int), bio(string)]
// Values: [1, "alice", NULL, NULL]
func makeExprTestTuple() (storage.Tuple, []common.Type) {
	schema := []common.Type{common.IntType, common.StringType, common.IntType, common.StringType}
	tup := storage.FromValues(
		common.NewIntValue(1),
		common.NewStringValue("alice"),
		common.NewNullInt(),
		common.NewNullString(),
	)
	return tup, schema
}

func TestBasicEvaluation(t *testing.T) {
	tup, schema := makeExprTestTuple()

	val := NewConstantValueExpression(common.NewIntValue(100)).Eval(tup)
	assert.Equal(t, int64(100), val.IntValue())

	colName := NewColumnValueExpression(1, schema, "name")
	assert.Equal(t, common.StringType, colName.OutputType())
	val = colName.Eval(tup)
	assert.Equal(t, "alice", val.StringValue())

	val = NewColumnValueExpression(2, schema, "age").Eval(tup)
	assert.True(t, val.IsNull())
}

// TestComparisonLogic verifies standard comparisons and NULL handling.
func TestComparisonLogic(t *testing.T) {
	tup, schema := makeExprTestTuple()

	id := NewColumnValueExpression(0, schema, "id")
	age := NewColumnValueExpression(2, schema, "age")
	bio := NewColumnValueExpression(3, schema, "bio")
	const1 := NewConstantValueExpression(common.NewIntValue(1))
	const5 := NewConstantValueExpression(common.NewIntValue(5))

	tests := []struct {
		name     string
		left     Expr
		right    Expr
		op       ComparisonType
		expected int // 1=True, 0=False, -1=Null
	}{
		{"1=1", id, const1, Equal, 1},
		{"1=5", id, const5, Equal, 0},
		{"1<>5", id, const5, NotEqual, 1},
		{"1<5", id, const5, LessThan, 1},
		{"1>5", id, const5, GreaterThan, 0},
		{"1>=1", id, const1, GreaterThanOrEqual, 1},
		{"1<=5", id, const5, LessThanOrEqual, 1},
		{"1=NULL", id, age, Equal, -1},
		{"NULL=NULL", age, age, Equal, -1},
		{"Str=NULL", bio, bio, Equal, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewComparisonExpression(tt.left, tt.right, tt.op).Eval(tup)
			if tt.expected == -1 {
				assert.True(t, res.IsNull(), "Expected NULL")
				assert.False(t, ExprIsTrue(res))
				assert.False(t, ExprIsFalse(res))
			} else {
				assert.False(t, res.IsNull(), "Expected Value")
				assert.Equal(t, int64(tt.expected), res.IntValue())
				assert.Equal(t, tt.expected == 1, ExprIsTrue(res))
			}
		})
	}
}

func TestEquiJoinPredicate(t *testing.T) {
	leftSchema := []common.Type{common.IntType, common.StringType}
	rightSchema := []common.Type{common.StringType, common.IntType}
	pred := NewEquiJoinPredicate(leftSchema, rightSchema, 0, 1)
	assert.Equal(t, "(left.0 = right.1)", pred.String())

	match := storage.FromValues(common.NewIntValue(7), common.NewStringValue("a"), common.NewStringValue("b"), common.NewIntValue(7))
	miss := storage.FromValues(common.NewIntValue(7), common.NewStringValue("a"), common.NewStringValue("b"), common.NewIntValue(8))
	null := storage.FromValues(common.NewNullInt(), common.NewStringValue("a"), common.NewStringValue("b"), common.NewNullInt())

	assert.True(t, ExprIsTrue(pred.Eval(match)))
	assert.True(t, ExprIsFalse(pred.Eval(miss)))
	assert.False(t, ExprIsTrue(pred.Eval(null)), "NULL keys never join")
}
