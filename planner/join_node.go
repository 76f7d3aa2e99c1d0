package planner

import (
	"fmt"

	"mit.edu/dsg/gracejoin/common"
)

// JoinStrategy names one of the join algorithms the executor can run.
type JoinStrategy int

const (
	GraceHashJoinStrategy JoinStrategy = iota
	BlockNestedLoopJoinStrategy
)

func (s JoinStrategy) String() string {
	switch s {
	case GraceHashJoinStrategy:
		return "GraceHashJoin"
	case BlockNestedLoopJoinStrategy:
		return "BlockNestedLoopJoin"
	}
	return "unknown"
}

// JoinNode is implemented by every join variant. The output schema is always the left schema followed by the
// right schema.
type JoinNode interface {
	PlanNode
	Strategy() JoinStrategy
	// EstimateIOCost estimates the page I/O of running the join with numBuffers pages of memory.
	EstimateIOCost(numBuffers int) int
}

// GraceHashJoinNode is an equi-join on one column from each side, executed by partitioning both inputs to
// temporary storage and joining partition pairs in memory.
type GraceHashJoinNode struct {
	Left         PlanNode
	Right        PlanNode
	LeftKey      int
	RightKey     int
	outputSchema []common.Type
}

func NewGraceHashJoinNode(left, right PlanNode, leftKey, rightKey int) *GraceHashJoinNode {
	return &GraceHashJoinNode{
		Left:         left,
		Right:        right,
		LeftKey:      leftKey,
		RightKey:     rightKey,
		outputSchema: append(append([]common.Type{}, left.OutputSchema()...), right.OutputSchema()...),
	}
}

func (n *GraceHashJoinNode) OutputSchema() []common.Type {
	return n.outputSchema
}

func (n *GraceHashJoinNode) Children() []PlanNode {
	return []PlanNode{n.Left, n.Right}
}

func (n *GraceHashJoinNode) Strategy() JoinStrategy {
	return GraceHashJoinStrategy
}

// IOCost is the non-recursive estimate, 3 * (left pages + right pages).
func (n *GraceHashJoinNode) IOCost() int {
	return GraceHashJoinIOCost(StatsOf(n.Left).NumPages, StatsOf(n.Right).NumPages)
}

// EstimateIOCost also charges the extra passes expected when partitions overflow memory.
func (n *GraceHashJoinNode) EstimateIOCost(numBuffers int) int {
	return GraceHashJoinIOCostWithRecursion(StatsOf(n.Left).NumPages, StatsOf(n.Right).NumPages, numBuffers)
}

func (n *GraceHashJoinNode) String() string {
	return fmt.Sprintf("GraceHashJoin: left.%d = right.%d", n.LeftKey, n.RightKey)
}

// NestedLoopJoinNode represents a block nested loop join.
type NestedLoopJoinNode struct {
	Left         PlanNode
	Right        PlanNode
	Predicate    Expr
	outputSchema []common.Type
}

func NewBlockNestedLoopJoinNode(left, right PlanNode, predicate Expr) *NestedLoopJoinNode {
	return &NestedLoopJoinNode{
		Left:         left,
		Right:        right,
		Predicate:    predicate,
		outputSchema: append(append([]common.Type{}, left.OutputSchema()...), right.OutputSchema()...),
	}
}

func (n *NestedLoopJoinNode) OutputSchema() []common.Type {
	return n.outputSchema
}

func (n *NestedLoopJoinNode) Children() []PlanNode {
	return []PlanNode{n.Left, n.Right}
}

func (n *NestedLoopJoinNode) Strategy() JoinStrategy {
	return BlockNestedLoopJoinStrategy
}

func (n *NestedLoopJoinNode) EstimateIOCost(numBuffers int) int {
	return BlockNestedLoopJoinIOCost(StatsOf(n.Left).NumPages, StatsOf(n.Right).NumPages, numBuffers)
}

func (n *NestedLoopJoinNode) String() string {
	return fmt.Sprintf("BNLJ: %s", n.Predicate.String())
}

func validateEquiJoin(left, right PlanNode, leftKey, rightKey int) error {
	leftSchema, rightSchema := left.OutputSchema(), right.OutputSchema()
	if leftKey < 0 || leftKey >= len(leftSchema) {
		return common.NewGoDBError(common.ConfigurationError, "left join key %d out of range for %d columns", leftKey, len(leftSchema))
	}
	if rightKey < 0 || rightKey >= len(rightSchema) {
		return common.NewGoDBError(common.ConfigurationError, "right join key %d out of range for %d columns", rightKey, len(rightSchema))
	}
	if leftSchema[leftKey] != rightSchema[rightKey] {
		return common.NewGoDBError(common.ConfigurationError, "cannot join %s column with %s column",
			leftSchema[leftKey], rightSchema[rightKey])
	}
	return nil
}

// PlanGraceHashJoin validates the key columns and builds a Grace hash join.
func PlanGraceHashJoin(left, right PlanNode, leftKey, rightKey int) (*GraceHashJoinNode, error) {
	if err := validateEquiJoin(left, right, leftKey, rightKey); err != nil {
		return nil, err
	}
	return NewGraceHashJoinNode(left, right, leftKey, rightKey), nil
}

// PlanEquiJoin picks the cheaper strategy for left.col[leftKey] = right.col[rightKey] under a budget of
// numBuffers pages. Ties go to the Grace hash join.
func PlanEquiJoin(left, right PlanNode, leftKey, rightKey, numBuffers int) (JoinNode, error) {
	if numBuffers < 2 {
		return nil, common.NewGoDBError(common.ConfigurationError, "need at least 2 buffers to join, got %d", numBuffers)
	}
	grace, err := PlanGraceHashJoin(left, right, leftKey, rightKey)
	if err != nil {
		return nil, err
	}
	bnlj := NewBlockNestedLoopJoinNode(left, right,
		NewEquiJoinPredicate(left.OutputSchema(), right.OutputSchema(), leftKey, rightKey))
	if bnlj.EstimateIOCost(numBuffers) < grace.EstimateIOCost(numBuffers) {
		return bnlj, nil
	}
	return grace, nil
}
