package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"mit.edu/dsg/gracejoin/common"
)

func TestTupleFromValues(t *testing.T) {
	val1 := common.NewIntValue(1)
	val2 := common.NewStringValue("hello")
	tup := FromValues(val1, val2)

	assert.Equal(t, 2, tup.NumColumns())
	assert.Equal(t, val1, tup.GetValue(0))
	assert.Equal(t, val2, tup.GetValue(1))
	rid := tup.RID()
	assert.True(t, rid.IsNil(), "Virtual tuple should have nil RID")
}

func TestTupleFromRaw(t *testing.T) {
	desc := NewRawTupleDesc([]common.Type{common.IntType, common.StringType})

	buf := make([]byte, desc.BytesPerTuple())
	desc.SetValue(buf, 0, common.NewIntValue(42))
	desc.SetValue(buf, 1, common.NewStringValue("world"))

	rid := common.RecordID{PageID: common.PageID{Oid: 1, PageNum: 1}, Slot: 0}
	tup := FromRawTuple(buf, desc, rid)
	assert.Equal(t, 2, tup.NumColumns())
	intValue := tup.GetValue(0)
	assert.Equal(t, int64(42), intValue.IntValue())
	strValue := tup.GetValue(1)
	assert.Equal(t, "world", strValue.StringValue())
	assert.Equal(t, rid, tup.RID())
}

func TestMergeTuples(t *testing.T) {
	descLeft := NewRawTupleDesc([]common.Type{common.IntType})
	bufLeft := make([]byte, descLeft.BytesPerTuple())
	descLeft.SetValue(bufLeft, 0, common.NewIntValue(10))
	leftTup := FromRawTuple(bufLeft, descLeft, common.RecordID{})

	rightTup := FromValues(common.NewStringValue("right"))
	descMerged := ConcatTupleDesc(descLeft, NewRawTupleDesc([]common.Type{common.StringType}))
	bufMerged := make([]byte, descMerged.BytesPerTuple())

	resultTup := MergeTuples(bufMerged, descMerged, leftTup, rightTup)
	assert.Equal(t, 2, resultTup.NumColumns())
	intValue := resultTup.GetValue(0)
	assert.Equal(t, int64(10), intValue.IntValue())
	strValue := resultTup.GetValue(1)
	assert.Equal(t, "right", strValue.StringValue())
}

func TestMergeTuplesPhysical(t *testing.T) {
	descLeft := NewRawTupleDesc([]common.Type{common.IntType, common.StringType})
	descRight := NewRawTupleDesc([]common.Type{common.IntType})
	leftSrc := FromValues(common.NewIntValue(1), common.NewStringValue("a"))
	left := leftSrc.DeepCopy(descLeft)
	rightSrc := FromValues(common.NewIntValue(2))
	right := rightSrc.DeepCopy(descRight)

	descMerged := ConcatTupleDesc(descLeft, descRight)
	assert.Equal(t, []common.Type{common.IntType, common.StringType, common.IntType}, descMerged.GetFieldTypes())

	merged := MergeTuples(make([]byte, descMerged.BytesPerTuple()), descMerged, left, right)
	assert.Equal(t, "[1 \"a\" 2]", merged.String())
}

func TestDeepCopy(t *testing.T) {
	desc := NewRawTupleDesc([]common.Type{common.IntType, common.StringType})
	buf := make([]byte, desc.BytesPerTuple())
	desc.SetValue(buf, 0, common.NewIntValue(99))
	desc.SetValue(buf, 1, common.NewStringValue("copy-me"))

	base := FromRawTuple(buf, desc, common.RecordID{Slot: 5})
	copied := base.DeepCopy(desc)

	// Scribble over the source buffer; the copy must not change
	desc.SetValue(buf, 0, common.NewIntValue(0))
	desc.SetValue(buf, 1, common.NewStringValue("overwritten"))

	intValue := copied.GetValue(0)
	assert.Equal(t, int64(99), intValue.IntValue())
	strValue := copied.GetValue(1)
	assert.Equal(t, "copy-me", strValue.StringValue())
	assert.Equal(t, int32(5), copied.RID().Slot)
}

func TestTupleValuesNull(t *testing.T) {
	desc := NewRawTupleDesc([]common.Type{common.IntType, common.StringType})
	src := FromValues(common.NewNullInt(), common.NewNullString())
	tup := src.DeepCopy(desc)

	values := tup.Values()
	assert.True(t, values[0].IsNull())
	assert.True(t, values[1].IsNull())
	assert.Equal(t, "[NULL NULL]", tup.String())
}

func TestWriteToBuffer(t *testing.T) {
	tup := FromValues(common.NewIntValue(123), common.NewStringValue("serialize"))
	desc := NewRawTupleDesc([]common.Type{common.IntType, common.StringType})
	buf := make([]byte, desc.BytesPerTuple())
	tup.WriteToBuffer(buf, desc)
	readVal1 := desc.GetValue(buf, 0)
	readVal2 := desc.GetValue(buf, 1)
	assert.Equal(t, int64(123), readVal1.IntValue())
	assert.Equal(t, "serialize", readVal2.StringValue())
}
