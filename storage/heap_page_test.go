package storage

import (
	"bytes"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mit.edu/dsg/gracejoin/common"
)

func TestHeapPageSimple(t *testing.T) {
	desc := NewRawTupleDesc([]common.Type{common.IntType, common.StringType})
	frame := &PageFrame{}
	assert.False(t, frame.IsHeapPage())
	InitializeHeapPage(desc, frame)
	assert.True(t, frame.IsHeapPage())
	hp := frame.AsHeapPage()
	numSlots := hp.NumSlots()
	assert.Equal(t, HeapPageCapacity(desc), numSlots)
	assert.Greater(t, numSlots, 0, "Page should have slots available")
	assert.Equal(t, 0, hp.NumUsed(), "Page should be empty at start")

	for i := 0; i < numSlots; i++ {
		slot := hp.FindFreeSlot()
		require.Equal(t, i, slot, "Appends should fill slots in order")

		rid := common.RecordID{Slot: int32(slot)}
		hp.MarkAllocated(rid)

		tuple := hp.AccessTuple(rid)
		desc.SetValue(tuple, 0, common.NewIntValue(int64(i)))
		desc.SetValue(tuple, 1, common.NewStringValue(fmt.Sprintf("val-%d", i)))
		assert.Equal(t, i+1, hp.NumUsed(), "num used should increase by 1 for each new tuple")
	}

	assert.Equal(t, -1, hp.FindFreeSlot(), "Page should be full at this point")
	assert.False(t, hp.IsAllocated(common.RecordID{Slot: int32(numSlots)}), "Out of range slots are never allocated")

	for i := 0; i < numSlots; i++ {
		rid := common.RecordID{Slot: int32(i)}
		assert.True(t, hp.IsAllocated(rid), "Slot %d should be marked allocated", i)

		tuple := hp.AccessTuple(rid)
		val0 := desc.GetValue(tuple, 0)
		val1 := desc.GetValue(tuple, 1)
		assert.Equal(t, int64(i), val0.IntValue(), "Int value mismatch at i %d", i)
		assert.Equal(t, fmt.Sprintf("val-%d", i), val1.StringValue(), "String value mismatch at i %d", i)
	}
}

func TestHeapPageDoubleAllocatePanics(t *testing.T) {
	desc := NewRawTupleDesc([]common.Type{common.IntType})
	frame := &PageFrame{}
	InitializeHeapPage(desc, frame)
	hp := frame.AsHeapPage()

	hp.MarkAllocated(common.RecordID{Slot: 0})
	assert.Panics(t, func() { hp.MarkAllocated(common.RecordID{Slot: 0}) })
}

// TestHeapPageCapacityFitsPage checks, for a range of row widths, that a completely full page never writes past
// the end of the frame and that one more row would not have fit.
func TestHeapPageCapacityFitsPage(t *testing.T) {
	for numInts := 1; numInts*common.IntSize <= common.PageSize-32; numInts += 7 {
		fields := make([]common.Type, numInts)
		for i := range fields {
			fields[i] = common.IntType
		}
		desc := NewRawTupleDesc(fields)
		capacity := HeapPageCapacity(desc)
		require.Greater(t, capacity, 0)

		bitmapBytes := common.Align8((capacity + 7) / 8)
		used := heapPageHeaderSize + bitmapBytes + capacity*desc.BytesPerTuple()
		assert.LessOrEqual(t, used, common.PageSize, "row size %d", desc.BytesPerTuple())

		nextBitmap := common.Align8((capacity + 8) / 8)
		assert.Greater(t, heapPageHeaderSize+nextBitmap+(capacity+1)*desc.BytesPerTuple(), common.PageSize,
			"row size %d should not fit one more row", desc.BytesPerTuple())
	}
}

func TestHeapPageLoad(t *testing.T) {
	desc := NewRawTupleDesc([]common.Type{common.IntType, common.StringType})
	frame := &PageFrame{}
	InitializeHeapPage(desc, frame)
	hp1 := frame.AsHeapPage()

	for i := 0; i < hp1.NumSlots()/2; i++ {
		rid := common.RecordID{Slot: int32(hp1.FindFreeSlot())}
		hp1.MarkAllocated(rid)
		tup := hp1.AccessTuple(rid)
		desc.SetValue(tup, 0, common.NewIntValue(int64(i*100)))
		desc.SetValue(tup, 1, common.NewStringValue(fmt.Sprintf("val-%d", i)))
	}

	// Reinterpreting the same bytes, as after a round trip through the buffer pool, must give the same page
	hp2 := frame.AsHeapPage()
	assert.Equal(t, hp1.NumUsed(), hp2.NumUsed(), "NumUsed mismatch on reload")
	assert.Equal(t, hp1.NumSlots(), hp2.NumSlots(), "NumSlots mismatch on reload")
	for i := 0; i < hp1.NumSlots(); i++ {
		rid := common.RecordID{Slot: int32(i)}
		assert.Equal(t, hp1.IsAllocated(rid), hp2.IsAllocated(rid), "Allocation mismatch at slot %d", i)
		if hp1.IsAllocated(rid) {
			assert.Equal(t, hp1.AccessTuple(rid), hp2.AccessTuple(rid), "Tuple mismatch at slot %d", i)
		}
	}
}

func generateRandomTupleData(r *rand.Rand, desc *RawTupleDesc) []byte {
	buf := make([]byte, desc.BytesPerTuple())
	for i := 0; i < desc.NumColumns(); i++ {
		switch desc.GetFieldType(i) {
		case common.IntType:
			desc.SetValue(buf, i, common.NewIntValue(r.Int63()))
		case common.StringType:
			strBytes := make([]byte, r.Intn(10)+1)
			for j := range strBytes {
				strBytes[j] = byte('a' + r.Intn(26))
			}
			desc.SetValue(buf, i, common.NewStringValue(string(strBytes)))
		}
	}
	return buf
}

// TestHeapPageRandomizedFill fills pages of random layouts with random rows and checks every slot against a
// shadow copy, both while filling and after the page is full.
func TestHeapPageRandomizedFill(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for run := 0; run < 20; run++ {
		n := r.Intn(20) + 1
		fields := make([]common.Type, 0, n)
		for k := 0; k < n; k++ {
			if r.Intn(2) == 0 {
				fields = append(fields, common.IntType)
			} else {
				fields = append(fields, common.StringType)
			}
		}
		desc := NewRawTupleDesc(fields)

		t.Run(fmt.Sprintf("Run%d_Cols%d", run, n), func(t *testing.T) {
			frame := &PageFrame{}
			InitializeHeapPage(desc, frame)
			hp := frame.AsHeapPage()

			var shadow [][]byte
			for slot := hp.FindFreeSlot(); slot != -1; slot = hp.FindFreeSlot() {
				rid := common.RecordID{Slot: int32(slot)}
				hp.MarkAllocated(rid)
				data := generateRandomTupleData(r, desc)
				copy(hp.AccessTuple(rid), data)
				shadow = append(shadow, data)
			}

			require.Equal(t, hp.NumSlots(), len(shadow))
			for slot, expected := range shadow {
				actual := hp.AccessTuple(common.RecordID{Slot: int32(slot)})
				assert.True(t, bytes.Equal(expected, actual), "Data mismatch at slot %d", slot)
			}
		})
	}
}
