package storage

import (
	"encoding/binary"

	"mit.edu/dsg/gracejoin/common"
)

// HeapPage is a slotted page of fixed-size rows. Rows are only ever appended, which is all that partition
// files and bulk-loaded source tables need.
//
// Layout: RowSize (2) | NumSlots (2) | NumUsed (2) | Padding (2) | allocation Bitmap | rows
type HeapPage struct {
	*PageFrame

	allocationBitmap Bitmap
	rowDataStart     int
}

const (
	heapPageOffsetRowSize  = 0
	heapPageOffsetNumSlots = heapPageOffsetRowSize + 2
	heapPageOffsetNumUsed  = heapPageOffsetNumSlots + 2
)
const heapPageHeaderSize = heapPageOffsetNumUsed + 4

// HeapPageCapacity returns the number of rows of the given layout that fit on one heap page.
func HeapPageCapacity(desc *RawTupleDesc) int {
	rowSize := desc.BytesPerTuple()
	common.Assert(common.AlignedTo8(rowSize), "tuple size %d should be aligned to 8", rowSize)
	// Every 64 rows cost one 8-byte bitmap word
	blockSize := 64*rowSize + 8
	available := common.PageSize - heapPageHeaderSize
	fullBlocks, remainder := available/blockSize, available%blockSize
	numSlots := fullBlocks * 64
	if remainder > 8 {
		numSlots += (remainder - 8) / rowSize
	}
	return numSlots
}

func (hp HeapPage) NumUsed() int {
	return int(binary.LittleEndian.Uint16(hp.Bytes[heapPageOffsetNumUsed:]))
}

func (hp HeapPage) setNumUsed(numUsed int) {
	binary.LittleEndian.PutUint16(hp.Bytes[heapPageOffsetNumUsed:], uint16(numUsed))
}

func (hp HeapPage) NumSlots() int {
	return int(binary.LittleEndian.Uint16(hp.Bytes[heapPageOffsetNumSlots:]))
}

func (hp HeapPage) RowSize() int {
	return int(binary.LittleEndian.Uint16(hp.Bytes[heapPageOffsetRowSize:]))
}

// InitializeHeapPage formats a zeroed frame as an empty heap page for rows described by desc.
func InitializeHeapPage(desc *RawTupleDesc, frame *PageFrame) {
	binary.LittleEndian.PutUint16(frame.Bytes[heapPageOffsetRowSize:], uint16(desc.BytesPerTuple()))
	binary.LittleEndian.PutUint16(frame.Bytes[heapPageOffsetNumSlots:], uint16(HeapPageCapacity(desc)))
	binary.LittleEndian.PutUint16(frame.Bytes[heapPageOffsetNumUsed:], 0)
}

// IsHeapPage reports whether the frame has been formatted by InitializeHeapPage.
func (frame *PageFrame) IsHeapPage() bool {
	return binary.LittleEndian.Uint16(frame.Bytes[heapPageOffsetNumSlots:]) > 0
}

func (frame *PageFrame) AsHeapPage() HeapPage {
	result := HeapPage{
		PageFrame: frame,
	}
	numSlots := result.NumSlots()
	common.Assert(result.RowSize() > 0 && numSlots > 0, "uninitialized heap page")

	result.allocationBitmap = AsBitmap(result.Bytes[heapPageHeaderSize:], numSlots)
	result.rowDataStart = heapPageHeaderSize + common.Align8((numSlots+7)/8)
	return result
}

// FindFreeSlot returns a free slot, or -1 if the page is full.
func (hp HeapPage) FindFreeSlot() int {
	numUsed := hp.NumUsed()
	if numUsed == hp.NumSlots() {
		return -1
	}
	return hp.allocationBitmap.FindFirstZero(numUsed)
}

// IsAllocated checks the allocation bitmap to see if a slot holds a row.
func (hp HeapPage) IsAllocated(rid common.RecordID) bool {
	slot := int(rid.Slot)
	if slot < 0 || slot >= hp.NumSlots() {
		return false
	}
	return hp.allocationBitmap.LoadBit(slot)
}

func (hp HeapPage) MarkAllocated(rid common.RecordID) {
	slot := int(rid.Slot)
	common.Assert(slot >= 0 && slot < hp.NumSlots(), "slot out of bounds")
	common.Assert(!hp.allocationBitmap.SetBit(slot, true), "slot %d already allocated", slot)
	hp.setNumUsed(hp.NumUsed() + 1)
}

// AccessTuple returns the bytes of an allocated slot. The slice aliases the page.
func (hp HeapPage) AccessTuple(rid common.RecordID) RawTuple {
	slot := int(rid.Slot)
	common.Assert(slot >= 0 && slot < hp.NumSlots(), "slot out of bounds")
	common.Assert(hp.allocationBitmap.LoadBit(slot), "slot not allocated")
	return hp.Bytes[hp.rowDataStart+slot*hp.RowSize() : hp.rowDataStart+(slot+1)*hp.RowSize()]
}
