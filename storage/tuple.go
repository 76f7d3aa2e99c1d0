package storage

import (
	"fmt"

	"mit.edu/dsg/gracejoin/common"
)

// RawTuple is the physical view of a row: the fixed-width bytes as laid out on a heap page.
// A RawTupleDesc is needed to interpret it.
type RawTuple []byte

// RawTupleDesc describes the physical binary layout of a RawTuple.
type RawTupleDesc struct {
	fields      []common.Type
	offsets     []int // Cache of column_id => physical offset of first byte in RawTuple
	bytesPerRow int
}

func (desc *RawTupleDesc) String() string {
	return fmt.Sprintf("%v", desc.fields)
}

// NumColumns returns the number of fields in the physical schema.
func (desc *RawTupleDesc) NumColumns() int {
	return len(desc.fields)
}

// BytesPerTuple returns the fixed size in bytes required to store this tuple.
func (desc *RawTupleDesc) BytesPerTuple() int {
	return desc.bytesPerRow
}

// GetFieldType returns the type of the field at index i.
func (desc *RawTupleDesc) GetFieldType(i int) common.Type {
	return desc.fields[i]
}

func (desc *RawTupleDesc) GetFieldTypes() []common.Type {
	return desc.fields
}

// GetFieldOffset returns the byte offset where field i begins.
func (desc *RawTupleDesc) GetFieldOffset(i int) int {
	return desc.offsets[i]
}

// GetValue deserializes the value at index i from the given physical byte slice.
func (desc *RawTupleDesc) GetValue(t RawTuple, i int) common.Value {
	return common.AsValue(desc.fields[i], t[desc.offsets[i]:])
}

// SetValue serializes the value val into the correct position in the physical byte slice t.
func (desc *RawTupleDesc) SetValue(t RawTuple, i int, val common.Value) {
	common.Assert(val.Type() == desc.fields[i], "type mismatch")
	val.WriteTo(t[desc.offsets[i]:])
}

// NewRawTupleDesc creates a descriptor for the given list of field types.
// It calculates offsets and total size, ensuring 8-byte alignment for the tuple.
func NewRawTupleDesc(fields []common.Type) *RawTupleDesc {
	size := 0
	offsetOfField := make([]int, len(fields))
	for i := 0; i < len(fields); i++ {
		offsetOfField[i] = size
		switch fields[i] {
		case common.IntType:
			size += common.IntSize
		case common.StringType:
			size += common.StringLength
		default:
			common.Assert(false, "unknown field type")
		}
	}
	// Align to 8 bytes
	common.Assert(common.AlignedTo8(size), "tuple size should always be aligned to 8 bytes in our system")
	common.Assert(size <= common.PageSize-32, "tuple size should never exceed page size")
	return &RawTupleDesc{fields, offsetOfField, size}
}

// ConcatTupleDesc returns the layout of left's columns followed by right's.
func ConcatTupleDesc(left, right *RawTupleDesc) *RawTupleDesc {
	fields := make([]common.Type, 0, left.NumColumns()+right.NumColumns())
	fields = append(fields, left.fields...)
	fields = append(fields, right.fields...)
	return NewRawTupleDesc(fields)
}

// Tuple is the logical view of a row exchanged between executors.
//
// A Tuple is either backed by a RawTuple (zero-copy over page bytes, decoded lazily on GetValue), purely
// virtual (a list of Values), or a physical prefix extended by virtual columns. A Tuple backed by page
// bytes is only valid while the page stays pinned; call DeepCopy to keep it longer.
type Tuple struct {
	rawTuple RawTuple
	rawDesc  *RawTupleDesc
	// columns appended after the physical ones
	extraValues []common.Value
	// nil for virtual tuples and join output
	rid common.RecordID
}

// FromRawTuple creates a Tuple backed by physically stored bytes without copying them.
func FromRawTuple(rawTuple RawTuple, desc *RawTupleDesc, rid common.RecordID) Tuple {
	return Tuple{rawTuple: rawTuple, rawDesc: desc, rid: rid}
}

// FromValues creates a purely virtual Tuple from a list of values.
func FromValues(values ...common.Value) Tuple {
	return Tuple{
		extraValues: values,
	}
}

// IsNil checks if the tuple is uninitialized.
func (t *Tuple) IsNil() bool {
	return t.rawDesc == nil && t.extraValues == nil
}

// WriteToBuffer serializes every column of the Tuple into buf and returns a Tuple backed by it. This is how rows
// are materialized into a heap page.
func (t *Tuple) WriteToBuffer(buf []byte, desc *RawTupleDesc) Tuple {
	common.Assert(len(buf) >= desc.BytesPerTuple(), "buffer too small")
	common.Assert(t.NumColumns() == desc.NumColumns(), "tuple descriptor mismatch")

	numPhysicalColumns := 0
	if t.rawDesc != nil {
		numPhysicalColumns = t.rawDesc.NumColumns()
		copy(buf, t.rawTuple)
	}

	for i := numPhysicalColumns; i < desc.NumColumns(); i++ {
		desc.SetValue(buf, i, t.extraValues[i-numPhysicalColumns])
	}
	return FromRawTuple(buf, desc, t.rid)
}

// MergeTuples writes left's columns followed by right's columns into buf. desc must describe the concatenated
// schema. This is the output row of every join.
func MergeTuples(buf []byte, desc *RawTupleDesc, left Tuple, right Tuple) Tuple {
	common.Assert(len(buf) >= desc.BytesPerTuple(), "buffer too small")
	common.Assert(left.NumColumns()+right.NumColumns() == desc.NumColumns(), "tuple descriptor mismatch")

	if left.extraValues == nil && right.extraValues == nil {
		copy(buf, left.rawTuple)
		copy(buf[len(left.rawTuple):], right.rawTuple)
	} else {
		leftNumCols := left.NumColumns()
		rightNumCols := right.NumColumns()
		for i := 0; i < leftNumCols; i++ {
			desc.SetValue(buf, i, left.GetValue(i))
		}
		for i := 0; i < rightNumCols; i++ {
			desc.SetValue(buf, leftNumCols+i, right.GetValue(i))
		}
	}
	return FromRawTuple(buf, desc, common.RecordID{})
}

// RID returns the RecordID of the tuple, or an invalid/nil ID if virtual.
func (t *Tuple) RID() common.RecordID {
	return t.rid
}

// NumColumns returns the total number of fields (Physical + Virtual) in the tuple.
func (t *Tuple) NumColumns() int {
	if t.rawDesc == nil {
		return len(t.extraValues)
	}
	return len(t.extraValues) + t.rawDesc.NumColumns()
}

// GetValue retrieves the value at index i.
func (t *Tuple) GetValue(i int) common.Value {
	physCols := 0
	if t.rawDesc != nil {
		physCols = t.rawDesc.NumColumns()
	}
	if i < physCols {
		return t.rawDesc.GetValue(t.rawTuple, i)
	}
	return t.extraValues[i-physCols]
}

// Values returns copies of every column value.
func (t *Tuple) Values() []common.Value {
	values := make([]common.Value, t.NumColumns())
	for i := range values {
		values[i] = t.GetValue(i).Copy()
	}
	return values
}

func (t *Tuple) String() string {
	return fmt.Sprintf("%v", t.Values())
}

// DeepCopy returns a physically materialized copy of the Tuple that owns its bytes. The RID is preserved.
func (t *Tuple) DeepCopy(desc *RawTupleDesc) Tuple {
	common.Assert(t.NumColumns() == desc.NumColumns(), "tuple descriptor mismatch")
	dest := make([]byte, desc.BytesPerTuple())
	t.WriteToBuffer(dest, desc)
	return FromRawTuple(dest, desc, t.rid)
}
