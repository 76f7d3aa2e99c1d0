package common

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"unsafe"
)

const (
	PageSize     int = 4096
	IntSize      int = 8
	StringLength int = 32
)

type Type int8

const (
	// For uninitialized Values
	DefaultType Type = iota
	IntType
	StringType
)

// Size returns the fixed-width storage size of the type in bytes
func (t Type) Size() int {
	switch t {
	case IntType:
		return IntSize
	case StringType:
		return StringLength
	default:
		panic("unknown type")
	}
}

func (t Type) String() string {
	switch t {
	case IntType:
		return "int"
	case StringType:
		return "string"
	}
	return "unknown"
}

// ObjectID is a unique identifier for a source table or temporary partition.
type ObjectID uint32

const InvalidObjectID ObjectID = 0

// PageID names one page of one object. Temp partitions get their own ObjectID, so their pages never collide with
// source table pages in the buffer pool.
type PageID struct {
	Oid     ObjectID
	PageNum int32
}

func (p *PageID) String() string {
	return fmt.Sprintf("Page(%d, %d)", p.Oid, p.PageNum)
}

// IsNil checks if the PageID is valid.
func (p *PageID) IsNil() bool {
	return p.Oid == 0
}

// RecordID locates a row: the page holding it and its slot on that page.
type RecordID struct {
	PageID
	Slot int32
}

// IsNil checks if the RecordID refers to a valid page.
func (r *RecordID) IsNil() bool {
	return r.PageID.IsNil()
}

func (r *RecordID) String() string {
	return fmt.Sprintf("rid(%s, %d)", r.PageID.String(), r.Slot)
}

// Value is one column of a row, and also what a join key is. On disk an int NULL is stored as math.MinInt64 and a
// string NULL as a leading 0xFF byte; in memory NULL is a flag.
type Value struct {
	t                Type
	safeString       bool
	null             bool
	underlyingInt    int64
	underlyingString string
}

// AsValue extracts a value from a raw storage buffer.
//
// SAFETY WARNING: For StringType, this function performs a ZERO-COPY read.
// The resulting Value holds a pointer to the provided `source` slice.
// If `source` is modified (e.g., BufferPool reuse), this Value will become corrupt.
// You must call .Copy() if the Value needs to outlive the buffer lock.
func AsValue(t Type, source []byte) Value {
	val := Value{t: t}
	switch t {
	case IntType:
		val.underlyingInt = int64(binary.LittleEndian.Uint64(source))
		if val.underlyingInt == math.MinInt64 {
			val.null = true
		}
	case StringType:
		if source[0] == 0xFF {
			val.null = true
			val.safeString = true
		} else {
			Assert(len(source) >= StringLength, "string too short")
			realLen := StringLength
			for i := 0; i < StringLength; i++ {
				if source[i] == 0 {
					realLen = i
					break
				}
			}

			// Create the Unsafe String View
			if realLen == 0 {
				val.underlyingString = ""
				val.safeString = true
			} else {
				val.underlyingString = unsafe.String(&source[0], realLen)
				val.safeString = false
			}
		}
	}
	return val
}

// IsNil returns true if the Value is nil and uninitialized. This is NOT to be confused with NULL values.
func (v Value) IsNil() bool {
	return v.t == DefaultType
}

// Copy returns a safe, heap-allocated copy of the value. It decouples the value from the underlying byte buffer.
// You MUST call this if you store the Value beyond the lifetime of a raw Tuple.
func (v Value) Copy() Value {
	if v.t == StringType && !v.null && !v.safeString {
		safeStr := string([]byte(v.underlyingString))
		return Value{
			t:                StringType,
			underlyingString: safeStr,
			null:             false,
			safeString:       true,
		}
	}
	// Integers and Nulls are already safe (passed by value)
	return v
}

// NewIntValue creates a new integer Value. math.MinInt64 is the on-disk NULL sentinel, so a Value holding it is not
// Storable.
func NewIntValue(v int64) Value {
	return Value{
		t:             IntType,
		underlyingInt: v,
		null:          false,
	}
}

// NewStringValue creates a new string Value. Strings starting with 0xFF read back as NULL and a NUL byte ends the
// stored string, so neither is Storable.
func NewStringValue(v string) Value {
	if len(v) > StringLength {
		panic("string too long")
	}
	return Value{
		t:                StringType,
		underlyingString: v,
		null:             false,
		safeString:       true,
	}
}

// NewNullInt creates a NULL integer Value.
func NewNullInt() Value {
	return Value{
		t:    IntType,
		null: true,
	}
}

// NewNullString creates a NULL string Value.
func NewNullString() Value {
	return Value{
		t:          StringType,
		null:       true,
		safeString: true,
	}
}

// String renders the value for display. NULLs print as "NULL".
func (v Value) String() string {
	if v.null {
		return "NULL"
	}
	switch v.t {
	case IntType:
		return fmt.Sprintf("%d", v.underlyingInt)
	case StringType:
		return fmt.Sprintf("%q", v.underlyingString)
	}
	return "<nil>"
}

// Type returns the type of the Value.
func (v Value) Type() Type {
	return v.t
}

// IsNull returns true if the Value is NULL.
func (v Value) IsNull() bool {
	return v.null
}

// IntValue returns the underlying (non-NULL) integer.
func (v Value) IntValue() int64 {
	Assert(v.t == IntType, "type mismatch in IntValue")
	Assert(!v.null, "accessing value of NULL int")
	return v.underlyingInt
}

// StringValue returns the underlying (non-NULL) string.
func (v Value) StringValue() string {
	Assert(v.t == StringType, "type mismatch in StringValue")
	Assert(!v.null, "accessing value of NULL string")
	return v.underlyingString
}

// KeyBytes encodes the value into buf, which must hold SizeInBytes() bytes, and returns the encoded prefix. Two
// values of the same type are equal exactly when their encodings are equal, so the bytes can be hashed for
// partitioning or used as a map key.
func (v Value) KeyBytes(buf []byte) []byte {
	v.WriteTo(buf)
	return buf[:v.SizeInBytes()]
}

// Joins reports whether v and other satisfy an equi-join condition. NULL joins with nothing, itself included.
func (v Value) Joins(other Value) bool {
	return !v.null && !other.null && v.Compare(other) == 0
}

// Storable reports whether v reads back unchanged after WriteTo. NULLs are always storable; non-NULL values that
// collide with the NULL sentinels or the string padding are not.
func (v Value) Storable() bool {
	if v.null {
		return true
	}
	switch v.t {
	case IntType:
		return v.underlyingInt != math.MinInt64
	case StringType:
		if len(v.underlyingString) > 0 && v.underlyingString[0] == 0xFF {
			return false
		}
		return strings.IndexByte(v.underlyingString, 0) < 0
	}
	return false
}

// SizeInBytes returns the serialization size (fixed width).
func (v Value) SizeInBytes() int {
	return v.t.Size()
}

// WriteTo serializes the Value into storage format.
func (v Value) WriteTo(data []byte) {
	Assert(len(data) >= v.SizeInBytes(), "buffer too small")

	if v.null {
		// Write specific sentinels for disk storage
		switch v.t {
		case IntType:
			binary.LittleEndian.PutUint64(data, 0x8000000000000000)
		case StringType:
			data[0] = 0xFF
			for i := 1; i < StringLength; i++ {
				data[i] = 0
			}
		}
		return
	}

	switch v.t {
	case IntType:
		binary.LittleEndian.PutUint64(data, uint64(v.underlyingInt))
	case StringType:
		n := copy(data, v.underlyingString)
		for i := n; i < StringLength; i++ {
			data[i] = 0
		}
	}
}

// Compare compares two Values.
// Returns -1 if v < other, 0 if v == other, 1 if v > other.
// NULL is considered less than non-NULL values.
func (v Value) Compare(other Value) int {
	Assert(v.t == other.t, "type mismatch in comparison")

	if v.null && other.null {
		return 0
	}
	if v.null {
		return -1
	}
	if other.null {
		return 1
	}

	switch v.t {
	case IntType:
		if v.underlyingInt < other.underlyingInt {
			return -1
		}
		if v.underlyingInt > other.underlyingInt {
			return 1
		}
		return 0
	case StringType:
		if v.underlyingString < other.underlyingString {
			return -1
		}
		if v.underlyingString > other.underlyingString {
			return 1
		}
		return 0
	}
	panic("unreachable")
}
