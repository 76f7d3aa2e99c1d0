package storage

import (
	"math/bits"
	"unsafe"

	"mit.edu/dsg/gracejoin/common"
)

// Bitmap is a view over a byte slice (typically the slot bitmap of a heap page). It does not own the bytes.
// Scans work a uint64 word at a time so that full words are skipped.
type Bitmap struct {
	words   []uint64
	numBits int
}

// AsBitmap creates a Bitmap view over the provided byte slice.
//
// Constraints:
// 1. data must be aligned to 8 bytes to allow safe casting to uint64.
// 2. data must be large enough to contain numBits (rounded up to the nearest 8-byte word).
func AsBitmap(data []byte, numBits int) Bitmap {
	common.Assert(common.AlignedTo8(len(data)), "Bitmap bytes length must be aligned to 8")

	numWords := (numBits + 63) / 64
	common.Assert(len(data) >= numWords*8, "bitmap buffer too small")

	ptr := unsafe.Pointer(&data[0])
	// Slice reference cast to uint64
	words := unsafe.Slice((*uint64)(ptr), numWords)

	return Bitmap{
		words:   words,
		numBits: numBits,
	}
}

// SetBit sets the bit at index i to the given value.
// Returns the previous value of the bit.
func (b *Bitmap) SetBit(i int, on bool) (originalValue bool) {
	common.Assert(i >= 0 && i < b.numBits, "indexing out of bounds")
	wordIdx := i / 64
	bitIdx := uint(i % 64)
	mask := uint64(1) << bitIdx

	ptr := &b.words[wordIdx]
	originalValue = (*ptr & mask) != 0
	if on {
		*ptr |= mask
	} else {
		*ptr &^= mask
	}
	return originalValue
}

// LoadBit returns the value of the bit at index i.
func (b *Bitmap) LoadBit(i int) bool {
	common.Assert(i >= 0 && i < b.numBits, "indexing out of bounds")
	wordIdx := i / 64
	bitIdx := uint(i % 64)
	return (b.words[wordIdx] & (1 << bitIdx)) != 0
}

// FindFirstZero returns the index of the first clear bit at or after startHint, wrapping around to the start of
// the bitmap, or -1 if every bit is set.
func (b *Bitmap) FindFirstZero(startHint int) int {
	if r := b.findFirstZeroInRange(startHint, b.numBits); r != -1 {
		return r
	}
	return b.findFirstZeroInRange(0, startHint)
}

func (b *Bitmap) findFirstZeroInRange(start, end int) int {
	common.Assert(start >= 0 && start <= end && end <= b.numBits, "invalid Bitmap range")
	if start == end {
		return -1
	}
	startWord := start / 64
	endWord := (end - 1) / 64

	for i := startWord; i <= endWord; i++ {
		word := b.words[i]

		if word == ^uint64(0) {
			continue
		}

		bitStart, bitEnd := 0, 64
		if i == startWord {
			bitStart = start % 64
		}
		if i == endWord {
			limit := end % 64
			if limit != 0 {
				bitEnd = limit
			}
		}

		free := ^word >> uint(bitStart) << uint(bitStart)
		if bitEnd < 64 {
			free &= (uint64(1) << uint(bitEnd)) - 1
		}
		if free != 0 {
			return i*64 + bits.TrailingZeros64(free)
		}
	}
	return -1
}

