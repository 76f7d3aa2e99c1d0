package storage

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expectedFirstZero(shadow []bool, start int) int {
	for i := start; i < len(shadow); i++ {
		if !shadow[i] {
			return i
		}
	}
	for i := 0; i < start; i++ {
		if !shadow[i] {
			return i
		}
	}
	return -1
}

func TestBitmapSetLoad(t *testing.T) {
	data := make([]byte, 16)
	bm := AsBitmap(data, 100)

	assert.False(t, bm.SetBit(3, true))
	assert.True(t, bm.SetBit(3, true), "SetBit should report the previous value")
	assert.True(t, bm.LoadBit(3))
	assert.False(t, bm.LoadBit(4))

	bm.SetBit(99, true)
	assert.Equal(t, byte(1<<3), data[12], "bit 99 is bit 3 of byte 12")
	assert.True(t, bm.SetBit(3, false))
	assert.False(t, bm.LoadBit(3))
	assert.Panics(t, func() { bm.LoadBit(100) })
}

func TestBitmapFindFirstZero(t *testing.T) {
	bm := AsBitmap(make([]byte, 24), 130)
	for i := 0; i < 130; i++ {
		bm.SetBit(i, true)
	}
	assert.Equal(t, -1, bm.FindFirstZero(0))
	assert.Equal(t, -1, bm.FindFirstZero(129))

	bm.SetBit(5, false)
	assert.Equal(t, 5, bm.FindFirstZero(0))
	assert.Equal(t, 5, bm.FindFirstZero(6), "search should wrap around")

	bm.SetBit(128, false)
	assert.Equal(t, 128, bm.FindFirstZero(6))
	assert.Equal(t, 128, bm.FindFirstZero(128))
}

// A bitmap shorter than a word must not report the unused tail bits of its last word.
func TestBitmapFindFirstZeroPartialWord(t *testing.T) {
	bm := AsBitmap(make([]byte, 8), 10)
	for i := 0; i < 10; i++ {
		bm.SetBit(i, true)
	}
	for start := 0; start < 10; start++ {
		assert.Equal(t, -1, bm.FindFirstZero(start), "start %d", start)
	}
}

// TestBitmapRandomized flips random bits of bitmaps of several sizes and compares every load and search with a
// []bool reference. Guard bytes around the bitmap must stay untouched.
func TestBitmapRandomized(t *testing.T) {
	const canary = byte(0xAB)
	const guard = 8
	r := rand.New(rand.NewSource(1))
	for _, numBits := range []int{1, 63, 64, 65, 500, 4096} {
		numBytes := (numBits + 63) / 64 * 8
		raw := make([]byte, numBytes+2*guard)
		for i := range raw {
			raw[i] = canary
		}
		data := raw[guard : guard+numBytes]
		for i := range data {
			data[i] = 0
		}
		bm := AsBitmap(data, numBits)
		shadow := make([]bool, numBits)

		for iter := 0; iter < 5000; iter++ {
			i := r.Intn(numBits)
			on := r.Intn(3) > 0
			prev := bm.SetBit(i, on)
			require.Equal(t, shadow[i], prev, "previous value of bit %d", i)
			shadow[i] = on

			start := r.Intn(numBits)
			require.Equal(t, expectedFirstZero(shadow, start), bm.FindFirstZero(start), "numBits %d start %d", numBits, start)
		}
		for i := range shadow {
			assert.Equal(t, shadow[i], bm.LoadBit(i), "bit %d", i)
		}
		for i := 0; i < guard; i++ {
			assert.Equal(t, canary, raw[i])
			assert.Equal(t, canary, raw[len(raw)-1-i])
		}
	}
}
