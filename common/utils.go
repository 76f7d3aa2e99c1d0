package common

import (
	"fmt"

	"github.com/spaolacci/murmur3"
)

// Align8 rounds the given integer up to the nearest multiple of 8.
func Align8(n int) int {
	return (n + 7) &^ 7
}

// AlignedTo8 returns true if the integer is a multiple of 8.
func AlignedTo8(n int) bool {
	return n%8 == 0
}

// Assert checks a condition and panics if it is false.
//
// Use it for internal invariants (a partition index out of range, a pin count
// going negative). Conditions a caller can trigger, such as a bad page budget
// or a full disk, are returned as errors instead.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}

// SeededHash hashes data with 64-bit murmur3 under the given seed. Different seeds give independent
// distributions of the same keys, which is what repartitioning an overflowing bucket relies on.
func SeededHash(data []byte, seed uint32) uint64 {
	return murmur3.Sum64WithSeed(data, seed)
}

// Bucket maps a hash onto [0, fanout). The hash is unsigned, so the result is never negative.
func Bucket(hash uint64, fanout int) int {
	Assert(fanout > 0, "fanout must be positive, got %d", fanout)
	return int(hash % uint64(fanout))
}
