package planner

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGraceHashJoinIOCost(t *testing.T) {
	assert.Equal(t, 12, GraceHashJoinIOCost(2, 2))
	assert.Equal(t, 0, GraceHashJoinIOCost(0, 0))
	for l := 0; l < 50; l += 7 {
		for r := 0; r < 50; r += 5 {
			assert.Equal(t, 3*(l+r), GraceHashJoinIOCost(l, r), "l=%d r=%d", l, r)
		}
	}
}

func TestGraceHashJoinPasses(t *testing.T) {
	tests := []struct {
		leftPages, numBuffers, expected int
	}{
		{0, 4, 1},
		{6, 4, 1},
		{7, 4, 2},
		{100, 4, 4},
		{100, 10, 2},
		{1000, 101, 1},
		// B = 2 leaves one page for the build side and a single initial partition
		{5, 2, 4},
		{1 << 30, 3, MaxPartitionPasses},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("L%d_B%d", tt.leftPages, tt.numBuffers), func(t *testing.T) {
			assert.Equal(t, tt.expected, GraceHashJoinPasses(tt.leftPages, tt.numBuffers))
		})
	}
}

func TestGraceHashJoinIOCostWithRecursion(t *testing.T) {
	// Fits after one pass: same as the classic formula
	assert.Equal(t, GraceHashJoinIOCost(6, 9), GraceHashJoinIOCostWithRecursion(6, 9, 4))
	// Three extra passes
	assert.Equal(t, 3*150+2*150*3, GraceHashJoinIOCostWithRecursion(100, 50, 4))
}

func TestBlockNestedLoopJoinIOCost(t *testing.T) {
	assert.Equal(t, 110, BlockNestedLoopJoinIOCost(10, 20, 4))
	assert.Equal(t, 18, BlockNestedLoopJoinIOCost(3, 5, 2))
	assert.Equal(t, 0, BlockNestedLoopJoinIOCost(0, 5, 4))
	assert.Equal(t, 11, BlockNestedLoopJoinIOCost(10, 1, 100))
}
