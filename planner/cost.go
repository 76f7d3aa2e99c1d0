package planner

// MaxPartitionPasses bounds the partitioning passes the recursion-aware estimate will assume. It matches the
// deepest recursion the Grace hash join executor allows, plus the initial pass.
const MaxPartitionPasses = 9

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// GraceHashJoinIOCost is the classic, non-recursive Grace hash join estimate: one pass reading both inputs while
// partitioning, one pass writing every partition and one pass reading them back during the join.
func GraceHashJoinIOCost(leftPages, rightPages int) int {
	return 3 * (leftPages + rightPages)
}

// GraceHashJoinPasses estimates how many partitioning passes a Grace hash join needs before every left partition
// fits in the numBuffers-2 pages left over for the build side, assuming keys hash uniformly.
func GraceHashJoinPasses(leftPages, numBuffers int) int {
	capacity := max(numBuffers-2, 1)
	size := ceilDiv(leftPages, max(numBuffers-1, 1))
	fanout := max(numBuffers-1, 2)
	passes := 1
	for size > capacity && passes < MaxPartitionPasses {
		size = ceilDiv(size, fanout)
		passes++
	}
	return passes
}

// GraceHashJoinIOCostWithRecursion extends GraceHashJoinIOCost with one extra write and read of both inputs for
// every additional partitioning pass.
func GraceHashJoinIOCostWithRecursion(leftPages, rightPages, numBuffers int) int {
	extra := GraceHashJoinPasses(leftPages, numBuffers) - 1
	return GraceHashJoinIOCost(leftPages, rightPages) + 2*(leftPages+rightPages)*extra
}

// BlockNestedLoopJoinIOCost reads the left input once and the right input once per block of numBuffers-2 left
// pages.
func BlockNestedLoopJoinIOCost(leftPages, rightPages, numBuffers int) int {
	if leftPages == 0 {
		return 0
	}
	return leftPages + ceilDiv(leftPages, max(numBuffers-2, 1))*rightPages
}
