package execution

import (
	"errors"

	"mit.edu/dsg/gracejoin/common"
	"mit.edu/dsg/gracejoin/planner"
	"mit.edu/dsg/gracejoin/storage"
)

// BlockNestedLoopJoinExecutor joins by loading a block of left rows into memory and scanning the whole right child
// once per block. It is the fallback for partitions the Grace hash join cannot shrink, and a strategy of its own
// when the planner finds it cheaper.
//
// A block holds numBuffers-2 pages worth of left rows (at least one page): one buffer is left for the right scan
// and one for the output.
type BlockNestedLoopJoinExecutor struct {
	plan                     *planner.NestedLoopJoinNode
	left, right              Executor
	leftSchema, joinedSchema *storage.RawTupleDesc

	ctx *ExecutorContext
	// block[:blockLen] are the left rows of the current block, backed by blockBuffers
	block        []storage.Tuple
	blockBuffers []storage.RawTuple
	blockLen     int
	blockPos     int
	leftDone     bool
	// rightValid is set while right.Current() is the row being matched against the block
	rightValid bool

	joinedTupleBuffer storage.RawTuple
	err               error
}

func NewBlockNestedLoopJoinExecutor(plan *planner.NestedLoopJoinNode, left Executor, right Executor) *BlockNestedLoopJoinExecutor {
	return &BlockNestedLoopJoinExecutor{
		plan:         plan,
		left:         left,
		right:        right,
		leftSchema:   storage.NewRawTupleDesc(plan.Left.OutputSchema()),
		joinedSchema: storage.NewRawTupleDesc(plan.OutputSchema()),
	}
}

func (e *BlockNestedLoopJoinExecutor) PlanNode() planner.PlanNode {
	return e.plan
}

// blockRows is the number of left rows that fit in the block for a page budget of numBuffers.
func blockRows(numBuffers int, rowSize int) int {
	return max(max(numBuffers-2, 1)*common.PageSize/rowSize, 1)
}

func (e *BlockNestedLoopJoinExecutor) Init(ctx *ExecutorContext) error {
	rows := blockRows(ctx.NumBuffers(), e.leftSchema.BytesPerTuple())
	if len(e.block) != rows {
		e.block = make([]storage.Tuple, rows)
		e.blockBuffers = make([]storage.RawTuple, rows)
		for i := range e.blockBuffers {
			e.blockBuffers[i] = make([]byte, e.leftSchema.BytesPerTuple())
		}
	}
	e.ctx = ctx
	e.blockLen, e.blockPos = 0, 0
	e.leftDone, e.rightValid = false, false
	e.joinedTupleBuffer = make([]byte, e.joinedSchema.BytesPerTuple())
	e.err = nil
	// The right child is initialized once per block
	return e.left.Init(ctx)
}

// loadBlock fills the block from the left child and restarts the right scan. It returns false once the left
// child has no rows left or on error.
func (e *BlockNestedLoopJoinExecutor) loadBlock() bool {
	e.blockLen, e.blockPos = 0, 0
	for !e.leftDone && e.blockLen < len(e.block) {
		if !e.left.Next() {
			if err := e.left.Error(); err != nil {
				e.err = err
				return false
			}
			e.leftDone = true
			break
		}
		t := e.left.Current()
		e.block[e.blockLen] = t.WriteToBuffer(e.blockBuffers[e.blockLen], e.leftSchema)
		e.blockLen++
	}
	if e.blockLen == 0 {
		return false
	}
	if err := e.right.Init(e.ctx); err != nil {
		e.err = err
		return false
	}
	return true
}

// advanceRight moves to the next right row, loading the next left block when the right child runs dry.
func (e *BlockNestedLoopJoinExecutor) advanceRight() bool {
	for {
		if e.blockLen > 0 && e.right.Next() {
			e.rightValid = true
			e.blockPos = 0
			return true
		}
		e.rightValid = false
		if e.blockLen > 0 {
			if err := e.right.Error(); err != nil {
				e.err = err
				return false
			}
		}
		if !e.loadBlock() {
			return false
		}
	}
}

func (e *BlockNestedLoopJoinExecutor) Next() bool {
	if e.err != nil {
		return false
	}
	for {
		if !e.rightValid && !e.advanceRight() {
			return false
		}
		right := e.right.Current()
		for e.blockPos < e.blockLen {
			left := e.block[e.blockPos]
			e.blockPos++
			joined := storage.MergeTuples(e.joinedTupleBuffer, e.joinedSchema, left, right)
			if planner.ExprIsTrue(e.plan.Predicate.Eval(joined)) {
				return true
			}
		}
		e.rightValid = false
	}
}

func (e *BlockNestedLoopJoinExecutor) Current() storage.Tuple {
	return storage.FromRawTuple(e.joinedTupleBuffer, e.joinedSchema, common.RecordID{})
}

func (e *BlockNestedLoopJoinExecutor) Error() error {
	return e.err
}

func (e *BlockNestedLoopJoinExecutor) Close() error {
	return errors.Join(e.left.Close(), e.right.Close())
}
