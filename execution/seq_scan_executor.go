package execution

import (
	"mit.edu/dsg/gracejoin/common"
	"mit.edu/dsg/gracejoin/planner"
	"mit.edu/dsg/gracejoin/storage"
)

// SeqScanExecutor implements a sequential scan over a table.
type SeqScanExecutor struct {
	plan      *planner.SeqScanNode
	tableHeap *TableHeap

	// Runtime state
	iterator  TableHeapIterator
	rowBuffer []byte
}

// NewSeqScanExecutor creates a new SeqScanExecutor.
func NewSeqScanExecutor(plan *planner.SeqScanNode, tableHeap *TableHeap) *SeqScanExecutor {
	return &SeqScanExecutor{
		plan:      plan,
		tableHeap: tableHeap,
	}
}

func (e *SeqScanExecutor) PlanNode() planner.PlanNode {
	return e.plan
}

// Init starts a fresh scan. A scan that was already running is closed first, so Init can be used to rewind.
func (e *SeqScanExecutor) Init(*ExecutorContext) error {
	if !e.iterator.IsNil() {
		if err := e.iterator.Close(); err != nil {
			return err
		}
	}
	if e.rowBuffer == nil {
		e.rowBuffer = make([]byte, e.tableHeap.StorageSchema().BytesPerTuple())
	}
	e.iterator = e.tableHeap.Iterator(e.rowBuffer)
	return nil
}

func (e *SeqScanExecutor) Next() bool {
	common.Assert(!e.iterator.IsNil(), "SeqScanExecutor.Init() must be called before calling Next()")
	// The iterator populates the row buffer in-place
	return e.iterator.Next()
}

func (e *SeqScanExecutor) Current() storage.Tuple {
	return storage.FromRawTuple(e.iterator.CurrentTuple(), e.tableHeap.StorageSchema(), e.iterator.CurrentRID())
}

func (e *SeqScanExecutor) Error() error {
	return e.iterator.Error()
}

func (e *SeqScanExecutor) Close() error {
	if !e.iterator.IsNil() {
		return e.iterator.Close()
	}
	return nil
}
