package execution

import (
	"sync"
	"sync/atomic"

	"mit.edu/dsg/gracejoin/common"
	"mit.edu/dsg/gracejoin/planner"
	"mit.edu/dsg/gracejoin/storage"
)

// TableHeap is an append-only heap file of fixed-size rows. Rows are always inserted into the last page; when
// that page is full the file grows by one page. Source tables and temporary partitions are both TableHeaps.
type TableHeap struct {
	oid        common.ObjectID
	desc       *storage.RawTupleDesc
	bufferPool *storage.BufferPool

	numPages  atomic.Int32
	numTuples atomic.Int64

	// Guard for file extension to prevent race conditions
	tailLatch sync.Mutex
}

// NewTableHeap opens the heap file of object oid, creating its first page if the file is empty. For an existing
// file the row count is recovered by reading every page header.
func NewTableHeap(oid common.ObjectID, columnTypes []common.Type, bufferPool *storage.BufferPool) (*TableHeap, error) {
	tableHeap := &TableHeap{
		oid:        oid,
		desc:       storage.NewRawTupleDesc(columnTypes),
		bufferPool: bufferPool,
	}

	file, err := bufferPool.StorageManager().GetDBFile(oid)
	if err != nil {
		return nil, err
	}
	n, err := file.NumPages()
	if err != nil {
		return nil, err
	}

	if n == 0 {
		if _, err := file.AllocatePage(1); err != nil {
			return nil, err
		}
		if err := tableHeap.initializePage(0); err != nil {
			return nil, err
		}
		tableHeap.numPages.Store(1)
		return tableHeap, nil
	}

	tableHeap.numPages.Store(int32(n))
	for pageNum := 0; pageNum < n; pageNum++ {
		frame, err := bufferPool.GetPage(common.PageID{Oid: oid, PageNum: int32(pageNum)})
		if err != nil {
			return nil, err
		}
		if frame.IsHeapPage() {
			tableHeap.numTuples.Add(int64(frame.AsHeapPage().NumUsed()))
			bufferPool.UnpinPage(frame, false)
			continue
		}
		// A crash between allocating and formatting leaves a zeroed tail page
		storage.InitializeHeapPage(tableHeap.desc, frame)
		bufferPool.UnpinPage(frame, true)
	}
	return tableHeap, nil
}

// Oid returns the object id of the heap file.
func (tableHeap *TableHeap) Oid() common.ObjectID {
	return tableHeap.oid
}

// StorageSchema returns the physical byte-layout descriptor of the tuples in this table.
func (tableHeap *TableHeap) StorageSchema() *storage.RawTupleDesc {
	return tableHeap.desc
}

// NumPages returns the number of pages in the heap file.
func (tableHeap *TableHeap) NumPages() int {
	return int(tableHeap.numPages.Load())
}

// NumTuples returns the number of rows inserted into the heap file.
func (tableHeap *TableHeap) NumTuples() int {
	return int(tableHeap.numTuples.Load())
}

// Stats reports the current size of the heap file for cost estimation.
func (tableHeap *TableHeap) Stats() planner.TableStats {
	return planner.TableStats{NumPages: tableHeap.NumPages(), NumTuples: tableHeap.NumTuples()}
}

func (tableHeap *TableHeap) initializePage(pageNum int32) error {
	frame, err := tableHeap.bufferPool.GetPage(common.PageID{Oid: tableHeap.oid, PageNum: pageNum})
	if err != nil {
		return err
	}
	storage.InitializeHeapPage(tableHeap.desc, frame)
	tableHeap.bufferPool.UnpinPage(frame, true)
	return nil
}

func (tableHeap *TableHeap) tryExtendFile(expectedPageCount int32) error {
	tableHeap.tailLatch.Lock()
	defer tableHeap.tailLatch.Unlock()
	currentPageCount := tableHeap.numPages.Load()
	if currentPageCount != expectedPageCount {
		// Someone might have extended while we waited for the latch. Nothing to do.
		return nil
	}

	dbFile, err := tableHeap.bufferPool.StorageManager().GetDBFile(tableHeap.oid)
	if err != nil {
		return err
	}
	newPageNum, err := dbFile.AllocatePage(1)
	if err != nil {
		return err
	}
	common.Assert(newPageNum == int(currentPageCount), "Page allocation should be sequential")

	if err := tableHeap.initializePage(currentPageCount); err != nil {
		return err
	}
	tableHeap.numPages.Add(1)
	return nil
}

func (tableHeap *TableHeap) tryInsertInPage(pageID common.PageID, row storage.RawTuple) (common.RecordID, error) {
	frame, err := tableHeap.bufferPool.GetPage(pageID)
	if err != nil {
		return common.RecordID{}, err
	}
	hp := frame.AsHeapPage()
	hp.PageLatch.Lock()
	slot := hp.FindFreeSlot()
	if slot == -1 {
		hp.PageLatch.Unlock()
		tableHeap.bufferPool.UnpinPage(frame, false)
		return common.RecordID{}, nil
	}
	rid := common.RecordID{PageID: pageID, Slot: int32(slot)}
	hp.MarkAllocated(rid)
	copy(hp.AccessTuple(rid), row)
	hp.PageLatch.Unlock()
	tableHeap.bufferPool.UnpinPage(frame, true)
	return rid, nil
}

// InsertTuple appends a row to the last page of the heap, growing the file when that page is full.
func (tableHeap *TableHeap) InsertTuple(row storage.RawTuple) (common.RecordID, error) {
	common.Assert(len(row) >= tableHeap.desc.BytesPerTuple(), "row shorter than the table layout")
	for {
		tail := tableHeap.numPages.Load() - 1
		rid, err := tableHeap.tryInsertInPage(common.PageID{Oid: tableHeap.oid, PageNum: tail}, row)
		if err != nil {
			return common.RecordID{}, err
		}
		if !rid.IsNil() {
			tableHeap.numTuples.Add(1)
			return rid, nil
		}
		if err := tableHeap.tryExtendFile(tail + 1); err != nil {
			return common.RecordID{}, err
		}
	}
}

// Iterator creates a new TableHeapIterator to scan the table. It uses the supplied byte slice to fetch tuples in
// the returned iterator (for zero-allocation scanning).
func (tableHeap *TableHeap) Iterator(buffer []byte) TableHeapIterator {
	return TableHeapIterator{
		tableHeap: tableHeap,
		buffer:    buffer,
		currRID: common.RecordID{
			PageID: common.PageID{Oid: tableHeap.oid, PageNum: 0},
			Slot:   -1,
		},
	}
}

// TableHeapIterator iterates over all rows in the heap in page and slot order.
type TableHeapIterator struct {
	tableHeap *TableHeap
	buffer    []byte

	currRID  common.RecordID
	currPage *storage.PageFrame // Keep the current page pinned while iterating its slots

	err error
}

// IsNil returns true if the TableHeapIterator is the default, uninitialized value
func (it *TableHeapIterator) IsNil() bool {
	return it.tableHeap == nil
}

// Next advances the iterator to the next row.
// It manages page pins automatically (unpinning the old page when moving to a new one).
func (it *TableHeapIterator) Next() bool {
	if it.err != nil {
		return false
	}
	numPages := it.tableHeap.numPages.Load()

	for it.currRID.PageNum < numPages {
		if it.currPage == nil {
			page, err := it.tableHeap.bufferPool.GetPage(it.currRID.PageID)
			if err != nil {
				it.err = err
				return false
			}
			it.currPage = page
		}

		hp := it.currPage.AsHeapPage()
		hp.PageLatch.RLock()

		foundSlot := -1
		for i := int(it.currRID.Slot + 1); i < hp.NumSlots(); i++ {
			if hp.IsAllocated(common.RecordID{PageID: it.currRID.PageID, Slot: int32(i)}) {
				foundSlot = i
				break
			}
		}

		if foundSlot == -1 {
			hp.PageLatch.RUnlock()
			it.tableHeap.bufferPool.UnpinPage(it.currPage, false)

			it.currPage = nil
			it.currRID.PageID = common.PageID{Oid: it.currRID.Oid, PageNum: it.currRID.PageNum + 1}
			it.currRID.Slot = -1
			continue
		}

		it.currRID.Slot = int32(foundSlot)
		copy(it.buffer, hp.AccessTuple(it.currRID))
		hp.PageLatch.RUnlock()
		return true
	}
	return false
}

// CurrentTuple returns the raw bytes of the tuple at the current cursor position.
// The bytes are valid only until Next() is called again.
func (it *TableHeapIterator) CurrentTuple() storage.RawTuple {
	return it.buffer
}

// CurrentRID returns the RecordID of the current tuple.
func (it *TableHeapIterator) CurrentRID() common.RecordID {
	return it.currRID
}

// Error returns the first error encountered during iteration, if any.
func (it *TableHeapIterator) Error() error {
	return it.err
}

// Close releases the pin on the page under the cursor, if any.
func (it *TableHeapIterator) Close() error {
	if it.currPage != nil {
		it.tableHeap.bufferPool.UnpinPage(it.currPage, false)
		it.currPage = nil
	}
	return nil
}
