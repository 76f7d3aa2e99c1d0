package storage

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dsnet/golib/memfile"
	"github.com/puzpuzpuz/xsync/v3"
	"mit.edu/dsg/gracejoin/common"
)

var zeroPage [common.PageSize]byte

// MemDBFile is a DBFile held entirely in memory.
type MemDBFile struct {
	mu       sync.RWMutex
	data     *memfile.File
	numPages int
	quota    *pageQuota
}

func newMemDBFile(quota *pageQuota) *MemDBFile {
	return &MemDBFile{data: memfile.New(make([]byte, 0)), quota: quota}
}

// AllocatePage appends `numPages` zeroed pages. It fails with a StorageError once the manager's page quota is used up.
func (f *MemDBFile) AllocatePage(numPages int) (int, error) {
	common.Assert(numPages > 0, "cannot allocate negative number of pages")
	if err := f.quota.take(numPages); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	first := f.numPages
	for i := 0; i < numPages; i++ {
		if _, err := f.data.WriteAt(zeroPage[:], int64(first+i)*int64(common.PageSize)); err != nil {
			f.quota.give(numPages)
			return 0, common.NewGoDBError(common.StorageError, "failed to allocate pages: %v", err)
		}
	}
	f.numPages += numPages
	return first, nil
}

// ReadPage copies page `pageNum` into `frame`.
func (f *MemDBFile) ReadPage(pageNum int, frame []byte) error {
	common.Assert(len(frame) == common.PageSize, "buffer size must match PageSize")
	f.mu.RLock()
	defer f.mu.RUnlock()
	if pageNum >= f.numPages {
		return fmt.Errorf("read out of bounds: page %d does not exist (file has %d pages)", pageNum, f.numPages)
	}
	_, err := f.data.ReadAt(frame, int64(pageNum)*int64(common.PageSize))
	return err
}

// WritePage overwrites page `pageNum` with `frame`.
func (f *MemDBFile) WritePage(pageNum int, frame []byte) error {
	common.Assert(len(frame) == common.PageSize, "buffer size must match PageSize")
	f.mu.Lock()
	defer f.mu.Unlock()
	if pageNum >= f.numPages {
		return fmt.Errorf("write out of bounds: page %d does not exist", pageNum)
	}
	_, err := f.data.WriteAt(frame, int64(pageNum)*int64(common.PageSize))
	return err
}

// Sync is a no-op.
func (f *MemDBFile) Sync() error {
	return nil
}

// Close is a no-op; the contents live until the file is deleted from its manager.
func (f *MemDBFile) Close() error {
	return nil
}

// NumPages returns the number of pages allocated in the file.
func (f *MemDBFile) NumPages() (int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.numPages, nil
}

type pageQuota struct {
	limit int64
	used  atomic.Int64
}

func (q *pageQuota) take(n int) error {
	if q.limit <= 0 {
		q.used.Add(int64(n))
		return nil
	}
	if q.used.Add(int64(n)) > q.limit {
		q.used.Add(-int64(n))
		return common.NewGoDBError(common.StorageError, "storage quota of %d pages exhausted", q.limit)
	}
	return nil
}

func (q *pageQuota) give(n int) {
	q.used.Add(-int64(n))
}

// MemDBFileManager keeps every object in memory. It backs temporary storage and tests.
type MemDBFileManager struct {
	files *xsync.MapOf[common.ObjectID, *MemDBFile]
	quota *pageQuota
}

// NewMemStorageManager creates an in-memory manager. maxPages bounds the total number of pages across all files;
// zero or negative means unbounded.
func NewMemStorageManager(maxPages int) *MemDBFileManager {
	return &MemDBFileManager{
		files: xsync.NewMapOf[common.ObjectID, *MemDBFile](),
		quota: &pageQuota{limit: int64(maxPages)},
	}
}

// GetDBFile returns the file for oid, creating an empty one on first use.
func (m *MemDBFileManager) GetDBFile(oid common.ObjectID) (DBFile, error) {
	file, _ := m.files.LoadOrCompute(oid, func() *MemDBFile {
		return newMemDBFile(m.quota)
	})
	return file, nil
}

// DeleteDBFile discards the file and returns its pages to the quota.
func (m *MemDBFileManager) DeleteDBFile(oid common.ObjectID) error {
	if file, loaded := m.files.LoadAndDelete(oid); loaded {
		n, _ := file.NumPages()
		m.quota.give(n)
	}
	return nil
}

// UsedPages returns the number of pages currently allocated across all files.
func (m *MemDBFileManager) UsedPages() int {
	return int(m.quota.used.Load())
}

// Close is a no-op.
func (m *MemDBFileManager) Close() error {
	return nil
}
