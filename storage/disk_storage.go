package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
	"mit.edu/dsg/gracejoin/common"
)

// DiskDBFile implements the DBFile interface using a standard OS file.
type DiskDBFile struct {
	file *os.File
	// numPages caches the file size in pages to avoid stat() syscalls on every read.
	numPages atomic.Int32
	// allocMu serializes file expansion.
	allocMu sync.Mutex
}

// NewDiskDBFile creates a new DiskDBFile wrapper around an already open OS file.
// The file size is assumed to be a multiple of PageSize.
func NewDiskDBFile(file *os.File) (*DiskDBFile, error) {
	stat, err := file.Stat()
	if err != nil {
		return nil, err
	}
	dbFile := &DiskDBFile{
		file: file,
	}
	dbFile.numPages.Store(int32(stat.Size() / int64(common.PageSize)))
	return dbFile, nil
}

// AllocatePage grows the underlying file by `numPages` pages.
func (f *DiskDBFile) AllocatePage(numPages int) (int, error) {
	common.Assert(numPages > 0, "cannot allocate negative number of pages")
	f.allocMu.Lock()
	defer f.allocMu.Unlock()

	currentPages := f.numPages.Load()
	newTotalPages := currentPages + int32(numPages)

	// Reads from the extended area return zeros.
	if err := f.file.Truncate(int64(newTotalPages) * int64(common.PageSize)); err != nil {
		return 0, common.NewGoDBError(common.StorageError, "failed to allocate pages: %v", err)
	}
	f.numPages.Store(newTotalPages)
	return int(currentPages), nil
}

// ReadPage reads the content of page `pageNum` into `frame`.
func (f *DiskDBFile) ReadPage(pageNum int, frame []byte) error {
	common.Assert(len(frame) == common.PageSize, "buffer size must match PageSize")
	if int32(pageNum) >= f.numPages.Load() {
		return fmt.Errorf("read out of bounds: page %d does not exist (file has %d pages)", pageNum, f.numPages.Load())
	}
	_, err := f.file.ReadAt(frame, int64(pageNum)*int64(common.PageSize))
	return err
}

// WritePage writes `frame` to page `pageNum`.
func (f *DiskDBFile) WritePage(pageNum int, frame []byte) error {
	common.Assert(len(frame) == common.PageSize, "buffer size must match PageSize")
	if int32(pageNum) >= f.numPages.Load() {
		return fmt.Errorf("write out of bounds: page %d does not exist", pageNum)
	}
	_, err := f.file.WriteAt(frame, int64(pageNum)*int64(common.PageSize))
	return err
}

// Sync flushes writes to stable storage.
func (f *DiskDBFile) Sync() error {
	return f.file.Sync()
}

// Close closes the underlying OS file.
func (f *DiskDBFile) Close() error {
	return f.file.Close()
}

// NumPages returns the number of pages currently in the file.
func (f *DiskDBFile) NumPages() (int, error) {
	return int(f.numPages.Load()), nil
}

// DiskDBFileManager manages a collection of DiskDBFiles rooted at a specific directory.
type DiskDBFileManager struct {
	rootPath  string
	fileCache *xsync.MapOf[common.ObjectID, DBFile]
}

// NewDiskStorageManager initializes a manager rooted at `rootPath`.
func NewDiskStorageManager(rootPath string) *DiskDBFileManager {
	return &DiskDBFileManager{
		rootPath:  rootPath,
		fileCache: xsync.NewMapOf[common.ObjectID, DBFile](),
	}
}

func (dsm *DiskDBFileManager) path(oid common.ObjectID) string {
	return filepath.Join(dsm.rootPath, fmt.Sprintf("dbo_%d.dat", oid))
}

// GetDBFile retrieves or creates a DBFile for the given ObjectID. At most one DiskDBFile exists per physical file.
func (dsm *DiskDBFileManager) GetDBFile(oid common.ObjectID) (DBFile, error) {
	if file, ok := dsm.fileCache.Load(oid); ok {
		return file, nil
	}

	f, err := os.OpenFile(dsm.path(oid), os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, common.NewGoDBError(common.StorageError, "cannot open object %d: %v", oid, err)
	}
	newDBFile, err := NewDiskDBFile(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	actualFile, loaded := dsm.fileCache.LoadOrStore(oid, newDBFile)
	if loaded {
		// Lost the race; use the handle that was stored first.
		_ = newDBFile.Close()
		return actualFile, nil
	}
	return newDBFile, nil
}

// DeleteDBFile permanently deletes the file backing the given ObjectID.
func (dsm *DiskDBFileManager) DeleteDBFile(oid common.ObjectID) error {
	var closeErr error
	if file, loaded := dsm.fileCache.LoadAndDelete(oid); loaded {
		closeErr = file.Close()
	}
	if err := os.Remove(dsm.path(oid)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Join(closeErr, err)
	}
	return closeErr
}

// Close closes all cached file handles. Files stay on disk.
func (dsm *DiskDBFileManager) Close() error {
	var errs []error
	dsm.fileCache.Range(func(oid common.ObjectID, file DBFile) bool {
		if err := file.Close(); err != nil {
			errs = append(errs, err)
		}
		dsm.fileCache.Delete(oid)
		return true
	})
	return errors.Join(errs...)
}
