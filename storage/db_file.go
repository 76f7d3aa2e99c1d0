package storage

import (
	"mit.edu/dsg/gracejoin/common"
)

// DBFile abstracts the physical storage of one object (a source table or a temporary partition).
// It handles page-level reads and writes, as well as space allocation.
//
// Implementations must be safe for concurrent use: ReadPage and WritePage on different pages may run
// simultaneously, and AllocatePage is atomic with respect to other allocations.
type DBFile interface {
	// AllocatePage reserves a sequential block of `numPages` pages in the file.
	// It returns the page number of the first page in the allocated block. The new pages
	// are filled with zeros.
	AllocatePage(numPages int) (int, error)
	// ReadPage reads the contents of the page identified by `pageNum` into the
	// provided byte slice. The slice `frame` must be exactly common.PageSize bytes.
	ReadPage(pageNum int, frame []byte) error
	// WritePage writes the content of `frame` to the page identified by `pageNum`.
	// `pageNum` must be strictly less than NumPages(); use AllocatePage to extend the file.
	WritePage(pageNum int, frame []byte) error
	// Sync forces any buffered writes to stable storage.
	Sync() error
	// Close releases the resources held by the file.
	Close() error
	// NumPages returns the number of pages allocated in the file.
	NumPages() (int, error)
}

// DBFileManager manages the lifecycle and caching of DBFile instances.
type DBFileManager interface {
	// GetDBFile retrieves the DBFile handle for the given ObjectID, creating an empty file if none exists.
	GetDBFile(oid common.ObjectID) (DBFile, error)
	// DeleteDBFile permanently removes the file associated with the ObjectID.
	// The caller must ensure nothing else (including the BufferPool) still references its pages.
	DeleteDBFile(oid common.ObjectID) error
	// Close closes every open file.
	Close() error
}
