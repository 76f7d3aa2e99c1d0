package storage

import (
	"sync"

	"mit.edu/dsg/gracejoin/common"
)

type pageFrameMetadata struct {
	pageID   common.PageID
	pinCount int
	refBit   bool
	dirty    bool
	sync.Mutex
}

// PageFrame represents a physical page of data in memory.
// It holds the raw bytes of the page and acts as the container for Buffer Pool management.
type PageFrame struct {
	// Bytes holds the raw physical data of the page.
	Bytes [common.PageSize]byte
	// PageLatch protects the content of the page from concurrent access.
	PageLatch sync.RWMutex
	pageFrameMetadata
}

// PageID returns the page currently cached in the frame.
func (frame *PageFrame) PageID() common.PageID {
	frame.Lock()
	defer frame.Unlock()
	return frame.pageID
}
