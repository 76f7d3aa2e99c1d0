package storage

import (
	"runtime"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
	"mit.edu/dsg/gracejoin/common"
)

const maxScanSize = 64

// Amount of entries we loop through before yielding to avoid busy loop
const strideSize = 64

// Number of full sweeps over the frames that find every frame pinned before giving up
const maxPinnedSweeps = 16

// BufferPool manages the reading and writing of pages between the DBFileManager and memory.
// It caches a fixed number of frames and evicts with the clock algorithm when full. Dirty frames are written
// back on eviction. All methods are thread-safe.
type BufferPool struct {
	storageManager DBFileManager
	frames         []PageFrame
	clockHand      uint64
	pageTable      *xsync.MapOf[common.PageID, *PageFrame]

	reads  atomic.Int64
	writes atomic.Int64
}

// BufferPoolStats counts physical page transfers between the pool and its DBFiles.
type BufferPoolStats struct {
	PageReads  int64
	PageWrites int64
}

// NewBufferPool creates a new BufferPool with a fixed capacity defined by numPages. It requires a
// storageManager to handle the underlying I/O operations.
func NewBufferPool(numPages int, storageManager DBFileManager) *BufferPool {
	common.Assert(numPages > 0, "buffer pool needs at least one frame")
	return &BufferPool{
		storageManager: storageManager,
		frames:         make([]PageFrame, numPages),
		pageTable:      xsync.NewMapOf[common.PageID, *PageFrame](),
	}
}

// StorageManager returns the underlying file manager.
func (bp *BufferPool) StorageManager() DBFileManager {
	return bp.storageManager
}

// NumFrames returns the fixed capacity of the pool.
func (bp *BufferPool) NumFrames() int {
	return len(bp.frames)
}

// Stats returns a snapshot of the I/O counters.
func (bp *BufferPool) Stats() BufferPoolStats {
	return BufferPoolStats{PageReads: bp.reads.Load(), PageWrites: bp.writes.Load()}
}

func tryTouchPage(frame *PageFrame, pageID common.PageID) bool {
	frame.Lock()
	defer frame.Unlock()
	// Another thread may have evicted the page after we grabbed this frame but before we locked it.
	if frame.pageID != pageID {
		return false
	}
	frame.pinCount++
	frame.refBit = true
	return true
}

func (bp *BufferPool) findVictim() (*PageFrame, error) {
	numFrames := uint64(len(bp.frames))
	numIters := 0
	pinnedInARow := uint64(0)
	for {
		for i := uint64(0); i < strideSize; i++ {
			idx := atomic.AddUint64(&bp.clockHand, 1) % numFrames

			frame := &bp.frames[idx]
			if !frame.TryLock() {
				continue
			}

			if frame.pinCount > 0 {
				frame.Unlock()
				pinnedInARow++
				if pinnedInARow >= maxPinnedSweeps*numFrames {
					return nil, common.NewGoDBError(common.StorageError,
						"buffer pool exhausted: all %d frames are pinned", numFrames)
				}
				continue
			}
			pinnedInARow = 0

			// Stop respecting the ref bit if we have scanned for a while and couldn't find a victim
			if numIters >= maxScanSize || !frame.refBit {
				// Return it LOCKED so the caller can safely swap the contents.
				return frame, nil
			}

			frame.refBit = false
			frame.Unlock()
			numIters++
		}
		runtime.Gosched()
	}
}

func (bp *BufferPool) evict(victim *PageFrame) error {
	// victim is LOCKED
	if victim.pageID.IsNil() {
		return nil
	}
	if victim.dirty {
		file, err := bp.storageManager.GetDBFile(victim.pageID.Oid)
		if err != nil {
			return err
		}
		if err = file.WritePage(int(victim.pageID.PageNum), victim.Bytes[:]); err != nil {
			return err
		}
		bp.writes.Add(1)
		victim.dirty = false
	}
	return nil
}

// GetPage retrieves a page from the buffer pool, pinning it until the matching UnpinPage. If the page is not cached,
// a victim frame is chosen, flushed if dirty, and filled from the page's DBFile.
func (bp *BufferPool) GetPage(pageID common.PageID) (*PageFrame, error) {
	for {
		if frame, ok := bp.pageTable.Load(pageID); ok {
			if tryTouchPage(frame, pageID) {
				return frame, nil
			}
			continue
		}

		file, err := bp.storageManager.GetDBFile(pageID.Oid)
		if err != nil {
			return nil, err
		}

		victimFrame, err := bp.findVictim()
		if err != nil {
			return nil, err
		}

		// Only the goroutine that installs its victim as the official frame for pageID loads the page
		actualFrame, loaded := bp.pageTable.LoadOrStore(pageID, victimFrame)

		if loaded {
			victimFrame.Unlock()
			if tryTouchPage(actualFrame, pageID) {
				return actualFrame, nil
			}
			continue
		}

		if err = bp.evict(victimFrame); err != nil {
			victimFrame.Unlock()
			bp.pageTable.Delete(pageID)
			return nil, err
		}

		if !victimFrame.pageID.IsNil() {
			bp.pageTable.Delete(victimFrame.pageID)
		}

		if err = file.ReadPage(int(pageID.PageNum), victimFrame.Bytes[:]); err != nil {
			victimFrame.pageID = common.PageID{}
			victimFrame.Unlock()
			bp.pageTable.Delete(pageID)
			return nil, err
		}
		bp.reads.Add(1)

		victimFrame.pageID = pageID
		victimFrame.pinCount = 1
		// Only a second access marks the page hot
		victimFrame.refBit = false
		victimFrame.dirty = false
		victimFrame.Unlock()
		return victimFrame, nil
	}
}

// UnpinPage indicates that the caller is done using a page. If setDirty is true, the page will be written back
// before its frame is reused.
func (bp *BufferPool) UnpinPage(frame *PageFrame, setDirty bool) {
	frame.Lock()
	defer frame.Unlock()

	common.Assert(frame.pinCount > 0, "attempting to unpin a page that is not pinned")
	frame.pinCount--
	if setDirty {
		frame.dirty = true
	}
}

// FlushAllPages writes every dirty page back to its DBFile, regardless of pins.
func (bp *BufferPool) FlushAllPages() error {
	for i := 0; i < len(bp.frames); i++ {
		frame := &bp.frames[i]
		frame.Lock()

		if frame.pageID.IsNil() || !frame.dirty {
			frame.Unlock()
			continue
		}

		// Flush under read latch and pin to avoid concurrent modification or eviction
		frame.pinCount++
		pageID := frame.pageID
		frame.PageLatch.RLock()
		frame.Unlock()

		err := bp.flushFrame(frame, pageID)

		frame.Lock()
		common.Assert(frame.pageID == pageID, "pageID should not change during flush")
		frame.pinCount--
		if err == nil {
			frame.dirty = false
		}
		frame.PageLatch.RUnlock()
		frame.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

func (bp *BufferPool) flushFrame(frame *PageFrame, pageID common.PageID) error {
	file, err := bp.storageManager.GetDBFile(pageID.Oid)
	if err != nil {
		return err
	}
	if err = file.WritePage(int(pageID.PageNum), frame.Bytes[:]); err != nil {
		return err
	}
	bp.writes.Add(1)
	return nil
}

// DiscardObject drops every cached frame that belongs to oid without writing it back. It is called before the
// object's file is deleted so that a later eviction never touches the deleted file. Pinned frames of oid are a
// caller bug.
func (bp *BufferPool) DiscardObject(oid common.ObjectID) {
	bp.pageTable.Range(func(key common.PageID, frame *PageFrame) bool {
		if key.Oid != oid {
			return true
		}
		frame.Lock()
		if frame.pageID == key {
			common.Assert(frame.pinCount == 0, "discarding pinned page %s", key.String())
			frame.pageID = common.PageID{}
			frame.dirty = false
			frame.refBit = false
			bp.pageTable.Delete(key)
		}
		frame.Unlock()
		return true
	})
}
