// Package buffer implements the Buffer Pool of section 4.D: a frame
// table of fixed capacity, LRU-K eviction, dirty-page flush enforcing
// the WAL-before-data rule, and per-page latches acquired by callers
// after the pool mutex is released (section 4.D's latch-ordering rule).
//
// Grounded on the teacher's heap.HeapManager: one mutex over a shared
// table of file-backed units (there, Segments; here, Frames), paired
// with an explicit Read/Write pair over a single os.File via the Disk
// Manager. The eviction and pinning machinery is new — the teacher's
// heap never evicts, since it is append-only — but follows the same
// "one struct owns the shared table, per-unit state is simple fields"
// shape as Segment/HeapManager.
package buffer

import (
	"sync"

	"github.com/latticedb/latticedb/internal/dberrors"
	"github.com/latticedb/latticedb/internal/diskmgr"
	"github.com/latticedb/latticedb/internal/metrics"
)

// DefaultFrameCount is the default buffer pool capacity named in
// section 4.D (1024 frames x 4 KiB).
const DefaultFrameCount = 1024

// DefaultK is the default LRU-K parameter.
const DefaultK = 2

// WALFlusher is the minimal interface the Buffer Pool needs from the
// WAL subsystem to enforce "WAL-before-data": before flushing a dirty
// page to disk, force every log record up to the page's LSN durable.
type WALFlusher interface {
	Flush(upToLSN uint64) error
}

// Frame is one resident 4 KiB slot. The buffer pool owns the frame
// arena (section 9's cyclic-ownership note); the replacer only ever
// holds frame indices, never a pointer into the arena, so there is no
// page<->frame<->replacer reference cycle.
type Frame struct {
	Data     [diskmgr.PageSize]byte
	PageID   uint32
	PinCount int32
	Dirty    bool
	LSN      uint64
	Latch    sync.RWMutex
	resident bool
}

// RLatchPage and WLatchPage are convenience wrappers so callers acquire
// the per-page latch AFTER the pool mutex has already been released by
// FetchPage/NewPage, matching section 4.D's ordering rule.
func (f *Frame) RLatchPage()   { f.Latch.RLock() }
func (f *Frame) RUnlatchPage() { f.Latch.RUnlock() }
func (f *Frame) WLatchPage()   { f.Latch.Lock() }
func (f *Frame) WUnlatchPage() { f.Latch.Unlock() }

// BufferPool is the frame table plus the replacer and the disk/WAL it
// fronts.
type BufferPool struct {
	mu        sync.Mutex
	frames    []*Frame
	pageTable map[uint32]int // page id -> frame index
	freeList  []int
	replacer  *LRUKReplacer
	disk      *diskmgr.DiskManager
	wal       WALFlusher
	metrics   *metrics.Registry
}

// New builds a buffer pool of the given frame capacity over disk, with
// wal used to enforce WAL-before-data on eviction. wal may be nil in
// WAL-less (memory-only) configurations, per the teacher's NewStorageEngine.
func New(disk *diskmgr.DiskManager, wal WALFlusher, frameCount, k int, m *metrics.Registry) *BufferPool {
	if frameCount <= 0 {
		frameCount = DefaultFrameCount
	}
	if m == nil {
		m = metrics.NewRegistry()
	}
	bp := &BufferPool{
		frames:    make([]*Frame, frameCount),
		pageTable: make(map[uint32]int, frameCount),
		freeList:  make([]int, frameCount),
		replacer:  NewLRUKReplacer(k),
		disk:      disk,
		wal:       wal,
		metrics:   m,
	}
	for i := 0; i < frameCount; i++ {
		bp.frames[i] = &Frame{}
		bp.freeList[i] = frameCount - 1 - i
	}
	return bp
}

// victim finds a frame to reuse: a free frame if any, else asks the
// replacer. Must be called with mu held. Returns the frame index, or
// ok=false if the pool is exhausted (every frame pinned).
func (bp *BufferPool) victim() (int, bool) {
	if n := len(bp.freeList); n > 0 {
		idx := bp.freeList[n-1]
		bp.freeList = bp.freeList[:n-1]
		return idx, true
	}
	return bp.replacer.Evict()
}

// flushFrameLocked writes a dirty frame to disk, forcing the WAL up to
// its LSN first. Must be called with mu held.
func (bp *BufferPool) flushFrameLocked(idx int) error {
	f := bp.frames[idx]
	if !f.Dirty {
		return nil
	}
	if bp.wal != nil {
		if err := bp.wal.Flush(f.LSN); err != nil {
			return dberrors.Wrap(err, dberrors.KindResource, dberrors.CodeIOFailure, "failed to force WAL before page flush")
		}
	}
	if err := bp.disk.WritePage(f.PageID, f.Data[:]); err != nil {
		return err
	}
	f.Dirty = false
	return nil
}

// FetchPage pins and returns the frame holding pageID, loading it from
// disk (evicting a victim if necessary) if not already resident.
func (bp *BufferPool) FetchPage(pageID uint32) (*Frame, error) {
	bp.mu.Lock()

	if idx, ok := bp.pageTable[pageID]; ok {
		f := bp.frames[idx]
		f.PinCount++
		bp.replacer.SetEvictable(idx, false)
		bp.replacer.RecordAccess(idx)
		bp.mu.Unlock()
		bp.metrics.BufferHits.Inc()
		return f, nil
	}

	idx, ok := bp.victim()
	if !ok {
		bp.mu.Unlock()
		bp.metrics.BufferFullErrors.Inc()
		return nil, dberrors.Resource("buffer pool exhausted: every frame is pinned")
	}

	f := bp.frames[idx]
	if f.resident {
		delete(bp.pageTable, f.PageID)
		if err := bp.flushFrameLocked(idx); err != nil {
			bp.mu.Unlock()
			return nil, err
		}
		bp.metrics.BufferEvictions.Inc()
	}

	if err := bp.disk.ReadPage(pageID, f.Data[:]); err != nil {
		bp.mu.Unlock()
		return nil, err
	}
	f.PageID = pageID
	f.PinCount = 1
	f.Dirty = false
	f.LSN = 0
	f.resident = true
	bp.pageTable[pageID] = idx
	bp.replacer.SetEvictable(idx, false)
	bp.replacer.RecordAccess(idx)

	bp.mu.Unlock()
	bp.metrics.BufferMisses.Inc()
	return f, nil
}

// NewPage allocates a fresh page id via the Disk Manager, installs a
// clean zeroed page into a frame, pins it, and marks it dirty.
func (bp *BufferPool) NewPage() (uint32, *Frame, error) {
	bp.mu.Lock()

	idx, ok := bp.victim()
	if !ok {
		bp.mu.Unlock()
		bp.metrics.BufferFullErrors.Inc()
		return 0, nil, dberrors.Resource("buffer pool exhausted: every frame is pinned")
	}

	f := bp.frames[idx]
	if f.resident {
		delete(bp.pageTable, f.PageID)
		if err := bp.flushFrameLocked(idx); err != nil {
			bp.mu.Unlock()
			return 0, nil, err
		}
		bp.metrics.BufferEvictions.Inc()
	}

	pageID := bp.disk.AllocatePage()
	for i := range f.Data {
		f.Data[i] = 0
	}
	f.PageID = pageID
	f.PinCount = 1
	f.Dirty = true
	f.LSN = 0
	f.resident = true
	bp.pageTable[pageID] = idx
	bp.replacer.SetEvictable(idx, false)
	bp.replacer.RecordAccess(idx)

	bp.mu.Unlock()
	return pageID, f, nil
}

// UnpinPage decrements the pin count of pageID, OR-ing in isDirty, and
// makes the frame an eviction candidate once the pin count reaches
// zero.
func (bp *BufferPool) UnpinPage(pageID uint32, isDirty bool) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	idx, ok := bp.pageTable[pageID]
	if !ok {
		return dberrors.Internal("unpin of a page not resident in the buffer pool")
	}
	f := bp.frames[idx]
	if f.PinCount <= 0 {
		return dberrors.Internal("unpin called on a frame with a zero pin count")
	}
	if isDirty {
		f.Dirty = true
	}
	f.PinCount--
	if f.PinCount == 0 {
		bp.replacer.SetEvictable(idx, true)
	}
	return nil
}

// FlushPage forces pageID to disk if dirty, honoring WAL-before-data.
func (bp *BufferPool) FlushPage(pageID uint32) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	idx, ok := bp.pageTable[pageID]
	if !ok {
		return nil
	}
	return bp.flushFrameLocked(idx)
}

// FlushAll forces every resident dirty page to disk.
func (bp *BufferPool) FlushAll() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	for idx := range bp.frames {
		if bp.frames[idx].resident {
			if err := bp.flushFrameLocked(idx); err != nil {
				return err
			}
		}
	}
	return nil
}

// Capacity returns the fixed number of frames.
func (bp *BufferPool) Capacity() int { return len(bp.frames) }
