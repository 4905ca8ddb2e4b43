// Package diskmgr implements the Disk Manager of section 4.C: page
// granular reads/writes to a single file, 4 KiB aligned, with a
// monotonic page allocator. Grounded on the teacher's heap.HeapManager
// (single os.File, explicit Seek+binary.Read/Write per record) but
// simplified to fixed-size pages instead of variable-length segments,
// since the buffer pool above it assumes uniform 4 KiB frames.
package diskmgr

import (
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/latticedb/latticedb/internal/dberrors"
	"golang.org/x/sys/unix"
)

// PageSize is the fixed page size mandated by section 3/6: 4 KiB.
const PageSize = 4096

// DiskManager owns the single data file backing a LatticeDB instance.
// It performs no caching of its own — that is the Buffer Pool's job.
type DiskManager struct {
	file       *os.File
	mu         sync.Mutex
	nextPageID uint32
}

// Open opens (creating if necessary) the data file at path and takes an
// advisory exclusive flock on it for the process lifetime, giving the
// single-writer guarantee the teacher's single-process design assumes
// implicitly (only one DiskManager may safely own a given file).
func Open(path string) (*DiskManager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, dberrors.RecoveryFatal(err, "failed to open data file")
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, dberrors.RecoveryFatal(err, "data file is locked by another process")
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, dberrors.RecoveryFatal(err, "failed to stat data file")
	}

	nextPageID := uint32(info.Size() / PageSize)

	return &DiskManager{file: f, nextPageID: nextPageID}, nil
}

// ReadPage reads the 4 KiB page at pageID into outBuf, which must be
// exactly PageSize bytes. Short reads beyond the current extent (a
// never-written page) are treated as a zero page rather than an error,
// per section 4.C.
func (d *DiskManager) ReadPage(pageID uint32, outBuf []byte) error {
	if len(outBuf) != PageSize {
		return dberrors.Internal("ReadPage requires a PageSize-length buffer")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	offset := int64(pageID) * PageSize
	n, err := d.file.ReadAt(outBuf, offset)
	if err != nil && err != io.EOF {
		return dberrors.RecoveryFatal(err, "disk read failed")
	}
	for i := n; i < PageSize; i++ {
		outBuf[i] = 0
	}
	return nil
}

// WritePage writes the 4 KiB page inBuf at pageID.
func (d *DiskManager) WritePage(pageID uint32, inBuf []byte) error {
	if len(inBuf) != PageSize {
		return dberrors.Internal("WritePage requires a PageSize-length buffer")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	offset := int64(pageID) * PageSize
	if _, err := d.file.WriteAt(inBuf, offset); err != nil {
		return dberrors.RecoveryFatal(err, "disk write failed")
	}
	return nil
}

// AllocatePage returns the next monotonic page id. It does not write
// anything to disk; the caller (Buffer Pool's new_page) is responsible
// for materializing a zeroed page there.
func (d *DiskManager) AllocatePage() uint32 {
	return atomic.AddUint32(&d.nextPageID, 1) - 1
}

// PageCount reports how many pages have been allocated so far.
func (d *DiskManager) PageCount() uint32 {
	return atomic.LoadUint32(&d.nextPageID)
}

// Sync forces the file's data to stable storage.
func (d *DiskManager) Sync() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.file.Sync(); err != nil {
		return dberrors.RecoveryFatal(err, "disk sync failed")
	}
	return nil
}

// Close releases the lock and closes the data file.
func (d *DiskManager) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	unix.Flock(int(d.file.Fd()), unix.LOCK_UN)
	return d.file.Close()
}
