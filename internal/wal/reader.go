package wal

import (
	"os"
	"path/filepath"

	"github.com/DataDog/zstd"

	"github.com/latticedb/latticedb/internal/dberrors"
)

// Reader replays the WAL from the beginning for crash recovery's redo
// pass (recovery has no separate undo pass). It transparently
// decompresses sealed (.zst) segments. Ground: teacher's
// pkg/wal/reader.go sequential-scan shape, extended to walk the
// segment manifest instead of a single file.
type Reader struct {
	dir  string
	segs []segmentMeta
}

// OpenReader loads the segment manifest for dir (the same directory
// passed to NewWriter) without taking a write lock.
func OpenReader(dir string) (*Reader, error) {
	segs, err := loadManifest(dir, "segment-000000.wal")
	if err != nil {
		return nil, err
	}
	return &Reader{dir: dir, segs: segs}, nil
}

// Entry pairs a decoded Record with the LSN it was assigned.
type Entry struct {
	LSN    uint64
	Record *Record
}

// ReadAll replays every durable record across all segments, in LSN
// order, invoking fn for each. A short (torn) trailing record in the
// active segment ends the scan without error, since an in-progress
// write that never reached fsync is, by definition, not durable.
func (r *Reader) ReadAll(fn func(Entry) error) error {
	for _, seg := range r.segs {
		data, err := r.loadSegment(seg)
		if err != nil {
			return err
		}
		pos := 0
		lsn := seg.StartLSN
		for pos < len(data) {
			rec, n, err := DecodeRecord(data[pos:])
			if err != nil {
				if IsShortRecord(err) {
					break
				}
				return dberrors.RecoveryFatal(err, "corrupt WAL record during replay")
			}
			if err := fn(Entry{LSN: lsn, Record: rec}); err != nil {
				return err
			}
			pos += n
			lsn += uint64(n)
		}
	}
	return nil
}

func (r *Reader) loadSegment(seg segmentMeta) ([]byte, error) {
	path := filepath.Join(r.dir, seg.FileName)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, dberrors.Wrap(err, dberrors.KindResource, dberrors.CodeIOFailure, "read WAL segment")
	}
	if seg.Sealed {
		decompressed, err := zstd.Decompress(nil, raw)
		if err != nil {
			return nil, dberrors.RecoveryFatal(err, "zstd-decompress sealed WAL segment")
		}
		return decompressed, nil
	}
	return raw, nil
}
