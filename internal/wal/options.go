package wal

import "time"

// SyncPolicy selects the durability/throughput tradeoff for Flush.
// Ground: teacher's pkg/wal/options.go SyncPolicy enum, same three
// strategies, renamed nothing.
type SyncPolicy int

const (
	// SyncEveryWrite fsyncs after every Append.
	SyncEveryWrite SyncPolicy = iota
	// SyncInterval fsyncs on a fixed background ticker (group commit).
	SyncInterval
	// SyncBatch fsyncs once SyncBatchBytes of unflushed data accumulate.
	SyncBatch
)

// Options configures a Writer.
type Options struct {
	// Path is the WAL directory: it holds the segment manifest plus one
	// file per segment (active and sealed).
	Path string

	// BufferSize is the bufio.Writer size fronting the OS file, per
	// section 4.E's "1 MiB log buffer".
	BufferSize int

	SyncPolicy           SyncPolicy
	SyncIntervalDuration time.Duration
	SyncBatchBytes       int64

	// SegmentMaxBytes triggers rotation (seal + zstd-compress the old
	// segment) once the active segment grows past this size. Zero
	// disables rotation.
	SegmentMaxBytes int64
}

// DefaultOptions mirrors the teacher's DefaultOptions tradeoffs, scaled
// to section 4.E's 1 MiB buffer and a 64 MiB segment.
func DefaultOptions(path string) Options {
	return Options{
		Path:                 path,
		BufferSize:           1 << 20,
		SyncPolicy:           SyncInterval,
		SyncIntervalDuration: 200 * time.Millisecond,
		SyncBatchBytes:       1 << 20,
		SegmentMaxBytes:      64 << 20,
	}
}
