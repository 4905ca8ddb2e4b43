// Package config centralizes every tunable of a running engine instance,
// the way the teacher's wal.Options/DefaultOptions centralizes WAL
// tunables: one struct, one DefaultConfig, overridden from the process
// environment at cmd/ startup rather than threaded as loose parameters.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/latticedb/latticedb/internal/buffer"
	"github.com/latticedb/latticedb/internal/wal"
)

// Config is everything a StorageEngine needs to boot.
type Config struct {
	// DataFile is the single-file page store (section 6: page 0 is the
	// catalog, pages 1... are table/index pages).
	DataFile string

	// LogFile is the directory/prefix the WAL segments are written under.
	LogFile string

	// Port is the HTTP front end's listen port.
	Port int

	// BufferPoolFrames is the number of 4 KiB frames the buffer pool
	// keeps resident.
	BufferPoolFrames int

	// ReplacerK is the LRU-K parameter.
	ReplacerK int

	// WALSyncPolicy selects the WAL's durability/throughput tradeoff.
	WALSyncPolicy       wal.SyncPolicy
	WALSyncInterval     time.Duration
	WALSyncBatchBytes   int64
	WALSegmentMaxBytes  int64

	// LockTimeout bounds how long Acquire blocks before returning a
	// LockTimeout error.
	LockTimeout time.Duration

	// DeadlockInterval is how often the background detector rescans the
	// waits-for graph (section 4.G).
	DeadlockInterval time.Duration
}

// DefaultConfig returns the engine's out-of-the-box tunables.
func DefaultConfig() Config {
	return Config{
		DataFile:           "latticedb.db",
		LogFile:            "latticedb.log",
		Port:               7070,
		BufferPoolFrames:   1024,
		ReplacerK:          buffer.DefaultK,
		WALSyncPolicy:      wal.SyncInterval,
		WALSyncInterval:    200 * time.Millisecond,
		WALSyncBatchBytes:  1 << 20,
		WALSegmentMaxBytes: 64 << 20,
		LockTimeout:        5 * time.Second,
		DeadlockInterval:   50 * time.Millisecond,
	}
}

// FromEnv overlays environment variables onto DefaultConfig, per section
// 6's "Environment" table: LATTICEDB_DATA_FILE, LATTICEDB_LOG_FILE,
// LATTICEDB_PORT, plus the buffer pool/lock knobs this expansion adds.
func FromEnv() Config {
	c := DefaultConfig()
	if v := os.Getenv("LATTICEDB_DATA_FILE"); v != "" {
		c.DataFile = v
	}
	if v := os.Getenv("LATTICEDB_LOG_FILE"); v != "" {
		c.LogFile = v
	}
	if v := os.Getenv("LATTICEDB_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Port = p
		}
	}
	if v := os.Getenv("LATTICEDB_BUFFER_FRAMES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.BufferPoolFrames = n
		}
	}
	if v := os.Getenv("LATTICEDB_REPLACER_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ReplacerK = n
		}
	}
	if v := os.Getenv("LATTICEDB_LOCK_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.LockTimeout = time.Duration(n) * time.Millisecond
		}
	}
	if v := os.Getenv("LATTICEDB_DEADLOCK_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.DeadlockInterval = time.Duration(n) * time.Millisecond
		}
	}
	return c
}

// WALOptions projects the relevant fields into a wal.Options for the
// given path.
func (c Config) WALOptions(path string) wal.Options {
	return wal.Options{
		Path:                 path,
		BufferSize:           1 << 20,
		SyncPolicy:           c.WALSyncPolicy,
		SyncIntervalDuration: c.WALSyncInterval,
		SyncBatchBytes:       c.WALSyncBatchBytes,
		SegmentMaxBytes:      c.WALSegmentMaxBytes,
	}
}
