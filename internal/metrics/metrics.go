// Package metrics wires prometheus/client_golang counters and histograms
// for the buffer pool, lock manager, and WAL onto an engine-owned
// registry (never the global DefaultRegisterer), the way the teacher
// injects every other shared resource through constructors rather than
// hidden package-level state.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every metric LatticeDB exports. It is constructed
// once at engine startup and threaded through subsystem constructors.
type Registry struct {
	Registerer *prometheus.Registry

	BufferHits        prometheus.Counter
	BufferMisses      prometheus.Counter
	BufferEvictions   prometheus.Counter
	BufferFullErrors  prometheus.Counter

	LockWaitSeconds   prometheus.Histogram
	DeadlocksDetected prometheus.Counter
	LockTimeouts      prometheus.Counter

	WALFlushSeconds      prometheus.Histogram
	WALGroupCommitBatch  prometheus.Histogram
	WALBytesWritten      prometheus.Counter

	VacuumReclaimedBytes prometheus.Counter
	TxnCommits           prometheus.Counter
	TxnAborts            prometheus.Counter
}

// NewRegistry builds a fresh Registry backed by its own
// prometheus.Registry (so tests and multiple engine instances in the
// same process never collide on global metric registration).
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		Registerer: reg,
		BufferHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "latticedb_buffer_pool_hits_total",
			Help: "Buffer pool fetch_page calls satisfied by a resident frame.",
		}),
		BufferMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "latticedb_buffer_pool_misses_total",
			Help: "Buffer pool fetch_page calls that required a disk read.",
		}),
		BufferEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "latticedb_buffer_pool_evictions_total",
			Help: "Frames reclaimed from a dirty or clean victim via LRU-K.",
		}),
		BufferFullErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "latticedb_buffer_pool_exhausted_total",
			Help: "fetch_page/new_page calls that failed because every frame was pinned.",
		}),
		LockWaitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "latticedb_lock_wait_seconds",
			Help:    "Time a transaction spent blocked acquiring a lock.",
			Buckets: prometheus.DefBuckets,
		}),
		DeadlocksDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "latticedb_deadlocks_detected_total",
			Help: "Waits-for cycles found by the deadlock detector.",
		}),
		LockTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "latticedb_lock_timeouts_total",
			Help: "Lock requests that exceeded their configured timeout.",
		}),
		WALFlushSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "latticedb_wal_flush_seconds",
			Help:    "Duration of a WAL buffer flush + fsync.",
			Buckets: prometheus.DefBuckets,
		}),
		WALGroupCommitBatch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "latticedb_wal_group_commit_batch_size",
			Help:    "Number of commits served by a single fsync under group commit.",
			Buckets: prometheus.LinearBuckets(1, 2, 10),
		}),
		WALBytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "latticedb_wal_bytes_written_total",
			Help: "Bytes appended to the write-ahead log.",
		}),
		VacuumReclaimedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "latticedb_vacuum_reclaimed_bytes_total",
			Help: "Bytes reclaimed by vacuum compaction.",
		}),
		TxnCommits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "latticedb_txn_commits_total",
			Help: "Transactions committed.",
		}),
		TxnAborts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "latticedb_txn_aborts_total",
			Help: "Transactions aborted, for any reason.",
		}),
	}

	reg.MustRegister(
		r.BufferHits, r.BufferMisses, r.BufferEvictions, r.BufferFullErrors,
		r.LockWaitSeconds, r.DeadlocksDetected, r.LockTimeouts,
		r.WALFlushSeconds, r.WALGroupCommitBatch, r.WALBytesWritten,
		r.VacuumReclaimedBytes, r.TxnCommits, r.TxnAborts,
	)

	return r
}
