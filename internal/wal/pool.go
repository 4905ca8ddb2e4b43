package wal

import "sync"

// Pooling of WAL-adjacent allocations to keep group-commit bursts off
// the GC. Ground: teacher's pkg/wal/pool.go (entryPool/bufferPool).

var recordPool = sync.Pool{
	New: func() interface{} {
		return &Record{Payload: make([]byte, 0, 256)}
	},
}

var bufferPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, 0, 512)
		return &buf
	},
}

// AcquireRecord returns a zeroed *Record from the pool.
func AcquireRecord() *Record {
	r := recordPool.Get().(*Record)
	r.Type = 0
	r.TxnID = 0
	r.PrevLSN = 0
	r.PageID = 0
	r.Payload = r.Payload[:0]
	return r
}

// ReleaseRecord returns r to the pool.
func ReleaseRecord(r *Record) {
	recordPool.Put(r)
}

// AcquireBuffer returns a reusable []byte scratch buffer.
func AcquireBuffer() *[]byte {
	return bufferPool.Get().(*[]byte)
}

// ReleaseBuffer returns buf to the pool.
func ReleaseBuffer(buf *[]byte) {
	*buf = (*buf)[:0]
	bufferPool.Put(buf)
}
