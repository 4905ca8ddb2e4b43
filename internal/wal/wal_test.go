package wal

import (
	"path/filepath"
	"testing"

	"github.com/latticedb/latticedb/internal/metrics"
)

func TestRecord_EncodeDecode_RoundTrip(t *testing.T) {
	rec := &Record{Type: RecordInsert, TxnID: 7, PrevLSN: 42, PageID: 3, Payload: []byte("hello")}
	buf := make([]byte, rec.EncodedSize())
	encoded := rec.Encode(buf)

	got, n, err := DecodeRecord(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != len(encoded) {
		t.Fatalf("expected to consume %d bytes, consumed %d", len(encoded), n)
	}
	if got.Type != rec.Type || got.TxnID != rec.TxnID || got.PrevLSN != rec.PrevLSN || got.PageID != rec.PageID {
		t.Fatalf("round trip changed fields: got %+v want %+v", got, rec)
	}
	if string(got.Payload) != "hello" {
		t.Fatalf("payload mismatch: %q", got.Payload)
	}
}

func TestRecord_Decode_DetectsChecksumMismatch(t *testing.T) {
	rec := &Record{Type: RecordCommit, TxnID: 1}
	buf := make([]byte, rec.EncodedSize())
	encoded := rec.Encode(buf)
	encoded[len(encoded)-1] ^= 0xFF // flip a bit in the trailing CRC32

	if _, _, err := DecodeRecord(encoded); err != ErrChecksumMismatch {
		t.Fatalf("expected checksum mismatch, got %v", err)
	}
}

func TestRecord_Decode_ShortBufferIsNotFatal(t *testing.T) {
	rec := &Record{Type: RecordBegin, TxnID: 1, Payload: []byte("x")}
	buf := make([]byte, rec.EncodedSize())
	encoded := rec.Encode(buf)

	_, _, err := DecodeRecord(encoded[:len(encoded)-2])
	if !IsShortRecord(err) {
		t.Fatalf("expected a short-record sentinel, got %v", err)
	}
}

func TestWriter_AppendAssignsMonotonicLSNs(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "wal")
	w, err := NewWriter(DefaultOptions(dir), metrics.NewRegistry())
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	defer w.Close()

	lsn1, err := w.Append(&Record{Type: RecordBegin, TxnID: 1})
	if err != nil {
		t.Fatalf("append 1: %v", err)
	}
	lsn2, err := w.Append(&Record{Type: RecordCommit, TxnID: 1})
	if err != nil {
		t.Fatalf("append 2: %v", err)
	}
	if lsn2 <= lsn1 {
		t.Fatalf("expected monotonically increasing LSNs, got %d then %d", lsn1, lsn2)
	}
}

func TestWriter_FlushThenReadAllSeesEverything(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "wal")
	w, err := NewWriter(DefaultOptions(dir), metrics.NewRegistry())
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	var lsns []uint64
	for i := 0; i < 5; i++ {
		lsn, err := w.Append(&Record{Type: RecordInsert, TxnID: uint32(i), Payload: []byte{byte(i)}})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		lsns = append(lsns, lsn)
	}
	if err := w.Flush(w.CurrentLSN()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	r, err := OpenReader(dir)
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}

	var seen []Entry
	if err := r.ReadAll(func(e Entry) error {
		seen = append(seen, e)
		return nil
	}); err != nil {
		t.Fatalf("read all: %v", err)
	}

	if len(seen) != 5 {
		t.Fatalf("expected 5 records, got %d", len(seen))
	}
	for i, e := range seen {
		if e.LSN != lsns[i] {
			t.Fatalf("record %d: expected LSN %d, got %d", i, lsns[i], e.LSN)
		}
		if e.Record.TxnID != uint32(i) {
			t.Fatalf("record %d: expected txn %d, got %d", i, i, e.Record.TxnID)
		}
	}
}

func TestWriter_GroupCommit_FollowerSeesLeaderFlush(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "wal")
	opts := DefaultOptions(dir)
	w, err := NewWriter(opts, metrics.NewRegistry())
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	defer w.Close()

	lsn, err := w.Append(&Record{Type: RecordCommit, TxnID: 1})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Flush(lsn); err != nil {
		t.Fatalf("flush: %v", err)
	}
	// A second flush for an already-durable LSN must be a no-op, not a
	// redundant fsync.
	if err := w.Flush(lsn); err != nil {
		t.Fatalf("second flush: %v", err)
	}
}

func TestWriter_SegmentRotation_SealsAndCompresses(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "wal")
	opts := DefaultOptions(dir)
	opts.SegmentMaxBytes = 64 // force rotation almost immediately
	w, err := NewWriter(opts, metrics.NewRegistry())
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	var lsns []uint64
	for i := 0; i < 20; i++ {
		lsn, err := w.Append(&Record{Type: RecordInsert, TxnID: uint32(i), Payload: make([]byte, 16)})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		lsns = append(lsns, lsn)
	}
	if err := w.Flush(w.CurrentLSN()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(w.segments) < 2 {
		t.Fatalf("expected at least one rotation, got %d segments", len(w.segments))
	}

	r, err := OpenReader(dir)
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	count := 0
	if err := r.ReadAll(func(e Entry) error {
		if e.LSN != lsns[count] {
			t.Fatalf("record %d: expected LSN %d, got %d", count, lsns[count], e.LSN)
		}
		count++
		return nil
	}); err != nil {
		t.Fatalf("read all across rotated segments: %v", err)
	}
	if count != 20 {
		t.Fatalf("expected 20 records across segments, got %d", count)
	}
}
