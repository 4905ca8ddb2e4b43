package engine

import (
	"github.com/latticedb/latticedb/internal/dberrors"
	"github.com/latticedb/latticedb/internal/mvcc"
	"github.com/latticedb/latticedb/internal/tuple"
	"github.com/latticedb/latticedb/internal/wal"
)

// pendingRedo is one version a replayed INSERT/UPDATE/DELETE record
// created or tombstoned, held pending until the owning transaction's
// COMMIT record is observed (or the log runs out without one).
type pendingRedo struct {
	store    *mvcc.Store
	rid      tuple.RID
	version  *mvcc.Version
	isDelete bool
}

// recover replays every WAL record written since the last clean
// shutdown, rebuilding the in-memory state a crash loses: each table's
// MVCC version chains and its logical-to-physical RID map. The heap
// pages themselves may already reflect some or all of this replay (the
// buffer pool can have flushed them before the crash); InsertTupleAt's
// slot-determinism check makes redoing an insert a no-op when that's
// the case.
//
// Ground: teacher's StorageEngine.Recover (pkg/storage/engine.go) —
// forward-only replay with progress logging, no separate undo/CLR
// pass. This expansion keeps that simplification for the physical page
// images (a loser's already-applied page writes are not rolled back
// byte for byte) but closes the MVCC visibility gap it otherwise
// leaves: every redone row stays pending (CommitLSN/DeleteCommitLSN
// still 0, see mvcc.Version.VisibleAt) until its transaction's COMMIT
// record is actually seen, at which point it is finalized with that
// record's LSN. A transaction whose COMMIT never made it into the log
// — whether it aborted live or the process crashed mid-transaction —
// is never finalized, so its writes stay permanently invisible exactly
// as an in-process abort's do (see Abort's doc comment), satisfying
// section 8's "only committed data is read" without a full ARIES undo
// pass over the chain itself.
func (se *StorageEngine) recover() error {
	r, err := wal.OpenReader(se.walDir)
	if err != nil {
		return dberrors.RecoveryFatal(err, "open write-ahead log for replay")
	}

	var (
		replayed  int
		committed int
		aborted   int
		highestTx uint32
	)
	pending := make(map[uint32][]pendingRedo)

	err = r.ReadAll(func(e wal.Entry) error {
		rec := e.Record
		if rec.TxnID > highestTx {
			highestTx = rec.TxnID
		}
		switch rec.Type {
		case wal.RecordCommit:
			committed++
			for _, pv := range pending[rec.TxnID] {
				if pv.isDelete {
					pv.store.FinalizeDelete(pv.rid, pv.version, e.LSN)
				} else {
					pv.store.FinalizeCreate(pv.rid, pv.version, e.LSN)
				}
			}
			delete(pending, rec.TxnID)
			return nil
		case wal.RecordAbort:
			aborted++
			delete(pending, rec.TxnID)
			return nil
		case wal.RecordInsert, wal.RecordUpdate, wal.RecordDelete:
			replayed++
			pv, err := se.redoRowRecord(rec, e.LSN)
			if err != nil {
				return err
			}
			if pv != nil {
				pending[rec.TxnID] = append(pending[rec.TxnID], *pv)
			}
			return nil
		default:
			return nil
		}
	})
	if err != nil {
		return err
	}

	se.txReg.FastForward(highestTx)
	se.logger.Printf("recovery: replayed %d row record(s), %d commit record(s), %d abort record(s) seen, %d txn(s) left uncommitted (invisible), next txn id %d",
		replayed, committed, aborted, len(pending), highestTx+1)
	return nil
}

// redoRowRecord re-applies one Insert/Update/Delete record to the
// owning table's heap and version store, returning the resulting
// pending version for recover's commit/abort bookkeeping (nil if the
// record belongs to a table no longer in the catalog — DROP TABLE is
// not itself undone by a later replay pass — or, for a delete, if no
// version chain existed to tombstone).
func (se *StorageEngine) redoRowRecord(rec *wal.Record, lsn uint64) (*pendingRedo, error) {
	table, rid, payload, ok := decodeRowPayload(rec.Payload)
	if !ok {
		return nil, dberrors.RecoveryFatal(nil, "short WAL row payload during replay")
	}

	se.mu.RLock()
	ts, exists := se.tables[table]
	se.mu.RUnlock()
	if !exists {
		return nil, nil
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()

	switch rec.Type {
	case wal.RecordInsert:
		if err := ts.heap.InsertTupleAt(rid, payload); err != nil {
			return nil, dberrors.RecoveryFatal(err, "redo insert")
		}
		row, err := tuple.Decode(payload, ts.entry.Schema)
		if err != nil {
			return nil, dberrors.RecoveryFatal(err, "decode replayed row")
		}
		ts.physical[rid] = rid
		v := ts.versions.Insert(rid, row, lsn)
		return &pendingRedo{store: ts.versions, rid: rid, version: v}, nil

	case wal.RecordUpdate:
		physical, known := ts.physical[rid]
		if !known {
			physical = rid
		}
		if newPhysical, err := ts.heap.UpdateTuple(physical, payload); err != nil {
			// The old slot is already tombstoned from a forward that
			// landed on disk before the crash; the version store still
			// needs the final row image even though the physical
			// forward itself is a no-op here.
			se.logger.Printf("recovery: update at %v already applied on disk, skipping physical redo", rid)
		} else {
			ts.physical[rid] = newPhysical
		}
		row, err := tuple.Decode(payload, ts.entry.Schema)
		if err != nil {
			return nil, dberrors.RecoveryFatal(err, "decode replayed row")
		}
		v := ts.versions.Update(rid, row, lsn)
		return &pendingRedo{store: ts.versions, rid: rid, version: v}, nil

	case wal.RecordDelete:
		physical, known := ts.physical[rid]
		if !known {
			physical = rid
		}
		if err := ts.heap.DeleteTuple(physical); err != nil {
			return nil, dberrors.RecoveryFatal(err, "redo delete")
		}
		v, err := ts.versions.Delete(rid, lsn)
		if err != nil {
			// Deleting a RID the version store never saw an insert for
			// (the insert's own record lives in an earlier, already
			// vacuumed segment) is expected for long-lived tables; the
			// tombstone on the heap page is what matters for replay.
			se.logger.Printf("recovery: delete at %v had no version chain to tombstone: %v", rid, err)
			return nil, nil
		}
		return &pendingRedo{store: ts.versions, rid: rid, version: v, isDelete: true}, nil
	}
	return nil, nil
}
