package txn

import (
	"testing"

	"github.com/latticedb/latticedb/internal/mvcc"
	"github.com/latticedb/latticedb/internal/tuple"
)

func TestRegistry_BeginAssignsIncreasingIDs(t *testing.T) {
	r := NewRegistry()
	t1 := r.Begin(RepeatableRead, 10)
	t2 := r.Begin(RepeatableRead, 20)
	if t2.ID <= t1.ID {
		t.Fatalf("expected increasing transaction ids, got %d then %d", t1.ID, t2.ID)
	}
}

func TestTransaction_IsVisible_SnapshotCutoff(t *testing.T) {
	r := NewRegistry()
	tx := r.Begin(RepeatableRead, 100)
	if !tx.IsVisible(100) {
		t.Fatalf("expected a version created exactly at the snapshot to be visible")
	}
	if !tx.IsVisible(50) {
		t.Fatalf("expected an older committed version to be visible")
	}
	if tx.IsVisible(150) {
		t.Fatalf("expected a version created after the snapshot to be invisible")
	}
}

func TestTransaction_ReadUncommitted_SeesEverything(t *testing.T) {
	r := NewRegistry()
	tx := r.Begin(ReadUncommitted, 10)
	if !tx.IsVisible(9999) {
		t.Fatalf("READ UNCOMMITTED must see versions created after its snapshot")
	}
}

func TestRegistry_MinActiveSnapshotLSN_TracksOldest(t *testing.T) {
	r := NewRegistry()
	tx1 := r.Begin(RepeatableRead, 10)
	r.Begin(RepeatableRead, 30)

	if got := r.MinActiveSnapshotLSN(); got != 10 {
		t.Fatalf("expected min active LSN 10, got %d", got)
	}

	r.Commit(tx1)
	if got := r.MinActiveSnapshotLSN(); got != 30 {
		t.Fatalf("expected min active LSN to advance to 30 after the older txn committed, got %d", got)
	}
}

func TestRegistry_MinActiveSnapshotLSN_MaxWhenEmpty(t *testing.T) {
	r := NewRegistry()
	tx := r.Begin(RepeatableRead, 5)
	r.Commit(tx)
	if got := r.MinActiveSnapshotLSN(); got != ^uint64(0) {
		t.Fatalf("expected MaxUint64 watermark with no active txns, got %d", got)
	}
}

func TestTransaction_RecordUnlock_EntersShrinkingPhase(t *testing.T) {
	r := NewRegistry()
	tx := r.Begin(RepeatableRead, 0)
	tx.RecordSharedLock("table:orders")
	if tx.State() != Growing {
		t.Fatalf("expected GROWING while only acquiring locks")
	}
	tx.RecordUnlock("table:orders")
	if tx.State() != Shrinking {
		t.Fatalf("expected SHRINKING after the first release")
	}
}

func TestTransaction_PendingVersions_AccumulateUntilCommit(t *testing.T) {
	r := NewRegistry()
	tx := r.Begin(RepeatableRead, 0)

	store := mvcc.NewStore()
	rid := tuple.RID{PageID: 1, Slot: 0}
	v := store.Insert(rid, tuple.Tuple{}, 5)
	tx.RecordPendingCreate(store, rid, v)

	del := store.Insert(tuple.RID{PageID: 1, Slot: 1}, tuple.Tuple{}, 6)
	tx.RecordPendingDelete(store, tuple.RID{PageID: 1, Slot: 1}, del)

	pending := tx.PendingVersions()
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending versions, got %d", len(pending))
	}
	if pending[0].IsDelete {
		t.Fatalf("expected the first entry to be a pending create")
	}
	if !pending[1].IsDelete {
		t.Fatalf("expected the second entry to be a pending delete")
	}
}

func TestTransaction_Abort_RecordsReason(t *testing.T) {
	r := NewRegistry()
	tx := r.Begin(RepeatableRead, 0)
	r.Abort(tx, "deadlock victim")
	if tx.State() != Aborted {
		t.Fatalf("expected ABORTED state")
	}
	if tx.AbortReason != "deadlock victim" {
		t.Fatalf("expected abort reason to be recorded, got %q", tx.AbortReason)
	}
}
