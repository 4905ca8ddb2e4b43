package mvcc

import (
	"testing"

	"github.com/latticedb/latticedb/internal/dbtypes"
	"github.com/latticedb/latticedb/internal/tuple"
)

func tup(s string) tuple.Tuple {
	return tuple.Tuple{Values: []dbtypes.Value{dbtypes.Varchar(s)}}
}

func TestStore_ReadSeesVersionAsOfSnapshot(t *testing.T) {
	s := NewStore()
	rid := tuple.RID{PageID: 1, Slot: 0}

	v1 := s.Insert(rid, tup("v1"), 10)
	v2 := s.Update(rid, tup("v2"), 20)
	v3 := s.Update(rid, tup("v3"), 30)
	s.FinalizeCreate(rid, v1, 10)
	s.FinalizeCreate(rid, v2, 20)
	s.FinalizeCreate(rid, v3, 30)

	if v, ok := s.Read(rid, 5); ok {
		t.Fatalf("expected no visible version before creation, got %+v", v)
	}
	if v, ok := s.Read(rid, 10); !ok || v.Values[0].S != "v1" {
		t.Fatalf("expected v1 at snapshot 10, got %+v ok=%v", v, ok)
	}
	if v, ok := s.Read(rid, 25); !ok || v.Values[0].S != "v2" {
		t.Fatalf("expected v2 at snapshot 25, got %+v ok=%v", v, ok)
	}
	if v, ok := s.Read(rid, 100); !ok || v.Values[0].S != "v3" {
		t.Fatalf("expected v3 at snapshot 100, got %+v ok=%v", v, ok)
	}
}

// A version whose creating transaction never commits (because it
// aborts, or crashes without a COMMIT record reaching the log) must
// stay invisible to every snapshot forever, not merely until its
// append LSN is passed.
func TestStore_UncommittedVersionNeverVisible(t *testing.T) {
	s := NewStore()
	rid := tuple.RID{PageID: 1, Slot: 0}

	s.Insert(rid, tup("v1"), 10)
	// No FinalizeCreate call: this simulates an aborted transaction.

	if v, ok := s.Read(rid, 1000); ok {
		t.Fatalf("expected an uncommitted version to never be visible, got %+v", v)
	}
}

func TestStore_DeleteTombstonesForLaterSnapshots(t *testing.T) {
	s := NewStore()
	rid := tuple.RID{PageID: 1, Slot: 1}

	v1 := s.Insert(rid, tup("v1"), 10)
	s.FinalizeCreate(rid, v1, 10)
	tomb, err := s.Delete(rid, 20)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	s.FinalizeDelete(rid, tomb, 20)

	if v, ok := s.Read(rid, 15); !ok || v.Values[0].S != "v1" {
		t.Fatalf("expected v1 still visible before the delete LSN, got %+v ok=%v", v, ok)
	}
	if _, ok := s.Read(rid, 25); ok {
		t.Fatalf("expected the row to be invisible after its delete LSN")
	}
}

// A delete that never commits (its transaction aborted) must not
// tombstone the row for anyone.
func TestStore_UncommittedDeleteNeverTombstones(t *testing.T) {
	s := NewStore()
	rid := tuple.RID{PageID: 1, Slot: 1}

	v1 := s.Insert(rid, tup("v1"), 10)
	s.FinalizeCreate(rid, v1, 10)
	if _, err := s.Delete(rid, 20); err != nil {
		t.Fatalf("delete: %v", err)
	}
	// No FinalizeDelete: simulates the deleting transaction aborting.

	if v, ok := s.Read(rid, 1000); !ok || v.Values[0].S != "v1" {
		t.Fatalf("expected v1 to remain visible once its delete never committed, got %+v ok=%v", v, ok)
	}
}

func TestChain_Prune_CutsBehindSafeTombstone(t *testing.T) {
	c := &Chain{}
	c.Append(&Version{CreateLSN: 10, CommitLSN: 10})
	c.Append(&Version{CreateLSN: 20, CommitLSN: 20})
	c.Head.DeleteLSN = 25
	c.Head.DeleteCommitLSN = 25 // tombstone the newest version directly, already committed

	dropped := c.Prune(30) // no active snapshot predates LSN 30
	if dropped == 0 {
		t.Fatalf("expected pruning to reclaim versions behind the safe tombstone")
	}
	if c.Head != nil {
		t.Fatalf("expected the whole chain to be reclaimed once its tombstone is safely in the past")
	}
}

func TestChain_Prune_KeepsVersionsStillReachable(t *testing.T) {
	c := &Chain{}
	c.Append(&Version{CreateLSN: 10, CommitLSN: 10})
	c.Append(&Version{CreateLSN: 20, CommitLSN: 20})
	c.Head.DeleteLSN = 25
	c.Head.DeleteCommitLSN = 25

	dropped := c.Prune(15) // an active snapshot at 15 still needs the first version
	if dropped != 0 {
		t.Fatalf("expected no pruning while a snapshot predates the tombstone, dropped %d", dropped)
	}
}

// An uncommitted tombstone must never be treated as safe to prune
// behind, even if its raw append LSN looks old enough.
func TestChain_Prune_IgnoresUncommittedTombstone(t *testing.T) {
	c := &Chain{}
	c.Append(&Version{CreateLSN: 10, CommitLSN: 10})
	c.Append(&Version{CreateLSN: 20, CommitLSN: 20})
	c.Head.DeleteLSN = 25 // pending delete, never finalized

	dropped := c.Prune(30)
	if dropped != 0 {
		t.Fatalf("expected no pruning behind an uncommitted tombstone, dropped %d", dropped)
	}
}
