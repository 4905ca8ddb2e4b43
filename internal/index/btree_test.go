package index

import (
	"fmt"
	"testing"

	"github.com/latticedb/latticedb/internal/dberrors"
	"github.com/latticedb/latticedb/internal/dbtypes"
	"github.com/latticedb/latticedb/internal/tuple"
)

func TestTree_InsertGet(t *testing.T) {
	tr := NewTree("t", "idx_t")
	for i := 0; i < 200; i++ {
		if err := tr.Insert(dbtypes.Int64(int64(i)), tuple.RID{PageID: uint32(i), Slot: 0}); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	for i := 0; i < 200; i++ {
		rid, ok := tr.Get(dbtypes.Int64(int64(i)))
		if !ok {
			t.Fatalf("expected key %d to be found", i)
		}
		if rid.PageID != uint32(i) {
			t.Fatalf("key %d: got rid %+v", i, rid)
		}
	}
	if _, ok := tr.Get(dbtypes.Int64(9999)); ok {
		t.Fatalf("expected missing key to report not found")
	}
}

func TestTree_NonUniqueAllowsDuplicateKeysLastWriteWins(t *testing.T) {
	tr := NewTree("t", "idx_t")
	key := dbtypes.Varchar("dup")
	if err := tr.Insert(key, tuple.RID{PageID: 1}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tr.Insert(key, tuple.RID{PageID: 2}); err != nil {
		t.Fatalf("second insert under a non-unique tree must not error: %v", err)
	}
	rid, ok := tr.Get(key)
	if !ok || rid.PageID != 2 {
		t.Fatalf("expected the later insert to win, got %+v ok=%v", rid, ok)
	}
}

func TestTree_UniqueRejectsConflictingKey(t *testing.T) {
	tr := NewUniqueTree("accounts", "accounts_pk")
	key := dbtypes.Varchar("acct-1")
	if err := tr.Insert(key, tuple.RID{PageID: 1}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	err := tr.Insert(key, tuple.RID{PageID: 2})
	if err == nil {
		t.Fatalf("expected a unique violation for a conflicting rid under the same key")
	}
	ee, ok := dberrors.As(err)
	if !ok || ee.SQLState != dberrors.CodeUniqueViolation {
		t.Fatalf("expected a unique violation engine error, got %v", err)
	}

	// Re-inserting the same rid under the same key is idempotent.
	if err := tr.Insert(key, tuple.RID{PageID: 1}); err != nil {
		t.Fatalf("re-insert of the same rid must not error: %v", err)
	}
}

func TestTree_Replace(t *testing.T) {
	tr := NewUniqueTree("t", "idx_t")
	key := dbtypes.Int32(7)
	if err := tr.Insert(key, tuple.RID{PageID: 1}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tr.Replace(key, tuple.RID{PageID: 99}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	rid, ok := tr.Get(key)
	if !ok || rid.PageID != 99 {
		t.Fatalf("expected replace to overwrite the rid, got %+v", rid)
	}
}

func TestTree_RemoveShrinksAcrossSplitsAndMerges(t *testing.T) {
	tr := NewTree("t", "idx_t")
	const n = 500
	for i := 0; i < n; i++ {
		if err := tr.Insert(dbtypes.Int64(int64(i)), tuple.RID{PageID: uint32(i)}); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	// Remove every other key, forcing borrows and merges across leaves.
	for i := 0; i < n; i += 2 {
		if !tr.Remove(dbtypes.Int64(int64(i))) {
			t.Fatalf("expected key %d to be removed", i)
		}
	}

	for i := 0; i < n; i++ {
		_, ok := tr.Get(dbtypes.Int64(int64(i)))
		want := i%2 == 1
		if ok != want {
			t.Fatalf("key %d: got present=%v, want %v", i, ok, want)
		}
	}

	if tr.Remove(dbtypes.Int64(0)) {
		t.Fatalf("removing an already-removed key must report false")
	}
}

func TestTree_DifferentKindsCoexistByTagOrder(t *testing.T) {
	tr := NewTree("t", "idx_t")
	keys := []dbtypes.Value{
		dbtypes.Null(),
		dbtypes.Bool(true),
		dbtypes.Int32(5),
		dbtypes.Varchar("x"),
	}
	for i, k := range keys {
		if err := tr.Insert(k, tuple.RID{PageID: uint32(i)}); err != nil {
			t.Fatalf("insert %v: %v", k, err)
		}
	}
	for i, k := range keys {
		rid, ok := tr.Get(k)
		if !ok || rid.PageID != uint32(i) {
			t.Fatalf("key %v: got %+v ok=%v, want page %d", k, rid, ok, i)
		}
	}
}

func TestTree_ManyKeysSurviveInterleaving(t *testing.T) {
	tr := NewTree("t", "idx_t")
	for i := 0; i < 64; i++ {
		k := dbtypes.Varchar(fmt.Sprintf("key-%03d", i))
		if err := tr.Insert(k, tuple.RID{PageID: uint32(i), Slot: uint16(i)}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	for i := 0; i < 64; i += 3 {
		k := dbtypes.Varchar(fmt.Sprintf("key-%03d", i))
		if !tr.Remove(k) {
			t.Fatalf("expected removal of %v to succeed", k)
		}
	}
	for i := 0; i < 64; i++ {
		k := dbtypes.Varchar(fmt.Sprintf("key-%03d", i))
		rid, ok := tr.Get(k)
		if i%3 == 0 {
			if ok {
				t.Fatalf("expected %v to be removed, found %+v", k, rid)
			}
			continue
		}
		if !ok || rid.Slot != uint16(i) {
			t.Fatalf("expected %v to survive with slot %d, got %+v ok=%v", k, i, rid, ok)
		}
	}
}
