package crdt

import (
	"testing"

	"github.com/latticedb/latticedb/internal/dbtypes"
)

func TestResolve_LWW_GreaterStampWins(t *testing.T) {
	policy := dbtypes.MergePolicy{Kind: dbtypes.MergeLWW}
	got, err := Resolve(policy, dbtypes.Varchar("Ada"), dbtypes.Varchar("Ada Lovelace"),
		Stamp{CommitLSN: 10}, Stamp{CommitLSN: 20})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.S != "Ada Lovelace" {
		t.Fatalf("expected the higher-stamped value to win, got %q", got.S)
	}
}

func TestResolve_LWW_TieBreaksOnTxnThenSite(t *testing.T) {
	policy := dbtypes.MergePolicy{Kind: dbtypes.MergeLWW}
	got, err := Resolve(policy, dbtypes.Varchar("a"), dbtypes.Varchar("b"),
		Stamp{CommitLSN: 10, TxnID: 1}, Stamp{CommitLSN: 10, TxnID: 2})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.S != "b" {
		t.Fatalf("expected the greater txn_id to win an LSN tie, got %q", got.S)
	}
}

func TestResolve_SumBounded_ClampsToRange(t *testing.T) {
	policy := dbtypes.MergePolicy{Kind: dbtypes.MergeSumBounded, Lo: 0, Hi: 1000000}
	got, err := Resolve(policy, dbtypes.Int64(999999), dbtypes.Int64(50),
		Stamp{}, Stamp{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.I != 1000000 {
		t.Fatalf("expected the sum to clamp at hi=1000000, got %d", got.I)
	}
}

// TestResolve_Gset_Scenario mirrors the spec seed scenario: a gset
// column merging {'engineer','math'} with a later {'leader'} write
// yields the union of both.
func TestResolve_Gset_Scenario(t *testing.T) {
	policy := dbtypes.MergePolicy{Kind: dbtypes.MergeGSet}
	old := dbtypes.Blob(NewGSet("engineer", "math").Encode())
	incoming := dbtypes.Blob(NewGSet("leader").Encode())

	got, err := Resolve(policy, old, incoming, Stamp{}, Stamp{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	merged, err := DecodeGSet(got.Bytes)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := map[string]bool{"engineer": true, "math": true, "leader": true}
	if len(merged.Elements) != len(want) {
		t.Fatalf("expected %d elements, got %d (%v)", len(want), len(merged.Elements), merged.Sorted())
	}
	for e := range want {
		if _, ok := merged.Elements[e]; !ok {
			t.Fatalf("expected element %q in merged set, got %v", e, merged.Sorted())
		}
	}
}

func TestResolve_Max_PicksGreaterUnderTotalOrder(t *testing.T) {
	policy := dbtypes.MergePolicy{Kind: dbtypes.MergeMax}
	got, err := Resolve(policy, dbtypes.Int64(3), dbtypes.Int64(7), Stamp{}, Stamp{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.I != 7 {
		t.Fatalf("expected max to pick 7, got %d", got.I)
	}
}

func TestGSet_Union_IsCommutativeAssociativeIdempotent(t *testing.T) {
	a := NewGSet("x", "y")
	b := NewGSet("y", "z")
	c := NewGSet("w")

	ab := a.Union(b)
	ba := b.Union(a)
	if len(ab.Elements) != len(ba.Elements) {
		t.Fatalf("union not commutative: %v vs %v", ab.Sorted(), ba.Sorted())
	}

	left := a.Union(b).Union(c)
	right := a.Union(b.Union(c))
	if len(left.Elements) != len(right.Elements) {
		t.Fatalf("union not associative: %v vs %v", left.Sorted(), right.Sorted())
	}

	idem := a.Union(a)
	if len(idem.Elements) != len(a.Elements) {
		t.Fatalf("union not idempotent: %v vs %v", idem.Sorted(), a.Sorted())
	}
}

func TestORSet_AddThenRemoveThenMerge(t *testing.T) {
	o1 := NewORSet()
	o1.Add("red", "tag1")
	o2 := NewORSet()
	o2.Add("red", "tag2")
	o2.Remove("red") // removes tag2 only, as observed by o2

	merged := o1.Merge(o2)
	live := merged.Live()
	if len(live) != 1 || live[0] != "red" {
		t.Fatalf("expected red still live via tag1 (not observed by the remove), got %v", live)
	}
}

func TestMVRegister_ConcurrentWritesKeptUntilGreaterStamp(t *testing.T) {
	a := NewMVRegister(10, "left")
	b := NewMVRegister(10, "right")
	merged := a.Merge(b)
	if len(merged.Entries) != 2 {
		t.Fatalf("expected both concurrent values kept at equal stamps, got %d", len(merged.Entries))
	}

	c := NewMVRegister(20, "winner")
	merged2 := merged.Merge(c)
	if len(merged2.Entries) != 1 || merged2.Entries[0].Value != "winner" {
		t.Fatalf("expected the strictly greater stamp to replace prior concurrent values, got %+v", merged2.Entries)
	}
}

func TestMapLWW_PerKeyResolution(t *testing.T) {
	a := NewMapLWW()
	a.Put("color", "red", 10)
	a.Put("size", "M", 5)

	b := NewMapLWW()
	b.Put("color", "blue", 20)

	merged := a.Merge(b)
	if merged.Entries["color"].Value != "blue" {
		t.Fatalf("expected the higher-stamped value for color, got %q", merged.Entries["color"].Value)
	}
	if merged.Entries["size"].Value != "M" {
		t.Fatalf("expected size to survive untouched, got %q", merged.Entries["size"].Value)
	}
}
