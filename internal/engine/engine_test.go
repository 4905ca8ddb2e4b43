package engine_test

import (
	"path/filepath"
	"testing"

	"github.com/latticedb/latticedb/internal/config"
	"github.com/latticedb/latticedb/internal/dbtypes"
	"github.com/latticedb/latticedb/internal/engine"
	"github.com/latticedb/latticedb/internal/tuple"
	"github.com/latticedb/latticedb/internal/txn"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	c := config.DefaultConfig()
	c.DataFile = filepath.Join(dir, "lattice.db")
	c.LogFile = filepath.Join(dir, "wal")
	c.BufferPoolFrames = 32
	return c
}

func peopleSchema() *dbtypes.Schema {
	return dbtypes.NewSchema([]dbtypes.Column{
		dbtypes.NewColumn("id", dbtypes.KindInt64, false),
		dbtypes.NewColumn("name", dbtypes.KindVarchar, false),
	})
}

func TestOpen_FreshCreatesCatalog(t *testing.T) {
	se, err := engine.Open(testConfig(t), nil, nil, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer se.Close()

	if err := se.CreateTable("people", peopleSchema()); err != nil {
		t.Fatalf("create table: %v", err)
	}
}

func TestInsertGetUpdateDelete(t *testing.T) {
	se, err := engine.Open(testConfig(t), nil, nil, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer se.Close()

	schema := peopleSchema()
	if err := se.CreateTable("people", schema); err != nil {
		t.Fatalf("create table: %v", err)
	}

	tx := se.BeginTxn(txn.RepeatableRead)
	row := tuple.Tuple{Values: []dbtypes.Value{dbtypes.Int64(1), dbtypes.Varchar("alice")}}
	rid, err := se.Insert(tx, "people", row)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := se.Commit(tx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	readTx := se.BeginTxn(txn.RepeatableRead)
	got, ok, err := se.Get(readTx, "people", rid)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatalf("expected row to be visible")
	}
	if got.Values[1].S != "alice" {
		t.Fatalf("expected alice, got %q", got.Values[1].S)
	}
	se.Commit(readTx)

	updateTx := se.BeginTxn(txn.RepeatableRead)
	newRow := tuple.Tuple{Values: []dbtypes.Value{dbtypes.Int64(1), dbtypes.Varchar("alicia")}}
	if err := se.Update(updateTx, "people", rid, newRow, false); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := se.Commit(updateTx); err != nil {
		t.Fatalf("commit update: %v", err)
	}

	verifyTx := se.BeginTxn(txn.RepeatableRead)
	got, _, _ = se.Get(verifyTx, "people", rid)
	if got.Values[1].S != "alicia" {
		t.Fatalf("expected alicia after update, got %q", got.Values[1].S)
	}
	se.Commit(verifyTx)

	deleteTx := se.BeginTxn(txn.RepeatableRead)
	if err := se.Delete(deleteTx, "people", rid); err != nil {
		t.Fatalf("delete: %v", err)
	}
	se.Commit(deleteTx)

	finalTx := se.BeginTxn(txn.RepeatableRead)
	_, ok, _ = se.Get(finalTx, "people", rid)
	if ok {
		t.Fatalf("expected row to be gone after delete")
	}
	se.Commit(finalTx)
}

func TestUpdate_MergePolicyResolvesConflict(t *testing.T) {
	se, err := engine.Open(testConfig(t), nil, nil, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer se.Close()

	schema := dbtypes.NewSchema([]dbtypes.Column{
		dbtypes.NewColumn("id", dbtypes.KindInt64, false),
		dbtypes.NewColumn("views", dbtypes.KindInt64, false).WithMerge(dbtypes.MergePolicy{Kind: dbtypes.MergeMax}),
	})
	if err := se.CreateTable("counters", schema); err != nil {
		t.Fatalf("create table: %v", err)
	}

	tx := se.BeginTxn(txn.RepeatableRead)
	rid, err := se.Insert(tx, "counters", tuple.Tuple{Values: []dbtypes.Value{dbtypes.Int64(1), dbtypes.Int64(5)}})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	se.Commit(tx)

	mergeTx := se.BeginTxn(txn.RepeatableRead)
	lower := tuple.Tuple{Values: []dbtypes.Value{dbtypes.Int64(1), dbtypes.Int64(2)}}
	if err := se.Update(mergeTx, "counters", rid, lower, true); err != nil {
		t.Fatalf("merge update: %v", err)
	}
	se.Commit(mergeTx)

	checkTx := se.BeginTxn(txn.RepeatableRead)
	got, _, _ := se.Get(checkTx, "counters", rid)
	if got.Values[1].I != 5 {
		t.Fatalf("expected MergeMax to keep 5, got %d", got.Values[1].I)
	}
	se.Commit(checkTx)
}

func TestScan_ReturnsOnlyVisibleRows(t *testing.T) {
	se, err := engine.Open(testConfig(t), nil, nil, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer se.Close()

	schema := peopleSchema()
	if err := se.CreateTable("people", schema); err != nil {
		t.Fatalf("create table: %v", err)
	}

	for i, name := range []string{"alice", "bob", "carol"} {
		tx := se.BeginTxn(txn.RepeatableRead)
		row := tuple.Tuple{Values: []dbtypes.Value{dbtypes.Int64(int64(i)), dbtypes.Varchar(name)}}
		if _, err := se.Insert(tx, "people", row); err != nil {
			t.Fatalf("insert: %v", err)
		}
		se.Commit(tx)
	}

	tx := se.BeginTxn(txn.RepeatableRead)
	rows, err := se.Scan(tx, "people")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	se.Commit(tx)
}

func TestAbort_ReleasesLocksAndDoesNotCommitRow(t *testing.T) {
	se, err := engine.Open(testConfig(t), nil, nil, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer se.Close()

	schema := peopleSchema()
	if err := se.CreateTable("people", schema); err != nil {
		t.Fatalf("create table: %v", err)
	}

	seedTx := se.BeginTxn(txn.RepeatableRead)
	row := tuple.Tuple{Values: []dbtypes.Value{dbtypes.Int64(1), dbtypes.Varchar("alice")}}
	rid, err := se.Insert(seedTx, "people", row)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	se.Commit(seedTx)

	tx := se.BeginTxn(txn.RepeatableRead)
	touched := tuple.Tuple{Values: []dbtypes.Value{dbtypes.Int64(1), dbtypes.Varchar("changed")}}
	if err := se.Update(tx, "people", rid, touched, false); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := se.Abort(tx, "test abort"); err != nil {
		t.Fatalf("abort: %v", err)
	}

	// A fresh transaction started after the abort must be able to take
	// the exclusive lock on the same row again without timing out.
	other := se.BeginTxn(txn.RepeatableRead)
	if err := se.Update(other, "people", rid, touched, false); err != nil {
		t.Fatalf("expected lock to be released after abort, got: %v", err)
	}
	se.Commit(other)
}

func TestRecovery_SurvivesRestart(t *testing.T) {
	cfg := testConfig(t)

	se, err := engine.Open(cfg, nil, nil, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	schema := peopleSchema()
	if err := se.CreateTable("people", schema); err != nil {
		t.Fatalf("create table: %v", err)
	}

	tx := se.BeginTxn(txn.RepeatableRead)
	row := tuple.Tuple{Values: []dbtypes.Value{dbtypes.Int64(7), dbtypes.Varchar("zoe")}}
	rid, err := se.Insert(tx, "people", row)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := se.Commit(tx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := se.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	se2, err := engine.Open(cfg, nil, nil, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer se2.Close()

	readTx := se2.BeginTxn(txn.RepeatableRead)
	got, ok, err := se2.Get(readTx, "people", rid)
	if err != nil {
		t.Fatalf("get after recovery: %v", err)
	}
	if !ok {
		t.Fatalf("expected row to survive a restart")
	}
	if got.Values[1].S != "zoe" {
		t.Fatalf("expected zoe after recovery, got %q", got.Values[1].S)
	}
	se2.Commit(readTx)
}

func TestCreateIndex_BuildsFromExistingRowsAndServesLookup(t *testing.T) {
	se, err := engine.Open(testConfig(t), nil, nil, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer se.Close()

	schema := peopleSchema()
	if err := se.CreateTable("people", schema); err != nil {
		t.Fatalf("create table: %v", err)
	}

	tx := se.BeginTxn(txn.RepeatableRead)
	rid, err := se.Insert(tx, "people", tuple.Tuple{Values: []dbtypes.Value{dbtypes.Int64(1), dbtypes.Varchar("amy")}})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	se.Commit(tx)

	if err := se.CreateIndex("people_name", "people", "name", true); err != nil {
		t.Fatalf("create index: %v", err)
	}

	got, ok := se.IndexLookup("people", "name", dbtypes.Varchar("amy"))
	if !ok || got != rid {
		t.Fatalf("expected index lookup to find the pre-existing row, got %+v ok=%v", got, ok)
	}

	if err := se.DropIndex("people_name"); err != nil {
		t.Fatalf("drop index: %v", err)
	}
	if _, ok := se.IndexLookup("people", "name", dbtypes.Varchar("amy")); ok {
		t.Fatalf("expected lookup to miss after the index is dropped")
	}
}

func TestCreateIndex_UniqueRejectsPreexistingDuplicates(t *testing.T) {
	se, err := engine.Open(testConfig(t), nil, nil, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer se.Close()

	schema := peopleSchema()
	if err := se.CreateTable("people", schema); err != nil {
		t.Fatalf("create table: %v", err)
	}

	tx := se.BeginTxn(txn.RepeatableRead)
	se.Insert(tx, "people", tuple.Tuple{Values: []dbtypes.Value{dbtypes.Int64(1), dbtypes.Varchar("amy")}})
	se.Insert(tx, "people", tuple.Tuple{Values: []dbtypes.Value{dbtypes.Int64(2), dbtypes.Varchar("amy")}})
	se.Commit(tx)

	if err := se.CreateIndex("people_name", "people", "name", true); err == nil {
		t.Fatalf("expected unique index creation to fail over duplicate existing names")
	}
}

func TestInsert_UniqueIndexRejectsConflictAndKeepsRowOut(t *testing.T) {
	se, err := engine.Open(testConfig(t), nil, nil, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer se.Close()

	schema := peopleSchema()
	if err := se.CreateTable("people", schema); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if err := se.CreateIndex("people_name", "people", "name", true); err != nil {
		t.Fatalf("create index: %v", err)
	}

	tx := se.BeginTxn(txn.RepeatableRead)
	if _, err := se.Insert(tx, "people", tuple.Tuple{Values: []dbtypes.Value{dbtypes.Int64(1), dbtypes.Varchar("amy")}}); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	se.Commit(tx)

	tx2 := se.BeginTxn(txn.RepeatableRead)
	_, err = se.Insert(tx2, "people", tuple.Tuple{Values: []dbtypes.Value{dbtypes.Int64(2), dbtypes.Varchar("amy")}})
	if err == nil {
		t.Fatalf("expected a unique violation on the conflicting second insert")
	}
	se.Abort(tx2, "unique violation")

	scanTx := se.BeginTxn(txn.RepeatableRead)
	rows, err := se.Scan(scanTx, "people")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	se.Commit(scanTx)
	if len(rows) != 1 {
		t.Fatalf("expected the rejected insert to never become visible, got %d rows", len(rows))
	}
}
