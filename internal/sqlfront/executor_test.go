package sqlfront_test

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/latticedb/latticedb/internal/config"
	"github.com/latticedb/latticedb/internal/dbtypes"
	"github.com/latticedb/latticedb/internal/engine"
	"github.com/latticedb/latticedb/internal/sqlfront"
	"github.com/latticedb/latticedb/internal/tuple"
	"github.com/latticedb/latticedb/internal/txn"
)

func testEngine(t *testing.T) *engine.StorageEngine {
	t.Helper()
	dir := t.TempDir()
	c := config.DefaultConfig()
	c.DataFile = filepath.Join(dir, "lattice.db")
	c.LogFile = filepath.Join(dir, "wal")
	c.BufferPoolFrames = 32

	se, err := engine.Open(c, nil, nil, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { se.Close() })
	return se
}

func run(t *testing.T, eng sqlfront.Engine, sess *sqlfront.Session, statement string) *sqlfront.Result {
	t.Helper()
	res, err := sqlfront.Run(eng, sess, statement)
	if err != nil {
		t.Fatalf("run %q: %v", statement, err)
	}
	return res
}

func TestCreateInsertSelectUpdateDelete(t *testing.T) {
	se := testEngine(t)
	sess := &sqlfront.Session{}

	run(t, se, sess, `CREATE TABLE people (id INT PRIMARY KEY, name TEXT)`)
	run(t, se, sess, `INSERT INTO people (id, name) VALUES (1, 'alice'), (2, 'bob')`)

	res := run(t, se, sess, `SELECT * FROM people WHERE id = 1`)
	if len(res.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(res.Rows))
	}
	if res.Rows[0][1].S != "alice" {
		t.Fatalf("expected alice, got %q", res.Rows[0][1].S)
	}

	run(t, se, sess, `UPDATE people SET name = 'alicia' WHERE id = 1`)
	res = run(t, se, sess, `SELECT name FROM people WHERE id = 1`)
	if res.Rows[0][0].S != "alicia" {
		t.Fatalf("expected alicia after update, got %q", res.Rows[0][0].S)
	}

	run(t, se, sess, `DELETE FROM people WHERE id = 2`)
	res = run(t, se, sess, `SELECT * FROM people`)
	if len(res.Rows) != 1 {
		t.Fatalf("expected 1 row after delete, got %d", len(res.Rows))
	}
}

// Seed scenario: INSERT omitting the column list and table name leans on
// schema order and the session's last-referenced table respectively.
func TestInsertShorthandGrammar(t *testing.T) {
	se := testEngine(t)
	sess := &sqlfront.Session{}

	run(t, se, sess, `CREATE TABLE t (k TEXT PK, v INT)`)
	run(t, se, sess, `INSERT INTO t VALUES('a', 1)`)
	run(t, se, sess, `INSERT VALUES('b', 2)`)

	res := run(t, se, sess, `SELECT * FROM t ORDER BY k`)
	if len(res.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(res.Rows))
	}
	if res.Rows[0][0].S != "a" || res.Rows[1][0].S != "b" {
		t.Fatalf("unexpected rows: %+v", res.Rows)
	}
}

// ON CONFLICT MERGE against a SUM_BOUNDED column: a second insert for the
// same key adds to the existing value instead of overwriting it.
func TestOnConflictMergeSumBounded(t *testing.T) {
	se := testEngine(t)
	sess := &sqlfront.Session{}

	run(t, se, sess, `CREATE TABLE accounts (id TEXT PRIMARY KEY, credits INT MERGE sum_bounded(0,1000000))`)
	run(t, se, sess, `INSERT INTO accounts (id, credits) VALUES ('acct-1', 100) ON CONFLICT MERGE`)
	run(t, se, sess, `INSERT INTO accounts (id, credits) VALUES ('acct-1', 50) ON CONFLICT MERGE`)

	res := run(t, se, sess, `SELECT credits FROM accounts WHERE id = 'acct-1'`)
	if len(res.Rows) != 1 {
		t.Fatalf("expected exactly one row for acct-1, got %d", len(res.Rows))
	}
	if res.Rows[0][0].I != 150 {
		t.Fatalf("expected merged credits 150, got %d", res.Rows[0][0].I)
	}
}

// ON CONFLICT MERGE against a GSET column: a second insert unions tags
// rather than replacing them.
func TestOnConflictMergeGSet(t *testing.T) {
	se := testEngine(t)
	sess := &sqlfront.Session{}

	run(t, se, sess, `CREATE TABLE widgets (id TEXT PRIMARY KEY, tags SET<TEXT> MERGE gset)`)
	run(t, se, sess, `INSERT INTO widgets (id, tags) VALUES ('w1', {red, large}) ON CONFLICT MERGE`)
	run(t, se, sess, `INSERT INTO widgets (id, tags) VALUES ('w1', {blue}) ON CONFLICT MERGE`)

	res := run(t, se, sess, `SELECT * FROM widgets WHERE id = 'w1'`)
	if len(res.Rows) != 1 {
		t.Fatalf("expected exactly one row for w1, got %d", len(res.Rows))
	}
}

// FOR SYSTEM_TIME AS OF TX n pins a read to the snapshot observed right
// after transaction n committed, so a later update is invisible to it.
func TestSelectForSystemTimeAsOfTx(t *testing.T) {
	se := testEngine(t)
	sess := &sqlfront.Session{}

	run(t, se, sess, `CREATE TABLE people (id INT PRIMARY KEY, name TEXT)`)

	tx1 := se.BeginTxn(txn.RepeatableRead)
	row := tuple.Tuple{Values: []dbtypes.Value{dbtypes.Int64(1), dbtypes.Varchar("alice")}}
	if _, err := se.Insert(tx1, "people", row); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := se.Commit(tx1); err != nil {
		t.Fatalf("commit: %v", err)
	}
	firstTxnID := tx1.ID

	run(t, se, sess, `UPDATE people SET name = 'alicia' WHERE id = 1`)

	res := run(t, se, sess, fmt.Sprintf("SELECT * FROM people FOR SYSTEM_TIME AS OF TX %d", firstTxnID))
	if len(res.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(res.Rows))
	}
	if res.Rows[0][1].S != "alice" {
		t.Fatalf("expected historical read to see alice, got %q", res.Rows[0][1].S)
	}

	live := run(t, se, sess, `SELECT * FROM people WHERE id = 1`)
	if live.Rows[0][1].S != "alicia" {
		t.Fatalf("expected live read to see alicia, got %q", live.Rows[0][1].S)
	}
}

// DISTANCE(col, [...]) < n filters rows by Euclidean distance to a query
// vector.
func TestSelectDistancePredicate(t *testing.T) {
	se := testEngine(t)
	sess := &sqlfront.Session{}

	run(t, se, sess, `CREATE TABLE vecs (id TEXT PK, v VECTOR<3>)`)
	run(t, se, sess, `INSERT VALUES('a',[0.1,0,0]),('b',[5,5,5])`)

	res := run(t, se, sess, `SELECT id FROM vecs WHERE DISTANCE(v, [0,0,0]) < 1.0`)
	if len(res.Rows) != 1 {
		t.Fatalf("expected 1 row within distance, got %d", len(res.Rows))
	}
	if res.Rows[0][0].S != "a" {
		t.Fatalf("expected row a, got %q", res.Rows[0][0].S)
	}
}

func TestCreateIndexAcceleratesEqualityLookupAndDropIndexRemovesIt(t *testing.T) {
	se := testEngine(t)
	sess := &sqlfront.Session{}

	run(t, se, sess, `CREATE TABLE people (id INT PRIMARY KEY, email TEXT)`)
	run(t, se, sess, `INSERT INTO people (id, email) VALUES (1, 'a@x.com'), (2, 'b@x.com')`)
	run(t, se, sess, `CREATE UNIQUE INDEX people_email ON people (email)`)

	res := run(t, se, sess, `SELECT id FROM people WHERE email = 'b@x.com'`)
	if len(res.Rows) != 1 || res.Rows[0][0].I != 2 {
		t.Fatalf("expected the indexed lookup to find id=2, got %+v", res.Rows)
	}

	// A second row under the same unique key is rejected.
	_, err := sqlfront.Run(se, sess, `INSERT INTO people (id, email) VALUES (3, 'b@x.com')`)
	if err == nil {
		t.Fatalf("expected a unique violation inserting a duplicate indexed email")
	}

	run(t, se, sess, `DROP INDEX people_email`)

	// The table itself is unaffected by dropping the index.
	res = run(t, se, sess, `SELECT id FROM people WHERE email = 'a@x.com'`)
	if len(res.Rows) != 1 || res.Rows[0][0].I != 1 {
		t.Fatalf("expected id=1 after dropping the index, got %+v", res.Rows)
	}
}

func TestCreateIndexBuildsFromExistingRows(t *testing.T) {
	se := testEngine(t)
	sess := &sqlfront.Session{}

	run(t, se, sess, `CREATE TABLE t (k TEXT PK, v INT)`)
	run(t, se, sess, `INSERT VALUES('a', 1), ('b', 2), ('c', 3)`)
	run(t, se, sess, `CREATE INDEX t_v ON t (v)`)

	res := run(t, se, sess, `SELECT k FROM t WHERE v = 2`)
	if len(res.Rows) != 1 || res.Rows[0][0].S != "b" {
		t.Fatalf("expected the pre-existing row to be indexed, got %+v", res.Rows)
	}
}
