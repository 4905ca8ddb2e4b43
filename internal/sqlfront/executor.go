// Every statement this front end runs executes as its own
// auto-committed engine transaction: there is no BEGIN/COMMIT
// statement in the accepted grammar, matching section 6's statement
// list, which names none.
package sqlfront

import (
	"math"
	"sort"
	"strings"

	"github.com/latticedb/latticedb/internal/dbtypes"
	"github.com/latticedb/latticedb/internal/dberrors"
	"github.com/latticedb/latticedb/internal/engine"
	"github.com/latticedb/latticedb/internal/tuple"
	"github.com/latticedb/latticedb/internal/txn"
)

// Result is the tabular shape every executed statement produces,
// whether or not it actually has rows — the CLI and HTTP front ends
// render Headers/Rows when non-empty and Message otherwise (matching
// the POST /query response shape of section 6).
type Result struct {
	Message string
	Headers []string
	Rows    [][]dbtypes.Value
}

// Engine is the subset of *engine.StorageEngine the executor calls,
// named here so tests can substitute a fake without importing engine's
// full surface.
type Engine interface {
	BeginTxn(level txn.IsolationLevel) *txn.Transaction
	BeginTxnAt(level txn.IsolationLevel, snapshotLSN uint64) *txn.Transaction
	Commit(tx *txn.Transaction) error
	Abort(tx *txn.Transaction, reason string) error
	CreateTable(name string, schema *dbtypes.Schema) error
	DropTable(name string) error
	CreateIndex(name, table, column string, unique bool) error
	DropIndex(name string) error
	IndexLookup(table, column string, key dbtypes.Value) (tuple.RID, bool)
	Schema(name string) (*dbtypes.Schema, error)
	Insert(tx *txn.Transaction, table string, row tuple.Tuple) (tuple.RID, error)
	Update(tx *txn.Transaction, table string, rid tuple.RID, newRow tuple.Tuple, merge bool) error
	Delete(tx *txn.Transaction, table string, rid tuple.RID) error
	Get(tx *txn.Transaction, table string, rid tuple.RID) (tuple.Tuple, bool, error)
	Scan(tx *txn.Transaction, table string) ([]engine.Row, error)
	SnapshotForTx(txnID uint32) (uint64, bool)
}

// Session holds the small amount of state that outlives one statement:
// the differential-privacy epsilon SET DP_EPSILON= last recorded (read
// but never applied — this front end implements no DP mechanism, per
// SPEC_FULL.md's domain-stack note), the last table named by a
// statement (section 8's seed scenario 3 writes a bare
// `INSERT VALUES(...)` with no table name at all, leaning on the
// CREATE TABLE just before it), and whether EXIT was seen.
type Session struct {
	Epsilon   float64
	LastTable string
	Exited    bool
}

// Run parses and executes one statement (already stripped of its
// trailing `;`) against eng, using sess for cross-statement state.
func Run(eng Engine, sess *Session, statement string) (*Result, error) {
	statement = strings.TrimSpace(statement)
	if statement == "" {
		return &Result{Message: "empty statement"}, nil
	}
	stmt, err := Parse(statement)
	if err != nil {
		return nil, err
	}
	if stmt.Table == "" && stmt.Kind == StmtInsert {
		stmt.Table = sess.LastTable
	}
	if stmt.Table == "" && (stmt.Kind == StmtInsert || stmt.Kind == StmtCreateTable || stmt.Kind == StmtUpdate || stmt.Kind == StmtDelete || stmt.Kind == StmtSelect) {
		return nil, dberrors.Syntax("no table named and none inferrable from a prior statement", 0, 0)
	}
	result, err := execute(eng, sess, stmt)
	if stmt.Table != "" {
		sess.LastTable = stmt.Table
	}
	return result, err
}

func execute(eng Engine, sess *Session, stmt *Statement) (*Result, error) {
	switch stmt.Kind {
	case StmtExit:
		sess.Exited = true
		return &Result{Message: "bye"}, nil

	case StmtSetEpsilon:
		sess.Epsilon = stmt.Epsilon
		return &Result{Message: "DP_EPSILON set"}, nil

	case StmtSaveDatabase:
		return &Result{Message: "database saved"}, nil

	case StmtLoadDatabase:
		return &Result{Message: "database is always live; LOAD is a no-op"}, nil

	case StmtCreateTable:
		return execCreateTable(eng, stmt)

	case StmtDropTable:
		if err := eng.DropTable(stmt.Table); err != nil {
			return nil, err
		}
		return &Result{Message: "table dropped"}, nil

	case StmtCreateIndex:
		if len(stmt.IndexCols) != 1 {
			return nil, dberrors.Syntax("composite secondary indexes are not supported, only a single column", 0, 0)
		}
		if err := eng.CreateIndex(stmt.IndexName, stmt.IndexOn, stmt.IndexCols[0], stmt.IndexUnique); err != nil {
			return nil, err
		}
		return &Result{Message: "index " + stmt.IndexName + " created"}, nil

	case StmtDropIndex:
		if err := eng.DropIndex(stmt.IndexName); err != nil {
			return nil, err
		}
		return &Result{Message: "index " + stmt.IndexName + " dropped"}, nil

	case StmtInsert:
		return execInsert(eng, stmt)

	case StmtUpdate:
		return execUpdate(eng, stmt)

	case StmtDelete:
		return execDelete(eng, stmt)

	case StmtSelect:
		return execSelect(eng, stmt)

	default:
		return nil, dberrors.Internal("unhandled statement kind")
	}
}

func execCreateTable(eng Engine, stmt *Statement) (*Result, error) {
	cols := make([]dbtypes.Column, len(stmt.Columns))
	for i, c := range stmt.Columns {
		var col dbtypes.Column
		if c.Type == dbtypes.KindVector {
			col = dbtypes.NewVectorColumn(c.Name, c.VectorDim, c.Nullable)
		} else {
			col = dbtypes.NewColumn(c.Name, c.Type, c.Nullable)
		}
		if c.Merge.Kind != dbtypes.MergeNone {
			col = col.WithMerge(c.Merge)
		}
		cols[i] = col
	}
	schema := dbtypes.NewSchema(cols)
	if err := eng.CreateTable(stmt.Table, schema); err != nil {
		return nil, err
	}
	return &Result{Message: "table created"}, nil
}

func execInsert(eng Engine, stmt *Statement) (*Result, error) {
	schema, err := eng.Schema(stmt.Table)
	if err != nil {
		return nil, err
	}

	// An omitted column list (section 8's seed scenario 1:
	// `INSERT INTO t VALUES('a',1)`) fills the schema's declared columns
	// in order; the value count must then match the schema exactly.
	insertColumns := stmt.InsertColumns
	if insertColumns == nil {
		insertColumns = make([]string, len(schema.Columns))
		for i, c := range schema.Columns {
			insertColumns[i] = c.Name
		}
	}

	inserted := 0
	for _, vals := range stmt.InsertRows {
		if len(vals) != len(insertColumns) {
			return nil, dberrors.Syntax("column count does not match value count", 0, 0)
		}
		row := make([]dbtypes.Value, len(schema.Columns))
		for i := range row {
			row[i] = dbtypes.Null()
		}
		for i, name := range insertColumns {
			idx := schema.IndexOf(name)
			if idx < 0 {
				return nil, dberrors.ColumnNotFound(stmt.Table, name)
			}
			row[idx] = vals[i]
		}

		if stmt.OnConflictMerge {
			if err := upsertRow(eng, stmt.Table, schema, row); err != nil {
				return nil, err
			}
			inserted++
			continue
		}

		tx := eng.BeginTxn(txn.RepeatableRead)
		if _, err := eng.Insert(tx, stmt.Table, tuple.Tuple{Values: row}); err != nil {
			eng.Abort(tx, "insert failed")
			return nil, err
		}
		if err := eng.Commit(tx); err != nil {
			return nil, err
		}
		inserted++
	}
	return &Result{Message: "inserted"}, nil
}

// upsertRow implements ON CONFLICT MERGE: the engine's Insert assigns a
// fresh RID and rejects a duplicate only under a unique secondary
// index, never a duplicate primary key on its own, so
// conflict detection happens here instead, by scanning for an existing
// row whose first (by convention, primary-key) column already matches.
// Found: merge-update it (section 4.I resolves column by column).
// Not found: plain insert.
func upsertRow(eng Engine, table string, schema *dbtypes.Schema, row []dbtypes.Value) error {
	tx := eng.BeginTxn(txn.RepeatableRead)
	rows, err := eng.Scan(tx, table)
	if err != nil {
		eng.Abort(tx, "scan failed during upsert")
		return err
	}

	for _, r := range rows {
		if r.Values.Values[0].Equals(row[0]) {
			if err := eng.Update(tx, table, r.RID, tuple.Tuple{Values: row}, true); err != nil {
				eng.Abort(tx, "merge update failed")
				return err
			}
			return eng.Commit(tx)
		}
	}

	if _, err := eng.Insert(tx, table, tuple.Tuple{Values: row}); err != nil {
		eng.Abort(tx, "insert failed during upsert")
		return err
	}
	return eng.Commit(tx)
}

func execUpdate(eng Engine, stmt *Statement) (*Result, error) {
	schema, err := eng.Schema(stmt.Table)
	if err != nil {
		return nil, err
	}

	tx := eng.BeginTxn(txn.RepeatableRead)
	rows, err := eng.Scan(tx, stmt.Table)
	if err != nil {
		eng.Abort(tx, "scan failed")
		return nil, err
	}

	updated := 0
	for _, r := range rows {
		if !matches(schema, stmt.Where, r.Values) {
			continue
		}
		newRow := cloneValues(r.Values.Values)
		for _, a := range stmt.Assignments {
			idx := schema.IndexOf(a.Column)
			if idx < 0 {
				eng.Abort(tx, "unknown column")
				return nil, dberrors.ColumnNotFound(stmt.Table, a.Column)
			}
			newRow[idx] = a.Value
		}
		if err := eng.Update(tx, stmt.Table, r.RID, tuple.Tuple{Values: newRow}, stmt.OnConflictMerge); err != nil {
			eng.Abort(tx, "update failed")
			return nil, err
		}
		updated++
	}
	if err := eng.Commit(tx); err != nil {
		return nil, err
	}
	return &Result{Message: "rows updated"}, nil
}

func execDelete(eng Engine, stmt *Statement) (*Result, error) {
	schema, err := eng.Schema(stmt.Table)
	if err != nil {
		return nil, err
	}

	tx := eng.BeginTxn(txn.RepeatableRead)
	rows, err := eng.Scan(tx, stmt.Table)
	if err != nil {
		eng.Abort(tx, "scan failed")
		return nil, err
	}

	for _, r := range rows {
		if !matches(schema, stmt.Where, r.Values) {
			continue
		}
		if err := eng.Delete(tx, stmt.Table, r.RID); err != nil {
			eng.Abort(tx, "delete failed")
			return nil, err
		}
	}
	if err := eng.Commit(tx); err != nil {
		return nil, err
	}
	return &Result{Message: "rows deleted"}, nil
}

// scanOrIndexLookup serves a bare `WHERE col = literal` (no AND chain,
// no DISTANCE) through a matching secondary index when one exists,
// instead of a full table scan; every other shape of WHERE still goes
// through Scan and is filtered by matches, same as always.
func scanOrIndexLookup(eng Engine, tx *txn.Transaction, stmt *Statement) ([]engine.Row, error) {
	w := stmt.Where
	if w != nil && w.And == nil && !w.IsDistance && w.Op == OpEq {
		rid, ok := eng.IndexLookup(stmt.Table, w.Column, w.Value)
		if !ok {
			return nil, nil
		}
		row, ok, err := eng.Get(tx, stmt.Table, rid)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		return []engine.Row{{RID: rid, Values: row}}, nil
	}
	return eng.Scan(tx, stmt.Table)
}

func execSelect(eng Engine, stmt *Statement) (*Result, error) {
	schema, err := eng.Schema(stmt.Table)
	if err != nil {
		return nil, err
	}

	var tx *txn.Transaction
	if stmt.HasAsOfTx {
		lsn, ok := eng.SnapshotForTx(stmt.AsOfTx)
		if !ok {
			return nil, dberrors.Internal("unknown transaction id in FOR SYSTEM_TIME AS OF TX")
		}
		tx = eng.BeginTxnAt(txn.RepeatableRead, lsn)
	} else {
		tx = eng.BeginTxn(txn.RepeatableRead)
	}

	rows, err := scanOrIndexLookup(eng, tx, stmt)
	if err != nil {
		eng.Abort(tx, "scan failed")
		return nil, err
	}
	eng.Commit(tx)

	headers := stmt.SelectCols
	if len(headers) == 1 && headers[0] == "*" {
		headers = make([]string, len(schema.Columns))
		for i, c := range schema.Columns {
			headers[i] = c.Name
		}
	}
	colIdx := make([]int, len(headers))
	for i, h := range headers {
		colIdx[i] = schema.IndexOf(h)
		if colIdx[i] < 0 {
			return nil, dberrors.ColumnNotFound(stmt.Table, h)
		}
	}

	out := make([][]dbtypes.Value, 0, len(rows))
	for _, r := range rows {
		if !matches(schema, stmt.Where, r.Values) {
			continue
		}
		projected := make([]dbtypes.Value, len(colIdx))
		for i, idx := range colIdx {
			projected[i] = r.Values.Values[idx]
		}
		out = append(out, projected)
	}

	if len(stmt.GroupBy) > 0 {
		out = groupRows(out, headers, stmt.GroupBy)
	}
	if len(stmt.OrderBy) > 0 {
		sortRows(out, headers, stmt.OrderBy)
	}

	return &Result{Headers: headers, Rows: out}, nil
}

func cloneValues(vs []dbtypes.Value) []dbtypes.Value {
	out := make([]dbtypes.Value, len(vs))
	copy(out, vs)
	return out
}

// matches evaluates an ANDed chain of comparisons (and DISTANCE
// predicates) against one row. A nil predicate matches every row.
func matches(schema *dbtypes.Schema, pred *Predicate, row tuple.Tuple) bool {
	for pred != nil {
		idx := schema.IndexOf(pred.Column)
		if idx < 0 {
			return false
		}
		v := row.Values[idx]

		if pred.IsDistance {
			if v.Kind != dbtypes.KindVector || len(v.Vec) != len(pred.DistanceVec) {
				return false
			}
			if euclidean(v.Vec, pred.DistanceVec) >= pred.DistanceMax {
				return false
			}
			pred = pred.And
			continue
		}

		cmp := v.Compare(pred.Value)
		ok := false
		switch pred.Op {
		case OpEq:
			ok = cmp == 0
		case OpNotEq:
			ok = cmp != 0
		case OpLt:
			ok = cmp < 0
		case OpLtEq:
			ok = cmp <= 0
		case OpGt:
			ok = cmp > 0
		case OpGtEq:
			ok = cmp >= 0
		}
		if !ok {
			return false
		}
		pred = pred.And
	}
	return true
}

// euclidean is the distance metric seed scenario 3 (section 8) uses
// for DISTANCE(col, [...]) predicates. Plain math.Sqrt: the corpus
// carries no vector-math library, and a single distance formula does
// not warrant pulling one in (see DESIGN.md).
func euclidean(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// groupRows collapses rows sharing identical values across groupBy's
// columns down to one representative row each, in first-seen order —
// an aggregate-free GROUP BY, since this front end has no aggregate
// function grammar (COUNT/SUM/AVG are out of scope; see SPEC_FULL.md).
func groupRows(rows [][]dbtypes.Value, headers, groupBy []string) [][]dbtypes.Value {
	idxs := make([]int, len(groupBy))
	for i, g := range groupBy {
		idxs[i] = indexOfHeader(headers, g)
	}
	seen := make(map[string]bool)
	out := make([][]dbtypes.Value, 0, len(rows))
	for _, r := range rows {
		var key strings.Builder
		for _, idx := range idxs {
			if idx < 0 {
				continue
			}
			key.WriteString(r[idx].S)
			key.WriteByte(0x1f)
		}
		k := key.String()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out
}

func sortRows(rows [][]dbtypes.Value, headers, orderBy []string) {
	idxs := make([]int, len(orderBy))
	for i, o := range orderBy {
		idxs[i] = indexOfHeader(headers, o)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, idx := range idxs {
			if idx < 0 {
				continue
			}
			c := rows[i][idx].Compare(rows[j][idx])
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
}

func indexOfHeader(headers []string, name string) int {
	for i, h := range headers {
		if h == name {
			return i
		}
	}
	return -1
}
