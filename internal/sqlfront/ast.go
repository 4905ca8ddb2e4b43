package sqlfront

import "github.com/latticedb/latticedb/internal/dbtypes"

// Statement is the closed set of statement shapes this front end
// accepts, matched exhaustively by the executor (section 9's "deep
// polymorphism" note: a tagged variant, not an interface hierarchy with
// a method per statement kind).
type Statement struct {
	Kind StatementKind

	// CREATE/DROP TABLE, INSERT/UPDATE/DELETE/SELECT target.
	Table string

	// CREATE TABLE
	Columns []ColumnDef

	// CREATE/DROP INDEX
	IndexName   string
	IndexOn     string
	IndexCols   []string
	IndexUnique bool

	// INSERT
	InsertColumns []string
	InsertRows    [][]dbtypes.Value
	OnConflictMerge bool

	// UPDATE
	Assignments []Assignment

	// SELECT
	SelectCols []string
	OrderBy    []string
	GroupBy    []string

	// shared WHERE (UPDATE/DELETE/SELECT)
	Where *Predicate

	// FOR SYSTEM_TIME AS OF TX n
	AsOfTx    uint32
	HasAsOfTx bool

	// SET DP_EPSILON = x
	Epsilon float64

	// SAVE/LOAD DATABASE path
	DBPath string
}

type StatementKind int

const (
	StmtCreateTable StatementKind = iota
	StmtDropTable
	StmtCreateIndex
	StmtDropIndex
	StmtInsert
	StmtUpdate
	StmtDelete
	StmtSelect
	StmtSetEpsilon
	StmtSaveDatabase
	StmtLoadDatabase
	StmtExit
)

// ColumnDef is one column of a CREATE TABLE column list.
type ColumnDef struct {
	Name       string
	Type       dbtypes.Kind
	VectorDim  int
	Nullable   bool
	PrimaryKey bool
	Merge      dbtypes.MergePolicy
}

// Assignment is one `col = expr` pair of an UPDATE's SET clause.
type Assignment struct {
	Column string
	Value  dbtypes.Value
}

// CompareOp is a WHERE clause's comparison operator.
type CompareOp int

const (
	OpEq CompareOp = iota
	OpNotEq
	OpLt
	OpLtEq
	OpGt
	OpGtEq
)

// Predicate is a single comparison, optionally chained with further
// predicates by AND (the only boolean connective this front end
// accepts — matching section 1's "not a full optimizer" scope). A
// DistancePredicate variant supports seed scenario 3's
// `DISTANCE(v, [...]) < r`.
type Predicate struct {
	Column   string
	Op       CompareOp
	Value    dbtypes.Value
	And      *Predicate

	IsDistance  bool
	DistanceVec []float64
	DistanceMax float64
}
