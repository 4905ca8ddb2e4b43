package sqlfront

import (
	"strings"

	"github.com/latticedb/latticedb/internal/dbtypes"
	"github.com/latticedb/latticedb/internal/dberrors"
)

// parser turns a token stream into one Statement. It keeps a single
// token of lookahead, refilled by advance — the shape the teacher uses
// nowhere (it has no query language), built here in its terse style:
// small methods, each consuming exactly the tokens it names.
type parser struct {
	lex *lexer
	cur token
}

// Parse parses a single statement (without its trailing `;`, which the
// caller strips) and returns its AST.
func Parse(stmt string) (*Statement, error) {
	p := &parser{lex: newLexer(stmt)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p.parseStatement()
}

func (p *parser) advance() error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.cur = t
	return nil
}

func (p *parser) kw(word string) bool {
	return p.cur.kind == tokIdent && strings.EqualFold(p.cur.text, word)
}

func (p *parser) punct(s string) bool {
	return p.cur.kind == tokPunct && p.cur.text == s
}

func (p *parser) expectKw(word string) error {
	if !p.kw(word) {
		return errUnexpectedToken(p.cur)
	}
	return p.advance()
}

func (p *parser) expectPunct(s string) error {
	if !p.punct(s) {
		return errUnexpectedToken(p.cur)
	}
	return p.advance()
}

func (p *parser) expectIdent() (string, error) {
	if p.cur.kind != tokIdent {
		return "", errUnexpectedToken(p.cur)
	}
	text := p.cur.text
	if err := p.advance(); err != nil {
		return "", err
	}
	return text, nil
}

func (p *parser) parseStatement() (*Statement, error) {
	switch {
	case p.kw("CREATE"):
		return p.parseCreate()
	case p.kw("DROP"):
		return p.parseDrop()
	case p.kw("INSERT"):
		return p.parseInsert()
	case p.kw("UPDATE"):
		return p.parseUpdate()
	case p.kw("DELETE"):
		return p.parseDelete()
	case p.kw("SELECT"):
		return p.parseSelect()
	case p.kw("SET"):
		return p.parseSet()
	case p.kw("SAVE"):
		return p.parseSaveLoad(StmtSaveDatabase)
	case p.kw("LOAD"):
		return p.parseSaveLoad(StmtLoadDatabase)
	case p.kw("EXIT"):
		return &Statement{Kind: StmtExit}, nil
	case p.cur.kind == tokEOF:
		return nil, dberrors.Syntax("empty statement", 0, 0)
	default:
		return nil, errUnexpectedToken(p.cur)
	}
}

// CREATE TABLE name (col type [VECTOR<n>] [NOT NULL] [PRIMARY KEY] [MERGE policy], ...)
// CREATE INDEX name ON table (col, ...)
func (p *parser) parseCreate() (*Statement, error) {
	if err := p.expectKw("CREATE"); err != nil {
		return nil, err
	}
	if p.kw("INDEX") {
		return p.parseCreateIndex(false)
	}
	if p.kw("UNIQUE") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		return p.parseCreateIndex(true)
	}
	if err := p.expectKw("TABLE"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}

	var cols []ColumnDef
	for {
		col, err := p.parseColumnDef()
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
		if p.punct(",") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return &Statement{Kind: StmtCreateTable, Table: name, Columns: cols}, nil
}

func (p *parser) parseCreateIndex(unique bool) (*Statement, error) {
	if err := p.expectKw("INDEX"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectKw("ON"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var cols []string
	for {
		c, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
		if p.punct(",") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return &Statement{Kind: StmtCreateIndex, IndexName: name, IndexOn: table, IndexCols: cols, IndexUnique: unique}, nil
}

var typeNames = map[string]dbtypes.Kind{
	"BOOLEAN":   dbtypes.KindBoolean,
	"INT8":      dbtypes.KindInt8,
	"INT16":     dbtypes.KindInt16,
	"INT32":     dbtypes.KindInt32,
	"INT64":     dbtypes.KindInt64,
	"INT":       dbtypes.KindInt64,
	"DOUBLE":    dbtypes.KindDouble,
	"FLOAT":     dbtypes.KindDouble,
	"VARCHAR":   dbtypes.KindVarchar,
	"TEXT":      dbtypes.KindText,
	"TIMESTAMP": dbtypes.KindTimestamp,
	"DATE":      dbtypes.KindDate,
	"TIME":      dbtypes.KindTime,
	"BLOB":      dbtypes.KindBlob,
}

var mergeNames = map[string]dbtypes.MergePolicyKind{
	"LWW":         dbtypes.MergeLWW,
	"SUM":         dbtypes.MergeSum,
	"SUM_BOUNDED": dbtypes.MergeSumBounded,
	"MAX":         dbtypes.MergeMax,
	"MIN":         dbtypes.MergeMin,
	"GSET":        dbtypes.MergeGSet,
	"ORSET":       dbtypes.MergeORSet,
	"MV_REGISTER": dbtypes.MergeMVRegister,
	"MAP_LWW":     dbtypes.MergeMapLWW,
}

func (p *parser) parseColumnDef() (ColumnDef, error) {
	name, err := p.expectIdent()
	if err != nil {
		return ColumnDef{}, err
	}
	typeWord, err := p.expectIdent()
	if err != nil {
		return ColumnDef{}, err
	}
	col := ColumnDef{Name: name, Nullable: true}

	switch {
	case strings.EqualFold(typeWord, "VECTOR"):
		col.Type = dbtypes.KindVector
		if p.punct("<") {
			if err := p.advance(); err != nil {
				return ColumnDef{}, err
			}
			if p.cur.kind != tokNumber {
				return ColumnDef{}, errUnexpectedToken(p.cur)
			}
			_, dim, _, err := parseNumberLiteral(p.cur.text)
			if err != nil {
				return ColumnDef{}, dberrors.Syntax("invalid vector dimension", 0, 0)
			}
			col.VectorDim = int(dim)
			if err := p.advance(); err != nil {
				return ColumnDef{}, err
			}
			if err := p.expectPunct(">"); err != nil {
				return ColumnDef{}, err
			}
		}

	case strings.EqualFold(typeWord, "SET"):
		// SET<elemtype> is not its own Value kind: a GSET-merged column
		// always stores its encoded payload as a Blob (see literal.go),
		// so the element type inside the angle brackets only needs to be
		// consumed, not retained.
		col.Type = dbtypes.KindBlob
		if p.punct("<") {
			if err := p.advance(); err != nil {
				return ColumnDef{}, err
			}
			if _, err := p.expectIdent(); err != nil {
				return ColumnDef{}, err
			}
			if err := p.expectPunct(">"); err != nil {
				return ColumnDef{}, err
			}
		}

	default:
		kind, ok := typeNames[strings.ToUpper(typeWord)]
		if !ok {
			return ColumnDef{}, dberrors.Syntax("unknown column type "+typeWord, 0, 0)
		}
		col.Type = kind
	}

	for {
		switch {
		case p.kw("NOT"):
			if err := p.advance(); err != nil {
				return ColumnDef{}, err
			}
			if err := p.expectKw("NULL"); err != nil {
				return ColumnDef{}, err
			}
			col.Nullable = false
		case p.kw("PRIMARY"):
			if err := p.advance(); err != nil {
				return ColumnDef{}, err
			}
			if err := p.expectKw("KEY"); err != nil {
				return ColumnDef{}, err
			}
			col.PrimaryKey = true
			col.Nullable = false
		case p.kw("PK"):
			if err := p.advance(); err != nil {
				return ColumnDef{}, err
			}
			col.PrimaryKey = true
			col.Nullable = false
		case p.kw("MERGE"):
			if err := p.advance(); err != nil {
				return ColumnDef{}, err
			}
			word, err := p.expectIdent()
			if err != nil {
				return ColumnDef{}, err
			}
			kind, ok := mergeNames[strings.ToUpper(word)]
			if !ok {
				return ColumnDef{}, dberrors.Syntax("unknown merge policy "+word, 0, 0)
			}
			policy := dbtypes.MergePolicy{Kind: kind}
			if p.punct("(") {
				if err := p.advance(); err != nil {
					return ColumnDef{}, err
				}
				if p.cur.kind != tokNumber {
					return ColumnDef{}, errUnexpectedToken(p.cur)
				}
				_, loI, loF, err := parseNumberLiteral(p.cur.text)
				if err != nil {
					return ColumnDef{}, dberrors.Syntax("invalid merge bound", 0, 0)
				}
				if loF == 0 && loI != 0 {
					loF = float64(loI)
				}
				if err := p.advance(); err != nil {
					return ColumnDef{}, err
				}
				if err := p.expectPunct(","); err != nil {
					return ColumnDef{}, err
				}
				if p.cur.kind != tokNumber {
					return ColumnDef{}, errUnexpectedToken(p.cur)
				}
				_, hiI, hiF, err := parseNumberLiteral(p.cur.text)
				if err != nil {
					return ColumnDef{}, dberrors.Syntax("invalid merge bound", 0, 0)
				}
				if hiF == 0 && hiI != 0 {
					hiF = float64(hiI)
				}
				if err := p.advance(); err != nil {
					return ColumnDef{}, err
				}
				if err := p.expectPunct(")"); err != nil {
					return ColumnDef{}, err
				}
				policy.Lo, policy.Hi = loF, hiF
			}
			col.Merge = policy
		default:
			return col, nil
		}
	}
}

func (p *parser) parseDrop() (*Statement, error) {
	if err := p.expectKw("DROP"); err != nil {
		return nil, err
	}
	if p.kw("INDEX") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		return &Statement{Kind: StmtDropIndex, IndexName: name}, nil
	}
	if err := p.expectKw("TABLE"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	return &Statement{Kind: StmtDropTable, Table: name}, nil
}

// INSERT [INTO table] [(c1, c2, ...)] VALUES (v1, v2, ...) [ON CONFLICT MERGE]
//
// Both the table name and the column list are optional in the accepted
// grammar (not just INTO's table): section 8's seed scenario 1 writes
// `INSERT INTO t VALUES('a',1)` with no column list, and seed scenario
// 3 writes bare `INSERT VALUES(...)`, leaning on whatever table the
// previous statement named. A statement that omits the table name
// resolves against the session's last-referenced table (see Run); a
// statement that omits the column list fills schema columns in
// declared order.
func (p *parser) parseInsert() (*Statement, error) {
	if err := p.expectKw("INSERT"); err != nil {
		return nil, err
	}
	table := ""
	if p.kw("INTO") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		var err error
		table, err = p.expectIdent()
		if err != nil {
			return nil, err
		}
	}

	var cols []string
	if p.punct("(") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		for {
			c, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			cols = append(cols, c)
			if p.punct(",") {
				if err := p.advance(); err != nil {
					return nil, err
				}
				continue
			}
			break
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
	}

	if err := p.expectKw("VALUES"); err != nil {
		return nil, err
	}

	var rows [][]dbtypes.Value
	for {
		if err := p.expectPunct("("); err != nil {
			return nil, err
		}
		var vals []dbtypes.Value
		for {
			v, err := p.parseLiteral()
			if err != nil {
				return nil, err
			}
			vals = append(vals, v)
			if p.punct(",") {
				if err := p.advance(); err != nil {
					return nil, err
				}
				continue
			}
			break
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		rows = append(rows, vals)
		if p.punct(",") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}

	merge := false
	if p.kw("ON") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expectKw("CONFLICT"); err != nil {
			return nil, err
		}
		if err := p.expectKw("MERGE"); err != nil {
			return nil, err
		}
		merge = true
	}

	return &Statement{Kind: StmtInsert, Table: table, InsertColumns: cols, InsertRows: rows, OnConflictMerge: merge}, nil
}

// parseLiteral parses a number, string, NULL, {set,elems}, or [vec,elems].
func (p *parser) parseLiteral() (dbtypes.Value, error) {
	if p.punct("-") {
		if err := p.advance(); err != nil {
			return dbtypes.Value{}, err
		}
		if p.cur.kind != tokNumber {
			return dbtypes.Value{}, errUnexpectedToken(p.cur)
		}
		isFloat, i, f, err := parseNumberLiteral(p.cur.text)
		if err != nil {
			return dbtypes.Value{}, dberrors.Syntax("invalid number literal "+p.cur.text, 0, 0)
		}
		if err := p.advance(); err != nil {
			return dbtypes.Value{}, err
		}
		if isFloat {
			return dbtypes.Double(-f), nil
		}
		return dbtypes.Int64(-i), nil
	}

	switch {
	case p.cur.kind == tokNumber:
		isFloat, i, f, err := parseNumberLiteral(p.cur.text)
		if err != nil {
			return dbtypes.Value{}, dberrors.Syntax("invalid number literal "+p.cur.text, 0, 0)
		}
		if err := p.advance(); err != nil {
			return dbtypes.Value{}, err
		}
		if isFloat {
			return dbtypes.Double(f), nil
		}
		return dbtypes.Int64(i), nil

	case p.cur.kind == tokString:
		s := p.cur.text
		if err := p.advance(); err != nil {
			return dbtypes.Value{}, err
		}
		return dbtypes.Varchar(s), nil

	case p.kw("NULL"):
		if err := p.advance(); err != nil {
			return dbtypes.Value{}, err
		}
		return dbtypes.Null(), nil

	case p.kw("TRUE"), p.kw("FALSE"):
		b := p.kw("TRUE")
		if err := p.advance(); err != nil {
			return dbtypes.Value{}, err
		}
		return dbtypes.Bool(b), nil

	case p.punct("{"):
		elems, err := p.parseBracedList("{", "}")
		if err != nil {
			return dbtypes.Value{}, err
		}
		return dbtypes.Blob(encodeGSetLiteral(elems)), nil

	case p.punct("["):
		nums, err := p.parseNumberList("[", "]")
		if err != nil {
			return dbtypes.Value{}, err
		}
		return dbtypes.Vector(nums), nil

	default:
		return dbtypes.Value{}, errUnexpectedToken(p.cur)
	}
}

func (p *parser) parseBracedList(open, close string) ([]string, error) {
	if err := p.expectPunct(open); err != nil {
		return nil, err
	}
	var out []string
	if p.punct(close) {
		return out, p.advance()
	}
	for {
		if p.cur.kind != tokString && p.cur.kind != tokIdent && p.cur.kind != tokNumber {
			return nil, errUnexpectedToken(p.cur)
		}
		out = append(out, p.cur.text)
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.punct(",") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	return out, p.expectPunct(close)
}

func (p *parser) parseNumberList(open, close string) ([]float64, error) {
	if err := p.expectPunct(open); err != nil {
		return nil, err
	}
	var out []float64
	if p.punct(close) {
		return out, p.advance()
	}
	for {
		neg := false
		if p.punct("-") {
			neg = true
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
		if p.cur.kind != tokNumber {
			return nil, errUnexpectedToken(p.cur)
		}
		_, i, f, err := parseNumberLiteral(p.cur.text)
		if err != nil {
			return nil, dberrors.Syntax("invalid number in vector literal", 0, 0)
		}
		if f == 0 && i != 0 {
			f = float64(i)
		}
		if neg {
			f = -f
		}
		out = append(out, f)
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.punct(",") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	return out, p.expectPunct(close)
}

// UPDATE table SET c1 = v1 [, c2 = v2 ...] [MERGE] WHERE pred
func (p *parser) parseUpdate() (*Statement, error) {
	if err := p.expectKw("UPDATE"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectKw("SET"); err != nil {
		return nil, err
	}
	var assigns []Assignment
	for {
		col, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct("="); err != nil {
			return nil, err
		}
		v, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		assigns = append(assigns, Assignment{Column: col, Value: v})
		if p.punct(",") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}

	merge := false
	if p.kw("MERGE") {
		merge = true
		if err := p.advance(); err != nil {
			return nil, err
		}
	}

	var where *Predicate
	if p.kw("WHERE") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		where, err = p.parsePredicate()
		if err != nil {
			return nil, err
		}
	}

	return &Statement{Kind: StmtUpdate, Table: table, Assignments: assigns, OnConflictMerge: merge, Where: where}, nil
}

func (p *parser) parseDelete() (*Statement, error) {
	if err := p.expectKw("DELETE"); err != nil {
		return nil, err
	}
	if err := p.expectKw("FROM"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	var where *Predicate
	if p.kw("WHERE") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		where, err = p.parsePredicate()
		if err != nil {
			return nil, err
		}
	}
	return &Statement{Kind: StmtDelete, Table: table, Where: where}, nil
}

// SELECT col,... FROM table
//   [FOR SYSTEM_TIME AS OF TX n]
//   [VALID PERIOD [a,b]]
//   [WHERE pred]
//   [GROUP BY c,...] [ORDER BY c,...]
func (p *parser) parseSelect() (*Statement, error) {
	if err := p.expectKw("SELECT"); err != nil {
		return nil, err
	}
	var cols []string
	if p.punct("*") {
		cols = append(cols, "*")
		if err := p.advance(); err != nil {
			return nil, err
		}
	} else {
		for {
			c, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			cols = append(cols, c)
			if p.punct(",") {
				if err := p.advance(); err != nil {
					return nil, err
				}
				continue
			}
			break
		}
	}
	if err := p.expectKw("FROM"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}

	stmt := &Statement{Kind: StmtSelect, Table: table, SelectCols: cols}

	if p.kw("FOR") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expectKw("SYSTEM_TIME"); err != nil {
			return nil, err
		}
		if err := p.expectKw("AS"); err != nil {
			return nil, err
		}
		if err := p.expectKw("OF"); err != nil {
			return nil, err
		}
		if err := p.expectKw("TX"); err != nil {
			return nil, err
		}
		if p.cur.kind != tokNumber {
			return nil, errUnexpectedToken(p.cur)
		}
		_, n, _, err := parseNumberLiteral(p.cur.text)
		if err != nil {
			return nil, dberrors.Syntax("invalid transaction id", 0, 0)
		}
		stmt.AsOfTx = uint32(n)
		stmt.HasAsOfTx = true
		if err := p.advance(); err != nil {
			return nil, err
		}
	}

	// VALID PERIOD [a, b] — parsed and discarded; this front end carries
	// no bitemporal valid-time model.
	if p.kw("VALID") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expectKw("PERIOD"); err != nil {
			return nil, err
		}
		if _, err := p.parseBracedList("[", "]"); err != nil {
			return nil, err
		}
	}

	if p.kw("JOIN") {
		return nil, dberrors.Syntax("JOIN is accepted lexically but not executed by this front end", 0, 0)
	}

	if p.kw("WHERE") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		stmt.Where, err = p.parsePredicate()
		if err != nil {
			return nil, err
		}
	}

	if p.kw("GROUP") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expectKw("BY"); err != nil {
			return nil, err
		}
		for {
			c, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			stmt.GroupBy = append(stmt.GroupBy, c)
			if p.punct(",") {
				if err := p.advance(); err != nil {
					return nil, err
				}
				continue
			}
			break
		}
	}

	if p.kw("ORDER") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expectKw("BY"); err != nil {
			return nil, err
		}
		for {
			c, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			stmt.OrderBy = append(stmt.OrderBy, c)
			if p.punct(",") {
				if err := p.advance(); err != nil {
					return nil, err
				}
				continue
			}
			break
		}
	}

	return stmt, nil
}

var compareOps = map[string]CompareOp{
	"=":  OpEq,
	"!=": OpNotEq,
	"<>": OpNotEq,
	"<":  OpLt,
	"<=": OpLtEq,
	">":  OpGt,
	">=": OpGtEq,
}

// parsePredicate parses a chain of ANDed comparisons, including the
// DISTANCE(col, [vec]) < n form seed scenario 3 needs.
func (p *parser) parsePredicate() (*Predicate, error) {
	var pred *Predicate
	var err error

	if p.kw("DISTANCE") {
		pred, err = p.parseDistancePredicate()
	} else {
		pred, err = p.parseComparison()
	}
	if err != nil {
		return nil, err
	}

	if p.kw("AND") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		rest, err := p.parsePredicate()
		if err != nil {
			return nil, err
		}
		pred.And = rest
	}
	return pred, nil
}

func (p *parser) parseComparison() (*Predicate, error) {
	col, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tokPunct {
		return nil, errUnexpectedToken(p.cur)
	}
	op, ok := compareOps[p.cur.text]
	if !ok {
		return nil, errUnexpectedToken(p.cur)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	v, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}
	return &Predicate{Column: col, Op: op, Value: v}, nil
}

func (p *parser) parseDistancePredicate() (*Predicate, error) {
	if err := p.expectKw("DISTANCE"); err != nil {
		return nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	col, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(","); err != nil {
		return nil, err
	}
	vec, err := p.parseNumberList("[", "]")
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	if !p.punct("<") {
		return nil, errUnexpectedToken(p.cur)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.cur.kind != tokNumber {
		return nil, errUnexpectedToken(p.cur)
	}
	_, i, f, err := parseNumberLiteral(p.cur.text)
	if err != nil {
		return nil, dberrors.Syntax("invalid distance threshold", 0, 0)
	}
	if f == 0 && i != 0 {
		f = float64(i)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return &Predicate{Column: col, IsDistance: true, DistanceVec: vec, DistanceMax: f}, nil
}

func (p *parser) parseSet() (*Statement, error) {
	if err := p.expectKw("SET"); err != nil {
		return nil, err
	}
	if err := p.expectKw("DP_EPSILON"); err != nil {
		return nil, err
	}
	if err := p.expectPunct("="); err != nil {
		return nil, err
	}
	if p.cur.kind != tokNumber {
		return nil, errUnexpectedToken(p.cur)
	}
	_, i, f, err := parseNumberLiteral(p.cur.text)
	if err != nil {
		return nil, dberrors.Syntax("invalid epsilon", 0, 0)
	}
	if f == 0 && i != 0 {
		f = float64(i)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return &Statement{Kind: StmtSetEpsilon, Epsilon: f}, nil
}

func (p *parser) parseSaveLoad(kind StatementKind) (*Statement, error) {
	if err := p.advance(); err != nil { // SAVE or LOAD
		return nil, err
	}
	if err := p.expectKw("DATABASE"); err != nil {
		return nil, err
	}
	path := ""
	if p.cur.kind == tokString || p.cur.kind == tokIdent {
		path = p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	return &Statement{Kind: kind, DBPath: path}, nil
}
