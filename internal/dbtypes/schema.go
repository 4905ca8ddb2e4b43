package dbtypes

// MergePolicyKind names one of the CRDT resolvers of section 4.I. It is
// only metadata here — dbtypes does not import the crdt package, which
// instead reads this tag to pick a resolver, keeping the dependency
// one-directional (crdt -> dbtypes, never the reverse).
type MergePolicyKind string

const (
	MergeNone       MergePolicyKind = ""
	MergeLWW        MergePolicyKind = "lww"
	MergeSum        MergePolicyKind = "sum"
	MergeSumBounded MergePolicyKind = "sum_bounded"
	MergeMax        MergePolicyKind = "max"
	MergeMin        MergePolicyKind = "min"
	MergeGSet       MergePolicyKind = "gset"
	MergeORSet      MergePolicyKind = "orset"
	MergeMVRegister MergePolicyKind = "mv_register"
	MergeMapLWW     MergePolicyKind = "map_lww"
)

// MergePolicy is the declared per-column merge metadata. Lo/Hi are only
// meaningful for sum_bounded.
type MergePolicy struct {
	Kind MergePolicyKind
	Lo   float64
	Hi   float64
}

// Column carries a name, a type, nullability, a fixed serialized size
// (0 for variable-length types), the vector dimension (only meaningful
// for KindVector), and optional CRDT merge metadata.
type Column struct {
	Name      string
	Type      Kind
	Nullable  bool
	FixedSize int // 0 for VARCHAR/TEXT/BLOB/VECTOR and TIMESTAMP/DATE/TIME (stored as text)
	VectorDim int // only meaningful when Type == KindVector
	Merge     MergePolicy
}

func fixedSizeFor(k Kind) int {
	switch k {
	case KindBoolean, KindInt8:
		return 1
	case KindInt16:
		return 2
	case KindInt32:
		return 4
	case KindInt64, KindDouble:
		return 8
	default:
		return 0
	}
}

// NewColumn builds a Column, deriving FixedSize from Type for
// fixed-width kinds.
func NewColumn(name string, kind Kind, nullable bool) Column {
	return Column{Name: name, Type: kind, Nullable: nullable, FixedSize: fixedSizeFor(kind)}
}

// NewVectorColumn builds a VECTOR<dim> column.
func NewVectorColumn(name string, dim int, nullable bool) Column {
	return Column{Name: name, Type: KindVector, Nullable: nullable, VectorDim: dim}
}

// WithMerge attaches CRDT merge metadata and returns the same column
// value for chaining during schema construction.
func (c Column) WithMerge(policy MergePolicy) Column {
	c.Merge = policy
	return c
}

// Schema is an ordered sequence of Columns plus a name->index map. It
// precomputes the fixed tuple size and whether any column is
// variable-length.
type Schema struct {
	Columns       []Column
	index         map[string]int
	fixedSize     int
	hasVariableLen bool
}

// NewSchema builds a Schema from an ordered column list.
func NewSchema(columns []Column) *Schema {
	s := &Schema{Columns: columns, index: make(map[string]int, len(columns))}
	for i, c := range columns {
		s.index[c.Name] = i
		if c.FixedSize == 0 && c.Type != KindVector {
			s.hasVariableLen = true
		} else if c.Type == KindVector {
			// Vector is fixed-size ONLY once the dimension is known, but
			// we still store it with the 4-byte length prefix written by
			// Serialize for self-description; treat it as variable-length
			// for sizing purposes to keep the encoder uniform.
			s.hasVariableLen = true
		} else {
			s.fixedSize += c.FixedSize
		}
	}
	return s
}

// IndexOf returns the column index for name, or -1 if not found.
func (s *Schema) IndexOf(name string) int {
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

// FixedSize returns the precomputed sum of fixed-width column sizes
// (excluding variable-length and vector columns).
func (s *Schema) FixedSize() int { return s.fixedSize }

// HasVariableLength reports whether any column is VARCHAR/TEXT/BLOB/VECTOR
// or TIMESTAMP/DATE/TIME (which are stored as length-prefixed text).
func (s *Schema) HasVariableLength() bool { return s.hasVariableLen }

// NullBitmapSize returns the number of bytes needed for one bit per
// column.
func (s *Schema) NullBitmapSize() int {
	return (len(s.Columns) + 7) / 8
}

// ComputedSize returns the exact encoded size of a row of values
// conforming to this schema, matching what Tuple encoding would
// produce: null bitmap + per-column fixed payload or 4-byte length
// prefix + payload.
func (s *Schema) ComputedSize(values []Value) int {
	size := s.NullBitmapSize()
	for i, v := range values {
		if v.IsNull() {
			continue
		}
		col := s.Columns[i]
		if col.FixedSize > 0 {
			size += col.FixedSize
		} else {
			size += v.SerializedSize()
		}
	}
	return size
}
