package dbtypes

import "github.com/latticedb/latticedb/internal/dberrors"

// Validate checks the invariants of section 3: #values == #columns,
// null only where nullable, and types compatible (exact match, numeric
// widening, or VARCHAR<->TEXT). It returns the possibly-cast values
// (numeric widening/string aliasing may change the stored Kind to match
// the column) or an error.
func (s *Schema) Validate(values []Value) ([]Value, error) {
	if len(values) != len(s.Columns) {
		return nil, dberrors.Internal("value count does not match schema column count")
	}
	out := make([]Value, len(values))
	for i, v := range values {
		col := s.Columns[i]
		if v.IsNull() {
			if !col.Nullable {
				return nil, dberrors.NotNullViolation("", col.Name)
			}
			out[i] = v
			continue
		}
		if v.Kind == col.Type {
			if col.Type == KindVector && col.VectorDim != 0 && len(v.Vec) != col.VectorDim {
				return nil, dberrors.DataType("vector value does not match declared dimension for column " + col.Name)
			}
			out[i] = v
			continue
		}
		cast, err := v.Cast(col.Type)
		if err != nil {
			return nil, dberrors.DataType("column " + col.Name + ": " + err.Error())
		}
		out[i] = cast
	}
	return out, nil
}
