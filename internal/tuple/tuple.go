// Package tuple implements the RID and the Tuple encode/decode rules of
// section 3/4.B: a record identifier (page, slot) and the row wire
// format — a leading null-bitmap followed by, per column, either the
// fixed-width payload or a 4-byte length prefix and payload.
package tuple

import (
	"github.com/latticedb/latticedb/internal/dberrors"
	"github.com/latticedb/latticedb/internal/dbtypes"
)

// RID identifies a row by the page that stores it and its slot number
// within that page's slot directory.
type RID struct {
	PageID uint32
	Slot   uint16
}

// Invalid is the RID used to mean "no such row" (e.g. end of a version
// chain, or a forwarding pointer not yet assigned).
var Invalid = RID{PageID: 0, Slot: 0xFFFF}

func (r RID) IsValid() bool { return r.Slot != 0xFFFF }

// Tuple is an ordered sequence of Values conforming to a Schema.
type Tuple struct {
	Values []dbtypes.Value
}

// Encode serializes t against schema: #values == #columns is assumed to
// already hold (callers should run Schema.Validate first); Encode does
// not re-validate nullability/type compatibility, only the wire shape.
func Encode(t Tuple, schema *dbtypes.Schema) ([]byte, error) {
	if len(t.Values) != len(schema.Columns) {
		return nil, dberrors.Internal("tuple value count does not match schema column count")
	}

	bitmapSize := schema.NullBitmapSize()
	buf := make([]byte, bitmapSize, bitmapSize+schema.FixedSize()+16)

	for i, v := range t.Values {
		if v.IsNull() {
			buf[i/8] |= 1 << uint(i%8)
		}
	}

	for i, v := range t.Values {
		if v.IsNull() {
			continue
		}
		buf = v.Serialize(buf)
	}

	return buf, nil
}

// Decode reverses Encode, reconstructing a Tuple of len(schema.Columns)
// values, restoring NULLs from the bitmap.
func Decode(buf []byte, schema *dbtypes.Schema) (Tuple, error) {
	bitmapSize := schema.NullBitmapSize()
	if len(buf) < bitmapSize {
		return Tuple{}, dberrors.Internal("tuple buffer shorter than its null bitmap")
	}

	values := make([]dbtypes.Value, len(schema.Columns))
	offset := bitmapSize

	for i, col := range schema.Columns {
		isNull := buf[i/8]&(1<<uint(i%8)) != 0
		if isNull {
			values[i] = dbtypes.Null()
			continue
		}
		v, err := dbtypes.Deserialize(col.Type, col.VectorDim, buf, &offset)
		if err != nil {
			return Tuple{}, dberrors.Wrap(err, dberrors.KindInternal, dberrors.CodeInternalError,
				"failed to decode column "+col.Name)
		}
		values[i] = v
	}

	return Tuple{Values: values}, nil
}

// EncodedSize returns the size Encode would produce, matching section
// 8's invariant encoded_size(t) == S.computed_size(t.values).
func EncodedSize(t Tuple, schema *dbtypes.Schema) int {
	return schema.ComputedSize(t.Values)
}
