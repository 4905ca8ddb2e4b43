// Package dbtypes implements the typed Value union, Column, and Schema
// described in section 3/4.A of the design: deterministic total
// ordering, a stable 64-bit hash, equality, bidirectional binary
// serialization, and the narrow cast rules between numeric types and
// between VARCHAR/TEXT.
package dbtypes

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/latticedb/latticedb/internal/dberrors"
)

// Kind tags the union variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBoolean
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindDouble
	KindVarchar
	KindText
	KindTimestamp
	KindDate
	KindTime
	KindBlob
	KindVector
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "NULL"
	case KindBoolean:
		return "BOOLEAN"
	case KindInt8:
		return "INT8"
	case KindInt16:
		return "INT16"
	case KindInt32:
		return "INT32"
	case KindInt64:
		return "INT64"
	case KindDouble:
		return "DOUBLE"
	case KindVarchar:
		return "VARCHAR"
	case KindText:
		return "TEXT"
	case KindTimestamp:
		return "TIMESTAMP"
	case KindDate:
		return "DATE"
	case KindTime:
		return "TIME"
	case KindBlob:
		return "BLOB"
	case KindVector:
		return "VECTOR"
	default:
		return "UNKNOWN"
	}
}

func isInteger(k Kind) bool {
	switch k {
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return true
	}
	return false
}

func isNumeric(k Kind) bool {
	return isInteger(k) || k == KindDouble
}

func isStringLike(k Kind) bool {
	return k == KindVarchar || k == KindText
}

// Value is a tagged union over the scalar and vector types the engine
// supports. Only the field(s) matching Kind are meaningful.
type Value struct {
	Kind  Kind
	I     int64     // Boolean (0/1) and all integer widths
	F     float64   // Double
	S     string    // Varchar/Text, and string-encoded Timestamp/Date/Time (ISO-8601)
	Bytes []byte    // Blob
	Vec   []float64 // Vector
}

func Null() Value                 { return Value{Kind: KindNull} }
func Bool(b bool) Value           { if b { return Value{Kind: KindBoolean, I: 1} }; return Value{Kind: KindBoolean, I: 0} }
func Int8(v int8) Value           { return Value{Kind: KindInt8, I: int64(v)} }
func Int16(v int16) Value         { return Value{Kind: KindInt16, I: int64(v)} }
func Int32(v int32) Value         { return Value{Kind: KindInt32, I: int64(v)} }
func Int64(v int64) Value         { return Value{Kind: KindInt64, I: v} }
func Double(v float64) Value      { return Value{Kind: KindDouble, F: v} }
func Varchar(s string) Value      { return Value{Kind: KindVarchar, S: s} }
func Text(s string) Value         { return Value{Kind: KindText, S: s} }
func Timestamp(iso8601 string) Value { return Value{Kind: KindTimestamp, S: iso8601} }
func Date(iso8601 string) Value   { return Value{Kind: KindDate, S: iso8601} }
func Time(iso8601 string) Value   { return Value{Kind: KindTime, S: iso8601} }
func Blob(b []byte) Value         { return Value{Kind: KindBlob, Bytes: b} }
func Vector(v []float64) Value    { return Value{Kind: KindVector, Vec: v} }

func (v Value) IsNull() bool { return v.Kind == KindNull }

func (v Value) Bool() bool { return v.I != 0 }

// Compare implements the total order required by section 4.A: first by
// type tag, then by payload. Vector comparison is lexicographic.
// Compare only returns a meaningful cross-type ordering for NULL (which
// sorts before everything); comparing two otherwise-different kinds
// beyond NULL falls back to ordering by Kind tag, matching "by type tag,
// then by payload".
func (v Value) Compare(other Value) int {
	if v.Kind != other.Kind {
		if v.Kind < other.Kind {
			return -1
		}
		return 1
	}
	switch v.Kind {
	case KindNull:
		return 0
	case KindBoolean, KindInt8, KindInt16, KindInt32, KindInt64:
		return compareInt64(v.I, other.I)
	case KindDouble:
		return compareFloat64(v.F, other.F)
	case KindVarchar, KindText, KindTimestamp, KindDate, KindTime:
		return compareString(v.S, other.S)
	case KindBlob:
		return compareBytes(v.Bytes, other.Bytes)
	case KindVector:
		return compareVector(v.Vec, other.Vec)
	default:
		return 0
	}
}

func compareInt64(a, b int64) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

func compareFloat64(a, b float64) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

func compareString(a, b string) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return compareInt64(int64(len(a)), int64(len(b)))
}

// compareVector: lexicographic, as specified. Dimension mismatch is
// only an equality concern (Equals requires equal dimensions); Compare
// still needs a total order so it falls back to comparing lengths once
// the common prefix is equal.
func compareVector(a, b []float64) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := compareFloat64(a[i], b[i]); c != 0 {
			return c
		}
	}
	return compareInt64(int64(len(a)), int64(len(b)))
}

// Equals requires equal dimensions for vectors (stricter than Compare==0,
// which would treat differently-sized vectors sharing a prefix as equal
// only when the remaining compareInt64(len,len) breaks the tie anyway —
// Equals makes the dimension requirement explicit per section 4.A).
func (v Value) Equals(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	if v.Kind == KindVector {
		if len(v.Vec) != len(other.Vec) {
			return false
		}
	}
	return v.Compare(other) == 0
}

// String renders v for display (the CLI's result table, log lines): the
// raw payload with no SQL quoting, since nothing here round-trips it
// back through the parser.
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "NULL"
	case KindBoolean:
		return strconv.FormatBool(v.I != 0)
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return strconv.FormatInt(v.I, 10)
	case KindDouble:
		return strconv.FormatFloat(v.F, 'g', -1, 64)
	case KindVarchar, KindText, KindTimestamp, KindDate, KindTime:
		return v.S
	case KindBlob:
		return fmt.Sprintf("\\x%x", v.Bytes)
	case KindVector:
		parts := make([]string, len(v.Vec))
		for i, f := range v.Vec {
			parts[i] = strconv.FormatFloat(f, 'g', -1, 64)
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		return "?"
	}
}

// Hash returns a stable 64-bit FNV-1a hash over the type tag and
// payload.
func (v Value) Hash() uint64 {
	h := fnvOffset
	h = hashByte(h, byte(v.Kind))
	switch v.Kind {
	case KindNull:
		// no payload
	case KindBoolean, KindInt8, KindInt16, KindInt32, KindInt64:
		h = hashBytes(h, i64Bytes(v.I))
	case KindDouble:
		h = hashBytes(h, i64Bytes(int64(math.Float64bits(v.F))))
	case KindVarchar, KindText, KindTimestamp, KindDate, KindTime:
		h = hashBytes(h, []byte(v.S))
	case KindBlob:
		h = hashBytes(h, v.Bytes)
	case KindVector:
		for _, f := range v.Vec {
			h = hashBytes(h, i64Bytes(int64(math.Float64bits(f))))
		}
	}
	return h
}

const (
	fnvOffset uint64 = 14695981039346656037
	fnvPrime  uint64 = 1099511628211
)

func hashByte(h uint64, b byte) uint64 {
	h ^= uint64(b)
	h *= fnvPrime
	return h
}

func hashBytes(h uint64, bs []byte) uint64 {
	for _, b := range bs {
		h = hashByte(h, b)
	}
	return h
}

func i64Bytes(v int64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	return buf[:]
}

// Cast converts v to target, following section 4.A: numeric widening
// and narrowing among integer/double types, and VARCHAR<->TEXT. All
// other combinations fail with a DataType error.
func (v Value) Cast(target Kind) (Value, error) {
	if v.Kind == target {
		return v, nil
	}
	if v.Kind == KindNull {
		return v, nil
	}
	if isNumeric(v.Kind) && isNumeric(target) {
		return castNumeric(v, target), nil
	}
	if isStringLike(v.Kind) && isStringLike(target) {
		return Value{Kind: target, S: v.S}, nil
	}
	return Value{}, dberrors.DataType("cannot cast " + v.Kind.String() + " to " + target.String())
}

func castNumeric(v Value, target Kind) Value {
	var asFloat float64
	if v.Kind == KindDouble {
		asFloat = v.F
	} else {
		asFloat = float64(v.I)
	}

	switch target {
	case KindDouble:
		return Value{Kind: KindDouble, F: asFloat}
	case KindInt8:
		return Value{Kind: KindInt8, I: int64(int8(asFloat))}
	case KindInt16:
		return Value{Kind: KindInt16, I: int64(int16(asFloat))}
	case KindInt32:
		return Value{Kind: KindInt32, I: int64(int32(asFloat))}
	case KindInt64:
		return Value{Kind: KindInt64, I: int64(asFloat)}
	default:
		return Value{Kind: target}
	}
}
