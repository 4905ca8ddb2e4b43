package dbtypes

import (
	"encoding/binary"
	"math"

	"github.com/latticedb/latticedb/internal/dberrors"
)

// Serialize appends v's binary encoding to buf and returns the result.
// Fixed-width types are written payload-only (the caller's null bitmap
// and Column.FixedSize already establish the width); variable-length
// types (Varchar/Text/Blob/Vector) are written as a 4-byte length
// prefix followed by the payload, matching section 3's Tuple encoding
// rule. The Kind tag itself is NOT written here — callers that need a
// self-describing encoding (e.g. CRDT metadata) should prefix it
// themselves; Tuple encoding already knows each column's static type
// from the Schema and does not repeat it per-row.
func (v Value) Serialize(buf []byte) []byte {
	switch v.Kind {
	case KindNull:
		return buf
	case KindBoolean:
		return append(buf, byte(v.I))
	case KindInt8:
		return append(buf, byte(int8(v.I)))
	case KindInt16:
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(int16(v.I)))
		return append(buf, b[:]...)
	case KindInt32:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(int32(v.I)))
		return append(buf, b[:]...)
	case KindInt64:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(v.I))
		return append(buf, b[:]...)
	case KindDouble:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(v.F))
		return append(buf, b[:]...)
	case KindVarchar, KindText, KindTimestamp, KindDate, KindTime:
		return appendLengthPrefixed(buf, []byte(v.S))
	case KindBlob:
		return appendLengthPrefixed(buf, v.Bytes)
	case KindVector:
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(v.Vec)))
		buf = append(buf, lenBuf[:]...)
		for _, f := range v.Vec {
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], math.Float64bits(f))
			buf = append(buf, b[:]...)
		}
		return buf
	default:
		return buf
	}
}

func appendLengthPrefixed(buf, payload []byte) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, payload...)
}

// Deserialize reads a value of the given kind (and, for vectors, the
// given dimension) from buf starting at *offset, advancing *offset past
// what it consumed.
func Deserialize(kind Kind, dim int, buf []byte, offset *int) (Value, error) {
	o := *offset
	switch kind {
	case KindNull:
		return Value{Kind: KindNull}, nil
	case KindBoolean:
		if o+1 > len(buf) {
			return Value{}, dberrors.Internal("short buffer decoding BOOLEAN")
		}
		*offset = o + 1
		return Value{Kind: KindBoolean, I: int64(buf[o])}, nil
	case KindInt8:
		if o+1 > len(buf) {
			return Value{}, dberrors.Internal("short buffer decoding INT8")
		}
		*offset = o + 1
		return Value{Kind: KindInt8, I: int64(int8(buf[o]))}, nil
	case KindInt16:
		if o+2 > len(buf) {
			return Value{}, dberrors.Internal("short buffer decoding INT16")
		}
		*offset = o + 2
		return Value{Kind: KindInt16, I: int64(int16(binary.LittleEndian.Uint16(buf[o : o+2])))}, nil
	case KindInt32:
		if o+4 > len(buf) {
			return Value{}, dberrors.Internal("short buffer decoding INT32")
		}
		*offset = o + 4
		return Value{Kind: KindInt32, I: int64(int32(binary.LittleEndian.Uint32(buf[o : o+4])))}, nil
	case KindInt64:
		if o+8 > len(buf) {
			return Value{}, dberrors.Internal("short buffer decoding INT64")
		}
		*offset = o + 8
		return Value{Kind: KindInt64, I: int64(binary.LittleEndian.Uint64(buf[o : o+8]))}, nil
	case KindDouble:
		if o+8 > len(buf) {
			return Value{}, dberrors.Internal("short buffer decoding DOUBLE")
		}
		*offset = o + 8
		return Value{Kind: KindDouble, F: math.Float64frombits(binary.LittleEndian.Uint64(buf[o : o+8]))}, nil
	case KindVarchar, KindText, KindTimestamp, KindDate, KindTime:
		payload, next, err := readLengthPrefixed(buf, o)
		if err != nil {
			return Value{}, err
		}
		*offset = next
		return Value{Kind: kind, S: string(payload)}, nil
	case KindBlob:
		payload, next, err := readLengthPrefixed(buf, o)
		if err != nil {
			return Value{}, err
		}
		*offset = next
		cp := make([]byte, len(payload))
		copy(cp, payload)
		return Value{Kind: KindBlob, Bytes: cp}, nil
	case KindVector:
		if o+4 > len(buf) {
			return Value{}, dberrors.Internal("short buffer decoding VECTOR length")
		}
		n := int(binary.LittleEndian.Uint32(buf[o : o+4]))
		o += 4
		if dim != 0 && n != dim {
			return Value{}, dberrors.DataType("vector dimension mismatch: schema declares a different dimension")
		}
		if o+n*8 > len(buf) {
			return Value{}, dberrors.Internal("short buffer decoding VECTOR payload")
		}
		vec := make([]float64, n)
		for i := 0; i < n; i++ {
			vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[o : o+8]))
			o += 8
		}
		*offset = o
		return Value{Kind: KindVector, Vec: vec}, nil
	default:
		return Value{}, dberrors.Internal("unknown value kind during deserialize")
	}
}

func readLengthPrefixed(buf []byte, o int) (payload []byte, next int, err error) {
	if o+4 > len(buf) {
		return nil, 0, dberrors.Internal("short buffer decoding length prefix")
	}
	n := int(binary.LittleEndian.Uint32(buf[o : o+4]))
	o += 4
	if o+n > len(buf) {
		return nil, 0, dberrors.Internal("short buffer decoding length-prefixed payload")
	}
	return buf[o : o+n], o + n, nil
}

// SerializedSize returns the number of bytes Serialize would write for
// v, without allocating.
func (v Value) SerializedSize() int {
	switch v.Kind {
	case KindNull:
		return 0
	case KindBoolean, KindInt8:
		return 1
	case KindInt16:
		return 2
	case KindInt32:
		return 4
	case KindInt64, KindDouble:
		return 8
	case KindVarchar, KindText, KindTimestamp, KindDate, KindTime:
		return 4 + len(v.S)
	case KindBlob:
		return 4 + len(v.Bytes)
	case KindVector:
		return 4 + 8*len(v.Vec)
	default:
		return 0
	}
}
