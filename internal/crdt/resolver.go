package crdt

import (
	"fmt"

	"github.com/latticedb/latticedb/internal/dberrors"
	"github.com/latticedb/latticedb/internal/dbtypes"
)

// Stamp is the companion metadata a resolver needs beyond the two
// Values themselves: the commit LSN used as lww's default timestamp,
// and the (txn_id, site_id) tuple used to break an exact tie, per
// section 4.I.
type Stamp struct {
	CommitLSN uint64
	TxnID     uint32
	SiteID    string
}

// less orders two stamps the way lww's tie-break does: by CommitLSN,
// then by (TxnID, SiteID).
func (s Stamp) less(o Stamp) bool {
	if s.CommitLSN != o.CommitLSN {
		return s.CommitLSN < o.CommitLSN
	}
	if s.TxnID != o.TxnID {
		return s.TxnID < o.TxnID
	}
	return s.SiteID < o.SiteID
}

// Resolve merges oldValue (with oldStamp) and newValue (with newStamp)
// under policy, returning the single new version the engine writes to
// the version chain (section 4.I's closing rule).
func Resolve(policy dbtypes.MergePolicy, oldValue, newValue dbtypes.Value, oldStamp, newStamp Stamp) (dbtypes.Value, error) {
	switch policy.Kind {
	case dbtypes.MergeLWW, "":
		if oldStamp.less(newStamp) {
			return newValue, nil
		}
		return oldValue, nil

	case dbtypes.MergeSum:
		return sumValues(oldValue, newValue)

	case dbtypes.MergeSumBounded:
		sum, err := sumValues(oldValue, newValue)
		if err != nil {
			return dbtypes.Value{}, err
		}
		return clamp(sum, policy.Lo, policy.Hi), nil

	case dbtypes.MergeMax:
		if newValue.Compare(oldValue) > 0 {
			return newValue, nil
		}
		return oldValue, nil

	case dbtypes.MergeMin:
		if newValue.Compare(oldValue) < 0 {
			return newValue, nil
		}
		return oldValue, nil

	case dbtypes.MergeGSet:
		return mergeGSet(oldValue, newValue)

	case dbtypes.MergeORSet:
		return mergeORSet(oldValue, newValue)

	case dbtypes.MergeMVRegister:
		return mergeMVRegister(oldValue, newValue, oldStamp, newStamp)

	case dbtypes.MergeMapLWW:
		return mergeMapLWW(oldValue, newValue, oldStamp, newStamp)

	default:
		return dbtypes.Value{}, dberrors.Internal(fmt.Sprintf("unrecognized merge policy %q", policy.Kind))
	}
}

func asFloat(v dbtypes.Value) float64 {
	if v.Kind == dbtypes.KindDouble {
		return v.F
	}
	return float64(v.I)
}

func isNumericKind(k dbtypes.Kind) bool {
	switch k {
	case dbtypes.KindInt8, dbtypes.KindInt16, dbtypes.KindInt32, dbtypes.KindInt64, dbtypes.KindDouble:
		return true
	default:
		return false
	}
}

func sumValues(a, b dbtypes.Value) (dbtypes.Value, error) {
	if !isNumericKind(a.Kind) || !isNumericKind(b.Kind) {
		return dbtypes.Value{}, dberrors.DataType("sum merge requires numeric columns")
	}
	if a.Kind == dbtypes.KindDouble || b.Kind == dbtypes.KindDouble {
		return dbtypes.Double(asFloat(a) + asFloat(b)), nil
	}
	return dbtypes.Int64(a.I + b.I), nil
}

func clamp(v dbtypes.Value, lo, hi float64) dbtypes.Value {
	if v.Kind == dbtypes.KindDouble {
		f := v.F
		if f < lo {
			f = lo
		}
		if f > hi {
			f = hi
		}
		return dbtypes.Double(f)
	}
	i := v.I
	if float64(i) < lo {
		i = int64(lo)
	}
	if float64(i) > hi {
		i = int64(hi)
	}
	return dbtypes.Int64(i)
}

func mergeGSet(a, b dbtypes.Value) (dbtypes.Value, error) {
	ga, err := DecodeGSet(a.Bytes)
	if err != nil {
		return dbtypes.Value{}, err
	}
	gb, err := DecodeGSet(b.Bytes)
	if err != nil {
		return dbtypes.Value{}, err
	}
	return dbtypes.Blob(ga.Union(gb).Encode()), nil
}

func mergeORSet(a, b dbtypes.Value) (dbtypes.Value, error) {
	oa, err := DecodeORSet(a.Bytes)
	if err != nil {
		return dbtypes.Value{}, err
	}
	ob, err := DecodeORSet(b.Bytes)
	if err != nil {
		return dbtypes.Value{}, err
	}
	return dbtypes.Blob(oa.Merge(ob).Encode()), nil
}

func mergeMVRegister(a, b dbtypes.Value, aStamp, bStamp Stamp) (dbtypes.Value, error) {
	ra, err := decodeOrSeedMV(a, aStamp)
	if err != nil {
		return dbtypes.Value{}, err
	}
	rb, err := decodeOrSeedMV(b, bStamp)
	if err != nil {
		return dbtypes.Value{}, err
	}
	return dbtypes.Blob(ra.Merge(rb).Encode()), nil
}

// decodeOrSeedMV treats a.Bytes as an already-encoded MVRegister when
// non-empty, otherwise seeds a fresh single-entry register from the
// scalar string payload with the given stamp (the first write to a
// mv_register column arrives as a plain value, not yet a register).
func decodeOrSeedMV(v dbtypes.Value, stamp Stamp) (*MVRegister, error) {
	if len(v.Bytes) == 0 {
		return NewMVRegister(stamp.CommitLSN, v.S), nil
	}
	return DecodeMVRegister(v.Bytes)
}

func mergeMapLWW(a, b dbtypes.Value, aStamp, bStamp Stamp) (dbtypes.Value, error) {
	ma, err := decodeOrSeedMap(a, aStamp)
	if err != nil {
		return dbtypes.Value{}, err
	}
	mb, err := decodeOrSeedMap(b, bStamp)
	if err != nil {
		return dbtypes.Value{}, err
	}
	return dbtypes.Blob(ma.Merge(mb).Encode()), nil
}

func decodeOrSeedMap(v dbtypes.Value, stamp Stamp) (*MapLWW, error) {
	if len(v.Bytes) == 0 {
		return NewMapLWW(), nil
	}
	return DecodeMapLWW(v.Bytes)
}
