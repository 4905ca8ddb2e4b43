package crdt

import (
	"encoding/binary"
	"sort"
)

// MVEntry is one concurrent value in a multi-value register, stamped
// with the causal timestamp (commit LSN) of the write that produced
// it.
type MVEntry struct {
	Stamp uint64
	Value string
}

// MVRegister keeps every value observed at the current maximal causal
// stamp; a write with a strictly greater stamp replaces all of them.
type MVRegister struct {
	Entries []MVEntry
}

func NewMVRegister(stamp uint64, value string) *MVRegister {
	return &MVRegister{Entries: []MVEntry{{Stamp: stamp, Value: value}}}
}

// Merge keeps only the entries at the maximal stamp across both sides,
// deduplicating identical values — commutative and associative because
// max() is, and idempotent because merging a register with itself
// yields the same maximal-stamp entry set.
func (m *MVRegister) Merge(other *MVRegister) *MVRegister {
	var maxStamp uint64
	for _, e := range m.Entries {
		if e.Stamp > maxStamp {
			maxStamp = e.Stamp
		}
	}
	for _, e := range other.Entries {
		if e.Stamp > maxStamp {
			maxStamp = e.Stamp
		}
	}

	seen := make(map[string]struct{})
	var out []MVEntry
	for _, e := range m.Entries {
		if e.Stamp == maxStamp {
			if _, ok := seen[e.Value]; !ok {
				seen[e.Value] = struct{}{}
				out = append(out, e)
			}
		}
	}
	for _, e := range other.Entries {
		if e.Stamp == maxStamp {
			if _, ok := seen[e.Value]; !ok {
				seen[e.Value] = struct{}{}
				out = append(out, e)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return &MVRegister{Entries: out}
}

func (m *MVRegister) Encode() []byte {
	entries := append([]MVEntry(nil), m.Entries...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Value < entries[j].Value })

	buf := make([]byte, 0, 32)
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(entries)))
	buf = append(buf, n[:]...)
	for _, e := range entries {
		var stampBuf [8]byte
		binary.LittleEndian.PutUint64(stampBuf[:], e.Stamp)
		buf = append(buf, stampBuf[:]...)
		buf = putString(buf, e.Value)
	}
	return buf
}

func DecodeMVRegister(buf []byte) (*MVRegister, error) {
	if len(buf) < 4 {
		return &MVRegister{}, nil
	}
	count := int(binary.LittleEndian.Uint32(buf[0:4]))
	offset := 4
	m := &MVRegister{}
	for i := 0; i < count; i++ {
		if offset+8 > len(buf) {
			break
		}
		stamp := binary.LittleEndian.Uint64(buf[offset : offset+8])
		offset += 8
		val, err := getString(buf, &offset)
		if err != nil {
			return nil, err
		}
		m.Entries = append(m.Entries, MVEntry{Stamp: stamp, Value: val})
	}
	return m, nil
}

// MapEntry is one key's LWW-resolved value within a MapLWW.
type MapEntry struct {
	Key   string
	Value string
	Stamp uint64
}

// MapLWW applies per-key last-writer-wins over a string-keyed map.
type MapLWW struct {
	Entries map[string]MapEntry
}

func NewMapLWW() *MapLWW {
	return &MapLWW{Entries: make(map[string]MapEntry)}
}

// Put installs (or LWW-overwrites) key with value at stamp.
func (m *MapLWW) Put(key, value string, stamp uint64) {
	cur, ok := m.Entries[key]
	if !ok || stamp > cur.Stamp || (stamp == cur.Stamp && value > cur.Value) {
		m.Entries[key] = MapEntry{Key: key, Value: value, Stamp: stamp}
	}
}

// Merge resolves each key independently by the higher stamp, tying by
// greater value for determinism — commutative, associative, idempotent
// for the same reason plain LWW is.
func (m *MapLWW) Merge(other *MapLWW) *MapLWW {
	out := NewMapLWW()
	for k, e := range m.Entries {
		out.Put(k, e.Value, e.Stamp)
	}
	for k, e := range other.Entries {
		out.Put(k, e.Value, e.Stamp)
	}
	return out
}

func (m *MapLWW) Encode() []byte {
	keys := make([]string, 0, len(m.Entries))
	for k := range m.Entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := make([]byte, 0, 64)
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(keys)))
	buf = append(buf, n[:]...)
	for _, k := range keys {
		e := m.Entries[k]
		buf = putString(buf, e.Key)
		buf = putString(buf, e.Value)
		var stampBuf [8]byte
		binary.LittleEndian.PutUint64(stampBuf[:], e.Stamp)
		buf = append(buf, stampBuf[:]...)
	}
	return buf
}

func DecodeMapLWW(buf []byte) (*MapLWW, error) {
	m := NewMapLWW()
	if len(buf) < 4 {
		return m, nil
	}
	count := int(binary.LittleEndian.Uint32(buf[0:4]))
	offset := 4
	for i := 0; i < count; i++ {
		key, err := getString(buf, &offset)
		if err != nil {
			return nil, err
		}
		val, err := getString(buf, &offset)
		if err != nil {
			return nil, err
		}
		if offset+8 > len(buf) {
			break
		}
		stamp := binary.LittleEndian.Uint64(buf[offset : offset+8])
		offset += 8
		m.Entries[key] = MapEntry{Key: key, Value: val, Stamp: stamp}
	}
	return m, nil
}
