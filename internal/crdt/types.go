// Package crdt implements the CRDT Merge Engine of section 4.I: a
// per-column resolver dispatch invoked on ON CONFLICT MERGE, each
// resolver associative, commutative, and idempotent over the same
// argument set. The collection-valued policies (gset, orset,
// mv_register, map_lww) need a state richer than a scalar Value, so
// this package defines its own small encoded collection types, stored
// inside a column's Value.Bytes (Kind Blob) the way the teacher stores
// an opaque BSON document inside a heap record — the column's
// merge-policy metadata, not its declared Kind, says how to interpret
// the bytes.
package crdt

import (
	"encoding/binary"
	"sort"

	"github.com/latticedb/latticedb/internal/dberrors"
)

func putString(buf []byte, s string) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, s...)
	return buf
}

func getString(buf []byte, offset *int) (string, error) {
	if *offset+4 > len(buf) {
		return "", dberrors.Internal("crdt: truncated string length")
	}
	n := int(binary.LittleEndian.Uint32(buf[*offset : *offset+4]))
	*offset += 4
	if *offset+n > len(buf) {
		return "", dberrors.Internal("crdt: truncated string payload")
	}
	s := string(buf[*offset : *offset+n])
	*offset += n
	return s, nil
}

// GSet is a grow-only set of strings: once added, never removed.
type GSet struct {
	Elements map[string]struct{}
}

// NewGSet builds a GSet containing the given elements.
func NewGSet(elems ...string) *GSet {
	g := &GSet{Elements: make(map[string]struct{}, len(elems))}
	for _, e := range elems {
		g.Elements[e] = struct{}{}
	}
	return g
}

// Union merges two GSets (commutative, associative, idempotent: plain
// set union).
func (g *GSet) Union(other *GSet) *GSet {
	out := NewGSet()
	for e := range g.Elements {
		out.Elements[e] = struct{}{}
	}
	for e := range other.Elements {
		out.Elements[e] = struct{}{}
	}
	return out
}

// Sorted returns the elements in deterministic order.
func (g *GSet) Sorted() []string {
	out := make([]string, 0, len(g.Elements))
	for e := range g.Elements {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

func (g *GSet) Encode() []byte {
	elems := g.Sorted()
	buf := make([]byte, 0, 4+16*len(elems))
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(elems)))
	buf = append(buf, n[:]...)
	for _, e := range elems {
		buf = putString(buf, e)
	}
	return buf
}

func DecodeGSet(buf []byte) (*GSet, error) {
	if len(buf) < 4 {
		return NewGSet(), nil
	}
	count := int(binary.LittleEndian.Uint32(buf[0:4]))
	offset := 4
	g := NewGSet()
	for i := 0; i < count; i++ {
		s, err := getString(buf, &offset)
		if err != nil {
			return nil, err
		}
		g.Elements[s] = struct{}{}
	}
	return g, nil
}

// ORSet is an observed-remove set: elements carry unique add-tags;
// removal removes every tag currently observed for that element.
type ORSet struct {
	Adds    map[string]map[string]struct{} // element -> set of add tags
	Tombs   map[string]struct{}            // tags that have been removed
}

func NewORSet() *ORSet {
	return &ORSet{Adds: make(map[string]map[string]struct{}), Tombs: make(map[string]struct{})}
}

// Add records a new (element, tag) observation.
func (o *ORSet) Add(element, tag string) {
	if o.Adds[element] == nil {
		o.Adds[element] = make(map[string]struct{})
	}
	o.Adds[element][tag] = struct{}{}
}

// Remove tombstones every tag currently observed for element.
func (o *ORSet) Remove(element string) {
	for tag := range o.Adds[element] {
		o.Tombs[tag] = struct{}{}
	}
}

// Live returns the elements with at least one add-tag not yet
// tombstoned.
func (o *ORSet) Live() []string {
	var out []string
	for elem, tags := range o.Adds {
		for tag := range tags {
			if _, removed := o.Tombs[tag]; !removed {
				out = append(out, elem)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// Merge unions both the add-tag observations and the tombstone sets —
// commutative, associative, and idempotent since it is set union on
// both components.
func (o *ORSet) Merge(other *ORSet) *ORSet {
	out := NewORSet()
	for elem, tags := range o.Adds {
		for tag := range tags {
			out.Add(elem, tag)
		}
	}
	for elem, tags := range other.Adds {
		for tag := range tags {
			out.Add(elem, tag)
		}
	}
	for tag := range o.Tombs {
		out.Tombs[tag] = struct{}{}
	}
	for tag := range other.Tombs {
		out.Tombs[tag] = struct{}{}
	}
	return out
}

func (o *ORSet) Encode() []byte {
	type pair struct{ elem, tag string }
	var adds []pair
	for elem, tags := range o.Adds {
		for tag := range tags {
			adds = append(adds, pair{elem, tag})
		}
	}
	sort.Slice(adds, func(i, j int) bool {
		if adds[i].elem != adds[j].elem {
			return adds[i].elem < adds[j].elem
		}
		return adds[i].tag < adds[j].tag
	})
	var tombs []string
	for t := range o.Tombs {
		tombs = append(tombs, t)
	}
	sort.Strings(tombs)

	buf := make([]byte, 0, 64)
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(adds)))
	buf = append(buf, n[:]...)
	for _, p := range adds {
		buf = putString(buf, p.elem)
		buf = putString(buf, p.tag)
	}
	binary.LittleEndian.PutUint32(n[:], uint32(len(tombs)))
	buf = append(buf, n[:]...)
	for _, t := range tombs {
		buf = putString(buf, t)
	}
	return buf
}

func DecodeORSet(buf []byte) (*ORSet, error) {
	o := NewORSet()
	offset := 0
	if len(buf) < 4 {
		return o, nil
	}
	addCount := int(binary.LittleEndian.Uint32(buf[0:4]))
	offset = 4
	for i := 0; i < addCount; i++ {
		elem, err := getString(buf, &offset)
		if err != nil {
			return nil, err
		}
		tag, err := getString(buf, &offset)
		if err != nil {
			return nil, err
		}
		o.Add(elem, tag)
	}
	if offset+4 > len(buf) {
		return o, nil
	}
	tombCount := int(binary.LittleEndian.Uint32(buf[offset : offset+4]))
	offset += 4
	for i := 0; i < tombCount; i++ {
		tag, err := getString(buf, &offset)
		if err != nil {
			return nil, err
		}
		o.Tombs[tag] = struct{}{}
	}
	return o, nil
}
