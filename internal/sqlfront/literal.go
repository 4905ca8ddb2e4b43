package sqlfront

import "github.com/latticedb/latticedb/internal/crdt"

// encodeGSetLiteral turns a `{a, b, c}` literal's element texts into the
// encoded grow-only-set payload a MERGE GSET column stores in its Blob
// field (section 4.I: CRDT payloads live in Value.Bytes, opaque to
// everything except the resolver).
func encodeGSetLiteral(elems []string) []byte {
	return crdt.NewGSet(elems...).Encode()
}
