package catalog

import (
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/latticedb/latticedb/internal/dberrors"
	"github.com/latticedb/latticedb/internal/dbtypes"
)

// catalogMagic identifies a LatticeDB data file on page 0.
const catalogMagic = "LDB1"

const catalogFormatVersion = 1

// bsonColumn mirrors dbtypes.Column as a BSON-friendly document.
// Ground: the teacher's pkg/storage/bson.go MarshalBson/UnmarshalBson
// helpers over bson.D, used here to persist catalog metadata instead
// of ad-hoc document rows.
type bsonColumn struct {
	Name      string  `bson:"name"`
	Type      uint8   `bson:"type"`
	Nullable  bool    `bson:"nullable"`
	FixedSize int     `bson:"fixed_size"`
	VectorDim int     `bson:"vector_dim"`
	MergeKind string  `bson:"merge_kind"`
	MergeLo   float64 `bson:"merge_lo"`
	MergeHi   float64 `bson:"merge_hi"`
}

func toBSONColumn(c dbtypes.Column) bsonColumn {
	return bsonColumn{
		Name:      c.Name,
		Type:      uint8(c.Type),
		Nullable:  c.Nullable,
		FixedSize: c.FixedSize,
		VectorDim: c.VectorDim,
		MergeKind: string(c.Merge.Kind),
		MergeLo:   c.Merge.Lo,
		MergeHi:   c.Merge.Hi,
	}
}

func fromBSONColumn(b bsonColumn) dbtypes.Column {
	return dbtypes.Column{
		Name:      b.Name,
		Type:      dbtypes.Kind(b.Type),
		Nullable:  b.Nullable,
		FixedSize: b.FixedSize,
		VectorDim: b.VectorDim,
		Merge: dbtypes.MergePolicy{
			Kind: dbtypes.MergePolicyKind(b.MergeKind),
			Lo:   b.MergeLo,
			Hi:   b.MergeHi,
		},
	}
}

// TableEntry is one catalog row: everything needed to find and
// interpret a table's heap, per section 4.J.
type TableEntry struct {
	Name        string
	OID         uint32
	Schema      *dbtypes.Schema
	FirstPageID uint32
}

type bsonTableEntry struct {
	Name        string       `bson:"name"`
	OID         uint32       `bson:"oid"`
	Columns     []bsonColumn `bson:"columns"`
	FirstPageID uint32       `bson:"first_page_id"`
}

// Catalog is the in-memory mirror of page 0: the next-OID counters and
// every table's metadata. It does no I/O itself: the storage engine
// encodes it and writes page 0 after each DDL change, and removes a new
// table's entry again if that write fails, so a failed CREATE TABLE
// leaves no catalog entry.
type Catalog struct {
	NextTableOID uint32
	NextIndexOID uint32
	FreeListHead uint32
	Tables       map[string]*TableEntry
	order        []string // insertion order, for deterministic persistence
}

// NewCatalog builds an empty catalog (a freshly initialized page 0).
func NewCatalog() *Catalog {
	return &Catalog{
		NextTableOID: 1,
		NextIndexOID: 1,
		Tables:       make(map[string]*TableEntry),
	}
}

// AddTable registers a new table, assigning it the next table OID.
// Returns a ConstraintViolation-shaped error if the name is taken.
func (c *Catalog) AddTable(name string, schema *dbtypes.Schema, firstPageID uint32) (*TableEntry, error) {
	if _, exists := c.Tables[name]; exists {
		return nil, dberrors.New(dberrors.KindConstraint, dberrors.CodeUniqueViolation, "table "+name+" already exists")
	}
	entry := &TableEntry{Name: name, OID: c.NextTableOID, Schema: schema, FirstPageID: firstPageID}
	c.Tables[name] = entry
	c.order = append(c.order, name)
	c.NextTableOID++
	return entry, nil
}

// DropTable removes a table's catalog entry (the caller is responsible
// for reclaiming its pages onto the free list first).
func (c *Catalog) DropTable(name string) error {
	if _, ok := c.Tables[name]; !ok {
		return dberrors.TableNotFound(name)
	}
	delete(c.Tables, name)
	for i, n := range c.order {
		if n == name {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

// Lookup finds a table entry by name.
func (c *Catalog) Lookup(name string) (*TableEntry, error) {
	t, ok := c.Tables[name]
	if !ok {
		return nil, dberrors.TableNotFound(name)
	}
	return t, nil
}

// payload builds the BSON document persisted after the fixed page-0
// header.
func (c *Catalog) payload() (bson.D, error) {
	entries := make([]bsonTableEntry, 0, len(c.order))
	for _, name := range c.order {
		t := c.Tables[name]
		cols := make([]bsonColumn, len(t.Schema.Columns))
		for i, col := range t.Schema.Columns {
			cols[i] = toBSONColumn(col)
		}
		entries = append(entries, bsonTableEntry{
			Name:        t.Name,
			OID:         t.OID,
			Columns:     cols,
			FirstPageID: t.FirstPageID,
		})
	}
	return bson.D{
		{Key: "next_table_oid", Value: c.NextTableOID},
		{Key: "next_index_oid", Value: c.NextIndexOID},
		{Key: "free_list_head", Value: c.FreeListHead},
		{Key: "tables", Value: entries},
	}, nil
}

// Encode serializes the catalog into a page-0-sized buffer: a fixed
// header (magic, format version, then the BSON document length) and
// payload document — the relational-metadata analogue of the teacher's
// MarshalBson helper over an ordinary document.
func (c *Catalog) Encode() ([]byte, error) {
	doc, err := c.payload()
	if err != nil {
		return nil, err
	}
	body, err := bson.Marshal(doc)
	if err != nil {
		return nil, dberrors.Wrap(err, dberrors.KindInternal, dberrors.CodeInternalError, "marshal catalog to BSON")
	}

	buf := make([]byte, 0, 12+len(body))
	buf = append(buf, catalogMagic...)
	buf = appendUint32(buf, catalogFormatVersion)
	buf = appendUint32(buf, uint32(len(body)))
	buf = append(buf, body...)
	return buf, nil
}

// DecodeCatalog reads a catalog previously written by Encode out of a
// page-0-sized buffer.
func DecodeCatalog(buf []byte) (*Catalog, error) {
	if len(buf) < 12 || string(buf[0:4]) != catalogMagic {
		return nil, dberrors.RecoveryFatal(nil, "page 0 does not carry the LDB1 catalog magic")
	}
	bodyLen := readUint32(buf[8:12])
	if 12+int(bodyLen) > len(buf) {
		return nil, dberrors.RecoveryFatal(nil, "catalog body length exceeds page 0")
	}
	var doc struct {
		NextTableOID uint32           `bson:"next_table_oid"`
		NextIndexOID uint32           `bson:"next_index_oid"`
		FreeListHead uint32           `bson:"free_list_head"`
		Tables       []bsonTableEntry `bson:"tables"`
	}
	if err := bson.Unmarshal(buf[12:12+bodyLen], &doc); err != nil {
		return nil, dberrors.Wrap(err, dberrors.KindRecovery, dberrors.CodeIOFailure, "unmarshal catalog BSON")
	}

	c := NewCatalog()
	c.NextTableOID = doc.NextTableOID
	c.NextIndexOID = doc.NextIndexOID
	c.FreeListHead = doc.FreeListHead
	for _, e := range doc.Tables {
		cols := make([]dbtypes.Column, len(e.Columns))
		for i, bc := range e.Columns {
			cols[i] = fromBSONColumn(bc)
		}
		c.Tables[e.Name] = &TableEntry{
			Name:        e.Name,
			OID:         e.OID,
			Schema:      dbtypes.NewSchema(cols),
			FirstPageID: e.FirstPageID,
		}
		c.order = append(c.order, e.Name)
	}
	return c, nil
}

func appendUint32(buf []byte, v uint32) []byte {
	return append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func readUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
