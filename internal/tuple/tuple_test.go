package tuple

import (
	"testing"

	"github.com/latticedb/latticedb/internal/dbtypes"
)

func testSchema() *dbtypes.Schema {
	return dbtypes.NewSchema([]dbtypes.Column{
		dbtypes.NewColumn("id", dbtypes.KindVarchar, false),
		dbtypes.NewColumn("age", dbtypes.KindInt32, true),
		dbtypes.NewVectorColumn("embedding", 3, true),
	})
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	schema := testSchema()
	original := Tuple{Values: []dbtypes.Value{
		dbtypes.Varchar("row-1"),
		dbtypes.Int32(42),
		dbtypes.Vector([]float64{0.1, 0.2, 0.3}),
	}}

	buf, err := Encode(original, schema)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := Decode(buf, schema)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	for i := range original.Values {
		if !decoded.Values[i].Equals(original.Values[i]) {
			t.Fatalf("column %d mismatch: got %+v want %+v", i, decoded.Values[i], original.Values[i])
		}
	}
}

func TestEncodeDecode_WithNulls(t *testing.T) {
	schema := testSchema()
	original := Tuple{Values: []dbtypes.Value{
		dbtypes.Varchar("row-2"),
		dbtypes.Null(),
		dbtypes.Null(),
	}}

	buf, err := Encode(original, schema)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Decode(buf, schema)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.Values[1].IsNull() || !decoded.Values[2].IsNull() {
		t.Fatalf("expected age and embedding to decode as NULL")
	}
	if decoded.Values[0].S != "row-2" {
		t.Fatalf("expected id to round trip, got %+v", decoded.Values[0])
	}
}

func TestEncodedSize_MatchesSchemaComputedSize(t *testing.T) {
	schema := testSchema()
	tup := Tuple{Values: []dbtypes.Value{
		dbtypes.Varchar("abc"),
		dbtypes.Int32(1),
		dbtypes.Vector([]float64{1, 2, 3}),
	}}
	buf, err := Encode(tup, schema)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(buf) != EncodedSize(tup, schema) {
		t.Fatalf("encoded buffer length %d does not match EncodedSize() %d", len(buf), EncodedSize(tup, schema))
	}
}

func TestRID_InvalidSentinel(t *testing.T) {
	if Invalid.IsValid() {
		t.Fatalf("the Invalid RID sentinel must report IsValid() == false")
	}
	r := RID{PageID: 1, Slot: 0}
	if !r.IsValid() {
		t.Fatalf("slot 0 on a real page must be a valid RID")
	}
}
