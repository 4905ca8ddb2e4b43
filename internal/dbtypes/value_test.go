package dbtypes

import "testing"

func TestValue_Compare_SameKind(t *testing.T) {
	if Int32(5).Compare(Int32(10)) != -1 {
		t.Fatalf("expected -1 for 5 < 10")
	}
	if Int32(10).Compare(Int32(5)) != 1 {
		t.Fatalf("expected 1 for 10 > 5")
	}
	if Int32(5).Compare(Int32(5)) != 0 {
		t.Fatalf("expected 0 for 5 == 5")
	}
}

func TestValue_Compare_DifferentKindOrdersByTag(t *testing.T) {
	if Null().Compare(Int32(0)) >= 0 {
		t.Fatalf("NULL must sort before non-null values")
	}
	if Int32(0).Compare(Null()) <= 0 {
		t.Fatalf("comparison must be anti-symmetric across kinds")
	}
}

func TestValue_Compare_Varchar(t *testing.T) {
	if Varchar("a").Compare(Varchar("b")) != -1 {
		t.Fatalf("expected 'a' < 'b'")
	}
}

func TestValue_Compare_VectorLexicographic(t *testing.T) {
	a := Vector([]float64{0, 0, 1})
	b := Vector([]float64{0, 1, 0})
	if a.Compare(b) != -1 {
		t.Fatalf("expected lexicographic order to prefer the earlier smaller component")
	}
}

func TestValue_Equals_VectorRequiresEqualDimension(t *testing.T) {
	a := Vector([]float64{1, 2})
	b := Vector([]float64{1, 2, 0})
	if a.Equals(b) {
		t.Fatalf("vectors of different dimension must not be equal")
	}
}

func TestValue_Equals_Basic(t *testing.T) {
	if !Varchar("x").Equals(Varchar("x")) {
		t.Fatalf("equal varchars must compare equal")
	}
	if Varchar("x").Equals(Text("x")) {
		t.Fatalf("VARCHAR and TEXT are different kinds and must not be Equals")
	}
}

func TestValue_Hash_Deterministic(t *testing.T) {
	a := Varchar("hello")
	b := Varchar("hello")
	if a.Hash() != b.Hash() {
		t.Fatalf("identical values must hash identically")
	}
}

func TestValue_Hash_DiffersAcrossKinds(t *testing.T) {
	if Int64(1).Hash() == Bool(true).Hash() {
		t.Fatalf("different kinds sharing a payload bit pattern should not usually collide (tag is hashed first)")
	}
}

func TestValue_SerializeDeserialize_RoundTrip(t *testing.T) {
	cases := []Value{
		Null(),
		Bool(true),
		Bool(false),
		Int8(-12),
		Int16(-1234),
		Int32(123456),
		Int64(-123456789012),
		Double(3.14159),
		Varchar("hello, world"),
		Text("some text"),
		Timestamp("2024-01-02T03:04:05Z"),
		Blob([]byte{1, 2, 3, 4, 5}),
		Vector([]float64{0.1, 0.2, 0.3}),
	}

	for _, v := range cases {
		buf := v.Serialize(nil)
		var off int
		dim := 0
		if v.Kind == KindVector {
			dim = len(v.Vec)
		}
		got, err := Deserialize(v.Kind, dim, buf, &off)
		if err != nil {
			t.Fatalf("deserialize(%v): %v", v.Kind, err)
		}
		if !got.Equals(v) {
			t.Fatalf("round trip mismatch for kind %v: got %+v want %+v", v.Kind, got, v)
		}
		if off != len(buf) {
			t.Fatalf("deserialize for kind %v did not consume the whole buffer: off=%d len=%d", v.Kind, off, len(buf))
		}
	}
}

func TestValue_SerializedSize_MatchesSerialize(t *testing.T) {
	v := Varchar("abcdef")
	if v.SerializedSize() != len(v.Serialize(nil)) {
		t.Fatalf("SerializedSize must match the actual Serialize output length")
	}
}

func TestValue_Cast_NumericWidening(t *testing.T) {
	v := Int8(5)
	out, err := v.Cast(KindInt64)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.I != 5 || out.Kind != KindInt64 {
		t.Fatalf("expected widened INT64(5), got %+v", out)
	}
}

func TestValue_Cast_VarcharToText(t *testing.T) {
	out, err := Varchar("hi").Cast(KindText)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Kind != KindText || out.S != "hi" {
		t.Fatalf("expected TEXT('hi'), got %+v", out)
	}
}

func TestValue_Cast_IncompatibleFails(t *testing.T) {
	_, err := Varchar("hi").Cast(KindInt32)
	if err == nil {
		t.Fatalf("expected a data-type error casting VARCHAR to INT32")
	}
}

func TestValue_Cast_NullPropagates(t *testing.T) {
	out, err := Null().Cast(KindInt32)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.IsNull() {
		t.Fatalf("casting NULL must produce NULL of the target kind")
	}
}

func TestValue_String(t *testing.T) {
	cases := []struct {
		v    Value
		want string
	}{
		{Null(), "NULL"},
		{Bool(true), "true"},
		{Int64(42), "42"},
		{Double(1.5), "1.5"},
		{Varchar("hi"), "hi"},
		{Vector([]float64{1, 2, 3}), "[1,2,3]"},
	}
	for _, c := range cases {
		if got := c.v.String(); got != c.want {
			t.Fatalf("String() = %q, want %q", got, c.want)
		}
	}
}
