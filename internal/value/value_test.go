package value

import (
	"bytes"
	"testing"
)

func tbl(kvs ...interface{}) Value {
	t := NewEmptyTable()
	for i := 0; i < len(kvs); i += 2 {
		t.Set(kvs[i].(string), kvs[i+1].(Value))
	}
	return NewTable(t)
}

func TestTableEqualityIsOrderInsensitive(t *testing.T) {
	a := tbl("Flavor", NewString("debug"), "Jobs", NewInt64(4))
	b := tbl("Jobs", NewInt64(4), "Flavor", NewString("debug"))
	if !a.Equal(b) {
		t.Fatalf("expected tables with same key set to be equal regardless of insertion order")
	}
}

func TestListEqualityIsOrderSensitive(t *testing.T) {
	a := NewList([]Value{NewString("a"), NewString("b")})
	b := NewList([]Value{NewString("b"), NewString("a")})
	if a.Equal(b) {
		t.Fatalf("expected lists with different order to be unequal")
	}
	c := NewList([]Value{NewString("a"), NewString("b")})
	if !a.Equal(c) {
		t.Fatalf("expected identical lists to be equal")
	}
}

func TestEqualityReflexiveSymmetricTransitive(t *testing.T) {
	a := tbl("k", NewInt64(1))
	b := tbl("k", NewInt64(1))
	c := tbl("k", NewInt64(1))
	if !a.Equal(a) {
		t.Fatalf("not reflexive")
	}
	if a.Equal(b) != b.Equal(a) {
		t.Fatalf("not symmetric")
	}
	if a.Equal(b) && b.Equal(c) && !a.Equal(c) {
		t.Fatalf("not transitive")
	}
}

func TestDifferingKeySetsAreUnequal(t *testing.T) {
	a := tbl("k1", NewInt64(1))
	b := tbl("k1", NewInt64(1), "k2", NewInt64(2))
	if a.Equal(b) {
		t.Fatalf("expected tables with different key sets to be unequal")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		v    Value
	}{
		{"bool", NewBool(true)},
		{"int64", NewInt64(-42)},
		{"float64", NewFloat64(3.25)},
		{"string", NewString("hello, soup")},
		{"empty list", NewList(nil)},
		{"list", NewList([]Value{NewInt64(1), NewString("two"), NewBool(false)})},
		{"nested table", tbl(
			"LanguageExtensionPath", NewString(""),
			"PackageDirectory", NewString("/src/pkg"),
			"Dependencies", tbl("Build", NewList([]Value{NewString("dep1")})),
		)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := Encode(&buf, tt.v); err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := Decode(&buf)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !got.Equal(tt.v) {
				t.Fatalf("round trip mismatch: got kind %v, want kind %v", got.Kind(), tt.v.Kind())
			}
		})
	}
}
