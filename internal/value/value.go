// Package value implements the tagged Value tree used throughout soupd as
// the single representation for generate parameters and for any other
// structured data that needs to be persisted and compared for equality.
//
// This mirrors original_source's IValue.h contract: a tagged union over
// {Table, List, String, Int64, Float64, Bool} with structural equality that
// is order-insensitive for tables (key-wise) and order-sensitive for lists.
package value

import "fmt"

// Kind identifies which alternative of the tagged union a Value holds.
type Kind int

const (
	KindTable Kind = iota
	KindList
	KindString
	KindInt64
	KindFloat64
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindTable:
		return "table"
	case KindList:
		return "list"
	case KindString:
		return "string"
	case KindInt64:
		return "int64"
	case KindFloat64:
		return "float64"
	case KindBool:
		return "bool"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Value is a tagged union. The zero Value is an empty Table.
type Value struct {
	kind  Kind
	table *Table
	list  []Value
	str   string
	i64   int64
	f64   float64
	b     bool
}

func NewTable(t *Table) Value  { return Value{kind: KindTable, table: t} }
func NewList(vs []Value) Value { return Value{kind: KindList, list: vs} }
func NewString(s string) Value { return Value{kind: KindString, str: s} }
func NewInt64(i int64) Value   { return Value{kind: KindInt64, i64: i} }
func NewFloat64(f float64) Value {
	return Value{kind: KindFloat64, f64: f}
}
func NewBool(b bool) Value { return Value{kind: KindBool, b: b} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) AsTable() (*Table, bool) {
	if v.kind != KindTable {
		return nil, false
	}
	if v.table == nil {
		return NewEmptyTable(), true
	}
	return v.table, true
}

func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return v.list, true
}

func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

func (v Value) AsInt64() (int64, bool) {
	if v.kind != KindInt64 {
		return 0, false
	}
	return v.i64, true
}

func (v Value) AsFloat64() (float64, bool) {
	if v.kind != KindFloat64 {
		return 0, false
	}
	return v.f64, true
}

func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// Equal reports structural equality: tables compare key-wise and
// order-insensitively, lists compare element-wise and order-sensitively,
// scalars compare directly.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindTable:
		vt, _ := v.AsTable()
		ot, _ := o.AsTable()
		return vt.Equal(ot)
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindString:
		return v.str == o.str
	case KindInt64:
		return v.i64 == o.i64
	case KindFloat64:
		return v.f64 == o.f64
	case KindBool:
		return v.b == o.b
	default:
		return false
	}
}

// Table is an ordered string-keyed mapping with insertion-preserving
// iteration. Equality on a Table is key-wise and order-insensitive.
type Table struct {
	order  []string
	values map[string]Value
}

func NewEmptyTable() *Table {
	return &Table{values: make(map[string]Value)}
}

// Set inserts or overwrites key's value, preserving the original insertion
// position on overwrite.
func (t *Table) Set(key string, v Value) {
	if t.values == nil {
		t.values = make(map[string]Value)
	}
	if _, ok := t.values[key]; !ok {
		t.order = append(t.order, key)
	}
	t.values[key] = v
}

func (t *Table) Get(key string) (Value, bool) {
	if t == nil {
		return Value{}, false
	}
	v, ok := t.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (t *Table) Keys() []string {
	if t == nil {
		return nil
	}
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.order)
}

// Equal compares two tables key-wise, ignoring key order.
func (t *Table) Equal(o *Table) bool {
	if t.Len() != o.Len() {
		return false
	}
	for _, k := range t.Keys() {
		tv, _ := t.Get(k)
		ov, ok := o.Get(k)
		if !ok || !tv.Equal(ov) {
			return false
		}
	}
	return true
}
