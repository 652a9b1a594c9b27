// Package value provides the tagged-union field value carried by observations
// and snapshots.
//
// Observation fields are schemaless, so a field can hold a string in one
// observation and a number in the next. Value keeps the kind explicit so that
// equality, ordering and set de-duplication in the reducer are well-defined
// regardless of how the value arrived.
package value

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindDate
	KindArray
	KindObject
)

var kindNames = map[Kind]string{
	KindNull:   "null",
	KindString: "string",
	KindNumber: "number",
	KindBool:   "boolean",
	KindDate:   "date",
	KindArray:  "array",
	KindObject: "object",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind parses the name produced by Kind.String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == strings.ToLower(strings.TrimSpace(s)) {
			return k, nil
		}
	}
	return KindNull, fmt.Errorf("unknown value kind %q", s)
}

// Value is an immutable tagged union. The zero Value is null.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	t    time.Time
	arr  []Value
	obj  map[string]Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number returns a number value. Negative zero is stored as zero so equal
// numbers share one canonical encoding.
func Number(f float64) Value {
	if f == 0 {
		f = 0
	}
	return Value{kind: KindNumber, num: f}
}

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Date returns a date value normalized to UTC.
func Date(t time.Time) Value { return Value{kind: KindDate, t: t.UTC()} }

// Array returns an array value holding a copy of vs.
func Array(vs ...Value) Value {
	cp := make([]Value, len(vs))
	copy(cp, vs)
	return Value{kind: KindArray, arr: cp}
}

// Object returns an object value holding a copy of m.
func Object(m map[string]Value) Value {
	cp := make(map[string]Value, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Value{kind: KindObject, obj: cp}
}

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the null value.
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }

func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == KindNumber }

func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

func (v Value) AsDate() (time.Time, bool) { return v.t, v.kind == KindDate }

// AsArray returns a copy of the array elements.
func (v Value) AsArray() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	cp := make([]Value, len(v.arr))
	copy(cp, v.arr)
	return cp, true
}

// AsObject returns a copy of the object members.
func (v Value) AsObject() (map[string]Value, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	cp := make(map[string]Value, len(v.obj))
	for k, m := range v.obj {
		cp[k] = m
	}
	return cp, true
}

// Valid reports whether v can be ordered and encoded. Numbers must be finite.
func (v Value) Valid() bool {
	switch v.kind {
	case KindNull, KindString, KindBool, KindDate:
		return true
	case KindNumber:
		return !math.IsNaN(v.num) && !math.IsInf(v.num, 0)
	case KindArray:
		for _, e := range v.arr {
			if !e.Valid() {
				return false
			}
		}
		return true
	case KindObject:
		for _, e := range v.obj {
			if !e.Valid() {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Equal reports whether a and b hold the same kind and the same content.
func Equal(a, b Value) bool {
	return Compare(a, b) == 0
}

// Compare defines a total order over values: first by kind, then by content.
// Arrays compare element-wise, objects compare by sorted member names and
// then member values.
func Compare(a, b Value) int {
	if a.kind != b.kind {
		if a.kind < b.kind {
			return -1
		}
		return 1
	}

	switch a.kind {
	case KindString:
		return strings.Compare(a.str, b.str)
	case KindNumber:
		switch {
		case a.num < b.num:
			return -1
		case a.num > b.num:
			return 1
		}
		return 0
	case KindBool:
		switch {
		case a.b == b.b:
			return 0
		case !a.b:
			return -1
		}
		return 1
	case KindDate:
		return a.t.Compare(b.t)
	case KindArray:
		for i := 0; i < len(a.arr) && i < len(b.arr); i++ {
			if c := Compare(a.arr[i], b.arr[i]); c != 0 {
				return c
			}
		}
		return compareInt(len(a.arr), len(b.arr))
	case KindObject:
		ak, bk := sortedKeys(a.obj), sortedKeys(b.obj)
		for i := 0; i < len(ak) && i < len(bk); i++ {
			if c := strings.Compare(ak[i], bk[i]); c != 0 {
				return c
			}
			if c := Compare(a.obj[ak[i]], b.obj[bk[i]]); c != 0 {
				return c
			}
		}
		return compareInt(len(ak), len(bk))
	}

	return 0
}

// Sort orders vs in place by Compare.
func Sort(vs []Value) {
	sort.SliceStable(vs, func(i, j int) bool {
		return Compare(vs[i], vs[j]) < 0
	})
}

// String renders v for logs and CLI output. It is not a stable encoding;
// use Canonical for that.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindString:
		return v.str
	case KindNumber:
		return formatNumber(v.num)
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindDate:
		return v.t.Format(time.RFC3339Nano)
	default:
		return v.Canonical()
	}
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func sortedKeys(m map[string]Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
