package value

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrUnsupported is returned when a Go value has no Value representation.
var ErrUnsupported = errors.New("unsupported value")

// FromAny converts a decoded JSON (or plain Go) value into a Value.
// Strings are never sniffed for dates; use a schema converter for that.
func FromAny(in any) (Value, error) {
	switch t := in.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Number(float64(t)), nil
	case int32:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case uint:
		return Number(float64(t)), nil
	case uint32:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Null(), fmt.Errorf("parsing number %q: %w", t.String(), err)
		}
		return Number(f), nil
	case time.Time:
		return Date(t), nil
	case []string:
		vs := make([]Value, len(t))
		for i, s := range t {
			vs[i] = String(s)
		}
		return Value{kind: KindArray, arr: vs}, nil
	case []any:
		vs := make([]Value, len(t))
		for i, e := range t {
			v, err := FromAny(e)
			if err != nil {
				return Null(), fmt.Errorf("array element %d: %w", i, err)
			}
			vs[i] = v
		}
		return Value{kind: KindArray, arr: vs}, nil
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, e := range t {
			v, err := FromAny(e)
			if err != nil {
				return Null(), fmt.Errorf("object member %q: %w", k, err)
			}
			m[k] = v
		}
		return Value{kind: KindObject, obj: m}, nil
	default:
		return Null(), fmt.Errorf("%w: %T", ErrUnsupported, in)
	}
}

// FromMap converts every member of m with FromAny.
func FromMap(m map[string]any) (map[string]Value, error) {
	out := make(map[string]Value, len(m))
	for k, raw := range m {
		v, err := FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

// ToAny converts v to plain Go values suitable for JSON output. Dates are
// rendered as RFC 3339 strings.
func (v Value) ToAny() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindDate:
		return v.t.Format(time.RFC3339Nano)
	case KindArray:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.ToAny()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for k, e := range v.obj {
			out[k] = e.ToAny()
		}
		return out
	default:
		return nil
	}
}

// ToMap converts every member of m with ToAny.
func ToMap(m map[string]Value) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v.ToAny()
	}
	return out
}

// MarshalJSON renders the plain JSON form of v.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("%w: non-finite number", ErrUnsupported)
	}
	return json.Marshal(v.ToAny())
}

// UnmarshalJSON parses plain JSON into v.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// tagged builds the self-describing representation of v. Every node carries
// its kind so dates survive a storage round trip.
func (v Value) tagged() map[string]any {
	node := map[string]any{"type": v.kind.String()}
	switch v.kind {
	case KindString:
		node["value"] = v.str
	case KindNumber:
		node["value"] = v.num
	case KindBool:
		node["value"] = v.b
	case KindDate:
		node["value"] = v.t.Format(time.RFC3339Nano)
	case KindArray:
		elems := make([]any, len(v.arr))
		for i, e := range v.arr {
			elems[i] = e.tagged()
		}
		node["value"] = elems
	case KindObject:
		members := make(map[string]any, len(v.obj))
		for k, e := range v.obj {
			members[k] = e.tagged()
		}
		node["value"] = members
	}
	return node
}

// MarshalTagged encodes v in the self-describing storage form.
func (v Value) MarshalTagged() ([]byte, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("%w: non-finite number", ErrUnsupported)
	}
	return json.Marshal(v.tagged())
}

type taggedNode struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
}

// UnmarshalTagged decodes the form produced by MarshalTagged.
func UnmarshalTagged(data []byte) (Value, error) {
	var node taggedNode
	if err := json.Unmarshal(data, &node); err != nil {
		return Null(), fmt.Errorf("decoding tagged value: %w", err)
	}

	kind, err := ParseKind(node.Type)
	if err != nil {
		return Null(), err
	}

	switch kind {
	case KindNull:
		return Null(), nil
	case KindString:
		var s string
		if err := json.Unmarshal(node.Value, &s); err != nil {
			return Null(), fmt.Errorf("decoding string: %w", err)
		}
		return String(s), nil
	case KindNumber:
		var f float64
		if err := json.Unmarshal(node.Value, &f); err != nil {
			return Null(), fmt.Errorf("decoding number: %w", err)
		}
		return Number(f), nil
	case KindBool:
		var b bool
		if err := json.Unmarshal(node.Value, &b); err != nil {
			return Null(), fmt.Errorf("decoding boolean: %w", err)
		}
		return Bool(b), nil
	case KindDate:
		var s string
		if err := json.Unmarshal(node.Value, &s); err != nil {
			return Null(), fmt.Errorf("decoding date: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return Null(), fmt.Errorf("parsing date %q: %w", s, err)
		}
		return Date(t), nil
	case KindArray:
		var elems []json.RawMessage
		if err := json.Unmarshal(node.Value, &elems); err != nil {
			return Null(), fmt.Errorf("decoding array: %w", err)
		}
		vs := make([]Value, len(elems))
		for i, raw := range elems {
			e, err := UnmarshalTagged(raw)
			if err != nil {
				return Null(), fmt.Errorf("array element %d: %w", i, err)
			}
			vs[i] = e
		}
		return Value{kind: KindArray, arr: vs}, nil
	case KindObject:
		var members map[string]json.RawMessage
		if err := json.Unmarshal(node.Value, &members); err != nil {
			return Null(), fmt.Errorf("decoding object: %w", err)
		}
		m := make(map[string]Value, len(members))
		for k, raw := range members {
			e, err := UnmarshalTagged(raw)
			if err != nil {
				return Null(), fmt.Errorf("object member %q: %w", k, err)
			}
			m[k] = e
		}
		return Value{kind: KindObject, obj: m}, nil
	}

	return Null(), fmt.Errorf("%w: kind %s", ErrUnsupported, kind)
}

// Canonical returns a deterministic encoding of v. Two values are Equal
// exactly when their canonical encodings match.
func (v Value) Canonical() string {
	data, err := v.MarshalTagged()
	if err != nil {
		return fmt.Sprintf(`{"type":%q,"invalid":true}`, v.kind.String())
	}
	return string(data)
}

// EncodeFields encodes a field map in the tagged storage form.
func EncodeFields(fields map[string]Value) ([]byte, error) {
	nodes := make(map[string]any, len(fields))
	for k, v := range fields {
		if !v.Valid() {
			return nil, fmt.Errorf("field %q: %w: non-finite number", k, ErrUnsupported)
		}
		nodes[k] = v.tagged()
	}
	return json.Marshal(nodes)
}

// DecodeFields decodes a field map produced by EncodeFields.
func DecodeFields(data []byte) (map[string]Value, error) {
	if len(data) == 0 {
		return map[string]Value{}, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding fields: %w", err)
	}

	out := make(map[string]Value, len(raw))
	for k, r := range raw {
		v, err := UnmarshalTagged(r)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
