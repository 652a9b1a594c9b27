package schema

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/papercomputeco/truthstore/pkg/value"
)

// ErrConversion is returned by a converter that cannot convert its input.
var ErrConversion = errors.New("conversion failed")

// Converter is a deterministic, side-effect free conversion from one value
// kind to a field type.
type Converter struct {
	Name string
	From value.Kind
	To   FieldType
	Fn   func(value.Value) (value.Value, error)
}

// dateLayouts are tried in order by string_to_date.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

var converters = map[string]Converter{
	"string_to_number": {
		From: value.KindString,
		To:   TypeNumber,
		Fn: func(v value.Value) (value.Value, error) {
			s, _ := v.AsString()
			cleaned := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
			f, err := strconv.ParseFloat(cleaned, 64)
			if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
				return value.Null(), fmt.Errorf("%w: %q is not a number", ErrConversion, s)
			}
			return value.Number(f), nil
		},
	},
	"string_to_boolean": {
		From: value.KindString,
		To:   TypeBoolean,
		Fn: func(v value.Value) (value.Value, error) {
			s, _ := v.AsString()
			switch strings.ToLower(strings.TrimSpace(s)) {
			case "true", "yes", "y", "1":
				return value.Bool(true), nil
			case "false", "no", "n", "0":
				return value.Bool(false), nil
			}
			return value.Null(), fmt.Errorf("%w: %q is not a boolean", ErrConversion, s)
		},
	},
	"string_to_date": {
		From: value.KindString,
		To:   TypeDate,
		Fn: func(v value.Value) (value.Value, error) {
			s, _ := v.AsString()
			for _, layout := range dateLayouts {
				if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
					return value.Date(t), nil
				}
			}
			return value.Null(), fmt.Errorf("%w: %q is not a date", ErrConversion, s)
		},
	},
	"string_to_array": {
		From: value.KindString,
		To:   TypeArray,
		Fn: func(v value.Value) (value.Value, error) {
			return value.Array(v), nil
		},
	},
	"number_to_string": {
		From: value.KindNumber,
		To:   TypeString,
		Fn: func(v value.Value) (value.Value, error) {
			return value.String(v.String()), nil
		},
	},
	"number_to_date": {
		From: value.KindNumber,
		To:   TypeDate,
		Fn: func(v value.Value) (value.Value, error) {
			f, _ := v.AsNumber()
			if f != float64(int64(f)) {
				return value.Null(), fmt.Errorf("%w: %v is not whole unix seconds", ErrConversion, f)
			}
			return value.Date(time.Unix(int64(f), 0)), nil
		},
	},
	"number_to_array": {
		From: value.KindNumber,
		To:   TypeArray,
		Fn: func(v value.Value) (value.Value, error) {
			return value.Array(v), nil
		},
	},
	"boolean_to_string": {
		From: value.KindBool,
		To:   TypeString,
		Fn: func(v value.Value) (value.Value, error) {
			return value.String(v.String()), nil
		},
	},
	"date_to_string": {
		From: value.KindDate,
		To:   TypeString,
		Fn: func(v value.Value) (value.Value, error) {
			return value.String(v.String()), nil
		},
	},
}

func init() {
	for name, c := range converters {
		c.Name = name
		converters[name] = c
	}
}

// LookupConverter returns the built-in converter registered under name.
func LookupConverter(name string) (Converter, bool) {
	c, ok := converters[name]
	return c, ok
}

// ConverterNames lists the built-in converters in sorted order.
func ConverterNames() []string {
	names := make([]string, 0, len(converters))
	for name := range converters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Convert runs the first converter declared on f that accepts v's kind.
// ok is false when no declared converter applies.
func (f FieldDef) Convert(v value.Value) (converted value.Value, ok bool, err error) {
	for _, name := range f.Converters {
		c, found := LookupConverter(name)
		if !found || c.From != v.Kind() {
			continue
		}
		out, err := c.Fn(v)
		return out, true, err
	}
	return value.Null(), false, nil
}
