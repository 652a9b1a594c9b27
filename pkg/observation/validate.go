package observation

import (
	"sort"

	"github.com/papercomputeco/truthstore/pkg/schema"
	"github.com/papercomputeco/truthstore/pkg/value"
)

// Validation is the outcome of checking incoming fields against a schema.
type Validation struct {
	// Fields holds the values that will be stored on the observation.
	Fields map[string]value.Value

	// Fragments holds everything that did not validate as-is, in field name
	// order, followed by missing-required warnings. Fragments are not stamped
	// with ids or times.
	Fragments []RawFragment
}

// Validate checks fields against def. It never rejects: values that do not
// match are converted when a declared converter succeeds, and otherwise
// preserved as fragments. A nil def keeps every field unvalidated except the
// reserved tombstone field, which must be boolean and is only accepted at the
// rank that may set it (see TombstoneAllowed).
func Validate(fields map[string]value.Value, def *schema.Definition, priority int) Validation {
	out := Validation{Fields: make(map[string]value.Value, len(fields))}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		v := fields[name]

		if name == schema.DeletedField {
			if !TombstoneAllowed(v, priority) {
				out.reject(name, v, ReasonInvalidReserved)
				continue
			}
			out.Fields[name] = v
			continue
		}

		if def == nil {
			out.Fields[name] = v
			continue
		}

		fd, declared := def.Fields[name]
		if !declared {
			out.reject(name, v, ReasonUnknownField)
			continue
		}

		if fd.Type.Accepts(v.Kind()) {
			out.Fields[name] = v
			continue
		}

		converted, applied, err := fd.Convert(v)
		switch {
		case !applied:
			out.reject(name, v, ReasonTypeMismatch)
		case err != nil, !converted.Valid():
			out.reject(name, v, ReasonConversionFailed)
		default:
			out.Fields[name] = converted
			out.reject(name, v, ReasonConverted)
		}
	}

	if def != nil {
		for _, name := range def.FieldNames() {
			if !def.Fields[name].Required {
				continue
			}
			if _, ok := out.Fields[name]; !ok {
				out.reject(name, value.Null(), ReasonMissingRequired)
			}
		}
	}

	return out
}

// TombstoneAllowed reports whether v may be stored as the reserved deleted
// field at priority. A deletion needs correction rank and a restoration needs
// restoration rank, so nothing below those ranks can hide or lift a tombstone.
func TombstoneAllowed(v value.Value, priority int) bool {
	deleted, ok := v.AsBool()
	if !ok {
		return false
	}
	if deleted {
		return priority >= PriorityCorrection
	}
	return priority >= PriorityRestoration
}

func (v *Validation) reject(field string, val value.Value, reason FragmentReason) {
	v.Fragments = append(v.Fragments, RawFragment{
		FieldName:      field,
		Value:          val,
		TypeEnvelope:   val.Kind().String(),
		Reason:         reason,
		FrequencyCount: 1,
	})
}
