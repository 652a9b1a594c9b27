// Package schema defines versioned field schemas and per-field merge policies,
// and the Registry that stores, validates and activates them.
package schema

import (
	"fmt"
	"sort"
	"time"

	"github.com/papercomputeco/truthstore/pkg/value"
)

// DeletedField is the reserved tombstone field. It is always boolean and
// always merged with HighestPriority.
const DeletedField = "deleted"

// FieldType is the declared type of a schema field.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeDate    FieldType = "date"
	TypeArray   FieldType = "array"
	TypeObject  FieldType = "object"
	TypeAny     FieldType = "any"
)

var fieldTypeKinds = map[FieldType]value.Kind{
	TypeString:  value.KindString,
	TypeNumber:  value.KindNumber,
	TypeBoolean: value.KindBool,
	TypeDate:    value.KindDate,
	TypeArray:   value.KindArray,
	TypeObject:  value.KindObject,
}

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	if t == TypeAny {
		return true
	}
	_, ok := fieldTypeKinds[t]
	return ok
}

// Accepts reports whether a value of kind k satisfies t. An explicit null
// satisfies every type.
func (t FieldType) Accepts(k value.Kind) bool {
	if t == TypeAny || k == value.KindNull {
		return true
	}
	return fieldTypeKinds[t] == k
}

// Strategy selects how competing observations of one field are merged.
type Strategy string

const (
	LastWrite       Strategy = "last_write"
	HighestPriority Strategy = "highest_priority"
	MostSpecific    Strategy = "most_specific"
	MergeArray      Strategy = "merge_array"
)

func (s Strategy) Valid() bool {
	switch s {
	case LastWrite, HighestPriority, MostSpecific, MergeArray:
		return true
	}
	return false
}

// TieBreaker refines ties left by a strategy before falling back to the
// reducer's recency order.
type TieBreaker string

const (
	TieObservedAt     TieBreaker = "observed_at"
	TieSourcePriority TieBreaker = "source_priority"
	TieSpecificity    TieBreaker = "specificity"
)

func (t TieBreaker) Valid() bool {
	switch t {
	case "", TieObservedAt, TieSourcePriority, TieSpecificity:
		return true
	}
	return false
}

// MergePolicy is the merge configuration of one field.
type MergePolicy struct {
	Strategy   Strategy   `json:"strategy" yaml:"strategy" toml:"strategy"`
	TieBreaker TieBreaker `json:"tie_breaker,omitempty" yaml:"tie_breaker,omitempty" toml:"tie_breaker,omitempty"`
}

// FieldDef declares one field.
type FieldDef struct {
	Type     FieldType `json:"type" yaml:"type" toml:"type"`
	Required bool      `json:"required,omitempty" yaml:"required,omitempty" toml:"required,omitempty"`

	// Converters names the deterministic converters tried, in order, when an
	// incoming value does not match Type.
	Converters []string `json:"converters,omitempty" yaml:"converters,omitempty" toml:"converters,omitempty"`
}

// Definition is one version of the schema for an entity or relationship type.
// An empty OwnerScope is the global schema.
type Definition struct {
	Type       string                 `json:"type"`
	Version    string                 `json:"version"`
	OwnerScope string                 `json:"owner_scope,omitempty"`
	Fields     map[string]FieldDef    `json:"fields"`
	Policies   map[string]MergePolicy `json:"merge_policies,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// Activation records which version is active for a (type, owner scope).
type Activation struct {
	Type        string    `json:"type"`
	OwnerScope  string    `json:"owner_scope,omitempty"`
	Version     string    `json:"version"`
	ActivatedAt time.Time `json:"activated_at"`
}

// PolicyFor returns the merge policy of field, defaulting to LastWrite.
// It is safe to call on a nil Definition.
func (d *Definition) PolicyFor(field string) MergePolicy {
	if field == DeletedField {
		return MergePolicy{Strategy: HighestPriority}
	}
	if d != nil {
		if p, ok := d.Policies[field]; ok && p.Strategy != "" {
			return p
		}
	}
	return MergePolicy{Strategy: LastWrite}
}

// FieldNames returns the declared field names in sorted order.
func (d *Definition) FieldNames() []string {
	names := make([]string, 0, len(d.Fields))
	for name := range d.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy of d.
func (d *Definition) Clone() *Definition {
	if d == nil {
		return nil
	}
	cp := *d
	cp.Fields = make(map[string]FieldDef, len(d.Fields))
	for name, f := range d.Fields {
		f.Converters = append([]string(nil), f.Converters...)
		cp.Fields[name] = f
	}
	cp.Policies = make(map[string]MergePolicy, len(d.Policies))
	for name, p := range d.Policies {
		cp.Policies[name] = p
	}
	return &cp
}

// Validate checks the definition is internally consistent. It does not
// consult other versions; see Registry.Register for that.
func (d *Definition) Validate() error {
	if d.Type == "" {
		return fmt.Errorf("%w: type is required", ErrSchemaValidationFailed)
	}
	if _, err := ParseVersion(d.Version); err != nil {
		return fmt.Errorf("%w: %w", ErrSchemaValidationFailed, err)
	}

	for _, name := range d.FieldNames() {
		f := d.Fields[name]
		if name == "" {
			return fmt.Errorf("%w: empty field name", ErrSchemaValidationFailed)
		}
		if !f.Type.Valid() {
			return fmt.Errorf("%w: field %q has unknown type %q", ErrSchemaValidationFailed, name, f.Type)
		}
		if name == DeletedField && f.Type != TypeBoolean {
			return fmt.Errorf("%w: reserved field %q must be boolean", ErrSchemaValidationFailed, name)
		}
		for _, cname := range f.Converters {
			c, ok := LookupConverter(cname)
			if !ok {
				return fmt.Errorf("%w: field %q references unknown converter %q", ErrSchemaValidationFailed, name, cname)
			}
			if c.To != f.Type && f.Type != TypeAny {
				return fmt.Errorf("%w: converter %q produces %s, field %q is %s",
					ErrSchemaValidationFailed, cname, c.To, name, f.Type)
			}
		}
	}

	policyNames := make([]string, 0, len(d.Policies))
	for name := range d.Policies {
		policyNames = append(policyNames, name)
	}
	sort.Strings(policyNames)

	for _, name := range policyNames {
		p := d.Policies[name]
		if _, ok := d.Fields[name]; !ok {
			return fmt.Errorf("%w: merge policy references undefined field %q", ErrSchemaValidationFailed, name)
		}
		if !p.Strategy.Valid() {
			return fmt.Errorf("%w: field %q has unknown strategy %q", ErrSchemaValidationFailed, name, p.Strategy)
		}
		if !p.TieBreaker.Valid() {
			return fmt.Errorf("%w: field %q has unknown tie breaker %q", ErrSchemaValidationFailed, name, p.TieBreaker)
		}
		if name == DeletedField && p.Strategy != HighestPriority {
			return fmt.Errorf("%w: reserved field %q must use %s", ErrSchemaValidationFailed, name, HighestPriority)
		}
	}

	return nil
}
