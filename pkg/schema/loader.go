package schema

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// File is the on-disk form of a schema definition, in YAML or TOML:
//
//	type: company
//	version: 1.0.0
//	activate: true
//	fields:
//	  name: {type: string, required: true}
//	  amount: {type: number, converters: [string_to_number]}
//	merge_policies:
//	  name: {strategy: highest_priority}
type File struct {
	Type       string                 `yaml:"type" toml:"type"`
	Version    string                 `yaml:"version" toml:"version"`
	OwnerScope string                 `yaml:"owner_scope,omitempty" toml:"owner_scope,omitempty"`
	Activate   bool                   `yaml:"activate,omitempty" toml:"activate,omitempty"`
	Fields     map[string]FieldDef    `yaml:"fields" toml:"fields"`
	Policies   map[string]MergePolicy `yaml:"merge_policies,omitempty" toml:"merge_policies,omitempty"`
}

// IsSchemaFile reports whether path has an extension ParseFile understands.
func IsSchemaFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".toml":
		return true
	}
	return false
}

// ParseFile decodes data according to the extension of name.
func ParseFile(name string, data []byte) (*File, error) {
	f := &File{}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, f); err != nil {
			return nil, fmt.Errorf("parsing schema YAML %s: %w", name, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, f); err != nil {
			return nil, fmt.Errorf("parsing schema TOML %s: %w", name, err)
		}
	default:
		return nil, fmt.Errorf("unsupported schema file %s", name)
	}

	return f, nil
}

// LoadFile reads and parses one schema file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema file: %w", err)
	}
	return ParseFile(path, data)
}

// Definition converts the file into a Definition.
func (f *File) Definition() *Definition {
	def := &Definition{
		Type:       f.Type,
		Version:    f.Version,
		OwnerScope: f.OwnerScope,
		Fields:     make(map[string]FieldDef, len(f.Fields)),
		Policies:   make(map[string]MergePolicy, len(f.Policies)),
	}
	for name, fd := range f.Fields {
		def.Fields[name] = fd
	}
	for name, p := range f.Policies {
		def.Policies[name] = p
	}
	return def
}

// Apply registers the file's definition, treating an already registered
// version as applied, and activates it when the file asks for it.
func (r *Registry) Apply(ctx context.Context, f *File) (*Definition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	def := f.Definition()
	if err := def.Validate(); err != nil {
		return nil, err
	}
	def.Version = MustParseVersion(def.Version).String()

	stored, err := r.store.GetSchema(ctx, def.Type, def.Version, def.OwnerScope)
	switch {
	case errors.Is(err, ErrSchemaNotFound):
		stored, err = r.register(ctx, def)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("checking existing schema: %w", err)
	}

	if !f.Activate {
		return stored, nil
	}

	active, err := r.store.GetActivation(ctx, def.Type, def.OwnerScope)
	if err == nil && active.Version == stored.Version {
		return stored, nil
	}
	if err != nil && !errors.Is(err, ErrSchemaNotFound) {
		return nil, fmt.Errorf("loading activation: %w", err)
	}

	if _, err := r.activate(ctx, stored.Type, stored.Version, stored.OwnerScope); err != nil {
		return nil, err
	}
	return stored, nil
}

// ApplyDir applies every schema file in dir in lexical file name order.
func (r *Registry) ApplyDir(ctx context.Context, dir string) ([]*Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading schema dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && IsSchemaFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	applied := make([]*Definition, 0, len(names))
	for _, name := range names {
		f, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return applied, err
		}
		def, err := r.Apply(ctx, f)
		if err != nil {
			return applied, fmt.Errorf("applying %s: %w", name, err)
		}
		applied = append(applied, def)
	}

	return applied, nil
}
