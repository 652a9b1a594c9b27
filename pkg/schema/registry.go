package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Store persists schema versions and activations. Lookups of a missing
// schema or activation must return an error wrapping ErrSchemaNotFound.
type Store interface {
	InsertSchema(ctx context.Context, def *Definition) error
	GetSchema(ctx context.Context, typ, version, ownerScope string) (*Definition, error)
	ListSchemas(ctx context.Context, typ, ownerScope string) ([]*Definition, error)

	PutActivation(ctx context.Context, a *Activation) error
	DeleteActivation(ctx context.Context, typ, ownerScope string) error
	GetActivation(ctx context.Context, typ, ownerScope string) (*Activation, error)
}

// Registry validates, stores and activates schema definitions.
// Administrative operations are serialized; LoadActive is lock free.
type Registry struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock overrides the registry's time source.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry creates a Registry over store.
func NewRegistry(store Store, logger *slog.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register validates and stores a new schema version. It does not activate it.
func (r *Registry) Register(ctx context.Context, def *Definition) (*Definition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.register(ctx, def)
}

func (r *Registry) register(ctx context.Context, def *Definition) (*Definition, error) {
	if def == nil {
		return nil, fmt.Errorf("%w: nil definition", ErrSchemaValidationFailed)
	}

	def = def.Clone()
	if err := def.Validate(); err != nil {
		return nil, err
	}

	version, _ := ParseVersion(def.Version)
	def.Version = version.String()

	_, err := r.store.GetSchema(ctx, def.Type, def.Version, def.OwnerScope)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: %s %s already registered", ErrSchemaValidationFailed, def.Type, def.Version)
	case !errors.Is(err, ErrSchemaNotFound):
		return nil, fmt.Errorf("checking existing schema: %w", err)
	}

	latest, err := r.latest(ctx, def.Type, def.OwnerScope)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		if err := checkEvolution(latest, def); err != nil {
			return nil, err
		}
	}

	def.CreatedAt = r.now().UTC()
	if err := r.store.InsertSchema(ctx, def); err != nil {
		return nil, fmt.Errorf("storing schema: %w", err)
	}

	r.logger.Info("schema registered",
		"type", def.Type,
		"version", def.Version,
		"owner_scope", def.OwnerScope,
		"fields", len(def.Fields),
	)

	return def.Clone(), nil
}

// Activate makes version the single active version for (typ, ownerScope).
func (r *Registry) Activate(ctx context.Context, typ, version, ownerScope string) (*Activation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.activate(ctx, typ, version, ownerScope)
}

func (r *Registry) activate(ctx context.Context, typ, version, ownerScope string) (*Activation, error) {
	v, err := ParseVersion(version)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchemaValidationFailed, err)
	}

	if _, err := r.store.GetSchema(ctx, typ, v.String(), ownerScope); err != nil {
		return nil, err
	}

	a := &Activation{
		Type:        typ,
		OwnerScope:  ownerScope,
		Version:     v.String(),
		ActivatedAt: r.now().UTC(),
	}
	if err := r.store.PutActivation(ctx, a); err != nil {
		return nil, fmt.Errorf("storing activation: %w", err)
	}

	r.logger.Info("schema activated",
		"type", typ,
		"version", a.Version,
		"owner_scope", ownerScope,
	)

	return a, nil
}

// Deactivate clears the activation of version for (typ, ownerScope). It is an
// error if version is not the active one.
func (r *Registry) Deactivate(ctx context.Context, typ, version, ownerScope string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, err := ParseVersion(version)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSchemaValidationFailed, err)
	}

	active, err := r.store.GetActivation(ctx, typ, ownerScope)
	if err != nil {
		return err
	}
	if active.Version != v.String() {
		return fmt.Errorf("%w: %s %s is not active (active: %s)", ErrSchemaVersionConflict, typ, v, active.Version)
	}

	if err := r.store.DeleteActivation(ctx, typ, ownerScope); err != nil {
		return fmt.Errorf("clearing activation: %w", err)
	}

	r.logger.Info("schema deactivated", "type", typ, "version", active.Version, "owner_scope", ownerScope)
	return nil
}

// LoadActive resolves the schema in force for typ: the owner's own active
// version if one exists, else the global one.
func (r *Registry) LoadActive(ctx context.Context, typ, ownerScope string) (*Definition, error) {
	scopes := []string{""}
	if ownerScope != "" {
		scopes = []string{ownerScope, ""}
	}

	for _, scope := range scopes {
		a, err := r.store.GetActivation(ctx, typ, scope)
		if errors.Is(err, ErrSchemaNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("loading activation: %w", err)
		}
		return r.store.GetSchema(ctx, typ, a.Version, scope)
	}

	return nil, fmt.Errorf("%w: no active schema for %q", ErrSchemaNotFound, typ)
}

// Get returns one registered version.
func (r *Registry) Get(ctx context.Context, typ, version, ownerScope string) (*Definition, error) {
	v, err := ParseVersion(version)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchemaValidationFailed, err)
	}
	return r.store.GetSchema(ctx, typ, v.String(), ownerScope)
}

// List returns every registered version for (typ, ownerScope), oldest first.
func (r *Registry) List(ctx context.Context, typ, ownerScope string) ([]*Definition, error) {
	defs, err := r.store.ListSchemas(ctx, typ, ownerScope)
	if err != nil {
		return nil, err
	}
	sortDefinitions(defs)
	return defs, nil
}

// UpdateIncremental derives the next minor version from the active schema,
// adds the given fields as optional, and activates the result immediately.
// Existing observations are read under the new version lazily.
func (r *Registry) UpdateIncremental(
	ctx context.Context,
	typ, ownerScope string,
	fields map[string]FieldDef,
	policies map[string]MergePolicy,
) (*Definition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	base, err := r.LoadActive(ctx, typ, ownerScope)
	if err != nil {
		return nil, err
	}

	next := base.Clone()
	next.OwnerScope = ownerScope
	changed := false

	for name, f := range fields {
		f.Required = false
		existing, ok := next.Fields[name]
		if ok {
			if existing.Type != f.Type {
				return nil, fmt.Errorf("%w: field %q is %s, cannot add it as %s",
					ErrSchemaVersionConflict, name, existing.Type, f.Type)
			}
			continue
		}
		next.Fields[name] = f
		changed = true
	}

	for name, p := range policies {
		if current, ok := next.Policies[name]; ok && current == p {
			continue
		}
		next.Policies[name] = p
		changed = true
	}

	if !changed {
		return base, nil
	}

	version, err := r.nextMinor(ctx, base, typ, ownerScope)
	if err != nil {
		return nil, err
	}
	next.Version = version.String()

	registered, err := r.register(ctx, next)
	if err != nil {
		return nil, err
	}
	if _, err := r.activate(ctx, typ, registered.Version, ownerScope); err != nil {
		return nil, err
	}

	return registered, nil
}

// nextMinor picks the next minor version after both the base and anything
// already registered in the target scope.
func (r *Registry) nextMinor(ctx context.Context, base *Definition, typ, ownerScope string) (Version, error) {
	v := MustParseVersion(base.Version)

	latest, err := r.latest(ctx, typ, ownerScope)
	if err != nil {
		return Version{}, err
	}
	if latest != nil {
		lv := MustParseVersion(latest.Version)
		if lv.Compare(v) > 0 {
			v = lv
		}
	}

	return v.NextMinor(), nil
}

func (r *Registry) latest(ctx context.Context, typ, ownerScope string) (*Definition, error) {
	defs, err := r.store.ListSchemas(ctx, typ, ownerScope)
	if err != nil {
		return nil, fmt.Errorf("listing schemas: %w", err)
	}
	if len(defs) == 0 {
		return nil, nil
	}
	sortDefinitions(defs)
	return defs[len(defs)-1], nil
}

// checkEvolution enforces that versions only move forward and that
// non-major bumps are additive.
func checkEvolution(prev, next *Definition) error {
	pv := MustParseVersion(prev.Version)
	nv := MustParseVersion(next.Version)

	if nv.Compare(pv) <= 0 {
		return fmt.Errorf("%w: %s %s does not advance past %s", ErrSchemaVersionConflict, next.Type, nv, pv)
	}
	if nv.Major != pv.Major {
		return nil
	}

	for _, name := range prev.FieldNames() {
		f, ok := next.Fields[name]
		if !ok {
			return fmt.Errorf("%w: %s removes field %q without a major version bump",
				ErrSchemaVersionConflict, nv, name)
		}
		if f.Type != prev.Fields[name].Type {
			return fmt.Errorf("%w: %s retypes field %q without a major version bump",
				ErrSchemaVersionConflict, nv, name)
		}
	}

	return nil
}
