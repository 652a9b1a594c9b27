package inmemory

import (
	"context"
	"fmt"
	"strings"

	"github.com/papercomputeco/truthstore/pkg/schema"
)

func schemaKey(parts ...string) string {
	return strings.Join(parts, "\x1f")
}

func (s *store) InsertSchema(_ context.Context, def *schema.Definition) error {
	defer s.lock()()

	k := schemaKey(def.Type, def.OwnerScope, def.Version)
	if _, exists := s.st.schemas[k]; exists {
		return fmt.Errorf("%w: %s %s already stored", schema.ErrSchemaValidationFailed, def.Type, def.Version)
	}
	s.st.schemas[k] = def.Clone()
	return nil
}

func (s *store) GetSchema(_ context.Context, typ, version, ownerScope string) (*schema.Definition, error) {
	defer s.rlock()()

	def, ok := s.st.schemas[schemaKey(typ, ownerScope, version)]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s (owner %q)", schema.ErrSchemaNotFound, typ, version, ownerScope)
	}
	return def.Clone(), nil
}

func (s *store) ListSchemas(_ context.Context, typ, ownerScope string) ([]*schema.Definition, error) {
	defer s.rlock()()

	var out []*schema.Definition
	for _, def := range s.st.schemas {
		if def.Type == typ && def.OwnerScope == ownerScope {
			out = append(out, def.Clone())
		}
	}
	return out, nil
}

func (s *store) PutActivation(_ context.Context, a *schema.Activation) error {
	defer s.lock()()

	cp := *a
	s.st.activations[schemaKey(a.Type, a.OwnerScope)] = &cp
	return nil
}

func (s *store) DeleteActivation(_ context.Context, typ, ownerScope string) error {
	defer s.lock()()

	delete(s.st.activations, schemaKey(typ, ownerScope))
	return nil
}

func (s *store) GetActivation(_ context.Context, typ, ownerScope string) (*schema.Activation, error) {
	defer s.rlock()()

	a, ok := s.st.activations[schemaKey(typ, ownerScope)]
	if !ok {
		return nil, fmt.Errorf("%w: nothing active for %s (owner %q)", schema.ErrSchemaNotFound, typ, ownerScope)
	}
	cp := *a
	return &cp, nil
}
