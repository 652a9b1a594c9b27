package observation

import (
	"errors"
	"fmt"
	"strings"
)

// TargetKind distinguishes entity keys from relationship keys.
type TargetKind string

const (
	KindEntity       TargetKind = "entity"
	KindRelationship TargetKind = "relationship"
)

// ErrMalformedKey is returned for target keys that cannot be parsed.
var ErrMalformedKey = errors.New("malformed target key")

const relationshipSep = ":"

// Target identifies what an observation is about. For entities Key is the
// entity id; for relationships Key is "type:source_entity_id:target_entity_id"
// and Type is the relationship type.
type Target struct {
	Kind     TargetKind `json:"kind"`
	Key      string     `json:"key"`
	Type     string     `json:"entity_type"`
	SourceID string     `json:"source_id,omitempty"`
	TargetID string     `json:"target_id,omitempty"`
}

// EntityTarget builds the target for an entity.
func EntityTarget(entityID, entityType string) (Target, error) {
	t := Target{Kind: KindEntity, Key: entityID, Type: entityType}
	return t, t.Validate()
}

// RelationshipTarget builds the target for a relationship between two entities.
func RelationshipTarget(relType, sourceID, targetID string) (Target, error) {
	t := Target{
		Kind:     KindRelationship,
		Key:      RelationshipKey(relType, sourceID, targetID),
		Type:     relType,
		SourceID: sourceID,
		TargetID: targetID,
	}
	return t, t.Validate()
}

// RelationshipKey formats a composite relationship key.
func RelationshipKey(relType, sourceID, targetID string) string {
	return strings.Join([]string{relType, sourceID, targetID}, relationshipSep)
}

// ParseRelationshipKey splits a composite relationship key.
func ParseRelationshipKey(key string) (relType, sourceID, targetID string, err error) {
	parts := strings.Split(key, relationshipSep)
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("%w: relationship key %q must be type:source:target", ErrMalformedKey, key)
	}
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			return "", "", "", fmt.Errorf("%w: relationship key %q has an empty component", ErrMalformedKey, key)
		}
	}
	return parts[0], parts[1], parts[2], nil
}

// ResolveTarget builds a target from a raw key. Keys containing the
// relationship separator are parsed as relationship keys, and entityType
// must then match the relationship type (or be empty).
func ResolveTarget(key, entityType string) (Target, error) {
	if !strings.Contains(key, relationshipSep) {
		return EntityTarget(key, entityType)
	}

	relType, src, dst, err := ParseRelationshipKey(key)
	if err != nil {
		return Target{}, err
	}
	if entityType != "" && entityType != relType {
		return Target{}, fmt.Errorf("%w: relationship key %q has type %q, not %q", ErrMalformedKey, key, relType, entityType)
	}
	return RelationshipTarget(relType, src, dst)
}

// Validate checks the target is well formed.
func (t Target) Validate() error {
	if strings.TrimSpace(t.Key) == "" {
		return fmt.Errorf("%w: empty key", ErrMalformedKey)
	}
	if strings.TrimSpace(t.Type) == "" {
		return fmt.Errorf("%w: empty entity type for %q", ErrMalformedKey, t.Key)
	}

	switch t.Kind {
	case KindEntity:
		if strings.Contains(t.Key, relationshipSep) {
			return fmt.Errorf("%w: entity id %q contains %q", ErrMalformedKey, t.Key, relationshipSep)
		}
	case KindRelationship:
		relType, src, dst, err := ParseRelationshipKey(t.Key)
		if err != nil {
			return err
		}
		if relType != t.Type || src != t.SourceID || dst != t.TargetID {
			return fmt.Errorf("%w: relationship key %q does not match its parts", ErrMalformedKey, t.Key)
		}
	default:
		return fmt.Errorf("%w: unknown target kind %q", ErrMalformedKey, t.Kind)
	}

	return nil
}
