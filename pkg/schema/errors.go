package schema

import "errors"

var (
	// ErrSchemaNotFound is returned when no schema (or no active schema)
	// exists for a type and scope.
	ErrSchemaNotFound = errors.New("schema not found")

	// ErrSchemaValidationFailed covers malformed definitions: bad field,
	// type, converter or policy references and duplicate versions.
	ErrSchemaValidationFailed = errors.New("schema validation failed")

	// ErrSchemaVersionConflict is returned when a version does not advance,
	// or a minor/patch bump removes or retypes a field.
	ErrSchemaVersionConflict = errors.New("schema version conflict")
)
