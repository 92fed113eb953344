package docstore

import "errors"

var (
	// ErrRootNotMapping is returned when a YAML document is empty or null. A
	// root of another non-mapping kind (a list or a scalar) fails to decode
	// into a mapping and is returned as a parse error instead.
	ErrRootNotMapping = errors.New("document root must be a mapping")

	// ErrEmptyRulebookID is returned when a rulebook row lacks a rule_id.
	ErrEmptyRulebookID = errors.New("rulebook row requires rule_id")

	// ErrNotFound names a missing document. The Store's loaders do not
	// return it; a missing file surfaces as the wrapped os error.
	ErrNotFound = errors.New("document not found")
)
