package catalog

import "errors"

var (
	// ErrIdentityNotFound is returned when an identity id has no catalog entry.
	ErrIdentityNotFound = errors.New("identity id not found in catalog")

	// ErrPackNotFound is returned when neither pack_path nor the legacy
	// fallback directory exists on disk.
	ErrPackNotFound = errors.New("identity pack not found")

	// ErrNoTargets is returned when target selection resolves to zero entries.
	ErrNoTargets = errors.New("no target identities selected")
)
