// Package catalog resolves identity ids to pack directories and selects
// target identities for batch operations (SelectTargets). Generalized from the teacher's learning-ID resolution cascade
// (internal/resolver.FileResolver: direct path -> fallback -> walk-up search)
// to catalog-entry pack_path resolution with the engine's legacy fallback.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/boshu2/identityctl/internal/docstore"
)

// Resolver resolves identity ids against a loaded catalog.
type Resolver struct {
	cat      *docstore.Catalog
	packRoot string
}

// New creates a Resolver over an already-loaded catalog. packRoot is the
// legacy fallback root (identity/packs) used when a catalog entry's
// pack_path is empty or does not exist on disk.
func New(cat *docstore.Catalog, packRoot string) *Resolver {
	return &Resolver{cat: cat, packRoot: packRoot}
}

// Entry returns the catalog entry for id.
func (r *Resolver) Entry(id string) (*docstore.CatalogEntry, error) {
	for i := range r.cat.Identities {
		if strings.TrimSpace(r.cat.Identities[i].ID) == id {
			return &r.cat.Identities[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrIdentityNotFound, id)
}

// ResolvePack resolves an identity id to its pack directory: the catalog
// entry's pack_path if it exists, else <packRoot>/<id>.
func (r *Resolver) ResolvePack(id string) (string, error) {
	entry, err := r.Entry(id)
	if err != nil {
		return "", err
	}

	if pp := strings.TrimSpace(entry.PackPath); pp != "" {
		if _, statErr := os.Stat(pp); statErr == nil {
			return pp, nil
		}
	}

	legacy := filepath.Join(r.packRoot, id)
	if _, statErr := os.Stat(legacy); statErr == nil {
		return legacy, nil
	}

	return "", fmt.Errorf("%w: %s", ErrPackNotFound, id)
}

// ResolveTask resolves an identity id to its CURRENT_TASK.json path.
func (r *Resolver) ResolveTask(id string) (string, error) {
	pack, err := r.ResolvePack(id)
	if err != nil {
		return "", err
	}
	path := filepath.Join(pack, "CURRENT_TASK.json")
	if _, statErr := os.Stat(path); statErr != nil {
		return "", fmt.Errorf("CURRENT_TASK.json not found for identity %s: %w", id, statErr)
	}
	return path, nil
}

// TargetSelection narrows select_targets to a subset of the catalog.
type TargetSelection struct {
	IdentityID string // if set, select exactly this one
	All        bool   // if true (and IdentityID unset), select every entry
}

// SelectTargets resolves the set of catalog entries an operation should run
// against: a single named identity, every identity (sel.All), or
// the default "active only, else default_identity" behavior.
func (r *Resolver) SelectTargets(sel TargetSelection) ([]docstore.CatalogEntry, error) {
	if sel.IdentityID != "" {
		entry, err := r.Entry(sel.IdentityID)
		if err != nil {
			return nil, err
		}
		return []docstore.CatalogEntry{*entry}, nil
	}

	if sel.All {
		if len(r.cat.Identities) == 0 {
			return nil, ErrNoTargets
		}
		return append([]docstore.CatalogEntry(nil), r.cat.Identities...), nil
	}

	var active []docstore.CatalogEntry
	for _, e := range r.cat.Identities {
		if strings.EqualFold(strings.TrimSpace(e.Status), "active") {
			active = append(active, e)
		}
	}
	if len(active) > 0 {
		return active, nil
	}

	if r.cat.DefaultIdentity != "" {
		entry, err := r.Entry(r.cat.DefaultIdentity)
		if err == nil {
			return []docstore.CatalogEntry{*entry}, nil
		}
	}

	return nil, ErrNoTargets
}
