package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/boshu2/identityctl/internal/config"
	"github.com/boshu2/identityctl/internal/diag"
	"github.com/boshu2/identityctl/internal/docstore"
)

// withTestConfig points the package-level cfg/log state at a scratch
// directory so CLI handlers can be exercised without touching the real
// filesystem roots, mirroring how config.Load would resolve a project-local
// catalog/pack-root/runtime-root for a fresh identity/ tree.
func withTestConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	c := config.Default()
	c.Catalog = filepath.Join(dir, "identity", "catalog", "identities.yaml")
	c.PackRoot = filepath.Join(dir, "identity", "packs")
	c.RuntimeRoot = filepath.Join(dir, "identity", "runtime")

	store := docstore.New()
	if err := os.MkdirAll(filepath.Dir(c.Catalog), 0700); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveCatalog(c.Catalog, &docstore.Catalog{Version: "1"}); err != nil {
		t.Fatal(err)
	}

	cfg = c
	log = diag.New(io.Discard, false)
	return c
}

func TestRunInit_CreatesPackFilesAndRegistersInCatalog(t *testing.T) {
	withTestConfig(t)

	initID = "test-identity"
	initTitle = "Test Identity"
	initDescription = "a scratch identity for tests"
	initProfile = "full-contract"
	initRegister = true
	initActivate = true
	initSetDefault = true
	defer func() {
		initID, initTitle, initDescription = "", "", ""
		initRegister, initActivate, initSetDefault = false, false, false
	}()

	if err := runInit(initCmd, nil); err != nil {
		t.Fatalf("runInit: %v", err)
	}

	packDir := filepath.Join(cfg.PackRoot, initID)
	for _, name := range []string{"META.yaml", "IDENTITY_PROMPT.md", "CURRENT_TASK.json", "TASK_HISTORY.md", "RULEBOOK.jsonl", filepath.Join("agents", "identity.yaml")} {
		if _, err := os.Stat(filepath.Join(packDir, name)); err != nil {
			t.Errorf("expected %s to exist: %v", name, err)
		}
	}

	store := docstore.New()
	cat, err := store.LoadCatalog(cfg.Catalog)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	if cat.DefaultIdentity != initID {
		t.Errorf("default_identity = %q, want %q", cat.DefaultIdentity, initID)
	}
	found := false
	for _, e := range cat.Identities {
		if e.ID == initID {
			found = true
			if e.Status != "active" {
				t.Errorf("status = %q, want active", e.Status)
			}
		}
	}
	if !found {
		t.Error("expected identity to be registered in catalog")
	}

	tr, _, err := store.LoadTaskRecord(filepath.Join(packDir, "CURRENT_TASK.json"))
	if err != nil {
		t.Fatalf("load task record: %v", err)
	}
	if tr.Objective.Title != initDescription {
		t.Errorf("objective title = %q, want %q", tr.Objective.Title, initDescription)
	}
	if tr.ProtocolReviewContract == nil {
		t.Error("expected full-contract profile to populate ProtocolReviewContract")
	}
}

func TestRunInit_RejectsExistingNonEmptyPackDir(t *testing.T) {
	withTestConfig(t)

	initID = "dup-identity"
	initTitle = "Dup"
	initDescription = "dup"
	initProfile = "full-contract"
	initRegister = false
	defer func() { initID, initTitle, initDescription = "", "", "" }()

	if err := runInit(initCmd, nil); err != nil {
		t.Fatalf("first runInit: %v", err)
	}
	if err := runInit(initCmd, nil); err == nil {
		t.Error("expected second runInit over the same pack dir to fail")
	}
}

func TestRunActivate_SetsStatusActive(t *testing.T) {
	c := withTestConfig(t)
	store := docstore.New()
	cat := &docstore.Catalog{
		DefaultIdentity: "other",
		Identities: []docstore.CatalogEntry{
			{ID: "target", Status: "inactive"},
			{ID: "other", Status: "active"},
		},
	}
	if err := store.SaveCatalog(c.Catalog, cat); err != nil {
		t.Fatal(err)
	}

	activateIdentityID = "target"
	defer func() { activateIdentityID = "" }()

	if err := runActivate(activateCmd, nil); err != nil {
		t.Fatalf("runActivate: %v", err)
	}

	got, err := store.LoadCatalog(c.Catalog)
	if err != nil {
		t.Fatal(err)
	}
	if got.DefaultIdentity != "other" {
		t.Errorf("activate must not change default_identity, got %q", got.DefaultIdentity)
	}
	for _, e := range got.Identities {
		if e.ID == "target" && e.Status != "active" {
			t.Errorf("target status = %q, want active", e.Status)
		}
	}
}

func TestRunActivate_UnknownIdentityErrors(t *testing.T) {
	withTestConfig(t)
	activateIdentityID = "does-not-exist"
	defer func() { activateIdentityID = "" }()

	if err := runActivate(activateCmd, nil); err == nil {
		t.Error("expected error for unknown identity id")
	}
}

func TestFirstThenFresh(t *testing.T) {
	gen := firstThenFresh("fixed-id")
	if got := gen(); got != "fixed-id" {
		t.Errorf("first call = %q, want fixed-id", got)
	}
	second := gen()
	third := gen()
	if second == "fixed-id" || third == "fixed-id" || second == third {
		t.Errorf("subsequent calls must be fresh and distinct: %q, %q", second, third)
	}
}
