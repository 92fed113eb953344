package main

import (
	"path/filepath"
	"testing"

	"github.com/boshu2/identityctl/internal/docstore"
)

func TestRunStatus_ReportsCatalogAndTaskState(t *testing.T) {
	c := withTestConfig(t)
	store := docstore.New()

	packDir := filepath.Join(c.PackRoot, "status-id")
	taskPath := filepath.Join(packDir, "CURRENT_TASK.json")
	tr := defaultTaskRecord("status-id", "Status Id", "verify status output", "minimal")
	tr.StateMachine.CurrentState = "execute"
	if err := store.SaveTaskRecord(taskPath, tr); err != nil {
		t.Fatal(err)
	}

	cat := &docstore.Catalog{
		DefaultIdentity: "status-id",
		Identities: []docstore.CatalogEntry{
			{ID: "status-id", Title: "Status Id", Status: "active", PackPath: packDir},
		},
	}
	if err := store.SaveCatalog(c.Catalog, cat); err != nil {
		t.Fatal(err)
	}

	statusIdentityID = "status-id"
	defer func() { statusIdentityID = "" }()
	flagJSON = false

	if err := runStatus(statusCmd, nil); err != nil {
		t.Fatalf("runStatus: %v", err)
	}
}

func TestRunStatus_UnknownIdentityErrors(t *testing.T) {
	withTestConfig(t)
	statusIdentityID = "does-not-exist"
	defer func() { statusIdentityID = "" }()

	if err := runStatus(statusCmd, nil); err == nil {
		t.Error("expected error for unknown identity id")
	}
}

func TestRunList_EmptyCatalogSucceeds(t *testing.T) {
	withTestConfig(t)
	flagJSON = false
	if err := runList(listCmd, nil); err != nil {
		t.Fatalf("runList: %v", err)
	}
}

func TestRunList_JSONMode(t *testing.T) {
	c := withTestConfig(t)
	store := docstore.New()
	cat := &docstore.Catalog{
		Identities: []docstore.CatalogEntry{{ID: "a", Status: "active"}, {ID: "b", Status: "inactive"}},
	}
	if err := store.SaveCatalog(c.Catalog, cat); err != nil {
		t.Fatal(err)
	}

	flagJSON = true
	defer func() { flagJSON = false }()
	if err := runList(listCmd, nil); err != nil {
		t.Fatalf("runList: %v", err)
	}
}
