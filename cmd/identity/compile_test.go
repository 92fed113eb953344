package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/boshu2/identityctl/internal/docstore"
)

func TestMergeUnique(t *testing.T) {
	base := []string{"a", "b"}
	extra := []string{"b", "c", "", "d"}
	got := mergeUnique(base, extra)
	want := []string{"a", "b", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestHardGuardrailsFrom(t *testing.T) {
	entry := &docstore.CatalogEntry{
		Policy: map[string]any{
			"governance": map[string]any{
				"hard_guardrails": []any{"never delete prod data", "always log decisions"},
			},
		},
	}
	got := hardGuardrailsFrom(entry)
	if len(got) != 2 || got[0] != "never delete prod data" {
		t.Errorf("got %v", got)
	}

	if got := hardGuardrailsFrom(&docstore.CatalogEntry{}); got != nil {
		t.Errorf("expected nil for entry with no governance policy, got %v", got)
	}
}

func TestRenderBrief(t *testing.T) {
	content := renderBrief("sample-id", []string{"g1", "g2"}, "ship feature X", "execute", "identity/catalog/identities.yaml", "identity/packs/sample-id/CURRENT_TASK.json")

	for _, want := range []string{
		"# Identity Runtime Brief",
		"Active identity: sample-id",
		"- g1",
		"- g2",
		"ship feature X",
		"execute",
		"identity/catalog/identities.yaml",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("rendered brief missing %q:\n%s", want, content)
		}
	}
}

func TestRenderBrief_EmptyGuardrailsAndObjective(t *testing.T) {
	content := renderBrief("sample-id", nil, "", "", "cat.yaml", "task.json")
	if !strings.Contains(content, "(none)") {
		t.Errorf("expected placeholder for empty guardrails, got:\n%s", content)
	}
	if !strings.Contains(content, "(not set)") {
		t.Errorf("expected placeholder for empty objective, got:\n%s", content)
	}
	if !strings.Contains(content, "unknown") {
		t.Errorf("expected placeholder for empty state, got:\n%s", content)
	}
}

func TestExtraGuardrailsFromProtocol(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "IDENTITY_PROTOCOL.md")
	md := "# Identity Protocol\n\n## Active Hard Guardrails\n\n- never bypass review\n- always emit a receipt\n\n## Other Section\n\n- not a guardrail\n"
	if err := os.WriteFile(path, []byte(md), 0600); err != nil {
		t.Fatal(err)
	}

	got, err := extraGuardrailsFromProtocol(path)
	if err != nil {
		t.Fatalf("extraGuardrailsFromProtocol: %v", err)
	}
	want := []string{"never bypass review", "always emit a receipt"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

