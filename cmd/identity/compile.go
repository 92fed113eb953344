package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"

	"github.com/boshu2/identityctl/internal/docstore"
)

var compileCheck bool

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Write the runtime brief (IDENTITY_COMPILED.md)",
	RunE:  runCompile,
}

func init() {
	compileCmd.Flags().BoolVar(&compileCheck, "check", false, "fail if the compiled output would change")
	rootCmd.AddCommand(compileCmd)
}

// runCompile writes identity/runtime/IDENTITY_COMPILED.md, grounded on
// compile_identity_runtime.py's catalog-default -> CURRENT_TASK.json ->
// hard_guardrails/objective/state brief, supplemented with any
// "Active Hard Guardrails" bullet list parsed out of IDENTITY_PROTOCOL.md so
// the brief also surfaces guardrails the catalog policy block omits.
func runCompile(cmd *cobra.Command, args []string) error {
	store := docstore.New()
	cat, err := store.LoadCatalog(cfg.Catalog)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	if cat.DefaultIdentity == "" {
		return fmt.Errorf("invalid catalog: default_identity missing")
	}

	var active *docstore.CatalogEntry
	for i := range cat.Identities {
		if cat.Identities[i].ID == cat.DefaultIdentity {
			active = &cat.Identities[i]
			break
		}
	}
	if active == nil {
		return fmt.Errorf("default_identity not found in identities: %s", cat.DefaultIdentity)
	}

	taskPath := filepath.Join(active.PackPath, "CURRENT_TASK.json")
	if _, err := os.Stat(taskPath); err != nil {
		legacy := filepath.Join(cfg.PackRoot, active.ID, "CURRENT_TASK.json")
		if _, legacyErr := os.Stat(legacy); legacyErr == nil {
			taskPath = legacy
		}
	}
	tr, _, err := store.LoadTaskRecord(taskPath)
	if err != nil {
		return fmt.Errorf("CURRENT_TASK.json not found: %w", err)
	}

	guardrails := hardGuardrailsFrom(active)
	if protocolPath := filepath.Join(filepath.Dir(cfg.Catalog), "..", "protocol", "IDENTITY_PROTOCOL.md"); fileExists(protocolPath) {
		if extra, err := extraGuardrailsFromProtocol(protocolPath); err == nil {
			guardrails = mergeUnique(guardrails, extra)
		}
	}

	content := renderBrief(active.ID, guardrails, tr.Objective.Title, tr.StateMachine.CurrentState, cfg.Catalog, taskPath)

	outPath := cfg.CompiledPath()
	if compileCheck {
		existing, readErr := os.ReadFile(outPath)
		if readErr != nil || string(existing) != content {
			return fmt.Errorf("compiled output at %s is stale", outPath)
		}
		printLine("OK", "%s is up to date", outPath)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0700); err != nil {
		return fmt.Errorf("create runtime directory: %w", err)
	}
	if err := os.WriteFile(outPath, []byte(content), 0600); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}
	printLine("OK", "wrote %s", outPath)
	return nil
}

func hardGuardrailsFrom(entry *docstore.CatalogEntry) []string {
	gov, ok := entry.Policy["governance"].(map[string]any)
	if !ok {
		return nil
	}
	raw, ok := gov["hard_guardrails"].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, g := range raw {
		if s, ok := g.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// extraGuardrailsFromProtocol parses IDENTITY_PROTOCOL.md with goldmark and
// returns the list items under the first "Active Hard Guardrails" heading.
func extraGuardrailsFromProtocol(path string) ([]string, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	)
	doc := md.Parser().Parse(text.NewReader(source))

	var (
		items        []string
		inSection    bool
		sectionLevel int
	)
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			title := strings.ToLower(headingText(node, source))
			if strings.Contains(title, "active hard guardrails") {
				inSection = true
				sectionLevel = node.Level
				return ast.WalkContinue, nil
			}
			if inSection && node.Level <= sectionLevel {
				inSection = false
			}
		case *ast.ListItem:
			if inSection {
				items = append(items, strings.TrimSpace(listItemText(node, source)))
			}
		}
		return ast.WalkContinue, nil
	})
	return items, nil
}

func headingText(h *ast.Heading, source []byte) string {
	var b strings.Builder
	for c := h.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			b.Write(t.Segment.Value(source))
		}
	}
	return strings.TrimSpace(b.String())
}

func listItemText(li *ast.ListItem, source []byte) string {
	var b strings.Builder
	ast.Walk(li, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := n.(*ast.Text); ok {
			b.Write(t.Segment.Value(source))
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

func mergeUnique(base, extra []string) []string {
	seen := make(map[string]bool, len(base))
	for _, g := range base {
		seen[g] = true
	}
	out := append([]string(nil), base...)
	for _, g := range extra {
		if g == "" || seen[g] {
			continue
		}
		seen[g] = true
		out = append(out, g)
	}
	return out
}

// renderBrief reproduces compile_identity_runtime.py's exact section order
// and bullet formatting, generalized to accept a merged guardrail list.
func renderBrief(identityID string, guardrails []string, objective, state, catalogPath, taskPath string) string {
	var b strings.Builder
	b.WriteString("# Identity Runtime Brief\n\n")
	fmt.Fprintf(&b, "Active identity: %s\n\n", identityID)
	b.WriteString("This file is generated/maintained by identity runtime tooling.\n\n")
	b.WriteString("Hard guardrails:\n")
	if len(guardrails) == 0 {
		b.WriteString("- (none)\n")
	} else {
		for _, g := range guardrails {
			fmt.Fprintf(&b, "- %s\n", g)
		}
	}
	b.WriteString("\nCurrent objective:\n")
	obj := objective
	if obj == "" {
		obj = "(not set)"
	}
	fmt.Fprintf(&b, "- %s\n", obj)
	b.WriteString("\nCurrent state:\n")
	if state == "" {
		state = "unknown"
	}
	fmt.Fprintf(&b, "- %s\n", state)
	b.WriteString("\nSee source:\n")
	fmt.Fprintf(&b, "- %s\n", filepath.ToSlash(catalogPath))
	fmt.Fprintf(&b, "- %s\n", filepath.ToSlash(taskPath))
	return strings.TrimSpace(b.String()) + "\n"
}
