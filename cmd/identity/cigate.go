package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/boshu2/identityctl/internal/catalog"
	"github.com/boshu2/identityctl/internal/cigate"
	"github.com/boshu2/identityctl/internal/docstore"
)

var (
	cigateIdentityID       string
	cigateBase             string
	cigateHead             string
	cigateRequireCIBinding bool
)

var cigateCmd = &cobra.Command{
	Use:   "ci-gate",
	Short: "Enforce the changelog, self-upgrade evidence, and install-provenance rules over a git diff range",
	RunE:  runCIGate,
}

func init() {
	cigateCmd.Flags().StringVar(&cigateIdentityID, "identity-id", "", "identity id (required)")
	cigateCmd.Flags().StringVar(&cigateBase, "base", "", "base git ref (default from CI env: PR_BASE_SHA, GITHUB_BASE_SHA, PUSH_BEFORE_SHA, GITHUB_EVENT_BEFORE)")
	cigateCmd.Flags().StringVar(&cigateHead, "head", "", "head git ref (default from CI env: PR_HEAD_SHA, GITHUB_SHA, else HEAD)")
	cigateCmd.Flags().BoolVar(&cigateRequireCIBinding, "require-ci-binding", false, "require execution_context.generated_by=ci and a matching github_run_id/github_sha")
	_ = cigateCmd.MarkFlagRequired("identity-id")
	rootCmd.AddCommand(cigateCmd)
}

func runCIGate(cmd *cobra.Command, args []string) error {
	base := resolveGitBase(cigateBase)
	head := resolveGitHead(cigateHead)
	if base == "" {
		return fmt.Errorf("--base not set and no PR_BASE_SHA/GITHUB_BASE_SHA/PUSH_BEFORE_SHA/GITHUB_EVENT_BEFORE in the environment")
	}

	store := docstore.New()
	cat, err := store.LoadCatalog(cfg.Catalog)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	resolver := catalog.New(cat, cfg.PackRoot)
	taskPath, err := resolver.ResolveTask(cigateIdentityID)
	if err != nil {
		return err
	}
	tr, _, err := store.LoadTaskRecord(taskPath)
	if err != nil {
		return err
	}

	var requiredChecks []string
	if tr.IdentityUpdateLifecycleContract != nil {
		requiredChecks = tr.IdentityUpdateLifecycleContract.ValidationContract.RequiredChecks
	}

	in := cigate.Input{
		IdentityID:          cigateIdentityID,
		Base:                base,
		Head:                head,
		Store:               store,
		ReportsRoot:         cfg.ReportsDir(),
		RequiredCheckTokens: requiredChecks,
		RequireCIBinding:    cigateRequireCIBinding || cfg.RequireCIBinding,
		CI:                  isTruthyEnv(os.Getenv("CI")),
		GithubRunID:         os.Getenv("GITHUB_RUN_ID"),
		GithubSHA:           os.Getenv("GITHUB_SHA"),
	}
	if tr.InstallProvenanceContract != nil && len(tr.InstallProvenanceContract.OperationsRequired) > 0 {
		in.InstallProvenance = &cigate.InstallProvenanceCheck{
			ReportDir:          cfg.InstallReportsDir(),
			OperationsRequired: tr.InstallProvenanceContract.OperationsRequired,
			WindowHours:        cfg.InstallProvenanceWindowHours,
		}
	}

	result, err := cigate.Run(in)
	if err != nil {
		return err
	}
	if !result.OK {
		for _, reason := range result.Reasons {
			printLine("FAIL", "%s", reason)
		}
		return fmt.Errorf("ci-gate failed for %s..%s: %d reason(s)", base, head, len(result.Reasons))
	}
	printLine("OK", "ci-gate passed for %s..%s", base, head)
	return nil
}

// resolveGitBase falls back through the CI environment variables spec.md
// §6.3 names when --base is not given.
func resolveGitBase(flag string) string {
	if flag != "" {
		return flag
	}
	for _, env := range []string{"PR_BASE_SHA", "GITHUB_BASE_SHA", "PUSH_BEFORE_SHA", "GITHUB_EVENT_BEFORE"} {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	return ""
}

// resolveGitHead falls back through the CI environment variables spec.md
// §6.3 names when --head is not given, defaulting to the working tree HEAD.
func resolveGitHead(flag string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv("PR_HEAD_SHA"); v != "" {
		return v
	}
	if v := os.Getenv("GITHUB_SHA"); v != "" {
		return v
	}
	return "HEAD"
}

func isTruthyEnv(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
