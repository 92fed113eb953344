// Package cigate implements the CI Enforcement Gate: given a git diff
// range, it finds touched identity-core files and requires a matching,
// well-formed execution report (or install report) in the same diff, with
// SHA-256-verified check logs and optional CI-context binding. Grounded on
// validate_identity_self_upgrade_enforcement.py (git-diff algorithm,
// identity-core path matching, check-log sha verification) and
// validate_identity_install_provenance.py (24h operation-chain window).
package cigate

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/boshu2/identityctl/internal/docstore"
	"github.com/boshu2/identityctl/internal/upgrade"
)

// Differ resolves the set of files changed between two git refs. Grounded
// on design note §9: "prefer invoking validators as in-process functions;
// fall back to a sub-process shim only for validators that must observe
// file timestamps via git" — the gate is exactly such a validator.
type Differ interface {
	ChangedFiles(base, head string) ([]string, error)
}

// GitDiffer shells out to `git diff --name-only base..head`.
type GitDiffer struct{}

// ChangedFiles implements Differ.
func (GitDiffer) ChangedFiles(base, head string) ([]string, error) {
	cmd := exec.Command("git", "diff", "--name-only", base+".."+head)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git diff %s..%s: %w", base, head, err)
	}
	var files []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// significantPrefixes and significantBasenames define the "significant" file
// set for the changelog rule (spec §4.8 point 2).
var significantPrefixes = []string{
	"identity/", "scripts/", "skills/", ".github/workflows/", "docs/references/",
}
var significantBasenames = []string{"README.md", "CHANGELOG.md"}
var exemptPrefixes = []string{"docs/governance/"}

func isSignificant(p string) bool {
	for _, prefix := range exemptPrefixes {
		if strings.HasPrefix(p, prefix) {
			return false
		}
	}
	base := path.Base(p)
	for _, b := range significantBasenames {
		if base == b {
			return true
		}
	}
	for _, prefix := range significantPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

func containsPath(paths []string, want string) bool {
	for _, p := range paths {
		if p == want {
			return true
		}
	}
	return false
}

// identityCoreFilenames are the filenames that, when touched under an
// identity's pack directory, trigger the self-upgrade evidence requirement.
var identityCoreFilenames = map[string]bool{
	"CURRENT_TASK.json": true,
	"IDENTITY_PROMPT.md": true,
	"RULEBOOK.jsonl":     true,
}

func isIdentityCore(p, identityID string) bool {
	prefixes := []string{
		"identity/" + identityID + "/",
		"identity/packs/" + identityID + "/",
	}
	base := path.Base(p)
	if !identityCoreFilenames[base] {
		return false
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// Input bundles everything one CI-gate invocation needs.
type Input struct {
	IdentityID string
	Base, Head string
	Differ     Differ

	Store       *docstore.Store
	ReportsRoot string // e.g. identity/runtime/reports

	RequiredCheckTokens []string // identity_update_lifecycle_contract.validation_contract.required_checks

	RequireCIBinding bool
	CI               bool
	GithubRunID      string
	GithubSHA        string

	InstallProvenance *InstallProvenanceCheck
}

// InstallProvenanceCheck optionally enforces spec §4.8 point 4.
type InstallProvenanceCheck struct {
	ReportDir          string
	OperationsRequired []string
	WindowHours        int
	Now                func() time.Time
}

func (c *InstallProvenanceCheck) now() time.Time {
	if c != nil && c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Result is the gate's aggregate verdict.
type Result struct {
	OK      bool
	Reasons []string
}

func (r *Result) fail(format string, args ...any) {
	r.OK = false
	r.Reasons = append(r.Reasons, fmt.Sprintf(format, args...))
}

// Run evaluates the changelog, self-upgrade, and (when configured)
// install-provenance rules against the git diff base..head.
func Run(in Input) (*Result, error) {
	result := &Result{OK: true}

	differ := in.Differ
	if differ == nil {
		differ = GitDiffer{}
	}
	changed, err := differ.ChangedFiles(in.Base, in.Head)
	if err != nil {
		return nil, fmt.Errorf("resolve changed files: %w", err)
	}
	if len(changed) == 0 {
		return nil, ErrNoChangedFiles
	}

	checkChangelogRule(result, changed)
	checkSelfUpgradeRule(result, in, changed)
	if in.InstallProvenance != nil {
		checkInstallProvenanceRule(result, in)
	}

	return result, nil
}

// checkChangelogRule implements spec §4.8 point 2.
func checkChangelogRule(r *Result, changed []string) {
	anySignificant := false
	for _, f := range changed {
		if isSignificant(f) {
			anySignificant = true
			break
		}
	}
	if !anySignificant {
		return
	}
	if !containsPath(changed, "CHANGELOG.md") {
		r.fail("significant files changed without a corresponding CHANGELOG.md update")
	}
}

// checkSelfUpgradeRule implements spec §4.8 point 3.
func checkSelfUpgradeRule(r *Result, in Input, changed []string) {
	var touchedCore []string
	for _, f := range changed {
		if isIdentityCore(f, in.IdentityID) {
			touchedCore = append(touchedCore, f)
		}
	}
	if len(touchedCore) == 0 {
		return
	}

	prefix := fmt.Sprintf("identity-upgrade-exec-%s-", in.IdentityID)
	var evidenceChanged []string
	for _, f := range changed {
		if strings.HasPrefix(f, "identity/runtime/reports/") &&
			strings.HasPrefix(path.Base(f), prefix) && strings.HasSuffix(f, ".json") {
			evidenceChanged = append(evidenceChanged, f)
		}
	}
	if len(evidenceChanged) == 0 {
		r.fail("identity-core files changed without self-upgrade evidence report change (touched: %s)",
			strings.Join(touchedCore, ", "))
		return
	}

	var reportCandidates []string
	for _, f := range evidenceChanged {
		if !strings.HasSuffix(f, "-patch-plan.json") {
			reportCandidates = append(reportCandidates, f)
		}
	}
	if len(reportCandidates) == 0 {
		r.fail("self-upgrade evidence exists but no execution report JSON found among: %s",
			strings.Join(evidenceChanged, ", "))
		return
	}

	store := in.Store
	if store == nil {
		store = docstore.New()
	}

	validCount := 0
	for _, rel := range reportCandidates {
		if err := validateExecutionReport(rel, in, changed, store); err != nil {
			r.fail("%s: %v", rel, err)
			continue
		}
		validCount++
	}
	if validCount == 0 {
		r.fail("no valid self-upgrade execution evidence report found")
	}
}

func validateExecutionReport(path string, in Input, changed []string, store *docstore.Store) error {
	var report upgrade.ExecutionReport
	if err := store.LoadJSON(path, &report); err != nil {
		return fmt.Errorf("cannot parse evidence report: %w", err)
	}

	if report.IdentityID != in.IdentityID {
		return fmt.Errorf("identity mismatch: got %q want %q", report.IdentityID, in.IdentityID)
	}
	if report.Mode != upgrade.ModeReviewRequired && report.Mode != upgrade.ModeSafeAuto {
		return fmt.Errorf("invalid mode %q", report.Mode)
	}
	if len(report.Checks) == 0 {
		return fmt.Errorf("checks must be a non-empty list")
	}

	var missing []string
	for _, token := range in.RequiredCheckTokens {
		found := false
		for _, c := range report.Checks {
			if strings.Contains(c, token) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, token)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing required checks: %s", strings.Join(missing, ", "))
	}

	if report.RunID == "" {
		return fmt.Errorf("run_id missing")
	}
	if report.CreatorInvocation.Tool != "identity-creator" {
		return fmt.Errorf("creator_invocation.tool must be identity-creator, got %q", report.CreatorInvocation.Tool)
	}
	if report.CreatorInvocation.Mode != "update" {
		return fmt.Errorf("creator_invocation.mode must be update, got %q", report.CreatorInvocation.Mode)
	}
	if report.CreatorInvocation.RunID != report.RunID {
		return fmt.Errorf("creator_invocation.run_id %q does not match report.run_id %q",
			report.CreatorInvocation.RunID, report.RunID)
	}

	for _, cr := range report.CheckResults {
		if cr.Name == "" || cr.LogPath == "" || cr.SHA256 == "" {
			return fmt.Errorf("check_result for %q missing required fields", cr.Name)
		}
		sum, err := sha256File(cr.LogPath)
		if err != nil {
			return fmt.Errorf("log file %s: %w", cr.LogPath, err)
		}
		if sum != cr.SHA256 {
			return fmt.Errorf("log %s sha256 mismatch: declared %s, actual %s", cr.LogPath, cr.SHA256, sum)
		}
	}

	if in.RequireCIBinding {
		if report.ExecutionContext.GeneratedBy != "ci" {
			return fmt.Errorf("execution_context.generated_by must be ci when --require-ci-binding is set")
		}
		if report.ExecutionContext.GithubRunID != in.GithubRunID {
			return fmt.Errorf("execution_context.github_run_id %q does not match CI env %q",
				report.ExecutionContext.GithubRunID, in.GithubRunID)
		}
		if report.ExecutionContext.GithubSHA != in.GithubSHA {
			return fmt.Errorf("execution_context.github_sha %q does not match CI env %q",
				report.ExecutionContext.GithubSHA, in.GithubSHA)
		}
	}

	patchPlanName := report.RunID + "-patch-plan.json"
	expected := "identity/runtime/reports/" + patchPlanName
	if !containsPath(changed, expected) {
		return fmt.Errorf("missing matching patch plan diff change: %s", expected)
	}

	return nil
}

func sha256File(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// checkInstallProvenanceRule implements spec §4.8 point 4.
func checkInstallProvenanceRule(r *Result, in Input) {
	ip := in.InstallProvenance
	if len(ip.OperationsRequired) == 0 {
		return
	}
	windowHours := ip.WindowHours
	if windowHours <= 0 {
		windowHours = 24
	}

	matches, err := filepath.Glob(filepath.Join(ip.ReportDir, fmt.Sprintf("identity-install-%s-*.json", in.IdentityID)))
	if err != nil || len(matches) == 0 {
		r.fail("no identity-scoped install reports available for operations_required chain validation")
		return
	}

	store := in.Store
	if store == nil {
		store = docstore.New()
	}

	type timestamped struct {
		op string
		ts time.Time
	}
	var reports []timestamped
	for _, m := range matches {
		var raw map[string]any
		if loadErr := store.LoadJSON(m, &raw); loadErr != nil {
			continue
		}
		id, _ := raw["identity_id"].(string)
		if id != in.IdentityID {
			continue
		}
		tsRaw, _ := raw["generated_at"].(string)
		ts, parseErr := time.Parse("2006-01-02T15:04:05Z", tsRaw)
		if parseErr != nil {
			continue
		}
		op, _ := raw["operation"].(string)
		reports = append(reports, timestamped{op: op, ts: ts})
	}
	if len(reports) == 0 {
		r.fail("no identity-scoped install reports available for operations_required chain validation")
		return
	}

	latest := reports[0].ts
	for _, rep := range reports {
		if rep.ts.After(latest) {
			latest = rep.ts
		}
	}
	cutoff := latest.Add(-time.Duration(windowHours) * time.Hour)

	observed := make(map[string]bool)
	for _, rep := range reports {
		if !rep.ts.Before(cutoff) {
			observed[rep.op] = true
		}
	}

	var missing []string
	for _, op := range ip.OperationsRequired {
		if !observed[op] {
			missing = append(missing, op)
		}
	}
	if len(missing) > 0 {
		r.fail("install provenance missing required operation chain entries within last %dh: %s",
			windowHours, strings.Join(missing, ", "))
	}
}
