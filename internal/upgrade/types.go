package upgrade

// Mode selects how far the executor is allowed to go past PLAN.
type Mode string

const (
	ModeReviewRequired Mode = "review-required"
	ModeSafeAuto       Mode = "safe-auto"
)

// CoreFiles are the four pack files a review-required patch_surface
// enumerates for human PR review.
var CoreFiles = []string{
	"CURRENT_TASK.json",
	"IDENTITY_PROMPT.md",
	"RULEBOOK.jsonl",
	"TASK_HISTORY.md",
}

// PatchPlan is always emitted, even when no upgrade is triggered.
type PatchPlan struct {
	RunID           string   `json:"run_id"`
	IdentityID      string   `json:"identity_id"`
	Mode            Mode     `json:"mode"`
	UpgradeRequired bool     `json:"upgrade_required"`
	Reasons         []string `json:"reasons,omitempty"`
	PatchSurface    []string `json:"patch_surface"`
	GeneratedAt     string   `json:"generated_at"`
}

// ArbitrationDecisionRecord is written to the arbitration log before a
// safe-auto apply proceeds.
type ArbitrationDecisionRecord struct {
	ArbitrationID string         `json:"arbitration_id"`
	IdentityID    string         `json:"identity_id"`
	ConflictPair  string         `json:"conflict_pair"`
	Inputs        map[string]any `json:"inputs"`
	Decision      string         `json:"decision"`
	Impact        string         `json:"impact"`
	Rationale     string         `json:"rationale"`
	DecidedAt     string         `json:"decided_at"`
}

// ExecutionContext names how this run was invoked, used by the CI
// enforcement gate's --require-ci-binding check.
type ExecutionContext struct {
	GeneratedBy   string `json:"generated_by"` // "ci" or "local"
	GithubRunID   string `json:"github_run_id,omitempty"`
	GithubSHA     string `json:"github_sha,omitempty"`
}

// CreatorInvocation records the identity-creator tool call this run
// represents, matched against the CI gate's creator_invocation checks.
type CreatorInvocation struct {
	Tool  string `json:"tool"`
	Mode  string `json:"mode"`
	RunID string `json:"run_id"`
}

// CheckResult is one VALIDATE-phase check's recorded outcome.
type CheckResult struct {
	Name     string `json:"name"`
	OK       bool   `json:"ok"`
	LogPath  string `json:"log_path"`
	SHA256   string `json:"sha256"`
	ExitCode int    `json:"exit_code"`
}

// ExecutionReport is the single artifact EMIT always writes.
type ExecutionReport struct {
	RunID             string            `json:"run_id"`
	IdentityID        string            `json:"identity_id"`
	Mode              Mode              `json:"mode"`
	ExecutionContext  ExecutionContext  `json:"execution_context"`
	UpgradeRequired   bool              `json:"upgrade_required"`
	TriggerReasons    []string          `json:"trigger_reasons,omitempty"`
	ActionsTaken      []string          `json:"actions_taken,omitempty"`
	Checks            []string          `json:"checks"`
	CheckResults      []CheckResult     `json:"check_results"`
	Artifacts         []string          `json:"artifacts,omitempty"`
	CreatorInvocation CreatorInvocation `json:"creator_invocation"`
	AllOK             bool              `json:"all_ok"`
}
