// Package upgrade implements the Upgrade Executor state machine:
// LOAD -> DECIDE -> PLAN -> [POLICY-CHECK] -> APPLY -> VALIDATE -> EMIT.
// Grounded on the teacher's internal/ratchet.Chain append-only write
// discipline and internal/storage.FileStorage atomic-write pattern, with
// the state-machine shape itself generalized from the original
// execute_identity_upgrade.py script's load/decide/plan/apply/validate/emit
// phases.
package upgrade

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/boshu2/identityctl/internal/docstore"
	"github.com/boshu2/identityctl/internal/metrics"
	"github.com/boshu2/identityctl/internal/validator"
)

// Input carries everything one upgrade invocation needs.
type Input struct {
	IdentityID string
	Mode       Mode

	TaskRecord *docstore.TaskRecord
	Metrics    docstore.RouteQualityMetrics

	RulebookPath     string
	HistoryPath      string
	ArbitrationLogPath string

	PatchPlanPath string
	ReportPath    string
	CheckLogDir   string

	Validators        *validator.Registry
	ValidatorSetLabel string

	GeneratedBy string // "ci" or "local"
	GithubRunID string
	GithubSHA   string

	Now      func() time.Time
	NewRunID func() string
}

func (in Input) now() time.Time {
	if in.Now != nil {
		return in.Now()
	}
	return time.Now()
}

func (in Input) newRunID() string {
	if in.NewRunID != nil {
		return in.NewRunID()
	}
	return uuid.New().String()
}

// Executor runs the upgrade state machine against a document Store.
type Executor struct {
	Store *docstore.Store
}

// NewExecutor creates an Executor bound to store.
func NewExecutor(store *docstore.Store) *Executor {
	return &Executor{Store: store}
}

// Run drives the full state machine and returns the ExecutionReport and
// PatchPlan it emitted. The returned error, when non-nil, is one of
// ErrPrecondition, ErrUnknownMode, ErrPathPolicyViolation, or
// ErrValidatorQuorumFailed — callers map these to the CLI's exit codes
// 1/1/3/2 respectively.
func (e *Executor) Run(in Input) (*ExecutionReport, *PatchPlan, error) {
	// LOAD
	if in.TaskRecord == nil {
		return nil, nil, fmt.Errorf("%w: task record not loaded", ErrPrecondition)
	}
	if in.Mode != ModeReviewRequired && in.Mode != ModeSafeAuto {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownMode, in.Mode)
	}

	runID := in.newRunID()
	now := in.now()

	// DECIDE
	thresholds := in.TaskRecord.CapabilityArbitrationContract.TriggerThresholds
	decision := metrics.Decide(in.Metrics, thresholds)

	// PLAN
	patchSurface := e.planSurface(in.Mode)
	plan := &PatchPlan{
		RunID:           runID,
		IdentityID:      in.IdentityID,
		Mode:            in.Mode,
		UpgradeRequired: decision.UpgradeRequired,
		Reasons:         decision.Reasons,
		PatchSurface:    patchSurface,
		GeneratedAt:     docstore.Timestamp(now),
	}
	if in.PatchPlanPath != "" {
		if err := e.Store.SaveJSON(in.PatchPlanPath, plan); err != nil {
			return nil, plan, fmt.Errorf("%w: write patch plan: %v", ErrPrecondition, err)
		}
	}

	report := &ExecutionReport{
		RunID:      runID,
		IdentityID: in.IdentityID,
		Mode:       in.Mode,
		ExecutionContext: ExecutionContext{
			GeneratedBy: in.GeneratedBy,
			GithubRunID: in.GithubRunID,
			GithubSHA:   in.GithubSHA,
		},
		UpgradeRequired: decision.UpgradeRequired,
		TriggerReasons:  decision.Reasons,
		Checks:          requiredChecks(in.TaskRecord),
		CreatorInvocation: CreatorInvocation{
			Tool:  "identity-creator",
			Mode:  "update",
			RunID: runID,
		},
	}
	if in.PatchPlanPath != "" {
		report.Artifacts = append(report.Artifacts, in.PatchPlanPath)
		report.ActionsTaken = append(report.ActionsTaken, "patch_plan_written:"+in.PatchPlanPath)
	}

	shouldApply := in.Mode == ModeSafeAuto && decision.UpgradeRequired

	// POLICY-CHECK
	if shouldApply {
		surface := in.TaskRecord.CapabilityArbitrationContract.SafeAutoPatchSurface
		ok, offending, reason := CheckPathPolicy(patchSurface, surface.Allowlist, surface.Denylist)
		if !ok {
			report.ActionsTaken = append(report.ActionsTaken, "blocked_by_safe_auto_path_policy")
			e.emit(in, report)
			return report, plan, fmt.Errorf("%w: path %s %s", ErrPathPolicyViolation, offending, reason)
		}
	}

	// APPLY
	if shouldApply {
		if err := e.apply(in, runID, now, decision, report); err != nil {
			return report, plan, fmt.Errorf("%w: %v", ErrPrecondition, err)
		}
	}

	// VALIDATE
	allOK := true
	if in.Validators != nil && in.ValidatorSetLabel != "" {
		verdicts, err := in.Validators.RunSet(in.ValidatorSetLabel, nil, validator.RunContext{
			TaskRecord: in.TaskRecord,
			IdentityID: in.IdentityID,
			RunID:      runID,
			LogDir:     in.CheckLogDir,
			Now:        in.Now,
		})
		if err != nil {
			return report, plan, fmt.Errorf("%w: %v", ErrPrecondition, err)
		}
		for _, v := range verdicts {
			report.CheckResults = append(report.CheckResults, CheckResult{
				Name:     v.Name,
				OK:       v.OK,
				LogPath:  v.LogPath,
				SHA256:   v.LogSHA256,
				ExitCode: v.ExitCode,
			})
			if v.LogPath != "" {
				report.Artifacts = append(report.Artifacts, v.LogPath)
			}
		}
		allOK = validator.AllPassed(verdicts)
	}
	report.AllOK = allOK

	// EMIT
	if err := e.emit(in, report); err != nil {
		return report, plan, fmt.Errorf("%w: write execution report: %v", ErrPrecondition, err)
	}

	if !allOK {
		return report, plan, ErrValidatorQuorumFailed
	}
	return report, plan, nil
}

func (e *Executor) emit(in Input, report *ExecutionReport) error {
	if in.ReportPath == "" {
		return nil
	}
	if err := e.Store.SaveJSON(in.ReportPath, report); err != nil {
		return err
	}
	report.Artifacts = append(report.Artifacts, in.ReportPath)
	return nil
}

func (e *Executor) planSurface(mode Mode) []string {
	if mode == ModeReviewRequired {
		return append([]string(nil), CoreFiles...)
	}
	return []string{"RULEBOOK.jsonl", "TASK_HISTORY.md", "arbitration-record"}
}

func (e *Executor) apply(in Input, runID string, now time.Time, decision metrics.Decision, report *ExecutionReport) error {
	arbitrationID := in.newRunID()

	record := ArbitrationDecisionRecord{
		ArbitrationID: arbitrationID,
		IdentityID:    in.IdentityID,
		ConflictPair:  "routing_vs_learning",
		Inputs: map[string]any{
			"metrics":    in.Metrics,
			"thresholds": in.TaskRecord.CapabilityArbitrationContract.TriggerThresholds,
		},
		Decision:  "upgrade_applied",
		Impact:    "rulebook_and_history_updated",
		Rationale: joinReasons(decision.Reasons),
		DecidedAt: docstore.Timestamp(now),
	}
	if in.ArbitrationLogPath != "" {
		if err := e.Store.AppendJSONL(in.ArbitrationLogPath, record); err != nil {
			return fmt.Errorf("append arbitration record: %w", err)
		}
		report.Artifacts = append(report.Artifacts, in.ArbitrationLogPath)
	}

	if in.RulebookPath != "" {
		row := docstore.RulebookRow{
			RuleID:        "upgrade-" + runID,
			Type:          "positive",
			Trigger:       "capability_arbitration_threshold",
			Action:        "safe_auto_upgrade",
			EvidenceRunID: runID,
			Scope:         in.IdentityID,
			UpdatedAt:     docstore.Timestamp(now),
		}
		if err := e.Store.AppendRulebookRow(in.RulebookPath, row); err != nil {
			return fmt.Errorf("append rulebook row: %w", err)
		}
	}

	if in.HistoryPath != "" {
		line := fmt.Sprintf("- %s safe-auto upgrade applied (run %s): %s\n",
			docstore.Timestamp(now), runID, joinReasons(decision.Reasons))
		if err := e.Store.AppendHistoryLine(in.HistoryPath, line); err != nil {
			return fmt.Errorf("append history line: %w", err)
		}
	}

	report.ActionsTaken = append(report.ActionsTaken,
		"wrote_arbitration_record", "appended_rulebook_row", "appended_history_line")
	return nil
}

func joinReasons(reasons []string) string {
	if len(reasons) == 0 {
		return "no trigger reasons"
	}
	out := reasons[0]
	for _, r := range reasons[1:] {
		out += "; " + r
	}
	return out
}

// requiredChecks returns the validator quorum names for this task record's
// identity_update_lifecycle_contract, or nil if the contract is absent.
func requiredChecks(tr *docstore.TaskRecord) []string {
	if tr.IdentityUpdateLifecycleContract == nil {
		return nil
	}
	return tr.IdentityUpdateLifecycleContract.ValidationContract.RequiredChecks
}
