package upgrade

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/boshu2/identityctl/internal/docstore"
	"github.com/boshu2/identityctl/internal/validator"
)

func baseTaskRecord() *docstore.TaskRecord {
	return &docstore.TaskRecord{
		CapabilityArbitrationContract: docstore.CapabilityArbitrationContract{
			TriggerThresholds: docstore.ArbitrationThresholds{
				MisrouteRatePercent:         10,
				ReplayFailureRatePercent:    10,
				FirstPassSuccessDropPercent: 10,
			},
			SafeAutoPatchSurface: docstore.SafeAutoPatchSurface{
				Allowlist: []string{"RULEBOOK.jsonl", "TASK_HISTORY.md", "arbitration-record"},
			},
		},
		IdentityUpdateLifecycleContract: &docstore.IdentityUpdateLifecycleContract{
			ValidationContract: docstore.ValidationSubContract{
				RequiredChecks: []string{"check-a"},
			},
		},
	}
}

func fixedNow() func() time.Time {
	return func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return "run-" + string(rune('a'+n-1))
	}
}

func TestRun_ReviewRequiredModeDoesNotMutate(t *testing.T) {
	dir := t.TempDir()
	exec := NewExecutor(docstore.New())

	report, plan, err := exec.Run(Input{
		IdentityID: "demo",
		Mode:       ModeReviewRequired,
		TaskRecord: baseTaskRecord(),
		Metrics:    docstore.RouteQualityMetrics{MisrouteRate: 50},
		PatchPlanPath: filepath.Join(dir, "patch-plan.json"),
		ReportPath:    filepath.Join(dir, "report.json"),
		Now:           fixedNow(),
		NewRunID:      sequentialIDs(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	wantActions := []string{"patch_plan_written:" + filepath.Join(dir, "patch-plan.json")}
	if len(report.ActionsTaken) != len(wantActions) || report.ActionsTaken[0] != wantActions[0] {
		t.Errorf("review-required must not apply, only emit the patch plan: got actions %v, want %v", report.ActionsTaken, wantActions)
	}
	if !plan.UpgradeRequired {
		t.Error("expected upgrade_required=true given misroute_rate=50 > threshold=10")
	}
	for _, want := range CoreFiles {
		found := false
		for _, got := range plan.PatchSurface {
			if got == want {
				found = true
			}
		}
		if !found {
			t.Errorf("patch surface missing core file %s", want)
		}
	}
}

func TestRun_SafeAutoAppliesWhenUpgradeRequired(t *testing.T) {
	dir := t.TempDir()
	exec := NewExecutor(docstore.New())

	report, _, err := exec.Run(Input{
		IdentityID:         "demo",
		Mode:               ModeSafeAuto,
		TaskRecord:         baseTaskRecord(),
		Metrics:            docstore.RouteQualityMetrics{MisrouteRate: 50},
		RulebookPath:       filepath.Join(dir, "RULEBOOK.jsonl"),
		HistoryPath:        filepath.Join(dir, "TASK_HISTORY.md"),
		ArbitrationLogPath: filepath.Join(dir, "arbitration.jsonl"),
		ReportPath:         filepath.Join(dir, "report.json"),
		Now:                fixedNow(),
		NewRunID:           sequentialIDs(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.ActionsTaken) != 3 {
		t.Fatalf("expected 3 apply actions, got %v", report.ActionsTaken)
	}

	rows, _, err := docstore.New().LoadRulebook(filepath.Join(dir, "RULEBOOK.jsonl"))
	if err != nil {
		t.Fatalf("LoadRulebook: %v", err)
	}
	if len(rows) != 1 || rows[0].EvidenceRunID != report.RunID {
		t.Errorf("got rows %+v, want one row linking evidence_run_id=%s", rows, report.RunID)
	}
}

func TestRun_SafeAutoBlockedByPathPolicyDenylist(t *testing.T) {
	dir := t.TempDir()
	tr := baseTaskRecord()
	tr.CapabilityArbitrationContract.SafeAutoPatchSurface.Denylist = []string{"RULEBOOK.jsonl"}
	exec := NewExecutor(docstore.New())

	_, _, err := exec.Run(Input{
		IdentityID: "demo",
		Mode:       ModeSafeAuto,
		TaskRecord: tr,
		Metrics:    docstore.RouteQualityMetrics{MisrouteRate: 50},
		ReportPath: filepath.Join(dir, "report.json"),
		Now:        fixedNow(),
		NewRunID:   sequentialIDs(),
	})
	if err == nil {
		t.Fatal("expected path policy violation")
	}
}

func TestRun_SafeAutoBlockedWhenNoAllowlistMatch(t *testing.T) {
	dir := t.TempDir()
	tr := baseTaskRecord()
	tr.CapabilityArbitrationContract.SafeAutoPatchSurface.Allowlist = nil
	exec := NewExecutor(docstore.New())

	_, _, err := exec.Run(Input{
		IdentityID: "demo",
		Mode:       ModeSafeAuto,
		TaskRecord: tr,
		Metrics:    docstore.RouteQualityMetrics{MisrouteRate: 50},
		ReportPath: filepath.Join(dir, "report.json"),
		Now:        fixedNow(),
		NewRunID:   sequentialIDs(),
	})
	if err == nil {
		t.Fatal("expected path policy violation when allowlist is empty")
	}
}

func TestRun_NoUpgradeRequiredSkipsApply(t *testing.T) {
	dir := t.TempDir()
	exec := NewExecutor(docstore.New())

	report, plan, err := exec.Run(Input{
		IdentityID: "demo",
		Mode:       ModeSafeAuto,
		TaskRecord: baseTaskRecord(),
		Metrics:    docstore.RouteQualityMetrics{MisrouteRate: 1, ReplaySuccessRate: 99, FirstPassSuccessRate: 99},
		ReportPath:    filepath.Join(dir, "report.json"),
		PatchPlanPath: filepath.Join(dir, "patch-plan.json"),
		Now:           fixedNow(),
		NewRunID:      sequentialIDs(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if plan.UpgradeRequired {
		t.Error("expected no upgrade trigger")
	}
	wantActions := []string{"patch_plan_written:" + filepath.Join(dir, "patch-plan.json")}
	if len(report.ActionsTaken) != len(wantActions) || report.ActionsTaken[0] != wantActions[0] {
		t.Errorf("expected actions_taken=%v (patch plan written, no apply), got %v", wantActions, report.ActionsTaken)
	}
}

func TestRun_ValidatorQuorumFailurePropagates(t *testing.T) {
	dir := t.TempDir()
	reg := validator.NewRegistry()
	reg.Register(validator.Validator{Name: "check-a", Run: func(*docstore.TaskRecord, string) (bool, []string, error) {
		return false, []string{"failed"}, nil
	}})
	reg.DeclareSet("quorum", []string{"check-a"})

	exec := NewExecutor(docstore.New())
	report, _, err := exec.Run(Input{
		IdentityID:        "demo",
		Mode:              ModeReviewRequired,
		TaskRecord:        baseTaskRecord(),
		Metrics:           docstore.RouteQualityMetrics{},
		ReportPath:        filepath.Join(dir, "report.json"),
		CheckLogDir:       dir,
		Validators:        reg,
		ValidatorSetLabel: "quorum",
		Now:               fixedNow(),
		NewRunID:          sequentialIDs(),
	})
	if err == nil {
		t.Fatal("expected validator quorum failure")
	}
	if report.AllOK {
		t.Error("expected AllOK=false")
	}
}

func TestRun_MissingTaskRecordIsPrecondition(t *testing.T) {
	exec := NewExecutor(docstore.New())
	_, _, err := exec.Run(Input{Mode: ModeReviewRequired})
	if err == nil {
		t.Fatal("expected precondition error for missing task record")
	}
}

func TestCheckPathPolicy_DenyTakesPrecedenceOverAllow(t *testing.T) {
	ok, _, _ := CheckPathPolicy([]string{"a.txt"}, []string{"a.txt"}, []string{"a.txt"})
	if ok {
		t.Fatal("expected deny to take precedence over an overlapping allow match")
	}
}

func TestCheckPathPolicy_DoubleStarCrossesPathSeparators(t *testing.T) {
	ok, offending, reason := CheckPathPolicy(
		[]string{"identity/packs/demo/RULEBOOK.jsonl"},
		[]string{"**/*.jsonl"},
		[]string{"**/RULEBOOK.jsonl"},
	)
	if ok {
		t.Fatal("expected ** denylist pattern to match a nested relative path")
	}
	if offending != "identity/packs/demo/RULEBOOK.jsonl" {
		t.Errorf("unexpected offending path: %s", offending)
	}
	if reason != "denied by pattern: **/RULEBOOK.jsonl" {
		t.Errorf("unexpected reason: %s", reason)
	}
}

func TestCheckPathPolicy_DoubleStarAllowsNestedMatch(t *testing.T) {
	ok, _, _ := CheckPathPolicy(
		[]string{"identity/packs/demo/META.yaml"},
		[]string{"**/*.yaml"},
		nil,
	)
	if !ok {
		t.Fatal("expected ** allowlist pattern to match a nested relative path")
	}
}
