package contract

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/boshu2/identityctl/internal/docstore"
)

func validTaskRecord() *docstore.TaskRecord {
	return &docstore.TaskRecord{
		Objective: docstore.Objective{Title: "ship it"},
		StateMachine: docstore.StateMachine{
			States:       docstore.RequiredStates,
			CurrentState: "intake",
		},
		Gates: map[string]string{},
		EvaluationContract: docstore.EvaluationContract{
			RequiredEvidenceTriplet: []string{"api_evidence", "event_evidence", "ui_evidence"},
			ConsistencyRequired:     true,
			FailAction:              "block",
		},
		ReasoningLoopContract: docstore.ReasoningLoopContract{
			MaxAttemptsBeforeEscalation: 3,
			MandatoryFieldsPerAttempt:   docstore.RequiredAttemptFields,
		},
		RoutingContract: docstore.RoutingContract{
			AutoRouteEnabled: true,
			ProblemTypeRoutes: map[string]string{
				"capability_gap": "route-to-creator",
			},
		},
		RulebookContract: docstore.RulebookContract{
			AppendOnly:   true,
			RulebookPath: "RULEBOOK.jsonl",
		},
		BlockerTaxonomyContract: docstore.BlockerTaxonomyContract{
			RequiredBlockerTypes: docstore.RequiredBlockerTypes,
		},
		CollaborationTriggerContract: docstore.CollaborationTriggerContract{
			NotifyTiming:            "immediate",
			StateChangeBypassDedupe: true,
			MustEmitReceiptInChat:   true,
			DedupeWindowHours:       1,
		},
		CapabilityOrchestrationContract: docstore.CapabilityOrchestrationContract{
			Routes: map[string]docstore.OrchestrationRoute{
				"bug_fix": {Pipeline: []string{"diagnose", "patch"}},
			},
			FailClassification: docstore.RequiredFailClassification,
		},
		KnowledgeAcquisitionContract: docstore.KnowledgeAcquisitionContract{
			SourcePriority: []string{"official_spec", "repo_contract", "community"},
		},
		ExperienceFeedbackContract: docstore.ExperienceFeedbackContract{
			RetentionDays:               90,
			SensitiveFieldsDenylist:     []string{"token"},
			ExportScope:                 "instance-only",
			PromotionRequiresReplayPass: true,
		},
		InstallSafetyContract: docstore.InstallSafetyContract{
			PreserveExistingDefault:   true,
			OnConflict:                "abort_and_explain",
			SameSignatureAction:       "no_op_with_report",
			AllowReplaceOnlyWithBackup: true,
		},
		CIEnforcementContract: docstore.CIEnforcementContract{
			Required: false,
		},
		CapabilityArbitrationContract: docstore.CapabilityArbitrationContract{
			PriorityOrder: docstore.RequiredPriorityOrder,
			ConflictRules: []docstore.ArbitrationRule{
				{ConflictPair: "a/b", Resolution: "a"},
				{ConflictPair: "c/d", Resolution: "c"},
				{ConflictPair: "e/f", Resolution: "e"},
				{ConflictPair: "g/h", Resolution: "g"},
			},
			TriggerThresholds: docstore.ArbitrationThresholds{
				MisrouteRatePercent:         5,
				ReplayFailureRatePercent:    5,
				FirstPassSuccessDropPercent: 5,
			},
		},
	}
}

func rawKeysFor(tr *docstore.TaskRecord) map[string]json.RawMessage {
	data, err := json.Marshal(tr)
	if err != nil {
		panic(err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		panic(err)
	}
	return raw
}

func TestValidate_CleanRecordProducesNoFindings(t *testing.T) {
	tr := validTaskRecord()
	raw := rawKeysFor(tr)
	opts := Options{
		CreatorIdentityID:  "route-to-creator",
		RulebookPathExists: func(string) bool { return true },
	}

	report := Validate(tr, raw, opts)
	if !report.OK() {
		t.Fatalf("expected no findings, got %+v", report.Findings)
	}
}

func TestValidate_MissingSkeletonKey(t *testing.T) {
	tr := validTaskRecord()
	raw := rawKeysFor(tr)
	delete(raw, "evaluation_contract")

	report := Validate(tr, raw, Options{})
	found := false
	for _, f := range report.Findings {
		if f.ID() == "task_record.evaluation_contract" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected task_record.evaluation_contract finding, got %+v", report.Findings)
	}
}

func TestValidate_StateMachineMissingRequiredState(t *testing.T) {
	tr := validTaskRecord()
	tr.StateMachine.States = []string{"intake", "analyze"}
	raw := rawKeysFor(tr)

	report := Validate(tr, raw, Options{})
	if report.OK() {
		t.Fatal("expected findings for missing required states")
	}
}

func TestValidate_RoutingContractMissingCreatorRoute(t *testing.T) {
	tr := validTaskRecord()
	raw := rawKeysFor(tr)

	report := Validate(tr, raw, Options{CreatorIdentityID: "someone-else"})
	found := false
	for _, f := range report.Findings {
		if f.ID() == "routing_contract.problem_type_routes.capability_gap" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected capability_gap route finding, got %+v", report.Findings)
	}
}

func TestValidate_GatePairing_RequiredGateMissingContract(t *testing.T) {
	tr := validTaskRecord()
	tr.Gates = map[string]string{"ci_enforcement_gate": "required"}
	raw := rawKeysFor(tr)

	report := Validate(tr, raw, Options{})
	found := false
	for _, f := range report.Findings {
		if f.ID() == "gates.ci_enforcement_gate" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected gates.ci_enforcement_gate finding, got %+v", report.Findings)
	}
}

func TestValidate_GatePairing_UnknownGate(t *testing.T) {
	tr := validTaskRecord()
	tr.Gates = map[string]string{"not_a_real_gate": "required"}
	raw := rawKeysFor(tr)

	report := Validate(tr, raw, Options{})
	found := false
	for _, f := range report.Findings {
		if f.ID() == "gates.not_a_real_gate" && f.Message == "unknown gate name" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected unknown-gate finding, got %+v", report.Findings)
	}
}

func TestValidate_CapabilityArbitrationContract_WrongPriorityOrder(t *testing.T) {
	tr := validTaskRecord()
	tr.CapabilityArbitrationContract.PriorityOrder = []string{"latency", "governance"}
	raw := rawKeysFor(tr)

	report := Validate(tr, raw, Options{})
	if report.OK() {
		t.Fatal("expected findings for malformed priority_order")
	}
}

func TestFinding_IDFallsBackToContractWhenFieldEmpty(t *testing.T) {
	f := Finding{Contract: "gates"}
	if f.ID() != "gates" {
		t.Errorf("got %q, want %q", f.ID(), "gates")
	}
}

func TestValidate_ProtocolReviewContract_StaleEvidenceFlagged(t *testing.T) {
	dir := t.TempDir()
	reviewPath := filepath.Join(dir, "protocol-baseline-review-1.json")
	if err := os.WriteFile(reviewPath, []byte("{}"), 0600); err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-30 * 24 * time.Hour)
	if err := os.Chtimes(reviewPath, past, past); err != nil {
		t.Fatal(err)
	}

	tr := validTaskRecord()
	tr.ProtocolReviewContract = &docstore.ProtocolReviewContract{
		MustReviewSources:        []docstore.ProtocolSource{{Repo: "org/repo", Path: "PROTOCOL.md"}},
		EvidenceReportPathPattern: "protocol-baseline-review-*.json",
		MaxReviewAgeDays:          7,
	}
	raw := rawKeysFor(tr)

	report := Validate(tr, raw, Options{
		CreatorIdentityID:  "route-to-creator",
		RulebookPathExists: func(string) bool { return true },
		EvidenceRoot:       dir,
		Now:                time.Now(),
	})

	found := false
	for _, f := range report.Findings {
		if f.Contract == "protocol_review_contract" && f.Field == "evidence_report_path_pattern" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected stale-evidence finding, got %+v", report.Findings)
	}
}

func TestValidate_ProtocolReviewContract_NoEvidenceRootSkipsCheck(t *testing.T) {
	tr := validTaskRecord()
	tr.ProtocolReviewContract = &docstore.ProtocolReviewContract{
		MustReviewSources:        []docstore.ProtocolSource{{Repo: "org/repo", Path: "PROTOCOL.md"}},
		EvidenceReportPathPattern: "protocol-baseline-review-*.json",
		MaxReviewAgeDays:          7,
	}
	raw := rawKeysFor(tr)

	report := Validate(tr, raw, Options{
		CreatorIdentityID:  "route-to-creator",
		RulebookPathExists: func(string) bool { return true },
	})

	for _, f := range report.Findings {
		if f.Contract == "protocol_review_contract" && f.Field == "evidence_report_path_pattern" {
			t.Errorf("did not expect evidence check to run without EvidenceRoot, got %+v", f)
		}
	}
}
