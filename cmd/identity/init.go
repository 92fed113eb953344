package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/boshu2/identityctl/internal/docstore"
)

var (
	initID          string
	initTitle       string
	initDescription string
	initProfile     string
	initRegister    bool
	initActivate    bool
	initSetDefault  bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold a new identity pack",
	RunE:  runInit,
}

func init() {
	initCmd.Flags().StringVar(&initID, "id", "", "identity id (required)")
	initCmd.Flags().StringVar(&initTitle, "title", "", "identity title (required)")
	initCmd.Flags().StringVar(&initDescription, "description", "", "identity description (required)")
	initCmd.Flags().StringVar(&initProfile, "profile", "full-contract", "full-contract or minimal")
	initCmd.Flags().BoolVar(&initRegister, "register", false, "register the identity in the catalog")
	initCmd.Flags().BoolVar(&initActivate, "activate", false, "mark the identity active on registration")
	initCmd.Flags().BoolVar(&initSetDefault, "set-default", false, "set as catalog default_identity")
	_ = initCmd.MarkFlagRequired("id")
	_ = initCmd.MarkFlagRequired("title")
	_ = initCmd.MarkFlagRequired("description")
	rootCmd.AddCommand(initCmd)
}

// runInit scaffolds a new pack directory, grounded on
// create_identity_pack.py's file set (META.yaml, IDENTITY_PROMPT.md,
// CURRENT_TASK.json, TASK_HISTORY.md, RULEBOOK.jsonl, agents/identity.yaml),
// generalized to this engine's typed TaskRecord contracts instead of the
// original's bespoke dict shape.
func runInit(cmd *cobra.Command, args []string) error {
	if initProfile != "full-contract" && initProfile != "minimal" {
		return fmt.Errorf("--profile must be full-contract or minimal, got %q", initProfile)
	}

	packDir := filepath.Join(cfg.PackRoot, initID)
	if entries, err := os.ReadDir(packDir); err == nil && len(entries) > 0 {
		return fmt.Errorf("pack directory already exists and is non-empty: %s", packDir)
	}

	store := docstore.New()
	now := time.Now()

	meta := &docstore.Meta{
		ID:                 initID,
		Title:              initTitle,
		Description:        initDescription,
		Status:             "active",
		MethodologyVersion: "v1.2.3",
	}
	if err := os.MkdirAll(packDir, 0700); err != nil {
		return fmt.Errorf("create pack directory: %w", err)
	}
	if err := writeMeta(filepath.Join(packDir, "META.yaml"), meta); err != nil {
		return fmt.Errorf("write META.yaml: %w", err)
	}
	if err := os.WriteFile(filepath.Join(packDir, "IDENTITY_PROMPT.md"),
		[]byte("# Identity Prompt\n\nDefine role cognition, principles, and decision rules.\n"), 0600); err != nil {
		return fmt.Errorf("write IDENTITY_PROMPT.md: %w", err)
	}
	if err := os.WriteFile(filepath.Join(packDir, "TASK_HISTORY.md"),
		[]byte("# Task History\n\n## Entries\n"), 0600); err != nil {
		return fmt.Errorf("write TASK_HISTORY.md: %w", err)
	}

	tr := defaultTaskRecord(initID, initTitle, initDescription, initProfile)
	if err := store.SaveTaskRecord(filepath.Join(packDir, "CURRENT_TASK.json"), tr); err != nil {
		return fmt.Errorf("write CURRENT_TASK.json: %w", err)
	}

	bootstrapRow := docstore.RulebookRow{
		RuleID:        initID + "-bootstrap-positive-rule",
		Type:          "positive",
		Trigger:       "identity_pack_initialized",
		Action:        "enforce_protocol_baseline_review_before_identity_upgrades",
		EvidenceRunID: "bootstrap",
		Scope:         "identity_runtime",
		Confidence:    1.0,
		UpdatedAt:     docstore.Timestamp(now),
	}
	if err := store.AppendRulebookRow(filepath.Join(packDir, "RULEBOOK.jsonl"), bootstrapRow); err != nil {
		return fmt.Errorf("write RULEBOOK.jsonl: %w", err)
	}

	descriptor := &docstore.AgentDescriptor{
		UI: map[string]any{
			"display_name":     initTitle,
			"short_description": initDescription,
			"default_prompt":   fmt.Sprintf("Operate as %s and satisfy runtime gates.", initID),
		},
		Policy: map[string]any{
			"allow_implicit_activation": true,
			"activation_priority":       50,
			"conflict_resolution":       "priority_then_objective",
		},
	}
	if err := writeAgentDescriptor(filepath.Join(packDir, "agents", "identity.yaml"), descriptor); err != nil {
		return fmt.Errorf("write agents/identity.yaml: %w", err)
	}

	printLine("OK", "created identity pack: %s", packDir)

	if initRegister {
		cat, err := store.LoadCatalog(cfg.Catalog)
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
		for _, e := range cat.Identities {
			if e.ID == initID {
				return fmt.Errorf("id already exists in catalog: %s", initID)
			}
		}
		status := "inactive"
		if initActivate {
			status = "active"
		}
		cat.Identities = append(cat.Identities, docstore.CatalogEntry{
			ID:                 initID,
			Title:              initTitle,
			Description:        initDescription,
			Status:             status,
			MethodologyVersion: "v1.2.3",
			PackPath:           packDir,
			Tags:               []string{"identity"},
		})
		if initSetDefault {
			cat.DefaultIdentity = initID
		}
		if err := store.SaveCatalog(cfg.Catalog, cat); err != nil {
			return fmt.Errorf("save catalog: %w", err)
		}
		printLine("OK", "registered identity in catalog: %s", cfg.Catalog)
	}

	return nil
}

func defaultTaskRecord(id, title, description, profile string) *docstore.TaskRecord {
	tr := &docstore.TaskRecord{
		TaskID: id + "_bootstrap",
		Objective: docstore.Objective{
			Title:    description,
			Priority: "HIGH",
			Status:   "pending",
		},
		StateMachine: docstore.StateMachine{
			States:       append([]string(nil), docstore.RequiredStates...),
			CurrentState: "intake",
			Transitions: map[string][]string{
				"intake":  {"analyze"},
				"analyze": {"execute", "blocked"},
				"execute": {"verify"},
				"verify":  {"done", "analyze"},
			},
		},
		Gates: map[string]string{
			"document_gate":                   "required",
			"media_gate":                      "required",
			"category_compliance_gate":        "required",
			"reject_memory_gate":              "required",
			"protocol_baseline_review_gate":   "required",
			"payload_evidence_gate":           "required",
			"multimodal_consistency_gate":     "required",
			"reasoning_loop_gate":             "required",
			"routing_gate":                    "required",
			"rulebook_gate":                   "required",
		},
		SourceOfTruth: map[string]any{
			"local_docs_roots":             []string{},
			"local_project_evidence_roots": []string{"resource/reports", "resource/preflight", "resource/reject-archive"},
		},
		EscalationPolicy: map[string]any{
			"email_for_offline_only": true,
			"offline_blockers":       []string{},
			"do_not_email_for":       []string{"routine_status_update", "normal_progress_report", "non_blocking_warning"},
		},
		RequiredArtifacts:      []string{"resource/reports/*.json", "resource/reports/*.md"},
		PostExecutionMandatory: []string{
			"append task outcome into identity/packs/" + id + "/TASK_HISTORY.md",
			"update objective.status",
			"update state_machine.current_state",
		},
		EvaluationContract: docstore.EvaluationContract{
			RequiredEvidenceTriplet: []string{"api_evidence", "event_evidence", "ui_evidence"},
			ConsistencyRequired:     true,
			FailAction:              "block_done_and_trigger_recheck",
		},
		ReasoningLoopContract: docstore.ReasoningLoopContract{
			MaxAttemptsBeforeEscalation: 3,
			MandatoryFieldsPerAttempt:   append([]string(nil), docstore.RequiredAttemptFields...),
		},
		RoutingContract: docstore.RoutingContract{
			AutoRouteEnabled: true,
			ProblemTypeRoutes: map[string]string{
				"unknown": "identity-creator",
			},
		},
		RulebookContract: docstore.RulebookContract{
			AppendOnly:     true,
			RequiredFields: []string{"rule_id", "type", "trigger", "action", "evidence_run_id", "scope", "confidence", "updated_at"},
			RulebookPath:   "identity/packs/" + id + "/RULEBOOK.jsonl",
		},
		BlockerTaxonomyContract: docstore.BlockerTaxonomyContract{
			RequiredBlockerTypes: append([]string(nil), docstore.RequiredBlockerTypes...),
		},
		CollaborationTriggerContract: docstore.CollaborationTriggerContract{
			NotifyPolicy:            "on_blocker",
			NotifyTiming:            "immediate",
			StateChangeBypassDedupe: true,
			MustEmitReceiptInChat:   true,
			DedupeWindowHours:       1,
		},
		CapabilityOrchestrationContract: docstore.CapabilityOrchestrationContract{
			Routes: map[string]docstore.OrchestrationRoute{
				"unknown": {Pipeline: []string{"identity-creator"}},
			},
			FailClassification: append([]string(nil), docstore.RequiredFailClassification...),
		},
		KnowledgeAcquisitionContract: docstore.KnowledgeAcquisitionContract{
			SourcePriority: append([]string(nil), docstore.RequiredSourcePriorityPrefix...),
		},
		ExperienceFeedbackContract: docstore.ExperienceFeedbackContract{
			RetentionDays:               90,
			SensitiveFieldsDenylist:     []string{"credentials", "api_key", "pii"},
			ExportScope:                 "instance-only",
			PromotionRequiresReplayPass: true,
		},
		InstallSafetyContract: docstore.InstallSafetyContract{
			PreserveExistingDefault:    true,
			OnConflict:                 "abort_and_explain",
			SameSignatureAction:        "no_op_with_report",
			AllowReplaceOnlyWithBackup: true,
		},
		CIEnforcementContract: docstore.CIEnforcementContract{
			Required:                  true,
			RequiredValidatorSetLabel: "v1_2_required",
			RequiredValidators:        []string{"contract_validation", "rulebook_append_only_check"},
		},
		CapabilityArbitrationContract: docstore.CapabilityArbitrationContract{
			PriorityOrder: append([]string(nil), docstore.RequiredPriorityOrder...),
			TriggerThresholds: docstore.ArbitrationThresholds{
				MisrouteRatePercent:         15,
				ReplayFailureRatePercent:    15,
				FirstPassSuccessDropPercent: 10,
			},
			SafeAutoPatchSurface: docstore.SafeAutoPatchSurface{
				EnforcePathPolicy: true,
				Allowlist:         []string{"RULEBOOK.jsonl", "TASK_HISTORY.md", "arbitration-record"},
			},
		},
	}

	if profile == "full-contract" {
		tr.ProtocolReviewContract = &docstore.ProtocolReviewContract{
			MustReviewSources: []docstore.ProtocolSource{
				{Repo: "brianlyang/identity-protocol", Path: "identity/protocol/IDENTITY_PROTOCOL.md"},
			},
			RequiredEvidenceFields:    []string{"review_id", "reviewed_at", "reviewer_identity", "purpose", "sources_reviewed", "findings", "decision"},
			EvidenceReportPathPattern: "identity/runtime/examples/protocol-baseline-review-*.json",
			MaxReviewAgeDays:          7,
		}
		tr.IdentityUpdateLifecycleContract = &docstore.IdentityUpdateLifecycleContract{
			ValidationContract: docstore.ValidationSubContract{
				RequiredChecks: []string{"contract_validation", "rulebook_append_only_check"},
			},
		}
		tr.TriggerRegressionContract = &docstore.TriggerRegressionContract{
			RequiredSuites: append([]string(nil), docstore.RequiredRegressionSuites...),
		}
	}

	return tr
}

func writeMeta(path string, m *docstore.Meta) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

func writeAgentDescriptor(path string, d *docstore.AgentDescriptor) error {
	data, err := yaml.Marshal(d)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
