package docstore

import "time"

// Catalog is the single document listing all known identities.
type Catalog struct {
	Version         string          `yaml:"version" json:"version"`
	DefaultIdentity string          `yaml:"default_identity" json:"default_identity"`
	Identities      []CatalogEntry  `yaml:"identities" json:"identities"`
}

// CatalogEntry describes one identity's catalog registration.
type CatalogEntry struct {
	ID                string         `yaml:"id" json:"id" validate:"required"`
	Title             string         `yaml:"title" json:"title"`
	Description       string         `yaml:"description" json:"description"`
	Status            string         `yaml:"status" json:"status" validate:"omitempty,oneof=active inactive"`
	MethodologyVersion string        `yaml:"methodology_version" json:"methodology_version"`
	PackPath          string         `yaml:"pack_path" json:"pack_path"`
	Tags              []string       `yaml:"tags,omitempty" json:"tags,omitempty"`
	Policy            map[string]any `yaml:"policy,omitempty" json:"policy,omitempty"`
	Dependencies      []string       `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
	Interface         map[string]any `yaml:"interface,omitempty" json:"interface,omitempty"`
}

// Meta is the pack's META.yaml descriptor.
type Meta struct {
	ID                 string `yaml:"id" json:"id"`
	Title              string `yaml:"title" json:"title"`
	Description        string `yaml:"description" json:"description"`
	Status             string `yaml:"status" json:"status"`
	MethodologyVersion string `yaml:"methodology_version" json:"methodology_version"`
}

// AgentDescriptor is the optional agents/identity.yaml document.
type AgentDescriptor struct {
	UI     map[string]any `yaml:"ui,omitempty" json:"ui,omitempty"`
	Policy map[string]any `yaml:"policy,omitempty" json:"policy,omitempty"`
	Deps   []string       `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
}

// RulebookRow is one append-only learning record.
type RulebookRow struct {
	RuleID         string  `json:"rule_id" validate:"required"`
	Type           string  `json:"type" validate:"required,oneof=positive negative"`
	Trigger        string  `json:"trigger" validate:"required"`
	Action         string  `json:"action" validate:"required"`
	EvidenceRunID  string  `json:"evidence_run_id" validate:"required"`
	Scope          string  `json:"scope" validate:"required"`
	Confidence     float64 `json:"confidence"`
	UpdatedAt      string  `json:"updated_at" validate:"required"`
}

// --- TaskRecord and its ~20 named contracts ---

// TaskRecord is the central document governing a pack.
type TaskRecord struct {
	TaskID                           string                            `json:"task_id,omitempty"`
	Objective                        Objective                         `json:"objective"`
	StateMachine                     StateMachine                      `json:"state_machine"`
	Gates                            map[string]string                 `json:"gates"`
	SourceOfTruth                    map[string]any                    `json:"source_of_truth"`
	EscalationPolicy                 map[string]any                    `json:"escalation_policy"`
	RequiredArtifacts                []string                          `json:"required_artifacts"`
	PostExecutionMandatory           []string                          `json:"post_execution_mandatory"`
	EvaluationContract               EvaluationContract                `json:"evaluation_contract"`
	ReasoningLoopContract            ReasoningLoopContract             `json:"reasoning_loop_contract"`
	RoutingContract                  RoutingContract                   `json:"routing_contract"`
	RulebookContract                 RulebookContract                  `json:"rulebook_contract"`
	ProtocolReviewContract           *ProtocolReviewContract           `json:"protocol_review_contract,omitempty"`
	IdentityUpdateLifecycleContract  *IdentityUpdateLifecycleContract `json:"identity_update_lifecycle_contract,omitempty"`
	TriggerRegressionContract        *TriggerRegressionContract       `json:"trigger_regression_contract,omitempty"`
	BlockerTaxonomyContract          BlockerTaxonomyContract           `json:"blocker_taxonomy_contract"`
	CollaborationTriggerContract     CollaborationTriggerContract      `json:"collaboration_trigger_contract"`
	CapabilityOrchestrationContract  CapabilityOrchestrationContract   `json:"capability_orchestration_contract"`
	KnowledgeAcquisitionContract     KnowledgeAcquisitionContract      `json:"knowledge_acquisition_contract"`
	ExperienceFeedbackContract       ExperienceFeedbackContract        `json:"experience_feedback_contract"`
	InstallSafetyContract            InstallSafetyContract             `json:"install_safety_contract"`
	InstallProvenanceContract        *InstallProvenanceContract       `json:"install_provenance_contract,omitempty"`
	CIEnforcementContract            CIEnforcementContract             `json:"ci_enforcement_contract"`
	CapabilityArbitrationContract    CapabilityArbitrationContract     `json:"capability_arbitration_contract"`
	SelfUpgradeEnforcementContract   map[string]any                    `json:"self_upgrade_enforcement_contract,omitempty"`
}

// Objective is the fixed-skeleton objective block.
type Objective struct {
	Title    string `json:"title" validate:"required"`
	Priority string `json:"priority"`
	Status   string `json:"status"`
}

// StateMachine is the fixed-skeleton state machine block.
type StateMachine struct {
	States       []string            `json:"states" validate:"required"`
	CurrentState string              `json:"current_state" validate:"required"`
	Transitions  map[string][]string `json:"transitions,omitempty"`
}

// RequiredStates are the states every state_machine must include.
var RequiredStates = []string{"intake", "analyze", "execute", "verify", "done", "blocked"}

// EvaluationContract requires the api/event/ui evidence triplet.
type EvaluationContract struct {
	RequiredEvidenceTriplet []string `json:"required_evidence_triplet" validate:"required"`
	ConsistencyRequired     bool     `json:"consistency_required"`
	FailAction              string   `json:"fail_action"`
}

// ReasoningLoopContract bounds self-correction attempts before escalation.
type ReasoningLoopContract struct {
	MaxAttemptsBeforeEscalation int      `json:"max_attempts_before_escalation" validate:"min=1"`
	MandatoryFieldsPerAttempt  []string `json:"mandatory_fields_per_attempt"`
}

// RequiredAttemptFields are the mandatory reasoning_loop_contract attempt fields.
var RequiredAttemptFields = []string{"attempt", "hypothesis", "patch", "expected_effect", "result"}

// RoutingContract maps problem types to resolution routes.
type RoutingContract struct {
	AutoRouteEnabled  bool                `json:"auto_route_enabled"`
	ProblemTypeRoutes map[string]string   `json:"problem_type_routes" validate:"required"`
}

// RulebookContract describes the append-only learning log.
type RulebookContract struct {
	AppendOnly     bool     `json:"append_only"`
	RequiredFields []string `json:"required_fields"`
	RulebookPath   string   `json:"rulebook_path" validate:"required"`
}

// ProtocolReviewContract requires periodic review of mandatory sources.
type ProtocolReviewContract struct {
	MustReviewSources        []ProtocolSource `json:"must_review_sources"`
	RequiredEvidenceFields    []string        `json:"required_evidence_fields"`
	EvidenceReportPathPattern string          `json:"evidence_report_path_pattern" validate:"required"`
	MaxReviewAgeDays          int             `json:"max_review_age_days" validate:"min=1"`
}

// ProtocolSource is one mandatory review source, addressed either by
// repo+path or by bare URL.
type ProtocolSource struct {
	Repo string `json:"repo,omitempty"`
	Path string `json:"path,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Signature returns the "repo::path" or bare URL signature used to match
// evidence sources_reviewed entries, mirroring the original's _source_signature.
func (s ProtocolSource) Signature() string {
	if s.Repo != "" && s.Path != "" {
		return s.Repo + "::" + s.Path
	}
	return s.URL
}

// IdentityUpdateLifecycleContract governs the self-upgrade cycle.
type IdentityUpdateLifecycleContract struct {
	Trigger           map[string]any `json:"trigger,omitempty"`
	PatchSurface      map[string]any `json:"patch_surface,omitempty"`
	ValidationContract ValidationSubContract `json:"validation_contract"`
	Replay            ReplaySubContract      `json:"replay,omitempty"`
}

// ValidationSubContract names the validator quorum an upgrade run must pass.
type ValidationSubContract struct {
	RequiredChecks []string `json:"required_checks" validate:"required"`
}

// ReplaySubContract names where replay evidence is recorded.
type ReplaySubContract struct {
	ReplayEvidencePath string `json:"replay_evidence_path,omitempty"`
}

// TriggerRegressionContract names the required regression-suite set.
// Suite naming resolution: see SPEC_FULL.md §13 — the contract field uses
// the short suite names; validator.SelfTest reads its samples from
// positive/ and negative/ directories.
type TriggerRegressionContract struct {
	RequiredSuites []string `json:"required_suites" validate:"required"`
	ResultEnum     []string `json:"result_enum,omitempty"`
}

// RequiredRegressionSuites is the short contract-field suite-name set.
var RequiredRegressionSuites = []string{"positive", "boundary", "negative"}

// BlockerTaxonomyContract enumerates recognized human-collaboration blockers.
type BlockerTaxonomyContract struct {
	RequiredBlockerTypes []string `json:"required_blocker_types" validate:"required"`
}

// RequiredBlockerTypes are the blocker classes every taxonomy must cover.
var RequiredBlockerTypes = []string{"login_required", "captcha_required", "session_expired", "manual_verification_required"}

// CollaborationTriggerContract governs human-collaboration notification.
type CollaborationTriggerContract struct {
	NotifyPolicy            string `json:"notify_policy"`
	NotifyTiming            string `json:"notify_timing"`
	StateChangeBypassDedupe bool   `json:"state_change_bypass_dedupe"`
	MustEmitReceiptInChat   bool   `json:"must_emit_receipt_in_chat"`
	DedupeWindowHours       int    `json:"dedupe_window_hours" validate:"min=1"`
}

// CollaborationReceipt is an emitted notification receipt (SPEC_FULL.md §12.3).
type CollaborationReceipt struct {
	EventID    string `json:"event_id" validate:"required"`
	BlockerType string `json:"blocker_type" validate:"required"`
	NotifiedAt string `json:"notified_at" validate:"required"`
	Channel    string `json:"channel" validate:"required"`
	DedupeKey  string `json:"dedupe_key" validate:"required"`
	Status     string `json:"status" validate:"required"`
}

// CapabilityOrchestrationContract routes task types to capability pipelines.
type CapabilityOrchestrationContract struct {
	Routes               map[string]OrchestrationRoute `json:"routes"`
	FailClassification    []string                      `json:"fail_classification"`
}

// OrchestrationRoute is one task-type's capability pipeline.
type OrchestrationRoute struct {
	Pipeline      []string `json:"pipeline"`
	PrimarySkills []string `json:"primary_skills"`
	FallbackSkills []string `json:"fallback_skills"`
	RequiredMCP   []string `json:"required_mcp"`
}

// RequiredFailClassification are the fail_classification values every
// orchestration contract must cover.
var RequiredFailClassification = []string{"route_wrong", "skill_gap", "mcp_unavailable", "tool_auth", "data_issue"}

// KnowledgeAcquisitionContract governs claim sourcing and confidence.
type KnowledgeAcquisitionContract struct {
	SourcePriority []string `json:"source_priority" validate:"required"`
	EvidenceFields []string `json:"evidence_fields"`
}

// RequiredSourcePriorityPrefix is the mandatory first two source-priority entries.
var RequiredSourcePriorityPrefix = []string{"official_spec", "repo_contract"}

// ExperienceFeedbackContract governs how feedback is retained and exported.
type ExperienceFeedbackContract struct {
	RetentionDays              int      `json:"retention_days" validate:"min=1"`
	SensitiveFieldsDenylist    []string `json:"sensitive_fields_denylist" validate:"required"`
	ExportScope                string   `json:"export_scope" validate:"oneof=instance-only aggregated-only"`
	PromotionRequiresReplayPass bool    `json:"promotion_requires_replay_pass"`
}

// InstallSafetyContract fixes the installer's conflict-avoidance policy.
type InstallSafetyContract struct {
	PreserveExistingDefault bool   `json:"preserve_existing_default"`
	OnConflict              string `json:"on_conflict"`
	SameSignatureAction     string `json:"same_signature_action"`
	AllowReplaceOnlyWithBackup bool `json:"allow_replace_only_with_backup"`
}

// InstallProvenanceContract names the installer tool id and required chain.
type InstallProvenanceContract struct {
	InstallerToolID      string   `json:"installer_tool_id" validate:"required"`
	RequiredReportFields []string `json:"required_report_fields"`
	RequiredInvocationFields []string `json:"required_invocation_fields"`
	OperationsRequired   []string `json:"operations_required" validate:"required"`
}

// CIEnforcementContract names the workflows/checks CI must carry.
type CIEnforcementContract struct {
	Required                  bool             `json:"required"`
	RequiredWorkflows         []string         `json:"required_workflows"`
	RequiredJob               string           `json:"required_job"`
	RequiredValidatorSetLabel string           `json:"required_validator_set_label"`
	RequiredValidators        []string         `json:"required_validators"`
	CandidateValidatorsV1_2   []string         `json:"candidate_validators_v1_2"`
	RequiredChecks            []string         `json:"required_checks"`
	FreshnessGate             FreshnessGate    `json:"freshness_gate"`
}

// FreshnessGate bounds the age of handoff logs and route metrics.
type FreshnessGate struct {
	HandoffLogsMaxAgeDays    int `json:"handoff_logs_max_age_days" validate:"min=1"`
	RouteMetricsMaxAgeDays   int `json:"route_metrics_max_age_days" validate:"min=1"`
}

// CapabilityArbitrationContract resolves routing-vs-learning conflicts and
// feeds the metrics-thresholded upgrade decider.
type CapabilityArbitrationContract struct {
	PriorityOrder        []string              `json:"priority_order" validate:"required"`
	ConflictRules        []ArbitrationRule     `json:"conflict_rules"`
	TriggerThresholds     ArbitrationThresholds `json:"trigger_thresholds"`
	SafeAutoPatchSurface SafeAutoPatchSurface  `json:"safe_auto_patch_surface"`
}

// RequiredPriorityOrder is the fixed arbitration priority order.
var RequiredPriorityOrder = []string{"accurate_judgement", "governance", "latency", "exploration"}

// ArbitrationRule is one conflict-pair resolution rule.
type ArbitrationRule struct {
	ConflictPair string `json:"conflict_pair"`
	Resolution   string `json:"resolution"`
}

// ArbitrationThresholds are the three positive trigger thresholds, in percent.
type ArbitrationThresholds struct {
	MisrouteRatePercent           float64 `json:"misroute_rate_percent" validate:"gt=0"`
	ReplayFailureRatePercent      float64 `json:"replay_failure_rate_percent" validate:"gt=0"`
	FirstPassSuccessDropPercent   float64 `json:"first_pass_success_drop_percent" validate:"gt=0"`
}

// SafeAutoPatchSurface bounds what safe-auto upgrades may touch.
type SafeAutoPatchSurface struct {
	EnforcePathPolicy bool     `json:"enforce_path_policy"`
	Allowlist         []string `json:"allowlist"`
	Denylist          []string `json:"denylist"`
}

// --- Reports and metrics ---

// RouteQualityMetrics is the metrics document consumed by the upgrade decider.
type RouteQualityMetrics struct {
	MisrouteRate           float64 `json:"misroute_rate"`
	ReplaySuccessRate      float64 `json:"replay_success_rate"`
	FirstPassSuccessRate   float64 `json:"first_pass_success_rate"`
}

// Timestamp returns the canonical ISO-8601 UTC representation used
// throughout persisted documents ("2026-02-22T09:40:00Z").
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}
