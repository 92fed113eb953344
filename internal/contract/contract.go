// Package contract implements the Contract Model: validation of a
// TaskRecord's ~20 named contracts against their required keys, typed
// values, and enumerated constraints, plus gate <-> contract pairing
// resolution. Findings accumulate rather than short-circuit, matching the
// teacher's internal/ratchet validation style (collect every failure in one
// pass rather than stopping at the first).
package contract

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/boshu2/identityctl/internal/docstore"
)

var structValidate = validator.New()

// Finding is one accumulated validation failure with a stable identifier.
type Finding struct {
	Contract string `json:"contract"`
	Field    string `json:"field"`
	Message  string `json:"message"`
}

// ID returns the stable "<contract>.<field>" identifier used in reports.
func (f Finding) ID() string {
	if f.Field == "" {
		return f.Contract
	}
	return f.Contract + "." + f.Field
}

// Report accumulates Findings across an entire TaskRecord validation pass.
type Report struct {
	Findings []Finding
}

// Add appends one finding.
func (r *Report) Add(contract, field, format string, args ...any) {
	r.Findings = append(r.Findings, Finding{
		Contract: contract,
		Field:    field,
		Message:  fmt.Sprintf(format, args...),
	})
}

// OK reports whether no findings were accumulated.
func (r *Report) OK() bool { return len(r.Findings) == 0 }

// addStructTagFindings runs go-playground/validator's struct-tag checks
// over v (a pointer to a contract struct) and appends any failures under
// contract, field-named as "json_tag" per the struct's own tags.
func addStructTagFindings(r *Report, contract string, v any) {
	err := structValidate.Struct(v)
	if err == nil {
		return
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		r.Add(contract, "", "validation error: %v", err)
		return
	}
	for _, fe := range verrs {
		r.Add(contract, fe.Field(), "failed %q constraint (got %v)", fe.Tag(), fe.Value())
	}
}

// RequiredSkeletonKeys are the top-level TaskRecord keys every task record
// must carry regardless of which optional contracts it references.
var RequiredSkeletonKeys = []string{
	"objective", "state_machine", "gates", "source_of_truth",
	"escalation_policy", "required_artifacts", "post_execution_mandatory",
	"evaluation_contract", "reasoning_loop_contract", "routing_contract",
	"rulebook_contract", "blocker_taxonomy_contract",
	"collaboration_trigger_contract", "capability_orchestration_contract",
	"knowledge_acquisition_contract", "experience_feedback_contract",
	"install_safety_contract", "ci_enforcement_contract",
	"capability_arbitration_contract",
}

// Options carries the inputs Validate needs beyond the task record itself.
type Options struct {
	// CreatorIdentityID is the identity id the routing contract's
	// capability_gap route must name, per spec: "capability_gap route
	// includes the creator identity".
	CreatorIdentityID string
	// RulebookPathExists reports whether rulebook_contract.rulebook_path
	// resolves on disk. Injected so Validate stays I/O-free.
	RulebookPathExists func(path string) bool
	// EvidenceRoot is the directory protocol_review_contract's
	// evidence_report_path_pattern glob is resolved under. Left empty,
	// evidence-freshness checking is skipped (e.g. when validating a task
	// record with no filesystem of its own, as in unit tests).
	EvidenceRoot string
	// Now is the reference time for evidence-freshness comparisons.
	// Defaults to time.Now when zero.
	Now time.Time
}

// Validate runs every applicable contract check against tr, accumulating
// findings rather than stopping at the first failure. raw is the same
// document decoded into raw top-level keys, used to distinguish "key
// absent" from "key present but zero-valued" for the skeleton check.
func Validate(tr *docstore.TaskRecord, raw map[string]json.RawMessage, opts Options) *Report {
	r := &Report{}

	checkSkeleton(r, raw)
	checkObjective(r, tr.Objective)
	checkStateMachine(r, tr.StateMachine)
	checkEvaluationContract(r, tr.EvaluationContract)
	checkReasoningLoopContract(r, tr.ReasoningLoopContract)
	checkRoutingContract(r, tr.RoutingContract, opts.CreatorIdentityID)
	checkRulebookContract(r, tr.RulebookContract, opts.RulebookPathExists)
	checkBlockerTaxonomyContract(r, tr.BlockerTaxonomyContract)
	checkCollaborationTriggerContract(r, tr.CollaborationTriggerContract)
	checkCapabilityOrchestrationContract(r, tr.CapabilityOrchestrationContract)
	checkKnowledgeAcquisitionContract(r, tr.KnowledgeAcquisitionContract)
	checkExperienceFeedbackContract(r, tr.ExperienceFeedbackContract)
	checkInstallSafetyContract(r, tr.InstallSafetyContract)
	checkCIEnforcementContract(r, tr.CIEnforcementContract)
	checkCapabilityArbitrationContract(r, tr.CapabilityArbitrationContract)

	if tr.ProtocolReviewContract != nil {
		checkProtocolReviewContract(r, *tr.ProtocolReviewContract, opts.EvidenceRoot, opts.Now)
	}
	if tr.IdentityUpdateLifecycleContract != nil {
		checkIdentityUpdateLifecycleContract(r, *tr.IdentityUpdateLifecycleContract)
	}
	if tr.TriggerRegressionContract != nil {
		checkTriggerRegressionContract(r, *tr.TriggerRegressionContract)
	}
	if tr.InstallProvenanceContract != nil {
		checkInstallProvenanceContract(r, *tr.InstallProvenanceContract)
	}

	resolveGatePairings(r, tr)

	sortFindings(r)
	return r
}

// sortFindings orders Findings by their stable "<contract>.<field>"
// identifier using a locale-aware collator rather than byte-wise
// sort.Strings, so report ordering stays stable if contract names ever
// carry non-ASCII text (e.g. a future localized contract label) instead of
// silently depending on Go's default byte ordering.
func sortFindings(r *Report) {
	col := collate.New(language.Und)
	sort.Slice(r.Findings, func(i, j int) bool {
		return col.CompareString(r.Findings[i].ID(), r.Findings[j].ID()) < 0
	})
}

func checkSkeleton(r *Report, raw map[string]json.RawMessage) {
	for _, key := range RequiredSkeletonKeys {
		if _, present := raw[key]; !present {
			r.Add("task_record", key, "required top-level key missing")
		}
	}
}

func checkObjective(r *Report, o docstore.Objective) {
	addStructTagFindings(r, "objective", &o)
}

func checkStateMachine(r *Report, sm docstore.StateMachine) {
	addStructTagFindings(r, "state_machine", &sm)
	have := make(map[string]bool, len(sm.States))
	for _, s := range sm.States {
		have[s] = true
	}
	for _, want := range docstore.RequiredStates {
		if !have[want] {
			r.Add("state_machine", "states", "missing required state %q", want)
		}
	}
}

func checkEvaluationContract(r *Report, c docstore.EvaluationContract) {
	addStructTagFindings(r, "evaluation_contract", &c)
	want := map[string]bool{"api_evidence": false, "event_evidence": false, "ui_evidence": false}
	for _, e := range c.RequiredEvidenceTriplet {
		if _, ok := want[e]; ok {
			want[e] = true
		}
	}
	for k, found := range want {
		if !found {
			r.Add("evaluation_contract", "required_evidence_triplet", "missing %q", k)
		}
	}
	if !c.ConsistencyRequired {
		r.Add("evaluation_contract", "consistency_required", "must be true")
	}
	if strings.TrimSpace(c.FailAction) == "" {
		r.Add("evaluation_contract", "fail_action", "must be set")
	}
}

func checkReasoningLoopContract(r *Report, c docstore.ReasoningLoopContract) {
	addStructTagFindings(r, "reasoning_loop_contract", &c)
	have := make(map[string]bool, len(c.MandatoryFieldsPerAttempt))
	for _, f := range c.MandatoryFieldsPerAttempt {
		have[f] = true
	}
	for _, want := range docstore.RequiredAttemptFields {
		if !have[want] {
			r.Add("reasoning_loop_contract", "mandatory_fields_per_attempt", "missing %q", want)
		}
	}
}

func checkRoutingContract(r *Report, c docstore.RoutingContract, creatorID string) {
	addStructTagFindings(r, "routing_contract", &c)
	if !c.AutoRouteEnabled {
		r.Add("routing_contract", "auto_route_enabled", "must be true")
	}
	if len(c.ProblemTypeRoutes) == 0 {
		r.Add("routing_contract", "problem_type_routes", "must be non-empty")
	}
	if creatorID == "" {
		return
	}
	route, ok := c.ProblemTypeRoutes["capability_gap"]
	if !ok {
		r.Add("routing_contract", "problem_type_routes.capability_gap", "missing route")
	} else if !strings.Contains(route, creatorID) {
		r.Add("routing_contract", "problem_type_routes.capability_gap", "route %q does not include creator identity %q", route, creatorID)
	}
}

func checkRulebookContract(r *Report, c docstore.RulebookContract, pathExists func(string) bool) {
	addStructTagFindings(r, "rulebook_contract", &c)
	if !c.AppendOnly {
		r.Add("rulebook_contract", "append_only", "must be true")
	}
	if pathExists != nil && c.RulebookPath != "" && !pathExists(c.RulebookPath) {
		r.Add("rulebook_contract", "rulebook_path", "does not resolve: %s", c.RulebookPath)
	}
}

func checkProtocolReviewContract(r *Report, c docstore.ProtocolReviewContract, evidenceRoot string, now time.Time) {
	addStructTagFindings(r, "protocol_review_contract", &c)
	if len(c.MustReviewSources) == 0 {
		r.Add("protocol_review_contract", "must_review_sources", "must be non-empty")
	}
	if evidenceRoot == "" || c.EvidenceReportPathPattern == "" {
		return
	}
	if now.IsZero() {
		now = time.Now()
	}
	CheckEvidence(r, []EvidenceRequirement{{
		Contract:      "protocol_review_contract",
		Root:          evidenceRoot,
		Pattern:       c.EvidenceReportPathPattern,
		MaxLogAgeDays: c.MaxReviewAgeDays,
	}}, now)
}

func checkIdentityUpdateLifecycleContract(r *Report, c docstore.IdentityUpdateLifecycleContract) {
	addStructTagFindings(r, "identity_update_lifecycle_contract.validation_contract", &c.ValidationContract)
	if len(c.ValidationContract.RequiredChecks) == 0 {
		r.Add("identity_update_lifecycle_contract", "validation_contract.required_checks", "must be non-empty")
	}
}

func checkTriggerRegressionContract(r *Report, c docstore.TriggerRegressionContract) {
	addStructTagFindings(r, "trigger_regression_contract", &c)
	have := make(map[string]bool, len(c.RequiredSuites))
	for _, s := range c.RequiredSuites {
		have[s] = true
	}
	for _, want := range docstore.RequiredRegressionSuites {
		if !have[want] {
			r.Add("trigger_regression_contract", "required_suites", "missing %q", want)
		}
	}
}

func checkBlockerTaxonomyContract(r *Report, c docstore.BlockerTaxonomyContract) {
	addStructTagFindings(r, "blocker_taxonomy_contract", &c)
	have := make(map[string]bool, len(c.RequiredBlockerTypes))
	for _, b := range c.RequiredBlockerTypes {
		have[b] = true
	}
	for _, want := range docstore.RequiredBlockerTypes {
		if !have[want] {
			r.Add("blocker_taxonomy_contract", "required_blocker_types", "missing %q", want)
		}
	}
}

func checkCollaborationTriggerContract(r *Report, c docstore.CollaborationTriggerContract) {
	addStructTagFindings(r, "collaboration_trigger_contract", &c)
	if c.NotifyTiming != "immediate" {
		r.Add("collaboration_trigger_contract", "notify_timing", `must be "immediate", got %q`, c.NotifyTiming)
	}
	if !c.StateChangeBypassDedupe {
		r.Add("collaboration_trigger_contract", "state_change_bypass_dedupe", "must be true")
	}
	if !c.MustEmitReceiptInChat {
		r.Add("collaboration_trigger_contract", "must_emit_receipt_in_chat", "must be true")
	}
}

func checkCapabilityOrchestrationContract(r *Report, c docstore.CapabilityOrchestrationContract) {
	if len(c.Routes) == 0 {
		r.Add("capability_orchestration_contract", "routes", "must be non-empty")
	}
	for taskType, route := range c.Routes {
		if len(route.Pipeline) == 0 {
			r.Add("capability_orchestration_contract", "routes."+taskType+".pipeline", "must be non-empty")
		}
	}
	have := make(map[string]bool, len(c.FailClassification))
	for _, f := range c.FailClassification {
		have[f] = true
	}
	for _, want := range docstore.RequiredFailClassification {
		if !have[want] {
			r.Add("capability_orchestration_contract", "fail_classification", "missing %q", want)
		}
	}
}

func checkKnowledgeAcquisitionContract(r *Report, c docstore.KnowledgeAcquisitionContract) {
	addStructTagFindings(r, "knowledge_acquisition_contract", &c)
	for i, want := range docstore.RequiredSourcePriorityPrefix {
		if i >= len(c.SourcePriority) || c.SourcePriority[i] != want {
			r.Add("knowledge_acquisition_contract", "source_priority", "position %d must be %q", i, want)
		}
	}
}

func checkExperienceFeedbackContract(r *Report, c docstore.ExperienceFeedbackContract) {
	addStructTagFindings(r, "experience_feedback_contract", &c)
	if len(c.SensitiveFieldsDenylist) == 0 {
		r.Add("experience_feedback_contract", "sensitive_fields_denylist", "must be non-empty")
	}
	if !c.PromotionRequiresReplayPass {
		r.Add("experience_feedback_contract", "promotion_requires_replay_pass", "must be true")
	}
}

func checkInstallSafetyContract(r *Report, c docstore.InstallSafetyContract) {
	if !c.PreserveExistingDefault {
		r.Add("install_safety_contract", "preserve_existing_default", "must be true")
	}
	if c.OnConflict != "abort_and_explain" {
		r.Add("install_safety_contract", "on_conflict", `must be "abort_and_explain", got %q`, c.OnConflict)
	}
	if c.SameSignatureAction != "no_op_with_report" {
		r.Add("install_safety_contract", "same_signature_action", `must be "no_op_with_report", got %q`, c.SameSignatureAction)
	}
	if !c.AllowReplaceOnlyWithBackup {
		r.Add("install_safety_contract", "allow_replace_only_with_backup", "must be true")
	}
}

func checkInstallProvenanceContract(r *Report, c docstore.InstallProvenanceContract) {
	addStructTagFindings(r, "install_provenance_contract", &c)
	if len(c.OperationsRequired) == 0 {
		r.Add("install_provenance_contract", "operations_required", "must be non-empty")
	}
}

func checkCIEnforcementContract(r *Report, c docstore.CIEnforcementContract) {
	if !c.Required {
		return
	}
	if len(c.RequiredWorkflows) == 0 {
		r.Add("ci_enforcement_contract", "required_workflows", "must be non-empty when required")
	}
	if c.RequiredJob == "" {
		r.Add("ci_enforcement_contract", "required_job", "must be set when required")
	}
	if len(c.RequiredValidators) == 0 {
		r.Add("ci_enforcement_contract", "required_validators", "must be non-empty when required")
	}
	if c.FreshnessGate.HandoffLogsMaxAgeDays <= 0 {
		r.Add("ci_enforcement_contract", "freshness_gate.handoff_logs_max_age_days", "must be positive")
	}
	if c.FreshnessGate.RouteMetricsMaxAgeDays <= 0 {
		r.Add("ci_enforcement_contract", "freshness_gate.route_metrics_max_age_days", "must be positive")
	}
}

func checkCapabilityArbitrationContract(r *Report, c docstore.CapabilityArbitrationContract) {
	addStructTagFindings(r, "capability_arbitration_contract.trigger_thresholds", &c.TriggerThresholds)
	if len(c.PriorityOrder) != len(docstore.RequiredPriorityOrder) {
		r.Add("capability_arbitration_contract", "priority_order", "must list exactly %v", docstore.RequiredPriorityOrder)
	} else {
		for i, want := range docstore.RequiredPriorityOrder {
			if c.PriorityOrder[i] != want {
				r.Add("capability_arbitration_contract", "priority_order", "position %d must be %q, got %q", i, want, c.PriorityOrder[i])
			}
		}
	}
	if len(c.ConflictRules) < 4 {
		r.Add("capability_arbitration_contract", "conflict_rules", "expected at least 4 conflict rules, got %d", len(c.ConflictRules))
	}
}
