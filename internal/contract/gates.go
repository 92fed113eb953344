package contract

import "github.com/boshu2/identityctl/internal/docstore"

// gatePairing names the contract(s) a "required" gate transitively requires.
// Mirrors the teacher's gate.go Check(step Step) switch-dispatch shape,
// generalized from step-keyed gates to named gate -> contract pairings.
type gatePairing struct {
	gate      string
	contracts []string
	present   func(tr *docstore.TaskRecord) []bool
}

var gatePairings = []gatePairing{
	{
		gate:      "protocol_baseline_review_gate",
		contracts: []string{"protocol_review_contract"},
		present: func(tr *docstore.TaskRecord) []bool {
			return []bool{tr.ProtocolReviewContract != nil}
		},
	},
	{
		gate:      "identity_update_gate",
		contracts: []string{"identity_update_lifecycle_contract", "trigger_regression_contract"},
		present: func(tr *docstore.TaskRecord) []bool {
			return []bool{tr.IdentityUpdateLifecycleContract != nil, tr.TriggerRegressionContract != nil}
		},
	},
	{
		gate:      "collaboration_trigger_gate",
		contracts: []string{"blocker_taxonomy_contract", "collaboration_trigger_contract"},
		present: func(tr *docstore.TaskRecord) []bool {
			return []bool{
				len(tr.BlockerTaxonomyContract.RequiredBlockerTypes) > 0,
				tr.CollaborationTriggerContract.NotifyPolicy != "" || tr.CollaborationTriggerContract.NotifyTiming != "",
			}
		},
	},
	{
		gate:      "orchestration_gate",
		contracts: []string{"capability_orchestration_contract"},
		present: func(tr *docstore.TaskRecord) []bool {
			return []bool{len(tr.CapabilityOrchestrationContract.Routes) > 0}
		},
	},
	{
		gate:      "knowledge_acquisition_gate",
		contracts: []string{"knowledge_acquisition_contract"},
		present: func(tr *docstore.TaskRecord) []bool {
			return []bool{len(tr.KnowledgeAcquisitionContract.SourcePriority) > 0}
		},
	},
	{
		gate:      "experience_feedback_gate",
		contracts: []string{"experience_feedback_contract"},
		present: func(tr *docstore.TaskRecord) []bool {
			return []bool{tr.ExperienceFeedbackContract.ExportScope != ""}
		},
	},
	{
		gate:      "install_safety_gate",
		contracts: []string{"install_safety_contract"},
		present: func(tr *docstore.TaskRecord) []bool {
			return []bool{tr.InstallSafetyContract.OnConflict != ""}
		},
	},
	{
		gate:      "install_provenance_gate",
		contracts: []string{"install_provenance_contract"},
		present: func(tr *docstore.TaskRecord) []bool {
			return []bool{tr.InstallProvenanceContract != nil}
		},
	},
	{
		gate:      "ci_enforcement_gate",
		contracts: []string{"ci_enforcement_contract"},
		present: func(tr *docstore.TaskRecord) []bool {
			return []bool{tr.CIEnforcementContract.Required}
		},
	},
	{
		gate:      "arbitration_gate",
		contracts: []string{"capability_arbitration_contract"},
		present: func(tr *docstore.TaskRecord) []bool {
			return []bool{len(tr.CapabilityArbitrationContract.PriorityOrder) > 0}
		},
	},
}

// resolveGatePairings walks tr.Gates and, for every gate marked "required",
// asserts its paired contract(s) are present on the record.
func resolveGatePairings(r *Report, tr *docstore.TaskRecord) {
	byName := make(map[string]gatePairing, len(gatePairings))
	for _, p := range gatePairings {
		byName[p.gate] = p
	}

	for gate, requirement := range tr.Gates {
		if requirement != "required" {
			continue
		}
		pairing, known := byName[gate]
		if !known {
			r.Add("gates", gate, "unknown gate name")
			continue
		}
		presence := pairing.present(tr)
		for i, ok := range presence {
			if !ok {
				r.Add("gates", gate, "required gate missing paired contract %q", pairing.contracts[i])
			}
		}
	}
}
