// Package metrics implements the pure decision function that turns
// RouteQualityMetrics and a capability_arbitration_contract's trigger
// thresholds into an upgrade-required verdict. Grounded on the teacher's
// internal/goals.ComputeDrift: a deterministic function over two snapshots
// with no I/O, no clock, and sort-stable reasons, generalized here from
// goal-drift scoring to the three-rule upgrade-trigger disjunction.
package metrics

import (
	"fmt"
	"math"
	"strconv"

	"github.com/boshu2/identityctl/internal/docstore"
)

// Decision is the output of Decide.
type Decision struct {
	UpgradeRequired bool
	Reasons         []string
}

// Decide evaluates the disjunction: misroute_rate >= threshold, OR
// (100 - replay_success_rate) >= threshold, OR
// (100 - first_pass_success_rate) >= threshold. Reasons are emitted in
// declared rule order regardless of which rules fired, so the decision is
// monotone in any single failing rate and deterministic across calls.
func Decide(m docstore.RouteQualityMetrics, t docstore.ArbitrationThresholds) Decision {
	var reasons []string
	num := func(v float64) string {
		return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
	}

	if m.MisrouteRate >= t.MisrouteRatePercent {
		reasons = append(reasons, fmt.Sprintf(
			"misroute_rate %s >= threshold %s", num(m.MisrouteRate), num(t.MisrouteRatePercent)))
	}

	replayFailureRate := 100 - m.ReplaySuccessRate
	if replayFailureRate >= t.ReplayFailureRatePercent {
		reasons = append(reasons, fmt.Sprintf(
			"replay_failure_rate %s >= threshold %s", num(replayFailureRate), num(t.ReplayFailureRatePercent)))
	}

	firstPassDrop := 100 - m.FirstPassSuccessRate
	if firstPassDrop >= t.FirstPassSuccessDropPercent {
		reasons = append(reasons, fmt.Sprintf(
			"first_pass_success_drop %s >= threshold %s", num(firstPassDrop), num(t.FirstPassSuccessDropPercent)))
	}

	return Decision{UpgradeRequired: len(reasons) > 0, Reasons: reasons}
}
