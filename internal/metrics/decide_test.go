package metrics

import (
	"testing"

	"github.com/boshu2/identityctl/internal/docstore"
)

func TestDecide_NoTriggerWhenBelowAllThresholds(t *testing.T) {
	m := docstore.RouteQualityMetrics{MisrouteRate: 1, ReplaySuccessRate: 99, FirstPassSuccessRate: 99}
	th := docstore.ArbitrationThresholds{MisrouteRatePercent: 10, ReplayFailureRatePercent: 10, FirstPassSuccessDropPercent: 10}

	got := Decide(m, th)
	if got.UpgradeRequired {
		t.Fatalf("expected no upgrade, got reasons %v", got.Reasons)
	}
}

func TestDecide_MisrouteRateTriggers(t *testing.T) {
	m := docstore.RouteQualityMetrics{MisrouteRate: 15, ReplaySuccessRate: 99, FirstPassSuccessRate: 99}
	th := docstore.ArbitrationThresholds{MisrouteRatePercent: 10, ReplayFailureRatePercent: 10, FirstPassSuccessDropPercent: 10}

	got := Decide(m, th)
	if !got.UpgradeRequired || len(got.Reasons) != 1 {
		t.Fatalf("got %+v, want exactly one misroute reason", got)
	}
}

func TestDecide_AllThreeRulesFire(t *testing.T) {
	m := docstore.RouteQualityMetrics{MisrouteRate: 50, ReplaySuccessRate: 10, FirstPassSuccessRate: 10}
	th := docstore.ArbitrationThresholds{MisrouteRatePercent: 10, ReplayFailureRatePercent: 10, FirstPassSuccessDropPercent: 10}

	got := Decide(m, th)
	if !got.UpgradeRequired || len(got.Reasons) != 3 {
		t.Fatalf("got %+v, want 3 reasons", got)
	}
}

func TestDecide_ReasonOrderIsDeclaredRuleOrder(t *testing.T) {
	m := docstore.RouteQualityMetrics{MisrouteRate: 50, ReplaySuccessRate: 10, FirstPassSuccessRate: 10}
	th := docstore.ArbitrationThresholds{MisrouteRatePercent: 10, ReplayFailureRatePercent: 10, FirstPassSuccessDropPercent: 10}

	got := Decide(m, th)
	wantPrefixes := []string{"misroute_rate", "replay_failure_rate", "first_pass_success_drop"}
	for i, prefix := range wantPrefixes {
		if len(got.Reasons[i]) < len(prefix) || got.Reasons[i][:len(prefix)] != prefix {
			t.Errorf("reason %d = %q, want prefix %q", i, got.Reasons[i], prefix)
		}
	}
}

func TestDecide_ThresholdIsInclusive(t *testing.T) {
	m := docstore.RouteQualityMetrics{MisrouteRate: 10}
	th := docstore.ArbitrationThresholds{MisrouteRatePercent: 10}

	got := Decide(m, th)
	if !got.UpgradeRequired {
		t.Fatal("expected >= comparison to trigger at exact threshold")
	}
}
