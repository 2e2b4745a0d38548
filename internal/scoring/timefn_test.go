package scoring

import (
	"math"
	"testing"

	"github.com/ananthlk/Mobius-OS-sub002/internal/casestate"
)

const eps = 1e-12

func closeTo(a, b float64) bool {
	return math.Abs(a-b) <= eps
}

func TestAdjustRiskIdentityAtZeroDays(t *testing.T) {
	risks := []string{RiskCoverageLoss, RiskRetroDenial, RiskPayerError, RiskProviderError}
	tenses := []casestate.Tense{casestate.TenseFuture, casestate.TensePast, casestate.TenseUnknown}

	for _, risk := range risks {
		for _, tense := range tenses {
			if got := AdjustRisk(risk, 0.3, tense, 0); !closeTo(got, 0.3) {
				t.Errorf("AdjustRisk(%s, 0.3, %s, 0) = %v, want 0.3", risk, tense, got)
			}
		}
	}
}

func TestRetroDenialLinearDecay(t *testing.T) {
	tests := []struct {
		days     float64
		expected float64
	}{
		{0, 0.10},
		{15, 0.075},
		{30, 0.05},
		{45, 0.025},
		{59, 0.10 * (1 - 59.0/60.0)},
	}
	for _, tt := range tests {
		if got := AdjustRisk(RiskRetroDenial, 0.10, casestate.TensePast, tt.days); !closeTo(got, tt.expected) {
			t.Errorf("Retro decay at t=%v = %v, want %v", tt.days, got, tt.expected)
		}
	}
}

func TestRetroDenialZeroAtHorizon(t *testing.T) {
	for _, days := range []float64{60, 61, 90, 365, 10000} {
		if got := AdjustRisk(RiskRetroDenial, 0.10, casestate.TensePast, days); got != 0 {
			t.Errorf("Retro risk at t=%v = %v, want exactly 0", days, got)
		}
	}
}

func TestFutureAmplification(t *testing.T) {
	// coverage_loss amplifies at alpha=0.001, the error risks at 0.0005.
	if got, want := AdjustRisk(RiskCoverageLoss, 0.05, casestate.TenseFuture, 30), 0.05*math.Exp(0.001*30); !closeTo(got, want) {
		t.Errorf("coverage_loss amplification = %v, want %v", got, want)
	}
	if got, want := AdjustRisk(RiskPayerError, 0.05, casestate.TenseFuture, 30), 0.05*math.Exp(0.0005*30); !closeTo(got, want) {
		t.Errorf("payer_error amplification = %v, want %v", got, want)
	}
}

func TestFutureAmplificationCapsAtOne(t *testing.T) {
	if got := AdjustRisk(RiskCoverageLoss, 0.9, casestate.TenseFuture, 10000); got != 1 {
		t.Errorf("Amplification must cap at 1, got %v", got)
	}
}

func TestPastDecay(t *testing.T) {
	// payer/provider errors decay at alpha=0.001, everything else at 0.0005.
	if got, want := AdjustRisk(RiskPayerError, 0.05, casestate.TensePast, 90), 0.05*math.Exp(-0.001*90); !closeTo(got, want) {
		t.Errorf("payer_error decay = %v, want %v", got, want)
	}
	if got, want := AdjustRisk(RiskProviderError, 0.03, casestate.TensePast, 90), 0.03*math.Exp(-0.001*90); !closeTo(got, want) {
		t.Errorf("provider_error decay = %v, want %v", got, want)
	}
	if got, want := AdjustRisk(RiskCoverageLoss, 0.10, casestate.TensePast, 90), 0.10*math.Exp(-0.0005*90); !closeTo(got, want) {
		t.Errorf("default decay = %v, want %v", got, want)
	}
}

func TestUnknownTenseIdentity(t *testing.T) {
	if got := AdjustRisk(RiskCoverageLoss, 0.42, casestate.TenseUnknown, 500); got != 0.42 {
		t.Errorf("UNKNOWN tense must be identity, got %v", got)
	}
}

func TestAdjustRisksMapsAllEntries(t *testing.T) {
	in := map[string]float64{
		RiskRetroDenial: 0.10,
		RiskPayerError:  0.05,
	}
	out := AdjustRisks(in, casestate.TensePast, 90)
	if len(out) != 2 {
		t.Fatalf("Expected 2 adjusted risks, got %d", len(out))
	}
	if out[RiskRetroDenial] != 0 {
		t.Errorf("Retro risk at 90 days should be 0, got %v", out[RiskRetroDenial])
	}
	if in[RiskRetroDenial] != 0.10 {
		t.Error("AdjustRisks mutated its input")
	}
}
