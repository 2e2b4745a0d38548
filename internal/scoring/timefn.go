package scoring

import (
	"math"

	"github.com/ananthlk/Mobius-OS-sub002/internal/casestate"
)

// retroDecayHorizon is the day count past which a retrospective denial can no
// longer occur (timely-filing style cutoff).
const retroDecayHorizon = 60.0

// amplifyAlpha returns the exponential growth rate for future-tense risks.
func amplifyAlpha(risk string) float64 {
	if risk == RiskCoverageLoss {
		return 0.001
	}
	return 0.0005
}

// decayAlpha returns the exponential decay rate for past-tense risks other
// than retrospective denial.
func decayAlpha(risk string) float64 {
	switch risk {
	case RiskPayerError, RiskProviderError:
		return 0.001
	}
	return 0.0005
}

// AdjustRisk applies the time adjustment to one risk probability given the
// event tense and the absolute day gap to the date of service.
//
// FUTURE amplifies: the further out the service, the more can go wrong before
// it happens. PAST decays: exposure shrinks as the service recedes, except
// retrospective denial which falls linearly to zero at the 60-day horizon.
func AdjustRisk(risk string, p float64, tense casestate.Tense, days float64) float64 {
	switch tense {
	case casestate.TenseFuture:
		return math.Min(1, p*math.Exp(amplifyAlpha(risk)*days))
	case casestate.TensePast:
		if risk == RiskRetroDenial {
			return p * math.Max(0, 1-days/retroDecayHorizon)
		}
		return math.Max(0, p*math.Exp(-decayAlpha(risk)*days))
	}
	return p
}

// AdjustRisks applies AdjustRisk to every entry of a risk map.
func AdjustRisks(risks map[string]float64, tense casestate.Tense, days float64) map[string]float64 {
	out := make(map[string]float64, len(risks))
	for name, p := range risks {
		out[name] = AdjustRisk(name, p, tense, days)
	}
	return out
}
