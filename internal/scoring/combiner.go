package scoring

import (
	"github.com/ananthlk/Mobius-OS-sub002/internal/casestate"
)

// Combine folds time-adjusted risks into the base distribution, in fixed
// order:
//
//  1. coverage_loss moves YES mass to NO,
//  2. retrospective_denial does the same,
//  3. the combined payer+provider error mass scales every state down and
//     lands on UNKNOWN, which stands for "unresolvable due to error".
//
// The result is normalized with the round-off residual on the largest entry.
func Combine(base casestate.Distribution, risks map[string]float64) casestate.Distribution {
	f := base

	if r, ok := risks[RiskCoverageLoss]; ok {
		moved := f.Yes * r
		f.Yes -= moved
		f.No += moved
	}

	if r, ok := risks[RiskRetroDenial]; ok {
		moved := f.Yes * r
		f.Yes -= moved
		f.No += moved
	}

	e := risks[RiskPayerError] + risks[RiskProviderError]
	if e > 1 {
		// Both error channels amplified to certainty; everything is noise.
		e = 1
	}
	if e > 0 {
		f.Yes *= 1 - e
		f.No *= 1 - e
		f.NotEstablished *= 1 - e
		f.Unknown *= 1 - e
		f.Unknown += e
	}

	return f.Normalize()
}
