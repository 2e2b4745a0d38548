package scoring

import (
	"math"
	"time"

	"github.com/ananthlk/Mobius-OS-sub002/internal/casestate"
)

// Tau is the recency decay constant in days: a visit Tau days out carries
// weight 1/e.
const Tau = 90.0

// WeightedAverage aggregates per-visit probabilities into one headline
// number, weighting each visit by how close it is to today. Visits without a
// probability or a parseable date do not participate. Returns nil when no
// visit qualifies; a single qualifying visit returns its probability exactly.
func WeightedAverage(visits []casestate.VisitInfo, today time.Time) *float64 {
	type sample struct {
		p float64
		w float64
	}
	var samples []sample

	for _, v := range visits {
		if v.EligibilityProbability == nil {
			continue
		}
		if _, ok := casestate.ParseDate(v.VisitDate); !ok {
			continue
		}
		gap := casestate.GapDays(v.VisitDate, today)
		samples = append(samples, sample{p: *v.EligibilityProbability, w: math.Exp(-gap / Tau)})
	}

	if len(samples) == 0 {
		return nil
	}
	if len(samples) == 1 {
		p := samples[0].p
		return &p
	}

	var num, den float64
	for _, s := range samples {
		num += s.p * s.w
		den += s.w
	}
	if den == 0 {
		return nil
	}
	mean := num / den
	return &mean
}
