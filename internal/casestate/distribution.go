package casestate

import (
	"fmt"
	"math"
)

// SumTolerance is the maximum drift from 1.0 a valid distribution may carry.
const SumTolerance = 1e-6

// Distribution is a probability mass over the four eligibility states. It is a
// fixed-size record rather than an open map so a missing key can never
// silently zero a state.
type Distribution struct {
	Yes            float64 `json:"YES"`
	No             float64 `json:"NO"`
	NotEstablished float64 `json:"NOT_ESTABLISHED"`
	Unknown        float64 `json:"UNKNOWN"`
}

// OneHot puts all mass on a single state.
func OneHot(s EligibilityStatus) Distribution {
	var d Distribution
	d.Set(s, 1)
	return d
}

// Uniform spreads mass evenly, the fallback when no evidence exists at all.
func Uniform() Distribution {
	return Distribution{Yes: 0.25, No: 0.25, NotEstablished: 0.25, Unknown: 0.25}
}

// Get returns the mass on a state.
func (d Distribution) Get(s EligibilityStatus) float64 {
	switch s {
	case StatusYes:
		return d.Yes
	case StatusNo:
		return d.No
	case StatusNotEstablished:
		return d.NotEstablished
	case StatusUnknown:
		return d.Unknown
	}
	return 0
}

// Set assigns the mass on a state.
func (d *Distribution) Set(s EligibilityStatus, v float64) {
	switch s {
	case StatusYes:
		d.Yes = v
	case StatusNo:
		d.No = v
	case StatusNotEstablished:
		d.NotEstablished = v
	case StatusUnknown:
		d.Unknown = v
	}
}

// Sum returns the total mass.
func (d Distribution) Sum() float64 {
	return d.Yes + d.No + d.NotEstablished + d.Unknown
}

// Largest returns the state currently holding the most mass. Ties resolve in
// canonical state order.
func (d Distribution) Largest() EligibilityStatus {
	best := StatusYes
	bestV := d.Yes
	for _, s := range Statuses[1:] {
		if v := d.Get(s); v > bestV {
			best, bestV = s, v
		}
	}
	return best
}

// Normalize scales the distribution to sum to exactly 1. The residual left by
// floating-point division lands on the largest entry so the invariant holds
// bit-for-bit. A non-positive total collapses to the uniform distribution.
func (d Distribution) Normalize() Distribution {
	total := d.Sum()
	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return Uniform()
	}
	out := Distribution{
		Yes:            d.Yes / total,
		No:             d.No / total,
		NotEstablished: d.NotEstablished / total,
		Unknown:        d.Unknown / total,
	}
	if residual := 1 - out.Sum(); residual != 0 {
		largest := out.Largest()
		out.Set(largest, out.Get(largest)+residual)
	}
	return out
}

// Validate enforces the distribution invariant: finite, non-negative entries
// summing to 1 within SumTolerance.
func (d Distribution) Validate() error {
	for _, s := range Statuses {
		v := d.Get(s)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("state %s is not finite", s)
		}
		if v < 0 {
			return fmt.Errorf("state %s is negative: %g", s, v)
		}
	}
	if diff := math.Abs(d.Sum() - 1); diff > SumTolerance {
		return fmt.Errorf("distribution sums to %g, off by %g", d.Sum(), diff)
	}
	return nil
}

// BaseSource tags how the base distribution was obtained.
const (
	BaseSourceDirect     = "direct_evidence"
	BaseSourceHistorical = "historical_fallback"
)

// ScoreState is the full output of one scoring pass. Persisted per run,
// append-only; the latest run is what callers see.
type ScoreState struct {
	BaseProbability    float64            `json:"base_probability"`
	BaseConfidence     float64            `json:"base_confidence"`
	BaseSource         string             `json:"base_source"`
	StateProbabilities Distribution       `json:"state_probabilities"`
	RiskProbabilities  map[string]float64 `json:"risk_probabilities"`
	AdjustedRisks      map[string]float64 `json:"adjusted_risks"`
	BackoffLevel       int                `json:"backoff_level"`
	BackoffDims        []string           `json:"backoff_dims,omitempty"`
	SampleSize         int                `json:"sample_size"`
	TimeGapDays        float64            `json:"time_gap_days"`
	ScoringVersion     string             `json:"scoring_version"`
}

// Clone returns a deep copy of the score state.
func (s ScoreState) Clone() ScoreState {
	out := s
	if s.RiskProbabilities != nil {
		out.RiskProbabilities = make(map[string]float64, len(s.RiskProbabilities))
		for k, v := range s.RiskProbabilities {
			out.RiskProbabilities[k] = v
		}
	}
	if s.AdjustedRisks != nil {
		out.AdjustedRisks = make(map[string]float64, len(s.AdjustedRisks))
		for k, v := range s.AdjustedRisks {
			out.AdjustedRisks[k] = v
		}
	}
	if s.BackoffDims != nil {
		out.BackoffDims = append([]string(nil), s.BackoffDims...)
	}
	return out
}
