// Package scoring layers the eligibility probability: a base distribution
// from direct payer evidence or historical propensity, time-adjusted risk
// factors, and a combiner that folds the risks into the final four-state
// distribution.
package scoring

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ananthlk/Mobius-OS-sub002/internal/casestate"
	"github.com/ananthlk/Mobius-OS-sub002/internal/propensity"
)

// ScoringVersion tags every persisted score run.
const ScoringVersion = "2.1.0"

// Oracle is the propensity lookup the base calculator falls back to when no
// direct payer evidence exists.
type Oracle interface {
	Propensity(ctx context.Context, dims map[string]string) (propensity.Result, error)
}

// BaseResult is the base distribution plus its provenance.
type BaseResult struct {
	Distribution casestate.Distribution
	Source       string // direct_evidence or historical_fallback
	Confidence   float64
	Backoff      propensity.Result
}

// BaseCalculator resolves the starting distribution before risks apply.
type BaseCalculator struct {
	oracle Oracle
}

func NewBaseCalculator(oracle Oracle) *BaseCalculator {
	return &BaseCalculator{oracle: oracle}
}

// Calculate returns the deterministic one-hot distribution when a coverage
// check answered YES or NO, else the historical fallback.
func (b *BaseCalculator) Calculate(ctx context.Context, cs casestate.CaseState, today time.Time) BaseResult {
	// 1. Direct evidence path: a completed check is ground truth.
	if cs.EligibilityCheck.Checked {
		switch cs.EligibilityTruth.Status {
		case casestate.StatusYes, casestate.StatusNo:
			return BaseResult{
				Distribution: casestate.OneHot(cs.EligibilityTruth.Status),
				Source:       casestate.BaseSourceDirect,
				Confidence:   1.0,
			}
		}
	}

	// 2. Historical fallback through the oracle.
	result, err := b.oracle.Propensity(ctx, KnownDims(cs, today))
	if err != nil {
		log.Warn().Err(err).Msg("Propensity lookup failed, falling back to uniform")
		result = propensity.Result{}
	}

	dist := result.Probabilities
	if dist.Sum() == 0 {
		// 3. No historical mass at all.
		dist = casestate.Uniform()
	} else {
		dist = dist.Normalize()
	}

	return BaseResult{
		Distribution: dist,
		Source:       casestate.BaseSourceHistorical,
		Confidence:   result.Confidence,
		Backoff:      result,
	}
}

// KnownDims assembles the propensity dimensions derivable from the case.
// UNKNOWN enum values do not count as known.
func KnownDims(cs casestate.CaseState, today time.Time) map[string]string {
	dims := make(map[string]string)
	if cs.HealthPlan.PayerID != "" {
		dims["payer_id"] = cs.HealthPlan.PayerID
	}
	if pt := cs.HealthPlan.ProductType; pt != "" && pt != casestate.ProductUnknown {
		dims["product_type"] = string(pt)
	}
	if ct := cs.HealthPlan.ContractStatus; ct != "" && ct != casestate.ContractStatusUnknown {
		dims["contract_status"] = string(ct)
	}
	if tense := cs.Timing.EventTense; tense != "" && tense != casestate.TenseUnknown {
		dims["event_tense"] = string(tense)
	}
	if sex := cs.Patient.Sex; sex != "" && sex != casestate.SexUnknown {
		dims["sex"] = string(sex)
	}
	if bucket := AgeBucket(cs.Patient.DateOfBirth, today); bucket != "" {
		dims["age_bucket"] = bucket
	}
	return dims
}

// AgeBucket maps a date of birth to its propensity stratum, "" when the DOB
// is missing, malformed, or in the future.
func AgeBucket(dateOfBirth string, today time.Time) string {
	dob, ok := casestate.ParseDate(dateOfBirth)
	if !ok {
		return ""
	}
	years := today.Year() - dob.Year()
	if today.Month() < dob.Month() || (today.Month() == dob.Month() && today.Day() < dob.Day()) {
		years--
	}
	switch {
	case years < 0:
		return ""
	case years <= 17:
		return "0-17"
	case years <= 25:
		return "18-25"
	case years <= 35:
		return "26-35"
	case years <= 45:
		return "36-45"
	case years <= 55:
		return "46-55"
	case years <= 65:
		return "56-65"
	}
	return "66+"
}
