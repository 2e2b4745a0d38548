package scoring

import (
	"context"
	"time"

	"github.com/ananthlk/Mobius-OS-sub002/internal/casestate"
)

// Scorer wires the base calculator, risk calculator, time function, and
// combiner into a single pass. Deterministic for a fixed today.
type Scorer struct {
	base  *BaseCalculator
	risks *RiskCalculator
}

func NewScorer(oracle Oracle, stats RiskStats) *Scorer {
	return &Scorer{
		base:  NewBaseCalculator(oracle),
		risks: NewRiskCalculator(stats),
	}
}

// Score produces the full score state for a case. providerHint carries the
// visit's provider during per-visit scoring, "" at case level.
func (s *Scorer) Score(ctx context.Context, cs casestate.CaseState, today time.Time, providerHint string) casestate.ScoreState {
	// 1. Base distribution (direct evidence or historical fallback)
	base := s.base.Calculate(ctx, cs, today)

	// 2. Time gap to the date of service
	gap := casestate.GapDays(cs.Timing.DOSDate, today)

	// 3. Base risks for the active tense
	baseRisks := s.risks.Calculate(ctx, cs, providerHint)

	// 4. Time adjustment
	adjusted := AdjustRisks(baseRisks, cs.Timing.EventTense, gap)

	// 5. Fold risks into the distribution
	final := Combine(base.Distribution, adjusted)

	return casestate.ScoreState{
		BaseProbability:    final.Yes,
		BaseConfidence:     base.Confidence,
		BaseSource:         base.Source,
		StateProbabilities: final,
		RiskProbabilities:  baseRisks,
		AdjustedRisks:      adjusted,
		BackoffLevel:       base.Backoff.Level,
		BackoffDims:        base.Backoff.Dims,
		SampleSize:         base.Backoff.SampleSize,
		TimeGapDays:        gap,
		ScoringVersion:     ScoringVersion,
	}
}
