package scoring

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/ananthlk/Mobius-OS-sub002/internal/casestate"
)

// Risk names shared across the calculator, time function, and combiner.
const (
	RiskCoverageLoss  = "coverage_loss"
	RiskRetroDenial   = "retrospective_denial"
	RiskPayerError    = "payer_error"
	RiskProviderError = "provider_error"
)

// RiskStats provides observed failure rates for a risk within a scope
// (product type, payer, provider). A zero sample means "no history".
type RiskStats interface {
	RiskRate(ctx context.Context, risk string, scope map[string]string) (rate float64, sampleSize int, err error)
}

// Default base rates before time adjustment.
const (
	defaultCoverageLoss  = 0.10
	defaultRetroDenial   = 0.10
	defaultPayerError    = 0.05
	defaultProviderError = 0.03
)

// coverageLossByProduct overrides the coverage-loss default per product line.
var coverageLossByProduct = map[casestate.ProductType]float64{
	casestate.ProductMedicaid:   0.15,
	casestate.ProductDSNP:       0.12,
	casestate.ProductMedicare:   0.08,
	casestate.ProductCommercial: 0.05,
}

// RiskCalculator resolves the active risk set for a tense and the base
// probability of each risk.
type RiskCalculator struct {
	stats RiskStats
}

func NewRiskCalculator(stats RiskStats) *RiskCalculator {
	return &RiskCalculator{stats: stats}
}

// Calculate returns risk name → base probability. The active set depends on
// the event tense; UNKNOWN yields an empty map. providerHint names the
// rendering provider when scoring a single visit, "" at case level.
func (r *RiskCalculator) Calculate(ctx context.Context, cs casestate.CaseState, providerHint string) map[string]float64 {
	risks := make(map[string]float64)

	switch cs.Timing.EventTense {
	case casestate.TenseFuture:
		risks[RiskCoverageLoss] = r.coverageLoss(ctx, cs.HealthPlan.ProductType)
		risks[RiskPayerError] = r.payerError(ctx, cs.HealthPlan.PayerID)
		risks[RiskProviderError] = r.providerError(ctx, providerHint)
	case casestate.TensePast:
		risks[RiskRetroDenial] = r.retroDenial(ctx)
		risks[RiskPayerError] = r.payerError(ctx, cs.HealthPlan.PayerID)
		risks[RiskProviderError] = r.providerError(ctx, providerHint)
	}

	return risks
}

func (r *RiskCalculator) coverageLoss(ctx context.Context, product casestate.ProductType) float64 {
	fallback := defaultCoverageLoss
	if v, ok := coverageLossByProduct[product]; ok {
		fallback = v
	}
	if product == "" || product == casestate.ProductUnknown {
		return r.observed(ctx, RiskCoverageLoss, nil, fallback)
	}
	return r.observed(ctx, RiskCoverageLoss, map[string]string{"product_type": string(product)}, fallback)
}

func (r *RiskCalculator) retroDenial(ctx context.Context) float64 {
	return r.observed(ctx, RiskRetroDenial, nil, defaultRetroDenial)
}

// payerError uses the per-payer historical rate when one exists; without a
// payer id there is no stratum to consult and the default applies.
func (r *RiskCalculator) payerError(ctx context.Context, payerID string) float64 {
	if payerID == "" {
		return defaultPayerError
	}
	return r.observed(ctx, RiskPayerError, map[string]string{"payer_id": payerID}, defaultPayerError)
}

func (r *RiskCalculator) providerError(ctx context.Context, provider string) float64 {
	if provider == "" {
		return defaultProviderError
	}
	return r.observed(ctx, RiskProviderError, map[string]string{"provider": provider}, defaultProviderError)
}

func (r *RiskCalculator) observed(ctx context.Context, risk string, scope map[string]string, fallback float64) float64 {
	if r.stats == nil {
		return fallback
	}
	rate, n, err := r.stats.RiskRate(ctx, risk, scope)
	if err != nil {
		log.Warn().Err(err).Str("risk", risk).Msg("Risk history lookup failed, using default")
		return fallback
	}
	if n == 0 {
		return fallback
	}
	return rate
}
