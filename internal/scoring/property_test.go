package scoring

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/ananthlk/Mobius-OS-sub002/internal/casestate"
)

func riskGen() gopter.Gen {
	return gen.OneConstOf(RiskCoverageLoss, RiskRetroDenial, RiskPayerError, RiskProviderError)
}

func tenseGen() gopter.Gen {
	return gen.OneConstOf(casestate.TenseFuture, casestate.TensePast, casestate.TenseUnknown)
}

func TestCombineProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("combined distribution always validates", prop.ForAll(
		func(yes, no, ne, unk, cl, rd, pe, pre float64) bool {
			base := casestate.Distribution{Yes: yes, No: no, NotEstablished: ne, Unknown: unk}.Normalize()
			final := Combine(base, map[string]float64{
				RiskCoverageLoss:  cl,
				RiskRetroDenial:   rd,
				RiskPayerError:    pe,
				RiskProviderError: pre,
			})
			return final.Validate() == nil
		},
		gen.Float64Range(0, 1), gen.Float64Range(0, 1), gen.Float64Range(0, 1), gen.Float64Range(0, 1),
		gen.Float64Range(0, 1), gen.Float64Range(0, 1), gen.Float64Range(0, 1), gen.Float64Range(0, 1),
	))

	properties.Property("combiner never increases YES mass", prop.ForAll(
		func(yes, no, ne, unk, cl, rd float64) bool {
			base := casestate.Distribution{Yes: yes, No: no, NotEstablished: ne, Unknown: unk}.Normalize()
			final := Combine(base, map[string]float64{
				RiskCoverageLoss: cl,
				RiskRetroDenial:  rd,
			})
			return final.Yes <= base.Yes+casestate.SumTolerance
		},
		gen.Float64Range(0, 1), gen.Float64Range(0, 1), gen.Float64Range(0, 1), gen.Float64Range(0, 1),
		gen.Float64Range(0, 1), gen.Float64Range(0, 1),
	))

	properties.TestingRun(t)
}

func TestTimeFunctionProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("adjusted risk stays within [0,1]", prop.ForAll(
		func(risk string, tense casestate.Tense, p, days float64) bool {
			v := AdjustRisk(risk, p, tense, days)
			return v >= 0 && v <= 1
		},
		riskGen(), tenseGen(), gen.Float64Range(0, 1), gen.Float64Range(0, 5000),
	))

	properties.Property("zero gap is the identity", prop.ForAll(
		func(risk string, tense casestate.Tense, p float64) bool {
			return AdjustRisk(risk, p, tense, 0) == p
		},
		riskGen(), tenseGen(), gen.Float64Range(0, 1),
	))

	properties.Property("retro denial decays linearly inside the horizon", prop.ForAll(
		func(p, days float64) bool {
			got := AdjustRisk(RiskRetroDenial, p, casestate.TensePast, days)
			want := p * (1 - days/60)
			diff := got - want
			return diff < 1e-9 && diff > -1e-9
		},
		gen.Float64Range(0, 1), gen.Float64Range(0, 60),
	))

	properties.Property("retro denial vanishes at the horizon", prop.ForAll(
		func(p, days float64) bool {
			return AdjustRisk(RiskRetroDenial, p, casestate.TensePast, days) == 0
		},
		gen.Float64Range(0, 1), gen.Float64Range(60, 10000),
	))

	properties.TestingRun(t)
}
