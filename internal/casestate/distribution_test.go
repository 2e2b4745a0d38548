package casestate

import (
	"math"
	"testing"
)

func TestOneHot(t *testing.T) {
	d := OneHot(StatusYes)
	if d.Yes != 1 || d.No != 0 || d.NotEstablished != 0 || d.Unknown != 0 {
		t.Errorf("OneHot(YES) = %+v, want all mass on YES", d)
	}
	if err := d.Validate(); err != nil {
		t.Errorf("OneHot distribution invalid: %v", err)
	}
}

func TestUniformValidates(t *testing.T) {
	if err := Uniform().Validate(); err != nil {
		t.Errorf("Uniform distribution invalid: %v", err)
	}
}

func TestNormalizeSumsToOne(t *testing.T) {
	d := Distribution{Yes: 0.3, No: 0.3, NotEstablished: 0.3, Unknown: 0.1}
	n := d.Normalize()
	if math.Abs(n.Sum()-1) > 1e-12 {
		t.Errorf("Normalize sum = %.20f, want 1", n.Sum())
	}
	if err := n.Validate(); err != nil {
		t.Errorf("Normalized distribution invalid: %v", err)
	}
}

func TestNormalizeResidualGoesToLargest(t *testing.T) {
	d := Distribution{Yes: 2, No: 1, NotEstablished: 1, Unknown: 1}
	n := d.Normalize()
	if math.Abs(n.Sum()-1) > 1e-12 {
		t.Fatalf("Sum = %.20f, want 1", n.Sum())
	}
	if n.Largest() != StatusYes {
		t.Errorf("Largest = %v, want YES", n.Largest())
	}
	// The correction may only touch the largest entry.
	if n.No != 0.2 || n.NotEstablished != 0.2 || n.Unknown != 0.2 {
		t.Errorf("Non-largest entries moved: %+v", n)
	}
}

func TestNormalizeZeroMassCollapsesToUniform(t *testing.T) {
	var d Distribution
	if got := d.Normalize(); got != Uniform() {
		t.Errorf("Normalize(zero) = %+v, want uniform", got)
	}
}

func TestValidateCatchesDrift(t *testing.T) {
	d := Distribution{Yes: 0.5, No: 0.5, Unknown: 0.001}
	if err := d.Validate(); err == nil {
		t.Error("Expected validation error for sum > 1+tolerance")
	}

	d = Distribution{Yes: -0.1, No: 1.1}
	if err := d.Validate(); err == nil {
		t.Error("Expected validation error for negative entry")
	}

	d = Distribution{Yes: math.NaN()}
	if err := d.Validate(); err == nil {
		t.Error("Expected validation error for NaN entry")
	}
}

func TestLargestTieBreaksInCanonicalOrder(t *testing.T) {
	d := Distribution{Yes: 0.25, No: 0.25, NotEstablished: 0.25, Unknown: 0.25}
	if got := d.Largest(); got != StatusYes {
		t.Errorf("Largest on uniform = %v, want YES (canonical order)", got)
	}
}

func TestScoreStateCloneIsIndependent(t *testing.T) {
	s := ScoreState{
		BaseProbability:   0.8,
		RiskProbabilities: map[string]float64{"coverage_loss": 0.05},
		AdjustedRisks:     map[string]float64{"coverage_loss": 0.06},
		BackoffDims:       []string{"payer_id"},
	}
	c := s.Clone()
	c.RiskProbabilities["coverage_loss"] = 0.9
	c.BackoffDims[0] = "mutated"

	if s.RiskProbabilities["coverage_loss"] != 0.05 {
		t.Error("Clone shares risk map with original")
	}
	if s.BackoffDims[0] != "payer_id" {
		t.Error("Clone shares backoff dims with original")
	}
}

func TestCaseStateCloneIsIndependent(t *testing.T) {
	p := 0.7
	cs := New()
	cs.Timing.RelatedVisits = []VisitInfo{
		{VisitID: "v1", EligibilityProbability: &p, ScoreState: &ScoreState{BaseProbability: 0.7}},
	}
	cs.EligibilityCheck.ResultRaw = &CoverageResult{
		MemberID:           "M1",
		EligibilityWindows: []EligibilityWindow{{Status: "active"}},
	}

	c := cs.Clone()
	*c.Timing.RelatedVisits[0].EligibilityProbability = 0.1
	c.Timing.RelatedVisits[0].ScoreState.BaseProbability = 0.1
	c.EligibilityCheck.ResultRaw.EligibilityWindows[0].Status = "inactive"

	if *cs.Timing.RelatedVisits[0].EligibilityProbability != 0.7 {
		t.Error("Clone shares visit probability pointer")
	}
	if cs.Timing.RelatedVisits[0].ScoreState.BaseProbability != 0.7 {
		t.Error("Clone shares visit score state")
	}
	if cs.EligibilityCheck.ResultRaw.EligibilityWindows[0].Status != "active" {
		t.Error("Clone shares coverage windows")
	}
}
