package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/ananthlk/Mobius-OS-sub002/internal/casestate"
)

func prob(p float64) *float64 { return &p }

func TestWeightedAverageRecency(t *testing.T) {
	today := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	visits := []casestate.VisitInfo{
		{VisitID: "v1", VisitDate: "2025-06-05", EligibilityProbability: prob(0.9)}, // 10 days back
		{VisitID: "v2", VisitDate: "2025-04-16", EligibilityProbability: prob(0.7)}, // 60 days back
		{VisitID: "v3", VisitDate: "2024-12-17", EligibilityProbability: prob(0.4)}, // 180 days back
	}

	got := WeightedAverage(visits, today)
	if got == nil {
		t.Fatal("WeightedAverage() = nil, want a value")
	}

	w1, w2, w3 := math.Exp(-10.0/Tau), math.Exp(-60.0/Tau), math.Exp(-180.0/Tau)
	want := (0.9*w1 + 0.7*w2 + 0.4*w3) / (w1 + w2 + w3)
	if math.Abs(*got-want) > 1e-12 {
		t.Errorf("WeightedAverage() = %v, want %v", *got, want)
	}
	// The most recent visit dominates: the mean sits closer to 0.9 than to 0.4.
	if *got < 0.7 || *got > 0.9 {
		t.Errorf("WeightedAverage() = %v, expected recency pull toward 0.9", *got)
	}
}

func TestWeightedAverageSingleVisitIsExact(t *testing.T) {
	today := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	visits := []casestate.VisitInfo{
		{VisitID: "v1", VisitDate: "2025-01-02", EligibilityProbability: prob(0.73)},
	}

	got := WeightedAverage(visits, today)
	if got == nil || *got != 0.73 {
		t.Errorf("Single-visit WeightedAverage() = %v, want exactly 0.73", got)
	}
}

func TestWeightedAverageNoQualifyingVisits(t *testing.T) {
	today := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		visits []casestate.VisitInfo
	}{
		{"Nil", nil},
		{"Empty", []casestate.VisitInfo{}},
		{"NoProbabilities", []casestate.VisitInfo{{VisitID: "v1", VisitDate: "2025-06-01"}}},
		{"NoDates", []casestate.VisitInfo{{VisitID: "v1", EligibilityProbability: prob(0.5)}}},
		{"MalformedDate", []casestate.VisitInfo{{VisitID: "v1", VisitDate: "June 1", EligibilityProbability: prob(0.5)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WeightedAverage(tt.visits, today); got != nil {
				t.Errorf("WeightedAverage() = %v, want nil", *got)
			}
		})
	}
}

func TestWeightedAverageSkipsNonQualifying(t *testing.T) {
	today := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	visits := []casestate.VisitInfo{
		{VisitID: "v1", VisitDate: "2025-06-05", EligibilityProbability: prob(0.9)},
		{VisitID: "v2", VisitDate: "", EligibilityProbability: prob(0.1)},
		{VisitID: "v3", VisitDate: "2025-06-10"},
	}

	// Only v1 qualifies, so the single-sample path returns it untouched.
	got := WeightedAverage(visits, today)
	if got == nil || *got != 0.9 {
		t.Errorf("WeightedAverage() = %v, want exactly 0.9", got)
	}
}

func TestWeightedAverageFutureAndPastWeighEqually(t *testing.T) {
	// Symmetric gaps around today get identical weights, so the mean is the
	// arithmetic midpoint.
	today := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	visits := []casestate.VisitInfo{
		{VisitID: "past", VisitDate: "2025-06-05", EligibilityProbability: prob(0.4)},
		{VisitID: "future", VisitDate: "2025-06-25", EligibilityProbability: prob(0.8)},
	}

	got := WeightedAverage(visits, today)
	if got == nil || math.Abs(*got-0.6) > 1e-12 {
		t.Errorf("WeightedAverage() = %v, want 0.6", got)
	}
}
