package casestate

import (
	"testing"
	"time"
)

var testToday = time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)

func TestDeriveTense(t *testing.T) {
	tests := []struct {
		name     string
		dos      string
		expected Tense
	}{
		{"FutureDate", "2025-07-01", TenseFuture},
		{"PastDate", "2025-05-01", TensePast},
		{"TodayIsFuture", "2025-06-15", TenseFuture},
		{"Tomorrow", "2025-06-16", TenseFuture},
		{"Yesterday", "2025-06-14", TensePast},
		{"Empty", "", TenseUnknown},
		{"Malformed", "06/15/2025", TenseUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveTense(tt.dos, testToday); got != tt.expected {
				t.Errorf("DeriveTense(%q) = %v, want %v", tt.dos, got, tt.expected)
			}
		})
	}
}

func TestGapDays(t *testing.T) {
	tests := []struct {
		name     string
		dos      string
		expected float64
	}{
		{"ThirtyOut", "2025-07-15", 30},
		{"NinetyBack", "2025-03-17", 90},
		{"SameDay", "2025-06-15", 0},
		{"MissingDOS", "", 0},
		{"Malformed", "not-a-date", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GapDays(tt.dos, testToday); got != tt.expected {
				t.Errorf("GapDays(%q) = %v, want %v", tt.dos, got, tt.expected)
			}
		})
	}
}

func TestInferDOSDatePrefersFutureScheduled(t *testing.T) {
	visits := []VisitInfo{
		{VisitID: "v1", VisitDate: "2025-05-01", Status: VisitCompleted},
		{VisitID: "v2", VisitDate: "2025-06-20", Status: VisitScheduled},
		{VisitID: "v3", VisitDate: "2025-07-10", Status: VisitScheduled},
		{VisitID: "v4", VisitDate: "2025-06-01", Status: VisitCancelled},
	}
	if got := InferDOSDate(visits, testToday); got != "2025-07-10" {
		t.Errorf("Expected most-future scheduled visit 2025-07-10, got %s", got)
	}
}

func TestInferDOSDateFallsBackToRecentCompleted(t *testing.T) {
	visits := []VisitInfo{
		{VisitID: "v1", VisitDate: "2025-05-01", Status: VisitCompleted},
		{VisitID: "v2", VisitDate: "2025-06-10", Status: VisitCompleted},
		{VisitID: "v3", VisitDate: "2025-04-01", Status: VisitCancelled},
	}
	if got := InferDOSDate(visits, testToday); got != "2025-06-10" {
		t.Errorf("Expected most-recent completed visit 2025-06-10, got %s", got)
	}
}

func TestInferDOSDateLastResortAnyStatus(t *testing.T) {
	visits := []VisitInfo{
		{VisitID: "v1", VisitDate: "2025-04-01", Status: VisitCancelled},
		{VisitID: "v2", VisitDate: "2025-05-20", Status: VisitCancelled},
	}
	if got := InferDOSDate(visits, testToday); got != "2025-05-20" {
		t.Errorf("Expected most-recent visit 2025-05-20, got %s", got)
	}
}

func TestInferDOSDateScheduledTodayCounts(t *testing.T) {
	visits := []VisitInfo{
		{VisitID: "v1", VisitDate: "2025-06-15", Status: VisitScheduled},
	}
	if got := InferDOSDate(visits, testToday); got != "2025-06-15" {
		t.Errorf("Expected today's scheduled visit, got %s", got)
	}
}

func TestInferDOSDateEmpty(t *testing.T) {
	if got := InferDOSDate(nil, testToday); got != "" {
		t.Errorf("Expected empty DOS for no visits, got %s", got)
	}
	visits := []VisitInfo{{VisitID: "v1", VisitDate: "garbage"}}
	if got := InferDOSDate(visits, testToday); got != "" {
		t.Errorf("Expected empty DOS for unparseable dates, got %s", got)
	}
}

func TestSortVisitsAscendingStable(t *testing.T) {
	visits := []VisitInfo{
		{VisitID: "b", VisitDate: "2025-06-20"},
		{VisitID: "a", VisitDate: "2025-05-01"},
		{VisitID: "c", VisitDate: "2025-06-20"},
		{VisitID: "d", VisitDate: ""},
	}
	SortVisits(visits)

	order := []string{"d", "a", "b", "c"}
	for i, want := range order {
		if visits[i].VisitID != want {
			t.Errorf("Position %d: expected %s, got %s", i, want, visits[i].VisitID)
		}
	}
}
