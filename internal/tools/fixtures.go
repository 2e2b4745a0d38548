package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ananthlk/Mobius-OS-sub002/internal/casestate"
)

// fixtureFile is the file name LoadFixtures expects inside the fixture dir.
const fixtureFile = "patients.json"

// PatientFixture is one canned patient: everything the four tools would
// return for them.
type PatientFixture struct {
	PatientID    string                        `json:"patient_id"`
	Demographics casestate.DemographicsPayload `json:"demographics"`
	Insurance    casestate.InsurancePayload    `json:"insurance"`
	Visits       []casestate.VisitInfo         `json:"visits"`
	Coverage     casestate.CoverageResult      `json:"coverage"`
}

// FixtureSource serves all four tool interfaces from canned patients. It
// backs the test suite and the local demo mode.
type FixtureSource struct {
	byPatient map[string]PatientFixture
	byMember  map[string]PatientFixture
	now       func() time.Time
}

func NewFixtureSource(fixtures []PatientFixture) *FixtureSource {
	s := &FixtureSource{
		byPatient: make(map[string]PatientFixture, len(fixtures)),
		byMember:  make(map[string]PatientFixture, len(fixtures)),
		now:       time.Now,
	}
	for _, f := range fixtures {
		s.byPatient[f.PatientID] = f
		if f.Coverage.MemberID != "" {
			s.byMember[f.Coverage.MemberID] = f
		}
		if f.Demographics.MemberID != "" {
			s.byMember[f.Demographics.MemberID] = f
		}
	}
	return s
}

// WithClock pins the source's clock, used by tests for stable visit windows.
func (s *FixtureSource) WithClock(now func() time.Time) *FixtureSource {
	s.now = now
	return s
}

func (s *FixtureSource) Demographics(_ context.Context, patientID string) (casestate.DemographicsPayload, error) {
	f, ok := s.byPatient[patientID]
	if !ok {
		log.Debug().Str("patient_id", patientID).Msg("No demographics fixture")
		return casestate.DemographicsPayload{}, nil
	}
	return f.Demographics, nil
}

func (s *FixtureSource) Insurance(_ context.Context, patientID string) (casestate.InsurancePayload, error) {
	f, ok := s.byPatient[patientID]
	if !ok {
		log.Debug().Str("patient_id", patientID).Msg("No insurance fixture")
		return casestate.InsurancePayload{}, nil
	}
	return f.Insurance, nil
}

func (s *FixtureSource) Visits(_ context.Context, patientID string, lookbackDays, lookaheadDays int) ([]casestate.VisitInfo, error) {
	f, ok := s.byPatient[patientID]
	if !ok {
		return nil, nil
	}

	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	from := today.AddDate(0, 0, -lookbackDays)
	to := today.AddDate(0, 0, lookaheadDays)

	var out []casestate.VisitInfo
	for _, v := range f.Visits {
		d, ok := casestate.ParseDate(v.VisitDate)
		if !ok {
			log.Debug().Str("visit_id", v.VisitID).Str("visit_date", v.VisitDate).Msg("Skipping fixture visit with unparseable date")
			continue
		}
		if d.Before(from) || d.After(to) {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *FixtureSource) CheckCoverage(_ context.Context, memberID, _ string) (casestate.CoverageResult, error) {
	queriedAt := s.now().UTC().Format(time.RFC3339)
	f, ok := s.byMember[memberID]
	if !ok {
		// Unknown members get an empty, windowless result, which reads as NO
		// active coverage downstream.
		return casestate.CoverageResult{MemberID: memberID, QueriedAt: queriedAt}, nil
	}
	result := f.Coverage
	result.QueriedAt = queriedAt
	return result, nil
}

// LoadFixtures reads a patients.json fixture file from dir.
func LoadFixtures(dir string) ([]PatientFixture, error) {
	raw, err := os.ReadFile(filepath.Join(dir, fixtureFile))
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	var fixtures []PatientFixture
	if err := json.Unmarshal(raw, &fixtures); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	return fixtures, nil
}

// DefaultFixtures returns the built-in demo panel: MRN100 with active
// commercial coverage, MRN200 with only lapsed windows, and MRN300 on an
// active Medicaid plan. Visit dates are laid out around today.
func DefaultFixtures(today time.Time) []PatientFixture {
	day := func(offset int) string {
		return casestate.DateString(today.AddDate(0, 0, offset))
	}
	return []PatientFixture{
		{
			PatientID: "MRN100",
			Demographics: casestate.DemographicsPayload{
				MemberID:    "MRN100",
				FirstName:   "Maria",
				LastName:    "Gonzalez",
				DateOfBirth: "1962-03-04",
				Sex:         "FEMALE",
			},
			Insurance: casestate.InsurancePayload{
				PayerName: "Aetna",
				PayerID:   "AETNA",
				PlanName:  "Gold PPO",
				MemberID:  "MRN100",
			},
			Visits: []casestate.VisitInfo{
				{VisitID: "MRN100-v1", VisitDate: day(-45), VisitType: "office_visit", Status: casestate.VisitCompleted, Provider: "Dr. Patel", Location: "Downtown Clinic"},
				{VisitID: "MRN100-v2", VisitDate: day(30), VisitType: "follow_up", Status: casestate.VisitScheduled, Provider: "Dr. Patel", Location: "Downtown Clinic"},
			},
			Coverage: casestate.CoverageResult{
				MemberID: "MRN100",
				EligibilityWindows: []casestate.EligibilityWindow{
					{EffectiveDate: "2024-01-01", EndDate: "2026-12-31", Status: "active", PlanName: "Gold PPO", MemberID: "MRN100", CoverageType: "medical"},
				},
			},
		},
		{
			PatientID: "MRN200",
			Demographics: casestate.DemographicsPayload{
				MemberID:    "MRN200",
				FirstName:   "Devon",
				LastName:    "Carter",
				DateOfBirth: "1988-09-17",
				Sex:         "MALE",
			},
			Insurance: casestate.InsurancePayload{
				PayerName: "Blue Cross Blue Shield",
				PayerID:   "BCBS",
				PlanName:  "Blue Choice",
				MemberID:  "MRN200",
			},
			Visits: []casestate.VisitInfo{
				{VisitID: "MRN200-v1", VisitDate: day(-10), VisitType: "urgent_care", Status: casestate.VisitCompleted, Provider: "Dr. Lin", Location: "Eastside Urgent Care"},
			},
			Coverage: casestate.CoverageResult{
				MemberID: "MRN200",
				EligibilityWindows: []casestate.EligibilityWindow{
					{EffectiveDate: "2022-01-01", EndDate: "2022-12-31", Status: "inactive", PlanName: "Blue Choice", MemberID: "MRN200", CoverageType: "medical"},
					{EffectiveDate: "2023-01-01", EndDate: "2023-06-30", Status: "inactive", PlanName: "Blue Choice", MemberID: "MRN200", CoverageType: "medical"},
				},
			},
		},
		{
			PatientID: "MRN300",
			Demographics: casestate.DemographicsPayload{
				MemberID:    "MRN300",
				FirstName:   "Amara",
				LastName:    "Okafor",
				DateOfBirth: "1990-11-22",
				Sex:         "FEMALE",
			},
			Insurance: casestate.InsurancePayload{
				PayerName: "CareSource",
				PayerID:   "CARESOURCE-OH",
				PlanName:  "CareSource Medicaid",
				MemberID:  "MRN300",
			},
			Visits: []casestate.VisitInfo{
				{VisitID: "MRN300-v1", VisitDate: day(-60), VisitType: "office_visit", Status: casestate.VisitCompleted, Provider: "Dr. Okonkwo", Location: "Riverside Family Health"},
				{VisitID: "MRN300-v2", VisitDate: day(10), VisitType: "procedure", Status: casestate.VisitScheduled, Provider: "Dr. Okonkwo", Location: "Riverside Family Health"},
				{VisitID: "MRN300-v3", VisitDate: day(400), VisitType: "annual", Status: casestate.VisitScheduled, Provider: "Dr. Okonkwo", Location: "Riverside Family Health"},
			},
			Coverage: casestate.CoverageResult{
				MemberID: "MRN300",
				EligibilityWindows: []casestate.EligibilityWindow{
					{EffectiveDate: "2023-07-01", EndDate: "2027-06-30", Status: "active", PlanName: "CareSource Medicaid", MemberID: "MRN300", CoverageType: "medical"},
				},
			},
		},
	}
}
