package llm

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/ananthlk/Mobius-OS-sub002/internal/casestate"
)

// MockInterpreter extracts fields from an utterance with deterministic
// keyword and pattern rules. It stands in for the model during tests and in
// local demo mode, and it honors the same contract: output passes through the
// schema guard and lands only in the three suggestion buckets.
type MockInterpreter struct{}

func NewMockInterpreter() *MockInterpreter {
	return &MockInterpreter{}
}

var (
	memberIDPattern = regexp.MustCompile(`\b(?:member\s*(?:id)?\s*[:#]?\s*)?([A-Z]{2,6}\d{3,})\b`)
	isoDatePattern  = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	birthPattern    = regexp.MustCompile(`(?i)\b(born|birth|dob)\b`)
)

// payerKeywords maps utterance substrings to canonical payer names. Order
// fixed so the first match wins deterministically.
var payerKeywords = []struct {
	keyword string
	payer   string
}{
	{"blue cross", "Blue Cross Blue Shield"},
	{"bcbs", "Blue Cross Blue Shield"},
	{"aetna", "Aetna"},
	{"cigna", "Cigna"},
	{"united", "UnitedHealthcare"},
	{"uhc", "UnitedHealthcare"},
	{"humana", "Humana"},
	{"caresource", "CareSource"},
}

func (m *MockInterpreter) Interpret(_ context.Context, _ casestate.CaseState, utterance string) (casestate.SuggestedUpdates, error) {
	sug := casestate.SuggestedUpdates{}
	lower := strings.ToLower(utterance)

	patient := map[string]any{}
	plan := map[string]any{}
	timing := map[string]any{}

	if match := memberIDPattern.FindStringSubmatch(utterance); match != nil {
		patient["member_id"] = match[1]
	}

	if dates := isoDatePattern.FindAllString(utterance, -1); len(dates) > 0 {
		// A mention of birth routes the first date to the DOB, otherwise it
		// reads as the date of service.
		if birthPattern.MatchString(utterance) {
			patient["date_of_birth"] = dates[0]
			if len(dates) > 1 {
				timing["dos_date"] = dates[1]
			}
		} else {
			timing["dos_date"] = dates[0]
		}
	}

	switch {
	case strings.Contains(lower, "female"):
		patient["sex"] = string(casestate.SexFemale)
	case strings.Contains(lower, "male"):
		patient["sex"] = string(casestate.SexMale)
	}

	for _, pk := range payerKeywords {
		if strings.Contains(lower, pk.keyword) {
			plan["payer_name"] = pk.payer
			break
		}
	}

	switch {
	case strings.Contains(lower, "medicaid"):
		plan["product_type"] = string(casestate.ProductMedicaid)
	case strings.Contains(lower, "medicare"):
		plan["product_type"] = string(casestate.ProductMedicare)
	case strings.Contains(lower, "dsnp"):
		plan["product_type"] = string(casestate.ProductDSNP)
	case strings.Contains(lower, "commercial"), strings.Contains(lower, "ppo"),
		strings.Contains(lower, "hmo"), strings.Contains(lower, "epo"):
		plan["product_type"] = string(casestate.ProductCommercial)
	}

	if _, hasDOS := timing["dos_date"]; !hasDOS {
		switch {
		case strings.Contains(lower, "upcoming"), strings.Contains(lower, "next week"), strings.Contains(lower, "scheduled"):
			timing["event_tense"] = string(casestate.TenseFuture)
		case strings.Contains(lower, "last week"), strings.Contains(lower, "already happened"), strings.Contains(lower, "visited"):
			timing["event_tense"] = string(casestate.TensePast)
		}
	}

	if len(patient) > 0 {
		sug.PatientUpdates = patient
	}
	if len(plan) > 0 {
		sug.HealthPlanUpdates = plan
	}
	if len(timing) > 0 {
		sug.TimingUpdates = timing
	}
	return sug, nil
}

// MockPlanner derives next questions from missing fields and plan items from
// the dominant adjusted risks. Deterministic so tests can assert on output.
type MockPlanner struct{}

func NewMockPlanner() *MockPlanner {
	return &MockPlanner{}
}

// questionByField maps missing required fields to the question that fills
// them, in the order completion reports them.
var questionByField = map[string]string{
	"patient.member_id":      "What is the patient's member ID?",
	"patient.first_name":     "What is the patient's first name?",
	"patient.last_name":      "What is the patient's last name?",
	"patient.date_of_birth":  "What is the patient's date of birth?",
	"health_plan.payer_name": "Which insurance company covers the patient?",
	"timing.dos_date":        "What date is the service scheduled for?",
}

var actionByRisk = map[string]string{
	"coverage_loss":        "Re-verify coverage closer to the date of service; plans on this product line lapse between checks.",
	"retrospective_denial": "Submit the claim promptly; retroactive denial exposure fades only after the filing window closes.",
	"payer_error":          "Confirm the member details directly with the payer to rule out a records mismatch.",
	"provider_error":       "Double-check the provider's billing configuration for this plan before the claim goes out.",
}

func (m *MockPlanner) Plan(_ context.Context, cs casestate.CaseState, score casestate.ScoreState, completion casestate.CompletionStatus) (PlanResult, error) {
	result := PlanResult{
		NextQuestions:   []string{},
		ImprovementPlan: []string{},
	}

	for _, field := range completion.MissingFields {
		if q, ok := questionByField[field]; ok {
			result.NextQuestions = append(result.NextQuestions, q)
		}
	}
	if completion.Complete && !cs.EligibilityCheck.Checked {
		result.NextQuestions = append(result.NextQuestions, "All identifiers are on file. Should I run a coverage check with the payer?")
	}

	result.ImprovementPlan = planFromRisks(score.AdjustedRisks)
	result.PresentationSummary = summarize(cs, score)
	return result, nil
}

// planFromRisks orders the adjusted risks by probability descending and keeps
// the ones worth acting on. Ties break on name so output is stable.
func planFromRisks(risks map[string]float64) []string {
	type entry struct {
		name string
		p    float64
	}
	entries := make([]entry, 0, len(risks))
	for name, p := range risks {
		if p >= 0.05 {
			entries = append(entries, entry{name, p})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].p != entries[j].p {
			return entries[i].p > entries[j].p
		}
		return entries[i].name < entries[j].name
	})

	plan := []string{}
	for i, e := range entries {
		if i == 3 {
			break
		}
		if action, ok := actionByRisk[e.name]; ok {
			plan = append(plan, action)
		}
	}
	return plan
}

func summarize(cs casestate.CaseState, score casestate.ScoreState) string {
	pct := score.BaseProbability * 100

	when := "the planned service"
	if cs.Timing.DOSDate != "" {
		when = "the service on " + cs.Timing.DOSDate
	}

	if cs.EligibilityCheck.Checked {
		switch cs.EligibilityTruth.Status {
		case casestate.StatusYes:
			return fmt.Sprintf("Coverage is verified active for %s; likelihood of payment is %.0f%%.", when, pct)
		case casestate.StatusNo:
			return fmt.Sprintf("The payer reports no active coverage for %s; likelihood of payment is %.0f%%.", when, pct)
		}
	}
	return fmt.Sprintf("Coverage for %s has not been verified yet; the historical estimate puts likelihood of payment at %.0f%%.", when, pct)
}
