package visuals

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ananthlk/Mobius-OS-sub002/internal/casestate"
)

// GenerateStatePie creates a Mermaid pie chart of the four-state eligibility
// mass from the latest scoring pass.
func GenerateStatePie(score casestate.ScoreState) string {
	d := score.StateProbabilities
	if d.Sum() == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("pie title Eligibility Outlook\n")
	for _, s := range casestate.Statuses {
		sb.WriteString(fmt.Sprintf("    \"%s\" : %.1f\n", s, d.Get(s)*100))
	}
	sb.WriteString("```")
	return sb.String()
}

// GenerateVisitChart creates a Mermaid bar chart of the eligibility
// probability attached to each visit on the case.
func GenerateVisitChart(visits []casestate.VisitInfo) string {
	var labels []string
	var values []string

	// Limit to 20 visits to avoid overwhelming the text chart context
	limit := len(visits)
	if limit > 20 {
		limit = 20
	}

	for i := 0; i < limit; i++ {
		v := visits[i]
		if v.EligibilityProbability == nil {
			continue
		}
		labels = append(labels, fmt.Sprintf("\"%s\"", v.VisitDate))
		values = append(values, fmt.Sprintf("%.1f", *v.EligibilityProbability*100))
	}
	if len(values) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("xychart-beta\n")
	sb.WriteString("    title \"Visit Eligibility Outlook\"\n")
	sb.WriteString(fmt.Sprintf("    x-axis [%s]\n", strings.Join(labels, ", ")))
	sb.WriteString("    y-axis \"P(eligible) %\" 0 --> 100\n")
	sb.WriteString(fmt.Sprintf("    bar [%s]\n", strings.Join(values, ", ")))
	sb.WriteString("```")
	return sb.String()
}

// GenerateRiskChart creates a Mermaid bar chart comparing the raw risk rates
// against their time-adjusted weights.
func GenerateRiskChart(score casestate.ScoreState) string {
	if len(score.RiskProbabilities) == 0 {
		return ""
	}

	names := make([]string, 0, len(score.RiskProbabilities))
	for name := range score.RiskProbabilities {
		names = append(names, name)
	}
	sort.Strings(names)

	var labels []string
	var raw []string
	var adjusted []string
	for _, name := range names {
		labels = append(labels, fmt.Sprintf("\"%s\"", name))
		raw = append(raw, fmt.Sprintf("%.1f", score.RiskProbabilities[name]*100))
		adjusted = append(adjusted, fmt.Sprintf("%.1f", score.AdjustedRisks[name]*100))
	}

	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("xychart-beta\n")
	sb.WriteString("    title \"Risk Adjustment (Raw vs Time-Weighted)\"\n")
	sb.WriteString(fmt.Sprintf("    x-axis [%s]\n", strings.Join(labels, ", ")))
	sb.WriteString("    y-axis \"Weight %\" 0 --> 100\n")
	sb.WriteString(fmt.Sprintf("    bar [%s]\n", strings.Join(raw, ", ")))
	sb.WriteString(fmt.Sprintf("    bar [%s]\n", strings.Join(adjusted, ", ")))
	sb.WriteString("```")
	return sb.String()
}
