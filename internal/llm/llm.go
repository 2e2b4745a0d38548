// Package llm holds the two language-model collaborators the pipeline talks
// to: the Interpreter, which turns a free-text utterance into structured
// field suggestions, and the Planner, which drafts next questions and a
// human-readable summary. Both have a deterministic mock and an HTTP
// chat-completions implementation; interpreter output always passes through
// a JSON schema guard before it reaches the case.
package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/ananthlk/Mobius-OS-sub002/internal/casestate"
)

// Interpreter extracts structured suggestions from a user utterance.
// Malformed model output must collapse to empty suggestions, never an error;
// errors are reserved for transport failures.
type Interpreter interface {
	Interpret(ctx context.Context, cs casestate.CaseState, utterance string) (casestate.SuggestedUpdates, error)
}

// PlanResult is the Planner's contribution to the turn envelope.
type PlanResult struct {
	NextQuestions       []string `json:"next_questions"`
	ImprovementPlan     []string `json:"improvement_plan"`
	PresentationSummary string   `json:"presentation_summary"`
}

// Planner drafts follow-up questions and the presentation summary.
type Planner interface {
	Plan(ctx context.Context, cs casestate.CaseState, score casestate.ScoreState, completion casestate.CompletionStatus) (PlanResult, error)
}

// PromptHash returns the sha256 hex digest of a prompt. Stored alongside each
// llm_calls row so identical exchanges can be spotted without keeping the
// prompt text itself.
func PromptHash(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

// FallbackSummary renders the templated sentence used whenever the Planner
// fails or is unavailable. It leans only on the latest known base
// probability so it can never fail itself.
func FallbackSummary(score *casestate.ScoreState) string {
	if score == nil {
		return "No eligibility assessment is available for this case yet."
	}
	pct := math.Round(score.BaseProbability * 100)
	return fmt.Sprintf("Based on the latest assessment, the likelihood of eligibility is %.0f%%.", pct)
}
