package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ananthlk/Mobius-OS-sub002/internal/casestate"
)

// Options parameterizes the HTTP chat-completions backend.
type Options struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

const interpreterSystemPrompt = `You extract structured insurance-eligibility fields from a user message about a healthcare case.
Respond with JSON only, no prose. The object may contain at most these three keys, each an object:
"patient_updates" (member_id, first_name, last_name, date_of_birth, sex),
"health_plan_updates" (payer_name, payer_id, plan_name, product_type, contract_status),
"timing_updates" (dos_date, event_tense).
All dates are YYYY-MM-DD. Omit any field the message does not state. Never guess.`

const plannerSystemPrompt = `You plan the next step of an insurance-eligibility conversation.
Given the case, its score, and its completion status, respond with JSON only:
{"next_questions": [..], "improvement_plan": [..], "presentation_summary": ".."}.
Questions fill missing fields; plan items mitigate the largest risks; the summary is one plain sentence with the payment likelihood.`

// chatClient is the shared chat-completions transport behind both HTTP
// collaborators.
type chatClient struct {
	opts   Options
	client *http.Client
}

func newChatClient(opts Options) *chatClient {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	return &chatClient{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// complete runs one exchange and returns the first choice's content.
func (c *chatClient) complete(ctx context.Context, system, user string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.opts.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("llm: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("llm: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm: unexpected status %d", resp.StatusCode)
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("llm: decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("llm: empty choices in response")
	}
	return decoded.Choices[0].Message.Content, nil
}

// stripFences removes a markdown code fence around a JSON reply. Models wrap
// JSON in fences often enough that parsing without this is flaky.
func stripFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// HTTPInterpreter asks a chat-completions endpoint for field suggestions.
// Whatever comes back goes through the schema guard, so a hallucinated shape
// degrades to an empty suggestion instead of corrupting the case.
type HTTPInterpreter struct {
	client *chatClient
}

func NewHTTPInterpreter(opts Options) *HTTPInterpreter {
	return &HTTPInterpreter{client: newChatClient(opts)}
}

func (h *HTTPInterpreter) Interpret(ctx context.Context, cs casestate.CaseState, utterance string) (casestate.SuggestedUpdates, error) {
	caseJSON, err := json.Marshal(cs)
	if err != nil {
		return casestate.SuggestedUpdates{}, fmt.Errorf("llm: marshal case state: %w", err)
	}
	user := fmt.Sprintf("Current case state:\n%s\n\nUser message:\n%s", caseJSON, utterance)

	content, err := h.client.complete(ctx, interpreterSystemPrompt, user)
	if err != nil {
		return casestate.SuggestedUpdates{}, err
	}
	return GuardSuggestions([]byte(stripFences(content))), nil
}

// HTTPPlanner asks a chat-completions endpoint for the next questions and
// summary. A reply that does not parse is an error; the pipeline falls back
// to the templated summary.
type HTTPPlanner struct {
	client *chatClient
}

func NewHTTPPlanner(opts Options) *HTTPPlanner {
	return &HTTPPlanner{client: newChatClient(opts)}
}

func (h *HTTPPlanner) Plan(ctx context.Context, cs casestate.CaseState, score casestate.ScoreState, completion casestate.CompletionStatus) (PlanResult, error) {
	input := map[string]any{
		"case_state": cs,
		"score":      score,
		"completion": completion,
	}
	inputJSON, err := json.Marshal(input)
	if err != nil {
		return PlanResult{}, fmt.Errorf("llm: marshal planner input: %w", err)
	}

	content, err := h.client.complete(ctx, plannerSystemPrompt, string(inputJSON))
	if err != nil {
		return PlanResult{}, err
	}

	var result PlanResult
	if err := json.Unmarshal([]byte(stripFences(content)), &result); err != nil {
		log.Warn().Err(err).Msg("Planner reply did not parse as JSON")
		return PlanResult{}, fmt.Errorf("llm: planner reply not parseable: %w", err)
	}
	return result, nil
}
