// Package pipeline runs the per-turn eligibility assessment: load or create
// the case, merge tool and interpreter input, perform or reuse the coverage
// check, score the case and every related visit, aggregate, plan, persist.
// One turn per case runs at a time; progress streams to the session event log
// at every phase boundary.
package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ananthlk/Mobius-OS-sub002/internal/casestate"
	"github.com/ananthlk/Mobius-OS-sub002/internal/eventlog"
	"github.com/ananthlk/Mobius-OS-sub002/internal/llm"
	"github.com/ananthlk/Mobius-OS-sub002/internal/metrics"
	"github.com/ananthlk/Mobius-OS-sub002/internal/scoring"
	"github.com/ananthlk/Mobius-OS-sub002/internal/store"
	"github.com/ananthlk/Mobius-OS-sub002/internal/tools"
)

// UIEvent is the raw user event a turn ingests.
type UIEvent struct {
	EventType string         `json:"event_type"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
}

// Utterance pulls the user's free-text message out of the event data,
// checking the accepted keys in order.
func (e UIEvent) Utterance() string {
	for _, key := range []string{"message", "utterance", "text"} {
		if v, ok := e.Data[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// TurnInput identifies the case and carries the event for one turn.
type TurnInput struct {
	CaseID    string
	SessionID string
	UserID    string
	PatientID string
	Event     UIEvent
}

// TurnResult is the response envelope of a completed turn.
type TurnResult struct {
	TurnID              string                     `json:"turn_id"`
	CaseState           casestate.CaseState        `json:"case_state"`
	ScoreState          casestate.ScoreState       `json:"score_state"`
	NextQuestions       []string                   `json:"next_questions"`
	ImprovementPlan     []string                   `json:"improvement_plan"`
	PresentationSummary string                     `json:"presentation_summary"`
	Completion          casestate.CompletionStatus `json:"completion"`
}

// Config wires the pipeline's collaborators.
type Config struct {
	Store       *store.Store
	Tools       *tools.Facade
	Interpreter llm.Interpreter
	Planner     llm.Planner
	Scorer      *scoring.Scorer

	// Workers caps the per-visit scoring fan-out. Defaults to 4.
	Workers int
	// Now supplies the logical clock; tests pin it. Defaults to time.Now.
	Now func() time.Time
}

// Pipeline processes turns. Safe for concurrent use; turns on the same case
// serialize on a per-case lock.
type Pipeline struct {
	store   *store.Store
	tools   *tools.Facade
	interp  llm.Interpreter
	planner llm.Planner
	scorer  *scoring.Scorer
	workers int
	now     func() time.Time
	locks   *caseLocks
}

func New(cfg Config) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pipeline{
		store:   cfg.Store,
		tools:   cfg.Tools,
		interp:  cfg.Interpreter,
		planner: cfg.Planner,
		scorer:  cfg.Scorer,
		workers: cfg.Workers,
		now:     cfg.Now,
		locks:   newCaseLocks(),
	}
}

// ProcessTurn runs the nine pipeline steps in strict order. Tool and LLM
// failures degrade (logged, error event, turn continues); only a failed case
// load or a failed final persist abort and surface as the returned error.
func (p *Pipeline) ProcessTurn(ctx context.Context, in TurnInput) (TurnResult, error) {
	unlock := p.locks.lock(in.CaseID)
	defer unlock()

	started := time.Now()
	t := &turn{
		p:      p,
		in:     in,
		sink:   p.sinkFor(in.SessionID),
		today:  p.now(),
		turnID: uuid.NewString(),
	}

	log.Info().
		Str("case_id", in.CaseID).
		Str("turn_id", t.turnID).
		Str("event_type", in.Event.EventType).
		Msg("Turn started")

	result, err := t.run(ctx)

	metrics.TurnsTotal.WithLabelValues(metrics.Outcome(err)).Inc()
	metrics.TurnDuration.Observe(time.Since(started).Seconds())
	log.Info().
		Str("case_id", in.CaseID).
		Str("turn_id", t.turnID).
		Err(err).
		Dur("elapsed", time.Since(started)).
		Msg("Turn finished")

	return result, err
}

// sinkFor builds the event sink for a session. Turns without a session still
// run; their progress just has nowhere to live.
func (p *Pipeline) sinkFor(sessionID string) eventlog.Sink {
	if sessionID == "" {
		return eventlog.NopSink{}
	}
	return eventlog.NewEmitter(p.store, sessionID)
}

// caseLocks hands out one mutex per case id so a case is held for the whole
// duration of its turn.
type caseLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newCaseLocks() *caseLocks {
	return &caseLocks{locks: make(map[string]*sync.Mutex)}
}

// lock blocks until the case is free and returns the unlock.
func (c *caseLocks) lock(caseID string) func() {
	c.mu.Lock()
	m, ok := c.locks[caseID]
	if !ok {
		m = &sync.Mutex{}
		c.locks[caseID] = m
	}
	c.mu.Unlock()

	m.Lock()
	return m.Unlock
}
