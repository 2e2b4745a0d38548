package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ananthlk/Mobius-OS-sub002/internal/casestate"
	"github.com/ananthlk/Mobius-OS-sub002/internal/eventlog"
	"github.com/ananthlk/Mobius-OS-sub002/internal/llm"
	"github.com/ananthlk/Mobius-OS-sub002/internal/metrics"
	"github.com/ananthlk/Mobius-OS-sub002/internal/scoring"
	"github.com/ananthlk/Mobius-OS-sub002/internal/store"
)

// turn is the working state of one pass through the pipeline.
type turn struct {
	p      *Pipeline
	in     TurnInput
	sink   eventlog.Sink
	today  time.Time
	turnID string

	rec   store.CaseRecord
	cs    casestate.CaseState
	actx  *casestate.ApplyContext
	score casestate.ScoreState
	plan  llm.PlanResult
}

func (t *turn) run(ctx context.Context) (TurnResult, error) {
	// 1. Load or create the case
	if err := t.loadCase(ctx); err != nil {
		return TurnResult{}, err
	}

	// 2. Patient data tools (when a patient id accompanies the event)
	if t.in.PatientID != "" {
		t.loadPatient(ctx)
	}

	// 3. Interpret the user message
	t.interpret(ctx)

	// 4. Coverage check, reusing the cached result when it still applies
	t.checkCoverage(ctx)

	// 5. Case-level scoring
	t.scoreCase(ctx)

	// 6 + 7. Per-visit scoring and recency-weighted aggregation
	t.scoreVisits(ctx)

	// 8. Plan the next questions and the summary
	t.planTurn(ctx)

	// 9. Persist the snapshot, the turn, and the score run
	if err := t.persist(ctx); err != nil {
		return t.envelope(), err
	}

	result := t.envelope()
	t.emitOutput(ctx, result)
	return result, nil
}

func (t *turn) loadCase(ctx context.Context) error {
	t.sink.Process(ctx, eventlog.PhaseCaseLoading, eventlog.StatusInProgress, "Loading case", nil)

	rec, err := t.p.store.LoadCase(ctx, t.in.CaseID)
	switch {
	case err == nil:
		t.sink.Process(ctx, eventlog.PhaseCaseLoading, eventlog.StatusComplete, "Case loaded",
			map[string]any{"case_id": rec.CaseID})
	case errors.Is(err, store.ErrNotFound):
		rec, err = t.p.store.CreateCase(ctx, t.in.CaseID, t.in.SessionID, casestate.New())
		if err != nil {
			t.sink.Process(ctx, eventlog.PhaseCaseLoading, eventlog.StatusError, "Failed to create case", nil)
			return fmt.Errorf("create case %s: %w", t.in.CaseID, err)
		}
		t.sink.Process(ctx, eventlog.PhaseCaseLoading, eventlog.StatusComplete, "New case created",
			map[string]any{"case_id": rec.CaseID})
	default:
		t.sink.Process(ctx, eventlog.PhaseCaseLoading, eventlog.StatusError, "Failed to load case", nil)
		return fmt.Errorf("load case %s: %w", t.in.CaseID, err)
	}

	t.rec = rec
	t.cs = rec.State
	t.actx = casestate.NewApplyContext()
	return nil
}

// loadPatient pulls demographics, insurance, and visits for the patient and
// merges them with source TOOL. Each lookup degrades independently.
func (t *turn) loadPatient(ctx context.Context) {
	phase := eventlog.PhasePatientLoading
	t.sink.Process(ctx, phase, eventlog.StatusInProgress, "Loading patient records", nil)

	t.sink.Thinking(ctx, phase, "Fetching demographics",
		map[string]any{"data_type": eventlog.DataTypeDemographics})
	demo, err := t.p.tools.Demographics(ctx, t.in.PatientID)
	metrics.ToolCalls.WithLabelValues("demographics", metrics.Outcome(err)).Inc()
	if err != nil {
		log.Warn().Err(err).Str("patient_id", t.in.PatientID).Msg("Demographics lookup failed")
		t.sink.Process(ctx, phase, eventlog.StatusError, "Demographics lookup failed", nil)
	} else {
		t.cs = casestate.ApplyDemographics(t.cs, demo, t.today, t.actx)
		t.sink.Thinking(ctx, phase, "Demographics loaded",
			map[string]any{"data_type": eventlog.DataTypeDemographics, "member_id": demo.MemberID})
	}

	t.sink.Thinking(ctx, phase, "Fetching insurance",
		map[string]any{"data_type": eventlog.DataTypeInsurance})
	ins, err := t.p.tools.Insurance(ctx, t.in.PatientID)
	metrics.ToolCalls.WithLabelValues("insurance", metrics.Outcome(err)).Inc()
	if err != nil {
		log.Warn().Err(err).Str("patient_id", t.in.PatientID).Msg("Insurance lookup failed")
		t.sink.Process(ctx, phase, eventlog.StatusError, "Insurance lookup failed", nil)
	} else {
		t.cs = casestate.ApplyInsurance(t.cs, ins, t.today, t.actx)
		t.sink.Thinking(ctx, phase, "Insurance loaded",
			map[string]any{"data_type": eventlog.DataTypeInsurance, "payer_name": ins.PayerName})
	}

	t.sink.Thinking(ctx, phase, "Fetching visits",
		map[string]any{"data_type": eventlog.DataTypeVisits})
	visits, err := t.p.tools.Visits(ctx, t.in.PatientID)
	metrics.ToolCalls.WithLabelValues("visits", metrics.Outcome(err)).Inc()
	if err != nil {
		log.Warn().Err(err).Str("patient_id", t.in.PatientID).Msg("Visits lookup failed")
		t.sink.Process(ctx, phase, eventlog.StatusError, "Visits lookup failed", nil)
	} else {
		t.cs = casestate.ApplyVisits(t.cs, visits, t.today, t.actx)
		t.sink.Thinking(ctx, phase, fmt.Sprintf("Found %d visits in the lookup window", len(visits)),
			map[string]any{"data_type": eventlog.DataTypeVisits, "count": len(visits)})

		if dos := casestate.InferDOSDate(t.cs.Timing.RelatedVisits, t.today); dos != "" {
			t.cs = casestate.ApplyDOSDate(t.cs, dos, casestate.SourceTool, t.today, t.actx)
			t.sink.Thinking(ctx, phase, "Inferred date of service "+dos,
				map[string]any{"data_type": eventlog.DataTypeVisits, "dos_date": dos})
		}
	}

	t.sink.Process(ctx, phase, eventlog.StatusComplete, "Patient records loaded",
		map[string]any{"visit_count": len(t.cs.Timing.RelatedVisits)})
}

func (t *turn) interpret(ctx context.Context) {
	phase := eventlog.PhaseInterpretation
	utterance := t.in.Event.Utterance()
	if utterance == "" {
		t.sink.Process(ctx, phase, eventlog.StatusComplete, "No user message to interpret", nil)
		return
	}

	t.sink.Process(ctx, phase, eventlog.StatusInProgress, "Interpreting user message", nil)

	sug, err := t.p.interp.Interpret(ctx, t.cs, utterance)
	metrics.LLMCalls.WithLabelValues(store.CallTypeInterpret, metrics.Outcome(err)).Inc()
	if err != nil {
		// Transport-level failure; schema violations were already collapsed
		// to empty suggestions inside the interpreter.
		log.Warn().Err(err).Str("case_id", t.in.CaseID).Msg("Interpreter unavailable")
		t.sink.Process(ctx, phase, eventlog.StatusError, "Interpreter unavailable, continuing without suggestions", nil)
		return
	}
	t.auditLLM(ctx, store.CallTypeInterpret, utterance, sug)

	t.cs = casestate.ApplySuggestions(t.cs, sug, t.today, t.actx)

	fields := len(sug.PatientUpdates) + len(sug.HealthPlanUpdates) + len(sug.TimingUpdates)
	t.sink.Process(ctx, phase, eventlog.StatusComplete, "User message interpreted",
		map[string]any{"suggested_fields": fields})
}

// checkCoverage runs or reuses the coverage transaction. It needs both a
// payer and a member id; the cached raw result is reused only while the
// member id it was fetched for still matches.
func (t *turn) checkCoverage(ctx context.Context) {
	phase := eventlog.PhaseEligibilityCheck
	memberID := t.cs.Patient.MemberID
	payerName := t.cs.HealthPlan.PayerName

	if memberID == "" || payerName == "" {
		t.sink.Process(ctx, phase, eventlog.StatusComplete, "Coverage check skipped; payer or member id missing", nil)
		return
	}

	if cached := t.cs.EligibilityCheck; cached.Checked && cached.ResultRaw != nil && cached.ResultRaw.MemberID == memberID {
		t.sink.Process(ctx, phase, eventlog.StatusInProgress, "Reusing prior coverage result", nil)
		t.sink.Thinking(ctx, phase, "Coverage transaction already on file for this member",
			map[string]any{"data_type": eventlog.DataTypeEligibility, "member_id": memberID})
		t.cs = casestate.ApplyCoverage(t.cs, cached.ResultRaw, t.today, t.actx)
		t.sink.Process(ctx, phase, eventlog.StatusComplete, "Coverage determination refreshed from cached result",
			map[string]any{"status": string(t.cs.EligibilityTruth.Status)})
		return
	}

	t.sink.Process(ctx, phase, eventlog.StatusInProgress, "Checking coverage with "+payerName, nil)
	t.sink.Thinking(ctx, phase, "Running coverage transaction",
		map[string]any{"data_type": eventlog.DataTypeEligibility, "member_id": memberID})

	result, err := t.p.tools.CheckCoverage(ctx, memberID, payerName)
	metrics.ToolCalls.WithLabelValues("coverage", metrics.Outcome(err)).Inc()
	if err != nil {
		log.Warn().Err(err).Str("member_id", memberID).Msg("Coverage transaction failed")
		t.sink.Process(ctx, phase, eventlog.StatusError, "Coverage check failed, continuing without a determination", nil)
		return
	}

	t.cs = casestate.ApplyCoverage(t.cs, &result, t.today, t.actx)
	t.sink.Process(ctx, phase, eventlog.StatusComplete, "Coverage determination complete",
		map[string]any{
			"status":  string(t.cs.EligibilityTruth.Status),
			"windows": len(result.EligibilityWindows),
		})
}

func (t *turn) scoreCase(ctx context.Context) {
	t.sink.Process(ctx, eventlog.PhaseScoring, eventlog.StatusInProgress, "Scoring case", nil)

	t.score = t.p.scorer.Score(ctx, t.cs, t.today, "")

	t.sink.Process(ctx, eventlog.PhaseScoring, eventlog.StatusComplete, "Case scored",
		map[string]any{
			"base_probability": t.score.BaseProbability,
			"base_source":      t.score.BaseSource,
		})
}

// scoreVisits scores every related visit against a frozen snapshot of the
// case, attaches the results, then replaces the headline probability with the
// recency-weighted mean when any visit qualified.
func (t *turn) scoreVisits(ctx context.Context) {
	visits := t.cs.Timing.RelatedVisits
	if len(visits) == 0 {
		return
	}
	phase := eventlog.PhaseVisitScoring
	t.sink.Process(ctx, phase, eventlog.StatusInProgress, fmt.Sprintf("Scoring %d visits", len(visits)), nil)

	// Each task reads only the snapshot and writes only its own result slot.
	snapshot := t.cs.Clone()
	type visitScore struct {
		status casestate.EligibilityStatus
		prob   float64
		state  casestate.ScoreState
	}
	results := make([]visitScore, len(visits))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.p.workers)
	for i := range snapshot.Timing.RelatedVisits {
		i := i
		g.Go(func() error {
			v := snapshot.Timing.RelatedVisits[i]
			c := snapshot.Clone()
			c.Timing.DOSDate = ""
			c.Timing.EventTense = casestate.DeriveTense(v.VisitDate, t.today)
			if _, ok := casestate.ParseDate(v.VisitDate); ok {
				c.Timing.DOSDate = v.VisitDate
			}

			ss := t.p.scorer.Score(gctx, c, t.today, v.Provider)
			results[i] = visitScore{
				status: casestate.VisitEligibility(
					snapshot.EligibilityTruth.CoverageWindowStart,
					snapshot.EligibilityTruth.CoverageWindowEnd,
					v.VisitDate,
				),
				prob:  ss.BaseProbability,
				state: ss,
			}
			return nil
		})
	}
	_ = g.Wait() // visit tasks don't fail; they always produce a score

	for i := range visits {
		r := results[i]
		prob := r.prob
		state := r.state
		visits[i].EligibilityStatus = r.status
		visits[i].EligibilityProbability = &prob
		visits[i].ScoreState = &state
	}
	metrics.VisitsScored.Observe(float64(len(visits)))

	data := map[string]any{"visits_scored": len(visits)}
	if agg := scoring.WeightedAverage(visits, t.today); agg != nil {
		t.score.BaseProbability = *agg
		data["aggregated_probability"] = *agg
	}
	t.sink.Process(ctx, phase, eventlog.StatusComplete, "Visit scoring complete", data)
}

func (t *turn) planTurn(ctx context.Context) {
	phase := eventlog.PhasePlanning
	t.sink.Process(ctx, phase, eventlog.StatusInProgress, "Planning next steps", nil)

	completion := t.cs.Completion()
	plan, err := t.p.planner.Plan(ctx, t.cs, t.score, completion)
	metrics.LLMCalls.WithLabelValues(store.CallTypePlan, metrics.Outcome(err)).Inc()
	if err != nil {
		log.Warn().Err(err).Str("case_id", t.in.CaseID).Msg("Planner failed, using fallback summary")
		t.plan = llm.PlanResult{
			NextQuestions:       []string{},
			ImprovementPlan:     []string{},
			PresentationSummary: llm.FallbackSummary(&t.score),
		}
		t.sink.Process(ctx, phase, eventlog.StatusError, "Planner unavailable, using fallback summary", nil)
		return
	}

	t.plan = plan
	t.auditLLM(ctx, store.CallTypePlan, fmt.Sprintf("plan:%s:%s", t.in.CaseID, t.turnID), plan)
	t.sink.Process(ctx, phase, eventlog.StatusComplete, "Plan ready",
		map[string]any{"next_questions": len(plan.NextQuestions)})
}

func (t *turn) persist(ctx context.Context) error {
	phase := eventlog.PhasePersistence
	t.sink.Process(ctx, phase, eventlog.StatusInProgress, "Persisting case", nil)

	if err := t.p.store.UpdateCase(ctx, t.rec.PK, store.CaseStatusScored, t.cs); err != nil {
		t.sink.Process(ctx, phase, eventlog.StatusError, "Failed to persist case state", nil)
		return fmt.Errorf("persist case %s: %w", t.in.CaseID, err)
	}

	if err := t.p.store.RecordScoreRun(ctx, t.rec.PK, t.turnID, t.score, t.scoreInputs()); err != nil {
		t.sink.Process(ctx, phase, eventlog.StatusError, "Failed to record score run", nil)
		return fmt.Errorf("record score run for %s: %w", t.in.CaseID, err)
	}

	planRaw, err := json.Marshal(t.plan)
	if err != nil {
		planRaw = []byte("{}")
	}
	if err := t.p.store.RecordTurn(ctx, t.rec.PK, t.turnID, planRaw); err != nil {
		t.sink.Process(ctx, phase, eventlog.StatusError, "Failed to record turn", nil)
		return fmt.Errorf("record turn for %s: %w", t.in.CaseID, err)
	}

	t.sink.Process(ctx, phase, eventlog.StatusComplete, "Turn persisted",
		map[string]any{"turn_id": t.turnID})
	return nil
}

// scoreInputs snapshots the fields the score was computed from, stored with
// the run for later inspection.
func (t *turn) scoreInputs() map[string]any {
	return map[string]any{
		"event_type":   t.in.Event.EventType,
		"patient_id":   t.in.PatientID,
		"member_id":    t.cs.Patient.MemberID,
		"payer_name":   t.cs.HealthPlan.PayerName,
		"product_type": string(t.cs.HealthPlan.ProductType),
		"dos_date":     t.cs.Timing.DOSDate,
		"event_tense":  string(t.cs.Timing.EventTense),
		"checked":      t.cs.EligibilityCheck.Checked,
		"visit_count":  len(t.cs.Timing.RelatedVisits),
	}
}

func (t *turn) envelope() TurnResult {
	questions := t.plan.NextQuestions
	if questions == nil {
		questions = []string{}
	}
	improvements := t.plan.ImprovementPlan
	if improvements == nil {
		improvements = []string{}
	}
	return TurnResult{
		TurnID:              t.turnID,
		CaseState:           t.cs,
		ScoreState:          t.score,
		NextQuestions:       questions,
		ImprovementPlan:     improvements,
		PresentationSummary: t.plan.PresentationSummary,
		Completion:          t.cs.Completion(),
	}
}

func (t *turn) emitOutput(ctx context.Context, result TurnResult) {
	t.sink.Output(ctx, map[string]any{
		"turn_id":              result.TurnID,
		"case_id":              t.in.CaseID,
		"base_probability":     result.ScoreState.BaseProbability,
		"eligibility_status":   string(t.cs.EligibilityTruth.Status),
		"presentation_summary": result.PresentationSummary,
		"complete":             result.Completion.Complete,
	})
}

// auditLLM appends one llm_calls row. Audit failures are log-only; losing a
// row must not fail the turn.
func (t *turn) auditLLM(ctx context.Context, callType, prompt string, response any) {
	raw, err := json.Marshal(response)
	if err != nil {
		log.Warn().Err(err).Str("call_type", callType).Msg("Failed to marshal LLM response for audit")
		return
	}
	if err := t.p.store.RecordLLMCall(ctx, t.rec.PK, t.turnID, callType, llm.PromptHash(prompt), raw); err != nil {
		log.Warn().Err(err).Str("call_type", callType).Msg("Failed to record LLM call")
	}
}
