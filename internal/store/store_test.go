package store

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/ananthlk/Mobius-OS-sub002/internal/casestate"
	"github.com/ananthlk/Mobius-OS-sub002/internal/eventlog"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSessionRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	created, err := s.CreateSession(ctx, "user-7")
	if err != nil {
		t.Fatalf("CreateSession() error: %v", err)
	}
	if created.SessionID == "" {
		t.Fatal("CreateSession() returned an empty id")
	}

	got, err := s.GetSession(ctx, created.SessionID)
	if err != nil {
		t.Fatalf("GetSession() error: %v", err)
	}
	if got.UserID != "user-7" {
		t.Errorf("UserID = %q, want user-7", got.UserID)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt did not survive the round trip")
	}

	if _, err := s.GetSession(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSession(missing) error = %v, want ErrNotFound", err)
	}
}

func TestCaseLifecycle(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if _, err := s.LoadCase(ctx, "case-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("LoadCase(new) error = %v, want ErrNotFound", err)
	}

	cs := casestate.New()
	cs.Patient.MemberID = "MRN100"
	cs.Patient.FirstName = "Maria"
	p := 0.75
	cs.Timing.RelatedVisits = []casestate.VisitInfo{
		{VisitID: "v1", VisitDate: "2025-07-15", Status: casestate.VisitScheduled, EligibilityProbability: &p},
	}

	created, err := s.CreateCase(ctx, "case-1", "sess-1", cs)
	if err != nil {
		t.Fatalf("CreateCase() error: %v", err)
	}
	if created.PK == 0 || created.Status != CaseStatusActive {
		t.Errorf("CreateCase() = pk%d/%s, want a pk and active status", created.PK, created.Status)
	}

	loaded, err := s.LoadCase(ctx, "case-1")
	if err != nil {
		t.Fatalf("LoadCase() error: %v", err)
	}
	if !reflect.DeepEqual(loaded.State, cs) {
		t.Errorf("Loaded state = %+v, want the stored snapshot", loaded.State)
	}
	if loaded.SessionID != "sess-1" {
		t.Errorf("SessionID = %q, want sess-1", loaded.SessionID)
	}

	cs.EligibilityTruth.Status = casestate.StatusYes
	if err := s.UpdateCase(ctx, loaded.PK, CaseStatusScored, cs); err != nil {
		t.Fatalf("UpdateCase() error: %v", err)
	}
	reloaded, err := s.LoadCase(ctx, "case-1")
	if err != nil {
		t.Fatalf("LoadCase() after update error: %v", err)
	}
	if reloaded.Status != CaseStatusScored {
		t.Errorf("Status = %q, want scored", reloaded.Status)
	}
	if reloaded.State.EligibilityTruth.Status != casestate.StatusYes {
		t.Errorf("Truth = %s, want YES after update", reloaded.State.EligibilityTruth.Status)
	}
}

func TestScoreRunsAppendOnly(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	rec, err := s.CreateCase(ctx, "case-2", "sess-1", casestate.New())
	if err != nil {
		t.Fatalf("CreateCase() error: %v", err)
	}

	if _, err := s.LatestScoreRun(ctx, rec.PK); !errors.Is(err, ErrNotFound) {
		t.Fatalf("LatestScoreRun(unscored) error = %v, want ErrNotFound", err)
	}

	first := casestate.ScoreState{BaseProbability: 0.5, ScoringVersion: "2.1.0"}
	second := casestate.ScoreState{BaseProbability: 0.75, ScoringVersion: "2.1.0"}
	if err := s.RecordScoreRun(ctx, rec.PK, "turn-1", first, map[string]any{"visits": 0.0}); err != nil {
		t.Fatalf("RecordScoreRun() error: %v", err)
	}
	if err := s.RecordScoreRun(ctx, rec.PK, "turn-2", second, nil); err != nil {
		t.Fatalf("RecordScoreRun() error: %v", err)
	}

	latest, err := s.LatestScoreRun(ctx, rec.PK)
	if err != nil {
		t.Fatalf("LatestScoreRun() error: %v", err)
	}
	if latest.TurnID != "turn-2" || latest.ScoreState.BaseProbability != 0.75 {
		t.Errorf("LatestScoreRun() = %s/%v, want turn-2/0.75", latest.TurnID, latest.ScoreState.BaseProbability)
	}
	if latest.ScoringVersion != "2.1.0" {
		t.Errorf("ScoringVersion = %q, want 2.1.0", latest.ScoringVersion)
	}
}

func TestTurnAndLLMAuditRows(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	rec, err := s.CreateCase(ctx, "case-3", "sess-1", casestate.New())
	if err != nil {
		t.Fatalf("CreateCase() error: %v", err)
	}

	if err := s.RecordTurn(ctx, rec.PK, "turn-1", []byte(`{"next_questions":[]}`)); err != nil {
		t.Fatalf("RecordTurn() error: %v", err)
	}
	if err := s.RecordLLMCall(ctx, rec.PK, "turn-1", CallTypeInterpret, "abc123", []byte(`{}`)); err != nil {
		t.Fatalf("RecordLLMCall() error: %v", err)
	}

	var turns, calls int
	if err := s.DB().QueryRow(`SELECT COUNT(*) FROM case_turns WHERE case_pk = ?`, rec.PK).Scan(&turns); err != nil {
		t.Fatalf("Count turns: %v", err)
	}
	if err := s.DB().QueryRow(`SELECT COUNT(*) FROM llm_calls WHERE call_type = ?`, CallTypeInterpret).Scan(&calls); err != nil {
		t.Fatalf("Count llm calls: %v", err)
	}
	if turns != 1 || calls != 1 {
		t.Errorf("Audit rows = %d turns / %d calls, want 1/1", turns, calls)
	}
}

func TestLatestTurn(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	rec, err := s.CreateCase(ctx, "case-4", "sess-1", casestate.New())
	if err != nil {
		t.Fatalf("CreateCase() error: %v", err)
	}

	if _, err := s.LatestTurn(ctx, rec.PK); !errors.Is(err, ErrNotFound) {
		t.Fatalf("LatestTurn(no turns) error = %v, want ErrNotFound", err)
	}

	if err := s.RecordTurn(ctx, rec.PK, "turn-1", []byte(`{"next_questions":["a"]}`)); err != nil {
		t.Fatalf("RecordTurn() error: %v", err)
	}
	if err := s.RecordTurn(ctx, rec.PK, "turn-2", []byte(`{"next_questions":[]}`)); err != nil {
		t.Fatalf("RecordTurn() error: %v", err)
	}

	latest, err := s.LatestTurn(ctx, rec.PK)
	if err != nil {
		t.Fatalf("LatestTurn() error: %v", err)
	}
	if latest.TurnID != "turn-2" {
		t.Errorf("TurnID = %q, want turn-2", latest.TurnID)
	}
	if string(latest.PlanResponse) != `{"next_questions":[]}` {
		t.Errorf("PlanResponse = %s, want the second turn's plan", latest.PlanResponse)
	}
	if latest.CreatedAt.IsZero() {
		t.Error("CreatedAt did not survive the round trip")
	}
}

func TestEventsOrderedPerSession(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	var appender eventlog.Appender = s
	if err := appender.AppendEvent(ctx, "sess-a", eventlog.BucketProcess, []byte(`{"phase":"scoring"}`)); err != nil {
		t.Fatalf("AppendEvent() error: %v", err)
	}
	if err := appender.AppendEvent(ctx, "sess-b", eventlog.BucketThinking, []byte(`{"phase":"other"}`)); err != nil {
		t.Fatalf("AppendEvent() error: %v", err)
	}
	if err := appender.AppendEvent(ctx, "sess-a", eventlog.BucketThinking, []byte(`{"phase":"scoring"}`)); err != nil {
		t.Fatalf("AppendEvent() error: %v", err)
	}

	records, err := s.EventsForSession(ctx, "sess-a")
	if err != nil {
		t.Fatalf("EventsForSession() error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("EventsForSession() returned %d records, want 2", len(records))
	}
	if records[0].ID >= records[1].ID {
		t.Errorf("Records out of insertion order: %d then %d", records[0].ID, records[1].ID)
	}
	if records[0].Bucket != eventlog.BucketProcess || records[1].Bucket != eventlog.BucketThinking {
		t.Errorf("Buckets = %s/%s, want process then thinking", records[0].Bucket, records[1].Bucket)
	}
}

func TestRiskRateScoping(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	seed := func(risk, payerID, product string, occurred bool, n int) {
		t.Helper()
		for i := 0; i < n; i++ {
			if err := s.InsertRiskObservation(ctx, RiskObservation{
				RiskName:    risk,
				PayerID:     payerID,
				ProductType: product,
				Occurred:    occurred,
			}); err != nil {
				t.Fatalf("InsertRiskObservation() error: %v", err)
			}
		}
	}
	seed("coverage_loss", "AETNA", "MEDICAID", true, 3)
	seed("coverage_loss", "AETNA", "MEDICAID", false, 7)
	seed("coverage_loss", "BCBS", "COMMERCIAL", true, 5)
	seed("payer_error", "AETNA", "", true, 2)

	rate, n, err := s.RiskRate(ctx, "coverage_loss", map[string]string{"product_type": "MEDICAID"})
	if err != nil {
		t.Fatalf("RiskRate() error: %v", err)
	}
	if n != 10 || math.Abs(rate-0.3) > 1e-12 {
		t.Errorf("Scoped RiskRate() = %v/n%d, want 0.3/n10", rate, n)
	}

	rate, n, err = s.RiskRate(ctx, "coverage_loss", nil)
	if err != nil {
		t.Fatalf("RiskRate() error: %v", err)
	}
	if n != 15 || math.Abs(rate-8.0/15.0) > 1e-12 {
		t.Errorf("Global RiskRate() = %v/n%d, want 8/15 over 15 rows", rate, n)
	}

	// Unknown scope keys are ignored rather than matching nothing.
	rate, n, err = s.RiskRate(ctx, "payer_error", map[string]string{"favorite_color": "blue"})
	if err != nil {
		t.Fatalf("RiskRate() error: %v", err)
	}
	if n != 2 || rate != 1 {
		t.Errorf("RiskRate() with junk scope = %v/n%d, want 1/n2", rate, n)
	}

	if _, n, err = s.RiskRate(ctx, "provider_error", nil); err != nil || n != 0 {
		t.Errorf("RiskRate(no history) = n%d err %v, want n0 and no error", n, err)
	}
}

func TestTransactionsFeedPropensityTable(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	err := s.InsertTransaction(ctx, Transaction{
		PayerID:           "AETNA",
		ProductType:       "MEDICAID",
		ContractStatus:    "CONTRACTED",
		EventTense:        "FUTURE",
		Sex:               "FEMALE",
		AgeBucket:         "26-35",
		EligibilityStatus: "YES",
		DOSDate:           "2025-07-01",
	})
	if err != nil {
		t.Fatalf("InsertTransaction() error: %v", err)
	}

	var count int
	if err := s.DB().QueryRow(`SELECT COUNT(*) FROM eligibility_transactions WHERE payer_id = 'AETNA'`).Scan(&count); err != nil {
		t.Fatalf("Count transactions: %v", err)
	}
	if count != 1 {
		t.Errorf("Transactions = %d, want 1", count)
	}
}
