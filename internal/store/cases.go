package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ananthlk/Mobius-OS-sub002/internal/casestate"
)

// Session scopes a user's conversation and its event log.
type Session struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// CaseRecord is a persisted case row with its decoded state snapshot.
type CaseRecord struct {
	PK        int64               `json:"-"`
	CaseID    string              `json:"case_id"`
	SessionID string              `json:"session_id"`
	Status    string              `json:"status"`
	State     casestate.CaseState `json:"case_state"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// ScoreRun is one persisted scoring pass. Runs are append-only; the latest
// one is what callers see.
type ScoreRun struct {
	ID             int64                `json:"id"`
	CasePK         int64                `json:"-"`
	TurnID         string               `json:"turn_id"`
	ScoringVersion string               `json:"scoring_version"`
	ScoreState     casestate.ScoreState `json:"score_state"`
	InputsUsed     map[string]any       `json:"inputs_used,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}

// CreateSession mints a new session for a user.
func (s *Store) CreateSession(ctx context.Context, userID string) (Session, error) {
	sess := Session{
		SessionID: uuid.NewString(),
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, user_id, created_at) VALUES (?, ?, ?)`,
		sess.SessionID, sess.UserID, sess.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// GetSession loads a session row, ErrNotFound when the id is unknown.
func (s *Store) GetSession(ctx context.Context, sessionID string) (Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, user_id, created_at FROM sessions WHERE session_id = ?`, sessionID)

	var (
		sess      Session
		createdAt string
	)
	if err := row.Scan(&sess.SessionID, &sess.UserID, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}
	sess.CreatedAt = parseTime(createdAt)
	return sess, nil
}

// LoadCase fetches a case by its external id, ErrNotFound when absent.
func (s *Store) LoadCase(ctx context.Context, caseID string) (CaseRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, case_id, session_id, status, case_state, created_at, updated_at
		 FROM cases WHERE case_id = ?`, caseID)
	return scanCase(row)
}

// CreateCase inserts a fresh case snapshot and returns the stored record.
func (s *Store) CreateCase(ctx context.Context, caseID, sessionID string, cs casestate.CaseState) (CaseRecord, error) {
	raw, err := json.Marshal(cs)
	if err != nil {
		return CaseRecord{}, fmt.Errorf("marshal case state: %w", err)
	}
	now := nowStamp()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO cases (case_id, session_id, status, case_state, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		caseID, sessionID, CaseStatusActive, string(raw), now, now,
	)
	if err != nil {
		return CaseRecord{}, fmt.Errorf("create case: %w", err)
	}
	pk, err := res.LastInsertId()
	if err != nil {
		return CaseRecord{}, err
	}
	return CaseRecord{
		PK:        pk,
		CaseID:    caseID,
		SessionID: sessionID,
		Status:    CaseStatusActive,
		State:     cs,
		CreatedAt: parseTime(now),
		UpdatedAt: parseTime(now),
	}, nil
}

// UpdateCase replaces a case's snapshot and status.
func (s *Store) UpdateCase(ctx context.Context, pk int64, status string, cs casestate.CaseState) error {
	raw, err := json.Marshal(cs)
	if err != nil {
		return fmt.Errorf("marshal case state: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE cases SET status = ?, case_state = ?, updated_at = ? WHERE id = ?`,
		status, string(raw), nowStamp(), pk,
	)
	if err != nil {
		return fmt.Errorf("update case: %w", err)
	}
	return nil
}

// RecordTurn appends a turn row with the planner's serialized response.
func (s *Store) RecordTurn(ctx context.Context, casePK int64, turnID string, planResponse []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO case_turns (case_pk, turn_id, plan_response, created_at) VALUES (?, ?, ?, ?)`,
		casePK, turnID, string(planResponse), nowStamp(),
	)
	if err != nil {
		return fmt.Errorf("record turn: %w", err)
	}
	return nil
}

// TurnRecord is one persisted turn with the planner's serialized response.
type TurnRecord struct {
	ID           int64           `json:"id"`
	CasePK       int64           `json:"-"`
	TurnID       string          `json:"turn_id"`
	PlanResponse json.RawMessage `json:"plan_response,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// LatestTurn returns the most recent turn for a case, ErrNotFound when the
// case has no turns yet.
func (s *Store) LatestTurn(ctx context.Context, casePK int64) (TurnRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, case_pk, turn_id, plan_response, created_at
		 FROM case_turns WHERE case_pk = ? ORDER BY id DESC LIMIT 1`, casePK)

	var (
		rec       TurnRecord
		planRaw   string
		createdAt string
	)
	if err := row.Scan(&rec.ID, &rec.CasePK, &rec.TurnID, &planRaw, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TurnRecord{}, ErrNotFound
		}
		return TurnRecord{}, err
	}
	if planRaw != "" {
		rec.PlanResponse = json.RawMessage(planRaw)
	}
	rec.CreatedAt = parseTime(createdAt)
	return rec, nil
}

// RecordScoreRun appends one scoring pass for a case.
func (s *Store) RecordScoreRun(ctx context.Context, casePK int64, turnID string, ss casestate.ScoreState, inputsUsed map[string]any) error {
	stateRaw, err := json.Marshal(ss)
	if err != nil {
		return fmt.Errorf("marshal score state: %w", err)
	}
	inputsRaw, err := json.Marshal(inputsUsed)
	if err != nil {
		return fmt.Errorf("marshal score inputs: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO score_runs (case_pk, turn_id, scoring_version, score_state, inputs_used, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		casePK, turnID, ss.ScoringVersion, string(stateRaw), string(inputsRaw), nowStamp(),
	)
	if err != nil {
		return fmt.Errorf("record score run: %w", err)
	}
	return nil
}

// LatestScoreRun returns the most recent scoring pass for a case,
// ErrNotFound when the case has never been scored.
func (s *Store) LatestScoreRun(ctx context.Context, casePK int64) (ScoreRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, case_pk, turn_id, scoring_version, score_state, inputs_used, created_at
		 FROM score_runs WHERE case_pk = ? ORDER BY id DESC LIMIT 1`, casePK)

	var (
		run       ScoreRun
		stateRaw  string
		inputsRaw sql.NullString
		createdAt string
	)
	if err := row.Scan(&run.ID, &run.CasePK, &run.TurnID, &run.ScoringVersion, &stateRaw, &inputsRaw, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ScoreRun{}, ErrNotFound
		}
		return ScoreRun{}, err
	}
	if err := json.Unmarshal([]byte(stateRaw), &run.ScoreState); err != nil {
		return ScoreRun{}, fmt.Errorf("decode score state: %w", err)
	}
	if inputsRaw.Valid && inputsRaw.String != "" {
		_ = json.Unmarshal([]byte(inputsRaw.String), &run.InputsUsed)
	}
	run.CreatedAt = parseTime(createdAt)
	return run, nil
}

// RecordLLMCall appends one audit row for an interpreter or planner call.
func (s *Store) RecordLLMCall(ctx context.Context, casePK int64, turnID, callType, promptHash string, response []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO llm_calls (case_pk, turn_id, call_type, prompt_hash, response, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		casePK, turnID, callType, promptHash, string(response), nowStamp(),
	)
	if err != nil {
		return fmt.Errorf("record llm call: %w", err)
	}
	return nil
}

func scanCase(row *sql.Row) (CaseRecord, error) {
	var (
		rec       CaseRecord
		stateRaw  string
		createdAt string
		updatedAt string
	)
	if err := row.Scan(&rec.PK, &rec.CaseID, &rec.SessionID, &rec.Status, &stateRaw, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CaseRecord{}, ErrNotFound
		}
		return CaseRecord{}, err
	}
	if err := json.Unmarshal([]byte(stateRaw), &rec.State); err != nil {
		return CaseRecord{}, fmt.Errorf("decode case state: %w", err)
	}
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	return rec, nil
}
