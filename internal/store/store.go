// Package store persists sessions, cases, score runs, LLM call audit rows,
// session events, and the historical fact tables behind a single sqlite
// database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound reports a lookup that matched no row.
var ErrNotFound = errors.New("store: not found")

// Case lifecycle statuses.
const (
	CaseStatusActive = "active"
	CaseStatusScored = "scored"
)

// LLM call types recorded in the audit table.
const (
	CallTypeInterpret = "interpret"
	CallTypePlan      = "plan"
)

type Store struct {
	db *sql.DB
}

// Open opens the sqlite database at path, creating it and its schema when
// missing. Pass ":memory:" for an ephemeral database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: sqlite serializes writes and :memory: databases are
	// per-connection.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying handle for read-only collaborators such as the
// propensity oracle.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS cases (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			case_id TEXT NOT NULL UNIQUE,
			session_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'active',
			case_state TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS case_turns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			case_pk INTEGER NOT NULL,
			turn_id TEXT NOT NULL,
			plan_response TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS score_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			case_pk INTEGER NOT NULL,
			turn_id TEXT NOT NULL,
			scoring_version TEXT NOT NULL,
			score_state TEXT NOT NULL,
			inputs_used TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS llm_calls (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			case_pk INTEGER NOT NULL,
			turn_id TEXT NOT NULL,
			call_type TEXT NOT NULL,
			prompt_hash TEXT NOT NULL,
			response TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			bucket TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, id)`,
		`CREATE TABLE IF NOT EXISTS eligibility_transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			payer_id TEXT NOT NULL DEFAULT '',
			product_type TEXT NOT NULL DEFAULT '',
			contract_status TEXT NOT NULL DEFAULT '',
			event_tense TEXT NOT NULL DEFAULT '',
			sex TEXT NOT NULL DEFAULT '',
			age_bucket TEXT NOT NULL DEFAULT '',
			eligibility_status TEXT NOT NULL,
			dos_date TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_dims ON eligibility_transactions(payer_id, product_type)`,
		`CREATE TABLE IF NOT EXISTS risk_observations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			risk_name TEXT NOT NULL,
			payer_id TEXT NOT NULL DEFAULT '',
			provider TEXT NOT NULL DEFAULT '',
			product_type TEXT NOT NULL DEFAULT '',
			occurred INTEGER NOT NULL,
			observed_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_risk_observations_name ON risk_observations(risk_name)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(context.Background(), stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		t, err = time.Parse(time.RFC3339, value)
		if err != nil {
			return time.Time{}
		}
	}
	return t
}
