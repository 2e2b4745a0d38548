package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Transaction is one historical eligibility outcome, the unit of the
// propensity fact table.
type Transaction struct {
	PayerID           string `json:"payer_id,omitempty"`
	ProductType       string `json:"product_type,omitempty"`
	ContractStatus    string `json:"contract_status,omitempty"`
	EventTense        string `json:"event_tense,omitempty"`
	Sex               string `json:"sex,omitempty"`
	AgeBucket         string `json:"age_bucket,omitempty"`
	EligibilityStatus string `json:"eligibility_status"`
	DOSDate           string `json:"dos_date,omitempty"`
}

// RiskObservation is one observed risk outcome within a scope.
type RiskObservation struct {
	RiskName    string    `json:"risk_name"`
	PayerID     string    `json:"payer_id,omitempty"`
	Provider    string    `json:"provider,omitempty"`
	ProductType string    `json:"product_type,omitempty"`
	Occurred    bool      `json:"occurred"`
	ObservedAt  time.Time `json:"observed_at"`
}

// Scopes the risk-rate query accepts; anything else in a scope map is
// ignored.
var riskScopeColumns = map[string]string{
	"payer_id":     "payer_id",
	"provider":     "provider",
	"product_type": "product_type",
}

// InsertTransaction appends one row to the propensity fact table.
func (s *Store) InsertTransaction(ctx context.Context, tx Transaction) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO eligibility_transactions
		 (payer_id, product_type, contract_status, event_tense, sex, age_bucket, eligibility_status, dos_date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.PayerID, tx.ProductType, tx.ContractStatus, tx.EventTense, tx.Sex, tx.AgeBucket,
		tx.EligibilityStatus, tx.DOSDate, nowStamp(),
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// InsertRiskObservation appends one row to the risk history table.
func (s *Store) InsertRiskObservation(ctx context.Context, obs RiskObservation) error {
	occurred := 0
	if obs.Occurred {
		occurred = 1
	}
	observedAt := obs.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO risk_observations (risk_name, payer_id, provider, product_type, occurred, observed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		obs.RiskName, obs.PayerID, obs.Provider, obs.ProductType, occurred,
		observedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert risk observation: %w", err)
	}
	return nil
}

// RiskRate returns the observed occurrence rate of a risk within a scope and
// the sample size behind it. Satisfies the scorer's RiskStats.
func (s *Store) RiskRate(ctx context.Context, risk string, scope map[string]string) (float64, int, error) {
	query := `SELECT COALESCE(AVG(occurred), 0), COUNT(*) FROM risk_observations WHERE risk_name = ?`
	args := []any{risk}

	if len(scope) > 0 {
		names := make([]string, 0, len(scope))
		for name := range scope {
			if _, ok := riskScopeColumns[name]; ok {
				names = append(names, name)
			}
		}
		sort.Strings(names)
		var clauses []string
		for _, name := range names {
			clauses = append(clauses, riskScopeColumns[name]+" = ?")
			args = append(args, scope[name])
		}
		if len(clauses) > 0 {
			query += " AND " + strings.Join(clauses, " AND ")
		}
	}

	var (
		rate float64
		n    int
	)
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&rate, &n); err != nil {
		return 0, 0, fmt.Errorf("risk rate query: %w", err)
	}
	return rate, n, nil
}
