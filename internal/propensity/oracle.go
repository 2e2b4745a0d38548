// Package propensity answers "how often did this kind of case turn out
// eligible" from the historical transaction fact table, with waterfall
// backoff over the known dimensions.
package propensity

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/ananthlk/Mobius-OS-sub002/internal/casestate"
)

// Dimensions the fact table can be conditioned on. Anything else in a dims
// map is ignored.
var dimColumns = map[string]string{
	"payer_id":        "payer_id",
	"product_type":    "product_type",
	"contract_status": "contract_status",
	"event_tense":     "event_tense",
	"sex":             "sex",
	"age_bucket":      "age_bucket",
}

// Result is one stratum lookup: per-state base rates plus the diagnostics the
// scorer records.
type Result struct {
	Probabilities casestate.Distribution
	SampleSize    int
	Level         int
	Dims          []string
	Confidence    float64
}

// Oracle reads the eligibility_transactions fact table. Read-only, safe under
// full concurrency.
type Oracle struct {
	db *sql.DB
}

func NewOracle(db *sql.DB) *Oracle {
	return &Oracle{db: db}
}

// Propensity evaluates the global stratum and the all-known-dims stratum and
// selects by the highest (gated confidence, level, sample size) tuple.
func (o *Oracle) Propensity(ctx context.Context, dims map[string]string) (Result, error) {
	// 1. Global stratum (level 0)
	global, err := o.stratum(ctx, nil)
	if err != nil {
		return Result{}, err
	}
	best := global

	// 2. Specific stratum at level |D_known|
	if len(dims) > 0 {
		specific, err := o.stratum(ctx, dims)
		if err != nil {
			return Result{}, err
		}
		if tupleGreater(specific, best) {
			best = specific
		}
	}

	return best, nil
}

// stratum counts outcomes in one slice of the fact table. A nil dims map
// means the global stratum.
func (o *Oracle) stratum(ctx context.Context, dims map[string]string) (Result, error) {
	query := "SELECT eligibility_status, COUNT(*) FROM eligibility_transactions"
	var (
		args  []any
		names []string
	)
	if len(dims) > 0 {
		var clauses []string
		names = make([]string, 0, len(dims))
		for name := range dims {
			if _, ok := dimColumns[name]; !ok {
				continue
			}
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			clauses = append(clauses, dimColumns[name]+" = ?")
			args = append(args, dims[name])
		}
		if len(clauses) > 0 {
			query += " WHERE " + strings.Join(clauses, " AND ")
		}
	}
	query += " GROUP BY eligibility_status"

	rows, err := o.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Result{}, fmt.Errorf("propensity stratum query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		counts = map[casestate.EligibilityStatus]int{}
		total  int
	)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return Result{}, err
		}
		if st, ok := casestate.ParseEligibilityStatus(status); ok {
			counts[st] += n
			total += n
		}
	}
	if err := rows.Err(); err != nil {
		return Result{}, err
	}

	var probs casestate.Distribution
	if total > 0 {
		for _, st := range casestate.Statuses {
			probs.Set(st, float64(counts[st])/float64(total))
		}
		probs = probs.Normalize()
	}

	return Result{
		Probabilities: probs,
		SampleSize:    total,
		Level:         len(names),
		Dims:          names,
		Confidence:    Confidence(total),
	}, nil
}

// Confidence grows with sample size and saturates at 0.95.
func Confidence(n int) float64 {
	c := float64(n) / 100
	if c > 0.95 {
		return 0.95
	}
	return c
}

// gate zeroes out confidences too weak to trust.
func gate(c float64) float64 {
	if c > 0.2 {
		return c
	}
	return 0
}

func tupleGreater(a, b Result) bool {
	ga, gb := gate(a.Confidence), gate(b.Confidence)
	if ga != gb {
		return ga > gb
	}
	if a.Level != b.Level {
		return a.Level > b.Level
	}
	return a.SampleSize > b.SampleSize
}
