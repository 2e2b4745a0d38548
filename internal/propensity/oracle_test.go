package propensity_test

import (
	"context"
	"database/sql"
	"math"
	"reflect"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/ananthlk/Mobius-OS-sub002/internal/propensity"
)

func openFactTable(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE eligibility_transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		payer_id TEXT NOT NULL DEFAULT '',
		product_type TEXT NOT NULL DEFAULT '',
		contract_status TEXT NOT NULL DEFAULT '',
		event_tense TEXT NOT NULL DEFAULT '',
		sex TEXT NOT NULL DEFAULT '',
		age_bucket TEXT NOT NULL DEFAULT '',
		eligibility_status TEXT NOT NULL,
		dos_date TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		t.Fatalf("Failed to create fact table: %v", err)
	}
	return db
}

func seed(t *testing.T, db *sql.DB, payerID, product, status string, n int) {
	t.Helper()
	stmt, err := db.Prepare(`INSERT INTO eligibility_transactions
		(payer_id, product_type, contract_status, event_tense, sex, age_bucket, eligibility_status, dos_date)
		VALUES (?, ?, 'CONTRACTED', 'FUTURE', 'FEMALE', '26-35', ?, '2025-01-01')`)
	if err != nil {
		t.Fatalf("Failed to prepare seed statement: %v", err)
	}
	defer func() { _ = stmt.Close() }()
	for i := 0; i < n; i++ {
		if _, err := stmt.Exec(payerID, product, status); err != nil {
			t.Fatalf("Failed to seed row: %v", err)
		}
	}
}

func TestPropensityGlobalStratum(t *testing.T) {
	db := openFactTable(t)
	seed(t, db, "AETNA", "COMMERCIAL", "YES", 6)
	seed(t, db, "AETNA", "COMMERCIAL", "NO", 2)
	seed(t, db, "AETNA", "COMMERCIAL", "NOT_ESTABLISHED", 1)
	seed(t, db, "AETNA", "COMMERCIAL", "UNKNOWN", 1)

	oracle := propensity.NewOracle(db)
	got, err := oracle.Propensity(context.Background(), nil)
	if err != nil {
		t.Fatalf("Propensity() error: %v", err)
	}

	if got.SampleSize != 10 || got.Level != 0 {
		t.Errorf("Propensity() = n%d/level%d, want n10/level0", got.SampleSize, got.Level)
	}
	if math.Abs(got.Probabilities.Yes-0.6) > 1e-12 || math.Abs(got.Probabilities.No-0.2) > 1e-12 {
		t.Errorf("Probabilities = %+v, want 0.6/0.2/0.1/0.1", got.Probabilities)
	}
	if math.Abs(got.Confidence-0.1) > 1e-12 {
		t.Errorf("Confidence = %v, want 0.1", got.Confidence)
	}
}

func TestPropensityGlobalWinsOverThinStratum(t *testing.T) {
	db := openFactTable(t)
	seed(t, db, "AETNA", "COMMERCIAL", "YES", 240)
	seed(t, db, "AETNA", "COMMERCIAL", "NO", 60)
	seed(t, db, "BCBS", "COMMERCIAL", "YES", 30)

	oracle := propensity.NewOracle(db)
	got, err := oracle.Propensity(context.Background(), map[string]string{"payer_id": "BCBS"})
	if err != nil {
		t.Fatalf("Propensity() error: %v", err)
	}

	// The BCBS stratum's confidence (0.3) loses to the saturated global
	// stratum (0.95), so the global stratum wins despite the dims being known.
	if got.Level != 0 {
		t.Errorf("Level = %d, want 0 (global)", got.Level)
	}
	if got.SampleSize != 330 {
		t.Errorf("SampleSize = %d, want 330", got.SampleSize)
	}
}

func TestPropensitySpecificWinsAtScale(t *testing.T) {
	db := openFactTable(t)
	seed(t, db, "AETNA", "COMMERCIAL", "NO", 200)
	seed(t, db, "BCBS", "COMMERCIAL", "YES", 100)

	oracle := propensity.NewOracle(db)
	got, err := oracle.Propensity(context.Background(), map[string]string{"payer_id": "BCBS"})
	if err != nil {
		t.Fatalf("Propensity() error: %v", err)
	}

	// Both strata saturate confidence at 0.95; the higher level breaks the tie.
	if got.Level != 1 {
		t.Errorf("Level = %d, want 1 (specific)", got.Level)
	}
	if got.SampleSize != 100 {
		t.Errorf("SampleSize = %d, want 100", got.SampleSize)
	}
	if got.Probabilities.Yes != 1 {
		t.Errorf("Yes = %v, want 1 within the BCBS stratum", got.Probabilities.Yes)
	}
	if !reflect.DeepEqual(got.Dims, []string{"payer_id"}) {
		t.Errorf("Dims = %v, want [payer_id]", got.Dims)
	}
}

func TestPropensityMultiDimStratum(t *testing.T) {
	db := openFactTable(t)
	seed(t, db, "AETNA", "MEDICAID", "YES", 80)
	seed(t, db, "AETNA", "MEDICAID", "NO", 20)
	seed(t, db, "AETNA", "COMMERCIAL", "NO", 50)
	seed(t, db, "BCBS", "MEDICAID", "YES", 50)

	oracle := propensity.NewOracle(db)
	got, err := oracle.Propensity(context.Background(), map[string]string{
		"payer_id":     "AETNA",
		"product_type": "MEDICAID",
	})
	if err != nil {
		t.Fatalf("Propensity() error: %v", err)
	}

	if got.Level != 2 || got.SampleSize != 100 {
		t.Errorf("Propensity() = n%d/level%d, want n100/level2", got.SampleSize, got.Level)
	}
	if math.Abs(got.Probabilities.Yes-0.8) > 1e-12 {
		t.Errorf("Yes = %v, want 0.8", got.Probabilities.Yes)
	}
	if !reflect.DeepEqual(got.Dims, []string{"payer_id", "product_type"}) {
		t.Errorf("Dims = %v, want sorted [payer_id product_type]", got.Dims)
	}
}

func TestPropensityIgnoresUnknownDims(t *testing.T) {
	db := openFactTable(t)
	seed(t, db, "AETNA", "COMMERCIAL", "YES", 10)

	oracle := propensity.NewOracle(db)
	got, err := oracle.Propensity(context.Background(), map[string]string{"favorite_color": "blue"})
	if err != nil {
		t.Fatalf("Propensity() error: %v", err)
	}

	if got.Level != 0 || got.SampleSize != 10 {
		t.Errorf("Propensity() = n%d/level%d, want the global stratum", got.SampleSize, got.Level)
	}
}

func TestPropensityEmptyTable(t *testing.T) {
	db := openFactTable(t)

	oracle := propensity.NewOracle(db)
	got, err := oracle.Propensity(context.Background(), nil)
	if err != nil {
		t.Fatalf("Propensity() error: %v", err)
	}

	if got.Probabilities.Sum() != 0 {
		t.Errorf("Probabilities = %+v, want zero mass for an empty table", got.Probabilities)
	}
	if got.SampleSize != 0 || got.Confidence != 0 {
		t.Errorf("Propensity() = n%d/conf%v, want n0/conf0", got.SampleSize, got.Confidence)
	}
}

func TestPropensityRejectsGarbageStatuses(t *testing.T) {
	db := openFactTable(t)
	seed(t, db, "AETNA", "COMMERCIAL", "YES", 4)
	seed(t, db, "AETNA", "COMMERCIAL", "MAYBE", 6)

	oracle := propensity.NewOracle(db)
	got, err := oracle.Propensity(context.Background(), nil)
	if err != nil {
		t.Fatalf("Propensity() error: %v", err)
	}

	// Rows with unparseable statuses do not count toward the stratum.
	if got.SampleSize != 4 {
		t.Errorf("SampleSize = %d, want 4", got.SampleSize)
	}
	if got.Probabilities.Yes != 1 {
		t.Errorf("Yes = %v, want 1", got.Probabilities.Yes)
	}
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		n        int
		expected float64
	}{
		{0, 0},
		{10, 0.1},
		{50, 0.5},
		{95, 0.95},
		{96, 0.95},
		{1000, 0.95},
	}
	for _, tt := range tests {
		if got := propensity.Confidence(tt.n); math.Abs(got-tt.expected) > 1e-12 {
			t.Errorf("Confidence(%d) = %v, want %v", tt.n, got, tt.expected)
		}
	}
}
