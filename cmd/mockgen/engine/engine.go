// Package engine generates a deterministic synthetic dataset: a patient
// fixture panel for the tools layer and historical fact rows for the
// propensity oracle and risk calculator. Same seed, same dataset.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/ananthlk/Mobius-OS-sub002/internal/casestate"
	"github.com/ananthlk/Mobius-OS-sub002/internal/store"
	"github.com/ananthlk/Mobius-OS-sub002/internal/tools"
)

type GeneratorConfig struct {
	Patients     int // synthetic patients on top of the demo panel
	Transactions int // historical eligibility outcomes
	Seed         int64
	Today        time.Time
}

// Dataset is everything one generator run produces.
type Dataset struct {
	Fixtures     []tools.PatientFixture
	Transactions []store.Transaction
	Observations []store.RiskObservation
}

type planDef struct {
	name    string
	product casestate.ProductType
}

type payerDef struct {
	id    string
	name  string
	plans []planDef
}

var payers = []payerDef{
	{"AETNA", "Aetna", []planDef{
		{"Gold PPO", casestate.ProductCommercial},
		{"Silver HMO", casestate.ProductCommercial},
		{"Aetna Medicare Advantage", casestate.ProductMedicare},
	}},
	{"BCBS", "Blue Cross Blue Shield", []planDef{
		{"Blue Choice", casestate.ProductCommercial},
		{"Blue Medicare PPO", casestate.ProductMedicare},
	}},
	{"CIGNA", "Cigna", []planDef{
		{"Open Access Plus", casestate.ProductCommercial},
	}},
	{"UHC", "UnitedHealthcare", []planDef{
		{"Choice Plus", casestate.ProductCommercial},
		{"Dual Complete", casestate.ProductDSNP},
	}},
	{"HUMANA", "Humana", []planDef{
		{"Gold Plus HMO", casestate.ProductMedicare},
	}},
	{"CARESOURCE-OH", "CareSource", []planDef{
		{"CareSource Medicaid", casestate.ProductMedicaid},
	}},
}

var firstNames = []string{
	"Maria", "Devon", "Amara", "James", "Linh", "Sofia", "Marcus", "Priya",
	"Elena", "Tariq", "Grace", "Mateo", "Yuki", "Fatima", "Noah", "Ingrid",
}

var lastNames = []string{
	"Gonzalez", "Carter", "Okafor", "Whitfield", "Nguyen", "Rossi", "Bell",
	"Sharma", "Petrov", "Hassan", "Kim", "Alvarez", "Tanaka", "Osei", "Brandt",
}

var providers = []string{
	"Dr. Patel", "Dr. Lin", "Dr. Okonkwo", "Dr. Reyes", "Dr. Schmidt", "Dr. Haddad",
}

var visitTypes = []string{"office_visit", "follow_up", "procedure", "urgent_care", "annual"}

var ageBuckets = []string{"0-17", "18-25", "26-35", "36-45", "46-55", "56-65", "66+"}

// yesRateByProduct drives the synthetic eligibility outcomes, roughly matching
// observed churn patterns per product line.
var yesRateByProduct = map[casestate.ProductType]float64{
	casestate.ProductMedicaid:   0.72,
	casestate.ProductMedicare:   0.85,
	casestate.ProductDSNP:       0.78,
	casestate.ProductCommercial: 0.88,
}

// occurRateByRisk drives the synthetic risk observations.
var occurRateByRisk = map[string]float64{
	"coverage_loss":        0.08,
	"retrospective_denial": 0.06,
	"payer_error":          0.04,
	"provider_error":       0.03,
}

func Generate(cfg GeneratorConfig) Dataset {
	if cfg.Today.IsZero() {
		cfg.Today = time.Now().UTC()
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	ds := Dataset{
		// The demo panel always rides along so the scenario patients exist in
		// every generated fixture set.
		Fixtures: tools.DefaultFixtures(cfg.Today),
	}
	for i := 0; i < cfg.Patients; i++ {
		ds.Fixtures = append(ds.Fixtures, syntheticPatient(rng, cfg.Today, i))
	}
	for i := 0; i < cfg.Transactions; i++ {
		ds.Transactions = append(ds.Transactions, syntheticTransaction(rng, cfg.Today))
	}
	// One risk observation per two transactions keeps the history tables in a
	// realistic proportion.
	for i := 0; i < cfg.Transactions/2; i++ {
		ds.Observations = append(ds.Observations, syntheticObservation(rng, cfg.Today))
	}
	return ds
}

func syntheticPatient(rng *rand.Rand, today time.Time, index int) tools.PatientFixture {
	memberID := fmt.Sprintf("SYN%04d", index+1)
	payer := payers[rng.Intn(len(payers))]
	plan := payer.plans[rng.Intn(len(payer.plans))]

	sex := "FEMALE"
	if rng.Intn(2) == 0 {
		sex = "MALE"
	}
	dobYear := 1940 + rng.Intn(68)
	dob := time.Date(dobYear, time.Month(1+rng.Intn(12)), 1+rng.Intn(28), 0, 0, 0, 0, time.UTC)

	f := tools.PatientFixture{
		PatientID: memberID,
		Demographics: casestate.DemographicsPayload{
			MemberID:    memberID,
			FirstName:   firstNames[rng.Intn(len(firstNames))],
			LastName:    lastNames[rng.Intn(len(lastNames))],
			DateOfBirth: casestate.DateString(dob),
			Sex:         sex,
		},
		Insurance: casestate.InsurancePayload{
			PayerName: payer.name,
			PayerID:   payer.id,
			PlanName:  plan.name,
			MemberID:  memberID,
		},
		Coverage: casestate.CoverageResult{MemberID: memberID},
	}

	for v, visits := 0, rng.Intn(4); v < visits; v++ {
		offset := rng.Intn(361) - 180
		status := casestate.VisitScheduled
		if offset < 0 {
			status = casestate.VisitCompleted
		}
		f.Visits = append(f.Visits, casestate.VisitInfo{
			VisitID:   fmt.Sprintf("%s-v%d", memberID, v+1),
			VisitDate: casestate.DateString(today.AddDate(0, 0, offset)),
			VisitType: visitTypes[rng.Intn(len(visitTypes))],
			Status:    status,
			Provider:  providers[rng.Intn(len(providers))],
		})
	}

	switch roll := rng.Float64(); {
	case roll < 0.70:
		// Active coverage spanning today.
		eff := today.AddDate(0, 0, -(90 + rng.Intn(600)))
		end := today.AddDate(0, 0, 30+rng.Intn(540))
		f.Coverage.EligibilityWindows = []casestate.EligibilityWindow{{
			EffectiveDate: casestate.DateString(eff),
			EndDate:       casestate.DateString(end),
			Status:        "active",
			PlanName:      plan.name,
			MemberID:      memberID,
			CoverageType:  "medical",
		}}
	case roll < 0.90:
		// Lapsed: the only window ended before today.
		end := today.AddDate(0, 0, -(30 + rng.Intn(365)))
		eff := end.AddDate(-1, 0, 0)
		f.Coverage.EligibilityWindows = []casestate.EligibilityWindow{{
			EffectiveDate: casestate.DateString(eff),
			EndDate:       casestate.DateString(end),
			Status:        "inactive",
			PlanName:      plan.name,
			MemberID:      memberID,
			CoverageType:  "medical",
		}}
	default:
		// Unknown to the clearinghouse: no windows at all.
	}
	return f
}

func syntheticTransaction(rng *rand.Rand, today time.Time) store.Transaction {
	payer := payers[rng.Intn(len(payers))]
	plan := payer.plans[rng.Intn(len(payer.plans))]

	tense := "PAST"
	dosOffset := -(1 + rng.Intn(365))
	if rng.Float64() < 0.4 {
		tense = "FUTURE"
		dosOffset = 1 + rng.Intn(180)
	}

	contract := "CONTRACTED"
	if rng.Float64() < 0.15 {
		contract = "NON_CONTRACTED"
	}
	sex := "FEMALE"
	if rng.Intn(2) == 0 {
		sex = "MALE"
	}

	status := "YES"
	switch roll := rng.Float64(); {
	case roll < yesRateByProduct[plan.product]:
	case roll < yesRateByProduct[plan.product]+0.08:
		status = "NO"
	case rng.Intn(2) == 0:
		status = "NOT_ESTABLISHED"
	default:
		status = "UNKNOWN"
	}

	return store.Transaction{
		PayerID:           payer.id,
		ProductType:       string(plan.product),
		ContractStatus:    contract,
		EventTense:        tense,
		Sex:               sex,
		AgeBucket:         ageBuckets[rng.Intn(len(ageBuckets))],
		EligibilityStatus: status,
		DOSDate:           casestate.DateString(today.AddDate(0, 0, dosOffset)),
	}
}

func syntheticObservation(rng *rand.Rand, today time.Time) store.RiskObservation {
	risks := []string{"coverage_loss", "retrospective_denial", "payer_error", "provider_error"}
	risk := risks[rng.Intn(len(risks))]
	payer := payers[rng.Intn(len(payers))]
	plan := payer.plans[rng.Intn(len(payer.plans))]

	obs := store.RiskObservation{
		RiskName:    risk,
		PayerID:     payer.id,
		ProductType: string(plan.product),
		Occurred:    rng.Float64() < occurRateByRisk[risk],
		ObservedAt:  today.AddDate(0, 0, -rng.Intn(365)),
	}
	if risk == "provider_error" {
		obs.Provider = providers[rng.Intn(len(providers))]
	}
	return obs
}

// Save writes the fixture panel as patients.json under outDir.
func Save(outDir string, fixtures []tools.PatientFixture) error {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(fixtures, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outDir, "patients.json"), raw, 0644)
}

// Seed writes the historical fact rows through the store.
func Seed(ctx context.Context, st *store.Store, ds Dataset) error {
	for _, tx := range ds.Transactions {
		if err := st.InsertTransaction(ctx, tx); err != nil {
			return err
		}
	}
	for _, obs := range ds.Observations {
		if err := st.InsertRiskObservation(ctx, obs); err != nil {
			return err
		}
	}
	return nil
}
