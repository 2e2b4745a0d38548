package casestate

// EligibilityStatus is the four-state outcome the whole pipeline reasons over.
type EligibilityStatus string

const (
	StatusYes EligibilityStatus = "YES"
	StatusNo  EligibilityStatus = "NO"
	// StatusNotEstablished means no determination could be made from evidence.
	StatusNotEstablished EligibilityStatus = "NOT_ESTABLISHED"
	// StatusUnknown means the question has not been resolved at all.
	StatusUnknown EligibilityStatus = "UNKNOWN"
)

// Statuses lists the four states in their canonical order.
var Statuses = []EligibilityStatus{StatusYes, StatusNo, StatusNotEstablished, StatusUnknown}

// ParseEligibilityStatus validates a candidate status value.
func ParseEligibilityStatus(s string) (EligibilityStatus, bool) {
	switch EligibilityStatus(s) {
	case StatusYes, StatusNo, StatusNotEstablished, StatusUnknown:
		return EligibilityStatus(s), true
	}
	return "", false
}

type Sex string

const (
	SexMale    Sex = "MALE"
	SexFemale  Sex = "FEMALE"
	SexOther   Sex = "OTHER"
	SexUnknown Sex = "UNKNOWN"
)

func ParseSex(s string) (Sex, bool) {
	switch Sex(s) {
	case SexMale, SexFemale, SexOther, SexUnknown:
		return Sex(s), true
	}
	return "", false
}

// ProductType classifies the insurance product line.
type ProductType string

const (
	ProductMedicaid   ProductType = "MEDICAID"
	ProductMedicare   ProductType = "MEDICARE"
	ProductDSNP       ProductType = "DSNP"
	ProductCommercial ProductType = "COMMERCIAL"
	ProductOther      ProductType = "OTHER"
	ProductUnknown    ProductType = "UNKNOWN"
)

func ParseProductType(s string) (ProductType, bool) {
	switch ProductType(s) {
	case ProductMedicaid, ProductMedicare, ProductDSNP, ProductCommercial, ProductOther, ProductUnknown:
		return ProductType(s), true
	}
	return "", false
}

type ContractStatus string

const (
	Contracted            ContractStatus = "CONTRACTED"
	NonContracted         ContractStatus = "NON_CONTRACTED"
	ContractStatusUnknown ContractStatus = "UNKNOWN"
)

func ParseContractStatus(s string) (ContractStatus, bool) {
	switch ContractStatus(s) {
	case Contracted, NonContracted, ContractStatusUnknown:
		return ContractStatus(s), true
	}
	return "", false
}

// Tense places a date of service relative to today.
type Tense string

const (
	TensePast    Tense = "PAST"
	TenseFuture  Tense = "FUTURE"
	TenseUnknown Tense = "UNKNOWN"
)

func ParseTense(s string) (Tense, bool) {
	switch Tense(s) {
	case TensePast, TenseFuture, TenseUnknown:
		return Tense(s), true
	}
	return "", false
}

type EvidenceStrength string

const (
	EvidenceHigh   EvidenceStrength = "HIGH"
	EvidenceMedium EvidenceStrength = "MEDIUM"
	EvidenceLow    EvidenceStrength = "LOW"
)

// CheckSource records which channel produced an eligibility check.
type CheckSource string

const (
	CheckClearinghouse CheckSource = "CLEARINGHOUSE"
	CheckManual        CheckSource = "MANUAL"
	CheckNone          CheckSource = "NONE"
)

type VisitStatus string

const (
	VisitScheduled VisitStatus = "scheduled"
	VisitCompleted VisitStatus = "completed"
	VisitCancelled VisitStatus = "cancelled"
)

func ParseVisitStatus(s string) (VisitStatus, bool) {
	switch VisitStatus(s) {
	case VisitScheduled, VisitCompleted, VisitCancelled:
		return VisitStatus(s), true
	}
	return "", false
}

// Patient holds member identity and demographics.
type Patient struct {
	MemberID    string `json:"member_id,omitempty"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
	Sex         Sex    `json:"sex,omitempty"`
}

// HealthPlan holds the insurance relationship.
type HealthPlan struct {
	PayerName      string         `json:"payer_name,omitempty"`
	PayerID        string         `json:"payer_id,omitempty"`
	PlanName       string         `json:"plan_name,omitempty"`
	ProductType    ProductType    `json:"product_type,omitempty"`
	ContractStatus ContractStatus `json:"contract_status,omitempty"`
}

// Timing holds the date of service under assessment and related visits.
type Timing struct {
	DOSDate       string      `json:"dos_date,omitempty"`
	EventTense    Tense       `json:"event_tense,omitempty"`
	RelatedVisits []VisitInfo `json:"related_visits,omitempty"`
}

// EligibilityTruth is the current best determination of coverage.
type EligibilityTruth struct {
	Status              EligibilityStatus `json:"status"`
	CoverageWindowStart string            `json:"coverage_window_start,omitempty"`
	CoverageWindowEnd   string            `json:"coverage_window_end,omitempty"`
	EvidenceStrength    EvidenceStrength  `json:"evidence_strength,omitempty"`
}

// EligibilityCheck records whether and how coverage was verified.
type EligibilityCheck struct {
	Checked   bool            `json:"checked"`
	CheckDate string          `json:"check_date,omitempty"`
	Source    CheckSource     `json:"source,omitempty"`
	ResultRaw *CoverageResult `json:"result_raw,omitempty"`
}

// VisitInfo is rebuilt from the visits tool each turn; the scoring fields are
// attached after the per-visit scoring pass.
type VisitInfo struct {
	VisitID                string            `json:"visit_id"`
	VisitDate              string            `json:"visit_date"`
	VisitType              string            `json:"visit_type,omitempty"`
	Status                 VisitStatus       `json:"status,omitempty"`
	Provider               string            `json:"provider,omitempty"`
	Location               string            `json:"location,omitempty"`
	EligibilityStatus      EligibilityStatus `json:"eligibility_status,omitempty"`
	EligibilityProbability *float64          `json:"eligibility_probability,omitempty"`
	EventTense             Tense             `json:"event_tense,omitempty"`
	ScoreState             *ScoreState       `json:"score_state,omitempty"`
}

// CaseState is the per-case aggregate. It is mutated only through the Apply*
// functions and persisted as a snapshot at end of turn.
type CaseState struct {
	Patient          Patient          `json:"patient"`
	HealthPlan       HealthPlan       `json:"health_plan"`
	Timing           Timing           `json:"timing"`
	EligibilityTruth EligibilityTruth `json:"eligibility_truth"`
	EligibilityCheck EligibilityCheck `json:"eligibility_check"`
}

// New returns a case state with every enum at its UNKNOWN zero point.
func New() CaseState {
	return CaseState{
		Patient:          Patient{Sex: SexUnknown},
		HealthPlan:       HealthPlan{ProductType: ProductUnknown, ContractStatus: ContractStatusUnknown},
		Timing:           Timing{EventTense: TenseUnknown},
		EligibilityTruth: EligibilityTruth{Status: StatusNotEstablished},
		EligibilityCheck: EligibilityCheck{Source: CheckNone},
	}
}

// Clone returns a deep copy safe to mutate independently, used for per-visit
// scoring where each task sees its own case.
func (cs CaseState) Clone() CaseState {
	out := cs
	if cs.Timing.RelatedVisits != nil {
		out.Timing.RelatedVisits = make([]VisitInfo, len(cs.Timing.RelatedVisits))
		for i, v := range cs.Timing.RelatedVisits {
			out.Timing.RelatedVisits[i] = v.clone()
		}
	}
	if cs.EligibilityCheck.ResultRaw != nil {
		raw := cs.EligibilityCheck.ResultRaw.clone()
		out.EligibilityCheck.ResultRaw = &raw
	}
	return out
}

func (v VisitInfo) clone() VisitInfo {
	out := v
	if v.EligibilityProbability != nil {
		p := *v.EligibilityProbability
		out.EligibilityProbability = &p
	}
	if v.ScoreState != nil {
		ss := v.ScoreState.Clone()
		out.ScoreState = &ss
	}
	return out
}

// CompletionStatus reports whether the case carries the fields a confident
// assessment needs.
type CompletionStatus struct {
	Complete      bool     `json:"complete"`
	MissingFields []string `json:"missing_fields,omitempty"`
}

// Completion derives the completion status from the required field set.
func (cs CaseState) Completion() CompletionStatus {
	var missing []string
	if cs.Patient.MemberID == "" {
		missing = append(missing, "patient.member_id")
	}
	if cs.Patient.FirstName == "" {
		missing = append(missing, "patient.first_name")
	}
	if cs.Patient.LastName == "" {
		missing = append(missing, "patient.last_name")
	}
	if cs.Patient.DateOfBirth == "" {
		missing = append(missing, "patient.date_of_birth")
	}
	if cs.HealthPlan.PayerName == "" {
		missing = append(missing, "health_plan.payer_name")
	}
	if cs.Timing.DOSDate == "" {
		missing = append(missing, "timing.dos_date")
	}
	return CompletionStatus{Complete: len(missing) == 0, MissingFields: missing}
}
