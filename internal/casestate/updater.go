package casestate

import (
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// UpdateSource identifies who is asserting a field value.
type UpdateSource string

const (
	SourceTool        UpdateSource = "TOOL"
	SourcePayer       UpdateSource = "PAYER"
	SourceInterpreter UpdateSource = "INTERPRETER"
	SourceScoring     UpdateSource = "SCORING"
)

// rank orders sources for the same-turn overwrite guard. A source never
// overwrites a field stamped by a strictly higher rank within one turn, which
// keeps a late tool retry from clobbering payer evidence or a user assertion.
func (s UpdateSource) rank() int {
	switch s {
	case SourcePayer:
		return 3
	case SourceInterpreter:
		return 2
	case SourceTool:
		return 1
	}
	return 0
}

// ApplyContext tracks which source stamped each field during the current
// turn. Zero value is not usable; construct per turn with NewApplyContext.
type ApplyContext struct {
	stamps map[string]int
}

func NewApplyContext() *ApplyContext {
	return &ApplyContext{stamps: make(map[string]int)}
}

func (a *ApplyContext) canWrite(field string, src UpdateSource) bool {
	if a == nil {
		return true
	}
	return src.rank() >= a.stamps[field]
}

func (a *ApplyContext) stamp(field string, src UpdateSource) {
	if a == nil {
		return
	}
	a.stamps[field] = src.rank()
}

// trySet writes val to dst if it is non-empty and no higher-ranked source
// already claimed the field this turn.
func (a *ApplyContext) trySet(field string, src UpdateSource, dst *string, val string) {
	if val == "" {
		return
	}
	if !a.canWrite(field, src) {
		log.Debug().Str("field", field).Str("source", string(src)).Msg("Field held by higher-precedence source, skipping")
		return
	}
	*dst = val
	a.stamp(field, src)
}

// DemographicsPayload is the demographics tool's contribution to the case.
type DemographicsPayload struct {
	MemberID    string `json:"member_id,omitempty"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
	Sex         string `json:"sex,omitempty"`
}

// InsurancePayload is the insurance tool's contribution to the case.
type InsurancePayload struct {
	PayerName string `json:"payer_name,omitempty"`
	PayerID   string `json:"payer_id,omitempty"`
	PlanName  string `json:"plan_name,omitempty"`
	MemberID  string `json:"member_id,omitempty"`
}

// SuggestedUpdates is the interpreter's output, strictly partitioned into
// three buckets. Anything else the interpreter returns is discarded upstream.
type SuggestedUpdates struct {
	PatientUpdates    map[string]any `json:"patient_updates,omitempty"`
	HealthPlanUpdates map[string]any `json:"health_plan_updates,omitempty"`
	TimingUpdates     map[string]any `json:"timing_updates,omitempty"`
}

// Empty reports whether the suggestion carries nothing at all.
func (s SuggestedUpdates) Empty() bool {
	return len(s.PatientUpdates) == 0 && len(s.HealthPlanUpdates) == 0 && len(s.TimingUpdates) == 0
}

// ApplyDemographics merges a demographics tool result, source TOOL.
func ApplyDemographics(cs CaseState, p DemographicsPayload, today time.Time, actx *ApplyContext) CaseState {
	actx.trySet("patient.member_id", SourceTool, &cs.Patient.MemberID, p.MemberID)
	actx.trySet("patient.first_name", SourceTool, &cs.Patient.FirstName, p.FirstName)
	actx.trySet("patient.last_name", SourceTool, &cs.Patient.LastName, p.LastName)
	if _, ok := ParseDate(p.DateOfBirth); ok {
		actx.trySet("patient.date_of_birth", SourceTool, &cs.Patient.DateOfBirth, p.DateOfBirth)
	} else if p.DateOfBirth != "" {
		log.Warn().Str("date_of_birth", p.DateOfBirth).Msg("Dropping malformed date of birth from demographics tool")
	}
	if sex, ok := ParseSex(strings.ToUpper(p.Sex)); ok {
		if actx.canWrite("patient.sex", SourceTool) {
			cs.Patient.Sex = sex
			actx.stamp("patient.sex", SourceTool)
		}
	} else if p.Sex != "" {
		log.Debug().Str("sex", p.Sex).Msg("Dropping unrecognized sex value from demographics tool")
	}
	return withDerivedTense(cs, today)
}

// ApplyInsurance merges an insurance tool result, source TOOL.
func ApplyInsurance(cs CaseState, p InsurancePayload, today time.Time, actx *ApplyContext) CaseState {
	actx.trySet("health_plan.payer_name", SourceTool, &cs.HealthPlan.PayerName, p.PayerName)
	actx.trySet("health_plan.payer_id", SourceTool, &cs.HealthPlan.PayerID, p.PayerID)
	actx.trySet("health_plan.plan_name", SourceTool, &cs.HealthPlan.PlanName, p.PlanName)
	actx.trySet("patient.member_id", SourceTool, &cs.Patient.MemberID, p.MemberID)
	return withDerivedTense(cs, today)
}

// ApplyVisits replaces the related-visit list, source TOOL. Visits are not
// cached across turns; the tool is the source of truth for them.
func ApplyVisits(cs CaseState, visits []VisitInfo, today time.Time, actx *ApplyContext) CaseState {
	if !actx.canWrite("timing.related_visits", SourceTool) {
		return withDerivedTense(cs, today)
	}
	cleaned := make([]VisitInfo, 0, len(visits))
	for _, v := range visits {
		if v.VisitDate != "" {
			if _, ok := ParseDate(v.VisitDate); !ok {
				log.Warn().Str("visit_id", v.VisitID).Str("visit_date", v.VisitDate).Msg("Visit has malformed date, keeping entry without date")
				v.VisitDate = ""
			}
		}
		if v.Status != "" {
			if st, ok := ParseVisitStatus(strings.ToLower(string(v.Status))); ok {
				v.Status = st
			} else {
				log.Debug().Str("visit_id", v.VisitID).Str("status", string(v.Status)).Msg("Dropping unrecognized visit status")
				v.Status = ""
			}
		}
		v.EventTense = DeriveTense(v.VisitDate, today)
		cleaned = append(cleaned, v)
	}
	SortVisits(cleaned)
	cs.Timing.RelatedVisits = cleaned
	actx.stamp("timing.related_visits", SourceTool)
	return withDerivedTense(cs, today)
}

// ApplyDOSDate sets the date of service on behalf of the given source. Used
// by the pipeline for DOS inference (TOOL) and never with a malformed date.
func ApplyDOSDate(cs CaseState, dos string, src UpdateSource, today time.Time, actx *ApplyContext) CaseState {
	if _, ok := ParseDate(dos); !ok {
		log.Warn().Str("dos_date", dos).Msg("Dropping malformed DOS date")
		return cs
	}
	actx.trySet("timing.dos_date", src, &cs.Timing.DOSDate, dos)
	return withDerivedTense(cs, today)
}

// ApplyCoverage merges a coverage transaction result, source PAYER. This is
// the only path that writes eligibility_truth and eligibility_check.
func ApplyCoverage(cs CaseState, result *CoverageResult, today time.Time, actx *ApplyContext) CaseState {
	if result == nil {
		return cs
	}

	win := ActiveWindow(result, today)
	if win != nil {
		cs.EligibilityTruth = EligibilityTruth{
			Status:              StatusYes,
			CoverageWindowStart: win.EffectiveDate,
			CoverageWindowEnd:   win.EndDate,
			EvidenceStrength:    EvidenceHigh,
		}
	} else {
		cs.EligibilityTruth = EligibilityTruth{
			Status:           StatusNo,
			EvidenceStrength: EvidenceHigh,
		}
	}
	actx.stamp("eligibility_truth", SourcePayer)

	if cs.HealthPlan.ProductType == ProductUnknown || cs.HealthPlan.ProductType == "" {
		winPlan := ""
		if win != nil {
			winPlan = win.PlanName
		}
		inferred := InferProductType(winPlan, cs.HealthPlan.PlanName, cs.HealthPlan.PayerName)
		if actx.canWrite("health_plan.product_type", SourcePayer) {
			cs.HealthPlan.ProductType = inferred
			actx.stamp("health_plan.product_type", SourcePayer)
		}
	}
	if cs.HealthPlan.PlanName == "" && win != nil && win.PlanName != "" {
		actx.trySet("health_plan.plan_name", SourcePayer, &cs.HealthPlan.PlanName, win.PlanName)
	}

	raw := result.clone()
	cs.EligibilityCheck = EligibilityCheck{
		Checked:   true,
		CheckDate: DateString(today),
		Source:    CheckClearinghouse,
		ResultRaw: &raw,
	}
	actx.stamp("eligibility_check", SourcePayer)

	return withDerivedTense(cs, today)
}

// ApplySuggestions merges interpreter output, source INTERPRETER. Only the
// three suggestion buckets are reachable; eligibility_truth and
// eligibility_check are structurally untouchable from here. Unknown keys and
// invalid categorical values are dropped field-by-field.
func ApplySuggestions(cs CaseState, sug SuggestedUpdates, today time.Time, actx *ApplyContext) CaseState {
	for key, raw := range sug.PatientUpdates {
		val := stringValue(raw)
		switch key {
		case "member_id":
			actx.trySet("patient.member_id", SourceInterpreter, &cs.Patient.MemberID, val)
		case "first_name":
			actx.trySet("patient.first_name", SourceInterpreter, &cs.Patient.FirstName, val)
		case "last_name":
			actx.trySet("patient.last_name", SourceInterpreter, &cs.Patient.LastName, val)
		case "date_of_birth":
			if _, ok := ParseDate(val); ok {
				actx.trySet("patient.date_of_birth", SourceInterpreter, &cs.Patient.DateOfBirth, val)
			} else {
				log.Warn().Str("date_of_birth", val).Msg("Dropping malformed date of birth suggestion")
			}
		case "sex":
			if sex, ok := ParseSex(strings.ToUpper(val)); ok {
				if actx.canWrite("patient.sex", SourceInterpreter) {
					cs.Patient.Sex = sex
					actx.stamp("patient.sex", SourceInterpreter)
				}
			} else {
				log.Debug().Str("sex", val).Msg("Dropping invalid sex suggestion")
			}
		default:
			log.Debug().Str("key", key).Msg("Ignoring unknown patient suggestion key")
		}
	}

	for key, raw := range sug.HealthPlanUpdates {
		val := stringValue(raw)
		switch key {
		case "payer_name":
			actx.trySet("health_plan.payer_name", SourceInterpreter, &cs.HealthPlan.PayerName, val)
		case "payer_id":
			actx.trySet("health_plan.payer_id", SourceInterpreter, &cs.HealthPlan.PayerID, val)
		case "plan_name":
			actx.trySet("health_plan.plan_name", SourceInterpreter, &cs.HealthPlan.PlanName, val)
		case "product_type":
			if pt, ok := ParseProductType(strings.ToUpper(val)); ok {
				if actx.canWrite("health_plan.product_type", SourceInterpreter) {
					cs.HealthPlan.ProductType = pt
					actx.stamp("health_plan.product_type", SourceInterpreter)
				}
			} else {
				log.Debug().Str("product_type", val).Msg("Dropping invalid product type suggestion")
			}
		case "contract_status":
			if st, ok := ParseContractStatus(strings.ToUpper(val)); ok {
				if actx.canWrite("health_plan.contract_status", SourceInterpreter) {
					cs.HealthPlan.ContractStatus = st
					actx.stamp("health_plan.contract_status", SourceInterpreter)
				}
			} else {
				log.Debug().Str("contract_status", val).Msg("Dropping invalid contract status suggestion")
			}
		default:
			log.Debug().Str("key", key).Msg("Ignoring unknown health plan suggestion key")
		}
	}

	for key, raw := range sug.TimingUpdates {
		val := stringValue(raw)
		switch key {
		case "dos_date":
			if _, ok := ParseDate(val); ok {
				actx.trySet("timing.dos_date", SourceInterpreter, &cs.Timing.DOSDate, val)
			} else {
				log.Warn().Str("dos_date", val).Msg("Dropping malformed DOS date suggestion")
			}
		case "event_tense":
			// Stored only when no DOS exists; a set DOS always wins below.
			if tense, ok := ParseTense(strings.ToUpper(val)); ok {
				if actx.canWrite("timing.event_tense", SourceInterpreter) {
					cs.Timing.EventTense = tense
					actx.stamp("timing.event_tense", SourceInterpreter)
				}
			} else {
				log.Debug().Str("event_tense", val).Msg("Dropping invalid event tense suggestion")
			}
		default:
			log.Debug().Str("key", key).Msg("Ignoring unknown timing suggestion key")
		}
	}

	return withDerivedTense(cs, today)
}

// InferProductType classifies a product line from plan/payer names by
// case-insensitive substring, in fixed order. Anything unrecognized counts as
// COMMERCIAL.
func InferProductType(names ...string) ProductType {
	haystack := strings.ToLower(strings.Join(names, " "))
	switch {
	case strings.Contains(haystack, "medicaid"):
		return ProductMedicaid
	case strings.Contains(haystack, "medicare"):
		return ProductMedicare
	case strings.Contains(haystack, "dsnp"):
		return ProductDSNP
	}
	for _, kw := range []string{"commercial", "ppo", "hmo", "epo"} {
		if strings.Contains(haystack, kw) {
			return ProductCommercial
		}
	}
	return ProductCommercial
}

// withDerivedTense recomputes event_tense after any update. A parseable DOS
// always wins over a stated tense so the two can never disagree.
func withDerivedTense(cs CaseState, today time.Time) CaseState {
	if cs.Timing.DOSDate != "" {
		if t := DeriveTense(cs.Timing.DOSDate, today); t != TenseUnknown {
			cs.Timing.EventTense = t
		}
	} else if cs.Timing.EventTense == "" {
		cs.Timing.EventTense = TenseUnknown
	}
	return cs
}

// stringValue coerces an interpreter-supplied JSON value to a string.
// Numbers arrive as float64 from encoding/json; everything else is dropped.
func stringValue(raw any) string {
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	}
	return ""
}
