package casestate

import "time"

// EligibilityWindow is one coverage interval from a payer response.
type EligibilityWindow struct {
	EffectiveDate string `json:"effective_date"`
	EndDate       string `json:"end_date"`
	Status        string `json:"status"` // "active" or "inactive"
	PlanName      string `json:"plan_name,omitempty"`
	MemberID      string `json:"member_id,omitempty"`
	CoverageType  string `json:"coverage_type,omitempty"`
}

// CoverageResult is the raw payload of one coverage transaction, stored on the
// case so a repeat turn can reuse it without re-querying the payer.
type CoverageResult struct {
	MemberID           string              `json:"member_id"`
	EligibilityWindows []EligibilityWindow `json:"eligibility_windows"`
	QueriedAt          string              `json:"queried_at,omitempty"`
}

func (r CoverageResult) clone() CoverageResult {
	out := r
	if r.EligibilityWindows != nil {
		out.EligibilityWindows = append([]EligibilityWindow(nil), r.EligibilityWindows...)
	}
	return out
}

// ActiveWindow returns the first window with status "active" whose interval
// brackets today (effective_date <= today <= end_date), or nil. The first
// match wins; later windows are never consulted.
func ActiveWindow(result *CoverageResult, today time.Time) *EligibilityWindow {
	if result == nil {
		return nil
	}
	td := dateOnly(today)
	for i := range result.EligibilityWindows {
		w := &result.EligibilityWindows[i]
		if w.Status != "active" {
			continue
		}
		start, okS := ParseDate(w.EffectiveDate)
		end, okE := ParseDate(w.EndDate)
		if !okS || !okE {
			continue
		}
		if !td.Before(start) && !td.After(end) {
			return w
		}
	}
	return nil
}

// VisitEligibility classifies a visit date against the case's coverage window.
// YES inside the window, NO outside, NOT_ESTABLISHED whenever either bound or
// the visit date itself is missing or malformed.
func VisitEligibility(windowStart, windowEnd, visitDate string) EligibilityStatus {
	start, okS := ParseDate(windowStart)
	end, okE := ParseDate(windowEnd)
	vd, okV := ParseDate(visitDate)
	if !okS || !okE || !okV {
		return StatusNotEstablished
	}
	if !vd.Before(start) && !vd.After(end) {
		return StatusYes
	}
	return StatusNo
}
