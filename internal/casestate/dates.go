package casestate

import (
	"math"
	"sort"
	"time"
)

// DateLayout is the wire format for every date in the system.
const DateLayout = "2006-01-02"

// ParseDate parses an ISO YYYY-MM-DD string. The boolean reports success;
// callers drop the field on failure rather than aborting.
func ParseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// DateString formats a time as ISO YYYY-MM-DD.
func DateString(t time.Time) string {
	return t.Format(DateLayout)
}

// dateOnly truncates a timestamp to calendar-day granularity in UTC.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DeriveTense places a DOS relative to today. dos == today counts as FUTURE:
// the service has not happened yet when the day starts.
func DeriveTense(dosDate string, today time.Time) Tense {
	dos, ok := ParseDate(dosDate)
	if !ok {
		return TenseUnknown
	}
	if !dos.Before(dateOnly(today)) {
		return TenseFuture
	}
	return TensePast
}

// GapDays returns |dos - today| in whole days, 0 when the DOS is absent or
// malformed.
func GapDays(dosDate string, today time.Time) float64 {
	dos, ok := ParseDate(dosDate)
	if !ok {
		return 0
	}
	return math.Abs(dateOnly(today).Sub(dos).Hours() / 24)
}

// InferDOSDate picks a date of service from the visit list:
//  1. the most-future scheduled visit on or after today,
//  2. else the most-recent completed visit before today,
//  3. else the most-recent visit of any status.
//
// Returns "" when no visit carries a parseable date.
func InferDOSDate(visits []VisitInfo, today time.Time) string {
	td := dateOnly(today)
	var bestScheduled, bestCompleted, bestAny time.Time
	var haveScheduled, haveCompleted, haveAny bool

	for _, v := range visits {
		d, ok := ParseDate(v.VisitDate)
		if !ok {
			continue
		}
		if !haveAny || d.After(bestAny) {
			bestAny, haveAny = d, true
		}
		if v.Status == VisitScheduled && !d.Before(td) {
			if !haveScheduled || d.After(bestScheduled) {
				bestScheduled, haveScheduled = d, true
			}
		}
		if v.Status == VisitCompleted && d.Before(td) {
			if !haveCompleted || d.After(bestCompleted) {
				bestCompleted, haveCompleted = d, true
			}
		}
	}

	switch {
	case haveScheduled:
		return DateString(bestScheduled)
	case haveCompleted:
		return DateString(bestCompleted)
	case haveAny:
		return DateString(bestAny)
	}
	return ""
}

// SortVisits orders visits by visit_date ascending. Unparseable dates sort
// first so they stay visible. Stable so equal dates keep tool order.
func SortVisits(visits []VisitInfo) {
	sort.SliceStable(visits, func(i, j int) bool {
		di, oki := ParseDate(visits[i].VisitDate)
		dj, okj := ParseDate(visits[j].VisitDate)
		if oki != okj {
			return !oki
		}
		return di.Before(dj)
	})
}
