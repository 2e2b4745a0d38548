// Package tools fronts the external patient data sources. Each source is a
// narrow interface; the façade picks the concrete implementations, applies
// call timeouts, and caches coverage transactions, which are deterministic
// per member.
package tools

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ananthlk/Mobius-OS-sub002/internal/casestate"
)

// Default visit window the orchestrator asks for.
const (
	VisitLookbackDays  = 180
	VisitLookaheadDays = 180
)

// DemographicsTool resolves patient identity. Unknown patients yield an
// empty payload, not an error.
type DemographicsTool interface {
	Demographics(ctx context.Context, patientID string) (casestate.DemographicsPayload, error)
}

// InsuranceTool resolves the patient's insurance relationship.
type InsuranceTool interface {
	Insurance(ctx context.Context, patientID string) (casestate.InsurancePayload, error)
}

// VisitsTool lists visits inside a day window around today.
type VisitsTool interface {
	Visits(ctx context.Context, patientID string, lookbackDays, lookaheadDays int) ([]casestate.VisitInfo, error)
}

// CoverageTool runs the coverage transaction against the payer. The result
// is deterministic for the same member across calls.
type CoverageTool interface {
	CheckCoverage(ctx context.Context, memberID, payerName string) (casestate.CoverageResult, error)
}

// Config selects the concrete sources behind the façade.
type Config struct {
	Demographics DemographicsTool
	Insurance    InsuranceTool
	Visits       VisitsTool
	Coverage     CoverageTool

	Timeout     time.Duration
	CoverageTTL time.Duration
}

// Facade is the single handle the orchestrator talks to.
type Facade struct {
	cfg Config

	cache      map[string]*cacheEntry
	cacheMutex sync.Mutex
}

type cacheEntry struct {
	value       casestate.CoverageResult
	expiration  time.Time
	accessCount int
	originalTTL time.Duration
}

func NewFacade(cfg Config) *Facade {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CoverageTTL == 0 {
		cfg.CoverageTTL = 5 * time.Minute
	}
	return &Facade{
		cfg:   cfg,
		cache: make(map[string]*cacheEntry),
	}
}

func (f *Facade) Demographics(ctx context.Context, patientID string) (casestate.DemographicsPayload, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()
	return f.cfg.Demographics.Demographics(ctx, patientID)
}

func (f *Facade) Insurance(ctx context.Context, patientID string) (casestate.InsurancePayload, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()
	return f.cfg.Insurance.Insurance(ctx, patientID)
}

func (f *Facade) Visits(ctx context.Context, patientID string) ([]casestate.VisitInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()
	return f.cfg.Visits.Visits(ctx, patientID, VisitLookbackDays, VisitLookaheadDays)
}

// CheckCoverage runs the coverage transaction, serving repeats from the TTL
// cache. Cache entries slide forward on access so an actively worked case
// keeps its result warm.
func (f *Facade) CheckCoverage(ctx context.Context, memberID, payerName string) (casestate.CoverageResult, error) {
	key := memberID + "|" + payerName
	if result, ok := f.getFromCache(key); ok {
		return result, nil
	}

	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()
	result, err := f.cfg.Coverage.CheckCoverage(ctx, memberID, payerName)
	if err != nil {
		return casestate.CoverageResult{}, err
	}
	f.addToCache(key, result)
	return result, nil
}

func (f *Facade) getFromCache(key string) (casestate.CoverageResult, bool) {
	f.cacheMutex.Lock()
	defer f.cacheMutex.Unlock()

	entry, ok := f.cache[key]
	if !ok {
		log.Debug().Str("key", key).Msg("Coverage cache miss")
		return casestate.CoverageResult{}, false
	}
	if time.Now().After(entry.expiration) {
		delete(f.cache, key)
		return casestate.CoverageResult{}, false
	}
	log.Debug().Str("key", key).Msg("Coverage cache hit")

	// Sliding window extension, capped so stale members eventually refresh.
	if entry.accessCount < 6 {
		entry.expiration = time.Now().Add(entry.originalTTL)
		entry.accessCount++
	}
	return entry.value, true
}

func (f *Facade) addToCache(key string, value casestate.CoverageResult) {
	f.cacheMutex.Lock()
	defer f.cacheMutex.Unlock()

	f.cache[key] = &cacheEntry{
		value:       value,
		expiration:  time.Now().Add(f.cfg.CoverageTTL),
		originalTTL: f.cfg.CoverageTTL,
		accessCount: 1,
	}
	log.Debug().Str("key", key).Dur("ttl", f.cfg.CoverageTTL).Msg("Cached coverage result")
}
