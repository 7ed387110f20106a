package heuristics

import (
	"context"
	"sync"
	"time"

	"github.com/tencentyun-labs/cognigate/internal/types"
)

// SessionQueryReader is the narrow read surface the Pattern Detector needs
// from the Analytics Recorder (C7) — the last N query records of a session,
// most recent first.
type SessionQueryReader interface {
	RecentQueries(ctx context.Context, userEmail, sessionID string, n int) ([]types.QueryRecord, error)
}

const (
	patternCacheTTL     = 60 * time.Second
	patternCacheMaxSize = 1000
	patternWindowN      = 20
)

type patternCacheEntry struct {
	result  types.PatternResult
	expires time.Time
	touched time.Time
}

// PatternDetector is the Pattern Detector of §4.6.3: a stateful cache in
// front of a pure classification of the session's recent query shape.
// Grounded on the teacher's small-struct-with-mutex caches (no external
// cache library reaches for 1000-entry in-process TTL maps in the pack; the
// justification mirrors internal/identity/cache.go's UserCache).
type PatternDetector struct {
	reader SessionQueryReader

	mu    sync.Mutex
	cache map[string]patternCacheEntry
}

func NewPatternDetector(reader SessionQueryReader) *PatternDetector {
	return &PatternDetector{reader: reader, cache: make(map[string]patternCacheEntry)}
}

func cacheKey(userEmail, sessionID string) string { return userEmail + "|" + sessionID }

// Detect returns the cached pattern if fresh, otherwise recomputes it from
// the last 20 queries of the session and caches the result.
func (d *PatternDetector) Detect(ctx context.Context, userEmail, sessionID string) (types.PatternResult, error) {
	key := cacheKey(userEmail, sessionID)

	d.mu.Lock()
	if e, ok := d.cache[key]; ok && time.Now().Before(e.expires) {
		d.mu.Unlock()
		return e.result, nil
	}
	d.mu.Unlock()

	records, err := d.reader.RecentQueries(ctx, userEmail, sessionID, patternWindowN)
	if err != nil {
		return types.PatternResult{}, err
	}
	result := classify(records)

	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now()
	if len(d.cache) >= patternCacheMaxSize {
		d.evictOldest()
	}
	d.cache[key] = patternCacheEntry{result: result, expires: now.Add(patternCacheTTL), touched: now}
	return result, nil
}

// evictOldest drops the 10% least-recently-touched entries under lock.
func (d *PatternDetector) evictOldest() {
	n := len(d.cache) / 10
	if n == 0 {
		n = 1
	}
	type kv struct {
		key     string
		touched time.Time
	}
	all := make([]kv, 0, len(d.cache))
	for k, e := range d.cache {
		all = append(all, kv{k, e.touched})
	}
	for i := 0; i < n && len(all) > 0; i++ {
		oldestIdx := 0
		for j := 1; j < len(all); j++ {
			if all[j].touched.Before(all[oldestIdx].touched) {
				oldestIdx = j
			}
		}
		delete(d.cache, all[oldestIdx].key)
		all = append(all[:oldestIdx], all[oldestIdx+1:]...)
	}
}

func classify(records []types.QueryRecord) types.PatternResult {
	n := len(records)
	if n == 0 {
		return types.PatternResult{Pattern: types.PatternSingleQuery, Confidence: 1.0, QueryCount: 0}
	}
	if n == 1 {
		return types.PatternResult{Pattern: types.PatternSingleQuery, Confidence: 1.0, QueryCount: 1}
	}

	categoryCounts := make(map[string]int, n)
	frustration := 0
	repeats := 0
	procedural := 0
	for _, r := range records {
		categoryCounts[r.Category]++
		frustration += r.FrustrationSignals
		if r.IsRepeat {
			repeats++
		}
		if r.Intent == types.IntentAction {
			procedural++
		}
	}

	if frustration >= 2 || repeats >= 3 {
		return types.PatternResult{
			Pattern: types.PatternTroubleshootEscalation, Confidence: 0.8, QueryCount: n,
			Details: map[string]interface{}{"frustration_signals": frustration, "repeats": repeats},
		}
	}

	diversity := float64(len(categoryCounts)) / float64(n)
	maxCount := 0
	for _, c := range categoryCounts {
		if c > maxCount {
			maxCount = c
		}
	}
	concentration := float64(maxCount) / float64(n)

	if diversity >= 0.6 {
		return types.PatternResult{Pattern: types.PatternExploratory, Confidence: diversity, QueryCount: n}
	}
	if concentration >= 0.7 {
		return types.PatternResult{Pattern: types.PatternFocused, Confidence: concentration, QueryCount: n}
	}
	if float64(procedural)/float64(n) >= 0.6 {
		return types.PatternResult{Pattern: types.PatternOnboarding, Confidence: float64(procedural) / float64(n), QueryCount: n}
	}
	return types.PatternResult{Pattern: types.PatternMixed, Confidence: 0.5, QueryCount: n}
}
