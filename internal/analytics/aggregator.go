package analytics

import (
	"sync"
	"time"
)

// AggregatedStats are the running totals snapshotted to PostgreSQL.
type AggregatedStats struct {
	TotalQueries   int64            `json:"total_queries"`
	TotalFound     int64            `json:"total_found"`
	TotalNotFound  int64            `json:"total_not_found"`
	TotalErrors    int64            `json:"total_errors"`
	TotalCacheHits int64            `json:"total_cache_hits"`
	LatencySumMs   int64            `json:"latency_sum_ms"`
	ByAlgorithm    map[string]int64 `json:"by_algorithm"`
	Since          time.Time        `json:"since"`
}

// Aggregator folds query events into AggregatedStats in-process.
type Aggregator struct {
	mu    sync.Mutex
	stats AggregatedStats
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		stats: AggregatedStats{
			ByAlgorithm: make(map[string]int64),
			Since:       time.Now().UTC(),
		},
	}
}

// Record folds one event into the totals.
func (a *Aggregator) Record(event QueryEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats.TotalQueries++
	switch {
	case event.Type == EventError:
		a.stats.TotalErrors++
	case event.Found:
		a.stats.TotalFound++
	default:
		a.stats.TotalNotFound++
	}
	if event.CacheHit {
		a.stats.TotalCacheHits++
	}
	a.stats.LatencySumMs += event.LatencyMs
	a.stats.ByAlgorithm[event.Algorithm]++
}

// Snapshot returns a copy of the current totals.
func (a *Aggregator) Snapshot() AggregatedStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.stats
	out.ByAlgorithm = make(map[string]int64, len(a.stats.ByAlgorithm))
	for algorithm, count := range a.stats.ByAlgorithm {
		out.ByAlgorithm[algorithm] = count
	}
	return out
}
