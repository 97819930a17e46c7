package search

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/lineserve/lineserve/internal/search/corpus"
)

// bloomEngine pairs a probabilistic filter with an exact confirmation set.
// A filter miss short-circuits to false (the filter has no false
// negatives); a filter hit is confirmed against the set before reporting
// true. Keeping the full set resident trades memory for zero false
// positives at query time.
type bloomEngine struct {
	base
	capacity  uint
	errorRate float64
	snap      atomic.Pointer[bloomIndex]
}

type bloomIndex struct {
	filter *bloom.BloomFilter
	exact  map[string]struct{}
}

func newBloom(opts Options) (Engine, error) {
	e := &bloomEngine{
		capacity:  opts.BloomCapacity,
		errorRate: opts.BloomErrorRate,
	}
	e.init("bloom", opts)
	if e.capacity == 0 {
		e.capacity = 1_000_000
	}
	if e.errorRate <= 0 || e.errorRate >= 1 {
		e.errorRate = 0.001
	}
	if !opts.RereadOnQuery {
		if err := e.reload(); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *bloomEngine) reload() error {
	start := time.Now()
	lines, err := corpus.Load(e.path, e.foldCase)
	if err != nil {
		return err
	}
	idx := &bloomIndex{
		filter: bloom.NewWithEstimates(e.capacity, e.errorRate),
		exact:  make(map[string]struct{}, len(lines)),
	}
	for _, line := range lines {
		idx.filter.AddString(line)
		idx.exact[line] = struct{}{}
	}
	e.snap.Store(idx)
	e.linesProcessed.Store(int64(len(lines)))
	e.observeBuild(start)
	return nil
}

func (e *bloomEngine) Search(ctx context.Context, query string) (bool, error) {
	start := time.Now()
	defer e.observeSearch(start)

	if e.reread.Load() || e.snap.Load() == nil {
		if err := e.reload(); err != nil {
			return false, err
		}
	}
	query = e.fold(query)
	idx := e.snap.Load()
	e.comparisons.Add(1)
	if !idx.filter.TestString(query) {
		return false, nil
	}
	_, ok := idx.exact[query]
	return ok, nil
}

// FilterTest exposes the raw filter verdict without exact confirmation.
// Tests use it to measure the false-positive rate against the configured
// bound.
func (e *bloomEngine) FilterTest(query string) bool {
	idx := e.snap.Load()
	if idx == nil {
		return false
	}
	return idx.filter.TestString(e.fold(query))
}
