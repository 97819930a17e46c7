package search

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/lineserve/lineserve/internal/search/corpus"
)

// linearEngine materializes the corpus as an ordered line slice and answers
// queries with a sequential equality scan. Worst case O(n) comparisons, no
// auxiliary structure.
type linearEngine struct {
	base
	snap atomic.Pointer[[]string]
}

func newLinear(opts Options) (Engine, error) {
	e := &linearEngine{}
	e.init("linear", opts)
	if !opts.RereadOnQuery {
		if err := e.reload(); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *linearEngine) reload() error {
	start := time.Now()
	lines, err := corpus.Load(e.path, e.foldCase)
	if err != nil {
		return err
	}
	e.snap.Store(&lines)
	e.linesProcessed.Store(int64(len(lines)))
	e.observeBuild(start)
	return nil
}

func (e *linearEngine) Search(ctx context.Context, query string) (bool, error) {
	start := time.Now()
	defer e.observeSearch(start)

	if e.reread.Load() || e.snap.Load() == nil {
		if err := e.reload(); err != nil {
			return false, err
		}
	}
	query = e.fold(query)
	for _, line := range *e.snap.Load() {
		e.comparisons.Add(1)
		if line == query {
			return true, nil
		}
	}
	return false, nil
}
