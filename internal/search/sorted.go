package search

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/lineserve/lineserve/internal/search/corpus"
)

// sortedEngine materializes the corpus sorted lexicographically and answers
// queries with classic binary search, O(log n) comparisons.
type sortedEngine struct {
	base
	snap atomic.Pointer[[]string]
}

func newSorted(opts Options) (Engine, error) {
	e := &sortedEngine{}
	e.init("sorted", opts)
	if !opts.RereadOnQuery {
		if err := e.reload(); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *sortedEngine) reload() error {
	start := time.Now()
	lines, err := corpus.Load(e.path, e.foldCase)
	if err != nil {
		return err
	}
	sort.Strings(lines)
	e.snap.Store(&lines)
	e.linesProcessed.Store(int64(len(lines)))
	e.observeBuild(start)
	return nil
}

func (e *sortedEngine) Search(ctx context.Context, query string) (bool, error) {
	start := time.Now()
	defer e.observeSearch(start)

	if e.reread.Load() || e.snap.Load() == nil {
		if err := e.reload(); err != nil {
			return false, err
		}
	}
	query = e.fold(query)
	lines := *e.snap.Load()

	left, right := 0, len(lines)-1
	for left <= right {
		mid := (left + right) / 2
		e.comparisons.Add(1)
		switch {
		case lines[mid] == query:
			return true, nil
		case lines[mid] < query:
			left = mid + 1
		default:
			right = mid - 1
		}
	}
	return false, nil
}
