package search

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/lineserve/lineserve/internal/search/corpus"
)

// inMemoryEngine keeps every distinct corpus line in a set keyed by exact
// content. Queries are an O(1) average-case membership test; duplicate
// lines collapse to one entry.
type inMemoryEngine struct {
	base
	snap atomic.Pointer[map[string]struct{}]
}

func newInMemory(opts Options) (Engine, error) {
	e := &inMemoryEngine{}
	e.init("inmemory", opts)
	if !opts.RereadOnQuery {
		if err := e.reload(); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *inMemoryEngine) reload() error {
	start := time.Now()
	lines, err := corpus.Load(e.path, e.foldCase)
	if err != nil {
		return err
	}
	set := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		set[line] = struct{}{}
	}
	e.snap.Store(&set)
	e.linesProcessed.Store(int64(len(lines)))
	e.observeBuild(start)
	return nil
}

func (e *inMemoryEngine) Search(ctx context.Context, query string) (bool, error) {
	start := time.Now()
	defer e.observeSearch(start)

	if e.reread.Load() || e.snap.Load() == nil {
		if err := e.reload(); err != nil {
			return false, err
		}
	}
	e.comparisons.Add(1)
	_, ok := (*e.snap.Load())[e.fold(query)]
	return ok, nil
}
