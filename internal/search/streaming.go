package search

import (
	"bytes"
	"context"
	"sync/atomic"
	"time"

	"github.com/lineserve/lineserve/internal/search/corpus"
)

// streamingEngine scans the corpus in fixed-size buffered chunks without
// building a line index. With reread disabled the raw file bytes are cached
// once and rescanned per query; with reread enabled every query streams
// straight from disk.
type streamingEngine struct {
	base
	raw atomic.Pointer[[]byte]
}

func newStreaming(opts Options) (Engine, error) {
	e := &streamingEngine{}
	e.init("streaming", opts)
	if !opts.RereadOnQuery {
		if err := e.reload(); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *streamingEngine) reload() error {
	start := time.Now()
	data, err := corpus.LoadBytes(e.path)
	if err != nil {
		return err
	}
	e.raw.Store(&data)
	e.observeBuild(start)
	return nil
}

func (e *streamingEngine) Search(ctx context.Context, query string) (bool, error) {
	start := time.Now()
	defer e.observeSearch(start)

	query = e.fold(query)
	found := false
	var processed int64
	match := func(line string) bool {
		processed++
		e.comparisons.Add(1)
		if line == query {
			found = true
			return false
		}
		return true
	}

	var err error
	if e.reread.Load() {
		err = corpus.ScanFile(e.path, e.foldCase, match)
	} else {
		if e.raw.Load() == nil {
			if reloadErr := e.reload(); reloadErr != nil {
				return false, reloadErr
			}
		}
		err = corpus.Scan(bytes.NewReader(*e.raw.Load()), e.foldCase, match)
	}
	if err != nil {
		return false, err
	}
	e.linesProcessed.Store(processed)
	return found, nil
}
