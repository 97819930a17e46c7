package search

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/lineserve/lineserve/internal/search/corpus"
)

// hashEngine buckets corpus lines by their xxhash digest. A query hashes
// once and confirms digest hits with a direct comparison against the
// bucket, so digest collisions can never produce a false positive.
type hashEngine struct {
	base
	snap atomic.Pointer[map[uint64][]string]
}

func newHash(opts Options) (Engine, error) {
	e := &hashEngine{}
	e.init("hash", opts)
	if !opts.RereadOnQuery {
		if err := e.reload(); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *hashEngine) reload() error {
	start := time.Now()
	lines, err := corpus.Load(e.path, e.foldCase)
	if err != nil {
		return err
	}
	buckets := make(map[uint64][]string, len(lines))
	for _, line := range lines {
		digest := xxhash.Sum64String(line)
		bucket := buckets[digest]
		duplicate := false
		for _, existing := range bucket {
			if existing == line {
				duplicate = true
				break
			}
		}
		if !duplicate {
			buckets[digest] = append(bucket, line)
		}
	}
	e.snap.Store(&buckets)
	e.linesProcessed.Store(int64(len(lines)))
	e.observeBuild(start)
	return nil
}

func (e *hashEngine) Search(ctx context.Context, query string) (bool, error) {
	start := time.Now()
	defer e.observeSearch(start)

	if e.reread.Load() || e.snap.Load() == nil {
		if err := e.reload(); err != nil {
			return false, err
		}
	}
	query = e.fold(query)
	bucket := (*e.snap.Load())[xxhash.Sum64String(query)]
	for _, line := range bucket {
		e.comparisons.Add(1)
		if line == query {
			return true, nil
		}
		// A distinct line sharing the query's digest.
		e.hashCollisions.Add(1)
	}
	return false, nil
}
