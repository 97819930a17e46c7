package search

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/lineserve/lineserve/internal/search/corpus"
)

// rabinKarpEngine applies Rabin-Karp matching to whole-line equality using
// a polynomial rolling hash with configurable base and prime modulus. Hash
// collisions are confirmed with a direct comparison and tracked as a
// statistic, never treated as a match.
type rabinKarpEngine struct {
	base
	hashBase uint64
	prime    uint64
	snap     atomic.Pointer[[]string]
}

func newRabinKarp(opts Options) (Engine, error) {
	e := &rabinKarpEngine{
		hashBase: opts.RabinKarpBase,
		prime:    opts.RabinKarpPrime,
	}
	e.init("rabinkarp", opts)
	if e.hashBase == 0 {
		e.hashBase = 256
	}
	if e.prime == 0 {
		e.prime = 1_000_000_007
	}
	if !opts.RereadOnQuery {
		if err := e.reload(); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *rabinKarpEngine) reload() error {
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

func (e *rabinKarpEngine) Search(ctx context.Context, query string) (bool, error) {
	start := time.Now()
	defer e.observeSearch(start)

	if e.reread.Load() || e.snap.Load() == nil {
		if err := e.reload(); err != nil {
			return false, err
		}
	}
	pattern := e.fold(query)
	if len(pattern) == 0 {
		return false, nil
	}
	patternHash := e.hashOf(pattern)

	for _, line := range *e.snap.Load() {
		if len(line) != len(pattern) {
			continue
		}
		if e.hashOf(line) != patternHash {
			continue
		}
		if e.confirm(line, pattern) {
			return true, nil
		}
		e.hashCollisions.Add(1)
	}
	return false, nil
}

// hashOf computes the polynomial hash of s modulo the configured prime.
func (e *rabinKarpEngine) hashOf(s string) uint64 {
	var h uint64
	for i := 0; i < len(s); i++ {
		h = (h*e.hashBase + uint64(s[i])) % e.prime
	}
	return h
}

// confirm resolves a hash match with a character-for-character comparison.
func (e *rabinKarpEngine) confirm(text, pattern string) bool {
	for i := 0; i < len(pattern); i++ {
		e.comparisons.Add(1)
		if text[i] != pattern[i] {
			return false
		}
	}
	return true
}
