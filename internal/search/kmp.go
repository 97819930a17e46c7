package search

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/lineserve/lineserve/internal/search/corpus"
)

// kmpEngine applies Knuth-Morris-Pratt matching to whole-line equality.
// The failure function is computed once per query; only lines whose length
// equals the query's are scanned.
type kmpEngine struct {
	base
	snap atomic.Pointer[[]string]
}

func newKMP(opts Options) (Engine, error) {
	e := &kmpEngine{}
	e.init("kmp", opts)
	if !opts.RereadOnQuery {
		if err := e.reload(); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *kmpEngine) reload() error {
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

func (e *kmpEngine) Search(ctx context.Context, query string) (bool, error) {
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
	lps := buildFailureFunction(pattern)

	for _, line := range *e.snap.Load() {
		if len(line) != len(pattern) {
			continue
		}
		if e.kmpMatch(line, pattern, lps) {
			return true, nil
		}
	}
	return false, nil
}

// kmpMatch runs the left-to-right automaton scan with the standard
// restart-on-mismatch rule.
func (e *kmpEngine) kmpMatch(text, pattern string, lps []int) bool {
	m := len(pattern)
	n := len(text)

	i, j := 0, 0
	for i < n {
		e.comparisons.Add(1)
		if text[i] == pattern[j] {
			i++
			j++
			if j == m {
				return true
			}
			continue
		}
		if j > 0 {
			j = lps[j-1]
		} else {
			i++
		}
	}
	return false
}

// buildFailureFunction computes, for every prefix of the pattern, the
// length of its longest proper prefix that is also a suffix.
func buildFailureFunction(pattern string) []int {
	m := len(pattern)
	lps := make([]int, m)

	length := 0
	i := 1
	for i < m {
		switch {
		case pattern[i] == pattern[length]:
			length++
			lps[i] = length
			i++
		case length > 0:
			length = lps[length-1]
		default:
			lps[i] = 0
			i++
		}
	}
	return lps
}
