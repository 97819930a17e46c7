package search

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/lineserve/lineserve/internal/search/corpus"
)

// boyerMooreEngine applies Boyer-Moore matching to whole-line equality.
// The bad-character and good-suffix tables are computed once per query;
// each corpus line is only scanned when its length equals the query's, so
// any mismatch shift immediately exhausts the single alignment.
type boyerMooreEngine struct {
	base
	snap atomic.Pointer[[]string]
}

func newBoyerMoore(opts Options) (Engine, error) {
	e := &boyerMooreEngine{}
	e.init("boyermoore", opts)
	if !opts.RereadOnQuery {
		if err := e.reload(); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *boyerMooreEngine) reload() error {
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

func (e *boyerMooreEngine) Search(ctx context.Context, query string) (bool, error) {
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
	badChar := buildBadCharTable(pattern)
	goodSuffix := buildGoodSuffixTable(pattern)

	for _, line := range *e.snap.Load() {
		if len(line) != len(pattern) {
			continue
		}
		if e.bmMatch(line, pattern, &badChar, goodSuffix) {
			return true, nil
		}
	}
	return false, nil
}

// bmMatch runs the right-to-left Boyer-Moore scan of pattern over text,
// shifting by the larger of the two table entries on mismatch.
func (e *boyerMooreEngine) bmMatch(text, pattern string, badChar *[256]int, goodSuffix []int) bool {
	m := len(pattern)
	n := len(text)

	i := m - 1
	for i < n {
		j := m - 1
		for j >= 0 {
			e.comparisons.Add(1)
			if text[i] != pattern[j] {
				break
			}
			i--
			j--
		}
		if j < 0 {
			return true
		}
		shift := goodSuffix[m-1-j]
		if bc := badChar[text[i]]; bc > shift {
			shift = bc
		}
		i += shift
	}
	return false
}

// buildBadCharTable records, for every byte, how far the pattern can shift
// when that byte causes a mismatch. Bytes absent from the pattern shift by
// the full pattern length.
func buildBadCharTable(pattern string) [256]int {
	m := len(pattern)
	var table [256]int
	for i := range table {
		table[i] = m
	}
	for i := 0; i < m-1; i++ {
		table[pattern[i]] = m - 1 - i
	}
	return table
}

// buildGoodSuffixTable computes shift distances from the pattern's suffix
// structure: suffixes that reoccur inside the pattern, or that are also a
// prefix, permit smaller shifts.
func buildGoodSuffixTable(pattern string) []int {
	m := len(pattern)
	table := make([]int, m+1)

	lastPrefixPos := m
	for i := m - 1; i >= 0; i-- {
		if isPrefix(pattern, i+1) {
			lastPrefixPos = i + 1
		}
		table[m-1-i] = lastPrefixPos - i + m - 1
	}
	for i := 0; i < m-1; i++ {
		sl := suffixLength(pattern, i)
		table[sl] = m - 1 - i + sl
	}
	return table
}

// isPrefix reports whether pattern[p:] is also a prefix of pattern.
func isPrefix(pattern string, p int) bool {
	for i, j := p, 0; i < len(pattern); i, j = i+1, j+1 {
		if pattern[i] != pattern[j] {
			return false
		}
	}
	return true
}

// suffixLength returns the length of the longest common suffix of pattern
// and pattern[:p+1].
func suffixLength(pattern string, p int) int {
	length := 0
	i, j := p, len(pattern)-1
	for i >= 0 && pattern[i] == pattern[j] {
		length++
		i--
		j--
	}
	return length
}
