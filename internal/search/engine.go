// Package search implements the matching engines behind the line-existence
// protocol. Every variant answers whole-line equality queries over one
// corpus file through the same Engine interface; they differ only in index
// shape and per-query cost.
package search

import (
	"context"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lineserve/lineserve/pkg/config"
	"github.com/lineserve/lineserve/pkg/errors"
)

// Engine is the contract every matching variant implements. Search reports
// whether the query exactly equals some corpus line. Implementations are
// safe for concurrent use: the index lives behind an atomic snapshot, so a
// reread-triggered rebuild never exposes a partially built index.
type Engine interface {
	Search(ctx context.Context, query string) (bool, error)
	SetRereadOnQuery(enabled bool)
	RereadOnQuery() bool
	Stats() Stats
	Algorithm() string
}

// Stats is a point-in-time snapshot of an engine's counters. Counters
// accumulate across queries; durations record the most recent operation.
type Stats struct {
	LinesProcessed int64         `json:"lines_processed"`
	Comparisons    int64         `json:"comparisons"`
	HashCollisions int64         `json:"hash_collisions"`
	LastBuild      time.Duration `json:"last_build_ns"`
	LastSearch     time.Duration `json:"last_search_ns"`
}

// Options carries the construction-time parameters shared by all variants
// plus the tuning knobs only some of them read.
type Options struct {
	CorpusPath     string
	RereadOnQuery  bool
	CaseSensitive  bool
	BloomCapacity  uint
	BloomErrorRate float64
	RabinKarpBase  uint64
	RabinKarpPrime uint64
}

// OptionsFromConfig maps the search config section onto engine Options.
func OptionsFromConfig(cfg config.SearchConfig) Options {
	return Options{
		CorpusPath:     cfg.CorpusPath,
		RereadOnQuery:  cfg.RereadOnQuery,
		CaseSensitive:  cfg.CaseSensitive,
		BloomCapacity:  cfg.BloomCapacity,
		BloomErrorRate: cfg.BloomErrorRate,
		RabinKarpBase:  cfg.RabinKarpBase,
		RabinKarpPrime: cfg.RabinKarpPrime,
	}
}

type constructor func(opts Options) (Engine, error)

var constructors = map[string]constructor{
	"linear":     newLinear,
	"streaming":  newStreaming,
	"inmemory":   newInMemory,
	"hash":       newHash,
	"sorted":     newSorted,
	"bloom":      newBloom,
	"boyermoore": newBoyerMoore,
	"kmp":        newKMP,
	"rabinkarp":  newRabinKarp,
	"grep":       newGrep,
}

// New constructs the engine registered under the given algorithm
// identifier. Unknown identifiers are an error, not a silent fallback.
// When reread-on-query is disabled the corpus is loaded and indexed here;
// construction cost is attributable to the caller.
func New(algorithm string, opts Options) (Engine, error) {
	ctor, ok := constructors[strings.ToLower(algorithm)]
	if !ok {
		return nil, errors.Newf(errors.ErrEngineUnknown, "%q (known: %s)",
			algorithm, strings.Join(Algorithms(), ", "))
	}
	return ctor(opts)
}

// Algorithms returns the sorted catalog of engine identifiers.
func Algorithms() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// base holds the state and counters common to every variant.
type base struct {
	algorithm string
	path      string
	foldCase  bool
	reread    atomic.Bool

	linesProcessed atomic.Int64
	comparisons    atomic.Int64
	hashCollisions atomic.Int64
	lastBuild      atomic.Int64
	lastSearch     atomic.Int64
}

func (b *base) init(algorithm string, opts Options) {
	b.algorithm = algorithm
	b.path = opts.CorpusPath
	b.foldCase = !opts.CaseSensitive
	b.reread.Store(opts.RereadOnQuery)
}

func (b *base) Algorithm() string { return b.algorithm }

func (b *base) SetRereadOnQuery(enabled bool) { b.reread.Store(enabled) }

func (b *base) RereadOnQuery() bool { return b.reread.Load() }

func (b *base) Stats() Stats {
	return Stats{
		LinesProcessed: b.linesProcessed.Load(),
		Comparisons:    b.comparisons.Load(),
		HashCollisions: b.hashCollisions.Load(),
		LastBuild:      time.Duration(b.lastBuild.Load()),
		LastSearch:     time.Duration(b.lastSearch.Load()),
	}
}

// fold applies the configured case folding to a query before matching.
func (b *base) fold(s string) string {
	if b.foldCase {
		return strings.ToLower(s)
	}
	return s
}

func (b *base) observeBuild(start time.Time) {
	b.lastBuild.Store(int64(time.Since(start)))
}

func (b *base) observeSearch(start time.Time) {
	b.lastSearch.Store(int64(time.Since(start)))
}
