package search

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// BuildObserver receives the algorithm name and wall-clock construction time
// of every engine the registry builds.
type BuildObserver func(algorithm string, buildTime time.Duration)

// Registry caches one engine instance per (algorithm, corpus path) pair so
// repeated connections reuse warm indices. Construction is serialized per
// key through singleflight: under concurrent first access exactly one
// caller builds the engine and the rest share the result.
type Registry struct {
	mu       sync.RWMutex
	engines  map[string]Engine
	group    singleflight.Group
	logger   *slog.Logger
	observer BuildObserver
}

// NewRegistry creates an empty engine registry. It is created at startup,
// handed to the dispatcher, and torn down with the process; there is no
// hidden package-level cache.
func NewRegistry() *Registry {
	return &Registry{
		engines: make(map[string]Engine),
		logger:  slog.Default().With("component", "engine-registry"),
	}
}

// SetBuildObserver registers a callback invoked once per engine build.
// Call it before the registry is shared across goroutines.
func (r *Registry) SetBuildObserver(fn BuildObserver) {
	r.observer = fn
}

// Resolve returns the cached engine for the algorithm and corpus in opts,
// constructing it on first use. The algorithm name is case-insensitive and
// normalized before keying, so "InMemory" and "inmemory" share one engine.
// The reread flag from opts is re-applied on every call; the update is
// idempotent and safe from any worker.
func (r *Registry) Resolve(algorithm string, opts Options) (Engine, error) {
	algorithm = strings.ToLower(algorithm)
	key := fmt.Sprintf("%s|%s", algorithm, opts.CorpusPath)

	r.mu.RLock()
	engine, ok := r.engines[key]
	r.mu.RUnlock()
	if ok {
		engine.SetRereadOnQuery(opts.RereadOnQuery)
		return engine, nil
	}

	val, err, _ := r.group.Do(key, func() (interface{}, error) {
		r.mu.RLock()
		existing, ok := r.engines[key]
		r.mu.RUnlock()
		if ok {
			return existing, nil
		}
		start := time.Now()
		built, err := New(algorithm, opts)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.engines[key] = built
		r.mu.Unlock()
		buildTime := time.Since(start)
		r.logger.Info("engine constructed",
			"algorithm", algorithm,
			"corpus", opts.CorpusPath,
			"build_time", buildTime,
		)
		if r.observer != nil {
			r.observer(algorithm, buildTime)
		}
		return built, nil
	})
	if err != nil {
		return nil, err
	}
	engine = val.(Engine)
	engine.SetRereadOnQuery(opts.RereadOnQuery)
	return engine, nil
}

// Len returns the number of cached engines.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.engines)
}

// StatsByKey returns a stats snapshot for every cached engine, keyed by
// "algorithm|corpus".
func (r *Registry) StatsByKey() map[string]Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Stats, len(r.engines))
	for key, engine := range r.engines {
		out[key] = engine.Stats()
	}
	return out
}

// Clear drops every cached engine; the next Resolve rebuilds from scratch.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines = make(map[string]Engine)
}
