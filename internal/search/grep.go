package search

import (
	"context"
	"errors"
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/lineserve/lineserve/internal/search/corpus"
	"github.com/lineserve/lineserve/pkg/resilience"
)

const grepTimeout = 10 * time.Second

// grepEngine delegates matching to the external grep utility. With reread
// enabled every query runs `grep -Fxq` against the file, so results always
// reflect the current corpus; with reread disabled the corpus is loaded
// into a set once at construction and grep is not consulted again. The
// subprocess is a fallible boundary: invocations are timeout-bounded and a
// circuit breaker turns repeated failures (such as a missing binary) into
// fast errors instead of spawn storms.
type grepEngine struct {
	base
	breaker *resilience.CircuitBreaker
	snap    atomic.Pointer[map[string]struct{}]
}

func newGrep(opts Options) (Engine, error) {
	e := &grepEngine{
		breaker: resilience.NewCircuitBreaker("grep", resilience.CircuitBreakerConfig{}),
	}
	e.init("grep", opts)
	if !opts.RereadOnQuery {
		if err := e.reload(); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *grepEngine) reload() error {
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

func (e *grepEngine) Search(ctx context.Context, query string) (bool, error) {
	start := time.Now()
	defer e.observeSearch(start)

	if e.reread.Load() {
		return e.grepSearch(ctx, query)
	}
	if e.snap.Load() == nil {
		if err := e.reload(); err != nil {
			return false, err
		}
	}
	e.comparisons.Add(1)
	_, ok := (*e.snap.Load())[e.fold(query)]
	return ok, nil
}

// grepSearch invokes `grep -F -x -q` (fixed string, whole line, quiet).
// Case insensitivity is passed to the subprocess as -i rather than folding
// here. Exit code 1 means no match; anything else is a failure.
func (e *grepEngine) grepSearch(ctx context.Context, query string) (bool, error) {
	args := []string{"-F", "-x", "-q"}
	if e.foldCase {
		args = append(args, "-i")
	}
	args = append(args, "--", query, e.path)

	var found bool
	err := e.breaker.Execute(func() error {
		return resilience.WithTimeout(ctx, grepTimeout, "grep", func(ctx context.Context) error {
			cmd := exec.CommandContext(ctx, "grep", args...)
			runErr := cmd.Run()
			if runErr == nil {
				found = true
				return nil
			}
			var exitErr *exec.ExitError
			if errors.As(runErr, &exitErr) && exitErr.ExitCode() == 1 {
				found = false
				return nil
			}
			return runErr
		})
	})
	if err != nil {
		return false, err
	}
	return found, nil
}
