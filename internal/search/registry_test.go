package search

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestRegistryConstructsOnce(t *testing.T) {
	path := writeCorpus(t, sampleCorpus)
	registry := NewRegistry()
	opts := Options{CorpusPath: path, CaseSensitive: true}

	first, err := registry.Resolve("inmemory", opts)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	second, err := registry.Resolve("inmemory", opts)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if first != second {
		t.Error("repeated Resolve returned a different engine instance")
	}
	if registry.Len() != 1 {
		t.Errorf("registry holds %d engines, want 1", registry.Len())
	}
}

func TestRegistryConcurrentResolve(t *testing.T) {
	path := writeCorpus(t, sampleCorpus)
	registry := NewRegistry()
	opts := Options{CorpusPath: path, CaseSensitive: true}

	const goroutines = 64
	engines := make([]Engine, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			engine, err := registry.Resolve("hash", opts)
			if err != nil {
				t.Errorf("Resolve: %v", err)
				return
			}
			engines[idx] = engine
		}(i)
	}
	wg.Wait()

	for i := 1; i < goroutines; i++ {
		if engines[i] != engines[0] {
			t.Fatal("concurrent Resolve produced more than one engine instance")
		}
	}
	if registry.Len() != 1 {
		t.Errorf("registry holds %d engines, want 1", registry.Len())
	}
}

func TestRegistryKeysByAlgorithmAndCorpus(t *testing.T) {
	pathA := writeCorpus(t, "alpha\n")
	pathB := writeCorpus(t, "bravo\n")
	registry := NewRegistry()

	if _, err := registry.Resolve("inmemory", Options{CorpusPath: pathA, CaseSensitive: true}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, err := registry.Resolve("inmemory", Options{CorpusPath: pathB, CaseSensitive: true}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, err := registry.Resolve("sorted", Options{CorpusPath: pathA, CaseSensitive: true}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if registry.Len() != 3 {
		t.Errorf("registry holds %d engines, want 3", registry.Len())
	}
}

func TestRegistryNormalizesAlgorithmCase(t *testing.T) {
	path := writeCorpus(t, sampleCorpus)
	registry := NewRegistry()
	opts := Options{CorpusPath: path, CaseSensitive: true}

	first, err := registry.Resolve("InMemory", opts)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	second, err := registry.Resolve("inmemory", opts)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if first != second {
		t.Error("mixed-case algorithm names built separate engine instances")
	}
	if registry.Len() != 1 {
		t.Errorf("registry holds %d engines, want 1", registry.Len())
	}
	if _, ok := registry.StatsByKey()["inmemory|"+path]; !ok {
		t.Errorf("StatsByKey missing lowercase key, have %v", registry.StatsByKey())
	}
}

func TestRegistryReportsBuildTime(t *testing.T) {
	path := writeCorpus(t, sampleCorpus)
	registry := NewRegistry()
	opts := Options{CorpusPath: path, CaseSensitive: true}

	var (
		calls      int
		algorithms []string
	)
	registry.SetBuildObserver(func(algorithm string, buildTime time.Duration) {
		calls++
		algorithms = append(algorithms, algorithm)
		if buildTime < 0 {
			t.Errorf("buildTime = %v, want non-negative", buildTime)
		}
	})

	if _, err := registry.Resolve("inmemory", opts); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, err := registry.Resolve("inmemory", opts); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if calls != 1 {
		t.Errorf("observer called %d times, want once per build", calls)
	}
	if len(algorithms) != 1 || algorithms[0] != "inmemory" {
		t.Errorf("observer saw algorithms %v, want [inmemory]", algorithms)
	}

	if _, err := registry.Resolve("sorted", opts); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if calls != 2 {
		t.Errorf("observer called %d times after second build, want 2", calls)
	}
}

func TestRegistryReappliesRereadFlag(t *testing.T) {
	path := writeCorpus(t, sampleCorpus)
	registry := NewRegistry()

	engine, err := registry.Resolve("inmemory", Options{CorpusPath: path, CaseSensitive: true})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if engine.RereadOnQuery() {
		t.Fatal("reread should start disabled")
	}

	engine, err = registry.Resolve("inmemory", Options{
		CorpusPath:    path,
		CaseSensitive: true,
		RereadOnQuery: true,
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !engine.RereadOnQuery() {
		t.Error("Resolve did not re-apply the reread flag to the cached engine")
	}
}

func TestRegistryUnknownAlgorithm(t *testing.T) {
	registry := NewRegistry()
	if _, err := registry.Resolve("quantum", Options{CorpusPath: "/tmp/x"}); err == nil {
		t.Fatal("expected error for unknown algorithm")
	}
	if registry.Len() != 0 {
		t.Error("failed construction must not be cached")
	}
}

func TestRegistryStatsByKey(t *testing.T) {
	path := writeCorpus(t, sampleCorpus)
	registry := NewRegistry()
	opts := Options{CorpusPath: path, CaseSensitive: true}

	engine, err := registry.Resolve("linear", opts)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, err := engine.Search(context.Background(), "alpha"); err != nil {
		t.Fatalf("Search: %v", err)
	}

	stats := registry.StatsByKey()
	key := "linear|" + path
	got, ok := stats[key]
	if !ok {
		t.Fatalf("StatsByKey missing %q, have %v", key, stats)
	}
	if got.LinesProcessed != 4 {
		t.Errorf("LinesProcessed = %d, want 4", got.LinesProcessed)
	}
}

func TestRegistryClear(t *testing.T) {
	path := writeCorpus(t, sampleCorpus)
	registry := NewRegistry()
	opts := Options{CorpusPath: path, CaseSensitive: true}

	first, err := registry.Resolve("inmemory", opts)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	registry.Clear()
	if registry.Len() != 0 {
		t.Errorf("registry holds %d engines after Clear", registry.Len())
	}
	second, err := registry.Resolve("inmemory", opts)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if first == second {
		t.Error("Clear should force a rebuild on the next Resolve")
	}
}
