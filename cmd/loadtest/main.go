// loadtest drives the search server with concurrent persistent connections
// and reports throughput and latency percentiles.
package main

import (
	"bufio"
	"crypto/tls"
	"flag"
	"fmt"
	"math/rand"
	"net"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

type stats struct {
	mu        sync.Mutex
	latencies []time.Duration
	found     int
	notFound  int
	errors    int
	busy      int
}

func (s *stats) record(latency time.Duration, response string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latencies = append(s.latencies, latency)
	switch {
	case strings.HasPrefix(response, "STRING EXISTS"):
		s.found++
	case strings.HasPrefix(response, "STRING NOT FOUND"):
		s.notFound++
	case strings.Contains(response, "too busy"):
		s.busy++
	default:
		s.errors++
	}
}

func (s *stats) percentile(p float64) time.Duration {
	if len(s.latencies) == 0 {
		return 0
	}
	idx := int(float64(len(s.latencies)-1) * p)
	return s.latencies[idx]
}

func main() {
	addr := flag.String("addr", "localhost:8443", "server address")
	useTLS := flag.Bool("tls", false, "connect over TLS (skips verification)")
	connections := flag.Int("connections", 10, "number of concurrent connections")
	requests := flag.Int("requests", 1000, "requests per connection")
	queriesFile := flag.String("queries", "", "file with one query per line (defaults to synthetic queries)")
	flag.Parse()

	queries, err := loadQueries(*queriesFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading queries: %v\n", err)
		os.Exit(1)
	}

	s := &stats{}
	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < *connections; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			runConnection(*addr, *useTLS, *requests, queries, seed, s)
		}(int64(i))
	}
	wg.Wait()
	elapsed := time.Since(start)

	s.mu.Lock()
	sort.Slice(s.latencies, func(i, j int) bool { return s.latencies[i] < s.latencies[j] })
	total := len(s.latencies)
	s.mu.Unlock()

	fmt.Printf("requests:    %d in %s (%.0f req/s)\n", total, elapsed.Round(time.Millisecond), float64(total)/elapsed.Seconds())
	fmt.Printf("found:       %d\n", s.found)
	fmt.Printf("not found:   %d\n", s.notFound)
	fmt.Printf("busy:        %d\n", s.busy)
	fmt.Printf("errors:      %d\n", s.errors)
	fmt.Printf("latency p50: %s\n", s.percentile(0.50))
	fmt.Printf("latency p95: %s\n", s.percentile(0.95))
	fmt.Printf("latency p99: %s\n", s.percentile(0.99))
}

func runConnection(addr string, useTLS bool, requests int, queries []string, seed int64, s *stats) {
	conn, err := dial(addr, useTLS)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect failed: %v\n", err)
		return
	}
	defer conn.Close()

	rng := rand.New(rand.NewSource(seed))
	reader := bufio.NewReader(conn)
	for i := 0; i < requests; i++ {
		query := queries[rng.Intn(len(queries))]
		conn.SetDeadline(time.Now().Add(10 * time.Second))

		start := time.Now()
		if _, err := fmt.Fprintf(conn, "%s\n", query); err != nil {
			return
		}
		response, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		s.record(time.Since(start), response)
	}
}

func dial(addr string, useTLS bool) (net.Conn, error) {
	if !useTLS {
		return net.DialTimeout("tcp", addr, 5*time.Second)
	}
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	return tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: true,
	})
}

func loadQueries(path string) ([]string, error) {
	if path == "" {
		queries := make([]string, 100)
		for i := range queries {
			queries[i] = fmt.Sprintf("synthetic query line %d", i)
		}
		return queries, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var queries []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			queries = append(queries, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("no queries in %s", path)
	}
	return queries, nil
}
