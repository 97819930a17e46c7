package server

import (
	"bufio"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lineserve/lineserve/internal/analytics"
	"github.com/lineserve/lineserve/internal/search"
	"github.com/lineserve/lineserve/pkg/config"
	apperrors "github.com/lineserve/lineserve/pkg/errors"
)

func testConfig(t *testing.T, corpusContent string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corpus.txt")
	if err := os.WriteFile(path, []byte(corpusContent), 0o644); err != nil {
		t.Fatalf("writing corpus: %v", err)
	}
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	cfg.Search.CorpusPath = path
	cfg.Search.Algorithm = "inmemory"
	cfg.Server.ReadTimeout = 5 * time.Second
	cfg.Server.WriteTimeout = 5 * time.Second
	return cfg
}

// startSession wires a protocol session to one end of an in-memory pipe and
// returns the client end.
func startSession(t *testing.T, cfg *config.Config) net.Conn {
	t.Helper()
	client, server := net.Pipe()
	deps := Deps{
		Registry:   search.NewRegistry(),
		Aggregator: analytics.NewAggregator(),
	}
	sess := newSession(server, cfg, deps, search.OptionsFromConfig(cfg.Search))
	go func() {
		defer server.Close()
		sess.run(context.Background())
	}()
	t.Cleanup(func() { client.Close() })
	return client
}

func roundTrip(t *testing.T, conn net.Conn, reader *bufio.Reader, query string) string {
	t.Helper()
	if _, err := conn.Write([]byte(query + "\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	response, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return response
}

func TestSessionFoundAndNotFound(t *testing.T) {
	cfg := testConfig(t, "alpha\nbravo\ncharlie\n")
	conn := startSession(t, cfg)
	reader := bufio.NewReader(conn)

	if got := roundTrip(t, conn, reader, "bravo"); got != apperrors.ResponseFound {
		t.Errorf("response = %q, want %q", got, apperrors.ResponseFound)
	}
	if got := roundTrip(t, conn, reader, "zulu"); got != apperrors.ResponseNotFound {
		t.Errorf("response = %q, want %q", got, apperrors.ResponseNotFound)
	}
	// Partial lines never match.
	if got := roundTrip(t, conn, reader, "alph"); got != apperrors.ResponseNotFound {
		t.Errorf("response = %q, want %q", got, apperrors.ResponseNotFound)
	}
}

func TestSessionEmptyRequestKeepsConnection(t *testing.T) {
	cfg := testConfig(t, "alpha\n")
	conn := startSession(t, cfg)
	reader := bufio.NewReader(conn)

	if got := roundTrip(t, conn, reader, ""); got != apperrors.ResponseEmptyRequest {
		t.Errorf("response = %q, want %q", got, apperrors.ResponseEmptyRequest)
	}
	// Whitespace-only cleaning: "\r" trims to empty as well.
	if got := roundTrip(t, conn, reader, "\r"); got != apperrors.ResponseEmptyRequest {
		t.Errorf("response = %q, want %q", got, apperrors.ResponseEmptyRequest)
	}
	// The session must still answer real queries afterwards.
	if got := roundTrip(t, conn, reader, "alpha"); got != apperrors.ResponseFound {
		t.Errorf("response = %q, want %q", got, apperrors.ResponseFound)
	}
}

func TestSessionStripsNULAndCR(t *testing.T) {
	cfg := testConfig(t, "alpha\n")
	conn := startSession(t, cfg)
	reader := bufio.NewReader(conn)

	if got := roundTrip(t, conn, reader, "alpha\x00\x00\r"); got != apperrors.ResponseFound {
		t.Errorf("response = %q, want %q", got, apperrors.ResponseFound)
	}
}

func TestSessionPayloadTooLargeClosesConnection(t *testing.T) {
	cfg := testConfig(t, "alpha\n")
	conn := startSession(t, cfg)
	reader := bufio.NewReader(conn)

	// 2000 bytes with no terminator against a 1024-byte cap. The pipe is
	// unbuffered, so write from a goroutine while the session reads.
	go conn.Write([]byte(strings.Repeat("x", 2000)))

	response, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if response != apperrors.ResponsePayloadTooLarge {
		t.Errorf("response = %q, want %q", response, apperrors.ResponsePayloadTooLarge)
	}
	if _, err := reader.ReadString('\n'); err != io.EOF {
		t.Errorf("connection should be closed after oversized payload, got err %v", err)
	}
}

func TestSessionMaxLengthPayloadAccepted(t *testing.T) {
	line := strings.Repeat("y", 1024)
	cfg := testConfig(t, line+"\n")
	conn := startSession(t, cfg)
	reader := bufio.NewReader(conn)

	done := make(chan string, 1)
	go func() {
		r, err := reader.ReadString('\n')
		if err != nil {
			done <- "read error: " + err.Error()
			return
		}
		done <- r
	}()
	if _, err := conn.Write([]byte(line + "\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case got := <-done:
		if got != apperrors.ResponseFound {
			t.Errorf("response = %q, want %q", got, apperrors.ResponseFound)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for response")
	}
}

func TestSessionInvalidEncodingClosesConnection(t *testing.T) {
	cfg := testConfig(t, "alpha\n")
	conn := startSession(t, cfg)
	reader := bufio.NewReader(conn)

	if _, err := conn.Write([]byte{0xff, 0xfe, 'q', '\n'}); err != nil {
		t.Fatalf("write: %v", err)
	}
	response, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if response != apperrors.ResponseInvalidEncoding {
		t.Errorf("response = %q, want %q", response, apperrors.ResponseInvalidEncoding)
	}
	if _, err := reader.ReadString('\n'); err != io.EOF {
		t.Errorf("connection should be closed after invalid encoding, got err %v", err)
	}
}

func TestSessionSurvivesSearchFault(t *testing.T) {
	cfg := testConfig(t, "alpha\n")
	cfg.Search.Algorithm = "linear"
	cfg.Search.RereadOnQuery = true
	conn := startSession(t, cfg)
	reader := bufio.NewReader(conn)

	if got := roundTrip(t, conn, reader, "alpha"); got != apperrors.ResponseFound {
		t.Fatalf("response = %q, want %q", got, apperrors.ResponseFound)
	}

	// Yank the corpus out from under the reread engine: the failing query
	// gets the internal-error line but the session keeps serving.
	if err := os.Remove(cfg.Search.CorpusPath); err != nil {
		t.Fatalf("removing corpus: %v", err)
	}
	if got := roundTrip(t, conn, reader, "alpha"); got != apperrors.ResponseInternal {
		t.Errorf("response = %q, want %q", got, apperrors.ResponseInternal)
	}

	if err := os.WriteFile(cfg.Search.CorpusPath, []byte("alpha\nbravo\n"), 0o644); err != nil {
		t.Fatalf("restoring corpus: %v", err)
	}
	if got := roundTrip(t, conn, reader, "bravo"); got != apperrors.ResponseFound {
		t.Errorf("response = %q, want %q", got, apperrors.ResponseFound)
	}
}

func TestSessionClientDisconnect(t *testing.T) {
	cfg := testConfig(t, "alpha\n")
	conn := startSession(t, cfg)
	reader := bufio.NewReader(conn)

	if got := roundTrip(t, conn, reader, "alpha"); got != apperrors.ResponseFound {
		t.Fatalf("response = %q, want %q", got, apperrors.ResponseFound)
	}
	// A clean hang-up mid-session must not wedge the server side; nothing
	// to assert beyond the session goroutine exiting without panic.
	conn.Close()
	time.Sleep(50 * time.Millisecond)
}

func TestSessionRecordsAnalytics(t *testing.T) {
	cfg := testConfig(t, "alpha\n")
	client, server := net.Pipe()
	defer client.Close()

	aggregator := analytics.NewAggregator()
	deps := Deps{
		Registry:   search.NewRegistry(),
		Aggregator: aggregator,
	}
	sess := newSession(server, cfg, deps, search.OptionsFromConfig(cfg.Search))
	go func() {
		defer server.Close()
		sess.run(context.Background())
	}()

	reader := bufio.NewReader(client)
	roundTrip(t, client, reader, "alpha")
	roundTrip(t, client, reader, "zulu")

	stats := aggregator.Snapshot()
	if stats.TotalQueries != 2 {
		t.Errorf("TotalQueries = %d, want 2", stats.TotalQueries)
	}
	if stats.TotalFound != 1 || stats.TotalNotFound != 1 {
		t.Errorf("found/notFound = %d/%d, want 1/1", stats.TotalFound, stats.TotalNotFound)
	}
	if stats.ByAlgorithm["inmemory"] != 2 {
		t.Errorf("ByAlgorithm[inmemory] = %d, want 2", stats.ByAlgorithm["inmemory"])
	}
}
