package server

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"time"
	"unicode/utf8"

	"github.com/lineserve/lineserve/internal/analytics"
	"github.com/lineserve/lineserve/internal/search"
	"github.com/lineserve/lineserve/internal/search/corpus"
	"github.com/lineserve/lineserve/pkg/config"
	apperrors "github.com/lineserve/lineserve/pkg/errors"
	"github.com/lineserve/lineserve/pkg/logger"
)

// session runs the line protocol over a single connection: read one
// newline-terminated query, answer with exactly one response line, repeat.
// Oversized and undecodable requests close the session; empty requests and
// per-query engine faults answer and keep it open.
type session struct {
	conn   net.Conn
	cfg    *config.Config
	deps   Deps
	opts   search.Options
	reader *bufio.Reader
	logger *slog.Logger

	requests int64
}

func newSession(conn net.Conn, cfg *config.Config, deps Deps, opts search.Options) *session {
	return &session{
		conn: conn,
		cfg:  cfg,
		deps: deps,
		opts: opts,
		// One extra byte so a maximum-length payload plus its terminator
		// still fits; anything longer surfaces as ErrBufferFull.
		reader: bufio.NewReaderSize(conn, cfg.Server.MaxPayloadBytes+1),
		logger: logger.WithSession("session", conn.RemoteAddr().String()),
	}
}

func (s *session) run(ctx context.Context) {
	start := time.Now()
	s.logger.Debug("session opened")
	defer func() {
		s.logger.Info("session closed",
			"requests", s.requests,
			"duration", time.Since(start),
		)
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		query, err := s.readQuery()
		if err != nil {
			if err == io.EOF {
				return
			}
			s.respondError(err)
			if apperrors.Terminal(err) {
				return
			}
			continue
		}
		s.requests++
		if !s.serve(ctx, query) {
			return
		}
	}
}

// readQuery reads one request line. It returns io.EOF when the client hangs
// up cleanly; a line exceeding the payload cap without a terminator maps to
// ErrPayloadTooLarge. Data left unterminated at EOF is discarded, a query
// only exists once its newline arrives.
func (s *session) readQuery() (string, error) {
	if t := s.cfg.Server.ReadTimeout; t > 0 {
		s.conn.SetReadDeadline(time.Now().Add(t))
	}
	line, err := s.reader.ReadSlice('\n')
	switch err {
	case nil:
	case bufio.ErrBufferFull:
		return "", apperrors.New(apperrors.ErrPayloadTooLarge,
			"request exceeded payload limit without a terminator")
	case io.EOF:
		return "", io.EOF
	default:
		s.logger.Debug("read failed", "error", err)
		return "", io.EOF
	}

	query := corpus.Clean(string(line[:len(line)-1]))
	if !utf8.ValidString(query) {
		return "", apperrors.New(apperrors.ErrInvalidEncoding, "request is not valid UTF-8")
	}
	if query == "" {
		return "", apperrors.New(apperrors.ErrEmptyQuery, "request was empty after trimming")
	}
	return query, nil
}

// serve answers one query. Returns false when the session should close.
func (s *session) serve(ctx context.Context, query string) bool {
	engine, err := s.deps.Registry.Resolve(s.cfg.Search.Algorithm, s.opts)
	if err != nil {
		// An engine that cannot be built will not recover within this session.
		s.logger.Error("engine resolution failed", "error", err)
		s.respondError(err)
		return false
	}

	start := time.Now()
	found, cached, err := s.search(ctx, engine, query)
	elapsed := time.Since(start)
	if err != nil {
		s.logger.Error("search failed",
			"algorithm", engine.Algorithm(),
			"error", err,
		)
		if m := s.deps.Metrics; m != nil && engine.Algorithm() == "grep" {
			m.SubprocessFailures.Inc()
		}
		s.observe("error", engine.Algorithm(), elapsed)
		s.track(analytics.EventError, engine.Algorithm(), false, false, len(query), elapsed)
		// A search fault is scoped to this query; keep serving the session.
		return s.write(apperrors.ResponseLine(err))
	}

	result := "not_found"
	response := apperrors.ResponseNotFound
	if found {
		result = "found"
		response = apperrors.ResponseFound
	}
	s.observe(result, engine.Algorithm(), elapsed)

	eventType := analytics.EventQuery
	if cached {
		eventType = analytics.EventCacheHit
	}
	s.track(eventType, engine.Algorithm(), found, cached, len(query), elapsed)

	s.logger.Debug("query served",
		"algorithm", engine.Algorithm(),
		"found", found,
		"cached", cached,
		"latency", elapsed,
	)
	return s.write(response)
}

// search consults the query cache when one is configured and the engine is
// not rereading the corpus per query. With reread enabled a cached verdict
// could mask a corpus change, so the cache is bypassed entirely.
func (s *session) search(ctx context.Context, engine search.Engine, query string) (found, cached bool, err error) {
	if s.deps.Cache != nil && !s.opts.RereadOnQuery {
		found, cached, err = s.deps.Cache.GetOrCompute(
			ctx, engine.Algorithm(), s.opts.CorpusPath, query,
			func() (bool, error) {
				return engine.Search(ctx, query)
			},
		)
		if m := s.deps.Metrics; m != nil && err == nil {
			if cached {
				m.CacheHitsTotal.Inc()
			} else {
				m.CacheMissesTotal.Inc()
			}
		}
		return found, cached, err
	}
	found, err = engine.Search(ctx, query)
	return found, false, err
}

func (s *session) observe(result, algorithm string, elapsed time.Duration) {
	if m := s.deps.Metrics; m != nil {
		m.QueriesTotal.WithLabelValues(result).Inc()
		m.SearchLatency.WithLabelValues(algorithm).Observe(elapsed.Seconds())
	}
}

func (s *session) track(eventType analytics.EventType, algorithm string, found, cached bool, queryBytes int, elapsed time.Duration) {
	event := analytics.QueryEvent{
		Type:       eventType,
		Algorithm:  algorithm,
		Found:      found,
		CacheHit:   cached,
		QueryBytes: queryBytes,
		LatencyMs:  elapsed.Milliseconds(),
		Session:    s.conn.RemoteAddr().String(),
		Timestamp:  time.Now().UTC(),
	}
	if s.deps.Collector != nil {
		s.deps.Collector.Track(event)
	}
	if s.deps.Aggregator != nil {
		s.deps.Aggregator.Record(event)
	}
}

func (s *session) respondError(err error) {
	s.write(apperrors.ResponseLine(err))
}

func (s *session) write(response string) bool {
	if t := s.cfg.Server.WriteTimeout; t > 0 {
		s.conn.SetWriteDeadline(time.Now().Add(t))
	}
	if _, err := s.conn.Write([]byte(response)); err != nil {
		s.logger.Debug("write failed", "error", err)
		return false
	}
	return true
}
