// Package server implements the TCP front end: a listener feeding a bounded
// dispatch queue drained by a fixed pool of workers, with optional TLS
// termination and busy-shedding when the queue is full.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/lineserve/lineserve/internal/analytics"
	"github.com/lineserve/lineserve/internal/cache"
	"github.com/lineserve/lineserve/internal/search"
	"github.com/lineserve/lineserve/pkg/config"
	apperrors "github.com/lineserve/lineserve/pkg/errors"
	"github.com/lineserve/lineserve/pkg/logger"
	"github.com/lineserve/lineserve/pkg/metrics"
)

// Deps carries the collaborators the dispatcher hands to each session.
// Cache, Collector, Aggregator, and Metrics are optional; nil disables the
// corresponding feature.
type Deps struct {
	Registry   *search.Registry
	Cache      *cache.QueryCache
	Collector  *analytics.Collector
	Aggregator *analytics.Aggregator
	Metrics    *metrics.Metrics
}

// Dispatcher accepts connections and hands them to a worker pool through a
// bounded queue. When the queue is full new connections receive the busy
// response and are closed immediately; the accept loop never blocks on a
// slow worker.
type Dispatcher struct {
	cfg       *config.Config
	deps      Deps
	opts      search.Options
	tlsConfig *tls.Config
	logger    *slog.Logger

	listener net.Listener
	queue    chan net.Conn
	workerWG sync.WaitGroup
	acceptWG sync.WaitGroup
}

// NewDispatcher validates the TLS material (when enabled) and prepares a
// dispatcher. Start must be called to bind the listener.
func NewDispatcher(cfg *config.Config, deps Deps) (*Dispatcher, error) {
	if deps.Registry == nil {
		return nil, fmt.Errorf("dispatcher requires an engine registry")
	}
	d := &Dispatcher{
		cfg:    cfg,
		deps:   deps,
		opts:   search.OptionsFromConfig(cfg.Search),
		logger: logger.WithComponent("dispatcher"),
		queue:  make(chan net.Conn, cfg.Server.QueueSize),
	}
	if cfg.TLS.Enabled {
		cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading TLS key pair: %w", err)
		}
		d.tlsConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}
	return d, nil
}

// Start binds the listener and launches the accept loop and worker pool.
// It returns once the listener is bound; call Shutdown to stop.
func (d *Dispatcher) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", d.cfg.Server.Addr())
	if err != nil {
		return fmt.Errorf("binding %s: %w", d.cfg.Server.Addr(), err)
	}
	d.listener = ln
	d.logger.Info("listening",
		"addr", ln.Addr().String(),
		"tls", d.cfg.TLS.Enabled,
		"workers", d.cfg.Server.Workers,
		"queue_size", d.cfg.Server.QueueSize,
	)

	for i := 0; i < d.cfg.Server.Workers; i++ {
		d.workerWG.Add(1)
		go d.worker(ctx, i)
	}

	d.acceptWG.Add(1)
	go d.acceptLoop(ctx)
	return nil
}

// Addr returns the bound listener address. Valid after Start.
func (d *Dispatcher) Addr() net.Addr {
	return d.listener.Addr()
}

func (d *Dispatcher) acceptLoop(ctx context.Context) {
	defer d.acceptWG.Done()
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
			default:
				if !isClosedErr(err) {
					d.logger.Error("accept failed", "error", err)
				}
			}
			return
		}
		if m := d.deps.Metrics; m != nil {
			m.ConnectionsTotal.Inc()
		}
		tuneConn(conn)

		select {
		case d.queue <- conn:
			if m := d.deps.Metrics; m != nil {
				m.QueueDepth.Inc()
			}
		default:
			d.shed(conn)
		}
	}
}

// shed rejects a connection when every queue slot is taken. The busy line is
// written best-effort with a short deadline so a stalled client cannot tie
// up the accept loop.
func (d *Dispatcher) shed(conn net.Conn) {
	if m := d.deps.Metrics; m != nil {
		m.ConnectionsShed.Inc()
	}
	d.logger.Warn("queue full, shedding connection", "remote", conn.RemoteAddr().String())
	conn.SetWriteDeadline(time.Now().Add(time.Second))
	conn.Write([]byte(apperrors.ResponseServerBusy))
	conn.Close()
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.workerWG.Done()
	for conn := range d.queue {
		if m := d.deps.Metrics; m != nil {
			m.QueueDepth.Dec()
			m.ConnectionsActive.Inc()
		}
		d.handleConn(ctx, conn)
		if m := d.deps.Metrics; m != nil {
			m.ConnectionsActive.Dec()
		}
	}
}

// handleConn performs the TLS handshake when configured, then runs the
// session protocol loop. The handshake gets its own deadline, shorter than
// the per-request read timeout, so half-open handshakes cannot hold a
// worker for long.
func (d *Dispatcher) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if d.tlsConfig != nil {
		tlsConn := tls.Server(conn, d.tlsConfig)
		hsCtx, cancel := context.WithTimeout(ctx, d.cfg.Server.HandshakeTimeout)
		err := tlsConn.HandshakeContext(hsCtx)
		cancel()
		if err != nil {
			if m := d.deps.Metrics; m != nil {
				m.TLSHandshakeFailures.Inc()
			}
			d.logger.Warn("tls handshake failed",
				"remote", conn.RemoteAddr().String(),
				"error", err,
			)
			return
		}
		conn = tlsConn
	}

	sess := newSession(conn, d.cfg, d.deps, d.opts)
	sess.run(ctx)
}

// Shutdown stops accepting, drains queued connections, and waits for
// in-flight sessions up to the configured shutdown timeout.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	if d.listener != nil {
		d.listener.Close()
	}
	d.acceptWG.Wait()
	close(d.queue)

	done := make(chan struct{})
	go func() {
		d.workerWG.Wait()
		close(done)
	}()

	timeout := d.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	select {
	case <-done:
		d.logger.Info("dispatcher stopped")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("shutdown timed out after %s with sessions still active", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// tuneConn disables Nagle and enables keepalives on TCP connections so
// single-line request/response exchanges are not delayed.
func tuneConn(conn net.Conn) {
	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	tcp.SetNoDelay(true)
	tcp.SetKeepAlive(true)
	tcp.SetKeepAlivePeriod(30 * time.Second)
}

func isClosedErr(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
