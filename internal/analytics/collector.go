// Package analytics tracks per-query events: a channel-buffered collector
// ships them to Kafka, an in-process aggregator folds them into running
// totals, and a store snapshots those totals to PostgreSQL.
package analytics

import (
	"context"
	"log/slog"

	"github.com/lineserve/lineserve/pkg/kafka"
)

// Publisher is the sink the collector drains into. *kafka.Producer
// satisfies it; tests substitute a recorder.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Collector buffers query events in a channel and publishes them in the
// background. Track never blocks a worker: when the buffer is full the
// event is dropped with a warning.
type Collector struct {
	publisher Publisher
	eventCh   chan QueryEvent
	logger    *slog.Logger
	done      chan struct{}
}

func NewCollector(publisher Publisher, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		publisher: publisher,
		eventCh:   make(chan QueryEvent, bufferSize),
		logger:    slog.Default().With("component", "analytics-collector"),
		done:      make(chan struct{}),
	}
}

// Start launches the background publish loop until ctx is cancelled or the
// collector is closed.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					return
				}
				c.publish(ctx, event)
			case <-ctx.Done():
				c.drainRemaining()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started", "buffer_size", cap(c.eventCh))
}

// Track enqueues an event without blocking.
func (c *Collector) Track(event QueryEvent) {
	select {
	case c.eventCh <- event:
	default:
		c.logger.Warn("analytics event dropped (buffer full)")
	}
}

// Close stops accepting events and waits for the publish loop to finish.
func (c *Collector) Close() {
	close(c.eventCh)
	<-c.done
}

func (c *Collector) publish(ctx context.Context, event QueryEvent) {
	err := c.publisher.Publish(ctx, kafka.Event{
		Key:   string(event.Type),
		Value: event,
	})
	if err != nil {
		c.logger.Error("failed to publish analytics event", "error", err)
	}
}

func (c *Collector) drainRemaining() {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			c.publish(context.Background(), event)
		default:
			return
		}
	}
}
