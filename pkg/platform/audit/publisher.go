package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/breederhq/identity/pkg/requestcontext"
)

const defaultBufferSize = 256

// Sink receives audit events. Implementations must be safe for concurrent
// use by the single publisher worker.
type Sink interface {
	Write(ctx context.Context, event Event) error
}

// Publisher decouples event production from sink latency. Events are
// buffered on a channel and written by a background worker; a full buffer
// drops the event with a log line rather than stalling a match request.
type Publisher struct {
	sink   Sink
	logger *slog.Logger

	events chan Event
	done   chan struct{}

	closeOnce sync.Once
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithLogger sets the logger used for drop and sink-failure reporting.
func WithLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithBufferSize overrides the event channel capacity.
func WithBufferSize(n int) PublisherOption {
	return func(p *Publisher) {
		if n > 0 {
			p.events = make(chan Event, n)
		}
	}
}

// NewPublisher starts a publisher writing to sink. Callers must Close it to
// drain buffered events.
func NewPublisher(sink Sink, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		sink:   sink,
		logger: slog.Default(),
		events: make(chan Event, defaultBufferSize),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	go p.run()
	return p
}

// Publish enqueues an event, filling ID, OccurredAt, TenantID, and RequestID
// when unset. It never blocks; events are dropped when the buffer is full.
func (p *Publisher) Publish(ctx context.Context, event Event) {
	if p == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = requestcontext.Now(ctx)
	}
	if event.TenantID.IsNil() {
		event.TenantID = requestcontext.TenantID(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}

	select {
	case p.events <- event:
	default:
		p.logger.Warn("audit buffer full, dropping event",
			"action", event.Action,
			"animal_id", event.AnimalID.String())
	}
}

// Close stops accepting events and drains the buffer, bounded by ctx.
func (p *Publisher) Close(ctx context.Context) error {
	if p == nil {
		return nil
	}
	p.closeOnce.Do(func() {
		close(p.events)
	})

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Publisher) run() {
	defer close(p.done)

	for event := range p.events {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := p.sink.Write(ctx, event); err != nil {
			p.logger.Error("write audit event",
				"action", event.Action,
				"event_id", event.ID,
				"error", err)
		}
		cancel()
	}
}
