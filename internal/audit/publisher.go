package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"gatekeeper/pkg/platform/privacy"
	"gatekeeper/pkg/requestcontext"
)

// Emitter is what request-path components depend on.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// Sink persists or forwards events.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Publisher enriches events and hands them to a sink, optionally through a
// bounded buffer drained by a background goroutine.
type Publisher struct {
	sink   Sink
	events chan Event
	wg     sync.WaitGroup
	logger *slog.Logger
	async  bool
	now    func() time.Time
}

// PublisherOption configures the Publisher.
type PublisherOption func(*Publisher)

// WithAsyncBuffer enables async delivery with the given buffer size.
func WithAsyncBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		if size > 0 {
			p.events = make(chan Event, size)
			p.async = true
		}
	}
}

// WithPublisherLogger sets a logger for delivery failures.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) PublisherOption {
	return func(p *Publisher) {
		if now != nil {
			p.now = now
		}
	}
}

func NewPublisher(sink Sink, opts ...PublisherOption) *Publisher {
	p := &Publisher{sink: sink, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	if p.async {
		p.wg.Go(p.processEvents)
	}
	return p
}

func (p *Publisher) processEvents() {
	for event := range p.events {
		if err := p.sink.Append(context.Background(), event); err != nil && p.logger != nil {
			p.logger.Error("failed to deliver security event",
				"error", err,
				"action", event.Action,
				"identity", event.Identity,
			)
		}
	}
}

// Close stops the async worker and waits for buffered events to drain.
func (p *Publisher) Close() {
	if p.async && p.events != nil {
		close(p.events)
		p.wg.Wait()
	}
}

// Emit fills in timestamp and request ID, anonymizes the identity and delivers.
// A full async buffer drops the event rather than stall the request.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	event.Identity = privacy.AnonymizeIP(event.Identity)

	if !p.async {
		return p.sink.Append(ctx, event)
	}
	select {
	case p.events <- event:
	default:
		if p.logger != nil {
			p.logger.Warn("security event buffer full, event dropped",
				"action", event.Action,
			)
		}
	}
	return nil
}

// Record logs the event and emits it when an emitter is configured. Emit
// failures are logged, never returned.
func Record(ctx context.Context, logger *slog.Logger, emitter Emitter, event Event) {
	if logger != nil {
		logger.InfoContext(ctx, string(event.Action),
			"identity", privacy.AnonymizeIP(event.Identity),
			"path", event.Path,
			"reason", event.Reason,
			"client", event.Client,
			"request_id", requestcontext.RequestID(ctx),
			"log_type", "audit",
		)
	}
	if emitter == nil {
		return
	}
	if err := emitter.Emit(ctx, event); err != nil && logger != nil {
		logger.WarnContext(ctx, "failed to emit security event", "action", event.Action, "error", err)
	}
}
