package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"gatekeeper/internal/platform/kafka/producer"
)

// LogSink writes events as structured log lines.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Append(ctx context.Context, e Event) error {
	s.logger.InfoContext(ctx, "security_event",
		"action", e.Action,
		"identity", e.Identity,
		"subject", e.Subject,
		"path", e.Path,
		"reason", e.Reason,
		"request_id", e.RequestID,
		"timestamp", e.Timestamp,
	)
	return nil
}

// AsyncProducer is the subset of the Kafka producer the sink needs.
type AsyncProducer interface {
	ProduceAsync(msg *producer.Message) error
}

// KafkaSink publishes events as JSON keyed by anonymized identity, so one
// identity's events stay ordered within a partition.
type KafkaSink struct {
	producer AsyncProducer
	topic    string
}

func NewKafkaSink(p AsyncProducer, topic string) *KafkaSink {
	return &KafkaSink{producer: p, topic: topic}
}

func (s *KafkaSink) Append(_ context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal security event: %w", err)
	}
	return s.producer.ProduceAsync(&producer.Message{
		Topic: s.topic,
		Key:   []byte(e.Identity),
		Value: payload,
		Headers: map[string]string{
			"action":     string(e.Action),
			"request_id": e.RequestID,
		},
	})
}

// MemorySink keeps events in order. Used by tests and local runs.
type MemorySink struct {
	mu     sync.RWMutex
	events []Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Append(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

// Events returns a copy of everything appended so far.
func (s *MemorySink) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event(nil), s.events...)
}

// ByAction returns the appended events with the given action.
func (s *MemorySink) ByAction(action Action) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}
