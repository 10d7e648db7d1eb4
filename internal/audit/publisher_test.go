package audit_test

//go:generate mockgen -source=publisher.go -destination=mocks/mocks.go -package=mocks Emitter,Sink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"gatekeeper/internal/audit"
	"gatekeeper/internal/audit/mocks"
	"gatekeeper/internal/platform/kafka/producer"
	"gatekeeper/pkg/requestcontext"
)

var fixedNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func TestPublisher_Emit(t *testing.T) {
	t.Run("enriches and anonymizes before delivery", func(t *testing.T) {
		sink := audit.NewMemorySink()
		p := audit.NewPublisher(sink, audit.WithClock(func() time.Time { return fixedNow }))
		ctx := requestcontext.WithRequestID(context.Background(), "req-42")

		require.NoError(t, p.Emit(ctx, audit.Event{
			Action:   audit.ActionDDoSBlocked,
			Identity: "203.0.113.77",
			Path:     "/.env",
		}))

		events := sink.Events()
		require.Len(t, events, 1)
		assert.Equal(t, "203.0.113.0", events[0].Identity)
		assert.Equal(t, "req-42", events[0].RequestID)
		assert.Equal(t, fixedNow, events[0].Timestamp)
	})

	t.Run("sync sink errors are returned", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		sink := mocks.NewMockSink(ctrl)
		sink.EXPECT().Append(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))

		p := audit.NewPublisher(sink)
		assert.Error(t, p.Emit(context.Background(), audit.Event{Action: audit.ActionAccessDenied}))
	})

	t.Run("async buffer drains on close", func(t *testing.T) {
		sink := audit.NewMemorySink()
		p := audit.NewPublisher(sink, audit.WithAsyncBuffer(16))
		for range 5 {
			require.NoError(t, p.Emit(context.Background(), audit.Event{Action: audit.ActionRateLimitExceeded}))
		}
		p.Close()
		assert.Len(t, sink.ByAction(audit.ActionRateLimitExceeded), 5)
	})
}

func TestRecord(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("emit failures are swallowed", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		em := mocks.NewMockEmitter(ctrl)
		em.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("boom"))

		assert.NotPanics(t, func() {
			audit.Record(context.Background(), logger, em, audit.Event{Action: audit.ActionProgressiveBan})
		})
	})

	t.Run("nil emitter only logs", func(t *testing.T) {
		assert.NotPanics(t, func() {
			audit.Record(context.Background(), logger, nil, audit.Event{Action: audit.ActionProgressiveBan})
		})
	})
}

type captureProducer struct {
	msgs []*producer.Message
}

func (c *captureProducer) ProduceAsync(msg *producer.Message) error {
	c.msgs = append(c.msgs, msg)
	return nil
}

func TestKafkaSink(t *testing.T) {
	cp := &captureProducer{}
	sink := audit.NewKafkaSink(cp, "gatekeeper.security-events")

	err := sink.Append(context.Background(), audit.Event{
		Timestamp: fixedNow,
		Action:    audit.ActionProgressiveBan,
		Identity:  "198.51.100.0",
		RequestID: "req-1",
	})
	require.NoError(t, err)
	require.Len(t, cp.msgs, 1)

	msg := cp.msgs[0]
	assert.Equal(t, "gatekeeper.security-events", msg.Topic)
	assert.Equal(t, []byte("198.51.100.0"), msg.Key)
	assert.Equal(t, "progressive_ban", msg.Headers["action"])

	var decoded audit.Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, audit.ActionProgressiveBan, decoded.Action)
}
