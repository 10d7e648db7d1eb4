//go:build integration

package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gatekeeper/internal/audit"
	"gatekeeper/internal/platform/kafka/producer"
	"gatekeeper/pkg/requestcontext"
	"gatekeeper/pkg/testutil/containers"
)

func TestKafkaSinkPublishesAnonymizedEvents(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	kc := containers.GetManager().GetKafka(t)
	ctx := context.Background()
	topic := "gatekeeper.security-events.sink"
	require.NoError(t, kc.CreateTopic(ctx, topic, 1))

	prod, err := producer.New(producer.Config{Brokers: kc.Brokers}, nil)
	require.NoError(t, err)

	pub := audit.NewPublisher(audit.NewKafkaSink(prod, topic))
	reqCtx := requestcontext.WithRequestID(ctx, "req-42")
	require.NoError(t, pub.Emit(reqCtx, audit.Event{
		Action:   audit.ActionProgressiveBan,
		Identity: "198.51.100.77",
		Path:     "/api/inquiries",
		Reason:   "escalated",
	}))
	pub.Close()
	prod.Close(10 * time.Second)

	reader, err := kc.Reader(topic)
	require.NoError(t, err)
	defer reader.Close()

	ev, ok := containers.WaitForEvent(ctx, reader, 15*time.Second, audit.ActionProgressiveBan)
	require.True(t, ok)
	require.Equal(t, "198.51.100.0", ev.Identity)
	require.Equal(t, "/api/inquiries", ev.Path)
}
