package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupOTel(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled tracing", func(t *testing.T) {
		tracer, cleanup, err := SetupOTel(ctx, TracingConfig{Enabled: false})
		require.NoError(t, err)
		require.NotNil(t, tracer)
		require.NotNil(t, cleanup)

		_, span := tracer.Start(ctx, "test")
		span.End()
		cleanup()
	})

	t.Run("enabled tracing with unreachable collector", func(t *testing.T) {
		tracer, cleanup, err := SetupOTel(ctx, TracingConfig{
			Enabled:     true,
			ServiceName: "test-service",
			ZipkinURL:   "http://invalid-url:9411/api/v2/spans",
		})
		require.NoError(t, err)
		require.NotNil(t, tracer)

		bus := NewWatermillBridge(WithTracer(tracer))
		require.NoError(t, bus.Publish(ctx, Message{Topic: "test.topic", UserID: "u1", Payload: []byte("{}")}))
		require.NoError(t, bus.Close())
		cleanup()
	})
}
