package pubsub

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// WatermillBridge implements Bus using watermill's in-process GoChannel.
type WatermillBridge struct {
	pub    message.Publisher
	sub    message.Subscriber
	tracer trace.Tracer
	logger *slog.Logger
}

var _ Bus = (*WatermillBridge)(nil)

const (
	// Metadata keys used to transfer our Message structure fields through watermill's message.
	metaKeyUserID    = "user_id"
	metaKeyTopic     = "topic"
	metaKeyTimestamp = "timestamp"
)

// Option configures a WatermillBridge.
type Option func(*bridgeOptions)

type bridgeOptions struct {
	tracer       trace.Tracer
	outputBuffer int64
}

// WithTracer records a span for every publish and every handler invocation.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *bridgeOptions) {
		o.tracer = tracer
	}
}

// WithOutputBuffer sets the per-subscriber channel buffer.
func WithOutputBuffer(n int64) Option {
	return func(o *bridgeOptions) {
		o.outputBuffer = n
	}
}

// NewWatermillBridge initializes an in-memory bus.
func NewWatermillBridge(opts ...Option) *WatermillBridge {
	o := bridgeOptions{
		tracer:       noop.NewTracerProvider().Tracer("relaychat-pubsub"),
		outputBuffer: 64,
	}
	for _, opt := range opts {
		opt(&o)
	}

	goChannel := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: o.outputBuffer},
		watermill.NewSlogLogger(slog.Default().With("component", "watermill")),
	)

	return &WatermillBridge{
		pub:    goChannel,
		sub:    goChannel,
		tracer: o.tracer,
		logger: slog.Default().With("component", "pubsub"),
	}
}

// mapToWatermillMessage converts our Message to a watermill message.
func mapToWatermillMessage(msg Message) *message.Message {
	wmMsg := message.NewMessage(watermill.NewUUID(), msg.Payload)

	for k, v := range msg.Metadata {
		wmMsg.Metadata.Set(k, v)
	}
	wmMsg.Metadata.Set(metaKeyUserID, msg.UserID)
	wmMsg.Metadata.Set(metaKeyTopic, msg.Topic)
	if wmMsg.Metadata.Get(metaKeyTimestamp) == "" {
		wmMsg.Metadata.Set(metaKeyTimestamp, time.Now().UTC().Format(time.RFC3339Nano))
	}
	return wmMsg
}

// mapToPubSubMessage converts a watermill message back to our Message.
func mapToPubSubMessage(wmMsg *message.Message) Message {
	metadata := make(map[string]string, len(wmMsg.Metadata))
	for k, v := range wmMsg.Metadata {
		if k != metaKeyTopic {
			metadata[k] = v
		}
	}
	return Message{
		Topic:    wmMsg.Metadata.Get(metaKeyTopic),
		UserID:   wmMsg.Metadata.Get(metaKeyUserID),
		Payload:  wmMsg.Payload,
		Metadata: metadata,
	}
}

func spanAttributes(operation, topic string, wmMsg *message.Message) trace.SpanStartOption {
	return trace.WithAttributes(
		attribute.String("messaging.system", "watermill"),
		attribute.String("messaging.operation", operation),
		attribute.String("messaging.destination", topic),
		attribute.String("messaging.message_id", wmMsg.UUID),
		attribute.String("user.id", wmMsg.Metadata.Get(metaKeyUserID)),
		attribute.Int("messaging.message_payload_size_bytes", len(wmMsg.Payload)),
	)
}

// Publish implements the Publisher interface.
func (wb *WatermillBridge) Publish(ctx context.Context, msg Message) error {
	if msg.Topic == "" {
		return fmt.Errorf("publish: empty topic")
	}
	wmMsg := mapToWatermillMessage(msg)

	spanCtx, span := wb.tracer.Start(ctx, "pubsub.publish."+msg.Topic, spanAttributes("publish", msg.Topic, wmMsg))
	defer span.End()
	wmMsg.SetContext(spanCtx)

	if err := wb.pub.Publish(msg.Topic, wmMsg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("publish %s: %w", msg.Topic, err)
	}
	return nil
}

// Subscribe implements the Subscriber interface.
func (wb *WatermillBridge) Subscribe(ctx context.Context, topic string, handler Handler) error {
	messages, err := wb.sub.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}

	go func() {
		for wmMsg := range messages {
			wb.process(ctx, topic, wmMsg, handler)
		}
		wb.logger.Debug("Subscription message loop ended", "topic", topic)
	}()

	return nil
}

func (wb *WatermillBridge) process(ctx context.Context, topic string, wmMsg *message.Message, handler Handler) {
	spanCtx, span := wb.tracer.Start(ctx, "pubsub.process."+topic, spanAttributes("process", topic, wmMsg))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			wb.logger.Error("Handler panicked", "topic", topic, "msg_id", wmMsg.UUID, "panic", r)
			span.SetStatus(codes.Error, "panic")
			wmMsg.Ack()
		}
	}()

	if err := handler(spanCtx, mapToPubSubMessage(wmMsg)); err != nil {
		wb.logger.Error("Failed to handle message", "topic", topic, "msg_id", wmMsg.UUID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		// GoChannel redelivers nacked messages; failures are logged and acked instead.
		wmMsg.Ack()
		return
	}
	wmMsg.Ack()
}

// Close shuts the bus down and ends every subscription loop.
func (wb *WatermillBridge) Close() error {
	return wb.sub.Close()
}
