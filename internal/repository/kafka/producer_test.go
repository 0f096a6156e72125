package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap/zaptest"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (r *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, msgs...)
	return nil
}

func (r *recordingWriter) Close() error { return nil }

func TestProducer_PublishJSON(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	otel.SetTracerProvider(tp)

	w := &recordingWriter{}
	p := (&Producer{w: w, topic: "transitions"}).WithLogger(zaptest.NewLogger(t))

	ctx, span := tp.Tracer("test").Start(context.Background(), "parent")
	err := p.PublishJSON(ctx, "web", map[string]string{"to": "Fail"})
	span.End()
	require.NoError(t, err)

	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("web"), w.msgs[0].Key)
	assert.JSONEq(t, `{"to":"Fail"}`, string(w.msgs[0].Value))

	var traceparent string
	for _, h := range w.msgs[0].Headers {
		if h.Key == "traceparent" {
			traceparent = string(h.Value)
		}
	}
	assert.Contains(t, traceparent, span.SpanContext().TraceID().String())
}

func TestProducer_WriteError(t *testing.T) {
	boom := errors.New("broker down")
	p := (&Producer{w: &recordingWriter{err: boom}, topic: "t"}).WithLogger(zaptest.NewLogger(t))
	err := p.Publish(context.Background(), []byte("k"), []byte("v"))
	assert.ErrorIs(t, err, boom)
}

func TestEnsureTopic_NoBrokers(t *testing.T) {
	assert.ErrorIs(t, EnsureTopic(context.Background(), nil, TopicSpec{Name: "x"}, nil), ErrNoBrokers)
}
