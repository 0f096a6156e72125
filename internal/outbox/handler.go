package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/NordCoder/pingerus-agent/internal/domain/monitor"
	"github.com/NordCoder/pingerus-agent/internal/obs/retry"
)

// KindHandler delivers the payload of one message.
type KindHandler func(ctx context.Context, key string, data []byte) error

// GlobalHandler resolves the handler for a message kind.
type GlobalHandler func(kind Kind) (KindHandler, error)

// Publisher is the transport the transition feed is written to.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
}

var (
	outboxHandlerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outbox_handler_latency_seconds",
		Help:    "Latency of outbox handlers including retries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	outboxHandlerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_handler_errors_total",
		Help: "Errors in outbox handlers (after retries).",
	}, []string{"kind"})
)

func instrument(kind Kind, h KindHandler, pol retry.Policy) KindHandler {
	tr := otel.Tracer("outbox.handler")
	if pol.Name == "" {
		pol.Name = "outbox_" + string(kind)
	}
	return func(ctx context.Context, key string, data []byte) error {
		ctx, span := tr.Start(ctx, "outbox.handle", trace.WithAttributes(
			attribute.String("outbox.kind", string(kind)),
			attribute.String("outbox.key", key),
		))
		defer span.End()

		start := time.Now()
		attempts, err := retry.Do(ctx, func(ctx context.Context, _ int) error {
			return h(ctx, key, data)
		}, pol)
		outboxHandlerLatency.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
		span.SetAttributes(attribute.Int("outbox.attempts", attempts))
		if err != nil {
			span.RecordError(err)
			outboxHandlerErrors.WithLabelValues(string(kind)).Inc()
		}
		return err
	}
}

// MakeGlobalHandler routes every known kind to pub with pol applied.
func MakeGlobalHandler(pub Publisher, pol retry.Policy) GlobalHandler {
	return func(kind Kind) (KindHandler, error) {
		switch kind {
		case KindTransition:
			base := func(ctx context.Context, key string, data []byte) error {
				return pub.Publish(ctx, []byte(key), data)
			}
			return instrument(kind, base, pol), nil
		default:
			return nil, fmt.Errorf("unsupported outbox kind: %q", kind)
		}
	}
}

// TransitionHook returns a store callback that enqueues transitions as JSON
// keyed by monitor id. A full queue drops the transition with a warning.
func TransitionHook(q *Queue, log *zap.Logger) func(monitor.Transition) {
	if log == nil {
		log = zap.NewNop()
	}
	return func(t monitor.Transition) {
		data, err := json.Marshal(t)
		if err != nil {
			log.Error("encode transition", zap.String("monitor_id", t.MonitorID), zap.Error(err))
			return
		}
		if !q.Enqueue(context.Background(), KindTransition, t.MonitorID, data) {
			log.Warn("outbox full, transition dropped",
				zap.String("monitor_id", t.MonitorID),
				zap.String("to", string(t.To)),
			)
		}
	}
}
