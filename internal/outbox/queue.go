package outbox

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

type Kind string

const KindTransition Kind = "transition"

// Message is one pending delivery. Trace headers are captured at enqueue
// time so the publish span joins the trace that produced the message.
type Message struct {
	Kind  Kind
	Key   string
	Data  []byte
	Trace propagation.MapCarrier
}

var (
	outboxEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_enqueued_total",
		Help: "Messages accepted into the outbox queue.",
	}, []string{"kind"})
	outboxDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_dropped_total",
		Help: "Messages dropped because the outbox queue was full.",
	}, []string{"kind"})
	outboxDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "outbox_queue_depth",
		Help: "Messages waiting in the outbox queue.",
	})
)

// Queue is a bounded in-memory outbox. Enqueue never blocks.
type Queue struct {
	ch chan Message
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{ch: make(chan Message, size)}
}

// Enqueue adds a message and reports whether it was accepted.
func (q *Queue) Enqueue(ctx context.Context, kind Kind, key string, data []byte) bool {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	select {
	case q.ch <- Message{Kind: kind, Key: key, Data: data, Trace: carrier}:
		outboxEnqueued.WithLabelValues(string(kind)).Inc()
		outboxDepth.Set(float64(len(q.ch)))
		return true
	default:
		outboxDropped.WithLabelValues(string(kind)).Inc()
		return false
	}
}

func (q *Queue) Len() int { return len(q.ch) }
