package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/NordCoder/pingerus-agent/internal/obs"
)

var (
	outboxOK = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_processed_ok_total", Help: "Messages processed successfully.",
	})
	outboxErr = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_processed_err_total", Help: "Handler errors.",
	})
	outboxDispatchDur = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "outbox_dispatch_duration_seconds", Help: "Time to dispatch one message.",
		Buckets: prometheus.DefBuckets,
	})
)

// Runner drains a Queue with a fixed number of workers.
type Runner struct {
	log      *zap.Logger
	queue    *Queue
	dispatch GlobalHandler
	workers  int
	// drain bounds how long pending messages are still delivered after
	// the run context ends.
	drain time.Duration
}

func NewRunner(log *zap.Logger, q *Queue, dispatch GlobalHandler, workers int, drain time.Duration) *Runner {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{log: log, queue: q, dispatch: dispatch, workers: workers, drain: drain}
}

// Run blocks until ctx is done and every worker has stopped.
func (r *Runner) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go r.worker(ctx, i, &wg)
	}
	wg.Wait()
	return nil
}

func (r *Runner) worker(ctx context.Context, id int, wg *sync.WaitGroup) {
	defer wg.Done()
	log := r.log.With(zap.Int("worker", id))
	log.Info("outbox worker started")

	for {
		select {
		case <-ctx.Done():
			r.drainPending(log)
			log.Info("outbox worker stop")
			return
		case m := <-r.queue.ch:
			outboxDepth.Set(float64(len(r.queue.ch)))
			r.handle(ctx, log, m)
		}
	}
}

// drainPending delivers what is still queued under a short deadline.
func (r *Runner) drainPending(log *zap.Logger) {
	if r.drain <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.drain)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			if n := len(r.queue.ch); n > 0 {
				log.Warn("outbox drain deadline reached", zap.Int("left", n))
			}
			return
		case m := <-r.queue.ch:
			r.handle(ctx, log, m)
		default:
			return
		}
	}
}

func (r *Runner) handle(ctx context.Context, log *zap.Logger, m Message) {
	t0 := time.Now()
	defer func() { outboxDispatchDur.Observe(time.Since(t0).Seconds()) }()

	tr := otel.Tracer("outbox.runner")
	parent := trace.ContextWithSpanContext(ctx,
		trace.SpanContextFromContext(otel.GetTextMapPropagator().Extract(context.Background(), m.Trace)))
	msgCtx, span := tr.Start(parent, "outbox.dispatch",
		trace.WithAttributes(
			attribute.String("outbox.key", m.Key),
			attribute.String("outbox.kind", string(m.Kind)),
		),
	)
	defer span.End()

	handler, err := r.dispatch(m.Kind)
	if err != nil {
		span.RecordError(err)
		outboxErr.Inc()
		obs.WithTrace(msgCtx, log).Error("no handler for kind", zap.String("kind", string(m.Kind)), zap.Error(err))
		return
	}
	if err := handler(msgCtx, m.Key, m.Data); err != nil {
		span.RecordError(err)
		outboxErr.Inc()
		obs.WithTrace(msgCtx, log).Error("handler error",
			zap.String("kind", string(m.Kind)), zap.String("key", m.Key), zap.Error(err))
		return
	}
	outboxOK.Inc()
}
