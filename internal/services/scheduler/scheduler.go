package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/NordCoder/pingerus-agent/internal/domain/monitor"
	"github.com/NordCoder/pingerus-agent/internal/obs"
)

var (
	mTriggers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_triggers_total", Help: "Due triggers handled by the dispatch loop.",
	})
	mCoalesced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_coalesced_total", Help: "Triggers skipped because the monitor was still in flight or the loop fell behind.",
	})
	mQueueDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_queue_dropped_total", Help: "Triggers dropped because the pending queue was full.",
	})
	mQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_queue_depth", Help: "Triggers waiting for a free execution slot.",
	})
	mInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_inflight", Help: "Check executions currently running.",
	})
	mAbandoned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_abandoned_total", Help: "Executions still running when the shutdown grace period ran out.",
	})
	mLoopDur = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "scheduler_loop_duration_seconds", Help: "Time spent dispatching one wake cycle.",
		Buckets: prometheus.DefBuckets,
	})
)

// Source provides the enabled monitor definitions and signals replacements.
type Source interface {
	Enabled() []*monitor.Definition
	Changed() <-chan struct{}
}

// StateStore receives results; Track and Retain follow the scheduled set.
type StateStore interface {
	monitor.ResultSink
	Track(id string)
	Retain(keep map[string]struct{})
}

type Options struct {
	MaxConcurrent int
	QueueSize     int
	ShutdownGrace time.Duration
	Clock         monitor.Clock
}

// Scheduler is the single active driver of check executions. One dispatch
// loop decides when monitors fire; executions run on their own goroutines,
// at most one per monitor and at most MaxConcurrent overall.
type Scheduler struct {
	log   *zap.Logger
	src   Source
	exec  monitor.Executor
	store StateStore
	opts  Options
	clock monitor.Clock
	sem   *semaphore.Weighted
	tr    trace.Tracer

	mu        sync.Mutex
	inflight  map[string]struct{} // running or queued
	running   map[string]struct{}
	pending   []*monitor.Definition
	stopping  bool
	abandoned bool
	wg        sync.WaitGroup
}

func New(log *zap.Logger, src Source, exec monitor.Executor, store StateStore, opts Options) *Scheduler {
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}
	if opts.QueueSize < 0 {
		opts.QueueSize = 0
	}
	clock := opts.Clock
	if clock == nil {
		clock = monitor.SystemClock{}
	}
	return &Scheduler{
		log:      obs.Component(log, "scheduler"),
		src:      src,
		exec:     exec,
		store:    store,
		opts:     opts,
		clock:    clock,
		sem:      semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		tr:       obs.Tracer("scheduler"),
		inflight: make(map[string]struct{}),
		running:  make(map[string]struct{}),
	}
}

// Run drives the dispatch loop until ctx ends, then shuts down: no new
// triggers, in-flight executions are cancelled and awaited for up to
// ShutdownGrace. Results arriving after that are discarded.
func (s *Scheduler) Run(ctx context.Context) error {
	execCtx, cancelExec := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelExec()

	q := newFireQueue()
	s.rebuild(q, s.clock.Now())

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		if it := q.peek(); it != nil {
			timer.Reset(max(it.next.Sub(s.clock.Now()), 0))
		} else {
			timer.Stop()
		}

		select {
		case <-ctx.Done():
			s.shutdown(cancelExec)
			return nil
		case <-s.src.Changed():
			s.rebuild(q, s.clock.Now())
		case <-timer.C:
			s.dispatchDue(execCtx, q, s.clock.Now())
		}
	}
}

// dispatchDue fires every monitor due at or before now and reschedules it
// relative to its previous fire time.
func (s *Scheduler) dispatchDue(ctx context.Context, q *fireQueue, now time.Time) {
	start := time.Now()
	fired := 0
	for it := q.popDue(now); it != nil; it = q.popDue(now) {
		fired++
		mTriggers.Inc()
		s.trigger(ctx, it.def)

		next := it.def.Schedule.Next(it.next)
		for !next.After(now) {
			mCoalesced.Inc()
			s.log.Debug("missed trigger coalesced", zap.String("monitor", it.def.ID), zap.Time("at", next))
			next = it.def.Schedule.Next(next)
		}
		q.schedule(it.def, next)
	}
	if fired > 0 {
		mLoopDur.Observe(time.Since(start).Seconds())
	}
}

// trigger starts def, queues it behind the concurrency ceiling or skips it.
// It never blocks.
func (s *Scheduler) trigger(ctx context.Context, def *monitor.Definition) {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return
	}
	if _, busy := s.inflight[def.ID]; busy {
		s.mu.Unlock()
		mCoalesced.Inc()
		s.log.Debug("trigger coalesced, previous run still in flight", zap.String("monitor", def.ID))
		return
	}
	if s.sem.TryAcquire(1) {
		s.inflight[def.ID] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()
		go s.worker(ctx, def)
		return
	}
	if len(s.pending) >= s.opts.QueueSize {
		s.mu.Unlock()
		mQueueDropped.Inc()
		s.log.Warn("pending queue full, trigger dropped",
			zap.String("monitor", def.ID), zap.Int("queue_size", s.opts.QueueSize))
		return
	}
	s.inflight[def.ID] = struct{}{}
	s.pending = append(s.pending, def)
	mQueueDepth.Set(float64(len(s.pending)))
	s.mu.Unlock()
}

// worker holds one execution slot and keeps it while pending triggers remain.
func (s *Scheduler) worker(ctx context.Context, def *monitor.Definition) {
	defer s.wg.Done()
	for def != nil {
		res := s.run(ctx, def)
		def = s.finish(def, res)
	}
}

func (s *Scheduler) run(ctx context.Context, def *monitor.Definition) monitor.CheckResult {
	s.mu.Lock()
	if _, dup := s.running[def.ID]; dup {
		obs.Invariant(s.log, "single_inflight", "monitor %q started while already running", def.ID)
	}
	s.running[def.ID] = struct{}{}
	mInflight.Set(float64(len(s.running)))
	s.mu.Unlock()

	ctx, span := s.tr.Start(ctx, "scheduler.dispatch", trace.WithAttributes(
		attribute.String("monitor.id", def.ID),
		attribute.String("monitor.type", string(def.Type)),
	))
	defer span.End()
	return s.exec.Execute(ctx, def)
}

// finish publishes res and hands the slot to the next pending trigger, if any.
func (s *Scheduler) finish(def *monitor.Definition, res monitor.CheckResult) *monitor.Definition {
	s.mu.Lock()
	abandoned := s.abandoned
	s.mu.Unlock()
	if abandoned {
		s.log.Debug("result of abandoned execution discarded", zap.String("monitor", def.ID))
	} else {
		s.store.Apply(res)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, def.ID)
	delete(s.inflight, def.ID)
	mInflight.Set(float64(len(s.running)))
	if s.stopping || len(s.pending) == 0 {
		s.sem.Release(1)
		return nil
	}
	next := s.pending[0]
	s.pending[0] = nil
	s.pending = s.pending[1:]
	mQueueDepth.Set(float64(len(s.pending)))
	return next
}

// rebuild aligns the fire queue with the current registry. Monitors whose
// schedule expression did not change keep their next fire time.
func (s *Scheduler) rebuild(q *fireQueue, now time.Time) {
	prev := q.byID
	*q = *newFireQueue()

	keep := make(map[string]struct{})
	defs := make(map[string]*monitor.Definition)
	for _, d := range s.src.Enabled() {
		keep[d.ID] = struct{}{}
		defs[d.ID] = d
		s.store.Track(d.ID)
		if it, ok := prev[d.ID]; ok && it.def.ScheduleExpr == d.ScheduleExpr {
			q.schedule(d, it.next)
			continue
		}
		q.schedule(d, d.Schedule.Next(now))
	}
	s.store.Retain(keep)

	s.mu.Lock()
	kept := s.pending[:0]
	for _, d := range s.pending {
		if nd, ok := defs[d.ID]; ok {
			kept = append(kept, nd)
			continue
		}
		delete(s.inflight, d.ID)
	}
	s.pending = kept
	mQueueDepth.Set(float64(len(s.pending)))
	s.mu.Unlock()

	s.log.Info("schedule built", zap.Int("monitors", q.Len()))
}

func (s *Scheduler) shutdown(cancelExec context.CancelFunc) {
	s.mu.Lock()
	s.stopping = true
	for _, d := range s.pending {
		delete(s.inflight, d.ID)
	}
	discarded := len(s.pending)
	s.pending = nil
	mQueueDepth.Set(0)
	s.mu.Unlock()

	cancelExec()
	s.log.Info("scheduler stopping", zap.Int("pending_discarded", discarded))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	grace := time.NewTimer(s.opts.ShutdownGrace)
	defer grace.Stop()
	select {
	case <-done:
		s.log.Info("scheduler stopped")
	case <-grace.C:
		s.mu.Lock()
		s.abandoned = true
		n := len(s.running)
		s.mu.Unlock()
		mAbandoned.Add(float64(n))
		s.log.Warn("shutdown grace expired, abandoning executions", zap.Int("running", n))
	}
}

// InFlight reports whether id is running or queued.
func (s *Scheduler) InFlight(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[id]
	return ok
}
