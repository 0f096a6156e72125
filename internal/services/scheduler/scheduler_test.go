package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/NordCoder/pingerus-agent/internal/domain/monitor"
	"github.com/NordCoder/pingerus-agent/internal/schedule"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fireOnce fires at first and then only every hour.
type fireOnce struct{ first time.Time }

func (f fireOnce) Next(t time.Time) time.Time {
	if t.Before(f.first) {
		return f.first
	}
	return t.Add(time.Hour)
}

type fakeSource struct {
	mu      sync.Mutex
	defs    []*monitor.Definition
	changed chan struct{}
}

func newSource(defs ...*monitor.Definition) *fakeSource {
	return &fakeSource{defs: defs, changed: make(chan struct{}, 1)}
}

func (f *fakeSource) Enabled() []*monitor.Definition {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*monitor.Definition(nil), f.defs...)
}

func (f *fakeSource) Changed() <-chan struct{} { return f.changed }

func (f *fakeSource) set(defs ...*monitor.Definition) {
	f.mu.Lock()
	f.defs = defs
	f.mu.Unlock()
	f.changed <- struct{}{}
}

type fakeStore struct {
	mu      sync.Mutex
	results []monitor.CheckResult
	tracked map[string]bool
}

func newStore() *fakeStore { return &fakeStore{tracked: map[string]bool{}} }

func (f *fakeStore) Apply(r monitor.CheckResult) {
	f.mu.Lock()
	f.results = append(f.results, r)
	f.mu.Unlock()
}

func (f *fakeStore) Track(id string) {
	f.mu.Lock()
	f.tracked[id] = true
	f.mu.Unlock()
}

func (f *fakeStore) Retain(keep map[string]struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id := range f.tracked {
		if _, ok := keep[id]; !ok {
			delete(f.tracked, id)
		}
	}
}

func (f *fakeStore) count(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.results {
		if id == "" || r.MonitorID == id {
			n++
		}
	}
	return n
}

func (f *fakeStore) all() []monitor.CheckResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]monitor.CheckResult(nil), f.results...)
}

// fakeExec records concurrency and holds every execution for delay.
type fakeExec struct {
	delay       time.Duration
	ignoreCtx   bool
	mu          sync.Mutex
	cur, peak   int
	perID       map[string]int
	peakPerID   int
	calls       map[string]int
	startedOnce chan struct{}
	once        sync.Once
}

func newExec(delay time.Duration) *fakeExec {
	return &fakeExec{delay: delay, perID: map[string]int{}, calls: map[string]int{}, startedOnce: make(chan struct{})}
}

func (f *fakeExec) Execute(ctx context.Context, def *monitor.Definition) monitor.CheckResult {
	start := time.Now()
	f.mu.Lock()
	f.cur++
	f.peak = max(f.peak, f.cur)
	f.perID[def.ID]++
	f.peakPerID = max(f.peakPerID, f.perID[def.ID])
	f.calls[def.ID]++
	f.mu.Unlock()
	f.once.Do(func() { close(f.startedOnce) })

	status := monitor.StatusOK
	if f.ignoreCtx {
		time.Sleep(f.delay)
	} else {
		select {
		case <-ctx.Done():
			status = monitor.StatusCancelled
		case <-time.After(f.delay):
		}
	}

	f.mu.Lock()
	f.cur--
	f.perID[def.ID]--
	f.mu.Unlock()
	return monitor.CheckResult{MonitorID: def.ID, Start: start, End: time.Now(), Status: status}
}

func (f *fakeExec) stats() (peak, peakPerID int, calls map[string]int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := make(map[string]int, len(f.calls))
	for k, v := range f.calls {
		c[k] = v
	}
	return f.peak, f.peakPerID, c
}

func every(id string, d time.Duration) *monitor.Definition {
	return &monitor.Definition{ID: id, Type: monitor.TypeTCP, ScheduleExpr: d.String(), Schedule: schedule.Every(d), Timeout: time.Second, Retries: 1, Enabled: true}
}

func once(id string, at time.Time) *monitor.Definition {
	return &monitor.Definition{ID: id, Type: monitor.TypeTCP, ScheduleExpr: "once", Schedule: fireOnce{first: at}, Timeout: time.Second, Retries: 1, Enabled: true}
}

func start(t *testing.T, s *Scheduler) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()
	return func() {
		cancel()
		select {
		case err := <-errCh:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatalf("scheduler did not stop")
		}
	}
}

func TestScheduler_FiresAndApplies(t *testing.T) {
	st := newStore()
	ex := newExec(0)
	s := New(zaptest.NewLogger(t), newSource(every("a", 30*time.Millisecond)), ex, st, Options{MaxConcurrent: 2, QueueSize: 4, ShutdownGrace: time.Second})

	stop := start(t, s)
	require.Eventually(t, func() bool { return st.count("a") >= 3 }, 2*time.Second, 5*time.Millisecond)
	stop()

	st.mu.Lock()
	assert.True(t, st.tracked["a"])
	st.mu.Unlock()
}

func TestScheduler_SameMonitorNeverOverlaps(t *testing.T) {
	st := newStore()
	ex := newExec(150 * time.Millisecond)
	s := New(zaptest.NewLogger(t), newSource(every("slow", 10*time.Millisecond)), ex, st, Options{MaxConcurrent: 4, QueueSize: 4, ShutdownGrace: time.Second})

	coalesced := testutil.ToFloat64(mCoalesced)
	stop := start(t, s)
	time.Sleep(400 * time.Millisecond)
	stop()

	_, peakPerID, calls := ex.stats()
	assert.Equal(t, 1, peakPerID)
	// roughly 400/150 runs; the remaining ~35 triggers were dropped, not queued
	assert.LessOrEqual(t, calls["slow"], 4)
	assert.Greater(t, testutil.ToFloat64(mCoalesced)-coalesced, 10.0)
}

func TestScheduler_CeilingDropsOverflow(t *testing.T) {
	st := newStore()
	ex := newExec(200 * time.Millisecond)
	at := time.Now().Add(50 * time.Millisecond)
	src := newSource(once("m1", at), once("m2", at), once("m3", at), once("m4", at))
	s := New(zaptest.NewLogger(t), src, ex, st, Options{MaxConcurrent: 2, QueueSize: 0, ShutdownGrace: time.Second})

	dropped := testutil.ToFloat64(mQueueDropped)
	stop := start(t, s)
	<-ex.startedOnce
	time.Sleep(350 * time.Millisecond)
	stop()

	peak, _, calls := ex.stats()
	assert.Equal(t, 2, peak)
	// ties are broken by id, so the first two ids win the slots
	assert.Equal(t, map[string]int{"m1": 1, "m2": 1}, calls)
	assert.Equal(t, 2.0, testutil.ToFloat64(mQueueDropped)-dropped)
}

func TestScheduler_CeilingQueuesWithinBound(t *testing.T) {
	st := newStore()
	ex := newExec(100 * time.Millisecond)
	at := time.Now().Add(50 * time.Millisecond)
	src := newSource(once("m1", at), once("m2", at), once("m3", at), once("m4", at))
	s := New(zaptest.NewLogger(t), src, ex, st, Options{MaxConcurrent: 2, QueueSize: 2, ShutdownGrace: time.Second})

	stop := start(t, s)
	require.Eventually(t, func() bool { return st.count("") == 4 }, 2*time.Second, 5*time.Millisecond)
	stop()

	peak, _, calls := ex.stats()
	assert.Equal(t, 2, peak)
	assert.Len(t, calls, 4)
}

func TestScheduler_ShutdownCancelsInflight(t *testing.T) {
	st := newStore()
	ex := newExec(time.Minute)
	s := New(zaptest.NewLogger(t), newSource(every("a", 10*time.Millisecond)), ex, st, Options{MaxConcurrent: 1, QueueSize: 1, ShutdownGrace: 2 * time.Second})

	stop := start(t, s)
	<-ex.startedOnce
	began := time.Now()
	stop()
	assert.Less(t, time.Since(began), time.Second)

	res := st.all()
	require.Len(t, res, 1)
	assert.Equal(t, monitor.StatusCancelled, res[0].Status)
}

func TestScheduler_ShutdownGraceAbandons(t *testing.T) {
	st := newStore()
	ex := newExec(300 * time.Millisecond)
	ex.ignoreCtx = true
	s := New(zaptest.NewLogger(t), newSource(every("stuck", 10*time.Millisecond)), ex, st, Options{MaxConcurrent: 1, QueueSize: 1, ShutdownGrace: 50 * time.Millisecond})

	abandoned := testutil.ToFloat64(mAbandoned)
	stop := start(t, s)
	<-ex.startedOnce
	began := time.Now()
	stop()
	assert.Less(t, time.Since(began), 250*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(mAbandoned)-abandoned)

	// the late result is discarded once it arrives
	s.wg.Wait()
	assert.Zero(t, st.count("stuck"))
}

func TestScheduler_Reload(t *testing.T) {
	st := newStore()
	ex := newExec(0)
	src := newSource(every("old", 20*time.Millisecond))
	s := New(zaptest.NewLogger(t), src, ex, st, Options{MaxConcurrent: 2, QueueSize: 2, ShutdownGrace: time.Second})

	stop := start(t, s)
	require.Eventually(t, func() bool { return st.count("old") >= 1 }, time.Second, 5*time.Millisecond)

	src.set(every("new", 20*time.Millisecond))
	require.Eventually(t, func() bool { return st.count("new") >= 2 }, time.Second, 5*time.Millisecond)
	before := st.count("old")
	time.Sleep(100 * time.Millisecond)
	stop()

	assert.LessOrEqual(t, st.count("old"), before+1)
	st.mu.Lock()
	assert.Equal(t, map[string]bool{"new": true}, st.tracked)
	st.mu.Unlock()
}

func TestDispatchDue_CatchesUpWithoutDrift(t *testing.T) {
	st := newStore()
	ex := newExec(0)
	s := New(zaptest.NewLogger(t), newSource(), ex, st, Options{MaxConcurrent: 1, QueueSize: 0, ShutdownGrace: time.Second})

	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q := newFireQueue()
	q.schedule(every("a", 10*time.Second), t0)

	coalesced := testutil.ToFloat64(mCoalesced)
	s.dispatchDue(context.Background(), q, t0.Add(35*time.Second))
	s.wg.Wait()

	require.Equal(t, 1, q.Len())
	assert.Equal(t, t0.Add(40*time.Second), q.peek().next)
	assert.Equal(t, 3.0, testutil.ToFloat64(mCoalesced)-coalesced)
	assert.Equal(t, 1, st.count("a"))
}

func TestFireQueue_TiesByID(t *testing.T) {
	q := newFireQueue()
	t0 := time.Unix(100, 0)
	for _, id := range []string{"c", "a", "d", "b"} {
		q.schedule(every(id, time.Second), t0)
	}
	q.schedule(every("z", time.Second), t0.Add(-time.Second))

	var order []string
	for it := q.popDue(t0); it != nil; it = q.popDue(t0) {
		order = append(order, it.def.ID)
	}
	assert.Equal(t, []string{"z", "a", "b", "c", "d"}, order)
	assert.Nil(t, q.popDue(t0))
}

func TestScheduler_ManyMonitors(t *testing.T) {
	st := newStore()
	ex := newExec(5 * time.Millisecond)
	var defs []*monitor.Definition
	for i := 0; i < 20; i++ {
		defs = append(defs, every(fmt.Sprintf("m%02d", i), 25*time.Millisecond))
	}
	s := New(zaptest.NewLogger(t), newSource(defs...), ex, st, Options{MaxConcurrent: 3, QueueSize: 32, ShutdownGrace: time.Second})

	stop := start(t, s)
	require.Eventually(t, func() bool {
		for _, d := range defs {
			if st.count(d.ID) < 2 {
				return false
			}
		}
		return true
	}, 3*time.Second, 10*time.Millisecond)
	stop()

	peak, peakPerID, _ := ex.stats()
	assert.LessOrEqual(t, peak, 3)
	assert.Equal(t, 1, peakPerID)
}
