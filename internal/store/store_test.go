package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NordCoder/pingerus-agent/internal/domain/monitor"
)

type thresholds map[string][2]int

func (t thresholds) Thresholds(id string) (int, int, bool) {
	v, ok := t[id]
	return v[0], v[1], ok
}

var t0 = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func result(id string, i int, st monitor.Status) monitor.CheckResult {
	start := t0.Add(time.Duration(i) * time.Minute)
	r := monitor.CheckResult{MonitorID: id, RunID: fmt.Sprintf("run-%d", i), Start: start, End: start.Add(50 * time.Millisecond), Status: st, Attempts: 1}
	if st == monitor.StatusFail {
		r.ErrorKind = monitor.ErrUnexpectedStatus
		r.Message = "status 503"
	}
	return r
}

func TestApply_FailureThresholdScenario(t *testing.T) {
	s := New(Options{HistorySize: 10, Policy: thresholds{"web": {2, 1}}})
	var got []monitor.Transition
	s.OnTransition(func(tr monitor.Transition) { got = append(got, tr) })

	s.Track("web")
	st, ok := s.Snapshot("web")
	require.True(t, ok)
	assert.Equal(t, monitor.StatusUnknown, st.Status)

	s.Apply(result("web", 0, monitor.StatusFail))
	st, _ = s.Snapshot("web")
	assert.Equal(t, monitor.StatusUnknown, st.Status)
	assert.Equal(t, 1, st.ConsecutiveFailures)

	s.Apply(result("web", 1, monitor.StatusFail))
	st, _ = s.Snapshot("web")
	assert.Equal(t, monitor.StatusFail, st.Status)
	assert.Equal(t, 2, st.ConsecutiveFailures)
	assert.Equal(t, t0.Add(time.Minute+50*time.Millisecond), st.LastFailure)

	s.Apply(result("web", 2, monitor.StatusOK))
	st, _ = s.Snapshot("web")
	assert.Equal(t, monitor.StatusOK, st.Status)
	assert.Equal(t, 0, st.ConsecutiveFailures)
	assert.Equal(t, 1, st.ConsecutiveSuccesses)
	assert.Len(t, st.History, 3)

	want := []monitor.Transition{
		{MonitorID: "web", From: monitor.StatusUnknown, To: monitor.StatusFail, At: t0.Add(time.Minute + 50*time.Millisecond), Message: "status 503"},
		{MonitorID: "web", From: monitor.StatusFail, To: monitor.StatusOK, At: t0.Add(2*time.Minute + 50*time.Millisecond)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("transitions mismatch (-want +got):\n%s", diff)
	}
}

func TestApply_RecoveryThreshold(t *testing.T) {
	s := New(Options{HistorySize: 10, Policy: thresholds{"db": {1, 3}}})

	s.Apply(result("db", 0, monitor.StatusFail))
	for i := 1; i <= 2; i++ {
		s.Apply(result("db", i, monitor.StatusOK))
		st, _ := s.Snapshot("db")
		assert.Equal(t, monitor.StatusFail, st.Status, "after %d successes", i)
	}
	s.Apply(result("db", 3, monitor.StatusOK))
	st, _ := s.Snapshot("db")
	assert.Equal(t, monitor.StatusOK, st.Status)

	// a single failure with threshold 1 flips straight back
	s.Apply(result("db", 4, monitor.StatusFail))
	st, _ = s.Snapshot("db")
	assert.Equal(t, monitor.StatusFail, st.Status)
}

func TestApply_OkBeforeThresholdKeepsOk(t *testing.T) {
	s := New(Options{HistorySize: 5, Policy: thresholds{"a": {3, 1}}})
	s.Apply(result("a", 0, monitor.StatusOK))
	s.Apply(result("a", 1, monitor.StatusFail))
	s.Apply(result("a", 2, monitor.StatusFail))
	st, _ := s.Snapshot("a")
	assert.Equal(t, monitor.StatusOK, st.Status)
	assert.Equal(t, 2, st.ConsecutiveFailures)
	s.Apply(result("a", 3, monitor.StatusFail))
	st, _ = s.Snapshot("a")
	assert.Equal(t, monitor.StatusFail, st.Status)
}

func TestApply_WarnIsImmediate(t *testing.T) {
	s := New(Options{HistorySize: 5, Policy: thresholds{"cert": {5, 5}}})
	s.Apply(result("cert", 0, monitor.StatusWarn))
	st, _ := s.Snapshot("cert")
	assert.Equal(t, monitor.StatusWarn, st.Status)
	assert.Zero(t, st.ConsecutiveFailures)
	assert.Zero(t, st.ConsecutiveSuccesses)
}

func TestApply_CancelledDoesNotCount(t *testing.T) {
	s := New(Options{HistorySize: 5, Policy: thresholds{"a": {2, 1}}})
	s.Apply(result("a", 0, monitor.StatusFail))
	before, _ := s.Snapshot("a")

	s.Apply(result("a", 1, monitor.StatusCancelled))
	after, _ := s.Snapshot("a")
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, 1, after.ConsecutiveFailures)
	assert.Equal(t, before.LastChecked, after.LastChecked)
	assert.Len(t, after.History, 2)

	s.Apply(result("a", 2, monitor.StatusFail))
	after, _ = s.Snapshot("a")
	assert.Equal(t, monitor.StatusFail, after.Status)
}

func TestApply_HistoryBounded(t *testing.T) {
	s := New(Options{HistorySize: 4})
	for i := 0; i < 11; i++ {
		s.Apply(result("a", i, monitor.StatusOK))
		st, _ := s.Snapshot("a")
		require.LessOrEqual(t, len(st.History), 4)
	}
	h, ok := s.History("a", 0)
	require.True(t, ok)
	require.Len(t, h, 4)
	assert.Equal(t, "run-7", h[0].RunID)
	assert.Equal(t, "run-10", h[3].RunID)

	h, _ = s.History("a", 2)
	assert.Equal(t, []string{"run-9", "run-10"}, []string{h[0].RunID, h[1].RunID})
}

func TestApply_DiscardsUnconfigured(t *testing.T) {
	s := New(Options{HistorySize: 4, Policy: thresholds{}})
	s.Apply(result("gone", 0, monitor.StatusFail))
	_, ok := s.Snapshot("gone")
	assert.False(t, ok)
}

func TestSnapshot_IsACopy(t *testing.T) {
	s := New(Options{HistorySize: 4})
	s.Apply(result("a", 0, monitor.StatusOK))
	st, _ := s.Snapshot("a")
	st.History[0].Message = "mutated"
	st.Status = monitor.StatusFail

	again, _ := s.Snapshot("a")
	assert.Equal(t, monitor.StatusOK, again.Status)
	assert.Empty(t, again.History[0].Message)
}

func TestRetainAndForget(t *testing.T) {
	s := New(Options{HistorySize: 2})
	for _, id := range []string{"a", "b", "c"} {
		s.Track(id)
	}
	s.Retain(map[string]struct{}{"a": {}, "c": {}})
	all := s.SnapshotAll(false)
	assert.Len(t, all, 2)
	assert.Contains(t, all, "a")
	assert.Contains(t, all, "c")

	s.Forget("a")
	_, ok := s.Snapshot("a")
	assert.False(t, ok)
}

func TestApply_ConcurrentMonitors(t *testing.T) {
	s := New(Options{HistorySize: 8})
	var wg sync.WaitGroup
	for m := 0; m < 8; m++ {
		id := fmt.Sprintf("m%d", m)
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				s.Apply(result(id, i, monitor.StatusOK))
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				s.SnapshotAll(true)
			}
		}()
	}
	wg.Wait()

	all := s.SnapshotAll(true)
	require.Len(t, all, 8)
	for id, st := range all {
		assert.Equal(t, 200, st.ConsecutiveSuccesses, id)
		assert.Len(t, st.History, 8, id)
	}
}
