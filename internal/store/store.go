package store

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/NordCoder/pingerus-agent/internal/domain/monitor"
	"github.com/NordCoder/pingerus-agent/internal/obs"
)

var (
	resultsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "store_results_total",
		Help: "Check results reconciled into monitor state, by result status.",
	}, []string{"status"})
	resultsDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "store_results_discarded_total",
		Help: "Results dropped because their monitor is no longer configured.",
	})
	transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "store_transitions_total",
		Help: "Published status changes, by new status.",
	}, []string{"to"})
	tracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "store_monitors",
		Help: "Monitors with state in the store.",
	})
)

// Policy supplies per-monitor hysteresis thresholds. ok is false for monitors
// that are not configured any more; their results are discarded.
type Policy interface {
	Thresholds(id string) (failure, recovery int, ok bool)
}

type Options struct {
	HistorySize int
	Policy      Policy
	Logger      *zap.Logger
}

// Store owns every monitor's reconciled state. State is partitioned per
// monitor: writers to one id never wait on readers or writers of another.
type Store struct {
	entries     sync.Map // id -> *entry
	historySize int
	policy      Policy
	log         *zap.Logger

	hookMu sync.RWMutex
	hooks  []func(monitor.Transition)
}

type entry struct {
	mu      sync.RWMutex
	state   monitor.State
	history ring
}

func New(opts Options) *Store {
	if opts.HistorySize < 1 {
		opts.HistorySize = 1
	}
	return &Store{
		historySize: opts.HistorySize,
		policy:      opts.Policy,
		log:         obs.Component(opts.Logger, "store"),
	}
}

// OnTransition registers fn to be called after every published status change.
// Hooks run on the applying goroutine, outside any store lock.
func (s *Store) OnTransition(fn func(monitor.Transition)) {
	s.hookMu.Lock()
	s.hooks = append(s.hooks, fn)
	s.hookMu.Unlock()
}

func (s *Store) load(id string) *entry {
	if v, ok := s.entries.Load(id); ok {
		return v.(*entry)
	}
	e := &entry{state: monitor.State{ID: id, Status: monitor.StatusUnknown}, history: newRing(s.historySize)}
	v, loaded := s.entries.LoadOrStore(id, e)
	if !loaded {
		tracked.Inc()
	}
	return v.(*entry)
}

// Track makes sure id has state, creating it as Unknown.
func (s *Store) Track(id string) { s.load(id) }

// Forget drops the state of id.
func (s *Store) Forget(id string) {
	if _, ok := s.entries.LoadAndDelete(id); ok {
		tracked.Dec()
	}
}

// Retain drops the state of every monitor not in keep.
func (s *Store) Retain(keep map[string]struct{}) {
	s.entries.Range(func(k, _ any) bool {
		if _, ok := keep[k.(string)]; !ok {
			s.Forget(k.(string))
		}
		return true
	})
}

// Apply reconciles one check result into its monitor's state. It is the only
// way state changes.
func (s *Store) Apply(res monitor.CheckResult) {
	if res.MonitorID == "" {
		obs.Invariant(s.log, "result_without_monitor", "run %s produced a result with no monitor id", res.RunID)
		return
	}
	failTh, recTh := 1, 1
	if s.policy != nil {
		f, r, ok := s.policy.Thresholds(res.MonitorID)
		if !ok {
			resultsDiscarded.Inc()
			s.log.Debug("result for unconfigured monitor discarded", zap.String("monitor", res.MonitorID))
			return
		}
		failTh, recTh = f, r
	}
	resultsApplied.WithLabelValues(string(res.Status)).Inc()

	e := s.load(res.MonitorID)
	e.mu.Lock()
	from := e.state.Status
	reconcile(&e.state, res, failTh, recTh)
	e.history.push(res)
	to := e.state.Status
	msg := e.state.Message
	e.mu.Unlock()

	if from == to {
		return
	}
	tr := monitor.Transition{MonitorID: res.MonitorID, From: from, To: to, At: res.End, Message: msg}
	transitions.WithLabelValues(string(to)).Inc()
	s.log.Info("status changed",
		zap.String("monitor", tr.MonitorID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("message", msg),
	)
	s.hookMu.RLock()
	hooks := s.hooks
	s.hookMu.RUnlock()
	for _, h := range hooks {
		h(tr)
	}
}

// reconcile applies hysteresis. Ok and Warn leave Unknown at once; Fail is
// only published after failTh consecutive failures and left after recTh
// consecutive successes. Cancelled results touch nothing.
func reconcile(st *monitor.State, res monitor.CheckResult, failTh, recTh int) {
	if failTh < 1 {
		failTh = 1
	}
	if recTh < 1 {
		recTh = 1
	}
	switch res.Status {
	case monitor.StatusCancelled:
		return
	case monitor.StatusOK:
		st.ConsecutiveSuccesses++
		st.ConsecutiveFailures = 0
		st.LastSuccess = res.End
		if st.Status != monitor.StatusFail || st.ConsecutiveSuccesses >= recTh {
			st.Status = monitor.StatusOK
		}
	case monitor.StatusWarn:
		st.ConsecutiveSuccesses = 0
		st.ConsecutiveFailures = 0
		st.Status = monitor.StatusWarn
	case monitor.StatusFail:
		st.ConsecutiveFailures++
		st.ConsecutiveSuccesses = 0
		st.LastFailure = res.End
		if st.ConsecutiveFailures >= failTh {
			st.Status = monitor.StatusFail
		}
	default:
		return
	}
	st.LastChecked = res.End
	st.Message = res.Message
}

// Snapshot returns a copy of the state of id.
func (s *Store) Snapshot(id string) (monitor.State, bool) {
	v, ok := s.entries.Load(id)
	if !ok {
		return monitor.State{}, false
	}
	return v.(*entry).snapshot(true), true
}

// SnapshotAll copies the state of every tracked monitor. History is included
// only when withHistory is set.
func (s *Store) SnapshotAll(withHistory bool) map[string]monitor.State {
	out := make(map[string]monitor.State)
	s.entries.Range(func(k, v any) bool {
		out[k.(string)] = v.(*entry).snapshot(withHistory)
		return true
	})
	return out
}

// History returns up to limit of the most recent results of id, oldest first.
// limit <= 0 returns the whole bounded history.
func (s *Store) History(id string, limit int) ([]monitor.CheckResult, bool) {
	v, ok := s.entries.Load(id)
	if !ok {
		return nil, false
	}
	e := v.(*entry)
	e.mu.RLock()
	defer e.mu.RUnlock()
	h := e.history.slice()
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	return h, true
}

func (e *entry) snapshot(withHistory bool) monitor.State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st := e.state
	if withHistory {
		st.History = e.history.slice()
	}
	return st
}
