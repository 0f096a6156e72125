package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"

	"github.com/NordCoder/pingerus-agent/internal/domain/monitor"
	"github.com/NordCoder/pingerus-agent/internal/schedule"
)

// Registry is an immutable, validated snapshot of monitor definitions.
type Registry struct {
	defs map[string]*monitor.Definition
	ids  []string
}

// Load validates entries and builds a Registry. On failure the returned error
// is a *ConfigError listing every problem found.
func Load(entries []Entry) (*Registry, error) {
	var errs error
	r := &Registry{defs: make(map[string]*monitor.Definition, len(entries))}

	for i, e := range entries {
		e.ID = strings.TrimSpace(e.ID)
		if e.ID == "" {
			errs = multierr.Append(errs, fieldErr("", fmt.Sprintf("monitors[%d].id", i), ErrMissingID))
			continue
		}
		if _, dup := r.defs[e.ID]; dup {
			errs = multierr.Append(errs, fieldErr(e.ID, "id", ErrDuplicateID))
			continue
		}
		def, problems := build(e)
		for _, p := range problems {
			errs = multierr.Append(errs, p)
		}
		r.defs[e.ID] = def
		r.ids = append(r.ids, e.ID)
	}
	if errs != nil {
		return nil, &ConfigError{err: errs}
	}
	sort.Strings(r.ids)
	return r, nil
}

func build(e Entry) (*monitor.Definition, []error) {
	var errs []error
	def := &monitor.Definition{
		ID:                e.ID,
		Type:              monitor.Type(strings.ToLower(strings.TrimSpace(e.Type))),
		ScheduleExpr:      strings.TrimSpace(e.Schedule),
		Timeout:           time.Duration(e.TimeoutMs) * time.Millisecond,
		Retries:           e.Retries,
		FailureThreshold:  e.FailureThreshold,
		RecoveryThreshold: e.RecoveryThreshold,
		Enabled:           e.Enabled == nil || *e.Enabled,
	}

	sched, err := schedule.Parse(e.Schedule)
	if err != nil {
		errs = append(errs, fieldErr(e.ID, "schedule", fmt.Errorf("%w: %v", ErrBadSchedule, err)))
	}
	def.Schedule = sched

	if e.TimeoutMs <= 0 {
		errs = append(errs, fieldErr(e.ID, "timeoutMs", fmt.Errorf("%w: got %d", ErrNonPositive, e.TimeoutMs)))
	}
	if e.Retries <= 0 {
		errs = append(errs, fieldErr(e.ID, "retries", fmt.Errorf("%w: got %d", ErrNonPositive, e.Retries)))
	}
	if e.FailureThreshold < 0 {
		errs = append(errs, fieldErr(e.ID, "failureThreshold", ErrBadThreshold))
	}
	if e.RecoveryThreshold < 0 {
		errs = append(errs, fieldErr(e.ID, "recoveryThreshold", ErrBadThreshold))
	}
	if def.FailureThreshold == 0 {
		def.FailureThreshold = 1
	}
	if def.RecoveryThreshold == 0 {
		def.RecoveryThreshold = 1
	}

	if !def.Type.Valid() {
		errs = append(errs, fieldErr(e.ID, "type", fmt.Errorf("%w: %q", ErrUnknownType, e.Type)))
		return def, errs
	}
	errs = append(errs, buildTarget(e, def)...)
	return def, errs
}

// Get returns the definition registered under id.
func (r *Registry) Get(id string) (*monitor.Definition, bool) {
	if r == nil {
		return nil, false
	}
	d, ok := r.defs[id]
	return d, ok
}

// IDs returns every monitor id in ascending order.
func (r *Registry) IDs() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.ids...)
}

// Enabled returns the enabled definitions ordered by id.
func (r *Registry) Enabled() []*monitor.Definition {
	if r == nil {
		return nil
	}
	out := make([]*monitor.Definition, 0, len(r.ids))
	for _, id := range r.ids {
		if d := r.defs[id]; d.Enabled {
			out = append(out, d)
		}
	}
	return out
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.ids)
}

// Holder publishes the current Registry. Readers always observe a complete
// snapshot; Reload swaps the pointer only after the new one validated.
type Holder struct {
	cur     atomic.Pointer[Registry]
	changed chan struct{}
}

func NewHolder(r *Registry) *Holder {
	h := &Holder{changed: make(chan struct{}, 1)}
	h.cur.Store(r)
	return h
}

func (h *Holder) Current() *Registry { return h.cur.Load() }

// Reload validates entries and, on success, replaces the current snapshot.
// The previous snapshot stays in place when validation fails.
func (h *Holder) Reload(entries []Entry) (*Registry, error) {
	next, err := Load(entries)
	if err != nil {
		return nil, err
	}
	h.Swap(next)
	return next, nil
}

// Swap publishes r and wakes the subscriber of Changed.
func (h *Holder) Swap(r *Registry) {
	h.cur.Store(r)
	select {
	case h.changed <- struct{}{}:
	default:
	}
}

// Changed fires after every Swap. Bursts of swaps collapse into one signal.
func (h *Holder) Changed() <-chan struct{} { return h.changed }

// Thresholds reports the hysteresis thresholds of a monitor in the current
// snapshot.
func (h *Holder) Thresholds(id string) (failure, recovery int, ok bool) {
	d, ok := h.Current().Get(id)
	if !ok {
		return 0, 0, false
	}
	return d.FailureThreshold, d.RecoveryThreshold, true
}

// Enabled returns the enabled definitions of the current snapshot.
func (h *Holder) Enabled() []*monitor.Definition { return h.Current().Enabled() }

// Known reports whether id is part of the current snapshot.
func (h *Holder) Known(id string) bool {
	_, ok := h.Current().Get(id)
	return ok
}
