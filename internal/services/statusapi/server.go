package statusapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/NordCoder/pingerus-agent/internal/domain/monitor"
	"github.com/NordCoder/pingerus-agent/internal/obs"
	"github.com/NordCoder/pingerus-agent/internal/registry"
)

// StateReader is the read side of the result store.
type StateReader interface {
	Snapshot(id string) (monitor.State, bool)
	SnapshotAll(withHistory bool) map[string]monitor.State
	History(id string, limit int) ([]monitor.CheckResult, bool)
}

// Catalog exposes the current monitor definitions.
type Catalog interface {
	Current() *registry.Registry
}

type Server struct {
	log     *zap.Logger
	states  StateReader
	catalog Catalog
	health  func(context.Context) error
}

func New(log *zap.Logger, states StateReader, catalog Catalog, health func(context.Context) error) *Server {
	return &Server{log: obs.Component(log, "statusapi"), states: states, catalog: catalog, health: health}
}

// Router serves the read-only status endpoints plus /metrics and /healthz.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.recoverer)
	r.Use(s.accessLog)

	r.Get("/health", s.aggregate)
	r.Get("/health/{id}", s.detail)
	r.Get("/health/{id}/history", s.history)
	r.Get("/monitors", s.list)
	r.Get("/healthz", obs.HealthzHandler(s.health))
	r.Handle("/metrics", obs.MetricsHandler())
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResp{Error: "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResp{Error: "method not allowed"})
	})
	return r
}

func (s *Server) aggregate(w http.ResponseWriter, _ *http.Request) {
	all := s.states.SnapshotAll(false)
	writeJSON(w, http.StatusOK, aggregateResp{Status: Aggregate(all), Monitors: len(all)})
}

// Aggregate is the worst published status across states; Unknown when empty.
func Aggregate(states map[string]monitor.State) monitor.Status {
	if len(states) == 0 {
		return monitor.StatusUnknown
	}
	worst := monitor.StatusOK
	for _, st := range states {
		if st.Status.Severity() > worst.Severity() {
			worst = st.Status
		}
	}
	return worst
}

// lookup returns the state of id, or a fresh Unknown state for configured
// monitors that have not been scheduled yet.
func (s *Server) lookup(id string) (monitor.State, monitor.Type, bool) {
	def, known := s.catalog.Current().Get(id)
	var typ monitor.Type
	if known {
		typ = def.Type
	}
	if st, ok := s.states.Snapshot(id); ok {
		return st, typ, true
	}
	if known {
		return monitor.State{ID: id, Status: monitor.StatusUnknown}, typ, true
	}
	return monitor.State{}, "", false
}

func (s *Server) detail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st, typ, ok := s.lookup(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResp{Error: "monitor not found"})
		return
	}
	writeJSON(w, http.StatusOK, toDetail(st, typ))
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorResp{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	h, ok := s.states.History(id, limit)
	if !ok {
		if _, _, known := s.lookup(id); !known {
			writeJSON(w, http.StatusNotFound, errorResp{Error: "monitor not found"})
			return
		}
	}
	writeJSON(w, http.StatusOK, toResults(h))
}

func (s *Server) list(w http.ResponseWriter, _ *http.Request) {
	reg := s.catalog.Current()
	states := s.states.SnapshotAll(false)
	out := make([]listItem, 0, reg.Len())
	for _, id := range reg.IDs() {
		def, _ := reg.Get(id)
		it := listItem{ID: id, Type: def.Type, Enabled: def.Enabled, Schedule: def.ScheduleExpr, Status: monitor.StatusUnknown}
		if st, ok := states[id]; ok {
			it.Status = st.Status
			it.LastChecked = timePtr(st.LastChecked)
		}
		out = append(out, it)
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(b)
}

// recoverer turns a panicking handler into a bare 500. The panic value is
// logged, never sent to the client.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				obs.WithTrace(r.Context(), s.log).Error("handler panic",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
				writeJSON(w, http.StatusInternalServerError, errorResp{Error: "internal error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
