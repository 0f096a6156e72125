package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/NordCoder/pingerus-agent/internal/domain/monitor"
	"github.com/NordCoder/pingerus-agent/internal/registry"
	"github.com/NordCoder/pingerus-agent/internal/store"
)

func entry(id string, enabled bool) registry.Entry {
	return registry.Entry{
		ID: id, Type: "tcp", Schedule: "* * * * *", TimeoutMs: 500, Retries: 1, FailureThreshold: 1,
		Target: map[string]any{"host": "localhost", "port": 22}, Enabled: &enabled,
	}
}

type fixture struct {
	srv   *httptest.Server
	store *store.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg, err := registry.Load([]registry.Entry{entry("api", true), entry("db", true), entry("old", false)})
	require.NoError(t, err)
	h := registry.NewHolder(reg)
	st := store.New(store.Options{HistorySize: 5, Policy: h})
	st.Track("api")
	st.Track("db")

	srv := httptest.NewServer(New(zaptest.NewLogger(t), st, h, nil).Router())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, store: st}
}

func (f *fixture) get(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func res(id string, st monitor.Status, at time.Time) monitor.CheckResult {
	return monitor.CheckResult{MonitorID: id, RunID: "r", Start: at, End: at.Add(120 * time.Millisecond), Status: st, Message: "m", Attempts: 1}
}

func TestAggregate(t *testing.T) {
	f := newFixture(t)
	var agg map[string]any

	require.Equal(t, http.StatusOK, f.get(t, "/health", &agg))
	assert.Equal(t, "Unknown", agg["status"])
	assert.EqualValues(t, 2, agg["monitors"])

	now := time.Now()
	f.store.Apply(res("api", monitor.StatusOK, now))
	f.store.Apply(res("db", monitor.StatusOK, now))
	f.get(t, "/health", &agg)
	assert.Equal(t, "Ok", agg["status"])

	f.store.Apply(res("db", monitor.StatusWarn, now))
	f.get(t, "/health", &agg)
	assert.Equal(t, "Warn", agg["status"])

	f.store.Apply(res("api", monitor.StatusFail, now))
	f.get(t, "/health", &agg)
	assert.Equal(t, "Fail", agg["status"])
}

func TestAggregate_Empty(t *testing.T) {
	assert.Equal(t, monitor.StatusUnknown, Aggregate(nil))
}

func TestDetail(t *testing.T) {
	f := newFixture(t)
	at := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	f.store.Apply(res("api", monitor.StatusFail, at))

	var d detailResp
	require.Equal(t, http.StatusOK, f.get(t, "/health/api", &d))
	assert.Equal(t, "api", d.ID)
	assert.Equal(t, monitor.TypeTCP, d.Type)
	assert.Equal(t, monitor.StatusFail, d.Status)
	assert.Equal(t, 1, d.ConsecutiveFailures)
	require.NotNil(t, d.LastChecked)
	assert.True(t, at.Add(120*time.Millisecond).Equal(*d.LastChecked))
	require.Len(t, d.History, 1)
	assert.EqualValues(t, 120, d.History[0].LatencyMs)

	var unk detailResp
	require.Equal(t, http.StatusOK, f.get(t, "/health/old", &unk))
	assert.Equal(t, monitor.StatusUnknown, unk.Status)
	assert.Nil(t, unk.LastChecked)

	var e errorResp
	assert.Equal(t, http.StatusNotFound, f.get(t, "/health/nope", &e))
	assert.Equal(t, "monitor not found", e.Error)
}

func TestHistory(t *testing.T) {
	f := newFixture(t)
	t0 := time.Now()
	for i := 0; i < 8; i++ {
		f.store.Apply(res("db", monitor.StatusOK, t0.Add(time.Duration(i)*time.Second)))
	}

	var h []resultDTO
	require.Equal(t, http.StatusOK, f.get(t, "/health/db/history", &h))
	assert.Len(t, h, 5)

	require.Equal(t, http.StatusOK, f.get(t, "/health/db/history?limit=2", &h))
	require.Len(t, h, 2)
	assert.True(t, h[0].Start.Before(h[1].Start))

	var e errorResp
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/health/db/history?limit=x", &e))
	assert.Equal(t, http.StatusNotFound, f.get(t, "/health/nope/history", &e))

	var empty []resultDTO
	require.Equal(t, http.StatusOK, f.get(t, "/health/old/history", &empty))
	assert.Empty(t, empty)
}

func TestList(t *testing.T) {
	f := newFixture(t)
	f.store.Apply(res("db", monitor.StatusOK, time.Now()))

	var items []listItem
	require.Equal(t, http.StatusOK, f.get(t, "/monitors", &items))
	require.Len(t, items, 3)
	assert.Equal(t, []string{"api", "db", "old"}, []string{items[0].ID, items[1].ID, items[2].ID})
	assert.Equal(t, monitor.StatusOK, items[1].Status)
	assert.NotNil(t, items[1].LastChecked)
	assert.False(t, items[2].Enabled)
	assert.Equal(t, monitor.StatusUnknown, items[2].Status)
}

func TestHealthzAndMetrics(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthz_Unhealthy(t *testing.T) {
	reg, _ := registry.Load(nil)
	h := registry.NewHolder(reg)
	srv := httptest.NewServer(New(zaptest.NewLogger(t), store.New(store.Options{HistorySize: 1}), h,
		func(context.Context) error { return errors.New("scheduler stopped") }).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

type panicky struct{ StateReader }

func (panicky) SnapshotAll(bool) map[string]monitor.State { panic("boom: secret detail") }

func TestInternalErrorHidesDetail(t *testing.T) {
	reg, _ := registry.Load(nil)
	srv := httptest.NewServer(New(zaptest.NewLogger(t), panicky{}, registry.NewHolder(reg), nil).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "secret")
	assert.Contains(t, string(body), "internal error")
}
