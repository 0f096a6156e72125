package statusapi

import (
	"time"

	"github.com/NordCoder/pingerus-agent/internal/domain/monitor"
)

type aggregateResp struct {
	Status   monitor.Status `json:"status"`
	Monitors int            `json:"monitors"`
}

type resultDTO struct {
	MonitorID string            `json:"monitorId"`
	RunID     string            `json:"runId,omitempty"`
	Start     time.Time         `json:"start"`
	End       time.Time         `json:"end"`
	LatencyMs int64             `json:"latencyMs"`
	Status    monitor.Status    `json:"status"`
	ErrorKind monitor.ErrorKind `json:"errorKind,omitempty"`
	Message   string            `json:"message,omitempty"`
	Attempts  int               `json:"attempts"`
}

type detailResp struct {
	ID                   string         `json:"id"`
	Type                 monitor.Type   `json:"type,omitempty"`
	Status               monitor.Status `json:"status"`
	LastChecked          *time.Time     `json:"lastChecked"`
	LastSuccess          *time.Time     `json:"lastSuccess,omitempty"`
	LastFailure          *time.Time     `json:"lastFailure,omitempty"`
	ConsecutiveFailures  int            `json:"consecutiveFailures"`
	ConsecutiveSuccesses int            `json:"consecutiveSuccesses"`
	Message              string         `json:"message"`
	History              []resultDTO    `json:"history"`
}

type listItem struct {
	ID          string         `json:"id"`
	Type        monitor.Type   `json:"type"`
	Enabled     bool           `json:"enabled"`
	Schedule    string         `json:"schedule"`
	Status      monitor.Status `json:"status"`
	LastChecked *time.Time     `json:"lastChecked"`
}

type errorResp struct {
	Error string `json:"error"`
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func toResults(in []monitor.CheckResult) []resultDTO {
	out := make([]resultDTO, 0, len(in))
	for _, r := range in {
		out = append(out, resultDTO{
			MonitorID: r.MonitorID,
			RunID:     r.RunID,
			Start:     r.Start,
			End:       r.End,
			LatencyMs: r.Latency().Milliseconds(),
			Status:    r.Status,
			ErrorKind: r.ErrorKind,
			Message:   r.Message,
			Attempts:  r.Attempts,
		})
	}
	return out
}

func toDetail(st monitor.State, typ monitor.Type) detailResp {
	return detailResp{
		ID:                   st.ID,
		Type:                 typ,
		Status:               st.Status,
		LastChecked:          timePtr(st.LastChecked),
		LastSuccess:          timePtr(st.LastSuccess),
		LastFailure:          timePtr(st.LastFailure),
		ConsecutiveFailures:  st.ConsecutiveFailures,
		ConsecutiveSuccesses: st.ConsecutiveSuccesses,
		Message:              st.Message,
		History:              toResults(st.History),
	}
}
