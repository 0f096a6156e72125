package monitor

import "time"

type Status string

const (
	StatusUnknown   Status = "Unknown"
	StatusOK        Status = "Ok"
	StatusWarn      Status = "Warn"
	StatusFail      Status = "Fail"
	StatusCancelled Status = "Cancelled"
)

// Severity orders published statuses for aggregation, worst is highest.
func (s Status) Severity() int {
	switch s {
	case StatusOK:
		return 0
	case StatusUnknown:
		return 1
	case StatusWarn:
		return 2
	case StatusFail:
		return 3
	default:
		return 1
	}
}

type ErrorKind string

const (
	ErrNone               ErrorKind = ""
	ErrTimeout            ErrorKind = "Timeout"
	ErrConnectionFailure  ErrorKind = "ConnectionFailure"
	ErrTLSFailure         ErrorKind = "TlsFailure"
	ErrUnexpectedStatus   ErrorKind = "UnexpectedStatus"
	ErrProcessNotFound    ErrorKind = "ProcessNotFound"
	ErrCommandNonZeroExit ErrorKind = "CommandNonZeroExit"
	ErrSpawnFailure       ErrorKind = "SpawnFailure"
	ErrThresholdExceeded  ErrorKind = "ThresholdExceeded"
)

// CheckResult is the outcome of one executor invocation.
type CheckResult struct {
	MonitorID string    `json:"monitorId"`
	RunID     string    `json:"runId"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Status    Status    `json:"status"`
	ErrorKind ErrorKind `json:"errorKind,omitempty"`
	Message   string    `json:"message,omitempty"`
	Attempts  int       `json:"attempts"`
}

func (r CheckResult) Latency() time.Duration { return r.End.Sub(r.Start) }

// State is a point-in-time copy of one monitor's reconciled state.
type State struct {
	ID                   string
	Status               Status
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	LastChecked          time.Time
	LastSuccess          time.Time
	LastFailure          time.Time
	Message              string
	History              []CheckResult
}

// Transition is emitted whenever the published status of a monitor changes.
type Transition struct {
	MonitorID string    `json:"monitorId"`
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	At        time.Time `json:"at"`
	Message   string    `json:"message,omitempty"`
}
