package monitor

import (
	"regexp"
	"time"
)

type Type string

const (
	TypeHTTP        Type = "http"
	TypeTCP         Type = "tcp"
	TypeCommand     Type = "command"
	TypeCertificate Type = "certificate"
	TypeProcess     Type = "process"
	TypeLoadAvg     Type = "loadavg"
	TypePostgres    Type = "postgres"
)

// Types lists every supported monitor type.
var Types = []Type{TypeHTTP, TypeTCP, TypeCommand, TypeCertificate, TypeProcess, TypeLoadAvg, TypePostgres}

func (t Type) Valid() bool {
	for _, v := range Types {
		if v == t {
			return true
		}
	}
	return false
}

// Definition is one validated monitor. It is never mutated after the registry
// that holds it is published.
type Definition struct {
	ID                string
	Type              Type
	ScheduleExpr      string
	Schedule          Schedule
	Timeout           time.Duration
	Retries           int
	FailureThreshold  int
	RecoveryThreshold int
	Enabled           bool

	// Exactly one of the targets is set, matching Type.
	HTTP        *HTTPTarget
	TCP         *TCPTarget
	Command     *CommandTarget
	Certificate *CertificateTarget
	Process     *ProcessTarget
	LoadAvg     *LoadAvgTarget
	Postgres    *PostgresTarget
}

// Schedule yields fire times. Next must return a time strictly after t.
type Schedule interface {
	Next(t time.Time) time.Time
}

type StatusRange struct {
	Min int
	Max int
}

func (r StatusRange) Contains(code int) bool { return code >= r.Min && code <= r.Max }

type HTTPTarget struct {
	URL            string
	Method         string
	Headers        map[string]string
	VerifyTLS      bool
	AcceptedStatus []StatusRange
	BodyPattern    *regexp.Regexp
}

func (t *HTTPTarget) Accepts(code int) bool {
	for _, r := range t.AcceptedStatus {
		if r.Contains(code) {
			return true
		}
	}
	return false
}

type TCPTarget struct {
	Host string
	Port int
}

type CommandTarget struct {
	Command           string
	Args              []string
	AcceptedExitCodes []int
}

type CertificateTarget struct {
	Host       string
	Port       int
	ServerName string
	WarnBefore time.Duration
	CAFile     string
}

type ProcessTarget struct {
	Name    *regexp.Regexp
	PID     int32
	PIDFile string
}

type LoadAvgTarget struct {
	Max1  *float64
	Max5  *float64
	Max15 *float64
}

type PostgresTarget struct {
	DSN   string
	Query string
}
