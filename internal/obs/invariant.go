package obs

import (
	"fmt"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var invariantViolations = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "agent_invariant_violations_total",
	Help: "Internal invariant violations detected at runtime.",
}, []string{"invariant"})

var strictInvariants atomic.Bool

// SetStrictInvariants makes Invariant panic instead of logging.
func SetStrictInvariants(on bool) { strictInvariants.Store(on) }

// Invariant reports a broken internal guarantee. Such a report always means a
// bug in the agent, never a problem with a monitored target.
func Invariant(l *zap.Logger, name, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	invariantViolations.WithLabelValues(name).Inc()
	if strictInvariants.Load() {
		panic(fmt.Sprintf("invariant %s violated: %s", name, msg))
	}
	if l != nil {
		l.Error("invariant violated", zap.String("invariant", name), zap.String("detail", msg))
	}
}
