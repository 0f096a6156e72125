package checker

import (
	"context"
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v4/load"

	"github.com/NordCoder/pingerus-agent/internal/domain/monitor"
)

func (e *Executor) checkLoadAvg(ctx context.Context, t *monitor.LoadAvgTarget) (monitor.Status, string, error) {
	avg, err := e.loadAvg(ctx)
	if err != nil {
		return monitor.StatusFail, "", failf(monitor.ErrConnectionFailure, "read load average: %v", err)
	}
	return evaluateLoad(avg, t)
}

func evaluateLoad(avg *load.AvgStat, t *monitor.LoadAvgTarget) (monitor.Status, string, error) {
	var over []string
	for _, w := range []struct {
		name  string
		value float64
		limit *float64
	}{
		{"1m", avg.Load1, t.Max1},
		{"5m", avg.Load5, t.Max5},
		{"15m", avg.Load15, t.Max15},
	} {
		if w.limit != nil && w.value > *w.limit {
			over = append(over, fmt.Sprintf("%s %.2f > %.2f", w.name, w.value, *w.limit))
		}
	}
	if len(over) > 0 {
		return monitor.StatusFail, "", failf(monitor.ErrThresholdExceeded, "load average above limit: %s", strings.Join(over, ", "))
	}
	return monitor.StatusOK, fmt.Sprintf("load average %.2f %.2f %.2f", avg.Load1, avg.Load5, avg.Load15), nil
}
