// Package schedule turns cron-like expressions into fire-time generators.
//
// Expressions use the standard five fields (minute, hour, day-of-month, month,
// day-of-week), each a wildcard, literal, range, list or step. The
// descriptors @yearly, @monthly, @weekly, @daily, @hourly and @every <duration>
// are accepted as well.
package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/NordCoder/pingerus-agent/internal/domain/monitor"
)

var parser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

type cronSchedule struct {
	expr  string
	inner cron.Schedule
}

// Parse validates expr and returns its schedule.
func Parse(expr string) (monitor.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty schedule")
	}
	// cron silently rounds short @every intervals up to a second.
	if rest, ok := strings.CutPrefix(expr, "@every "); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(rest)); err == nil && d <= 0 {
			return nil, fmt.Errorf("parse schedule %q: non-positive interval", expr)
		}
	}
	s, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", expr, err)
	}
	return &cronSchedule{expr: expr, inner: s}, nil
}

// Next returns the soonest fire time strictly after t.
func (c *cronSchedule) Next(t time.Time) time.Time {
	n := c.inner.Next(t)
	if !n.After(t) {
		// cron truncates to whole seconds; make sure we never stand still.
		n = c.inner.Next(t.Add(time.Second))
	}
	return n
}

func (c *cronSchedule) String() string { return c.expr }

// Every is a fixed-interval schedule anchored on the previous fire time.
type Every time.Duration

func (e Every) Next(t time.Time) time.Time {
	d := time.Duration(e)
	if d <= 0 {
		d = time.Millisecond
	}
	return t.Add(d)
}
