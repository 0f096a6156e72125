package monitor

import (
	"context"
	"time"
)

type Executor interface {
	Execute(ctx context.Context, def *Definition) CheckResult
}

type ResultSink interface {
	Apply(res CheckResult)
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
