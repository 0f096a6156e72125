package checker

import (
	"context"
	"fmt"
	"time"

	"github.com/NordCoder/pingerus-agent/internal/domain/monitor"
)

func (e *Executor) checkPostgres(ctx context.Context, t *monitor.PostgresTarget) (monitor.Status, string, error) {
	start := e.clock.Now()
	conn, err := e.pgConnect(ctx, t.DSN)
	if err != nil {
		return monitor.StatusFail, "", classifyNetErr(err)
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = conn.Close(cctx)
	}()

	rows, err := conn.Query(ctx, t.Query)
	if err != nil {
		return monitor.StatusFail, "", classifyNetErr(err)
	}
	n := 0
	for rows.Next() {
		n++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return monitor.StatusFail, "", classifyNetErr(err)
	}
	return monitor.StatusOK, fmt.Sprintf("query returned %d row(s) in %s", n, e.clock.Now().Sub(start).Round(time.Millisecond)), nil
}
