package checker

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/NordCoder/pingerus-agent/internal/domain/monitor"
)

func (e *Executor) checkTCP(ctx context.Context, t *monitor.TCPTarget) (monitor.Status, string, error) {
	addr := net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
	start := e.clock.Now()
	conn, err := e.dial(ctx, "tcp", addr)
	if err != nil {
		return monitor.StatusFail, "", classifyNetErr(err)
	}
	_ = conn.Close()
	return monitor.StatusOK, fmt.Sprintf("connected to %s in %s", addr, e.clock.Now().Sub(start).Round(time.Millisecond)), nil
}
