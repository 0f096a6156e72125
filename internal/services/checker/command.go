package checker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/NordCoder/pingerus-agent/internal/domain/monitor"
	"github.com/NordCoder/pingerus-agent/internal/obs/retry"
)

// cappedBuffer keeps the first n bytes written and discards the rest.
type cappedBuffer struct {
	buf bytes.Buffer
	n   int
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	if room := c.n - c.buf.Len(); room > 0 {
		c.buf.Write(p[:min(room, len(p))])
	}
	return len(p), nil
}

func (e *Executor) checkCommand(ctx context.Context, t *monitor.CommandTarget) (monitor.Status, string, error) {
	cmd := exec.CommandContext(ctx, t.Command, t.Args...)
	cmd.WaitDelay = time.Second
	out := &cappedBuffer{n: e.cfg.MaxMessageBytes}
	cmd.Stdout = out
	cmd.Stderr = out

	err := cmd.Run()
	output := strings.TrimSpace(out.buf.String())
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			if ctx.Err() != nil {
				return monitor.StatusFail, "", failf(monitor.ErrTimeout, "%v", err)
			}
			return monitor.StatusFail, "", retry.Permanent(failf(monitor.ErrSpawnFailure, "%v", err))
		}
	}

	code := cmd.ProcessState.ExitCode()
	if !slices.Contains(t.AcceptedExitCodes, code) {
		if ctx.Err() != nil {
			return monitor.StatusFail, "", failf(monitor.ErrTimeout, "killed: %v", ctx.Err())
		}
		return monitor.StatusFail, "", failf(monitor.ErrCommandNonZeroExit, "exit code %d: %s", code, output)
	}
	if output == "" {
		return monitor.StatusOK, fmt.Sprintf("exit code %d", code), nil
	}
	return monitor.StatusOK, fmt.Sprintf("exit code %d: %s", code, output), nil
}
