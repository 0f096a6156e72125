package checker

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/NordCoder/pingerus-agent/internal/domain/monitor"
)

func (e *Executor) checkProcess(ctx context.Context, t *monitor.ProcessTarget) (monitor.Status, string, error) {
	switch {
	case t.PIDFile != "":
		raw, err := os.ReadFile(t.PIDFile)
		if err != nil {
			return monitor.StatusFail, "", failf(monitor.ErrProcessNotFound, "read pid file: %v", err)
		}
		pid, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 32)
		if err != nil || pid <= 0 {
			return monitor.StatusFail, "", failf(monitor.ErrProcessNotFound, "pid file %s holds no pid", t.PIDFile)
		}
		return e.checkPID(ctx, int32(pid))
	case t.PID != 0:
		return e.checkPID(ctx, t.PID)
	}

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return monitor.StatusFail, "", failf(monitor.ErrProcessNotFound, "list processes: %v", err)
	}
	for _, p := range procs {
		if ctx.Err() != nil {
			return monitor.StatusFail, "", failf(monitor.ErrTimeout, "%v", ctx.Err())
		}
		name, err := p.NameWithContext(ctx)
		if err == nil && t.Name.MatchString(name) {
			return monitor.StatusOK, fmt.Sprintf("process %q running as pid %d", name, p.Pid), nil
		}
		cmdline, err := p.CmdlineWithContext(ctx)
		if err == nil && cmdline != "" && t.Name.MatchString(cmdline) {
			return monitor.StatusOK, fmt.Sprintf("process %q running as pid %d", cmdline, p.Pid), nil
		}
	}
	return monitor.StatusFail, "", failf(monitor.ErrProcessNotFound, "no process matches %q", t.Name)
}

func (e *Executor) checkPID(ctx context.Context, pid int32) (monitor.Status, string, error) {
	ok, err := process.PidExistsWithContext(ctx, pid)
	if err != nil {
		return monitor.StatusFail, "", failf(monitor.ErrProcessNotFound, "pid %d: %v", pid, err)
	}
	if !ok {
		return monitor.StatusFail, "", failf(monitor.ErrProcessNotFound, "pid %d is not running", pid)
	}
	return monitor.StatusOK, fmt.Sprintf("pid %d is running", pid), nil
}
