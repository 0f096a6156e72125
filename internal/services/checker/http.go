package checker

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/NordCoder/pingerus-agent/internal/domain/monitor"
	"github.com/NordCoder/pingerus-agent/internal/obs/retry"
)

func (e *Executor) checkHTTP(ctx context.Context, t *monitor.HTTPTarget) (monitor.Status, string, error) {
	req, err := http.NewRequestWithContext(ctx, t.Method, t.URL, nil)
	if err != nil {
		return monitor.StatusFail, "", retry.Permanent(failf(monitor.ErrConnectionFailure, "build request: %v", err))
	}
	for k, v := range t.Headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("User-Agent") == "" && e.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", e.cfg.UserAgent)
	}

	client := e.httpVerify
	if !t.VerifyTLS {
		client = e.httpInsecure
	}
	resp, err := client.Do(req)
	if err != nil {
		return monitor.StatusFail, "", classifyNetErr(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.cfg.MaxBodyBytes))
	if err != nil {
		return monitor.StatusFail, "", classifyNetErr(err)
	}
	if !t.Accepts(resp.StatusCode) {
		return monitor.StatusFail, "", failf(monitor.ErrUnexpectedStatus, "unexpected status %d: %s", resp.StatusCode, body)
	}
	if t.BodyPattern != nil && !t.BodyPattern.Match(body) {
		return monitor.StatusFail, "", failf(monitor.ErrUnexpectedStatus, "status %d but body does not match %q: %s", resp.StatusCode, t.BodyPattern, body)
	}
	return monitor.StatusOK, fmt.Sprintf("status %d", resp.StatusCode), nil
}
