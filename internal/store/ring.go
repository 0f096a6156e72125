package store

import "github.com/NordCoder/pingerus-agent/internal/domain/monitor"

// ring is a fixed-capacity FIFO; pushing onto a full ring evicts the oldest.
type ring struct {
	buf   []monitor.CheckResult
	start int
	n     int
}

func newRing(capacity int) ring {
	return ring{buf: make([]monitor.CheckResult, capacity)}
}

func (r *ring) push(v monitor.CheckResult) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = v
		r.n++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) len() int { return r.n }

// slice copies the contents oldest first.
func (r *ring) slice() []monitor.CheckResult {
	out := make([]monitor.CheckResult, r.n)
	for i := 0; i < r.n; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}
