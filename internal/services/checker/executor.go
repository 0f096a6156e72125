package checker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shirou/gopsutil/v4/load"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/NordCoder/pingerus-agent/internal/domain/monitor"
	"github.com/NordCoder/pingerus-agent/internal/obs"
	"github.com/NordCoder/pingerus-agent/internal/obs/retry"
)

var (
	executions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checker_executions_total",
		Help: "Finished check executions, by monitor type and result status.",
	}, []string{"type", "status"})
	duration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checker_duration_seconds",
		Help:    "Wall time of one check execution including retries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})
)

var errCheckTimeout = errors.New("check timeout")

type Config struct {
	UserAgent       string
	FollowRedirects bool
	MaxMessageBytes int
	MaxBodyBytes    int64
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration
}

// Executor runs one monitor check per call. It is safe for concurrent use.
type Executor struct {
	cfg    Config
	log    *zap.Logger
	clock  monitor.Clock
	tracer trace.Tracer

	httpVerify   *http.Client
	httpInsecure *http.Client

	dial      func(ctx context.Context, network, addr string) (net.Conn, error)
	loadAvg   func(ctx context.Context) (*load.AvgStat, error)
	pgConnect func(ctx context.Context, dsn string) (*pgx.Conn, error)
}

func New(cfg Config, log *zap.Logger) *Executor {
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = 1024
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 10
	}
	return &Executor{
		cfg:          cfg,
		log:          obs.Component(log, "checker"),
		clock:        monitor.SystemClock{},
		tracer:       obs.Tracer("checker"),
		httpVerify:   newHTTPClient(cfg, true),
		httpInsecure: newHTTPClient(cfg, false),
		dial:         (&net.Dialer{KeepAlive: -1}).DialContext,
		loadAvg:      load.AvgWithContext,
		pgConnect:    pgx.Connect,
	}
}

// Execute performs one check of def, including its retries, bounded by
// def.Timeout. Check failures are reported in the result, never as errors.
func (e *Executor) Execute(ctx context.Context, def *monitor.Definition) monitor.CheckResult {
	res := monitor.CheckResult{
		MonitorID: def.ID,
		RunID:     uuid.NewString(),
		Start:     e.clock.Now(),
	}
	ctx, span := e.tracer.Start(ctx, "checker.execute", trace.WithAttributes(
		attribute.String("monitor.id", def.ID),
		attribute.String("monitor.type", string(def.Type)),
		attribute.String("run.id", res.RunID),
	))
	defer span.End()
	log := obs.WithTrace(ctx, e.log).With(
		zap.String("monitor", def.ID),
		zap.String("run_id", res.RunID),
	)

	tctx, cancel := context.WithTimeoutCause(ctx, def.Timeout, errCheckTimeout)
	defer cancel()

	type outcome struct {
		status   monitor.Status
		msg      string
		err      error
		attempts int
	}
	done := make(chan outcome, 1)
	go func() {
		var o outcome
		policy := retry.CheckPolicy("check_"+string(def.Type), def.Retries, e.cfg.RetryBackoff, e.cfg.RetryBackoffMax, log)
		o.attempts, o.err = retry.Do(tctx, func(ctx context.Context, _ int) error {
			st, msg, err := e.attempt(ctx, def)
			o.status, o.msg = st, msg
			return err
		}, policy)
		done <- o
	}()

	var o outcome
	select {
	case o = <-done:
	case <-tctx.Done():
		o = outcome{err: tctx.Err(), attempts: max(def.Retries, 1)}
	}
	res.End = e.clock.Now()
	res.Attempts = o.attempts

	switch {
	case o.err == nil:
		res.Status = o.status
		res.Message = o.msg
	case tctx.Err() != nil && ctx.Err() != nil && !errors.Is(context.Cause(tctx), errCheckTimeout):
		res.Status = monitor.StatusCancelled
		res.Message = "check cancelled"
	case tctx.Err() != nil:
		res.Status = monitor.StatusFail
		res.ErrorKind = monitor.ErrTimeout
		res.Message = fmt.Sprintf("timed out after %s", def.Timeout)
		if ce := asCheckErr(o.err); ce != nil && ce.kind != monitor.ErrTimeout {
			res.Message += " (last error: " + ce.msg + ")"
		}
	default:
		res.Status = monitor.StatusFail
		if ce := asCheckErr(o.err); ce != nil {
			res.ErrorKind, res.Message = ce.kind, ce.msg
		} else {
			res.ErrorKind, res.Message = monitor.ErrConnectionFailure, o.err.Error()
		}
	}
	res.Message = truncate(res.Message, e.cfg.MaxMessageBytes)

	executions.WithLabelValues(string(def.Type), string(res.Status)).Inc()
	duration.WithLabelValues(string(def.Type)).Observe(res.Latency().Seconds())
	span.SetAttributes(attribute.String("check.status", string(res.Status)), attribute.Int("check.attempts", res.Attempts))
	if res.Status == monitor.StatusFail {
		span.SetStatus(codes.Error, string(res.ErrorKind))
		log.Info("check failed",
			zap.String("kind", string(res.ErrorKind)),
			zap.String("message", res.Message),
			zap.Int("attempts", res.Attempts),
			zap.Duration("latency", res.Latency()),
		)
	} else {
		log.Debug("check finished", zap.String("status", string(res.Status)), zap.Duration("latency", res.Latency()))
	}
	return res
}

// attempt runs a single try. A non-nil error is always a *checkErr and means
// the attempt failed.
func (e *Executor) attempt(ctx context.Context, def *monitor.Definition) (monitor.Status, string, error) {
	switch def.Type {
	case monitor.TypeHTTP:
		if def.HTTP != nil {
			return e.checkHTTP(ctx, def.HTTP)
		}
	case monitor.TypeTCP:
		if def.TCP != nil {
			return e.checkTCP(ctx, def.TCP)
		}
	case monitor.TypeCommand:
		if def.Command != nil {
			return e.checkCommand(ctx, def.Command)
		}
	case monitor.TypeCertificate:
		if def.Certificate != nil {
			return e.checkCertificate(ctx, def.Certificate)
		}
	case monitor.TypeProcess:
		if def.Process != nil {
			return e.checkProcess(ctx, def.Process)
		}
	case monitor.TypeLoadAvg:
		if def.LoadAvg != nil {
			return e.checkLoadAvg(ctx, def.LoadAvg)
		}
	case monitor.TypePostgres:
		if def.Postgres != nil {
			return e.checkPostgres(ctx, def.Postgres)
		}
	}
	obs.Invariant(e.log, "definition_target", "monitor %q of type %q has no matching target", def.ID, def.Type)
	return monitor.StatusFail, "", retry.Permanent(failf(monitor.ErrConnectionFailure, "monitor has no %s target", def.Type))
}
