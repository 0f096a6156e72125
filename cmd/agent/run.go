package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	config "github.com/NordCoder/pingerus-agent/internal/config/agent"
	"github.com/NordCoder/pingerus-agent/internal/obs"
	"github.com/NordCoder/pingerus-agent/internal/obs/retry"
	"github.com/NordCoder/pingerus-agent/internal/outbox"
	"github.com/NordCoder/pingerus-agent/internal/registry"
	kafkaRepo "github.com/NordCoder/pingerus-agent/internal/repository/kafka"
	"github.com/NordCoder/pingerus-agent/internal/services/checker"
	"github.com/NordCoder/pingerus-agent/internal/services/scheduler"
	"github.com/NordCoder/pingerus-agent/internal/services/statusapi"
	"github.com/NordCoder/pingerus-agent/internal/store"
)

func run(parent context.Context, configPath string, flags *pflag.FlagSet) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := config.Load(configPath, flags)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// logger
	l, err := obs.NewLogger(cfg.LoggerConfig())
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = l.Sync() }()
	zap.ReplaceGlobals(l)
	obs.SetStrictInvariants(cfg.Scheduler.StrictInvariants)

	// monitors
	reg, err := registry.LoadFile(cfg.MonitorsFile)
	if err != nil {
		logConfigError(l, cfg.MonitorsFile, err)
		return err
	}

	if cfg.Daemon.Enable && !isDaemonChild() {
		pid, err := daemonize()
		if err != nil {
			return fmt.Errorf("daemonize: %w", err)
		}
		l.Info("agent detached", zap.Int("pid", pid))
		return nil
	}
	if cfg.Daemon.PIDFile != "" {
		if err := writePIDFile(cfg.Daemon.PIDFile); err != nil {
			return err
		}
		defer func() { _ = os.Remove(cfg.Daemon.PIDFile) }()
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// otel
	otelCloser, err := obs.SetupOTel(ctx, cfg.OTELConfig())
	if err != nil {
		return fmt.Errorf("otel init: %w", err)
	}
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = otelCloser.Shutdown(shCtx)
	}()

	l.Info("starting agent",
		zap.String("monitors_file", cfg.MonitorsFile),
		zap.Int("monitors", reg.Len()),
		zap.String("http_addr", cfg.Server.HTTPAddr),
		zap.Bool("events", cfg.Events.Enable),
	)

	// wiring
	holder := registry.NewHolder(reg)
	states := store.New(store.Options{
		HistorySize: cfg.Scheduler.HistorySize,
		Policy:      holder,
		Logger:      l,
	})
	exec := checker.New(checker.Config{
		UserAgent:       cfg.Checks.UserAgent,
		FollowRedirects: cfg.Checks.FollowRedirects,
		MaxMessageBytes: cfg.Checks.MaxMessageBytes,
		MaxBodyBytes:    cfg.Checks.MaxBodyBytes,
		RetryBackoff:    cfg.Checks.RetryBackoff,
		RetryBackoffMax: cfg.Checks.RetryBackoffMax,
	}, l)
	sched := scheduler.New(l, holder, exec, states, scheduler.Options{
		MaxConcurrent: cfg.Scheduler.MaxConcurrent,
		QueueSize:     cfg.Scheduler.QueueSize,
		ShutdownGrace: cfg.Scheduler.ShutdownGrace,
	})
	api := statusapi.New(l, states, holder, nil)
	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           obs.HTTPHandler(api.Router(), "statusapi"),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Events.Enable {
		evLog := obs.Component(l, "events")
		prod := kafkaRepo.BootstrapProducer(gctx, cfg.Events.Brokers, cfg.Events.Topic, l)
		defer func() { _ = prod.Close() }()
		q := outbox.NewQueue(cfg.Events.QueueSize)
		states.OnTransition(outbox.TransitionHook(q, evLog))
		runner := outbox.NewRunner(evLog, q, outbox.MakeGlobalHandler(prod, retry.PublishPolicy(evLog)), cfg.Events.Workers, 2*time.Second)
		g.Go(func() error { return runner.Run(gctx) })
	}

	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error {
		l.Info("http listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
		defer cancel()
		return srv.Shutdown(shCtx)
	})
	g.Go(func() error {
		reloadOnHangup(gctx, obs.Component(l, "reload"), holder, cfg.MonitorsFile)
		return nil
	})

	l.Info("agent started")
	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		l.Error("agent stopped with error", zap.Error(err))
		return err
	}
	l.Info("bye")
	return nil
}

func logConfigError(l *zap.Logger, path string, err error) {
	var ce *registry.ConfigError
	if errors.As(err, &ce) {
		for _, e := range ce.Errors() {
			l.Error("invalid monitors config", zap.String("file", path), zap.Error(e))
		}
		return
	}
	l.Error("load monitors", zap.String("file", path), zap.Error(err))
}
