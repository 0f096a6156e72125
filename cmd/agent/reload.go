package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/NordCoder/pingerus-agent/internal/registry"
)

// reloadOnHangup re-reads the monitors file on every SIGHUP until ctx ends.
func reloadOnHangup(ctx context.Context, l *zap.Logger, holder *registry.Holder, path string) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			reload(l, holder, path)
		}
	}
}

// reload swaps in the monitors at path. A broken file keeps the current set.
func reload(l *zap.Logger, holder *registry.Holder, path string) bool {
	entries, err := registry.ReadFile(path)
	if err == nil {
		var next *registry.Registry
		next, err = holder.Reload(entries)
		if err == nil {
			l.Info("monitors reloaded", zap.String("file", path), zap.Int("monitors", next.Len()))
			return true
		}
	}
	logConfigError(l, path, err)
	l.Warn("reload rejected, keeping current monitors", zap.Int("monitors", holder.Current().Len()))
	return false
}
