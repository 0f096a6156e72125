package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// PublishPolicy is used for delivering transition events to the broker.
func PublishPolicy(log *zap.Logger) Policy {
	return Policy{
		Name:     "events_publish",
		Attempts: 6,
		Backoff:  ExpoJitter{Base: 200 * time.Millisecond, Max: 30 * time.Second, Jitter: 0.2},
		Retryable: func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		},
		OnAttempt: func(i int, err error) {
			if log != nil {
				log.Warn("publish retry", zap.Int("attempt", i+1), zap.Error(err))
			}
		},
		OnExhaust: func(err error) {
			if log != nil && !errors.Is(err, context.Canceled) {
				log.Error("publish retries exhausted", zap.Error(err))
			}
		},
	}
}

// CheckPolicy is used by the check executor. Attempts is the monitor's
// configured retry count.
func CheckPolicy(name string, attempts int, base, max time.Duration, log *zap.Logger) Policy {
	return Policy{
		Name:     name,
		Attempts: attempts,
		Backoff:  ExpoJitter{Base: base, Max: max, Jitter: 0.2},
		OnAttempt: func(i int, err error) {
			if log != nil {
				log.Debug("check attempt failed", zap.Int("attempt", i+1), zap.Error(err))
			}
		},
	}
}
