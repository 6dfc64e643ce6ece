package predictor

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Sleeper blocks for d or until ctx is done, returning ctx.Err() in the latter case.
type Sleeper func(ctx context.Context, d time.Duration) error

// sleepContext is the default Sleeper.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// attemptState is the per-request retry state. A fresh one is created for
// every Predict call so nothing carries over between images.
type attemptState struct {
	timeout  time.Duration
	schedule *backoff.ExponentialBackOff
}

func newAttemptState(cfg Config) *attemptState {
	schedule := &backoff.ExponentialBackOff{
		InitialInterval:     cfg.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxTimeout,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	schedule.Reset()

	return &attemptState{timeout: cfg.Timeout, schedule: schedule}
}

// maxTimeout is the largest representable timeout. Escalation saturates here.
const maxTimeout = time.Duration(math.MaxInt64)

// escalate doubles the timeout used by every later attempt.
func (s *attemptState) escalate() time.Duration {
	if s.timeout > maxTimeout/2 {
		s.timeout = maxTimeout
	} else {
		s.timeout *= 2
	}
	return s.timeout
}

// nextDelay returns BaseDelay * 2^n on its n-th call (zero-based).
func (s *attemptState) nextDelay() time.Duration {
	return s.schedule.NextBackOff()
}
