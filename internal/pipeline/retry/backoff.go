package retry

import (
	"context"
	"time"
)

// Policy is a bounded exponential backoff: attempt n waits
// BaseDelay*Factor^(n-1), capped at MaxDelay.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Factor      float64
	MaxDelay    time.Duration
	// Sleep replaces the wait between attempts; tests use it to avoid real time.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy is 3 attempts starting at 1s, doubling.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Factor:      2,
		MaxDelay:    30 * time.Second,
	}
}

// Delay returns the wait after the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	factor := p.Factor
	if factor < 1 {
		factor = 1
	}
	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= factor
		if p.MaxDelay > 0 && d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && time.Duration(d) > p.MaxDelay {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// OnRetry observes a transient failure that will be retried.
type OnRetry func(attempt int, err error, decision Decision, delay time.Duration)

// Do runs fn until it succeeds, returns a terminal error, or MaxAttempts is
// reached. The last error is returned unchanged.
func Do(ctx context.Context, p Policy, onRetry OnRetry, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx, attempt); err == nil {
			return nil
		}
		decision := Classify(err)
		if !decision.IsTransient() || attempt == attempts {
			return err
		}
		delay := p.Delay(attempt)
		if onRetry != nil {
			onRetry(attempt, err, decision, delay)
		}
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return err
		}
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
