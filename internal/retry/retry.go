package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/tgvault/tgvault/internal/transport"
)

// Policy is the single retry policy shared by the upload and download
// managers, configured differently per use: sequential fixed-delay for
// upload, exponential-with-jitter for download.
type Policy struct {
	// MaxAttempts is the retry ceiling. Each failed attempt other than a
	// rate-limit response counts against it.
	MaxAttempts int
	// BaseDelay is slept after a failed attempt before the next one.
	BaseDelay time.Duration
	// Multiplier scales the delay after every failed attempt. Values <= 1
	// keep the delay fixed.
	Multiplier float64
	// MaxDelay caps the grown delay. Zero means no cap.
	MaxDelay time.Duration
	// InitialJitter, when set, sleeps a random duration up to this value
	// before the very first attempt, to avoid a retry storm when many
	// workers start simultaneously.
	InitialJitter time.Duration
}

// Do runs op until it succeeds, returns a permanent error, or exhausts the
// retry ceiling. A rate-limited error sleeps exactly the server-specified
// duration and retries without consuming an attempt.
func (p Policy) Do(ctx context.Context, op func() error) error {
	if p.InitialJitter > 0 {
		if err := sleep(ctx, time.Duration(rand.Int63n(int64(p.InitialJitter)))); err != nil {
			return err
		}
	}

	delay := p.BaseDelay
	var lastErr error

	for attempt := 0; attempt < p.MaxAttempts; {
		err := op()
		if err == nil {
			return nil
		}
		if transport.IsPermanent(err) {
			return err
		}

		if wait, ok := transport.RetryAfter(err); ok {
			if err := sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}

		lastErr = err
		attempt++
		if attempt >= p.MaxAttempts {
			break
		}

		if err := sleep(ctx, delay); err != nil {
			return err
		}
		if p.Multiplier > 1 {
			delay = time.Duration(float64(delay) * p.Multiplier)
			if p.MaxDelay > 0 && delay > p.MaxDelay {
				delay = p.MaxDelay
			}
		}
	}

	return fmt.Errorf("giving up after %d attempts: %w", p.MaxAttempts, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
