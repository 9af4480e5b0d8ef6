package core

import (
	"context"
	"time"

	retry "github.com/avast/retry-go"
	"github.com/cockroachdb/errors"
	"github.com/hyperledger-labs/interop-relayer/log"
)

const (
	DefaultTimeout          = 300 * time.Second
	DefaultPollInterval     = time.Second
	DefaultFinalityInterval = 100 * time.Millisecond
)

var (
	rtyAttNum = uint(5)
	rtyAtt    = retry.Attempts(rtyAttNum)
	rtyDel    = retry.Delay(time.Millisecond * 400)
	rtyErr    = retry.LastErrorOnly(true)

	errPollDeadline = errors.New("poll deadline exceeded")
)

// PollConfig bounds a polling loop.
type PollConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

func (c PollConfig) withDefaults(interval time.Duration) PollConfig {
	if c.Interval <= 0 {
		c.Interval = interval
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// runUntilComplete calls fn every interval until it completes, fails or ctx is done.
func runUntilComplete(ctx context.Context, interval time.Duration, fn func() (bool, error)) error {
	for {
		if complete, err := fn(); err != nil {
			return err
		} else if complete {
			return nil
		}
		if err := wait(ctx, interval); err != nil {
			return err
		}
	}
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// pollUntil runs fn like runUntilComplete, bounded by cfg.Timeout.
// Expiry of the timeout, as opposed to cancellation of ctx, is reported as errPollDeadline.
func pollUntil(ctx context.Context, cfg PollConfig, fn func(ctx context.Context) (bool, error)) error {
	pctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	err := runUntilComplete(pctx, cfg.Interval, func() (bool, error) {
		return fn(pctx)
	})
	if err != nil && ctx.Err() == nil && errors.Is(pctx.Err(), context.DeadlineExceeded) {
		return errPollDeadline
	}
	return err
}

// withRetry retries an idempotent read a bounded number of times.
func withRetry(ctx context.Context, logger *log.RelayLogger, what string, fn func() error) error {
	return retry.Do(
		fn,
		rtyAtt,
		rtyDel,
		rtyErr,
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			return ctx.Err() == nil
		}),
		retry.OnRetry(func(n uint, err error) {
			logger.InfoContext(ctx, "retrying "+what, "try", n+1, "try_limit", rtyAttNum, "error", err)
		}),
	)
}
