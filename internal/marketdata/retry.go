package marketdata

import (
	"context"
	"time"

	"github.com/pmccbot/position-engine/internal/engine"
	"github.com/pmccbot/position-engine/internal/model"
)

// RetryProvider retries upstream failures with bounded backoff. Only
// UpstreamError is retried; after the attempts are exhausted the last
// error is returned and the caller skips the position for that cycle.
type RetryProvider struct {
	primary  Provider
	attempts int
	backoff  time.Duration
}

// NewRetryProvider wraps primary with up to attempts tries per call,
// sleeping backoff, 2*backoff, ... between them.
func NewRetryProvider(primary Provider, attempts int, backoff time.Duration) *RetryProvider {
	if attempts < 1 {
		attempts = 1
	}
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &RetryProvider{primary: primary, attempts: attempts, backoff: backoff}
}

func retry[T any](ctx context.Context, attempts int, backoff time.Duration, fn func() (T, error)) (T, error) {
	var out T
	var err error
	for i := 0; i < attempts; i++ {
		out, err = fn()
		if err == nil || !engine.IsUpstream(err) {
			return out, err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		case <-time.After(backoff << i):
		}
	}
	return out, err
}

func (r *RetryProvider) Quote(ctx context.Context, symbol string) (*model.Quote, error) {
	return retry(ctx, r.attempts, r.backoff, func() (*model.Quote, error) {
		return r.primary.Quote(ctx, symbol)
	})
}

func (r *RetryProvider) Chain(ctx context.Context, symbol, expiration string) ([]model.ChainEntry, error) {
	return retry(ctx, r.attempts, r.backoff, func() ([]model.ChainEntry, error) {
		return r.primary.Chain(ctx, symbol, expiration)
	})
}

func (r *RetryProvider) Expirations(ctx context.Context, symbol string) ([]string, error) {
	return retry(ctx, r.attempts, r.backoff, func() ([]string, error) {
		return r.primary.Expirations(ctx, symbol)
	})
}
