// Package marketdata supplies quotes and option chains to the engine.
// The Tradier client is the production implementation; a Redis decorator
// adds a read-through cache so one monitoring pass does not re-fetch the
// same underlying repeatedly.
package marketdata

import (
	"context"

	"github.com/pmccbot/position-engine/internal/model"
)

// Provider is the market data interface consumed by the alert evaluator
// and the candidate scanners. All methods honor the context deadline;
// failures come back wrapped as engine.UpstreamError.
type Provider interface {
	// Quote returns a quote for an equity or OCC option symbol.
	Quote(ctx context.Context, symbol string) (*model.Quote, error)

	// Chain returns the call options for one symbol and expiration, with
	// deltas populated.
	Chain(ctx context.Context, symbol, expiration string) ([]model.ChainEntry, error)

	// Expirations returns the available expiration dates (YYYY-MM-DD,
	// ascending) for a symbol.
	Expirations(ctx context.Context, symbol string) ([]string, error)
}
