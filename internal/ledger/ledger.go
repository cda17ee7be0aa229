// Package ledger owns LEAPS and short-call records, cost-basis arithmetic,
// and lifecycle transitions. It is the only writer of position state.
//
// All monetary values use shopspring/decimal — never float64 for money.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pmccbot/position-engine/internal/engine"
	"github.com/pmccbot/position-engine/internal/metrics"
	"github.com/pmccbot/position-engine/internal/model"
	"github.com/pmccbot/position-engine/internal/occ"
	"github.com/pmccbot/position-engine/internal/pmcc"
	"github.com/pmccbot/position-engine/internal/store"
)

// Ledger manages position records. A mutex serializes mutations so two
// concurrent close requests for the same short call cannot both succeed
// (single-instance; for horizontal scaling replace with database-level
// optimistic concurrency).
type Ledger struct {
	store    store.Store
	capacity *pmcc.CapacityPolicy
	mu       sync.Mutex
	now      func() time.Time
}

// New creates a ledger over the given store with the given capacity policy.
func New(st store.Store, capacity *pmcc.CapacityPolicy) *Ledger {
	return &Ledger{
		store:    st,
		capacity: capacity,
		now:      time.Now,
	}
}

// OpenLeapsParams are the caller-supplied fields for a new LEAPS position.
type OpenLeapsParams struct {
	Symbol     string          `json:"symbol"`
	Strike     decimal.Decimal `json:"strike"`
	Expiration string          `json:"expiration"` // YYYY-MM-DD; may be back-dated
	EntryPrice decimal.Decimal `json:"entry_price"`
	Quantity   int64           `json:"quantity"`
	Notes      string          `json:"notes"`
}

// OpenLeaps records a new LEAPS position. The adjusted cost basis starts
// at the entry price.
func (l *Ledger) OpenLeaps(ctx context.Context, p OpenLeapsParams) (*model.LeapsPosition, error) {
	if p.Symbol == "" {
		return nil, engine.Validationf("symbol", "is required")
	}
	if !p.Strike.IsPositive() {
		return nil, engine.Validationf("strike", "must be positive, got %s", p.Strike)
	}
	if p.Quantity <= 0 {
		return nil, engine.Validationf("quantity", "must be positive, got %d", p.Quantity)
	}
	if !p.EntryPrice.IsPositive() {
		return nil, engine.Validationf("entry_price", "must be positive, got %s", p.EntryPrice)
	}
	if _, err := occ.ParseExpiration(p.Expiration); err != nil {
		return nil, engine.Validationf("expiration", "want YYYY-MM-DD, got %q", p.Expiration)
	}

	pos := &model.LeapsPosition{
		ID:                uuid.New().String(),
		Symbol:            p.Symbol,
		Strike:            p.Strike,
		Expiration:        p.Expiration,
		EntryPrice:        p.EntryPrice,
		Quantity:          p.Quantity,
		CreatedAt:         l.now().UTC(),
		Status:            model.StatusActive,
		Notes:             p.Notes,
		AdjustedCostBasis: p.EntryPrice,
	}

	if err := l.store.CreateLeaps(ctx, pos); err != nil {
		return nil, engine.Storage("create leaps", err)
	}

	slog.Info("leaps opened",
		"id", pos.ID,
		"symbol", pos.Symbol,
		"strike", pos.Strike.String(),
		"expiration", pos.Expiration,
		"qty", pos.Quantity,
	)
	return pos, nil
}

// OpenShortCallParams are the caller-supplied fields for a new short call.
type OpenShortCallParams struct {
	LeapsID    string          `json:"leaps_id"`
	Symbol     string          `json:"symbol"`
	Strike     decimal.Decimal `json:"strike"`
	Expiration string          `json:"expiration"`
	EntryPrice decimal.Decimal `json:"entry_price"` // premium received per share
	Quantity   int64           `json:"quantity"`
	Notes      string          `json:"notes"`
	// Force skips the capacity check; writing extra short calls across a
	// roll is a deliberate strategy move, so over-commitment is a policy
	// error with an explicit override rather than a hard invariant.
	Force bool `json:"force"`
}

// OpenShortCall records a new short call against an active LEAPS position.
func (l *Ledger) OpenShortCall(ctx context.Context, p OpenShortCallParams) (*model.ShortCall, error) {
	if p.Symbol == "" {
		return nil, engine.Validationf("symbol", "is required")
	}
	if !p.Strike.IsPositive() {
		return nil, engine.Validationf("strike", "must be positive, got %s", p.Strike)
	}
	if p.Quantity <= 0 {
		return nil, engine.Validationf("quantity", "must be positive, got %d", p.Quantity)
	}
	if !p.EntryPrice.IsPositive() {
		return nil, engine.Validationf("entry_price", "must be positive, got %s", p.EntryPrice)
	}
	if _, err := occ.ParseExpiration(p.Expiration); err != nil {
		return nil, engine.Validationf("expiration", "want YYYY-MM-DD, got %q", p.Expiration)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	leaps, err := l.store.GetLeaps(ctx, p.LeapsID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, engine.NotFound("leaps position", p.LeapsID)
	}
	if err != nil {
		return nil, engine.Storage("get leaps", err)
	}
	if leaps.Status != model.StatusActive {
		return nil, engine.NotFound("active leaps position", p.LeapsID)
	}

	active, err := l.store.ListActiveShortCallsByLeaps(ctx, p.LeapsID)
	if err != nil {
		return nil, engine.Storage("list short calls", err)
	}
	var committed int64
	for _, sc := range active {
		committed += sc.Quantity
	}

	if err := l.capacity.Check(leaps.Quantity, committed, p.Quantity); err != nil {
		if !p.Force {
			return nil, engine.Validationf("quantity", "%v (set force to override)", err)
		}
		slog.Warn("capacity override",
			"leaps_id", p.LeapsID,
			"committed", committed,
			"requested", p.Quantity,
		)
	}

	sc := &model.ShortCall{
		ID:         uuid.New().String(),
		LeapsID:    p.LeapsID,
		Symbol:     p.Symbol,
		Strike:     p.Strike,
		Expiration: p.Expiration,
		EntryPrice: p.EntryPrice,
		Quantity:   p.Quantity,
		CreatedAt:  l.now().UTC(),
		Status:     model.StatusActive,
		Notes:      p.Notes,
	}

	if err := l.store.CreateShortCall(ctx, sc); err != nil {
		return nil, engine.Storage("create short call", err)
	}

	slog.Info("short call opened",
		"id", sc.ID,
		"leaps_id", sc.LeapsID,
		"symbol", sc.Symbol,
		"strike", sc.Strike.String(),
		"expiration", sc.Expiration,
		"premium", sc.EntryPrice.String(),
		"qty", sc.Quantity,
	)
	return sc, nil
}

// CloseShortCall closes a short call at the given exit price. The short
// call's terminal fields, the cost-basis history entry, and the parent's
// adjusted cost basis commit in one transaction; partial application would
// be a correctness bug.
func (l *Ledger) CloseShortCall(ctx context.Context, shortCallID string, exitPrice decimal.Decimal) (*model.ShortCall, *model.CostBasisEntry, error) {
	if exitPrice.IsNegative() {
		return nil, nil, engine.Validationf("exit_price", "must not be negative, got %s", exitPrice)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	sc, err := l.store.GetShortCall(ctx, shortCallID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, engine.NotFound("short call", shortCallID)
	}
	if err != nil {
		return nil, nil, engine.Storage("get short call", err)
	}
	if sc.Status != model.StatusActive {
		return nil, nil, engine.NotFound("active short call", shortCallID)
	}

	leaps, err := l.store.GetLeaps(ctx, sc.LeapsID)
	if err != nil {
		return nil, nil, engine.Storage("get leaps", err)
	}

	now := l.now().UTC()
	profit := pmcc.RealizedProfit(sc.EntryPrice, exitPrice, sc.Quantity)
	adjustment := pmcc.BasisAdjustment(profit, leaps.Quantity)
	newBasis := leaps.AdjustedCostBasis.Sub(adjustment)

	sc.Status = model.StatusClosed
	sc.ClosedAt = &now
	sc.ExitPrice = &exitPrice
	sc.Profit = &profit

	entry := &model.CostBasisEntry{
		ID:           uuid.New().String(),
		LeapsID:      sc.LeapsID,
		ShortCallID:  sc.ID,
		Adjustment:   adjustment,
		AdjustedCost: newBasis,
		CreatedAt:    now,
	}

	if err := l.store.ApplyShortCallClose(ctx, sc, entry, newBasis); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, engine.NotFound("active short call", shortCallID)
		}
		return nil, nil, engine.Storage("apply short call close", err)
	}

	metrics.ShortCallsClosed.Inc()
	slog.Info("short call closed",
		"id", sc.ID,
		"exit_price", exitPrice.String(),
		"profit", profit.String(),
		"new_basis", newBasis.String(),
	)
	return sc, entry, nil
}

// CloseLeaps marks a LEAPS position closed. Active short calls under it
// must be closed first.
func (l *Ledger) CloseLeaps(ctx context.Context, leapsID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	active, err := l.store.ListActiveShortCallsByLeaps(ctx, leapsID)
	if err != nil {
		return engine.Storage("list short calls", err)
	}
	if len(active) > 0 {
		return engine.Validationf("leaps_id", "%d active short calls remain; close them first", len(active))
	}

	err = l.store.CloseLeaps(ctx, leapsID)
	if errors.Is(err, store.ErrNotFound) {
		return engine.NotFound("leaps position", leapsID)
	}
	if err != nil {
		return engine.Storage("close leaps", err)
	}
	return nil
}

// GetActivePositions returns active LEAPS with their active short calls,
// in insertion order. Read-only.
func (l *Ledger) GetActivePositions(ctx context.Context) ([]model.PositionGroup, error) {
	leaps, err := l.store.ListActiveLeaps(ctx)
	if err != nil {
		return nil, engine.Storage("list leaps", err)
	}

	groups := make([]model.PositionGroup, 0, len(leaps))
	for _, lp := range leaps {
		shorts, err := l.store.ListActiveShortCallsByLeaps(ctx, lp.ID)
		if err != nil {
			return nil, engine.Storage("list short calls", err)
		}
		groups = append(groups, model.PositionGroup{Leaps: lp, ShortCalls: shorts})
	}
	return groups, nil
}

// GetCostBasisSummary returns the basis audit trail for a LEAPS position.
func (l *Ledger) GetCostBasisSummary(ctx context.Context, leapsID string) (*model.CostBasisSummary, error) {
	leaps, err := l.store.GetLeaps(ctx, leapsID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, engine.NotFound("leaps position", leapsID)
	}
	if err != nil {
		return nil, engine.Storage("get leaps", err)
	}

	history, err := l.store.ListCostBasisHistory(ctx, leapsID)
	if err != nil {
		return nil, engine.Storage("list cost basis history", err)
	}

	total := decimal.Zero
	qty := decimal.NewFromInt(leaps.Quantity).Mul(decimal.NewFromInt(100))
	for _, e := range history {
		total = total.Add(e.Adjustment.Mul(qty))
	}

	return &model.CostBasisSummary{
		Leaps:        *leaps,
		TotalCredits: total,
		History:      history,
	}, nil
}
