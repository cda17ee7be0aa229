// Package alerts converts live quotes into deduplicated alert records and
// notifications. The evaluator is idempotent: re-running it with unchanged
// quotes inside the dedup window creates nothing new.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pmccbot/position-engine/internal/engine"
	"github.com/pmccbot/position-engine/internal/marketdata"
	"github.com/pmccbot/position-engine/internal/metrics"
	"github.com/pmccbot/position-engine/internal/model"
	"github.com/pmccbot/position-engine/internal/occ"
	"github.com/pmccbot/position-engine/internal/pmcc"
	"github.com/pmccbot/position-engine/internal/store"
)

// Notifier delivers a rendered alert message. Delivery is fire-and-forget
// from the evaluator's perspective; failures are logged and counted, never
// propagated.
type Notifier interface {
	Send(ctx context.Context, message string) error
}

// Config holds the alert thresholds.
type Config struct {
	ProfitLow       decimal.Decimal // profit_50 tier, fraction
	ProfitHigh      decimal.Decimal // profit_80 tier, fraction
	StrikeProximity decimal.Decimal // strike_threatened distance, fraction
	ExpiryDays      int             // expiration_approaching threshold
	DedupWindow     time.Duration
}

// Evaluator runs the per-short-call alert state machine.
type Evaluator struct {
	store    store.Store
	provider marketdata.Provider
	notifier Notifier
	cfg      Config
	now      func() time.Time

	// OnAlert, when set, receives every newly created alert (used for
	// WebSocket broadcast).
	OnAlert func(model.Alert)
}

// New creates an evaluator. notifier may be nil to disable notifications.
func New(st store.Store, provider marketdata.Provider, notifier Notifier, cfg Config) *Evaluator {
	return &Evaluator{
		store:    st,
		provider: provider,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
	}
}

// EvaluateAll runs one evaluation pass over every active short call and
// returns the alerts created. A quote failure for one position is logged
// and skipped; it never aborts the rest of the batch.
func (e *Evaluator) EvaluateAll(ctx context.Context) ([]model.Alert, error) {
	shorts, err := e.store.ListActiveShortCalls(ctx)
	if err != nil {
		return nil, engine.Storage("list short calls", err)
	}
	if len(shorts) == 0 {
		slog.Debug("no active short calls to monitor")
		return nil, nil
	}

	var fired []model.Alert
	for _, sc := range shorts {
		created, err := e.evaluateOne(ctx, sc)
		if err != nil {
			metrics.QuoteErrors.Inc()
			slog.Error("position evaluation failed",
				"short_call_id", sc.ID,
				"symbol", sc.Symbol,
				"err", err,
			)
			continue
		}
		fired = append(fired, created...)
	}
	return fired, nil
}

// evaluateOne checks all four conditions for one short call. The two
// profit tiers are exclusive per pass: only the highest reached fires.
func (e *Evaluator) evaluateOne(ctx context.Context, sc model.ShortCall) ([]model.Alert, error) {
	optSymbol, err := occ.Format(sc.Symbol, sc.Expiration, occ.Call, sc.Strike)
	if err != nil {
		return nil, err
	}

	quote, err := e.provider.Quote(ctx, optSymbol)
	if err != nil {
		return nil, err
	}
	current := quote.BuybackCost()
	profitPct := pmcc.ProfitPct(sc.EntryPrice, current)

	// Underlying quote feeds only the strike check; losing it degrades
	// the pass instead of failing it.
	underlying := decimal.Zero
	if uq, err := e.provider.Quote(ctx, sc.Symbol); err == nil {
		underlying = uq.Last
	} else {
		slog.Warn("underlying quote unavailable", "symbol", sc.Symbol, "err", err)
	}

	dte, err := occ.DaysToExpiration(sc.Expiration, e.now())
	if err != nil {
		return nil, err
	}

	profitDollars := sc.EntryPrice.Sub(current).Mul(decimal.NewFromInt(sc.Quantity)).Mul(decimal.NewFromInt(100))

	var fired []model.Alert
	record := func(t model.AlertType, msg string) error {
		a, err := e.fire(ctx, sc.ID, t, msg)
		if err != nil {
			return err
		}
		if a != nil {
			fired = append(fired, *a)
		}
		return nil
	}

	// Conditions are independent flags evaluated in fixed priority order;
	// several may fire in one pass.
	switch {
	case profitPct.GreaterThanOrEqual(e.cfg.ProfitHigh):
		msg := fmt.Sprintf("Strong close signal: %s\nCurrent: $%s | Entry: $%s\nProfit: %s%% ($%s)",
			optSymbol, current.StringFixed(2), sc.EntryPrice.StringFixed(2),
			profitPct.Mul(decimal.NewFromInt(100)).StringFixed(1), profitDollars.StringFixed(2))
		if err := record(model.AlertProfit80, msg); err != nil {
			return fired, err
		}
	case profitPct.GreaterThanOrEqual(e.cfg.ProfitLow):
		msg := fmt.Sprintf("Close candidate: %s\nCurrent: $%s | Entry: $%s\nProfit: %s%% ($%s)",
			optSymbol, current.StringFixed(2), sc.EntryPrice.StringFixed(2),
			profitPct.Mul(decimal.NewFromInt(100)).StringFixed(1), profitDollars.StringFixed(2))
		if err := record(model.AlertProfit50, msg); err != nil {
			return fired, err
		}
	}

	if underlying.IsPositive() {
		distance := pmcc.StrikeDistance(underlying, sc.Strike)
		if distance.LessThanOrEqual(e.cfg.StrikeProximity) {
			msg := fmt.Sprintf("Strike threatened: %s\nUnderlying: $%s | Strike: $%s\nDistance: %s%% | Evaluate roll",
				optSymbol, underlying.StringFixed(2), sc.Strike.StringFixed(2),
				distance.Mul(decimal.NewFromInt(100)).StringFixed(1))
			if err := record(model.AlertStrikeThreat, msg); err != nil {
				return fired, err
			}
		}
	}

	// An expiring position that is already deeply profitable is not
	// urgent; the profit alerts cover it.
	if dte <= e.cfg.ExpiryDays && profitPct.LessThan(e.cfg.ProfitLow) {
		msg := fmt.Sprintf("Expiration approaching: %s\nDTE: %d | Profit: %s%%\nConsider roll or close",
			optSymbol, dte, profitPct.Mul(decimal.NewFromInt(100)).StringFixed(1))
		if err := record(model.AlertExpiryApproach, msg); err != nil {
			return fired, err
		}
	}

	return fired, nil
}

// fire creates an alert unless the dedup window suppresses it. Returns nil
// without error on suppression (idempotent no-op). Dedup truth derives
// from the alerts table alone.
func (e *Evaluator) fire(ctx context.Context, shortCallID string, t model.AlertType, message string) (*model.Alert, error) {
	latest, err := e.store.LatestAlert(ctx, shortCallID, t)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, engine.Storage("latest alert", err)
	}
	if latest != nil && !latest.Acknowledged &&
		e.now().Sub(latest.TriggeredAt) < e.cfg.DedupWindow {
		metrics.AlertsSuppressed.WithLabelValues(string(t)).Inc()
		slog.Debug("duplicate alert suppressed", "short_call_id", shortCallID, "type", string(t))
		return nil, nil
	}

	a := model.Alert{
		ID:          uuid.New().String(),
		ShortCallID: shortCallID,
		Type:        t,
		Message:     message,
		TriggeredAt: e.now().UTC(),
	}
	if err := e.store.CreateAlert(ctx, &a); err != nil {
		return nil, engine.Storage("create alert", err)
	}

	metrics.AlertsFired.WithLabelValues(string(t)).Inc()
	slog.Info("alert fired", "short_call_id", shortCallID, "type", string(t))

	if e.notifier != nil {
		if err := e.notifier.Send(ctx, message); err != nil {
			metrics.NotifyErrors.Inc()
			slog.Error("notification delivery failed", "type", string(t), "err", err)
		}
	}
	if e.OnAlert != nil {
		e.OnAlert(a)
	}
	return &a, nil
}

// Status returns the live detail view of one short call.
func (e *Evaluator) Status(ctx context.Context, shortCallID string) (*model.PositionStatus, error) {
	sc, err := e.store.GetShortCall(ctx, shortCallID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, engine.NotFound("short call", shortCallID)
	}
	if err != nil {
		return nil, engine.Storage("get short call", err)
	}

	optSymbol, err := occ.Format(sc.Symbol, sc.Expiration, occ.Call, sc.Strike)
	if err != nil {
		return nil, err
	}
	quote, err := e.provider.Quote(ctx, optSymbol)
	if err != nil {
		return nil, err
	}
	current := quote.BuybackCost()

	underlying := decimal.Zero
	if uq, err := e.provider.Quote(ctx, sc.Symbol); err == nil {
		underlying = uq.Last
	}

	dte, err := occ.DaysToExpiration(sc.Expiration, e.now())
	if err != nil {
		return nil, err
	}

	return &model.PositionStatus{
		ShortCall:       *sc,
		OptionSymbol:    optSymbol,
		CurrentPrice:    current,
		ProfitPct:       pmcc.ProfitPct(sc.EntryPrice, current),
		ProfitDollars:   sc.EntryPrice.Sub(current).Mul(decimal.NewFromInt(sc.Quantity)).Mul(decimal.NewFromInt(100)),
		DTE:             dte,
		UnderlyingPrice: underlying,
	}, nil
}

// Unacknowledged returns the open alerts, newest first.
func (e *Evaluator) Unacknowledged(ctx context.Context) ([]model.Alert, error) {
	out, err := e.store.ListUnacknowledgedAlerts(ctx)
	if err != nil {
		return nil, engine.Storage("list alerts", err)
	}
	return out, nil
}

// Acknowledge marks an alert handled.
func (e *Evaluator) Acknowledge(ctx context.Context, alertID string) error {
	err := e.store.AcknowledgeAlert(ctx, alertID)
	if errors.Is(err, store.ErrNotFound) {
		return engine.NotFound("alert", alertID)
	}
	if err != nil {
		return engine.Storage("acknowledge alert", err)
	}
	return nil
}
