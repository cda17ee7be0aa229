// Package sched drives the monitoring loop: one non-overlapping periodic
// pass over active positions during market hours, plus the daily summary.
// It owns no business logic.
package sched

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pmccbot/position-engine/internal/alerts"
	"github.com/pmccbot/position-engine/internal/config"
	"github.com/pmccbot/position-engine/internal/ledger"
	"github.com/pmccbot/position-engine/internal/metrics"
)

// Config holds the loop schedule.
type Config struct {
	PollInterval   time.Duration
	MarketTimezone string
	MarketOpen     config.ClockTime
	MarketClose    config.ClockTime
	DailySummaryAt config.ClockTime
}

// Monitor runs the evaluation loop.
type Monitor struct {
	eval     *alerts.Evaluator
	ledger   *ledger.Ledger
	notifier alerts.Notifier
	cfg      Config
	loc      *time.Location

	inFlight       atomic.Bool
	wg             sync.WaitGroup
	lastSummaryDay atomic.Value // string YYYY-MM-DD
	now            func() time.Time
}

// New creates a monitor. The timezone must have been validated by config.
func New(eval *alerts.Evaluator, lg *ledger.Ledger, notifier alerts.Notifier, cfg Config) (*Monitor, error) {
	loc, err := time.LoadLocation(cfg.MarketTimezone)
	if err != nil {
		return nil, fmt.Errorf("sched: load timezone %q: %w", cfg.MarketTimezone, err)
	}
	return &Monitor{
		eval:     eval,
		ledger:   lg,
		notifier: notifier,
		cfg:      cfg,
		loc:      loc,
		now:      time.Now,
	}, nil
}

// Run blocks until ctx is cancelled. A pass in progress is abandoned on
// shutdown; partially evaluated positions are simply re-evaluated next
// pass since the evaluator dedups from the alert table.
func (m *Monitor) Run(ctx context.Context) {
	slog.Info("monitor started",
		"interval", m.cfg.PollInterval.String(),
		"market_open", m.cfg.MarketOpen.String(),
		"market_close", m.cfg.MarketClose.String(),
		"summary_at", m.cfg.DailySummaryAt.String(),
		"timezone", m.cfg.MarketTimezone,
	)

	poll := time.NewTicker(m.cfg.PollInterval)
	defer poll.Stop()
	// A minute ticker resolves the daily summary's wall-clock trigger.
	minute := time.NewTicker(time.Minute)
	defer minute.Stop()

	for {
		select {
		case <-ctx.Done():
			m.wg.Wait()
			slog.Info("monitor stopped")
			return
		case <-poll.C:
			m.kickPass(ctx)
		case <-minute.C:
			m.maybeSummary(ctx)
		}
	}
}

// kickPass starts one evaluation pass unless one is already running: a
// late pass drops the tick rather than queuing it, so concurrent passes
// can never double-fire alerts.
func (m *Monitor) kickPass(ctx context.Context) {
	if !m.marketHours(m.now()) {
		slog.Debug("outside market hours, skipping position check")
		return
	}
	if !m.inFlight.CompareAndSwap(false, true) {
		metrics.MonitorPasses.WithLabelValues("skipped").Inc()
		slog.Warn("previous pass still running, tick skipped")
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.inFlight.Store(false)

		start := time.Now()
		fired, err := m.eval.EvaluateAll(ctx)
		metrics.MonitorPassDuration.Observe(time.Since(start).Seconds())

		if err != nil {
			metrics.MonitorPasses.WithLabelValues("error").Inc()
			slog.Error("monitoring pass failed", "err", err)
			return
		}
		metrics.MonitorPasses.WithLabelValues("ok").Inc()
		slog.Info("monitoring pass complete",
			"alerts_fired", len(fired),
			"elapsed", time.Since(start).String(),
		)
	}()
}

// marketHours reports whether t falls inside the configured session
// (weekdays, open..close inclusive, market timezone).
func (m *Monitor) marketHours(t time.Time) bool {
	local := t.In(m.loc)
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	mins := local.Hour()*60 + local.Minute()
	return mins >= m.cfg.MarketOpen.Minutes() && mins <= m.cfg.MarketClose.Minutes()
}

// maybeSummary sends the daily summary once when the configured minute is
// reached.
func (m *Monitor) maybeSummary(ctx context.Context) {
	local := m.now().In(m.loc)
	if local.Hour() != m.cfg.DailySummaryAt.Hour || local.Minute() != m.cfg.DailySummaryAt.Minute {
		return
	}
	day := local.Format("2006-01-02")
	if last, _ := m.lastSummaryDay.Load().(string); last == day {
		return
	}
	m.lastSummaryDay.Store(day)

	msg, err := m.renderSummary(ctx)
	if err != nil {
		slog.Error("daily summary failed", "err", err)
		return
	}
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Send(ctx, msg); err != nil {
		metrics.NotifyErrors.Inc()
		slog.Error("daily summary delivery failed", "err", err)
		return
	}
	slog.Info("daily summary sent")
}

// renderSummary builds the portfolio overview message.
func (m *Monitor) renderSummary(ctx context.Context) (string, error) {
	groups, err := m.ledger.GetActivePositions(ctx)
	if err != nil {
		return "", err
	}
	if len(groups) == 0 {
		return "Daily summary: no active positions", nil
	}

	var b strings.Builder
	b.WriteString("Daily PMCC summary\n")
	for _, g := range groups {
		fmt.Fprintf(&b, "\n%s LEAPS $%s exp %s x%d\n",
			g.Leaps.Symbol, g.Leaps.Strike.StringFixed(0), g.Leaps.Expiration, g.Leaps.Quantity)
		fmt.Fprintf(&b, "  Entry: $%s | Adjusted basis: $%s\n",
			g.Leaps.EntryPrice.StringFixed(2), g.Leaps.AdjustedCostBasis.StringFixed(2))
		for _, sc := range g.ShortCalls {
			fmt.Fprintf(&b, "  Short $%s exp %s x%d @ $%s\n",
				sc.Strike.StringFixed(0), sc.Expiration, sc.Quantity, sc.EntryPrice.StringFixed(2))
		}
	}
	return b.String(), nil
}
