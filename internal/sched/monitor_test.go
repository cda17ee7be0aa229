package sched

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pmccbot/position-engine/internal/config"
	"github.com/pmccbot/position-engine/internal/ledger"
	"github.com/pmccbot/position-engine/internal/pmcc"
	"github.com/pmccbot/position-engine/internal/store"
)

func testMonitor(t *testing.T, lg *ledger.Ledger) *Monitor {
	t.Helper()
	m, err := New(nil, lg, nil, Config{
		PollInterval:   5 * time.Minute,
		MarketTimezone: "America/New_York",
		MarketOpen:     config.ClockTime{Hour: 9, Minute: 30},
		MarketClose:    config.ClockTime{Hour: 16, Minute: 0},
		DailySummaryAt: config.ClockTime{Hour: 16, Minute: 30},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestMarketHours(t *testing.T) {
	m := testMonitor(t, nil)
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	at := func(year int, month time.Month, day, hour, min int) time.Time {
		return time.Date(year, month, day, hour, min, 0, 0, ny)
	}

	tests := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"mid-session Tuesday", at(2026, time.March, 3, 11, 0), true},
		{"opening bell", at(2026, time.March, 3, 9, 30), true},
		{"one minute before open", at(2026, time.March, 3, 9, 29), false},
		{"closing bell inclusive", at(2026, time.March, 3, 16, 0), true},
		{"after close", at(2026, time.March, 3, 16, 1), false},
		{"Saturday", at(2026, time.March, 7, 11, 0), false},
		{"Sunday", at(2026, time.March, 8, 11, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.marketHours(tt.t); got != tt.want {
				t.Errorf("marketHours(%s) = %v, want %v", tt.t, got, tt.want)
			}
		})
	}
}

func TestMarketHours_ConvertsFromUTC(t *testing.T) {
	m := testMonitor(t, nil)

	// 15:00 UTC on a March weekday is 10:00 or 11:00 in New York,
	// inside the session either way.
	utc := time.Date(2026, time.March, 3, 15, 0, 0, 0, time.UTC)
	if !m.marketHours(utc) {
		t.Error("UTC time inside the session should count as market hours")
	}

	// 02:00 UTC is overnight in New York.
	utc = time.Date(2026, time.March, 3, 2, 0, 0, 0, time.UTC)
	if m.marketHours(utc) {
		t.Error("overnight UTC time should not count as market hours")
	}
}

func TestRenderSummary(t *testing.T) {
	ms := store.NewMemoryStore()
	lg := ledger.New(ms, pmcc.NewCapacityPolicy(1))
	m := testMonitor(t, lg)

	msg, err := m.renderSummary(context.Background())
	if err != nil {
		t.Fatalf("renderSummary: %v", err)
	}
	if !strings.Contains(msg, "no active positions") {
		t.Errorf("empty portfolio summary = %q", msg)
	}

	pos, err := lg.OpenLeaps(context.Background(), ledger.OpenLeapsParams{
		Symbol:     "SPY",
		Strike:     decimal.NewFromInt(620),
		Expiration: "2027-01-15",
		EntryPrice: decimal.RequireFromString("109.00"),
		Quantity:   1,
	})
	if err != nil {
		t.Fatalf("OpenLeaps: %v", err)
	}
	if _, err := lg.OpenShortCall(context.Background(), ledger.OpenShortCallParams{
		LeapsID:    pos.ID,
		Symbol:     "SPY",
		Strike:     decimal.NewFromInt(730),
		Expiration: "2026-10-16",
		EntryPrice: decimal.RequireFromString("3.40"),
		Quantity:   1,
	}); err != nil {
		t.Fatalf("OpenShortCall: %v", err)
	}

	msg, err = m.renderSummary(context.Background())
	if err != nil {
		t.Fatalf("renderSummary: %v", err)
	}
	for _, want := range []string{"SPY", "620", "730", "109.00"} {
		if !strings.Contains(msg, want) {
			t.Errorf("summary missing %q:\n%s", want, msg)
		}
	}
}
