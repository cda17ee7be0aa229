package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pmccbot/position-engine/internal/model"
	"github.com/pmccbot/position-engine/internal/store"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newSQLite(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func insertLeaps(t *testing.T, st store.Store) *model.LeapsPosition {
	t.Helper()
	p := &model.LeapsPosition{
		ID:                uuid.New().String(),
		Symbol:            "SPY",
		Strike:            d("620"),
		Expiration:        "2027-01-15",
		EntryPrice:        d("109.00"),
		Quantity:          2,
		CreatedAt:         time.Now().UTC(),
		Status:            model.StatusActive,
		AdjustedCostBasis: d("109.00"),
	}
	if err := st.CreateLeaps(context.Background(), p); err != nil {
		t.Fatalf("CreateLeaps: %v", err)
	}
	return p
}

func insertShort(t *testing.T, st store.Store, leapsID string) *model.ShortCall {
	t.Helper()
	sc := &model.ShortCall{
		ID:         uuid.New().String(),
		LeapsID:    leapsID,
		Symbol:     "SPY",
		Strike:     d("730"),
		Expiration: "2026-10-16",
		EntryPrice: d("6.50"),
		Quantity:   2,
		CreatedAt:  time.Now().UTC(),
		Status:     model.StatusActive,
	}
	if err := st.CreateShortCall(context.Background(), sc); err != nil {
		t.Fatalf("CreateShortCall: %v", err)
	}
	return sc
}

func TestSQLite_LeapsRoundTrip(t *testing.T) {
	st := newSQLite(t)
	p := insertLeaps(t, st)

	got, err := st.GetLeaps(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("GetLeaps: %v", err)
	}
	if got.Symbol != "SPY" || got.Expiration != "2027-01-15" || got.Quantity != 2 {
		t.Errorf("round trip lost fields: %+v", got)
	}
	if !got.Strike.Equal(d("620")) || !got.AdjustedCostBasis.Equal(d("109.00")) {
		t.Errorf("decimals mangled: strike=%s basis=%s", got.Strike, got.AdjustedCostBasis)
	}
	if got.ClosedAt != nil {
		t.Error("closed_at should be nil for an open position")
	}

	if _, err := st.GetLeaps(context.Background(), "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing id: got %v, want ErrNotFound", err)
	}
}

func TestSQLite_CloseLeaps(t *testing.T) {
	st := newSQLite(t)
	p := insertLeaps(t, st)

	if err := st.CloseLeaps(context.Background(), p.ID); err != nil {
		t.Fatalf("CloseLeaps: %v", err)
	}
	got, err := st.GetLeaps(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("GetLeaps: %v", err)
	}
	if got.Status != model.StatusClosed {
		t.Errorf("status = %s, want closed", got.Status)
	}

	active, err := st.ListActiveLeaps(context.Background())
	if err != nil {
		t.Fatalf("ListActiveLeaps: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("closed position still listed as active")
	}

	if err := st.CloseLeaps(context.Background(), "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing id: got %v, want ErrNotFound", err)
	}
}

func TestSQLite_ApplyShortCallClose(t *testing.T) {
	st := newSQLite(t)
	p := insertLeaps(t, st)
	sc := insertShort(t, st, p.ID)

	now := time.Now().UTC()
	exit := d("3.25")
	profit := d("650")
	sc.Status = model.StatusClosed
	sc.ClosedAt = &now
	sc.ExitPrice = &exit
	sc.Profit = &profit

	entry := &model.CostBasisEntry{
		ID:           uuid.New().String(),
		LeapsID:      p.ID,
		ShortCallID:  sc.ID,
		Adjustment:   d("3.25"),
		AdjustedCost: d("105.75"),
		CreatedAt:    now,
	}

	if err := st.ApplyShortCallClose(context.Background(), sc, entry, d("105.75")); err != nil {
		t.Fatalf("ApplyShortCallClose: %v", err)
	}

	// All three writes must be visible.
	gotSC, err := st.GetShortCall(context.Background(), sc.ID)
	if err != nil {
		t.Fatalf("GetShortCall: %v", err)
	}
	if gotSC.Status != model.StatusClosed {
		t.Errorf("short status = %s, want closed", gotSC.Status)
	}
	if gotSC.ExitPrice == nil || !gotSC.ExitPrice.Equal(exit) {
		t.Errorf("exit price = %v, want 3.25", gotSC.ExitPrice)
	}
	if gotSC.Profit == nil || !gotSC.Profit.Equal(profit) {
		t.Errorf("profit = %v, want 650", gotSC.Profit)
	}

	gotLeaps, err := st.GetLeaps(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("GetLeaps: %v", err)
	}
	if !gotLeaps.AdjustedCostBasis.Equal(d("105.75")) {
		t.Errorf("basis = %s, want 105.75", gotLeaps.AdjustedCostBasis)
	}

	history, err := st.ListCostBasisHistory(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("ListCostBasisHistory: %v", err)
	}
	if len(history) != 1 || !history[0].Adjustment.Equal(d("3.25")) {
		t.Errorf("history = %+v, want one 3.25 adjustment", history)
	}

	// A second apply must hit the status guard and change nothing.
	if err := st.ApplyShortCallClose(context.Background(), sc, entry, d("100.00")); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second apply: got %v, want ErrNotFound", err)
	}
	gotLeaps, _ = st.GetLeaps(context.Background(), p.ID)
	if !gotLeaps.AdjustedCostBasis.Equal(d("105.75")) {
		t.Errorf("failed apply moved the basis to %s", gotLeaps.AdjustedCostBasis)
	}
}

func TestSQLite_ActiveShortCallFilters(t *testing.T) {
	st := newSQLite(t)
	p := insertLeaps(t, st)
	other := insertLeaps(t, st)
	a := insertShort(t, st, p.ID)
	insertShort(t, st, other.ID)

	all, err := st.ListActiveShortCalls(context.Background())
	if err != nil {
		t.Fatalf("ListActiveShortCalls: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 active shorts, got %d", len(all))
	}

	byLeaps, err := st.ListActiveShortCallsByLeaps(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("ListActiveShortCallsByLeaps: %v", err)
	}
	if len(byLeaps) != 1 || byLeaps[0].ID != a.ID {
		t.Errorf("per-leaps filter returned %d shorts", len(byLeaps))
	}
}

func TestSQLite_Alerts(t *testing.T) {
	st := newSQLite(t)
	p := insertLeaps(t, st)
	sc := insertShort(t, st, p.ID)

	older := &model.Alert{
		ID:          uuid.New().String(),
		ShortCallID: sc.ID,
		Type:        model.AlertProfit50,
		Message:     "first",
		TriggeredAt: time.Now().UTC().Add(-2 * time.Hour),
	}
	newer := &model.Alert{
		ID:          uuid.New().String(),
		ShortCallID: sc.ID,
		Type:        model.AlertProfit50,
		Message:     "second",
		TriggeredAt: time.Now().UTC(),
	}
	for _, a := range []*model.Alert{older, newer} {
		if err := st.CreateAlert(context.Background(), a); err != nil {
			t.Fatalf("CreateAlert: %v", err)
		}
	}

	latest, err := st.LatestAlert(context.Background(), sc.ID, model.AlertProfit50)
	if err != nil {
		t.Fatalf("LatestAlert: %v", err)
	}
	if latest.ID != newer.ID {
		t.Errorf("latest = %s, want the newer alert", latest.Message)
	}

	// Type is part of the dedup key.
	if _, err := st.LatestAlert(context.Background(), sc.ID, model.AlertStrikeThreat); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("other type: got %v, want ErrNotFound", err)
	}

	open, err := st.ListUnacknowledgedAlerts(context.Background())
	if err != nil {
		t.Fatalf("ListUnacknowledgedAlerts: %v", err)
	}
	if len(open) != 2 || open[0].ID != newer.ID {
		t.Errorf("unacknowledged list wrong: %d entries", len(open))
	}

	if err := st.AcknowledgeAlert(context.Background(), newer.ID); err != nil {
		t.Fatalf("AcknowledgeAlert: %v", err)
	}
	open, _ = st.ListUnacknowledgedAlerts(context.Background())
	if len(open) != 1 || open[0].ID != older.ID {
		t.Errorf("acknowledged alert still listed")
	}

	if err := st.AcknowledgeAlert(context.Background(), "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing id: got %v, want ErrNotFound", err)
	}
}
