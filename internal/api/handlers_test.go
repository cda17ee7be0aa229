package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/pmccbot/position-engine/internal/alerts"
	"github.com/pmccbot/position-engine/internal/api"
	"github.com/pmccbot/position-engine/internal/engine"
	"github.com/pmccbot/position-engine/internal/ledger"
	"github.com/pmccbot/position-engine/internal/model"
	"github.com/pmccbot/position-engine/internal/occ"
	"github.com/pmccbot/position-engine/internal/pmcc"
	"github.com/pmccbot/position-engine/internal/scanner"
	"github.com/pmccbot/position-engine/internal/store"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// fakeProvider serves canned quotes; everything else errors upstream.
type fakeProvider struct {
	quotes map[string]model.Quote
}

func (f *fakeProvider) Quote(_ context.Context, symbol string) (*model.Quote, error) {
	q, ok := f.quotes[symbol]
	if !ok {
		return nil, engine.Upstream("quote "+symbol, context.DeadlineExceeded)
	}
	return &q, nil
}

func (f *fakeProvider) Chain(context.Context, string, string) ([]model.ChainEntry, error) {
	return nil, engine.Upstream("chain", context.DeadlineExceeded)
}

func (f *fakeProvider) Expirations(context.Context, string) ([]string, error) {
	return nil, engine.Upstream("expirations", context.DeadlineExceeded)
}

// newTestEnv wires a router over an in-memory store.
func newTestEnv(t *testing.T, provider *fakeProvider) (chi.Router, *ledger.Ledger) {
	t.Helper()
	if provider == nil {
		provider = &fakeProvider{}
	}
	ms := store.NewMemoryStore()
	lg := ledger.New(ms, pmcc.NewCapacityPolicy(1))
	eval := alerts.New(ms, provider, nil, alerts.Config{
		ProfitLow:       d("0.50"),
		ProfitHigh:      d("0.80"),
		StrikeProximity: d("0.03"),
		ExpiryDays:      7,
		DedupWindow:     time.Hour,
	})
	sc := scanner.New(ms, provider, scanner.Profile{
		RollDTETargets:    []int{30, 45},
		RollStrikeOffsets: []decimal.Decimal{d("5"), d("10")},
		RollMaxDelta:      0.30,
		RollTopN:          3,
		DeltaMin:          0.20,
		DeltaMax:          0.30,
		DTEMin:            30,
		DTEMax:            45,
		NewCallTopN:       5,
	})

	r := chi.NewRouter()
	r.Route("/api/v1", api.NewHandler(lg, eval, sc).Routes)
	return r, lg
}

func doJSON(t *testing.T, router chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func openLeaps(t *testing.T, router chi.Router) model.LeapsPosition {
	t.Helper()
	w := doJSON(t, router, "POST", "/api/v1/leaps", ledger.OpenLeapsParams{
		Symbol:     "SPY",
		Strike:     d("620"),
		Expiration: "2027-01-15",
		EntryPrice: d("109.00"),
		Quantity:   2,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("open leaps: %d %s", w.Code, w.Body.String())
	}
	var pos model.LeapsPosition
	json.Unmarshal(w.Body.Bytes(), &pos)
	return pos
}

func openShort(t *testing.T, router chi.Router, leapsID string) model.ShortCall {
	t.Helper()
	w := doJSON(t, router, "POST", "/api/v1/leaps/"+leapsID+"/shorts", ledger.OpenShortCallParams{
		Symbol:     "SPY",
		Strike:     d("730"),
		Expiration: time.Now().AddDate(0, 0, 35).Format(model.ExpirationLayout),
		EntryPrice: d("6.50"),
		Quantity:   2,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("open short: %d %s", w.Code, w.Body.String())
	}
	var sc model.ShortCall
	json.Unmarshal(w.Body.Bytes(), &sc)
	return sc
}

func TestOpenLeaps(t *testing.T) {
	router, _ := newTestEnv(t, nil)
	pos := openLeaps(t, router)

	if pos.ID == "" {
		t.Error("expected generated id")
	}
	if !pos.AdjustedCostBasis.Equal(d("109.00")) {
		t.Errorf("basis = %s, want entry price", pos.AdjustedCostBasis)
	}
}

func TestOpenLeaps_Invalid(t *testing.T) {
	router, _ := newTestEnv(t, nil)

	w := doJSON(t, router, "POST", "/api/v1/leaps", ledger.OpenLeapsParams{
		Symbol:     "SPY",
		Strike:     d("620"),
		Expiration: "not-a-date",
		EntryPrice: d("109.00"),
		Quantity:   2,
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestOpenShortCall_UnknownLeaps(t *testing.T) {
	router, _ := newTestEnv(t, nil)

	w := doJSON(t, router, "POST", "/api/v1/leaps/nope/shorts", ledger.OpenShortCallParams{
		Symbol:     "SPY",
		Strike:     d("730"),
		Expiration: "2026-10-16",
		EntryPrice: d("3.40"),
		Quantity:   1,
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCloseShortCall(t *testing.T) {
	router, _ := newTestEnv(t, nil)
	pos := openLeaps(t, router)
	sc := openShort(t, router, pos.ID)

	w := doJSON(t, router, "POST", "/api/v1/shorts/"+sc.ID+"/close",
		api.CloseShortCallRequest{ExitPrice: d("3.25")})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp api.CloseShortCallResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.ShortCall.Status != model.StatusClosed {
		t.Errorf("status = %s, want closed", resp.ShortCall.Status)
	}
	if resp.BasisEntry == nil || !resp.BasisEntry.AdjustedCost.Equal(d("105.75")) {
		t.Errorf("basis entry = %+v, want adjusted cost 105.75", resp.BasisEntry)
	}

	// Closing again is a 404: the record is terminal.
	w = doJSON(t, router, "POST", "/api/v1/shorts/"+sc.ID+"/close",
		api.CloseShortCallRequest{ExitPrice: d("3.25")})
	if w.Code != http.StatusNotFound {
		t.Errorf("second close: expected 404, got %d", w.Code)
	}
}

func TestListPositions(t *testing.T) {
	router, _ := newTestEnv(t, nil)
	pos := openLeaps(t, router)
	openShort(t, router, pos.ID)

	w := doJSON(t, router, "GET", "/api/v1/positions", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var groups []model.PositionGroup
	json.Unmarshal(w.Body.Bytes(), &groups)
	if len(groups) != 1 || len(groups[0].ShortCalls) != 1 {
		t.Errorf("groups = %+v, want one leaps with one short", groups)
	}
}

func TestCostBasisSummary(t *testing.T) {
	router, _ := newTestEnv(t, nil)
	pos := openLeaps(t, router)
	sc := openShort(t, router, pos.ID)
	doJSON(t, router, "POST", "/api/v1/shorts/"+sc.ID+"/close",
		api.CloseShortCallRequest{ExitPrice: d("3.25")})

	w := doJSON(t, router, "GET", "/api/v1/leaps/"+pos.ID+"/basis", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var summary model.CostBasisSummary
	json.Unmarshal(w.Body.Bytes(), &summary)
	if !summary.TotalCredits.Equal(d("650")) {
		t.Errorf("total credits = %s, want 650", summary.TotalCredits)
	}
	if len(summary.History) != 1 {
		t.Errorf("history length = %d, want 1", len(summary.History))
	}
}

func TestEvaluateAlerts(t *testing.T) {
	provider := &fakeProvider{quotes: map[string]model.Quote{}}
	router, _ := newTestEnv(t, provider)
	pos := openLeaps(t, router)
	sc := openShort(t, router, pos.ID)

	symbol, err := occ.Format(sc.Symbol, sc.Expiration, occ.Call, sc.Strike)
	if err != nil {
		t.Fatalf("format symbol: %v", err)
	}
	provider.quotes[symbol] = model.Quote{Symbol: symbol, Ask: d("3.25")} // exactly 50%
	provider.quotes["SPY"] = model.Quote{Symbol: "SPY", Last: d("600.00")}

	w := doJSON(t, router, "POST", "/api/v1/alerts/evaluate", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var fired []model.Alert
	json.Unmarshal(w.Body.Bytes(), &fired)
	if len(fired) != 1 || fired[0].Type != model.AlertProfit50 {
		t.Fatalf("fired = %+v, want one profit_50", fired)
	}

	// The alert shows up open, then acknowledging clears it.
	w = doJSON(t, router, "GET", "/api/v1/alerts", nil)
	var open []model.Alert
	json.Unmarshal(w.Body.Bytes(), &open)
	if len(open) != 1 {
		t.Fatalf("expected 1 open alert, got %d", len(open))
	}

	w = doJSON(t, router, "POST", "/api/v1/alerts/"+open[0].ID+"/ack", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("ack: expected 204, got %d", w.Code)
	}

	w = doJSON(t, router, "GET", "/api/v1/alerts", nil)
	json.Unmarshal(w.Body.Bytes(), &open)
	if len(open) != 0 {
		t.Errorf("expected no open alerts after ack, got %d", len(open))
	}
}

func TestAcknowledgeAlert_Unknown(t *testing.T) {
	router, _ := newTestEnv(t, nil)

	w := doJSON(t, router, "POST", "/api/v1/alerts/nope/ack", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestRollCandidates_UpstreamFailure(t *testing.T) {
	router, _ := newTestEnv(t, nil)
	pos := openLeaps(t, router)
	sc := openShort(t, router, pos.ID)

	w := doJSON(t, router, "GET", "/api/v1/shorts/"+sc.ID+"/rolls", nil)
	if w.Code != http.StatusBadGateway {
		t.Errorf("expected 502 when market data is down, got %d: %s", w.Code, w.Body.String())
	}
}

func TestPositionStatus_Unknown(t *testing.T) {
	router, _ := newTestEnv(t, nil)

	w := doJSON(t, router, "GET", "/api/v1/shorts/nope/status", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
