package marketdata_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pmccbot/position-engine/internal/engine"
	"github.com/pmccbot/position-engine/internal/marketdata"
	"github.com/pmccbot/position-engine/internal/model"
)

func newServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *marketdata.TradierClient) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, marketdata.NewTradierClient("test-key", srv.URL, time.Second)
}

func TestQuote_SingleObject(t *testing.T) {
	// Tradier returns a bare object, not an array, for one symbol.
	_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization header = %q", got)
		}
		if got := r.URL.Query().Get("symbols"); got != "SPY" {
			t.Errorf("symbols param = %q", got)
		}
		fmt.Fprint(w, `{"quotes":{"quote":{"symbol":"SPY","bid":712.55,"ask":712.65,"last":712.60}}}`)
	})

	q, err := client.Quote(context.Background(), "SPY")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.Symbol != "SPY" {
		t.Errorf("symbol = %s", q.Symbol)
	}
	if !q.Ask.Equal(decimal.NewFromFloat(712.65)) {
		t.Errorf("ask = %s, want 712.65", q.Ask)
	}
}

func TestQuote_Array(t *testing.T) {
	_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"quotes":{"quote":[{"symbol":"SPY","bid":712.55,"ask":712.65,"last":712.60},{"symbol":"QQQ","last":480.00}]}}`)
	})

	q, err := client.Quote(context.Background(), "SPY")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.Symbol != "SPY" {
		t.Errorf("symbol = %s, want first array element", q.Symbol)
	}
}

func TestQuote_EmptyPayload(t *testing.T) {
	_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"quotes":{}}`)
	})

	if _, err := client.Quote(context.Background(), "SPY"); !engine.IsUpstream(err) {
		t.Errorf("got %v, want UpstreamError for missing quote", err)
	}
}

func TestQuote_ServerError(t *testing.T) {
	_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	if _, err := client.Quote(context.Background(), "SPY"); !engine.IsUpstream(err) {
		t.Errorf("got %v, want UpstreamError on non-200", err)
	}
}

func TestChain_FiltersPutsAndNormalizesDelta(t *testing.T) {
	expiration := time.Now().AddDate(0, 0, 35).Format(model.ExpirationLayout)
	_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"options":{"option":[
			{"symbol":"SPY-C730","strike":730,"expiration_date":"%[1]s","option_type":"call","bid":3.40,"ask":3.50,"greeks":{"delta":0.25}},
			{"symbol":"SPY-P730","strike":730,"expiration_date":"%[1]s","option_type":"put","bid":5.00,"ask":5.10,"greeks":{"delta":-0.75}},
			{"symbol":"SPY-C735","strike":735,"expiration_date":"%[1]s","option_type":"call","bid":3.00,"ask":3.10,"greeks":{"delta":-0.22}}
		]}}`, expiration)
	})

	entries, err := client.Chain(context.Background(), "SPY", expiration)
	if err != nil {
		t.Fatalf("Chain: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 calls, got %d entries", len(entries))
	}
	for _, e := range entries {
		if e.Delta < 0 {
			t.Errorf("delta should be normalized positive, got %f for %s", e.Delta, e.Symbol)
		}
		if e.DTE <= 0 {
			t.Errorf("dte should be populated, got %d for %s", e.DTE, e.Symbol)
		}
	}
}

func TestExpirations(t *testing.T) {
	_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"expirations":{"date":["2026-10-16","2026-11-20","2026-12-18"]}}`)
	})

	dates, err := client.Expirations(context.Background(), "SPY")
	if err != nil {
		t.Fatalf("Expirations: %v", err)
	}
	if len(dates) != 3 || dates[0] != "2026-10-16" {
		t.Errorf("dates = %v", dates)
	}
}

func TestQuote_Timeout(t *testing.T) {
	_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		fmt.Fprint(w, `{"quotes":{"quote":{"symbol":"SPY","last":700}}}`)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if _, err := client.Quote(ctx, "SPY"); !engine.IsUpstream(err) {
		t.Errorf("got %v, want UpstreamError on context timeout", err)
	}
}
