package marketdata

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"context"

	"github.com/shopspring/decimal"

	"github.com/pmccbot/position-engine/internal/engine"
	"github.com/pmccbot/position-engine/internal/model"
	"github.com/pmccbot/position-engine/internal/occ"
)

// TradierClient talks to the Tradier market data REST API. Every request
// carries a bounded timeout; a slow upstream is a recoverable failure,
// never a hang.
type TradierClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
	now     func() time.Time
}

// NewTradierClient creates a client for the given API key and base URL
// (sandbox or production).
func NewTradierClient(apiKey, baseURL string, timeout time.Duration) *TradierClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TradierClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		now:     time.Now,
	}
}

// --- wire types; Tradier returns an object for a single element and an
// array for many, so list fields need tolerant decoding ---

type tradierQuote struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Last   float64 `json:"last"`
}

type tradierOption struct {
	Symbol         string  `json:"symbol"`
	Strike         float64 `json:"strike"`
	ExpirationDate string  `json:"expiration_date"`
	OptionType     string  `json:"option_type"`
	Bid            float64 `json:"bid"`
	Ask            float64 `json:"ask"`
	Last           float64 `json:"last"`
	Greeks         *struct {
		Delta float64 `json:"delta"`
	} `json:"greeks"`
}

// oneOrMany decodes either a JSON array or a single JSON value into a slice.
type oneOrMany[T any] []T

func (o *oneOrMany[T]) UnmarshalJSON(data []byte) error {
	var many []T
	if err := json.Unmarshal(data, &many); err == nil {
		*o = many
		return nil
	}
	var single T
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	*o = []T{single}
	return nil
}

func (c *TradierClient) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	u := c.baseURL + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return engine.Upstream(endpoint, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return engine.Upstream(endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return engine.Upstream(endpoint, fmt.Errorf("status %d: %s", resp.StatusCode, body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return engine.Upstream(endpoint, err)
	}
	return nil
}

func (c *TradierClient) Quote(ctx context.Context, symbol string) (*model.Quote, error) {
	var payload struct {
		Quotes struct {
			Quote oneOrMany[tradierQuote] `json:"quote"`
		} `json:"quotes"`
	}
	params := url.Values{"symbols": {symbol}}
	if err := c.get(ctx, "/markets/quotes", params, &payload); err != nil {
		return nil, err
	}
	if len(payload.Quotes.Quote) == 0 {
		return nil, engine.Upstream("/markets/quotes", fmt.Errorf("no quote data for %s", symbol))
	}

	q := payload.Quotes.Quote[0]
	return &model.Quote{
		Symbol: q.Symbol,
		Bid:    decimal.NewFromFloat(q.Bid),
		Ask:    decimal.NewFromFloat(q.Ask),
		Last:   decimal.NewFromFloat(q.Last),
	}, nil
}

// Chain returns the call side of the chain for one expiration, deltas
// populated from greeks. Puts are dropped; the engine only writes calls.
func (c *TradierClient) Chain(ctx context.Context, symbol, expiration string) ([]model.ChainEntry, error) {
	var payload struct {
		Options struct {
			Option oneOrMany[tradierOption] `json:"option"`
		} `json:"options"`
	}
	params := url.Values{
		"symbol":     {symbol},
		"expiration": {expiration},
		"greeks":     {"true"},
	}
	if err := c.get(ctx, "/markets/options/chains", params, &payload); err != nil {
		return nil, err
	}

	var entries []model.ChainEntry
	for _, opt := range payload.Options.Option {
		if opt.OptionType != "call" {
			continue
		}
		var delta float64
		if opt.Greeks != nil {
			delta = opt.Greeks.Delta
			if delta < 0 {
				delta = -delta
			}
		}
		dte, err := occ.DaysToExpiration(opt.ExpirationDate, c.now())
		if err != nil {
			continue // malformed expiration from upstream, skip entry
		}
		entries = append(entries, model.ChainEntry{
			Symbol:     opt.Symbol,
			Strike:     decimal.NewFromFloat(opt.Strike),
			Expiration: opt.ExpirationDate,
			Bid:        decimal.NewFromFloat(opt.Bid),
			Ask:        decimal.NewFromFloat(opt.Ask),
			Last:       decimal.NewFromFloat(opt.Last),
			Delta:      delta,
			DTE:        dte,
		})
	}
	return entries, nil
}

func (c *TradierClient) Expirations(ctx context.Context, symbol string) ([]string, error) {
	var payload struct {
		Expirations struct {
			Date oneOrMany[string] `json:"date"`
		} `json:"expirations"`
	}
	params := url.Values{
		"symbol":          {symbol},
		"includeAllRoots": {"true"},
	}
	if err := c.get(ctx, "/markets/options/expirations", params, &payload); err != nil {
		return nil, err
	}
	return payload.Expirations.Date, nil
}
