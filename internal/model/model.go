// Package model defines the core domain types for the PMCC position engine.
// All monetary values use shopspring/decimal — never float64 for money.
// Option deltas and ratio displays are the only float fields.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position status values shared by LEAPS and short calls.
const (
	StatusActive = "active"
	StatusClosed = "closed"
)

// ExpirationLayout is the date layout for option expirations.
const ExpirationLayout = "2006-01-02"

// LeapsPosition is the long-dated call leg of a PMCC. Created on open,
// mutated only by short-call close events and explicit close, never deleted.
type LeapsPosition struct {
	ID         string          `json:"id" db:"id"`
	Symbol     string          `json:"symbol" db:"symbol"`
	Strike     decimal.Decimal `json:"strike" db:"strike"`
	Expiration string          `json:"expiration" db:"expiration"`   // YYYY-MM-DD
	EntryPrice decimal.Decimal `json:"entry_price" db:"entry_price"` // per-share premium paid
	Quantity   int64           `json:"quantity" db:"quantity"`       // contracts
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	ClosedAt   *time.Time      `json:"closed_at,omitempty" db:"closed_at"`
	Status     string          `json:"status" db:"status"`
	Notes      string          `json:"notes,omitempty" db:"notes"`

	// AdjustedCostBasis is the running per-share cost basis after premium
	// credits from closed short calls. Equals EntryPrice until the first
	// short-call close.
	AdjustedCostBasis decimal.Decimal `json:"adjusted_cost_basis" db:"adjusted_cost_basis"`
}

// ShortCall is a call sold against a LEAPS position. A LEAPS may carry many
// short calls over its life; closing one is terminal.
type ShortCall struct {
	ID         string           `json:"id" db:"id"`
	LeapsID    string           `json:"leaps_id" db:"leaps_id"`
	Symbol     string           `json:"symbol" db:"symbol"`
	Strike     decimal.Decimal  `json:"strike" db:"strike"`
	Expiration string           `json:"expiration" db:"expiration"`   // YYYY-MM-DD
	EntryPrice decimal.Decimal  `json:"entry_price" db:"entry_price"` // premium received per share
	Quantity   int64            `json:"quantity" db:"quantity"`
	CreatedAt  time.Time        `json:"created_at" db:"created_at"`
	ClosedAt   *time.Time       `json:"closed_at,omitempty" db:"closed_at"`
	ExitPrice  *decimal.Decimal `json:"exit_price,omitempty" db:"exit_price"`
	// Profit is realized on close: (entry - exit) * quantity * 100.
	Profit *decimal.Decimal `json:"profit,omitempty" db:"profit"`
	Status string           `json:"status" db:"status"`
	Notes  string           `json:"notes,omitempty" db:"notes"`
}

// AlertType is the closed set of alert conditions. Adding a kind is a
// compile-time change; every switch over AlertType lists all four.
type AlertType string

const (
	AlertProfit50       AlertType = "profit_50"
	AlertProfit80       AlertType = "profit_80"
	AlertStrikeThreat   AlertType = "strike_threatened"
	AlertExpiryApproach AlertType = "expiration_approaching"
)

// Valid reports whether t is one of the four known alert types.
func (t AlertType) Valid() bool {
	switch t {
	case AlertProfit50, AlertProfit80, AlertStrikeThreat, AlertExpiryApproach:
		return true
	}
	return false
}

// Alert is a fired condition on one short call. Only Acknowledged is
// mutable after creation.
type Alert struct {
	ID           string    `json:"id" db:"id"`
	ShortCallID  string    `json:"short_call_id" db:"short_call_id"`
	Type         AlertType `json:"alert_type" db:"alert_type"`
	Message      string    `json:"message" db:"message"`
	TriggeredAt  time.Time `json:"triggered_at" db:"triggered_at"`
	Acknowledged bool      `json:"acknowledged" db:"acknowledged"`
}

// CostBasisEntry is one append-only audit record produced by a short-call
// close. Never mutated or deleted.
type CostBasisEntry struct {
	ID          string `json:"id" db:"id"`
	LeapsID     string `json:"leaps_id" db:"leaps_id"`
	ShortCallID string `json:"short_call_id" db:"short_call_id"`
	// Adjustment is the per-share credit: realized profit / (quantity*100).
	Adjustment   decimal.Decimal `json:"adjustment_amount" db:"adjustment_amount"`
	AdjustedCost decimal.Decimal `json:"adjusted_cost" db:"adjusted_cost"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// PositionGroup pairs a LEAPS with its currently active short calls.
type PositionGroup struct {
	Leaps      LeapsPosition `json:"leaps"`
	ShortCalls []ShortCall   `json:"short_calls"`
}

// Quote is a point-in-time market quote for an equity or option symbol.
type Quote struct {
	Symbol string          `json:"symbol"`
	Bid    decimal.Decimal `json:"bid"`
	Ask    decimal.Decimal `json:"ask"`
	Last   decimal.Decimal `json:"last"`
}

// BuybackCost is the per-share cost to close a short position: the ask,
// falling back to last when the ask is missing.
func (q Quote) BuybackCost() decimal.Decimal {
	if q.Ask.IsPositive() {
		return q.Ask
	}
	return q.Last
}

// ChainEntry is one option in an option chain, with the delta greek.
type ChainEntry struct {
	Symbol     string          `json:"symbol"` // OCC symbol
	Strike     decimal.Decimal `json:"strike"`
	Expiration string          `json:"expiration"` // YYYY-MM-DD
	Bid        decimal.Decimal `json:"bid"`
	Ask        decimal.Decimal `json:"ask"`
	Last       decimal.Decimal `json:"last"`
	Delta      float64         `json:"delta"`
	DTE        int             `json:"dte"`
}

// RollCandidate is a scored roll target for an existing short call.
type RollCandidate struct {
	Symbol     string          `json:"symbol"`
	Strike     decimal.Decimal `json:"strike"`
	Expiration string          `json:"expiration"`
	DTE        int             `json:"dte"`
	Bid        decimal.Decimal `json:"bid"`
	Delta      float64         `json:"delta"`
	// Credit is bid minus the buyback cost of the current short call,
	// per share. Positive means a net-credit roll.
	Credit    decimal.Decimal `json:"roll_credit"`
	CloseCost decimal.Decimal `json:"close_cost"`
	NetCredit decimal.Decimal `json:"net_credit"` // credit * quantity * 100
}

// NewCallCandidate is a scored candidate for a fresh short call over a LEAPS.
type NewCallCandidate struct {
	Symbol     string          `json:"symbol"`
	Strike     decimal.Decimal `json:"strike"`
	Expiration string          `json:"expiration"`
	DTE        int             `json:"dte"`
	Bid        decimal.Decimal `json:"bid"`
	Delta      float64         `json:"delta"`
	Premium    decimal.Decimal `json:"premium"` // bid * quantity * 100
	// AnnualizedReturn is (premium per share / adjusted cost basis per
	// share) * (365/dte), as a percentage.
	AnnualizedReturn decimal.Decimal `json:"annualized_return"`
}

// PositionStatus is the live detail view of one short call.
type PositionStatus struct {
	ShortCall       ShortCall       `json:"short_call"`
	OptionSymbol    string          `json:"option_symbol"`
	CurrentPrice    decimal.Decimal `json:"current_price"`
	ProfitPct       decimal.Decimal `json:"profit_pct"` // fraction, 0.50 = 50%
	ProfitDollars   decimal.Decimal `json:"profit_dollars"`
	DTE             int             `json:"dte"`
	UnderlyingPrice decimal.Decimal `json:"underlying_price"`
}

// CostBasisSummary reports a LEAPS position's basis audit trail.
type CostBasisSummary struct {
	Leaps        LeapsPosition    `json:"leaps"`
	TotalCredits decimal.Decimal  `json:"total_credits"` // Σ realized profit, dollars
	History      []CostBasisEntry `json:"history"`
}
