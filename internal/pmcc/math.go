// Package pmcc implements the strategy arithmetic for Poor Man's Covered
// Call bookkeeping: short-position profit, cost-basis adjustment, roll
// credit, and annualized-return calculations.
//
// All monetary values use shopspring/decimal — never float64 for money.
// Every function is stateless; position quantities are passed as arguments.
package pmcc

import (
	"github.com/shopspring/decimal"
)

var (
	one        = decimal.NewFromInt(1)
	hundred    = decimal.NewFromInt(100)
	daysInYear = decimal.NewFromInt(365)
)

// ProfitPct returns the profit fraction of a short position with the given
// entry premium and current price. A short profits as price falls toward
// zero: (entry - current) / entry. A non-positive current price is full
// profit, clamped to 1. A non-positive entry yields 0.
func ProfitPct(entry, current decimal.Decimal) decimal.Decimal {
	if !entry.IsPositive() {
		return decimal.Zero
	}
	if current.Sign() <= 0 {
		return one
	}
	pct := entry.Sub(current).Div(entry)
	if pct.GreaterThan(one) {
		return one
	}
	return pct
}

// RealizedProfit is the dollar profit of a closed short call:
// (entry - exit) * quantity * 100.
func RealizedProfit(entry, exit decimal.Decimal, quantity int64) decimal.Decimal {
	return entry.Sub(exit).Mul(decimal.NewFromInt(quantity)).Mul(hundred)
}

// BasisAdjustment converts a realized dollar profit into the per-share
// basis credit for the parent LEAPS: profit / (quantity * 100).
func BasisAdjustment(profit decimal.Decimal, leapsQuantity int64) decimal.Decimal {
	return profit.Div(decimal.NewFromInt(leapsQuantity).Mul(hundred))
}

// RollCredit is the per-share net credit of rolling into a candidate:
// candidate bid minus the buyback cost of the current short call.
func RollCredit(candidateBid, closeCost decimal.Decimal) decimal.Decimal {
	return candidateBid.Sub(closeCost)
}

// AnnualizedReturn computes (premium / basis) * (365 / dte) as a
// percentage. The basis denominator is the LEAPS adjusted cost basis per
// share, held constant across all candidates of one scan so the ranking is
// fair. Returns zero when basis or dte is non-positive.
func AnnualizedReturn(premiumPerShare, basisPerShare decimal.Decimal, dte int) decimal.Decimal {
	if !basisPerShare.IsPositive() || dte <= 0 {
		return decimal.Zero
	}
	return premiumPerShare.Div(basisPerShare).
		Mul(daysInYear).Div(decimal.NewFromInt(int64(dte))).
		Mul(hundred)
}

// StrikeDistance is the relative distance of the underlying price from a
// strike: |underlying - strike| / strike. Zero when strike is non-positive.
func StrikeDistance(underlying, strike decimal.Decimal) decimal.Decimal {
	if !strike.IsPositive() {
		return decimal.Zero
	}
	return underlying.Sub(strike).Abs().Div(strike)
}
