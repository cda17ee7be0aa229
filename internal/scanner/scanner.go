// Package scanner ranks option-chain entries against the strategy profile:
// roll candidates for an existing short call and new-short-call candidates
// for a LEAPS position. Both follow the same discipline: filter by hard
// constraints, score survivors, sort, truncate to top-N. Scanning is
// read-only and safe to run concurrently with the monitoring pass.
package scanner

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pmccbot/position-engine/internal/engine"
	"github.com/pmccbot/position-engine/internal/marketdata"
	"github.com/pmccbot/position-engine/internal/metrics"
	"github.com/pmccbot/position-engine/internal/model"
	"github.com/pmccbot/position-engine/internal/occ"
	"github.com/pmccbot/position-engine/internal/pmcc"
	"github.com/pmccbot/position-engine/internal/store"
)

// Profile is the target strategy profile driving both scanners.
type Profile struct {
	// Roll scanner.
	RollDTETargets    []int             // default {30, 45, 60}
	RollStrikeOffsets []decimal.Decimal // dollars above current strike
	RollMaxDelta      float64           // hard delta cap
	RollTopN          int               // default 3

	// New-call scanner.
	DeltaMin    float64 // default 0.20
	DeltaMax    float64 // default 0.30
	DTEMin      int     // default 30
	DTEMax      int     // default 45
	NewCallTopN int     // default 5
}

// Scanner evaluates option chains for one position at a time.
type Scanner struct {
	store    store.Store
	provider marketdata.Provider
	profile  Profile
	now      func() time.Time
}

// New creates a scanner with the given profile.
func New(st store.Store, provider marketdata.Provider, profile Profile) *Scanner {
	return &Scanner{
		store:    st,
		provider: provider,
		profile:  profile,
		now:      time.Now,
	}
}

// strikeMatchWidth tolerates non-integer chain strikes around each target.
var strikeMatchWidth = decimal.NewFromFloat(0.5)

// FindRollCandidates scans the DTE-target x strike-offset grid for roll
// targets and returns the top candidates ranked by net credit (descending),
// tie-broken by delta (ascending). An empty result means nothing qualified;
// a chain-fetch failure is an UpstreamError, never an empty result.
func (s *Scanner) FindRollCandidates(ctx context.Context, shortCallID string) ([]model.RollCandidate, error) {
	start := time.Now()
	defer func() {
		metrics.ScanDuration.WithLabelValues("roll").Observe(time.Since(start).Seconds())
	}()

	sc, err := s.store.GetShortCall(ctx, shortCallID)
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
	quote, err := s.provider.Quote(ctx, optSymbol)
	if err != nil {
		return nil, err
	}
	closeCost := quote.BuybackCost()

	currentExp, err := occ.ParseExpiration(sc.Expiration)
	if err != nil {
		return nil, engine.Validationf("expiration", "stored value %q is invalid", sc.Expiration)
	}

	qty := decimal.NewFromInt(sc.Quantity).Mul(decimal.NewFromInt(100))

	var candidates []model.RollCandidate
	for _, target := range s.profile.RollDTETargets {
		expirations, err := s.expirationsInRange(ctx, sc.Symbol, target-5, target+5)
		if err != nil {
			return nil, err
		}
		// Two expirations per DTE target bounds the chain fetches.
		if len(expirations) > 2 {
			expirations = expirations[:2]
		}

		for _, expiration := range expirations {
			exp, err := occ.ParseExpiration(expiration)
			if err != nil || !exp.After(currentExp) {
				continue // roll must move strictly later
			}

			chain, err := s.provider.Chain(ctx, sc.Symbol, expiration)
			if err != nil {
				return nil, err
			}

			for _, offset := range s.profile.RollStrikeOffsets {
				targetStrike := sc.Strike.Add(offset)
				for _, entry := range chain {
					if entry.Strike.Sub(targetStrike).Abs().GreaterThan(strikeMatchWidth) {
						continue
					}
					if entry.Delta > s.profile.RollMaxDelta || !entry.Bid.IsPositive() {
						continue
					}

					credit := pmcc.RollCredit(entry.Bid, closeCost)
					candidates = append(candidates, model.RollCandidate{
						Symbol:     entry.Symbol,
						Strike:     entry.Strike,
						Expiration: entry.Expiration,
						DTE:        entry.DTE,
						Bid:        entry.Bid,
						Delta:      entry.Delta,
						Credit:     credit,
						CloseCost:  closeCost,
						NetCredit:  credit.Mul(qty),
					})
				}
			}
		}
	}

	// Primary key credit descending, secondary key delta ascending
	// (lower delta = farther from assignment).
	sort.SliceStable(candidates, func(i, j int) bool {
		if !candidates[i].Credit.Equal(candidates[j].Credit) {
			return candidates[i].Credit.GreaterThan(candidates[j].Credit)
		}
		return candidates[i].Delta < candidates[j].Delta
	})

	topN := s.profile.RollTopN
	if len(candidates) > topN {
		candidates = candidates[:topN]
	}
	slog.Info("roll scan complete",
		"short_call_id", shortCallID,
		"symbol", sc.Symbol,
		"candidates", len(candidates),
	)
	return candidates, nil
}

// FindNewCallCandidates scans for fresh short calls over a LEAPS position,
// ranked by annualized return on the LEAPS adjusted cost basis
// (descending), tie-broken by distance from the target-delta midpoint.
func (s *Scanner) FindNewCallCandidates(ctx context.Context, leapsID string) ([]model.NewCallCandidate, error) {
	start := time.Now()
	defer func() {
		metrics.ScanDuration.WithLabelValues("new_call").Observe(time.Since(start).Seconds())
	}()

	leaps, err := s.store.GetLeaps(ctx, leapsID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, engine.NotFound("leaps position", leapsID)
	}
	if err != nil {
		return nil, engine.Storage("get leaps", err)
	}

	// The basis denominator is fixed for the whole scan so candidates
	// rank fairly against each other.
	basis := leaps.AdjustedCostBasis
	qty := decimal.NewFromInt(leaps.Quantity).Mul(decimal.NewFromInt(100))

	expirations, err := s.expirationsInRange(ctx, leaps.Symbol, s.profile.DTEMin, s.profile.DTEMax)
	if err != nil {
		return nil, err
	}
	if len(expirations) > 3 {
		expirations = expirations[:3]
	}

	var candidates []model.NewCallCandidate
	for _, expiration := range expirations {
		chain, err := s.provider.Chain(ctx, leaps.Symbol, expiration)
		if err != nil {
			return nil, err
		}

		for _, entry := range chain {
			if entry.Strike.LessThanOrEqual(leaps.Strike) {
				continue // must sit strictly above the LEAPS strike
			}
			if entry.Delta < s.profile.DeltaMin || entry.Delta > s.profile.DeltaMax {
				continue
			}
			if entry.DTE < s.profile.DTEMin || entry.DTE > s.profile.DTEMax {
				continue
			}
			if !entry.Bid.IsPositive() {
				continue
			}

			candidates = append(candidates, model.NewCallCandidate{
				Symbol:           entry.Symbol,
				Strike:           entry.Strike,
				Expiration:       entry.Expiration,
				DTE:              entry.DTE,
				Bid:              entry.Bid,
				Delta:            entry.Delta,
				Premium:          entry.Bid.Mul(qty),
				AnnualizedReturn: pmcc.AnnualizedReturn(entry.Bid, basis, entry.DTE),
			})
		}
	}

	deltaMid := (s.profile.DeltaMin + s.profile.DeltaMax) / 2
	sort.SliceStable(candidates, func(i, j int) bool {
		if !candidates[i].AnnualizedReturn.Equal(candidates[j].AnnualizedReturn) {
			return candidates[i].AnnualizedReturn.GreaterThan(candidates[j].AnnualizedReturn)
		}
		return math.Abs(candidates[i].Delta-deltaMid) < math.Abs(candidates[j].Delta-deltaMid)
	})

	topN := s.profile.NewCallTopN
	if len(candidates) > topN {
		candidates = candidates[:topN]
	}
	slog.Info("new call scan complete",
		"leaps_id", leapsID,
		"symbol", leaps.Symbol,
		"candidates", len(candidates),
	)
	return candidates, nil
}

// expirationsInRange returns the symbol's expirations whose DTE falls in
// [minDTE, maxDTE], preserving upstream (ascending) order.
func (s *Scanner) expirationsInRange(ctx context.Context, symbol string, minDTE, maxDTE int) ([]string, error) {
	all, err := s.provider.Expirations(ctx, symbol)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, expiration := range all {
		dte, err := occ.DaysToExpiration(expiration, s.now())
		if err != nil {
			continue
		}
		if dte >= minDTE && dte <= maxDTE {
			out = append(out, expiration)
		}
	}
	return out, nil
}
