// Package occ handles OCC option symbol formatting, parsing, and
// expiration-date arithmetic.
package occ

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Option types.
const (
	Call = "C"
	Put  = "P"
)

// symbolRegex matches: {underlying}{YYMMDD}{C|P}{strike*1000, 8 digits}
// Example: SPY260321C00730000
var symbolRegex = regexp.MustCompile(`^([A-Z]{1,6})(\d{6})([CP])(\d{8})$`)

var (
	ErrInvalidSymbol     = errors.New("occ: invalid option symbol")
	ErrInvalidExpiration = errors.New("occ: invalid expiration date")
)

// ExpirationLayout is the chain/API date layout.
const ExpirationLayout = "2006-01-02"

// Option is a parsed OCC option symbol.
type Option struct {
	Underlying string          `json:"underlying"`
	Expiration string          `json:"expiration"` // YYYY-MM-DD
	Type       string          `json:"type"`       // "C" or "P"
	Strike     decimal.Decimal `json:"strike"`
}

// Format builds an OCC symbol: underlying + yymmdd + C/P + strike*1000
// zero-padded to 8 digits. Example: SPY, 2026-03-21, C, 730 →
// SPY260321C00730000.
func Format(underlying, expiration, optType string, strike decimal.Decimal) (string, error) {
	exp, err := time.Parse(ExpirationLayout, expiration)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidExpiration, expiration)
	}
	if optType != Call && optType != Put {
		return "", fmt.Errorf("%w: option type %q", ErrInvalidSymbol, optType)
	}

	milli := strike.Mul(decimal.NewFromInt(1000)).IntPart()
	return fmt.Sprintf("%s%s%s%08d",
		strings.ToUpper(underlying), exp.Format("060102"), optType, milli), nil
}

// Parse splits an OCC symbol into its components.
func Parse(symbol string) (*Option, error) {
	matches := symbolRegex.FindStringSubmatch(symbol)
	if matches == nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSymbol, symbol)
	}

	exp, err := time.Parse("060102", matches[2])
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSymbol, symbol)
	}

	milli, err := strconv.ParseInt(matches[4], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSymbol, symbol)
	}

	return &Option{
		Underlying: matches[1],
		Expiration: exp.Format(ExpirationLayout),
		Type:       matches[3],
		Strike:     decimal.New(milli, -3),
	}, nil
}

// ParseExpiration validates a YYYY-MM-DD expiration string.
func ParseExpiration(expiration string) (time.Time, error) {
	t, err := time.Parse(ExpirationLayout, expiration)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s", ErrInvalidExpiration, expiration)
	}
	return t, nil
}

// DaysToExpiration returns whole days from now until expiration, floored
// at zero once the date has passed.
func DaysToExpiration(expiration string, now time.Time) (int, error) {
	exp, err := ParseExpiration(expiration)
	if err != nil {
		return 0, err
	}
	days := int(exp.Sub(now.Truncate(24*time.Hour)).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return days, nil
}
