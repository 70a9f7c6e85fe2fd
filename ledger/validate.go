package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stocks-simulator/marketdata"
)

const (
	// LookbackYears bounds how far in the past a backdated order may go.
	LookbackYears = 5

	dateLayout    = "2006-01-02"
	shareDivScale = 16
	storedScale   = 8
)

var (
	MinAmount       = decimal.NewFromInt(1)
	MaxAmount       = decimal.NewFromInt(1_000_000)
	MinShares       = decimal.RequireFromString("0.0001")
	MinHistorical   = decimal.RequireFromString("0.01")
	marketCloseHour = 16
)

// NormalizeSymbol trims and upper-cases s and checks the ticker format.
func NormalizeSymbol(s string) (string, error) {
	symbol := strings.ToUpper(strings.TrimSpace(s))
	if symbol == "" {
		return "", invalid("symbol", "Symbol is required")
	}
	if !marketdata.ValidSymbol(symbol) {
		return "", invalid("symbol", "Invalid symbol format")
	}
	return symbol, nil
}

// ParseDate parses a YYYY-MM-DD calendar date as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, invalid("date", "Date must be in YYYY-MM-DD format")
	}
	return t, nil
}

// Today is the current calendar date in loc, as midnight UTC.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return marketdata.Day(now.In(loc))
}

// CheckLookback requires date to be strictly before today and no earlier
// than LookbackYears before it.
func CheckLookback(date, today time.Time) error {
	if !date.Before(today) {
		return fmt.Errorf("%w: date must be in the past", ErrDateOutOfRange)
	}
	if date.Before(today.AddDate(-LookbackYears, 0, 0)) {
		return fmt.Errorf("%w: date cannot be more than %d years ago", ErrDateOutOfRange, LookbackYears)
	}
	return nil
}

// ValidateAmount checks an investment amount against MinAmount and MaxAmount.
func ValidateAmount(amount decimal.Decimal) error {
	if amount.LessThan(MinAmount) {
		return invalid("amount", "Minimum investment is "+FormatUSD(MinAmount))
	}
	if amount.GreaterThan(MaxAmount) {
		return invalid("amount", "Maximum investment is "+FormatUSD(MaxAmount))
	}
	return nil
}

// WeightedAverage blends an existing position with a new lot.
func WeightedAverage(oldQty, oldAvg, addQty, price decimal.Decimal) decimal.Decimal {
	totalQty := oldQty.Add(addQty)
	if !totalQty.IsPositive() {
		return price
	}
	cost := oldQty.Mul(oldAvg).Add(addQty.Mul(price))
	return cost.DivRound(totalQty, storedScale)
}

// SharesFor divides amount by price, returning ErrAmountTooSmall when the
// result is below MinShares. The result is rounded for storage.
func SharesFor(amount, price decimal.Decimal) (decimal.Decimal, error) {
	shares := amount.DivRound(price, shareDivScale)
	if shares.LessThan(MinShares) {
		return decimal.Zero, ErrAmountTooSmall
	}
	return shares.Round(storedScale), nil
}

// MarketClose is 16:00 on date's calendar day in loc.
func MarketClose(date time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, marketCloseHour, 0, 0, 0, loc)
}
