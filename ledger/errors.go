package ledger

import (
	"errors"

	"stocks-simulator/marketdata"
)

var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrNoPosition         = errors.New("no position in this symbol")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrAmountTooSmall     = errors.New("investment amount too small to purchase any meaningful quantity of shares")
	ErrDateOutOfRange     = errors.New("date out of range")

	// ErrSymbolNotFound is shared with the market data client so callers can
	// match either source with one errors.Is.
	ErrSymbolNotFound = marketdata.ErrSymbolNotFound
)

// ValidationError reports malformed input. It is raised before any I/O.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
