package ledger

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stocks-simulator/models"
)

const (
	DefaultTransactionLimit = 50
	MaxTransactionLimit     = 500
)

// Tx is the view of one account inside an atomic unit. Writes become visible
// only if the unit's function returns nil.
type Tx interface {
	// Account is the locked account row.
	Account() *models.User
	SetBalance(balance decimal.Decimal) error
	// Holding returns nil when the account has no position in symbol.
	Holding(symbol string) (*models.Holding, error)
	SaveHolding(h *models.Holding) error
	DeleteHolding(h *models.Holding) error
	AppendTransaction(t *models.Transaction) error
}

// Store persists accounts, holdings and transactions.
type Store interface {
	// Atomic runs fn with the account exclusively locked. It returns
	// ErrAccountNotFound when no such account exists.
	Atomic(ctx context.Context, accountID string, fn func(Tx) error) error
	Account(ctx context.Context, accountID string) (*models.User, error)
	Holdings(ctx context.Context, accountID string) ([]models.Holding, error)
	Transactions(ctx context.Context, accountID string, filter TransactionFilter) ([]models.Transaction, error)
}

// TransactionFilter narrows a transaction listing. To is exclusive.
type TransactionFilter struct {
	Limit  int
	Type   models.TransactionType
	Symbol string
	From   time.Time
	To     time.Time
}

// Match reports whether t passes every non-zero criterion. Limit is not
// considered.
func (f TransactionFilter) Match(t models.Transaction) bool {
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.Symbol != "" && t.Symbol != f.Symbol {
		return false
	}
	if !f.From.IsZero() && t.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !t.Timestamp.Before(f.To) {
		return false
	}
	return true
}

// ParseTransactionFilter builds a filter from query-string values. Empty
// values are ignored; to is an inclusive calendar date.
func ParseTransactionFilter(limit, typ, symbol, from, to string) (TransactionFilter, error) {
	f := TransactionFilter{Limit: DefaultTransactionLimit}

	if limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 {
			return f, invalid("limit", "Limit must be a positive integer")
		}
		f.Limit = min(n, MaxTransactionLimit)
	}

	switch t := models.TransactionType(strings.ToUpper(strings.TrimSpace(typ))); t {
	case "":
	case models.Buy, models.Sell:
		f.Type = t
	default:
		return f, invalid("type", "Type must be BUY or SELL")
	}

	if symbol != "" {
		s, err := NormalizeSymbol(symbol)
		if err != nil {
			return f, err
		}
		f.Symbol = s
	}

	if from != "" {
		d, err := ParseDate(from)
		if err != nil {
			return f, invalid("from", "From must be in YYYY-MM-DD format")
		}
		f.From = d
	}
	if to != "" {
		d, err := ParseDate(to)
		if err != nil {
			return f, invalid("to", "To must be in YYYY-MM-DD format")
		}
		f.To = d.AddDate(0, 0, 1)
	}
	if !f.From.IsZero() && !f.To.IsZero() && !f.From.Before(f.To) {
		return f, invalid("from", "From must not be after to")
	}
	return f, nil
}
