// Package watchlist tracks symbols an account follows without holding them.
package watchlist

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"stocks-simulator/ledger"
	"stocks-simulator/marketdata"
	"stocks-simulator/models"
)

var (
	ErrDuplicate = errors.New("stock is already in your watchlist")
	ErrNotFound  = errors.New("stock is not in your watchlist")
)

// Store persists watchlist entries.
type Store interface {
	// AddWatch returns ErrDuplicate when the symbol is already watched.
	AddWatch(ctx context.Context, w *models.Watchlist) error
	// RemoveWatch returns ErrNotFound when nothing was removed.
	RemoveWatch(ctx context.Context, userID, symbol string) error
	// Watchlist lists entries newest first.
	Watchlist(ctx context.Context, userID string) ([]models.Watchlist, error)
	WatchEntry(ctx context.Context, userID, symbol string) (*models.Watchlist, error)
}

type Quoter interface {
	Quote(ctx context.Context, symbol string) (*marketdata.Quote, error)
	BatchQuotes(ctx context.Context, symbols []string) (marketdata.BatchResult, error)
}

// Item is a watchlist entry with its live quote, when one could be fetched.
type Item struct {
	models.Watchlist
	Quote    *marketdata.Quote `json:"quote"`
	HasQuote bool              `json:"hasQuote"`
}

// List is an account's watchlist. Warning is set when some or all quotes
// could not be loaded.
type List struct {
	Items   []Item `json:"items"`
	Warning string `json:"warning,omitempty"`
}

type Service struct {
	store  Store
	quotes Quoter
	log    zerolog.Logger
}

func NewService(store Store, quotes Quoter, log zerolog.Logger) *Service {
	return &Service{
		store:  store,
		quotes: quotes,
		log:    log.With().Str("component", "watchlist").Logger(),
	}
}

// Add watches symbol after confirming the provider knows it. The provider's
// company name wins over the one supplied.
func (s *Service) Add(ctx context.Context, userID, symbol, companyName string) (*models.Watchlist, error) {
	symbol, err := ledger.NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	q, err := s.quotes.Quote(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, fmt.Errorf("%w: %s", marketdata.ErrSymbolNotFound, symbol)
	}

	w := &models.Watchlist{
		UserID:      userID,
		Symbol:      symbol,
		CompanyName: firstNonEmpty(q.Name, strings.TrimSpace(companyName), symbol),
	}
	if err := s.store.AddWatch(ctx, w); err != nil {
		return nil, err
	}

	s.log.Info().Str("account", userID).Str("symbol", symbol).Msg("added to watchlist")
	return w, nil
}

func (s *Service) Remove(ctx context.Context, userID, symbol string) error {
	symbol, err := ledger.NormalizeSymbol(symbol)
	if err != nil {
		return err
	}
	if err := s.store.RemoveWatch(ctx, userID, symbol); err != nil {
		return err
	}
	s.log.Info().Str("account", userID).Str("symbol", symbol).Msg("removed from watchlist")
	return nil
}

// List returns the watchlist with live quotes. Quote failures degrade to
// items without a quote and a warning; they never fail the listing.
func (s *Service) List(ctx context.Context, userID string) (*List, error) {
	entries, err := s.store.Watchlist(ctx, userID)
	if err != nil {
		return nil, err
	}

	list := &List{Items: make([]Item, 0, len(entries))}
	if len(entries) == 0 {
		return list, nil
	}

	symbols := make([]string, len(entries))
	for i, e := range entries {
		symbols[i] = e.Symbol
	}

	batch, err := s.quotes.BatchQuotes(ctx, symbols)
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.log.Warn().Err(err).Str("account", userID).Msg("watchlist quotes unavailable")
		list.Warning = "Live prices are unavailable: " + err.Error()
	case batch.Warning != "":
		list.Warning = batch.Warning
	}

	for _, e := range entries {
		item := Item{Watchlist: e}
		if q, ok := batch.Quotes[e.Symbol]; ok {
			item.Quote = &q
			item.HasQuote = true
		}
		list.Items = append(list.Items, item)
	}
	return list, nil
}

// Contains reports whether symbol is on the account's watchlist.
func (s *Service) Contains(ctx context.Context, userID, symbol string) (bool, error) {
	symbol, err := ledger.NormalizeSymbol(symbol)
	if err != nil {
		return false, err
	}
	_, err = s.store.WatchEntry(ctx, userID, symbol)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
