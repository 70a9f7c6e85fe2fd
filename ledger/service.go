package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stocks-simulator/marketdata"
	"stocks-simulator/models"
)

const DefaultMaxQuantity = 10000

// Quoter supplies live prices.
type Quoter interface {
	Quote(ctx context.Context, symbol string) (*marketdata.Quote, error)
}

type Options struct {
	MaxQuantity int64
	Location    *time.Location // market time zone for backdated timestamps
	Now         func() time.Time
}

// Service executes trades against a Store.
type Service struct {
	store  Store
	quotes Quoter
	log    zerolog.Logger
	maxQty int64
	loc    *time.Location
	now    func() time.Time
}

func NewService(store Store, quotes Quoter, log zerolog.Logger, opts Options) *Service {
	s := &Service{
		store:  store,
		quotes: quotes,
		log:    log.With().Str("component", "ledger").Logger(),
		maxQty: opts.MaxQuantity,
		loc:    opts.Location,
		now:    opts.Now,
	}
	if s.maxQty <= 0 {
		s.maxQty = DefaultMaxQuantity
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// TradeResult describes a completed buy or sell. Holding is nil after a
// sell that closed the position.
type TradeResult struct {
	Balance     decimal.Decimal    `json:"newBalance"`
	Quote       marketdata.Quote   `json:"quote"`
	Holding     *models.Holding    `json:"holding"`
	Transaction models.Transaction `json:"transaction"`
	Message     string             `json:"message"`
}

// BackdatedOrder buys Amount worth of Symbol at HistoricalPrice on Date.
type BackdatedOrder struct {
	Symbol          string          `json:"symbol"`
	Amount          decimal.Decimal `json:"amount"`
	Date            string          `json:"date"`
	HistoricalPrice decimal.Decimal `json:"historicalPrice"`
	CompanyName     string          `json:"companyName"`
}

type BackdatedResult struct {
	Balance     decimal.Decimal    `json:"newBalance"`
	Shares      decimal.Decimal    `json:"shares"`
	Holding     models.Holding     `json:"holding"`
	Transaction models.Transaction `json:"transaction"`
	Message     string             `json:"message"`
}

// Buy purchases quantity whole shares at the live price.
func (s *Service) Buy(ctx context.Context, accountID, symbol string, quantity int64) (*TradeResult, error) {
	symbol, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if quantity < 1 || quantity > s.maxQty {
		return nil, invalid("quantity", fmt.Sprintf("Quantity must be between 1 and %d", s.maxQty))
	}

	quote, err := s.livePrice(ctx, symbol)
	if err != nil {
		return nil, err
	}

	qty := decimal.NewFromInt(quantity)
	total := quote.Price.Mul(qty)
	res := &TradeResult{Quote: *quote}

	err = s.store.Atomic(ctx, accountID, func(tx Tx) error {
		balance := tx.Account().Balance
		if balance.LessThan(total) {
			return fmt.Errorf("%w: need %s, available %s", ErrInsufficientFunds, FormatUSD(total), FormatUSD(balance))
		}
		balance = balance.Sub(total)
		if err := tx.SetBalance(balance); err != nil {
			return err
		}

		h, err := addLot(tx, accountID, symbol, quote.Name, qty, quote.Price)
		if err != nil {
			return err
		}

		t := models.Transaction{
			UserID:       accountID,
			Type:         models.Buy,
			Symbol:       symbol,
			CompanyName:  quote.Name,
			Quantity:     qty,
			Price:        quote.Price,
			Total:        total,
			BalanceAfter: balance,
			Timestamp:    s.now(),
		}
		if err := tx.AppendTransaction(&t); err != nil {
			return err
		}

		res.Balance = balance
		res.Holding = h
		res.Transaction = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.Message = fmt.Sprintf("Successfully bought %d shares of %s for %s", quantity, symbol, FormatUSD(total))
	s.log.Info().Str("account", accountID).Str("symbol", symbol).Int64("quantity", quantity).
		Str("total", total.StringFixed(2)).Msg("buy executed")
	return res, nil
}

// Sell disposes of quantity shares at the live price. The position is
// deleted when it reaches zero; the average price is never changed by a sell.
func (s *Service) Sell(ctx context.Context, accountID, symbol string, quantity int64) (*TradeResult, error) {
	symbol, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, invalid("quantity", "Quantity must be at least 1")
	}

	quote, err := s.livePrice(ctx, symbol)
	if err != nil {
		return nil, err
	}

	qty := decimal.NewFromInt(quantity)
	proceeds := quote.Price.Mul(qty)
	res := &TradeResult{Quote: *quote}

	err = s.store.Atomic(ctx, accountID, func(tx Tx) error {
		h, err := tx.Holding(symbol)
		if err != nil {
			return err
		}
		if h == nil {
			return fmt.Errorf("%w: you do not own any shares of %s", ErrNoPosition, symbol)
		}
		if h.Quantity.LessThan(qty) {
			return fmt.Errorf("%w: you only own %s shares of %s", ErrInsufficientShares, h.Quantity.String(), symbol)
		}

		balance := tx.Account().Balance.Add(proceeds)
		if err := tx.SetBalance(balance); err != nil {
			return err
		}

		h.Quantity = h.Quantity.Sub(qty)
		if h.Quantity.IsZero() {
			if err := tx.DeleteHolding(h); err != nil {
				return err
			}
			res.Holding = nil
		} else {
			if err := tx.SaveHolding(h); err != nil {
				return err
			}
			res.Holding = h
		}

		t := models.Transaction{
			UserID:       accountID,
			Type:         models.Sell,
			Symbol:       symbol,
			CompanyName:  firstNonEmpty(h.CompanyName, quote.Name),
			Quantity:     qty,
			Price:        quote.Price,
			Total:        proceeds,
			BalanceAfter: balance,
			Timestamp:    s.now(),
		}
		if err := tx.AppendTransaction(&t); err != nil {
			return err
		}

		res.Balance = balance
		res.Transaction = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.Message = fmt.Sprintf("Successfully sold %d shares of %s for %s", quantity, symbol, FormatUSD(proceeds))
	s.log.Info().Str("account", accountID).Str("symbol", symbol).Int64("quantity", quantity).
		Str("proceeds", proceeds.StringFixed(2)).Msg("sell executed")
	return res, nil
}

// BackdatedPurchase invests a dollar amount at a historical close price.
// Shares may be fractional. The transaction is stamped at market close on
// the requested date.
func (s *Service) BackdatedPurchase(ctx context.Context, accountID string, order BackdatedOrder) (*BackdatedResult, error) {
	symbol, err := NormalizeSymbol(order.Symbol)
	if err != nil {
		return nil, err
	}
	if err := ValidateAmount(order.Amount); err != nil {
		return nil, err
	}
	if order.HistoricalPrice.LessThan(MinHistorical) {
		return nil, invalid("historicalPrice", "Historical price must be positive")
	}
	company := strings.TrimSpace(order.CompanyName)
	if company == "" {
		return nil, invalid("companyName", "Company name is required")
	}
	date, err := ParseDate(order.Date)
	if err != nil {
		return nil, err
	}
	if err := CheckLookback(date, Today(s.now(), s.loc)); err != nil {
		return nil, err
	}

	shares, err := SharesFor(order.Amount, order.HistoricalPrice)
	if err != nil {
		return nil, err
	}

	res := &BackdatedResult{Shares: shares}
	err = s.store.Atomic(ctx, accountID, func(tx Tx) error {
		balance := tx.Account().Balance
		if balance.LessThan(order.Amount) {
			return fmt.Errorf("%w: need %s, available %s", ErrInsufficientFunds, FormatUSD(order.Amount), FormatUSD(balance))
		}
		balance = balance.Sub(order.Amount)
		if err := tx.SetBalance(balance); err != nil {
			return err
		}

		h, err := addLot(tx, accountID, symbol, company, shares, order.HistoricalPrice)
		if err != nil {
			return err
		}

		t := models.Transaction{
			UserID:       accountID,
			Type:         models.Buy,
			Symbol:       symbol,
			CompanyName:  company,
			Quantity:     shares,
			Price:        order.HistoricalPrice,
			Total:        order.Amount,
			BalanceAfter: balance,
			Timestamp:    MarketClose(date, s.loc),
		}
		if err := tx.AppendTransaction(&t); err != nil {
			return err
		}

		res.Balance = balance
		res.Holding = *h
		res.Transaction = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.Message = fmt.Sprintf("Successfully purchased %s shares of %s on %s", shares.StringFixed(4), symbol, date.Format(dateLayout))
	s.log.Info().Str("account", accountID).Str("symbol", symbol).Str("shares", shares.String()).
		Str("date", date.Format(dateLayout)).Msg("backdated purchase executed")
	return res, nil
}

func (s *Service) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	acct, err := s.store.Account(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return acct.Balance, nil
}

func (s *Service) Holdings(ctx context.Context, accountID string) ([]models.Holding, error) {
	return s.store.Holdings(ctx, accountID)
}

// Transactions lists trades newest first.
func (s *Service) Transactions(ctx context.Context, accountID string, filter TransactionFilter) ([]models.Transaction, error) {
	if filter.Limit <= 0 {
		filter.Limit = DefaultTransactionLimit
	}
	filter.Limit = min(filter.Limit, MaxTransactionLimit)
	return s.store.Transactions(ctx, accountID, filter)
}

func (s *Service) livePrice(ctx context.Context, symbol string) (*marketdata.Quote, error) {
	q, err := s.quotes.Quote(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}
	if !q.Price.IsPositive() {
		return nil, fmt.Errorf("%w: no valid price for %s", ErrSymbolNotFound, symbol)
	}
	return q, nil
}

// addLot creates the holding or folds the lot into its weighted average.
func addLot(tx Tx, accountID, symbol, company string, qty, price decimal.Decimal) (*models.Holding, error) {
	h, err := tx.Holding(symbol)
	if err != nil {
		return nil, err
	}
	if h == nil {
		h = &models.Holding{
			UserID:       accountID,
			Symbol:       symbol,
			CompanyName:  company,
			Quantity:     qty,
			AveragePrice: price,
		}
	} else {
		h.AveragePrice = WeightedAverage(h.Quantity, h.AveragePrice, qty, price)
		h.Quantity = h.Quantity.Add(qty)
		if h.CompanyName == "" {
			h.CompanyName = company
		}
	}
	if err := tx.SaveHolding(h); err != nil {
		return nil, err
	}
	return h, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
