package valuation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stocks-simulator/ledger"
	"stocks-simulator/marketdata"
	"stocks-simulator/models"
)

var ErrPriceUnavailable = errors.New("price unavailable")

const dateLayout = "2006-01-02"

type HoldingsSource interface {
	Holdings(ctx context.Context, accountID string) ([]models.Holding, error)
}

type MarketData interface {
	Quote(ctx context.Context, symbol string) (*marketdata.Quote, error)
	BatchQuotes(ctx context.Context, symbols []string) (marketdata.BatchResult, error)
	HistoricalPrice(ctx context.Context, symbol string, date time.Time) (*marketdata.HistoricalPrice, error)
	TimeSeriesRange(ctx context.Context, symbol string, start, end time.Time) ([]marketdata.Bar, error)
}

type Options struct {
	Location *time.Location
	Now      func() time.Time
}

type Service struct {
	holdings HoldingsSource
	market   MarketData
	log      zerolog.Logger
	loc      *time.Location
	now      func() time.Time
}

func NewService(holdings HoldingsSource, market MarketData, log zerolog.Logger, opts Options) *Service {
	s := &Service{
		holdings: holdings,
		market:   market,
		log:      log.With().Str("component", "valuation").Logger(),
		loc:      opts.Location,
		now:      opts.Now,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Report is a portfolio valuation with the reason any quotes are missing.
type Report struct {
	Portfolio
	Warning string `json:"warning,omitempty"`
}

// PortfolioValue values the account's holdings at live prices. Quote
// failures never fail the report; they leave positions unvalued.
func (s *Service) PortfolioValue(ctx context.Context, accountID string) (*Report, error) {
	holdings, err := s.holdings.Holdings(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if len(holdings) == 0 {
		return &Report{Portfolio: Compute(nil, nil)}, nil
	}

	symbols := make([]string, len(holdings))
	for i, h := range holdings {
		symbols[i] = h.Symbol
	}

	report := &Report{}
	batch, err := s.market.BatchQuotes(ctx, symbols)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.log.Warn().Err(err).Str("account", accountID).Msg("portfolio quotes unavailable")
		report.Warning = "Live prices are unavailable: " + err.Error()
	} else {
		report.Warning = batch.Warning
	}

	report.Portfolio = Compute(holdings, batch.Quotes)
	return report, nil
}

type OHLC struct {
	Open  decimal.Decimal `json:"open"`
	High  decimal.Decimal `json:"high"`
	Low   decimal.Decimal `json:"low"`
	Close decimal.Decimal `json:"close"`
}

// HistoricalQuote is the close used for a requested date. ActualDate is the
// trading day that was resolved, which may precede RequestedDate.
type HistoricalQuote struct {
	Symbol          string          `json:"symbol"`
	RequestedDate   string          `json:"requestedDate"`
	ActualDate      string          `json:"actualDate"`
	Adjusted        bool            `json:"adjusted"`
	HistoricalPrice decimal.Decimal `json:"historicalPrice"`
	HistoricalData  OHLC            `json:"historicalData"`
}

// HistoricalPrice looks up the close for symbol on date (YYYY-MM-DD), within
// the lookback window.
func (s *Service) HistoricalPrice(ctx context.Context, symbol, date string) (*HistoricalQuote, error) {
	symbol, day, err := s.validateLookup(symbol, date)
	if err != nil {
		return nil, err
	}

	hp, err := s.market.HistoricalPrice(ctx, symbol, day)
	if err != nil {
		return nil, err
	}
	if hp == nil || !hp.Price().IsPositive() {
		return nil, fmt.Errorf("%w: unable to fetch historical data for %s", ErrPriceUnavailable, symbol)
	}

	return &HistoricalQuote{
		Symbol:          symbol,
		RequestedDate:   day.Format(dateLayout),
		ActualDate:      hp.Date.Format(dateLayout),
		Adjusted:        hp.Adjusted(),
		HistoricalPrice: hp.Price(),
		HistoricalData:  OHLC{Open: hp.Open, High: hp.High, Low: hp.Low, Close: hp.Close},
	}, nil
}

type CurrentPrice struct {
	Symbol       string          `json:"symbol"`
	CompanyName  string          `json:"companyName"`
	CurrentPrice decimal.Decimal `json:"currentPrice"`
}

func (s *Service) CurrentPrice(ctx context.Context, symbol string) (*CurrentPrice, error) {
	symbol, err := ledger.NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	q, err := s.livePrice(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return &CurrentPrice{Symbol: symbol, CompanyName: q.Name, CurrentPrice: q.Price}, nil
}

type ChartPoint struct {
	Datetime string          `json:"datetime"`
	Price    decimal.Decimal `json:"price"`
}

// Simulation is the outcome of investing Amount on a past date and holding
// until today.
type Simulation struct {
	Symbol             string          `json:"symbol"`
	CompanyName        string          `json:"companyName"`
	InvestmentDate     string          `json:"investmentDate"`
	ActualDate         string          `json:"actualDate"`
	InvestmentAmount   decimal.Decimal `json:"investmentAmount"`
	HistoricalPrice    decimal.Decimal `json:"historicalPrice"`
	CurrentPrice       decimal.Decimal `json:"currentPrice"`
	SharesBought       decimal.Decimal `json:"sharesBought"`
	CurrentValue       decimal.Decimal `json:"currentValue"`
	TotalProfit        decimal.Decimal `json:"totalProfit"`
	TotalProfitPercent decimal.Decimal `json:"totalProfitPercent"`
	HistoricalData     OHLC            `json:"historicalData"`
	ChartData          []ChartPoint    `json:"chartData"`
	ChartWarning       string          `json:"chartWarning,omitempty"`
}

// SimulateInvestment computes what amount invested in symbol on date would be
// worth now. It records nothing.
func (s *Service) SimulateInvestment(ctx context.Context, symbol, date string, amount decimal.Decimal) (*Simulation, error) {
	if err := ledger.ValidateAmount(amount); err != nil {
		return nil, err
	}
	hq, err := s.HistoricalPrice(ctx, symbol, date)
	if err != nil {
		return nil, err
	}
	q, err := s.livePrice(ctx, hq.Symbol)
	if err != nil {
		return nil, err
	}

	shares := amount.Div(hq.HistoricalPrice)
	value := shares.Mul(q.Price).Round(8)
	profit := value.Sub(amount)

	sim := &Simulation{
		Symbol:             hq.Symbol,
		CompanyName:        q.Name,
		InvestmentDate:     hq.RequestedDate,
		ActualDate:         hq.ActualDate,
		InvestmentAmount:   amount,
		HistoricalPrice:    hq.HistoricalPrice,
		CurrentPrice:       q.Price,
		SharesBought:       shares.Round(8),
		CurrentValue:       value,
		TotalProfit:        profit,
		TotalProfitPercent: profit.Div(amount).Mul(hundred).Round(percentScale),
		HistoricalData:     hq.HistoricalData,
		ChartData:          []ChartPoint{},
	}

	start, _ := time.Parse(dateLayout, hq.ActualDate)
	bars, err := s.market.TimeSeriesRange(ctx, hq.Symbol, start, ledger.Today(s.now(), s.loc))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.log.Warn().Err(err).Str("symbol", hq.Symbol).Msg("simulation chart unavailable")
		sim.ChartWarning = "Chart data is unavailable: " + err.Error()
		return sim, nil
	}
	for _, b := range bars {
		sim.ChartData = append(sim.ChartData, ChartPoint{Datetime: b.Datetime, Price: b.Close})
	}
	return sim, nil
}

func (s *Service) validateLookup(symbol, date string) (string, time.Time, error) {
	symbol, err := ledger.NormalizeSymbol(symbol)
	if err != nil {
		return "", time.Time{}, err
	}
	day, err := ledger.ParseDate(date)
	if err != nil {
		return "", time.Time{}, err
	}
	if err := ledger.CheckLookback(day, ledger.Today(s.now(), s.loc)); err != nil {
		return "", time.Time{}, err
	}
	return symbol, day, nil
}

func (s *Service) livePrice(ctx context.Context, symbol string) (*marketdata.Quote, error) {
	q, err := s.market.Quote(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if q == nil || !q.Price.IsPositive() {
		return nil, fmt.Errorf("%w: unable to fetch current price for %s", ErrPriceUnavailable, symbol)
	}
	return q, nil
}
