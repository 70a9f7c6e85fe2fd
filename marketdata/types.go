package marketdata

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a live quote. Change and ChangePercent are derived from
// Price and PreviousClose.
type Quote struct {
	Symbol        string          `json:"symbol"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"changePercent"`
	Volume        int64           `json:"volume"`
	Timestamp     string          `json:"timestamp"`
	PreviousClose decimal.Decimal `json:"previousClose"`
	Open          decimal.Decimal `json:"open"`
	High          decimal.Decimal `json:"high"`
	Low           decimal.Decimal `json:"low"`
}

type SearchResult struct {
	Symbol         string `json:"symbol"`
	InstrumentName string `json:"instrument_name"`
	Exchange       string `json:"exchange"`
	InstrumentType string `json:"instrument_type"`
	Country        string `json:"country"`
}

// Bar is one daily OHLCV row.
type Bar struct {
	Date     time.Time       `json:"-"`
	Datetime string          `json:"datetime"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	Volume   int64           `json:"volume"`
}

// HistoricalPrice is the bar of the closest trading day on or before
// Requested. Date may therefore be earlier than Requested.
type HistoricalPrice struct {
	Bar
	Requested time.Time `json:"-"`
}

// Price is the close of the resolved day.
func (h HistoricalPrice) Price() decimal.Decimal { return h.Close }

// Adjusted reports whether the resolved trading day differs from the request.
func (h HistoricalPrice) Adjusted() bool { return !h.Date.Equal(h.Requested) }

// BatchResult holds the quotes that resolved. A symbol missing from Quotes
// is unknown, never zero-priced. Warning describes partial failure.
type BatchResult struct {
	Quotes  map[string]Quote
	Warning string
}
