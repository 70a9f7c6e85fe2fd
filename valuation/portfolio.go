// Package valuation prices holdings against live quotes and simulates past
// investments.
package valuation

import (
	"sort"

	"github.com/shopspring/decimal"

	"stocks-simulator/marketdata"
	"stocks-simulator/models"
)

// Status summarizes how much of a portfolio could be priced.
type Status string

const (
	StatusEmpty       Status = "empty"
	StatusComplete    Status = "complete"
	StatusPartial     Status = "partial"
	StatusUnavailable Status = "unavailable"
)

const percentScale = 4

var hundred = decimal.NewFromInt(100)

// Position is a holding with its market valuation. The market fields are nil
// when no valid quote exists; they are never filled with a placeholder.
type Position struct {
	Symbol        string           `json:"symbol"`
	CompanyName   string           `json:"companyName"`
	Quantity      decimal.Decimal  `json:"quantity"`
	AveragePrice  decimal.Decimal  `json:"averagePrice"`
	Cost          decimal.Decimal  `json:"cost"`
	HasValidQuote bool             `json:"hasValidQuote"`
	CurrentPrice  *decimal.Decimal `json:"currentPrice"`
	Value         *decimal.Decimal `json:"value"`
	GainLoss      *decimal.Decimal `json:"gainLoss"`
	GainLossPct   *decimal.Decimal `json:"gainLossPercent"`
	AllocationPct *decimal.Decimal `json:"allocationPercent"`
	Change        *decimal.Decimal `json:"change"`
	ChangePercent *decimal.Decimal `json:"changePercent"`
}

// Portfolio is the valuation of every holding of one account. TotalValue
// covers valued positions only. TotalGainLoss and TotalGainLossPercent are
// nil unless every position was valued.
type Portfolio struct {
	Positions            []Position       `json:"holdings"`
	TotalValue           decimal.Decimal  `json:"totalValue"`
	TotalCost            decimal.Decimal  `json:"totalCost"`
	TotalGainLoss        *decimal.Decimal `json:"totalGainLoss"`
	TotalGainLossPercent *decimal.Decimal `json:"totalGainLossPercent"`
	AllPricesLoaded      bool             `json:"allPricesLoaded"`
	ValuedCount          int              `json:"valuedCount"`
	Status               Status           `json:"status"`
}

// Compute values holdings with quotes keyed by symbol. It performs no I/O.
func Compute(holdings []models.Holding, quotes map[string]marketdata.Quote) Portfolio {
	p := Portfolio{
		Positions:  make([]Position, 0, len(holdings)),
		TotalValue: decimal.Zero,
		TotalCost:  decimal.Zero,
	}

	for _, h := range holdings {
		pos := Position{
			Symbol:       h.Symbol,
			CompanyName:  h.CompanyName,
			Quantity:     h.Quantity,
			AveragePrice: h.AveragePrice,
			Cost:         h.CostBasis(),
		}
		p.TotalCost = p.TotalCost.Add(pos.Cost)

		if q, ok := quotes[h.Symbol]; ok && q.Price.IsPositive() {
			value := h.Quantity.Mul(q.Price)
			gain := value.Sub(pos.Cost)
			pos.HasValidQuote = true
			pos.CurrentPrice = ptr(q.Price)
			pos.Value = ptr(value)
			pos.GainLoss = ptr(gain)
			pos.GainLossPct = percentOf(gain, pos.Cost)
			pos.Change = ptr(q.Change)
			pos.ChangePercent = ptr(q.ChangePercent)
			if pos.CompanyName == "" {
				pos.CompanyName = q.Name
			}

			p.TotalValue = p.TotalValue.Add(value)
			p.ValuedCount++
		}
		p.Positions = append(p.Positions, pos)
	}

	if p.TotalValue.IsPositive() {
		for i := range p.Positions {
			if v := p.Positions[i].Value; v != nil {
				p.Positions[i].AllocationPct = ptr(v.Div(p.TotalValue).Mul(hundred).Round(percentScale))
			}
		}
	}

	sort.SliceStable(p.Positions, func(i, j int) bool {
		a, b := p.Positions[i], p.Positions[j]
		if a.HasValidQuote != b.HasValidQuote {
			return a.HasValidQuote
		}
		if a.HasValidQuote && !a.Value.Equal(*b.Value) {
			return a.Value.GreaterThan(*b.Value)
		}
		return a.Cost.GreaterThan(b.Cost)
	})

	p.AllPricesLoaded = p.ValuedCount == len(holdings)
	switch {
	case len(holdings) == 0:
		p.Status = StatusEmpty
	case p.ValuedCount == 0:
		p.Status = StatusUnavailable
	case p.AllPricesLoaded:
		p.Status = StatusComplete
	default:
		p.Status = StatusPartial
	}

	if p.AllPricesLoaded {
		gain := p.TotalValue.Sub(p.TotalCost)
		p.TotalGainLoss = ptr(gain)
		p.TotalGainLossPercent = percentOf(gain, p.TotalCost)
		if p.TotalGainLossPercent == nil {
			p.TotalGainLossPercent = ptr(decimal.Zero)
		}
	}
	return p
}

// percentOf is part/whole*100, or nil when whole is not positive.
func percentOf(part, whole decimal.Decimal) *decimal.Decimal {
	if !whole.IsPositive() {
		return nil
	}
	return ptr(part.Div(whole).Mul(hundred).Round(percentScale))
}

func ptr(d decimal.Decimal) *decimal.Decimal {
	return &d
}
