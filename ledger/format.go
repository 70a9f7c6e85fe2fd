package ledger

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// FormatUSD renders an amount as a dollar string such as "$1,234.50".
func FormatUSD(d decimal.Decimal) string {
	cents := d.Mul(hundred).Round(0).IntPart()
	return money.New(cents, money.USD).Display()
}
