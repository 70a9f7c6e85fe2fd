package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type TransactionType string

const (
	Buy  TransactionType = "BUY"
	Sell TransactionType = "SELL"
)

// Transaction is an append-only trade record. Total is always stored as a
// positive magnitude.
type Transaction struct {
	ID           string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID       string          `gorm:"type:varchar(36);not null;index" json:"userId"`
	Type         TransactionType `gorm:"type:varchar(4);not null" json:"type"`
	Symbol       string          `gorm:"type:varchar(10);not null;index" json:"symbol"`
	CompanyName  string          `json:"companyName"`
	Quantity     decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"quantity"`
	Price        decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"price"`
	Total        decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"total"`
	BalanceAfter decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"balanceAfter"`
	Timestamp    time.Time       `gorm:"not null;index" json:"timestamp"`
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// SignedTotal is the cash effect of the trade: negative for buys.
func (t Transaction) SignedTotal() decimal.Decimal {
	if t.Type == Buy {
		return t.Total.Neg()
	}
	return t.Total
}
