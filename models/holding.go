package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Holding is an open position in one symbol. A holding with zero quantity is
// deleted rather than stored.
type Holding struct {
	ID           string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID       string          `gorm:"type:varchar(36);not null;uniqueIndex:idx_holdings_user_symbol" json:"userId"`
	Symbol       string          `gorm:"type:varchar(10);not null;uniqueIndex:idx_holdings_user_symbol" json:"symbol"`
	CompanyName  string          `json:"companyName"`
	Quantity     decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"quantity"`
	AveragePrice decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"averagePrice"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

func (h *Holding) BeforeCreate(tx *gorm.DB) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	return nil
}

// CostBasis is quantity times average price.
func (h Holding) CostBasis() decimal.Decimal {
	return h.Quantity.Mul(h.AveragePrice)
}
