package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// User is a trading account. Balance is only mutated by the ledger.
type User struct {
	ID        string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name      string          `json:"name"`
	Email     string          `gorm:"uniqueIndex;not null" json:"email"`
	Password  string          `json:"-"`
	Balance   decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0" json:"balance"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`

	Holdings     []Holding     `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Transactions []Transaction `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Watchlist    []Watchlist   `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
