package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Watchlist struct {
	ID          string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID      string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_watchlist_user_symbol" json:"userId"`
	Symbol      string    `gorm:"type:varchar(10);not null;uniqueIndex:idx_watchlist_user_symbol" json:"symbol"`
	CompanyName string    `json:"companyName"`
	AddedAt     time.Time `gorm:"autoCreateTime" json:"addedAt"`
}

// TableName keeps the singular table name used by the original schema.
func (Watchlist) TableName() string {
	return "watchlist"
}

func (w *Watchlist) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	return nil
}
