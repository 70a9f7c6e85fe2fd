package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"stocks-simulator/models"
)

const (
	SeedEmail    = "test@example.com"
	SeedPassword = "password123"

	seedBatchSize = 100
)

type seedData struct {
	user         models.User
	holdings     []models.Holding
	transactions []models.Transaction
	watchlist    []models.Watchlist
}

type seedLot struct {
	symbol, company string
	quantity        int64
	price           string
}

var seedLots = []seedLot{
	{"AAPL", "Apple Inc.", 10, "175.50"},
	{"GOOGL", "Alphabet Inc.", 5, "140.25"},
	{"MSFT", "Microsoft Corporation", 15, "380.00"},
}

// newSeedData builds the demo account. The balance reflects the three
// purchases made from the default starting cash.
func newSeedData(now time.Time) (*seedData, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(SeedPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash seed password: %w", err)
	}

	d := &seedData{
		user: models.User{
			Name:     "Test User",
			Email:    SeedEmail,
			Password: string(hash),
		},
	}
	_ = d.user.BeforeCreate(nil)

	balance := decimal.NewFromInt(100000)
	for i, lot := range seedLots {
		qty := decimal.NewFromInt(lot.quantity)
		price := decimal.RequireFromString(lot.price)
		total := qty.Mul(price)
		balance = balance.Sub(total)

		d.holdings = append(d.holdings, models.Holding{
			UserID:       d.user.ID,
			Symbol:       lot.symbol,
			CompanyName:  lot.company,
			Quantity:     qty,
			AveragePrice: price,
		})
		d.transactions = append(d.transactions, models.Transaction{
			UserID:       d.user.ID,
			Type:         models.Buy,
			Symbol:       lot.symbol,
			CompanyName:  lot.company,
			Quantity:     qty,
			Price:        price,
			Total:        total,
			BalanceAfter: balance,
			Timestamp:    now.Add(time.Duration(i-len(seedLots)) * time.Minute).UTC(),
		})
	}
	d.user.Balance = balance

	d.watchlist = []models.Watchlist{
		{UserID: d.user.ID, Symbol: "TSLA", CompanyName: "Tesla, Inc."},
		{UserID: d.user.ID, Symbol: "AMZN", CompanyName: "Amazon.com, Inc."},
	}
	return d, nil
}

// Seed creates the demo account with sample holdings, transactions and
// watchlist. It reports false without writing when the account exists.
func Seed(ctx context.Context, db *gorm.DB) (bool, error) {
	_, err := NewStore(db).UserByEmail(ctx, SeedEmail)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return false, err
	}

	d, err := newSeedData(time.Now())
	if err != nil {
		return false, err
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&d.user).Error; err != nil {
			return fmt.Errorf("create seed user: %w", err)
		}
		if err := CreateInBatches(tx, d.holdings, seedBatchSize); err != nil {
			return err
		}
		if err := CreateInBatches(tx, d.transactions, seedBatchSize); err != nil {
			return err
		}
		return CreateInBatches(tx, d.watchlist, seedBatchSize)
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// Seed loads the demo account into the memory store.
func (m *MemoryStore) Seed(ctx context.Context) (bool, error) {
	if _, err := m.UserByEmail(ctx, SeedEmail); err == nil {
		return false, nil
	}

	d, err := newSeedData(m.now())
	if err != nil {
		return false, err
	}
	if err := m.CreateUser(ctx, &d.user); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := d.user.ID
	m.holdings[id] = make(map[string]models.Holding, len(d.holdings))
	for i, h := range d.holdings {
		_ = h.BeforeCreate(nil)
		h.CreatedAt = d.transactions[i].Timestamp
		h.UpdatedAt = h.CreatedAt
		m.holdings[id][h.Symbol] = h
	}
	for _, t := range d.transactions {
		_ = t.BeforeCreate(nil)
		m.transactions[id] = append(m.transactions[id], t)
	}
	m.watch[id] = make(map[string]models.Watchlist, len(d.watchlist))
	for i, w := range d.watchlist {
		_ = w.BeforeCreate(nil)
		w.AddedAt = m.now().Add(time.Duration(i) * time.Second)
		m.watch[id][w.Symbol] = w
	}
	return true, nil
}
