package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"stocks-simulator/ledger"
	"stocks-simulator/models"
	"stocks-simulator/watchlist"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "stocks.db")), &gorm.Config{
		Logger:         logger.Discard,
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func newTestUser(t *testing.T, s *Store, balance string) *models.User {
	t.Helper()
	u := &models.User{Name: "Trader", Email: "Trader@Example.com", Password: "hash", Balance: decimal.RequireFromString(balance)}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func TestStoreUsers(t *testing.T) {
	ctx := context.Background()
	s := NewStore(newTestDB(t))

	u := newTestUser(t, s, "100000")
	assert.Len(t, u.ID, 36)
	assert.Equal(t, "trader@example.com", u.Email)

	got, err := s.UserByEmail(ctx, " TRADER@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "100000", got.Balance.String())

	err = s.CreateUser(ctx, &models.User{Email: "trader@example.com"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = s.UserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = s.Account(ctx, "missing")
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestStoreAtomicCommits(t *testing.T) {
	ctx := context.Background()
	s := NewStore(newTestDB(t))
	u := newTestUser(t, s, "1000")

	err := s.Atomic(ctx, u.ID, func(tx ledger.Tx) error {
		assert.Equal(t, "1000", tx.Account().Balance.String())
		require.NoError(t, tx.SetBalance(decimal.NewFromInt(700)))

		h, err := tx.Holding("AAPL")
		require.NoError(t, err)
		assert.Nil(t, h)

		h = &models.Holding{UserID: u.ID, Symbol: "AAPL", CompanyName: "Apple Inc", Quantity: decimal.NewFromInt(2), AveragePrice: decimal.NewFromInt(150)}
		require.NoError(t, tx.SaveHolding(h))
		assert.NotEmpty(t, h.ID)

		h.Quantity = decimal.NewFromInt(3)
		require.NoError(t, tx.SaveHolding(h))

		return tx.AppendTransaction(&models.Transaction{
			UserID: u.ID, Type: models.Buy, Symbol: "AAPL",
			Quantity: decimal.NewFromInt(2), Price: decimal.NewFromInt(150),
			Total: decimal.NewFromInt(300), BalanceAfter: decimal.NewFromInt(700),
			Timestamp: time.Now(),
		})
	})
	require.NoError(t, err)

	acct, err := s.Account(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "700", acct.Balance.String())

	holdings, err := s.Holdings(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, "3", holdings[0].Quantity.String())

	txs, err := s.Transactions(ctx, u.ID, ledger.TransactionFilter{})
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestStoreAtomicRollsBack(t *testing.T) {
	ctx := context.Background()
	s := NewStore(newTestDB(t))
	u := newTestUser(t, s, "1000")
	boom := errors.New("boom")

	err := s.Atomic(ctx, u.ID, func(tx ledger.Tx) error {
		require.NoError(t, tx.SetBalance(decimal.Zero))
		require.NoError(t, tx.SaveHolding(&models.Holding{UserID: u.ID, Symbol: "MSFT", Quantity: decimal.NewFromInt(1), AveragePrice: decimal.NewFromInt(400)}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	acct, err := s.Account(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "1000", acct.Balance.String())

	holdings, err := s.Holdings(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, holdings)
}

func TestStoreAtomicUnknownAccount(t *testing.T) {
	s := NewStore(newTestDB(t))
	called := false
	err := s.Atomic(context.Background(), "missing", func(ledger.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
	assert.False(t, called)
}

func TestStoreDeleteHolding(t *testing.T) {
	ctx := context.Background()
	s := NewStore(newTestDB(t))
	u := newTestUser(t, s, "1000")

	require.NoError(t, s.Atomic(ctx, u.ID, func(tx ledger.Tx) error {
		return tx.SaveHolding(&models.Holding{UserID: u.ID, Symbol: "TSLA", Quantity: decimal.NewFromInt(1), AveragePrice: decimal.NewFromInt(200)})
	}))
	require.NoError(t, s.Atomic(ctx, u.ID, func(tx ledger.Tx) error {
		h, err := tx.Holding("TSLA")
		require.NoError(t, err)
		require.NotNil(t, h)
		return tx.DeleteHolding(h)
	}))

	holdings, err := s.Holdings(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, holdings)
}

func TestStoreTransactionFilters(t *testing.T) {
	ctx := context.Background()
	s := NewStore(newTestDB(t))
	u := newTestUser(t, s, "1000")

	base := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)
	rows := []models.Transaction{
		{UserID: u.ID, Type: models.Buy, Symbol: "AAPL", Timestamp: base},
		{UserID: u.ID, Type: models.Buy, Symbol: "MSFT", Timestamp: base.AddDate(0, 0, 1)},
		{UserID: u.ID, Type: models.Sell, Symbol: "AAPL", Timestamp: base.AddDate(0, 0, 2)},
	}
	require.NoError(t, CreateInBatches(s.db, rows, 2))

	all, err := s.Transactions(ctx, u.ID, ledger.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, models.Sell, all[0].Type)
	assert.Equal(t, "MSFT", all[1].Symbol)

	buys, err := s.Transactions(ctx, u.ID, ledger.TransactionFilter{Type: models.Buy})
	require.NoError(t, err)
	assert.Len(t, buys, 2)

	aapl, err := s.Transactions(ctx, u.ID, ledger.TransactionFilter{Symbol: "AAPL", Limit: 1})
	require.NoError(t, err)
	require.Len(t, aapl, 1)
	assert.Equal(t, models.Sell, aapl[0].Type)

	window, err := s.Transactions(ctx, u.ID, ledger.TransactionFilter{
		From: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "MSFT", window[0].Symbol)
}

func TestStoreWatchlist(t *testing.T) {
	ctx := context.Background()
	s := NewStore(newTestDB(t))
	u := newTestUser(t, s, "1000")

	require.NoError(t, s.AddWatch(ctx, &models.Watchlist{UserID: u.ID, Symbol: "TSLA", CompanyName: "Tesla, Inc."}))
	err := s.AddWatch(ctx, &models.Watchlist{UserID: u.ID, Symbol: "TSLA"})
	assert.ErrorIs(t, err, watchlist.ErrDuplicate)

	entry, err := s.WatchEntry(ctx, u.ID, "TSLA")
	require.NoError(t, err)
	assert.Equal(t, "Tesla, Inc.", entry.CompanyName)

	entries, err := s.Watchlist(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, s.RemoveWatch(ctx, u.ID, "TSLA"))
	assert.ErrorIs(t, s.RemoveWatch(ctx, u.ID, "TSLA"), watchlist.ErrNotFound)

	_, err = s.WatchEntry(ctx, u.ID, "TSLA")
	assert.ErrorIs(t, err, watchlist.ErrNotFound)
}

func TestCreateInBatchesValidation(t *testing.T) {
	db := newTestDB(t)
	assert.ErrorIs(t, CreateInBatches(db, []models.Watchlist{}, 0), ErrInvalidBatchSize)
	assert.ErrorIs(t, CreateInBatches(db, models.Watchlist{}, 10), ErrInvalidData)
	assert.NoError(t, CreateInBatches(db, []models.Watchlist{}, 10))
}

func TestSeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	created, err := Seed(ctx, db)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = Seed(ctx, db)
	require.NoError(t, err)
	assert.False(t, created)

	s := NewStore(db)
	u, err := s.UserByEmail(ctx, SeedEmail)
	require.NoError(t, err)
	assert.Equal(t, "91843.75", u.Balance.String())

	holdings, err := s.Holdings(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, holdings, 3)

	txs, err := s.Transactions(ctx, u.ID, ledger.TransactionFilter{})
	require.NoError(t, err)
	assert.Len(t, txs, 3)

	entries, err := s.Watchlist(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
