package database

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stocks-simulator/ledger"
	"stocks-simulator/models"
	"stocks-simulator/watchlist"
)

// Store is the gorm-backed persistence layer.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// CreateUser inserts u, returning ErrEmailTaken if the email is in use.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	u.Email = normalizeEmail(u.Email)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("email = ?", u.Email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrEmailTaken
		}
		if err := tx.Create(u).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrEmailTaken
			}
			return err
		}
		return nil
	})
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) Account(ctx context.Context, accountID string) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).Where("id = ?", accountID).Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ledger.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Atomic runs fn in a database transaction holding a row lock on the
// account. Any error from fn rolls the transaction back.
func (s *Store) Atomic(ctx context.Context, accountID string, fn func(ledger.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u models.User
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", accountID).Take(&u).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.ErrAccountNotFound
		}
		if err != nil {
			return err
		}
		return fn(&gormTx{tx: tx, account: &u})
	})
}

func (s *Store) Holdings(ctx context.Context, accountID string) ([]models.Holding, error) {
	var holdings []models.Holding
	err := s.db.WithContext(ctx).
		Where("user_id = ?", accountID).
		Order("created_at desc").Order("symbol").
		Find(&holdings).Error
	return holdings, err
}

func (s *Store) Transactions(ctx context.Context, accountID string, f ledger.TransactionFilter) ([]models.Transaction, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", accountID)
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.Symbol != "" {
		q = q.Where("symbol = ?", f.Symbol)
	}
	if !f.From.IsZero() {
		q = q.Where("timestamp >= ?", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("timestamp < ?", f.To)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var txs []models.Transaction
	err := q.Order("timestamp desc").Find(&txs).Error
	return txs, err
}

func (s *Store) AddWatch(ctx context.Context, w *models.Watchlist) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&models.Watchlist{}).
			Where("user_id = ? AND symbol = ?", w.UserID, w.Symbol).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return watchlist.ErrDuplicate
		}
		if err := tx.Create(w).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return watchlist.ErrDuplicate
			}
			return err
		}
		return nil
	})
}

func (s *Store) RemoveWatch(ctx context.Context, userID, symbol string) error {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND symbol = ?", userID, symbol).
		Delete(&models.Watchlist{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return watchlist.ErrNotFound
	}
	return nil
}

func (s *Store) Watchlist(ctx context.Context, userID string) ([]models.Watchlist, error) {
	var entries []models.Watchlist
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("added_at desc").Order("symbol").
		Find(&entries).Error
	return entries, err
}

func (s *Store) WatchEntry(ctx context.Context, userID, symbol string) (*models.Watchlist, error) {
	var w models.Watchlist
	err := s.db.WithContext(ctx).Where("user_id = ? AND symbol = ?", userID, symbol).Take(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, watchlist.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// gormTx implements ledger.Tx on an open transaction.
type gormTx struct {
	tx      *gorm.DB
	account *models.User
}

func (t *gormTx) Account() *models.User {
	return t.account
}

func (t *gormTx) SetBalance(balance decimal.Decimal) error {
	if err := t.tx.Model(&models.User{}).Where("id = ?", t.account.ID).Update("balance", balance).Error; err != nil {
		return err
	}
	t.account.Balance = balance
	return nil
}

func (t *gormTx) Holding(symbol string) (*models.Holding, error) {
	var h models.Holding
	err := t.tx.Where("user_id = ? AND symbol = ?", t.account.ID, symbol).Take(&h).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (t *gormTx) SaveHolding(h *models.Holding) error {
	if h.ID == "" {
		return t.tx.Create(h).Error
	}
	return t.tx.Save(h).Error
}

func (t *gormTx) DeleteHolding(h *models.Holding) error {
	return t.tx.Where("id = ?", h.ID).Delete(&models.Holding{}).Error
}

func (t *gormTx) AppendTransaction(tr *models.Transaction) error {
	tr.Timestamp = tr.Timestamp.UTC()
	return t.tx.Create(tr).Error
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
