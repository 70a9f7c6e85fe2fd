package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"stocks-simulator/ledger"
	"stocks-simulator/models"
	"stocks-simulator/watchlist"
)

// MemoryStore keeps all state in process. It serializes ledger units per
// account and applies their writes only when the unit succeeds.
type MemoryStore struct {
	mu           sync.RWMutex
	users        map[string]models.User
	emails       map[string]string
	holdings     map[string]map[string]models.Holding
	transactions map[string][]models.Transaction
	watch        map[string]map[string]models.Watchlist

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:        make(map[string]models.User),
		emails:       make(map[string]string),
		holdings:     make(map[string]map[string]models.Holding),
		transactions: make(map[string][]models.Transaction),
		watch:        make(map[string]map[string]models.Watchlist),
		locks:        make(map[string]*sync.Mutex),
		now:          time.Now,
	}
}

func (m *MemoryStore) CreateUser(_ context.Context, u *models.User) error {
	u.Email = normalizeEmail(u.Email)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.emails[u.Email]; ok {
		return ErrEmailTaken
	}
	_ = u.BeforeCreate(nil)
	now := m.now()
	u.CreatedAt, u.UpdatedAt = now, now

	m.users[u.ID] = *u
	m.emails[u.Email] = u.ID
	return nil
}

func (m *MemoryStore) UserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.emails[normalizeEmail(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := m.users[id]
	return &u, nil
}

func (m *MemoryStore) Account(_ context.Context, accountID string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[accountID]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	return &u, nil
}

func (m *MemoryStore) Atomic(ctx context.Context, accountID string, fn func(ledger.Tx) error) error {
	lock := m.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	acct, err := m.Account(ctx, accountID)
	if err != nil {
		return err
	}

	tx := &memoryTx{
		store:    m,
		account:  acct,
		balance:  acct.Balance,
		holdings: make(map[string]*models.Holding),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.commit(tx)
	return nil
}

func (m *MemoryStore) accountLock(accountID string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()

	lock, ok := m.locks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[accountID] = lock
	}
	return lock
}

func (m *MemoryStore) commit(tx *memoryTx) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := tx.account.ID
	u := m.users[id]
	if tx.balanceSet {
		u.Balance = tx.balance
		u.UpdatedAt = m.now()
	}
	m.users[id] = u

	for symbol, h := range tx.holdings {
		if h == nil {
			delete(m.holdings[id], symbol)
			continue
		}
		if m.holdings[id] == nil {
			m.holdings[id] = make(map[string]models.Holding)
		}
		m.holdings[id][symbol] = *h
	}
	m.transactions[id] = append(m.transactions[id], tx.transactions...)
}

func (m *MemoryStore) Holdings(_ context.Context, accountID string) ([]models.Holding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Holding, 0, len(m.holdings[accountID]))
	for _, h := range m.holdings[accountID] {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out, nil
}

func (m *MemoryStore) Transactions(_ context.Context, accountID string, f ledger.TransactionFilter) ([]models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Transaction, 0)
	for _, t := range m.transactions[accountID] {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryStore) AddWatch(_ context.Context, w *models.Watchlist) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.watch[w.UserID][w.Symbol]; ok {
		return watchlist.ErrDuplicate
	}
	_ = w.BeforeCreate(nil)
	if w.AddedAt.IsZero() {
		w.AddedAt = m.now()
	}
	if m.watch[w.UserID] == nil {
		m.watch[w.UserID] = make(map[string]models.Watchlist)
	}
	m.watch[w.UserID][w.Symbol] = *w
	return nil
}

func (m *MemoryStore) RemoveWatch(_ context.Context, userID, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.watch[userID][symbol]; !ok {
		return watchlist.ErrNotFound
	}
	delete(m.watch[userID], symbol)
	return nil
}

func (m *MemoryStore) Watchlist(_ context.Context, userID string) ([]models.Watchlist, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Watchlist, 0, len(m.watch[userID]))
	for _, w := range m.watch[userID] {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AddedAt.Equal(out[j].AddedAt) {
			return out[i].AddedAt.After(out[j].AddedAt)
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out, nil
}

func (m *MemoryStore) WatchEntry(_ context.Context, userID, symbol string) (*models.Watchlist, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.watch[userID][symbol]
	if !ok {
		return nil, watchlist.ErrNotFound
	}
	return &w, nil
}

// memoryTx stages writes until commit. A nil entry in holdings marks a
// deletion.
type memoryTx struct {
	store        *MemoryStore
	account      *models.User
	balance      decimal.Decimal
	balanceSet   bool
	holdings     map[string]*models.Holding
	transactions []models.Transaction
}

func (t *memoryTx) Account() *models.User {
	return t.account
}

func (t *memoryTx) SetBalance(balance decimal.Decimal) error {
	t.balance = balance
	t.balanceSet = true
	t.account.Balance = balance
	return nil
}

func (t *memoryTx) Holding(symbol string) (*models.Holding, error) {
	if h, ok := t.holdings[symbol]; ok {
		if h == nil {
			return nil, nil
		}
		cp := *h
		return &cp, nil
	}

	t.store.mu.RLock()
	h, ok := t.store.holdings[t.account.ID][symbol]
	t.store.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return &h, nil
}

func (t *memoryTx) SaveHolding(h *models.Holding) error {
	now := t.store.now()
	if h.ID == "" {
		_ = h.BeforeCreate(nil)
		h.CreatedAt = now
	}
	h.UpdatedAt = now

	cp := *h
	t.holdings[h.Symbol] = &cp
	return nil
}

func (t *memoryTx) DeleteHolding(h *models.Holding) error {
	t.holdings[h.Symbol] = nil
	return nil
}

func (t *memoryTx) AppendTransaction(tr *models.Transaction) error {
	_ = tr.BeforeCreate(nil)
	t.transactions = append(t.transactions, *tr)
	return nil
}
