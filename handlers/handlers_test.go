package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocks-simulator/database"
	"stocks-simulator/ledger"
	"stocks-simulator/marketdata"
	"stocks-simulator/valuation"
	"stocks-simulator/watchlist"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var (
	testSecret = []byte("0123456789abcdef0123456789abcdef")
	clock      = func() time.Time { return time.Date(2024, 6, 12, 15, 0, 0, 0, time.UTC) }
)

// fakeMarket serves fixed prices. err, when set, is returned from every call.
type fakeMarket struct {
	mu     sync.Mutex
	prices map[string]string
	err    error
}

func (f *fakeMarket) quote(symbol string) (*marketdata.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.prices[symbol]
	if !ok {
		return nil, nil
	}
	return &marketdata.Quote{Symbol: symbol, Name: symbol + " Inc", Price: decimal.RequireFromString(p)}, nil
}

func (f *fakeMarket) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeMarket) Search(_ context.Context, q string) ([]marketdata.SearchResult, error) {
	return []marketdata.SearchResult{{Symbol: "AAPL", InstrumentName: "Apple Inc", Exchange: "NASDAQ"}}, f.err
}

func (f *fakeMarket) Quote(_ context.Context, symbol string) (*marketdata.Quote, error) {
	return f.quote(symbol)
}

func (f *fakeMarket) BatchQuotes(_ context.Context, symbols []string) (marketdata.BatchResult, error) {
	res := marketdata.BatchResult{Quotes: map[string]marketdata.Quote{}}
	failed := 0
	for _, s := range symbols {
		q, err := f.quote(s)
		if err != nil || q == nil {
			failed++
			continue
		}
		res.Quotes[s] = *q
	}
	if failed == len(symbols) {
		return res, fmt.Errorf("all %d quote requests failed", failed)
	}
	if failed > 0 {
		res.Warning = fmt.Sprintf("Partial failure: %d of %d symbols failed", failed, len(symbols))
	}
	return res, nil
}

func (f *fakeMarket) HistoricalPrice(_ context.Context, symbol string, date time.Time) (*marketdata.HistoricalPrice, error) {
	q, err := f.quote(symbol)
	if err != nil || q == nil {
		return nil, err
	}
	friday := time.Date(2024, 6, 7, 0, 0, 0, 0, time.UTC)
	half := q.Price.Div(decimal.NewFromInt(2))
	return &marketdata.HistoricalPrice{
		Bar:       marketdata.Bar{Date: friday, Datetime: "2024-06-07", Open: half, High: half, Low: half, Close: half},
		Requested: date,
	}, nil
}

func (f *fakeMarket) TimeSeriesRange(_ context.Context, _ string, start, _ time.Time) ([]marketdata.Bar, error) {
	return []marketdata.Bar{{Date: start, Datetime: start.Format("2006-01-02"), Close: decimal.NewFromInt(1)}}, nil
}

type testServer struct {
	router *gin.Engine
	market *fakeMarket
	store  *database.MemoryStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := zerolog.Nop()
	store := database.NewMemoryStore()
	market := &fakeMarket{prices: map[string]string{"AAPL": "150", "MSFT": "400", "TSLA": "180"}}

	h := New(Deps{
		Users:          store,
		Ledger:         ledger.NewService(store, market, log, ledger.Options{Now: clock}),
		Valuation:      valuation.NewService(store, market, log, valuation.Options{Now: clock}),
		Watchlist:      watchlist.NewService(store, market, log),
		Market:         market,
		Tokens:         NewMemoryTokenStore(),
		JWTSecret:      testSecret,
		InitialBalance: decimal.NewFromInt(100000),
		Log:            log,
	})

	r := gin.New()
	h.Register(r, nil)
	return &testServer{router: r, market: market, store: store}
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var res response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res), w.Body.String())
	return w.Code, res
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

type tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (s *testServer) signup(t *testing.T, email string) tokens {
	t.Helper()
	code, res := s.do(t, http.MethodPost, "/signup", "", gin.H{
		"name": "Test User", "email": email, "password": "password123", "confirmPassword": "password123",
	})
	require.Equal(t, http.StatusCreated, code, res.Error)
	return decode[tokens](t, res.Data)
}

func TestSignupAndLogin(t *testing.T) {
	s := newTestServer(t)
	tk := s.signup(t, "trader@example.com")
	assert.NotEmpty(t, tk.AccessToken)
	assert.NotEmpty(t, tk.RefreshToken)

	code, res := s.do(t, http.MethodGet, "/api/balance", tk.AccessToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"balance":"100000"}`, string(res.Data))

	code, res = s.do(t, http.MethodPost, "/login", "", gin.H{"email": "TRADER@example.com", "password": "password123"})
	require.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, decode[tokens](t, res.Data).AccessToken)

	code, res = s.do(t, http.MethodPost, "/login", "", gin.H{"email": "trader@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Invalid email or password", res.Error)

	code, _ = s.do(t, http.MethodPost, "/login", "", gin.H{"email": "nobody@example.com", "password": "password123"})
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestSignupValidation(t *testing.T) {
	s := newTestServer(t)
	s.signup(t, "dup@example.com")

	tests := []struct {
		name   string
		body   gin.H
		status int
		msg    string
	}{
		{"mismatch", gin.H{"name": "Al", "email": "a@example.com", "password": "secret1", "confirmPassword": "secret2"}, http.StatusBadRequest, "Passwords don't match"},
		{"bad email", gin.H{"name": "Al", "email": "nope", "password": "secret1", "confirmPassword": "secret1"}, http.StatusBadRequest, "Invalid email address"},
		{"short password", gin.H{"name": "Al", "email": "a@example.com", "password": "abc", "confirmPassword": "abc"}, http.StatusBadRequest, "Password must be at least 6 characters"},
		{"duplicate", gin.H{"name": "Al", "email": "dup@example.com", "password": "secret1", "confirmPassword": "secret1"}, http.StatusConflict, database.ErrEmailTaken.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, res := s.do(t, http.MethodPost, "/signup", "", tt.body)
			assert.Equal(t, tt.status, code)
			assert.False(t, res.Success)
			assert.Equal(t, tt.msg, res.Error)
		})
	}
}

func TestRefreshRotatesTokens(t *testing.T) {
	s := newTestServer(t)
	tk := s.signup(t, "trader@example.com")

	code, res := s.do(t, http.MethodPost, "/refresh", "", gin.H{"refreshToken": tk.RefreshToken})
	require.Equal(t, http.StatusOK, code, res.Error)
	next := decode[tokens](t, res.Data)
	assert.NotEqual(t, tk.RefreshToken, next.RefreshToken)

	code, _ = s.do(t, http.MethodPost, "/refresh", "", gin.H{"refreshToken": tk.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = s.do(t, http.MethodPost, "/refresh", "", gin.H{"refreshToken": tk.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = s.do(t, http.MethodGet, "/api/holdings", next.AccessToken, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)
	code, res := s.do(t, http.MethodGet, "/api/balance", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.False(t, res.Success)
}

func TestTradeFlow(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "trader@example.com").AccessToken

	code, res := s.do(t, http.MethodPost, "/api/trade/buy", token, gin.H{"symbol": "aapl", "quantity": 10})
	require.Equal(t, http.StatusOK, code, res.Error)
	trade := decode[ledger.TradeResult](t, res.Data)
	assert.Equal(t, "98500", trade.Balance.String())

	code, res = s.do(t, http.MethodGet, "/api/holdings", token, nil)
	require.Equal(t, http.StatusOK, code)
	holdings := decode[[]map[string]any](t, res.Data)
	require.Len(t, holdings, 1)
	assert.Equal(t, "AAPL", holdings[0]["symbol"])

	code, res = s.do(t, http.MethodPost, "/api/trade/sell", token, gin.H{"symbol": "AAPL", "quantity": 11})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, res.Error, "you only own 10 shares")

	code, _ = s.do(t, http.MethodPost, "/api/trade/sell", token, gin.H{"symbol": "MSFT", "quantity": 1})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(t, http.MethodPost, "/api/trade/buy", token, gin.H{"symbol": "ZZZZ", "quantity": 1})
	assert.Equal(t, http.StatusNotFound, code)

	code, res = s.do(t, http.MethodPost, "/api/trade/buy", token, gin.H{"symbol": "AAPL", "quantity": 0})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Quantity must be between 1 and 10000", res.Error)

	code, _ = s.do(t, http.MethodPost, "/api/trade/buy", token, gin.H{"symbol": "AAPL", "quantity": 1.5})
	assert.Equal(t, http.StatusBadRequest, code)

	code, res = s.do(t, http.MethodPost, "/api/trade/sell", token, gin.H{"symbol": "AAPL", "quantity": 10})
	require.Equal(t, http.StatusOK, code, res.Error)

	code, res = s.do(t, http.MethodGet, "/api/transactions?type=sell", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]map[string]any](t, res.Data), 1)

	code, _ = s.do(t, http.MethodGet, "/api/transactions?type=hold", token, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestMarketDataFailuresMapToStatuses(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "trader@example.com").AccessToken

	s.market.setErr(&marketdata.RateLimitError{Wait: 42 * time.Second})
	code, res := s.do(t, http.MethodPost, "/api/trade/buy", token, gin.H{"symbol": "AAPL", "quantity": 1})
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "Market data rate limit exceeded, please wait 42 seconds", res.Error)

	s.market.setErr(&marketdata.UpstreamError{Endpoint: "quote", Attempts: 4, Err: &marketdata.StatusError{StatusCode: 503}})
	code, _ = s.do(t, http.MethodGet, "/api/stocks/quote/AAPL", token, nil)
	assert.Equal(t, http.StatusBadGateway, code)
}

func TestPortfolioValueReportsMissingQuotes(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "trader@example.com").AccessToken

	for _, sym := range []string{"AAPL", "MSFT"} {
		code, res := s.do(t, http.MethodPost, "/api/trade/buy", token, gin.H{"symbol": sym, "quantity": 1})
		require.Equal(t, http.StatusOK, code, res.Error)
	}
	s.market.mu.Lock()
	delete(s.market.prices, "MSFT")
	s.market.mu.Unlock()

	code, res := s.do(t, http.MethodGet, "/api/portfolio/value", token, nil)
	require.Equal(t, http.StatusOK, code)

	report := decode[map[string]any](t, res.Data)
	assert.Equal(t, "partial", report["status"])
	assert.Equal(t, false, report["allPricesLoaded"])
	assert.Nil(t, report["totalGainLoss"])
	assert.Equal(t, "Partial failure: 1 of 2 symbols failed", report["warning"])
}

func TestBackdatedAndTimeMachine(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "trader@example.com").AccessToken

	code, res := s.do(t, http.MethodPost, "/api/trade/backdated", token, gin.H{
		"symbol": "AAPL", "amount": 1000, "date": "2024-01-15", "historicalPrice": 500, "companyName": "Apple Inc",
	})
	require.Equal(t, http.StatusOK, code, res.Error)
	assert.Equal(t, "2", decode[ledger.BackdatedResult](t, res.Data).Shares.String())

	code, _ = s.do(t, http.MethodPost, "/api/trade/backdated", token, gin.H{
		"symbol": "AAPL", "amount": 1000, "date": "2030-01-15", "historicalPrice": 500, "companyName": "Apple Inc",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, res = s.do(t, http.MethodGet, "/api/time-machine/historical-price?symbol=AAPL&date=2024-06-09", token, nil)
	require.Equal(t, http.StatusOK, code, res.Error)
	hq := decode[valuation.HistoricalQuote](t, res.Data)
	assert.Equal(t, "2024-06-07", hq.ActualDate)
	assert.Equal(t, "75", hq.HistoricalPrice.String())

	code, res = s.do(t, http.MethodGet, "/api/time-machine/current-price/msft", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "400", decode[valuation.CurrentPrice](t, res.Data).CurrentPrice.String())

	code, res = s.do(t, http.MethodPost, "/api/time-machine/simulate", token, gin.H{"symbol": "AAPL", "date": "2024-06-07", "amount": 750})
	require.Equal(t, http.StatusOK, code, res.Error)
	sim := decode[valuation.Simulation](t, res.Data)
	assert.Equal(t, "10", sim.SharesBought.String())
	assert.Equal(t, "1500", sim.CurrentValue.String())
	assert.Equal(t, "100", sim.TotalProfitPercent.String())
}

func TestWatchlistRoutes(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "trader@example.com").AccessToken

	code, res := s.do(t, http.MethodPost, "/api/watchlist", token, gin.H{"symbol": "tsla", "companyName": "Tesla"})
	require.Equal(t, http.StatusCreated, code, res.Error)

	code, _ = s.do(t, http.MethodPost, "/api/watchlist", token, gin.H{"symbol": "TSLA"})
	assert.Equal(t, http.StatusConflict, code)

	code, res = s.do(t, http.MethodGet, "/api/watchlist/TSLA", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"inWatchlist":true}`, string(res.Data))

	code, res = s.do(t, http.MethodGet, "/api/watchlist", token, nil)
	require.Equal(t, http.StatusOK, code)
	list := decode[watchlist.List](t, res.Data)
	require.Len(t, list.Items, 1)
	assert.True(t, list.Items[0].HasQuote)

	code, _ = s.do(t, http.MethodDelete, "/api/watchlist/TSLA", token, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = s.do(t, http.MethodDelete, "/api/watchlist/TSLA", token, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSearchRequiresQuery(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "trader@example.com").AccessToken

	code, res := s.do(t, http.MethodGet, "/api/stocks/search", token, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Query parameter is required", res.Error)

	code, res = s.do(t, http.MethodGet, "/api/stocks/search?q=apple", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]marketdata.SearchResult](t, res.Data), 1)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{&ledger.ValidationError{Message: "bad"}, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", ledger.ErrInsufficientFunds), http.StatusUnprocessableEntity},
		{ledger.ErrAmountTooSmall, http.StatusUnprocessableEntity},
		{ledger.ErrDateOutOfRange, http.StatusUnprocessableEntity},
		{ledger.ErrNoPosition, http.StatusNotFound},
		{marketdata.ErrSymbolNotFound, http.StatusNotFound},
		{watchlist.ErrDuplicate, http.StatusConflict},
		{&marketdata.RateLimitError{Wait: time.Second}, http.StatusTooManyRequests},
		{&marketdata.UpstreamError{Err: fmt.Errorf("boom")}, http.StatusBadGateway},
		{fmt.Errorf("anything else"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		status, msg := classify(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.NotEmpty(t, msg)
	}
}
