package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stocks-simulator/database"
	"stocks-simulator/ledger"
	"stocks-simulator/marketdata"
	"stocks-simulator/models"
	"stocks-simulator/valuation"
	"stocks-simulator/watchlist"
)

// Users stores credentials and accounts.
type Users interface {
	CreateUser(ctx context.Context, u *models.User) error
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	Account(ctx context.Context, accountID string) (*models.User, error)
}

// Market is the subset of the market data client the handlers call directly.
type Market interface {
	Search(ctx context.Context, query string) ([]marketdata.SearchResult, error)
	Quote(ctx context.Context, symbol string) (*marketdata.Quote, error)
}

type Deps struct {
	Users          Users
	Ledger         *ledger.Service
	Valuation      *valuation.Service
	Watchlist      *watchlist.Service
	Market         Market
	Tokens         TokenStore
	JWTSecret      []byte
	InitialBalance decimal.Decimal
	Log            zerolog.Logger
	Now            func() time.Time
}

type Handler struct {
	users          Users
	ledger         *ledger.Service
	valuation      *valuation.Service
	watchlist      *watchlist.Service
	market         Market
	tokens         TokenStore
	secret         []byte
	initialBalance decimal.Decimal
	log            zerolog.Logger
	now            func() time.Time
}

func New(d Deps) *Handler {
	h := &Handler{
		users:          d.Users,
		ledger:         d.Ledger,
		valuation:      d.Valuation,
		watchlist:      d.Watchlist,
		market:         d.Market,
		tokens:         d.Tokens,
		secret:         d.JWTSecret,
		initialBalance: d.InitialBalance,
		log:            d.Log.With().Str("component", "http").Logger(),
		now:            d.Now,
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

// envelope is the body of every response.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, envelope{Success: true, Data: data})
}

func (h *Handler) fail(c *gin.Context, err error) {
	status, msg := classify(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	_ = c.Error(err)
	c.JSON(status, envelope{Success: false, Error: msg})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, envelope{Success: false, Error: msg})
}

// classify maps domain errors onto HTTP statuses and client-safe messages.
func classify(err error) (int, string) {
	var ve *ledger.ValidationError
	var rl *marketdata.RateLimitError

	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Message
	case errors.Is(err, marketdata.ErrInvalidSymbol):
		return http.StatusBadRequest, "Invalid symbol format"
	case errors.As(err, &rl):
		return http.StatusTooManyRequests, "Market data " + rl.Error()
	case errors.Is(err, marketdata.ErrRateLimited):
		return http.StatusTooManyRequests, "Market data rate limit exceeded, please wait"
	case errors.Is(err, ledger.ErrSymbolNotFound),
		errors.Is(err, ledger.ErrNoPosition),
		errors.Is(err, ledger.ErrAccountNotFound),
		errors.Is(err, watchlist.ErrNotFound),
		errors.Is(err, valuation.ErrPriceUnavailable):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrInsufficientShares),
		errors.Is(err, ledger.ErrAmountTooSmall),
		errors.Is(err, ledger.ErrDateOutOfRange):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, watchlist.ErrDuplicate),
		errors.Is(err, database.ErrEmailTaken):
		return http.StatusConflict, err.Error()
	case errors.Is(err, marketdata.ErrUpstreamUnavailable):
		return http.StatusBadGateway, "Market data provider is unavailable, please try again later"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Request timed out"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// bindJSON decodes the body into dst, replying 400 on failure.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		badRequest(c, bindMessage(err))
		return false
	}
	return true
}

func bindMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request body"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return "Invalid email address"
	case "min":
		return fe.Field() + " must be at least " + fe.Param() + " characters"
	case "eqfield":
		return "Passwords don't match"
	default:
		return fe.Field() + " is invalid"
	}
}
