package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stocks-simulator/ledger"
	"stocks-simulator/middleware"
)

type TradeInput struct {
	Symbol   string `json:"symbol" binding:"required"`
	Quantity int64  `json:"quantity"`
}

func (h *Handler) Buy(c *gin.Context) {
	var input TradeInput
	if !bindJSON(c, &input) {
		return
	}

	res, err := h.ledger.Buy(c.Request.Context(), middleware.AccountID(c), input.Symbol, input.Quantity)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

func (h *Handler) Sell(c *gin.Context) {
	var input TradeInput
	if !bindJSON(c, &input) {
		return
	}

	res, err := h.ledger.Sell(c.Request.Context(), middleware.AccountID(c), input.Symbol, input.Quantity)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

func (h *Handler) BackdatedPurchase(c *gin.Context) {
	var order ledger.BackdatedOrder
	if !bindJSON(c, &order) {
		return
	}

	res, err := h.ledger.BackdatedPurchase(c.Request.Context(), middleware.AccountID(c), order)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

func (h *Handler) GetBalance(c *gin.Context) {
	balance, err := h.ledger.Balance(c.Request.Context(), middleware.AccountID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"balance": balance})
}

func (h *Handler) GetHoldings(c *gin.Context) {
	holdings, err := h.ledger.Holdings(c.Request.Context(), middleware.AccountID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, holdings)
}

func (h *Handler) GetTransactions(c *gin.Context) {
	filter, err := ledger.ParseTransactionFilter(
		c.Query("limit"), c.Query("type"), c.Query("symbol"), c.Query("from"), c.Query("to"),
	)
	if err != nil {
		h.fail(c, err)
		return
	}

	txs, err := h.ledger.Transactions(c.Request.Context(), middleware.AccountID(c), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, txs)
}

func (h *Handler) GetPortfolioValue(c *gin.Context) {
	report, err := h.valuation.PortfolioValue(c.Request.Context(), middleware.AccountID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, report)
}
