package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type SimulateInput struct {
	Symbol string          `json:"symbol" binding:"required"`
	Date   string          `json:"date" binding:"required"`
	Amount decimal.Decimal `json:"amount"`
}

func (h *Handler) GetHistoricalPrice(c *gin.Context) {
	symbol, date := c.Query("symbol"), c.Query("date")
	if symbol == "" || date == "" {
		badRequest(c, "symbol and date are required")
		return
	}

	hq, err := h.valuation.HistoricalPrice(c.Request.Context(), symbol, date)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, hq)
}

func (h *Handler) GetCurrentPrice(c *gin.Context) {
	cp, err := h.valuation.CurrentPrice(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, cp)
}

func (h *Handler) Simulate(c *gin.Context) {
	var input SimulateInput
	if !bindJSON(c, &input) {
		return
	}

	sim, err := h.valuation.SimulateInvestment(c.Request.Context(), input.Symbol, input.Date, input.Amount)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, sim)
}
