package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"stocks-simulator/ledger"
)

func (h *Handler) SearchStocks(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		badRequest(c, "Query parameter is required")
		return
	}

	results, err := h.market.Search(c.Request.Context(), query)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, results)
}

func (h *Handler) GetQuote(c *gin.Context) {
	symbol, err := ledger.NormalizeSymbol(c.Param("symbol"))
	if err != nil {
		h.fail(c, err)
		return
	}

	quote, err := h.market.Quote(c.Request.Context(), symbol)
	if err != nil {
		h.fail(c, err)
		return
	}
	if quote == nil {
		h.fail(c, fmt.Errorf("%w: %s", ledger.ErrSymbolNotFound, symbol))
		return
	}
	ok(c, http.StatusOK, quote)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
