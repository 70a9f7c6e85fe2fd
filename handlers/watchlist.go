package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"stocks-simulator/middleware"
)

type WatchInput struct {
	Symbol      string `json:"symbol" binding:"required"`
	CompanyName string `json:"companyName"`
}

func (h *Handler) GetWatchlist(c *gin.Context) {
	list, err := h.watchlist.List(c.Request.Context(), middleware.AccountID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, list)
}

func (h *Handler) AddToWatchlist(c *gin.Context) {
	var input WatchInput
	if !bindJSON(c, &input) {
		return
	}

	w, err := h.watchlist.Add(c.Request.Context(), middleware.AccountID(c), input.Symbol, input.CompanyName)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, gin.H{
		"message":       fmt.Sprintf("Added %s to watchlist", w.Symbol),
		"watchlistItem": w,
	})
}

func (h *Handler) IsInWatchlist(c *gin.Context) {
	symbol := c.Param("symbol")
	found, err := h.watchlist.Contains(c.Request.Context(), middleware.AccountID(c), symbol)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"inWatchlist": found})
}

func (h *Handler) RemoveFromWatchlist(c *gin.Context) {
	symbol := c.Param("symbol")
	if err := h.watchlist.Remove(c.Request.Context(), middleware.AccountID(c), symbol); err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"message": fmt.Sprintf("Removed %s from watchlist", symbol)})
}
