package handlers

import (
	"github.com/gin-gonic/gin"

	"stocks-simulator/middleware"
)

// Register mounts every route on r. throttle guards the credential
// endpoints; it may be nil.
func (h *Handler) Register(r *gin.Engine, throttle gin.HandlerFunc) {
	r.GET("/health", h.Health)

	// Public routes
	public := r.Group("/")
	if throttle != nil {
		public.Use(throttle)
	}
	public.POST("/signup", h.Signup)
	public.POST("/login", h.Login)
	public.POST("/refresh", h.Refresh)

	// Protected routes
	api := r.Group("/api")
	api.Use(middleware.JWTAuth(h.secret))
	{
		api.GET("/stocks/search", h.SearchStocks)
		api.GET("/stocks/quote/:symbol", h.GetQuote)

		api.POST("/trade/buy", h.Buy)
		api.POST("/trade/sell", h.Sell)
		api.POST("/trade/backdated", h.BackdatedPurchase)

		api.GET("/balance", h.GetBalance)
		api.GET("/holdings", h.GetHoldings)
		api.GET("/transactions", h.GetTransactions)
		api.GET("/portfolio/value", h.GetPortfolioValue)

		api.GET("/time-machine/historical-price", h.GetHistoricalPrice)
		api.GET("/time-machine/current-price/:symbol", h.GetCurrentPrice)
		api.POST("/time-machine/simulate", h.Simulate)

		api.GET("/watchlist", h.GetWatchlist)
		api.POST("/watchlist", h.AddToWatchlist)
		api.GET("/watchlist/:symbol", h.IsInWatchlist)
		api.DELETE("/watchlist/:symbol", h.RemoveFromWatchlist)
	}
}
