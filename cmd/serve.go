package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"stocks-simulator/config"
	"stocks-simulator/database"
	"stocks-simulator/handlers"
	"stocks-simulator/ledger"
	"stocks-simulator/marketdata"
	"stocks-simulator/middleware"
	"stocks-simulator/valuation"
	"stocks-simulator/watchlist"
)

const shutdownTimeout = 10 * time.Second

// backend is everything the services need from storage.
type backend interface {
	handlers.Users
	ledger.Store
	watchlist.Store
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context) error {
	store, closeStore, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	rdb, err := config.InitRedis(ctx, cfg, log)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	var (
		cache  marketdata.Cache
		tokens handlers.TokenStore
	)
	if rdb != nil {
		cache = marketdata.NewRedisCache(rdb, log)
		tokens = handlers.NewRedisTokenStore(rdb)
	} else {
		cache = marketdata.NewMemoryCache(10 * time.Minute)
		tokens = handlers.NewMemoryTokenStore()
	}

	market := marketdata.NewClient(cfg.TwelveDataAPIKey, log, marketdata.Options{
		BaseURL: cfg.TwelveDataBaseURL,
		Limiter: marketdata.NewRateLimiter(cfg.MarketDataRateLimit, time.Minute),
		Cache:   cache,
	})
	loc := cfg.MarketLocation()

	h := handlers.New(handlers.Deps{
		Users: store,
		Ledger: ledger.NewService(store, market, log, ledger.Options{
			MaxQuantity: cfg.MaxTradeQuantity,
			Location:    loc,
		}),
		Valuation:      valuation.NewService(store, market, log, valuation.Options{Location: loc}),
		Watchlist:      watchlist.NewService(store, market, log),
		Market:         market,
		Tokens:         tokens,
		JWTSecret:      []byte(cfg.JWTSecret),
		InitialBalance: cfg.InitialBalance,
		Log:            log,
	})

	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(log))

	// Five auth attempts per minute per client.
	throttle := middleware.NewThrottle(rate.Every(12*time.Second), 5)
	h.Register(router, throttle.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Str("storage", cfg.Storage).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openStore returns the configured storage backend and a function releasing it.
func openStore(ctx context.Context) (backend, func(), error) {
	if cfg.Storage == config.StorageMemory {
		mem := database.NewMemoryStore()
		if _, err := mem.Seed(ctx); err != nil {
			return nil, nil, fmt.Errorf("seed memory store: %w", err)
		}
		log.Warn().Str("email", database.SeedEmail).Msg("using in-memory storage, data is lost on exit")
		return mem, func() {}, nil
	}

	db, err := config.InitDB(cfg)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		_ = sqlDB.Close()
		return nil, nil, err
	}
	return database.NewStore(db), func() { _ = sqlDB.Close() }, nil
}
