package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/pmccbot/position-engine/internal/alerts"
	"github.com/pmccbot/position-engine/internal/api"
	"github.com/pmccbot/position-engine/internal/config"
	"github.com/pmccbot/position-engine/internal/ledger"
	"github.com/pmccbot/position-engine/internal/marketdata"
	"github.com/pmccbot/position-engine/internal/metrics"
	"github.com/pmccbot/position-engine/internal/model"
	"github.com/pmccbot/position-engine/internal/notify"
	"github.com/pmccbot/position-engine/internal/pmcc"
	"github.com/pmccbot/position-engine/internal/scanner"
	"github.com/pmccbot/position-engine/internal/sched"
	"github.com/pmccbot/position-engine/internal/store"
)

func main() {
	memStore := flag.Bool("mem", false, "use the in-memory store (data will not persist)")
	seed := flag.Bool("seed", false, "insert an example SPY position on startup")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "err", err)
		os.Exit(1)
	}
	if missing := cfg.Validate(); len(missing) > 0 {
		slog.Warn("running in degraded mode, some settings are missing", "missing", missing)
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	switch {
	case *memStore:
		slog.Warn("using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	case cfg.DatabaseURL != "":
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		pg, err := store.NewPostgresStore(context.Background(), pool)
		if err != nil {
			slog.Error("database schema setup failed", "err", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("connected to PostgreSQL")
	default:
		sq, err := store.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			slog.Error("sqlite open failed", "path", cfg.SQLitePath, "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, func() { sq.Close() })
		st = sq
		slog.Info("using SQLite store", "path", cfg.SQLitePath)
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Market data provider ---
	var provider marketdata.Provider = marketdata.NewTradierClient(
		cfg.TradierAPIKey, cfg.TradierBaseURL, cfg.QuoteTimeout)
	provider = marketdata.NewRetryProvider(provider, 3, 500*time.Millisecond)

	// Wrap with Redis read-through cache if configured.
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		provider = marketdata.NewCachedProvider(provider, rdb, 30*time.Second)
		slog.Info("Redis market-data cache enabled")
	}

	// --- Notifier ---
	var notifier alerts.Notifier
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		tg, err := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID, 10*time.Second)
		if err != nil {
			slog.Error("telegram setup failed", "err", err)
			os.Exit(1)
		}
		notifier = tg
		slog.Info("Telegram notifications enabled")
	} else {
		notifier = notify.NewLog()
		slog.Warn("Telegram credentials not set, alerts go to the log only")
	}

	// --- Core services ---
	lg := ledger.New(st, pmcc.NewCapacityPolicy(cfg.MaxShortsPerContract))

	eval := alerts.New(st, provider, notifier, alerts.Config{
		ProfitLow:       cfg.ProfitThresholdLow,
		ProfitHigh:      cfg.ProfitThresholdHigh,
		StrikeProximity: cfg.StrikeProximityPct,
		ExpiryDays:      cfg.ExpiryWarningDays,
		DedupWindow:     cfg.AlertDedupWindow,
	})

	sc := scanner.New(st, provider, scanner.Profile{
		RollDTETargets:    cfg.RollDTETargets,
		RollStrikeOffsets: cfg.RollStrikeOffsets,
		RollMaxDelta:      cfg.RollMaxDelta,
		RollTopN:          cfg.RollTopN,
		DeltaMin:          cfg.TargetDeltaMin,
		DeltaMax:          cfg.TargetDeltaMax,
		DTEMin:            cfg.TargetDTEMin,
		DTEMax:            cfg.TargetDTEMax,
		NewCallTopN:       cfg.NewCallTopN,
	})

	if *seed {
		if err := seedExample(context.Background(), lg); err != nil {
			slog.Error("seeding failed", "err", err)
			os.Exit(1)
		}
	}

	// --- WebSocket hub ---
	wsHub := api.NewWSHub()
	go wsHub.Run()
	eval.OnAlert = wsHub.BroadcastAlert

	// --- Monitor loop ---
	monitor, err := sched.New(eval, lg, notifier, sched.Config{
		PollInterval:   cfg.PollInterval,
		MarketTimezone: cfg.MarketTimezone,
		MarketOpen:     cfg.MarketOpen,
		MarketClose:    cfg.MarketClose,
		DailySummaryAt: cfg.DailySummaryAt,
	})
	if err != nil {
		slog.Error("monitor setup failed", "err", err)
		os.Exit(1)
	}

	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	go monitor.Run(monitorCtx)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"position-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	handler := api.NewHandler(lg, eval, sc)
	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time alert pushes.
		r.Get("/ws", wsHub.HandleWS)
		handler.Routes(r)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("position-engine listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	stopMonitor()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down position-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("position-engine stopped")
}

// seedExample inserts a small SPY diagonal so a fresh install has
// something to look at. Dates are relative to today so the position
// stays plausible whenever it runs.
func seedExample(ctx context.Context, lg *ledger.Ledger) error {
	now := time.Now()

	leaps, err := lg.OpenLeaps(ctx, ledger.OpenLeapsParams{
		Symbol:     "SPY",
		Strike:     decimal.NewFromInt(620),
		Expiration: now.AddDate(1, 6, 0).Format(model.ExpirationLayout),
		EntryPrice: decimal.RequireFromString("112.50"),
		Quantity:   1,
		Notes:      "seeded example position",
	})
	if err != nil {
		return err
	}

	_, err = lg.OpenShortCall(ctx, ledger.OpenShortCallParams{
		LeapsID:    leaps.ID,
		Symbol:     "SPY",
		Strike:     decimal.NewFromInt(730),
		Expiration: now.AddDate(0, 0, 35).Format(model.ExpirationLayout),
		EntryPrice: decimal.RequireFromString("3.40"),
		Quantity:   1,
		Notes:      "seeded example position",
	})
	if err != nil {
		return err
	}

	slog.Info("seeded example SPY position", "leaps_id", leaps.ID)
	return nil
}
