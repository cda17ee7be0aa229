// Package config loads the engine configuration from environment
// variables, with a local .env honored in development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config is the full configuration surface of the engine.
type Config struct {
	Port string

	// Storage: DatabaseURL selects PostgreSQL; otherwise SQLitePath is
	// used. RedisURL optionally enables the market-data cache.
	DatabaseURL string
	SQLitePath  string
	RedisURL    string

	// Market data provider.
	TradierAPIKey  string
	TradierBaseURL string
	QuoteTimeout   time.Duration

	// Notification channel.
	TelegramBotToken string
	TelegramChatID   string

	// Monitoring loop.
	PollInterval    time.Duration
	MarketTimezone  string // IANA name, e.g. America/New_York
	MarketOpen      ClockTime
	MarketClose     ClockTime
	DailySummaryAt  ClockTime

	// Alert thresholds.
	ProfitThresholdLow  decimal.Decimal // fraction, default 0.50
	ProfitThresholdHigh decimal.Decimal // fraction, default 0.80
	StrikeProximityPct  decimal.Decimal // fraction, default 0.03
	ExpiryWarningDays   int             // default 7
	AlertDedupWindow    time.Duration   // default 1h

	// Scanner profile.
	TargetDeltaMin    float64
	TargetDeltaMax    float64
	TargetDTEMin      int
	TargetDTEMax      int
	RollDTETargets    []int
	RollStrikeOffsets []decimal.Decimal // dollars above current strike
	RollMaxDelta      float64
	RollTopN          int
	NewCallTopN       int

	// Ledger policy.
	MaxShortsPerContract int64
}

// ClockTime is a wall-clock time of day in the market timezone.
type ClockTime struct {
	Hour   int
	Minute int
}

func (c ClockTime) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// Minutes returns the time of day as minutes after midnight.
func (c ClockTime) Minutes() int { return c.Hour*60 + c.Minute }

// Load reads configuration from the environment. A .env file in the
// working directory is loaded first if present (development convenience);
// real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load() // missing .env is fine

	cfg := &Config{
		Port:        env("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  env("SQLITE_PATH", "pmcc.db"),
		RedisURL:    os.Getenv("REDIS_URL"),

		TradierAPIKey:  os.Getenv("TRADIER_API_KEY"),
		TradierBaseURL: env("TRADIER_BASE_URL", "https://sandbox.tradier.com/v1"),
		QuoteTimeout:   time.Duration(envInt("QUOTE_TIMEOUT_SECONDS", 10)) * time.Second,

		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   os.Getenv("TELEGRAM_CHAT_ID"),

		PollInterval:   time.Duration(envInt("POLL_INTERVAL_MINUTES", 5)) * time.Minute,
		MarketTimezone: env("MARKET_TIMEZONE", "America/New_York"),
		MarketOpen:     ClockTime{envInt("MARKET_OPEN_HOUR", 9), envInt("MARKET_OPEN_MINUTE", 30)},
		MarketClose:    ClockTime{envInt("MARKET_CLOSE_HOUR", 16), envInt("MARKET_CLOSE_MINUTE", 0)},
		DailySummaryAt: ClockTime{envInt("DAILY_SUMMARY_HOUR", 16), envInt("DAILY_SUMMARY_MINUTE", 30)},

		ProfitThresholdLow:  envDecimal("PROFIT_THRESHOLD_LOW", "0.50"),
		ProfitThresholdHigh: envDecimal("PROFIT_THRESHOLD_HIGH", "0.80"),
		StrikeProximityPct:  envDecimal("STRIKE_PROXIMITY_PCT", "0.03"),
		ExpiryWarningDays:   envInt("LOW_PROFIT_DTE_THRESHOLD", 7),
		AlertDedupWindow:    time.Duration(envInt("ALERT_DEDUP_MINUTES", 60)) * time.Minute,

		TargetDeltaMin: envFloat("TARGET_DELTA_MIN", 0.20),
		TargetDeltaMax: envFloat("TARGET_DELTA_MAX", 0.30),
		TargetDTEMin:   envInt("TARGET_DTE_MIN", 30),
		TargetDTEMax:   envInt("TARGET_DTE_MAX", 45),
		RollMaxDelta:   envFloat("ROLL_MAX_DELTA", 0.30),
		RollTopN:       envInt("ROLL_TOP_N", 3),
		NewCallTopN:    envInt("NEWCALL_TOP_N", 5),

		MaxShortsPerContract: int64(envInt("MAX_SHORTS_PER_CONTRACT", 1)),
	}

	cfg.RollDTETargets = envInts("ROLL_DTE_TARGETS", []int{30, 45, 60})
	for _, off := range envInts("ROLL_STRIKE_OFFSETS", []int{5, 10, 15, 20}) {
		cfg.RollStrikeOffsets = append(cfg.RollStrikeOffsets, decimal.NewFromInt(int64(off)))
	}

	if _, err := time.LoadLocation(cfg.MarketTimezone); err != nil {
		return nil, fmt.Errorf("config: invalid MARKET_TIMEZONE %q: %w", cfg.MarketTimezone, err)
	}
	return cfg, nil
}

// Validate checks settings that have no usable default. The market data
// and Telegram credentials are required for live monitoring but not for
// serving the API, so the caller decides how hard to fail.
func (c *Config) Validate() []string {
	var missing []string
	if c.TradierAPIKey == "" {
		missing = append(missing, "TRADIER_API_KEY")
	}
	if c.TelegramBotToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if c.TelegramChatID == "" {
		missing = append(missing, "TELEGRAM_CHAT_ID")
	}
	return missing
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDecimal(key, fallback string) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	d, _ := decimal.NewFromString(fallback)
	return d
}

// envInts parses a comma-separated integer list, e.g. "30,45,60".
func envInts(key string, fallback []int) []int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []int
	for _, part := range strings.Split(v, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return fallback
		}
		out = append(out, n)
	}
	return out
}
