package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

const (
	EnvDevelopment = "DEV"
	EnvProduction  = "PROD"
)

type AppConfig struct {
	PostgresURL   string
	BotToken      string
	VendorBaseURL string
	ProxyURL      string

	CacheTTL            time.Duration
	FetchTimeout        time.Duration
	RescanInterval      time.Duration
	SubscriptionMaxAge  time.Duration
	SweepSchedule       string
	DefaultScanInterval time.Duration

	MaxActiveSubscriptions int
	FreeSearchesPerHour    int
	DefaultCredit          float64

	// AdminChatID may issue credit top-ups; zero disables the command.
	AdminChatID int64

	// NotifyDeactivate moves a subscription to "processed" once its alert
	// fires; when false the subscription keeps alerting every rescan.
	NotifyDeactivate bool
	// ShowEmptyStores includes a labeled empty section for stores with
	// zero matches instead of suppressing them.
	ShowEmptyStores bool

	AppEnv   string // EnvDevelopment or EnvProduction
	LogLevel slog.Level
}

var Config AppConfig

func LoadConfig() {
	cfg := AppConfig{}

	cfg.AppEnv = os.Getenv("APP_ENV")
	cfg.PostgresURL = loadRequired("POSTGRES_URL")
	cfg.BotToken = loadRequired("BOT_TOKEN")
	cfg.VendorBaseURL = loadOptional("VENDOR_BASE_URL", "https://www.tuenvio.cu")
	cfg.ProxyURL = loadOptional("PROXY_URL", "")

	cfg.CacheTTL = loadSeconds("CACHE_TTL_SECONDS", 300)
	cfg.FetchTimeout = loadSeconds("FETCH_TIMEOUT_SECONDS", 20)
	cfg.RescanInterval = loadSeconds("RESCAN_INTERVAL_SECONDS", 300)
	cfg.DefaultScanInterval = loadSeconds("DEFAULT_SCAN_INTERVAL_SECONDS", 1800)
	cfg.SubscriptionMaxAge = loadSeconds("SUBSCRIPTION_MAX_AGE_SECONDS", 24*60*60)
	cfg.SweepSchedule = loadOptional("SWEEP_SCHEDULE", "@hourly")

	cfg.MaxActiveSubscriptions = loadInt("MAX_ACTIVE_SUBSCRIPTIONS", 3)
	cfg.FreeSearchesPerHour = loadInt("FREE_SEARCHES_PER_HOUR", 10)
	cfg.DefaultCredit = loadFloat("DEFAULT_CREDIT", 10)
	cfg.AdminChatID = loadInt64("ADMIN_CHAT_ID", 0)

	cfg.NotifyDeactivate = loadBool("NOTIFY_DEACTIVATE", true)
	cfg.ShowEmptyStores = loadBool("SHOW_EMPTY_STORES", false)

	lvlString := loadOptional("LOG_LEVEL", "INFO")
	var err error
	cfg.LogLevel, err = parseLogLevel(lvlString)
	if err != nil {
		slog.Error("Invalid LOG_LEVEL", "error", err)
		cfg.LogLevel = slog.LevelInfo
	}

	Config = cfg
}

func parseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	var err = level.UnmarshalText([]byte(s))
	return level, err
}

func loadRequired(key string) string {
	value := os.Getenv(key)
	if value == "" {
		slog.Error("Required env var not set", "key", key)
		os.Exit(1)
	}
	return value
}

func loadOptional(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func loadInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		slog.Error("Invalid integer env var, using default", "key", key, "value", value)
		return defaultValue
	}
	return n
}

func loadInt64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		slog.Error("Invalid integer env var, using default", "key", key, "value", value)
		return defaultValue
	}
	return n
}

func loadFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		slog.Error("Invalid float env var, using default", "key", key, "value", value)
		return defaultValue
	}
	return f
}

func loadBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		slog.Error("Invalid boolean env var, using default", "key", key, "value", value)
		return defaultValue
	}
	return b
}

func loadSeconds(key string, defaultSeconds int) time.Duration {
	return time.Duration(loadInt(key, defaultSeconds)) * time.Second
}

func (c AppConfig) IsProduction() bool {
	return Config.AppEnv == EnvProduction
}
