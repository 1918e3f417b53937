package config

import (
	"os"
	"strconv"
	"strings"
)

// Global config instance
var global *Config

// Config holds process-wide settings loaded from the environment.
// Strategy parameters live in the store, not here.
type Config struct {
	// Identity
	ClientID int

	// Risk caps (nominal currency units)
	MaxOrderNominal    float64
	MaxContractNominal float64
	MaxGlobalNominal   float64
	MaxStrategyNominal float64
	WarningPercentage  float64

	// Grid behaviour
	ConfirmationMaxAgeSeconds int
	CancelTimeoutSeconds      int
	RefreshSeconds            int

	// Plumbing
	Broker        string // "paper" or "binance"
	DBPath        string
	APIServerPort int
	LogLevel      string

	// Binance credentials (broker = "binance")
	BinanceAPIKey    string
	BinanceAPISecret string

	// Telegram alerts (optional)
	TelegramToken  string
	TelegramChatID int64
}

// Init loads the global configuration from environment variables.
func Init() {
	cfg := &Config{
		ClientID:                  1,
		MaxOrderNominal:           10_000,
		MaxContractNominal:        300_000,
		MaxGlobalNominal:          600_000,
		MaxStrategyNominal:        100_000,
		WarningPercentage:         90,
		ConfirmationMaxAgeSeconds: 300,
		CancelTimeoutSeconds:      10,
		RefreshSeconds:            30,
		Broker:                    "paper",
		DBPath:                    "data/gridbot.db",
		APIServerPort:             8080,
		LogLevel:                  "info",
	}

	if v := os.Getenv("CLIENT_ID"); v != "" {
		if id, err := strconv.Atoi(v); err == nil {
			cfg.ClientID = id
		}
	}
	loadFloat("MAX_ORDER_NOMINAL", &cfg.MaxOrderNominal)
	loadFloat("MAX_CONTRACT_NOMINAL", &cfg.MaxContractNominal)
	loadFloat("MAX_GLOBAL_NOMINAL", &cfg.MaxGlobalNominal)
	loadFloat("MAX_STRATEGY_NOMINAL", &cfg.MaxStrategyNominal)
	loadFloat("RISK_WARNING_PERCENTAGE", &cfg.WarningPercentage)
	loadInt("CONFIRMATION_MAX_AGE_SECONDS", &cfg.ConfirmationMaxAgeSeconds)
	loadInt("CANCEL_TIMEOUT_SECONDS", &cfg.CancelTimeoutSeconds)
	loadInt("REFRESH_SECONDS", &cfg.RefreshSeconds)
	loadInt("API_SERVER_PORT", &cfg.APIServerPort)

	if v := os.Getenv("BROKER"); v != "" {
		cfg.Broker = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	cfg.BinanceAPIKey = os.Getenv("BINANCE_API_KEY")
	cfg.BinanceAPISecret = os.Getenv("BINANCE_API_SECRET")
	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.TelegramChatID = id
		}
	}

	global = cfg
}

// Get returns the global configuration, initializing it on first use.
func Get() *Config {
	if global == nil {
		Init()
	}
	return global
}

func loadFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			*dst = f
		}
	}
}

func loadInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}
