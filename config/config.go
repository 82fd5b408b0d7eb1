package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"portfolioLedger/internal/adapters/logger" // Import the logger package for LogLevel
	"portfolioLedger/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	// Cycle scheduling
	CycleInterval time.Duration

	// Reconciliation
	ReconTolerance decimal.Decimal // absolute per-field tolerance, in currency units

	// Sleeve funding (bootstrap only; existing sleeves in the store win)
	EquityInitialCapital decimal.Decimal
	CryptoInitialCapital decimal.Decimal
	SleevesFile          string // optional YAML overriding the funding above

	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel

	// Alerting
	TelegramToken         string
	TelegramChatID        int64
	PersistAlertThreshold int // consecutive persistence failures before alerting

	// Proposal limits
	MaxOrderFraction decimal.Decimal // one buy's cost as a fraction of current capital
	MaxOpenPositions int             // distinct open positions per sleeve; <= 0 disables
}

// sleevesFile is the YAML shape of the optional sleeve funding file.
type sleevesFile struct {
	Sleeves []struct {
		ID             string `yaml:"id"`
		InitialCapital string `yaml:"initial_capital"`
	} `yaml:"sleeves"`
}

// LoadConfig loads configuration from environment variables (.env file) and,
// when SLEEVES_FILE is set, the sleeve funding YAML.
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Cycle scheduling
	intervalSeconds := getEnvAsInt("CYCLE_INTERVAL_SECONDS", 60)
	if intervalSeconds <= 0 {
		errs = append(errs, "CYCLE_INTERVAL_SECONDS must be positive")
	}
	cfg.CycleInterval = time.Duration(intervalSeconds) * time.Second

	// Reconciliation. Differences at or below one unit of currency are noise.
	cfg.ReconTolerance, err = getEnvAsDecimal("RECON_TOLERANCE", "1.00")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RECON_TOLERANCE: %v", err))
	} else if cfg.ReconTolerance.IsNegative() {
		errs = append(errs, "RECON_TOLERANCE cannot be negative")
	}

	// Sleeve funding
	cfg.EquityInitialCapital, err = getEnvAsDecimal("EQUITY_INITIAL_CAPITAL", "100000")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid EQUITY_INITIAL_CAPITAL: %v", err))
	} else if !cfg.EquityInitialCapital.IsPositive() {
		errs = append(errs, "EQUITY_INITIAL_CAPITAL must be positive")
	}
	cfg.CryptoInitialCapital, err = getEnvAsDecimal("CRYPTO_INITIAL_CAPITAL", "50000")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid CRYPTO_INITIAL_CAPITAL: %v", err))
	} else if !cfg.CryptoInitialCapital.IsPositive() {
		errs = append(errs, "CRYPTO_INITIAL_CAPITAL must be positive")
	}

	cfg.SleevesFile = getEnv("SLEEVES_FILE", "")
	if cfg.SleevesFile != "" {
		if err := cfg.applySleevesFile(cfg.SleevesFile); err != nil {
			errs = append(errs, fmt.Sprintf("invalid SLEEVES_FILE: %v", err))
		}
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/ledger.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))

	// Alerting
	cfg.TelegramToken = getEnv("TELEGRAM_BOT_TOKEN", "")
	cfg.TelegramChatID = getEnvAsInt64("TELEGRAM_CHAT_ID", 0)
	if cfg.TelegramToken != "" && cfg.TelegramChatID == 0 {
		errs = append(errs, "TELEGRAM_CHAT_ID must be set when TELEGRAM_BOT_TOKEN is set")
	}
	cfg.PersistAlertThreshold = getEnvAsInt("PERSIST_ALERT_THRESHOLD", 3)
	if cfg.PersistAlertThreshold <= 0 {
		errs = append(errs, "PERSIST_ALERT_THRESHOLD must be positive")
	}

	// Proposal limits
	cfg.MaxOrderFraction, err = getEnvAsDecimal("MAX_ORDER_FRACTION", "0.25")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_ORDER_FRACTION: %v", err))
	} else if cfg.MaxOrderFraction.IsNegative() || cfg.MaxOrderFraction.GreaterThan(decimal.NewFromInt(1)) {
		errs = append(errs, "MAX_ORDER_FRACTION must be within [0, 1]")
	}
	cfg.MaxOpenPositions = getEnvAsInt("MAX_OPEN_POSITIONS", 10)

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// InitialCapital returns the configured bootstrap funding for a sleeve.
func (c *Config) InitialCapital(id domain.SleeveID) decimal.Decimal {
	if id == domain.SleeveCrypto {
		return c.CryptoInitialCapital
	}
	return c.EquityInitialCapital
}

// applySleevesFile overrides sleeve funding from the YAML file.
func (c *Config) applySleevesFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read '%s': %w", path, err)
	}
	var file sleevesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("failed to parse '%s': %w", path, err)
	}
	for _, entry := range file.Sleeves {
		id := domain.SleeveID(strings.ToUpper(entry.ID))
		if !id.IsValid() {
			return fmt.Errorf("unknown sleeve id '%s'", entry.ID)
		}
		capital, err := decimal.NewFromString(entry.InitialCapital)
		if err != nil {
			return fmt.Errorf("invalid initial_capital '%s' for sleeve %s: %w", entry.InitialCapital, id, err)
		}
		if !capital.IsPositive() {
			return fmt.Errorf("initial_capital for sleeve %s must be positive", id)
		}
		switch id {
		case domain.SleeveEquity:
			c.EquityInitialCapital = capital
		case domain.SleeveCrypto:
			c.CryptoInitialCapital = capital
		}
	}
	return nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDecimal(key, defaultValue string) (decimal.Decimal, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}
