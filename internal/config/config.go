package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"ledger-service/internal/validation"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"

	defaultIdempotencyTTL = 24 * time.Hour
	defaultFirstAccountNo = 10000000
)

// Config is loaded from an optional YAML file (CONFIG_FILE) and then from the
// environment, which wins.
type Config struct {
	DBHost     string `yaml:"db_host"`
	DBPort     string `yaml:"db_port"`
	DBUser     string `yaml:"db_user"`
	DBPassword string `yaml:"db_password"`
	DBName     string `yaml:"db_name"`
	DBSSLMode  string `yaml:"db_sslmode"`

	ServerPort     string        `yaml:"port"`
	LogLevel       string        `yaml:"log_level"`
	StorageDriver  string        `yaml:"storage_driver"`
	AutoMigrate    bool          `yaml:"auto_migrate"`
	RedisURL       string        `yaml:"redis_url"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`

	// Raw amounts as written in the file or environment; see Limits.
	MinimumDepositAmount    string `yaml:"minimum_deposit_amount"`
	MinimumWithdrawalAmount string `yaml:"minimum_withdrawal_amount"`
	DefaultAccountNo        int64  `yaml:"default_account_no"`
}

func Default() *Config {
	return &Config{
		DBHost:           "localhost",
		DBPort:           "5432",
		DBUser:           "postgres",
		DBPassword:       "password",
		DBName:           "ledger",
		DBSSLMode:        "disable",
		ServerPort:       "8080",
		LogLevel:         "info",
		StorageDriver:    StorageDriverPostgres,
		IdempotencyTTL:   defaultIdempotencyTTL,
		DefaultAccountNo: defaultFirstAccountNo,
	}
}

func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}

	switch cfg.StorageDriver {
	case StorageDriverPostgres, StorageDriverMemory:
	default:
		return nil, fmt.Errorf("invalid STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	setString(&c.DBHost, "DB_HOST")
	setString(&c.DBPort, "DB_PORT")
	setString(&c.DBUser, "DB_USER")
	setString(&c.DBPassword, "DB_PASSWORD")
	setString(&c.DBName, "DB_NAME")
	setString(&c.DBSSLMode, "DB_SSLMODE")
	setString(&c.ServerPort, "PORT")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.StorageDriver, "STORAGE_DRIVER")
	setString(&c.RedisURL, "REDIS_URL")
	setString(&c.MinimumDepositAmount, "MINIMUM_DEPOSIT_AMOUNT")
	setString(&c.MinimumWithdrawalAmount, "MINIMUM_WITHDRAWAL_AMOUNT")

	c.LogLevel = strings.ToLower(c.LogLevel)
	c.StorageDriver = strings.ToLower(c.StorageDriver)

	if v := os.Getenv("AUTO_MIGRATE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid AUTO_MIGRATE: %w", err)
		}
		c.AutoMigrate = b
	}

	if v := os.Getenv("IDEMPOTENCY_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid IDEMPOTENCY_TTL: %w", err)
		}
		c.IdempotencyTTL = d
	}

	return nil
}

// GetDBConnectionString renders the lib/pq key/value DSN.
func (c *Config) GetDBConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

// Limits parses the configured minimum amounts. A missing or malformed value
// falls back to its default; the returned slice names the settings that did.
func (c *Config) Limits() (validation.Limits, []string) {
	limits := validation.DefaultLimits()
	var fallbacks []string

	if d, ok := parseAmount(c.MinimumDepositAmount); ok {
		limits.MinimumDeposit = d
	} else if c.MinimumDepositAmount != "" {
		fallbacks = append(fallbacks, "MINIMUM_DEPOSIT_AMOUNT")
	}

	if d, ok := parseAmount(c.MinimumWithdrawalAmount); ok {
		limits.MinimumWithdrawal = d
	} else if c.MinimumWithdrawalAmount != "" {
		fallbacks = append(fallbacks, "MINIMUM_WITHDRAWAL_AMOUNT")
	}

	return limits, fallbacks
}

func parseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
