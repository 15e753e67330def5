package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hoddukzoa12/openclaw/pkg/money"
)

// Config holds all configuration for the paywall service
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Payment    PaymentPolicy
	Monitoring MonitoringConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
}

// PaymentPolicy is the fully-resolved metering policy handed to the core.
// Core packages consume this value and never read the environment directly.
type PaymentPolicy struct {
	// Enabled gates all metering. When false every payment decision is a no.
	Enabled bool

	// Network identifies the settlement network (e.g. "base", "base-sepolia").
	Network string

	// PayTo is the receiving wallet address for settlements.
	PayTo string

	// TokenAddress is the payment token contract inspected during direct
	// on-chain verification.
	TokenAddress string

	// Price is the charge per settlement.
	Price money.Micros

	// FreeQuota is the number of unpaid messages allowed before payment is
	// required.
	FreeQuota int

	// FacilitatorURL is the external verification endpoint for
	// facilitator-relayed settlement proofs.
	FacilitatorURL string

	// ChainIndexerURL is the receipt-lookup endpoint for direct on-chain
	// verification.
	ChainIndexerURL string

	// MaxTxAmount is the per-transaction ceiling for delegated charges.
	MaxTxAmount money.Micros

	// LowBalanceThreshold triggers a proactive re-authorization prompt while
	// a delegated allowance is still usable.
	LowBalanceThreshold money.Micros

	// RequestTTL is how long a payment request stays payable.
	RequestTTL time.Duration

	// RetentionWindow is how long terminal payment requests (and consumed
	// settlement proofs) are kept before being purged.
	RetentionWindow time.Duration

	// CleanupInterval is the period of the background expiry sweep.
	CleanupInterval time.Duration

	// PaylinkSecret signs the payment-link tokens surfaced to the chat UI.
	PaylinkSecret string

	// PaylinkBaseURL is the public payment page the link points at.
	PaylinkBaseURL string
}

// MonitoringConfig holds monitoring configuration
type MonitoringConfig struct {
	Enabled     bool
	MetricsPath string
	LogLevel    string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	price, err := money.ParseUSD(getEnv("PAYMENT_PRICE", "$0.01"))
	if err != nil {
		return nil, fmt.Errorf("invalid PAYMENT_PRICE: %w", err)
	}
	maxTx, err := money.ParseUSD(getEnv("PAYMENT_MAX_TX_AMOUNT", "$10.00"))
	if err != nil {
		return nil, fmt.Errorf("invalid PAYMENT_MAX_TX_AMOUNT: %w", err)
	}
	lowBalance, err := money.ParseUSD(getEnv("PAYMENT_LOW_BALANCE_THRESHOLD", "$0.10"))
	if err != nil {
		return nil, fmt.Errorf("invalid PAYMENT_LOW_BALANCE_THRESHOLD: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", "30s"),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", "30s"),
			IdleTimeout:  getEnvAsDuration("SERVER_IDLE_TIMEOUT", "120s"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", ""),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "openclaw"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "openclaw_payments"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", "5m"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", ""),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			PoolSize: getEnvAsInt("REDIS_POOL_SIZE", 10),
		},
		Payment: PaymentPolicy{
			Enabled:             getEnvAsBool("PAYMENT_ENABLED", false),
			Network:             getEnv("PAYMENT_NETWORK", "base"),
			PayTo:               getEnv("PAYMENT_PAY_TO", ""),
			TokenAddress:        getEnv("PAYMENT_TOKEN_ADDRESS", ""),
			Price:               price,
			FreeQuota:           getEnvAsInt("PAYMENT_FREE_QUOTA", 3),
			FacilitatorURL:      getEnv("PAYMENT_FACILITATOR_URL", ""),
			ChainIndexerURL:     getEnv("PAYMENT_CHAIN_INDEXER_URL", ""),
			MaxTxAmount:         maxTx,
			LowBalanceThreshold: lowBalance,
			RequestTTL:          getEnvAsDuration("PAYMENT_REQUEST_TTL", "30m"),
			RetentionWindow:     getEnvAsDuration("PAYMENT_RETENTION_WINDOW", "24h"),
			CleanupInterval:     getEnvAsDuration("PAYMENT_CLEANUP_INTERVAL", "5m"),
			PaylinkSecret:       getEnv("PAYLINK_SECRET", ""),
			PaylinkBaseURL:      getEnv("PAYLINK_BASE_URL", ""),
		},
		Monitoring: MonitoringConfig{
			Enabled:     getEnvAsBool("MONITORING_ENABLED", true),
			MetricsPath: getEnv("METRICS_PATH", "/metrics"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.Payment.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the fields that must never be silently defaulted when
// metering is enabled. A disabled policy is always valid.
func (p PaymentPolicy) Validate() error {
	if !p.Enabled {
		return nil
	}

	if p.PayTo == "" {
		return fmt.Errorf("PAYMENT_PAY_TO is required when payments are enabled")
	}
	if p.Network == "" {
		return fmt.Errorf("PAYMENT_NETWORK is required when payments are enabled")
	}
	if p.Price <= 0 {
		return fmt.Errorf("PAYMENT_PRICE must be positive when payments are enabled")
	}
	if p.FacilitatorURL == "" {
		return fmt.Errorf("PAYMENT_FACILITATOR_URL is required when payments are enabled")
	}
	if p.FreeQuota < 0 {
		return fmt.Errorf("PAYMENT_FREE_QUOTA must not be negative")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
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

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ := time.ParseDuration(defaultValue)
		return duration
	}
	return value
}
