package config

import (
	"fmt"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppEnv string `validate:"required,oneof=development production test"`
	Port   string `validate:"required,numeric"`

	Database DatabaseConfig
	Redis    RedisConfig
	Events   EventsConfig
	Jobs     JobsConfig
	Pricing  PricingConfig

	JWTSecret         string        `validate:"required"`
	PaymentTTL        time.Duration `validate:"gt=0"`
	ProviderTimeout   time.Duration `validate:"gt=0"`
	CallbackRateLimit float64       `validate:"gt=0"`
	CallbackRateBurst int           `validate:"gt=0"`

	Providers ProvidersConfig
}

type DatabaseConfig struct {
	Driver      string `validate:"required,oneof=postgres mysql"`
	URL         string `validate:"required"`
	AutoMigrate bool
	MaxOpen     int
	MaxIdle     int
}

type RedisConfig struct {
	Addr     string `validate:"required"`
	Password string
	DB       int `validate:"gte=0"`
}

type EventsConfig struct {
	Sink           string        `validate:"required,oneof=redis nats log"`
	NatsURL        string        `validate:"required_if=Sink nats"`
	NatsStream     string
	PollInterval   time.Duration `validate:"gt=0"`
	BatchSize      int           `validate:"gt=0"`
	MaxAttempts    int           `validate:"gt=0"`
	PublishTimeout time.Duration `validate:"gt=0"`
}

type JobsConfig struct {
	ExpirySweepSpec  string        `validate:"required"`
	ReconcileSpec    string        `validate:"required"`
	RenewalSpec      string        `validate:"required"`
	RenewalLookahead time.Duration `validate:"gt=0"`
	RenewalGrace     time.Duration `validate:"gte=0"`
	RenewalWorkers   int           `validate:"gt=0"`
}

type PricingConfig struct {
	DefaultTaxRate decimal.Decimal
	TaxAPIURL      string
	TaxCacheTTL    time.Duration
	// Units of each currency per one USD.
	ExchangeRates map[string]decimal.Decimal
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv: getEnv("APP_ENV", "production"),
		Port:   getEnv("PORT", "8080"),
		Database: DatabaseConfig{
			Driver:      getEnv("DB_DRIVER", "postgres"),
			URL:         firstEnv("DATABASE_URL", "POSTGRES_URL"),
			AutoMigrate: getBool("DB_AUTO_MIGRATE", true),
			MaxOpen:     getInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdle:     getInt("DB_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getInt("REDIS_DB", 0),
		},
		Events: EventsConfig{
			Sink:           getEnv("EVENT_SINK", "redis"),
			NatsURL:        os.Getenv("NATS_URL"),
			NatsStream:     getEnv("NATS_STREAM", "PAYMENTS"),
			PollInterval:   getDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),
			BatchSize:      getInt("OUTBOX_BATCH", 100),
			MaxAttempts:    getInt("OUTBOX_MAX_ATTEMPTS", 12),
			PublishTimeout: getDuration("OUTBOX_PUBLISH_TIMEOUT", 5*time.Second),
		},
		Jobs: JobsConfig{
			ExpirySweepSpec:  getEnv("EXPIRY_SWEEP_SPEC", "@every 5m"),
			ReconcileSpec:    getEnv("RECONCILE_SPEC", "0 55 23 * * *"),
			RenewalSpec:      getEnv("RENEWAL_SPEC", "@every 1h"),
			RenewalLookahead: getDuration("RENEWAL_LOOKAHEAD", 72*time.Hour),
			RenewalGrace:     getDuration("RENEWAL_GRACE", 72*time.Hour),
			RenewalWorkers:   getInt("RENEWAL_WORKERS", 8),
		},
		Pricing: PricingConfig{
			DefaultTaxRate: getDecimal("TAX_DEFAULT_RATE", decimal.Zero),
			TaxAPIURL:      os.Getenv("TAX_API_URL"),
			TaxCacheTTL:    getDuration("TAX_CACHE_TTL", time.Hour),
		},
		JWTSecret:         os.Getenv("JWT_SECRET"),
		PaymentTTL:        getDuration("PAYMENT_TTL", 15*time.Minute),
		ProviderTimeout:   getDuration("PROVIDER_TIMEOUT", 15*time.Second),
		CallbackRateLimit: getFloat("CALLBACK_RATE_LIMIT", 20),
		CallbackRateBurst: getInt("CALLBACK_RATE_BURST", 40),
	}

	rates, err := ParseExchangeRates(getEnv("EXCHANGE_RATES", "USD=1,EUR=0.92,VND=25000,JPY=150"))
	if err != nil {
		return nil, err
	}
	cfg.Pricing.ExchangeRates = rates

	providers, err := LoadProviders(os.Getenv("PROVIDERS_FILE"))
	if err != nil {
		return nil, err
	}
	cfg.Providers = providers

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (c *Config) IsDevelopment() bool { return c.AppEnv == "development" }

// ParseExchangeRates parses "USD=1,VND=25000".
func ParseExchangeRates(raw string) (map[string]decimal.Decimal, error) {
	rates := make(map[string]decimal.Decimal)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		code, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("EXCHANGE_RATES: malformed pair %q", pair)
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil || !rate.IsPositive() {
			return nil, fmt.Errorf("EXCHANGE_RATES: invalid rate for %s", code)
		}
		rates[strings.ToUpper(strings.TrimSpace(code))] = rate
	}
	return rates, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func getInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	if v, err := decimal.NewFromString(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}
