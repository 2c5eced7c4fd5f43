// Package config reads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/opsdb"
	"github.com/fjod/storefront/internal/phonepe"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

const (
	StorageMemory = "memory"
	StorageMongo  = "mongo"
)

type Config struct {
	ServiceName        string
	LogLevel           string
	HTTPPort           string
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64

	Storage       string
	MongoURI      string
	MongoDatabase string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// CartCacheJitter is added at random to each cached cart's TTL.
	CartCacheTTL    time.Duration
	CartCacheJitter time.Duration

	// Postgres is nil when PG_HOST is unset; order numbers and incidents
	// then stay in process memory.
	Postgres *opsdb.Credentials

	KafkaBrokers  []string
	KafkaTopic    string
	NotifierGroup string

	PhonePe     phonepe.Config
	PublicURL   string
	FrontendURL string

	Currency          string
	CheckoutValidity  time.Duration
	DeliveryCharge    decimal.Decimal
	FreeDeliveryAbove decimal.Decimal

	FinalizeLockTTL time.Duration
	FinalizeWait    time.Duration
}

// Load reads the environment. Malformed values are collected and returned
// together.
func Load() (*Config, error) {
	var errs []error

	cfg := &Config{
		ServiceName:        getEnv("SERVICE_NAME", "storefront"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		RequestTimeout:     getEnvDuration("REQUEST_TIMEOUT", 30*time.Second, &errs),
		ShutdownTimeout:    getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second, &errs),
		MaxRequestBodySize: int64(getEnvInt("MAX_REQUEST_BODY_SIZE", 1<<20, &errs)), // 1MB

		Storage:       strings.ToLower(getEnv("STORAGE", StorageMemory)),
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnv("MONGO_DATABASE", "storefront"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0, &errs),

		CartCacheTTL:    getEnvDuration("CART_CACHE_TTL", 15*time.Minute, &errs),
		CartCacheJitter: getEnvDuration("CART_CACHE_JITTER", 5*time.Minute, &errs),

		KafkaBrokers:  splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:    getEnv("KAFKA_TOPIC", "order-events"),
		NotifierGroup: getEnv("NOTIFIER_GROUP", "storefront-notifier"),

		PhonePe: phonepe.Config{
			BaseURL:            getEnv("PHONEPE_BASE_URL", "https://api-preprod.phonepe.com/apis/pg-sandbox"),
			MerchantID:         getEnv("PHONEPE_MERCHANT_ID", "PGTESTPAYUAT"),
			SaltKey:            getEnv("PHONEPE_SALT_KEY", "099eb0cd-02cf-4e2a-8aca-3e6c6aff0399"),
			SaltIndex:          getEnvInt("PHONEPE_SALT_INDEX", 1, &errs),
			Timeout:            getEnvDuration("PHONEPE_TIMEOUT", 15*time.Second, &errs),
			MaxAttempts:        getEnvInt("PHONEPE_MAX_ATTEMPTS", 3, &errs),
			InitialInterval:    getEnvDuration("PHONEPE_RETRY_INTERVAL", time.Second, &errs),
			BreakerFailures:    uint32(getEnvInt("PHONEPE_BREAKER_FAILURES", 5, &errs)),
			BreakerOpenTimeout: getEnvDuration("PHONEPE_BREAKER_OPEN_TIMEOUT", 30*time.Second, &errs),
		},
		PublicURL:   getEnv("PUBLIC_URL", "http://localhost:8080"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),

		Currency:          strings.ToUpper(getEnv("CURRENCY", "INR")),
		CheckoutValidity:  getEnvDuration("CHECKOUT_VALIDITY", 2*time.Hour, &errs),
		DeliveryCharge:    getEnvDecimal("DELIVERY_CHARGE", decimal.Zero, &errs),
		FreeDeliveryAbove: getEnvDecimal("FREE_DELIVERY_ABOVE", decimal.Zero, &errs),

		FinalizeLockTTL: getEnvDuration("FINALIZE_LOCK_TTL", 30*time.Second, &errs),
		FinalizeWait:    getEnvDuration("FINALIZE_WAIT", 10*time.Second, &errs),
	}

	if host := getEnv("PG_HOST", ""); host != "" {
		cfg.Postgres = &opsdb.Credentials{
			Host:              host,
			Port:              getEnvInt("PG_PORT", 5432, &errs),
			User:              getEnv("PG_USER", "postgres"),
			Password:          getEnv("PG_PASSWORD", ""),
			DBName:            getEnv("PG_DATABASE", "storefront"),
			SSLMode:           getEnv("PG_SSLMODE", "disable"),
			MigrationsDirPath: getEnv("MIGRATIONS_DIR", "internal/opsdb/migrations"),
		}
	}

	errs = append(errs, cfg.validate()...)
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return cfg, nil
}

func (c *Config) validate() []error {
	var errs []error
	if _, err := currency.ParseISO(c.Currency); err != nil {
		errs = append(errs, fmt.Errorf("CURRENCY %q: %w", c.Currency, err))
	}
	if c.Storage != StorageMemory && c.Storage != StorageMongo {
		errs = append(errs, fmt.Errorf("STORAGE must be %q or %q, got %q", StorageMemory, StorageMongo, c.Storage))
	}
	if c.PhonePe.MerchantID == "" || c.PhonePe.SaltKey == "" {
		errs = append(errs, errors.New("PHONEPE_MERCHANT_ID and PHONEPE_SALT_KEY are required"))
	}
	if c.DeliveryCharge.IsNegative() || c.FreeDeliveryAbove.IsNegative() {
		errs = append(errs, errors.New("delivery amounts must not be negative"))
	}
	if c.CheckoutValidity <= 0 {
		errs = append(errs, errors.New("CHECKOUT_VALIDITY must be positive"))
	}
	return errs
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return d
}

func getEnvDecimal(key string, defaultValue decimal.Decimal, errs *[]error) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
