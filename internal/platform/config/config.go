// Package config loads runtime configuration from the environment with
// optional .env overrides for local development.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile      = ".env"
	defaultPort         = "8080"
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 120 * time.Second

	defaultDatabaseMaxConns    = 8
	defaultDatabaseConnTimeout = 5 * time.Second

	defaultOrderPrefix = "TL"

	defaultFreeShippingThreshold = int64(3500)
	defaultStandardRate          = int64(495)
	defaultExpressRate           = int64(995)
	defaultInsuranceRate         = int64(299)
	defaultCurrency              = "usd"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Stripe   StripeConfig
	Ads      AdsConfig
	Email    EmailConfig
	Admin    AdminConfig
	Checkout CheckoutConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds the Postgres connection settings. An empty URL
// leaves the store unconfigured and inventory falls back to the volatile
// in-process cache.
type DatabaseConfig struct {
	URL            string
	MaxConns       int
	ConnectTimeout time.Duration
}

// StripeConfig collects the payment platform credentials.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

// AdsConfig holds the conversion destination credentials. All fields are
// optional; missing credentials skip that destination.
type AdsConfig struct {
	MetaPixelID     string
	MetaAccessToken string
	GAMeasurementID string
	GAAPISecret     string
}

// EmailConfig drives transactional email.
type EmailConfig struct {
	APIKey      string
	FromAddress string
}

// AdminConfig protects the admin inventory endpoints.
type AdminConfig struct {
	APIToken string
}

// CheckoutConfig tunes order numbering and the pricing rate table, in
// integer minor currency units.
type CheckoutConfig struct {
	OrderPrefix           string
	FreeShippingThreshold int64
	StandardRate          int64
	ExpressRate           int64
	InsuranceRate         int64
	Currency              string
}

// ValidationError is returned when required configuration fields are
// missing or invalid.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups.
// Values in the map take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on
// provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the application configuration by combining defaults,
// .env overrides, and environment variables.
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Database: DatabaseConfig{
			URL:            stringWithDefault(lookup, "API_DATABASE_URL", ""),
			MaxConns:       intWithDefault(lookup, "API_DATABASE_MAX_CONNS", defaultDatabaseMaxConns),
			ConnectTimeout: durationWithDefault(lookup, "API_DATABASE_CONNECT_TIMEOUT", defaultDatabaseConnTimeout),
		},
		Stripe: StripeConfig{
			SecretKey:     stringWithDefault(lookup, "API_STRIPE_SECRET_KEY", ""),
			WebhookSecret: stringWithDefault(lookup, "API_STRIPE_WEBHOOK_SECRET", ""),
		},
		Ads: AdsConfig{
			MetaPixelID:     stringWithDefault(lookup, "API_ADS_META_PIXEL_ID", ""),
			MetaAccessToken: stringWithDefault(lookup, "API_ADS_META_ACCESS_TOKEN", ""),
			GAMeasurementID: stringWithDefault(lookup, "API_ADS_GA_MEASUREMENT_ID", ""),
			GAAPISecret:     stringWithDefault(lookup, "API_ADS_GA_API_SECRET", ""),
		},
		Email: EmailConfig{
			APIKey:      stringWithDefault(lookup, "API_EMAIL_API_KEY", ""),
			FromAddress: stringWithDefault(lookup, "API_EMAIL_FROM_ADDRESS", ""),
		},
		Admin: AdminConfig{
			APIToken: stringWithDefault(lookup, "API_ADMIN_TOKEN", ""),
		},
		Checkout: CheckoutConfig{
			OrderPrefix:           stringWithDefault(lookup, "API_CHECKOUT_ORDER_PREFIX", defaultOrderPrefix),
			FreeShippingThreshold: int64WithDefault(lookup, "API_CHECKOUT_FREE_SHIPPING_THRESHOLD", defaultFreeShippingThreshold),
			StandardRate:          int64WithDefault(lookup, "API_CHECKOUT_STANDARD_RATE", defaultStandardRate),
			ExpressRate:           int64WithDefault(lookup, "API_CHECKOUT_EXPRESS_RATE", defaultExpressRate),
			InsuranceRate:         int64WithDefault(lookup, "API_CHECKOUT_INSURANCE_RATE", defaultInsuranceRate),
			Currency:              strings.ToLower(stringWithDefault(lookup, "API_CHECKOUT_CURRENCY", defaultCurrency)),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Checkout.OrderPrefix == "" {
		missing = append(missing, "Checkout.OrderPrefix")
	}
	if cfg.Checkout.StandardRate < 0 || cfg.Checkout.ExpressRate < 0 || cfg.Checkout.InsuranceRate < 0 {
		missing = append(missing, "Checkout rates")
	}
	if cfg.Checkout.FreeShippingThreshold < 0 {
		missing = append(missing, "Checkout.FreeShippingThreshold")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		value = strings.Trim(value, "\"'")
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func int64WithDefault(lookup func(string) (string, bool), key string, fallback int64) int64 {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
