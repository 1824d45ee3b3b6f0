package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Config holds the complete application configuration, loadable from
// environment variables (STOREFRONT_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (STOREFRONT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisURL     string `default:"" usage:"Redis URL for the cart cache; empty disables caching" flag:"redis-url"`
	ImageBaseURL string `default:"" usage:"Base URL for product images (e.g. https://cdn.example.com/images)" flag:"image-base-url"`

	Payment   PaymentConfig
	Pricing   PricingConfig
	Cart      CartConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Graceful  GracefulConfig
}

// PaymentConfig controls the external payment provider integration.
type PaymentConfig struct {
	BaseURL       string        `usage:"Payment provider API base URL" flag:"payment-base-url"`
	APIKey        string        `usage:"Payment provider secret API key" flag:"payment-api-key"`
	Timeout       time.Duration `default:"10s" usage:"Payment provider request timeout" flag:"payment-timeout"`
	WebhookSecret string        `usage:"HMAC secret for verifying provider webhooks" flag:"webhook-secret"`
}

// PricingConfig controls totals computation.
type PricingConfig struct {
	TaxRate  string `default:"0.085" usage:"Tax rate applied to the item subtotal" flag:"tax-rate"`
	Currency string `default:"usd" usage:"ISO currency code for payment intents"`
}

// CartConfig controls anonymous cart retention.
type CartConfig struct {
	Retention     time.Duration `default:"720h" usage:"How long idle anonymous carts are kept" flag:"cart-retention"`
	SweepInterval time.Duration `default:"1h" usage:"How often expired carts are swept" flag:"cart-sweep-interval"`
}

// RateLimitConfig controls the per-client rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"true" usage:"Allow credentials (session cookie)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// TaxRate parses the configured tax rate.
func (c *Config) TaxRate() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(c.Pricing.TaxRate)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "invalid tax rate %q", c.Pricing.TaxRate)
	}
	if rate.IsNegative() {
		return decimal.Zero, errors.Errorf("tax rate %q must not be negative", c.Pricing.TaxRate)
	}
	return rate, nil
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STOREFRONT",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set STOREFRONT_DATABASE_URL or DATABASE_URL")
	}
	if cfg.Payment.BaseURL == "" || cfg.Payment.APIKey == "" {
		return nil, errors.New("payment provider base URL and API key are required")
	}
	if cfg.Payment.WebhookSecret == "" {
		return nil, errors.New("webhook secret is required")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's STOREFRONT_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if c.RedisURL == "" {
		if v := os.Getenv("REDIS_URL"); v != "" {
			c.RedisURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
