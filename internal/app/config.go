package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/chowcart/commerce-api/internal/domain/order"
)

// Config holds the complete application configuration, loadable from
// environment variables (CHOW_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (CHOW_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	AuthSecret  string `usage:"HMAC secret for session tokens (CHOW_AUTH_SECRET)" flag:"auth-secret"`
	Payment     PaymentConfig
	Pricing     PricingConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// PaymentConfig configures the Paystack integration.
type PaymentConfig struct {
	// SecretKey authenticates API calls and keys webhook signatures.
	SecretKey string `usage:"Paystack secret key (CHOW_PAYMENT_SECRET_KEY)" flag:"paystack-secret"`
	// VerifyTimeout bounds the provider verification call.
	VerifyTimeout time.Duration `default:"10s" usage:"Timeout for provider verification calls" flag:"verify-timeout"`
	// AmountToleranceMinor is the accepted difference, in minor currency
	// units, between the charged amount and the order total before a
	// mismatch is logged.
	AmountToleranceMinor int64 `default:"1" usage:"Accepted charge/total difference in minor units" flag:"amount-tolerance"`
}

// PricingConfig holds the order pricing knobs as strings so they can come
// from the environment; parse converts them to exact decimals.
type PricingConfig struct {
	FreeShippingThreshold string `default:"23000" usage:"Subtotal above which shipping is free"`
	ShippingFee           string `default:"2500" usage:"Flat shipping fee below the threshold"`
	TaxRate               string `default:"0.075" usage:"Tax rate applied to the discounted subtotal"`
	Currency              string `default:"NGN" usage:"ISO currency code for orders and payments"`
}

func (c PricingConfig) parse() (order.Pricing, error) {
	threshold, err := decimal.NewFromString(c.FreeShippingThreshold)
	if err != nil {
		return order.Pricing{}, errors.Wrap(err, "free shipping threshold")
	}
	fee, err := decimal.NewFromString(c.ShippingFee)
	if err != nil {
		return order.Pricing{}, errors.Wrap(err, "shipping fee")
	}
	rate, err := decimal.NewFromString(c.TaxRate)
	if err != nil {
		return order.Pricing{}, errors.Wrap(err, "tax rate")
	}
	return order.Pricing{
		FreeShippingThreshold: threshold,
		ShippingFee:           fee,
		TaxRate:               rate,
		Currency:              c.Currency,
	}, nil
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "CHOW",
		Files:     []string{"config.yaml", "/etc/chowcart/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set CHOW_DATABASE_URL or DATABASE_URL")
	}
	if cfg.AuthSecret == "" {
		return nil, errors.New("auth secret is required: set CHOW_AUTH_SECRET")
	}
	if cfg.Payment.SecretKey == "" {
		return nil, errors.New("payment secret key is required: set CHOW_PAYMENT_SECRET_KEY")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's CHOW_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
