package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/apparel-storefront/internal/domain/pricing"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the storefront API configuration, loadable from environment
// variables (STOREFRONT_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (STOREFRONT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ImageBaseURL string `default:"" usage:"Base URL prepended to product image paths" flag:"image-base-url"`
	Pricing      PricingConfig
	Session      SessionConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// PricingConfig holds the base-currency amounts used by the calculator.
type PricingConfig struct {
	FallbackPrice     string `default:"25.00"  usage:"Unit price for lines without a usable product price" flag:"fallback-price"`
	ShippingThreshold string `default:"100.00" usage:"Subtotal above which shipping is free" flag:"shipping-threshold"`
	ShippingFee       string `default:"9.99"   usage:"Flat shipping fee at or below the threshold" flag:"shipping-fee"`
}

// Calculator parses the configured amounts.
func (c PricingConfig) Calculator() (pricing.Calculator, error) {
	fallback, err := parseAmount("fallback price", c.FallbackPrice)
	if err != nil {
		return pricing.Calculator{}, err
	}
	threshold, err := parseAmount("shipping threshold", c.ShippingThreshold)
	if err != nil {
		return pricing.Calculator{}, err
	}
	fee, err := parseAmount("shipping fee", c.ShippingFee)
	if err != nil {
		return pricing.Calculator{}, err
	}
	return pricing.Calculator{
		FallbackPrice: fallback,
		Shipping:      pricing.ShippingRule{Threshold: threshold, FlatFee: fee},
	}, nil
}

func parseAmount(name, v string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse %s", name)
	}
	if d.IsNegative() {
		return decimal.Zero, errors.Errorf("%s must not be negative", name)
	}
	return d, nil
}

// SessionConfig controls in-memory session lifetime.
type SessionConfig struct {
	TTL           time.Duration `default:"24h" usage:"Idle time after which a session's cart is dropped" flag:"session-ttl"`
	SweepInterval time.Duration `default:"5m"  usage:"Interval between idle session and expired kv sweeps" flag:"session-sweep-interval"`
	MaxSessions   int           `default:"100000" usage:"Live sessions kept in memory; the least recently seen is evicted beyond it" flag:"session-max"`
}

// RateLimitConfig controls the sliding window rate limiters. Max applies per
// session and ClientMax per client IP, so rotating session ids does not
// escape the limit.
type RateLimitConfig struct {
	Max       int           `default:"300"  usage:"Max requests per session per window"`
	ClientMax int           `default:"1200" usage:"Max requests per client IP per window"`
	Window    time.Duration `default:"1m"   usage:"Rate limit window duration"`
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

// LoadConfig loads configuration from environment variables and YAML files,
// then applies platform defaults.
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

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set STOREFRONT_DATABASE_URL or DATABASE_URL")
	}
	if _, err := c.Pricing.Calculator(); err != nil {
		return errors.Wrap(err, "pricing")
	}
	if c.Session.SweepInterval <= 0 {
		return errors.New("session sweep interval must be positive")
	}
	if c.RateLimit.Max <= 0 || c.RateLimit.ClientMax <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("rate limit max, client max and window must be positive")
	}
	if c.Session.MaxSessions < 0 {
		return errors.New("session max must not be negative")
	}
	return nil
}

// applyPlatformDefaults honours the DATABASE_URL and PORT variables set by
// hosting platforms such as Railway or Render.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
