package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/bytepay-it/bytepay-payment-gateway/internal/domain"
)

// Config holds all runtime configuration derived from environment variables.
type Config struct {
	HTTPPort    string
	DatabaseURL string
	RedisURL    string
	LogLevel    string

	// Processor connectivity.
	ProcessorURL   string
	RequestTimeout time.Duration // payment initiation and daily-limit checks
	StatusTimeout  time.Duration // popup-close status refresh

	// Gateway credentials. The sandbox pair is used when Sandbox is true.
	Sandbox          bool
	PublicKey        string
	SecretKey        string
	SandboxPublicKey string
	SandboxSecretKey string

	// WebhookSecret authenticates server-to-server status reports. When
	// unset, the active public key is used for compatibility with existing
	// processor integrations.
	WebhookSecret string

	// SuccessStatus is the order status applied after a successful payment.
	SuccessStatus  string
	RequireConsent bool

	// ShopURL is the storefront base; receipt pages live under it.
	// CallbackURL is this service's public base for processor callbacks.
	ShopURL     string
	CallbackURL string

	// Sliding-window policy for payment initiation.
	RateLimitMax    int
	RateLimitWindow time.Duration

	// HTTP-level per-IP throttle on the public endpoints.
	PublicRateLimitRPS int

	NonceTTL time.Duration
}

// Load reads environment variables using viper and returns a typed config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	bindEnv(v, "port", "PORT", "BYTEPAY_PORT")
	bindEnv(v, "database_url", "DATABASE_URL", "BYTEPAY_DATABASE_URL")
	bindEnv(v, "redis_url", "REDIS_URL", "BYTEPAY_REDIS_URL")
	bindEnv(v, "log_level", "LOG_LEVEL", "BYTEPAY_LOG_LEVEL")
	bindEnv(v, "processor_url", "BYTEPAY_PROCESSOR_URL")
	bindEnv(v, "request_timeout", "BYTEPAY_REQUEST_TIMEOUT")
	bindEnv(v, "status_timeout", "BYTEPAY_STATUS_TIMEOUT")
	bindEnv(v, "sandbox", "BYTEPAY_SANDBOX")
	bindEnv(v, "public_key", "BYTEPAY_PUBLIC_KEY")
	bindEnv(v, "secret_key", "BYTEPAY_SECRET_KEY")
	bindEnv(v, "sandbox_public_key", "BYTEPAY_SANDBOX_PUBLIC_KEY")
	bindEnv(v, "sandbox_secret_key", "BYTEPAY_SANDBOX_SECRET_KEY")
	bindEnv(v, "webhook_secret", "BYTEPAY_WEBHOOK_SECRET")
	bindEnv(v, "success_status", "BYTEPAY_SUCCESS_STATUS")
	bindEnv(v, "require_consent", "BYTEPAY_REQUIRE_CONSENT")
	bindEnv(v, "shop_url", "BYTEPAY_SHOP_URL")
	bindEnv(v, "callback_url", "BYTEPAY_CALLBACK_URL")
	bindEnv(v, "rate_limit_max", "BYTEPAY_RATE_LIMIT_MAX")
	bindEnv(v, "rate_limit_window", "BYTEPAY_RATE_LIMIT_WINDOW")
	bindEnv(v, "public_rate_limit_rps", "BYTEPAY_PUBLIC_RATE_LIMIT_RPS")
	bindEnv(v, "nonce_ttl", "BYTEPAY_NONCE_TTL")

	v.SetDefault("port", "8080")
	v.SetDefault("database_url", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("processor_url", "https://www.bytepay.it")
	v.SetDefault("request_timeout", "30s")
	v.SetDefault("status_timeout", "15s")
	v.SetDefault("sandbox", false)
	v.SetDefault("webhook_secret", "")
	v.SetDefault("success_status", domain.StatusProcessing)
	v.SetDefault("require_consent", true)
	v.SetDefault("shop_url", "http://localhost:8080")
	v.SetDefault("callback_url", "http://localhost:8080/bytepay/v1/data")
	v.SetDefault("rate_limit_max", 5)
	v.SetDefault("rate_limit_window", "100s")
	v.SetDefault("public_rate_limit_rps", 10)
	v.SetDefault("nonce_ttl", "12h")

	requestTimeout, err := time.ParseDuration(v.GetString("request_timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid BYTEPAY_REQUEST_TIMEOUT: %w", err)
	}
	statusTimeout, err := time.ParseDuration(v.GetString("status_timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid BYTEPAY_STATUS_TIMEOUT: %w", err)
	}
	rateLimitWindow, err := time.ParseDuration(v.GetString("rate_limit_window"))
	if err != nil {
		return nil, fmt.Errorf("invalid BYTEPAY_RATE_LIMIT_WINDOW: %w", err)
	}
	nonceTTL, err := time.ParseDuration(v.GetString("nonce_ttl"))
	if err != nil {
		return nil, fmt.Errorf("invalid BYTEPAY_NONCE_TTL: %w", err)
	}

	cfg := &Config{
		HTTPPort:           v.GetString("port"),
		DatabaseURL:        v.GetString("database_url"),
		RedisURL:           v.GetString("redis_url"),
		LogLevel:           v.GetString("log_level"),
		ProcessorURL:       strings.TrimRight(v.GetString("processor_url"), "/"),
		RequestTimeout:     requestTimeout,
		StatusTimeout:      statusTimeout,
		Sandbox:            v.GetBool("sandbox"),
		PublicKey:          v.GetString("public_key"),
		SecretKey:          v.GetString("secret_key"),
		SandboxPublicKey:   v.GetString("sandbox_public_key"),
		SandboxSecretKey:   v.GetString("sandbox_secret_key"),
		WebhookSecret:      v.GetString("webhook_secret"),
		SuccessStatus:      domain.NormalizeStatus(v.GetString("success_status")),
		RequireConsent:     v.GetBool("require_consent"),
		ShopURL:            strings.TrimRight(v.GetString("shop_url"), "/"),
		CallbackURL:        strings.TrimRight(v.GetString("callback_url"), "/"),
		RateLimitMax:       max(v.GetInt("rate_limit_max"), 1),
		RateLimitWindow:    rateLimitWindow,
		PublicRateLimitRPS: max(v.GetInt("public_rate_limit_rps"), 1),
		NonceTTL:           nonceTTL,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.ActivePublicKey()) == "" {
		if c.Sandbox {
			return fmt.Errorf("BYTEPAY_SANDBOX_PUBLIC_KEY is required in sandbox mode")
		}
		return fmt.Errorf("BYTEPAY_PUBLIC_KEY is required")
	}
	if strings.TrimSpace(c.ActiveSecretKey()) == "" {
		if c.Sandbox {
			return fmt.Errorf("BYTEPAY_SANDBOX_SECRET_KEY is required in sandbox mode")
		}
		return fmt.Errorf("BYTEPAY_SECRET_KEY is required")
	}
	if !domain.IsSuccessStatus(c.SuccessStatus) {
		return fmt.Errorf("BYTEPAY_SUCCESS_STATUS %q is not an allowed post-payment status", c.SuccessStatus)
	}
	if c.ProcessorURL == "" {
		return fmt.Errorf("BYTEPAY_PROCESSOR_URL is required")
	}
	return nil
}

// ActivePublicKey returns the public key for the configured mode.
func (c *Config) ActivePublicKey() string {
	if c.Sandbox {
		return c.SandboxPublicKey
	}
	return c.PublicKey
}

// ActiveSecretKey returns the secret key for the configured mode.
func (c *Config) ActiveSecretKey() string {
	if c.Sandbox {
		return c.SandboxSecretKey
	}
	return c.SecretKey
}

// ActiveWebhookSecret returns the shared secret expected on webhook calls,
// falling back to the active public key when no distinct secret is set.
func (c *Config) ActiveWebhookSecret() string {
	if strings.TrimSpace(c.WebhookSecret) != "" {
		return c.WebhookSecret
	}
	return c.ActivePublicKey()
}

func bindEnv(v *viper.Viper, key string, names ...string) {
	args := append([]string{key}, names...)
	_ = v.BindEnv(args...)
}
