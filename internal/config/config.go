// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, the database, identity tokens, the payment
// gateway, rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "noticeboard-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects and locates the relational store.
type DBConfig struct {
	Driver string // DB_DRIVER: sqlite|postgres
	Path   string // DB_PATH (sqlite)
	URL    string // DATABASE_URL (postgres DSN)
}

// AuthConfig defines how bearer tokens from the identity provider are verified.
type AuthConfig struct {
	JWTSecret string // JWT_SECRET (HS256)
	Issuer    string // JWT_ISSUER, optional; enforced when set
}

// PaymentsConfig defines payment gateway (Stripe) settings.
type PaymentsConfig struct {
	SecretKey        string            // STRIPE_SECRET_KEY
	WebhookSecret    string            // STRIPE_WEBHOOK_SECRET
	WebhookTolerance time.Duration     // STRIPE_WEBHOOK_TOLERANCE
	SuccessURL       string            // CHECKOUT_SUCCESS_URL
	CancelURL        string            // CHECKOUT_CANCEL_URL
	Currency         string            // CURRENCY (ISO 4217, lower case)
	PriceRefs        map[string]string // STRIPE_PRICE_<ITEM> overrides, keyed by item name
}

// priceRefEnv maps price table items to their override variables.
var priceRefEnv = map[string]string{
	"view":              "STRIPE_PRICE_VIEW",
	"message":           "STRIPE_PRICE_MESSAGE",
	"interview_request": "STRIPE_PRICE_INTERVIEW_REQUEST",
	"offer":             "STRIPE_PRICE_OFFER",
	"basic":             "STRIPE_PRICE_BASIC",
	"premium":           "STRIPE_PRICE_PREMIUM",
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Store
	DB DBConfig

	// Identity
	Auth AuthConfig

	// Payments
	Payments PaymentsConfig

	// Entitlements
	SubscriptionPeriod time.Duration // lifetime of subscription credit grants
	ContactExpiry      time.Duration // pending contacts older than this are expired by the sweep

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Store
		DB: DBConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:   getenv("DB_PATH", "noticeboard.db"),
			URL:    getenv("DATABASE_URL", ""),
		},

		// Identity
		Auth: AuthConfig{
			JWTSecret: getenv("JWT_SECRET", ""),
			Issuer:    getenv("JWT_ISSUER", ""),
		},

		// Payments
		Payments: PaymentsConfig{
			SecretKey:        getenv("STRIPE_SECRET_KEY", ""),
			WebhookSecret:    getenv("STRIPE_WEBHOOK_SECRET", ""),
			WebhookTolerance: getdur("STRIPE_WEBHOOK_TOLERANCE", 5*time.Minute),
			SuccessURL:       getenv("CHECKOUT_SUCCESS_URL", "http://localhost:3000/checkout/success"),
			CancelURL:        getenv("CHECKOUT_CANCEL_URL", "http://localhost:3000/checkout/cancel"),
			Currency:         strings.ToLower(getenv("CURRENCY", "gbp")),
			PriceRefs:        priceRefs(),
		},

		// Entitlements
		SubscriptionPeriod: getdur("SUBSCRIPTION_PERIOD", 30*24*time.Hour),
		ContactExpiry:      getdur("CONTACT_EXPIRY", 14*24*time.Hour),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "noticeboard-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DB.URL) == "" {
			return cfg, errors.New("DATABASE_URL must be set when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return cfg, errors.New("JWT_SECRET must not be empty")
	}
	if cfg.Payments.WebhookTolerance <= 0 {
		return cfg, errors.New("STRIPE_WEBHOOK_TOLERANCE must be > 0")
	}
	if len(cfg.Payments.Currency) != 3 {
		return cfg, errors.New("CURRENCY must be a 3-letter ISO code")
	}
	if cfg.SubscriptionPeriod <= 0 || cfg.ContactExpiry <= 0 {
		return cfg, errors.New("SUBSCRIPTION_PERIOD and CONTACT_EXPIRY must be > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func priceRefs() map[string]string {
	out := make(map[string]string, len(priceRefEnv))
	for item, key := range priceRefEnv {
		if v := strings.TrimSpace(getenv(key, "")); v != "" {
			out[item] = v
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
