package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	AuthJWTSecret string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Stripe StripeConfig

	AIProvider AIProviderConfig

	RateLimit RateLimitConfig
}

// StripeConfig carries billing-provider credentials and the static price ids
// the catalog is built from.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string

	PriceProMonthly     string
	PriceProYearly      string
	PricePremiumMonthly string
	PricePremiumYearly  string
	PricePackSmall      string
	PricePackMedium     string
	PricePackLarge      string

	CheckoutSuccessURL string
	CheckoutCancelURL  string
	PortalReturnURL    string
}

type AIProviderConfig struct {
	BaseURL   string
	AuthToken string
	TimeoutMS int
}

type RateLimitConfig struct {
	Enabled bool
	Rate    float64
	Burst   int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:       getenv("APP_SERVICE", "pathlight"),
		AppVersion:    getenv("APP_VERSION", "0.1.0"),
		Environment:   getenv("ENVIRONMENT", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		AuthJWTSecret: strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		OTLPEndpoint:  getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "pathlight"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		Stripe: StripeConfig{
			SecretKey:     strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			WebhookSecret: strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),

			PriceProMonthly:     strings.TrimSpace(getenv("STRIPE_PRICE_PRO_MONTHLY", "")),
			PriceProYearly:      strings.TrimSpace(getenv("STRIPE_PRICE_PRO_YEARLY", "")),
			PricePremiumMonthly: strings.TrimSpace(getenv("STRIPE_PRICE_PREMIUM_MONTHLY", "")),
			PricePremiumYearly:  strings.TrimSpace(getenv("STRIPE_PRICE_PREMIUM_YEARLY", "")),
			PricePackSmall:      strings.TrimSpace(getenv("STRIPE_PRICE_PACK_SMALL", "")),
			PricePackMedium:     strings.TrimSpace(getenv("STRIPE_PRICE_PACK_MEDIUM", "")),
			PricePackLarge:      strings.TrimSpace(getenv("STRIPE_PRICE_PACK_LARGE", "")),

			CheckoutSuccessURL: getenv("CHECKOUT_SUCCESS_URL", "http://localhost:3000/billing/success"),
			CheckoutCancelURL:  getenv("CHECKOUT_CANCEL_URL", "http://localhost:3000/pricing"),
			PortalReturnURL:    getenv("PORTAL_RETURN_URL", "http://localhost:3000/account"),
		},

		AIProvider: AIProviderConfig{
			BaseURL:   strings.TrimSpace(getenv("AI_PROVIDER_URL", "")),
			AuthToken: strings.TrimSpace(getenv("AI_PROVIDER_TOKEN", "")),
			TimeoutMS: getenvInt("AI_PROVIDER_TIMEOUT_MS", 120000),
		},

		RateLimit: RateLimitConfig{
			Enabled: getenvBool("RATE_LIMIT_ENABLED", false),
			Rate:    getenvFloat("RATE_LIMIT_RATE", 1),
			Burst:   getenvInt("RATE_LIMIT_BURST", 5),
		},
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
