package config // package config loads application configuration from environment variables

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable. External integrations (MySQL, Redis, Stripe) are
// optional: when their variables are absent the application falls back to
// the in-memory store, disables rate limiting, and fails payment endpoints
// closed with an explicit configuration error.
type Config struct {
	Env     string // application environment (e.g. "dev", "prod")
	Port    string // HTTP port to listen on
	BaseURL string // externally reachable base URL used in checkout redirects

	DBUser string // database username (empty DBHost selects the in-memory store)
	DBPass string // database password (optional)
	DBHost string // database host address
	DBPort string // database port number
	DBName string // database name

	AdminPassword       string // operator-configured admin secret (optional)
	StripeSecretKey     string // Stripe API key (optional)
	StripeWebhookSecret string // Stripe webhook signing secret (optional)

	BcryptCost int // bcrypt cost for password hashing

	AdminSessionTTL     time.Duration // admin bearer token lifetime
	ProviderSessionTTL  time.Duration // provider bearer token lifetime
	CustomerSessionTTL  time.Duration // customer bearer token lifetime
	VerificationCodeTTL time.Duration // email verification code lifetime

	DefaultDepositDollars int   // deposit charged when a job carries no amount
	LateFeeCents          int64 // reschedule/cancellation fee inside the 24h window
}

// Load reads configuration from the environment, consulting a .env file
// first when one exists. Database variables are read as a group so a
// partially configured backend is caught at startup instead of at the
// first query.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Env:     getenv("APP_ENV", "dev"),
		Port:    getenv("APP_PORT", "8080"),
		BaseURL: getenv("BASE_URL", "http://localhost:8080"),

		DBUser: os.Getenv("DB_USER"),
		DBPass: os.Getenv("DB_PASS"),
		DBHost: os.Getenv("DB_HOST"),
		DBPort: getenv("DB_PORT", "3306"),
		DBName: os.Getenv("DB_NAME"),

		AdminPassword:       os.Getenv("ADMIN_PASSWORD"),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),

		BcryptCost: envInt("BCRYPT_COST", 10),

		AdminSessionTTL:     envDur("ADMIN_SESSION_TTL", 24*time.Hour),
		ProviderSessionTTL:  envDur("PROVIDER_SESSION_TTL", 7*24*time.Hour),
		CustomerSessionTTL:  envDur("CUSTOMER_SESSION_TTL", 7*24*time.Hour),
		VerificationCodeTTL: envDur("VERIFICATION_CODE_TTL", 15*time.Minute),

		DefaultDepositDollars: envInt("DEFAULT_DEPOSIT_DOLLARS", 100),
		LateFeeCents:          int64(envInt("LATE_FEE_CENTS", 5000)),
	}

	if cfg.DBHost != "" && (cfg.DBUser == "" || cfg.DBName == "") {
		log.Fatal("DB_HOST is set but DB_USER or DB_NAME is missing")
	}
	return cfg
}

// UseSQLStore reports whether a relational backend is configured.
func (c Config) UseSQLStore() bool { return c.DBHost != "" }

// SecureCookies reports whether session cookies should carry the Secure flag.
func (c Config) SecureCookies() bool { return c.Env == "prod" || c.Env == "production" }

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) int {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

func envDur(key string, def time.Duration) time.Duration {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		log.Fatalf("invalid duration for %s: %q", key, s)
	}
	return d
}
