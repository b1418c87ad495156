package config

import "time"

// RateLimitConfig controls the fixed-window limiter applied to credential
// endpoints (logins and the email verification flow).
type RateLimitConfig struct {
	Enabled bool
	Limit   int           // requests allowed per window per key
	Window  time.Duration // window length
	Prefix  string        // redis key prefix
}

// LoadRateLimitConfig reads limiter settings with conservative defaults:
// 10 attempts per minute per client/route.
func LoadRateLimitConfig() RateLimitConfig {
	cfg := RateLimitConfig{
		Enabled: getenv("RATE_LIMIT_ENABLED", "true") == "true",
		Limit:   envInt("RATE_LIMIT_LIMIT", 10),
		Window:  envDur("RATE_LIMIT_WINDOW", time.Minute),
		Prefix:  getenv("RATE_LIMIT_PREFIX", "rl"),
	}
	if cfg.Limit < 1 {
		cfg.Limit = 1
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return cfg
}
