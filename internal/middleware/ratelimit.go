package middleware

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/openwrench/openwrench/internal/config"
)

// RateLimit returns middleware enforcing a fixed-window counter per
// client IP and route path. With a nil Redis client or a disabled config
// it degrades to a passthrough, and a Redis error at request time fails
// open: login must stay available when the cache is down.
func RateLimit(rdb *redis.Client, cfg config.RateLimitConfig) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := cfg.Prefix + ":" + c.RealIP() + ":" + c.Path()
			ctx := c.Request().Context()

			count, err := rdb.Incr(ctx, key).Result()
			if err != nil {
				log.Printf("ratelimit: incr %s: %v", key, err)
				return next(c)
			}
			if count == 1 {
				// First hit opens the window.
				if err := rdb.Expire(ctx, key, cfg.Window).Err(); err != nil {
					log.Printf("ratelimit: expire %s: %v", key, err)
				}
			}
			if count > int64(cfg.Limit) {
				retryAfter := windowRemaining(ctx, rdb, key, cfg.Window)
				c.Response().Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
				return c.JSON(http.StatusTooManyRequests, echo.Map{"error": "too many requests"})
			}
			return next(c)
		}
	}
}

func windowRemaining(ctx context.Context, rdb *redis.Client, key string, window time.Duration) time.Duration {
	ttl, err := rdb.TTL(ctx, key).Result()
	if err != nil || ttl <= 0 {
		return window
	}
	return ttl
}

func contextWithTimeout(c echo.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), d)
}
