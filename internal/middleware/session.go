// Package middleware contains reusable HTTP middleware: cookie-session
// authentication and Redis-backed rate limiting.
package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/openwrench/openwrench/internal/config"
	"github.com/openwrench/openwrench/internal/store"
)

const sessionLookupTimeout = 5 * time.Second

// SessionAuth returns middleware that resolves the named session cookie
// against the store for the given session kind. On success the session and
// its principal id are injected into the request context under "session"
// and "user_id". Expired sessions are deleted on sight and the cookie is
// cleared so the browser stops replaying it.
func SessionAuth(st store.Store, cfg config.Config, kind, cookieName string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cookie, err := c.Cookie(cookieName)
			if err != nil || cookie.Value == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
			}

			ctx, cancel := contextWithTimeout(c, sessionLookupTimeout)
			defer cancel()

			sess, err := st.GetSessionByToken(ctx, kind, cookie.Value)
			if err != nil {
				clearCookie(c, cfg, cookieName)
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid session"})
			}
			if sess.Expired(time.Now().UTC()) {
				_ = st.DeleteSession(ctx, sess.ID)
				clearCookie(c, cfg, cookieName)
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "session expired"})
			}

			c.Set("session", sess)
			c.Set("user_id", sess.PrincipalID)
			return next(c)
		}
	}
}

func clearCookie(c echo.Context, cfg config.Config, name string) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.SecureCookies(),
		SameSite: http.SameSiteLaxMode,
	})
}
