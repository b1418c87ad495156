// Package handler contains the HTTP endpoints. Handlers bind and validate
// input, call the store and services, and translate sentinel errors into
// HTTP statuses. No business rule lives here.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/openwrench/openwrench/internal/config"
	"github.com/openwrench/openwrench/internal/model"
	"github.com/openwrench/openwrench/internal/store"
)

const dbTimeout = 5 * time.Second

// Cookie names, one per session namespace.
const (
	CookieAdmin    = "adminToken"
	CookieProvider = "providerToken"
	CookieCustomer = "customerToken"
)

// reqCtx derives a bounded context for store calls from the request.
func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), dbTimeout)
}

func setSessionCookie(c echo.Context, cfg config.Config, name, token string, ttl time.Duration) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   cfg.SecureCookies(),
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(c echo.Context, cfg config.Config, name string) {
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

// destroySession deletes the store-side session for the request's cookie,
// if any, then clears the cookie. Logout never fails.
func destroySession(c echo.Context, cfg config.Config, st store.Store, kind, cookieName string) {
	if cookie, err := c.Cookie(cookieName); err == nil && cookie.Value != "" {
		ctx, cancel := reqCtx(c)
		defer cancel()
		if sess, err := st.GetSessionByToken(ctx, kind, cookie.Value); err == nil {
			_ = st.DeleteSession(ctx, sess.ID)
		}
	}
	clearSessionCookie(c, cfg, cookieName)
}

// sessionFromContext returns the session injected by the auth middleware.
func sessionFromContext(c echo.Context) (model.Session, bool) {
	sess, ok := c.Get("session").(model.Session)
	return sess, ok
}
