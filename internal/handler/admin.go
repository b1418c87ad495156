package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/openwrench/openwrench/internal/config"
	"github.com/openwrench/openwrench/internal/store"
	"github.com/openwrench/openwrench/internal/utils"
)

// AdminHandler implements the single-operator admin login. There is no
// admin user record; the credential is one configured password and the
// session's principal id stays empty.
type AdminHandler struct {
	Cfg config.Config
	St  store.Store
}

func NewAdminHandler(cfg config.Config, st store.Store) *AdminHandler {
	return &AdminHandler{Cfg: cfg, St: st}
}

type adminLoginReq struct {
	Password string `json:"password"`
}

// Login checks the configured admin password and issues an admin session
// cookie. An unset ADMIN_PASSWORD disables the endpoint entirely rather
// than matching the empty string.
func (h *AdminHandler) Login(c echo.Context) error {
	var req adminLoginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if h.Cfg.AdminPassword == "" {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "admin password not configured"})
	}
	if !utils.SecureCompare(req.Password, h.Cfg.AdminPassword) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid password"})
	}

	token, err := utils.NewToken()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create session"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if _, err := h.St.CreateSession(ctx, store.SessionAdmin, "", token, time.Now().UTC().Add(h.Cfg.AdminSessionTTL)); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create session"})
	}

	setSessionCookie(c, h.Cfg, CookieAdmin, token, h.Cfg.AdminSessionTTL)
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// Logout deletes the admin session and clears its cookie.
func (h *AdminHandler) Logout(c echo.Context) error {
	destroySession(c, h.Cfg, h.St, store.SessionAdmin, CookieAdmin)
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// Verify runs behind the admin session middleware; reaching it means the
// cookie resolved to a live session.
func (h *AdminHandler) Verify(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"authenticated": true})
}
