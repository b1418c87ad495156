package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/openwrench/openwrench/internal/config"
	"github.com/openwrench/openwrench/internal/model"
	"github.com/openwrench/openwrench/internal/store"
	"github.com/openwrench/openwrench/internal/utils"
)

// ProviderHandler serves provider registration, login, logout and session
// introspection.
type ProviderHandler struct {
	Cfg config.Config
	St  store.Store
}

func NewProviderHandler(cfg config.Config, st store.Store) *ProviderHandler {
	return &ProviderHandler{Cfg: cfg, St: st}
}

type providerRegisterReq struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	PhoneNumber string `json:"phoneNumber"`
}

type credentialsReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register creates a provider account with a generated employee id and logs
// the new provider straight in.
func (h *ProviderHandler) Register(c echo.Context) error {
	var req providerRegisterReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "username and password are required"})
	}

	hash, err := utils.HashPassword(req.Password, h.Cfg.BcryptCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not hash password"})
	}
	employeeID, err := utils.NewEmployeeID()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not generate employee id"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	user, err := h.St.CreateUser(ctx, model.User{
		Username:    req.Username,
		Password:    hash,
		Role:        model.RoleProvider,
		EmployeeID:  employeeID,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		PhoneNumber: req.PhoneNumber,
	})
	if errors.Is(err, store.ErrUsernameExists) {
		return c.JSON(http.StatusConflict, echo.Map{"error": "username already exists"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create user"})
	}

	if err := h.issueSession(c, user.ID); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create session"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"user": user})
}

// Login authenticates a provider by username and password. Legacy plaintext
// credentials are upgraded to bcrypt on the first successful login.
func (h *ProviderHandler) Login(c echo.Context) error {
	var req credentialsReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Username == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "username and password are required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	user, err := h.St.GetUserByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	ok, newHash, err := utils.CheckAndUpgrade(user.Password, req.Password, h.Cfg.BcryptCost)
	if err != nil || !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	if newHash != "" {
		if err := h.St.UpdateUserPassword(ctx, user.ID, newHash); err != nil {
			c.Logger().Errorf("password upgrade for %s failed: %v", user.ID, err)
		}
	}
	if user.Role != model.RoleProvider {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not a provider account"})
	}

	if err := h.issueSession(c, user.ID); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create session"})
	}
	return c.JSON(http.StatusOK, echo.Map{"user": user})
}

func (h *ProviderHandler) issueSession(c echo.Context, userID string) error {
	token, err := utils.NewToken()
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if _, err := h.St.CreateSession(ctx, store.SessionProvider, userID, token, time.Now().UTC().Add(h.Cfg.ProviderSessionTTL)); err != nil {
		return err
	}
	setSessionCookie(c, h.Cfg, CookieProvider, token, h.Cfg.ProviderSessionTTL)
	return nil
}

func (h *ProviderHandler) Logout(c echo.Context) error {
	destroySession(c, h.Cfg, h.St, store.SessionProvider, CookieProvider)
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// Verify runs behind the provider session middleware and returns the
// authenticated provider's account.
func (h *ProviderHandler) Verify(c echo.Context) error {
	sess, ok := sessionFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	user, err := h.St.GetUser(ctx, sess.PrincipalID)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid session"})
	}
	return c.JSON(http.StatusOK, echo.Map{"authenticated": true, "user": user})
}
