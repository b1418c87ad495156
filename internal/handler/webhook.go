package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/openwrench/openwrench/internal/service"
)

// WebhookHandler receives Stripe event callbacks.
type WebhookHandler struct {
	Payments service.Payments
}

func NewWebhookHandler(p service.Payments) *WebhookHandler {
	return &WebhookHandler{Payments: p}
}

// Stripe verifies the event signature over the raw body and applies the
// event. An unverifiable payload is rejected before anything is read from
// it; Stripe retries on 5xx, so store failures return 500.
func (h *WebhookHandler) Stripe(c echo.Context) error {
	sig := c.Request().Header.Get("Stripe-Signature")
	if sig == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing Stripe-Signature header"})
	}
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "could not read body"})
	}

	if err := h.Payments.HandleWebhook(c.Request().Context(), payload, sig); err != nil {
		if errors.Is(err, service.ErrInvalidSignature) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid signature"})
		}
		c.Logger().Errorf("stripe webhook: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not process event"})
	}
	return c.JSON(http.StatusOK, echo.Map{"received": true})
}
