package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/openwrench/openwrench/internal/config"
	"github.com/openwrench/openwrench/internal/model"
	"github.com/openwrench/openwrench/internal/service"
	"github.com/openwrench/openwrench/internal/store"
)

// PaymentHandler creates checkout sessions (deposit, final balance) and
// serves the shareable payment links.
type PaymentHandler struct {
	Cfg      config.Config
	St       store.Store
	Payments service.Payments
}

func NewPaymentHandler(cfg config.Config, st store.Store, p service.Payments) *PaymentHandler {
	return &PaymentHandler{Cfg: cfg, St: st, Payments: p}
}

// CreateDeposit creates a deposit checkout session for a job, moves the job
// to deposit_due, and persists the link token so the session survives a
// restart. Admin only.
func (h *PaymentHandler) CreateDeposit(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	job, err := h.St.GetJob(ctx, c.Param("jobId"))
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "job not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not look up job"})
	}

	if err := service.CheckTransition(job, model.StatusDepositDue, service.TransitionGuards{}); err != nil {
		var te *service.TransitionError
		if errors.As(err, &te) {
			return c.JSON(http.StatusConflict, echo.Map{"error": te.Error()})
		}
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	}

	res, err := h.Payments.CreateDepositCheckout(ctx, job)
	if errors.Is(err, service.ErrPaymentsNotConfigured) {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create checkout session"})
	}

	if _, err := h.St.UpdateJobVersioned(ctx, job.ID, job.Version, store.JobUpdate{
		Status:                   store.Status(model.StatusDepositDue),
		DepositCheckoutSessionID: store.String(res.SessionID),
		PaymentLinkToken:         store.String(res.LinkToken),
		PaymentLinkSessionID:     store.String(res.SessionID),
	}); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "job was modified concurrently, retry"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not update job"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"sessionId":        res.SessionID,
		"depositLinkToken": res.LinkToken,
		"checkoutUrl":      res.CheckoutURL,
	})
}

type checkoutSessionReq struct {
	JobID string `json:"jobId"`
}

// CreateCheckoutSession creates the final-balance session for a quoted job
// and persists a fresh payment link token. Admin only.
func (h *PaymentHandler) CreateCheckoutSession(c echo.Context) error {
	var req checkoutSessionReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.JobID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "jobId is required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	job, err := h.St.GetJob(ctx, req.JobID)
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "job not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not look up job"})
	}
	if job.EstimatedPrice == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "job has no estimated price"})
	}

	res, err := h.Payments.CreateFinalCheckout(ctx, job)
	if errors.Is(err, service.ErrPaymentsNotConfigured) {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create checkout session"})
	}

	if _, err := h.St.UpdateJob(ctx, job.ID, store.JobUpdate{
		CheckoutSessionID:    store.String(res.SessionID),
		PaymentLinkToken:     store.String(res.LinkToken),
		PaymentLinkSessionID: store.String(res.SessionID),
	}); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not update job"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"sessionId":        res.SessionID,
		"paymentLinkToken": res.LinkToken,
	})
}

// Pay resolves a shareable payment link token and redirects the browser to
// the hosted checkout page.
func (h *PaymentHandler) Pay(c echo.Context) error {
	token := c.Param("token")
	ctx, cancel := reqCtx(c)
	defer cancel()

	job, err := h.St.GetJobByPaymentLinkToken(ctx, token)
	if errors.Is(err, store.ErrNotFound) || (err == nil && job.PaymentLinkSessionID == "") {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Payment link not found or expired"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not look up payment link"})
	}

	url, err := h.Payments.CheckoutURL(ctx, job.PaymentLinkSessionID)
	if errors.Is(err, service.ErrPaymentsNotConfigured) {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	if err != nil || url == "" {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Payment link not found or expired"})
	}
	return c.Redirect(http.StatusSeeOther, url)
}
