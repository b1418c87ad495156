package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/openwrench/openwrench/internal/config"
	"github.com/openwrench/openwrench/internal/model"
	"github.com/openwrench/openwrench/internal/service"
	"github.com/openwrench/openwrench/internal/store"
	"github.com/openwrench/openwrench/internal/utils"
)

// CustomerAccessHandler serves the email-based self-service flow: a
// customer proves control of the email on their jobs with a short-lived
// code, receives an access token, and can then view, reschedule or cancel
// those jobs without an account.
type CustomerAccessHandler struct {
	Cfg      config.Config
	St       store.Store
	Payments service.Payments
}

func NewCustomerAccessHandler(cfg config.Config, st store.Store, p service.Payments) *CustomerAccessHandler {
	return &CustomerAccessHandler{Cfg: cfg, St: st, Payments: p}
}

type requestAccessReq struct {
	Email string `json:"email"`
}

// RequestAccess issues a 6-digit verification code for an email that has at
// least one job. Without an email delivery channel the code is returned in
// the response body.
func (h *CustomerAccessHandler) RequestAccess(c echo.Context) error {
	var req requestAccessReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email is required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	jobs, err := h.St.ListJobsByCustomerEmail(ctx, email)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not look up jobs"})
	}
	if len(jobs) == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "no jobs found for this email"})
	}

	code, err := utils.NewVerificationCode()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not generate code"})
	}
	if _, err := h.St.CreateVerificationCode(ctx, email, code, time.Now().UTC().Add(h.Cfg.VerificationCodeTTL)); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not store code"})
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "code": code})
}

type verifyAccessReq struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// VerifyAccess consumes the most recent code for the email and, on match,
// mints an access token attached to every job carrying that email.
func (h *CustomerAccessHandler) VerifyAccess(c echo.Context) error {
	var req verifyAccessReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and code are required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	vc, err := h.St.GetLatestVerificationCode(ctx, email)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired code"})
	}
	now := time.Now().UTC()
	if now.After(vc.ExpiresAt) || !utils.SecureCompare(vc.Code, req.Code) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired code"})
	}

	token, err := utils.NewToken()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not generate token"})
	}
	jobs, err := h.St.ListJobsByCustomerEmail(ctx, email)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not look up jobs"})
	}
	for _, job := range jobs {
		if _, err := h.St.UpdateJob(ctx, job.ID, store.JobUpdate{CustomerAccessToken: store.String(token)}); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not attach token"})
		}
	}
	_ = h.St.DeleteVerificationCode(ctx, vc.ID)

	return c.JSON(http.StatusOK, echo.Map{"success": true, "accessToken": token})
}

// Jobs lists every job reachable through a customer access token: the job
// the token resolves to plus any sibling jobs sharing its email.
func (h *CustomerAccessHandler) Jobs(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token is required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	job, err := h.St.GetJobByCustomerAccessToken(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid access token"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not look up jobs"})
	}

	if job.CustomerEmail == "" {
		return c.JSON(http.StatusOK, []model.Job{job})
	}
	jobs, err := h.St.ListJobsByCustomerEmail(ctx, job.CustomerEmail)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not look up jobs"})
	}
	return c.JSON(http.StatusOK, jobs)
}

type rescheduleReq struct {
	AccessToken string `json:"accessToken"`
	JobID       string `json:"jobId"`
	NewDate     string `json:"newDate"` // "2006-01-02"
	NewTime     string `json:"newTime"` // "15:04"
}

// Reschedule moves a confirmed appointment. With 24 hours or more of notice
// the move is free and applied immediately; inside the window nothing is
// mutated and the response carries a checkout URL for the late fee — the
// webhook applies the move once the fee is paid.
func (h *CustomerAccessHandler) Reschedule(c echo.Context) error {
	var req rescheduleReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.NewDate == "" || req.NewTime == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "newDate and newTime are required"})
	}
	newAppt, err := service.ParseAppointment(req.NewDate, req.NewTime)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid date or time"})
	}

	job, ok := h.authorizeJob(c, req.AccessToken, req.JobID)
	if !ok {
		return nil
	}

	now := time.Now().UTC()
	free, err := service.WithinFreeWindow(job, now)
	if errors.Is(err, service.ErrNoAppointment) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "job has no scheduled appointment"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not evaluate appointment"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if free {
		if _, err := h.St.UpdateJob(ctx, job.ID, service.Reschedule(job, newAppt, now)); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not reschedule"})
		}
		return c.JSON(http.StatusOK, echo.Map{
			"success": true,
			"message": "appointment rescheduled at no charge",
		})
	}

	res, err := h.Payments.CreateRescheduleFeeCheckout(ctx, job, req.NewDate, req.NewTime)
	if errors.Is(err, service.ErrPaymentsNotConfigured) {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create checkout session"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"requiresPayment": true,
		"checkoutUrl":     res.CheckoutURL,
		"message":         "rescheduling less than 24 hours before the appointment requires a fee",
	})
}

type cancelReq struct {
	AccessToken string `json:"accessToken"`
	JobID       string `json:"jobId"`
}

// Cancel cancels an appointment under the same 24-hour fee rule as
// Reschedule. The cancellation itself is still a lifecycle transition, so a
// job already in a terminal state cannot be cancelled no matter the notice.
func (h *CustomerAccessHandler) Cancel(c echo.Context) error {
	var req cancelReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	job, ok := h.authorizeJob(c, req.AccessToken, req.JobID)
	if !ok {
		return nil
	}
	if err := service.CheckTransition(job, model.StatusCancelled, service.TransitionGuards{}); err != nil {
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	}

	now := time.Now().UTC()
	free, err := service.WithinFreeWindow(job, now)
	if errors.Is(err, service.ErrNoAppointment) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "job has no scheduled appointment"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not evaluate appointment"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if free {
		if _, err := h.St.UpdateJob(ctx, job.ID, service.Cancel(job, now, 0)); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not cancel"})
		}
		return c.JSON(http.StatusOK, echo.Map{
			"success": true,
			"message": "appointment cancelled at no charge",
		})
	}

	res, err := h.Payments.CreateCancellationFeeCheckout(ctx, job)
	if errors.Is(err, service.ErrPaymentsNotConfigured) {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create checkout session"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"requiresPayment": true,
		"checkoutUrl":     res.CheckoutURL,
		"message":         "cancelling less than 24 hours before the appointment requires a fee",
	})
}

// authorizeJob resolves a job id and verifies the access token covers it.
// On failure the response has already been written and ok is false.
func (h *CustomerAccessHandler) authorizeJob(c echo.Context, token, jobID string) (job model.Job, ok bool) {
	if token == "" || jobID == "" {
		_ = c.JSON(http.StatusBadRequest, echo.Map{"error": "accessToken and jobId are required"})
		return model.Job{}, false
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	job, err := h.St.GetJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		_ = c.JSON(http.StatusNotFound, echo.Map{"error": "job not found"})
		return model.Job{}, false
	}
	if err != nil {
		_ = c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not look up job"})
		return model.Job{}, false
	}
	if job.CustomerAccessToken == "" || !utils.SecureCompare(job.CustomerAccessToken, token) {
		_ = c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid access token"})
		return model.Job{}, false
	}
	return job, true
}
