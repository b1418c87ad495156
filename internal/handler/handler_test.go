package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/openwrench/openwrench/internal/config"
	"github.com/openwrench/openwrench/internal/model"
	"github.com/openwrench/openwrench/internal/service"
)

// fakePayments lets each test script the payment orchestrator per call.
type fakePayments struct {
	depositFn       func(ctx context.Context, job model.Job) (service.CheckoutResult, error)
	finalFn         func(ctx context.Context, job model.Job) (service.CheckoutResult, error)
	rescheduleFeeFn func(ctx context.Context, job model.Job, newDate, newTime string) (service.CheckoutResult, error)
	cancelFeeFn     func(ctx context.Context, job model.Job) (service.CheckoutResult, error)
	checkoutURLFn   func(ctx context.Context, sessionID string) (string, error)
}

var _ service.Payments = (*fakePayments)(nil)

func (f *fakePayments) CreateDepositCheckout(ctx context.Context, job model.Job) (service.CheckoutResult, error) {
	if f.depositFn == nil {
		return service.CheckoutResult{}, service.ErrPaymentsNotConfigured
	}
	return f.depositFn(ctx, job)
}

func (f *fakePayments) CreateFinalCheckout(ctx context.Context, job model.Job) (service.CheckoutResult, error) {
	if f.finalFn == nil {
		return service.CheckoutResult{}, service.ErrPaymentsNotConfigured
	}
	return f.finalFn(ctx, job)
}

func (f *fakePayments) CreateRescheduleFeeCheckout(ctx context.Context, job model.Job, newDate, newTime string) (service.CheckoutResult, error) {
	if f.rescheduleFeeFn == nil {
		return service.CheckoutResult{}, service.ErrPaymentsNotConfigured
	}
	return f.rescheduleFeeFn(ctx, job, newDate, newTime)
}

func (f *fakePayments) CreateCancellationFeeCheckout(ctx context.Context, job model.Job) (service.CheckoutResult, error) {
	if f.cancelFeeFn == nil {
		return service.CheckoutResult{}, service.ErrPaymentsNotConfigured
	}
	return f.cancelFeeFn(ctx, job)
}

func (f *fakePayments) CheckoutURL(ctx context.Context, sessionID string) (string, error) {
	if f.checkoutURLFn == nil {
		return "", service.ErrPaymentsNotConfigured
	}
	return f.checkoutURLFn(ctx, sessionID)
}

func (f *fakePayments) HandleWebhook(context.Context, []byte, string) error { return nil }

func testCfg() config.Config {
	return config.Config{
		Env:                   "test",
		BaseURL:               "http://localhost:8080",
		AdminPassword:         "hunter2",
		BcryptCost:            4,
		AdminSessionTTL:       24 * time.Hour,
		ProviderSessionTTL:    7 * 24 * time.Hour,
		CustomerSessionTTL:    7 * 24 * time.Hour,
		VerificationCodeTTL:   15 * time.Minute,
		DefaultDepositDollars: 100,
		LateFeeCents:          5000,
	}
}

// doJSON runs a handler through a fresh echo context and returns the
// recorder plus the decoded response body.
func doJSON(t *testing.T, h echo.HandlerFunc, method, target, body string, setup func(c echo.Context)) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	e := echo.New()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if setup != nil {
		setup(c)
	}
	if err := h(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	out := map[string]any{}
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			// List responses decode elsewhere; leave the map empty.
			out = map[string]any{}
		}
	}
	return rec, out
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	res := rec.Result()
	for _, ck := range res.Cookies() {
		if ck.Name == name {
			return ck
		}
	}
	return nil
}
