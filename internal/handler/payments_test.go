package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/openwrench/openwrench/internal/model"
	"github.com/openwrench/openwrench/internal/service"
	"github.com/openwrench/openwrench/internal/store"
)

func TestCreateDepositPersistsLink(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	price := 300
	job, _ := st.CreateJob(ctx, model.Job{
		Title: "Brakes", Status: model.StatusAccepted,
		ProviderID: "prov-1", EstimatedPrice: &price, DepositAmount: 100,
	})

	payments := &fakePayments{
		depositFn: func(_ context.Context, j model.Job) (service.CheckoutResult, error) {
			return service.CheckoutResult{SessionID: "cs_dep", CheckoutURL: "https://pay.example/cs_dep", LinkToken: "link-tok"}, nil
		},
	}
	h := NewPaymentHandler(testCfg(), st, payments)

	rec, body := doJSON(t, h.CreateDeposit, http.MethodPost, "/api/deposits/x", "", withParam("jobId", job.ID))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d (%s)", rec.Code, rec.Body.String())
	}
	if body["sessionId"] != "cs_dep" || body["depositLinkToken"] != "link-tok" {
		t.Fatalf("response: %v", body)
	}

	got, _ := st.GetJob(ctx, job.ID)
	if got.Status != model.StatusDepositDue {
		t.Fatalf("status: got %q, want deposit_due", got.Status)
	}
	// The link token and its session survive a restart because they live
	// on the job row.
	if got.PaymentLinkToken != "link-tok" || got.PaymentLinkSessionID != "cs_dep" {
		t.Fatalf("link not persisted: %q/%q", got.PaymentLinkToken, got.PaymentLinkSessionID)
	}
	if got.DepositCheckoutSessionID != "cs_dep" {
		t.Fatalf("deposit session: got %q", got.DepositCheckoutSessionID)
	}
}

func TestCreateDepositRejectsWrongState(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	job, _ := st.CreateJob(ctx, model.Job{Title: "Brakes", Status: model.StatusRequested})

	h := NewPaymentHandler(testCfg(), st, &fakePayments{})
	rec, _ := doJSON(t, h.CreateDeposit, http.MethodPost, "/api/deposits/x", "", withParam("jobId", job.ID))
	if rec.Code != http.StatusConflict {
		t.Fatalf("deposit on requested job: got %d, want 409", rec.Code)
	}
}

func TestCreateCheckoutSessionRequiresPrice(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	job, _ := st.CreateJob(ctx, model.Job{Title: "Brakes", Status: model.StatusConfirmed})

	h := NewPaymentHandler(testCfg(), st, &fakePayments{})
	rec, _ := doJSON(t, h.CreateCheckoutSession, http.MethodPost, "/api/checkout-sessions",
		`{"jobId":"`+job.ID+`"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("no price: got %d, want 400", rec.Code)
	}
}

func TestCreateCheckoutSessionPersistsLink(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	price := 450
	job, _ := st.CreateJob(ctx, model.Job{Title: "Engine", Status: model.StatusConfirmed, EstimatedPrice: &price})

	payments := &fakePayments{
		finalFn: func(context.Context, model.Job) (service.CheckoutResult, error) {
			return service.CheckoutResult{SessionID: "cs_final", CheckoutURL: "https://pay.example/cs_final", LinkToken: "final-tok"}, nil
		},
	}
	h := NewPaymentHandler(testCfg(), st, payments)

	rec, body := doJSON(t, h.CreateCheckoutSession, http.MethodPost, "/api/checkout-sessions",
		`{"jobId":"`+job.ID+`"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d (%s)", rec.Code, rec.Body.String())
	}
	if body["paymentLinkToken"] != "final-tok" {
		t.Fatalf("response: %v", body)
	}

	got, _ := st.GetJob(ctx, job.ID)
	if got.CheckoutSessionID != "cs_final" || got.PaymentLinkSessionID != "cs_final" {
		t.Fatalf("sessions not persisted: %q/%q", got.CheckoutSessionID, got.PaymentLinkSessionID)
	}
}

func TestPayRedirectsThroughLinkToken(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	job, _ := st.CreateJob(ctx, model.Job{Title: "Engine", Status: model.StatusDepositDue})
	st.UpdateJob(ctx, job.ID, store.JobUpdate{
		PaymentLinkToken:     store.String("link-tok"),
		PaymentLinkSessionID: store.String("cs_dep"),
	})

	payments := &fakePayments{
		checkoutURLFn: func(_ context.Context, sessionID string) (string, error) {
			if sessionID != "cs_dep" {
				t.Fatalf("resolved wrong session %q", sessionID)
			}
			return "https://pay.example/cs_dep", nil
		},
	}
	h := NewPaymentHandler(testCfg(), st, payments)

	rec, _ := doJSON(t, h.Pay, http.MethodGet, "/api/pay/x", "", withParam("token", "link-tok"))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status: got %d, want 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "https://pay.example/cs_dep" {
		t.Fatalf("location: got %q", loc)
	}
}

func TestPayUnknownToken(t *testing.T) {
	h := NewPaymentHandler(testCfg(), store.NewMemoryStore(), &fakePayments{})
	rec, _ := doJSON(t, h.Pay, http.MethodGet, "/api/pay/x", "", withParam("token", "nope"))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", rec.Code)
	}
}
