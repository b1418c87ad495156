package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v76"

	"github.com/openwrench/openwrench/internal/config"
	"github.com/openwrench/openwrench/internal/model"
	"github.com/openwrench/openwrench/internal/queue"
	"github.com/openwrench/openwrench/internal/store"
)

const testWebhookSecret = "whsec_test_secret"

func testConfig() config.Config {
	return config.Config{
		BaseURL:               "http://localhost:8080",
		StripeWebhookSecret:   testWebhookSecret,
		DefaultDepositDollars: 100,
		LateFeeCents:          5000,
	}
}

// signedEvent builds a checkout.session.completed payload and a valid
// signature header for it, the same scheme the provider uses: HMAC-SHA256
// over "<timestamp>.<payload>".
func signedEvent(t *testing.T, sessionID string, metadata map[string]string) (payload []byte, header string) {
	t.Helper()
	object := map[string]any{"id": sessionID, "object": "checkout.session", "metadata": metadata}
	raw, err := json.Marshal(object)
	if err != nil {
		t.Fatalf("marshal session: %v", err)
	}
	event := map[string]any{
		"id":          "evt_test_1",
		"object":      "event",
		"api_version": stripe.APIVersion,
		"type":        "checkout.session.completed",
		"data":        map[string]any{"object": json.RawMessage(raw)},
	}
	payload, err = json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}

	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	header = fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
	return payload, header
}

func TestFinalAmountCents(t *testing.T) {
	price := 500

	job := model.Job{EstimatedPrice: &price, DepositAmount: 100, DepositStatus: model.PaymentPaid}
	cents, err := FinalAmountCents(job)
	if err != nil {
		t.Fatalf("with paid deposit: %v", err)
	}
	// (500 - 100) + 9% of 500 = 445 dollars.
	if cents != 44500 {
		t.Fatalf("with paid deposit: got %d cents, want 44500", cents)
	}

	job = model.Job{EstimatedPrice: &price, DepositAmount: 100, DepositStatus: model.PaymentPending}
	cents, err = FinalAmountCents(job)
	if err != nil {
		t.Fatalf("unpaid deposit: %v", err)
	}
	if cents != 54500 {
		t.Fatalf("unpaid deposit should not be subtracted: got %d cents, want 54500", cents)
	}

	if _, err := FinalAmountCents(model.Job{}); err == nil {
		t.Fatal("missing estimated price should be rejected")
	}
}

func TestDepositDollarsDefault(t *testing.T) {
	p := NewStripePayments(testConfig(), store.NewMemoryStore(), nil)
	if got := p.DepositDollars(model.Job{DepositAmount: 250}); got != 250 {
		t.Fatalf("explicit deposit: got %d, want 250", got)
	}
	if got := p.DepositDollars(model.Job{}); got != 100 {
		t.Fatalf("default deposit: got %d, want 100", got)
	}
}

func TestPaymentsNotConfigured(t *testing.T) {
	cfg := testConfig() // no secret key
	p := NewStripePayments(cfg, store.NewMemoryStore(), nil)
	ctx := context.Background()
	job := model.Job{ID: "j1", Title: "Brake job", EstimatedPrice: intp(200)}

	if _, err := p.CreateDepositCheckout(ctx, job); !errors.Is(err, ErrPaymentsNotConfigured) {
		t.Fatalf("deposit: got %v, want ErrPaymentsNotConfigured", err)
	}
	if _, err := p.CreateFinalCheckout(ctx, job); !errors.Is(err, ErrPaymentsNotConfigured) {
		t.Fatalf("final: got %v, want ErrPaymentsNotConfigured", err)
	}
	if _, err := p.CreateRescheduleFeeCheckout(ctx, job, "2025-07-01", "10:00"); !errors.Is(err, ErrPaymentsNotConfigured) {
		t.Fatalf("reschedule fee: got %v, want ErrPaymentsNotConfigured", err)
	}
	if _, err := p.CreateCancellationFeeCheckout(ctx, job); !errors.Is(err, ErrPaymentsNotConfigured) {
		t.Fatalf("cancellation fee: got %v, want ErrPaymentsNotConfigured", err)
	}
	if _, err := p.CheckoutURL(ctx, "cs_1"); !errors.Is(err, ErrPaymentsNotConfigured) {
		t.Fatalf("checkout url: got %v, want ErrPaymentsNotConfigured", err)
	}
}

func TestHandleWebhookInvalidSignature(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	job, err := st.CreateJob(ctx, model.Job{Title: "Oil change", Status: model.StatusDepositDue, DepositStatus: model.PaymentPending})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	p := NewStripePayments(testConfig(), st, nil)
	payload, _ := signedEvent(t, "cs_1", map[string]string{"jobId": job.ID, "type": FlowDeposit})

	err = p.HandleWebhook(ctx, payload, "t=1,v1=deadbeef")
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("got %v, want ErrInvalidSignature", err)
	}

	got, _ := st.GetJob(ctx, job.ID)
	if got.DepositStatus != model.PaymentPending || got.Status != model.StatusDepositDue {
		t.Fatal("unverified webhook must not mutate the job")
	}
}

func TestHandleWebhookDepositConfirms(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	job, err := st.CreateJob(ctx, model.Job{
		Title:         "Oil change",
		ServiceType:   "oil_change",
		Status:        model.StatusDepositDue,
		DepositAmount: 100,
		DepositStatus: model.PaymentPending,
		CustomerEmail: "sam@example.com",
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	var published []queue.JobConfirmedEvent
	p := NewStripePayments(testConfig(), st, func(_ context.Context, ev queue.JobConfirmedEvent) error {
		published = append(published, ev)
		return nil
	})

	payload, header := signedEvent(t, "cs_dep_1", map[string]string{"jobId": job.ID, "type": FlowDeposit})
	if err := p.HandleWebhook(ctx, payload, header); err != nil {
		t.Fatalf("handle webhook: %v", err)
	}

	got, _ := st.GetJob(ctx, job.ID)
	if got.DepositStatus != model.PaymentPaid {
		t.Fatalf("deposit status: got %q, want paid", got.DepositStatus)
	}
	if got.DepositPaidAt == nil {
		t.Fatal("depositPaidAt not stamped")
	}
	if got.Status != model.StatusConfirmed {
		t.Fatalf("status: got %q, want confirmed", got.Status)
	}
	if len(published) != 1 || published[0].JobID != job.ID {
		t.Fatalf("expected one job.confirmed event for %s, got %v", job.ID, published)
	}
}

func TestHandleWebhookDepositOnCancelledJob(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	job, err := st.CreateJob(ctx, model.Job{Title: "Tow", Status: model.StatusCancelled, DepositStatus: model.PaymentPending})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	var published []queue.JobConfirmedEvent
	p := NewStripePayments(testConfig(), st, func(_ context.Context, ev queue.JobConfirmedEvent) error {
		published = append(published, ev)
		return nil
	})

	payload, header := signedEvent(t, "cs_dep_2", map[string]string{"jobId": job.ID, "type": FlowDeposit})
	if err := p.HandleWebhook(ctx, payload, header); err != nil {
		t.Fatalf("handle webhook: %v", err)
	}

	got, _ := st.GetJob(ctx, job.ID)
	if got.DepositStatus != model.PaymentPaid {
		t.Fatal("payment should still be recorded")
	}
	if got.Status != model.StatusCancelled {
		t.Fatalf("cancelled job must stay cancelled, got %q", got.Status)
	}
	if len(published) != 0 {
		t.Fatalf("unconfirmed deposit must not publish job.confirmed, got %v", published)
	}
}

func TestHandleWebhookCancellationFeeOnCompletedJob(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	job, err := st.CreateJob(ctx, model.Job{Title: "Tow", Status: model.StatusCompleted})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	p := NewStripePayments(testConfig(), st, nil)

	payload, header := signedEvent(t, "cs_fee_3", map[string]string{"jobId": job.ID, "type": FlowCancellationFee})
	if err := p.HandleWebhook(ctx, payload, header); err != nil {
		t.Fatalf("handle webhook: %v", err)
	}

	got, _ := st.GetJob(ctx, job.ID)
	if got.Status != model.StatusCompleted || got.CancelledAt != nil {
		t.Fatalf("completed job must stay completed, got %q", got.Status)
	}
	if got.CancellationFee != 50 || got.CancellationFeeStatus != model.CancellationFeePaid {
		t.Fatalf("fee record: got %d/%s, want 50/paid", got.CancellationFee, got.CancellationFeeStatus)
	}
}

func TestHandleWebhookRescheduleFee(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	appt := time.Date(2025, 7, 10, 9, 0, 0, 0, time.UTC)
	job, err := st.CreateJob(ctx, model.Job{
		Title:               "Battery swap",
		Status:              model.StatusConfirmed,
		AppointmentDateTime: &appt,
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	p := NewStripePayments(testConfig(), st, nil)

	payload, header := signedEvent(t, "cs_fee_1", map[string]string{
		"jobId":   job.ID,
		"type":    FlowRescheduleFee,
		"newDate": "2025-07-12",
		"newTime": "14:30",
	})
	if err := p.HandleWebhook(ctx, payload, header); err != nil {
		t.Fatalf("handle webhook: %v", err)
	}

	got, _ := st.GetJob(ctx, job.ID)
	want := time.Date(2025, 7, 12, 14, 30, 0, 0, time.UTC)
	if got.AppointmentDateTime == nil || !got.AppointmentDateTime.Equal(want) {
		t.Fatalf("appointment: got %v, want %v", got.AppointmentDateTime, want)
	}
	if got.PreviousAppointmentDateTime == nil || !got.PreviousAppointmentDateTime.Equal(appt) {
		t.Fatal("previous appointment not preserved")
	}
	if got.RescheduleCount != 1 {
		t.Fatalf("reschedule count: got %d, want 1", got.RescheduleCount)
	}
	if got.CancellationFee != 50 || got.CancellationFeeStatus != model.CancellationFeePaid {
		t.Fatalf("fee record: got %d/%s, want 50/paid", got.CancellationFee, got.CancellationFeeStatus)
	}
}

func TestHandleWebhookCancellationFee(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	appt := time.Date(2025, 7, 10, 9, 0, 0, 0, time.UTC)
	job, err := st.CreateJob(ctx, model.Job{Title: "Tow", Status: model.StatusConfirmed, AppointmentDateTime: &appt})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	p := NewStripePayments(testConfig(), st, nil)

	payload, header := signedEvent(t, "cs_fee_2", map[string]string{"jobId": job.ID, "type": FlowCancellationFee})
	if err := p.HandleWebhook(ctx, payload, header); err != nil {
		t.Fatalf("handle webhook: %v", err)
	}

	got, _ := st.GetJob(ctx, job.ID)
	if got.Status != model.StatusCancelled {
		t.Fatalf("status: got %q, want cancelled", got.Status)
	}
	if got.CancelledAt == nil {
		t.Fatal("cancelledAt not stamped")
	}
	if got.CancellationFee != 50 || got.CancellationFeeStatus != model.CancellationFeePaid {
		t.Fatalf("fee record: got %d/%s, want 50/paid", got.CancellationFee, got.CancellationFeeStatus)
	}
}

func TestHandleWebhookFinalPayment(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	job, err := st.CreateJob(ctx, model.Job{Title: "Engine work", Status: model.StatusConfirmed, PaymentStatus: model.PaymentPending})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	p := NewStripePayments(testConfig(), st, nil)

	payload, header := signedEvent(t, "cs_final_1", map[string]string{"jobId": job.ID, "type": FlowFinal})
	if err := p.HandleWebhook(ctx, payload, header); err != nil {
		t.Fatalf("handle webhook: %v", err)
	}

	got, _ := st.GetJob(ctx, job.ID)
	if got.PaymentStatus != model.PaymentPaid {
		t.Fatalf("payment status: got %q, want paid", got.PaymentStatus)
	}
	if got.CheckoutSessionID != "cs_final_1" {
		t.Fatalf("checkout session id: got %q, want cs_final_1", got.CheckoutSessionID)
	}
}

func TestHandleWebhookIgnoresForeignSessions(t *testing.T) {
	p := NewStripePayments(testConfig(), store.NewMemoryStore(), nil)
	payload, header := signedEvent(t, "cs_other", map[string]string{})
	if err := p.HandleWebhook(context.Background(), payload, header); err != nil {
		t.Fatalf("session without jobId should be ignored, got %v", err)
	}
}

func TestParseAppointment(t *testing.T) {
	got, err := ParseAppointment("2025-07-12", "14:30")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := time.Date(2025, 7, 12, 14, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if _, err := ParseAppointment("12/07/2025", "2pm"); err == nil {
		t.Fatal("malformed input should be rejected")
	}
}
