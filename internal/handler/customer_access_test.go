package handler

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/openwrench/openwrench/internal/model"
	"github.com/openwrench/openwrench/internal/service"
	"github.com/openwrench/openwrench/internal/store"
)

func seedAccessJob(t *testing.T, st store.Store, appointmentIn time.Duration) (model.Job, string) {
	t.Helper()
	ctx := context.Background()
	appt := time.Now().UTC().Add(appointmentIn)
	job, err := st.CreateJob(ctx, model.Job{
		Title:               "Brake inspection",
		ServiceType:         "brakes",
		Status:              model.StatusConfirmed,
		CustomerEmail:       "sam@example.com",
		AppointmentDateTime: &appt,
	})
	if err != nil {
		t.Fatalf("seed job: %v", err)
	}
	token := "access-token-1"
	if _, err := st.UpdateJob(ctx, job.ID, store.JobUpdate{CustomerAccessToken: store.String(token)}); err != nil {
		t.Fatalf("attach token: %v", err)
	}
	job, _ = st.GetJob(ctx, job.ID)
	return job, token
}

func TestRequestAccessUnknownEmail(t *testing.T) {
	h := NewCustomerAccessHandler(testCfg(), store.NewMemoryStore(), &fakePayments{})
	rec, _ := doJSON(t, h.RequestAccess, http.MethodPost, "/api/customer/request-access", `{"email":"nobody@example.com"}`, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", rec.Code)
	}
}

func TestAccessCodeFlow(t *testing.T) {
	st := store.NewMemoryStore()
	h := NewCustomerAccessHandler(testCfg(), st, &fakePayments{})
	seedAccessJob(t, st, 48*time.Hour)

	rec, body := doJSON(t, h.RequestAccess, http.MethodPost, "/api/customer/request-access", `{"email":"Sam@Example.com"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("request-access: got %d (%s)", rec.Code, rec.Body.String())
	}
	code, _ := body["code"].(string)
	if len(code) != 6 {
		t.Fatalf("expected a 6-digit code, got %q", code)
	}

	// Wrong code is rejected.
	wrong := "000000"
	if code == wrong {
		wrong = "000001"
	}
	rec, _ = doJSON(t, h.VerifyAccess, http.MethodPost, "/api/customer/verify-access",
		fmt.Sprintf(`{"email":"sam@example.com","code":"%s"}`, wrong), nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong code: got %d, want 401", rec.Code)
	}

	rec, body = doJSON(t, h.VerifyAccess, http.MethodPost, "/api/customer/verify-access",
		fmt.Sprintf(`{"email":"sam@example.com","code":"%s"}`, code), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify-access: got %d (%s)", rec.Code, rec.Body.String())
	}
	token, _ := body["accessToken"].(string)
	if token == "" {
		t.Fatal("no access token returned")
	}

	// The code is consumed on success.
	rec, _ = doJSON(t, h.VerifyAccess, http.MethodPost, "/api/customer/verify-access",
		fmt.Sprintf(`{"email":"sam@example.com","code":"%s"}`, code), nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("replayed code: got %d, want 401", rec.Code)
	}

	// The token now reaches the jobs.
	rec, _ = doJSON(t, h.Jobs, http.MethodGet, "/api/customer/jobs?token="+token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("jobs by token: got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestVerifyAccessExpiredCode(t *testing.T) {
	st := store.NewMemoryStore()
	h := NewCustomerAccessHandler(testCfg(), st, &fakePayments{})
	seedAccessJob(t, st, 48*time.Hour)

	ctx := context.Background()
	if _, err := st.CreateVerificationCode(ctx, "sam@example.com", "123456", time.Now().UTC().Add(-time.Minute)); err != nil {
		t.Fatalf("seed code: %v", err)
	}

	rec, _ := doJSON(t, h.VerifyAccess, http.MethodPost, "/api/customer/verify-access",
		`{"email":"sam@example.com","code":"123456"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expired code: got %d, want 401", rec.Code)
	}
}

func TestRescheduleFreeOutsideWindow(t *testing.T) {
	st := store.NewMemoryStore()
	h := NewCustomerAccessHandler(testCfg(), st, &fakePayments{})
	job, token := seedAccessJob(t, st, 72*time.Hour)

	body := fmt.Sprintf(`{"accessToken":"%s","jobId":"%s","newDate":"2025-12-01","newTime":"10:00"}`, token, job.ID)
	rec, resp := doJSON(t, h.Reschedule, http.MethodPost, "/api/customer/reschedule", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d (%s)", rec.Code, rec.Body.String())
	}
	if resp["success"] != true {
		t.Fatalf("expected free reschedule, got %v", resp)
	}

	got, _ := st.GetJob(context.Background(), job.ID)
	want := time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC)
	if got.AppointmentDateTime == nil || !got.AppointmentDateTime.Equal(want) {
		t.Fatalf("appointment: got %v, want %v", got.AppointmentDateTime, want)
	}
	if got.RescheduleCount != 1 {
		t.Fatalf("reschedule count: got %d, want 1", got.RescheduleCount)
	}
	if got.CancellationFee != 0 {
		t.Fatal("free reschedule must not record a fee")
	}
}

func TestRescheduleInsideWindowRequiresPayment(t *testing.T) {
	st := store.NewMemoryStore()
	var feeJobID, feeDate, feeTime string
	payments := &fakePayments{
		rescheduleFeeFn: func(_ context.Context, job model.Job, newDate, newTime string) (service.CheckoutResult, error) {
			feeJobID, feeDate, feeTime = job.ID, newDate, newTime
			return service.CheckoutResult{SessionID: "cs_fee", CheckoutURL: "https://pay.example/cs_fee", LinkToken: "lt"}, nil
		},
	}
	h := NewCustomerAccessHandler(testCfg(), st, payments)
	job, token := seedAccessJob(t, st, 6*time.Hour)

	body := fmt.Sprintf(`{"accessToken":"%s","jobId":"%s","newDate":"2025-12-01","newTime":"10:00"}`, token, job.ID)
	rec, resp := doJSON(t, h.Reschedule, http.MethodPost, "/api/customer/reschedule", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d (%s)", rec.Code, rec.Body.String())
	}
	if resp["requiresPayment"] != true {
		t.Fatalf("expected payment requirement, got %v", resp)
	}
	if resp["checkoutUrl"] != "https://pay.example/cs_fee" {
		t.Fatalf("checkout url: got %v", resp["checkoutUrl"])
	}
	if feeJobID != job.ID || feeDate != "2025-12-01" || feeTime != "10:00" {
		t.Fatal("fee checkout not created with the requested slot")
	}

	// Nothing moves until the fee webhook lands.
	got, _ := st.GetJob(context.Background(), job.ID)
	if !got.AppointmentDateTime.Equal(*job.AppointmentDateTime) || got.RescheduleCount != 0 {
		t.Fatal("late reschedule must not mutate the job before payment")
	}
}

func TestCancelFreeOutsideWindow(t *testing.T) {
	st := store.NewMemoryStore()
	h := NewCustomerAccessHandler(testCfg(), st, &fakePayments{})
	job, token := seedAccessJob(t, st, 72*time.Hour)

	body := fmt.Sprintf(`{"accessToken":"%s","jobId":"%s"}`, token, job.ID)
	rec, resp := doJSON(t, h.Cancel, http.MethodPost, "/api/customer/cancel", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d (%s)", rec.Code, rec.Body.String())
	}
	if resp["success"] != true {
		t.Fatalf("expected free cancel, got %v", resp)
	}

	got, _ := st.GetJob(context.Background(), job.ID)
	if got.Status != model.StatusCancelled || got.CancelledAt == nil {
		t.Fatalf("job not cancelled: %v", got.Status)
	}
	if got.CancellationFee != 0 || got.CancellationFeeStatus != model.CancellationFeeNone {
		t.Fatal("free cancel must not record a fee")
	}
}

func TestCancelInsideWindowRequiresPayment(t *testing.T) {
	st := store.NewMemoryStore()
	payments := &fakePayments{
		cancelFeeFn: func(context.Context, model.Job) (service.CheckoutResult, error) {
			return service.CheckoutResult{SessionID: "cs_cancel", CheckoutURL: "https://pay.example/cs_cancel", LinkToken: "lt"}, nil
		},
	}
	h := NewCustomerAccessHandler(testCfg(), st, payments)
	job, token := seedAccessJob(t, st, 3*time.Hour)

	body := fmt.Sprintf(`{"accessToken":"%s","jobId":"%s"}`, token, job.ID)
	rec, resp := doJSON(t, h.Cancel, http.MethodPost, "/api/customer/cancel", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d (%s)", rec.Code, rec.Body.String())
	}
	if resp["requiresPayment"] != true {
		t.Fatalf("expected payment requirement, got %v", resp)
	}

	got, _ := st.GetJob(context.Background(), job.ID)
	if got.Status != model.StatusConfirmed {
		t.Fatal("late cancel must not mutate the job before payment")
	}
}

func TestCancelCompletedJobRejected(t *testing.T) {
	st := store.NewMemoryStore()
	h := NewCustomerAccessHandler(testCfg(), st, &fakePayments{})
	job, token := seedAccessJob(t, st, 30*time.Hour)

	done := model.StatusCompleted
	if _, err := st.UpdateJob(context.Background(), job.ID, store.JobUpdate{Status: &done}); err != nil {
		t.Fatalf("complete job: %v", err)
	}

	body := fmt.Sprintf(`{"accessToken":"%s","jobId":"%s"}`, token, job.ID)
	rec, _ := doJSON(t, h.Cancel, http.MethodPost, "/api/customer/cancel", body, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want 409", rec.Code)
	}

	got, _ := st.GetJob(context.Background(), job.ID)
	if got.Status != model.StatusCompleted || got.CancelledAt != nil {
		t.Fatalf("completed job must stay completed, got %v", got.Status)
	}
}

func TestRescheduleWithoutAppointment(t *testing.T) {
	st := store.NewMemoryStore()
	h := NewCustomerAccessHandler(testCfg(), st, &fakePayments{})

	ctx := context.Background()
	job, _ := st.CreateJob(ctx, model.Job{Title: "Quote only", Status: model.StatusRequested, CustomerEmail: "sam@example.com"})
	st.UpdateJob(ctx, job.ID, store.JobUpdate{CustomerAccessToken: store.String("tok")})

	body := fmt.Sprintf(`{"accessToken":"tok","jobId":"%s","newDate":"2025-12-01","newTime":"10:00"}`, job.ID)
	rec, _ := doJSON(t, h.Reschedule, http.MethodPost, "/api/customer/reschedule", body, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", rec.Code)
	}
}

func TestRescheduleWrongToken(t *testing.T) {
	st := store.NewMemoryStore()
	h := NewCustomerAccessHandler(testCfg(), st, &fakePayments{})
	job, _ := seedAccessJob(t, st, 72*time.Hour)

	body := fmt.Sprintf(`{"accessToken":"stolen","jobId":"%s","newDate":"2025-12-01","newTime":"10:00"}`, job.ID)
	rec, _ := doJSON(t, h.Reschedule, http.MethodPost, "/api/customer/reschedule", body, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want 401", rec.Code)
	}
}
