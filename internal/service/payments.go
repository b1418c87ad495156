package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/stripe/stripe-go/v76"
	checkoutsession "github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/openwrench/openwrench/internal/config"
	"github.com/openwrench/openwrench/internal/model"
	"github.com/openwrench/openwrench/internal/queue"
	"github.com/openwrench/openwrench/internal/store"
	"github.com/openwrench/openwrench/internal/utils"
)

// Money flows carried in checkout-session metadata under the "type" key.
// The webhook branches on these to decide which job mutation to apply.
const (
	FlowDeposit         = "deposit"
	FlowFinal           = "final"
	FlowRescheduleFee   = "reschedule_fee"
	FlowCancellationFee = "cancellation_fee"
)

// TaxRate is the fixed percentage applied to the estimated price on the
// final balance.
const TaxRate = 0.09

var (
	// ErrPaymentsNotConfigured is returned by every payment-creating call
	// when no Stripe secret key is configured. Endpoints fail closed with
	// an explicit configuration error instead of crashing.
	ErrPaymentsNotConfigured = errors.New("stripe is not configured: STRIPE_SECRET_KEY is missing")

	// ErrInvalidSignature marks a webhook whose signature did not verify.
	ErrInvalidSignature = errors.New("webhook signature verification failed")
)

// CheckoutResult is what a payment-creating flow hands back to its caller:
// the hosted session, its redirect URL, and the single-use link token the
// caller persists on the job.
type CheckoutResult struct {
	SessionID   string
	CheckoutURL string
	LinkToken   string
}

// Payments creates hosted checkout sessions for the three money flows and
// reconciles their outcomes from webhook callbacks.
type Payments interface {
	CreateDepositCheckout(ctx context.Context, job model.Job) (CheckoutResult, error)
	CreateFinalCheckout(ctx context.Context, job model.Job) (CheckoutResult, error)
	CreateRescheduleFeeCheckout(ctx context.Context, job model.Job, newDate, newTime string) (CheckoutResult, error)
	CreateCancellationFeeCheckout(ctx context.Context, job model.Job) (CheckoutResult, error)
	CheckoutURL(ctx context.Context, sessionID string) (string, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

// EventPublisher pushes a domain event to the message broker. Failures are
// logged and never block the webhook path.
type EventPublisher func(ctx context.Context, ev queue.JobConfirmedEvent) error

// StripePayments is the Stripe-backed Payments implementation.
type StripePayments struct {
	cfg     config.Config
	st      store.Store
	publish EventPublisher // may be nil
}

// NewStripePayments wires the Stripe client key (when present) and returns
// the orchestrator. A nil publisher disables broker events.
func NewStripePayments(cfg config.Config, st store.Store, publish EventPublisher) *StripePayments {
	if cfg.StripeSecretKey != "" {
		stripe.Key = cfg.StripeSecretKey
	}
	return &StripePayments{cfg: cfg, st: st, publish: publish}
}

var _ Payments = (*StripePayments)(nil)

func (s *StripePayments) configured() bool { return s.cfg.StripeSecretKey != "" }

// DepositDollars returns the deposit for a job, falling back to the
// configured default when the job carries no amount.
func (s *StripePayments) DepositDollars(job model.Job) int {
	if job.DepositAmount > 0 {
		return job.DepositAmount
	}
	return s.cfg.DefaultDepositDollars
}

// FinalAmountCents computes the final balance: estimated price minus a paid
// deposit, plus tax on the full estimate.
func FinalAmountCents(job model.Job) (int64, error) {
	if job.EstimatedPrice == nil {
		return 0, errors.New("job has no estimated price")
	}
	subtotal := *job.EstimatedPrice
	if job.DepositStatus == model.PaymentPaid && job.DepositAmount > 0 {
		subtotal -= job.DepositAmount
	}
	tax := int(math.Round(float64(*job.EstimatedPrice) * TaxRate))
	return int64(subtotal+tax) * 100, nil
}

func (s *StripePayments) CreateDepositCheckout(ctx context.Context, job model.Job) (CheckoutResult, error) {
	dep := s.DepositDollars(job)
	return s.createSession(ctx, sessionSpec{
		name:        "Deposit - " + job.Title,
		description: fmt.Sprintf("$%d deposit for %s", dep, job.ServiceType),
		amountCents: int64(dep) * 100,
		successURL:  s.cfg.BaseURL + "/admin",
		cancelURL:   s.cfg.BaseURL + "/admin",
		metadata:    map[string]string{"jobId": job.ID, "type": FlowDeposit},
	})
}

func (s *StripePayments) CreateFinalCheckout(ctx context.Context, job model.Job) (CheckoutResult, error) {
	amount, err := FinalAmountCents(job)
	if err != nil {
		return CheckoutResult{}, err
	}
	return s.createSession(ctx, sessionSpec{
		name:        job.Title,
		description: job.ServiceType + " - " + truncate(job.Description, 100),
		amountCents: amount,
		successURL:  s.cfg.BaseURL + "/contract/" + job.ID,
		cancelURL:   s.cfg.BaseURL + "/admin",
		metadata:    map[string]string{"jobId": job.ID, "type": FlowFinal},
	})
}

func (s *StripePayments) CreateRescheduleFeeCheckout(ctx context.Context, job model.Job, newDate, newTime string) (CheckoutResult, error) {
	return s.createSession(ctx, sessionSpec{
		name:        "Reschedule Fee - " + job.Title,
		description: "Late reschedule fee (less than 24 hours notice)",
		amountCents: s.cfg.LateFeeCents,
		successURL:  s.cfg.BaseURL + "/my-jobs",
		cancelURL:   s.cfg.BaseURL + "/my-jobs",
		metadata: map[string]string{
			"jobId":   job.ID,
			"type":    FlowRescheduleFee,
			"newDate": newDate,
			"newTime": newTime,
		},
	})
}

func (s *StripePayments) CreateCancellationFeeCheckout(ctx context.Context, job model.Job) (CheckoutResult, error) {
	return s.createSession(ctx, sessionSpec{
		name:        "Cancellation Fee - " + job.Title,
		description: "Late cancellation fee (less than 24 hours notice)",
		amountCents: s.cfg.LateFeeCents,
		successURL:  s.cfg.BaseURL + "/my-jobs",
		cancelURL:   s.cfg.BaseURL + "/my-jobs",
		metadata:    map[string]string{"jobId": job.ID, "type": FlowCancellationFee},
	})
}

// CheckoutURL resolves a stored checkout session id to its hosted URL.
func (s *StripePayments) CheckoutURL(ctx context.Context, sessionID string) (string, error) {
	if !s.configured() {
		return "", ErrPaymentsNotConfigured
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	cs, err := checkoutsession.Get(sessionID, params)
	if err != nil {
		return "", fmt.Errorf("retrieve checkout session: %w", err)
	}
	return cs.URL, nil
}

type sessionSpec struct {
	name        string
	description string
	amountCents int64
	successURL  string
	cancelURL   string
	metadata    map[string]string
}

func (s *StripePayments) createSession(ctx context.Context, spec sessionSpec) (CheckoutResult, error) {
	if !s.configured() {
		return CheckoutResult{}, ErrPaymentsNotConfigured
	}
	token, err := newLinkToken()
	if err != nil {
		return CheckoutResult{}, err
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String("usd"),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(spec.name),
						Description: stripe.String(spec.description),
					},
					UnitAmount: stripe.Int64(spec.amountCents),
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(spec.successURL),
		CancelURL:  stripe.String(spec.cancelURL),
	}
	params.Context = ctx
	for k, v := range spec.metadata {
		params.AddMetadata(k, v)
	}

	cs, err := checkoutsession.New(params)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("create checkout session: %w", err)
	}
	return CheckoutResult{SessionID: cs.ID, CheckoutURL: cs.URL, LinkToken: token}, nil
}

// HandleWebhook verifies the provider signature and, for completed checkout
// sessions, applies the mutation the session's flow type calls for. Nothing
// is mutated when verification fails.
func (s *StripePayments) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := webhook.ConstructEvent(payload, signature, s.cfg.StripeWebhookSecret)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if event.Type != "checkout.session.completed" {
		return nil
	}
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return fmt.Errorf("unmarshal checkout session: %w", err)
	}
	return s.applyCheckoutCompleted(ctx, &cs)
}

// applyCheckoutCompleted branches on the flow-type tag in session metadata.
// Sessions without a jobId are not ours and are ignored.
func (s *StripePayments) applyCheckoutCompleted(ctx context.Context, cs *stripe.CheckoutSession) error {
	jobID := cs.Metadata["jobId"]
	if jobID == "" {
		return nil
	}
	now := time.Now().UTC()
	feeDollars := int(s.cfg.LateFeeCents / 100)

	switch cs.Metadata["type"] {
	case FlowDeposit:
		job, err := s.st.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		upd := store.JobUpdate{
			DepositStatus: store.String(model.PaymentPaid),
			DepositPaidAt: store.Time(now),
		}
		// Auto-confirm; if the job drifted somewhere confirmation is no
		// longer legal, record the payment anyway.
		if err := CheckTransition(job, model.StatusConfirmed, TransitionGuards{DepositPaid: true}); err == nil {
			upd.Status = store.Status(model.StatusConfirmed)
		} else {
			log.Printf("payments: deposit paid for job %s but not confirming: %v", jobID, err)
		}
		updated, err := s.st.UpdateJob(ctx, jobID, upd)
		if err != nil {
			return err
		}
		if upd.Status != nil {
			s.publishConfirmed(ctx, updated, now)
		}
		return nil

	case FlowRescheduleFee:
		job, err := s.st.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		newAppt, err := ParseAppointment(cs.Metadata["newDate"], cs.Metadata["newTime"])
		if err != nil {
			return fmt.Errorf("reschedule webhook for job %s: %w", jobID, err)
		}
		upd := Reschedule(job, newAppt, now)
		upd.CancellationFee = store.Int(feeDollars)
		upd.CancellationFeeStatus = store.String(model.CancellationFeePaid)
		_, err = s.st.UpdateJob(ctx, jobID, upd)
		return err

	case FlowCancellationFee:
		job, err := s.st.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		// The fee webhook may race another status change; if cancellation
		// is no longer legal, record the paid fee without touching status.
		if err := CheckTransition(job, model.StatusCancelled, TransitionGuards{}); err != nil {
			log.Printf("payments: cancellation fee paid for job %s but not cancelling: %v", jobID, err)
			_, err = s.st.UpdateJob(ctx, jobID, store.JobUpdate{
				CancellationFee:       store.Int(feeDollars),
				CancellationFeeStatus: store.String(model.CancellationFeePaid),
			})
			return err
		}
		_, err = s.st.UpdateJob(ctx, jobID, Cancel(job, now, feeDollars))
		return err

	default: // FlowFinal and untagged sessions
		_, err := s.st.UpdateJob(ctx, jobID, store.JobUpdate{
			PaymentStatus:     store.String(model.PaymentPaid),
			CheckoutSessionID: store.String(cs.ID),
		})
		return err
	}
}

func (s *StripePayments) publishConfirmed(ctx context.Context, job model.Job, now time.Time) {
	if s.publish == nil {
		return
	}
	ev := queue.JobConfirmedEvent{
		JobID:          job.ID,
		Title:          job.Title,
		ServiceType:    job.ServiceType,
		CustomerEmail:  job.CustomerEmail,
		DepositDollars: job.DepositAmount,
		ConfirmedAt:    now.Format(time.RFC3339),
	}
	if err := s.publish(ctx, ev); err != nil {
		log.Printf("payments: publish job.confirmed for %s failed: %v", job.ID, err)
	}
}

// ParseAppointment combines a "2006-01-02" date and "15:04" time into a UTC
// timestamp, the format customer-facing scheduling endpoints accept.
func ParseAppointment(date, clock string) (time.Time, error) {
	return time.Parse(time.RFC3339, date+"T"+clock+":00Z")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func newLinkToken() (string, error) { return utils.NewToken() }
