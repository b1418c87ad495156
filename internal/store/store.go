// Package store owns all persisted state behind one interface with two
// implementations: a map-backed MemoryStore used when no database is
// configured, and a MySQL-backed SQLStore. The backend is selected once at
// startup and never mixed at runtime. Both implementations generate uuid
// ids and server-set creation timestamps, and report ordinary misses with
// ErrNotFound rather than a backend-specific error.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/openwrench/openwrench/internal/model"
)

// Sentinel errors shared by both backends. Handlers translate these into
// HTTP statuses (404, 409).
var (
	ErrNotFound        = errors.New("not found")
	ErrUsernameExists  = errors.New("username already exists")
	ErrVersionConflict = errors.New("version conflict")
)

// Session namespaces. Each kind is an independent token space with its own
// cookie and lifetime.
const (
	SessionAdmin    = "admin"
	SessionProvider = "provider"
	SessionCustomer = "customer"
)

// Store is the persistence contract for every entity. All methods take a
// context and return ErrNotFound for ordinary misses.
type Store interface {
	CreateUser(ctx context.Context, u model.User) (model.User, error)
	GetUser(ctx context.Context, id string) (model.User, error)
	GetUserByUsername(ctx context.Context, username string) (model.User, error)
	UpdateUserPassword(ctx context.Context, id, hash string) error

	CreateJob(ctx context.Context, j model.Job) (model.Job, error)
	GetJob(ctx context.Context, id string) (model.Job, error)
	GetJobByPaymentLinkToken(ctx context.Context, token string) (model.Job, error)
	GetJobByCustomerAccessToken(ctx context.Context, token string) (model.Job, error)
	ListJobs(ctx context.Context) ([]model.Job, error)
	ListJobsByCustomerEmail(ctx context.Context, email string) ([]model.Job, error)
	// UpdateJob merges the supplied fields over the existing record and
	// returns the updated job.
	UpdateJob(ctx context.Context, id string, upd JobUpdate) (model.Job, error)
	// UpdateJobVersioned behaves like UpdateJob but applies only when the
	// caller's observed version is still current, returning
	// ErrVersionConflict otherwise. Status transitions go through this.
	UpdateJobVersioned(ctx context.Context, id string, version int, upd JobUpdate) (model.Job, error)

	CreateConversation(ctx context.Context, conv model.Conversation) (model.Conversation, error)
	GetConversation(ctx context.Context, id string) (model.Conversation, error)
	GetConversationByJobID(ctx context.Context, jobID string) (model.Conversation, error)
	ListConversationsByUserID(ctx context.Context, userID string) ([]model.Conversation, error)

	CreateMessage(ctx context.Context, m model.Message) (model.Message, error)
	ListMessagesByConversation(ctx context.Context, conversationID string) ([]model.Message, error)
	GetLastMessageByConversation(ctx context.Context, conversationID string) (model.Message, error)

	CreateSession(ctx context.Context, kind, principalID, token string, expiresAt time.Time) (model.Session, error)
	GetSessionByToken(ctx context.Context, kind, token string) (model.Session, error)
	DeleteSession(ctx context.Context, id string) error

	CreateVerificationCode(ctx context.Context, email, code string, expiresAt time.Time) (model.VerificationCode, error)
	// GetLatestVerificationCode returns the most recently issued code for
	// the email; older codes are dead the moment a newer one exists.
	GetLatestVerificationCode(ctx context.Context, email string) (model.VerificationCode, error)
	DeleteVerificationCode(ctx context.Context, id string) error
}

// JobUpdate is a partial update: nil fields are left untouched, non-nil
// fields overwrite the stored value. Unknown fields are rejected upstream
// by request validation.
type JobUpdate struct {
	Status         *model.JobStatus
	CustomerID     *string
	ProviderID     *string
	EstimatedPrice *int

	ContractTerms     *string
	CustomerSignature *string
	ProviderSignature *string
	SignedAt          *time.Time

	PaymentStatus        *string
	CheckoutSessionID    *string
	PaymentLinkToken     *string
	PaymentLinkSessionID *string

	IsUrgent            *bool
	ResponseDeadline    *time.Time
	CustomerEmail       *string
	CustomerAccessToken *string

	DepositAmount            *int
	DepositStatus            *string
	DepositCheckoutSessionID *string
	DepositPaidAt            *time.Time

	AppointmentDateTime         *time.Time
	PreviousAppointmentDateTime *time.Time
	RescheduleCount             *int
	RescheduledAt               *time.Time

	CancellationFee       *int
	CancellationFeeStatus *string
	CancelledAt           *time.Time

	CheckedInAt     *time.Time
	CheckedOutAt    *time.Time
	ActualStartTime *time.Time
	ActualEndTime   *time.Time
	JobNotes        *string
}

// normalizeJobDefaults fills the sub-record statuses callers may leave
// blank, so both backends hand out the same record shape however the job
// was created.
func normalizeJobDefaults(j model.Job) model.Job {
	if j.Status == "" {
		j.Status = model.StatusRequested
	}
	if j.PaymentStatus == "" {
		j.PaymentStatus = model.PaymentPending
	}
	if j.DepositStatus == "" {
		j.DepositStatus = model.PaymentPending
	}
	if j.CancellationFeeStatus == "" {
		j.CancellationFeeStatus = model.CancellationFeeNone
	}
	return j
}

// apply merges the update into j in place.
func (u JobUpdate) apply(j *model.Job) {
	if u.Status != nil {
		j.Status = *u.Status
	}
	if u.CustomerID != nil {
		j.CustomerID = *u.CustomerID
	}
	if u.ProviderID != nil {
		j.ProviderID = *u.ProviderID
	}
	if u.EstimatedPrice != nil {
		v := *u.EstimatedPrice
		j.EstimatedPrice = &v
	}
	if u.ContractTerms != nil {
		j.ContractTerms = *u.ContractTerms
	}
	if u.CustomerSignature != nil {
		j.CustomerSignature = *u.CustomerSignature
	}
	if u.ProviderSignature != nil {
		j.ProviderSignature = *u.ProviderSignature
	}
	if u.SignedAt != nil {
		v := *u.SignedAt
		j.SignedAt = &v
	}
	if u.PaymentStatus != nil {
		j.PaymentStatus = *u.PaymentStatus
	}
	if u.CheckoutSessionID != nil {
		j.CheckoutSessionID = *u.CheckoutSessionID
	}
	if u.PaymentLinkToken != nil {
		j.PaymentLinkToken = *u.PaymentLinkToken
	}
	if u.PaymentLinkSessionID != nil {
		j.PaymentLinkSessionID = *u.PaymentLinkSessionID
	}
	if u.IsUrgent != nil {
		j.IsUrgent = *u.IsUrgent
	}
	if u.ResponseDeadline != nil {
		v := *u.ResponseDeadline
		j.ResponseDeadline = &v
	}
	if u.CustomerEmail != nil {
		j.CustomerEmail = *u.CustomerEmail
	}
	if u.CustomerAccessToken != nil {
		j.CustomerAccessToken = *u.CustomerAccessToken
	}
	if u.DepositAmount != nil {
		j.DepositAmount = *u.DepositAmount
	}
	if u.DepositStatus != nil {
		j.DepositStatus = *u.DepositStatus
	}
	if u.DepositCheckoutSessionID != nil {
		j.DepositCheckoutSessionID = *u.DepositCheckoutSessionID
	}
	if u.DepositPaidAt != nil {
		v := *u.DepositPaidAt
		j.DepositPaidAt = &v
	}
	if u.AppointmentDateTime != nil {
		v := *u.AppointmentDateTime
		j.AppointmentDateTime = &v
	}
	if u.PreviousAppointmentDateTime != nil {
		v := *u.PreviousAppointmentDateTime
		j.PreviousAppointmentDateTime = &v
	}
	if u.RescheduleCount != nil {
		j.RescheduleCount = *u.RescheduleCount
	}
	if u.RescheduledAt != nil {
		v := *u.RescheduledAt
		j.RescheduledAt = &v
	}
	if u.CancellationFee != nil {
		j.CancellationFee = *u.CancellationFee
	}
	if u.CancellationFeeStatus != nil {
		j.CancellationFeeStatus = *u.CancellationFeeStatus
	}
	if u.CancelledAt != nil {
		v := *u.CancelledAt
		j.CancelledAt = &v
	}
	if u.CheckedInAt != nil {
		v := *u.CheckedInAt
		j.CheckedInAt = &v
	}
	if u.CheckedOutAt != nil {
		v := *u.CheckedOutAt
		j.CheckedOutAt = &v
	}
	if u.ActualStartTime != nil {
		v := *u.ActualStartTime
		j.ActualStartTime = &v
	}
	if u.ActualEndTime != nil {
		v := *u.ActualEndTime
		j.ActualEndTime = &v
	}
	if u.JobNotes != nil {
		j.JobNotes = *u.JobNotes
	}
}

// Pointer helpers for building JobUpdate literals.

func String(s string) *string { return &s }

func Int(n int) *int { return &n }

func Bool(b bool) *bool { return &b }

func Time(t time.Time) *time.Time { return &t }

func Status(s model.JobStatus) *model.JobStatus { return &s }
