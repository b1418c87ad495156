package model

import "time"

// JobStatus enumerates the closed set of job states. Transitions between
// them are validated by the lifecycle service; nothing else writes Status.
type JobStatus string

const (
	StatusRequested  JobStatus = "requested"
	StatusAccepted   JobStatus = "accepted"
	StatusDepositDue JobStatus = "deposit_due"
	StatusConfirmed  JobStatus = "confirmed"
	StatusCompleted  JobStatus = "completed"
	StatusCancelled  JobStatus = "cancelled"
)

// Valid reports whether s is one of the known job states.
func (s JobStatus) Valid() bool {
	switch s {
	case StatusRequested, StatusAccepted, StatusDepositDue, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition may leave s.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Payment/fee sub-record states stored as plain strings on the job row.
const (
	PaymentPending = "pending"
	PaymentPaid    = "paid"

	CancellationFeeNone = "none"
	CancellationFeePaid = "paid"
)

// Job is the central entity: a customer's service request and everything
// that accretes on it over its lifetime (acceptance, contract, deposit,
// appointment history, cancellation record, on-site tracking).
// Jobs are never deleted; cancellation is a status value.
type Job struct {
	ID            string    `json:"id"`            // jobs.id (uuid)
	ServiceType   string    `json:"serviceType"`   // jobs.service_type
	Title         string    `json:"title"`         // jobs.title
	Description   string    `json:"description"`   // jobs.description
	Location      string    `json:"location"`      // jobs.location
	PreferredDate string    `json:"preferredDate"` // jobs.preferred_date ("2006-01-02")
	PreferredTime string    `json:"preferredTime"` // jobs.preferred_time ("15:04")
	Status        JobStatus `json:"status"`        // jobs.status
	CustomerID    string    `json:"customerId"`    // jobs.customer_id (empty until known)
	ProviderID    string    `json:"providerId"`    // jobs.provider_id (empty until matched)
	CreatedAt     time.Time `json:"createdAt"`     // jobs.created_at

	// Version increments on every versioned update and guards concurrent
	// status transitions (two providers racing to accept: one wins).
	Version int `json:"version"` // jobs.version

	EstimatedPrice *int `json:"estimatedPrice"` // jobs.estimated_price (dollars, nil until quoted)

	// Contract sub-record.
	ContractTerms     string     `json:"contractTerms"`     // jobs.contract_terms
	CustomerSignature string     `json:"customerSignature"` // jobs.customer_signature
	ProviderSignature string     `json:"providerSignature"` // jobs.provider_signature
	SignedAt          *time.Time `json:"signedAt"`          // jobs.signed_at

	// Final-payment sub-record.
	PaymentStatus        string `json:"paymentStatus"`        // jobs.payment_status
	CheckoutSessionID    string `json:"checkoutSessionId"`    // jobs.checkout_session_id
	PaymentLinkToken     string `json:"paymentLinkToken"`     // jobs.payment_link_token (single active token)
	PaymentLinkSessionID string `json:"paymentLinkSessionId"` // jobs.payment_link_session_id (session the token maps to)

	// Urgency and customer access.
	IsUrgent            bool       `json:"isUrgent"`            // jobs.is_urgent
	ResponseDeadline    *time.Time `json:"responseDeadline"`    // jobs.response_deadline (recorded, not enforced)
	CustomerEmail       string     `json:"customerEmail"`       // jobs.customer_email
	CustomerAccessToken string     `json:"customerAccessToken"` // jobs.customer_access_token

	// Deposit sub-record. Amount in dollars.
	DepositAmount            int        `json:"depositAmount"`            // jobs.deposit_amount
	DepositStatus            string     `json:"depositStatus"`            // jobs.deposit_status
	DepositCheckoutSessionID string     `json:"depositCheckoutSessionId"` // jobs.deposit_checkout_session_id
	DepositPaidAt            *time.Time `json:"depositPaidAt"`            // jobs.deposit_paid_at

	// Appointment tracking.
	AppointmentDateTime         *time.Time `json:"appointmentDateTime"`         // jobs.appointment_date_time
	PreviousAppointmentDateTime *time.Time `json:"previousAppointmentDateTime"` // jobs.previous_appointment_date_time
	RescheduleCount             int        `json:"rescheduleCount"`             // jobs.reschedule_count
	RescheduledAt               *time.Time `json:"rescheduledAt"`               // jobs.rescheduled_at

	// Cancellation record (dollars).
	CancellationFee       int        `json:"cancellationFee"`       // jobs.cancellation_fee
	CancellationFeeStatus string     `json:"cancellationFeeStatus"` // jobs.cancellation_fee_status
	CancelledAt           *time.Time `json:"cancelledAt"`           // jobs.cancelled_at

	// On-site tracking. CheckedOutAt is only ever set after CheckedInAt.
	CheckedInAt     *time.Time `json:"checkedInAt"`     // jobs.checked_in_at
	CheckedOutAt    *time.Time `json:"checkedOutAt"`    // jobs.checked_out_at
	ActualStartTime *time.Time `json:"actualStartTime"` // jobs.actual_start_time
	ActualEndTime   *time.Time `json:"actualEndTime"`   // jobs.actual_end_time
	JobNotes        string     `json:"jobNotes"`        // jobs.job_notes
}
