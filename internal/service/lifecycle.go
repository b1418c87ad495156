// Package service holds the domain logic that sits between handlers and the
// store: the job lifecycle state machine, the payment orchestrator, and the
// queue publisher.
package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/openwrench/openwrench/internal/model"
	"github.com/openwrench/openwrench/internal/store"
)

// FreeLeadTime is the minimum notice before an appointment for a free
// reschedule or cancellation; inside the window a fee applies.
const FreeLeadTime = 24 * time.Hour

// ErrNoAppointment is returned when a time-gated operation (reschedule,
// cancel) is attempted on a job with no appointment timestamp.
var ErrNoAppointment = errors.New("no appointment scheduled")

// TransitionError reports a rejected status transition.
type TransitionError struct {
	From   model.JobStatus
	To     model.JobStatus
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot transition job from %q to %q: %s", e.From, e.To, e.Reason)
}

// allowed maps each status to the statuses reachable from it. Cancellation
// is handled separately (reachable from any non-terminal state).
var allowed = map[model.JobStatus][]model.JobStatus{
	model.StatusRequested:  {model.StatusAccepted},
	model.StatusAccepted:   {model.StatusDepositDue, model.StatusConfirmed},
	model.StatusDepositDue: {model.StatusConfirmed},
	model.StatusConfirmed:  {model.StatusCompleted},
}

// TransitionGuards carries the context a transition check needs beyond the
// current job record: values being assigned in the same update, and whether
// an admin is overriding the deposit requirement.
type TransitionGuards struct {
	ProviderID     string // provider being assigned alongside the transition
	EstimatedPrice *int   // price being assigned alongside the transition
	AdminOverride  bool   // admin may confirm without a paid deposit
	DepositPaid    bool   // deposit being marked paid in the same update
}

// CheckTransition validates moving job to the target status. It is the only
// place transition rules live; every handler that writes Status calls it
// first. A nil return means the transition is legal.
func CheckTransition(job model.Job, to model.JobStatus, g TransitionGuards) error {
	if !to.Valid() {
		return &TransitionError{From: job.Status, To: to, Reason: "unknown status"}
	}
	if to == job.Status {
		return &TransitionError{From: job.Status, To: to, Reason: "already in this status"}
	}
	if to == model.StatusCancelled {
		if job.Status.Terminal() {
			return &TransitionError{From: job.Status, To: to, Reason: "job is in a terminal state"}
		}
		return nil
	}

	legal := false
	for _, next := range allowed[job.Status] {
		if next == to {
			legal = true
			break
		}
	}
	if !legal {
		return &TransitionError{From: job.Status, To: to, Reason: "transition not permitted"}
	}

	switch to {
	case model.StatusAccepted:
		// Provider and price must land atomically with acceptance.
		provider := job.ProviderID
		if g.ProviderID != "" {
			provider = g.ProviderID
		}
		price := job.EstimatedPrice
		if g.EstimatedPrice != nil {
			price = g.EstimatedPrice
		}
		if provider == "" {
			return &TransitionError{From: job.Status, To: to, Reason: "provider must be assigned"}
		}
		if price == nil {
			return &TransitionError{From: job.Status, To: to, Reason: "estimated price must be set"}
		}
	case model.StatusConfirmed:
		if job.DepositStatus != model.PaymentPaid && !g.DepositPaid && !g.AdminOverride {
			return &TransitionError{From: job.Status, To: to, Reason: "deposit not paid"}
		}
	case model.StatusCompleted:
		if job.CheckedOutAt == nil {
			return &TransitionError{From: job.Status, To: to, Reason: "mechanic has not checked out"}
		}
	}
	return nil
}

// CheckIn records the mechanic's arrival. A second check-in is rejected and
// leaves the original timestamps untouched.
func CheckIn(job model.Job, now time.Time) (store.JobUpdate, error) {
	if job.CheckedInAt != nil {
		return store.JobUpdate{}, errors.New("already checked in")
	}
	return store.JobUpdate{
		CheckedInAt:     store.Time(now),
		ActualStartTime: store.Time(now),
	}, nil
}

// CheckOut records the mechanic's departure with optional notes. It is
// rejected without a prior check-in or after a previous check-out, leaving
// checked-out and actual-end untouched.
func CheckOut(job model.Job, now time.Time, notes string) (store.JobUpdate, error) {
	if job.CheckedInAt == nil {
		return store.JobUpdate{}, errors.New("not checked in")
	}
	if job.CheckedOutAt != nil {
		return store.JobUpdate{}, errors.New("already checked out")
	}
	upd := store.JobUpdate{
		CheckedOutAt:  store.Time(now),
		ActualEndTime: store.Time(now),
	}
	if notes != "" {
		upd.JobNotes = store.String(notes)
	}
	return upd, nil
}

// WithinFreeWindow reports whether the job's appointment is at least
// FreeLeadTime away, i.e. whether a reschedule or cancellation is free.
// Jobs without an appointment cannot take the time-gated path at all.
func WithinFreeWindow(job model.Job, now time.Time) (bool, error) {
	if job.AppointmentDateTime == nil {
		return false, ErrNoAppointment
	}
	return job.AppointmentDateTime.Sub(now) >= FreeLeadTime, nil
}

// Reschedule builds the update that moves the appointment: the previous
// timestamp is preserved and the reschedule count incremented by one.
func Reschedule(job model.Job, newAppointment, now time.Time) store.JobUpdate {
	upd := store.JobUpdate{
		AppointmentDateTime: store.Time(newAppointment),
		RescheduleCount:     store.Int(job.RescheduleCount + 1),
		RescheduledAt:       store.Time(now),
	}
	if job.AppointmentDateTime != nil {
		upd.PreviousAppointmentDateTime = store.Time(*job.AppointmentDateTime)
	}
	return upd
}

// Cancel builds the update that finalizes a cancellation. feeDollars is
// zero on the free path; on the paid path the fee is recorded as paid.
func Cancel(job model.Job, now time.Time, feeDollars int) store.JobUpdate {
	upd := store.JobUpdate{
		Status:      store.Status(model.StatusCancelled),
		CancelledAt: store.Time(now),
	}
	if feeDollars > 0 {
		upd.CancellationFee = store.Int(feeDollars)
		upd.CancellationFeeStatus = store.String(model.CancellationFeePaid)
	}
	return upd
}
