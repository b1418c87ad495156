// Package queue defines message payloads exchanged over the message broker
// and the background consumer that drains them.
package queue

// JobConfirmedEvent is published when a deposit payment lands and the job
// moves to confirmed. It carries enough for downstream consumers to log or
// notify without querying the primary store.
type JobConfirmedEvent struct {
	JobID          string `json:"job_id"`
	Title          string `json:"title"`
	ServiceType    string `json:"service_type"`
	CustomerEmail  string `json:"customer_email"`
	DepositDollars int    `json:"deposit_dollars"`
	ConfirmedAt    string `json:"confirmed_at"`
}
