// Package jobs holds the retry job contract shared by intake, the worker and the queue backend.
package jobs

import (
	"context"
	"errors"
	"time"
)

const (
	TypeProcessPayment = "payment:process"
	TypeDeadLetter     = "payment:dead_letter"
)

// Event log types recorded by charge attempts.
const (
	EventChargeCreated       = "charge.created"
	EventChargeCreateFailed  = "charge.create.failed"
	EventProviderUnsupported = "provider.unsupported"
)

// IsChargeAttempt reports whether an event log type records a charge attempt.
func IsChargeAttempt(eventType string) bool {
	switch eventType {
	case EventChargeCreated, EventChargeCreateFailed, EventProviderUnsupported:
		return true
	}
	return false
}

// ErrDeadLetterNotFound is returned when removing a dead letter that does not exist.
var ErrDeadLetterNotFound = errors.New("dead letter not found")

// RetryJob asks the worker to attempt charge creation for a payment.
type RetryJob struct {
	PaymentID string `json:"paymentId"`
	Attempt   int    `json:"attempt"`
}

// DeadLetter is the record kept for a payment that exhausted its attempts.
type DeadLetter struct {
	PaymentID string    `json:"paymentId"`
	OrderID   string    `json:"orderId"`
	Provider  string    `json:"provider"`
	Attempts  int       `json:"attempts"`
	Reason    string    `json:"reason"`
	FailedAt  time.Time `json:"failedAt"`
}

// Queue schedules retry jobs. Enqueueing the same payment and attempt twice
// results in a single job.
type Queue interface {
	Enqueue(ctx context.Context, job RetryJob, delay time.Duration) error
	// HasPending reports whether any attempt up to maxAttempt is still waiting
	// or running for the payment.
	HasPending(ctx context.Context, paymentID string, maxAttempt int) (bool, error)
}

type DeadLetterQueue interface {
	// Push records dl; pushing the same payment twice keeps one entry.
	Push(ctx context.Context, dl DeadLetter) error
	List(ctx context.Context, page, size int) ([]DeadLetter, error)
	Remove(ctx context.Context, paymentID string) error
}
