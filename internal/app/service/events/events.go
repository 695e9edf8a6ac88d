// Package events defines the message contracts exchanged with the order service.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderCreated     = "order.created"
	PaymentCompleted = "payment.completed"
	PaymentFailed    = "payment.failed"
)

// Envelope wraps every message on the bus.
type Envelope struct {
	Name       string          `json:"name"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurredAt"`
}

type OrderItem struct {
	ProductID string          `json:"productId" validate:"required"`
	Quantity  int             `json:"quantity" validate:"gte=1"`
	Price     decimal.Decimal `json:"price"`
}

type OrderCreatedEvent struct {
	OrderID  string          `json:"orderId" validate:"required"`
	UserID   string          `json:"userId" validate:"required"`
	Total    decimal.Decimal `json:"total"`
	Currency string          `json:"currency" validate:"required,len=3"`
	Status   string          `json:"status"`
	Items    []OrderItem     `json:"items" validate:"dive"`
}

type PaymentCompletedEvent struct {
	OrderID   string  `json:"orderId"`
	PaymentID string  `json:"paymentId"`
	Provider  string  `json:"provider"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
}

type PaymentFailedEvent struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}

// Publisher delivers a named event to the bus.
type Publisher interface {
	Publish(ctx context.Context, name string, payload any) error
}

// NewEnvelope encodes payload under name.
func NewEnvelope(name string, payload any, at time.Time) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{Name: name, Payload: raw, OccurredAt: at.UTC()}, nil
}
