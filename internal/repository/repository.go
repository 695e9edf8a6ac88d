package repository

import (
	"context"
	"errors"

	"github.com/fatflowers/payment-engine/internal/models"
	"github.com/fatflowers/payment-engine/pkg/types"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateOrder = errors.New("payment already exists for order")
)

// ListPaymentsQuery filters payment listings. Zero values are ignored.
type ListPaymentsQuery struct {
	UserID    string
	OrderID   string
	Status    types.PaymentStatus
	Filters   []*types.PaymentFilter
	From      int
	Size      int
	SortBy    string
	SortOrder string
}

// PaymentRepository is the durable store for payments, refunds and provider events.
type PaymentRepository interface {
	// CreatePayment inserts p. It returns ErrDuplicateOrder if a live payment already exists for p.OrderID.
	CreatePayment(ctx context.Context, p *models.Payment) error
	GetPayment(ctx context.Context, id string) (*models.Payment, error)
	FindByOrderID(ctx context.Context, orderID string) (*models.Payment, error)
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Payment, error)
	FindByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*models.Payment, error)
	ListPayments(ctx context.Context, q ListPaymentsQuery) ([]*models.Payment, int64, error)
	CountPayments(ctx context.Context) (int64, error)
	// TransitionPayment applies upd only while the payment is in one of from.
	// It reports whether a row changed.
	TransitionPayment(ctx context.Context, id string, from []types.PaymentStatus, upd models.PaymentUpdate) (bool, error)

	AppendEvent(ctx context.Context, e *models.ProviderEventLog) error
	ListEvents(ctx context.Context, paymentID string) ([]*models.ProviderEventLog, error)

	CreateRefund(ctx context.Context, r *models.Refund) error
	ListRefunds(ctx context.Context, paymentID string) ([]*models.Refund, error)
}
