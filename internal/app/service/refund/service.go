// Package refund issues provider refunds against captured payments.
package refund

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fatflowers/payment-engine/internal/app/service/eventlog"
	"github.com/fatflowers/payment-engine/internal/models"
	"github.com/fatflowers/payment-engine/internal/platform/provider"
	"github.com/fatflowers/payment-engine/internal/repository"
	"github.com/fatflowers/payment-engine/pkg/logctx"
	"github.com/fatflowers/payment-engine/pkg/metrics"
	"github.com/fatflowers/payment-engine/pkg/types"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	EventRefundCreated      = "refund.created"
	EventRefundCreateFailed = "refund.create.failed"
)

var (
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrNotRefundable       = errors.New("payment has not been captured")
	ErrInvalidAmount       = errors.New("refund amount must be positive")
	ErrUnsupportedProvider = errors.New("refunds are not supported for provider")
	ErrProviderFailed      = errors.New("provider refund failed")
)

// Request asks for a refund. A nil Amount refunds the full payment.
type Request struct {
	Amount *decimal.Decimal
	Reason string
}

type Service struct {
	repo      repository.PaymentRepository
	providers *provider.Registry
	eventlog  *eventlog.Service
	metrics   *metrics.PaymentMetrics
	log       *zap.SugaredLogger
}

type Params struct {
	fx.In

	Repo      repository.PaymentRepository
	Providers *provider.Registry
	EventLog  *eventlog.Service
	Metrics   *metrics.PaymentMetrics `optional:"true"`
	Log       *zap.SugaredLogger
}

func New(p Params) *Service {
	return &Service{repo: p.Repo, providers: p.Providers, eventlog: p.EventLog, metrics: p.Metrics, log: p.Log}
}

var Module = fx.Options(
	fx.Provide(New),
)

// MapRefundStatus normalises a provider refund status.
func MapRefundStatus(s string) types.RefundStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "succeeded", "success", "processed", "completed", "paid":
		return types.RefundStatusCompleted
	case "failed", "canceled", "cancelled", "declined":
		return types.RefundStatusFailed
	default:
		return types.RefundStatusProcessing
	}
}

// Refund calls the payment's provider and records the resulting refund.
// Cumulative refunds are not checked against the payment amount.
func (s *Service) Refund(ctx context.Context, paymentID string, req Request) (*models.Refund, error) {
	p, err := s.repo.GetPayment(ctx, paymentID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrPaymentNotFound, paymentID)
	}
	if err != nil {
		return nil, err
	}
	if lo.FromPtr(p.GatewayPaymentID) == "" {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotRefundable, p.ID, p.Status)
	}
	amount := p.Amount
	if req.Amount != nil {
		amount = *req.Amount
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	adapter, err := s.providers.Get(p.Provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, p.Provider)
	}
	log := logctx.FromCtx(ctx, s.log).With("payment_id", p.ID, "provider", p.Provider)
	reason := strings.TrimSpace(req.Reason)

	res, err := adapter.CreateRefund(ctx, provider.RefundRequest{
		ExternalPaymentID: *p.GatewayPaymentID,
		Amount:            amount,
		Currency:          p.Currency,
		Reason:            reason,
		Notes:             map[string]string{"paymentId": p.ID, "orderId": p.OrderID},
	})
	if err != nil {
		log.Warnw("refund_failed", "amount", amount.String(), "err", err)
		if rerr := s.eventlog.Record(ctx, eventlog.Entry{
			Provider:  p.Provider,
			EventType: EventRefundCreateFailed,
			Payload:   map[string]any{"amount": amount.String(), "reason": reason, "error": err.Error()},
		}.ForPayment(p)); rerr != nil {
			log.Errorw("refund_failure_unaudited", "err", rerr)
		}
		s.metrics.Refund(string(p.Provider), string(types.RefundStatusFailed))
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}

	r := &models.Refund{
		PaymentID:       p.ID,
		Amount:          amount,
		Currency:        p.Currency,
		Status:          MapRefundStatus(res.ExternalStatus),
		Reason:          lo.EmptyableToPtr(reason),
		GatewayRefundID: lo.EmptyableToPtr(res.ExternalID),
		Metadata:        datatypes.JSONMap{"gatewayStatus": res.ExternalStatus},
	}
	if err := s.eventlog.Record(ctx, eventlog.Entry{
		Provider:  p.Provider,
		EventType: EventRefundCreated,
		Payload: map[string]any{
			"refundId":       res.ExternalID,
			"externalStatus": res.ExternalStatus,
			"amount":         amount.String(),
		},
	}.ForPayment(p)); err != nil {
		log.Errorw("refund_unaudited", "refund_id", res.ExternalID, "err", err)
	}
	if err := s.repo.CreateRefund(ctx, r); err != nil {
		// the provider already accepted the refund; the event log keeps its id
		log.Errorw("refund_persist_failed", "refund_id", res.ExternalID, "err", err)
		return nil, err
	}
	s.metrics.Refund(string(p.Provider), string(r.Status))
	log.Infow("refund_created", "refund_id", r.ID, "gateway_refund_id", res.ExternalID, "status", r.Status, "amount", amount.String())
	return r, nil
}

func (s *Service) List(ctx context.Context, paymentID string) ([]*models.Refund, error) {
	if _, err := s.repo.GetPayment(ctx, paymentID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrPaymentNotFound, paymentID)
		}
		return nil, err
	}
	return s.repo.ListRefunds(ctx, paymentID)
}
