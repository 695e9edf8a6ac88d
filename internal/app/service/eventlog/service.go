package eventlog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fatflowers/payment-engine/internal/models"
	"github.com/fatflowers/payment-engine/internal/repository"
	"github.com/fatflowers/payment-engine/pkg/logctx"
	"github.com/fatflowers/payment-engine/pkg/types"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Entry is one provider interaction to audit.
type Entry struct {
	Provider  types.PaymentProvider
	EventType string
	PaymentID string
	OrderID   string
	EventID   string
	Payload   any
}

// ForPayment fills the payment references of e from p.
func (e Entry) ForPayment(p *models.Payment) Entry {
	if p != nil {
		e.PaymentID = p.ID
		e.OrderID = p.OrderID
	}
	return e
}

type Service struct {
	repo repository.PaymentRepository
	log  *zap.SugaredLogger
}

func New(repo repository.PaymentRepository, log *zap.SugaredLogger) *Service {
	return &Service{repo: repo, log: log}
}

var Module = fx.Options(
	fx.Provide(New),
)

// Record appends e to the provider event log. It is synchronous: callers that
// must not act on an unaudited event check the error.
func (s *Service) Record(ctx context.Context, e Entry) error {
	var payload datatypes.JSON
	switch v := e.Payload.(type) {
	case nil:
		payload = datatypes.JSON("{}")
	case json.RawMessage:
		payload = datatypes.JSON(v)
	case []byte:
		payload = datatypes.JSON(v)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode provider event payload: %w", err)
		}
		payload = datatypes.JSON(raw)
	}
	if !json.Valid(payload) {
		raw, _ := json.Marshal(map[string]string{"raw": string(payload)})
		payload = datatypes.JSON(raw)
	}

	log := &models.ProviderEventLog{
		Provider:  e.Provider,
		EventType: e.EventType,
		PaymentID: lo.EmptyableToPtr(e.PaymentID),
		OrderID:   lo.EmptyableToPtr(e.OrderID),
		EventID:   lo.EmptyableToPtr(e.EventID),
		TraceID:   logctx.TraceID(ctx),
		Payload:   payload,
	}
	if err := s.repo.AppendEvent(ctx, log); err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("provider_event_log_failed", "provider", e.Provider, "event_type", e.EventType, "err", err)
		return err
	}
	return nil
}

// List returns the audit trail of a payment, oldest first.
func (s *Service) List(ctx context.Context, paymentID string) ([]*models.ProviderEventLog, error) {
	return s.repo.ListEvents(ctx, paymentID)
}
