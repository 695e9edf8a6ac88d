// Package payment creates payments for orders and serves payment queries.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fatflowers/payment-engine/internal/app/service/events"
	"github.com/fatflowers/payment-engine/internal/app/service/jobs"
	"github.com/fatflowers/payment-engine/internal/models"
	"github.com/fatflowers/payment-engine/internal/platform/orderclient"
	"github.com/fatflowers/payment-engine/internal/repository"
	"github.com/fatflowers/payment-engine/pkg/config"
	"github.com/fatflowers/payment-engine/pkg/logctx"
	"github.com/fatflowers/payment-engine/pkg/metrics"
	"github.com/fatflowers/payment-engine/pkg/resilience"
	"github.com/fatflowers/payment-engine/pkg/types"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	SourceHTTP       = "http"
	SourceOrderEvent = "order.event"
)

// OrderVerifier confirms an order exists and belongs to a user.
type OrderVerifier interface {
	VerifyOrder(ctx context.Context, orderID, userID string) error
}

type CreateRequest struct {
	OrderID  string
	UserID   string
	Amount   decimal.Decimal
	Currency string
	// Provider is optional; the configured default is used when empty.
	Provider string
}

type Service struct {
	repo            repository.PaymentRepository
	orders          OrderVerifier
	queue           jobs.Queue
	metrics         *metrics.PaymentMetrics
	validate        *validator.Validate
	defaultProvider types.PaymentProvider
	log             *zap.SugaredLogger
}

type Params struct {
	fx.In

	Repo    repository.PaymentRepository
	Orders  OrderVerifier
	Queue   jobs.Queue
	Metrics *metrics.PaymentMetrics `optional:"true"`
	Config  *config.Config
	Log     *zap.SugaredLogger
}

func New(p Params) *Service {
	return &Service{
		repo:            p.Repo,
		orders:          p.Orders,
		queue:           p.Queue,
		metrics:         p.Metrics,
		validate:        validator.New(),
		defaultProvider: p.Config.Payment.DefaultProvider,
		log:             p.Log,
	}
}

var Module = fx.Options(
	fx.Provide(
		New,
		func(c *orderclient.Client) OrderVerifier { return c },
	),
)

func (s *Service) normalize(req CreateRequest) (CreateRequest, types.PaymentProvider, error) {
	req.OrderID = strings.TrimSpace(req.OrderID)
	req.UserID = strings.TrimSpace(req.UserID)
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	switch {
	case req.OrderID == "":
		return req, "", fmt.Errorf("%w: orderId is required", ErrInvalidRequest)
	case req.UserID == "":
		return req, "", fmt.Errorf("%w: userId is required", ErrInvalidRequest)
	case !req.Amount.IsPositive():
		return req, "", fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	case len(req.Currency) != 3:
		return req, "", fmt.Errorf("%w: currency must be an ISO 4217 code", ErrInvalidRequest)
	}
	p := s.defaultProvider
	if req.Provider != "" {
		parsed, ok := types.ParsePaymentProvider(req.Provider)
		if !ok {
			return req, "", fmt.Errorf("%w: unsupported provider %q", ErrInvalidRequest, req.Provider)
		}
		p = parsed
	}
	return req, p, nil
}

// Create verifies the order and creates its payment. Repeating the call for the
// same order and user returns the existing payment with created=false, and
// re-enqueues its first attempt if the original enqueue failed.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Payment, bool, error) {
	req, providerName, err := s.normalize(req)
	if err != nil {
		return nil, false, err
	}
	log := logctx.FromCtx(ctx, s.log).With("order_id", req.OrderID, "user_id", req.UserID)

	if err := s.orders.VerifyOrder(ctx, req.OrderID, req.UserID); err != nil {
		return nil, false, mapOrderError(err)
	}

	existing, err := s.repo.FindByOrderID(ctx, req.OrderID)
	switch {
	case err == nil:
		log.Infow("payment_exists", "payment_id", existing.ID)
		return s.existing(ctx, log, existing, req.UserID)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, false, err
	}

	p := &models.Payment{
		OrderID:  req.OrderID,
		UserID:   req.UserID,
		Amount:   req.Amount,
		Currency: req.Currency,
		Status:   types.PaymentStatusProcessing,
		Provider: providerName,
		Metadata: datatypes.JSONMap{"initiatedVia": SourceHTTP},
	}
	created, err := s.insert(ctx, p)
	if err != nil {
		return nil, false, err
	}
	if !created {
		log.Infow("payment_create_raced", "payment_id", p.ID)
		return s.existing(ctx, log, p, req.UserID)
	}

	log.Infow("payment_created", "payment_id", p.ID, "provider", p.Provider, "amount", p.Amount.String())
	s.metrics.PaymentCreated(string(p.Provider), SourceHTTP)
	if err := s.queue.Enqueue(ctx, jobs.RetryJob{PaymentID: p.ID, Attempt: 1}, 0); err != nil {
		log.Errorw("payment_enqueue_failed", "payment_id", p.ID, "err", err)
		return nil, false, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	return p, true, nil
}

// insert writes p. On a unique violation it loads the winning row into p and
// reports created=false.
func (s *Service) insert(ctx context.Context, p *models.Payment) (bool, error) {
	err := s.repo.CreatePayment(ctx, p)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, repository.ErrDuplicateOrder) {
		return false, err
	}
	winner, ferr := s.repo.FindByOrderID(ctx, p.OrderID)
	if ferr != nil {
		return false, fmt.Errorf("failed to load payment after duplicate create: %w", ferr)
	}
	*p = *winner
	return false, nil
}

// existing returns the payment already stored for the order, resuming it first
// if its initial enqueue was lost.
func (s *Service) existing(ctx context.Context, log *zap.SugaredLogger, p *models.Payment, userID string) (*models.Payment, bool, error) {
	if p.UserID != userID {
		return nil, false, fmt.Errorf("%w: order %s", ErrConflict, p.OrderID)
	}
	if err := s.resume(ctx, log, p); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	return p, false, nil
}

// resume enqueues the first attempt for a payment that is still processing with
// no provider order and no recorded charge attempt. The queue keeps one job per
// payment and attempt, so resuming a payment whose job is queued is a no-op.
func (s *Service) resume(ctx context.Context, log *zap.SugaredLogger, p *models.Payment) error {
	if p.Status != types.PaymentStatusProcessing || p.HasGatewayOrder() {
		return nil
	}
	logged, err := s.repo.ListEvents(ctx, p.ID)
	if err != nil {
		return err
	}
	attempted := lo.ContainsBy(logged, func(e *models.ProviderEventLog) bool {
		return jobs.IsChargeAttempt(e.EventType)
	})
	if attempted {
		return nil
	}
	if err := s.queue.Enqueue(ctx, jobs.RetryJob{PaymentID: p.ID, Attempt: 1}, 0); err != nil {
		log.Errorw("payment_enqueue_failed", "payment_id", p.ID, "err", err)
		return err
	}
	log.Infow("payment_resumed", "payment_id", p.ID)
	return nil
}

func mapOrderError(err error) error {
	switch {
	case errors.Is(err, orderclient.ErrOrderNotFound):
		return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
	case errors.Is(err, orderclient.ErrOrderForbidden):
		return fmt.Errorf("%w: %v", ErrOrderForbidden, err)
	case errors.Is(err, orderclient.ErrOrderRejected):
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	default:
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
}

// HandleOrderCreated creates the payment for a newly placed order. A redelivered
// event for an order that already has a payment only resumes a stalled payment.
func (s *Service) HandleOrderCreated(ctx context.Context, env *events.Envelope) error {
	var evt events.OrderCreatedEvent
	if err := json.Unmarshal(env.Payload, &evt); err != nil {
		return resilience.Permanent(fmt.Errorf("%w: %v", ErrInvalidRequest, err))
	}
	if err := s.validate.Struct(evt); err != nil {
		return resilience.Permanent(fmt.Errorf("%w: %v", ErrInvalidRequest, err))
	}
	log := logctx.FromCtx(ctx, s.log).With("order_id", evt.OrderID, "user_id", evt.UserID)
	log.Infow("order_created_received", "total", evt.Total.String(), "currency", evt.Currency)

	req, providerName, err := s.normalize(CreateRequest{
		OrderID:  evt.OrderID,
		UserID:   evt.UserID,
		Amount:   evt.Total,
		Currency: evt.Currency,
	})
	if err != nil {
		return resilience.Permanent(err)
	}

	if existing, err := s.repo.FindByOrderID(ctx, req.OrderID); err == nil {
		log.Infow("order_created_duplicate", "payment_id", existing.ID)
		return s.resume(ctx, log, existing)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	p := &models.Payment{
		OrderID:  req.OrderID,
		UserID:   req.UserID,
		Amount:   req.Amount,
		Currency: req.Currency,
		Status:   types.PaymentStatusProcessing,
		Provider: providerName,
		Metadata: datatypes.JSONMap{"source": SourceOrderEvent, "status": evt.Status},
	}
	created, err := s.insert(ctx, p)
	if err != nil {
		return err
	}
	if !created {
		log.Infow("order_created_duplicate", "payment_id", p.ID)
		return s.resume(ctx, log, p)
	}

	log.Infow("payment_created", "payment_id", p.ID, "provider", p.Provider, "source", SourceOrderEvent)
	s.metrics.PaymentCreated(string(p.Provider), SourceOrderEvent)
	return s.queue.Enqueue(ctx, jobs.RetryJob{PaymentID: p.ID, Attempt: 1}, 0)
}

type ListQuery struct {
	UserID    string
	OrderID   string
	Status    types.PaymentStatus
	Filters   []*types.PaymentFilter
	From      int
	Size      int
	SortBy    string
	SortOrder string
}

func (s *Service) List(ctx context.Context, q ListQuery) ([]*models.Payment, int64, error) {
	for _, f := range q.Filters {
		if f == nil {
			continue
		}
		if err := f.Validate(); err != nil {
			return nil, 0, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
	}
	q.Filters = lo.Compact(q.Filters)
	return s.repo.ListPayments(ctx, repository.ListPaymentsQuery(q))
}

func (s *Service) Get(ctx context.Context, id string) (*models.Payment, error) {
	p, err := s.repo.GetPayment(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p, err
}

// Count returns the number of stored payments.
func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.repo.CountPayments(ctx)
}
