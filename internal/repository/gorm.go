package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fatflowers/payment-engine/internal/models"
	"github.com/fatflowers/payment-engine/pkg/tool"
	"github.com/fatflowers/payment-engine/pkg/types"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const pgUniqueViolation = "23505"

type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository { return &GormRepository{db: db} }

var Module = fx.Options(
	fx.Provide(
		NewGormRepository,
		func(r *GormRepository) PaymentRepository { return r },
	),
)

// IsUniqueViolation reports whether err came from a unique constraint.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func (r *GormRepository) CreatePayment(ctx context.Context, p *models.Payment) error {
	if p.ID == "" {
		p.ID = tool.NewID()
	}
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateOrder, p.OrderID)
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (r *GormRepository) findOne(ctx context.Context, query string, arg any) (*models.Payment, error) {
	var p models.Payment
	err := r.db.WithContext(ctx).Where(query, arg).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	return &p, nil
}

func (r *GormRepository) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	if !tool.IsID(id) {
		return nil, ErrNotFound
	}
	return r.findOne(ctx, "id = ?", id)
}

func (r *GormRepository) FindByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	return r.findOne(ctx, "order_id = ?", orderID)
}

func (r *GormRepository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Payment, error) {
	return r.findOne(ctx, "gateway_order_id = ?", gatewayOrderID)
}

func (r *GormRepository) FindByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*models.Payment, error) {
	return r.findOne(ctx, "gateway_payment_id = ?", gatewayPaymentID)
}

// filtersAnd joins a list of filters into a single clause.Expression.
type filtersAnd struct{ filters []*types.PaymentFilter }

func (w filtersAnd) Build(builder clause.Builder) {
	if len(w.filters) == 0 {
		builder.WriteString("1=1")
		return
	}
	for i, f := range w.filters {
		if i > 0 {
			builder.WriteString(" AND ")
		}
		f.Build(builder)
	}
}

var sortablePaymentColumns = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"amount":     true,
	"status":     true,
}

func (r *GormRepository) ListPayments(ctx context.Context, q ListPaymentsQuery) ([]*models.Payment, int64, error) {
	if q.Size <= 0 {
		q.Size = 50
	}
	if q.From < 0 {
		q.From = 0
	}

	tx := r.db.WithContext(ctx).Model(&models.Payment{})
	if q.UserID != "" {
		tx = tx.Where("user_id = ?", q.UserID)
	}
	if q.OrderID != "" {
		tx = tx.Where("order_id = ?", q.OrderID)
	}
	if q.Status != "" {
		tx = tx.Where("status = ?", q.Status)
	}
	if len(q.Filters) > 0 {
		tx = tx.Where(clause.Where{Exprs: []clause.Expression{filtersAnd{filters: q.Filters}}})
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count payments: %w", err)
	}

	sortBy := "created_at"
	if sortablePaymentColumns[q.SortBy] {
		sortBy = q.SortBy
	}
	var rows []*models.Payment
	err := tx.Order(clause.OrderByColumn{Column: clause.Column{Name: sortBy}, Desc: q.SortOrder != "asc"}).
		Limit(q.Size).
		Offset(q.From).
		Find(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list payments: %w", err)
	}
	return rows, total, nil
}

func (r *GormRepository) CountPayments(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Payment{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count payments: %w", err)
	}
	return n, nil
}

func (r *GormRepository) TransitionPayment(ctx context.Context, id string, from []types.PaymentStatus, upd models.PaymentUpdate) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("transition for payment %s without source states", id)
	}
	updates, err := transitionColumns(upd)
	if err != nil {
		return false, err
	}
	res := r.transition(ctx, id, from, updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to transition payment %s: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// transition is a single conditional UPDATE, so concurrent writers cannot both
// move the payment out of a source state.
func (r *GormRepository) transition(ctx context.Context, id string, from []types.PaymentStatus, updates map[string]any) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
}

func transitionColumns(upd models.PaymentUpdate) (map[string]any, error) {
	updates := map[string]any{
		"status":     upd.Status,
		"updated_at": time.Now(),
	}
	if upd.GatewayOrderID != nil {
		updates["gateway_order_id"] = *upd.GatewayOrderID
	}
	if upd.GatewayPaymentID != nil {
		updates["gateway_payment_id"] = *upd.GatewayPaymentID
	}
	if upd.SetFailureReason {
		if upd.FailureReason == nil {
			updates["failure_reason"] = nil
		} else {
			updates["failure_reason"] = *upd.FailureReason
		}
	}
	if len(upd.Metadata) > 0 {
		raw, err := json.Marshal(upd.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode metadata: %w", err)
		}
		updates["metadata"] = gorm.Expr("COALESCE(metadata, '{}'::jsonb) || ?::jsonb", string(raw))
	}
	return updates, nil
}

func (r *GormRepository) AppendEvent(ctx context.Context, e *models.ProviderEventLog) error {
	if e.ID == "" {
		e.ID = tool.NewID()
	}
	if err := r.db.WithContext(ctx).Create(e).Error; err != nil {
		return fmt.Errorf("failed to append provider event: %w", err)
	}
	return nil
}

func (r *GormRepository) ListEvents(ctx context.Context, paymentID string) ([]*models.ProviderEventLog, error) {
	var rows []*models.ProviderEventLog
	if err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list provider events: %w", err)
	}
	return rows, nil
}

func (r *GormRepository) CreateRefund(ctx context.Context, refund *models.Refund) error {
	if refund.ID == "" {
		refund.ID = tool.NewID()
	}
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(refund).Error; err != nil {
		return fmt.Errorf("failed to create refund: %w", err)
	}
	return nil
}

func (r *GormRepository) ListRefunds(ctx context.Context, paymentID string) ([]*models.Refund, error) {
	var rows []*models.Refund
	if err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list refunds: %w", err)
	}
	return rows, nil
}
