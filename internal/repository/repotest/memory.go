// Package repotest provides an in-memory PaymentRepository for service tests.
package repotest

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/fatflowers/payment-engine/internal/models"
	"github.com/fatflowers/payment-engine/internal/repository"
	"github.com/fatflowers/payment-engine/pkg/tool"
	"github.com/fatflowers/payment-engine/pkg/types"

	"github.com/samber/lo"
	"gorm.io/datatypes"
)

type Memory struct {
	mu       sync.Mutex
	payments map[string]*models.Payment
	refunds  []*models.Refund
	events   []*models.ProviderEventLog

	// AfterFindByOrderID runs after an order lookup, outside the lock. Tests use it to
	// hold concurrent creators between their existence check and their insert.
	AfterFindByOrderID func(orderID string)
	// FailCreate, when set, is returned by CreatePayment.
	FailCreate error
}

var _ repository.PaymentRepository = (*Memory)(nil)

func New() *Memory {
	return &Memory{payments: map[string]*models.Payment{}}
}

func clonePayment(p *models.Payment) *models.Payment {
	cp := *p
	if p.Metadata != nil {
		cp.Metadata = datatypes.JSONMap(maps.Clone(map[string]any(p.Metadata)))
	}
	return &cp
}

// Put stores p as-is, bypassing uniqueness checks.
func (m *Memory) Put(p *models.Payment) *models.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = tool.NewID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	m.payments[p.ID] = clonePayment(p)
	return p
}

func (m *Memory) CreatePayment(_ context.Context, p *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCreate != nil {
		return m.FailCreate
	}
	for _, existing := range m.payments {
		if existing.OrderID == p.OrderID {
			return fmt.Errorf("%w: %s", repository.ErrDuplicateOrder, p.OrderID)
		}
	}
	if p.ID == "" {
		p.ID = tool.NewID()
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	m.payments[p.ID] = clonePayment(p)
	return nil
}

func (m *Memory) find(match func(*models.Payment) bool) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if match(p) {
			return clonePayment(p), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *Memory) GetPayment(_ context.Context, id string) (*models.Payment, error) {
	return m.find(func(p *models.Payment) bool { return p.ID == id })
}

func (m *Memory) FindByOrderID(_ context.Context, orderID string) (*models.Payment, error) {
	p, err := m.find(func(p *models.Payment) bool { return p.OrderID == orderID })
	if m.AfterFindByOrderID != nil {
		m.AfterFindByOrderID(orderID)
	}
	return p, err
}

func (m *Memory) FindByGatewayOrderID(_ context.Context, id string) (*models.Payment, error) {
	return m.find(func(p *models.Payment) bool { return lo.FromPtr(p.GatewayOrderID) == id })
}

func (m *Memory) FindByGatewayPaymentID(_ context.Context, id string) (*models.Payment, error) {
	return m.find(func(p *models.Payment) bool { return lo.FromPtr(p.GatewayPaymentID) == id })
}

// ListPayments honours UserID, OrderID, Status and paging. Filters are not evaluated.
func (m *Memory) ListPayments(_ context.Context, q repository.ListPaymentsQuery) ([]*models.Payment, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Payment
	for _, p := range m.payments {
		if q.UserID != "" && p.UserID != q.UserID {
			continue
		}
		if q.OrderID != "" && p.OrderID != q.OrderID {
			continue
		}
		if q.Status != "" && p.Status != q.Status {
			continue
		}
		out = append(out, clonePayment(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := int64(len(out))
	if q.From > 0 {
		out = out[min(q.From, len(out)):]
	}
	if q.Size > 0 && len(out) > q.Size {
		out = out[:q.Size]
	}
	return out, total, nil
}

func (m *Memory) CountPayments(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.payments)), nil
}

func (m *Memory) TransitionPayment(_ context.Context, id string, from []types.PaymentStatus, upd models.PaymentUpdate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok || !slices.Contains(from, p.Status) {
		return false, nil
	}
	p.Status = upd.Status
	if upd.GatewayOrderID != nil {
		p.GatewayOrderID = lo.ToPtr(*upd.GatewayOrderID)
	}
	if upd.GatewayPaymentID != nil {
		p.GatewayPaymentID = lo.ToPtr(*upd.GatewayPaymentID)
	}
	if upd.SetFailureReason {
		p.FailureReason = nil
		if upd.FailureReason != nil {
			p.FailureReason = lo.ToPtr(*upd.FailureReason)
		}
	}
	if len(upd.Metadata) > 0 {
		if p.Metadata == nil {
			p.Metadata = datatypes.JSONMap{}
		}
		maps.Copy(p.Metadata, upd.Metadata)
	}
	p.UpdatedAt = time.Now()
	return true, nil
}

func (m *Memory) AppendEvent(_ context.Context, e *models.ProviderEventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == "" {
		e.ID = tool.NewID()
	}
	e.CreatedAt = time.Now()
	cp := *e
	m.events = append(m.events, &cp)
	return nil
}

func (m *Memory) ListEvents(_ context.Context, paymentID string) ([]*models.ProviderEventLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lo.Filter(m.events, func(e *models.ProviderEventLog, _ int) bool {
		return lo.FromPtr(e.PaymentID) == paymentID
	}), nil
}

// Events returns every appended provider event in insertion order.
func (m *Memory) Events() []*models.ProviderEventLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.events)
}

// EventsOfType returns appended events with the given type.
func (m *Memory) EventsOfType(eventType string) []*models.ProviderEventLog {
	return lo.Filter(m.Events(), func(e *models.ProviderEventLog, _ int) bool { return e.EventType == eventType })
}

func (m *Memory) CreateRefund(_ context.Context, r *models.Refund) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payments[r.PaymentID]; !ok {
		return fmt.Errorf("refund references unknown payment %s", r.PaymentID)
	}
	if r.ID == "" {
		r.ID = tool.NewID()
	}
	now := time.Now()
	r.CreatedAt, r.UpdatedAt = now, now
	cp := *r
	m.refunds = append(m.refunds, &cp)
	return nil
}

func (m *Memory) ListRefunds(_ context.Context, paymentID string) ([]*models.Refund, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lo.Filter(m.refunds, func(r *models.Refund, _ int) bool { return r.PaymentID == paymentID }), nil
}

// PaymentCount returns the number of stored payments.
func (m *Memory) PaymentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.payments)
}
