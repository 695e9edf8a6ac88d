package models

import (
	"time"

	"github.com/fatflowers/payment-engine/pkg/types"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Payment is the single charge attempt series for one order.
type Payment struct {
	ID      string `gorm:"column:id;primary_key;type:uuid" json:"id"`
	OrderID string `gorm:"column:order_id;type:varchar(64);not null;uniqueIndex:uniq_payment_order_id,where:deleted_at IS NULL" json:"orderId"`
	UserID  string `gorm:"column:user_id;type:varchar(64);not null;index:idx_payment_user_id" json:"userId"`
	// Amount is in major units of Currency.
	Amount   decimal.Decimal       `gorm:"column:amount;type:numeric(14,2);not null" json:"amount"`
	Currency string                `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	Status   types.PaymentStatus   `gorm:"column:status;type:varchar(32);not null;index:idx_payment_status" json:"status"`
	Provider types.PaymentProvider `gorm:"column:provider;type:varchar(32);not null" json:"provider"`
	// GatewayOrderID is set once the provider accepts the charge request (order or intent id).
	GatewayOrderID *string `gorm:"column:gateway_order_id;type:varchar(128);index:idx_payment_gateway_order_id" json:"gatewayOrderId"`
	// GatewayPaymentID is set once the provider confirms capture.
	GatewayPaymentID *string           `gorm:"column:gateway_payment_id;type:varchar(128);index:idx_payment_gateway_payment_id" json:"gatewayPaymentId"`
	FailureReason    *string           `gorm:"column:failure_reason;type:text" json:"failureReason"`
	Metadata         datatypes.JSONMap `gorm:"column:metadata;type:jsonb" json:"metadata"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
	DeletedAt        gorm.DeletedAt    `gorm:"index" json:"-"`
}

func (Payment) TableName() string { return "payment" }

func (p *Payment) IsTerminal() bool {
	return p != nil && p.Status.IsTerminal()
}

// HasGatewayOrder reports whether the provider already accepted a charge request.
func (p *Payment) HasGatewayOrder() bool {
	return p != nil && p.GatewayOrderID != nil && *p.GatewayOrderID != ""
}

// PaymentUpdate lists the columns a status transition may write. Nil fields are left untouched.
type PaymentUpdate struct {
	Status           types.PaymentStatus
	GatewayOrderID   *string
	GatewayPaymentID *string
	// FailureReason is written when SetFailureReason is true; nil clears it.
	FailureReason    *string
	SetFailureReason bool
	Metadata         map[string]any
}
