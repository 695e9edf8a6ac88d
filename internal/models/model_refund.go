package models

import (
	"time"

	"github.com/fatflowers/payment-engine/pkg/types"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Refund is one provider refund issued against a captured payment.
type Refund struct {
	ID              string             `gorm:"column:id;primary_key;type:uuid" json:"id"`
	PaymentID       string             `gorm:"column:payment_id;type:uuid;not null;index:idx_refund_payment_id" json:"paymentId"`
	Payment         *Payment           `gorm:"foreignKey:PaymentID;constraint:OnDelete:CASCADE" json:"-"`
	Amount          decimal.Decimal    `gorm:"column:amount;type:numeric(14,2);not null" json:"amount"`
	Currency        string             `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	Status          types.RefundStatus `gorm:"column:status;type:varchar(32);not null;default:initiated" json:"status"`
	Reason          *string            `gorm:"column:reason;type:text" json:"reason"`
	GatewayRefundID *string            `gorm:"column:gateway_refund_id;type:varchar(128)" json:"gatewayRefundId"`
	Metadata        datatypes.JSONMap  `gorm:"column:metadata;type:jsonb" json:"metadata"`
	CreatedAt       time.Time          `json:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt"`
}

func (Refund) TableName() string { return "payment_refund" }
