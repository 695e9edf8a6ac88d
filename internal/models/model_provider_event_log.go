package models

import (
	"time"

	"github.com/fatflowers/payment-engine/pkg/types"
	"gorm.io/datatypes"
)

// ProviderEventLog is the append-only audit trail of every provider interaction,
// outbound calls and inbound webhooks alike.
type ProviderEventLog struct {
	ID        string                `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Provider  types.PaymentProvider `gorm:"column:provider;type:varchar(32);not null" json:"provider"`
	EventType string                `gorm:"column:event_type;type:varchar(128);not null" json:"eventType"`
	PaymentID *string               `gorm:"column:payment_id;type:uuid;index:idx_provider_event_payment_id" json:"paymentId"`
	OrderID   *string               `gorm:"column:order_id;type:varchar(64)" json:"orderId"`
	// EventID is the provider's delivery id for webhooks.
	EventID   *string        `gorm:"column:event_id;type:varchar(128);index:idx_provider_event_event_id" json:"eventId"`
	TraceID   string         `gorm:"column:trace_id;type:varchar(128)" json:"traceId"`
	Payload   datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`
	CreatedAt time.Time      `json:"createdAt"`
}

func (ProviderEventLog) TableName() string { return "provider_event_log" }
