package types

import "strings"

type PaymentProvider string

const (
	PaymentProviderRazorpay PaymentProvider = "razorpay"
	PaymentProviderStripe   PaymentProvider = "stripe"
)

// ParsePaymentProvider normalises a provider name. ok is false for unknown providers.
func ParsePaymentProvider(s string) (PaymentProvider, bool) {
	p := PaymentProvider(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case PaymentProviderRazorpay, PaymentProviderStripe:
		return p, true
	}
	return p, false
}

type PaymentStatus string

const (
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusSucceeded  PaymentStatus = "succeeded"
	PaymentStatusFailed     PaymentStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusSucceeded || s == PaymentStatusFailed
}

// OpenPaymentStatuses are the states a payment may still leave.
var OpenPaymentStatuses = []PaymentStatus{PaymentStatusProcessing, PaymentStatusPending}

type RefundStatus string

const (
	RefundStatusInitiated  RefundStatus = "initiated"
	RefundStatusProcessing RefundStatus = "processing"
	RefundStatusCompleted  RefundStatus = "completed"
	RefundStatusFailed     RefundStatus = "failed"
)
