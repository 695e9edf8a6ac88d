package payment

import "errors"

var (
	ErrInvalidRequest      = errors.New("invalid payment request")
	ErrNotFound            = errors.New("payment not found")
	ErrOrderNotFound       = errors.New("order not found")
	ErrOrderForbidden      = errors.New("order not accessible by user")
	ErrConflict            = errors.New("payment for order belongs to another user")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)
