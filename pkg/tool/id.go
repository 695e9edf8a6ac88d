package tool

import "github.com/google/uuid"

// NewID returns a time-ordered identifier for payments, refunds and event rows.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// IsID reports whether s can be a record id. Postgres rejects malformed uuids
// with an error, so callers treat anything else as not found.
func IsID(s string) bool {
	return uuid.Validate(s) == nil
}
