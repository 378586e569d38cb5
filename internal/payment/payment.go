// Package payment implements payment initiation, gateway routing, and the
// settlement engine that splits completed payments into agent earnings and
// platform commission.
package payment

import (
	"time"

	"tourmarket/internal/common/money"
)

// Status is the lifecycle status of a payment attempt
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusAbandoned Status = "ABANDONED"
)

// Payment is one attempt to pay for a booking. A booking can accumulate
// failed and abandoned attempts but at most one completed one.
type Payment struct {
	ID        string      `json:"id"`
	BookingID string      `json:"booking_id"`
	Gateway   Gateway     `json:"gateway"`
	Method    Method      `json:"method"`
	Amount    money.Money `json:"amount"`
	Status    Status      `json:"status"`

	// ExternalRef is the gateway's transaction reference, set when the
	// gateway reports an outcome.
	ExternalRef string `json:"external_ref,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
