// Package events defines the domain event envelope and the event types
// published to NATS after financial state transitions commit. Publication
// is fire-and-forget: the notification relay and reporting consumers live
// outside this service, and a publish failure never rolls back state.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// Event represents a domain event envelope
type Event struct {
	ID            string          `json:"event_id"`
	Type          string          `json:"type"`
	Version       int             `json:"version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event
func NewEvent(eventType, aggregateType, aggregateID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            ulid.Make().String(),
		Type:          eventType,
		Version:       1,
		OccurredAt:    time.Now().UTC(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Data:          dataBytes,
	}, nil
}

// WithCorrelation adds a correlation ID
func (e *Event) WithCorrelation(correlationID string) *Event {
	e.CorrelationID = correlationID
	return e
}

// DecodeData decodes the event data into a struct
func (e *Event) DecodeData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Publisher publishes events to a message broker
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
}

// NopPublisher discards events; used in tests and when NATS is disabled.
type NopPublisher struct{}

// Publish implements Publisher
func (NopPublisher) Publish(ctx context.Context, event *Event) error { return nil }

// Event types
const (
	// Booking lifecycle
	EventBookingCreated       = "booking.created"
	EventBookingStatusChanged = "booking.status_changed"
	EventBookingCancelled     = "booking.cancelled"

	// Payment and settlement
	EventPaymentInitiated = "payment.initiated"
	EventPaymentCompleted = "payment.completed"
	EventPaymentFailed    = "payment.failed"
	EventPaymentMismatch  = "payment.mismatch"

	// Promo codes
	EventPromoApplied = "promo.applied"

	// Withdrawals
	EventWithdrawalRequested = "withdrawal.requested"
	EventWithdrawalApproved  = "withdrawal.approved"
	EventWithdrawalProcessed = "withdrawal.processed"
	EventWithdrawalRejected  = "withdrawal.rejected"
)

// BookingCreatedData is the data for booking.created events
type BookingCreatedData struct {
	BookingID   string `json:"booking_id"`
	TourID      string `json:"tour_id"`
	BuyerID     string `json:"buyer_id"`
	AgentID     string `json:"agent_id"`
	TotalAmount int64  `json:"total_amount"`
	Currency    string `json:"currency"`
	PromoCode   string `json:"promo_code,omitempty"`
}

// BookingStatusChangedData is the data for booking.status_changed events
type BookingStatusChangedData struct {
	BookingID string `json:"booking_id"`
	From      string `json:"from"`
	To        string `json:"to"`
	ActorID   string `json:"actor_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// PaymentCompletedData is the data for payment.completed events
type PaymentCompletedData struct {
	BookingID          string    `json:"booking_id"`
	PaymentID          string    `json:"payment_id"`
	ExternalRef        string    `json:"external_ref"`
	Amount             int64     `json:"amount"`
	Currency           string    `json:"currency"`
	AgentID            string    `json:"agent_id"`
	AgentEarnings      int64     `json:"agent_earnings"`
	PlatformCommission int64     `json:"platform_commission"`
	CommissionBps      int64     `json:"commission_bps"`
	SettledAt          time.Time `json:"settled_at"`
}

// PaymentMismatchData records settlement discrepancies for manual review.
// These must never fail silently.
type PaymentMismatchData struct {
	BookingID      string    `json:"booking_id"`
	ExternalRef    string    `json:"external_ref"`
	ExpectedAmount int64     `json:"expected_amount"`
	ReceivedAmount int64     `json:"received_amount"`
	Currency       string    `json:"currency"`
	Kind           string    `json:"kind"` // amount, terminal_state
	DetectedAt     time.Time `json:"detected_at"`
}

// PromoAppliedData is the data for promo.applied events
type PromoAppliedData struct {
	Code           string `json:"code"`
	BookingID      string `json:"booking_id"`
	BuyerID        string `json:"buyer_id"`
	DiscountAmount int64  `json:"discount_amount"`
	Currency       string `json:"currency"`
}

// WithdrawalData is the shared payload for withdrawal lifecycle events
type WithdrawalData struct {
	WithdrawalID   string `json:"withdrawal_id"`
	AgentID        string `json:"agent_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Status         string `json:"status"`
	ProcessedBy    string `json:"processed_by,omitempty"`
	TransactionRef string `json:"transaction_ref,omitempty"`
	Reason         string `json:"reason,omitempty"`
}
