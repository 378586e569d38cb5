// Package domain contains the booking aggregate, the authoritative status
// transition table, and the price breakdown computation.
package domain

import (
	"errors"
	"time"

	"tourmarket/internal/common/money"
)

// Booking represents a reservation of a tour for a date range and party
// size. Bookings are never deleted; cancellations and refunds are
// recorded as transitions so the audit trail stays intact.
type Booking struct {
	ID      string `json:"id"`
	TourID  string `json:"tour_id"`
	BuyerID string `json:"buyer_id"`
	AgentID string `json:"agent_id"`

	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`

	Adults   int       `json:"adults"`
	Children int       `json:"children"`
	Nights   int       `json:"nights"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`

	// Immutable after creation.
	Price     Breakdown `json:"price"`
	PromoCode string    `json:"promo_code,omitempty"`

	// Written exactly once, at settlement.
	AgentEarnings      *money.Money `json:"agent_earnings,omitempty"`
	PlatformCommission *money.Money `json:"platform_commission,omitempty"`
	SettledAt          *time.Time   `json:"settled_at,omitempty"`

	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewBooking creates a booking in PENDING with its price breakdown fixed
func NewBooking(id, tourID, buyerID, agentID string, sel PriceSelection, price Breakdown, startsAt, endsAt time.Time) (*Booking, error) {
	if id == "" {
		return nil, errors.New("id is required")
	}
	if tourID == "" {
		return nil, errors.New("tour_id is required")
	}
	if buyerID == "" {
		return nil, errors.New("buyer_id is required")
	}
	if agentID == "" {
		return nil, errors.New("agent_id is required")
	}
	if !price.TotalAmount.IsPositive() {
		return nil, errors.New("total amount must be positive")
	}
	if endsAt.Before(startsAt) {
		return nil, errors.New("end date before start date")
	}

	now := time.Now().UTC()
	return &Booking{
		ID:            id,
		TourID:        tourID,
		BuyerID:       buyerID,
		AgentID:       agentID,
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		Adults:        sel.Adults,
		Children:      sel.Children,
		Nights:        sel.Nights,
		StartsAt:      startsAt,
		EndsAt:        endsAt,
		Price:         price,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// TransitionTo applies a status change after validating it against the
// transition table.
func (b *Booking) TransitionTo(to Status) error {
	if err := Transition(b.Status, to); err != nil {
		return err
	}
	b.Status = to
	b.UpdatedAt = time.Now().UTC()
	return nil
}

// Cancel transitions into CANCELLED, recording the reason and timestamp.
// This is the only self-service transition a buyer or agent may request.
func (b *Booking) Cancel(reason string) error {
	if err := Transition(b.Status, StatusCancelled); err != nil {
		return err
	}
	now := time.Now().UTC()
	b.Status = StatusCancelled
	b.CancelledAt = &now
	b.CancellationReason = reason
	b.UpdatedAt = now
	return nil
}

// Settle records the settlement outcome on the booking. The caller (the
// settlement engine) is responsible for the exactly-once guard; this
// method only enforces local invariants.
func (b *Booking) Settle(earnings, commission money.Money, at time.Time) error {
	if b.PaymentStatus == PaymentCompleted {
		return errors.New("booking already settled")
	}
	total, err := earnings.Add(commission)
	if err != nil {
		return err
	}
	if !total.Equal(b.Price.TotalAmount) {
		return errors.New("earnings and commission do not sum to total amount")
	}

	b.PaymentStatus = PaymentCompleted
	b.AgentEarnings = &earnings
	b.PlatformCommission = &commission
	b.SettledAt = &at
	if b.Status == StatusPending || b.Status == StatusConfirmed {
		b.Status = StatusPaid
	}
	b.UpdatedAt = time.Now().UTC()
	return nil
}
