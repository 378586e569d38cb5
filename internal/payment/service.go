package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"tourmarket/internal/agent"
	"tourmarket/internal/booking/domain"
	"tourmarket/internal/common/events"
	"tourmarket/internal/common/middleware"
	"tourmarket/internal/common/money"
)

// Service errors
var (
	ErrBookingNotFound = errors.New("booking not found")
	ErrNotPayable      = errors.New("booking cannot accept payment")
	ErrTerminalState   = errors.New("booking is cancelled or refunded")
	ErrAmountMismatch  = errors.New("paid amount does not match booking total")
)

// Store persists payments and applies settlement to bookings
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetBooking(ctx context.Context, id string) (*domain.Booking, error)
	// MarkSettled writes the settlement outcome with a guard on the
	// current payment status. It reports false when the booking was
	// already settled, without touching the row.
	MarkSettled(ctx context.Context, b *domain.Booking) (bool, error)
	CreatePayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, id string) (*Payment, error)
	GetPendingPayment(ctx context.Context, bookingID string) (*Payment, error)
	// UpdatePaymentOutcome closes the booking's pending attempt and
	// reports whether one existed.
	UpdatePaymentOutcome(ctx context.Context, bookingID string, status Status, externalRef string, at time.Time) (bool, error)
}

// Service provides payment initiation and settlement
type Service struct {
	store     Store
	agents    agent.Store
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a new payment service
func NewService(store Store, agents agent.Store, publisher events.Publisher, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		agents:    agents,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// InitiateRequest asks for a payment attempt against a booking
type InitiateRequest struct {
	BookingID string `json:"booking_id" validate:"required"`
	Method    Method `json:"method" validate:"required,oneof=MOBILE_MONEY CARD BANK_TRANSFER"`
}

// Initiate routes a booking to a gateway and opens a payment attempt. When
// an attempt for the booking is already pending it is returned as-is, so
// retrying buyers do not stack up duplicate attempts.
func (s *Service) Initiate(ctx context.Context, req InitiateRequest) (*Payment, error) {
	b, err := s.store.GetBooking(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}
	if b.Status.IsTerminal() {
		return nil, ErrTerminalState
	}
	if b.PaymentStatus == domain.PaymentCompleted {
		return nil, fmt.Errorf("%w: already paid", ErrNotPayable)
	}

	gateway, err := Route(b.Price.TotalAmount.Currency, req.Method)
	if err != nil {
		return nil, err
	}

	if existing, err := s.store.GetPendingPayment(ctx, b.ID); err == nil && existing != nil {
		if existing.Gateway == gateway {
			return existing, nil
		}
		// Switching gateways abandons the previous attempt.
		if _, err := s.store.UpdatePaymentOutcome(ctx, b.ID, StatusAbandoned, "", s.now()); err != nil {
			return nil, fmt.Errorf("abandoning stale payment: %w", err)
		}
	}

	now := s.now()
	p := &Payment{
		ID:        ulid.Make().String(),
		BookingID: b.ID,
		Gateway:   gateway,
		Method:    req.Method,
		Amount:    b.Price.TotalAmount,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreatePayment(ctx, p); err != nil {
		return nil, err
	}

	s.publish(ctx, events.EventPaymentInitiated, b.ID, map[string]interface{}{
		"booking_id": b.ID,
		"payment_id": p.ID,
		"gateway":    string(gateway),
		"method":     string(req.Method),
		"amount":     p.Amount.AmountMinor,
		"currency":   string(p.Amount.Currency),
	})

	s.logger.Info("payment initiated",
		"booking_id", b.ID,
		"payment_id", p.ID,
		"gateway", gateway,
		"amount", p.Amount.AmountMinor,
	)
	return p, nil
}

// SettleRequest is a gateway's report of a completed payment
type SettleRequest struct {
	BookingID   string
	ExternalRef string
	Amount      money.Money
}

// SettleResult reports the settlement outcome
type SettleResult struct {
	Booking        *domain.Booking
	AlreadySettled bool
	CommissionBps  int64
}

// Settle applies a completed payment to a booking exactly once: it splits
// the total into agent earnings and platform commission at the agent's
// effective rate and moves the booking to PAID. A repeat notification for
// an already-settled booking succeeds without changing anything. An amount
// mismatch or a payment against a cancelled or refunded booking is
// recorded as a mismatch event and rejected.
func (s *Service) Settle(ctx context.Context, req SettleRequest) (*SettleResult, error) {
	b, err := s.store.GetBooking(ctx, req.BookingID)
	if err != nil {
		return nil, ErrBookingNotFound
	}

	if b.Status == domain.StatusCancelled || b.Status == domain.StatusRefunded {
		s.publishMismatch(ctx, b, req, "terminal_state")
		return nil, ErrTerminalState
	}
	if b.PaymentStatus == domain.PaymentCompleted {
		return &SettleResult{Booking: b, AlreadySettled: true}, nil
	}
	if !req.Amount.Equal(b.Price.TotalAmount) {
		s.publishMismatch(ctx, b, req, "amount")
		return nil, fmt.Errorf("%w: expected %s, got %s",
			ErrAmountMismatch, b.Price.TotalAmount, req.Amount)
	}

	// The commission rate is resolved against the agent's volume before
	// this settlement; the booking being settled does not count toward
	// its own tier.
	ag, err := s.agents.GetAgent(ctx, b.AgentID)
	if err != nil {
		return nil, fmt.Errorf("loading agent: %w", err)
	}
	tiers, err := s.agents.ListCommissionTiers(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading commission tiers: %w", err)
	}
	stats, err := s.agents.GetLifetimeStats(ctx, b.AgentID)
	if err != nil {
		return nil, fmt.Errorf("loading agent stats: %w", err)
	}

	rateBps := agent.EffectiveCommissionBps(ag, tiers, stats)
	total := b.Price.TotalAmount
	commission := total.Percentage(rateBps)
	// Earnings are the remainder so the two always sum to the total.
	earnings := total.MustSub(commission)

	settledAt := s.now()
	alreadySettled := false
	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		if err := b.Settle(earnings, commission, settledAt); err != nil {
			return err
		}
		applied, err := s.store.MarkSettled(ctx, b)
		if err != nil {
			return err
		}
		if !applied {
			alreadySettled = true
			return nil
		}
		closed, err := s.store.UpdatePaymentOutcome(ctx, b.ID, StatusCompleted, req.ExternalRef, settledAt)
		if err != nil {
			return err
		}
		if !closed {
			// The gateway confirmed a payment with no open attempt, e.g.
			// a confirmation arriving without Initiate or after a failed
			// callback closed the attempt. The completed payment still
			// gets a record.
			completedAt := settledAt
			return s.store.CreatePayment(ctx, &Payment{
				ID:          ulid.Make().String(),
				BookingID:   b.ID,
				Gateway:     GatewayExternal,
				Method:      MethodUnknown,
				Amount:      total,
				Status:      StatusCompleted,
				ExternalRef: req.ExternalRef,
				CreatedAt:   settledAt,
				UpdatedAt:   settledAt,
				CompletedAt: &completedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if alreadySettled {
		fresh, err := s.store.GetBooking(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		return &SettleResult{Booking: fresh, AlreadySettled: true}, nil
	}

	s.publish(ctx, events.EventPaymentCompleted, b.ID, events.PaymentCompletedData{
		BookingID:          b.ID,
		ExternalRef:        req.ExternalRef,
		Amount:             total.AmountMinor,
		Currency:           string(total.Currency),
		AgentID:            b.AgentID,
		AgentEarnings:      earnings.AmountMinor,
		PlatformCommission: commission.AmountMinor,
		CommissionBps:      rateBps,
		SettledAt:          settledAt,
	})

	s.logger.Info("payment settled",
		"booking_id", b.ID,
		"external_ref", req.ExternalRef,
		"amount", total.AmountMinor,
		"agent_earnings", earnings.AmountMinor,
		"platform_commission", commission.AmountMinor,
		"commission_bps", rateBps,
	)

	return &SettleResult{Booking: b, CommissionBps: rateBps}, nil
}

// Fail records a failed payment attempt reported by a gateway. The booking
// stays payable; the buyer can retry.
func (s *Service) Fail(ctx context.Context, bookingID, externalRef string) error {
	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return ErrBookingNotFound
	}

	// A failure with no open attempt needs no record; the booking stays
	// payable either way.
	if _, err := s.store.UpdatePaymentOutcome(ctx, b.ID, StatusFailed, externalRef, s.now()); err != nil {
		return err
	}

	s.publish(ctx, events.EventPaymentFailed, b.ID, map[string]interface{}{
		"booking_id":   b.ID,
		"external_ref": externalRef,
	})

	s.logger.Warn("payment failed", "booking_id", b.ID, "external_ref", externalRef)
	return nil
}

func (s *Service) publishMismatch(ctx context.Context, b *domain.Booking, req SettleRequest, kind string) {
	s.publish(ctx, events.EventPaymentMismatch, b.ID, events.PaymentMismatchData{
		BookingID:      b.ID,
		ExternalRef:    req.ExternalRef,
		ExpectedAmount: b.Price.TotalAmount.AmountMinor,
		ReceivedAmount: req.Amount.AmountMinor,
		Currency:       string(b.Price.TotalAmount.Currency),
		Kind:           kind,
		DetectedAt:     s.now(),
	})
	s.logger.Error("settlement mismatch",
		"booking_id", b.ID,
		"kind", kind,
		"expected", b.Price.TotalAmount.AmountMinor,
		"received", req.Amount.AmountMinor,
		"external_ref", req.ExternalRef,
	)
}

func (s *Service) publish(ctx context.Context, eventType, aggregateID string, data interface{}) {
	event, err := events.NewEvent(eventType, "booking", aggregateID, data)
	if err != nil {
		s.logger.Error("failed to build event", "type", eventType, "error", err)
		return
	}
	event.WithCorrelation(middleware.GetCorrelationID(ctx))
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish event", "type", eventType, "error", err)
	}
}
