// Package booking implements the booking lifecycle: creation with a fixed
// price breakdown, and status transitions driven by the domain transition
// table.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"tourmarket/internal/booking/domain"
	"tourmarket/internal/catalog"
	"tourmarket/internal/common/database"
	"tourmarket/internal/common/events"
	"tourmarket/internal/common/middleware"
	"tourmarket/internal/common/money"
	"tourmarket/internal/promo"
)

// Service errors
var (
	ErrTourNotFound   = errors.New("tour not found")
	ErrTourInactive   = errors.New("tour is not open for booking")
	ErrPromoRejected  = errors.New("promo code not applicable")
	ErrNotPermitted   = errors.New("actor may not perform this transition")
	ErrBookingChanged = errors.New("booking was modified concurrently, retry")
)

// Store persists bookings
type Store interface {
	Create(ctx context.Context, b *domain.Booking) error
	Get(ctx context.Context, id string) (*domain.Booking, error)
	UpdateStatus(ctx context.Context, b *domain.Booking, from domain.Status) error
	ListByBuyer(ctx context.Context, buyerID string, limit, offset int) ([]*domain.Booking, int64, error)
	ListByAgent(ctx context.Context, agentID string, limit, offset int) ([]*domain.Booking, int64, error)
}

// PromoService validates promo codes and records usage
type PromoService interface {
	Validate(ctx context.Context, code, tourID string, amount money.Money, userID string) (promo.ValidationResult, error)
	RecordUsage(ctx context.Context, code, bookingID, userID string, discount money.Money) error
}

// Service provides booking operations
type Service struct {
	store     Store
	catalog   catalog.Store
	promo     PromoService
	publisher events.Publisher
	logger    *slog.Logger
}

// NewService creates a new booking service
func NewService(store Store, cat catalog.Store, promoSvc PromoService, publisher events.Publisher, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		catalog:   cat,
		promo:     promoSvc,
		publisher: publisher,
		logger:    logger,
	}
}

// CreateRequest is the request to create a booking
type CreateRequest struct {
	TourID           string    `json:"tour_id" validate:"required"`
	BuyerID          string    `json:"-"`
	Adults           int       `json:"adults" validate:"required,gte=1"`
	Children         int       `json:"children" validate:"gte=0"`
	Nights           int       `json:"nights" validate:"gte=0"`
	StartsAt         time.Time `json:"starts_at" validate:"required"`
	EndsAt           time.Time `json:"ends_at" validate:"required"`
	AccommodationIDs []string  `json:"accommodation_ids"`
	AddonIDs         []string  `json:"addon_ids"`
	PromoCode        string    `json:"promo_code"`
}

// Create prices and persists a new PENDING booking. The price breakdown is
// computed here, once, and never recomputed. Promo usage is recorded at
// this point (not at validation time).
func (s *Service) Create(ctx context.Context, req CreateRequest) (*domain.Booking, error) {
	tour, err := s.catalog.GetTour(ctx, req.TourID)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, ErrTourNotFound
		}
		return nil, fmt.Errorf("loading tour: %w", err)
	}
	if !tour.Active {
		return nil, ErrTourInactive
	}

	sel := domain.PriceSelection{
		Adults:           req.Adults,
		Children:         req.Children,
		Nights:           req.Nights,
		AccommodationIDs: req.AccommodationIDs,
		AddonIDs:         req.AddonIDs,
		Discount:         money.Zero(tour.BasePrice.Currency),
	}

	// Price once without the discount to get the amount the promo code is
	// judged against, then again with the discount applied.
	quote, err := domain.ComputePrice(tour, sel)
	if err != nil {
		return nil, err
	}

	if req.PromoCode != "" {
		subtotal := quote.BaseAmount.
			MustAdd(quote.AccommodationAmount).
			MustAdd(quote.ActivitiesAmount)
		result, err := s.promo.Validate(ctx, req.PromoCode, req.TourID, subtotal, req.BuyerID)
		if err != nil {
			return nil, fmt.Errorf("validating promo code: %w", err)
		}
		if !result.Valid {
			return nil, fmt.Errorf("%w: %s", ErrPromoRejected, result.Message)
		}
		sel.Discount = result.DiscountAmount
		quote, err = domain.ComputePrice(tour, sel)
		if err != nil {
			return nil, err
		}
	}

	id := ulid.Make().String()
	b, err := domain.NewBooking(id, tour.ID, req.BuyerID, tour.AgentID, sel, quote, req.StartsAt, req.EndsAt)
	if err != nil {
		return nil, err
	}
	b.PromoCode = req.PromoCode

	if err := s.store.Create(ctx, b); err != nil {
		return nil, err
	}

	// Usage is append-only and backed by a unique constraint; a failure
	// here is logged for reconciliation, it does not unwind the booking.
	if req.PromoCode != "" {
		if err := s.promo.RecordUsage(ctx, req.PromoCode, b.ID, req.BuyerID, quote.DiscountAmount); err != nil {
			s.logger.Error("failed to record promo usage",
				"booking_id", b.ID,
				"code", req.PromoCode,
				"error", err,
			)
		} else {
			s.publish(ctx, events.EventPromoApplied, b.ID, events.PromoAppliedData{
				Code:           req.PromoCode,
				BookingID:      b.ID,
				BuyerID:        req.BuyerID,
				DiscountAmount: quote.DiscountAmount.AmountMinor,
				Currency:       string(quote.DiscountAmount.Currency),
			})
		}
	}

	s.publish(ctx, events.EventBookingCreated, b.ID, events.BookingCreatedData{
		BookingID:   b.ID,
		TourID:      b.TourID,
		BuyerID:     b.BuyerID,
		AgentID:     b.AgentID,
		TotalAmount: b.Price.TotalAmount.AmountMinor,
		Currency:    string(b.Price.TotalAmount.Currency),
		PromoCode:   b.PromoCode,
	})

	s.logger.Info("booking created",
		"booking_id", b.ID,
		"tour_id", b.TourID,
		"agent_id", b.AgentID,
		"total", b.Price.TotalAmount.AmountMinor,
		"currency", b.Price.TotalAmount.Currency,
	)

	return b, nil
}

// Get retrieves a booking, restricted to its buyer, its agent, or an admin
func (s *Service) Get(ctx context.Context, actor middleware.Actor, id string) (*domain.Booking, error) {
	b, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canRead(actor, b) {
		return nil, ErrNotPermitted
	}
	return b, nil
}

// ListForActor lists bookings owned by the actor
func (s *Service) ListForActor(ctx context.Context, actor middleware.Actor, limit, offset int) ([]*domain.Booking, int64, error) {
	if actor.Role == middleware.RoleAgent {
		return s.store.ListByAgent(ctx, actor.AgentID, limit, offset)
	}
	return s.store.ListByBuyer(ctx, actor.UserID, limit, offset)
}

// Confirm moves PENDING -> CONFIRMED (assigned agent or admin)
func (s *Service) Confirm(ctx context.Context, actor middleware.Actor, id string) (*domain.Booking, error) {
	return s.transition(ctx, actor, id, domain.StatusConfirmed, "")
}

// Start moves into IN_PROGRESS (assigned agent or admin)
func (s *Service) Start(ctx context.Context, actor middleware.Actor, id string) (*domain.Booking, error) {
	return s.transition(ctx, actor, id, domain.StatusInProgress, "")
}

// Complete moves into COMPLETED (assigned agent or admin)
func (s *Service) Complete(ctx context.Context, actor middleware.Actor, id string) (*domain.Booking, error) {
	return s.transition(ctx, actor, id, domain.StatusCompleted, "")
}

// Cancel moves into CANCELLED with a reason. The buyer and the assigned
// agent may cancel their own booking; this is the only self-service
// transition.
func (s *Service) Cancel(ctx context.Context, actor middleware.Actor, id, reason string) (*domain.Booking, error) {
	return s.transition(ctx, actor, id, domain.StatusCancelled, reason)
}

// Refund moves into REFUNDED (admin only)
func (s *Service) Refund(ctx context.Context, actor middleware.Actor, id string) (*domain.Booking, error) {
	if actor.Role != middleware.RoleAdmin {
		return nil, ErrNotPermitted
	}
	return s.transition(ctx, actor, id, domain.StatusRefunded, "")
}

func (s *Service) transition(ctx context.Context, actor middleware.Actor, id string, to domain.Status, reason string) (*domain.Booking, error) {
	b, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !canTransition(actor, b, to) {
		return nil, ErrNotPermitted
	}

	from := b.Status
	if to == domain.StatusCancelled {
		err = b.Cancel(reason)
	} else {
		err = b.TransitionTo(to)
	}
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateStatus(ctx, b, from); err != nil {
		if errors.Is(err, database.ErrConflict) {
			return nil, ErrBookingChanged
		}
		return nil, err
	}

	s.publish(ctx, events.EventBookingStatusChanged, b.ID, events.BookingStatusChangedData{
		BookingID: b.ID,
		From:      string(from),
		To:        string(to),
		ActorID:   actor.UserID,
		Reason:    reason,
	})

	s.logger.Info("booking status changed",
		"booking_id", b.ID,
		"from", from,
		"to", to,
		"actor_id", actor.UserID,
	)

	return b, nil
}

func canRead(actor middleware.Actor, b *domain.Booking) bool {
	switch actor.Role {
	case middleware.RoleAdmin:
		return true
	case middleware.RoleAgent:
		return actor.AgentID == b.AgentID
	default:
		return actor.UserID == b.BuyerID
	}
}

// canTransition enforces ownership: admins may apply any table-allowed
// transition, the assigned agent drives the operational ones, and buyers
// may only cancel their own booking.
func canTransition(actor middleware.Actor, b *domain.Booking, to domain.Status) bool {
	switch actor.Role {
	case middleware.RoleAdmin:
		return true
	case middleware.RoleAgent:
		return actor.AgentID == b.AgentID && to != domain.StatusRefunded
	default:
		return actor.UserID == b.BuyerID && to == domain.StatusCancelled
	}
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
