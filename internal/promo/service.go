package promo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"tourmarket/internal/agent"
	"tourmarket/internal/catalog"
	"tourmarket/internal/common/database"
	"tourmarket/internal/common/money"
)

// Store persists promo codes and their usage records
type Store interface {
	GetByCode(ctx context.Context, code string) (*PromoCode, error)
	CountUsage(ctx context.Context, promoCodeID string) (int, error)
	CountUsageByUser(ctx context.Context, promoCodeID, userID string) (int, error)
	InsertUsage(ctx context.Context, u *Usage) error
}

// Service validates promo codes and records consumption
type Service struct {
	store   Store
	agents  agent.Store
	catalog catalog.Store
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a new promo service
func NewService(store Store, agents agent.Store, cat catalog.Store, logger *slog.Logger) *Service {
	return &Service{
		store:   store,
		agents:  agents,
		catalog: cat,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Validate checks whether a code applies to an order without consuming it.
// An unknown or inapplicable code yields Valid=false with a buyer-facing
// message; only infrastructure failures return an error. An empty userID
// means anonymous validation, which skips the per-user limit.
func (s *Service) Validate(ctx context.Context, code, tourID string, amount money.Money, userID string) (ValidationResult, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return rejected("Promo code is required"), nil
	}

	pc, err := s.store.GetByCode(ctx, normalized)
	if err != nil {
		if database.IsNotFound(err) {
			return rejected("Invalid promo code"), nil
		}
		return ValidationResult{}, fmt.Errorf("loading promo code: %w", err)
	}

	issuer, err := s.agents.GetAgent(ctx, pc.AgentID)
	if err != nil {
		if database.IsNotFound(err) {
			return rejected("This promo code is not currently available"), nil
		}
		return ValidationResult{}, fmt.Errorf("loading issuing agent: %w", err)
	}

	tour, err := s.catalog.GetTour(ctx, tourID)
	if err != nil {
		if database.IsNotFound(err) {
			return rejected("This promo code does not apply to this tour"), nil
		}
		return ValidationResult{}, fmt.Errorf("loading tour: %w", err)
	}

	totalUses, err := s.store.CountUsage(ctx, pc.ID)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("counting promo usage: %w", err)
	}
	userUses := 0
	if userID != "" {
		userUses, err = s.store.CountUsageByUser(ctx, pc.ID, userID)
		if err != nil {
			return ValidationResult{}, fmt.Errorf("counting user promo usage: %w", err)
		}
	}

	issuerActive := issuer.Status == agent.StatusActive
	return pc.CheckApplicable(s.now(), issuerActive, totalUses, userUses, tourID, tour.AgentID, amount), nil
}

// RecordUsage consumes a code for a booking. The usage table carries a
// unique (promo_code_id, booking_id) constraint, so recording twice for the
// same booking is a no-op.
func (s *Service) RecordUsage(ctx context.Context, code, bookingID, userID string, discount money.Money) error {
	pc, err := s.store.GetByCode(ctx, NormalizeCode(code))
	if err != nil {
		return fmt.Errorf("loading promo code: %w", err)
	}

	usage := &Usage{
		ID:             ulid.Make().String(),
		PromoCodeID:    pc.ID,
		BookingID:      bookingID,
		UserID:         userID,
		DiscountAmount: discount,
		CreatedAt:      s.now(),
	}
	if err := s.store.InsertUsage(ctx, usage); err != nil {
		if database.IsUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("recording promo usage: %w", err)
	}

	s.logger.Info("promo code used",
		"code", pc.Code,
		"booking_id", bookingID,
		"discount", discount.AmountMinor,
	)
	return nil
}
