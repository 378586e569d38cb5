package promo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"tourmarket/internal/common/database"
)

// PostgresStore provides promo code data access
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a new promo store
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// GetByCode retrieves a promo code by its normalized code
func (s *PostgresStore) GetByCode(ctx context.Context, code string) (*PromoCode, error) {
	query := `
		SELECT id, agent_id, code, discount_type, value, currency, max_discount_minor,
		       min_order_minor, active, valid_from, valid_until,
		       max_uses, max_uses_per_user, tour_ids, created_at
		FROM promo_codes
		WHERE code = $1
	`

	var pc PromoCode
	err := s.db.QueryRow(ctx, query, code).Scan(
		&pc.ID, &pc.AgentID, &pc.Code, &pc.DiscountType, &pc.Value, &pc.Currency,
		&pc.MaxDiscountMinor, &pc.MinOrderMinor, &pc.Active,
		&pc.ValidFrom, &pc.ValidUntil,
		&pc.MaxUses, &pc.MaxUsesPerUser, &pc.TourIDs, &pc.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("scanning promo code: %w", err)
	}
	return &pc, nil
}

// CountUsage counts total consumptions of a code
func (s *PostgresStore) CountUsage(ctx context.Context, promoCodeID string) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM promo_code_usages WHERE promo_code_id = $1`,
		promoCodeID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting promo usage: %w", err)
	}
	return count, nil
}

// CountUsageByUser counts consumptions of a code by one user
func (s *PostgresStore) CountUsageByUser(ctx context.Context, promoCodeID, userID string) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM promo_code_usages WHERE promo_code_id = $1 AND user_id = $2`,
		promoCodeID, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting user promo usage: %w", err)
	}
	return count, nil
}

// InsertUsage records a consumption. The unique constraint on
// (promo_code_id, booking_id) surfaces as a unique violation for the
// caller to treat as idempotent.
func (s *PostgresStore) InsertUsage(ctx context.Context, u *Usage) error {
	query := `
		INSERT INTO promo_code_usages (id, promo_code_id, booking_id, user_id, discount_amount_minor, currency, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.Exec(ctx, query,
		u.ID, u.PromoCodeID, u.BookingID, u.UserID,
		u.DiscountAmount.AmountMinor, u.DiscountAmount.Currency, u.CreatedAt,
	)
	return err
}
