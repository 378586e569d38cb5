// Package store provides PostgreSQL persistence for bookings.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"tourmarket/internal/booking/domain"
	"tourmarket/internal/common/database"
	"tourmarket/internal/common/money"
)

// Store provides booking data access
type Store struct {
	db *database.DB
}

// New creates a new booking store
func New(db *database.DB) *Store {
	return &Store{db: db}
}

const bookingColumns = `
	id, tour_id, buyer_id, agent_id, status, payment_status,
	adults, children, nights, starts_at, ends_at,
	base_amount_minor, accommodation_amount_minor, activities_amount_minor,
	tax_amount_minor, discount_amount_minor, total_amount_minor, currency,
	promo_code, agent_earnings_minor, platform_commission_minor, settled_at,
	cancelled_at, cancellation_reason, created_at, updated_at
`

// Create inserts a new booking
func (s *Store) Create(ctx context.Context, b *domain.Booking) error {
	query := `
		INSERT INTO bookings (` + bookingColumns + `)
		VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26
		)
	`

	var earnings, commission *int64
	if b.AgentEarnings != nil {
		earnings = &b.AgentEarnings.AmountMinor
	}
	if b.PlatformCommission != nil {
		commission = &b.PlatformCommission.AmountMinor
	}

	_, err := s.db.Exec(ctx, query,
		b.ID, b.TourID, b.BuyerID, b.AgentID, b.Status, b.PaymentStatus,
		b.Adults, b.Children, b.Nights, b.StartsAt, b.EndsAt,
		b.Price.BaseAmount.AmountMinor, b.Price.AccommodationAmount.AmountMinor,
		b.Price.ActivitiesAmount.AmountMinor, b.Price.TaxAmount.AmountMinor,
		b.Price.DiscountAmount.AmountMinor, b.Price.TotalAmount.AmountMinor,
		b.Price.TotalAmount.Currency,
		nullStr(b.PromoCode), earnings, commission, b.SettledAt,
		b.CancelledAt, nullStr(b.CancellationReason), b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting booking: %w", err)
	}
	return nil
}

// Get retrieves a booking by ID
func (s *Store) Get(ctx context.Context, id string) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	return scanBooking(s.db.QueryRow(ctx, query, id))
}

// UpdateStatus persists a status change with a conditional update keyed on
// the previous status, so two concurrent transitions cannot both win.
// Returns database.ErrConflict when another request changed the status
// in between.
func (s *Store) UpdateStatus(ctx context.Context, b *domain.Booking, from domain.Status) error {
	query := `
		UPDATE bookings SET
			status = $3, cancelled_at = $4, cancellation_reason = $5, updated_at = $6
		WHERE id = $1 AND status = $2
	`

	tag, err := s.db.Exec(ctx, query,
		b.ID, from, b.Status, b.CancelledAt, nullStr(b.CancellationReason), b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating booking status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return database.ErrConflict
	}
	return nil
}

// ListByBuyer lists a buyer's bookings, newest first
func (s *Store) ListByBuyer(ctx context.Context, buyerID string, limit, offset int) ([]*domain.Booking, int64, error) {
	return s.list(ctx, `buyer_id`, buyerID, limit, offset)
}

// ListByAgent lists an agent's bookings, newest first
func (s *Store) ListByAgent(ctx context.Context, agentID string, limit, offset int) ([]*domain.Booking, int64, error) {
	return s.list(ctx, `agent_id`, agentID, limit, offset)
}

func (s *Store) list(ctx context.Context, column, value string, limit, offset int) ([]*domain.Booking, int64, error) {
	var total int64
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM bookings WHERE %s = $1`, column)
	if err := s.db.QueryRow(ctx, countQuery, value).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting bookings: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT %s FROM bookings WHERE %s = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		bookingColumns, column,
	)
	rows, err := s.db.Query(ctx, query, value, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, 0, err
		}
		bookings = append(bookings, b)
	}
	return bookings, total, rows.Err()
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	var base, accommodation, activities, tax, discount, total int64
	var currency string
	var promoCode, cancellationReason *string
	var earnings, commission *int64

	err := row.Scan(
		&b.ID, &b.TourID, &b.BuyerID, &b.AgentID, &b.Status, &b.PaymentStatus,
		&b.Adults, &b.Children, &b.Nights, &b.StartsAt, &b.EndsAt,
		&base, &accommodation, &activities, &tax, &discount, &total, &currency,
		&promoCode, &earnings, &commission, &b.SettledAt,
		&b.CancelledAt, &cancellationReason, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("scanning booking: %w", err)
	}

	cur := money.Currency(currency)
	b.Price = domain.Breakdown{
		BaseAmount:          money.New(base, cur),
		AccommodationAmount: money.New(accommodation, cur),
		ActivitiesAmount:    money.New(activities, cur),
		TaxAmount:           money.New(tax, cur),
		DiscountAmount:      money.New(discount, cur),
		TotalAmount:         money.New(total, cur),
	}
	if promoCode != nil {
		b.PromoCode = *promoCode
	}
	if cancellationReason != nil {
		b.CancellationReason = *cancellationReason
	}
	if earnings != nil {
		m := money.New(*earnings, cur)
		b.AgentEarnings = &m
	}
	if commission != nil {
		m := money.New(*commission, cur)
		b.PlatformCommission = &m
	}

	return &b, nil
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
