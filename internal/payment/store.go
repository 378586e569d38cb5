package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"tourmarket/internal/booking/domain"
	bookingstore "tourmarket/internal/booking/store"
	"tourmarket/internal/common/database"
	"tourmarket/internal/common/money"
)

// PostgresStore implements Store against the bookings and payments tables
type PostgresStore struct {
	db       *database.DB
	bookings *bookingstore.Store
}

// NewPostgresStore creates a new payment store
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db, bookings: bookingstore.New(db)}
}

// WithTx runs fn inside a database transaction
func (s *PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.db.WithTx(ctx, fn)
}

// GetBooking loads the booking a payment targets
func (s *PostgresStore) GetBooking(ctx context.Context, id string) (*domain.Booking, error) {
	return s.bookings.Get(ctx, id)
}

// MarkSettled writes earnings, commission, and the PAID status, guarded on
// the booking not being settled yet. Reports false when another settlement
// won the race.
func (s *PostgresStore) MarkSettled(ctx context.Context, b *domain.Booking) (bool, error) {
	query := `
		UPDATE bookings SET
			status = $2, payment_status = $3,
			agent_earnings_minor = $4, platform_commission_minor = $5,
			settled_at = $6, updated_at = $7
		WHERE id = $1 AND payment_status <> 'COMPLETED'
	`

	tag, err := s.db.Exec(ctx, query,
		b.ID, b.Status, b.PaymentStatus,
		b.AgentEarnings.AmountMinor, b.PlatformCommission.AmountMinor,
		b.SettledAt, b.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("settling booking: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// CreatePayment inserts a payment record
func (s *PostgresStore) CreatePayment(ctx context.Context, p *Payment) error {
	query := `
		INSERT INTO payments (id, booking_id, gateway, method, amount_minor, currency, status, external_ref, created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	externalRef := &p.ExternalRef
	if p.ExternalRef == "" {
		externalRef = nil
	}
	_, err := s.db.Exec(ctx, query,
		p.ID, p.BookingID, p.Gateway, p.Method,
		p.Amount.AmountMinor, p.Amount.Currency, p.Status,
		externalRef, p.CreatedAt, p.UpdatedAt, p.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting payment: %w", err)
	}
	return nil
}

const paymentColumns = `
	id, booking_id, gateway, method, amount_minor, currency, status,
	external_ref, created_at, updated_at, completed_at
`

// GetPayment retrieves a payment by ID
func (s *PostgresStore) GetPayment(ctx context.Context, id string) (*Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	return scanPayment(s.db.QueryRow(ctx, query, id))
}

// GetPendingPayment returns the booking's open payment attempt, if any
func (s *PostgresStore) GetPendingPayment(ctx context.Context, bookingID string) (*Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE booking_id = $1 AND status = 'PENDING'
		ORDER BY created_at DESC
		LIMIT 1
	`
	p, err := scanPayment(s.db.QueryRow(ctx, query, bookingID))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, database.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// UpdatePaymentOutcome closes the booking's pending attempt with the
// gateway's outcome. Reports false when no pending attempt existed.
func (s *PostgresStore) UpdatePaymentOutcome(ctx context.Context, bookingID string, status Status, externalRef string, at time.Time) (bool, error) {
	query := `
		UPDATE payments SET
			status = $2,
			external_ref = COALESCE(NULLIF($3, ''), external_ref),
			completed_at = CASE WHEN $2 = 'COMPLETED' THEN $4 ELSE completed_at END,
			updated_at = $4
		WHERE booking_id = $1 AND status = 'PENDING'
	`
	tag, err := s.db.Exec(ctx, query, bookingID, status, externalRef, at)
	if err != nil {
		return false, fmt.Errorf("updating payment outcome: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	var amount int64
	var currency string
	var externalRef *string

	err := row.Scan(
		&p.ID, &p.BookingID, &p.Gateway, &p.Method, &amount, &currency,
		&p.Status, &externalRef, &p.CreatedAt, &p.UpdatedAt, &p.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("scanning payment: %w", err)
	}

	p.Amount = money.New(amount, money.Currency(currency))
	if externalRef != nil {
		p.ExternalRef = *externalRef
	}
	return &p, nil
}
