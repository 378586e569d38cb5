package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"tourmarket/internal/common/database"
	"tourmarket/internal/common/money"
)

// Store provides agent data access
type Store interface {
	GetAgent(ctx context.Context, id string) (*Agent, error)
	ListCommissionTiers(ctx context.Context) ([]CommissionTier, error)
	GetLifetimeStats(ctx context.Context, agentID string) (LifetimeStats, error)
}

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a new agent store
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// GetAgent retrieves an agent by ID
func (s *PostgresStore) GetAgent(ctx context.Context, id string) (*Agent, error) {
	query := `
		SELECT id, name, status, commission_bps, currency, created_at
		FROM agents
		WHERE id = $1
	`

	var a Agent
	var currency string
	err := s.db.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.Name, &a.Status, &a.CommissionBps, &currency, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("getting agent: %w", err)
	}
	a.Currency = money.Currency(currency)
	return &a, nil
}

// ListCommissionTiers returns all configured commission tiers
func (s *PostgresStore) ListCommissionTiers(ctx context.Context) ([]CommissionTier, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, min_bookings, min_revenue_minor, rate_bps
		FROM commission_tiers
		ORDER BY min_bookings DESC, min_revenue_minor DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("listing commission tiers: %w", err)
	}
	defer rows.Close()

	var tiers []CommissionTier
	for rows.Next() {
		var t CommissionTier
		if err := rows.Scan(&t.ID, &t.Name, &t.MinBookings, &t.MinRevenueMinor, &t.RateBps); err != nil {
			return nil, fmt.Errorf("scanning commission tier: %w", err)
		}
		tiers = append(tiers, t)
	}
	return tiers, rows.Err()
}

// GetLifetimeStats returns the agent's settled booking count and revenue.
// Derived from source rows every time, never cached.
func (s *PostgresStore) GetLifetimeStats(ctx context.Context, agentID string) (LifetimeStats, error) {
	query := `
		SELECT COUNT(*), COALESCE(SUM(total_amount_minor), 0)
		FROM bookings
		WHERE agent_id = $1 AND payment_status = 'COMPLETED'
	`

	var stats LifetimeStats
	err := s.db.QueryRow(ctx, query, agentID).Scan(&stats.BookingCount, &stats.RevenueMinor)
	if err != nil {
		return LifetimeStats{}, fmt.Errorf("getting lifetime stats: %w", err)
	}
	return stats, nil
}
