package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"tourmarket/internal/common/database"
	"tourmarket/internal/common/money"
)

// Store provides tour catalog reads
type Store interface {
	GetTour(ctx context.Context, id string) (*Tour, error)
}

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a new catalog store
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// GetTour retrieves a tour with its accommodation and addon line items
func (s *PostgresStore) GetTour(ctx context.Context, id string) (*Tour, error) {
	query := `
		SELECT id, agent_id, name, base_price_minor, currency, active, created_at
		FROM tours
		WHERE id = $1
	`

	var t Tour
	var baseMinor int64
	var currency string
	err := s.db.QueryRow(ctx, query, id).Scan(
		&t.ID, &t.AgentID, &t.Name, &baseMinor, &currency, &t.Active, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("getting tour: %w", err)
	}
	t.BasePrice = money.New(baseMinor, money.Currency(currency))

	if err := s.loadAccommodations(ctx, &t, currency); err != nil {
		return nil, err
	}
	if err := s.loadAddons(ctx, &t, currency); err != nil {
		return nil, err
	}

	return &t, nil
}

func (s *PostgresStore) loadAccommodations(ctx context.Context, t *Tour, currency string) error {
	rows, err := s.db.Query(ctx, `
		SELECT id, tour_id, name, price_per_night_minor
		FROM tour_accommodations
		WHERE tour_id = $1
		ORDER BY name
	`, t.ID)
	if err != nil {
		return fmt.Errorf("listing accommodations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a Accommodation
		var priceMinor int64
		if err := rows.Scan(&a.ID, &a.TourID, &a.Name, &priceMinor); err != nil {
			return fmt.Errorf("scanning accommodation: %w", err)
		}
		a.PricePerNight = money.New(priceMinor, money.Currency(currency))
		t.Accommodations = append(t.Accommodations, a)
	}
	return rows.Err()
}

func (s *PostgresStore) loadAddons(ctx context.Context, t *Tour, currency string) error {
	rows, err := s.db.Query(ctx, `
		SELECT id, tour_id, name, price_per_person_minor
		FROM tour_addons
		WHERE tour_id = $1
		ORDER BY name
	`, t.ID)
	if err != nil {
		return fmt.Errorf("listing addons: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a Addon
		var priceMinor int64
		if err := rows.Scan(&a.ID, &a.TourID, &a.Name, &priceMinor); err != nil {
			return fmt.Errorf("scanning addon: %w", err)
		}
		a.PricePerPerson = money.New(priceMinor, money.Currency(currency))
		t.Addons = append(t.Addons, a)
	}
	return rows.Err()
}
