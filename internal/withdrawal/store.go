package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"tourmarket/internal/common/database"
	"tourmarket/internal/common/money"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a new withdrawal store
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// WithAgentLock runs fn in a transaction holding the agent's advisory
// lock. Concurrent requests for the same agent queue up here; requests
// for different agents proceed in parallel.
func (s *PostgresStore) WithAgentLock(ctx context.Context, agentID string, fn func(ctx context.Context) error) error {
	return s.db.WithAdvisoryLock(ctx, "withdrawal:"+agentID, fn)
}

// TotalEarnings sums the agent's settled earnings
func (s *PostgresStore) TotalEarnings(ctx context.Context, agentID string) (int64, error) {
	var total int64
	err := s.db.Q(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(agent_earnings_minor), 0)
		FROM bookings
		WHERE agent_id = $1 AND payment_status = 'COMPLETED'
	`, agentID).Scan(&total)
	return total, err
}

// EarningsSince sums settled earnings from a point in time
func (s *PostgresStore) EarningsSince(ctx context.Context, agentID string, since time.Time) (int64, error) {
	var total int64
	err := s.db.Q(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(agent_earnings_minor), 0)
		FROM bookings
		WHERE agent_id = $1 AND payment_status = 'COMPLETED' AND settled_at >= $2
	`, agentID, since).Scan(&total)
	return total, err
}

// HeldAmount sums withdrawals still holding balance, optionally excluding
// one request (used when re-verifying that same request at approval).
func (s *PostgresStore) HeldAmount(ctx context.Context, agentID, excludeRequestID string) (int64, error) {
	var total int64
	err := s.db.Q(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_minor), 0)
		FROM withdrawal_requests
		WHERE agent_id = $1
		  AND status <> 'REJECTED'
		  AND ($2 = '' OR id <> $2)
	`, agentID, excludeRequestID).Scan(&total)
	return total, err
}

// WithdrawnAmount sums the agent's completed payouts
func (s *PostgresStore) WithdrawnAmount(ctx context.Context, agentID string) (int64, error) {
	var total int64
	err := s.db.Q(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_minor), 0)
		FROM withdrawal_requests
		WHERE agent_id = $1 AND status = 'COMPLETED'
	`, agentID).Scan(&total)
	return total, err
}

const withdrawalColumns = `
	id, agent_id, amount_minor, currency, status,
	reviewed_by, reviewed_at, rejection_reason,
	processed_by, processed_at, transaction_ref,
	created_at, updated_at
`

// Create inserts a new withdrawal request
func (s *PostgresStore) Create(ctx context.Context, r *Request) error {
	query := `
		INSERT INTO withdrawal_requests (` + withdrawalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.db.Q(ctx).Exec(ctx, query,
		r.ID, r.AgentID, r.Amount.AmountMinor, r.Amount.Currency, r.Status,
		nullStr(r.ReviewedBy), r.ReviewedAt, nullStr(r.RejectionReason),
		nullStr(r.ProcessedBy), r.ProcessedAt, nullStr(r.TransactionRef),
		r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting withdrawal: %w", err)
	}
	return nil
}

// Get retrieves a withdrawal request by ID
func (s *PostgresStore) Get(ctx context.Context, id string) (*Request, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests WHERE id = $1`
	return scanRequest(s.db.Q(ctx).QueryRow(ctx, query, id))
}

// UpdateStatus persists a status change with a guard on the previous
// status. Returns database.ErrConflict when the request changed in
// between.
func (s *PostgresStore) UpdateStatus(ctx context.Context, r *Request, from Status) error {
	query := `
		UPDATE withdrawal_requests SET
			status = $3,
			reviewed_by = $4, reviewed_at = $5, rejection_reason = $6,
			processed_by = $7, processed_at = $8, transaction_ref = $9,
			updated_at = $10
		WHERE id = $1 AND status = $2
	`
	tag, err := s.db.Q(ctx).Exec(ctx, query,
		r.ID, from, r.Status,
		nullStr(r.ReviewedBy), r.ReviewedAt, nullStr(r.RejectionReason),
		nullStr(r.ProcessedBy), r.ProcessedAt, nullStr(r.TransactionRef),
		r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating withdrawal status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return database.ErrConflict
	}
	return nil
}

// ListByAgent lists an agent's withdrawals, newest first
func (s *PostgresStore) ListByAgent(ctx context.Context, agentID string, limit, offset int) ([]*Request, int64, error) {
	return s.list(ctx, `agent_id = $1`, agentID, limit, offset)
}

// ListByStatus lists withdrawals in a status, oldest first so the admin
// queue is worked in arrival order.
func (s *PostgresStore) ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*Request, int64, error) {
	var total int64
	err := s.db.Q(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM withdrawal_requests WHERE status = $1`, status,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting withdrawals: %w", err)
	}

	rows, err := s.db.Q(ctx).Query(ctx, `
		SELECT `+withdrawalColumns+`
		FROM withdrawal_requests
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`, status, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing withdrawals: %w", err)
	}
	defer rows.Close()
	return collectRequests(rows, total)
}

func (s *PostgresStore) list(ctx context.Context, where, value string, limit, offset int) ([]*Request, int64, error) {
	var total int64
	err := s.db.Q(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM withdrawal_requests WHERE `+where, value,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting withdrawals: %w", err)
	}

	rows, err := s.db.Q(ctx).Query(ctx, `
		SELECT `+withdrawalColumns+`
		FROM withdrawal_requests
		WHERE `+where+`
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, value, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing withdrawals: %w", err)
	}
	defer rows.Close()
	return collectRequests(rows, total)
}

func collectRequests(rows pgx.Rows, total int64) ([]*Request, int64, error) {
	var requests []*Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		requests = append(requests, r)
	}
	return requests, total, rows.Err()
}

func scanRequest(row pgx.Row) (*Request, error) {
	var r Request
	var amount int64
	var currency string
	var reviewedBy, rejectionReason, processedBy, transactionRef *string

	err := row.Scan(
		&r.ID, &r.AgentID, &amount, &currency, &r.Status,
		&reviewedBy, &r.ReviewedAt, &rejectionReason,
		&processedBy, &r.ProcessedAt, &transactionRef,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("scanning withdrawal: %w", err)
	}

	r.Amount = money.New(amount, money.Currency(currency))
	if reviewedBy != nil {
		r.ReviewedBy = *reviewedBy
	}
	if rejectionReason != nil {
		r.RejectionReason = *rejectionReason
	}
	if processedBy != nil {
		r.ProcessedBy = *processedBy
	}
	if transactionRef != nil {
		r.TransactionRef = *transactionRef
	}
	return &r, nil
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
