package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"tourmarket/internal/agent"
	"tourmarket/internal/common/database"
	"tourmarket/internal/common/events"
	"tourmarket/internal/common/middleware"
	"tourmarket/internal/common/money"
)

// Service errors
var (
	ErrInsufficientBalance = errors.New("requested amount exceeds available balance")
	ErrAgentSuspended      = errors.New("agent account is suspended")
	ErrInvalidAmount       = errors.New("withdrawal amount must be positive")
	ErrInvalidState        = errors.New("withdrawal is not in a state that allows this operation")
	ErrReasonLength        = errors.New("rejection reason must be between 10 and 500 characters")
	ErrRequestChanged      = errors.New("withdrawal was modified concurrently, retry")
)

// Rejection reasons are shown to agents, so they must say something.
const (
	minReasonLen = 10
	maxReasonLen = 500
)

// Store persists withdrawal requests and derives balance components
type Store interface {
	// WithAgentLock serializes balance-affecting work per agent.
	WithAgentLock(ctx context.Context, agentID string, fn func(ctx context.Context) error) error
	TotalEarnings(ctx context.Context, agentID string) (int64, error)
	EarningsSince(ctx context.Context, agentID string, since time.Time) (int64, error)
	HeldAmount(ctx context.Context, agentID string, excludeRequestID string) (int64, error)
	WithdrawnAmount(ctx context.Context, agentID string) (int64, error)
	Create(ctx context.Context, r *Request) error
	Get(ctx context.Context, id string) (*Request, error)
	UpdateStatus(ctx context.Context, r *Request, from Status) error
	ListByAgent(ctx context.Context, agentID string, limit, offset int) ([]*Request, int64, error)
	ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*Request, int64, error)
}

// Service provides withdrawal operations
type Service struct {
	store     Store
	agents    agent.Store
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a new withdrawal service
func NewService(store Store, agents agent.Store, publisher events.Publisher, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		agents:    agents,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Balance derives the agent's balance position from settled bookings and
// open withdrawals. Always computed fresh from source rows.
func (s *Service) Balance(ctx context.Context, agentID string) (*BalanceSummary, error) {
	ag, err := s.agents.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}

	total, err := s.store.TotalEarnings(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("summing earnings: %w", err)
	}

	monthStart := startOfMonth(s.now())
	monthly, err := s.store.EarningsSince(ctx, agentID, monthStart)
	if err != nil {
		return nil, fmt.Errorf("summing monthly earnings: %w", err)
	}

	held, err := s.store.HeldAmount(ctx, agentID, "")
	if err != nil {
		return nil, fmt.Errorf("summing held withdrawals: %w", err)
	}

	withdrawn, err := s.store.WithdrawnAmount(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("summing completed withdrawals: %w", err)
	}

	cur := ag.Currency
	return &BalanceSummary{
		AgentID:            agentID,
		TotalEarnings:      money.New(total, cur),
		MonthlyEarnings:    money.New(monthly, cur),
		PendingWithdrawals: money.New(held-withdrawn, cur),
		TotalWithdrawn:     money.New(withdrawn, cur),
		AvailableBalance:   money.New(total-held, cur),
	}, nil
}

// Request opens a withdrawal for an agent. The balance check and the
// insert run under a per-agent advisory lock so two concurrent requests
// cannot both fit into the same balance.
func (s *Service) Request(ctx context.Context, agentID string, amount money.Money) (*Request, error) {
	ag, err := s.agents.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if ag.Status != agent.StatusActive {
		return nil, ErrAgentSuspended
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if amount.Currency != ag.Currency {
		return nil, fmt.Errorf("amount currency %s does not match agent currency %s", amount.Currency, ag.Currency)
	}

	var req *Request
	err = s.store.WithAgentLock(ctx, agentID, func(ctx context.Context) error {
		available, err := s.available(ctx, agentID, "")
		if err != nil {
			return err
		}
		if amount.AmountMinor > available {
			return fmt.Errorf("%w: requested %d, available %d", ErrInsufficientBalance, amount.AmountMinor, available)
		}

		now := s.now()
		req = &Request{
			ID:        ulid.Make().String(),
			AgentID:   agentID,
			Amount:    amount,
			Status:    StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return s.store.Create(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	s.publishLifecycle(ctx, events.EventWithdrawalRequested, req, "")
	s.logger.Info("withdrawal requested",
		"withdrawal_id", req.ID,
		"agent_id", agentID,
		"amount", amount.AmountMinor,
	)
	return req, nil
}

// Approve moves a pending request to APPROVED after re-verifying that the
// agent's balance still covers it. The request's own amount is excluded
// from the held sum so it does not block itself.
func (s *Service) Approve(ctx context.Context, actor middleware.Actor, id string) (*Request, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusPending {
		return nil, fmt.Errorf("%w: status is %s", ErrInvalidState, req.Status)
	}

	err = s.store.WithAgentLock(ctx, req.AgentID, func(ctx context.Context) error {
		available, err := s.available(ctx, req.AgentID, req.ID)
		if err != nil {
			return err
		}
		if req.Amount.AmountMinor > available {
			return fmt.Errorf("%w: balance no longer covers request", ErrInsufficientBalance)
		}

		now := s.now()
		if err := req.transitionTo(StatusApproved, now); err != nil {
			return err
		}
		req.ReviewedBy = actor.UserID
		req.ReviewedAt = &now
		return s.applyStatus(ctx, req, StatusPending)
	})
	if err != nil {
		return nil, err
	}

	s.publishLifecycle(ctx, events.EventWithdrawalApproved, req, "")
	s.logger.Info("withdrawal approved", "withdrawal_id", req.ID, "reviewed_by", actor.UserID)
	return req, nil
}

// Reject closes a pending request with a reason, releasing its amount
func (s *Service) Reject(ctx context.Context, actor middleware.Actor, id, reason string) (*Request, error) {
	if len(reason) < minReasonLen || len(reason) > maxReasonLen {
		return nil, ErrReasonLength
	}

	req, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusPending {
		return nil, fmt.Errorf("%w: status is %s", ErrInvalidState, req.Status)
	}

	now := s.now()
	if err := req.transitionTo(StatusRejected, now); err != nil {
		return nil, err
	}
	req.ReviewedBy = actor.UserID
	req.ReviewedAt = &now
	req.RejectionReason = reason
	if err := s.applyStatus(ctx, req, StatusPending); err != nil {
		return nil, err
	}

	s.publishLifecycle(ctx, events.EventWithdrawalRejected, req, reason)
	s.logger.Info("withdrawal rejected", "withdrawal_id", req.ID, "reviewed_by", actor.UserID)
	return req, nil
}

// Process records the payout of an approved request: it moves through
// PROCESSING to COMPLETED with the payout's transaction reference. A
// request already sitting in PROCESSING (a payout interrupted between the
// two writes) is picked up from there.
func (s *Service) Process(ctx context.Context, actor middleware.Actor, id, transactionRef string) (*Request, error) {
	if transactionRef == "" {
		return nil, errors.New("transaction reference is required")
	}

	req, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusApproved && req.Status != StatusProcessing {
		return nil, fmt.Errorf("%w: status is %s", ErrInvalidState, req.Status)
	}

	now := s.now()
	if req.Status == StatusApproved {
		if err := req.transitionTo(StatusProcessing, now); err != nil {
			return nil, err
		}
		if err := s.applyStatus(ctx, req, StatusApproved); err != nil {
			return nil, err
		}
	}

	if err := req.transitionTo(StatusCompleted, now); err != nil {
		return nil, err
	}
	req.ProcessedBy = actor.UserID
	req.ProcessedAt = &now
	req.TransactionRef = transactionRef
	if err := s.applyStatus(ctx, req, StatusProcessing); err != nil {
		return nil, err
	}

	s.publishLifecycle(ctx, events.EventWithdrawalProcessed, req, "")
	s.logger.Info("withdrawal processed",
		"withdrawal_id", req.ID,
		"processed_by", actor.UserID,
		"transaction_ref", transactionRef,
	)
	return req, nil
}

// Get retrieves a withdrawal, restricted to its agent or an admin
func (s *Service) Get(ctx context.Context, actor middleware.Actor, id string) (*Request, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != middleware.RoleAdmin && actor.AgentID != req.AgentID {
		return nil, database.ErrNotFound
	}
	return req, nil
}

// ListByAgent lists an agent's withdrawals, newest first
func (s *Service) ListByAgent(ctx context.Context, agentID string, limit, offset int) ([]*Request, int64, error) {
	return s.store.ListByAgent(ctx, agentID, limit, offset)
}

// ListPending lists the admin review queue
func (s *Service) ListPending(ctx context.Context, limit, offset int) ([]*Request, int64, error) {
	return s.store.ListByStatus(ctx, StatusPending, limit, offset)
}

func (s *Service) available(ctx context.Context, agentID, excludeRequestID string) (int64, error) {
	total, err := s.store.TotalEarnings(ctx, agentID)
	if err != nil {
		return 0, fmt.Errorf("summing earnings: %w", err)
	}
	held, err := s.store.HeldAmount(ctx, agentID, excludeRequestID)
	if err != nil {
		return 0, fmt.Errorf("summing held withdrawals: %w", err)
	}
	return total - held, nil
}

func (s *Service) applyStatus(ctx context.Context, req *Request, from Status) error {
	if err := s.store.UpdateStatus(ctx, req, from); err != nil {
		if errors.Is(err, database.ErrConflict) {
			return ErrRequestChanged
		}
		return err
	}
	return nil
}

func (s *Service) publishLifecycle(ctx context.Context, eventType string, req *Request, reason string) {
	event, err := events.NewEvent(eventType, "withdrawal", req.ID, events.WithdrawalData{
		WithdrawalID:   req.ID,
		AgentID:        req.AgentID,
		Amount:         req.Amount.AmountMinor,
		Currency:       string(req.Amount.Currency),
		Status:         string(req.Status),
		ProcessedBy:    req.ProcessedBy,
		TransactionRef: req.TransactionRef,
		Reason:         reason,
	})
	if err != nil {
		s.logger.Error("failed to build event", "type", eventType, "error", err)
		return
	}
	event.WithCorrelation(middleware.GetCorrelationID(ctx))
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish event", "type", eventType, "error", err)
	}
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
