// Package withdrawal implements agent payout requests against their
// settled earnings. The available balance is derived from source rows on
// every read; no running balance is stored anywhere.
package withdrawal

import (
	"fmt"
	"time"

	"tourmarket/internal/common/money"
)

// Status is the lifecycle status of a withdrawal request
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusApproved   Status = "APPROVED"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusRejected   Status = "REJECTED"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusApproved, StatusRejected},
	StatusApproved:   {StatusProcessing},
	StatusProcessing: {StatusCompleted},
	StatusCompleted:  {},
	StatusRejected:   {},
}

// CanTransition reports whether from -> to is an allowed status change
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// HoldsBalance reports whether a request in this status still reserves
// part of the agent's balance. Rejected requests release their amount;
// everything else holds it.
func (s Status) HoldsBalance() bool {
	return s != StatusRejected
}

// Request is an agent's request to pay out part of their earnings
type Request struct {
	ID      string      `json:"id"`
	AgentID string      `json:"agent_id"`
	Amount  money.Money `json:"amount"`
	Status  Status      `json:"status"`

	ReviewedBy      string     `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`

	ProcessedBy    string     `json:"processed_by,omitempty"`
	ProcessedAt    *time.Time `json:"processed_at,omitempty"`
	TransactionRef string     `json:"transaction_ref,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r *Request) transitionTo(to Status, at time.Time) error {
	if !CanTransition(r.Status, to) {
		return fmt.Errorf("withdrawal %s cannot move from %s to %s", r.ID, r.Status, to)
	}
	r.Status = to
	r.UpdatedAt = at
	return nil
}

// BalanceSummary is an agent's derived balance position. Pending covers
// every open request (PENDING, APPROVED, PROCESSING); withdrawn covers
// completed payouts. Both reduce the available balance.
type BalanceSummary struct {
	AgentID            string      `json:"agent_id"`
	TotalEarnings      money.Money `json:"total_earnings"`
	MonthlyEarnings    money.Money `json:"monthly_earnings"`
	PendingWithdrawals money.Money `json:"pending_withdrawals"`
	TotalWithdrawn     money.Money `json:"total_withdrawn"`
	AvailableBalance   money.Money `json:"available_balance"`
}
