package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Status represents the lifecycle status of a booking
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusConfirmed  Status = "CONFIRMED"
	StatusPaid       Status = "PAID"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
	StatusRefunded   Status = "REFUNDED"
)

// PaymentStatus tracks payment settlement independently of booking status
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)

// transitions is the single authoritative transition table. Every status
// change in the system goes through Transition; no call site checks
// status strings ad hoc.
var transitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusPaid, StatusInProgress, StatusCancelled},
	StatusPaid:       {StatusInProgress, StatusCompleted, StatusCancelled, StatusRefunded},
	StatusInProgress: {StatusCompleted, StatusCancelled},
	StatusCompleted:  {StatusRefunded},
	StatusCancelled:  {},
	StatusRefunded:   {},
}

// AllStatuses returns every defined booking status
func AllStatuses() []Status {
	return []Status{
		StatusPending, StatusConfirmed, StatusPaid, StatusInProgress,
		StatusCompleted, StatusCancelled, StatusRefunded,
	}
}

// IsValid reports whether s is a defined status
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether no transitions leave s
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// AllowedTargets returns the statuses reachable from s
func AllowedTargets(s Status) []Status {
	targets := make([]Status, len(transitions[s]))
	copy(targets, transitions[s])
	return targets
}

// InvalidTransitionError reports a transition not present in the table,
// including the allowed targets so admin responses can surface them.
type InvalidTransitionError struct {
	From    Status
	To      Status
	Allowed []Status
}

func (e *InvalidTransitionError) Error() string {
	allowed := make([]string, len(e.Allowed))
	for i, s := range e.Allowed {
		allowed[i] = string(s)
	}
	sort.Strings(allowed)
	if len(allowed) == 0 {
		return fmt.Sprintf("invalid transition %s -> %s: %s is terminal", e.From, e.To, e.From)
	}
	return fmt.Sprintf("invalid transition %s -> %s: allowed targets are %s",
		e.From, e.To, strings.Join(allowed, ", "))
}

// Transition validates a status change against the table. It returns an
// *InvalidTransitionError when the pair is not allowed.
func Transition(from, to Status) error {
	if !from.IsValid() {
		return fmt.Errorf("unknown booking status %q", from)
	}
	if !to.IsValid() {
		return &InvalidTransitionError{From: from, To: to, Allowed: AllowedTargets(from)}
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			return nil
		}
	}
	return &InvalidTransitionError{From: from, To: to, Allowed: AllowedTargets(from)}
}
