package domain

import (
	"errors"
	"testing"
)

func TestTransitionTable(t *testing.T) {
	allowed := map[[2]Status]bool{
		{StatusPending, StatusConfirmed}:    true,
		{StatusPending, StatusCancelled}:    true,
		{StatusConfirmed, StatusPaid}:       true,
		{StatusConfirmed, StatusInProgress}: true,
		{StatusConfirmed, StatusCancelled}:  true,
		{StatusPaid, StatusInProgress}:      true,
		{StatusPaid, StatusCompleted}:       true,
		{StatusPaid, StatusCancelled}:       true,
		{StatusPaid, StatusRefunded}:        true,
		{StatusInProgress, StatusCompleted}: true,
		{StatusInProgress, StatusCancelled}: true,
		{StatusCompleted, StatusRefunded}:   true,
	}

	// Every (from, to) pair must agree with the table; everything not
	// listed is rejected, including self-transitions and anything out of
	// a terminal status.
	for _, from := range AllStatuses() {
		for _, to := range AllStatuses() {
			err := Transition(from, to)
			if allowed[[2]Status{from, to}] {
				if err != nil {
					t.Errorf("Transition(%s, %s) = %v, want allowed", from, to, err)
				}
				continue
			}
			if err == nil {
				t.Errorf("Transition(%s, %s) succeeded, want rejection", from, to)
				continue
			}
			var invalid *InvalidTransitionError
			if !errors.As(err, &invalid) {
				t.Errorf("Transition(%s, %s) error = %v, want InvalidTransitionError", from, to, err)
			}
		}
	}
}

func TestTransitionUnknownStatus(t *testing.T) {
	if err := Transition(Status("SHIPPED"), StatusConfirmed); err == nil {
		t.Fatal("expected error for unknown from status")
	}
	if err := Transition(StatusPending, Status("SHIPPED")); err == nil {
		t.Fatal("expected error for unknown to status")
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range AllStatuses() {
		want := s == StatusCancelled || s == StatusRefunded
		if got := s.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", s, got, want)
		}
	}
}

func TestInvalidTransitionErrorListsTargets(t *testing.T) {
	err := Transition(StatusCancelled, StatusConfirmed)
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("error = %v, want InvalidTransitionError", err)
	}
	if len(invalid.Allowed) != 0 {
		t.Errorf("allowed targets from CANCELLED = %v, want none", invalid.Allowed)
	}

	err = Transition(StatusPending, StatusCompleted)
	if !errors.As(err, &invalid) {
		t.Fatalf("error = %v, want InvalidTransitionError", err)
	}
	if len(invalid.Allowed) != 2 {
		t.Errorf("allowed targets from PENDING = %v, want CONFIRMED and CANCELLED", invalid.Allowed)
	}
}
