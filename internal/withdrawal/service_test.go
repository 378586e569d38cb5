package withdrawal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"tourmarket/internal/agent"
	"tourmarket/internal/common/database"
	"tourmarket/internal/common/events"
	"tourmarket/internal/common/middleware"
	"tourmarket/internal/common/money"
)

type fakeStore struct {
	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	earnings map[string]int64
	requests map[string]*Request
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		locks:    make(map[string]*sync.Mutex),
		earnings: make(map[string]int64),
		requests: make(map[string]*Request),
	}
}

func (s *fakeStore) agentLock(agentID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[agentID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[agentID] = l
	}
	return l
}

func (s *fakeStore) WithAgentLock(ctx context.Context, agentID string, fn func(ctx context.Context) error) error {
	l := s.agentLock(agentID)
	l.Lock()
	defer l.Unlock()
	return fn(ctx)
}

func (s *fakeStore) TotalEarnings(ctx context.Context, agentID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.earnings[agentID], nil
}

func (s *fakeStore) EarningsSince(ctx context.Context, agentID string, since time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.earnings[agentID], nil
}

func (s *fakeStore) HeldAmount(ctx context.Context, agentID, excludeRequestID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var held int64
	for _, r := range s.requests {
		if r.AgentID == agentID && r.Status.HoldsBalance() && r.ID != excludeRequestID {
			held += r.Amount.AmountMinor
		}
	}
	return held, nil
}

func (s *fakeStore) WithdrawnAmount(ctx context.Context, agentID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var withdrawn int64
	for _, r := range s.requests {
		if r.AgentID == agentID && r.Status == StatusCompleted {
			withdrawn += r.Amount.AmountMinor
		}
	}
	return withdrawn, nil
}

func (s *fakeStore) Create(ctx context.Context, r *Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *r
	s.requests[r.ID] = &copied
	return nil
}

func (s *fakeStore) Get(ctx context.Context, id string) (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	copied := *r
	return &copied, nil
}

func (s *fakeStore) UpdateStatus(ctx context.Context, r *Request, from Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.requests[r.ID]
	if !ok {
		return database.ErrNotFound
	}
	if stored.Status != from {
		return database.ErrConflict
	}
	copied := *r
	s.requests[r.ID] = &copied
	return nil
}

func (s *fakeStore) ListByAgent(ctx context.Context, agentID string, limit, offset int) ([]*Request, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Request
	for _, r := range s.requests {
		if r.AgentID == agentID {
			copied := *r
			out = append(out, &copied)
		}
	}
	return out, int64(len(out)), nil
}

func (s *fakeStore) ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*Request, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Request
	for _, r := range s.requests {
		if r.Status == status {
			copied := *r
			out = append(out, &copied)
		}
	}
	return out, int64(len(out)), nil
}

type fakeAgents struct {
	agents map[string]*agent.Agent
}

func (f *fakeAgents) GetAgent(ctx context.Context, id string) (*agent.Agent, error) {
	a, ok := f.agents[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return a, nil
}

func (f *fakeAgents) ListCommissionTiers(ctx context.Context) ([]agent.CommissionTier, error) {
	return nil, nil
}

func (f *fakeAgents) GetLifetimeStats(ctx context.Context, agentID string) (agent.LifetimeStats, error) {
	return agent.LifetimeStats{}, nil
}

func activeAgents() *fakeAgents {
	return &fakeAgents{agents: map[string]*agent.Agent{
		"agent-1": {
			ID:            "agent-1",
			Name:          "Savanna Tours",
			Status:        agent.StatusActive,
			CommissionBps: 1500,
			Currency:      money.USD,
		},
	}}
}

func testService(store Store, agents agent.Store) *Service {
	return NewService(store, agents, events.NopPublisher{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

var admin = middleware.Actor{UserID: "admin-1", Role: middleware.RoleAdmin}

func usd(minor int64) money.Money { return money.New(minor, money.USD) }

func TestBalanceDerivation(t *testing.T) {
	store := newFakeStore()
	store.earnings["agent-1"] = 100000 // $1000 settled earnings
	svc := testService(store, activeAgents())

	// A pending withdrawal of $600 holds balance.
	if _, err := svc.Request(context.Background(), "agent-1", usd(60000)); err != nil {
		t.Fatalf("Request: %v", err)
	}

	summary, err := svc.Balance(context.Background(), "agent-1")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if summary.TotalEarnings.AmountMinor != 100000 {
		t.Errorf("total = %d, want 100000", summary.TotalEarnings.AmountMinor)
	}
	if summary.PendingWithdrawals.AmountMinor != 60000 {
		t.Errorf("pending = %d, want 60000", summary.PendingWithdrawals.AmountMinor)
	}
	if summary.TotalWithdrawn.AmountMinor != 0 {
		t.Errorf("withdrawn = %d, want 0", summary.TotalWithdrawn.AmountMinor)
	}
	if summary.AvailableBalance.AmountMinor != 40000 {
		t.Errorf("available = %d, want 40000", summary.AvailableBalance.AmountMinor)
	}
}

func TestBalanceMovesPendingToWithdrawn(t *testing.T) {
	store := newFakeStore()
	store.earnings["agent-1"] = 100000
	svc := testService(store, activeAgents())

	req, err := svc.Request(context.Background(), "agent-1", usd(60000))
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if _, err := svc.Approve(context.Background(), admin, req.ID); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if _, err := svc.Process(context.Background(), admin, req.ID, "payout-1"); err != nil {
		t.Fatalf("Process: %v", err)
	}

	summary, err := svc.Balance(context.Background(), "agent-1")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if summary.PendingWithdrawals.AmountMinor != 0 {
		t.Errorf("pending = %d, want 0", summary.PendingWithdrawals.AmountMinor)
	}
	if summary.TotalWithdrawn.AmountMinor != 60000 {
		t.Errorf("withdrawn = %d, want 60000", summary.TotalWithdrawn.AmountMinor)
	}
	// The payout still reduces what can be requested next.
	if summary.AvailableBalance.AmountMinor != 40000 {
		t.Errorf("available = %d, want 40000", summary.AvailableBalance.AmountMinor)
	}
}

func TestRequestAgainstAvailableBalance(t *testing.T) {
	store := newFakeStore()
	store.earnings["agent-1"] = 100000
	svc := testService(store, activeAgents())

	if _, err := svc.Request(context.Background(), "agent-1", usd(60000)); err != nil {
		t.Fatalf("first request: %v", err)
	}

	// $500 no longer fits into the remaining $400.
	_, err := svc.Request(context.Background(), "agent-1", usd(50000))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("error = %v, want ErrInsufficientBalance", err)
	}

	// $400 exactly does.
	if _, err := svc.Request(context.Background(), "agent-1", usd(40000)); err != nil {
		t.Fatalf("exact-fit request: %v", err)
	}
}

func TestRequestRejectedReleasesBalance(t *testing.T) {
	store := newFakeStore()
	store.earnings["agent-1"] = 100000
	svc := testService(store, activeAgents())

	req, err := svc.Request(context.Background(), "agent-1", usd(100000))
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	// Fully held, nothing more fits.
	if _, err := svc.Request(context.Background(), "agent-1", usd(1)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("error = %v, want ErrInsufficientBalance", err)
	}

	if _, err := svc.Reject(context.Background(), admin, req.ID, "bank details need verification"); err != nil {
		t.Fatalf("Reject: %v", err)
	}

	// Rejection releases the full amount.
	if _, err := svc.Request(context.Background(), "agent-1", usd(100000)); err != nil {
		t.Fatalf("request after rejection: %v", err)
	}
}

func TestRequestValidation(t *testing.T) {
	store := newFakeStore()
	store.earnings["agent-1"] = 100000
	agents := activeAgents()
	agents.agents["agent-2"] = &agent.Agent{
		ID: "agent-2", Status: agent.StatusSuspended, Currency: money.USD,
	}
	svc := testService(store, agents)

	if _, err := svc.Request(context.Background(), "agent-1", usd(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("zero amount: error = %v, want ErrInvalidAmount", err)
	}
	if _, err := svc.Request(context.Background(), "agent-1", usd(-100)); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("negative amount: error = %v, want ErrInvalidAmount", err)
	}
	if _, err := svc.Request(context.Background(), "agent-2", usd(100)); !errors.Is(err, ErrAgentSuspended) {
		t.Errorf("suspended agent: error = %v, want ErrAgentSuspended", err)
	}
	if _, err := svc.Request(context.Background(), "agent-1", money.New(100, money.KES)); err == nil {
		t.Error("currency mismatch accepted")
	}
}

func TestConcurrentRequestsNeverOverdraw(t *testing.T) {
	store := newFakeStore()
	store.earnings["agent-1"] = 100000
	svc := testService(store, activeAgents())

	// 20 concurrent $300 requests against a $1000 balance: at most 3 fit.
	const n = 20
	var wg sync.WaitGroup
	var succeeded int64
	var mu sync.Mutex
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Request(context.Background(), "agent-1", usd(30000))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrInsufficientBalance) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 3 {
		t.Errorf("accepted requests = %d, want 3", succeeded)
	}

	held, _ := store.HeldAmount(context.Background(), "agent-1", "")
	if held > 100000 {
		t.Errorf("held %d exceeds earnings 100000", held)
	}
}

func TestApproveReverifiesWithoutSelfBlocking(t *testing.T) {
	store := newFakeStore()
	store.earnings["agent-1"] = 100000
	svc := testService(store, activeAgents())

	// The request consumes the whole balance; approval must not count the
	// request against itself.
	req, err := svc.Request(context.Background(), "agent-1", usd(100000))
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	approved, err := svc.Approve(context.Background(), admin, req.ID)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if approved.Status != StatusApproved {
		t.Errorf("status = %s, want APPROVED", approved.Status)
	}
	if approved.ReviewedBy != "admin-1" {
		t.Errorf("reviewed_by = %q, want admin-1", approved.ReviewedBy)
	}
}

func TestApproveFailsWhenBalanceShrank(t *testing.T) {
	store := newFakeStore()
	store.earnings["agent-1"] = 100000
	svc := testService(store, activeAgents())

	req, err := svc.Request(context.Background(), "agent-1", usd(80000))
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	// Earnings drop before review (e.g. a refund clawback).
	store.mu.Lock()
	store.earnings["agent-1"] = 50000
	store.mu.Unlock()

	_, err = svc.Approve(context.Background(), admin, req.ID)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("error = %v, want ErrInsufficientBalance", err)
	}
}

func TestRejectRequiresReason(t *testing.T) {
	store := newFakeStore()
	store.earnings["agent-1"] = 100000
	svc := testService(store, activeAgents())

	req, _ := svc.Request(context.Background(), "agent-1", usd(10000))

	if _, err := svc.Reject(context.Background(), admin, req.ID, "too short"); !errors.Is(err, ErrReasonLength) {
		t.Errorf("short reason: error = %v, want ErrReasonLength", err)
	}

	long := make([]byte, 501)
	for i := range long {
		long[i] = 'x'
	}
	if _, err := svc.Reject(context.Background(), admin, req.ID, string(long)); !errors.Is(err, ErrReasonLength) {
		t.Errorf("long reason: error = %v, want ErrReasonLength", err)
	}

	rejected, err := svc.Reject(context.Background(), admin, req.ID, "payout account failed verification")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if rejected.Status != StatusRejected {
		t.Errorf("status = %s, want REJECTED", rejected.Status)
	}
	if rejected.RejectionReason == "" {
		t.Error("rejection reason not recorded")
	}
}

func TestProcessLifecycle(t *testing.T) {
	store := newFakeStore()
	store.earnings["agent-1"] = 100000
	svc := testService(store, activeAgents())

	req, _ := svc.Request(context.Background(), "agent-1", usd(10000))

	// Processing before approval is rejected.
	if _, err := svc.Process(context.Background(), admin, req.ID, "payout-123"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("process pending: error = %v, want ErrInvalidState", err)
	}

	if _, err := svc.Approve(context.Background(), admin, req.ID); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	if _, err := svc.Process(context.Background(), admin, req.ID, ""); err == nil {
		t.Error("empty transaction ref accepted")
	}

	done, err := svc.Process(context.Background(), admin, req.ID, "payout-123")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if done.Status != StatusCompleted {
		t.Errorf("status = %s, want COMPLETED", done.Status)
	}
	if done.TransactionRef != "payout-123" {
		t.Errorf("transaction_ref = %q, want payout-123", done.TransactionRef)
	}
	if done.ProcessedBy != "admin-1" {
		t.Errorf("processed_by = %q, want admin-1", done.ProcessedBy)
	}

	// Completed requests keep holding balance.
	held, _ := store.HeldAmount(context.Background(), "agent-1", "")
	if held != 10000 {
		t.Errorf("held = %d, want 10000", held)
	}

	// Terminal: cannot re-approve or re-process.
	if _, err := svc.Approve(context.Background(), admin, req.ID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("approve completed: error = %v, want ErrInvalidState", err)
	}
	if _, err := svc.Process(context.Background(), admin, req.ID, "payout-456"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("process completed: error = %v, want ErrInvalidState", err)
	}
}

func TestProcessResumesFromProcessing(t *testing.T) {
	store := newFakeStore()
	store.earnings["agent-1"] = 100000
	svc := testService(store, activeAgents())

	req, _ := svc.Request(context.Background(), "agent-1", usd(10000))
	if _, err := svc.Approve(context.Background(), admin, req.ID); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	// A payout interrupted after the first write leaves the request in
	// PROCESSING; a retry must be able to finish it.
	store.mu.Lock()
	store.requests[req.ID].Status = StatusProcessing
	store.mu.Unlock()

	done, err := svc.Process(context.Background(), admin, req.ID, "payout-retry")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if done.Status != StatusCompleted {
		t.Errorf("status = %s, want COMPLETED", done.Status)
	}
	if done.TransactionRef != "payout-retry" {
		t.Errorf("transaction_ref = %q, want payout-retry", done.TransactionRef)
	}
}

func TestStatusMachine(t *testing.T) {
	allowed := map[[2]Status]bool{
		{StatusPending, StatusApproved}:     true,
		{StatusPending, StatusRejected}:     true,
		{StatusApproved, StatusProcessing}:  true,
		{StatusProcessing, StatusCompleted}: true,
	}

	all := []Status{StatusPending, StatusApproved, StatusProcessing, StatusCompleted, StatusRejected}
	for _, from := range all {
		for _, to := range all {
			if got := CanTransition(from, to); got != allowed[[2]Status{from, to}] {
				t.Errorf("CanTransition(%s, %s) = %v", from, to, got)
			}
		}
	}
}
