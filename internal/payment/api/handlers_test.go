package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"tourmarket/internal/agent"
	"tourmarket/internal/booking/domain"
	"tourmarket/internal/common/database"
	"tourmarket/internal/common/events"
	"tourmarket/internal/common/money"
	"tourmarket/internal/payment"
)

type webhookStore struct {
	mu       sync.Mutex
	bookings map[string]*domain.Booking
	payments map[string]*payment.Payment
}

func (s *webhookStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *webhookStore) GetBooking(ctx context.Context, id string) (*domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	copied := *b
	return &copied, nil
}

func (s *webhookStore) MarkSettled(ctx context.Context, b *domain.Booking) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.bookings[b.ID]
	if stored.PaymentStatus == domain.PaymentCompleted {
		return false, nil
	}
	copied := *b
	s.bookings[b.ID] = &copied
	return true, nil
}

func (s *webhookStore) CreatePayment(ctx context.Context, p *payment.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *p
	s.payments[p.ID] = &copied
	return nil
}

func (s *webhookStore) GetPayment(ctx context.Context, id string) (*payment.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (s *webhookStore) GetPendingPayment(ctx context.Context, bookingID string) (*payment.Payment, error) {
	return nil, database.ErrNotFound
}

func (s *webhookStore) UpdatePaymentOutcome(ctx context.Context, bookingID string, status payment.Status, externalRef string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.BookingID == bookingID && p.Status == payment.StatusPending {
			p.Status = status
			p.ExternalRef = externalRef
			p.UpdatedAt = at
			return true, nil
		}
	}
	return false, nil
}

type webhookAgents struct{}

func (webhookAgents) GetAgent(ctx context.Context, id string) (*agent.Agent, error) {
	return &agent.Agent{ID: id, Status: agent.StatusActive, CommissionBps: 1500, Currency: money.USD}, nil
}

func (webhookAgents) ListCommissionTiers(ctx context.Context) ([]agent.CommissionTier, error) {
	return nil, nil
}

func (webhookAgents) GetLifetimeStats(ctx context.Context, agentID string) (agent.LifetimeStats, error) {
	return agent.LifetimeStats{}, nil
}

func webhookServer(bookings ...*domain.Booking) *httptest.Server {
	store := &webhookStore{
		bookings: make(map[string]*domain.Booking),
		payments: make(map[string]*payment.Payment),
	}
	for _, b := range bookings {
		store.bookings[b.ID] = b
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := payment.NewService(store, webhookAgents{}, events.NopPublisher{}, logger)
	handler := NewHandler(svc)

	r := chi.NewRouter()
	handler.WebhookRoutes(r)
	return httptest.NewServer(r)
}

func webhookBooking() *domain.Booking {
	now := time.Now().UTC()
	return &domain.Booking{
		ID:            "bk-1",
		TourID:        "tour-1",
		BuyerID:       "buyer-1",
		AgentID:       "agent-1",
		Status:        domain.StatusConfirmed,
		PaymentStatus: domain.PaymentPending,
		Adults:        1,
		StartsAt:      now,
		EndsAt:        now.Add(24 * time.Hour),
		Price: domain.Breakdown{
			BaseAmount:  money.New(20000, money.USD),
			TotalAmount: money.New(20000, money.USD),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func postWebhook(t *testing.T, url string, body map[string]interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url+"/webhooks/payment", "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	return resp
}

func completedBody(bookingID string, amount int64) map[string]interface{} {
	return map[string]interface{}{
		"booking_id":   bookingID,
		"external_ref": "ext-1",
		"status":       "COMPLETED",
		"amount_minor": amount,
		"currency":     "USD",
	}
}

func TestWebhookSettles(t *testing.T) {
	srv := webhookServer(webhookBooking())
	defer srv.Close()

	resp := postWebhook(t, srv.URL, completedBody("bk-1", 20000))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var envelope struct {
		Data struct {
			PaymentStatus string `json:"payment_status"`
			BookingStatus string `json:"booking_status"`
			AlreadyKnown  bool   `json:"already_known"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.PaymentStatus != "COMPLETED" {
		t.Errorf("payment_status = %s", envelope.Data.PaymentStatus)
	}
	if envelope.Data.BookingStatus != "PAID" {
		t.Errorf("booking_status = %s", envelope.Data.BookingStatus)
	}
	if envelope.Data.AlreadyKnown {
		t.Error("first notification flagged as already known")
	}
}

func TestWebhookRepeatReturns200(t *testing.T) {
	srv := webhookServer(webhookBooking())
	defer srv.Close()

	first := postWebhook(t, srv.URL, completedBody("bk-1", 20000))
	first.Body.Close()

	resp := postWebhook(t, srv.URL, completedBody("bk-1", 20000))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("repeat status = %d, want 200 so the gateway stops retrying", resp.StatusCode)
	}

	var envelope struct {
		Data struct {
			AlreadyKnown bool `json:"already_known"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !envelope.Data.AlreadyKnown {
		t.Error("repeat notification not flagged as already known")
	}
}

func TestWebhookAmountMismatchIs409(t *testing.T) {
	srv := webhookServer(webhookBooking())
	defer srv.Close()

	resp := postWebhook(t, srv.URL, completedBody("bk-1", 19999))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}

	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Error.Code != "AMOUNT_MISMATCH" {
		t.Errorf("error code = %s, want AMOUNT_MISMATCH", envelope.Error.Code)
	}
}

func TestWebhookTerminalBookingIs409(t *testing.T) {
	b := webhookBooking()
	b.Status = domain.StatusCancelled

	srv := webhookServer(b)
	defer srv.Close()

	resp := postWebhook(t, srv.URL, completedBody("bk-1", 20000))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestWebhookUnknownBookingIs404(t *testing.T) {
	srv := webhookServer()
	defer srv.Close()

	resp := postWebhook(t, srv.URL, completedBody("missing", 20000))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestWebhookRejectsMalformedPayload(t *testing.T) {
	srv := webhookServer(webhookBooking())
	defer srv.Close()

	resp := postWebhook(t, srv.URL, map[string]interface{}{
		"booking_id": "bk-1",
		"status":     "MAYBE",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
}
