// Package api exposes payment initiation and the gateway webhook.
package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tourmarket/internal/common/api"
	"tourmarket/internal/common/database"
	"tourmarket/internal/common/money"
	"tourmarket/internal/payment"
)

// Handler handles payment HTTP requests
type Handler struct {
	service *payment.Service
}

// NewHandler creates a new payment handler
func NewHandler(service *payment.Service) *Handler {
	return &Handler{service: service}
}

// Routes mounts the buyer-facing payment routes
func (h *Handler) Routes(r chi.Router) {
	r.Post("/payments", h.Initiate)
}

// WebhookRoutes mounts the gateway callback routes. These sit outside the
// authenticated API surface; gateways authenticate with signatures checked
// upstream.
func (h *Handler) WebhookRoutes(r chi.Router) {
	r.Post("/webhooks/payment", h.Webhook)
}

// Initiate opens a payment attempt for a booking
func (h *Handler) Initiate(w http.ResponseWriter, r *http.Request) {
	var req payment.InitiateRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	p, err := h.service.Initiate(r.Context(), req)
	if err != nil {
		switch {
		case database.IsNotFound(err):
			api.NotFound(w, "booking not found")
		case errors.Is(err, payment.ErrTerminalState):
			api.WriteError(w, http.StatusConflict, api.ErrCodeTerminalState, err.Error())
		case errors.Is(err, payment.ErrNotPayable):
			api.Conflict(w, err.Error())
		case errors.Is(err, payment.ErrNoRoute):
			api.WriteError(w, http.StatusUnprocessableEntity, api.ErrCodeNoRoute, err.Error())
		default:
			api.InternalError(w, "failed to initiate payment")
		}
		return
	}

	api.WriteData(w, http.StatusCreated, p)
}

type webhookRequest struct {
	BookingID   string `json:"booking_id" validate:"required"`
	ExternalRef string `json:"external_ref" validate:"required"`
	Status      string `json:"status" validate:"required,oneof=COMPLETED FAILED"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
}

type webhookResponse struct {
	BookingID     string `json:"booking_id"`
	Status        string `json:"status"`
	AlreadyKnown  bool   `json:"already_known"`
	PaymentStatus string `json:"payment_status"`
	BookingStatus string `json:"booking_status"`
}

// Webhook receives a gateway's payment outcome. Settlement is idempotent:
// a repeated notification for a settled booking returns 200 so gateways
// stop retrying.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	if req.Status == "FAILED" {
		if err := h.service.Fail(r.Context(), req.BookingID, req.ExternalRef); err != nil {
			if errors.Is(err, payment.ErrBookingNotFound) {
				api.NotFound(w, "booking not found")
				return
			}
			api.InternalError(w, "failed to record payment failure")
			return
		}
		api.WriteData(w, http.StatusOK, webhookResponse{
			BookingID: req.BookingID,
			Status:    "FAILED",
		})
		return
	}

	result, err := h.service.Settle(r.Context(), payment.SettleRequest{
		BookingID:   req.BookingID,
		ExternalRef: req.ExternalRef,
		Amount:      money.New(req.AmountMinor, money.Currency(req.Currency)),
	})
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrBookingNotFound):
			api.NotFound(w, "booking not found")
		case errors.Is(err, payment.ErrTerminalState):
			api.WriteError(w, http.StatusConflict, api.ErrCodeTerminalState,
				"booking is cancelled or refunded; payment flagged for review")
		case errors.Is(err, payment.ErrAmountMismatch):
			api.WriteError(w, http.StatusConflict, api.ErrCodeAmountMismatch, err.Error())
		default:
			api.InternalError(w, "failed to settle payment")
		}
		return
	}

	api.WriteData(w, http.StatusOK, webhookResponse{
		BookingID:     result.Booking.ID,
		Status:        "COMPLETED",
		AlreadyKnown:  result.AlreadySettled,
		PaymentStatus: string(result.Booking.PaymentStatus),
		BookingStatus: string(result.Booking.Status),
	})
}
