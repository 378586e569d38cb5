// Package api exposes promo code validation over HTTP.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"tourmarket/internal/common/api"
	"tourmarket/internal/common/middleware"
	"tourmarket/internal/common/money"
	"tourmarket/internal/promo"
)

// Handler handles promo HTTP requests
type Handler struct {
	service *promo.Service
}

// NewHandler creates a new promo handler
func NewHandler(service *promo.Service) *Handler {
	return &Handler{service: service}
}

// Routes mounts the promo routes
func (h *Handler) Routes(r chi.Router) {
	r.Post("/promo/validate", h.Validate)
}

type validateRequest struct {
	Code        string `json:"code" validate:"required"`
	TourID      string `json:"tour_id" validate:"required"`
	AmountMinor int64  `json:"amount_minor" validate:"required,gt=0"`
	Currency    string `json:"currency" validate:"required,len=3"`
}

// Validate checks a promo code against an order. Inapplicable codes are a
// 200 with valid=false, not an error status; only a malformed request
// fails.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	actor, _ := middleware.GetActor(r.Context())
	amount := money.New(req.AmountMinor, money.Currency(req.Currency))

	result, err := h.service.Validate(r.Context(), req.Code, req.TourID, amount, actor.UserID)
	if err != nil {
		api.InternalError(w, "failed to validate promo code")
		return
	}

	api.WriteData(w, http.StatusOK, result)
}
