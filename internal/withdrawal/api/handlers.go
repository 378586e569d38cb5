// Package api exposes agent withdrawal and balance endpoints plus the
// admin review queue.
package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tourmarket/internal/common/api"
	"tourmarket/internal/common/database"
	"tourmarket/internal/common/middleware"
	"tourmarket/internal/common/money"
	"tourmarket/internal/withdrawal"
)

// Handler handles withdrawal HTTP requests
type Handler struct {
	service *withdrawal.Service
}

// NewHandler creates a new withdrawal handler
func NewHandler(service *withdrawal.Service) *Handler {
	return &Handler{service: service}
}

// Routes mounts the agent-facing withdrawal routes
func (h *Handler) Routes(r chi.Router) {
	r.Route("/withdrawals", func(r chi.Router) {
		r.Use(middleware.RequireRole(middleware.RoleAgent, middleware.RoleAdmin))
		r.Post("/", h.Request)
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
	})
	r.With(middleware.RequireRole(middleware.RoleAgent)).
		Get("/agent/balance", h.Balance)
}

// AdminRoutes mounts the admin review routes
func (h *Handler) AdminRoutes(r chi.Router) {
	r.Route("/admin/withdrawals", func(r chi.Router) {
		r.Use(middleware.RequireRole(middleware.RoleAdmin))
		r.Get("/", h.ListPending)
		r.Post("/{id}/approve", h.Approve)
		r.Post("/{id}/reject", h.Reject)
		r.Post("/{id}/process", h.Process)
	})
}

type requestBody struct {
	AmountMinor int64  `json:"amount_minor" validate:"required,gt=0"`
	Currency    string `json:"currency" validate:"required,len=3"`
}

// Request opens a withdrawal for the calling agent
func (h *Handler) Request(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())

	var body requestBody
	if err := api.DecodeAndValidate(r, &body); err != nil {
		api.ValidationError(w, err)
		return
	}

	req, err := h.service.Request(r.Context(), actor.AgentID,
		money.New(body.AmountMinor, money.Currency(body.Currency)))
	if err != nil {
		switch {
		case errors.Is(err, withdrawal.ErrInsufficientBalance):
			api.WriteError(w, http.StatusBadRequest, api.ErrCodeInsufficientBalance, err.Error())
		case errors.Is(err, withdrawal.ErrAgentSuspended):
			api.Forbidden(w, err.Error())
		case errors.Is(err, withdrawal.ErrInvalidAmount):
			api.BadRequest(w, err.Error())
		case database.IsNotFound(err):
			api.NotFound(w, "agent not found")
		default:
			api.InternalError(w, "failed to create withdrawal request")
		}
		return
	}

	api.WriteData(w, http.StatusCreated, req)
}

// balanceResponse presents the balance in major units for display;
// stored values stay in minor units.
type balanceResponse struct {
	AgentID            string  `json:"agent_id"`
	Currency           string  `json:"currency"`
	TotalEarnings      float64 `json:"total_earnings"`
	MonthlyEarnings    float64 `json:"monthly_earnings"`
	PendingWithdrawals float64 `json:"pending_withdrawals"`
	TotalWithdrawn     float64 `json:"total_withdrawn"`
	AvailableBalance   float64 `json:"available_balance"`
}

// Balance returns the calling agent's derived balance
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())

	summary, err := h.service.Balance(r.Context(), actor.AgentID)
	if err != nil {
		if database.IsNotFound(err) {
			api.NotFound(w, "agent not found")
			return
		}
		api.InternalError(w, "failed to compute balance")
		return
	}

	api.WriteData(w, http.StatusOK, balanceResponse{
		AgentID:            summary.AgentID,
		Currency:           string(summary.TotalEarnings.Currency),
		TotalEarnings:      summary.TotalEarnings.ToMajor(),
		MonthlyEarnings:    summary.MonthlyEarnings.ToMajor(),
		PendingWithdrawals: summary.PendingWithdrawals.ToMajor(),
		TotalWithdrawn:     summary.TotalWithdrawn.ToMajor(),
		AvailableBalance:   summary.AvailableBalance.ToMajor(),
	})
}

// Get returns one withdrawal request
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())

	req, err := h.service.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		if database.IsNotFound(err) {
			api.NotFound(w, "withdrawal not found")
			return
		}
		api.InternalError(w, "failed to load withdrawal")
		return
	}

	api.WriteData(w, http.StatusOK, req)
}

// List returns the calling agent's withdrawals
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	params := api.GetPaginationParams(r, 20, 100)

	requests, total, err := h.service.ListByAgent(r.Context(), actor.AgentID, params.Limit, params.Offset)
	if err != nil {
		api.InternalError(w, "failed to list withdrawals")
		return
	}

	api.WritePaginated(w, requests, &api.Pagination{
		Limit:   params.Limit,
		Offset:  params.Offset,
		Total:   total,
		HasMore: int64(params.Offset+len(requests)) < total,
	})
}

// ListPending returns the admin review queue, oldest first
func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	params := api.GetPaginationParams(r, 20, 100)

	requests, total, err := h.service.ListPending(r.Context(), params.Limit, params.Offset)
	if err != nil {
		api.InternalError(w, "failed to list withdrawals")
		return
	}

	api.WritePaginated(w, requests, &api.Pagination{
		Limit:   params.Limit,
		Offset:  params.Offset,
		Total:   total,
		HasMore: int64(params.Offset+len(requests)) < total,
	})
}

// Approve approves a pending withdrawal
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())

	req, err := h.service.Approve(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.writeAdminError(w, err)
		return
	}

	api.WriteData(w, http.StatusOK, req)
}

type rejectBody struct {
	Reason string `json:"reason" validate:"required,min=10,max=500"`
}

// Reject rejects a pending withdrawal with a reason
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())

	var body rejectBody
	if err := api.DecodeAndValidate(r, &body); err != nil {
		api.ValidationError(w, err)
		return
	}

	req, err := h.service.Reject(r.Context(), actor, chi.URLParam(r, "id"), body.Reason)
	if err != nil {
		h.writeAdminError(w, err)
		return
	}

	api.WriteData(w, http.StatusOK, req)
}

type processBody struct {
	TransactionRef string `json:"transaction_ref" validate:"required"`
}

// Process records the payout of an approved withdrawal
func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())

	var body processBody
	if err := api.DecodeAndValidate(r, &body); err != nil {
		api.ValidationError(w, err)
		return
	}

	req, err := h.service.Process(r.Context(), actor, chi.URLParam(r, "id"), body.TransactionRef)
	if err != nil {
		h.writeAdminError(w, err)
		return
	}

	api.WriteData(w, http.StatusOK, req)
}

func (h *Handler) writeAdminError(w http.ResponseWriter, err error) {
	switch {
	case database.IsNotFound(err):
		api.NotFound(w, "withdrawal not found")
	case errors.Is(err, withdrawal.ErrInvalidState):
		api.BadRequest(w, err.Error())
	case errors.Is(err, withdrawal.ErrRequestChanged):
		api.Conflict(w, err.Error())
	case errors.Is(err, withdrawal.ErrInsufficientBalance):
		api.WriteError(w, http.StatusBadRequest, api.ErrCodeInsufficientBalance, err.Error())
	case errors.Is(err, withdrawal.ErrReasonLength):
		api.BadRequest(w, err.Error())
	default:
		api.InternalError(w, "withdrawal operation failed")
	}
}
