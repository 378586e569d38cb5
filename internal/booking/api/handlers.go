// Package api exposes the booking lifecycle over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tourmarket/internal/booking"
	"tourmarket/internal/booking/domain"
	"tourmarket/internal/common/api"
	"tourmarket/internal/common/database"
	"tourmarket/internal/common/middleware"
)

// Handler handles booking HTTP requests
type Handler struct {
	service *booking.Service
}

// NewHandler creates a new booking handler
func NewHandler(service *booking.Service) *Handler {
	return &Handler{service: service}
}

// Routes mounts the booking routes
func (h *Handler) Routes(r chi.Router) {
	r.Route("/bookings", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Post("/{id}/confirm", h.Confirm)
		r.Post("/{id}/start", h.Start)
		r.Post("/{id}/complete", h.Complete)
		r.Post("/{id}/cancel", h.Cancel)
		r.With(middleware.RequireRole(middleware.RoleAdmin)).
			Post("/{id}/refund", h.Refund)
	})
}

// Create creates a new booking for the calling buyer
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())

	var req booking.CreateRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}
	req.BuyerID = actor.UserID

	b, err := h.service.Create(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, booking.ErrTourNotFound):
			api.NotFound(w, err.Error())
		case errors.Is(err, booking.ErrTourInactive):
			api.Conflict(w, err.Error())
		case errors.Is(err, booking.ErrPromoRejected):
			api.WriteError(w, http.StatusUnprocessableEntity, api.ErrCodeValidation, err.Error())
		default:
			api.BadRequest(w, err.Error())
		}
		return
	}

	api.WriteData(w, http.StatusCreated, b)
}

// Get returns one booking
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())

	b, err := h.service.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	api.WriteData(w, http.StatusOK, b)
}

// List returns the caller's bookings
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	params := api.GetPaginationParams(r, 20, 100)

	bookings, total, err := h.service.ListForActor(r.Context(), actor, params.Limit, params.Offset)
	if err != nil {
		api.InternalError(w, "failed to list bookings")
		return
	}

	api.WritePaginated(w, bookings, &api.Pagination{
		Limit:   params.Limit,
		Offset:  params.Offset,
		Total:   total,
		HasMore: int64(params.Offset+len(bookings)) < total,
	})
}

// Confirm moves a booking to CONFIRMED
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Confirm)
}

// Start moves a booking to IN_PROGRESS
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Start)
}

// Complete moves a booking to COMPLETED
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Complete)
}

// Refund moves a booking to REFUNDED
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Refund)
}

type cancelBody struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

// Cancel moves a booking to CANCELLED with a reason
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())

	var body cancelBody
	if err := api.DecodeAndValidate(r, &body); err != nil {
		api.ValidationError(w, err)
		return
	}

	b, err := h.service.Cancel(r.Context(), actor, chi.URLParam(r, "id"), body.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}

	api.WriteData(w, http.StatusOK, b)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op func(context.Context, middleware.Actor, string) (*domain.Booking, error)) {
	actor, _ := middleware.GetActor(r.Context())

	b, err := op(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	api.WriteData(w, http.StatusOK, b)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var invalid *domain.InvalidTransitionError
	switch {
	case database.IsNotFound(err):
		api.NotFound(w, "booking not found")
	case errors.Is(err, booking.ErrNotPermitted):
		api.Forbidden(w, err.Error())
	case errors.As(err, &invalid):
		api.WriteError(w, http.StatusConflict, api.ErrCodeInvalidTransition, invalid.Error())
	case errors.Is(err, booking.ErrBookingChanged):
		api.Conflict(w, err.Error())
	default:
		api.InternalError(w, "booking operation failed")
	}
}
