package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/yourorg/fleetrent/internal/domain"
	"github.com/yourorg/fleetrent/internal/security"
	"github.com/yourorg/fleetrent/internal/security/middleware"
	"github.com/yourorg/fleetrent/internal/service"
)

// ReservationHandler handles the reservation endpoints.
type ReservationHandler struct {
	reservations *service.ReservationService
	logger       *slog.Logger
}

// NewReservationHandler creates a new reservation handler.
func NewReservationHandler(reservations *service.ReservationService, logger *slog.Logger) *ReservationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReservationHandler{reservations: reservations, logger: logger}
}

func actorFrom(r *http.Request) (security.Actor, bool) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		return security.Actor{}, false
	}
	return security.Actor{UserID: claims.UserID}, true
}

// CreateReservationRequest is the booking request body. Dates are
// "YYYY-MM-DD"; the end day is the hand-back day and stays free.
type CreateReservationRequest struct {
	Plate    string      `json:"plate"`
	UserID   int64       `json:"user_id,omitempty"`
	BranchID int64       `json:"branch_id"`
	Start    domain.Date `json:"start"`
	End      domain.Date `json:"end"`
	Notes    string      `json:"notes"`
}

// Create handles POST /api/reservations.
func (h *ReservationHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeErrorMessage(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req CreateReservationRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	res, err := h.reservations.Create(r.Context(), actor, service.CreateReservationParams{
		Plate:    req.Plate,
		UserID:   req.UserID,
		BranchID: req.BranchID,
		Period:   domain.DateRange{Start: req.Start, End: req.End},
		Notes:    req.Notes,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, res)
}

// List handles GET /api/reservations.
func (h *ReservationHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeErrorMessage(w, http.StatusUnauthorized, "authentication required")
		return
	}

	filter, err := parseReservationFilter(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	items, err := h.reservations.List(r.Context(), actor, filter)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if items == nil {
		items = []*domain.ReservationListItem{}
	}
	writeData(w, http.StatusOK, items)
}

// UpdateReservationRequest is a partial update; absent fields stay as they
// are.
type UpdateReservationRequest struct {
	Plate    *string                   `json:"plate,omitempty"`
	UserID   *int64                    `json:"user_id,omitempty"`
	BranchID *int64                    `json:"branch_id,omitempty"`
	Start    *domain.Date              `json:"start,omitempty"`
	End      *domain.Date              `json:"end,omitempty"`
	Notes    *string                   `json:"notes,omitempty"`
	Status   *domain.ReservationStatus `json:"status,omitempty"`
}

// Update handles PUT /api/reservations/{id}.
func (h *ReservationHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeErrorMessage(w, http.StatusUnauthorized, "authentication required")
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req UpdateReservationRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	res, err := h.reservations.Update(r.Context(), actor, id, service.UpdateReservationParams{
		Plate:    req.Plate,
		UserID:   req.UserID,
		BranchID: req.BranchID,
		Start:    req.Start,
		End:      req.End,
		Notes:    req.Notes,
		Status:   req.Status,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

// Cancel handles POST /api/reservations/{id}/cancel.
func (h *ReservationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeErrorMessage(w, http.StatusUnauthorized, "authentication required")
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.reservations.Cancel(r.Context(), actor, id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

// Delete handles DELETE /api/reservations/{id}.
func (h *ReservationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeErrorMessage(w, http.StatusUnauthorized, "authentication required")
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.reservations.Delete(r.Context(), actor, id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "reservation deleted")
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NewValidationError("id", "id must be a positive integer")
	}
	return id, nil
}

func parseReservationFilter(r *http.Request) (domain.ReservationFilter, error) {
	q := r.URL.Query()
	var filter domain.ReservationFilter

	if raw := q.Get("status"); raw != "" {
		status := domain.ReservationStatus(raw)
		filter.Status = &status
	}
	if raw := q.Get("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return filter, domain.NewValidationError("user_id", "user_id must be an integer")
		}
		filter.UserID = &id
	}
	if raw := q.Get("plate"); raw != "" {
		filter.Plate = &raw
	}
	if raw := q.Get("from"); raw != "" {
		d, err := domain.ParseDate(raw)
		if err != nil {
			return filter, domain.NewValidationError("from", err.Error())
		}
		filter.From = &d
	}
	if raw := q.Get("to"); raw != "" {
		d, err := domain.ParseDate(raw)
		if err != nil {
			return filter, domain.NewValidationError("to", err.Error())
		}
		filter.To = &d
	}
	return filter, nil
}
