package handler

import (
	"log/slog"
	"net/http"

	"github.com/yourorg/fleetrent/internal/domain"
	"github.com/yourorg/fleetrent/internal/security"
	"github.com/yourorg/fleetrent/internal/service"
)

// VehicleHandler handles the fleet endpoints. Reads are public; mutations
// require a staff permission checked against the role in the user store.
type VehicleHandler struct {
	catalog *service.CatalogService
	users   domain.UserRepository
	authz   *security.AuthorizationService
	logger  *slog.Logger
}

// NewVehicleHandler creates a new vehicle handler.
func NewVehicleHandler(catalog *service.CatalogService, users domain.UserRepository, authz *security.AuthorizationService, logger *slog.Logger) *VehicleHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &VehicleHandler{catalog: catalog, users: users, authz: authz, logger: logger}
}

// require resolves the caller's stored role and checks the permission.
func (h *VehicleHandler) require(r *http.Request, perm security.Permission) error {
	actor, ok := actorFrom(r)
	if !ok {
		return security.ErrForbidden
	}
	role, err := h.users.RoleOf(r.Context(), actor.UserID)
	if err != nil {
		return err
	}
	actor.Role = role
	return h.authz.Require(actor, perm)
}

// List handles GET /api/vehicles.
func (h *VehicleHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.ListVehicles(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if items == nil {
		items = []*domain.VehicleListItem{}
	}
	writeData(w, http.StatusOK, items)
}

// Get handles GET /api/vehicles/{plate}.
func (h *VehicleHandler) Get(w http.ResponseWriter, r *http.Request) {
	detail, err := h.catalog.VehicleDetail(r.Context(), r.PathValue("plate"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, detail)
}

// VehicleRequest is the create/update body for a vehicle.
type VehicleRequest struct {
	Plate       string              `json:"plate"`
	Color       string              `json:"color"`
	Year        int                 `json:"year"`
	DailyPrice  float64             `json:"daily_price"`
	OdometerKM  int                 `json:"odometer_km"`
	State       domain.VehicleState `json:"state"`
	ModelID     int64               `json:"model_id"`
	InsuranceID int64               `json:"insurance_id"`
}

func (req VehicleRequest) vehicle() *domain.Vehicle {
	return &domain.Vehicle{
		Plate:       req.Plate,
		Color:       req.Color,
		Year:        req.Year,
		DailyPrice:  req.DailyPrice,
		OdometerKM:  req.OdometerKM,
		State:       req.State,
		ModelID:     req.ModelID,
		InsuranceID: req.InsuranceID,
	}
}

// Create handles POST /api/vehicles.
func (h *VehicleHandler) Create(w http.ResponseWriter, r *http.Request) {
	if err := h.require(r, security.PermManageVehicles); err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req VehicleRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}
	v := req.vehicle()
	if err := h.catalog.CreateVehicle(r.Context(), v); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, v)
}

// Update handles PUT /api/vehicles/{plate}.
func (h *VehicleHandler) Update(w http.ResponseWriter, r *http.Request) {
	if err := h.require(r, security.PermManageVehicles); err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req VehicleRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}
	v := req.vehicle()
	v.Plate = r.PathValue("plate")
	if err := h.catalog.UpdateVehicle(r.Context(), v); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, v)
}

// Delete handles DELETE /api/vehicles/{plate}.
func (h *VehicleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.require(r, security.PermManageVehicles); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.catalog.DeleteVehicle(r.Context(), r.PathValue("plate")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "vehicle deleted")
}

// SetStateRequest changes a vehicle's lifecycle state.
type SetStateRequest struct {
	State domain.VehicleState `json:"state"`
}

// SetState handles PUT /api/vehicles/{plate}/state.
func (h *VehicleHandler) SetState(w http.ResponseWriter, r *http.Request) {
	if err := h.require(r, security.PermManageVehicles); err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req SetStateRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}
	plate := r.PathValue("plate")
	if err := h.catalog.SetVehicleState(r.Context(), plate, req.State); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"plate": plate, "state": req.State})
}

// Available handles GET /api/vehicles/available?start=...&end=...
func (h *VehicleHandler) Available(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := domain.ParseDate(q.Get("start"))
	if err != nil {
		writeError(w, h.logger, domain.NewValidationError("start", err.Error()))
		return
	}
	end, err := domain.ParseDate(q.Get("end"))
	if err != nil {
		writeError(w, h.logger, domain.NewValidationError("end", err.Error()))
		return
	}

	items, err := h.catalog.AvailableVehicles(r.Context(), domain.DateRange{Start: start, End: end})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if items == nil {
		items = []*domain.VehicleListItem{}
	}
	writeData(w, http.StatusOK, items)
}

// Stats handles GET /api/vehicles/stats. Fleet numbers are internal, so the
// endpoint is staff-only even though the rest of the vehicle reads are
// public.
func (h *VehicleHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if err := h.require(r, security.PermViewFleetStats); err != nil {
		writeError(w, h.logger, err)
		return
	}
	stats, err := h.catalog.FleetStats(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, stats)
}
