package handler

import (
	"log/slog"
	"net/http"

	"github.com/yourorg/fleetrent/internal/service"
)

// CatalogHandler serves the read-only reference tables the booking screens
// populate their dropdowns from.
type CatalogHandler struct {
	catalog *service.CatalogService
	logger  *slog.Logger
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(catalog *service.CatalogService, logger *slog.Logger) *CatalogHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogHandler{catalog: catalog, logger: logger}
}

// Models handles GET /api/models.
func (h *CatalogHandler) Models(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.Models(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, items)
}

// Brands handles GET /api/brands.
func (h *CatalogHandler) Brands(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.Brands(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, items)
}

// Insurances handles GET /api/insurance.
func (h *CatalogHandler) Insurances(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.Insurances(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, items)
}

// Branches handles GET /api/branches.
func (h *CatalogHandler) Branches(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.Branches(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, items)
}
