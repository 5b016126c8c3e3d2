package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/yourorg/fleetrent/internal/domain"
	"github.com/yourorg/fleetrent/internal/infrastructure/redis"
	"github.com/yourorg/fleetrent/internal/observability/metrics"
	"github.com/yourorg/fleetrent/internal/reliability/circuitbreaker"
)

const vehiclesCacheKey = "catalog:vehicles"

// CatalogService manages the fleet and the read-only lookup tables. The
// vehicle list is served cache-aside from Redis behind a circuit breaker so
// a misbehaving cache degrades to direct reads instead of failing requests.
type CatalogService struct {
	vehicles domain.VehicleRepository
	catalog  domain.CatalogRepository
	cache    *redis.Client
	breaker  *circuitbreaker.Breaker
	cacheTTL time.Duration
	logger   *slog.Logger
}

// NewCatalogService creates a new catalog service. cache may be nil, in
// which case every read goes to the store.
func NewCatalogService(vehicles domain.VehicleRepository, catalog domain.CatalogRepository, cache *redis.Client, cacheTTL time.Duration, logger *slog.Logger) *CatalogService {
	if logger == nil {
		logger = slog.Default()
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	breaker := circuitbreaker.New(5, 2, 30*time.Second)
	breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Warn("catalog cache breaker state change",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	})
	return &CatalogService{
		vehicles: vehicles,
		catalog:  catalog,
		cache:    cache,
		breaker:  breaker,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// ListVehicles returns the fleet with model, brand and insurance names.
func (s *CatalogService) ListVehicles(ctx context.Context) ([]*domain.VehicleListItem, error) {
	if items, ok := s.cachedVehicles(ctx); ok {
		return items, nil
	}
	items, err := s.vehicles.List(ctx)
	if err != nil {
		return nil, err
	}
	s.storeVehicles(ctx, items)
	return items, nil
}

// GetVehicle returns a single vehicle row.
func (s *CatalogService) GetVehicle(ctx context.Context, plate string) (*domain.VehicleListItem, error) {
	return s.vehicles.GetByPlate(ctx, normalizePlate(plate))
}

// VehicleDetail returns a vehicle with its recent reservations.
func (s *CatalogService) VehicleDetail(ctx context.Context, plate string) (*domain.VehicleDetail, error) {
	return s.vehicles.GetDetail(ctx, normalizePlate(plate))
}

// CreateVehicle adds a vehicle to the fleet. New vehicles default to the
// available state.
func (s *CatalogService) CreateVehicle(ctx context.Context, v *domain.Vehicle) error {
	v.Plate = normalizePlate(v.Plate)
	if v.State == "" {
		v.State = domain.StateAvailable
	}
	if err := v.Validate(); err != nil {
		return err
	}
	if err := s.vehicles.Create(ctx, v); err != nil {
		return err
	}
	s.invalidateVehicles(ctx)
	s.logger.Info("vehicle created", slog.String("plate", v.Plate))
	return nil
}

// UpdateVehicle replaces a vehicle's attributes.
func (s *CatalogService) UpdateVehicle(ctx context.Context, v *domain.Vehicle) error {
	v.Plate = normalizePlate(v.Plate)
	if err := v.Validate(); err != nil {
		return err
	}
	if err := s.vehicles.Update(ctx, v); err != nil {
		return err
	}
	s.invalidateVehicles(ctx)
	return nil
}

// DeleteVehicle removes a vehicle. The repository refuses while active
// reservations reference it.
func (s *CatalogService) DeleteVehicle(ctx context.Context, plate string) error {
	if err := s.vehicles.Delete(ctx, normalizePlate(plate)); err != nil {
		return err
	}
	s.invalidateVehicles(ctx)
	s.logger.Info("vehicle deleted", slog.String("plate", normalizePlate(plate)))
	return nil
}

// SetVehicleState changes a vehicle's operational state.
func (s *CatalogService) SetVehicleState(ctx context.Context, plate string, state domain.VehicleState) error {
	if !state.Valid() {
		return domain.NewValidationError("state", "unknown vehicle state")
	}
	if err := s.vehicles.SetState(ctx, normalizePlate(plate), state); err != nil {
		return err
	}
	s.invalidateVehicles(ctx)
	return nil
}

// AvailableVehicles returns vehicles free for the whole period, cheapest
// first.
func (s *CatalogService) AvailableVehicles(ctx context.Context, period domain.DateRange) ([]*domain.VehicleListItem, error) {
	if !period.Valid() {
		return nil, domain.NewValidationError("end", "end date must be after start date")
	}
	return s.vehicles.Available(ctx, period)
}

// FleetStats returns aggregate fleet counts and averages.
func (s *CatalogService) FleetStats(ctx context.Context) (*domain.FleetStats, error) {
	return s.vehicles.Stats(ctx)
}

// Models returns all vehicle models with their brand names.
func (s *CatalogService) Models(ctx context.Context) ([]*domain.Model, error) {
	return s.catalog.Models(ctx)
}

// Brands returns all brands.
func (s *CatalogService) Brands(ctx context.Context) ([]*domain.Brand, error) {
	return s.catalog.Brands(ctx)
}

// Insurances returns all insurance policies.
func (s *CatalogService) Insurances(ctx context.Context) ([]*domain.Insurance, error) {
	return s.catalog.Insurances(ctx)
}

// Branches returns all branches.
func (s *CatalogService) Branches(ctx context.Context) ([]*domain.Branch, error) {
	return s.catalog.Branches(ctx)
}

func (s *CatalogService) cachedVehicles(ctx context.Context) ([]*domain.VehicleListItem, bool) {
	if s.cache == nil || !s.breaker.Allow() {
		metrics.ObserveCacheLookup("bypass")
		return nil, false
	}
	data, err := s.cache.Get(ctx, vehiclesCacheKey)
	if errors.Is(err, redis.ErrNotFound) {
		s.breaker.RecordSuccess()
		metrics.ObserveCacheLookup("miss")
		return nil, false
	}
	if err != nil {
		s.breaker.RecordFailure()
		metrics.ObserveCacheLookup("error")
		s.logger.Warn("catalog cache read failed", slog.String("error", err.Error()))
		return nil, false
	}
	s.breaker.RecordSuccess()

	var items []*domain.VehicleListItem
	if err := json.Unmarshal([]byte(data), &items); err != nil {
		metrics.ObserveCacheLookup("error")
		return nil, false
	}
	metrics.ObserveCacheLookup("hit")
	return items, true
}

func (s *CatalogService) storeVehicles(ctx context.Context, items []*domain.VehicleListItem) {
	if s.cache == nil || !s.breaker.Allow() {
		return
	}
	data, err := json.Marshal(items)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, vehiclesCacheKey, string(data), s.cacheTTL); err != nil {
		s.breaker.RecordFailure()
		s.logger.Warn("catalog cache write failed", slog.String("error", err.Error()))
		return
	}
	s.breaker.RecordSuccess()
}

func (s *CatalogService) invalidateVehicles(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, vehiclesCacheKey); err != nil {
		s.logger.Warn("catalog cache invalidation failed", slog.String("error", err.Error()))
	}
}

func normalizePlate(plate string) string {
	return strings.ToUpper(strings.TrimSpace(plate))
}
