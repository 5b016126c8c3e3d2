package domain

import (
	"context"
	"time"
)

// VehicleState is the vehicle lifecycle state. Exactly four values exist;
// anything else is rejected at the boundary.
type VehicleState string

const (
	StateAvailable    VehicleState = "available"
	StateRented       VehicleState = "rented"
	StateMaintenance  VehicleState = "maintenance"
	StateOutOfService VehicleState = "out_of_service"
)

// Valid reports whether the state is one of the four known values.
func (s VehicleState) Valid() bool {
	switch s {
	case StateAvailable, StateRented, StateMaintenance, StateOutOfService:
		return true
	}
	return false
}

// Vehicle is a fleet vehicle, identified by its plate.
type Vehicle struct {
	Plate       string       `json:"plate"`
	Color       string       `json:"color"`
	Year        int          `json:"year"`
	DailyPrice  float64      `json:"daily_price"`
	OdometerKM  int          `json:"odometer_km"`
	State       VehicleState `json:"state"`
	ModelID     int64        `json:"model_id"`
	InsuranceID int64        `json:"insurance_id"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Validate checks vehicle shape before it reaches the store.
func (v *Vehicle) Validate() error {
	if v.Plate == "" {
		return NewValidationError("plate", "plate is required")
	}
	if v.Year <= 0 {
		return NewValidationError("year", "year is required")
	}
	if v.DailyPrice <= 0 {
		return NewValidationError("daily_price", "daily price must be positive")
	}
	if v.OdometerKM < 0 {
		return NewValidationError("odometer_km", "odometer reading cannot be negative")
	}
	if !v.State.Valid() {
		return NewValidationError("state", "state must be available, rented, maintenance or out_of_service")
	}
	if v.ModelID <= 0 {
		return NewValidationError("model", "model is required")
	}
	if v.InsuranceID <= 0 {
		return NewValidationError("insurance", "insurance is required")
	}
	return nil
}

// VehicleListItem is a vehicle joined with its model, brand and insurance
// display fields.
type VehicleListItem struct {
	Vehicle
	ModelName        string  `json:"model_name"`
	VehicleType      string  `json:"vehicle_type"`
	Capacity         int     `json:"capacity"`
	BrandName        string  `json:"brand_name"`
	InsuranceCompany string  `json:"insurance_company"`
	CoverageType     string  `json:"coverage_type"`
	InsuranceCost    float64 `json:"insurance_daily_cost"`
}

// VehicleDetail is the full vehicle view: joined fields plus recent booking
// history.
type VehicleDetail struct {
	VehicleListItem
	RecentReservations []*Reservation `json:"recent_reservations"`
}

// FleetStats aggregates the fleet by lifecycle state.
type FleetStats struct {
	Total         int     `json:"total"`
	Available     int     `json:"available"`
	Rented        int     `json:"rented"`
	Maintenance   int     `json:"maintenance"`
	OutOfService  int     `json:"out_of_service"`
	AvgDailyPrice float64 `json:"avg_daily_price"`
	AvgOdometerKM float64 `json:"avg_odometer_km"`
}

// Model is a vehicle model, joined with its brand for display.
type Model struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	VehicleType string `json:"vehicle_type"`
	Capacity    int    `json:"capacity"`
	BrandID     int64  `json:"brand_id"`
	BrandName   string `json:"brand_name"`
}

// Brand is a vehicle manufacturer.
type Brand struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Insurance is a coverage policy vehicles reference.
type Insurance struct {
	ID           int64   `json:"id"`
	Company      string  `json:"company"`
	CoverageType string  `json:"coverage_type"`
	DailyCost    float64 `json:"daily_cost"`
	ContactPhone string  `json:"contact_phone"`
}

// Branch is a rental office.
type Branch struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	City     string `json:"city"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Schedule string `json:"schedule"`
}

// VehicleRepository is the vehicle side of the catalog store.
type VehicleRepository interface {
	Create(ctx context.Context, v *Vehicle) error
	GetByPlate(ctx context.Context, plate string) (*VehicleListItem, error)
	GetDetail(ctx context.Context, plate string) (*VehicleDetail, error)
	List(ctx context.Context) ([]*VehicleListItem, error)
	Update(ctx context.Context, v *Vehicle) error
	// Delete removes the vehicle iff it has no active reservation; otherwise
	// it fails with a conflict Error.
	Delete(ctx context.Context, plate string) error
	SetState(ctx context.Context, plate string, state VehicleState) error
	// Available returns vehicles in state available with no active
	// reservation overlapping the range, cheapest first.
	Available(ctx context.Context, period DateRange) ([]*VehicleListItem, error)
	Stats(ctx context.Context) (*FleetStats, error)
	Exists(ctx context.Context, plate string) (bool, error)
	DailyPrice(ctx context.Context, plate string) (float64, error)
}

// CatalogRepository serves the read-only reference tables.
type CatalogRepository interface {
	Models(ctx context.Context) ([]*Model, error)
	Brands(ctx context.Context) ([]*Brand, error)
	Insurances(ctx context.Context) ([]*Insurance, error)
	Branches(ctx context.Context) ([]*Branch, error)
	BranchExists(ctx context.Context, id int64) (bool, error)
}
