package domain

import (
	"context"
	"time"
)

// ReservationStatus is the booking lifecycle state.
type ReservationStatus string

const (
	StatusPending   ReservationStatus = "pending"
	StatusConfirmed ReservationStatus = "confirmed"
	StatusCancelled ReservationStatus = "cancelled"
)

// Valid reports whether the status is one of the known values.
func (s ReservationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

// Active reports whether the reservation counts against vehicle availability.
func (s ReservationStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

// allowedTransitions is the booking state machine. Cancelled is terminal.
var allowedTransitions = map[ReservationStatus][]ReservationStatus{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCancelled},
	StatusCancelled: {},
}

// CanTransition reports whether from -> to is a legal status change.
// A no-op transition (from == to) is always allowed.
func CanTransition(from, to ReservationStatus) bool {
	if from == to {
		return true
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Reservation books one vehicle for one user across a half-open date range.
type Reservation struct {
	ID        int64             `json:"id"`
	Plate     string            `json:"plate"`
	UserID    int64             `json:"user_id"`
	BranchID  int64             `json:"branch_id"`
	Period    DateRange         `json:"period"`
	Notes     string            `json:"notes"`
	Status    ReservationStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Validate checks the fields a reservation must always carry. Existence of
// the referenced vehicle, user and branch is the service's job; this only
// covers shape.
func (r *Reservation) Validate() error {
	if r.Plate == "" {
		return NewValidationError("plate", "plate is required")
	}
	if r.UserID <= 0 {
		return NewValidationError("user", "user is required")
	}
	if r.BranchID <= 0 {
		return NewValidationError("branch", "branch is required")
	}
	if r.Period.Start.IsZero() {
		return NewValidationError("start", "start date is required")
	}
	if r.Period.End.IsZero() {
		return NewValidationError("end", "end date is required")
	}
	if !r.Period.Valid() {
		return NewValidationError("end", "end date must be after start date")
	}
	if !r.Status.Valid() {
		return NewValidationError("status", "unknown reservation status")
	}
	return nil
}

// ReservationListItem is a reservation joined with the display fields the
// booking screens need.
type ReservationListItem struct {
	Reservation
	ModelName  string  `json:"model_name"`
	UserName   string  `json:"user_name"`
	BranchName string  `json:"branch_name"`
	DailyPrice float64 `json:"daily_price"`
}

// ReservationFilter narrows List results. Nil fields mean "any".
type ReservationFilter struct {
	Status *ReservationStatus
	UserID *int64
	Plate  *string
	From   *Date
	To     *Date
}

// ReservationRepository is the reservation store. Create and Update must run
// their availability check and their write as a single atomic unit; two
// concurrent calls for the same vehicle and overlapping ranges must never
// both succeed.
type ReservationRepository interface {
	// Create inserts the reservation iff no active reservation for the same
	// vehicle overlaps its range, assigning ID on success. Returns an
	// overlap Error on collision.
	Create(ctx context.Context, res *Reservation) error
	// Update rewrites the reservation iff no other active reservation for
	// the (possibly new) vehicle overlaps the (possibly new) range.
	Update(ctx context.Context, res *Reservation) error
	GetByID(ctx context.Context, id int64) (*Reservation, error)
	// SetStatus changes only the status column.
	SetStatus(ctx context.Context, id int64, status ReservationStatus) error
	// Delete physically removes the row.
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, filter ReservationFilter) ([]*ReservationListItem, error)
	// ActiveByPlate returns the pending and confirmed reservations for one
	// vehicle, for read-only availability probes.
	ActiveByPlate(ctx context.Context, plate string) ([]*Reservation, error)
	// CountActive returns the number of active reservations across the fleet.
	CountActive(ctx context.Context) (int, error)
}
