package security

import (
	"errors"
	"log/slog"

	"github.com/yourorg/fleetrent/internal/domain"
)

// ErrForbidden is returned when an actor lacks the permission or ownership
// required for an operation. The HTTP facade maps it to 403.
var ErrForbidden = errors.New("forbidden")

// Actor is the authenticated caller of an operation. Role carries the
// authoritative role re-read from the user store, never a client claim.
type Actor struct {
	UserID int64
	Role   domain.Role
}

// Owns reports whether the actor owns a reservation booked for userID.
func (a Actor) Owns(userID int64) bool {
	return a.UserID == userID
}

// Permission represents an action permission.
type Permission string

const (
	PermCreateReservation  Permission = "create_reservation"
	PermConfirmReservation Permission = "confirm_reservation"
	PermCancelAny          Permission = "cancel_any_reservation"
	PermEditAny            Permission = "edit_any_reservation"
	PermDeleteReservation  Permission = "delete_reservation"
	PermManageVehicles     Permission = "manage_vehicles"
	PermViewFleetStats     Permission = "view_fleet_stats"
)

// RolePermissions maps roles to their permissions.
var RolePermissions = map[domain.Role][]Permission{
	domain.RoleAdmin: {
		PermCreateReservation,
		PermConfirmReservation,
		PermCancelAny,
		PermEditAny,
		PermDeleteReservation,
		PermManageVehicles,
		PermViewFleetStats,
	},
	domain.RoleEmployee: {
		PermCreateReservation,
		PermConfirmReservation,
		PermCancelAny,
		PermEditAny,
		PermDeleteReservation,
		PermViewFleetStats,
	},
	domain.RoleClient: {
		PermCreateReservation,
	},
}

// AuthorizationService handles authorization checks.
type AuthorizationService struct {
	logger *slog.Logger
}

// NewAuthorizationService creates a new authorization service.
func NewAuthorizationService(logger *slog.Logger) *AuthorizationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthorizationService{logger: logger}
}

// Require fails with ErrForbidden unless the actor's role grants the
// permission.
func (s *AuthorizationService) Require(actor Actor, perm Permission) error {
	for _, p := range RolePermissions[actor.Role] {
		if p == perm {
			return nil
		}
	}
	s.logger.Warn("permission denied",
		slog.Int64("user_id", actor.UserID),
		slog.String("role", string(actor.Role)),
		slog.String("permission", string(perm)),
	)
	return ErrForbidden
}

// RequireOwnershipOr allows the operation when the actor owns the resource
// or holds the fallback permission.
func (s *AuthorizationService) RequireOwnershipOr(actor Actor, ownerID int64, perm Permission) error {
	if actor.Owns(ownerID) {
		return nil
	}
	return s.Require(actor, perm)
}
