package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/yourorg/fleetrent/internal/domain"
	"github.com/yourorg/fleetrent/internal/featureflags"
	"github.com/yourorg/fleetrent/internal/observability/metrics"
	"github.com/yourorg/fleetrent/internal/reliability/retry"
	"github.com/yourorg/fleetrent/internal/security"
	"github.com/yourorg/fleetrent/pkg/cache"
)

// Clock supplies the current time; injectable so the past-date rule is
// testable.
type Clock func() time.Time

// ReservationService owns the reservation lifecycle. It validates input,
// re-checks the actor's role server-side, and relies on the repository to
// run the availability check and the write as one atomic unit.
type ReservationService struct {
	reservations domain.ReservationRepository
	vehicles     domain.VehicleRepository
	catalog      domain.CatalogRepository
	users        domain.UserRepository
	authz        *security.AuthorizationService
	roleCache    *cache.Cache
	roleCacheTTL time.Duration
	retryCfg     *retry.Config
	logger       *slog.Logger
	now          Clock
}

// NewReservationService creates a new reservation service.
func NewReservationService(
	reservations domain.ReservationRepository,
	vehicles domain.VehicleRepository,
	catalog domain.CatalogRepository,
	users domain.UserRepository,
	authz *security.AuthorizationService,
	roleCache *cache.Cache,
	logger *slog.Logger,
) *ReservationService {
	if logger == nil {
		logger = slog.Default()
	}
	if roleCache == nil {
		roleCache = cache.New()
	}
	return &ReservationService{
		reservations: reservations,
		vehicles:     vehicles,
		catalog:      catalog,
		users:        users,
		authz:        authz,
		roleCache:    roleCache,
		roleCacheTTL: 30 * time.Second,
		// One retry for transient store failures; business errors
		// surface immediately.
		retryCfg: &retry.Config{
			MaxAttempts:       2,
			InitialBackoff:    50 * time.Millisecond,
			MaxBackoff:        time.Second,
			BackoffMultiplier: 2.0,
			RetryIf:           domain.IsStore,
		},
		logger: logger,
		now:    time.Now,
	}
}

// CreateReservationParams captures a booking request.
type CreateReservationParams struct {
	Plate    string
	UserID   int64
	BranchID int64
	Period   domain.DateRange
	Notes    string
}

// Create books a vehicle, returning the new Pending reservation. Booking on
// behalf of another user requires staff.
func (s *ReservationService) Create(ctx context.Context, actor security.Actor, params CreateReservationParams) (*domain.Reservation, error) {
	start := time.Now()

	if params.UserID == 0 {
		params.UserID = actor.UserID
	}
	if params.UserID != actor.UserID {
		resolved, err := s.resolveActor(ctx, actor)
		if err != nil {
			return nil, err
		}
		if err := s.authz.Require(resolved, security.PermEditAny); err != nil {
			return nil, err
		}
	}

	res := &domain.Reservation{
		Plate:    strings.ToUpper(strings.TrimSpace(params.Plate)),
		UserID:   params.UserID,
		BranchID: params.BranchID,
		Period:   params.Period,
		Notes:    params.Notes,
		Status:   domain.StatusPending,
	}
	if err := res.Validate(); err != nil {
		metrics.ObserveBooking("rejected", time.Since(start))
		return nil, err
	}

	today := domain.DateOf(s.now())
	if res.Period.Start.Before(today) {
		metrics.ObserveBooking("rejected", time.Since(start))
		return nil, domain.NewValidationError("start", "start date cannot be in the past")
	}

	if err := s.checkReferences(ctx, res.Plate, &res.UserID, &res.BranchID); err != nil {
		metrics.ObserveBooking("rejected", time.Since(start))
		return nil, err
	}

	// Fast-fail probe with the pure checker. The result may be stale the
	// moment it returns; the repository re-checks inside its transaction.
	if existing, err := s.reservations.ActiveByPlate(ctx, res.Plate); err == nil {
		if c := domain.FindConflict(res.Period, existing, 0); c != nil {
			metrics.ObserveBooking("conflict", time.Since(start))
			return nil, domain.NewOverlapError(res.Plate, c.Period)
		}
	}

	_, err := retry.Do(ctx, s.retryCfg, s.logger, "reservation.create", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.reservations.Create(ctx, res)
	})
	if err != nil {
		if domain.IsConflict(err) {
			metrics.ObserveBooking("conflict", time.Since(start))
		} else {
			metrics.ObserveBooking("error", time.Since(start))
		}
		return nil, err
	}

	metrics.ObserveBooking("created", time.Since(start))
	s.logger.Info("reservation created",
		slog.Int64("reservation_id", res.ID),
		slog.String("plate", res.Plate),
		slog.Int64("user_id", res.UserID),
		slog.String("start", res.Period.Start.String()),
		slog.String("end", res.Period.End.String()),
	)
	return res, nil
}

// UpdateReservationParams is a partial set of field changes. Nil fields are
// left untouched.
type UpdateReservationParams struct {
	Start    *domain.Date
	End      *domain.Date
	Notes    *string
	Plate    *string
	BranchID *int64
	UserID   *int64
	Status   *domain.ReservationStatus
}

func (p UpdateReservationParams) editsFields() bool {
	return p.Start != nil || p.End != nil || p.Notes != nil || p.Plate != nil || p.BranchID != nil || p.UserID != nil
}

// Update applies a partial change set. Owners may edit dates and notes while
// the reservation is Pending; confirming requires staff; date or vehicle
// changes re-run the availability check excluding the reservation itself.
func (s *ReservationService) Update(ctx context.Context, actor security.Actor, id int64, params UpdateReservationParams) (*domain.Reservation, error) {
	res, err := s.reservations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.Status == domain.StatusCancelled {
		return nil, domain.NewInvalidStateError("cannot edit a cancelled reservation")
	}

	actor, err = s.resolveActor(ctx, actor)
	if err != nil {
		return nil, err
	}
	if err := s.authz.RequireOwnershipOr(actor, res.UserID, security.PermEditAny); err != nil {
		return nil, err
	}

	if params.Status != nil {
		if !params.Status.Valid() {
			return nil, domain.NewValidationError("status", "unknown reservation status")
		}
		if *params.Status == domain.StatusConfirmed {
			if err := s.authz.Require(actor, security.PermConfirmReservation); err != nil {
				return nil, err
			}
		}
		if !domain.CanTransition(res.Status, *params.Status) {
			return nil, domain.NewInvalidStateError(
				fmt.Sprintf("cannot transition reservation from %s to %s", res.Status, *params.Status))
		}
	}

	if params.editsFields() {
		// A plain owner may edit fields only before confirmation.
		if !actor.Role.Staff() && res.Status != domain.StatusPending {
			return nil, security.ErrForbidden
		}
		// Reassigning the reservation to another user is always privileged.
		if params.UserID != nil && *params.UserID != res.UserID {
			if err := s.authz.Require(actor, security.PermEditAny); err != nil {
				return nil, err
			}
		}
	}

	updated := *res
	if params.Plate != nil {
		updated.Plate = strings.ToUpper(strings.TrimSpace(*params.Plate))
	}
	if params.Start != nil {
		updated.Period.Start = *params.Start
	}
	if params.End != nil {
		updated.Period.End = *params.End
	}
	if params.Notes != nil {
		updated.Notes = *params.Notes
	}
	if params.BranchID != nil {
		updated.BranchID = *params.BranchID
	}
	if params.UserID != nil {
		updated.UserID = *params.UserID
	}
	if params.Status != nil {
		updated.Status = *params.Status
	}
	if err := updated.Validate(); err != nil {
		return nil, err
	}

	statusOnly := params.Status != nil && !params.editsFields()
	if statusOnly {
		_, err = retry.Do(ctx, s.retryCfg, s.logger, "reservation.set_status", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.reservations.SetStatus(ctx, id, updated.Status)
		})
		if err != nil {
			return nil, err
		}
		metrics.ObserveTransition(string(updated.Status))
		return &updated, nil
	}

	if err := s.checkReferences(ctx, updated.Plate, nil, params.BranchID); err != nil {
		return nil, err
	}
	if params.UserID != nil {
		if err := s.checkUser(ctx, *params.UserID); err != nil {
			return nil, err
		}
	}

	rangeChanged := params.Plate != nil || params.Start != nil || params.End != nil
	if rangeChanged {
		if existing, err := s.reservations.ActiveByPlate(ctx, updated.Plate); err == nil {
			if c := domain.FindConflict(updated.Period, existing, id); c != nil {
				return nil, domain.NewOverlapError(updated.Plate, c.Period)
			}
		}
	}

	_, err = retry.Do(ctx, s.retryCfg, s.logger, "reservation.update", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.reservations.Update(ctx, &updated)
	})
	if err != nil {
		return nil, err
	}
	if params.Status != nil && *params.Status != res.Status {
		metrics.ObserveTransition(string(*params.Status))
	}

	s.logger.Info("reservation updated",
		slog.Int64("reservation_id", id),
		slog.Int64("actor_id", actor.UserID),
	)
	return &updated, nil
}

// Cancel sets the reservation to Cancelled. Cancelling an already-cancelled
// reservation is a no-op success.
func (s *ReservationService) Cancel(ctx context.Context, actor security.Actor, id int64) (*domain.Reservation, error) {
	res, err := s.reservations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.Status == domain.StatusCancelled {
		return res, nil
	}

	actor, err = s.resolveActor(ctx, actor)
	if err != nil {
		return nil, err
	}
	if err := s.authz.RequireOwnershipOr(actor, res.UserID, security.PermCancelAny); err != nil {
		return nil, err
	}

	_, err = retry.Do(ctx, s.retryCfg, s.logger, "reservation.cancel", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.reservations.SetStatus(ctx, id, domain.StatusCancelled)
	})
	if err != nil {
		return nil, err
	}

	metrics.ObserveTransition(string(domain.StatusCancelled))
	s.logger.Info("reservation cancelled",
		slog.Int64("reservation_id", id),
		slog.Int64("actor_id", actor.UserID),
	)
	res.Status = domain.StatusCancelled
	return res, nil
}

// Delete physically removes a reservation. Only Pending and Cancelled
// reservations may be deleted; administrators may override with the
// unrestricted_delete flag.
func (s *ReservationService) Delete(ctx context.Context, actor security.Actor, id int64) error {
	res, err := s.reservations.GetByID(ctx, id)
	if err != nil {
		return err
	}

	actor, err = s.resolveActor(ctx, actor)
	if err != nil {
		return err
	}
	if err := s.authz.RequireOwnershipOr(actor, res.UserID, security.PermDeleteReservation); err != nil {
		return err
	}

	if res.Status == domain.StatusConfirmed {
		override := featureflags.Enabled(featureflags.UnrestrictedDelete) && actor.Role == domain.RoleAdmin
		if !override {
			return domain.NewInvalidStateError("only pending or cancelled reservations can be deleted")
		}
	}

	_, err = retry.Do(ctx, s.retryCfg, s.logger, "reservation.delete", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.reservations.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.logger.Info("reservation deleted",
		slog.Int64("reservation_id", id),
		slog.Int64("actor_id", actor.UserID),
	)
	return nil
}

// List returns reservations with display fields, newest first. Plain clients
// only ever see their own bookings regardless of the filter they send.
func (s *ReservationService) List(ctx context.Context, actor security.Actor, filter domain.ReservationFilter) ([]*domain.ReservationListItem, error) {
	actor, err := s.resolveActor(ctx, actor)
	if err != nil {
		return nil, err
	}
	if !actor.Role.Staff() {
		userID := actor.UserID
		filter.UserID = &userID
	}
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, domain.NewValidationError("status", "unknown reservation status")
	}
	if filter.From != nil && filter.To != nil && !filter.To.After(*filter.From) {
		return nil, domain.NewValidationError("to", "to must be after from")
	}
	return retry.Do(ctx, s.retryCfg, s.logger, "reservation.list", func(ctx context.Context) ([]*domain.ReservationListItem, error) {
		return s.reservations.List(ctx, filter)
	})
}

// checkReferences verifies the vehicle and optionally the user and branch
// exist, failing with NotFound naming the missing entity.
func (s *ReservationService) checkReferences(ctx context.Context, plate string, userID, branchID *int64) error {
	ok, err := s.vehicles.Exists(ctx, plate)
	if err != nil {
		return err
	}
	if !ok {
		return domain.NewNotFoundError("vehicle", plate)
	}
	if userID != nil {
		if err := s.checkUser(ctx, *userID); err != nil {
			return err
		}
	}
	if branchID != nil {
		ok, err := s.catalog.BranchExists(ctx, *branchID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.NewNotFoundError("branch", strconv.FormatInt(*branchID, 10))
		}
	}
	return nil
}

func (s *ReservationService) checkUser(ctx context.Context, id int64) error {
	ok, err := s.users.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.NewNotFoundError("user", strconv.FormatInt(id, 10))
	}
	return nil
}

// resolveActor replaces whatever role the transport supplied with the
// authoritative one from the user store. Client-side role claims are never
// trusted.
func (s *ReservationService) resolveActor(ctx context.Context, actor security.Actor) (security.Actor, error) {
	key := "role:" + strconv.FormatInt(actor.UserID, 10)
	if v, ok := s.roleCache.Get(key); ok {
		actor.Role = v.(domain.Role)
		return actor, nil
	}
	role, err := s.users.RoleOf(ctx, actor.UserID)
	if err != nil {
		return actor, err
	}
	s.roleCache.Set(key, role, s.roleCacheTTL)
	actor.Role = role
	return actor, nil
}
