package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/fleetrent/internal/domain"
	"github.com/yourorg/fleetrent/internal/security"
)

func mustDate(t *testing.T, s string) domain.Date {
	t.Helper()
	d, err := domain.ParseDate(s)
	require.NoError(t, err)
	return d
}

type reservationFixture struct {
	svc      *ReservationService
	resRepo  *fakeReservationRepo
	vehRepo  *fakeVehicleRepo
	userRepo *fakeUserRepo
}

// newReservationFixture wires a service against in-memory fakes with a fixed
// clock at 2026-03-01 so test dates stay in the future.
func newReservationFixture(t *testing.T) *reservationFixture {
	t.Helper()
	resRepo := newFakeReservationRepo()
	vehRepo := newFakeVehicleRepo()
	vehRepo.reservations = resRepo
	vehRepo.add("AA-11-BB", 45.0, domain.StateAvailable)
	vehRepo.add("CC-22-DD", 60.0, domain.StateAvailable)

	userRepo := newFakeUserRepo()
	userRepo.add(1, domain.RoleClient)
	userRepo.add(2, domain.RoleClient)
	userRepo.add(10, domain.RoleEmployee)
	userRepo.add(99, domain.RoleAdmin)

	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	svc := NewReservationService(resRepo, vehRepo, newFakeCatalogRepo(), userRepo,
		security.NewAuthorizationService(logger), nil, logger)
	svc.now = func() time.Time {
		return time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	}
	return &reservationFixture{svc: svc, resRepo: resRepo, vehRepo: vehRepo, userRepo: userRepo}
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func (fx *reservationFixture) create(t *testing.T, plate string, userID int64, start, end string) *domain.Reservation {
	t.Helper()
	res, err := fx.svc.Create(context.Background(), security.Actor{UserID: userID}, CreateReservationParams{
		Plate:    plate,
		UserID:   userID,
		BranchID: 1,
		Period:   domain.DateRange{Start: mustDate(t, start), End: mustDate(t, end)},
	})
	require.NoError(t, err)
	return res
}

func TestCreateReservation(t *testing.T) {
	fx := newReservationFixture(t)

	res := fx.create(t, "AA-11-BB", 1, "2026-03-10", "2026-03-15")

	assert.Equal(t, domain.StatusPending, res.Status)
	assert.NotZero(t, res.ID)
	assert.Equal(t, "AA-11-BB", res.Plate)
}

func TestCreateOverlapRejected(t *testing.T) {
	fx := newReservationFixture(t)
	fx.create(t, "AA-11-BB", 1, "2026-03-10", "2026-03-15")

	_, err := fx.svc.Create(context.Background(), security.Actor{UserID: 2}, CreateReservationParams{
		Plate:    "AA-11-BB",
		UserID:   2,
		BranchID: 1,
		Period:   domain.DateRange{Start: mustDate(t, "2026-03-12"), End: mustDate(t, "2026-03-20")},
	})

	require.Error(t, err)
	assert.True(t, domain.IsConflict(err))
	assert.Contains(t, err.Error(), "AA-11-BB")
}

func TestCreateAdjacentRangesBothSucceed(t *testing.T) {
	fx := newReservationFixture(t)

	fx.create(t, "AA-11-BB", 1, "2026-03-10", "2026-03-15")
	// Ends and starts on the same day: half-open ranges, no collision.
	fx.create(t, "AA-11-BB", 2, "2026-03-15", "2026-03-20")
}

func TestCreateSameRangeDifferentVehicles(t *testing.T) {
	fx := newReservationFixture(t)

	fx.create(t, "AA-11-BB", 1, "2026-03-10", "2026-03-15")
	fx.create(t, "CC-22-DD", 2, "2026-03-10", "2026-03-15")
}

func TestCreateValidation(t *testing.T) {
	fx := newReservationFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		params CreateReservationParams
	}{
		{
			name: "end before start",
			params: CreateReservationParams{
				Plate: "AA-11-BB", UserID: 1, BranchID: 1,
				Period: domain.DateRange{Start: mustDate(t, "2026-03-15"), End: mustDate(t, "2026-03-10")},
			},
		},
		{
			name: "zero-length range",
			params: CreateReservationParams{
				Plate: "AA-11-BB", UserID: 1, BranchID: 1,
				Period: domain.DateRange{Start: mustDate(t, "2026-03-15"), End: mustDate(t, "2026-03-15")},
			},
		},
		{
			name: "start in the past",
			params: CreateReservationParams{
				Plate: "AA-11-BB", UserID: 1, BranchID: 1,
				Period: domain.DateRange{Start: mustDate(t, "2026-02-20"), End: mustDate(t, "2026-03-10")},
			},
		},
		{
			name: "missing plate",
			params: CreateReservationParams{
				UserID: 1, BranchID: 1,
				Period: domain.DateRange{Start: mustDate(t, "2026-03-10"), End: mustDate(t, "2026-03-15")},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.svc.Create(ctx, security.Actor{UserID: 1}, tt.params)
			require.Error(t, err)
			assert.True(t, domain.IsValidation(err), "want validation error, got %v", err)
		})
	}
}

func TestCreateUnknownReferences(t *testing.T) {
	fx := newReservationFixture(t)
	ctx := context.Background()
	period := domain.DateRange{Start: mustDate(t, "2026-03-10"), End: mustDate(t, "2026-03-15")}
	client := security.Actor{UserID: 1}
	staff := security.Actor{UserID: 10}

	_, err := fx.svc.Create(ctx, client, CreateReservationParams{Plate: "ZZ-99-ZZ", UserID: 1, BranchID: 1, Period: period})
	assert.True(t, domain.IsNotFound(err))

	_, err = fx.svc.Create(ctx, staff, CreateReservationParams{Plate: "AA-11-BB", UserID: 777, BranchID: 1, Period: period})
	assert.True(t, domain.IsNotFound(err))

	_, err = fx.svc.Create(ctx, client, CreateReservationParams{Plate: "AA-11-BB", UserID: 1, BranchID: 42, Period: period})
	assert.True(t, domain.IsNotFound(err))
}

func TestCreateOnBehalfRequiresStaff(t *testing.T) {
	fx := newReservationFixture(t)
	ctx := context.Background()
	period := domain.DateRange{Start: mustDate(t, "2026-03-10"), End: mustDate(t, "2026-03-15")}

	// A client booking for someone else is denied.
	_, err := fx.svc.Create(ctx, security.Actor{UserID: 1}, CreateReservationParams{
		Plate: "AA-11-BB", UserID: 2, BranchID: 1, Period: period,
	})
	assert.ErrorIs(t, err, security.ErrForbidden)

	// An employee may book for a client.
	res, err := fx.svc.Create(ctx, security.Actor{UserID: 10}, CreateReservationParams{
		Plate: "AA-11-BB", UserID: 2, BranchID: 1, Period: period,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.UserID)
}

func TestConcurrentCreateOneWinner(t *testing.T) {
	fx := newReservationFixture(t)
	period := domain.DateRange{Start: mustDate(t, "2026-03-10"), End: mustDate(t, "2026-03-15")}

	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = fx.svc.Create(context.Background(), security.Actor{UserID: 1}, CreateReservationParams{
				Plate: "AA-11-BB", UserID: 1, BranchID: 1, Period: period,
			})
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.True(t, domain.IsConflict(err), "loser should see a conflict, got %v", err)
		}
	}
	assert.Equal(t, 1, winners, "exactly one concurrent booking must win")
}

func TestCreateRetriesTransientStoreFailure(t *testing.T) {
	fx := newReservationFixture(t)
	fx.resRepo.failErr = domain.NewStoreError(errors.New("connection reset"))

	res := fx.create(t, "AA-11-BB", 1, "2026-03-10", "2026-03-15")
	assert.NotZero(t, res.ID)
}

func TestCancelIdempotent(t *testing.T) {
	fx := newReservationFixture(t)
	res := fx.create(t, "AA-11-BB", 1, "2026-03-10", "2026-03-15")
	actor := security.Actor{UserID: 1}

	first, err := fx.svc.Cancel(context.Background(), actor, res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, first.Status)

	second, err := fx.svc.Cancel(context.Background(), actor, res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, second.Status)
}

func TestCancelFreesTheRange(t *testing.T) {
	fx := newReservationFixture(t)
	res := fx.create(t, "AA-11-BB", 1, "2026-03-10", "2026-03-15")

	_, err := fx.svc.Cancel(context.Background(), security.Actor{UserID: 1}, res.ID)
	require.NoError(t, err)

	fx.create(t, "AA-11-BB", 2, "2026-03-10", "2026-03-15")
}

func TestCancelAuthorization(t *testing.T) {
	fx := newReservationFixture(t)
	res := fx.create(t, "AA-11-BB", 1, "2026-03-10", "2026-03-15")

	// Another client cannot cancel someone else's booking.
	_, err := fx.svc.Cancel(context.Background(), security.Actor{UserID: 2}, res.ID)
	assert.ErrorIs(t, err, security.ErrForbidden)

	// An employee can.
	got, err := fx.svc.Cancel(context.Background(), security.Actor{UserID: 10}, res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, got.Status)
}

func TestConfirmRequiresStaff(t *testing.T) {
	fx := newReservationFixture(t)
	res := fx.create(t, "AA-11-BB", 1, "2026-03-10", "2026-03-15")
	confirmed := domain.StatusConfirmed

	// The owner is a plain client: confirming their own booking is denied.
	_, err := fx.svc.Update(context.Background(), security.Actor{UserID: 1}, res.ID,
		UpdateReservationParams{Status: &confirmed})
	assert.ErrorIs(t, err, security.ErrForbidden)

	got, err := fx.svc.Update(context.Background(), security.Actor{UserID: 10}, res.ID,
		UpdateReservationParams{Status: &confirmed})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, got.Status)
}

func TestIllegalTransitionsRejected(t *testing.T) {
	fx := newReservationFixture(t)
	ctx := context.Background()
	staff := security.Actor{UserID: 10}

	res := fx.create(t, "AA-11-BB", 1, "2026-03-10", "2026-03-15")
	confirmed := domain.StatusConfirmed
	pending := domain.StatusPending

	_, err := fx.svc.Update(ctx, staff, res.ID, UpdateReservationParams{Status: &confirmed})
	require.NoError(t, err)

	// Confirmed cannot go back to pending.
	_, err = fx.svc.Update(ctx, staff, res.ID, UpdateReservationParams{Status: &pending})
	require.Error(t, err)
	assert.True(t, domain.IsInvalidState(err))

	// Nothing moves out of cancelled, and cancelled bookings reject edits.
	_, err = fx.svc.Cancel(ctx, staff, res.ID)
	require.NoError(t, err)
	_, err = fx.svc.Update(ctx, staff, res.ID, UpdateReservationParams{Status: &confirmed})
	require.Error(t, err)
	assert.True(t, domain.IsInvalidState(err))
}

func TestUpdateDatesRechecksAvailability(t *testing.T) {
	fx := newReservationFixture(t)
	ctx := context.Background()
	first := fx.create(t, "AA-11-BB", 1, "2026-03-10", "2026-03-15")
	second := fx.create(t, "AA-11-BB", 2, "2026-03-20", "2026-03-25")

	// Moving the second booking onto the first collides.
	start := mustDate(t, "2026-03-12")
	end := mustDate(t, "2026-03-18")
	_, err := fx.svc.Update(ctx, security.Actor{UserID: 2}, second.ID,
		UpdateReservationParams{Start: &start, End: &end})
	require.Error(t, err)
	assert.True(t, domain.IsConflict(err))

	// Re-submitting a booking's own range is not a self-conflict.
	sameStart := mustDate(t, "2026-03-10")
	sameEnd := mustDate(t, "2026-03-16")
	got, err := fx.svc.Update(ctx, security.Actor{UserID: 1}, first.ID,
		UpdateReservationParams{Start: &sameStart, End: &sameEnd})
	require.NoError(t, err)
	assert.Equal(t, "2026-03-16", got.Period.End.String())
}

func TestOwnerCannotEditAfterConfirmation(t *testing.T) {
	fx := newReservationFixture(t)
	ctx := context.Background()
	res := fx.create(t, "AA-11-BB", 1, "2026-03-10", "2026-03-15")

	confirmed := domain.StatusConfirmed
	_, err := fx.svc.Update(ctx, security.Actor{UserID: 10}, res.ID, UpdateReservationParams{Status: &confirmed})
	require.NoError(t, err)

	notes := "need a child seat"
	_, err = fx.svc.Update(ctx, security.Actor{UserID: 1}, res.ID, UpdateReservationParams{Notes: &notes})
	assert.ErrorIs(t, err, security.ErrForbidden)

	// Staff still can.
	_, err = fx.svc.Update(ctx, security.Actor{UserID: 10}, res.ID, UpdateReservationParams{Notes: &notes})
	require.NoError(t, err)
}

func TestUpdateReassignUserIsPrivileged(t *testing.T) {
	fx := newReservationFixture(t)
	ctx := context.Background()
	res := fx.create(t, "AA-11-BB", 1, "2026-03-10", "2026-03-15")

	other := int64(2)
	_, err := fx.svc.Update(ctx, security.Actor{UserID: 1}, res.ID, UpdateReservationParams{UserID: &other})
	assert.ErrorIs(t, err, security.ErrForbidden)

	got, err := fx.svc.Update(ctx, security.Actor{UserID: 99}, res.ID, UpdateReservationParams{UserID: &other})
	require.NoError(t, err)
	assert.Equal(t, other, got.UserID)
}

func TestDeleteGuard(t *testing.T) {
	fx := newReservationFixture(t)
	ctx := context.Background()
	staff := security.Actor{UserID: 10}

	res := fx.create(t, "AA-11-BB", 1, "2026-03-10", "2026-03-15")
	confirmed := domain.StatusConfirmed
	_, err := fx.svc.Update(ctx, staff, res.ID, UpdateReservationParams{Status: &confirmed})
	require.NoError(t, err)

	// Confirmed reservations cannot be deleted.
	err = fx.svc.Delete(ctx, staff, res.ID)
	require.Error(t, err)
	assert.True(t, domain.IsInvalidState(err))

	// Cancelled ones can.
	_, err = fx.svc.Cancel(ctx, staff, res.ID)
	require.NoError(t, err)
	require.NoError(t, fx.svc.Delete(ctx, staff, res.ID))

	_, err = fx.resRepo.GetByID(ctx, res.ID)
	assert.True(t, domain.IsNotFound(err))
}

func TestDeleteOwnPendingAllowed(t *testing.T) {
	fx := newReservationFixture(t)
	res := fx.create(t, "AA-11-BB", 1, "2026-03-10", "2026-03-15")

	require.NoError(t, fx.svc.Delete(context.Background(), security.Actor{UserID: 1}, res.ID))
}

func TestDeleteConfirmedWithAdminOverride(t *testing.T) {
	fx := newReservationFixture(t)
	ctx := context.Background()
	admin := security.Actor{UserID: 99}

	res := fx.create(t, "AA-11-BB", 1, "2026-03-10", "2026-03-15")
	confirmed := domain.StatusConfirmed
	_, err := fx.svc.Update(ctx, admin, res.ID, UpdateReservationParams{Status: &confirmed})
	require.NoError(t, err)

	t.Setenv("FLAG_UNRESTRICTED_DELETE", "true")
	require.NoError(t, fx.svc.Delete(ctx, admin, res.ID))
}

func TestListOrderingAndFilter(t *testing.T) {
	fx := newReservationFixture(t)
	ctx := context.Background()
	staff := security.Actor{UserID: 10}

	a := fx.create(t, "AA-11-BB", 1, "2026-03-10", "2026-03-15")
	b := fx.create(t, "CC-22-DD", 2, "2026-03-10", "2026-03-15")
	c := fx.create(t, "AA-11-BB", 1, "2026-03-20", "2026-03-25")

	all, err := fx.svc.List(ctx, staff, domain.ReservationFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{c.ID, b.ID, a.ID}, []int64{all[0].ID, all[1].ID, all[2].ID})

	user := int64(1)
	mine, err := fx.svc.List(ctx, staff, domain.ReservationFilter{UserID: &user})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	bad := domain.ReservationStatus("parked")
	_, err = fx.svc.List(ctx, staff, domain.ReservationFilter{Status: &bad})
	assert.True(t, domain.IsValidation(err))
}

func TestListScopedToOwnerForClients(t *testing.T) {
	fx := newReservationFixture(t)
	ctx := context.Background()

	fx.create(t, "AA-11-BB", 1, "2026-03-10", "2026-03-15")
	fx.create(t, "CC-22-DD", 2, "2026-03-10", "2026-03-15")

	// A client asking for everything still only sees their own bookings.
	got, err := fx.svc.List(ctx, security.Actor{UserID: 2}, domain.ReservationFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].UserID)

	// Nor can a client filter their way into someone else's.
	other := int64(1)
	got, err = fx.svc.List(ctx, security.Actor{UserID: 2}, domain.ReservationFilter{UserID: &other})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].UserID)
}
