package service

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/yourorg/fleetrent/internal/domain"
)

// In-memory repository fakes. The reservation fake performs its overlap
// check and its write under one mutex, matching the atomicity contract of
// the real store.

type fakeReservationRepo struct {
	mu      sync.Mutex
	nextID  int64
	items   map[int64]*domain.Reservation
	failErr error // when set, every write fails with this error once
}

func newFakeReservationRepo() *fakeReservationRepo {
	return &fakeReservationRepo{items: map[int64]*domain.Reservation{}}
}

func (f *fakeReservationRepo) activeForPlate(plate string) []*domain.Reservation {
	var out []*domain.Reservation
	for _, r := range f.items {
		if r.Plate == plate && r.Status.Active() {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeReservationRepo) takeFailure() error {
	err := f.failErr
	f.failErr = nil
	return err
}

func (f *fakeReservationRepo) Create(_ context.Context, res *domain.Reservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return err
	}
	if c := domain.FindConflict(res.Period, f.activeForPlate(res.Plate), 0); c != nil {
		return domain.NewOverlapError(res.Plate, c.Period)
	}
	f.nextID++
	res.ID = f.nextID
	res.CreatedAt = time.Now()
	res.UpdatedAt = res.CreatedAt
	cp := *res
	f.items[res.ID] = &cp
	return nil
}

func (f *fakeReservationRepo) Update(_ context.Context, res *domain.Reservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return err
	}
	if _, ok := f.items[res.ID]; !ok {
		return domain.NewNotFoundError("reservation", strconv.FormatInt(res.ID, 10))
	}
	if c := domain.FindConflict(res.Period, f.activeForPlate(res.Plate), res.ID); c != nil {
		return domain.NewOverlapError(res.Plate, c.Period)
	}
	res.UpdatedAt = time.Now()
	cp := *res
	f.items[res.ID] = &cp
	return nil
}

func (f *fakeReservationRepo) GetByID(_ context.Context, id int64) (*domain.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.items[id]
	if !ok {
		return nil, domain.NewNotFoundError("reservation", strconv.FormatInt(id, 10))
	}
	cp := *r
	return &cp, nil
}

func (f *fakeReservationRepo) SetStatus(_ context.Context, id int64, status domain.ReservationStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return err
	}
	r, ok := f.items[id]
	if !ok {
		return domain.NewNotFoundError("reservation", strconv.FormatInt(id, 10))
	}
	r.Status = status
	r.UpdatedAt = time.Now()
	return nil
}

func (f *fakeReservationRepo) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[id]; !ok {
		return domain.NewNotFoundError("reservation", strconv.FormatInt(id, 10))
	}
	delete(f.items, id)
	return nil
}

func (f *fakeReservationRepo) List(_ context.Context, filter domain.ReservationFilter) ([]*domain.ReservationListItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.ReservationListItem
	for _, r := range f.items {
		if filter.Status != nil && r.Status != *filter.Status {
			continue
		}
		if filter.UserID != nil && r.UserID != *filter.UserID {
			continue
		}
		if filter.Plate != nil && r.Plate != *filter.Plate {
			continue
		}
		if filter.From != nil && r.Period.End.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !r.Period.Start.Before(*filter.To) {
			continue
		}
		out = append(out, &domain.ReservationListItem{Reservation: *r})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (f *fakeReservationRepo) ActiveByPlate(_ context.Context, plate string) ([]*domain.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Reservation
	for _, r := range f.activeForPlate(plate) {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeReservationRepo) CountActive(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.items {
		if r.Status.Active() {
			n++
		}
	}
	return n, nil
}

type fakeVehicleRepo struct {
	mu           sync.Mutex
	items        map[string]*domain.VehicleListItem
	reservations *fakeReservationRepo
}

func newFakeVehicleRepo() *fakeVehicleRepo {
	return &fakeVehicleRepo{items: map[string]*domain.VehicleListItem{}}
}

func (f *fakeVehicleRepo) add(plate string, price float64, state domain.VehicleState) {
	f.items[plate] = &domain.VehicleListItem{
		Vehicle: domain.Vehicle{
			Plate:       plate,
			Year:        2023,
			DailyPrice:  price,
			State:       state,
			ModelID:     1,
			InsuranceID: 1,
		},
	}
}

func (f *fakeVehicleRepo) Create(_ context.Context, v *domain.Vehicle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[v.Plate]; ok {
		return domain.NewConflictError("duplicate vehicle")
	}
	f.items[v.Plate] = &domain.VehicleListItem{Vehicle: *v}
	return nil
}

func (f *fakeVehicleRepo) GetByPlate(_ context.Context, plate string) (*domain.VehicleListItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.items[plate]
	if !ok {
		return nil, domain.NewNotFoundError("vehicle", plate)
	}
	cp := *v
	return &cp, nil
}

func (f *fakeVehicleRepo) GetDetail(ctx context.Context, plate string) (*domain.VehicleDetail, error) {
	item, err := f.GetByPlate(ctx, plate)
	if err != nil {
		return nil, err
	}
	return &domain.VehicleDetail{VehicleListItem: *item}, nil
}

func (f *fakeVehicleRepo) List(_ context.Context) ([]*domain.VehicleListItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.VehicleListItem
	for _, v := range f.items {
		cp := *v
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Plate > out[j].Plate })
	return out, nil
}

func (f *fakeVehicleRepo) Update(_ context.Context, v *domain.Vehicle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[v.Plate]
	if !ok {
		return domain.NewNotFoundError("vehicle", v.Plate)
	}
	item.Vehicle = *v
	return nil
}

func (f *fakeVehicleRepo) Delete(_ context.Context, plate string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[plate]; !ok {
		return domain.NewNotFoundError("vehicle", plate)
	}
	if f.reservations != nil {
		f.reservations.mu.Lock()
		active := len(f.reservations.activeForPlate(plate))
		f.reservations.mu.Unlock()
		if active > 0 {
			return domain.NewConflictError("vehicle has active reservations and cannot be deleted")
		}
	}
	delete(f.items, plate)
	return nil
}

func (f *fakeVehicleRepo) SetState(_ context.Context, plate string, state domain.VehicleState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.items[plate]
	if !ok {
		return domain.NewNotFoundError("vehicle", plate)
	}
	v.State = state
	return nil
}

func (f *fakeVehicleRepo) Available(_ context.Context, period domain.DateRange) ([]*domain.VehicleListItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.VehicleListItem
	for _, v := range f.items {
		if v.State != domain.StateAvailable {
			continue
		}
		if f.reservations != nil {
			f.reservations.mu.Lock()
			conflict := domain.FindConflict(period, f.reservations.activeForPlate(v.Plate), 0)
			f.reservations.mu.Unlock()
			if conflict != nil {
				continue
			}
		}
		cp := *v
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DailyPrice < out[j].DailyPrice })
	return out, nil
}

func (f *fakeVehicleRepo) Stats(_ context.Context) (*domain.FleetStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := &domain.FleetStats{}
	var priceSum float64
	var odoSum int
	for _, v := range f.items {
		stats.Total++
		priceSum += v.DailyPrice
		odoSum += v.OdometerKM
		switch v.State {
		case domain.StateAvailable:
			stats.Available++
		case domain.StateRented:
			stats.Rented++
		case domain.StateMaintenance:
			stats.Maintenance++
		case domain.StateOutOfService:
			stats.OutOfService++
		}
	}
	if stats.Total > 0 {
		stats.AvgDailyPrice = priceSum / float64(stats.Total)
		stats.AvgOdometerKM = float64(odoSum) / float64(stats.Total)
	}
	return stats, nil
}

func (f *fakeVehicleRepo) Exists(_ context.Context, plate string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.items[plate]
	return ok, nil
}

func (f *fakeVehicleRepo) DailyPrice(_ context.Context, plate string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.items[plate]
	if !ok {
		return 0, domain.NewNotFoundError("vehicle", plate)
	}
	return v.DailyPrice, nil
}

type fakeCatalogRepo struct {
	branches map[int64]*domain.Branch
}

func newFakeCatalogRepo() *fakeCatalogRepo {
	return &fakeCatalogRepo{branches: map[int64]*domain.Branch{
		1: {ID: 1, Name: "Downtown", City: "Lisbon"},
	}}
}

func (f *fakeCatalogRepo) Models(_ context.Context) ([]*domain.Model, error) {
	return []*domain.Model{{ID: 1, Name: "Corolla", BrandID: 1, BrandName: "Toyota"}}, nil
}

func (f *fakeCatalogRepo) Brands(_ context.Context) ([]*domain.Brand, error) {
	return []*domain.Brand{{ID: 1, Name: "Toyota"}}, nil
}

func (f *fakeCatalogRepo) Insurances(_ context.Context) ([]*domain.Insurance, error) {
	return []*domain.Insurance{{ID: 1, Company: "AXA", CoverageType: "full", DailyCost: 7.5}}, nil
}

func (f *fakeCatalogRepo) Branches(_ context.Context) ([]*domain.Branch, error) {
	out := make([]*domain.Branch, 0, len(f.branches))
	for _, b := range f.branches {
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeCatalogRepo) BranchExists(_ context.Context, id int64) (bool, error) {
	_, ok := f.branches[id]
	return ok, nil
}

type fakeUserRepo struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]*domain.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{items: map[int64]*domain.User{}}
}

func (f *fakeUserRepo) add(id int64, role domain.Role) {
	f.items[id] = &domain.User{
		ID:    id,
		Email: "user" + strconv.FormatInt(id, 10) + "@example.com",
		Role:  role,
	}
	if id > f.nextID {
		f.nextID = id
	}
}

func (f *fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.items {
		if u.Email == user.Email {
			return domain.NewConflictError("duplicate email")
		}
	}
	f.nextID++
	user.ID = f.nextID
	user.CreatedAt = time.Now()
	cp := *user
	f.items[user.ID] = &cp
	return nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id int64) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.items[id]
	if !ok {
		return nil, domain.NewNotFoundError("user", strconv.FormatInt(id, 10))
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.items {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.NewNotFoundError("user", email)
}

func (f *fakeUserRepo) Exists(_ context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.items[id]
	return ok, nil
}

func (f *fakeUserRepo) RoleOf(_ context.Context, id int64) (domain.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.items[id]
	if !ok {
		return "", domain.NewNotFoundError("user", strconv.FormatInt(id, 10))
	}
	return u.Role, nil
}
