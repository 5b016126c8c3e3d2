package handler

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/yourorg/fleetrent/internal/domain"
)

// Compact in-memory stores backing the endpoint tests. The reservation store
// keeps the check-and-write atomic under its mutex like the real one.

type memReservations struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]*domain.Reservation
}

func newMemReservations() *memReservations {
	return &memReservations{items: map[int64]*domain.Reservation{}}
}

func (m *memReservations) active(plate string) []*domain.Reservation {
	var out []*domain.Reservation
	for _, r := range m.items {
		if r.Plate == plate && r.Status.Active() {
			out = append(out, r)
		}
	}
	return out
}

func (m *memReservations) Create(_ context.Context, res *domain.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c := domain.FindConflict(res.Period, m.active(res.Plate), 0); c != nil {
		return domain.NewOverlapError(res.Plate, c.Period)
	}
	m.nextID++
	res.ID = m.nextID
	res.CreatedAt = time.Now()
	res.UpdatedAt = res.CreatedAt
	cp := *res
	m.items[res.ID] = &cp
	return nil
}

func (m *memReservations) Update(_ context.Context, res *domain.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[res.ID]; !ok {
		return domain.NewNotFoundError("reservation", strconv.FormatInt(res.ID, 10))
	}
	if c := domain.FindConflict(res.Period, m.active(res.Plate), res.ID); c != nil {
		return domain.NewOverlapError(res.Plate, c.Period)
	}
	cp := *res
	m.items[res.ID] = &cp
	return nil
}

func (m *memReservations) GetByID(_ context.Context, id int64) (*domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.items[id]
	if !ok {
		return nil, domain.NewNotFoundError("reservation", strconv.FormatInt(id, 10))
	}
	cp := *r
	return &cp, nil
}

func (m *memReservations) SetStatus(_ context.Context, id int64, status domain.ReservationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.items[id]
	if !ok {
		return domain.NewNotFoundError("reservation", strconv.FormatInt(id, 10))
	}
	r.Status = status
	return nil
}

func (m *memReservations) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return domain.NewNotFoundError("reservation", strconv.FormatInt(id, 10))
	}
	delete(m.items, id)
	return nil
}

func (m *memReservations) List(_ context.Context, filter domain.ReservationFilter) ([]*domain.ReservationListItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.ReservationListItem
	for _, r := range m.items {
		if filter.Status != nil && r.Status != *filter.Status {
			continue
		}
		if filter.UserID != nil && r.UserID != *filter.UserID {
			continue
		}
		if filter.Plate != nil && r.Plate != *filter.Plate {
			continue
		}
		out = append(out, &domain.ReservationListItem{Reservation: *r})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memReservations) ActiveByPlate(_ context.Context, plate string) ([]*domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Reservation
	for _, r := range m.active(plate) {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memReservations) CountActive(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.items {
		if r.Status.Active() {
			n++
		}
	}
	return n, nil
}

type memVehicles struct {
	mu           sync.Mutex
	items        map[string]*domain.VehicleListItem
	reservations *memReservations
}

func newMemVehicles(reservations *memReservations) *memVehicles {
	return &memVehicles{items: map[string]*domain.VehicleListItem{}, reservations: reservations}
}

func (m *memVehicles) add(plate string, price float64, state domain.VehicleState) {
	m.items[plate] = &domain.VehicleListItem{
		Vehicle: domain.Vehicle{
			Plate: plate, Year: 2023, DailyPrice: price, State: state, ModelID: 1, InsuranceID: 1,
		},
	}
}

func (m *memVehicles) Create(_ context.Context, v *domain.Vehicle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[v.Plate]; ok {
		return domain.NewConflictError("duplicate vehicle")
	}
	m.items[v.Plate] = &domain.VehicleListItem{Vehicle: *v}
	return nil
}

func (m *memVehicles) GetByPlate(_ context.Context, plate string) (*domain.VehicleListItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.items[plate]
	if !ok {
		return nil, domain.NewNotFoundError("vehicle", plate)
	}
	cp := *v
	return &cp, nil
}

func (m *memVehicles) GetDetail(ctx context.Context, plate string) (*domain.VehicleDetail, error) {
	item, err := m.GetByPlate(ctx, plate)
	if err != nil {
		return nil, err
	}
	return &domain.VehicleDetail{VehicleListItem: *item}, nil
}

func (m *memVehicles) List(_ context.Context) ([]*domain.VehicleListItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.VehicleListItem
	for _, v := range m.items {
		cp := *v
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Plate > out[j].Plate })
	return out, nil
}

func (m *memVehicles) Update(_ context.Context, v *domain.Vehicle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[v.Plate]
	if !ok {
		return domain.NewNotFoundError("vehicle", v.Plate)
	}
	item.Vehicle = *v
	return nil
}

func (m *memVehicles) Delete(_ context.Context, plate string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[plate]; !ok {
		return domain.NewNotFoundError("vehicle", plate)
	}
	if len(m.reservations.active(plate)) > 0 {
		return domain.NewConflictError("vehicle has active reservations and cannot be deleted")
	}
	delete(m.items, plate)
	return nil
}

func (m *memVehicles) SetState(_ context.Context, plate string, state domain.VehicleState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.items[plate]
	if !ok {
		return domain.NewNotFoundError("vehicle", plate)
	}
	v.State = state
	return nil
}

func (m *memVehicles) Available(_ context.Context, period domain.DateRange) ([]*domain.VehicleListItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.VehicleListItem
	for _, v := range m.items {
		if v.State != domain.StateAvailable {
			continue
		}
		if domain.FindConflict(period, m.reservations.active(v.Plate), 0) != nil {
			continue
		}
		cp := *v
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DailyPrice < out[j].DailyPrice })
	return out, nil
}

func (m *memVehicles) Stats(_ context.Context) (*domain.FleetStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &domain.FleetStats{Total: len(m.items)}
	for _, v := range m.items {
		if v.State == domain.StateAvailable {
			stats.Available++
		}
	}
	return stats, nil
}

func (m *memVehicles) Exists(_ context.Context, plate string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.items[plate]
	return ok, nil
}

func (m *memVehicles) DailyPrice(_ context.Context, plate string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.items[plate]
	if !ok {
		return 0, domain.NewNotFoundError("vehicle", plate)
	}
	return v.DailyPrice, nil
}

type memCatalog struct{}

func (memCatalog) Models(_ context.Context) ([]*domain.Model, error) {
	return []*domain.Model{{ID: 1, Name: "Corolla", BrandID: 1, BrandName: "Toyota"}}, nil
}
func (memCatalog) Brands(_ context.Context) ([]*domain.Brand, error) {
	return []*domain.Brand{{ID: 1, Name: "Toyota"}}, nil
}
func (memCatalog) Insurances(_ context.Context) ([]*domain.Insurance, error) {
	return []*domain.Insurance{{ID: 1, Company: "AXA"}}, nil
}
func (memCatalog) Branches(_ context.Context) ([]*domain.Branch, error) {
	return []*domain.Branch{{ID: 1, Name: "Downtown"}}, nil
}
func (memCatalog) BranchExists(_ context.Context, id int64) (bool, error) {
	return id == 1, nil
}

type memUsers struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]*domain.User
}

func newMemUsers() *memUsers {
	return &memUsers{items: map[int64]*domain.User{}}
}

func (m *memUsers) add(id int64, role domain.Role) {
	m.items[id] = &domain.User{ID: id, Email: "user" + strconv.FormatInt(id, 10) + "@example.com", Role: role}
	if id > m.nextID {
		m.nextID = id
	}
}

func (m *memUsers) Create(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.items {
		if u.Email == user.Email {
			return domain.NewConflictError("duplicate email")
		}
	}
	m.nextID++
	user.ID = m.nextID
	cp := *user
	m.items[user.ID] = &cp
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id int64) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.items[id]
	if !ok {
		return nil, domain.NewNotFoundError("user", strconv.FormatInt(id, 10))
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.items {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.NewNotFoundError("user", email)
}

func (m *memUsers) Exists(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.items[id]
	return ok, nil
}

func (m *memUsers) RoleOf(_ context.Context, id int64) (domain.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.items[id]
	if !ok {
		return "", domain.NewNotFoundError("user", strconv.FormatInt(id, 10))
	}
	return u.Role, nil
}
