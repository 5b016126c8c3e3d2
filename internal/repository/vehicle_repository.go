package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/yourorg/fleetrent/internal/domain"
)

// PostgresVehicleRepository implements domain.VehicleRepository.
type PostgresVehicleRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresVehicleRepository creates a new vehicle repository.
func NewPostgresVehicleRepository(db *sql.DB, logger *slog.Logger) *PostgresVehicleRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresVehicleRepository{db: db, logger: logger}
}

const vehicleJoinSelect = `
	SELECT v.plate, v.color, v.year, v.daily_price, v.odometer_km, v.state,
	       v.model_id, v.insurance_id, v.created_at, v.updated_at,
	       m.name, m.vehicle_type, m.capacity, br.name,
	       i.company, i.coverage_type, i.daily_cost
	FROM vehicles v
	JOIN models m ON v.model_id = m.id
	JOIN brands br ON m.brand_id = br.id
	JOIN insurances i ON v.insurance_id = i.id
`

func scanVehicleItem(row interface{ Scan(...interface{}) error }) (*domain.VehicleListItem, error) {
	item := &domain.VehicleListItem{}
	err := row.Scan(
		&item.Plate,
		&item.Color,
		&item.Year,
		&item.DailyPrice,
		&item.OdometerKM,
		&item.State,
		&item.ModelID,
		&item.InsuranceID,
		&item.CreatedAt,
		&item.UpdatedAt,
		&item.ModelName,
		&item.VehicleType,
		&item.Capacity,
		&item.BrandName,
		&item.InsuranceCompany,
		&item.CoverageType,
		&item.InsuranceCost,
	)
	if err != nil {
		return nil, err
	}
	return item, nil
}

// Create inserts a new vehicle.
func (r *PostgresVehicleRepository) Create(ctx context.Context, v *domain.Vehicle) error {
	query := `
		INSERT INTO vehicles (plate, color, year, daily_price, odometer_km, state, model_id, insurance_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		v.Plate, v.Color, v.Year, v.DailyPrice, v.OdometerKM, v.State, v.ModelID, v.InsuranceID,
	).Scan(&v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		r.logger.Error("failed to create vehicle",
			slog.String("plate", v.Plate),
			slog.String("error", err.Error()),
		)
		return translate(err, "vehicle", v.Plate)
	}
	return nil
}

// GetByPlate retrieves a vehicle with its display joins.
func (r *PostgresVehicleRepository) GetByPlate(ctx context.Context, plate string) (*domain.VehicleListItem, error) {
	row := r.db.QueryRowContext(ctx, vehicleJoinSelect+` WHERE v.plate = $1`, plate)
	item, err := scanVehicleItem(row)
	if err != nil {
		return nil, translate(err, "vehicle", plate)
	}
	return item, nil
}

// GetDetail retrieves a vehicle plus its five most recent reservations.
func (r *PostgresVehicleRepository) GetDetail(ctx context.Context, plate string) (*domain.VehicleDetail, error) {
	item, err := r.GetByPlate(ctx, plate)
	if err != nil {
		return nil, err
	}
	detail := &domain.VehicleDetail{VehicleListItem: *item, RecentReservations: []*domain.Reservation{}}

	query := `
		SELECT id, plate, user_id, branch_id, start_date, end_date, notes, status, created_at, updated_at
		FROM reservations
		WHERE plate = $1
		ORDER BY start_date DESC
		LIMIT 5
	`
	rows, err := r.db.QueryContext(ctx, query, plate)
	if err != nil {
		return nil, domain.NewStoreError(err)
	}
	defer rows.Close()

	for rows.Next() {
		res := &domain.Reservation{}
		err := rows.Scan(
			&res.ID, &res.Plate, &res.UserID, &res.BranchID,
			&res.Period.Start, &res.Period.End, &res.Notes, &res.Status,
			&res.CreatedAt, &res.UpdatedAt,
		)
		if err != nil {
			return nil, domain.NewStoreError(err)
		}
		detail.RecentReservations = append(detail.RecentReservations, res)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStoreError(err)
	}
	return detail, nil
}

// List returns the whole fleet with display joins, newest plates first.
func (r *PostgresVehicleRepository) List(ctx context.Context) ([]*domain.VehicleListItem, error) {
	rows, err := r.db.QueryContext(ctx, vehicleJoinSelect+` ORDER BY v.plate DESC`)
	if err != nil {
		return nil, domain.NewStoreError(err)
	}
	defer rows.Close()

	items := []*domain.VehicleListItem{}
	for rows.Next() {
		item, err := scanVehicleItem(rows)
		if err != nil {
			return nil, domain.NewStoreError(err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStoreError(err)
	}
	return items, nil
}

// Update rewrites a vehicle's mutable fields.
func (r *PostgresVehicleRepository) Update(ctx context.Context, v *domain.Vehicle) error {
	query := `
		UPDATE vehicles
		SET color = $1, year = $2, daily_price = $3, odometer_km = $4,
		    state = $5, model_id = $6, insurance_id = $7, updated_at = now()
		WHERE plate = $8
		RETURNING updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		v.Color, v.Year, v.DailyPrice, v.OdometerKM, v.State, v.ModelID, v.InsuranceID, v.Plate,
	).Scan(&v.UpdatedAt)
	if err != nil {
		return translate(err, "vehicle", v.Plate)
	}
	return nil
}

// Delete removes a vehicle iff it has no active reservation. The existence
// check and the delete run in one transaction so a booking racing the delete
// cannot slip between them.
func (r *PostgresVehicleRepository) Delete(ctx context.Context, plate string) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return domain.NewStoreError(err)
	}
	defer tx.Rollback()

	var locked string
	err = tx.QueryRowContext(ctx, `SELECT plate FROM vehicles WHERE plate = $1 FOR UPDATE`, plate).Scan(&locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NewNotFoundError("vehicle", plate)
		}
		return translate(err, "vehicle", plate)
	}

	var active int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reservations WHERE plate = $1 AND status IN ('pending', 'confirmed')`,
		plate,
	).Scan(&active)
	if err != nil {
		return translate(err, "vehicle", plate)
	}
	if active > 0 {
		return domain.NewConflictError("vehicle has active reservations and cannot be deleted")
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM vehicles WHERE plate = $1`, plate); err != nil {
		return translate(err, "vehicle", plate)
	}
	if err := tx.Commit(); err != nil {
		return translate(err, "vehicle", plate)
	}
	return nil
}

// SetState changes only the lifecycle state.
func (r *PostgresVehicleRepository) SetState(ctx context.Context, plate string, state domain.VehicleState) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE vehicles SET state = $1, updated_at = now() WHERE plate = $2`,
		state, plate,
	)
	if err != nil {
		return translate(err, "vehicle", plate)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return domain.NewStoreError(err)
	}
	if rows == 0 {
		return domain.NewNotFoundError("vehicle", plate)
	}
	return nil
}

// Available returns vehicles free across the period, cheapest first. Uses
// the same half-open overlap predicate as the reservation store.
func (r *PostgresVehicleRepository) Available(ctx context.Context, period domain.DateRange) ([]*domain.VehicleListItem, error) {
	query := vehicleJoinSelect + `
		WHERE v.state = 'available'
		  AND v.plate NOT IN (
			SELECT plate FROM reservations
			WHERE status IN ('pending', 'confirmed')
			  AND start_date < $2
			  AND end_date > $1
		  )
		ORDER BY v.daily_price ASC
	`
	rows, err := r.db.QueryContext(ctx, query, period.Start, period.End)
	if err != nil {
		return nil, domain.NewStoreError(err)
	}
	defer rows.Close()

	items := []*domain.VehicleListItem{}
	for rows.Next() {
		item, err := scanVehicleItem(rows)
		if err != nil {
			return nil, domain.NewStoreError(err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStoreError(err)
	}
	return items, nil
}

// Stats aggregates the fleet by lifecycle state.
func (r *PostgresVehicleRepository) Stats(ctx context.Context) (*domain.FleetStats, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE state = 'available'),
		       COUNT(*) FILTER (WHERE state = 'rented'),
		       COUNT(*) FILTER (WHERE state = 'maintenance'),
		       COUNT(*) FILTER (WHERE state = 'out_of_service'),
		       COALESCE(AVG(daily_price), 0),
		       COALESCE(AVG(odometer_km), 0)
		FROM vehicles
	`
	stats := &domain.FleetStats{}
	err := r.db.QueryRowContext(ctx, query).Scan(
		&stats.Total,
		&stats.Available,
		&stats.Rented,
		&stats.Maintenance,
		&stats.OutOfService,
		&stats.AvgDailyPrice,
		&stats.AvgOdometerKM,
	)
	if err != nil {
		return nil, domain.NewStoreError(err)
	}
	return stats, nil
}

// Exists reports whether a plate is registered.
func (r *PostgresVehicleRepository) Exists(ctx context.Context, plate string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM vehicles WHERE plate = $1)`, plate,
	).Scan(&exists)
	if err != nil {
		return false, domain.NewStoreError(err)
	}
	return exists, nil
}

// DailyPrice returns the vehicle's current daily price.
func (r *PostgresVehicleRepository) DailyPrice(ctx context.Context, plate string) (float64, error) {
	var price float64
	err := r.db.QueryRowContext(ctx,
		`SELECT daily_price FROM vehicles WHERE plate = $1`, plate,
	).Scan(&price)
	if err != nil {
		return 0, translate(err, "vehicle", plate)
	}
	return price, nil
}
