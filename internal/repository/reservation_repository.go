package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/yourorg/fleetrent/internal/domain"
)

// PostgresReservationRepository implements domain.ReservationRepository.
// Create and Update lock the vehicle row before checking for overlaps, so
// two concurrent bookings of the same vehicle serialize on the row lock and
// exactly one of an overlapping pair can commit. The exclusion constraint on
// (plate, daterange) in the schema backstops the same invariant.
type PostgresReservationRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresReservationRepository creates a new reservation repository.
func NewPostgresReservationRepository(db *sql.DB, logger *slog.Logger) *PostgresReservationRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresReservationRepository{db: db, logger: logger}
}

// Create inserts the reservation iff its range is free for the vehicle.
func (r *PostgresReservationRepository) Create(ctx context.Context, res *domain.Reservation) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return domain.NewStoreError(err)
	}
	defer tx.Rollback()

	if err := r.lockVehicle(ctx, tx, res.Plate); err != nil {
		return err
	}
	if err := r.checkOverlap(ctx, tx, res.Plate, res.Period, 0); err != nil {
		return err
	}

	query := `
		INSERT INTO reservations (plate, user_id, branch_id, start_date, end_date, notes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	err = tx.QueryRowContext(ctx, query,
		res.Plate,
		res.UserID,
		res.BranchID,
		res.Period.Start,
		res.Period.End,
		res.Notes,
		res.Status,
	).Scan(&res.ID, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		r.logger.Error("failed to insert reservation",
			slog.String("plate", res.Plate),
			slog.String("error", err.Error()),
		)
		return translate(err, "reservation", res.Plate)
	}

	if err := tx.Commit(); err != nil {
		return translate(err, "reservation", res.Plate)
	}
	return nil
}

// Update rewrites the reservation iff its (possibly changed) range is free,
// excluding the reservation itself from the comparison set.
func (r *PostgresReservationRepository) Update(ctx context.Context, res *domain.Reservation) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return domain.NewStoreError(err)
	}
	defer tx.Rollback()

	if err := r.lockVehicle(ctx, tx, res.Plate); err != nil {
		return err
	}
	if err := r.checkOverlap(ctx, tx, res.Plate, res.Period, res.ID); err != nil {
		return err
	}

	query := `
		UPDATE reservations
		SET plate = $1, branch_id = $2, start_date = $3, end_date = $4, notes = $5, status = $6, updated_at = now()
		WHERE id = $7
		RETURNING updated_at
	`
	err = tx.QueryRowContext(ctx, query,
		res.Plate,
		res.BranchID,
		res.Period.Start,
		res.Period.End,
		res.Notes,
		res.Status,
		res.ID,
	).Scan(&res.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NewNotFoundError("reservation", strconv.FormatInt(res.ID, 10))
		}
		return translate(err, "reservation", strconv.FormatInt(res.ID, 10))
	}

	if err := tx.Commit(); err != nil {
		return translate(err, "reservation", strconv.FormatInt(res.ID, 10))
	}
	return nil
}

// lockVehicle takes a row lock on the vehicle, serializing concurrent
// bookings for the same plate. A missing row surfaces as NotFound.
func (r *PostgresReservationRepository) lockVehicle(ctx context.Context, tx *sql.Tx, plate string) error {
	var locked string
	err := tx.QueryRowContext(ctx, `SELECT plate FROM vehicles WHERE plate = $1 FOR UPDATE`, plate).Scan(&locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NewNotFoundError("vehicle", plate)
		}
		return translate(err, "vehicle", plate)
	}
	return nil
}

// checkOverlap applies the half-open interval test against the vehicle's
// active reservations inside the caller's transaction.
func (r *PostgresReservationRepository) checkOverlap(ctx context.Context, tx *sql.Tx, plate string, period domain.DateRange, excludeID int64) error {
	query := `
		SELECT start_date, end_date
		FROM reservations
		WHERE plate = $1
		  AND status IN ('pending', 'confirmed')
		  AND id <> $2
		  AND start_date < $4
		  AND end_date > $3
		LIMIT 1
	`
	var conflicting domain.DateRange
	err := tx.QueryRowContext(ctx, query, plate, excludeID, period.Start, period.End).
		Scan(&conflicting.Start, &conflicting.End)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return translate(err, "reservation", plate)
	}
	return domain.NewOverlapError(plate, conflicting)
}

// GetByID retrieves a reservation by id.
func (r *PostgresReservationRepository) GetByID(ctx context.Context, id int64) (*domain.Reservation, error) {
	res := &domain.Reservation{}
	query := `
		SELECT id, plate, user_id, branch_id, start_date, end_date, notes, status, created_at, updated_at
		FROM reservations
		WHERE id = $1
	`
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&res.ID,
		&res.Plate,
		&res.UserID,
		&res.BranchID,
		&res.Period.Start,
		&res.Period.End,
		&res.Notes,
		&res.Status,
		&res.CreatedAt,
		&res.UpdatedAt,
	)
	if err != nil {
		return nil, translate(err, "reservation", strconv.FormatInt(id, 10))
	}
	return res, nil
}

// SetStatus changes only the status column.
func (r *PostgresReservationRepository) SetStatus(ctx context.Context, id int64, status domain.ReservationStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE reservations SET status = $1, updated_at = now() WHERE id = $2`,
		status, id,
	)
	if err != nil {
		return translate(err, "reservation", strconv.FormatInt(id, 10))
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return domain.NewStoreError(err)
	}
	if rows == 0 {
		return domain.NewNotFoundError("reservation", strconv.FormatInt(id, 10))
	}
	return nil
}

// Delete physically removes a reservation row. The service layer guards
// which statuses may be deleted.
func (r *PostgresReservationRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM reservations WHERE id = $1`, id)
	if err != nil {
		return translate(err, "reservation", strconv.FormatInt(id, 10))
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return domain.NewStoreError(err)
	}
	if rows == 0 {
		return domain.NewNotFoundError("reservation", strconv.FormatInt(id, 10))
	}
	return nil
}

// List returns reservations joined with their display fields, newest first.
func (r *PostgresReservationRepository) List(ctx context.Context, filter domain.ReservationFilter) ([]*domain.ReservationListItem, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT r.id, r.plate, r.user_id, r.branch_id, r.start_date, r.end_date,
		       r.notes, r.status, r.created_at, r.updated_at,
		       m.name, u.first_name || ' ' || u.last_name, b.name, v.daily_price
		FROM reservations r
		JOIN vehicles v ON r.plate = v.plate
		JOIN models m ON v.model_id = m.id
		JOIN users u ON r.user_id = u.id
		JOIN branches b ON r.branch_id = b.id
	`)

	var args []interface{}
	var conds []string
	addCond := func(expr string, value interface{}) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(expr, len(args)))
	}

	if filter.Status != nil {
		addCond("r.status = $%d", *filter.Status)
	}
	if filter.UserID != nil {
		addCond("r.user_id = $%d", *filter.UserID)
	}
	if filter.Plate != nil {
		addCond("r.plate = $%d", *filter.Plate)
	}
	if filter.From != nil {
		addCond("r.end_date > $%d", *filter.From)
	}
	if filter.To != nil {
		addCond("r.start_date < $%d", *filter.To)
	}

	if len(conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}
	sb.WriteString(" ORDER BY r.id DESC")

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		r.logger.Error("failed to list reservations", slog.String("error", err.Error()))
		return nil, domain.NewStoreError(err)
	}
	defer rows.Close()

	items := []*domain.ReservationListItem{}
	for rows.Next() {
		item := &domain.ReservationListItem{}
		err := rows.Scan(
			&item.ID,
			&item.Plate,
			&item.UserID,
			&item.BranchID,
			&item.Period.Start,
			&item.Period.End,
			&item.Notes,
			&item.Status,
			&item.CreatedAt,
			&item.UpdatedAt,
			&item.ModelName,
			&item.UserName,
			&item.BranchName,
			&item.DailyPrice,
		)
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

// ActiveByPlate returns the pending and confirmed reservations for one
// vehicle. Read-only; results may be stale immediately.
func (r *PostgresReservationRepository) ActiveByPlate(ctx context.Context, plate string) ([]*domain.Reservation, error) {
	query := `
		SELECT id, plate, user_id, branch_id, start_date, end_date, notes, status, created_at, updated_at
		FROM reservations
		WHERE plate = $1 AND status IN ('pending', 'confirmed')
		ORDER BY start_date
	`
	rows, err := r.db.QueryContext(ctx, query, plate)
	if err != nil {
		return nil, domain.NewStoreError(err)
	}
	defer rows.Close()

	out := []*domain.Reservation{}
	for rows.Next() {
		res := &domain.Reservation{}
		err := rows.Scan(
			&res.ID,
			&res.Plate,
			&res.UserID,
			&res.BranchID,
			&res.Period.Start,
			&res.Period.End,
			&res.Notes,
			&res.Status,
			&res.CreatedAt,
			&res.UpdatedAt,
		)
		if err != nil {
			return nil, domain.NewStoreError(err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStoreError(err)
	}
	return out, nil
}

// CountActive returns the number of active reservations across the fleet.
func (r *PostgresReservationRepository) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reservations WHERE status IN ('pending', 'confirmed')`,
	).Scan(&count)
	if err != nil {
		return 0, domain.NewStoreError(err)
	}
	return count, nil
}
