package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/yourorg/fleetrent/internal/domain"
)

// PostgresCatalogRepository serves the read-only reference tables: models,
// brands, insurance policies and branches. Their administration happens
// outside the reservation core.
type PostgresCatalogRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresCatalogRepository creates a new catalog repository.
func NewPostgresCatalogRepository(db *sql.DB, logger *slog.Logger) *PostgresCatalogRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresCatalogRepository{db: db, logger: logger}
}

// Models lists vehicle models joined with their brands.
func (r *PostgresCatalogRepository) Models(ctx context.Context) ([]*domain.Model, error) {
	query := `
		SELECT m.id, m.name, m.vehicle_type, m.capacity, b.id, b.name
		FROM models m
		JOIN brands b ON m.brand_id = b.id
		ORDER BY m.id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, domain.NewStoreError(err)
	}
	defer rows.Close()

	models := []*domain.Model{}
	for rows.Next() {
		m := &domain.Model{}
		if err := rows.Scan(&m.ID, &m.Name, &m.VehicleType, &m.Capacity, &m.BrandID, &m.BrandName); err != nil {
			return nil, domain.NewStoreError(err)
		}
		models = append(models, m)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStoreError(err)
	}
	return models, nil
}

// Brands lists vehicle brands.
func (r *PostgresCatalogRepository) Brands(ctx context.Context) ([]*domain.Brand, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM brands ORDER BY name`)
	if err != nil {
		return nil, domain.NewStoreError(err)
	}
	defer rows.Close()

	brands := []*domain.Brand{}
	for rows.Next() {
		b := &domain.Brand{}
		if err := rows.Scan(&b.ID, &b.Name); err != nil {
			return nil, domain.NewStoreError(err)
		}
		brands = append(brands, b)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStoreError(err)
	}
	return brands, nil
}

// Insurances lists coverage policies.
func (r *PostgresCatalogRepository) Insurances(ctx context.Context) ([]*domain.Insurance, error) {
	query := `SELECT id, company, coverage_type, daily_cost, contact_phone FROM insurances ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, domain.NewStoreError(err)
	}
	defer rows.Close()

	policies := []*domain.Insurance{}
	for rows.Next() {
		p := &domain.Insurance{}
		if err := rows.Scan(&p.ID, &p.Company, &p.CoverageType, &p.DailyCost, &p.ContactPhone); err != nil {
			return nil, domain.NewStoreError(err)
		}
		policies = append(policies, p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStoreError(err)
	}
	return policies, nil
}

// Branches lists rental offices.
func (r *PostgresCatalogRepository) Branches(ctx context.Context) ([]*domain.Branch, error) {
	query := `SELECT id, name, address, city, phone, email, schedule FROM branches ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, domain.NewStoreError(err)
	}
	defer rows.Close()

	branches := []*domain.Branch{}
	for rows.Next() {
		b := &domain.Branch{}
		if err := rows.Scan(&b.ID, &b.Name, &b.Address, &b.City, &b.Phone, &b.Email, &b.Schedule); err != nil {
			return nil, domain.NewStoreError(err)
		}
		branches = append(branches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStoreError(err)
	}
	return branches, nil
}

// BranchExists reports whether a branch id is registered.
func (r *PostgresCatalogRepository) BranchExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM branches WHERE id = $1)`, id,
	).Scan(&exists)
	if err != nil {
		return false, domain.NewStoreError(err)
	}
	return exists, nil
}
