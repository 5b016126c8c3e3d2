package repository

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"github.com/yourorg/fleetrent/internal/domain"
)

// Postgres error codes this layer translates into the domain taxonomy.
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
	pqExclusionViolation  = "23P01"
)

// translate maps driver-level failures onto the domain taxonomy so raw
// persistence error text never crosses the repository boundary.
func translate(err error, resource, id string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewNotFoundError(resource, id)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqUniqueViolation:
			return domain.NewConflictError("duplicate " + resource)
		case pqForeignKeyViolation:
			return domain.NewConflictError(resource + " is referenced by other records")
		case pqExclusionViolation:
			// Backstop for the overlap constraint; the transactional check
			// normally reports the conflict with its range first.
			return domain.NewConflictError("vehicle is already reserved for an overlapping range")
		}
	}
	return domain.NewStoreError(err)
}
