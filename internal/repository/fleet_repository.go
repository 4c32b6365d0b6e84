package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/velosim/sim-fleet-console/internal/model"
)

// FleetRepo provides persistence for fleets.  The natural key is
// (account_id, external_ref); fleets that vanish remotely are kept as
// orphans and never deleted here.
type FleetRepo struct{ DB *sql.DB }

// NewFleetRepo returns a new FleetRepo bound to the given database.
func NewFleetRepo(db *sql.DB) *FleetRepo { return &FleetRepo{DB: db} }

// Upsert inserts or updates a fleet keyed by (account_id, external_ref)
// and returns the row's internal id.
func (r *FleetRepo) Upsert(ctx context.Context, f model.Fleet) (string, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	const q = `INSERT INTO fleets (id, account_id, name, external_ref)
		VALUES (?,?,?,?)
		ON DUPLICATE KEY UPDATE
			name = VALUES(name),
			updated_at = NOW()`
	if _, err := r.DB.ExecContext(ctx, q, f.ID, f.AccountID, f.Name, f.ExternalRef); err != nil {
		return "", err
	}
	var id string
	err := r.DB.QueryRowContext(ctx,
		"SELECT id FROM fleets WHERE account_id=? AND external_ref=? LIMIT 1",
		f.AccountID, f.ExternalRef).Scan(&id)
	return id, err
}

// GetByID fetches one fleet row.
func (r *FleetRepo) GetByID(ctx context.Context, id string) (model.Fleet, error) {
	var f model.Fleet
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, account_id, name, external_ref, created_at, updated_at
		 FROM fleets WHERE id=? LIMIT 1`, id).
		Scan(&f.ID, &f.AccountID, &f.Name, &f.ExternalRef, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return f, ErrNotFound
	}
	return f, err
}

// ListByAccount returns the fleets of one account ordered by name.
func (r *FleetRepo) ListByAccount(ctx context.Context, accountID string) ([]model.Fleet, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, account_id, name, external_ref, created_at, updated_at
		 FROM fleets WHERE account_id=? ORDER BY name`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Fleet
	for rows.Next() {
		var f model.Fleet
		if err := rows.Scan(&f.ID, &f.AccountID, &f.Name, &f.ExternalRef, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
