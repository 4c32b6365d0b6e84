package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/velosim/sim-fleet-console/internal/model"
)

// ScopeRepo provides persistence for access-scope grants.  The natural
// key is (user_id, account_id, fleet_id); fleet_id is stored as an empty
// string for account-wide grants so the unique index holds (MySQL treats
// NULLs as distinct).
type ScopeRepo struct{ DB *sql.DB }

// NewScopeRepo returns a new ScopeRepo bound to the given database.
func NewScopeRepo(db *sql.DB) *ScopeRepo { return &ScopeRepo{DB: db} }

// Upsert inserts or refreshes a grant keyed by (user_id, account_id,
// fleet_id).  Permission flags are last-write-wins.
func (r *ScopeRepo) Upsert(ctx context.Context, s model.Scope) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	const q = `INSERT INTO scopes (id, user_id, account_id, fleet_id, can_read, can_write, can_invite)
		VALUES (?,?,?,?,?,?,?)
		ON DUPLICATE KEY UPDATE
			can_read = VALUES(can_read),
			can_write = VALUES(can_write),
			can_invite = VALUES(can_invite),
			updated_at = NOW()`
	_, err := r.DB.ExecContext(ctx, q, s.ID, s.UserID, s.AccountID, s.FleetID, s.CanRead, s.CanWrite, s.CanInvite)
	return err
}

// ListByUser returns every grant held by one user.
func (r *ScopeRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Scope, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, user_id, account_id, fleet_id, can_read, can_write, can_invite, created_at, updated_at
		 FROM scopes WHERE user_id=?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Scope
	for rows.Next() {
		var s model.Scope
		if err := rows.Scan(&s.ID, &s.UserID, &s.AccountID, &s.FleetID, &s.CanRead, &s.CanWrite, &s.CanInvite, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
