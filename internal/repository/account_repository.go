package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/velosim/sim-fleet-console/internal/model"
)

// AccountRepo provides persistence for tenant accounts.  Rows are
// upserted by the globally unique provider client id so that re-running
// a configuration sync never duplicates an account.
type AccountRepo struct{ DB *sql.DB }

// NewAccountRepo returns a new AccountRepo bound to the given database.
func NewAccountRepo(db *sql.DB) *AccountRepo { return &AccountRepo{DB: db} }

// Upsert inserts or updates an account keyed by client_id and returns
// the row's internal id.  Mutable fields are last-write-wins; the
// internal id of an existing row is preserved.
func (r *AccountRepo) Upsert(ctx context.Context, a model.Account) (string, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	const q = `INSERT INTO accounts (id, label, client_id, encrypted_secret, oauth_scope, oauth_audience)
		VALUES (?,?,?,?,?,?)
		ON DUPLICATE KEY UPDATE
			label = VALUES(label),
			encrypted_secret = VALUES(encrypted_secret),
			oauth_scope = VALUES(oauth_scope),
			oauth_audience = VALUES(oauth_audience),
			updated_at = NOW()`
	if _, err := r.DB.ExecContext(ctx, q, a.ID, a.Label, a.ClientID, a.EncryptedSecret, a.Scope, a.Audience); err != nil {
		return "", err
	}
	// The insert id is unusable under ON DUPLICATE KEY; read the natural
	// key back to learn which row now holds this client id.
	var id string
	err := r.DB.QueryRowContext(ctx,
		"SELECT id FROM accounts WHERE client_id=? LIMIT 1", a.ClientID).Scan(&id)
	return id, err
}

// GetByID fetches one account row.
func (r *AccountRepo) GetByID(ctx context.Context, id string) (model.Account, error) {
	var a model.Account
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, label, client_id, encrypted_secret, oauth_scope, oauth_audience, created_at, updated_at
		 FROM accounts WHERE id=? LIMIT 1`, id).
		Scan(&a.ID, &a.Label, &a.ClientID, &a.EncryptedSecret, &a.Scope, &a.Audience, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return a, ErrNotFound
	}
	return a, err
}

// List returns every account ordered by label.
func (r *AccountRepo) List(ctx context.Context) ([]model.Account, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, label, client_id, encrypted_secret, oauth_scope, oauth_audience, created_at, updated_at
		 FROM accounts ORDER BY label`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Account
	for rows.Next() {
		var a model.Account
		if err := rows.Scan(&a.ID, &a.Label, &a.ClientID, &a.EncryptedSecret, &a.Scope, &a.Audience, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
