package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/velosim/sim-fleet-console/internal/model"
)

// CommandLogRepo mirrors outbound commands.  The table is append-only
// from the dispatcher's side; reconciliation later updates status and
// the provider's command sid on individual rows.
type CommandLogRepo struct{ DB *sql.DB }

// NewCommandLogRepo returns a new CommandLogRepo bound to the given database.
func NewCommandLogRepo(db *sql.DB) *CommandLogRepo { return &CommandLogRepo{DB: db} }

// Insert appends one outbound log row and returns its id.
func (r *CommandLogRepo) Insert(ctx context.Context, l model.CommandLog) (string, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Direction == "" {
		l.Direction = "to_sim"
	}
	if l.SentAt.IsZero() {
		l.SentAt = time.Now().UTC()
	}
	const q = `INSERT INTO command_logs
		(id, account_id, sim_id, sim_sid, command, payload, direction, status, provider_sid, sent_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`
	_, err := r.DB.ExecContext(ctx, q,
		l.ID, l.AccountID, l.SimID, l.SimSid, l.Command, l.Payload, l.Direction, l.Status, l.ProviderSid, l.SentAt)
	return l.ID, err
}

// UpdateStatus sets the reconciled status (and provider sid when known)
// on one row.
func (r *CommandLogRepo) UpdateStatus(ctx context.Context, id, status, providerSid string) error {
	const q = `UPDATE command_logs
		SET status=?, provider_sid=IF(?='', provider_sid, ?), updated_at=NOW()
		WHERE id=?`
	_, err := r.DB.ExecContext(ctx, q, status, providerSid, providerSid, id)
	return err
}

// GetByID fetches one log row.
func (r *CommandLogRepo) GetByID(ctx context.Context, id string) (model.CommandLog, error) {
	var l model.CommandLog
	var providerSid sql.NullString
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, account_id, sim_id, sim_sid, command, payload, direction, status, provider_sid, sent_at, created_at, updated_at
		 FROM command_logs WHERE id=? LIMIT 1`, id).
		Scan(&l.ID, &l.AccountID, &l.SimID, &l.SimSid, &l.Command, &l.Payload, &l.Direction, &l.Status, &providerSid, &l.SentAt, &l.CreatedAt, &l.UpdatedAt)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	l.ProviderSid = providerSid.String
	return l, err
}

// ListBySim returns the most recent log rows for one SIM, newest first.
func (r *CommandLogRepo) ListBySim(ctx context.Context, simID string, limit int) ([]model.CommandLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, account_id, sim_id, sim_sid, command, payload, direction, status, provider_sid, sent_at, created_at, updated_at
		 FROM command_logs WHERE sim_id=? ORDER BY sent_at DESC LIMIT ?`, simID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CommandLog
	for rows.Next() {
		var l model.CommandLog
		var providerSid sql.NullString
		if err := rows.Scan(&l.ID, &l.AccountID, &l.SimID, &l.SimSid, &l.Command, &l.Payload, &l.Direction, &l.Status, &providerSid, &l.SentAt, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		l.ProviderSid = providerSid.String
		out = append(out, l)
	}
	return out, rows.Err()
}
