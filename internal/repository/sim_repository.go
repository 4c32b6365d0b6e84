package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/velosim/sim-fleet-console/internal/model"
)

// SimRepo provides persistence for SIM devices.  The provider's sim_sid
// is the globally unique upsert key, which makes re-running a device
// sync idempotent: identical remote data leaves the table unchanged
// apart from updated_at.
type SimRepo struct{ DB *sql.DB }

// NewSimRepo returns a new SimRepo bound to the given database.
func NewSimRepo(db *sql.DB) *SimRepo { return &SimRepo{DB: db} }

// Upsert inserts or updates a SIM keyed by sim_sid and returns the
// row's internal id.  Ownership, name, status and last-seen follow the
// latest sync pass (last-write-wins).
func (r *SimRepo) Upsert(ctx context.Context, s model.Sim) (string, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	const q = `INSERT INTO sims (id, account_id, fleet_id, sim_sid, iccid, friendly_name, status, last_seen_at)
		VALUES (?,?,?,?,?,?,?,?)
		ON DUPLICATE KEY UPDATE
			account_id = VALUES(account_id),
			fleet_id = VALUES(fleet_id),
			iccid = VALUES(iccid),
			friendly_name = VALUES(friendly_name),
			status = VALUES(status),
			last_seen_at = VALUES(last_seen_at),
			updated_at = NOW()`
	if _, err := r.DB.ExecContext(ctx, q,
		s.ID, s.AccountID, s.FleetID, s.SimSid, s.ICCID, s.Name, s.Status, s.LastSeenAt); err != nil {
		return "", err
	}
	var id string
	err := r.DB.QueryRowContext(ctx,
		"SELECT id FROM sims WHERE sim_sid=? LIMIT 1", s.SimSid).Scan(&id)
	return id, err
}

const simColumns = "id, account_id, fleet_id, sim_sid, iccid, friendly_name, status, last_seen_at, created_at, updated_at"

func scanSim(row interface{ Scan(...any) error }) (model.Sim, error) {
	var s model.Sim
	var name sql.NullString
	var lastSeen sql.NullTime
	err := row.Scan(&s.ID, &s.AccountID, &s.FleetID, &s.SimSid, &s.ICCID, &name, &s.Status, &lastSeen, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return s, err
	}
	s.Name = name.String
	if lastSeen.Valid {
		t := lastSeen.Time
		s.LastSeenAt = &t
	}
	return s, nil
}

// GetByID fetches one SIM row.
func (r *SimRepo) GetByID(ctx context.Context, id string) (model.Sim, error) {
	s, err := scanSim(r.DB.QueryRowContext(ctx,
		"SELECT "+simColumns+" FROM sims WHERE id=? LIMIT 1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return s, ErrNotFound
	}
	return s, err
}

// ListByFleet returns the SIMs of one fleet ordered by ICCID.
func (r *SimRepo) ListByFleet(ctx context.Context, fleetID string) ([]model.Sim, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+simColumns+" FROM sims WHERE fleet_id=? ORDER BY iccid", fleetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSims(rows)
}

// ResolveTargets finds SIMs in one account matching any of the given
// sim sids, ICCIDs or friendly names.  The identifier sets are
// disjunctive; a SIM matching more than one identifier appears once.
// Results come back in a stable order (ICCID) so that dispatch result
// ordering is deterministic.
func (r *SimRepo) ResolveTargets(ctx context.Context, accountID string, sids, iccids, names []string) ([]model.Sim, error) {
	conds := make([]string, 0, 3)
	args := []any{accountID}
	appendSet := func(col string, vals []string) {
		if len(vals) == 0 {
			return
		}
		conds = append(conds, col+" IN (?"+strings.Repeat(",?", len(vals)-1)+")")
		for _, v := range vals {
			args = append(args, v)
		}
	}
	appendSet("sim_sid", sids)
	appendSet("iccid", iccids)
	appendSet("friendly_name", names)
	if len(conds) == 0 {
		return nil, nil
	}

	q := "SELECT " + simColumns + " FROM sims WHERE account_id=? AND (" +
		strings.Join(conds, " OR ") + ") ORDER BY iccid"
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSims(rows)
}

func collectSims(rows *sql.Rows) ([]model.Sim, error) {
	var out []model.Sim
	for rows.Next() {
		s, err := scanSim(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
