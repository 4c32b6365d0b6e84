package model

import "time"

// Fleet is a named grouping of SIMs under one account, mirrored from the
// provider during fleet sync.  Rows are upserted by the natural key
// (account_id, external_ref); fleets that disappear remotely are kept
// (orphans are never auto-deleted).
//
// Fields:
//  ID          – primary key identifier (UUID string).
//  AccountID   – owning account.
//  Name        – display name reported by the provider.
//  ExternalRef – the provider's fleet identifier.
//  CreatedAt   – timestamp of first sync.
//  UpdatedAt   – timestamp of last sync update.
type Fleet struct {
	ID          string    // fleets.id
	AccountID   string    // fleets.account_id
	Name        string    // fleets.name
	ExternalRef string    // fleets.external_ref
	CreatedAt   time.Time // fleets.created_at
	UpdatedAt   time.Time // fleets.updated_at
}
