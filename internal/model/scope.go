package model

import "time"

// Scope grants a user read/write/invite capability on an account,
// optionally narrowed to a single fleet.  A row with an empty FleetID is
// account-wide: its permissions apply to every fleet under the account
// unless a more specific fleet row exists.  At most one row exists per
// (user, account, fleet) combination.
//
// Fields:
//  ID        – primary key identifier (UUID string).
//  UserID    – the principal holding the grant.
//  AccountID – the account the grant applies to.
//  FleetID   – optional fleet restriction; empty means account-wide.
//  CanRead   – may list fleets/SIMs and send read-classified commands.
//  CanWrite  – may send write-classified commands.
//  CanInvite – may invite other users into this scope (admin surface).
//  CreatedAt – timestamp of creation.
//  UpdatedAt – timestamp of last update.
type Scope struct {
	ID        string    // scopes.id
	UserID    uint64    // scopes.user_id
	AccountID string    // scopes.account_id
	FleetID   string    // scopes.fleet_id ('' = account-wide)
	CanRead   bool      // scopes.can_read
	CanWrite  bool      // scopes.can_write
	CanInvite bool      // scopes.can_invite
	CreatedAt time.Time // scopes.created_at
	UpdatedAt time.Time // scopes.updated_at
}
