package model

import "time"

// Sim is one managed cellular device as stored in the `sims` table.  The
// provider's device identifier (SimSid) is the globally unique upsert key;
// status and last-seen are refreshed on every sync pass.  Ownership
// (account/fleet) always matches the fleet the SIM was synced under.
//
// Fields:
//  ID         – primary key identifier (UUID string).
//  AccountID  – owning account.
//  FleetID    – owning fleet.
//  SimSid     – the provider's device identifier.  Globally unique.
//  ICCID      – hardware identifier printed on the SIM.
//  Name       – optional friendly name assigned by the operator.
//  Status     – provider-reported status string (e.g. "active").
//  LastSeenAt – last time the provider reported the device.
//  CreatedAt  – timestamp of first sync.
//  UpdatedAt  – timestamp of last sync update.
type Sim struct {
	ID         string     // sims.id
	AccountID  string     // sims.account_id
	FleetID    string     // sims.fleet_id
	SimSid     string     // sims.sim_sid
	ICCID      string     // sims.iccid
	Name       string     // sims.friendly_name
	Status     string     // sims.status
	LastSeenAt *time.Time // sims.last_seen_at (nullable)
	CreatedAt  time.Time  // sims.created_at
	UpdatedAt  time.Time  // sims.updated_at
}
