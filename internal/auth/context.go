// Package auth defines the caller authorization context consumed by the
// sync orchestrator and the command dispatcher.  The context is built by
// the HTTP layer from the JWT subject and the scope repository; the core
// trusts it without re-validating identity.
package auth

import "errors"

// ErrForbidden is returned when the caller lacks the scope an operation
// requires.  Owner-only operations return it for the whole request;
// per-target checks in dispatch convert it into a forbidden result entry
// instead of aborting the batch.
var ErrForbidden = errors.New("auth: forbidden")

// Grant is one scope row as seen by the core: a permission set on an
// account, optionally narrowed to a fleet.  An empty FleetID means the
// grant is account-wide and covers every fleet under the account.
type Grant struct {
	AccountID string
	FleetID   string // '' = account-wide
	CanRead   bool
	CanWrite  bool
	CanInvite bool
}

// Context identifies the caller for one core operation.
type Context struct {
	CallerID uint64
	IsOwner  bool
	Grants   []Grant
}

// CanRead reports whether the caller may read SIMs in the given account
// and fleet.  Owners may always.  For everyone else both the
// fleet-specific grant and the account-wide grant are evaluated; either
// one carrying the permission is sufficient.
func (c Context) CanRead(accountID, fleetID string) bool {
	return c.allowed(accountID, fleetID, func(g Grant) bool { return g.CanRead })
}

// CanWrite reports whether the caller may send write-classified commands
// to SIMs in the given account and fleet.
func (c Context) CanWrite(accountID, fleetID string) bool {
	return c.allowed(accountID, fleetID, func(g Grant) bool { return g.CanWrite })
}

// WritableAccounts returns the set of account ids the caller holds any
// write grant on.  Used by the orchestrator to resolve effective account
// filters for non-owners.
func (c Context) WritableAccounts() map[string]bool {
	out := make(map[string]bool)
	for _, g := range c.Grants {
		if g.CanWrite {
			out[g.AccountID] = true
		}
	}
	return out
}

// ReadableFleets returns the fleet ids the caller may read within one
// account.  The second return value is true when an account-wide grant
// makes every fleet readable.
func (c Context) ReadableFleets(accountID string) (map[string]bool, bool) {
	fleets := make(map[string]bool)
	allFleets := false
	for _, g := range c.Grants {
		if g.AccountID != accountID || !g.CanRead {
			continue
		}
		if g.FleetID == "" {
			allFleets = true
			continue
		}
		fleets[g.FleetID] = true
	}
	return fleets, allFleets
}

func (c Context) allowed(accountID, fleetID string, perm func(Grant) bool) bool {
	if c.IsOwner {
		return true
	}
	for _, g := range c.Grants {
		if g.AccountID != accountID {
			continue
		}
		// Account-wide grants cover all fleets; fleet grants must match.
		if g.FleetID != "" && g.FleetID != fleetID {
			continue
		}
		if perm(g) {
			return true
		}
	}
	return false
}
