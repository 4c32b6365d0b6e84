package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOwnerAlwaysAllowed(t *testing.T) {
	c := Context{CallerID: 1, IsOwner: true}
	assert.True(t, c.CanRead("acc", "fleet"))
	assert.True(t, c.CanWrite("acc", "fleet"))
}

func TestAccountWideGrantCoversAllFleets(t *testing.T) {
	c := Context{CallerID: 2, Grants: []Grant{
		{AccountID: "A1", FleetID: "", CanRead: true, CanWrite: true},
	}}
	assert.True(t, c.CanRead("A1", "f-any"))
	assert.True(t, c.CanWrite("A1", "f-other"))
	assert.False(t, c.CanRead("A2", "f-any"), "grant does not leak across accounts")
}

func TestFleetGrantIsNarrow(t *testing.T) {
	c := Context{CallerID: 3, Grants: []Grant{
		{AccountID: "A1", FleetID: "f1", CanRead: true, CanWrite: false},
	}}
	assert.True(t, c.CanRead("A1", "f1"))
	assert.False(t, c.CanWrite("A1", "f1"), "read-only fleet grant denies writes")
	assert.False(t, c.CanRead("A1", "f2"))
}

func TestEitherGrantShapeSuffices(t *testing.T) {
	// A read-only account-wide grant plus a writable fleet grant: the
	// fleet keeps write access, the rest of the account stays read-only.
	c := Context{CallerID: 4, Grants: []Grant{
		{AccountID: "A1", FleetID: "", CanRead: true},
		{AccountID: "A1", FleetID: "f1", CanRead: true, CanWrite: true},
	}}
	assert.True(t, c.CanWrite("A1", "f1"))
	assert.False(t, c.CanWrite("A1", "f2"))
	assert.True(t, c.CanRead("A1", "f2"))
}

func TestReadableFleets(t *testing.T) {
	c := Context{CallerID: 5, Grants: []Grant{
		{AccountID: "A1", FleetID: "f1", CanRead: true},
		{AccountID: "A1", FleetID: "f2", CanRead: false},
		{AccountID: "A2", FleetID: "", CanRead: true},
	}}
	fleets, all := c.ReadableFleets("A1")
	assert.False(t, all)
	assert.Equal(t, map[string]bool{"f1": true}, fleets)

	_, all = c.ReadableFleets("A2")
	assert.True(t, all)
}

func TestWritableAccounts(t *testing.T) {
	c := Context{CallerID: 6, Grants: []Grant{
		{AccountID: "A1", CanWrite: true},
		{AccountID: "A2", CanRead: true},
	}}
	assert.Equal(t, map[string]bool{"A1": true}, c.WritableAccounts())
}
