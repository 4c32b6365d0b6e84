package syncer

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/velosim/sim-fleet-console/internal/auth"
	"github.com/velosim/sim-fleet-console/internal/model"
	"github.com/velosim/sim-fleet-console/internal/provider"
	"github.com/velosim/sim-fleet-console/internal/vault"
)

// --- in-memory fakes -----------------------------------------------------

type fakeAccounts struct {
	byClientID map[string]model.Account
	order      []string
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{byClientID: map[string]model.Account{}}
}

func (f *fakeAccounts) Upsert(_ context.Context, a model.Account) (string, error) {
	if existing, ok := f.byClientID[a.ClientID]; ok {
		a.ID = existing.ID
	} else {
		a.ID = "acc-" + a.ClientID
		f.order = append(f.order, a.ClientID)
	}
	f.byClientID[a.ClientID] = a
	return a.ID, nil
}

func (f *fakeAccounts) List(_ context.Context) ([]model.Account, error) {
	out := make([]model.Account, 0, len(f.order))
	for _, cid := range f.order {
		out = append(out, f.byClientID[cid])
	}
	return out, nil
}

type fakeFleets struct {
	byKey map[string]model.Fleet // accountID + "/" + externalRef
	order []string
}

func newFakeFleets() *fakeFleets { return &fakeFleets{byKey: map[string]model.Fleet{}} }

func (f *fakeFleets) Upsert(_ context.Context, fl model.Fleet) (string, error) {
	key := fl.AccountID + "/" + fl.ExternalRef
	if existing, ok := f.byKey[key]; ok {
		fl.ID = existing.ID
	} else {
		fl.ID = "fleet-" + fl.ExternalRef
		f.order = append(f.order, key)
	}
	f.byKey[key] = fl
	return fl.ID, nil
}

func (f *fakeFleets) ListByAccount(_ context.Context, accountID string) ([]model.Fleet, error) {
	var out []model.Fleet
	for _, key := range f.order {
		if fl := f.byKey[key]; fl.AccountID == accountID {
			out = append(out, fl)
		}
	}
	return out, nil
}

type fakeSims struct {
	bySid   map[string]model.Sim
	upserts int
}

func newFakeSims() *fakeSims { return &fakeSims{bySid: map[string]model.Sim{}} }

func (f *fakeSims) Upsert(_ context.Context, s model.Sim) (string, error) {
	f.upserts++
	if existing, ok := f.bySid[s.SimSid]; ok {
		s.ID = existing.ID
	} else {
		s.ID = "sim-" + s.SimSid
	}
	f.bySid[s.SimSid] = s
	return s.ID, nil
}

type fakeScopes struct{ grants []model.Scope }

func (f *fakeScopes) Upsert(_ context.Context, s model.Scope) error {
	f.grants = append(f.grants, s)
	return nil
}

type fakeProvider struct {
	fleets    map[string][]provider.RemoteFleet // by client id
	fleetsErr map[string]error
	sims      map[string][]provider.RemoteSim // by fleet ref
	simsErr   map[string]error
}

func (f *fakeProvider) ListFleets(_ context.Context, t provider.Tenant) ([]provider.RemoteFleet, error) {
	if err := f.fleetsErr[t.ClientID]; err != nil {
		return nil, err
	}
	return f.fleets[t.ClientID], nil
}

func (f *fakeProvider) ListSims(_ context.Context, _ provider.Tenant, ref string) ([]provider.RemoteSim, error) {
	if err := f.simsErr[ref]; err != nil {
		return nil, err
	}
	return f.sims[ref], nil
}

// --- fixture -------------------------------------------------------------

type fixture struct {
	orch     *Orchestrator
	accounts *fakeAccounts
	fleets   *fakeFleets
	sims     *fakeSims
	scopes   *fakeScopes
	remote   *fakeProvider
	vault    *vault.Vault
}

func newFixture(t *testing.T, tenants []provider.Tenant, remote *fakeProvider) *fixture {
	t.Helper()
	v, err := vault.New(bytes.Repeat([]byte{7}, vault.KeySize))
	require.NoError(t, err)
	fx := &fixture{
		accounts: newFakeAccounts(),
		fleets:   newFakeFleets(),
		sims:     newFakeSims(),
		scopes:   &fakeScopes{},
		remote:   remote,
		vault:    v,
	}
	fx.orch = New(fx.accounts, fx.fleets, fx.sims, fx.scopes, remote, v, tenants, 1, zap.NewNop())
	return fx
}

func owner() auth.Context { return auth.Context{CallerID: 1, IsOwner: true} }

func twoTenants() []provider.Tenant {
	return []provider.Tenant{
		{Label: "acme", ClientID: "c1", ClientSecret: "s1"},
		{Label: "globex", ClientID: "c2", ClientSecret: "s2"},
	}
}

// --- tests ---------------------------------------------------------------

func TestSyncAccountsRequiresOwner(t *testing.T) {
	fx := newFixture(t, twoTenants(), &fakeProvider{})
	_, err := fx.orch.SyncAccountsFromConfig(context.Background(), auth.Context{CallerID: 2})
	assert.ErrorIs(t, err, auth.ErrForbidden)
}

func TestSyncAccountsEncryptsAndGrantsScope(t *testing.T) {
	fx := newFixture(t, twoTenants(), &fakeProvider{})

	out, err := fx.orch.SyncAccountsFromConfig(context.Background(), owner())
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Empty(t, out[0].Error)
	assert.Equal(t, "acc-c1", out[0].AccountID)

	stored := fx.accounts.byClientID["c1"]
	assert.NotEqual(t, "s1", stored.EncryptedSecret, "secret is not stored in plain text")
	plain, err := fx.vault.Decrypt(stored.EncryptedSecret)
	require.NoError(t, err)
	assert.Equal(t, "s1", plain)

	require.Len(t, fx.scopes.grants, 2)
	g := fx.scopes.grants[0]
	assert.Equal(t, uint64(1), g.UserID)
	assert.Empty(t, g.FleetID, "owner grant is account-wide")
	assert.True(t, g.CanRead && g.CanWrite && g.CanInvite)
}

func TestSyncAccountsIsIdempotent(t *testing.T) {
	fx := newFixture(t, twoTenants(), &fakeProvider{})

	_, err := fx.orch.SyncAccountsFromConfig(context.Background(), owner())
	require.NoError(t, err)
	again, err := fx.orch.SyncAccountsFromConfig(context.Background(), owner())
	require.NoError(t, err)

	assert.Len(t, fx.accounts.byClientID, 2, "re-run creates no duplicate accounts")
	assert.Equal(t, "acc-c1", again[0].AccountID, "existing row id preserved")
}

func TestSyncFleetsIsolatesAccountFailures(t *testing.T) {
	remote := &fakeProvider{
		fleets: map[string][]provider.RemoteFleet{
			"c1": {{Sid: "HF1", Name: "alpha"}, {Sid: "HF2", Name: "beta"}},
		},
		fleetsErr: map[string]error{"c2": errors.New("token rejected")},
	}
	fx := newFixture(t, twoTenants(), remote)
	_, err := fx.orch.SyncAccountsFromConfig(context.Background(), owner())
	require.NoError(t, err)

	results, err := fx.orch.SyncFleets(context.Background(), owner(), nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, 2, results[0].Synced)
	assert.Empty(t, results[0].Error)
	assert.Equal(t, 0, results[1].Synced)
	assert.Contains(t, results[1].Error, "token rejected")
}

func TestSyncFleetsNonOwnerLimitedToWritableAccounts(t *testing.T) {
	remote := &fakeProvider{fleets: map[string][]provider.RemoteFleet{
		"c1": {{Sid: "HF1", Name: "alpha"}},
		"c2": {{Sid: "HF9", Name: "other"}},
	}}
	fx := newFixture(t, twoTenants(), remote)
	_, err := fx.orch.SyncAccountsFromConfig(context.Background(), owner())
	require.NoError(t, err)

	operator := auth.Context{CallerID: 5, Grants: []auth.Grant{
		{AccountID: "acc-c1", CanRead: true, CanWrite: true},
	}}
	results, err := fx.orch.SyncFleets(context.Background(), operator, nil)
	require.NoError(t, err)
	require.Len(t, results, 1, "only the writable account is synced")
	assert.Equal(t, "acc-c1", results[0].AccountID)
}

func TestSyncSimsMirrorsAndIsIdempotent(t *testing.T) {
	remote := &fakeProvider{
		fleets: map[string][]provider.RemoteFleet{"c1": {{Sid: "HF1", Name: "alpha"}}},
		sims: map[string][]provider.RemoteSim{
			"HF1": {
				{Sid: "S1", ICCID: "8901", Status: "active"},
				{Sid: "S2", ICCID: "8902", Status: "inactive"},
			},
		},
	}
	fx := newFixture(t, twoTenants()[:1], remote)
	_, err := fx.orch.SyncAccountsFromConfig(context.Background(), owner())
	require.NoError(t, err)
	_, err = fx.orch.SyncFleets(context.Background(), owner(), nil)
	require.NoError(t, err)

	sums, err := fx.orch.SyncSims(context.Background(), owner(), nil, nil)
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, 1, sums[0].FleetsSynced)
	assert.Equal(t, 2, sums[0].SimsSynced)
	assert.Len(t, fx.sims.bySid, 2)

	// Identical remote data twice: same rows, stable values, no dupes.
	sums, err = fx.orch.SyncSims(context.Background(), owner(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, sums[0].SimsSynced)
	assert.Len(t, fx.sims.bySid, 2)
	assert.Equal(t, "sim-S1", fx.sims.bySid["S1"].ID)
	assert.Equal(t, "active", fx.sims.bySid["S1"].Status)
}

func TestSyncSimsSkipsVanishedFleet(t *testing.T) {
	remote := &fakeProvider{
		fleets: map[string][]provider.RemoteFleet{"c1": {
			{Sid: "HF1", Name: "alpha"},
			{Sid: "HF2", Name: "beta"},
		}},
		sims: map[string][]provider.RemoteSim{
			"HF2": {{Sid: "S9", ICCID: "8909", Status: "active"}},
		},
		simsErr: map[string]error{
			"HF1": &provider.HTTPError{Status: 404, Body: "fleet gone"},
		},
	}
	fx := newFixture(t, twoTenants()[:1], remote)
	_, err := fx.orch.SyncAccountsFromConfig(context.Background(), owner())
	require.NoError(t, err)
	_, err = fx.orch.SyncFleets(context.Background(), owner(), nil)
	require.NoError(t, err)

	sums, err := fx.orch.SyncSims(context.Background(), owner(), nil, nil)
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, 1, sums[0].FleetsSkipped, "404 fleet skipped, not failed")
	assert.Equal(t, 1, sums[0].FleetsSynced)
	assert.Equal(t, 1, sums[0].SimsSynced)
	assert.Empty(t, sums[0].Errors)
}

func TestSyncSimsDecryptFailureIsAccountScoped(t *testing.T) {
	fx := newFixture(t, twoTenants(), &fakeProvider{})
	_, err := fx.orch.SyncAccountsFromConfig(context.Background(), owner())
	require.NoError(t, err)

	// Corrupt one account's stored secret.
	broken := fx.accounts.byClientID["c1"]
	broken.EncryptedSecret = "not:a:record"
	fx.accounts.byClientID["c1"] = broken

	sums, err := fx.orch.SyncSims(context.Background(), owner(), nil, nil)
	require.NoError(t, err)
	require.Len(t, sums, 2)
	require.Len(t, sums[0].Errors, 1)
	assert.Contains(t, sums[0].Errors[0], "decrypt secret")
	assert.Empty(t, sums[1].Errors, "sibling account unaffected")
}

func TestEffectiveAccountsExplicitFilter(t *testing.T) {
	remote := &fakeProvider{fleets: map[string][]provider.RemoteFleet{}}
	fx := newFixture(t, twoTenants(), remote)
	_, err := fx.orch.SyncAccountsFromConfig(context.Background(), owner())
	require.NoError(t, err)

	results, err := fx.orch.SyncFleets(context.Background(), owner(), []string{"acc-c2"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "acc-c2", results[0].AccountID)
}
