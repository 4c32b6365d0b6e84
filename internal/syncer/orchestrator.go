// Package syncer drives the tenant -> fleet -> SIM mirror: it walks the
// configured provider credentials, pulls remote inventory through the
// provider client and upserts it into local storage.  Failures are
// isolated per account (and per fleet for device sync) so one broken
// tenant never aborts the batch.
package syncer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/velosim/sim-fleet-console/internal/auth"
	"github.com/velosim/sim-fleet-console/internal/model"
	"github.com/velosim/sim-fleet-console/internal/pool"
	"github.com/velosim/sim-fleet-console/internal/provider"
	"github.com/velosim/sim-fleet-console/internal/retry"
	"github.com/velosim/sim-fleet-console/internal/vault"
)

// ProviderAPI is the slice of the provider client the orchestrator uses.
type ProviderAPI interface {
	ListFleets(ctx context.Context, tenant provider.Tenant) ([]provider.RemoteFleet, error)
	ListSims(ctx context.Context, tenant provider.Tenant, fleetRef string) ([]provider.RemoteSim, error)
}

// AccountStore is the account persistence the orchestrator needs.
type AccountStore interface {
	Upsert(ctx context.Context, a model.Account) (string, error)
	List(ctx context.Context) ([]model.Account, error)
}

// FleetStore is the fleet persistence the orchestrator needs.
type FleetStore interface {
	Upsert(ctx context.Context, f model.Fleet) (string, error)
	ListByAccount(ctx context.Context, accountID string) ([]model.Fleet, error)
}

// SimStore is the SIM persistence the orchestrator needs.
type SimStore interface {
	Upsert(ctx context.Context, s model.Sim) (string, error)
}

// ScopeStore is the grant persistence the orchestrator needs.
type ScopeStore interface {
	Upsert(ctx context.Context, s model.Scope) error
}

// SyncedAccount is the per-tenant outcome of a configuration sync.
type SyncedAccount struct {
	AccountID string `json:"account_id,omitempty"`
	Label     string `json:"label"`
	ClientID  string `json:"client_id"`
	Error     string `json:"error,omitempty"`
}

// FleetSyncResult is the per-account outcome of a fleet sync.
type FleetSyncResult struct {
	AccountID string `json:"account_id"`
	Label     string `json:"label"`
	Synced    int    `json:"synced"`
	Error     string `json:"error,omitempty"`
}

// SimSyncSummary is the per-account outcome of a device sync.
type SimSyncSummary struct {
	AccountID     string   `json:"account_id"`
	Label         string   `json:"label"`
	FleetsSynced  int      `json:"fleets_synced"`
	FleetsSkipped int      `json:"fleets_skipped"`
	SimsSynced    int      `json:"sims_synced"`
	Errors        []string `json:"errors,omitempty"`
}

// Orchestrator owns the sync flows.  Construct with New.
type Orchestrator struct {
	accounts AccountStore
	fleets   FleetStore
	sims     SimStore
	scopes   ScopeStore
	remote   ProviderAPI
	vault    *vault.Vault
	tenants  []provider.Tenant

	// fleetConcurrency bounds how many fleets of one account sync their
	// devices in parallel.  1 keeps the strict sequential order.
	fleetConcurrency int
	logger           *zap.Logger
}

// New builds an orchestrator.  tenants is the configured credential list
// consumed by SyncAccountsFromConfig.
func New(accounts AccountStore, fleets FleetStore, sims SimStore, scopes ScopeStore,
	remote ProviderAPI, v *vault.Vault, tenants []provider.Tenant,
	fleetConcurrency int, logger *zap.Logger) *Orchestrator {
	if fleetConcurrency < 1 {
		fleetConcurrency = 1
	}
	return &Orchestrator{
		accounts:         accounts,
		fleets:           fleets,
		sims:             sims,
		scopes:           scopes,
		remote:           remote,
		vault:            v,
		tenants:          tenants,
		fleetConcurrency: fleetConcurrency,
		logger:           logger,
	}
}

// SyncAccountsFromConfig upserts one account per configured tenant
// credential, encrypting the client secret at rest, and grants the
// initiating owner an account-wide full scope.  Owner only.
func (o *Orchestrator) SyncAccountsFromConfig(ctx context.Context, caller auth.Context) ([]SyncedAccount, error) {
	if !caller.IsOwner {
		return nil, auth.ErrForbidden
	}

	out := make([]SyncedAccount, 0, len(o.tenants))
	for _, t := range o.tenants {
		res := SyncedAccount{Label: t.Label, ClientID: t.ClientID}

		enc, err := o.vault.Encrypt(t.ClientSecret)
		if err != nil {
			res.Error = err.Error()
			out = append(out, res)
			continue
		}
		id, err := o.accounts.Upsert(ctx, model.Account{
			Label:           t.Label,
			ClientID:        t.ClientID,
			EncryptedSecret: enc,
			Scope:           t.Scope,
			Audience:        t.Audience,
		})
		if err != nil {
			res.Error = err.Error()
			out = append(out, res)
			continue
		}
		res.AccountID = id

		if err := o.scopes.Upsert(ctx, model.Scope{
			UserID:    caller.CallerID,
			AccountID: id,
			CanRead:   true,
			CanWrite:  true,
			CanInvite: true,
		}); err != nil {
			res.Error = fmt.Sprintf("account synced but scope grant failed: %v", err)
		}
		o.logger.Info("account synced from config",
			zap.String("label", t.Label),
			zap.String("account_id", id))
		out = append(out, res)
	}
	return out, nil
}

// SyncFleets mirrors the remote fleet list of each effective account.
// Per-account failures land in the result list; the batch never aborts.
func (o *Orchestrator) SyncFleets(ctx context.Context, caller auth.Context, accountIDs []string) ([]FleetSyncResult, error) {
	targets, err := o.effectiveAccounts(ctx, caller, accountIDs)
	if err != nil {
		return nil, err
	}

	results := pool.ForEach(ctx, 1, targets, func(ctx context.Context, acc model.Account) (FleetSyncResult, error) {
		res := FleetSyncResult{AccountID: acc.ID, Label: acc.Label}

		tenant, err := o.tenantFor(acc)
		if err != nil {
			return res, err
		}
		remote, err := o.remote.ListFleets(ctx, tenant)
		if err != nil {
			return res, err
		}
		for _, rf := range remote {
			fleetID, err := o.fleets.Upsert(ctx, model.Fleet{
				AccountID:   acc.ID,
				Name:        rf.Name,
				ExternalRef: rf.Sid,
			})
			if err != nil {
				return res, fmt.Errorf("upsert fleet %s: %w", rf.Sid, err)
			}
			if err := o.scopes.Upsert(ctx, model.Scope{
				UserID:    caller.CallerID,
				AccountID: acc.ID,
				FleetID:   fleetID,
				CanRead:   true,
				CanWrite:  true,
				CanInvite: true,
			}); err != nil {
				o.logger.Warn("fleet scope grant failed",
					zap.String("fleet", rf.Sid), zap.Error(err))
			}
			res.Synced++
		}
		o.logger.Info("fleets synced",
			zap.String("account", acc.Label),
			zap.Int("count", res.Synced))
		return res, nil
	})

	out := make([]FleetSyncResult, 0, len(results))
	for _, r := range results {
		res := r.Value
		if res.AccountID == "" {
			res.AccountID, res.Label = r.Item.ID, r.Item.Label
		}
		if r.Err != nil {
			res.Error = r.Err.Error()
			o.logger.Warn("fleet sync failed for account",
				zap.String("account", r.Item.Label), zap.Error(r.Err))
		}
		out = append(out, res)
	}
	return out, nil
}

// SyncSims mirrors device inventory fleet by fleet.  A fleet the
// provider no longer knows (404) is skipped with a warning; SIM upserts
// run with bounded retry to absorb transient storage contention.
func (o *Orchestrator) SyncSims(ctx context.Context, caller auth.Context, accountIDs, fleetIDs []string) ([]SimSyncSummary, error) {
	targets, err := o.effectiveAccounts(ctx, caller, accountIDs)
	if err != nil {
		return nil, err
	}
	fleetFilter := toSet(fleetIDs)

	results := pool.ForEach(ctx, 1, targets, func(ctx context.Context, acc model.Account) (SimSyncSummary, error) {
		sum := SimSyncSummary{AccountID: acc.ID, Label: acc.Label}

		tenant, err := o.tenantFor(acc)
		if err != nil {
			return sum, err
		}
		fleets, err := o.fleets.ListByAccount(ctx, acc.ID)
		if err != nil {
			return sum, err
		}

		var eligible []model.Fleet
		for _, f := range fleets {
			if len(fleetFilter) > 0 && !fleetFilter[f.ID] {
				continue
			}
			if !caller.IsOwner && !caller.CanWrite(acc.ID, f.ID) {
				continue
			}
			eligible = append(eligible, f)
		}

		fleetResults := pool.ForEach(ctx, o.fleetConcurrency, eligible, func(ctx context.Context, f model.Fleet) (int, error) {
			return o.syncFleetSims(ctx, tenant, acc, f)
		})
		for _, fr := range fleetResults {
			if fr.Err != nil {
				if provider.IsNotFound(fr.Err) {
					o.logger.Warn("fleet no longer exists remotely, skipping",
						zap.String("account", acc.Label),
						zap.String("fleet", fr.Item.ExternalRef))
					sum.FleetsSkipped++
					continue
				}
				sum.Errors = append(sum.Errors,
					fmt.Sprintf("fleet %s: %v", fr.Item.ExternalRef, fr.Err))
				continue
			}
			sum.FleetsSynced++
			sum.SimsSynced += fr.Value
		}
		return sum, nil
	})

	out := make([]SimSyncSummary, 0, len(results))
	for _, r := range results {
		sum := r.Value
		if sum.AccountID == "" {
			sum.AccountID, sum.Label = r.Item.ID, r.Item.Label
		}
		if r.Err != nil {
			sum.Errors = append(sum.Errors, r.Err.Error())
			o.logger.Warn("device sync failed for account",
				zap.String("account", r.Item.Label), zap.Error(r.Err))
		}
		out = append(out, sum)
	}
	return out, nil
}

// syncFleetSims pulls one fleet's devices and upserts them, returning
// the number of SIMs written.
func (o *Orchestrator) syncFleetSims(ctx context.Context, tenant provider.Tenant, acc model.Account, f model.Fleet) (int, error) {
	remote, err := o.remote.ListSims(ctx, tenant, f.ExternalRef)
	if err != nil {
		return 0, err
	}
	synced := 0
	now := time.Now().UTC()
	for _, rs := range remote {
		sim := model.Sim{
			AccountID:  acc.ID,
			FleetID:    f.ID,
			SimSid:     rs.Sid,
			ICCID:      rs.ICCID,
			Name:       rs.Name,
			Status:     rs.Status,
			LastSeenAt: rs.LastSeen,
		}
		if sim.LastSeenAt == nil {
			sim.LastSeenAt = &now
		}
		err := retry.Do(ctx, 2, 50*time.Millisecond, func() error {
			_, err := o.sims.Upsert(ctx, sim)
			return err
		})
		if err != nil {
			return synced, fmt.Errorf("upsert sim %s: %w", rs.Sid, err)
		}
		synced++
	}
	return synced, nil
}

// effectiveAccounts resolves the account set a sync call operates on:
// the explicit filter intersected with the caller's writable accounts,
// or every account when an owner passes no filter.
func (o *Orchestrator) effectiveAccounts(ctx context.Context, caller auth.Context, accountIDs []string) ([]model.Account, error) {
	all, err := o.accounts.List(ctx)
	if err != nil {
		return nil, err
	}
	filter := toSet(accountIDs)
	writable := caller.WritableAccounts()

	var out []model.Account
	for _, acc := range all {
		if len(filter) > 0 && !filter[acc.ID] {
			continue
		}
		if !caller.IsOwner && !writable[acc.ID] {
			continue
		}
		out = append(out, acc)
	}
	return out, nil
}

// tenantFor rebuilds the provider credential set from a stored account.
// Decryption failure is fatal for this account's sync: nothing can be
// fetched without the secret.
func (o *Orchestrator) tenantFor(acc model.Account) (provider.Tenant, error) {
	secret, err := o.vault.Decrypt(acc.EncryptedSecret)
	if err != nil {
		return provider.Tenant{}, fmt.Errorf("decrypt secret for %s: %w", acc.Label, err)
	}
	return provider.Tenant{
		Label:        acc.Label,
		ClientID:     acc.ClientID,
		ClientSecret: secret,
		Scope:        acc.Scope,
		Audience:     acc.Audience,
	}, nil
}

func toSet(ids []string) map[string]bool {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
