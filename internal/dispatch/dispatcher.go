// Package dispatch resolves logical command targets to concrete SIMs,
// authorizes each one against the caller's scopes, throttles per-tenant
// send rate and submits commands through the provider client.  Results
// come back in traversal order: group order, then device order within
// each group.  One group's or one device's failure never aborts its
// siblings.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/velosim/sim-fleet-console/internal/auth"
	"github.com/velosim/sim-fleet-console/internal/model"
	"github.com/velosim/sim-fleet-console/internal/provider"
	"github.com/velosim/sim-fleet-console/internal/queue"
	"github.com/velosim/sim-fleet-console/internal/ratelimit"
	"github.com/velosim/sim-fleet-console/internal/vault"
)

// ErrValidation rejects a malformed request before any network
// activity: unknown command, or a custom command without usable text.
var ErrValidation = errors.New("dispatch: validation failed")

// Dispatch result statuses.
const (
	StatusQueued    = "queued"
	StatusForbidden = "forbidden"
	StatusError     = "error"
)

// messageNoTargets is returned for a group none of whose identifiers
// resolved to a SIM.
const messageNoTargets = "No SIMs resolved for target"

// TargetGroup names one account and a disjunctive set of device
// identifiers within it.
type TargetGroup struct {
	AccountID string   `json:"account_id"`
	SimSids   []string `json:"sim_sids,omitempty"`
	ICCIDs    []string `json:"iccids,omitempty"`
	Names     []string `json:"names,omitempty"`
}

// Request is one dispatch invocation.
type Request struct {
	Command           string        `json:"command"`
	Text              string        `json:"text,omitempty"`
	Targets           []TargetGroup `json:"targets"`
	ThrottlePerSecond float64       `json:"throttle_per_second,omitempty"`
}

// Result is the outcome for one resolved SIM, or one error entry for an
// unresolvable group.
type Result struct {
	AccountID string    `json:"account_id"`
	SimSid    string    `json:"sim_sid,omitempty"`
	ICCID     string    `json:"iccid,omitempty"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Command   string    `json:"command"`
	Payload   string    `json:"payload"`
	SentAt    time.Time `json:"sent_at"`
}

// SimResolver finds concrete SIMs for a group's identifier sets.
type SimResolver interface {
	ResolveTargets(ctx context.Context, accountID string, sids, iccids, names []string) ([]model.Sim, error)
}

// AccountReader loads one account row for credential resolution.
type AccountReader interface {
	GetByID(ctx context.Context, id string) (model.Account, error)
}

// LogWriter mirrors a successfully submitted command.
type LogWriter interface {
	Insert(ctx context.Context, l model.CommandLog) (string, error)
}

// CommandSender is the slice of the provider client the dispatcher uses.
type CommandSender interface {
	SendCommand(ctx context.Context, tenant provider.Tenant, simSid, payload string) (provider.CommandResponse, error)
}

// EventPublisher announces queued commands for later reconciliation.
// Publishing is best-effort; a broker outage never fails a dispatch.
type EventPublisher interface {
	PublishCommandDispatched(ctx context.Context, ev queue.CommandDispatchedEvent) error
}

// Options tunes the dispatcher's caller rate gate.
type Options struct {
	RateLimit  int           // dispatch calls per caller per window
	RateWindow time.Duration // fixed-window size
}

// Dispatcher owns the dispatch flow.  Construct with New.
type Dispatcher struct {
	sims      SimResolver
	accounts  AccountReader
	logs      LogWriter
	sender    CommandSender
	publisher EventPublisher
	limiter   *ratelimit.Limiter
	vault     *vault.Vault
	opts      Options
	logger    *zap.Logger

	// sleep is replaced in tests so throttle delays do not slow them.
	sleep func(ctx context.Context, d time.Duration)
}

// New builds a dispatcher.  publisher may be nil when no broker is
// configured.
func New(sims SimResolver, accounts AccountReader, logs LogWriter, sender CommandSender,
	publisher EventPublisher, limiter *ratelimit.Limiter, v *vault.Vault,
	opts Options, logger *zap.Logger) *Dispatcher {
	if opts.RateLimit <= 0 {
		opts.RateLimit = 10
	}
	if opts.RateWindow <= 0 {
		opts.RateWindow = time.Minute
	}
	return &Dispatcher{
		sims:      sims,
		accounts:  accounts,
		logs:      logs,
		sender:    sender,
		publisher: publisher,
		limiter:   limiter,
		vault:     v,
		opts:      opts,
		logger:    logger,
		sleep:     sleepCtx,
	}
}

// Dispatch validates, authorizes and submits one command batch.  It
// fails the whole request only on validation or on the caller's rate
// gate; everything past that point degrades per group or per device.
func (d *Dispatcher) Dispatch(ctx context.Context, caller auth.Context, req Request) ([]Result, error) {
	spec, ok := LookupCommand(req.Command)
	if !ok {
		return nil, fmt.Errorf("%w: unknown command %q", ErrValidation, req.Command)
	}
	if req.Command == CommandCustom {
		if req.Text == "" {
			return nil, fmt.Errorf("%w: custom command requires text", ErrValidation)
		}
		if len(req.Text) > maxCustomTextLen {
			return nil, fmt.Errorf("%w: custom text exceeds %d characters", ErrValidation, maxCustomTextLen)
		}
	}

	key := fmt.Sprintf("command:%d", caller.CallerID)
	if err := d.limiter.Enforce(key, d.opts.RateLimit, d.opts.RateWindow); err != nil {
		return nil, err
	}

	payload := payloadFor(req.Command, req.Text)
	var results []Result
	for _, group := range req.Targets {
		results = append(results, d.dispatchGroup(ctx, caller, group, spec, req, payload)...)
	}
	return results, nil
}

func (d *Dispatcher) dispatchGroup(ctx context.Context, caller auth.Context, group TargetGroup,
	spec CommandSpec, req Request, payload string) []Result {

	groupError := func(msg string) []Result {
		return []Result{{
			AccountID: group.AccountID,
			Status:    StatusError,
			Message:   msg,
			Command:   req.Command,
			Payload:   payload,
			SentAt:    time.Now().UTC(),
		}}
	}

	sims, err := d.sims.ResolveTargets(ctx, group.AccountID, group.SimSids, group.ICCIDs, group.Names)
	if err != nil {
		return groupError(fmt.Sprintf("target resolution failed: %v", err))
	}
	if len(sims) == 0 {
		return groupError(messageNoTargets)
	}

	acc, err := d.accounts.GetByID(ctx, group.AccountID)
	if err != nil {
		return groupError(fmt.Sprintf("account lookup failed: %v", err))
	}
	secret, err := d.vault.Decrypt(acc.EncryptedSecret)
	if err != nil {
		return groupError(fmt.Sprintf("credential decryption failed for %s: %v", acc.Label, err))
	}
	tenant := provider.Tenant{
		Label:        acc.Label,
		ClientID:     acc.ClientID,
		ClientSecret: secret,
		Scope:        acc.Scope,
		Audience:     acc.Audience,
	}

	var interDelay time.Duration
	if req.ThrottlePerSecond > 0 {
		interDelay = time.Duration(float64(time.Second) / req.ThrottlePerSecond)
	}

	results := make([]Result, 0, len(sims))
	sent := false
	for _, sim := range sims {
		res := Result{
			AccountID: group.AccountID,
			SimSid:    sim.SimSid,
			ICCID:     sim.ICCID,
			Command:   req.Command,
			Payload:   payload,
			SentAt:    time.Now().UTC(),
		}

		allowed := caller.CanRead(sim.AccountID, sim.FleetID)
		if spec.Write {
			allowed = caller.CanWrite(sim.AccountID, sim.FleetID)
		}
		if !allowed {
			res.Status = StatusForbidden
			res.Message = "caller lacks required scope"
			results = append(results, res)
			continue
		}

		// Inter-device throttle applies between consecutive sends within
		// one account group, not before the first.
		if interDelay > 0 && sent {
			d.sleep(ctx, interDelay)
		}

		resp, err := d.sender.SendCommand(ctx, tenant, sim.SimSid, payload)
		sent = true
		if err != nil {
			res.Status = StatusError
			res.Message = err.Error()
			d.logger.Warn("command submission failed",
				zap.String("account", acc.Label),
				zap.String("sim_sid", sim.SimSid),
				zap.Error(err))
			results = append(results, res)
			continue
		}

		res.Status = StatusQueued
		logID, err := d.logs.Insert(ctx, model.CommandLog{
			AccountID:   sim.AccountID,
			SimID:       sim.ID,
			SimSid:      sim.SimSid,
			Command:     req.Command,
			Payload:     payload,
			Status:      model.CommandStatusQueued,
			ProviderSid: resp.Sid,
			SentAt:      res.SentAt,
		})
		if err != nil {
			// The command is already on the wire; keep the queued result
			// but surface the mirror failure.
			res.Message = fmt.Sprintf("sent, but log mirror failed: %v", err)
			d.logger.Warn("command log mirror failed",
				zap.String("sim_sid", sim.SimSid), zap.Error(err))
		} else if d.publisher != nil {
			ev := queue.CommandDispatchedEvent{
				LogID:     logID,
				AccountID: sim.AccountID,
				SimSid:    sim.SimSid,
				Command:   req.Command,
				Payload:   payload,
				SentAt:    res.SentAt.Format(time.RFC3339),
			}
			if err := d.publisher.PublishCommandDispatched(ctx, ev); err != nil {
				d.logger.Warn("dispatch event publish failed",
					zap.String("log_id", logID), zap.Error(err))
			}
		}
		results = append(results, res)
	}
	return results
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
