package dispatch

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/velosim/sim-fleet-console/internal/auth"
	"github.com/velosim/sim-fleet-console/internal/model"
	"github.com/velosim/sim-fleet-console/internal/provider"
	"github.com/velosim/sim-fleet-console/internal/queue"
	"github.com/velosim/sim-fleet-console/internal/ratelimit"
	"github.com/velosim/sim-fleet-console/internal/vault"
)

// --- fakes ---------------------------------------------------------------

type fakeResolver struct {
	sims map[string][]model.Sim // account id -> resolvable sims
	err  error
}

func (f *fakeResolver) ResolveTargets(_ context.Context, accountID string, sids, iccids, names []string) ([]model.Sim, error) {
	if f.err != nil {
		return nil, f.err
	}
	match := func(v string, set []string) bool {
		for _, s := range set {
			if s == v {
				return true
			}
		}
		return false
	}
	var out []model.Sim
	for _, s := range f.sims[accountID] {
		if match(s.SimSid, sids) || match(s.ICCID, iccids) || match(s.Name, names) {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeAccountReader struct{ accounts map[string]model.Account }

func (f *fakeAccountReader) GetByID(_ context.Context, id string) (model.Account, error) {
	acc, ok := f.accounts[id]
	if !ok {
		return model.Account{}, errors.New("not found")
	}
	return acc, nil
}

type fakeLogWriter struct {
	rows []model.CommandLog
	err  error
}

func (f *fakeLogWriter) Insert(_ context.Context, l model.CommandLog) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.rows = append(f.rows, l)
	return "log-" + l.SimSid, nil
}

type sentCommand struct {
	SimSid  string
	Payload string
}

type fakeSender struct {
	sent    []sentCommand
	failFor map[string]error // by sim sid
}

func (f *fakeSender) SendCommand(_ context.Context, _ provider.Tenant, simSid, payload string) (provider.CommandResponse, error) {
	if err := f.failFor[simSid]; err != nil {
		return provider.CommandResponse{}, err
	}
	f.sent = append(f.sent, sentCommand{SimSid: simSid, Payload: payload})
	return provider.CommandResponse{Sid: "CMD-" + simSid, Status: "queued"}, nil
}

type fakePublisher struct{ events []queue.CommandDispatchedEvent }

func (f *fakePublisher) PublishCommandDispatched(_ context.Context, ev queue.CommandDispatchedEvent) error {
	f.events = append(f.events, ev)
	return nil
}

// --- fixture -------------------------------------------------------------

type fixture struct {
	d         *Dispatcher
	resolver  *fakeResolver
	sender    *fakeSender
	logs      *fakeLogWriter
	publisher *fakePublisher
	sleeps    []time.Duration
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	v, err := vault.New(bytes.Repeat([]byte{9}, vault.KeySize))
	require.NoError(t, err)
	enc, err := v.Encrypt("plain-secret")
	require.NoError(t, err)

	fx := &fixture{
		resolver: &fakeResolver{sims: map[string][]model.Sim{
			"A1": {
				{ID: "id-1", AccountID: "A1", FleetID: "f1", SimSid: "S1", ICCID: "89001"},
				{ID: "id-2", AccountID: "A1", FleetID: "f1", SimSid: "S2", ICCID: "89002"},
				{ID: "id-3", AccountID: "A1", FleetID: "f2", SimSid: "S3", ICCID: "89003", Name: "gateway"},
			},
		}},
		sender:    &fakeSender{failFor: map[string]error{}},
		logs:      &fakeLogWriter{},
		publisher: &fakePublisher{},
	}
	accounts := &fakeAccountReader{accounts: map[string]model.Account{
		"A1": {ID: "A1", Label: "acme", ClientID: "c1", EncryptedSecret: enc},
	}}
	fx.d = New(fx.resolver, accounts, fx.logs, fx.sender, fx.publisher,
		ratelimit.New(), v, Options{RateLimit: 100, RateWindow: time.Minute}, zap.NewNop())
	fx.d.sleep = func(_ context.Context, d time.Duration) { fx.sleeps = append(fx.sleeps, d) }
	return fx
}

func ownerCtx() auth.Context { return auth.Context{CallerID: 1, IsOwner: true} }

// --- tests ---------------------------------------------------------------

func TestDispatchRejectsUnknownCommand(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.d.Dispatch(context.Background(), ownerCtx(), Request{Command: "self-destruct"})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, fx.sender.sent, "no remote calls on validation failure")
}

func TestDispatchCustomRequiresText(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.d.Dispatch(context.Background(), ownerCtx(), Request{Command: "custom"})
	assert.ErrorIs(t, err, ErrValidation)

	long := make([]byte, maxCustomTextLen+1)
	for i := range long {
		long[i] = 'x'
	}
	_, err = fx.d.Dispatch(context.Background(), ownerCtx(), Request{Command: "custom", Text: string(long)})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDispatchRateGateAbortsWholeRequest(t *testing.T) {
	fx := newFixture(t)
	fx.d.opts.RateLimit = 2

	req := Request{Command: "ping", Targets: []TargetGroup{{AccountID: "A1", SimSids: []string{"S1"}}}}
	for i := 0; i < 2; i++ {
		_, err := fx.d.Dispatch(context.Background(), ownerCtx(), req)
		require.NoError(t, err)
	}
	_, err := fx.d.Dispatch(context.Background(), ownerCtx(), req)
	assert.ErrorIs(t, err, ratelimit.ErrLimitExceeded)
	assert.Len(t, fx.sender.sent, 2, "third call performed no sends")
}

func TestDispatchUnresolvedGroupEmitsSingleError(t *testing.T) {
	fx := newFixture(t)
	results, err := fx.d.Dispatch(context.Background(), ownerCtx(), Request{
		Command: "custom",
		Text:    "AT+INFO",
		Targets: []TargetGroup{{AccountID: "A1", ICCIDs: []string{"0000"}}},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, StatusError, results[0].Status)
	assert.Equal(t, "No SIMs resolved for target", results[0].Message)
	assert.Empty(t, fx.sender.sent, "no remote calls for unresolved group")
}

func TestDispatchResetEndToEnd(t *testing.T) {
	fx := newFixture(t)
	results, err := fx.d.Dispatch(context.Background(), ownerCtx(), Request{
		Command: "reset",
		Targets: []TargetGroup{{AccountID: "A1", ICCIDs: []string{"89001"}}},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, StatusQueued, results[0].Status)
	assert.Equal(t, "reset", results[0].Command)
	assert.Equal(t, "reset", results[0].Payload, "catalog commands use the name as payload")
	assert.Equal(t, "S1", results[0].SimSid)

	require.Len(t, fx.logs.rows, 1)
	assert.Equal(t, model.CommandStatusQueued, fx.logs.rows[0].Status)
	assert.Equal(t, "CMD-S1", fx.logs.rows[0].ProviderSid)

	require.Len(t, fx.publisher.events, 1)
	assert.Equal(t, "log-S1", fx.publisher.events[0].LogID)
}

func TestDispatchCustomPayloadIsText(t *testing.T) {
	fx := newFixture(t)
	results, err := fx.d.Dispatch(context.Background(), ownerCtx(), Request{
		Command: "custom",
		Text:    "AT+CSQ?",
		Targets: []TargetGroup{{AccountID: "A1", SimSids: []string{"S1"}}},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "AT+CSQ?", results[0].Payload)
	require.Len(t, fx.sender.sent, 1)
	assert.Equal(t, "AT+CSQ?", fx.sender.sent[0].Payload)
}

func TestDispatchScopeEvaluation(t *testing.T) {
	fx := newFixture(t)
	readOnly := auth.Context{CallerID: 7, Grants: []auth.Grant{
		{AccountID: "A1", FleetID: "f1", CanRead: true, CanWrite: false},
	}}

	// Write-classified command: denied.
	results, err := fx.d.Dispatch(context.Background(), readOnly, Request{
		Command: "reset",
		Targets: []TargetGroup{{AccountID: "A1", SimSids: []string{"S1"}}},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, StatusForbidden, results[0].Status)
	assert.Empty(t, fx.sender.sent)

	// Read-classified command: allowed.
	results, err = fx.d.Dispatch(context.Background(), readOnly, Request{
		Command: "ping",
		Targets: []TargetGroup{{AccountID: "A1", SimSids: []string{"S1"}}},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, StatusQueued, results[0].Status)
}

func TestDispatchPerDeviceFailureIsolation(t *testing.T) {
	fx := newFixture(t)
	fx.sender.failFor["S1"] = errors.New("provider said no")

	results, err := fx.d.Dispatch(context.Background(), ownerCtx(), Request{
		Command: "reboot",
		Targets: []TargetGroup{{AccountID: "A1", SimSids: []string{"S1", "S2"}}},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, StatusError, results[0].Status)
	assert.Contains(t, results[0].Message, "provider said no")
	assert.Equal(t, StatusQueued, results[1].Status, "sibling device still dispatched")
}

func TestDispatchResultOrderingAndCount(t *testing.T) {
	fx := newFixture(t)
	results, err := fx.d.Dispatch(context.Background(), ownerCtx(), Request{
		Command: "status",
		Targets: []TargetGroup{
			{AccountID: "A1", SimSids: []string{"S1", "S2"}},
			{AccountID: "A1", ICCIDs: []string{"none-such"}},
			{AccountID: "A1", Names: []string{"gateway"}},
		},
	})
	require.NoError(t, err)
	// Two resolved in group 1, one error entry for group 2, one resolved
	// in group 3: four entries, traversal order.
	require.Len(t, results, 4)
	assert.Equal(t, "S1", results[0].SimSid)
	assert.Equal(t, "S2", results[1].SimSid)
	assert.Equal(t, StatusError, results[2].Status)
	assert.Equal(t, "S3", results[3].SimSid)
}

func TestDispatchThrottleBetweenSends(t *testing.T) {
	fx := newFixture(t)
	results, err := fx.d.Dispatch(context.Background(), ownerCtx(), Request{
		Command:           "ping",
		ThrottlePerSecond: 2,
		Targets:           []TargetGroup{{AccountID: "A1", SimSids: []string{"S1", "S2"}}},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Len(t, fx.sleeps, 1, "delay only between consecutive sends")
	assert.Equal(t, 500*time.Millisecond, fx.sleeps[0])
}
