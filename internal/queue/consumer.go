package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/velosim/sim-fleet-console/internal/model"
	"github.com/velosim/sim-fleet-console/internal/provider"
)

// Reconciler turns a dispatch event into an updated command-log row by
// polling the provider's logs.  It is implemented by the dispatch
// reconciliation service and injected here so the consumer stays free
// of storage concerns.
type Reconciler interface {
	Reconcile(ctx context.Context, ev CommandDispatchedEvent) error
}

// StartReconcileConsumer connects to RabbitMQ, declares the
// command.dispatched queue (durable) and consumes events, handing each
// to the reconciler.  It runs a reconnect loop with capped backoff and
// keeps running across broker restarts; poison messages are rejected
// without requeue so the consumer never spins on one bad event.
func StartReconcileConsumer(url string, rec Reconciler, logger *zap.Logger) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			logger.Warn("reconcile-consumer: broker dial failed",
				zap.Error(err), zap.Duration("retry_in", backoff))
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err := consumeLoop(conn, rec, logger); err != nil {
			logger.Warn("reconcile-consumer: consume loop ended, reconnecting",
				zap.Error(err))
			time.Sleep(2 * time.Second)
		}
	}
}

func consumeLoop(conn *amqp.Connection, rec Reconciler, logger *zap.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		logger.Warn("reconcile-consumer: set QoS failed", zap.Error(err))
	}

	if _, err := ch.QueueDeclare(CommandDispatchedQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(CommandDispatchedQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		var ev CommandDispatchedEvent
		if err := json.Unmarshal(d.Body, &ev); err != nil {
			logger.Warn("reconcile-consumer: bad event payload", zap.Error(err))
			_ = d.Nack(false, false)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := rec.Reconcile(ctx, ev)
		cancel()
		if err != nil {
			logger.Warn("reconcile-consumer: reconcile failed",
				zap.String("log_id", ev.LogID),
				zap.String("sim_sid", ev.SimSid),
				zap.Error(err))
			_ = d.Nack(false, false) // do not requeue, avoid tight loops
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

// --- reconciliation service ----------------------------------------------

// LogUpdater is the command-log persistence the service needs.
type LogUpdater interface {
	UpdateStatus(ctx context.Context, id, status, providerSid string) error
}

// AccountReader loads the account for credential resolution.
type AccountReader interface {
	GetByID(ctx context.Context, id string) (model.Account, error)
}

// SecretDecryptor recovers a tenant secret from its stored record.
type SecretDecryptor interface {
	Decrypt(record string) (string, error)
}

// LogLister is the slice of the provider client the service uses.
type LogLister interface {
	ListCommandLogs(ctx context.Context, tenant provider.Tenant, opts provider.ListLogsOptions) (provider.LogsPage, error)
}

// ReconcileService matches dispatched commands against provider command
// logs and records the observed terminal status.
type ReconcileService struct {
	logs     LogUpdater
	accounts AccountReader
	vault    SecretDecryptor
	remote   LogLister
	logger   *zap.Logger
}

// NewReconcileService wires the service.
func NewReconcileService(logs LogUpdater, accounts AccountReader, v SecretDecryptor, remote LogLister, logger *zap.Logger) *ReconcileService {
	return &ReconcileService{logs: logs, accounts: accounts, vault: v, remote: remote, logger: logger}
}

// Reconcile polls the provider's command log for the event's SIM,
// looking for an entry created at or after the dispatch time whose
// payload matches.  A match updates the mirrored row; no match leaves
// the row queued (a later dispatch for the same SIM retries naturally).
func (s *ReconcileService) Reconcile(ctx context.Context, ev CommandDispatchedEvent) error {
	acc, err := s.accounts.GetByID(ctx, ev.AccountID)
	if err != nil {
		return fmt.Errorf("load account %s: %w", ev.AccountID, err)
	}
	secret, err := s.vault.Decrypt(acc.EncryptedSecret)
	if err != nil {
		return fmt.Errorf("decrypt secret for %s: %w", acc.Label, err)
	}
	tenant := provider.Tenant{
		Label:        acc.Label,
		ClientID:     acc.ClientID,
		ClientSecret: secret,
		Scope:        acc.Scope,
		Audience:     acc.Audience,
	}

	var createdAfter *time.Time
	if t, err := time.Parse(time.RFC3339, ev.SentAt); err == nil {
		// Small backward slack: provider log timestamps are coarse.
		t = t.Add(-time.Minute)
		createdAfter = &t
	}

	cursor := ""
	for page := 0; page < 5; page++ { // bounded paging
		logs, err := s.remote.ListCommandLogs(ctx, tenant, provider.ListLogsOptions{
			SimSid:       ev.SimSid,
			CreatedAfter: createdAfter,
			Cursor:       cursor,
			PageSize:     50,
		})
		if err != nil {
			return fmt.Errorf("list command logs for %s: %w", ev.SimSid, err)
		}
		for _, entry := range logs.Entries {
			if entry.Payload != ev.Payload {
				continue
			}
			status := normalizeStatus(entry.Status)
			if status == model.CommandStatusQueued {
				continue // still pending remotely, nothing to record yet
			}
			s.logger.Info("command reconciled",
				zap.String("log_id", ev.LogID),
				zap.String("sim_sid", ev.SimSid),
				zap.String("status", status))
			return s.logs.UpdateStatus(ctx, ev.LogID, status, entry.Sid)
		}
		if logs.NextCursor == "" {
			break
		}
		cursor = logs.NextCursor
	}
	return nil
}

// normalizeStatus maps provider status strings onto the local status
// vocabulary; unknown values count as delivered so the row leaves the
// queued state once the provider shows the command at all.
func normalizeStatus(remote string) string {
	switch remote {
	case "queued", "sending", "":
		return model.CommandStatusQueued
	case "failed", "undelivered":
		return model.CommandStatusFailed
	case "received":
		return model.CommandStatusReceived
	default:
		return model.CommandStatusDelivered
	}
}
