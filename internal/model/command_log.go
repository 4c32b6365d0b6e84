package model

import "time"

// Command log status values.  A row starts as StatusQueued when the
// dispatcher mirrors a successful submission and moves to a terminal
// status once the reconciliation consumer matches it against the
// provider's command logs.
const (
	CommandStatusQueued    = "queued"
	CommandStatusDelivered = "delivered"
	CommandStatusFailed    = "failed"
	CommandStatusReceived  = "received"
)

// CommandLog mirrors one outbound command in the `command_logs` table.
// It is append-only from the dispatcher's point of view; only the status
// and provider sid are updated later during reconciliation.
//
// Fields:
//  ID          – primary key identifier (UUID string).
//  AccountID   – account the target SIM belongs to.
//  SimID       – internal id of the target SIM.
//  SimSid      – the provider's device identifier (denormalized for lookups).
//  Command     – logical command name ("reset", "custom", ...).
//  Payload     – wire payload actually sent to the device.
//  Direction   – always "to_sim" for dispatcher-created rows.
//  Status      – queued/delivered/failed/received.
//  ProviderSid – the provider's command resource sid, once known.
//  SentAt      – when the dispatcher submitted the command.
//  CreatedAt   – row creation timestamp.
//  UpdatedAt   – timestamp of last reconciliation update.
type CommandLog struct {
	ID          string    // command_logs.id
	AccountID   string    // command_logs.account_id
	SimID       string    // command_logs.sim_id
	SimSid      string    // command_logs.sim_sid
	Command     string    // command_logs.command
	Payload     string    // command_logs.payload
	Direction   string    // command_logs.direction
	Status      string    // command_logs.status
	ProviderSid string    // command_logs.provider_sid
	SentAt      time.Time // command_logs.sent_at
	CreatedAt   time.Time // command_logs.created_at
	UpdatedAt   time.Time // command_logs.updated_at
}
