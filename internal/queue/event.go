// Package queue defines message payloads exchanged over the message
// broker and the background consumer that reconciles dispatched
// commands against the provider's logs.
package queue

// CommandDispatchedQueue is the durable queue carrying dispatch events.
const CommandDispatchedQueue = "command.dispatched"

// CommandDispatchedEvent is published after a command was accepted by
// the provider and mirrored locally.  It contains enough information
// for the reconciliation consumer to poll the provider's command logs
// without re-reading the dispatch request.
type CommandDispatchedEvent struct {
	LogID     string `json:"log_id"`
	AccountID string `json:"account_id"`
	SimSid    string `json:"sim_sid"`
	Command   string `json:"command"`
	Payload   string `json:"payload"`
	SentAt    string `json:"sent_at"` // RFC3339
}
