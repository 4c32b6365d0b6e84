// Package queue_publisher provides functions to publish domain events to
// RabbitMQ.  Errors are logged and returned so callers can ignore
// failures without interrupting the main request flow.
package queue_publisher

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	q "github.com/velosim/sim-fleet-console/internal/queue"
)

// Publisher publishes dispatch events to the command.dispatched queue.
// A connection is opened per publish; dispatch volume is low (bounded
// by the caller rate gate) and this keeps the publisher robust against
// broker restarts without connection-state bookkeeping.
type Publisher struct {
	url    string
	logger *zap.Logger
}

// New builds a publisher for the given broker URL.
func New(url string, logger *zap.Logger) *Publisher {
	return &Publisher{url: url, logger: logger}
}

// PublishCommandDispatched publishes a CommandDispatchedEvent.  The
// function never panics; any error is logged and returned so the caller
// can choose to ignore it.  Messages are marked persistent.
func (p *Publisher) PublishCommandDispatched(ctx context.Context, event q.CommandDispatchedEvent) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		p.logger.Warn("rabbitmq: dial failed", zap.Error(err))
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.logger.Warn("rabbitmq: channel open failed", zap.Error(err))
		return err
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent). Durable so messages survive
	// broker restarts.
	if _, err := ch.QueueDeclare(
		q.CommandDispatchedQueue, // name
		true,                     // durable
		false,                    // autoDelete
		false,                    // exclusive
		false,                    // noWait
		nil,                      // args
	); err != nil {
		p.logger.Warn("rabbitmq: queue declare failed", zap.Error(err))
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("rabbitmq: marshal event failed", zap.Error(err))
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	if err := ch.PublishWithContext(ctx,
		"",                       // default exchange
		q.CommandDispatchedQueue, // routing key = queue name
		false,                    // mandatory
		false,                    // immediate
		pub,
	); err != nil {
		p.logger.Warn("rabbitmq: publish failed", zap.Error(err))
		return err
	}

	return nil
}
