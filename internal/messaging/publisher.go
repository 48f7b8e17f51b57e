package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tale-server/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// SessionEventPublisher defines the interface for publishing session
// lifecycle events to the client-updates queue. Delivery is
// best-effort: the traversal engine logs failures and moves on.
type SessionEventPublisher interface {
	PublishSessionCompleted(ctx context.Context, payload models.SessionCompletedEvent) error
}

// rabbitMQPublisher implements SessionEventPublisher for RabbitMQ.
type rabbitMQPublisher struct {
	channel   *amqp.Channel
	queueName string
	logger    *zap.Logger
}

// NewRabbitMQSessionEventPublisher opens a channel on the given
// connection and declares the durable client-updates queue. The queue
// parameters must match the consumer's (notification pipeline).
func NewRabbitMQSessionEventPublisher(conn *amqp.Connection, queueName string, logger *zap.Logger) (SessionEventPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("session event publisher: failed to open channel: %w", err)
	}
	_, err = ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("session event publisher: failed to declare queue '%s': %w", queueName, err)
	}
	logger.Info("SessionEventPublisher: queue declared", zap.String("queue", queueName))
	return &rabbitMQPublisher{
		channel:   ch,
		queueName: queueName,
		logger:    logger.Named("SessionEventPublisher"),
	}, nil
}

// PublishSessionCompleted publishes a session completion event.
func (p *rabbitMQPublisher) PublishSessionCompleted(ctx context.Context, payload models.SessionCompletedEvent) error {
	body, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("Failed to marshal SessionCompletedEvent",
			zap.String("sessionID", payload.SessionID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to marshal session completed event: %w", err)
	}
	return p.publishMessage(ctx, body)
}

// publishMessage is a helper method for publishing a message.
func (p *rabbitMQPublisher) publishMessage(ctx context.Context, body []byte) error {
	if p.channel == nil {
		return errors.New("rabbitmq channel is not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var err error
	// Попытка публикации с retry до 3 раз
	for attempt := 1; attempt <= 3; attempt++ {
		err = p.channel.PublishWithContext(ctx,
			"",          // exchange (используем default)
			p.queueName, // routing key (имя очереди)
			false,       // mandatory
			false,       // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Body:         body,
				Timestamp:    time.Now(),
				AppId:        "tale-server",
			},
		)
		if err == nil {
			break
		}
		p.logger.Warn("Publish attempt failed",
			zap.Int("attempt", attempt),
			zap.String("queue", p.queueName),
			zap.Error(err))
		time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
	}
	if err != nil {
		return fmt.Errorf("failed to publish to queue %s after retries: %w", p.queueName, err)
	}
	p.logger.Debug("Message published", zap.String("queue", p.queueName))
	return nil
}
