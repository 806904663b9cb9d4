package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

const (
	dialAttempts   = 5
	dialRetryDelay = 2 * time.Second
)

// Channel is the subset of *amqp.Channel the publisher needs
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends JSON events to a durable fanout exchange
type Publisher struct {
	mu       sync.Mutex // amqp channels are not safe for concurrent publishes
	conn     *amqp.Connection
	channel  Channel
	exchange string
	sender   string
	logger   *logrus.Logger
}

// Dial connects to RabbitMQ, retrying a few times while the broker comes up,
// and declares the exchange
func Dial(url, exchange, sender string, logger *logrus.Logger) (*Publisher, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	var conn *amqp.Connection
	var err error
	for attempt := 1; attempt <= dialAttempts; attempt++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		logger.WithError(err).WithField("attempt", attempt).Warn("Failed to connect to RabbitMQ, retrying")
		time.Sleep(dialRetryDelay)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	publisher, err := NewPublisher(ch, exchange, sender, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	publisher.conn = conn
	return publisher, nil
}

// NewPublisher declares the fanout exchange on an open channel
func NewPublisher(ch Channel, exchange, sender string, logger *logrus.Logger) (*Publisher, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if exchange == "" {
		return nil, fmt.Errorf("exchange name is required")
	}

	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("failed to declare exchange '%s': %w", exchange, err)
	}
	logger.WithField("exchange", exchange).Info("Event exchange (fanout) declared")

	return &Publisher{
		channel:  ch,
		exchange: exchange,
		sender:   sender,
		logger:   logger,
	}, nil
}

// Publish sends one event. eventType travels in the message type and headers.
func (p *Publisher) Publish(eventType string, payload interface{}) error {
	msg, err := NewMessage(eventType, p.sender, payload)
	if err != nil {
		return err
	}

	p.mu.Lock()
	err = p.channel.Publish(p.exchange, "", false, false, msg)
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to publish %s to exchange '%s': %w", eventType, p.exchange, err)
	}

	p.logger.WithFields(logrus.Fields{
		"exchange":   p.exchange,
		"event_type": eventType,
		"message_id": msg.MessageId,
	}).Debug("Event published")
	return nil
}

// Close closes the channel and, when the publisher dialed it, the connection
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.channel.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// NewMessage builds a persistent JSON message for an event
func NewMessage(eventType, sender string, payload interface{}) (amqp.Publishing, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to encode %s event: %w", eventType, err)
	}

	return amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    uuid.New().String(),
		Type:         eventType,
		Timestamp:    time.Now(),
		Body:         body,
		Headers: amqp.Table{
			"event_type": eventType,
			"sender_id":  sender,
		},
	}, nil
}
