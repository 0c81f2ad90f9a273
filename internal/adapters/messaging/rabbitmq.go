package messaging

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/mashoras/activity-service/internal/config"
)

// Publisher is the subset of *amqp.Channel used to publish.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// RabbitMQBroker implements ports.Notifier using RabbitMQ.
type RabbitMQBroker struct {
	conn      *amqp.Connection
	ch        Publisher
	queueName string
	cb        *gobreaker.CircuitBreaker
	log       *zap.Logger
}

func NewRabbitMQBroker(amqpURL, queueName string, log *zap.Logger) (*RabbitMQBroker, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	_, err = ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	b := NewBroker(ch, queueName, log)
	b.conn = conn
	return b, nil
}

// NewBroker wraps an already open channel.
func NewBroker(ch Publisher, queueName string, log *zap.Logger) *RabbitMQBroker {
	if log == nil {
		log = zap.NewNop()
	}
	return &RabbitMQBroker{
		ch:        ch,
		queueName: queueName,
		cb:        config.NewCircuitBreaker(config.BreakerRabbitMQ, log),
		log:       log.Named("rabbitmq"),
	}
}

// IsReady reports whether publishes are currently allowed through.
func (rmq *RabbitMQBroker) IsReady() bool {
	if rmq.conn != nil && rmq.conn.IsClosed() {
		return false
	}
	return rmq.cb.State() != gobreaker.StateOpen
}

func (rmq *RabbitMQBroker) Close() error {
	if c, ok := rmq.ch.(*amqp.Channel); ok && c != nil {
		if err := c.Close(); err != nil {
			return err
		}
	}
	if rmq.conn != nil {
		return rmq.conn.Close()
	}
	return nil
}
