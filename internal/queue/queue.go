package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/therealutkarshpriyadarshi/tooldetect/internal/config"
	"github.com/therealutkarshpriyadarshi/tooldetect/pkg/models"
)

const (
	ExchangeName           = "tooldetect"
	DeadLetterExchangeName = "tooldetect_dlq"
)

// Handler processes one job message
type Handler func(ctx context.Context, msg *models.JobMessage) error

// Queue provides message queue operations
type Queue struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	queueName string
}

// New creates a new queue client and declares the job and dead-letter queues
func New(cfg config.QueueConfig) (*Queue, error) {
	conn, err := amqp.Dial(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	q := &Queue{conn: conn, channel: channel, queueName: cfg.Name}
	if err := q.declare(); err != nil {
		q.Close()
		return nil, err
	}
	return q, nil
}

// DeadLetterQueueName is the queue receiving jobs that failed twice
func (q *Queue) DeadLetterQueueName() string {
	return q.queueName + "_dlq"
}

func (q *Queue) declare() error {
	for _, exchange := range []string{ExchangeName, DeadLetterExchangeName} {
		err := q.channel.ExchangeDeclare(
			exchange,
			"direct",
			true,  // durable
			false, // auto-deleted
			false, // internal
			false, // no-wait
			nil,
		)
		if err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
		}
	}

	dlq := q.DeadLetterQueueName()
	if _, err := q.channel.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare DLQ: %w", err)
	}
	if err := q.channel.QueueBind(dlq, q.queueName, DeadLetterExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind DLQ: %w", err)
	}

	_, err := q.channel.QueueDeclare(
		q.queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		amqp.Table{"x-dead-letter-exchange": DeadLetterExchangeName},
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := q.channel.QueueBind(q.queueName, q.queueName, ExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}
	return nil
}

// Close closes the queue connection
func (q *Queue) Close() error {
	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

// PublishJob publishes a detection job to the queue
func (q *Queue) PublishJob(ctx context.Context, msg *models.JobMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	err = q.channel.PublishWithContext(ctx,
		ExchangeName,
		q.queueName,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    msg.JobID,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish job: %w", err)
	}

	return nil
}

// ConsumeJobs starts consuming jobs until ctx is cancelled.
// prefetch bounds how many unacknowledged jobs one worker holds.
func (q *Queue) ConsumeJobs(ctx context.Context, prefetch int, handler Handler) error {
	if prefetch < 1 {
		prefetch = 1
	}
	if err := q.channel.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := q.channel.Consume(
		q.queueName,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				handleDelivery(ctx, msg, handler)
			}
		}
	}()

	return nil
}

// handleDelivery acks on success. A failing job is requeued once and
// dead-lettered on its second failure. Undecodable messages are dead-lettered.
func handleDelivery(ctx context.Context, msg amqp.Delivery, handler Handler) {
	var job models.JobMessage
	if err := json.Unmarshal(msg.Body, &job); err != nil || job.JobID == "" {
		_ = msg.Nack(false, false)
		return
	}

	if err := handler(ctx, &job); err != nil {
		_ = msg.Nack(false, !msg.Redelivered)
		return
	}
	_ = msg.Ack(false)
}
