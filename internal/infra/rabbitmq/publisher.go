package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DLQPublisher parks deliveries that can never succeed on a side queue,
// with the reason in the x-dlq-reason header.
type DLQPublisher struct {
	channel *amqp.Channel
	queue   string
}

func NewDLQPublisher(conn *amqp.Connection, dlqQueue string) (*DLQPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publisher channel: %w", err)
	}
	if _, err := ch.QueueDeclare(dlqQueue, true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare queue %s: %w", dlqQueue, err)
	}
	return &DLQPublisher{channel: ch, queue: dlqQueue}, nil
}

func (dp *DLQPublisher) PublishToDLQ(ctx context.Context, msg []byte, reason string) error {
	return dp.channel.PublishWithContext(ctx,
		"",
		dp.queue,
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         msg,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Headers: amqp.Table{
				"x-dlq-reason": reason,
			},
		},
	)
}

func (dp *DLQPublisher) Close() error {
	return dp.channel.Close()
}
