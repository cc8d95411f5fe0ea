package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/ItsKevinRafaell/cctv-ai-worker/internal/domain/entity"
	"github.com/ItsKevinRafaell/cctv-ai-worker/internal/domain/port"
	"github.com/ItsKevinRafaell/cctv-ai-worker/internal/infra/metrics"
)

const maxRequeueDelay = 60 * time.Second

// MessageHandler analyzes one task body. deliveryID correlates logs and
// spans for the delivery.
type MessageHandler func(ctx context.Context, deliveryID string, body []byte) entity.Outcome

type Consumer struct {
	channel   *amqp.Channel
	queue     string
	baseDelay time.Duration
	handler   MessageHandler
	dlq       port.DLQPublisher
	logger    *zap.Logger
	ready     atomic.Bool
}

type ConsumerConfig struct {
	Queue       string
	Exchange    string
	BaseDelayMs int
}

// NewConsumer declares the durable task queue, binds it to Exchange when one
// is set, and limits prefetch to a single unacknowledged delivery. dlq may
// be nil, in which case malformed tasks are requeued like any failure.
func NewConsumer(conn *amqp.Connection, cfg ConsumerConfig, handler MessageHandler, dlq port.DLQPublisher, logger *zap.Logger) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare queue %s: %w", cfg.Queue, err)
	}

	if cfg.Exchange != "" {
		if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
			ch.Close()
			return nil, fmt.Errorf("declare exchange: %w", err)
		}
		if err := ch.QueueBind(cfg.Queue, cfg.Queue, cfg.Exchange, false, nil); err != nil {
			ch.Close()
			return nil, fmt.Errorf("bind queue %s: %w", cfg.Queue, err)
		}
	}

	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	return &Consumer{
		channel:   ch,
		queue:     cfg.Queue,
		baseDelay: time.Duration(cfg.BaseDelayMs) * time.Millisecond,
		handler:   handler,
		dlq:       dlq,
		logger:    logger.With(zap.String("component", "consumer")),
	}, nil
}

// Ready reports whether Start is pulling deliveries.
func (c *Consumer) Ready() bool { return c.ready.Load() }

// Start processes deliveries one at a time until ctx is cancelled. A task
// already running when ctx is cancelled is finished before Start returns.
func (c *Consumer) Start(ctx context.Context) error {
	deliveries, err := c.channel.ConsumeWithContext(
		ctx,
		c.queue,
		"",
		false, // autoAck=false
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	c.ready.Store(true)
	defer c.ready.Store(false)
	c.logger.Info("waiting for tasks", zap.String("queue", c.queue))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("context cancelled, consumer stopping")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("delivery channel closed")
			}
			c.processDelivery(ctx, d)
		}
	}
}

type ackAction int

const (
	actionAck ackAction = iota
	actionRequeue
	actionDeadLetter
)

func resolveAction(o entity.Outcome, dlqEnabled bool) ackAction {
	switch o.Status {
	case entity.OutcomeSucceeded, entity.OutcomeSkipped:
		return actionAck
	}
	if o.Kind == entity.FailureMalformed && dlqEnabled {
		return actionDeadLetter
	}
	return actionRequeue
}

func (c *Consumer) processDelivery(ctx context.Context, d amqp.Delivery) {
	deliveryID := d.MessageId
	if deliveryID == "" {
		deliveryID = uuid.NewString()
	}
	log := c.logger.With(zap.String("delivery_id", deliveryID), zap.Uint64("delivery_tag", d.DeliveryTag))

	metrics.ActiveTasks.Inc()
	taskCtx := otel.GetTextMapPropagator().Extract(context.WithoutCancel(ctx), headerCarrier(d.Headers))
	outcome := safeHandle(taskCtx, c.handler, deliveryID, d.Body, log)
	metrics.ActiveTasks.Dec()
	metrics.TasksProcessedTotal.WithLabelValues(string(outcome.Status), outcomeLabel(outcome)).Inc()

	switch resolveAction(outcome, c.dlq != nil) {
	case actionAck:
		log.Info("task done", zap.String("outcome", string(outcome.Status)), zap.String("reason", outcome.Reason))
		c.ack(d, log)

	case actionDeadLetter:
		if err := c.dlq.PublishToDLQ(context.WithoutCancel(ctx), d.Body, outcome.Reason); err != nil {
			log.Error("failed to publish to DLQ, requeueing", zap.Error(err))
			c.requeue(ctx, d, outcome, log)
			return
		}
		log.Warn("malformed task sent to DLQ", zap.String("reason", outcome.Reason))
		c.ack(d, log)

	case actionRequeue:
		c.requeue(ctx, d, outcome, log)
	}
}

// headerCarrier exposes delivery headers to the otel propagator so a task
// published inside a trace is analyzed as a child of it.
type headerCarrier amqp.Table

func (h headerCarrier) Get(key string) string {
	switch v := h[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	}
	return ""
}

func (h headerCarrier) Set(key, value string) { h[key] = value }

func (h headerCarrier) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	return keys
}

// safeHandle turns a handler panic into a processing failure so the delivery
// is requeued instead of taking the worker down.
func safeHandle(ctx context.Context, handler MessageHandler, deliveryID string, body []byte, log *zap.Logger) (out entity.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("handler panicked", zap.Any("panic", r), zap.Stack("stack"))
			out = entity.Failed(entity.FailureProcessing, fmt.Errorf("handler panic: %v", r))
		}
	}()
	return handler(ctx, deliveryID, body)
}

// outcomeLabel keeps metric cardinality bounded: failures carry free-form
// error text in Reason.
func outcomeLabel(o entity.Outcome) string {
	if o.Status == entity.OutcomeFailed {
		return string(o.Kind)
	}
	return o.Reason
}

func (c *Consumer) ack(d amqp.Delivery, log *zap.Logger) {
	if err := d.Ack(false); err != nil {
		log.Error("ack failed", zap.Error(err))
	}
}

func (c *Consumer) requeue(ctx context.Context, d amqp.Delivery, outcome entity.Outcome, log *zap.Logger) {
	attempt := attemptFromDelivery(d)
	delay := backoffDelay(c.baseDelay, attempt)
	log.Warn("task failed, requeueing",
		zap.String("kind", string(outcome.Kind)),
		zap.Error(outcome.Err),
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay),
	)
	metrics.RequeueTotal.WithLabelValues(string(outcome.Kind)).Inc()

	select {
	case <-time.After(delay):
	case <-ctx.Done():
	}

	if err := d.Nack(false, true); err != nil {
		log.Error("nack failed", zap.Error(err))
	}
}

// attemptFromDelivery estimates how often this task has been tried. Plain
// requeues only set the redelivered flag; dead-letter cycles add x-death.
func attemptFromDelivery(d amqp.Delivery) int {
	attempt := 1
	if d.Redelivered {
		attempt = 2
	}
	if d.Headers == nil {
		return attempt
	}
	if xDeath, ok := d.Headers["x-death"]; ok {
		if deaths, ok := xDeath.([]interface{}); ok && len(deaths)+1 > attempt {
			attempt = len(deaths) + 1
		}
	}
	return attempt
}

func backoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base * time.Duration(math.Pow(2, float64(attempt-1)))
	if delay > maxRequeueDelay || delay < 0 {
		delay = maxRequeueDelay
	}
	return delay
}

func (c *Consumer) Close() error {
	if c.channel != nil {
		return c.channel.Close()
	}
	return nil
}
