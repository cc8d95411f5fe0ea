package rabbitmq

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type dialFunc func(url string) (*amqp.Connection, error)

// Connect dials the broker up to attempts times, delay apart. The broker
// often comes up after the worker in compose deployments.
func Connect(ctx context.Context, url string, attempts int, delay time.Duration, logger *zap.Logger) (*amqp.Connection, error) {
	return connectWith(ctx, amqp.Dial, url, attempts, delay, logger)
}

func connectWith(ctx context.Context, dial dialFunc, url string, attempts int, delay time.Duration, logger *zap.Logger) (*amqp.Connection, error) {
	if attempts < 1 {
		attempts = 1
	}
	attempt := 0
	var conn *amqp.Connection

	op := func() error {
		attempt++
		c, err := dial(url)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("failed to connect to rabbitmq",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Duration("retry_in", wait),
			zap.Error(err),
		)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(attempts-1)), ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, fmt.Errorf("connect to rabbitmq after %d attempts: %w", attempt, err)
	}

	logger.Info("connected to rabbitmq", zap.Int("attempt", attempt))
	return conn, nil
}
