package purchases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"github.com/raibee/backend/internal/logging"
	"github.com/raibee/backend/internal/repositories"
)

// Channel is the subset of *amqp.Channel used by the consumer.
type Channel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// Consumer turns "purchase recorded" events into purchase rows.
type Consumer struct {
	recorder    *Recorder
	queue       string
	concurrency int
}

// NewConsumer constructs a Consumer for queue. concurrency bounds the number of
// deliveries handled at once.
func NewConsumer(recorder *Recorder, queue string, concurrency int) *Consumer {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Consumer{recorder: recorder, queue: queue, concurrency: concurrency}
}

// Connect dials the broker, retrying a fixed number of times.
func Connect(url string, retries int, delay time.Duration) (*amqp.Connection, error) {
	var (
		conn *amqp.Connection
		err  error
	)
	for attempt := 0; attempt < max(retries, 1); attempt++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		time.Sleep(delay)
	}
	return nil, fmt.Errorf("dial amqp: %w", err)
}

// Run declares the durable queue and handles deliveries until ctx is done or
// the broker closes the delivery channel. It waits for in-flight handlers
// before returning.
func (c *Consumer) Run(ctx context.Context, ch Channel) error {
	logger := logging.FromContext(ctx).With("queue", c.queue)

	if err := ch.Qos(c.concurrency, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", c.queue, err)
	}
	deliveries, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}
	logger.Info("purchase consumer started")

	var wg sync.WaitGroup
	sem := make(chan struct{}, c.concurrency)
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			logger.Info("purchase consumer stopping")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("amqp delivery channel closed")
			}
			sem <- struct{}{}
			wg.Add(1)
			go func(d amqp.Delivery) {
				defer wg.Done()
				defer func() { <-sem }()
				c.handle(ctx, logger, d)
			}(d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, logger *slog.Logger, d amqp.Delivery) {
	logger = logger.With("message_id", d.MessageId, "delivery_tag", d.DeliveryTag)

	var req Request
	if err := json.Unmarshal(d.Body, &req); err != nil {
		logger.Warn("dropping malformed purchase event", "error", err)
		if rejErr := d.Reject(false); rejErr != nil {
			logger.Error("reject purchase event", "error", rejErr)
		}
		return
	}

	purchase, err := c.recorder.Record(ctx, req, SourceAMQP)
	switch {
	case err == nil:
		logger.Info("purchase recorded", "purchase_id", purchase.ID, "user_id", purchase.UserID, "video_id", purchase.VideoID, "provider", purchase.Provider)
		if ackErr := d.Ack(false); ackErr != nil {
			logger.Error("ack purchase event", "error", ackErr)
		}
	case errors.Is(err, ErrInvalidPurchase), errors.Is(err, repositories.ErrNotFound):
		logger.Warn("dropping unprocessable purchase event", "error", err)
		if rejErr := d.Reject(false); rejErr != nil {
			logger.Error("reject purchase event", "error", rejErr)
		}
	default:
		logger.Error("purchase store failed, requeueing", "error", err)
		if nackErr := d.Nack(false, true); nackErr != nil {
			logger.Error("nack purchase event", "error", nackErr)
		}
	}
}
