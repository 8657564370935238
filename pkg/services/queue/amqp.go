package queue

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	"github.com/de-tools/market-atlas/pkg/models/domain"
)

const attemptHeaderKey = "x-market-atlas-attempt"

type AMQPConfig struct {
	URL         string
	Exchange    string
	Queue       string
	Prefetch    int
	Workers     int
	MaxAttempts int
}

// AMQPQueue publishes tasks as persistent JSON messages to a durable direct
// exchange and consumes them with manual acknowledgement.
type AMQPQueue struct {
	cfg  AMQPConfig
	conn *amqp.Connection

	// pubMu serializes publishing since amqp.Channel is not safe for concurrent use.
	pubMu sync.Mutex
	pub   *amqp.Channel
}

func NewAMQPQueue(cfg AMQPConfig) (*AMQPQueue, error) {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 10
	}
	if cfg.Workers <= 0 {
		cfg.Workers = cfg.Prefetch
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declare(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &AMQPQueue{cfg: cfg, conn: conn, pub: ch}, nil
}

func declare(ch *amqp.Channel, cfg AMQPConfig) error {
	err := ch.ExchangeDeclare(
		cfg.Exchange, // name
		"direct",     // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	_, err = ch.QueueDeclare(
		cfg.Queue, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(cfg.Queue, cfg.Queue, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}
	return nil
}

func (q *AMQPQueue) Publish(_ context.Context, task domain.Task) error {
	msg, err := encodeTask(task, time.Now())
	if err != nil {
		return err
	}

	q.pubMu.Lock()
	defer q.pubMu.Unlock()

	if err := q.pub.Publish(q.cfg.Exchange, q.cfg.Queue, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish task %s: %w", task.ID, err)
	}
	return nil
}

func (q *AMQPQueue) Consume(ctx context.Context, handler Handler) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open consumer channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(q.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := ch.Consume(
		q.cfg.Queue, // queue
		"",          // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(q.cfg.Workers)
	for i := 0; i < q.cfg.Workers; i++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-deliveries:
					if !ok {
						return
					}
					q.handle(ctx, handler, d)
				}
			}
		}()
	}
	wg.Wait()

	return ctx.Err()
}

func (q *AMQPQueue) handle(ctx context.Context, handler Handler, d amqp.Delivery) {
	logger := zerolog.Ctx(ctx)

	task, err := decodeTask(d.Body, d.Headers)
	if err != nil {
		logger.Error().Err(err).Msg("dropping malformed task message")
		_ = d.Nack(false, false)
		return
	}

	err = invoke(ctx, handler, task)
	if err == nil {
		_ = d.Ack(false)
		return
	}

	if !retryable(task, q.cfg.MaxAttempts) {
		logger.Error().Err(err).Str("task", task.ID).Int("attempt", task.Attempt).Msg("task failed, giving up")
		_ = d.Nack(false, false)
		return
	}

	task.Attempt++
	if perr := q.Publish(ctx, task); perr != nil {
		logger.Error().Err(perr).Str("task", task.ID).Msg("failed to republish task, requeueing")
		_ = d.Nack(false, true)
		return
	}
	logger.Warn().Err(err).Str("task", task.ID).Int("attempt", task.Attempt).Msg("task failed, republished")
	_ = d.Ack(false)
}

func (q *AMQPQueue) Close() error {
	q.pubMu.Lock()
	defer q.pubMu.Unlock()
	if q.pub != nil {
		_ = q.pub.Close()
	}
	return q.conn.Close()
}

func encodeTask(task domain.Task, now time.Time) (amqp.Publishing, error) {
	body, err := json.Marshal(task)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal task: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    task.ID,
		Timestamp:    now,
		Headers:      amqp.Table{attemptHeaderKey: int32(task.Attempt)},
		Body:         body,
	}, nil
}

// decodeTask reads a task message. The attempt header, when present, overrides the body.
func decodeTask(body []byte, headers amqp.Table) (domain.Task, error) {
	var task domain.Task
	if err := json.Unmarshal(body, &task); err != nil {
		return domain.Task{}, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	if task.ID == "" {
		return domain.Task{}, fmt.Errorf("task without id")
	}
	if n, ok := attemptFromHeaders(headers); ok {
		task.Attempt = n
	}
	return task, nil
}

func attemptFromHeaders(headers amqp.Table) (int, bool) {
	v, ok := headers[attemptHeaderKey]
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case int:
		return max(t, 0), true
	case int32:
		return max(int(t), 0), true
	case int64:
		return max(int(t), 0), true
	case string:
		n, err := strconv.Atoi(t)
		if err != nil || n < 0 {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
