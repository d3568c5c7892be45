package mq

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler обрабатывает сообщение.
// nil — ack; ошибка — повтор или DLQ, см. Decide.
type Handler func(ctx context.Context, msg *Delivery) error

// Outcome — чем закончилась обработка сообщения.
type Outcome string

// Исходы обработки.
const (
	OutcomeAcked        Outcome = "completed"
	OutcomeRequeued     Outcome = "requeued"
	OutcomeDeadLettered Outcome = "dead_lettered"
)

// permanentError — ошибка, после которой повтор бессмыслен.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent помечает ошибку как неповторяемую: сообщение сразу уйдёт в DLQ.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent проверяет, помечена ли ошибка через Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Decide выбирает исход по ошибке обработчика.
//
// Сообщение возвращается в очередь один раз: повторная доставка
// (redelivered) с ошибкой уходит в DLQ. Permanent ошибки уходят в DLQ сразу.
func Decide(err error, redelivered bool) Outcome {
	switch {
	case err == nil:
		return OutcomeAcked
	case IsPermanent(err), redelivered:
		return OutcomeDeadLettered
	default:
		return OutcomeRequeued
	}
}

// Delivery — доставленное сообщение.
type Delivery struct {
	// Message — распарсенный конверт.
	Message Message

	// Redelivered — сообщение уже доставлялось.
	Redelivered bool

	// Raw — сырое AMQP сообщение.
	Raw amqp.Delivery
}

// Consumer потребляет сообщения из очереди.
type Consumer struct {
	conn        *Connection
	logger      *slog.Logger
	queue       string
	handler     Handler
	prefetch    int
	concurrency int
	onOutcome   func(Outcome)

	cancelFunc context.CancelFunc
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	// Queue — имя очереди.
	Queue string

	// Handler — обработчик сообщений.
	Handler Handler

	// Prefetch — количество неподтверждённых сообщений на канал.
	Prefetch int

	// Concurrency — число параллельных обработчиков (default: 1).
	Concurrency int

	// OnOutcome вызывается после ack/nack (опционально, для метрик).
	OnOutcome func(Outcome)
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	concurrency := max(cfg.Concurrency, 1)
	prefetch := max(cfg.Prefetch, concurrency)
	if logger == nil {
		logger = slog.Default()
	}

	return &Consumer{
		conn:        conn,
		logger:      logger,
		queue:       cfg.Queue,
		handler:     cfg.Handler,
		prefetch:    prefetch,
		concurrency: concurrency,
		onOutcome:   cfg.OnOutcome,
	}
}

// Start блокируется до отмены ctx, переподключаясь при разрыве канала.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		deliveries, err := c.setupConsume()
		if err != nil {
			c.logger.Error("failed to setup consume", "queue", c.queue, "error", err)
		} else {
			c.logger.Info("consumer started", "queue", c.queue, "concurrency", c.concurrency)
			c.processDeliveries(ctx, deliveries)
			if err := ctx.Err(); err != nil {
				return err
			}
			c.logger.Warn("deliveries channel closed, waiting for reconnect", "queue", c.queue)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.conn.ReconnectNotify():
			c.logger.Info("reconnected, restarting consumer", "queue", c.queue)
		}
	}
}

// setupConsume настраивает QoS и начинает потребление.
func (c *Consumer) setupConsume() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, ErrNoChannel
	}
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	return deliveries, nil
}

// processDeliveries раздаёт сообщения обработчикам и ждёт их завершения.
func (c *Consumer) processDeliveries(ctx context.Context, deliveries <-chan amqp.Delivery) {
	var wg sync.WaitGroup
	for range c.concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case raw, ok := <-deliveries:
					if !ok {
						return
					}
					c.handleDelivery(ctx, raw)
				}
			}
		}()
	}
	wg.Wait()
}

// handleDelivery обрабатывает одно сообщение.
func (c *Consumer) handleDelivery(ctx context.Context, raw amqp.Delivery) {
	var msg Message
	if err := json.Unmarshal(raw.Body, &msg); err != nil {
		c.logger.Error("failed to unmarshal message", "queue", c.queue, "error", err)
		c.settle(raw, OutcomeDeadLettered)
		return
	}

	delivery := &Delivery{Message: msg, Redelivered: raw.Redelivered, Raw: raw}
	logger := c.logger.With("queue", c.queue, "message_id", msg.ID, "type", msg.Type)
	logger.Debug("received message", "redelivered", raw.Redelivered)

	err := c.handler(ctx, delivery)
	outcome := Decide(err, raw.Redelivered)
	if err != nil {
		logger.Error("handler failed", "error", err, "outcome", outcome)
	}
	c.settle(raw, outcome)
}

func (c *Consumer) settle(raw amqp.Delivery, outcome Outcome) {
	var err error
	switch outcome {
	case OutcomeAcked:
		err = raw.Ack(false)
	case OutcomeRequeued:
		err = raw.Nack(false, true)
	default:
		err = raw.Nack(false, false)
	}
	if err != nil {
		c.logger.Warn("failed to settle message", "queue", c.queue, "outcome", outcome, "error", err)
	}
	if c.onOutcome != nil {
		c.onOutcome(outcome)
	}
}

// Stop останавливает consumer.
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
}

// ParsePayload разбирает payload сообщения в T.
// Числа внутри any остаются json.Number, чтобы не терять целые.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T
	if len(msg.Payload) == 0 {
		return result, fmt.Errorf("empty payload")
	}
	dec := json.NewDecoder(bytes.NewReader(msg.Payload))
	dec.UseNumber()
	if err := dec.Decode(&result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", err)
	}
	return result, nil
}
