package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrNoChannel — канал ещё не открыт или соединение переподключается.
var ErrNoChannel = errors.New("no amqp channel available")

const (
	reconnectMinDelay = time.Second
	reconnectMaxDelay = 30 * time.Second
	heartbeat         = 10 * time.Second
)

// Connection — AMQP соединение с автоматическим переподключением.
//
// Один канал на соединение: publisher и consumer одного процесса
// делят его, amqp091 канал безопасен для конкурентного Publish.
type Connection struct {
	url    string
	name   string
	logger *slog.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel

	closed   bool
	closedCh chan struct{}

	reconnectCh chan struct{}
}

// NewConnection подключается к RabbitMQ. name попадает в свойства
// соединения и виден в management UI.
func NewConnection(url, name string, logger *slog.Logger) (*Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Connection{
		url:         url,
		name:        name,
		logger:      logger.With("component", "amqp"),
		closedCh:    make(chan struct{}),
		reconnectCh: make(chan struct{}, 1),
	}

	if err := c.connect(); err != nil {
		return nil, err
	}
	go c.watch()

	return c, nil
}

func (c *Connection) connect() error {
	props := amqp.NewConnectionProperties()
	props.SetClientConnectionName(c.name)

	conn, err := amqp.DialConfig(c.url, amqp.Config{
		Heartbeat:  heartbeat,
		Properties: props,
	})
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = ch
	c.mu.Unlock()

	c.logger.Info("connected to RabbitMQ", "name", c.name)
	return nil
}

// watch ждёт закрытия соединения или канала и переподключается.
func (c *Connection) watch() {
	for {
		c.mu.RLock()
		conn, ch, closed := c.conn, c.channel, c.closed
		c.mu.RUnlock()
		if closed {
			return
		}

		connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
		chanClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

		var reason *amqp.Error
		select {
		case <-c.closedCh:
			return
		case reason = <-connClosed:
		case reason = <-chanClosed:
			_ = conn.Close()
		}
		if reason != nil {
			c.logger.Warn("connection lost", "error", reason)
		}

		if !c.reconnect() {
			return
		}
	}
}

// reconnect повторяет подключение с экспоненциальной задержкой.
// false — соединение закрыто вызовом Close.
func (c *Connection) reconnect() bool {
	delay := reconnectMinDelay
	for {
		select {
		case <-c.closedCh:
			return false
		case <-time.After(delay):
		}

		if err := c.connect(); err != nil {
			c.logger.Warn("reconnect failed", "error", err, "next_delay", delay)
			delay = min(delay*2, reconnectMaxDelay)
			continue
		}

		select {
		case c.reconnectCh <- struct{}{}:
		default:
		}
		return true
	}
}

// Channel возвращает текущий канал (nil во время переподключения).
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// ReconnectNotify сигналит после каждого успешного переподключения.
func (c *Connection) ReconnectNotify() <-chan struct{} {
	return c.reconnectCh
}

// WithChannel выполняет fn с текущим каналом.
func (c *Connection) WithChannel(ctx context.Context, fn func(ch *amqp.Channel) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ch := c.Channel()
	if ch == nil || ch.IsClosed() {
		return ErrNoChannel
	}
	return fn(ch)
}

// IsConnected проверяет состояние соединения.
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.conn.IsClosed()
}

// Close закрывает канал и соединение.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.closedCh)

	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}

	c.logger.Info("connection closed")
	return errors.Join(errs...)
}
