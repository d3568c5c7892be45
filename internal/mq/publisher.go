package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// MessageTypeWorkflowJob — отложенный запуск workflow.
const MessageTypeWorkflowJob MessageType = "workflow.job"

// Message — конверт сообщения.
type Message struct {
	// ID — идентификатор сообщения, он же job id.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload json.RawMessage `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// JobPayload — payload workflow.job.
type JobPayload struct {
	// ExecutionID — запись Execution, если хранилище настроено.
	ExecutionID *uuid.UUID `json:"execution_id,omitempty"`

	// WorkflowType — имя workflow в каталоге.
	WorkflowType string `json:"workflow_type"`

	// Context — сериализованный начальный Context.
	// Внешние ссылки закодированы строками ref://kind/id.
	Context map[string]any `json:"context"`
}

// NewMessage собирает конверт. Пустой id заменяется новым UUID.
func NewMessage(id string, msgType MessageType, payload any) (*Message, error) {
	if id == "" {
		id = uuid.NewString()
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Message{ID: id, Type: msgType, Payload: body, Timestamp: time.Now()}, nil
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, logger: logger}
}

// Publish публикует сообщение в exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(ctx, string(exchange), string(routingKey), false, false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Type:         string(msg.Type),
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishJob ставит workflow job в очередь workflows.jobs.
// jobID становится MessageId; пустой jobID генерируется.
func (p *Publisher) PublishJob(ctx context.Context, jobID string, payload JobPayload) (string, error) {
	msg, err := NewMessage(jobID, MessageTypeWorkflowJob, payload)
	if err != nil {
		return "", err
	}
	if err := p.Publish(ctx, ExchangeWorkflows, RoutingKeyJob, msg); err != nil {
		return "", err
	}
	return msg.ID, nil
}
