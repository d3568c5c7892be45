package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — имя обменника.
type Exchange string

// Queue — имя очереди.
type Queue string

// RoutingKey — ключ маршрутизации.
type RoutingKey string

// Exchanges.
const (
	ExchangeWorkflows Exchange = "agentflow.workflows"
	ExchangeDLQ       Exchange = "agentflow.dlq"
)

// Queues.
const (
	QueueWorkflowJobs Queue = "workflows.jobs"
	QueueDLQWorkflows Queue = "dlq.workflows"
)

// Routing keys.
const (
	RoutingKeyJob          RoutingKey = "job"
	RoutingKeyDLQWorkflows RoutingKey = "workflows"
)

// SetupTopology объявляет exchanges, очереди и привязки. Идемпотентна.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, ex := range []Exchange{ExchangeWorkflows, ExchangeDLQ} {
			if err := ch.ExchangeDeclare(string(ex), "direct", true, false, false, false, nil); err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex, err)
			}
		}

		queues := []struct {
			name Queue
			args amqp.Table
		}{
			// после второй неудачи job уходит в dlq.workflows
			{QueueWorkflowJobs, amqp.Table{
				"x-dead-letter-exchange":    string(ExchangeDLQ),
				"x-dead-letter-routing-key": string(RoutingKeyDLQWorkflows),
			}},
			{QueueDLQWorkflows, nil},
		}
		for _, q := range queues {
			if _, err := ch.QueueDeclare(string(q.name), true, false, false, false, q.args); err != nil {
				return fmt.Errorf("declare queue %s: %w", q.name, err)
			}
		}

		bindings := []struct {
			queue Queue
			key   RoutingKey
			ex    Exchange
		}{
			{QueueWorkflowJobs, RoutingKeyJob, ExchangeWorkflows},
			{QueueDLQWorkflows, RoutingKeyDLQWorkflows, ExchangeDLQ},
		}
		for _, b := range bindings {
			if err := ch.QueueBind(string(b.queue), string(b.key), string(b.ex), false, nil); err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.ex, err)
			}
		}
		return nil
	})
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  agentflow RabbitMQ topology:

    agentflow.workflows (direct)
    └── workflows.jobs [routing: job]
            Consumer: agentflow-worker
            DLQ: dlq.workflows

    agentflow.dlq (direct)
    └── dlq.workflows [routing: workflows]
            Manual processing
`
}
