// Package mq — RabbitMQ транспорт для отложенных запусков workflow.
//
// Структура:
//   - connection.go — соединение с переподключением
//   - topology.go   — exchanges, очереди, привязки
//   - publisher.go  — конверт Message и публикация workflow.job
//   - consumer.go   — потребление с политикой повтора
//
// Политика повтора: job, упавший в первый раз, возвращается в очередь;
// упавший при повторной доставке уходит в dlq.workflows. Ошибки,
// обёрнутые Permanent (например, невосстановимый Context), уходят в DLQ сразу.
package mq
