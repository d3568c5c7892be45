package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shaiso/agentflow/internal/mq"
)

const defaultConcurrency = 4

// JobObserver получает исход обработки каждого сообщения.
// Реализуется telemetry.Metrics.
type JobObserver interface {
	JobProcessed(outcome string)
}

// Worker потребляет workflow.job из очереди workflows.jobs
// и передаёт их в Job.Perform.
//
// Несколько экземпляров могут потреблять одну очередь.
// Каждый job выполняется в своей горутине, шаги одного
// workflow идут последовательно.
type Worker struct {
	conn        *mq.Connection
	job         *Job
	observer    JobObserver
	concurrency int

	consumer *mq.Consumer

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Worker.
type Config struct {
	// Conn — соединение с RabbitMQ.
	Conn *mq.Connection

	// Job — обработчик job (обязателен).
	Job *Job

	// Concurrency — сколько job выполняется одновременно (default: 4).
	Concurrency int

	// Observer — метрики (опционально).
	Observer JobObserver

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		conn:        cfg.Conn,
		job:         cfg.Job,
		observer:    cfg.Observer,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Start запускает consumer очереди workflows.jobs.
func (w *Worker) Start(ctx context.Context) error {
	if w.IsStopped() {
		return ErrWorkerStopped
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker", "concurrency", w.concurrency)

	w.consumer = mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
		Queue:       string(mq.QueueWorkflowJobs),
		Handler:     w.handleJob,
		Prefetch:    w.concurrency,
		Concurrency: w.concurrency,
		OnOutcome:   w.recordOutcome,
	})

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("job consumer error", "error", err)
		}
	}()

	w.logger.Info("worker started")
	return nil
}

// Stop останавливает Worker и ждёт текущие job.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	if w.consumer != nil {
		w.consumer.Stop()
	}
	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}

// handleJob разбирает сообщение и выполняет job.
func (w *Worker) handleJob(ctx context.Context, delivery *mq.Delivery) error {
	if delivery.Message.Type != mq.MessageTypeWorkflowJob {
		return mq.Permanent(fmt.Errorf("%w: %s", ErrUnexpectedMessage, delivery.Message.Type))
	}

	payload, err := mq.ParsePayload[mq.JobPayload](&delivery.Message)
	if err != nil {
		return mq.Permanent(err)
	}

	w.logger.Debug("received workflow job",
		"job_id", delivery.Message.ID,
		"workflow", payload.WorkflowType,
		"redelivered", delivery.Redelivered,
	)

	_, err = w.job.Perform(ctx, payload)
	return err
}

func (w *Worker) recordOutcome(outcome mq.Outcome) {
	if w.observer != nil {
		w.observer.JobProcessed(string(outcome))
	}
}
