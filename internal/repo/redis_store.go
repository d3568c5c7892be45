package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shaiso/agentflow/internal/domain"
)

const defaultRedisPrefix = "agentflow:execution:"

// RedisExecutionStore хранит Execution записи в Redis как JSON.
// Реализует worker.ExecutionStore; используется, когда PostgreSQL не настроен.
//
// Индекс записей — ZSET по времени создания.
type RedisExecutionStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// RedisOption настраивает RedisExecutionStore.
type RedisOption func(*RedisExecutionStore)

// WithTTL задаёт срок хранения записей. 0 — без срока.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisExecutionStore) {
		s.ttl = ttl
	}
}

// WithPrefix задаёт префикс ключей.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisExecutionStore) {
		s.prefix = prefix
	}
}

// NewRedisExecutionStore создаёт store поверх готового клиента.
func NewRedisExecutionStore(client redis.UniversalClient, opts ...RedisOption) *RedisExecutionStore {
	s := &RedisExecutionStore{client: client, prefix: defaultRedisPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisExecutionStore) key(id uuid.UUID) string {
	return s.prefix + id.String()
}

func (s *RedisExecutionStore) indexKey() string {
	return s.prefix + "index"
}

// CreatePending создаёт pending запись и возвращает её ID.
func (s *RedisExecutionStore) CreatePending(ctx context.Context, workflowType string, initial map[string]any, jobID string) (uuid.UUID, error) {
	e := domain.NewExecution(workflowType, initial, jobID)

	data, err := json.Marshal(e)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal execution: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(e.ID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{
		Score:  float64(e.CreatedAt.UnixNano()),
		Member: e.ID.String(),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("save execution: %w", err)
	}
	return e.ID, nil
}

// MarkRunning переводит запись в running.
func (s *RedisExecutionStore) MarkRunning(ctx context.Context, id uuid.UUID) error {
	return s.update(ctx, id, func(e *domain.Execution) error {
		if e.Status == domain.ExecutionStatusCompleted {
			return fmt.Errorf("%w: execution %s is %s", ErrInvalidState, id, e.Status)
		}
		e.MarkRunning()
		e.FinishedAt = nil
		e.Error = ""
		return nil
	})
}

// Finalize переносит в запись поля WorkflowResult.
func (s *RedisExecutionStore) Finalize(ctx context.Context, id uuid.UUID, result *domain.WorkflowResult) error {
	return s.update(ctx, id, func(e *domain.Execution) error {
		e.ApplyResult(result)
		return nil
	})
}

// Fail завершает запись ошибкой.
func (s *RedisExecutionStore) Fail(ctx context.Context, id uuid.UUID, reason string) error {
	return s.update(ctx, id, func(e *domain.Execution) error {
		e.MarkFailed(reason)
		return nil
	})
}

// Get возвращает запись по ID.
func (s *RedisExecutionStore) Get(ctx context.Context, id uuid.UUID) (*domain.Execution, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get execution: %w", err)
	}

	var e domain.Execution
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshal execution: %w", err)
	}
	return &e, nil
}

// List возвращает до limit последних записей, новые первыми.
// Записи, удалённые по TTL, убираются из индекса.
func (s *RedisExecutionStore) List(ctx context.Context, limit int) ([]domain.Execution, error) {
	if limit <= 0 {
		limit = 50
	}

	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}

	executions := make([]domain.Execution, 0, len(ids))
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		e, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			s.client.ZRem(ctx, s.indexKey(), raw)
			continue
		}
		if err != nil {
			return nil, err
		}
		executions = append(executions, *e)
	}
	return executions, nil
}

// update читает, изменяет и сохраняет запись под WATCH.
func (s *RedisExecutionStore) update(ctx context.Context, id uuid.UUID, fn func(*domain.Execution) error) error {
	key := s.key(id)

	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get execution: %w", err)
		}

		var e domain.Execution
		if err := json.Unmarshal(data, &e); err != nil {
			return fmt.Errorf("unmarshal execution: %w", err)
		}
		if err := fn(&e); err != nil {
			return err
		}

		updated, err := json.Marshal(&e)
		if err != nil {
			return fmt.Errorf("marshal execution: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, redis.KeepTTL)
			return nil
		})
		return err
	}, key)
}
