package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
)

var tableRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// RowQuerier — подмножество *pgxpool.Pool для загрузки одной строки.
type RowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// RecordLocator загружает строки таблиц по первичному ключу
// для восстановления ссылок ref:// в worker'е.
//
//	locator.Register("user", repo.NewRecordLocator(pool).Resolver("users"))
type RecordLocator struct {
	db         RowQuerier
	primaryKey string
}

// NewRecordLocator создаёт RecordLocator с первичным ключом id.
func NewRecordLocator(db RowQuerier) *RecordLocator {
	return &RecordLocator{db: db, primaryKey: "id"}
}

// WithPrimaryKey возвращает копию с другим столбцом первичного ключа.
func (l *RecordLocator) WithPrimaryKey(column string) *RecordLocator {
	cp := *l
	cp.primaryKey = column
	return &cp
}

// Find загружает строку table как map.
func (l *RecordLocator) Find(ctx context.Context, table, id string) (map[string]any, error) {
	if !tableRe.MatchString(table) {
		return nil, fmt.Errorf("invalid table %q", table)
	}
	if !tableRe.MatchString(l.primaryKey) {
		return nil, fmt.Errorf("invalid primary key %q", l.primaryKey)
	}

	sql := fmt.Sprintf("SELECT row_to_json(t) FROM %s AS t WHERE t.%s::text = $1 LIMIT 1",
		identifier(table).Sanitize(), pgx.Identifier{l.primaryKey}.Sanitize())

	var data []byte
	if err := l.db.QueryRow(ctx, sql, id).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s#%s: %w", table, id, ErrNotFound)
		}
		return nil, fmt.Errorf("find %s#%s: %w", table, id, err)
	}

	var record map[string]any
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode %s#%s: %w", table, id, err)
	}
	return record, nil
}

// Resolver возвращает функцию загрузки для worker.Locator.
func (l *RecordLocator) Resolver(table string) func(ctx context.Context, id string) (any, error) {
	return func(ctx context.Context, id string) (any, error) {
		return l.Find(ctx, table, id)
	}
}

func identifier(table string) pgx.Identifier {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return pgx.Identifier{schema, name}
	}
	return pgx.Identifier{table}
}
