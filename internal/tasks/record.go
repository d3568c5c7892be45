package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/shaiso/agentflow/internal/engine"
)

var (
	identRe  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)
	columnRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	orderRe  = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)(\s+(?i:asc|desc))?$`)
)

// RecordFindTask — загрузка одной строки таблицы по первичному ключу.
//
//	model: users          # таблица (допускается schema.table)
//	id: user_id           # ключ Context с идентификатором
//	primary_key: id
//	scope: user_filter    # ключ Context с дополнительными условиями {column: value}
//	as: user
//
// Строка возвращается как map (row_to_json). Результат: {<as>: record}.
type RecordFindTask struct {
	Base
	db    Querier
	table string
}

// NewRecordFindTask создаёт RecordFindTask.
func NewRecordFindTask(name string, cfg map[string]any, deps Deps) (*RecordFindTask, error) {
	base, err := NewBase(TypeRecordFind, name, cfg, deps.Defaults)
	if err != nil {
		return nil, err
	}
	table, err := tableParam(&base, cfg)
	if err != nil {
		return nil, err
	}
	if cfg["id"] == nil {
		return nil, base.configErr("id", "id is required")
	}
	if deps.DB == nil {
		return nil, base.configErr("", "database is not configured")
	}
	return &RecordFindTask{Base: base, db: deps.DB, table: table}, nil
}

// Description возвращает таблицу.
func (t *RecordFindTask) Description() string { return "find " + t.table }

// Execute выполняет запрос.
func (t *RecordFindTask) Execute(ctx context.Context, c *engine.Context) (any, error) {
	raw, err := t.render(ctx, c)
	if err != nil {
		return nil, err
	}

	id := fromContext(c, raw["id"], "id")
	if id == nil {
		return nil, t.configErr("id", fmt.Sprintf("id value not found in context: %v", raw["id"]))
	}

	pk := GetConfigString(raw, "primary_key")
	if pk == "" {
		pk = "id"
	}
	if !columnRe.MatchString(pk) {
		return nil, t.configErr("primary_key", fmt.Sprintf("invalid column %q", pk))
	}

	conditions := map[string]any{pk: id}
	if ref, ok := raw["scope"]; ok && ref != nil {
		scope, ok := fromContext(c, ref, "").(map[string]any)
		if !ok {
			return nil, t.configErr("scope", fmt.Sprintf("scope not found in context: %v", ref))
		}
		for col, v := range scope {
			if col != pk {
				conditions[col] = v
			}
		}
	}

	where, args, err := whereClause(conditions)
	if err != nil {
		return nil, t.configErr("scope", err.Error())
	}
	sql := fmt.Sprintf("SELECT row_to_json(t) FROM %s AS t%s LIMIT 1", sanitizeTable(t.table), where)

	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	var data []byte
	if err := t.db.QueryRow(ctx, sql, args...).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, t.fail(fmt.Sprintf("Record not found: %s#%v", t.table, id), err)
		}
		return nil, t.fail("Database error: "+err.Error(), err)
	}

	var record map[string]any
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, t.fail("Decode record: "+err.Error(), err)
	}

	return map[string]any{resultKey(raw, singular(tableBase(t.table))): record}, nil
}

// RecordScopeTask — выборка строк по условиям.
//
//	model: orders
//	scope:
//	  status: active        # литерал
//	  user_id: ":user_id"   # значение ключа Context; nil пропускает условие
//	order: created_at desc
//	limit: 10
//	as: orders
//
// Результат: {<as>: [record, ...]}.
type RecordScopeTask struct {
	Base
	db    Querier
	table string
}

// NewRecordScopeTask создаёт RecordScopeTask.
func NewRecordScopeTask(name string, cfg map[string]any, deps Deps) (*RecordScopeTask, error) {
	base, err := NewBase(TypeRecordScope, name, cfg, deps.Defaults)
	if err != nil {
		return nil, err
	}
	table, err := tableParam(&base, cfg)
	if err != nil {
		return nil, err
	}
	if order := GetConfigString(cfg, "order"); order != "" && !orderRe.MatchString(order) {
		return nil, base.configErr("order", fmt.Sprintf("invalid order %q", order))
	}
	if deps.DB == nil {
		return nil, base.configErr("", "database is not configured")
	}
	return &RecordScopeTask{Base: base, db: deps.DB, table: table}, nil
}

// Description возвращает таблицу.
func (t *RecordScopeTask) Description() string { return "scope " + t.table }

// Execute выполняет запрос.
func (t *RecordScopeTask) Execute(ctx context.Context, c *engine.Context) (any, error) {
	raw, err := t.render(ctx, c)
	if err != nil {
		return nil, err
	}

	conditions := make(map[string]any)
	for col, v := range GetConfigMap(raw, "scope") {
		if s, ok := v.(string); ok && strings.HasPrefix(s, ":") {
			v = c.Get(s)
		}
		if v != nil {
			conditions[col] = v
		}
	}

	where, args, err := whereClause(conditions)
	if err != nil {
		return nil, t.configErr("scope", err.Error())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT * FROM %s AS t%s", sanitizeTable(t.table), where)
	if order := GetConfigString(raw, "order"); order != "" {
		m := orderRe.FindStringSubmatch(order)
		if m == nil {
			return nil, t.configErr("order", fmt.Sprintf("invalid order %q", order))
		}
		fmt.Fprintf(&sb, " ORDER BY %s%s", pgx.Identifier{m[1]}.Sanitize(), strings.ToUpper(m[2]))
	}
	if limit := GetConfigInt(raw, "limit"); limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", limit)
	}
	sql := fmt.Sprintf("SELECT coalesce(json_agg(row_to_json(r)), '[]'::json) FROM (%s) AS r", sb.String())

	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	var data []byte
	if err := t.db.QueryRow(ctx, sql, args...).Scan(&data); err != nil {
		return nil, t.fail("Database error: "+err.Error(), err)
	}

	var records []any
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, t.fail("Decode records: "+err.Error(), err)
	}

	return map[string]any{resultKey(raw, tableBase(t.table)): records}, nil
}

func tableParam(b *Base, cfg map[string]any) (string, error) {
	table := GetConfigString(cfg, "model")
	if table == "" {
		table = GetConfigString(cfg, "table")
	}
	if table == "" {
		return "", b.configErr("model", "model is required")
	}
	if !identRe.MatchString(table) {
		return "", b.configErr("model", fmt.Sprintf("invalid table name %q", table))
	}
	return table, nil
}

// whereClause строит WHERE с позиционными параметрами.
// Колонки сортируются, чтобы SQL был детерминированным.
func whereClause(conditions map[string]any) (string, []any, error) {
	if len(conditions) == 0 {
		return "", nil, nil
	}

	cols := make([]string, 0, len(conditions))
	for col := range conditions {
		if !columnRe.MatchString(col) {
			return "", nil, fmt.Errorf("invalid column %q", col)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	parts := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols))
	for i, col := range cols {
		ident := "t." + pgx.Identifier{col}.Sanitize()
		switch conditions[col].(type) {
		case []any, []string:
			parts = append(parts, fmt.Sprintf("%s = ANY($%d)", ident, i+1))
		default:
			parts = append(parts, fmt.Sprintf("%s = $%d", ident, i+1))
		}
		args = append(args, conditions[col])
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

func sanitizeTable(table string) string {
	return pgx.Identifier(strings.Split(table, ".")).Sanitize()
}

func tableBase(table string) string {
	if i := strings.LastIndexByte(table, '.'); i >= 0 {
		return table[i+1:]
	}
	return table
}

func singular(s string) string {
	switch {
	case strings.HasSuffix(s, "ies"):
		return strings.TrimSuffix(s, "ies") + "y"
	case strings.HasSuffix(s, "ses"):
		return strings.TrimSuffix(s, "es")
	case strings.HasSuffix(s, "s") && !strings.HasSuffix(s, "ss"):
		return strings.TrimSuffix(s, "s")
	}
	return s
}
