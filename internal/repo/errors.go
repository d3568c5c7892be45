package repo

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound — нет Execution записи или записи, на которую указывает ссылка.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists — Execution с таким ID уже создана.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrInvalidState — переход статуса Execution запрещён
	// (например, повторный запуск завершённой записи).
	ErrInvalidState = errors.New("invalid execution state")
)

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
