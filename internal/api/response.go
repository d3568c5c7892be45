package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shaiso/agentflow/internal/repo"
	"github.com/shaiso/agentflow/internal/scheduler"
)

// ErrorCode — код ошибки API.
type ErrorCode string

const (
	ErrCodeBadRequest    ErrorCode = "BAD_REQUEST"
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeUnavailable   ErrorCode = "UNAVAILABLE"
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

var statusCodes = map[int]ErrorCode{
	http.StatusBadRequest:         ErrCodeBadRequest,
	http.StatusNotFound:           ErrCodeNotFound,
	http.StatusServiceUnavailable: ErrCodeUnavailable,
}

// DataResponse — {"data": ...}
type DataResponse struct {
	Data any `json:"data"`
}

// ListResponse — {"data": [...], "total": N}
type ListResponse struct {
	Data  any `json:"data"`
	Total int `json:"total"`
}

// ErrorResponse — {"error": {"code", "message", "request_id"}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail — детали ошибки.
type ErrorDetail struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id,omitempty"`
}

// JSON пишет тело с заданным статусом.
func JSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Success — 200 с одним объектом.
func Success(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, DataResponse{Data: data})
}

// List — 200 со списком.
func List(w http.ResponseWriter, data any, total int) {
	JSON(w, http.StatusOK, ListResponse{Data: data, Total: total})
}

// NoContent — 204.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Fail пишет ошибку. Код выводится из статуса, request id берётся
// из заголовка, выставленного Logging.
func Fail(w http.ResponseWriter, status int, message string) {
	code, ok := statusCodes[status]
	if !ok {
		code = ErrCodeInternalError
	}
	JSON(w, status, ErrorResponse{Error: ErrorDetail{
		Code:      code,
		Message:   message,
		RequestID: w.Header().Get("X-Request-ID"),
	}})
}

// HandleError пишет ответ для ошибки хранилища или планировщика.
// Возвращает false, если err == nil и обработку нужно продолжить.
func HandleError(w http.ResponseWriter, logger *slog.Logger, err error, notFoundMsg string) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, repo.ErrNotFound), errors.Is(err, scheduler.ErrScheduleNotFound):
		Fail(w, http.StatusNotFound, notFoundMsg)
	default:
		logger.Error("internal error", "error", err)
		Fail(w, http.StatusInternalServerError, "internal server error")
	}
	return true
}
