package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shaiso/fooroh/internal/engine"
	"github.com/shaiso/fooroh/internal/pipeline"
)

// ErrorCode — машинный код ошибки в теле ответа.
type ErrorCode string

const (
	CodeBadRequest  ErrorCode = "BAD_REQUEST"
	CodeNotFound    ErrorCode = "NOT_FOUND"
	CodeUnavailable ErrorCode = "UNAVAILABLE"
	CodeInternal    ErrorCode = "INTERNAL_ERROR"
)

// Тела ответов: {"data": ...}, {"data": [...], "total": n} или {"error": {...}}.
type (
	dataBody struct {
		Data any `json:"data"`
	}
	listBody struct {
		Data  any `json:"data"`
		Total int `json:"total"`
	}
	errorBody struct {
		Error ErrorDetail `json:"error"`
	}
)

// ErrorDetail — описание ошибки.
type ErrorDetail struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// serviceErrors сопоставляет ошибки пайплайнов со статусами HTTP.
// Не найденные в таблице ошибки отдаются как 500.
var serviceErrors = []struct {
	target error
	status int
	code   ErrorCode
}{
	{pipeline.ErrUnknownPipeline, http.StatusNotFound, CodeNotFound},
	{pipeline.ErrUnknownQueue, http.StatusNotFound, CodeNotFound},
	{engine.ErrExecutionNotFound, http.StatusNotFound, CodeNotFound},
	{engine.ErrInvalidPayload, http.StatusBadRequest, CodeBadRequest},
	{engine.ErrEngineBusy, http.StatusServiceUnavailable, CodeUnavailable},
	{engine.ErrEngineStopped, http.StatusServiceUnavailable, CodeUnavailable},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, dataBody{Data: data})
}

func writeList[T any](w http.ResponseWriter, items []T) {
	writeJSON(w, http.StatusOK, listBody{Data: items, Total: len(items)})
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, errorBody{Error: ErrorDetail{Code: code, Message: message}})
}

func badRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, CodeBadRequest, message)
}

// writeServiceError пишет ответ для ошибки Service и возвращает true.
// При err == nil ничего не пишет.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) bool {
	if err == nil {
		return false
	}

	for _, m := range serviceErrors {
		if errors.Is(err, m.target) {
			writeError(w, m.status, m.code, err.Error())
			return true
		}
	}

	logger.Error("internal error", "error", err)
	writeError(w, http.StatusInternalServerError, CodeInternal, "internal server error")
	return true
}
