package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/shaiso/fooroh/internal/domain"
	"github.com/shaiso/fooroh/internal/engine"
)

// maxListLimit — предельное значение limit.
const maxListLimit = 500

// ListExecutions возвращает execution'ы с фильтрацией.
// GET /api/v1/executions?pipeline=...&status=...&limit=...
func (h *Handler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := engine.ListFilter{Pipeline: q.Get("pipeline")}

	if s := q.Get("status"); s != "" {
		status, ok := parseStatus(s)
		if !ok {
			badRequest(w, "invalid status")
			return
		}
		filter.Status = &status
	}

	limit, ok := parseLimit(q.Get("limit"))
	if !ok {
		badRequest(w, "invalid limit")
		return
	}
	filter.Limit = limit

	execs, err := h.service.Executions(r.Context(), filter)
	if writeServiceError(w, h.logger, err) {
		return
	}

	result := make([]ExecutionResponse, len(execs))
	for i, e := range execs {
		result[i] = ExecutionFromDomain(e)
	}

	writeList(w, result)
}

// GetExecution возвращает execution по ID.
// GET /api/v1/executions/{id}
func (h *Handler) GetExecution(w http.ResponseWriter, r *http.Request) {
	exec, err := h.service.Execution(r.Context(), r.PathValue("id"))
	if writeServiceError(w, h.logger, err) {
		return
	}

	writeData(w, http.StatusOK, ExecutionFromDomain(*exec))
}

// parseStatus разбирает статус без учёта регистра.
func parseStatus(s string) (domain.ExecutionStatus, bool) {
	status := domain.ExecutionStatus(strings.ToUpper(s))
	switch status {
	case domain.ExecutionStatusRunning, domain.ExecutionStatusSucceeded,
		domain.ExecutionStatusFailed, domain.ExecutionStatusTimedOut:
		return status, true
	}
	return "", false
}

// parseLimit разбирает limit. Пустое значение — значение по умолчанию.
func parseLimit(s string) (int, bool) {
	if s == "" {
		return 0, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return min(n, maxListLimit), true
}
