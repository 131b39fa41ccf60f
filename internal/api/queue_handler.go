package api

import "net/http"

// ListDeadLetters возвращает сообщения dead-letter очереди.
// GET /api/v1/queues/{name}/dead-letters?limit=...
func (h *Handler) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r.URL.Query().Get("limit"))
	if !ok {
		badRequest(w, "invalid limit")
		return
	}
	if limit == 0 {
		limit = 50
	}

	msgs, err := h.service.DeadLetters(r.Context(), r.PathValue("name"), limit)
	if writeServiceError(w, h.logger, err) {
		return
	}

	result := make([]DeadLetterResponse, len(msgs))
	for i, m := range msgs {
		result[i] = DeadLetterFromDomain(m)
	}

	writeList(w, result)
}
