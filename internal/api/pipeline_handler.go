package api

import (
	"bytes"
	"encoding/json"
	"net/http"
)

// maxStartBody — предельный размер тела ручного запуска.
const maxStartBody = 1 << 20

// ListPipelines возвращает пайплайны и состояние их таймеров.
// GET /api/v1/pipelines
func (h *Handler) ListPipelines(w http.ResponseWriter, r *http.Request) {
	pipelines := h.service.Pipelines()

	result := make([]PipelineResponse, len(pipelines))
	for i, p := range pipelines {
		timer, _ := h.service.Timer(p.Name)
		result[i] = PipelineFromDomain(p, timer)
	}

	writeList(w, result)
}

// StartExecution запускает execution пайплайна вручную.
// POST /api/v1/pipelines/{name}/executions
//
// Ответ 202 возвращается сразу после передачи execution'а engine.
func (h *Handler) StartExecution(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req StartExecutionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxStartBody)).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	var input any = map[string]any{}
	if len(bytes.TrimSpace(req.Input)) > 0 {
		input = req.Input
	}

	id, err := h.service.StartExecution(r.Context(), name, input)
	if writeServiceError(w, h.logger, err) {
		return
	}

	h.logger.Info("execution started manually", "pipeline", name, "execution_id", id)
	writeData(w, http.StatusAccepted, StartExecutionResponse{ExecutionID: id, Pipeline: name})
}
