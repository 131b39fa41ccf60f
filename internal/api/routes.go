package api

import "net/http"

// RegisterRoutes регистрирует маршруты /api/v1 в mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	wrap := Chain(Recovery(h.logger), Observe(h.logger))

	routes := []struct {
		pattern string
		handler http.HandlerFunc
	}{
		{"GET /api/v1/pipelines", h.ListPipelines},
		{"POST /api/v1/pipelines/{name}/executions", h.StartExecution},
		{"GET /api/v1/executions", h.ListExecutions},
		{"GET /api/v1/executions/{id}", h.GetExecution},
		{"GET /api/v1/queues/{name}/dead-letters", h.ListDeadLetters},
	}
	for _, rt := range routes {
		mux.Handle(rt.pattern, wrap(rt.handler))
	}
}
