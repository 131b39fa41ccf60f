package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	executionsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fooroh_executions_started_total",
		Help: "Executions handed off to an engine",
	}, []string{"pipeline"})

	executionsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fooroh_executions_finished_total",
		Help: "Executions that reached a terminal status",
	}, []string{"pipeline", "status"})

	stepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fooroh_step_duration_seconds",
		Help:    "Duration of a single step including retries",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
	}, []string{"pipeline", "step"})

	stepAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fooroh_step_attempts_total",
		Help: "Worker invocations per step",
	}, []string{"pipeline", "step", "result"})

	routerDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fooroh_router_deliveries_total",
		Help: "Messages and ticks processed by routers",
	}, []string{"pipeline", "result"})

	deadLettered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fooroh_dead_lettered_total",
		Help: "Messages moved to a dead-letter queue",
	}, []string{"queue"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fooroh_http_requests_total",
		Help: "Status API requests",
	}, []string{"method", "route", "status"})
)

// ExecutionStarted учитывает запуск execution.
func ExecutionStarted(pipeline string) {
	executionsStarted.WithLabelValues(pipeline).Inc()
}

// ExecutionFinished учитывает завершение execution.
func ExecutionFinished(pipeline, status string) {
	executionsFinished.WithLabelValues(pipeline, status).Inc()
}

// StepObserved учитывает длительность шага.
func StepObserved(pipeline, step string, d time.Duration) {
	stepDuration.WithLabelValues(pipeline, step).Observe(d.Seconds())
}

// StepAttempt учитывает одну попытку вызова worker'а.
// result: "ok" или вид ошибки worker'а.
func StepAttempt(pipeline, step, result string) {
	stepAttempts.WithLabelValues(pipeline, step, result).Inc()
}

// RouterDelivery учитывает обработку сообщения или тика.
// result: "started", "nacked", "busy", "empty", "tick", "tick_failed".
func RouterDelivery(pipeline, result string) {
	routerDeliveries.WithLabelValues(pipeline, result).Inc()
}

// DeadLettered учитывает перенос сообщения в DLQ.
func DeadLettered(queue string) {
	deadLettered.WithLabelValues(queue).Inc()
}

// HTTPRequest учитывает запрос к API. route — шаблон маршрута, не путь.
func HTTPRequest(method, route string, status int) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// MetricsHandler возвращает handler для /metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
