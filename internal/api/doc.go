// Package api содержит HTTP API статуса пайплайнов.
//
// Структура:
//   - handler.go            — Handler и интерфейс Service
//   - routes.go             — регистрация маршрутов
//   - middleware.go         — recovery, логи и метрики запросов
//   - response.go           — унифицированные JSON-ответы и обработка ошибок
//   - dto.go                — Data Transfer Objects
//   - pipeline_handler.go   — обработчики для /pipelines
//   - execution_handler.go  — обработчики для /executions
//   - queue_handler.go      — обработчики для /queues
//
// API только читает состояние и запускает execution'ы вручную;
// определения пайплайнов задаются кодом.
package api
