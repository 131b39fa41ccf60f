// Package telemetry содержит логирование и метрики fooroh.
//
// Логи пишутся через slog (text или json, LOG_FORMAT). Для worker'ов с
// собственным уровнем есть LevelLogger. Метрики регистрируются в
// default registry Prometheus и отдаются MetricsHandler на /metrics.
package telemetry
