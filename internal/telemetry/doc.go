// Package telemetry обеспечивает наблюдаемость деплойщика.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики деплоев и шагов
//
// Все бинарники используют единый формат логов и экспортируют
// метрики на /metrics.
package telemetry
