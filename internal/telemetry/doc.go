// Package telemetry обеспечивает наблюдаемость воркера.
//
// Включает:
//   - logging.go: structured logging через slog
//   - metrics.go: HTTP-сервер с /metrics (Prometheus) и /healthz
//
// Логгер не устанавливается глобально: NewLogger возвращает *slog.Logger,
// который передаётся в tracker.Config и runner.Config.
package telemetry
