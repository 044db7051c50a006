// Package cli реализует командную строку distcompute-worker.
//
// # Обзор
//
// Конфигурация собирается в порядке: значения по умолчанию, YAML-файл
// (--config), переменные окружения (включая .env), затем явно заданные
// флаги. Флаг переопределяет окружение только если он указан.
//
// # Команды
//
//   - run: регистрирует воркера и выполняет задачи через runner.Runner
//   - count: печатает число задач на стадии воркера
//   - check: проверяет, что трекер считает воркера живым
//
// # Output
//
// Данные выводятся в stdout (таблица или JSON с --json),
// логи и сообщения об ошибках в stderr:
//
//	distcompute-worker count --stage Mapping --json | jq .jobs
package cli
