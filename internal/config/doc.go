// Package config загружает конфигурацию воркера.
//
// Порядок применения (каждый следующий источник перекрывает предыдущий):
//   - значения по умолчанию (Default)
//   - YAML-файл (--config)
//   - .env и переменные окружения (TRACKER_URL, WORKER_STAGE, RETRY_DELAY, ...)
//   - явно заданные флаги CLI
//
// Пример файла:
//
//	tracker:
//	  url: http://tracker:8080
//	  stage: Mapping
//	  nickname: node-1
//	retry:
//	  delay: 15s
//	  backoff: exponential
//	runner:
//	  handler: http
//	  forward_url: http://localhost:9000/process
package config
