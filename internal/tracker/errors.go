package tracker

import (
	"errors"
	"fmt"
)

// Ошибки клиента трекера.
var (
	// ErrValidation: некорректный запрос или входные данные (HTTP 400 либо локальная проверка).
	ErrValidation = errors.New("validation error")

	// ErrZeroJob: для стадии воркера сейчас нет задач (HTTP 403).
	ErrZeroJob = errors.New("no jobs available")

	// ErrWorkerTimedOut: сервер больше не знает токен воркера (HTTP 404).
	ErrWorkerTimedOut = errors.New("worker timed out")

	// ErrServer: непредвиденная ошибка на стороне сервера.
	ErrServer = errors.New("server error")

	// ErrJobAlreadyAssigned: повторный запрос задачи, пока текущая не завершена.
	ErrJobAlreadyAssigned = errors.New("job already assigned")

	// ErrSessionClosed: сессия уже отключена через Bye.
	ErrSessionClosed = errors.New("session closed")

	// ErrRetryExhausted: транспорт исчерпал MaxAttempts.
	ErrRetryExhausted = errors.New("retry attempts exhausted")
)

// StatusError описывает неуспешный ответ трекера.
//
// Unwrap возвращает sentinel-ошибку, соответствующую Kind, поэтому
// вызывающий код проверяет её через errors.Is(err, ErrZeroJob) и т.п.
type StatusError struct {
	Kind       OutcomeKind
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tracker: %s (status %d)", e.Body, e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	return e.Kind.sentinel()
}
