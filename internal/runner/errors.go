package runner

import "errors"

// Ошибки runner'а.
var (
	// ErrInvalidInput: обработчик считает входные данные задачи некорректными.
	// Runner помечает такую задачу через FlagInvalidData.
	ErrInvalidInput = errors.New("invalid job input")

	// ErrUnknownHandler: обработчик с таким именем не зарегистрирован.
	ErrUnknownHandler = errors.New("unknown handler")

	// ErrJobFailed: обработчик завершился ошибкой.
	ErrJobFailed = errors.New("job failed")

	// ErrHTTPRequest: запрос HTTP-обработчика завершился ошибкой.
	ErrHTTPRequest = errors.New("http request failed")
)
