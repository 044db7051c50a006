package runner

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shaiso/distcompute/internal/tracker"
)

// Progress отправляет строку прогресса текущей задачи в трекер.
type Progress func(ctx context.Context, text string) error

// Handler обрабатывает одну задачу и возвращает результат для CompleteJob:
// строку, map или slice.
//
// Возврат ошибки, обёрнутой в ErrInvalidInput, означает, что входные данные
// (результат предыдущей стадии) некорректны.
type Handler interface {
	Handle(ctx context.Context, job *tracker.Job, progress Progress) (any, error)
}

// HandlerFunc позволяет использовать функцию как Handler.
type HandlerFunc func(ctx context.Context, job *tracker.Job, progress Progress) (any, error)

func (f HandlerFunc) Handle(ctx context.Context, job *tracker.Job, progress Progress) (any, error) {
	return f(ctx, job, progress)
}

// EchoHandler возвращает данные задачи без изменений.
type EchoHandler struct{}

func (EchoHandler) Handle(_ context.Context, job *tracker.Job, _ Progress) (any, error) {
	return job.Data, nil
}

// Registry: реестр обработчиков по имени.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry создаёт реестр с обработчиком "echo".
// "http" регистрируется вызывающим кодом, так как ему нужен адрес сервиса.
func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[string]Handler)}
	r.Register("echo", EchoHandler{})
	return r
}

// Register добавляет обработчик.
func (r *Registry) Register(name string, handler Handler) {
	r.handlers[name] = handler
}

// Get возвращает обработчик по имени.
func (r *Registry) Get(name string) (Handler, error) {
	handler, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s (available: %s)", ErrUnknownHandler, name, strings.Join(r.Names(), ", "))
	}
	return handler, nil
}

// Names возвращает имена зарегистрированных обработчиков.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
