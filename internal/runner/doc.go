// Package runner выполняет задачи трекера в цикле.
//
// # Обзор
//
// Runner держит одну сессию tracker.Session и последовательно:
//
//   - запрашивает задачу (NewJob)
//   - передаёт её Handler'у
//   - отправляет результат (CompleteJob) или помечает вход некорректным
//     (FlagInvalidData), если Handler вернул ErrInvalidInput
//
// Параллельной обработки нет: для нескольких задач одновременно
// запускаются несколько Runner'ов с отдельными сессиями.
//
// # Ключевые компоненты
//
// ## Handler
//
// Интерфейс обработки задачи. Встроенные реализации:
//   - EchoHandler ("echo"): возвращает данные задачи без изменений
//   - HTTPHandler ("http"): передаёт задачу во внешний сервис
//
// ## Registry
//
// Реестр обработчиков по имени, используется CLI для флага --handler.
//
//	reg := runner.NewRegistry()
//	reg.Register("http", runner.NewHTTPHandler(url, 0))
//	h, err := reg.Get(name)
package runner
