// Package tracker реализует клиентскую сторону протокола воркера
// многостадийного трекера задач.
//
// # Обзор
//
// Воркер регистрируется на трекере, получает задачи своей стадии,
// отправляет результаты и прогресс, проверяет, что сервер его ещё помнит,
// и может пометить входные данные задачи как некорректные.
//
// # Ключевые компоненты
//
// ## Transport
//
// Выполняет HTTP-запросы к трекеру. Транспортные ошибки (нет соединения,
// таймаут, DNS) повторяются в цикле по RetryPolicy; по умолчанию раз в 15s
// без ограничения числа попыток. Любой полученный ответ возвращается как есть.
//
// ## Classify
//
// Отображает HTTP-код в OutcomeKind:
//   - 200: OutcomeSuccess
//   - 400: OutcomeValidation (ErrValidation)
//   - 403: OutcomeZeroJob (ErrZeroJob)
//   - 404: OutcomeWorkerTimedOut (ErrWorkerTimedOut)
//   - остальные: OutcomeServer (ErrServer)
//
// ## Payload
//
// Строка передаётся как есть, map и slice сериализуются в JSON с префиксом
// JSONPrefix ("<!json!>").
//
// ## Session
//
// Жизненный цикл воркера:
//
//	Unregistered → Registered → JobAssigned → Registered → ... → Disconnected
//
//	sess, err := tracker.Connect(ctx, tracker.Config{
//	    URL:      "http://tracker:8080",
//	    Stage:    "Mapping",
//	    Nickname: "node-1",
//	})
//	if err != nil { ... }
//	defer sess.Close()
//
//	job, err := sess.NewJob(ctx)
//	if errors.Is(err, tracker.ErrZeroJob) { ... }
//	err = sess.CompleteJob(ctx, map[string]any{"result": 42})
//
// При любой классифицированной ошибке сессия делает одну best-effort попытку
// отправить прогресс "Crashed" и возвращает *StatusError.
package tracker
