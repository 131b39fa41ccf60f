// Package engine содержит движок выполнения пайплайнов.
//
// Включает:
//   - definition.go — Definition и StepSpec, проверка цепочки форм
//   - selector.go   — selectors между шагами (first-element-body, previous-output, field)
//   - parser.go     — разбор имён selectors и форм
//   - payload.go    — формы payload и нормализация к JSON
//   - engine.go     — пул выполнения, таймауты, повторы
//   - store.go      — ExecutionStore и MemoryStore
//
// Каждый Engine привязан к одному Definition. StartExecution создаёт
// запись RUNNING и передаёт её пулу через канал; шаги выполняются
// по порядку, первая ошибка worker'а завершает execution как FAILED,
// истечение таймаута Definition — как TIMED_OUT. Финальный статус
// не меняется.
package engine
