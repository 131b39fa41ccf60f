package domain

// ExecutionStatus — статус выполнения execution.
//
// Жизненный цикл:
//
//	RUNNING → SUCCEEDED
//	        ↘ FAILED
//	        ↘ TIMED_OUT (истёк общий таймаут workflow)
//
// Финальные статусы не меняются.
type ExecutionStatus string

const (
	// ExecutionStatusRunning — execution создан и выполняет шаги.
	ExecutionStatusRunning ExecutionStatus = "RUNNING"

	// ExecutionStatusSucceeded — все шаги успешно завершены.
	ExecutionStatusSucceeded ExecutionStatus = "SUCCEEDED"

	// ExecutionStatusFailed — один из шагов завершился с ошибкой.
	ExecutionStatusFailed ExecutionStatus = "FAILED"

	// ExecutionStatusTimedOut — execution не уложился в таймаут workflow.
	ExecutionStatusTimedOut ExecutionStatus = "TIMED_OUT"
)

// IsTerminal возвращает true, если статус финальный (execution завершён).
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusSucceeded, ExecutionStatusFailed, ExecutionStatusTimedOut:
		return true
	default:
		return false
	}
}

// Reported возвращает статус для внешних наблюдателей.
// TIMED_OUT снаружи неотличим от FAILED.
func (s ExecutionStatus) Reported() ExecutionStatus {
	if s == ExecutionStatusTimedOut {
		return ExecutionStatusFailed
	}
	return s
}

// String возвращает строковое представление ExecutionStatus.
func (s ExecutionStatus) String() string {
	return string(s)
}

// ParseExecutionStatus парсит строку в ExecutionStatus.
// Второе значение false, если строка не является известным статусом.
func ParseExecutionStatus(s string) (ExecutionStatus, bool) {
	switch ExecutionStatus(s) {
	case ExecutionStatusRunning, ExecutionStatusSucceeded, ExecutionStatusFailed, ExecutionStatusTimedOut:
		return ExecutionStatus(s), true
	default:
		return "", false
	}
}

// StepStatus — статус выполнения отдельного шага внутри execution.
//
// Жизненный цикл:
//
//	RUNNING → SUCCEEDED
//	        ↘ FAILED (после исчерпания объявленных retry)
type StepStatus string

const (
	// StepStatusRunning — worker шага вызван и ещё не ответил.
	StepStatusRunning StepStatus = "RUNNING"

	// StepStatusSucceeded — worker вернул результат.
	StepStatusSucceeded StepStatus = "SUCCEEDED"

	// StepStatusFailed — worker вернул ошибку или не ответил вовремя.
	StepStatusFailed StepStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный.
func (s StepStatus) IsTerminal() bool {
	return s == StepStatusSucceeded || s == StepStatusFailed
}
