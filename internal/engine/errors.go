package engine

import "errors"

// Ошибки валидации Definition.
var (
	// ErrEmptyName — у workflow нет имени.
	ErrEmptyName = errors.New("workflow has empty name")

	// ErrEmptySteps — workflow не содержит шагов.
	ErrEmptySteps = errors.New("workflow has no steps")

	// ErrEmptyStepName — шаг не имеет имени.
	ErrEmptyStepName = errors.New("step has empty name")

	// ErrDuplicateStep — несколько шагов с одинаковым именем.
	ErrDuplicateStep = errors.New("duplicate step name")

	// ErrMissingWorker — у шага нет worker'а.
	ErrMissingWorker = errors.New("step has no worker")

	// ErrShapeMismatch — selector или worker не принимает форму payload.
	ErrShapeMismatch = errors.New("payload shape mismatch")

	// ErrUnknownSelector — неизвестное имя selector'а.
	ErrUnknownSelector = errors.New("unknown selector")

	// ErrInvalidTimeout — таймаут workflow не положителен.
	ErrInvalidTimeout = errors.New("workflow timeout must be positive")
)

// Ошибки выполнения.
var (
	// ErrEngineBusy — очередь передачи execution'ов заполнена.
	ErrEngineBusy = errors.New("engine is busy")

	// ErrEngineStopped — engine остановлен.
	ErrEngineStopped = errors.New("engine is stopped")

	// ErrExecutionNotFound — execution не найден.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrExecutionFinished — execution уже в терминальном статусе и не обновляется.
	ErrExecutionFinished = errors.New("execution already finished")

	// ErrSelector — selector не применим к фактическому payload.
	ErrSelector = errors.New("selector cannot be applied")

	// ErrInvalidPayload — payload не сериализуется в JSON.
	ErrInvalidPayload = errors.New("payload is not JSON-compatible")
)

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	Step    string // имя шага, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.Step != "" {
		return "step " + e.Step + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(step, field, message string, err error) *ValidationError {
	return &ValidationError{
		Step:    step,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
