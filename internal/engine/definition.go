package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/fooroh/internal/domain"
)

// Invoker — worker шага. Реализуется *worker.Bound.
type Invoker interface {
	Name() string
	Invoke(ctx context.Context, input any) (any, error)
}

// StepSpec — шаг workflow.
type StepSpec struct {
	// Name — уникальное имя шага внутри workflow.
	Name string

	// Worker — вызываемый worker.
	Worker Invoker

	// Input — selector, применяемый к текущему payload перед вызовом.
	// Пустой — PreviousOutput.
	Input Selector

	// Output — selector, применяемый к результату worker'а.
	// Пустой — PreviousOutput.
	Output Selector

	// Accepts — форма входа worker'а.
	Accepts Shape

	// Returns — форма результата worker'а.
	Returns Shape

	// Retry — политика повторов; по умолчанию без повторов.
	Retry domain.RetryPolicy
}

// Definition — упорядоченный список шагов пайплайна.
type Definition struct {
	// Name — имя workflow (совпадает с именем пайплайна).
	Name string

	// Timeout — таймаут всего execution.
	Timeout time.Duration

	// Input — форма входа execution (ShapeBatch для очередных пайплайнов).
	Input Shape

	// Steps — шаги в порядке выполнения.
	Steps []StepSpec
}

// Validate проверяет определение до запуска.
//
// Проверяет:
// - Наличие имени, таймаута и шагов
// - Уникальность имён шагов
// - Наличие worker'а у каждого шага
// - Совместимость форм по цепочке input selector → worker → output selector
func (d *Definition) Validate() error {
	if d.Name == "" {
		return NewValidationError("", "name", "workflow has empty name", ErrEmptyName)
	}
	if d.Timeout <= 0 {
		return NewValidationError("", "timeout", "workflow timeout must be positive", ErrInvalidTimeout)
	}
	if len(d.Steps) == 0 {
		return NewValidationError("", "steps", "workflow has no steps", ErrEmptySteps)
	}

	names := make(map[string]bool, len(d.Steps))
	current := d.Input.orAny()

	for i := range d.Steps {
		step := &d.Steps[i]

		if step.Name == "" {
			return NewValidationError("", "name",
				fmt.Sprintf("step %d has empty name", i), ErrEmptyStepName)
		}
		if names[step.Name] {
			return NewValidationError(step.Name, "name",
				fmt.Sprintf("duplicate step name: %s", step.Name), ErrDuplicateStep)
		}
		names[step.Name] = true

		if step.Worker == nil {
			return NewValidationError(step.Name, "worker", "step has no worker", ErrMissingWorker)
		}

		if !step.Input.Accepts().Accepts(current) {
			return NewValidationError(step.Name, "input",
				fmt.Sprintf("selector %s accepts %s, previous step produces %s",
					step.Input.Name(), step.Input.Accepts(), current), ErrShapeMismatch)
		}
		current = step.Input.Produces(current)

		if !step.Accepts.orAny().Accepts(current) {
			return NewValidationError(step.Name, "accepts",
				fmt.Sprintf("worker %s accepts %s, input selector produces %s",
					step.Worker.Name(), step.Accepts.orAny(), current), ErrShapeMismatch)
		}
		current = step.Returns.orAny()

		if !step.Output.Accepts().Accepts(current) {
			return NewValidationError(step.Name, "output",
				fmt.Sprintf("selector %s accepts %s, worker returns %s",
					step.Output.Name(), step.Output.Accepts(), current), ErrShapeMismatch)
		}
		current = step.Output.Produces(current)
	}

	return nil
}

// StepNames возвращает имена шагов по порядку.
func (d *Definition) StepNames() []string {
	out := make([]string, len(d.Steps))
	for i, s := range d.Steps {
		out[i] = s.Name
	}
	return out
}
