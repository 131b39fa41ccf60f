package engine

import "fmt"

// Selector — функция Payload -> Payload между шагами.
//
// Selector объявляет форму, которую принимает, и форму, которую
// производит; Definition.Validate проверяет цепочку форм до запуска.
type Selector struct {
	name     string
	accepts  Shape
	produces func(in Shape) Shape
	apply    func(v any) (any, error)
}

// Name возвращает имя selector'а.
func (s Selector) Name() string {
	if s.apply == nil {
		return "previous-output"
	}
	return s.name
}

// IsZero сообщает, что selector не задан (эквивалент PreviousOutput).
func (s Selector) IsZero() bool { return s.apply == nil }

// Accepts возвращает принимаемую форму.
func (s Selector) Accepts() Shape {
	if s.apply == nil {
		return ShapeAny
	}
	return s.accepts
}

// Produces возвращает форму результата для входной формы in.
func (s Selector) Produces(in Shape) Shape {
	if s.produces == nil {
		return in
	}
	return s.produces(in)
}

// Apply применяет selector к значению.
func (s Selector) Apply(v any) (any, error) {
	if s.apply == nil {
		return v, nil
	}
	return s.apply(v)
}

// PreviousOutput передаёт payload без изменений.
func PreviousOutput() Selector {
	return Selector{
		name:    "previous-output",
		accepts: ShapeAny,
		apply:   func(v any) (any, error) { return v, nil },
	}
}

// FirstElementBody извлекает body первого сообщения пачки.
func FirstElementBody() Selector {
	return Selector{
		name:     "first-element-body",
		accepts:  ShapeBatch,
		produces: func(Shape) Shape { return ShapeAny },
		apply: func(v any) (any, error) {
			list, ok := v.([]any)
			if !ok || len(list) == 0 {
				return nil, fmt.Errorf("%w: first-element-body: expected non-empty list, got %T", ErrSelector, v)
			}
			m, ok := list[0].(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: first-element-body: first element is %T", ErrSelector, list[0])
			}
			body, ok := m["body"]
			if !ok {
				return nil, fmt.Errorf("%w: first-element-body: no body", ErrSelector)
			}
			return body, nil
		},
	}
}

// Field извлекает поле name объекта.
func Field(name string) Selector {
	return Selector{
		name:     "field(" + name + ")",
		accepts:  ShapeObject,
		produces: func(Shape) Shape { return ShapeAny },
		apply: func(v any) (any, error) {
			m, ok := v.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: field(%s): expected object, got %T", ErrSelector, name, v)
			}
			field, ok := m[name]
			if !ok {
				return nil, fmt.Errorf("%w: field(%s): missing", ErrSelector, name)
			}
			return field, nil
		},
	}
}
