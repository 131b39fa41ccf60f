package engine

import (
	"encoding/json"
	"fmt"
)

// Shape — форма payload, объявленная шагом или selector'ом.
type Shape string

const (
	// ShapeAny — любая форма (проверяется только во время выполнения).
	ShapeAny Shape = "any"

	// ShapeObject — JSON объект.
	ShapeObject Shape = "object"

	// ShapeList — JSON массив.
	ShapeList Shape = "list"

	// ShapeString — JSON строка.
	ShapeString Shape = "string"

	// ShapeBatch — пачка сообщений очереди: [{"body": <payload>}].
	ShapeBatch Shape = "message-batch"
)

func (s Shape) orAny() Shape {
	if s == "" {
		return ShapeAny
	}
	return s
}

// Accepts сообщает, совместима ли форма in с формой s.
func (s Shape) Accepts(in Shape) bool {
	s, in = s.orAny(), in.orAny()
	switch {
	case s == ShapeAny, in == ShapeAny, s == in:
		return true
	case s == ShapeList && in == ShapeBatch:
		return true
	}
	return false
}

// Check проверяет фактическое значение.
func (s Shape) Check(v any) error {
	switch s.orAny() {
	case ShapeAny:
		return nil
	case ShapeObject:
		if _, ok := v.(map[string]any); ok {
			return nil
		}
	case ShapeList:
		if _, ok := v.([]any); ok {
			return nil
		}
	case ShapeString:
		if _, ok := v.(string); ok {
			return nil
		}
	case ShapeBatch:
		if list, ok := v.([]any); ok {
			for _, item := range list {
				m, ok := item.(map[string]any)
				if !ok {
					return fmt.Errorf("%w: expected %s, got list of %T", ErrShapeMismatch, s, item)
				}
				if _, ok := m["body"]; !ok {
					return fmt.Errorf("%w: expected %s, element without body", ErrShapeMismatch, s)
				}
			}
			return nil
		}
	}
	return fmt.Errorf("%w: expected %s, got %T", ErrShapeMismatch, s, v)
}

// Normalize приводит значение к JSON-совместимому виду
// (map[string]any, []any, string, float64, bool, nil).
func Normalize(v any) (any, error) {
	switch v.(type) {
	case nil, string, bool, float64:
		return v, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return out, nil
}

// Batch оборачивает payload в пачку из одного сообщения,
// как это делают очередные routers.
func Batch(body any) []any {
	return []any{map[string]any{"body": body}}
}
