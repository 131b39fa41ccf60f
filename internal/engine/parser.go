package engine

import (
	"fmt"
	"strings"
)

// ParseSelector разбирает имя selector'а:
// "first-element-body", "previous-output" (или пустое), "field(<name>)".
func ParseSelector(s string) (Selector, error) {
	s = strings.TrimSpace(s)

	switch s {
	case "", "previous-output":
		return PreviousOutput(), nil
	case "first-element-body":
		return FirstElementBody(), nil
	}

	if strings.HasPrefix(s, "field(") && strings.HasSuffix(s, ")") {
		name := strings.TrimSpace(s[len("field(") : len(s)-1])
		if name == "" {
			return Selector{}, fmt.Errorf("%w: %q: empty field name", ErrUnknownSelector, s)
		}
		return Field(name), nil
	}

	return Selector{}, fmt.Errorf("%w: %q", ErrUnknownSelector, s)
}
