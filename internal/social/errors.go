package social

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidURI — строка не является at:// URI записи.
	ErrInvalidURI = errors.New("invalid at-uri")

	// ErrInvalidListURI — ссылка на список не распознана.
	ErrInvalidListURI = errors.New("invalid list uri")

	// ErrNotOwner — запись принадлежит другому репозиторию.
	ErrNotOwner = errors.New("record belongs to another repository")

	// ErrUnauthorized — не удалось создать сессию.
	ErrUnauthorized = errors.New("authentication failed")

	// ErrNotFound — запись или разговор не найдены.
	ErrNotFound = errors.New("record not found")
)

// APIError — ошибка XRPC с HTTP-статусом.
type APIError struct {
	Method     string
	StatusCode int
	Code       string `json:"error"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("xrpc %s: %d %s: %s", e.Method, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("xrpc %s: %d %s", e.Method, e.StatusCode, e.Code)
}

// Temporary возвращает true для ошибок, которые имеет смысл повторить.
func (e *APIError) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// Is сопоставляет APIError с ErrNotFound и ErrUnauthorized.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == 404 || e.Code == "RecordNotFound" || e.Code == "InvalidConvo"
	case ErrUnauthorized:
		return e.StatusCode == 401 || e.Code == "AuthenticationRequired"
	}
	return false
}

func (e *APIError) expiredToken() bool {
	return e.Code == "ExpiredToken" || e.Code == "InvalidToken"
}
