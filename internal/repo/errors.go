package repo

import (
	"errors"

	"github.com/shaiso/fooroh/internal/engine"
)

// Общие ошибки репозиториев.
var (
	// ErrNotFound — запись не найдена в БД. Совпадает с engine.ErrExecutionNotFound.
	ErrNotFound = engine.ErrExecutionNotFound

	// ErrFinished — execution уже завершён. Совпадает с engine.ErrExecutionFinished.
	ErrFinished = engine.ErrExecutionFinished

	// ErrInvalidState — операция невозможна в текущем состоянии.
	ErrInvalidState = errors.New("invalid state")
)
