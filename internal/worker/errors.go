package worker

import (
	"context"
	"errors"
	"fmt"
)

// Ошибки worker'ов.
var (
	// ErrUnknownWorker — worker с таким именем не зарегистрирован.
	ErrUnknownWorker = errors.New("unknown worker")

	// ErrDuplicateWorker — worker с таким именем уже зарегистрирован.
	ErrDuplicateWorker = errors.New("duplicate worker")

	// ErrUnknownResource — capability ссылается на несуществующий bucket или очередь.
	ErrUnknownResource = errors.New("unknown resource")

	// ErrAccessDenied — обращение к ресурсу без соответствующей capability.
	ErrAccessDenied = errors.New("access denied")

	// ErrRemoteWorker — удалённый worker ответил ошибкой.
	ErrRemoteWorker = errors.New("remote worker failed")
)

// Kind — вид ошибки worker'а.
type Kind string

const (
	// KindInput — некорректный вход; повтор не поможет.
	KindInput Kind = "input"

	// KindDependency — отказ внешней зависимости (сеть, социальная сеть, хранилище).
	KindDependency Kind = "dependency"

	// KindTimeout — вызов превысил таймаут worker'а.
	KindTimeout Kind = "timeout"

	// KindInternal — любая иная ошибка.
	KindInternal Kind = "internal"
)

// Error — типизированный сигнал об ошибке вызова worker'а.
type Error struct {
	// Worker — имя worker'а.
	Worker string

	// Kind — вид ошибки.
	Kind Kind

	// Err — исходная ошибка.
	Err error
}

func (e *Error) Error() string {
	if e.Worker == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("worker %s: %s error: %v", e.Worker, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// InputError помечает ошибку как вызванную некорректным входом.
func InputError(err error) error {
	return &Error{Kind: KindInput, Err: err}
}

// DependencyError помечает ошибку как отказ внешней зависимости.
func DependencyError(err error) error {
	return &Error{Kind: KindDependency, Err: err}
}

// Classify превращает произвольную ошибку вызова в *Error.
//
// Уже типизированная ошибка сохраняет свой Kind и получает имя worker'а.
func Classify(worker string, err error) *Error {
	if err == nil {
		return nil
	}

	var werr *Error
	if errors.As(err, &werr) {
		out := &Error{Worker: werr.Worker, Kind: werr.Kind, Err: werr.Err}
		if err != werr {
			// Обёртка над *Error: контекст внешних fmt.Errorf сохраняется.
			out.Err = err
		}
		if out.Worker == "" {
			out.Worker = worker
		}
		return out
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Worker: worker, Kind: KindTimeout, Err: err}
	}

	return &Error{Worker: worker, Kind: KindInternal, Err: err}
}

// KindOf возвращает вид ошибки или пустую строку для nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var werr *Error
	if errors.As(err, &werr) {
		return werr.Kind
	}
	return KindInternal
}
