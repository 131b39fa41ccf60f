package pipeline

import "errors"

var (
	// ErrMissingResource — не задано хранилище, очередь или провайдер секретов.
	ErrMissingResource = errors.New("missing shared resource")

	// ErrUnknownPipeline — пайплайн с таким именем не найден.
	ErrUnknownPipeline = errors.New("unknown pipeline")

	// ErrUnknownQueue — очередь с таким именем не найдена.
	ErrUnknownQueue = errors.New("unknown queue")

	// ErrUnknownRemote — удалённый worker указан для несуществующего worker'а.
	ErrUnknownRemote = errors.New("remote worker does not match any worker")

	// ErrAlreadyStarted — набор пайплайнов уже запущен.
	ErrAlreadyStarted = errors.New("pipelines already started")
)
