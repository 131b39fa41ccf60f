package mq

import "errors"

var (
	// ErrNoChannel — канал недоступен (идёт переподключение).
	ErrNoChannel = errors.New("no amqp channel available")

	// ErrConnectionClosed — соединение закрыто через Close.
	ErrConnectionClosed = errors.New("amqp connection closed")
)
