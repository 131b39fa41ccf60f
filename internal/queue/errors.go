package queue

import "errors"

var (
	// ErrNotFound — сообщение с таким ID отсутствует в очереди.
	ErrNotFound = errors.New("message not found")

	// ErrNotLeased — сообщение не находится в аренде (не было получено).
	ErrNotLeased = errors.New("message is not leased")

	// ErrLeaseExpired — аренда истекла, сообщение уже доступно другим получателям.
	ErrLeaseExpired = errors.New("message lease expired")

	// ErrClosed — очередь закрыта.
	ErrClosed = errors.New("queue closed")
)
