package worker

import (
	"time"

	"github.com/shaiso/fooroh/internal/domain"
)

const defaultRetryDelay = time.Second

// RetryDelay — пауза перед повтором шага (default: 1s).
func RetryDelay(policy domain.RetryPolicy) time.Duration {
	if policy.DelayMs <= 0 {
		return defaultRetryDelay
	}
	return time.Duration(policy.DelayMs) * time.Millisecond
}

// Retryable сообщает, имеет ли смысл повторять вызов после err.
// Некорректный вход не повторяется.
func Retryable(err error) bool {
	return err != nil && KindOf(err) != KindInput
}
