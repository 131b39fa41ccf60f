package domain

// RetryPolicy — политика повторных вызовов worker'а на уровне шага.
//
// По умолчанию шаги не повторяются (MaxAttempts = 1). Повтор объявляют
// только шаги с побочными эффектами, безопасными для повторения
// (publish-result, delete-original-post-record).
type RetryPolicy struct {
	// MaxAttempts — максимальное количество попыток (включая первую).
	MaxAttempts int `json:"max_attempts,omitempty"`

	// DelayMs — пауза перед повтором в миллисекундах.
	DelayMs int `json:"delay_ms,omitempty"`
}

// NoRetry — политика без повторов.
var NoRetry = RetryPolicy{MaxAttempts: 1}

// RetryOnce — ровно один повтор после первой неудачи.
var RetryOnce = RetryPolicy{MaxAttempts: 2, DelayMs: 1000}

// Attempts возвращает количество попыток, не меньше одной.
func (p RetryPolicy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}
