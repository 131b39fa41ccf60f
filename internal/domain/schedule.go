package domain

import "time"

// Trigger — состояние таймерного источника пайплайна.
//
// Trigger не имеет очереди: каждый тик считается успешным,
// dead-letter для тиков не существует.
type Trigger struct {
	// Pipeline — имя пайплайна, которому принадлежит таймер.
	Pipeline string `json:"pipeline"`

	// Schedule — выражение расписания, например "@every 2m" или "*/4 * * * *".
	Schedule string `json:"schedule"`

	// Enabled — флаг активности. Выключенный таймер не тикает.
	Enabled bool `json:"enabled"`

	// Ticks — количество срабатываний с момента старта процесса.
	Ticks int64 `json:"ticks"`

	// LastTickAt — время последнего срабатывания.
	LastTickAt *time.Time `json:"last_tick_at,omitempty"`

	// NextTickAt — время следующего срабатывания.
	NextTickAt *time.Time `json:"next_tick_at,omitempty"`

	// LastError — ошибка последнего тика (только для логов и статуса).
	LastError string `json:"last_error,omitempty"`
}

// RecordTick записывает информацию о срабатывании.
func (t *Trigger) RecordTick(at, next time.Time, err error) {
	t.Ticks++
	t.LastTickAt = &at
	t.NextTickAt = &next
	t.LastError = ""
	if err != nil {
		t.LastError = err.Error()
	}
}
