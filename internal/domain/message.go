package domain

import (
	"encoding/json"
	"time"
)

// Message — сообщение в очереди пайплайна.
//
// Payload непрозрачен для очереди. Атрибуты ReceiveCount и EnqueuedAt
// заполняет сама очередь.
type Message struct {
	// ID — идентификатор, присвоенный очередью при Enqueue.
	ID string `json:"id"`

	// Queue — имя очереди-источника.
	Queue string `json:"queue"`

	// Body — payload сообщения (обычно JSON).
	Body []byte `json:"body"`

	// ReceiveCount — сколько раз сообщение было выдано получателям.
	ReceiveCount int `json:"receive_count"`

	// EnqueuedAt — время постановки в очередь.
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// JSONBody возвращает тело как json.RawMessage, если оно валидный JSON.
// Иначе тело кодируется как JSON-строка.
func (m Message) JSONBody() json.RawMessage {
	if json.Valid(m.Body) {
		return json.RawMessage(m.Body)
	}
	quoted, _ := json.Marshal(string(m.Body))
	return quoted
}

// DeadLetterMessage — сообщение, перемещённое в dead-letter очередь
// после исчерпания MaxReceiveCount.
//
// Хранится для ручного разбора оператором, повторно не обрабатывается.
type DeadLetterMessage struct {
	Message

	// SourceQueue — очередь, из которой сообщение было перемещено.
	SourceQueue string `json:"source_queue"`

	// DeadLetteredAt — время перемещения.
	DeadLetteredAt time.Time `json:"dead_lettered_at"`

	// Reason — причина: "nack" или "lease_expired".
	Reason string `json:"reason,omitempty"`
}
