// Package queue описывает очереди пайплайнов и их dead-letter хранилища.
//
// Структура:
//   - queue.go  — интерфейсы Queue/Sender и политика доставки
//   - memory.go — реализация в памяти процесса
//   - errors.go — ошибки очередей
//
// Реализация поверх RabbitMQ находится в пакете mq.
//
// Семантика receive count:
//
//	Enqueue → (count=0) → Receive (count=1) → Nack/аренда истекла
//	        → Receive (count=2) → ... → count == MaxReceiveCount и снова неудача
//	        → dead-letter
package queue
