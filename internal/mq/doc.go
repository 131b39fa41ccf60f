// Package mq реализует очереди пайплайнов поверх RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, поколения, graceful shutdown)
//   - topology.go   — объявление exchanges, очередей и dead-letter очередей
//   - publisher.go  — публикация сообщений
//   - queue.go      — queue.Queue: basic.get, аренда, receive count, dead-letter
//
// Exchanges:
//   - fooroh.queues — входные очереди пайплайнов
//   - fooroh.dlq    — dead-letter очереди (dlq.<имя>), только ручной разбор
package mq
