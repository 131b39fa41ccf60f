// Package router запускает пайплайны по событиям.
//
// QueueRouter читает очередь по одному сообщению и запускает execution
// "fire-and-forget". TimerRouter вызывает tick worker по расписанию
// robfig/cron; тик не имеет DLQ и всегда считается выполненным.
package router
