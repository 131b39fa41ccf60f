// Package cli реализует fooroh-cli, клиент API статуса пайплайнов.
//
// CLI работает через HTTP и не импортирует внутренние пакеты сервиса.
//
// Команды:
//   - pipeline: list, start
//   - execution: list, get
//   - dlq: list
//
// Данные выводятся в stdout таблицей (text/tabwriter) или JSON (--json),
// сообщения — в stderr:
//
//	fooroh-cli execution list --status FAILED --json | jq .
//
// Фабрики команд (NewPipelineCmd и т.д.) принимают clientFn и outputFn,
// чтобы Client и Output создавались после разбора PersistentFlags.
package cli
