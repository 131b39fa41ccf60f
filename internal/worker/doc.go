// Package worker — единицы работы пайплайнов fooroh.
//
// # Обзор
//
// Worker — stateless операция с сигнатурой Invoke(ctx, input) (output, error).
// Engine вызывает worker'ы шагов по порядку и передаёт результат одного шага
// на вход следующему.
//
// # Ключевые компоненты
//
// ## Spec
//
// Объявление worker'а: имя, таймаут, бюджет памяти, уровень логов,
// таблица capability (Grants) и фабрика New(env).
//
//	spec := worker.Spec{
//	    Name:     "touch-user-file",
//	    Timeout:  30 * time.Second,
//	    LogLevel: slog.LevelInfo,
//	    Grants: worker.Grants{
//	        Buckets: map[string]worker.BucketAccess{"userinfo-files": worker.BucketReadWrite},
//	    },
//	    New: newTouchUserFile,
//	}
//
// ## Bind
//
// Bind разрешает Grants по Catalog (общим ресурсам) до первого вызова:
// ссылка на несуществующий ресурс — ошибка сборки пайплайна.
// Env содержит только разрешённые ресурсы; bucket с доступом read
// отвергает Put и Delete.
//
// ## Remote
//
// Любой worker может быть заменён HTTP endpoint'ом (Bound.Replace),
// сохраняя имя, таймаут и capability.
//
// # Ошибки
//
// Все ошибки Bound.Invoke — *Error с видом:
//   - KindInput — некорректный вход, повтор не поможет
//   - KindDependency — отказ внешней зависимости
//   - KindTimeout — превышен таймаут worker'а
//   - KindInternal — остальное
//
// Стратегии backoff для повторов:
//   - "exponential": delay = initialDelay * 2^(attempt-1), capped at maxDelay
//   - "fixed": delay = initialDelay
package worker
