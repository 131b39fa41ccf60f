// Package storage — объектные хранилища (buckets) пайплайнов.
//
// Реализации:
//   - MemoryBucket — в памяти процесса (тесты, STORAGE_BACKEND=memory)
//   - S3Bucket     — Amazon S3 через aws-sdk-go-v2
package storage

import (
	"context"
	"errors"
)

// ErrNotFound — объект с таким ключом отсутствует.
var ErrNotFound = errors.New("object not found")

// Bucket — узкий интерфейс объектного хранилища: get/put/delete по ключу.
type Bucket interface {
	// Name возвращает логическое имя bucket'а.
	Name() string

	// Get возвращает содержимое объекта или ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put записывает объект целиком, перезаписывая существующий.
	Put(ctx context.Context, key string, body []byte) error

	// Delete удаляет объект. Удаление отсутствующего объекта не ошибка.
	Delete(ctx context.Context, key string) error

	// Exists проверяет наличие объекта.
	Exists(ctx context.Context, key string) (bool, error)

	// List возвращает ключи с указанным префиксом в лексикографическом порядке.
	List(ctx context.Context, prefix string) ([]string, error)
}
