package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shaiso/fooroh/internal/social"
	"github.com/shaiso/fooroh/internal/storage"
	"github.com/shaiso/fooroh/internal/worker"
)

// decode приводит вход worker'а к T через JSON.
func decode[T any](input any) (T, error) {
	var out T
	data, err := json.Marshal(input)
	if err != nil {
		return out, worker.InputError(fmt.Errorf("%w: %v", ErrInvalidInput, err))
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, worker.InputError(fmt.Errorf("%w: %v", ErrInvalidInput, err))
	}
	return out, nil
}

// DIDInput — вход {"did": ...}.
type DIDInput struct {
	DID string `json:"did"`
}

func decodeDID(input any) (string, error) {
	in, err := decode[DIDInput](input)
	if err != nil {
		return "", err
	}
	if in.DID == "" {
		return "", worker.InputError(fmt.Errorf("%w: did is required", ErrInvalidInput))
	}
	return in.DID, nil
}

// PostEvent — тело сообщений set-watermark-img и watermarking.
type PostEvent struct {
	CID         string `json:"cid"`
	URI         string `json:"uri"`
	AuthorDID   string `json:"author_did"`
	CreatedAt   string `json:"created_at"`
	IsWatermark bool   `json:"is_watermark,omitempty"`
}

func decodePostEvent(input any) (PostEvent, error) {
	ev, err := decode[PostEvent](input)
	if err != nil {
		return ev, err
	}
	if ev.URI == "" || ev.AuthorDID == "" {
		return ev, worker.InputError(fmt.Errorf("%w: uri and author_did are required", ErrInvalidInput))
	}
	return ev, nil
}

// UserInfo — файл пользователя.
type UserInfo struct {
	DID         string `json:"did,omitempty"`
	AppPassword string `json:"app_password,omitempty"`
}

// WatermarkMetadata — метаданные изображения водяного знака.
type WatermarkMetadata struct {
	DID      string `json:"did"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Path     string `json:"path"`
}

// PostRef — исходный пост в payload пайплайна watermarking.
type PostRef struct {
	URI       string `json:"uri"`
	CID       string `json:"cid"`
	AuthorDID string `json:"author_did"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at,omitempty"`
}

// WatermarkJob — payload пайплайна watermarking. Каждый шаг
// возвращает свой вход, дополненный результатом.
type WatermarkJob struct {
	// Metadata — ключ post.json в original-imgs.
	Metadata      string            `json:"metadata"`
	ImagePaths    []string          `json:"image_paths"`
	Post          PostRef           `json:"post"`
	OutImagePaths []string          `json:"out_image_paths,omitempty"`
	Repost        *social.StrongRef `json:"repost,omitempty"`
}

func decodeJob(input any) (WatermarkJob, error) {
	job, err := decode[WatermarkJob](input)
	if err != nil {
		return job, err
	}
	if job.Post.URI == "" || job.Post.AuthorDID == "" {
		return job, worker.InputError(fmt.Errorf("%w: post uri and author_did are required", ErrInvalidInput))
	}
	return job, nil
}

// Status — итог worker'а без полезного результата.
type Status struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

var statusOK = Status{Message: "OK", Status: 200}

// remote оборачивает ошибку внешней зависимости.
func remote(op string, err error) error {
	if errors.Is(err, social.ErrInvalidURI) {
		return worker.InputError(fmt.Errorf("%s: %w", op, err))
	}
	return worker.DependencyError(fmt.Errorf("%s: %w", op, err))
}

// getJSON читает JSON-объект из bucket'а. Отсутствие объекта
// возвращается как storage.ErrNotFound без обёртки.
func getJSON(ctx context.Context, b storage.Bucket, key string, out any) error {
	data, err := b.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if err != nil {
		return worker.DependencyError(fmt.Errorf("get %s/%s: %w", b.Name(), key, err))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s/%s: %w", b.Name(), key, err)
	}
	return nil
}

// putJSON записывает v в bucket.
func putJSON(ctx context.Context, b storage.Bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", b.Name(), key, err)
	}
	return put(ctx, b, key, data)
}

func put(ctx context.Context, b storage.Bucket, key string, data []byte) error {
	if err := b.Put(ctx, key, data); err != nil {
		return worker.DependencyError(fmt.Errorf("put %s/%s: %w", b.Name(), key, err))
	}
	return nil
}

func get(ctx context.Context, b storage.Bucket, key string) ([]byte, error) {
	data, err := b.Get(ctx, key)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, worker.DependencyError(fmt.Errorf("get %s/%s: %w", b.Name(), key, err))
	}
	return data, err
}

func remove(ctx context.Context, b storage.Bucket, key string) error {
	if err := b.Delete(ctx, key); err != nil {
		return worker.DependencyError(fmt.Errorf("delete %s/%s: %w", b.Name(), key, err))
	}
	return nil
}
