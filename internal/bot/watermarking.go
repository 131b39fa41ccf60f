package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/shaiso/fooroh/internal/secrets"
	"github.com/shaiso/fooroh/internal/social"
	"github.com/shaiso/fooroh/internal/storage"
	"github.com/shaiso/fooroh/internal/worker"
)

// FetchOriginalImage сохраняет запись поста и его изображения в
// original-imgs. Выход — WatermarkJob без результатов.
func FetchOriginalImage(deps Deps) worker.Spec {
	return worker.Spec{
		Name:     NameFetchOriginalImage,
		Timeout:  mediaWorkerTimeout,
		MemoryMB: mediaWorkerMemoryMB,
		Grants: worker.Grants{
			Buckets: readWrite(BucketOriginals),
			Secret:  true,
		},
		New: func(env *worker.Env) (worker.Worker, error) {
			bucket, err := env.Bucket(BucketOriginals)
			if err != nil {
				return nil, err
			}
			return worker.Func(func(ctx context.Context, input any) (any, error) {
				ev, err := decodePostEvent(input)
				if err != nil {
					return nil, err
				}
				id, err := IDOfDID(ev.AuthorDID)
				if err != nil {
					return nil, worker.InputError(err)
				}
				client, _, err := deps.bot(ctx, env)
				if err != nil {
					return nil, err
				}

				post, err := client.GetPost(ctx, ev.URI)
				if err != nil {
					return nil, remote("get post", err)
				}
				if len(post.Images) == 0 {
					return nil, worker.InputError(fmt.Errorf("%w: %s", ErrNoImages, ev.URI))
				}

				job := WatermarkJob{
					Metadata: OriginalPostKey(post.CID, id),
					Post: PostRef{
						URI:       post.URI,
						CID:       post.CID,
						AuthorDID: ev.AuthorDID,
						Text:      post.Text,
						CreatedAt: post.CreatedAt,
					},
				}
				if err := put(ctx, bucket, job.Metadata, post.Record); err != nil {
					return nil, err
				}

				for n, img := range post.Images {
					blob, err := client.GetBlob(ctx, ev.AuthorDID, img.Image.CID())
					if err != nil {
						return nil, remote("get blob", err)
					}
					key := OriginalImageKey(post.CID, id, n, img.Image.MimeType)
					if err := put(ctx, bucket, key, blob); err != nil {
						return nil, err
					}
					job.ImagePaths = append(job.ImagePaths, key)
				}

				env.Logger.Info("original images stored", "uri", post.URI, "images", len(job.ImagePaths))
				return job, nil
			}), nil
		},
	}
}

// ApplyWatermark накладывает водяной знак автора на первые MaxImages
// изображений и сохраняет PNG в watermarked-imgs.
func ApplyWatermark(deps Deps) worker.Spec {
	return worker.Spec{
		Name:     NameApplyWatermark,
		Timeout:  mediaWorkerTimeout,
		MemoryMB: mediaWorkerMemoryMB,
		Grants: worker.Grants{
			Buckets: map[string]worker.BucketAccess{
				BucketOriginals:   worker.BucketRead,
				BucketWatermarks:  worker.BucketRead,
				BucketWatermarked: worker.BucketWrite,
			},
		},
		New: func(env *worker.Env) (worker.Worker, error) {
			originals, err := env.Bucket(BucketOriginals)
			if err != nil {
				return nil, err
			}
			marks, err := env.Bucket(BucketWatermarks)
			if err != nil {
				return nil, err
			}
			results, err := env.Bucket(BucketWatermarked)
			if err != nil {
				return nil, err
			}

			return worker.Func(func(ctx context.Context, input any) (any, error) {
				job, err := decodeJob(input)
				if err != nil {
					return nil, err
				}
				mark, err := loadMark(ctx, marks, job.Post.AuthorDID)
				if err != nil {
					return nil, err
				}

				paths := job.ImagePaths
				if len(paths) > MaxImages {
					paths = paths[:MaxImages]
				}

				job.OutImagePaths = nil
				for _, path := range paths {
					data, err := get(ctx, originals, path)
					if err != nil {
						return nil, err
					}
					src, err := DecodeImage(data)
					if err != nil {
						return nil, worker.InputError(fmt.Errorf("%s: %w", path, err))
					}
					out, err := EncodePNG(Watermark(src, mark))
					if err != nil {
						return nil, err
					}

					key := WatermarkedKey(path)
					if err := put(ctx, results, key, out); err != nil {
						return nil, err
					}
					job.OutImagePaths = append(job.OutImagePaths, key)
					env.Logger.Debug("watermarked image stored", "path", key)
				}

				env.Logger.Info("watermark applied", "uri", job.Post.URI, "images", len(job.OutImagePaths))
				return job, nil
			}), nil
		},
	}
}

// loadMark читает водяной знак автора did.
func loadMark(ctx context.Context, marks storage.Bucket, did string) (*image.NRGBA, error) {
	id, err := IDOfDID(did)
	if err != nil {
		return nil, worker.InputError(err)
	}

	var meta WatermarkMetadata
	err = getJSON(ctx, marks, WatermarkMetadataKey(id), &meta)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, worker.InputError(fmt.Errorf("%w: %s", ErrNoWatermark, did))
	}
	if err != nil {
		return nil, err
	}

	data, err := get(ctx, marks, meta.Path)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, worker.InputError(fmt.Errorf("%w: %s", ErrNoWatermark, meta.Path))
	}
	if err != nil {
		return nil, err
	}
	img, err := DecodeImage(data)
	if err != nil {
		return nil, worker.InputError(fmt.Errorf("watermark %s: %w", meta.Path, err))
	}
	return PrepareMark(img), nil
}

// PublishResult публикует изображения с водяным знаком от имени автора.
//
// Опубликованный пост запоминается в <cid>/<id>/repost.json: повторный
// вызов для того же исходного поста возвращает сохранённую ссылку.
func PublishResult(deps Deps) worker.Spec {
	return worker.Spec{
		Name:    NamePublishResult,
		Timeout: mediaWorkerTimeout,
		Grants: worker.Grants{
			Buckets: map[string]worker.BucketAccess{
				BucketUserInfo:    worker.BucketRead,
				BucketWatermarked: worker.BucketReadWrite,
			},
			Secret: true,
		},
		New: func(env *worker.Env) (worker.Worker, error) {
			users, err := env.Bucket(BucketUserInfo)
			if err != nil {
				return nil, err
			}
			results, err := env.Bucket(BucketWatermarked)
			if err != nil {
				return nil, err
			}

			return worker.Func(func(ctx context.Context, input any) (any, error) {
				job, err := decodeJob(input)
				if err != nil {
					return nil, err
				}
				if len(job.OutImagePaths) == 0 {
					return nil, worker.InputError(fmt.Errorf("%w: nothing to publish for %s", ErrNoImages, job.Post.URI))
				}
				id, err := IDOfDID(job.Post.AuthorDID)
				if err != nil {
					return nil, worker.InputError(err)
				}

				markerKey := RepostMarkerKey(job.Post.CID, id)
				var published social.StrongRef
				err = getJSON(ctx, results, markerKey, &published)
				if err == nil && published.URI != "" {
					env.Logger.Info("result already published", "uri", job.Post.URI, "repost", published.URI)
					job.Repost = &published
					return job, nil
				}
				if err != nil && !errors.Is(err, storage.ErrNotFound) {
					return nil, err
				}

				bundle, err := env.Secret(ctx)
				if err != nil {
					return nil, err
				}
				client, err := authorClient(ctx, deps, bundle, users, job.Post.AuthorDID)
				if err != nil {
					return nil, err
				}

				images := make([]social.Image, 0, len(job.OutImagePaths))
				for _, path := range job.OutImagePaths {
					data, err := get(ctx, results, path)
					if err != nil {
						return nil, err
					}
					blob, err := client.UploadBlob(ctx, data, "image/png")
					if err != nil {
						return nil, remote("upload blob", err)
					}
					img := social.Image{Image: blob}
					if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
						img.AspectRatio = &social.AspectRatio{Width: cfg.Width, Height: cfg.Height}
					}
					images = append(images, img)
				}

				ref, err := client.CreatePost(ctx, social.NewPost{Text: job.Post.Text, Images: images, CreatedAt: deps.now()})
				if err != nil {
					return nil, remote("create post", err)
				}
				if err := putJSON(ctx, results, markerKey, ref); err != nil {
					return nil, err
				}

				env.Logger.Info("result published", "uri", job.Post.URI, "repost", ref.URI)
				job.Repost = &ref
				return job, nil
			}), nil
		},
	}
}

// DeleteResult — выход delete-original-post-record.
type DeleteResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	URI     string `json:"uri"`
}

// Статусы DeleteResult.
const (
	DeleteStatusSuccess    = "success"
	DeleteStatusRolledBack = "rolled_back"
)

// DeleteOriginalPost удаляет исходный пост автора.
//
// Если исходный пост удалить не удалось, удаляется опубликованный
// результат, чтобы у автора не осталось двух копий.
func DeleteOriginalPost(deps Deps) worker.Spec {
	return worker.Spec{
		Name:    NameDeleteOriginalPost,
		Timeout: defaultWorkerTimeout,
		Grants: worker.Grants{
			Buckets: map[string]worker.BucketAccess{
				BucketOriginals: worker.BucketRead,
				BucketUserInfo:  worker.BucketRead,
			},
			Secret: true,
		},
		New: func(env *worker.Env) (worker.Worker, error) {
			originals, err := env.Bucket(BucketOriginals)
			if err != nil {
				return nil, err
			}
			users, err := env.Bucket(BucketUserInfo)
			if err != nil {
				return nil, err
			}

			return worker.Func(func(ctx context.Context, input any) (any, error) {
				job, err := decodeJob(input)
				if err != nil {
					return nil, err
				}

				uri := job.Post.URI
				if job.Metadata != "" {
					var rec social.StrongRef
					if err := getJSON(ctx, originals, job.Metadata, &rec); err == nil && rec.URI != "" {
						uri = rec.URI
					}
				}

				bundle, err := env.Secret(ctx)
				if err != nil {
					return nil, err
				}
				client, err := authorClient(ctx, deps, bundle, users, job.Post.AuthorDID)
				if err != nil {
					return nil, err
				}

				err = client.DeletePost(ctx, uri)
				if err == nil || errors.Is(err, social.ErrNotFound) {
					env.Logger.Info("original post deleted", "uri", uri)
					return DeleteResult{Status: DeleteStatusSuccess, Message: "original post deleted", URI: uri}, nil
				}
				env.Logger.Error("failed to delete original post", "uri", uri, "error", err)

				if job.Repost == nil {
					return nil, remote("delete original post", err)
				}
				if rerr := client.DeletePost(ctx, job.Repost.URI); rerr != nil && !errors.Is(rerr, social.ErrNotFound) {
					return nil, remote("delete watermarked post", errors.Join(err, rerr))
				}
				env.Logger.Warn("watermarked post deleted instead of original", "uri", job.Repost.URI)
				return DeleteResult{Status: DeleteStatusRolledBack, Message: "watermarked post deleted", URI: job.Repost.URI}, nil
			}), nil
		},
	}
}

// authorClient открывает app password автора и возвращает его клиента.
func authorClient(ctx context.Context, deps Deps, bundle secrets.Bundle, users storage.Bucket, did string) (social.Client, error) {
	id, err := IDOfDID(did)
	if err != nil {
		return nil, worker.InputError(err)
	}

	var info UserInfo
	err = getJSON(ctx, users, UserInfoKey(id), &info)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, worker.InputError(fmt.Errorf("%w: %s", ErrNotRegistered, did))
	}
	if err != nil {
		return nil, err
	}

	password, err := openPassword(bundle, info, did)
	if err != nil {
		return nil, err
	}
	return deps.Accounts.Client(ctx, did, password)
}
