package bot

import (
	"context"
	"fmt"

	"github.com/shaiso/fooroh/internal/worker"
)

// IngestAndStore сохраняет изображение водяного знака из поста.
//
// Бот лайкает пост, берёт первое изображение с alt "fr", сохраняет его
// в images/<id>.<ext> и метаданные в metadatas/<id>.json. Повторная
// отправка заменяет прежний водяной знак. Выход — метаданные.
func IngestAndStore(deps Deps) worker.Spec {
	return worker.Spec{
		Name:     NameIngestAndStore,
		Timeout:  mediaWorkerTimeout,
		MemoryMB: mediaWorkerMemoryMB,
		Grants: worker.Grants{
			Buckets: readWrite(BucketWatermarks),
			Secret:  true,
		},
		New: func(env *worker.Env) (worker.Worker, error) {
			bucket, err := env.Bucket(BucketWatermarks)
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
				if _, err := client.Like(ctx, post.URI, post.CID); err != nil {
					return nil, remote("like", err)
				}

				for _, img := range post.Images {
					if img.Alt != AltSetWatermark {
						continue
					}

					blob, err := client.GetBlob(ctx, ev.AuthorDID, img.Image.CID())
					if err != nil {
						return nil, remote("get blob", err)
					}

					meta := WatermarkMetadata{
						DID:      ev.AuthorDID,
						MimeType: img.Image.MimeType,
						Size:     img.Image.Size,
						Path:     WatermarkImageKey(id, img.Image.MimeType),
					}
					if img.AspectRatio != nil {
						meta.Width, meta.Height = img.AspectRatio.Width, img.AspectRatio.Height
					}

					if err := put(ctx, bucket, meta.Path, blob); err != nil {
						return nil, err
					}
					if err := putJSON(ctx, bucket, WatermarkMetadataKey(id), meta); err != nil {
						return nil, err
					}

					env.Logger.Info("watermark image stored", "did", ev.AuthorDID, "path", meta.Path)
					return meta, nil
				}

				return nil, worker.InputError(fmt.Errorf("%w: no image with alt %q in %s", ErrNoWatermark, AltSetWatermark, ev.URI))
			}), nil
		},
	}
}

// NotifyWatermarkImage сообщает автору, что водяной знак принят.
func NotifyWatermarkImage(deps Deps) worker.Spec {
	return worker.Spec{
		Name:    NameNotifyWatermarkImage,
		Timeout: defaultWorkerTimeout,
		Grants:  worker.Grants{Secret: true},
		New: func(env *worker.Env) (worker.Worker, error) {
			return worker.Func(func(ctx context.Context, input any) (any, error) {
				did, err := decodeDID(input)
				if err != nil {
					return nil, err
				}
				client, _, err := deps.bot(ctx, env)
				if err != nil {
					return nil, err
				}
				if err := client.SendDM(ctx, did, msgWatermarkReceived); err != nil {
					return nil, remote("send dm", err)
				}
				env.Logger.Info("watermark image acknowledged", "did", did)
				return DIDInput{DID: did}, nil
			}), nil
		},
	}
}
