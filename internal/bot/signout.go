package bot

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/shaiso/fooroh/internal/queue"
	"github.com/shaiso/fooroh/internal/storage"
	"github.com/shaiso/fooroh/internal/worker"
)

// DiscoveryResult — выход signout-discovery.
type DiscoveryResult struct {
	Unfollowers  int `json:"unfollowers"`
	NewFollowers int `json:"new_followers"`
}

// SignoutDiscovery — tick worker пайплайна signout.
//
// Сравнивает подписки и подписчиков бота с учётом whitelist и ignore.
// Отписавшиеся отправляются в очередь signout, новые подписчики — в
// followed. Тело сообщения {"did"}; ошибки отправки только логируются.
func SignoutDiscovery(deps Deps) worker.Spec {
	return worker.Spec{
		Name:    NameSignoutDiscovery,
		Timeout: defaultWorkerTimeout,
		Grants: worker.Grants{
			Queues: map[string]worker.QueueAccess{
				QueueSignout:  worker.QueueSend,
				QueueFollowed: worker.QueueSend,
			},
			Secret: true,
		},
		New: func(env *worker.Env) (worker.Worker, error) {
			signout, err := env.Sender(QueueSignout)
			if err != nil {
				return nil, err
			}
			followed, err := env.Sender(QueueFollowed)
			if err != nil {
				return nil, err
			}

			return worker.Func(func(ctx context.Context, _ any) (any, error) {
				client, bundle, err := deps.bot(ctx, env)
				if err != nil {
					return nil, err
				}

				g := Graph{
					Whitelist: ListMembers(ctx, client, bundle.WhiteListURI, env.Logger),
					Ignores:   ListMembers(ctx, client, bundle.IgnoreListURI, env.Logger),
				}
				follows, err := client.Follows(ctx)
				if err != nil {
					return nil, remote("get follows", err)
				}
				followers, err := client.Followers(ctx)
				if err != nil {
					return nil, remote("get followers", err)
				}
				g.Follows, g.Followers = ActorSet(follows), ActorSet(followers)

				unfollowers, newFollowers := g.Discover()
				env.Logger.Info("graph compared",
					"follows", len(g.Follows),
					"followers", len(g.Followers),
					"unfollowers", len(unfollowers),
					"new_followers", len(newFollowers),
				)

				var res DiscoveryResult
				for _, did := range unfollowers {
					if enqueueDID(ctx, env, signout, did) {
						res.Unfollowers++
					}
				}
				for _, did := range newFollowers {
					if enqueueDID(ctx, env, followed, did) {
						res.NewFollowers++
					}
				}
				return res, nil
			}), nil
		},
	}
}

func enqueueDID(ctx context.Context, env *worker.Env, q queue.Sender, did string) bool {
	body, _ := json.Marshal(DIDInput{DID: did})
	if _, err := q.Enqueue(ctx, body); err != nil {
		env.Logger.Error("failed to enqueue", "queue", q.Name(), "did", did, "error", err)
		return false
	}
	env.Logger.Info("enqueued", "queue", q.Name(), "did", did)
	return true
}

// DeleteUserFiles удаляет файл пользователя.
func DeleteUserFiles(deps Deps) worker.Spec {
	return worker.Spec{
		Name:    NameDeleteUserFiles,
		Timeout: defaultWorkerTimeout,
		Grants:  worker.Grants{Buckets: readWrite(BucketUserInfo)},
		New: func(env *worker.Env) (worker.Worker, error) {
			bucket, err := env.Bucket(BucketUserInfo)
			if err != nil {
				return nil, err
			}
			return worker.Func(func(ctx context.Context, input any) (any, error) {
				did, err := decodeDID(input)
				if err != nil {
					return nil, err
				}
				id, err := IDOfDID(did)
				if err != nil {
					return nil, worker.InputError(err)
				}
				if err := remove(ctx, bucket, UserInfoKey(id)); err != nil {
					return nil, err
				}
				env.Logger.Info("user file deleted", "did", did)
				return DIDInput{DID: did}, nil
			}), nil
		},
	}
}

// DeleteWatermarks удаляет водяной знак пользователя: сначала
// изображение, затем метаданные. Отсутствие метаданных не ошибка.
func DeleteWatermarks(deps Deps) worker.Spec {
	return worker.Spec{
		Name:    NameDeleteWatermarks,
		Timeout: defaultWorkerTimeout,
		Grants:  worker.Grants{Buckets: readWrite(BucketWatermarks)},
		New: func(env *worker.Env) (worker.Worker, error) {
			bucket, err := env.Bucket(BucketWatermarks)
			if err != nil {
				return nil, err
			}
			return worker.Func(func(ctx context.Context, input any) (any, error) {
				did, err := decodeDID(input)
				if err != nil {
					return nil, err
				}
				id, err := IDOfDID(did)
				if err != nil {
					return nil, worker.InputError(err)
				}

				metaKey := WatermarkMetadataKey(id)
				var meta WatermarkMetadata
				err = getJSON(ctx, bucket, metaKey, &meta)
				if errors.Is(err, storage.ErrNotFound) {
					env.Logger.Info("no watermark registered", "did", did)
					return DIDInput{DID: did}, nil
				}
				if err != nil {
					return nil, err
				}

				if meta.Path != "" {
					if err := remove(ctx, bucket, meta.Path); err != nil {
						return nil, err
					}
				}
				if err := remove(ctx, bucket, metaKey); err != nil {
					return nil, err
				}
				env.Logger.Info("watermark deleted", "did", did, "path", meta.Path)
				return DIDInput{DID: did}, nil
			}), nil
		},
	}
}

// SendUnfollowDM отписывает бота от пользователя и прощается с ним.
// Если бот не подписан, ничего не делает.
func SendUnfollowDM(deps Deps) worker.Spec {
	return worker.Spec{
		Name:    NameSendUnfollowDM,
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

				follows, err := client.Follows(ctx)
				if err != nil {
					return nil, remote("get follows", err)
				}
				followURI := ""
				for _, f := range follows {
					if f.DID == did {
						followURI = f.Viewer.Following
						break
					}
				}
				if followURI == "" {
					env.Logger.Info("not following, unfollow skipped", "did", did)
					return DIDInput{DID: did}, nil
				}

				if err := client.Unfollow(ctx, followURI); err != nil {
					return nil, remote("unfollow", err)
				}
				env.Logger.Info("unfollowed", "did", did)

				if err := client.SendDM(ctx, did, msgSignedOut); err != nil {
					env.Logger.Warn("failed to send goodbye dm", "did", did, "error", err)
				}
				return DIDInput{DID: did}, nil
			}), nil
		},
	}
}
