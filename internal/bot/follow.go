package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/shaiso/fooroh/internal/worker"
)

// TouchUserFile создаёт пустой файл пользователя, если его ещё нет.
//
// Вход и выход: {"did"}. Поддерживается только did:plc.
func TouchUserFile(deps Deps) worker.Spec {
	return worker.Spec{
		Name:    NameTouchUserFile,
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
				if !strings.HasPrefix(did, "did:plc:") {
					return nil, worker.InputError(fmt.Errorf("%w: only did:plc is supported: %q", ErrInvalidDID, did))
				}
				id, err := IDOfDID(did)
				if err != nil {
					return nil, worker.InputError(err)
				}

				key := UserInfoKey(id)
				exists, err := bucket.Exists(ctx, key)
				if err != nil {
					return nil, worker.DependencyError(fmt.Errorf("check user file: %w", err))
				}
				if exists {
					env.Logger.Debug("user file already exists", "did", did)
					return DIDInput{DID: did}, nil
				}

				if err := put(ctx, bucket, key, []byte("{}")); err != nil {
					return nil, err
				}
				env.Logger.Info("user file created", "did", did, "key", key)
				return DIDInput{DID: did}, nil
			}), nil
		},
	}
}

// FollowBack подписывает бота на нового подписчика.
// Уже существующая подписка не дублируется.
func FollowBack(deps Deps) worker.Spec {
	return worker.Spec{
		Name:    NameFollowBack,
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
				if ActorSet(follows).Has(did) {
					env.Logger.Info("already following, skipped", "did", did)
					return DIDInput{DID: did}, nil
				}

				ref, err := client.Follow(ctx, did)
				if err != nil {
					return nil, remote("follow", err)
				}
				env.Logger.Info("followed back", "did", did, "uri", ref.URI)
				return DIDInput{DID: did}, nil
			}), nil
		},
	}
}

// SendDM просит нового подписчика прислать app password.
func SendDM(deps Deps) worker.Spec {
	return worker.Spec{
		Name:    NameSendDM,
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
				if err := client.SendDM(ctx, did, msgAskAppPassword); err != nil {
					return nil, remote("send dm", err)
				}
				env.Logger.Info("app password requested", "did", did)
				return DIDInput{DID: did}, nil
			}), nil
		},
	}
}
