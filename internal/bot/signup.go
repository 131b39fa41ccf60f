package bot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shaiso/fooroh/internal/secrets"
	"github.com/shaiso/fooroh/internal/worker"
)

// maxSignupConvos — сколько последних разговоров просматривает signup-executor.
const maxSignupConvos = 5

var appPasswordPattern = regexp.MustCompile(`^\s*([a-zA-Z0-9]{4}-){3}[a-zA-Z0-9]{4}\s*$`)

// IsAppPassword проверяет формат app password: xxxx-xxxx-xxxx-xxxx.
func IsAppPassword(s string) bool {
	return appPasswordPattern.MatchString(s)
}

// ConvoInput — вход {"convo_id"} пайплайна signup.
type ConvoInput struct {
	ConvoID string `json:"convo_id"`
}

// SignupResult — выход get-pending-signups.
type SignupResult struct {
	ConvoID string `json:"convo_id"`
	DID     string `json:"did"`
}

// SignupExecutor — tick worker пайплайна signup.
//
// Просматривает до 5 последних разговоров бота. Разговоры с теми, кто
// не подписан на бота, покидаются; для остальных запускается execution
// {"convo_id"}. Ошибки отдельных разговоров только логируются.
func SignupExecutor(deps Deps) worker.Spec {
	return worker.Spec{
		Name:    NameSignupExecutor,
		Timeout: defaultWorkerTimeout,
		Grants:  worker.Grants{Secret: true},
		New: func(env *worker.Env) (worker.Worker, error) {
			if deps.Signup == nil {
				return nil, fmt.Errorf("%s: signup starter is required", NameSignupExecutor)
			}
			return worker.Func(func(ctx context.Context, _ any) (any, error) {
				client, bundle, err := deps.bot(ctx, env)
				if err != nil {
					return nil, err
				}
				self, err := client.Self(ctx)
				if err != nil {
					return nil, remote("self", err)
				}

				convos, err := client.ListConvos(ctx, maxSignupConvos)
				if err != nil {
					return nil, remote("list convos", err)
				}
				followers, err := client.Followers(ctx)
				if err != nil {
					return nil, remote("get followers", err)
				}
				followerSet := ActorSet(followers)

				started, left := 0, 0
				for _, convo := range convos {
					logger := env.Logger.With("convo_id", convo.ID)

					partner, ok := convo.Partner(self.DID, bundle.BotUserID)
					if !ok {
						continue
					}
					if !followerSet.Has(partner.DID) {
						if err := client.LeaveConvo(ctx, convo.ID); err != nil {
							logger.Error("failed to leave convo", "error", err)
							continue
						}
						left++
						logger.Info("left convo with non-follower", "did", partner.DID)
						continue
					}

					executionID, err := deps.Signup.StartExecution(ctx, ConvoInput{ConvoID: convo.ID})
					if err != nil {
						logger.Error("failed to start signup", "error", err)
						continue
					}
					started++
					logger.Info("signup started", "did", partner.DID, "execution_id", executionID)
				}

				return map[string]int{"started": started, "left": left}, nil
			}), nil
		},
	}
}

// GetPendingSignups ищет app password, присланный собеседником, шифрует
// его и сохраняет файл пользователя {did, app_password}.
func GetPendingSignups(deps Deps) worker.Spec {
	return worker.Spec{
		Name:    NameGetPendingSignups,
		Timeout: defaultWorkerTimeout,
		Grants: worker.Grants{
			Buckets: readWrite(BucketUserInfo),
			Secret:  true,
		},
		New: func(env *worker.Env) (worker.Worker, error) {
			bucket, err := env.Bucket(BucketUserInfo)
			if err != nil {
				return nil, err
			}
			return worker.Func(func(ctx context.Context, input any) (any, error) {
				in, err := decode[ConvoInput](input)
				if err != nil {
					return nil, err
				}
				if in.ConvoID == "" {
					return nil, worker.InputError(fmt.Errorf("%w: convo_id is required", ErrInvalidInput))
				}

				client, bundle, err := deps.bot(ctx, env)
				if err != nil {
					return nil, err
				}
				self, err := client.Self(ctx)
				if err != nil {
					return nil, remote("self", err)
				}

				convo, err := client.GetConvo(ctx, in.ConvoID)
				if err != nil {
					return nil, remote("get convo", err)
				}
				partner, ok := convo.Partner(self.DID, bundle.BotUserID)
				if !ok {
					return nil, worker.InputError(fmt.Errorf("%w: %s", ErrNoPartner, in.ConvoID))
				}
				id, err := IDOfDID(partner.DID)
				if err != nil {
					return nil, worker.InputError(err)
				}

				messages, err := client.Messages(ctx, in.ConvoID)
				if err != nil {
					return nil, remote("get messages", err)
				}
				password := ""
				for _, m := range messages {
					if m.SenderDID == partner.DID && IsAppPassword(m.Text) {
						password = strings.TrimSpace(m.Text)
						break
					}
				}
				if password == "" {
					return nil, worker.InputError(fmt.Errorf("%w: convo %s", ErrAppPasswordNotFound, in.ConvoID))
				}

				sealed, err := seal(bundle, password)
				if err != nil {
					return nil, err
				}
				if err := putJSON(ctx, bucket, UserInfoKey(id), UserInfo{DID: partner.DID, AppPassword: sealed}); err != nil {
					return nil, err
				}

				env.Logger.Info("app password stored", "did", partner.DID, "convo_id", in.ConvoID)
				return SignupResult{ConvoID: in.ConvoID, DID: partner.DID}, nil
			}), nil
		},
	}
}

// NotifySignup сообщает о завершении регистрации и покидает разговор.
func NotifySignup(deps Deps) worker.Spec {
	return worker.Spec{
		Name:    NameNotifySignup,
		Timeout: defaultWorkerTimeout,
		Grants:  worker.Grants{Secret: true},
		New: func(env *worker.Env) (worker.Worker, error) {
			return worker.Func(func(ctx context.Context, input any) (any, error) {
				in, err := decode[ConvoInput](input)
				if err != nil {
					return nil, err
				}
				if in.ConvoID == "" {
					return nil, worker.InputError(fmt.Errorf("%w: convo_id is required", ErrInvalidInput))
				}
				client, _, err := deps.bot(ctx, env)
				if err != nil {
					return nil, err
				}

				if err := client.SendMessage(ctx, in.ConvoID, msgSignupCompleted); err != nil {
					return nil, remote("send message", err)
				}
				if err := client.LeaveConvo(ctx, in.ConvoID); err != nil {
					return nil, remote("leave convo", err)
				}
				env.Logger.Info("signup completed", "convo_id", in.ConvoID)
				return statusOK, nil
			}), nil
		},
	}
}

func seal(b secrets.Bundle, plaintext string) (string, error) {
	sealer, err := secrets.NewSealer(b.FernetKey)
	if err != nil {
		return "", err
	}
	return sealer.Seal(plaintext)
}

// openPassword расшифровывает app password из файла пользователя did.
func openPassword(b secrets.Bundle, info UserInfo, did string) (string, error) {
	if info.DID == "" || info.AppPassword == "" {
		return "", worker.InputError(fmt.Errorf("%w: %s", ErrNotRegistered, did))
	}
	if info.DID != did {
		return "", worker.InputError(fmt.Errorf("%w: %s", ErrDIDMismatch, did))
	}
	sealer, err := secrets.NewSealer(b.FernetKey)
	if err != nil {
		return "", err
	}
	password, err := sealer.Open(info.AppPassword)
	if errors.Is(err, secrets.ErrCannotOpen) {
		return "", worker.InputError(err)
	}
	return password, err
}
