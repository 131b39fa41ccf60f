package bot

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/shaiso/fooroh/internal/secrets"
	"github.com/shaiso/fooroh/internal/social"
	"github.com/shaiso/fooroh/internal/worker"
)

// Accounts кеширует клиентов социальной сети по учётным записям.
//
// Клиент переиспользуется, пока пароль учётной записи не изменился;
// после ротации секрета клиент создаётся заново.
type Accounts struct {
	dialer social.Dialer

	mu      sync.Mutex
	clients map[string]account
}

type account struct {
	fingerprint [32]byte
	client      social.Client
}

// NewAccounts создаёт кеш поверх dialer.
func NewAccounts(dialer social.Dialer) *Accounts {
	return &Accounts{dialer: dialer, clients: make(map[string]account)}
}

// Client возвращает клиента учётной записи identifier.
func (a *Accounts) Client(ctx context.Context, identifier, password string) (social.Client, error) {
	fp := sha256.Sum256([]byte(identifier + "\x00" + password))

	a.mu.Lock()
	if acc, ok := a.clients[identifier]; ok && acc.fingerprint == fp {
		a.mu.Unlock()
		return acc.client, nil
	}
	a.mu.Unlock()

	client, err := a.dialer.Dial(ctx, identifier, password)
	if err != nil {
		return nil, worker.DependencyError(fmt.Errorf("dial %s: %w", identifier, err))
	}

	a.mu.Lock()
	a.clients[identifier] = account{fingerprint: fp, client: client}
	a.mu.Unlock()
	return client, nil
}

// Bot возвращает клиента учётной записи бота из набора секретов.
func (a *Accounts) Bot(ctx context.Context, b secrets.Bundle) (social.Client, error) {
	return a.Client(ctx, b.BotUserID, b.BotAppPassword)
}
