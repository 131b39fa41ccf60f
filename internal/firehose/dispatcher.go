// Package firehose читает поток постов сети и направляет посты
// отслеживаемых авторов в очереди пайплайнов.
//
// Пост с изображением, у которого alt "fr", уходит в set-watermark-img;
// остальные посты с изображениями, если ни у одного нет alt "nofr",
// уходят в watermarking. Отслеживаются подписки бота без ignore-списка
// либо, если он задан, whitelist.
package firehose

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/fooroh/internal/bot"
	"github.com/shaiso/fooroh/internal/queue"
	"github.com/shaiso/fooroh/internal/secrets"
	"github.com/shaiso/fooroh/internal/social"
)

// Default configuration values.
const (
	defaultRefreshInterval = 10 * time.Second
)

// ErrNotReady возвращается, пока список отслеживаемых авторов не загружен.
var ErrNotReady = errors.New("tracked follows are not loaded")

// Route — куда направлен пост.
type Route string

const (
	RouteSkipped      Route = "skipped"
	RouteSetWatermark Route = "set-watermark-img"
	RouteWatermarking Route = "watermarking"
)

// Post — созданный пост из потока.
type Post struct {
	URI       string
	CID       string
	AuthorDID string
	CreatedAt string
	Images    []social.Image
}

// event — тело сообщения в очередях set-watermark-img и watermarking.
type event struct {
	CID         string `json:"cid"`
	URI         string `json:"uri"`
	AuthorDID   string `json:"author_did"`
	CreatedAt   string `json:"created_at"`
	IsWatermark bool   `json:"is_watermark,omitempty"`
}

// Dispatcher направляет посты в очереди.
type Dispatcher struct {
	accounts     *bot.Accounts
	secrets      secrets.Provider
	setWatermark queue.Sender
	watermarking queue.Sender
	interval     time.Duration

	mu      sync.RWMutex
	tracked bot.Set

	logger *slog.Logger
}

// DispatcherConfig — конфигурация Dispatcher.
type DispatcherConfig struct {
	// Accounts — клиенты бота.
	Accounts *bot.Accounts

	// Secrets — источник учётных данных бота и списков.
	Secrets secrets.Provider

	// SetWatermark — очередь set-watermark-img.
	SetWatermark queue.Sender

	// Watermarking — очередь watermarking.
	Watermarking queue.Sender

	// RefreshInterval — период обновления отслеживаемых авторов (default: 10s).
	RefreshInterval time.Duration

	// Logger
	Logger *slog.Logger
}

// NewDispatcher создаёт Dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	interval := cfg.RefreshInterval
	if interval <= 0 {
		interval = defaultRefreshInterval
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		accounts:     cfg.Accounts,
		secrets:      cfg.Secrets,
		setWatermark: cfg.SetWatermark,
		watermarking: cfg.Watermarking,
		interval:     interval,
		logger:       logger.With("component", "firehose"),
	}
}

// Tracked возвращает текущий набор отслеживаемых авторов.
func (d *Dispatcher) Tracked() bot.Set {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.tracked
}

// SetTracked заменяет набор отслеживаемых авторов.
func (d *Dispatcher) SetTracked(s bot.Set) {
	d.mu.Lock()
	d.tracked = s
	d.mu.Unlock()
}

// Refresh перечитывает подписки бота и списки ignore/whitelist.
func (d *Dispatcher) Refresh(ctx context.Context) error {
	bundle, err := d.secrets.Bundle(ctx)
	if err != nil {
		return fmt.Errorf("get secret: %w", err)
	}
	client, err := d.accounts.Bot(ctx, bundle)
	if err != nil {
		return err
	}

	follows, err := client.Follows(ctx)
	if err != nil {
		return fmt.Errorf("get follows: %w", err)
	}

	g := bot.Graph{
		Follows:   bot.ActorSet(follows),
		Ignores:   bot.ListMembers(ctx, client, bundle.IgnoreListURI, d.logger),
		Whitelist: bot.ListMembers(ctx, client, bundle.WhiteListURI, d.logger),
	}
	tracked := g.Tracked()
	d.SetTracked(tracked)

	d.logger.Debug("tracked follows refreshed", "count", len(tracked))
	return nil
}

// Run обновляет отслеживаемых авторов каждые RefreshInterval до отмены ctx.
func (d *Dispatcher) Run(ctx context.Context) error {
	if err := d.Refresh(ctx); err != nil {
		d.logger.Error("failed to refresh tracked follows", "error", err)
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := d.Refresh(ctx); err != nil && ctx.Err() == nil {
				d.logger.Error("failed to refresh tracked follows", "error", err)
			}
		}
	}
}

// HandlePost направляет пост в очередь пайплайна.
func (d *Dispatcher) HandlePost(ctx context.Context, post Post) (Route, error) {
	tracked := d.Tracked()
	if tracked == nil {
		return RouteSkipped, ErrNotReady
	}
	if !tracked.Has(post.AuthorDID) || len(post.Images) == 0 {
		return RouteSkipped, nil
	}

	route := classify(post.Images)
	if route == RouteSkipped {
		d.logger.Debug("watermarking skipped by alt", "uri", post.URI)
		return route, nil
	}

	ev := event{
		CID:         post.CID,
		URI:         post.URI,
		AuthorDID:   post.AuthorDID,
		CreatedAt:   post.CreatedAt,
		IsWatermark: route == RouteSetWatermark,
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return RouteSkipped, err
	}

	q := d.watermarking
	if route == RouteSetWatermark {
		q = d.setWatermark
	}
	if _, err := q.Enqueue(ctx, body); err != nil {
		return RouteSkipped, fmt.Errorf("enqueue %s: %w", q.Name(), err)
	}

	d.logger.Info("post dispatched", "uri", post.URI, "queue", q.Name())
	return route, nil
}

// Handle — HandlePost в форме Handler. Посты до первой загрузки
// отслеживаемых авторов пропускаются.
func (d *Dispatcher) Handle(ctx context.Context, post Post) error {
	_, err := d.HandlePost(ctx, post)
	if errors.Is(err, ErrNotReady) {
		return nil
	}
	return err
}

// classify выбирает маршрут по alt изображений.
func classify(images []social.Image) Route {
	for _, img := range images {
		if img.Alt == bot.AltSetWatermark {
			return RouteSetWatermark
		}
	}
	for _, img := range images {
		if img.Alt == bot.AltSkipWatermarking {
			return RouteSkipped
		}
	}
	return RouteWatermarking
}
