package firehose

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shaiso/fooroh/internal/social"
)

// Параметры Jetstream по умолчанию.
const (
	DefaultJetstreamURL = "wss://jetstream2.us-east.bsky.network/subscribe"

	defaultReconnectDelay    = time.Second
	defaultMaxReconnectDelay = 30 * time.Second
	readLimit                = 1 << 20

	// cursorRewind — насколько отматывать курсор при переподключении.
	cursorRewind = 5 * time.Second
)

// Handler обрабатывает созданный пост.
type Handler func(ctx context.Context, post Post) error

// jetstreamEvent — сообщение Jetstream.
type jetstreamEvent struct {
	DID    string `json:"did"`
	TimeUS int64  `json:"time_us"`
	Kind   string `json:"kind"`
	Commit *struct {
		Operation  string          `json:"operation"`
		Collection string          `json:"collection"`
		RKey       string          `json:"rkey"`
		CID        string          `json:"cid"`
		Record     json.RawMessage `json:"record"`
	} `json:"commit"`
}

// JetstreamSource читает посты из Jetstream по websocket.
//
// Обрабатываются только события commit/create коллекции
// app.bsky.feed.post. При обрыве соединения источник переподключается с
// экспоненциальной паузой и продолжает с последнего курсора.
type JetstreamSource struct {
	url     string
	dialer  *websocket.Dialer
	handler Handler

	reconnectDelay    time.Duration
	maxReconnectDelay time.Duration

	cursor atomic.Int64

	logger *slog.Logger
}

// JetstreamConfig — конфигурация JetstreamSource.
type JetstreamConfig struct {
	// URL — адрес subscribe (default: DefaultJetstreamURL).
	URL string

	// Handler — обработчик постов.
	Handler Handler

	// ReconnectDelay — начальная пауза перед переподключением (default: 1s).
	ReconnectDelay time.Duration

	// Logger
	Logger *slog.Logger
}

// NewJetstream создаёт JetstreamSource.
func NewJetstream(cfg JetstreamConfig) *JetstreamSource {
	u := cfg.URL
	if u == "" {
		u = DefaultJetstreamURL
	}

	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = defaultReconnectDelay
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &JetstreamSource{
		url:               u,
		dialer:            websocket.DefaultDialer,
		handler:           cfg.Handler,
		reconnectDelay:    delay,
		maxReconnectDelay: max(delay, defaultMaxReconnectDelay),
		logger:            logger.With("component", "jetstream"),
	}
}

// Cursor возвращает time_us последнего обработанного события.
func (s *JetstreamSource) Cursor() int64 { return s.cursor.Load() }

// Run читает поток до отмены ctx.
func (s *JetstreamSource) Run(ctx context.Context) error {
	delay := s.reconnectDelay
	for {
		read, err := s.consume(ctx)
		if ctx.Err() != nil {
			s.logger.Info("jetstream stopped")
			return nil
		}
		if read > 0 {
			delay = s.reconnectDelay
		}
		s.logger.Warn("jetstream disconnected", "error", err, "retry_in", delay)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay = min(delay*2, s.maxReconnectDelay)
	}
}

// subscribeURL добавляет фильтр коллекции и курсор.
func (s *JetstreamSource) subscribeURL() (string, error) {
	u, err := url.Parse(s.url)
	if err != nil {
		return "", fmt.Errorf("invalid jetstream url: %w", err)
	}
	q := u.Query()
	q.Set("wantedCollections", social.CollectionPost)
	if c := s.cursor.Load(); c > 0 {
		q.Set("cursor", strconv.FormatInt(c-cursorRewind.Microseconds(), 10))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// consume держит одно соединение и возвращает число прочитанных событий.
func (s *JetstreamSource) consume(ctx context.Context) (int, error) {
	target, err := s.subscribeURL()
	if err != nil {
		return 0, err
	}

	conn, _, err := s.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return 0, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	conn.SetReadLimit(readLimit)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	s.logger.Info("jetstream connected", "url", target)

	read := 0
	for {
		var ev jetstreamEvent
		if err := conn.ReadJSON(&ev); err != nil {
			return read, err
		}
		read++

		post, ok := decodePost(ev)
		if ev.TimeUS > 0 {
			s.cursor.Store(ev.TimeUS)
		}
		if !ok {
			continue
		}
		if err := s.handler(ctx, post); err != nil {
			s.logger.Error("failed to handle post", "uri", post.URI, "error", err)
		}
	}
}

// decodePost возвращает пост из события commit/create.
func decodePost(ev jetstreamEvent) (Post, bool) {
	if ev.Kind != "commit" || ev.Commit == nil {
		return Post{}, false
	}
	if ev.Commit.Operation != "create" || ev.Commit.Collection != social.CollectionPost {
		return Post{}, false
	}

	var rec social.PostRecord
	if err := json.Unmarshal(ev.Commit.Record, &rec); err != nil {
		return Post{}, false
	}

	return Post{
		URI:       social.ATURI{Repo: ev.DID, Collection: ev.Commit.Collection, RKey: ev.Commit.RKey}.String(),
		CID:       ev.Commit.CID,
		AuthorDID: ev.DID,
		CreatedAt: rec.CreatedAt,
		Images:    rec.Images(),
	}, true
}
