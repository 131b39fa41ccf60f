// Package social — клиент социальной сети (Bluesky, AT Protocol).
//
// Client описывает операции, нужные worker'ам бота: граф подписок,
// посты и blob'ы, личные сообщения. XRPCClient реализует его поверх
// indigo (xrpc и lexicon-вызовы atproto, bsky, chat); чат-вызовы идут
// через прокси chat-сервиса.
//
// Dialer создаёт клиентов для произвольных учётных записей: публикация
// результата водяного знака выполняется от имени автора поста.
package social

import (
	"context"
	"time"
)

// Коллекции записей AT Protocol.
const (
	CollectionPost   = "app.bsky.feed.post"
	CollectionLike   = "app.bsky.feed.like"
	CollectionFollow = "app.bsky.graph.follow"
	CollectionList   = "app.bsky.graph.list"
)

// Client — операции социальной сети от имени одной учётной записи.
type Client interface {
	// Self возвращает учётную запись клиента.
	Self(ctx context.Context) (Actor, error)

	// Follow подписывается на did.
	Follow(ctx context.Context, did string) (StrongRef, error)

	// Unfollow удаляет запись подписки по её URI.
	Unfollow(ctx context.Context, followURI string) error

	// Follows возвращает всех, на кого подписан клиент.
	Follows(ctx context.Context) ([]Actor, error)

	// Followers возвращает всех подписчиков клиента.
	Followers(ctx context.Context) ([]Actor, error)

	// ListMembers возвращает DID участников списка (URL bsky.app или at://).
	ListMembers(ctx context.Context, listURI string) ([]string, error)

	GetPost(ctx context.Context, uri string) (Post, error)
	Like(ctx context.Context, uri, cid string) (StrongRef, error)
	GetBlob(ctx context.Context, did, cid string) ([]byte, error)
	UploadBlob(ctx context.Context, data []byte, mimeType string) (Blob, error)
	CreatePost(ctx context.Context, post NewPost) (StrongRef, error)
	DeletePost(ctx context.Context, uri string) error

	// SendDM отправляет сообщение did и покидает разговор.
	SendDM(ctx context.Context, did, text string) error

	SendMessage(ctx context.Context, convoID, text string) error
	ListConvos(ctx context.Context, limit int) ([]Convo, error)
	GetConvo(ctx context.Context, convoID string) (Convo, error)

	// Messages возвращает сообщения разговора, новые первыми.
	Messages(ctx context.Context, convoID string) ([]ChatMessage, error)

	// LeaveConvo покидает разговор, чтобы больше его не читать.
	LeaveConvo(ctx context.Context, convoID string) error
}

// Actor — учётная запись.
type Actor struct {
	DID    string `json:"did"`
	Handle string `json:"handle"`

	// Viewer — отношение клиента к учётной записи.
	Viewer struct {
		// Following — URI записи подписки клиента, если она есть.
		Following string `json:"following,omitempty"`
		// FollowedBy — URI записи подписки на клиента.
		FollowedBy string `json:"followedBy,omitempty"`
	} `json:"viewer"`
}

// StrongRef — ссылка на конкретную версию записи.
type StrongRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

// Blob — ссылка на загруженный blob в формате lexicon.
type Blob struct {
	Type string `json:"$type"`
	Ref  struct {
		Link string `json:"$link"`
	} `json:"ref"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

// CID возвращает CID содержимого blob'а.
func (b Blob) CID() string { return b.Ref.Link }

// NewBlob создаёт ссылку на blob.
func NewBlob(cid, mimeType string, size int64) Blob {
	b := Blob{Type: "blob", MimeType: mimeType, Size: size}
	b.Ref.Link = cid
	return b
}

// AspectRatio — пропорции изображения.
type AspectRatio struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Image — изображение, встроенное в пост.
type Image struct {
	Alt         string       `json:"alt"`
	Image       Blob         `json:"image"`
	AspectRatio *AspectRatio `json:"aspectRatio,omitempty"`
}

// Post — пост с разобранными изображениями.
type Post struct {
	URI       string  `json:"uri"`
	CID       string  `json:"cid"`
	AuthorDID string  `json:"author_did"`
	Text      string  `json:"text"`
	CreatedAt string  `json:"created_at"`
	Images    []Image `json:"images,omitempty"`

	// Record — запись поста как она хранится в репозитории.
	Record []byte `json:"-"`
}

// PostRecord — значение записи app.bsky.feed.post в JSON.
type PostRecord struct {
	Text      string     `json:"text"`
	CreatedAt string     `json:"createdAt"`
	Embed     *postEmbed `json:"embed"`
}

// Images возвращает изображения поста, включая embed recordWithMedia.
func (r PostRecord) Images() []Image {
	if r.Embed == nil {
		return nil
	}
	if len(r.Embed.Images) == 0 && r.Embed.Media != nil {
		return r.Embed.Media.Images
	}
	return r.Embed.Images
}

type postEmbed struct {
	Type   string  `json:"$type"`
	Images []Image `json:"images"`
	Media  *struct {
		Images []Image `json:"images"`
	} `json:"media"`
}

// NewPost — пост к публикации.
type NewPost struct {
	Text      string
	Images    []Image
	CreatedAt time.Time
}

// Convo — разговор в личных сообщениях.
type Convo struct {
	ID      string  `json:"id"`
	Members []Actor `json:"members"`
}

// Partner возвращает первого участника, кроме selfDID или selfHandle.
func (c Convo) Partner(selfDID, selfHandle string) (Actor, bool) {
	for _, m := range c.Members {
		if m.DID == selfDID || (selfHandle != "" && m.Handle == selfHandle) {
			continue
		}
		return m, true
	}
	return Actor{}, false
}

// ChatMessage — сообщение разговора.
type ChatMessage struct {
	ID        string    `json:"id"`
	SenderDID string    `json:"sender_did"`
	Text      string    `json:"text"`
	SentAt    time.Time `json:"sent_at"`
}

// Dialer создаёт клиента для учётной записи.
type Dialer interface {
	Dial(ctx context.Context, identifier, password string) (Client, error)
}

// DialerFunc — адаптер функции к Dialer.
type DialerFunc func(ctx context.Context, identifier, password string) (Client, error)

// Dial вызывает f.
func (f DialerFunc) Dial(ctx context.Context, identifier, password string) (Client, error) {
	return f(ctx, identifier, password)
}
