package social

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/api/chat"
	"github.com/bluesky-social/indigo/atproto/identity"
	"github.com/bluesky-social/indigo/atproto/syntax"
	lexutil "github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/xrpc"
	"github.com/ipfs/go-cid"
)

// Default configuration values.
const (
	DefaultService      = "https://bsky.social"
	DefaultChatProxy    = "did:web:api.bsky.chat#bsky_chat"
	DefaultPLCDirectory = "https://plc.directory"

	defaultTimeout = 30 * time.Second
	pageLimit      = 100

	headerProxy = "atproto-proxy"
	timeLayout  = "2006-01-02T15:04:05.000Z07:00"
)

// ClientConfig — конфигурация XRPCClient.
type ClientConfig struct {
	// Service — базовый URL PDS (default: https://bsky.social).
	Service string

	// ChatProxy — значение заголовка atproto-proxy для чат-вызовов.
	ChatProxy string

	// PLCDirectory — каталог did:plc для поиска PDS автора blob'а.
	PLCDirectory string

	// Identifier — handle или DID учётной записи.
	Identifier string

	// Password — app password.
	Password string

	// HTTPClient (default: таймаут 30s)
	HTTPClient *http.Client

	// Logger
	Logger *slog.Logger
}

// XRPCClient — реализация Client поверх indigo xrpc и сгенерированных
// lexicon-вызовов.
//
// Сессия создаётся лениво при первом вызове и пересоздаётся один раз,
// если сервер ответил ExpiredToken.
type XRPCClient struct {
	httpClient *http.Client
	service    string
	chatProxy  string
	dir        identity.Directory

	identifier string
	password   string
	now        func() time.Time

	mu   sync.Mutex
	auth *xrpc.AuthInfo
	pds  map[string]string

	logger *slog.Logger
}

// NewXRPC создаёт XRPCClient. Сеть не используется до первого вызова.
func NewXRPC(cfg ClientConfig) *XRPCClient {
	service := strings.TrimRight(cfg.Service, "/")
	if service == "" {
		service = DefaultService
	}

	proxy := cfg.ChatProxy
	if proxy == "" {
		proxy = DefaultChatProxy
	}

	plc := strings.TrimRight(cfg.PLCDirectory, "/")
	if plc == "" {
		plc = DefaultPLCDirectory
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &XRPCClient{
		httpClient: httpClient,
		service:    service,
		chatProxy:  proxy,
		dir: &identity.BaseDirectory{
			PLCURL:                 plc,
			HTTPClient:             *httpClient,
			SkipHandleVerification: true,
		},
		identifier: cfg.Identifier,
		password:   cfg.Password,
		now:        time.Now,
		pds:        make(map[string]string),
		logger:     logger.With("component", "social", "service", service),
	}
}

// NewDialer возвращает Dialer, создающий XRPCClient с базовой
// конфигурацией cfg и проверяющий вход сразу.
func NewDialer(cfg ClientConfig) Dialer {
	return DialerFunc(func(ctx context.Context, identifier, password string) (Client, error) {
		c := cfg
		c.Identifier = identifier
		c.Password = password
		client := NewXRPC(c)
		if _, err := client.Self(ctx); err != nil {
			return nil, err
		}
		return client, nil
	})
}

// --- Session ---

func (c *XRPCClient) session(ctx context.Context) (*xrpc.AuthInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.auth != nil {
		return c.auth, nil
	}

	out, err := atproto.ServerCreateSession(ctx, c.xrpcClient(c.service, nil, false), &atproto.ServerCreateSession_Input{
		Identifier: c.identifier,
		Password:   c.password,
	})
	if err != nil {
		err = apiError("com.atproto.server.createSession", err)
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusBadRequest) {
			return nil, fmt.Errorf("%w: %s", ErrUnauthorized, apiErr.Code)
		}
		return nil, fmt.Errorf("create session: %w", err)
	}

	c.logger.Debug("session created", "did", out.Did)
	c.auth = &xrpc.AuthInfo{
		AccessJwt:  out.AccessJwt,
		RefreshJwt: out.RefreshJwt,
		Did:        out.Did,
		Handle:     out.Handle,
	}
	return c.auth, nil
}

func (c *XRPCClient) dropSession(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.auth != nil && c.auth.AccessJwt == token {
		c.auth = nil
	}
}

// --- Transport ---

func (c *XRPCClient) xrpcClient(host string, auth *xrpc.AuthInfo, viaChat bool) *xrpc.Client {
	xc := &xrpc.Client{Client: c.httpClient, Host: host, Auth: auth}
	if viaChat {
		xc.Headers = map[string]string{headerProxy: c.chatProxy}
	}
	return xc
}

// call выполняет fn от имени сессии. Чат-вызовы идут с заголовком
// atproto-proxy.
func (c *XRPCClient) call(ctx context.Context, nsid string, viaChat bool, fn func(xc *xrpc.Client) error) error {
	for attempt := 0; ; attempt++ {
		auth, err := c.session(ctx)
		if err != nil {
			return err
		}

		err = apiError(nsid, fn(c.xrpcClient(c.service, auth, viaChat)))
		var apiErr *APIError
		if attempt == 0 && errors.As(err, &apiErr) && apiErr.expiredToken() {
			c.logger.Debug("access token expired, recreating session")
			c.dropSession(auth.AccessJwt)
			continue
		}
		return err
	}
}

// apiError превращает *xrpc.Error в *APIError.
func apiError(nsid string, err error) error {
	if err == nil {
		return nil
	}

	var xerr *xrpc.Error
	if !errors.As(err, &xerr) {
		return fmt.Errorf("xrpc %s: %w", nsid, err)
	}

	out := &APIError{Method: nsid, StatusCode: xerr.StatusCode}
	var body *xrpc.XRPCError
	if errors.As(xerr.Wrapped, &body) {
		out.Code = body.ErrStr
		out.Message = body.Message
	}
	if out.Code == "" {
		out.Code = http.StatusText(xerr.StatusCode)
	}
	return out
}

// --- Records ---

func (c *XRPCClient) createRecord(ctx context.Context, collection string, record *lexutil.LexiconTypeDecoder) (StrongRef, error) {
	auth, err := c.session(ctx)
	if err != nil {
		return StrongRef{}, err
	}

	var out *atproto.RepoCreateRecord_Output
	err = c.call(ctx, "com.atproto.repo.createRecord", false, func(xc *xrpc.Client) (err error) {
		out, err = atproto.RepoCreateRecord(ctx, xc, &atproto.RepoCreateRecord_Input{
			Repo:       auth.Did,
			Collection: collection,
			Record:     record,
		})
		return err
	})
	if err != nil {
		return StrongRef{}, err
	}
	return StrongRef{URI: out.Uri, CID: out.Cid}, nil
}

func (c *XRPCClient) deleteRecord(ctx context.Context, uri string) error {
	u, err := ParseATURI(uri)
	if err != nil {
		return err
	}
	auth, err := c.session(ctx)
	if err != nil {
		return err
	}
	if u.Repo != auth.Did && u.Repo != auth.Handle {
		return fmt.Errorf("%w: %s", ErrNotOwner, uri)
	}

	return c.call(ctx, "com.atproto.repo.deleteRecord", false, func(xc *xrpc.Client) error {
		_, err := atproto.RepoDeleteRecord(ctx, xc, &atproto.RepoDeleteRecord_Input{
			Repo:       auth.Did,
			Collection: u.Collection,
			Rkey:       u.RKey,
		})
		return err
	})
}

func (c *XRPCClient) createdAt(t time.Time) string {
	if t.IsZero() {
		t = c.now()
	}
	return t.UTC().Format(timeLayout)
}

// Self возвращает учётную запись сессии.
func (c *XRPCClient) Self(ctx context.Context) (Actor, error) {
	auth, err := c.session(ctx)
	if err != nil {
		return Actor{}, err
	}
	return Actor{DID: auth.Did, Handle: auth.Handle}, nil
}

// Follow создаёт запись подписки.
func (c *XRPCClient) Follow(ctx context.Context, did string) (StrongRef, error) {
	return c.createRecord(ctx, CollectionFollow, &lexutil.LexiconTypeDecoder{Val: &bsky.GraphFollow{
		Subject:   did,
		CreatedAt: c.createdAt(time.Time{}),
	}})
}

// Unfollow удаляет запись подписки.
func (c *XRPCClient) Unfollow(ctx context.Context, followURI string) error {
	return c.deleteRecord(ctx, followURI)
}

// Like создаёт запись лайка.
func (c *XRPCClient) Like(ctx context.Context, uri, recordCID string) (StrongRef, error) {
	return c.createRecord(ctx, CollectionLike, &lexutil.LexiconTypeDecoder{Val: &bsky.FeedLike{
		Subject:   &atproto.RepoStrongRef{Uri: uri, Cid: recordCID},
		CreatedAt: c.createdAt(time.Time{}),
	}})
}

// DeletePost удаляет пост клиента.
func (c *XRPCClient) DeletePost(ctx context.Context, uri string) error {
	return c.deleteRecord(ctx, uri)
}

// CreatePost публикует пост с изображениями.
func (c *XRPCClient) CreatePost(ctx context.Context, post NewPost) (StrongRef, error) {
	record := &bsky.FeedPost{
		Text:      post.Text,
		CreatedAt: c.createdAt(post.CreatedAt),
	}

	if len(post.Images) > 0 {
		images := make([]*bsky.EmbedImages_Image, 0, len(post.Images))
		for i, img := range post.Images {
			link, err := cid.Decode(img.Image.CID())
			if err != nil {
				return StrongRef{}, fmt.Errorf("image %d: blob cid: %w", i, err)
			}
			embed := &bsky.EmbedImages_Image{
				Alt: img.Alt,
				Image: &lexutil.LexBlob{
					Ref:      lexutil.LexLink(link),
					MimeType: img.Image.MimeType,
					Size:     img.Image.Size,
				},
			}
			if img.AspectRatio != nil {
				embed.AspectRatio = &bsky.EmbedDefs_AspectRatio{
					Width:  int64(img.AspectRatio.Width),
					Height: int64(img.AspectRatio.Height),
				}
			}
			images = append(images, embed)
		}
		record.Embed = &bsky.FeedPost_Embed{EmbedImages: &bsky.EmbedImages{Images: images}}
	}

	return c.createRecord(ctx, CollectionPost, &lexutil.LexiconTypeDecoder{Val: record})
}

// --- Posts and blobs ---

// GetPost читает запись поста по at:// URI.
func (c *XRPCClient) GetPost(ctx context.Context, uri string) (Post, error) {
	u, err := ParseATURI(uri)
	if err != nil {
		return Post{}, err
	}

	var out *atproto.RepoGetRecord_Output
	err = c.call(ctx, "com.atproto.repo.getRecord", false, func(xc *xrpc.Client) (err error) {
		out, err = atproto.RepoGetRecord(ctx, xc, "", u.Collection, u.Repo, u.RKey)
		return err
	})
	if err != nil {
		return Post{}, err
	}

	var record *bsky.FeedPost
	if out.Value != nil {
		record, _ = out.Value.Val.(*bsky.FeedPost)
	}
	if record == nil {
		return Post{}, fmt.Errorf("decode post %s: not a %s record", uri, CollectionPost)
	}

	raw, err := json.Marshal(out)
	if err != nil {
		return Post{}, fmt.Errorf("encode post %s: %w", uri, err)
	}

	post := Post{
		URI:       out.Uri,
		AuthorDID: u.Repo,
		Text:      record.Text,
		CreatedAt: record.CreatedAt,
		Images:    postImages(record),
		Record:    raw,
	}
	if out.Cid != nil {
		post.CID = *out.Cid
	}
	return post, nil
}

// postImages возвращает изображения поста, включая embed recordWithMedia.
func postImages(record *bsky.FeedPost) []Image {
	var embedded []*bsky.EmbedImages_Image
	switch e := record.Embed; {
	case e == nil:
	case e.EmbedImages != nil:
		embedded = e.EmbedImages.Images
	case e.EmbedRecordWithMedia != nil && e.EmbedRecordWithMedia.Media != nil && e.EmbedRecordWithMedia.Media.EmbedImages != nil:
		embedded = e.EmbedRecordWithMedia.Media.EmbedImages.Images
	}

	var out []Image
	for _, img := range embedded {
		if img == nil || img.Image == nil {
			continue
		}
		image := Image{
			Alt:   img.Alt,
			Image: NewBlob(img.Image.Ref.String(), img.Image.MimeType, img.Image.Size),
		}
		if img.AspectRatio != nil {
			image.AspectRatio = &AspectRatio{Width: int(img.AspectRatio.Width), Height: int(img.AspectRatio.Height)}
		}
		out = append(out, image)
	}
	return out
}

// GetBlob скачивает blob с PDS автора.
func (c *XRPCClient) GetBlob(ctx context.Context, did, blobCID string) ([]byte, error) {
	data, err := atproto.SyncGetBlob(ctx, c.xrpcClient(c.resolvePDS(ctx, did), nil, false), blobCID, did)
	if err != nil {
		return nil, apiError("com.atproto.sync.getBlob", err)
	}
	return data, nil
}

// UploadBlob загружает blob в репозиторий клиента.
func (c *XRPCClient) UploadBlob(ctx context.Context, data []byte, mimeType string) (Blob, error) {
	var out atproto.RepoUploadBlob_Output
	err := c.call(ctx, "com.atproto.repo.uploadBlob", false, func(xc *xrpc.Client) error {
		// atproto.RepoUploadBlob шлёт Content-Type */*, а PDS берёт mimeType из заголовка.
		return xc.LexDo(ctx, lexutil.Procedure, mimeType, "com.atproto.repo.uploadBlob", nil, bytes.NewReader(data), &out)
	})
	if err != nil {
		return Blob{}, err
	}
	if out.Blob == nil {
		return Blob{}, fmt.Errorf("upload blob: empty response")
	}
	return NewBlob(out.Blob.Ref.String(), out.Blob.MimeType, out.Blob.Size), nil
}

// resolvePDS находит PDS учётной записи по DID-документу.
// При ошибке используется сервис клиента.
func (c *XRPCClient) resolvePDS(ctx context.Context, did string) string {
	c.mu.Lock()
	endpoint, ok := c.pds[did]
	c.mu.Unlock()
	if ok {
		return endpoint
	}

	endpoint, err := c.lookupPDS(ctx, did)
	if err != nil {
		c.logger.Warn("failed to resolve pds, using default service", "did", did, "error", err)
		return c.service
	}

	c.mu.Lock()
	c.pds[did] = endpoint
	c.mu.Unlock()
	return endpoint
}

func (c *XRPCClient) lookupPDS(ctx context.Context, did string) (string, error) {
	parsed, err := syntax.ParseDID(did)
	if err != nil {
		return "", err
	}
	ident, err := c.dir.LookupDID(ctx, parsed)
	if err != nil {
		return "", err
	}
	endpoint := strings.TrimRight(ident.PDSEndpoint(), "/")
	if endpoint == "" {
		return "", fmt.Errorf("did document has no pds service")
	}
	return endpoint, nil
}

// --- Graph ---

// paginate вызывает page, пока сервер возвращает новый cursor.
func paginate(page func(cursor string) (*string, error)) error {
	cursor := ""
	for {
		next, err := page(cursor)
		if err != nil {
			return err
		}
		if next == nil || *next == "" || *next == cursor {
			return nil
		}
		cursor = *next
	}
}

func profileActor(p *bsky.ActorDefs_ProfileView) Actor {
	a := Actor{DID: p.Did, Handle: p.Handle}
	if p.Viewer != nil {
		if p.Viewer.Following != nil {
			a.Viewer.Following = *p.Viewer.Following
		}
		if p.Viewer.FollowedBy != nil {
			a.Viewer.FollowedBy = *p.Viewer.FollowedBy
		}
	}
	return a
}

// Follows возвращает все подписки клиента.
func (c *XRPCClient) Follows(ctx context.Context) ([]Actor, error) {
	auth, err := c.session(ctx)
	if err != nil {
		return nil, err
	}

	var out []Actor
	err = paginate(func(cursor string) (*string, error) {
		var page *bsky.GraphGetFollows_Output
		err := c.call(ctx, "app.bsky.graph.getFollows", false, func(xc *xrpc.Client) (err error) {
			page, err = bsky.GraphGetFollows(ctx, xc, auth.Did, cursor, pageLimit)
			return err
		})
		if err != nil {
			return nil, err
		}
		for _, p := range page.Follows {
			if p != nil {
				out = append(out, profileActor(p))
			}
		}
		return page.Cursor, nil
	})
	return out, err
}

// Followers возвращает всех подписчиков клиента.
func (c *XRPCClient) Followers(ctx context.Context) ([]Actor, error) {
	auth, err := c.session(ctx)
	if err != nil {
		return nil, err
	}

	var out []Actor
	err = paginate(func(cursor string) (*string, error) {
		var page *bsky.GraphGetFollowers_Output
		err := c.call(ctx, "app.bsky.graph.getFollowers", false, func(xc *xrpc.Client) (err error) {
			page, err = bsky.GraphGetFollowers(ctx, xc, auth.Did, cursor, pageLimit)
			return err
		})
		if err != nil {
			return nil, err
		}
		for _, p := range page.Followers {
			if p != nil {
				out = append(out, profileActor(p))
			}
		}
		return page.Cursor, nil
	})
	return out, err
}

// ListMembers возвращает DID участников списка.
func (c *XRPCClient) ListMembers(ctx context.Context, listURI string) ([]string, error) {
	aturi, err := ListATURI(listURI)
	if err != nil {
		return nil, err
	}

	var out []string
	err = paginate(func(cursor string) (*string, error) {
		var page *bsky.GraphGetList_Output
		err := c.call(ctx, "app.bsky.graph.getList", false, func(xc *xrpc.Client) (err error) {
			page, err = bsky.GraphGetList(ctx, xc, cursor, pageLimit, aturi)
			return err
		})
		if err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			if item != nil && item.Subject != nil {
				out = append(out, item.Subject.Did)
			}
		}
		return page.Cursor, nil
	})
	return out, err
}

// --- Chat ---

func convoFromView(v *chat.ConvoDefs_ConvoView) Convo {
	if v == nil {
		return Convo{}
	}
	c := Convo{ID: v.Id}
	for _, m := range v.Members {
		if m != nil {
			c.Members = append(c.Members, Actor{DID: m.Did, Handle: m.Handle})
		}
	}
	return c
}

// SendDM отправляет сообщение did и покидает разговор.
func (c *XRPCClient) SendDM(ctx context.Context, did, text string) error {
	var out *chat.ConvoGetConvoForMembers_Output
	err := c.call(ctx, "chat.bsky.convo.getConvoForMembers", true, func(xc *xrpc.Client) (err error) {
		out, err = chat.ConvoGetConvoForMembers(ctx, xc, []string{did})
		return err
	})
	if err != nil {
		return err
	}

	convo := convoFromView(out.Convo)
	if convo.ID == "" {
		return fmt.Errorf("%w: no conversation with %s", ErrNotFound, did)
	}
	if err := c.SendMessage(ctx, convo.ID, text); err != nil {
		return err
	}
	return c.LeaveConvo(ctx, convo.ID)
}

// SendMessage отправляет текст в разговор.
func (c *XRPCClient) SendMessage(ctx context.Context, convoID, text string) error {
	return c.call(ctx, "chat.bsky.convo.sendMessage", true, func(xc *xrpc.Client) error {
		_, err := chat.ConvoSendMessage(ctx, xc, &chat.ConvoSendMessage_Input{
			ConvoId: convoID,
			Message: &chat.ConvoDefs_MessageInput{Text: text},
		})
		return err
	})
}

// ListConvos возвращает до limit последних разговоров.
func (c *XRPCClient) ListConvos(ctx context.Context, limit int) ([]Convo, error) {
	var out *chat.ConvoListConvos_Output
	err := c.call(ctx, "chat.bsky.convo.listConvos", true, func(xc *xrpc.Client) (err error) {
		out, err = chat.ConvoListConvos(ctx, xc, "", "", int64(limit), "", "", "")
		return err
	})
	if err != nil {
		return nil, err
	}

	convos := make([]Convo, 0, len(out.Convos))
	for _, v := range out.Convos {
		if len(convos) == limit {
			break
		}
		if v != nil {
			convos = append(convos, convoFromView(v))
		}
	}
	return convos, nil
}

// GetConvo возвращает разговор с участниками.
func (c *XRPCClient) GetConvo(ctx context.Context, convoID string) (Convo, error) {
	var out *chat.ConvoGetConvo_Output
	err := c.call(ctx, "chat.bsky.convo.getConvo", true, func(xc *xrpc.Client) (err error) {
		out, err = chat.ConvoGetConvo(ctx, xc, convoID)
		return err
	})
	if err != nil {
		return Convo{}, err
	}
	return convoFromView(out.Convo), nil
}

// Messages возвращает последнюю страницу сообщений. Удалённые и
// системные сообщения пропускаются.
func (c *XRPCClient) Messages(ctx context.Context, convoID string) ([]ChatMessage, error) {
	var out *chat.ConvoGetMessages_Output
	err := c.call(ctx, "chat.bsky.convo.getMessages", true, func(xc *xrpc.Client) (err error) {
		out, err = chat.ConvoGetMessages(ctx, xc, convoID, "", pageLimit)
		return err
	})
	if err != nil {
		return nil, err
	}

	msgs := make([]ChatMessage, 0, len(out.Messages))
	for _, elem := range out.Messages {
		if elem == nil || elem.ConvoDefs_MessageView == nil {
			continue
		}
		m := elem.ConvoDefs_MessageView
		msg := ChatMessage{ID: m.Id, Text: m.Text}
		if m.Sender != nil {
			msg.SenderDID = m.Sender.Did
		}
		msg.SentAt, _ = time.Parse(time.RFC3339Nano, m.SentAt)
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// LeaveConvo покидает разговор.
func (c *XRPCClient) LeaveConvo(ctx context.Context, convoID string) error {
	return c.call(ctx, "chat.bsky.convo.leaveConvo", true, func(xc *xrpc.Client) error {
		_, err := chat.ConvoLeaveConvo(ctx, xc, &chat.ConvoLeaveConvo_Input{ConvoId: convoID})
		return err
	})
}

var _ Client = (*XRPCClient)(nil)
