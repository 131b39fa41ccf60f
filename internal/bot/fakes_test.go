package bot

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"sync"
	"testing"

	"github.com/shaiso/fooroh/internal/queue"
	"github.com/shaiso/fooroh/internal/secrets"
	"github.com/shaiso/fooroh/internal/social"
	"github.com/shaiso/fooroh/internal/storage"
	"github.com/shaiso/fooroh/internal/worker"
)

const (
	botDID     = "did:plc:bot"
	botHandle  = "bot.bsky.social"
	userPasswd = "abcd-efgh-ijkl-mnop"
)

var testKey = base64.URLEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32))

func testBundle() secrets.Bundle {
	return secrets.Bundle{
		FernetKey:      testKey,
		BotUserID:      botHandle,
		BotAppPassword: "bot-pass",
	}
}

// fakeSocial — социальная сеть в памяти.
type fakeSocial struct {
	mu sync.Mutex

	self      social.Actor
	follows   []social.Actor
	followers []social.Actor
	lists     map[string][]string
	posts     map[string]social.Post
	blobs     map[string][]byte
	convos    []social.Convo
	messages  map[string][]social.ChatMessage
	deleteErr map[string]error

	dms        map[string][]string
	convoSent  map[string][]string
	left       []string
	followed   []string
	unfollowed []string
	liked      []string
	uploads    int
	created    []social.NewPost
	deleted    []string
}

func newFakeSocial() *fakeSocial {
	return &fakeSocial{
		self:      social.Actor{DID: botDID, Handle: botHandle},
		lists:     make(map[string][]string),
		posts:     make(map[string]social.Post),
		blobs:     make(map[string][]byte),
		messages:  make(map[string][]social.ChatMessage),
		deleteErr: make(map[string]error),
		dms:       make(map[string][]string),
		convoSent: make(map[string][]string),
	}
}

func actor(did string) social.Actor {
	a := social.Actor{DID: did}
	a.Viewer.Following = "at://" + botDID + "/app.bsky.graph.follow/" + did
	return a
}

func actors(dids ...string) []social.Actor {
	out := make([]social.Actor, 0, len(dids))
	for _, d := range dids {
		out = append(out, actor(d))
	}
	return out
}

func (f *fakeSocial) Self(ctx context.Context) (social.Actor, error) { return f.self, nil }

func (f *fakeSocial) Follow(ctx context.Context, did string) (social.StrongRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.followed = append(f.followed, did)
	return social.StrongRef{URI: "at://" + botDID + "/app.bsky.graph.follow/" + did}, nil
}

func (f *fakeSocial) Unfollow(ctx context.Context, followURI string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unfollowed = append(f.unfollowed, followURI)
	return nil
}

func (f *fakeSocial) Follows(ctx context.Context) ([]social.Actor, error)   { return f.follows, nil }
func (f *fakeSocial) Followers(ctx context.Context) ([]social.Actor, error) { return f.followers, nil }

func (f *fakeSocial) ListMembers(ctx context.Context, listURI string) ([]string, error) {
	members, ok := f.lists[listURI]
	if !ok {
		return nil, social.ErrInvalidListURI
	}
	return members, nil
}

func (f *fakeSocial) GetPost(ctx context.Context, uri string) (social.Post, error) {
	p, ok := f.posts[uri]
	if !ok {
		return social.Post{}, social.ErrNotFound
	}
	return p, nil
}

func (f *fakeSocial) Like(ctx context.Context, uri, cid string) (social.StrongRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.liked = append(f.liked, uri)
	return social.StrongRef{URI: uri + "/like"}, nil
}

func (f *fakeSocial) GetBlob(ctx context.Context, did, cid string) ([]byte, error) {
	data, ok := f.blobs[cid]
	if !ok {
		return nil, social.ErrNotFound
	}
	return data, nil
}

func (f *fakeSocial) UploadBlob(ctx context.Context, data []byte, mimeType string) (social.Blob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	return social.NewBlob(fmt.Sprintf("bafkup%d", f.uploads), mimeType, int64(len(data))), nil
}

func (f *fakeSocial) CreatePost(ctx context.Context, post social.NewPost) (social.StrongRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, post)
	n := len(f.created)
	return social.StrongRef{
		URI: fmt.Sprintf("at://%s/app.bsky.feed.post/repost%d", f.self.DID, n),
		CID: fmt.Sprintf("bafyrepost%d", n),
	}, nil
}

func (f *fakeSocial) DeletePost(ctx context.Context, uri string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.deleteErr[uri]; err != nil {
		return err
	}
	f.deleted = append(f.deleted, uri)
	return nil
}

func (f *fakeSocial) SendDM(ctx context.Context, did, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dms[did] = append(f.dms[did], text)
	return nil
}

func (f *fakeSocial) SendMessage(ctx context.Context, convoID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.convoSent[convoID] = append(f.convoSent[convoID], text)
	return nil
}

func (f *fakeSocial) ListConvos(ctx context.Context, limit int) ([]social.Convo, error) {
	if len(f.convos) > limit {
		return f.convos[:limit], nil
	}
	return f.convos, nil
}

func (f *fakeSocial) GetConvo(ctx context.Context, convoID string) (social.Convo, error) {
	for _, c := range f.convos {
		if c.ID == convoID {
			return c, nil
		}
	}
	return social.Convo{}, social.ErrNotFound
}

func (f *fakeSocial) Messages(ctx context.Context, convoID string) ([]social.ChatMessage, error) {
	return f.messages[convoID], nil
}

func (f *fakeSocial) LeaveConvo(ctx context.Context, convoID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.left = append(f.left, convoID)
	return nil
}

// fakeDialer возвращает один и тот же fakeSocial и запоминает входы.
type fakeDialer struct {
	mu     sync.Mutex
	client *fakeSocial
	dialed []string
}

func (d *fakeDialer) Dial(ctx context.Context, identifier, password string) (social.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialed = append(d.dialed, identifier+":"+password)
	return d.client, nil
}

// fakeStarter записывает входы StartExecution.
type fakeStarter struct {
	mu     sync.Mutex
	inputs []any
}

func (s *fakeStarter) StartExecution(ctx context.Context, input any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs = append(s.inputs, input)
	return fmt.Sprintf("exec-%d", len(s.inputs)), nil
}

// testCatalog — общие ресурсы в памяти.
type testCatalog struct {
	buckets map[string]*storage.MemoryBucket
	queues  map[string]*queue.MemoryQueue
	secrets *secrets.StaticProvider
}

func newTestCatalog() *testCatalog {
	c := &testCatalog{
		buckets: make(map[string]*storage.MemoryBucket),
		queues:  make(map[string]*queue.MemoryQueue),
		secrets: secrets.NewStatic(testBundle()),
	}
	for _, name := range []string{BucketOriginals, BucketWatermarks, BucketWatermarked, BucketUserInfo} {
		c.buckets[name] = storage.NewMemory(name)
	}
	for _, name := range []string{QueueFollowed, QueueSetWatermarkImg, QueueWatermarking, QueueSignout} {
		c.queues[name] = queue.NewMemory(name, queue.DefaultPolicy())
	}
	return c
}

func (c *testCatalog) Bucket(name string) (storage.Bucket, bool) {
	b, ok := c.buckets[name]
	return b, ok
}

func (c *testCatalog) Queue(name string) (queue.Queue, bool) {
	q, ok := c.queues[name]
	return q, ok
}

func (c *testCatalog) Secrets() worker.SecretProvider { return c.secrets }

// harness собирает worker'ы против общих фейков.
type harness struct {
	t       *testing.T
	social  *fakeSocial
	dialer  *fakeDialer
	starter *fakeStarter
	catalog *testCatalog
	deps    Deps
}

func newHarness(t *testing.T) *harness {
	fs := newFakeSocial()
	h := &harness{
		t:       t,
		social:  fs,
		dialer:  &fakeDialer{client: fs},
		starter: &fakeStarter{},
		catalog: newTestCatalog(),
	}
	h.deps = Deps{Accounts: NewAccounts(h.dialer), Signup: h.starter}
	return h
}

func (h *harness) bind(spec worker.Spec) *worker.Bound {
	h.t.Helper()
	b, err := worker.Bind(spec, h.catalog, nil)
	if err != nil {
		h.t.Fatalf("bind %s: %v", spec.Name, err)
	}
	return b
}

func (h *harness) invoke(spec worker.Spec, input any) (any, error) {
	h.t.Helper()
	return h.bind(spec).Invoke(context.Background(), input)
}

func (h *harness) bucket(name string) *storage.MemoryBucket {
	return h.catalog.buckets[name]
}

func mustGet(t *testing.T, b storage.Bucket, key string) []byte {
	t.Helper()
	data, err := b.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get %s/%s: %v", b.Name(), key, err)
	}
	return data
}

func mustDecode[T any](t *testing.T, v any) T {
	t.Helper()
	out, err := decode[T](v)
	if err != nil {
		t.Fatalf("decode %T: %v", v, err)
	}
	return out
}

// testPNG рисует изображение w×h с диагональным градиентом.
func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 4), G: uint8(y * 4), B: 90, A: 255})
		}
	}
	data, err := EncodePNG(img)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return data
}

// testMarkPNG рисует чёрный квадрат на белом фоне.
func testMarkPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 12, 12))
	for y := 0; y < 12; y++ {
		for x := 0; x < 12; x++ {
			c := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
			if x >= 3 && x < 9 && y >= 3 && y < 9 {
				c = color.NRGBA{A: 255}
			}
			img.Set(x, y, c)
		}
	}
	data, err := EncodePNG(img)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return data
}
