package social

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bluesky-social/indigo/xrpc"
	"github.com/ipfs/go-cid"
)

// fakePDS — минимальный XRPC-сервер.
type fakePDS struct {
	mu       sync.Mutex
	sessions int
	expireOn string
	requests []*http.Request
	bodies   map[string]string
	handlers map[string]http.HandlerFunc
}

func newFakePDS() *fakePDS {
	return &fakePDS{bodies: make(map[string]string), handlers: make(map[string]http.HandlerFunc)}
}

func (f *fakePDS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	nsid := strings.TrimPrefix(r.URL.Path, "/xrpc/")
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.requests = append(f.requests, r)
	f.bodies[nsid] = string(body)
	if nsid == "com.atproto.server.createSession" {
		f.sessions++
	}
	expire := f.expireOn == nsid && r.Header.Get("Authorization") == "Bearer token-1"
	h := f.handlers[nsid]
	sessions := f.sessions
	f.mu.Unlock()

	if nsid == "com.atproto.server.createSession" {
		var in map[string]string
		json.Unmarshal(body, &in)
		if in["password"] != "abcd-efgh-ijkl-mnop" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"AuthenticationRequired","message":"Invalid identifier or password"}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"accessJwt": "token-" + string(rune('0'+sessions)),
			"did":       "did:plc:bot",
			"handle":    "bot.bsky.social",
		})
		return
	}

	if expire {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"ExpiredToken","message":"Token has expired"}`))
		return
	}

	if h == nil {
		w.WriteHeader(http.StatusNotImplemented)
		return
	}
	h(w, r)
}

func (f *fakePDS) header(nsid, key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.requests) - 1; i >= 0; i-- {
		if strings.HasSuffix(f.requests[i].URL.Path, nsid) {
			return f.requests[i].Header.Get(key)
		}
	}
	return ""
}

func (f *fakePDS) body(nsid string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out map[string]any
	json.Unmarshal([]byte(f.bodies[nsid]), &out)
	return out
}

// testCID возвращает CIDv1 (raw, sha2-256) содержимого.
func testCID(t *testing.T, data string) string {
	t.Helper()
	c, err := cid.Prefix{Version: 1, Codec: cid.Raw, MhType: 0x12, MhLength: -1}.Sum([]byte(data))
	if err != nil {
		t.Fatalf("cid: %v", err)
	}
	return c.String()
}

func newTestClient(server *httptest.Server) *XRPCClient {
	return NewXRPC(ClientConfig{
		Service:      server.URL,
		PLCDirectory: server.URL + "/plc",
		Identifier:   "bot.bsky.social",
		Password:     "abcd-efgh-ijkl-mnop",
		HTTPClient:   server.Client(),
	})
}

// --- URI Tests ---

func TestParseATURI(t *testing.T) {
	u, err := ParseATURI("at://did:plc:abc/app.bsky.feed.post/3lk6w5lem4c2t")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Repo != "did:plc:abc" || u.Collection != CollectionPost || u.RKey != "3lk6w5lem4c2t" {
		t.Errorf("unexpected %+v", u)
	}

	for _, s := range []string{"", "https://bsky.app/x", "at://did:plc:abc", "at://did:plc:abc/app.bsky.feed.post/"} {
		if _, err := ParseATURI(s); !errors.Is(err, ErrInvalidURI) {
			t.Errorf("%q: expected ErrInvalidURI, got %v", s, err)
		}
	}
}

func TestListATURI(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"https://bsky.app/profile/did:plc:abc123/lists/3kxyz", "at://did:plc:abc123/app.bsky.graph.list/3kxyz", true},
		{"at://did:plc:abc123/app.bsky.graph.list/3kxyz", "at://did:plc:abc123/app.bsky.graph.list/3kxyz", true},
		{"https://bsky.app/profile/alice.bsky.social/lists/3kxyz", "", false},
		{"at://did:plc:abc123/app.bsky.feed.post/3kxyz", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, err := ListATURI(tt.in)
		if tt.ok && (err != nil || got != tt.want) {
			t.Errorf("%q: got %q, %v", tt.in, got, err)
		}
		if !tt.ok && !errors.Is(err, ErrInvalidListURI) {
			t.Errorf("%q: expected ErrInvalidListURI, got %v", tt.in, err)
		}
	}
}

// --- Session Tests ---

func TestXRPCClient_SessionCreatedOnce(t *testing.T) {
	pds := newFakePDS()
	server := httptest.NewServer(pds)
	defer server.Close()
	client := newTestClient(server)

	for i := 0; i < 3; i++ {
		self, err := client.Self(context.Background())
		if err != nil {
			t.Fatalf("self: %v", err)
		}
		if self.DID != "did:plc:bot" || self.Handle != "bot.bsky.social" {
			t.Errorf("unexpected self %+v", self)
		}
	}
	if pds.sessions != 1 {
		t.Errorf("expected one session, got %d", pds.sessions)
	}
}

func TestXRPCClient_BadPassword(t *testing.T) {
	server := httptest.NewServer(newFakePDS())
	defer server.Close()

	client := NewXRPC(ClientConfig{Service: server.URL, Identifier: "x", Password: "wrong", HTTPClient: server.Client()})
	if _, err := client.Self(context.Background()); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestXRPCClient_ExpiredTokenRecreatesSession(t *testing.T) {
	pds := newFakePDS()
	pds.expireOn = "app.bsky.graph.getFollowers"
	pds.handlers["app.bsky.graph.getFollowers"] = func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"followers":[{"did":"did:plc:a"}]}`))
	}
	server := httptest.NewServer(pds)
	defer server.Close()

	followers, err := newTestClient(server).Followers(context.Background())
	if err != nil {
		t.Fatalf("followers: %v", err)
	}
	if len(followers) != 1 {
		t.Errorf("expected one follower, got %d", len(followers))
	}
	if pds.sessions != 2 {
		t.Errorf("expected session to be recreated, got %d sessions", pds.sessions)
	}
}

func TestAPIError_FromXRPC(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		code      string
		temporary bool
		notFound  bool
	}{
		{"record not found", &xrpc.Error{StatusCode: 400, Wrapped: &xrpc.XRPCError{ErrStr: "RecordNotFound"}}, "RecordNotFound", false, true},
		{"upstream failure", &xrpc.Error{StatusCode: 502, Wrapped: &xrpc.XRPCError{ErrStr: "UpstreamFailure", Message: "pds down"}}, "UpstreamFailure", true, false},
		{"undecodable body", &xrpc.Error{StatusCode: 429, Wrapped: errors.New("failed to decode xrpc error message")}, "Too Many Requests", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := apiError("com.atproto.repo.getRecord", tt.err)
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *APIError, got %T", err)
			}
			if apiErr.Code != tt.code || apiErr.Temporary() != tt.temporary {
				t.Errorf("unexpected %+v", apiErr)
			}
			if errors.Is(err, ErrNotFound) != tt.notFound {
				t.Errorf("ErrNotFound match = %v, want %v", !tt.notFound, tt.notFound)
			}
		})
	}

	if err := apiError("x", errors.New("dial tcp: refused")); err == nil || strings.Contains(err.Error(), "XRPC ERROR") {
		t.Errorf("transport error should be wrapped as is, got %v", err)
	}
}

// --- Graph Tests ---

func TestXRPCClient_FollowsPaginates(t *testing.T) {
	pds := newFakePDS()
	pds.handlers["app.bsky.graph.getFollows"] = func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("actor") != "did:plc:bot" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		switch r.URL.Query().Get("cursor") {
		case "":
			w.Write([]byte(`{"follows":[{"did":"did:plc:a","viewer":{"following":"at://did:plc:bot/app.bsky.graph.follow/1"}}],"cursor":"c1"}`))
		case "c1":
			w.Write([]byte(`{"follows":[{"did":"did:plc:b"}],"cursor":"c2"}`))
		default:
			w.Write([]byte(`{"follows":[]}`))
		}
	}
	server := httptest.NewServer(pds)
	defer server.Close()

	follows, err := newTestClient(server).Follows(context.Background())
	if err != nil {
		t.Fatalf("follows: %v", err)
	}
	if len(follows) != 2 || follows[0].DID != "did:plc:a" || follows[1].DID != "did:plc:b" {
		t.Fatalf("unexpected follows %+v", follows)
	}
	if follows[0].Viewer.Following == "" {
		t.Error("viewer.following should be decoded")
	}
}

func TestXRPCClient_ListMembers(t *testing.T) {
	pds := newFakePDS()
	pds.handlers["app.bsky.graph.getList"] = func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("list") != "at://did:plc:owner/app.bsky.graph.list/abc" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{"items":[{"subject":{"did":"did:plc:x"}},{"subject":{"did":"did:plc:y"}}]}`))
	}
	server := httptest.NewServer(pds)
	defer server.Close()

	members, err := newTestClient(server).ListMembers(context.Background(), "https://bsky.app/profile/did:plc:owner/lists/abc")
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 2 || members[0] != "did:plc:x" {
		t.Errorf("unexpected members %v", members)
	}
}

func TestXRPCClient_FollowWritesRecord(t *testing.T) {
	pds := newFakePDS()
	pds.handlers["com.atproto.repo.createRecord"] = func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"uri":"at://did:plc:bot/app.bsky.graph.follow/1","cid":"bafy"}`))
	}
	server := httptest.NewServer(pds)
	defer server.Close()

	ref, err := newTestClient(server).Follow(context.Background(), "did:plc:u123")
	if err != nil {
		t.Fatalf("follow: %v", err)
	}
	if ref.URI == "" {
		t.Error("expected follow uri")
	}

	body := pds.body("com.atproto.repo.createRecord")
	record := body["record"].(map[string]any)
	if body["repo"] != "did:plc:bot" || body["collection"] != CollectionFollow {
		t.Errorf("unexpected body %v", body)
	}
	if record["subject"] != "did:plc:u123" || record["$type"] != CollectionFollow || record["createdAt"] == nil {
		t.Errorf("unexpected record %v", record)
	}
}

func TestXRPCClient_DeletePostRejectsForeignRepo(t *testing.T) {
	server := httptest.NewServer(newFakePDS())
	defer server.Close()

	err := newTestClient(server).DeletePost(context.Background(), "at://did:plc:other/app.bsky.feed.post/1")
	if !errors.Is(err, ErrNotOwner) {
		t.Errorf("expected ErrNotOwner, got %v", err)
	}
}

// --- Post Tests ---

func TestXRPCClient_GetPost(t *testing.T) {
	imgCID := testCID(t, "PNGDATA")
	pds := newFakePDS()
	pds.handlers["com.atproto.repo.getRecord"] = func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("repo") != "did:plc:author" || q.Get("rkey") != "3lk" {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"RecordNotFound"}`))
			return
		}
		w.Write([]byte(`{"uri":"at://did:plc:author/app.bsky.feed.post/3lk","cid":"bafypost","value":{
			"$type":"app.bsky.feed.post","text":"hello","createdAt":"2025-03-12T15:40:40.957Z",
			"embed":{"$type":"app.bsky.embed.images","images":[
				{"alt":"fr","image":{"$type":"blob","ref":{"$link":"` + imgCID + `"},"mimeType":"image/png","size":42},
				 "aspectRatio":{"width":10,"height":20}}]}}}`))
	}
	server := httptest.NewServer(pds)
	defer server.Close()
	client := newTestClient(server)

	post, err := client.GetPost(context.Background(), "at://did:plc:author/app.bsky.feed.post/3lk")
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	if post.CID != "bafypost" || post.AuthorDID != "did:plc:author" || post.Text != "hello" {
		t.Errorf("unexpected post %+v", post)
	}
	if len(post.Images) != 1 || post.Images[0].Alt != "fr" || post.Images[0].Image.CID() != imgCID {
		t.Fatalf("unexpected images %+v", post.Images)
	}
	if post.Images[0].AspectRatio == nil || post.Images[0].AspectRatio.Height != 20 {
		t.Error("aspect ratio should be decoded")
	}
	if !strings.Contains(string(post.Record), `"$type":"app.bsky.feed.post"`) || !strings.Contains(string(post.Record), imgCID) {
		t.Errorf("record should be kept, got %s", post.Record)
	}

	_, err = client.GetPost(context.Background(), "at://did:plc:author/app.bsky.feed.post/missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestXRPCClient_GetBlobResolvesPDS(t *testing.T) {
	blobs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/xrpc/com.atproto.sync.getBlob" || r.URL.Query().Get("cid") != "bafkimg" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("PNGDATA"))
	}))
	defer blobs.Close()

	pds := newFakePDS()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/plc/did:plc:author" {
			w.Write([]byte(`{"id":"did:plc:author","service":[{"id":"#atproto_pds","type":"AtprotoPersonalDataServer","serviceEndpoint":"` + blobs.URL + `"}]}`))
			return
		}
		pds.ServeHTTP(w, r)
	}))
	defer server.Close()

	data, err := newTestClient(server).GetBlob(context.Background(), "did:plc:author", "bafkimg")
	if err != nil {
		t.Fatalf("get blob: %v", err)
	}
	if string(data) != "PNGDATA" {
		t.Errorf("unexpected blob %q", data)
	}
}

func TestXRPCClient_UploadAndCreatePost(t *testing.T) {
	newCID := testCID(t, "PNGDATA")
	pds := newFakePDS()
	pds.handlers["com.atproto.repo.uploadBlob"] = func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "image/png" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{"blob":{"$type":"blob","ref":{"$link":"` + newCID + `"},"mimeType":"image/png","size":7}}`))
	}
	pds.handlers["com.atproto.repo.createRecord"] = func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"uri":"at://did:plc:bot/app.bsky.feed.post/new","cid":"bafyrepost"}`))
	}
	server := httptest.NewServer(pds)
	defer server.Close()
	client := newTestClient(server)
	ctx := context.Background()

	blob, err := client.UploadBlob(ctx, []byte("PNGDATA"), "image/png")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if blob.CID() != newCID {
		t.Errorf("unexpected blob %+v", blob)
	}

	ref, err := client.CreatePost(ctx, NewPost{Text: "hi", Images: []Image{{Alt: "", Image: blob, AspectRatio: &AspectRatio{Width: 4, Height: 3}}}})
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	if ref.CID != "bafyrepost" {
		t.Errorf("unexpected ref %+v", ref)
	}

	record := pds.body("com.atproto.repo.createRecord")["record"].(map[string]any)
	embed := record["embed"].(map[string]any)
	if record["$type"] != CollectionPost || embed["$type"] != "app.bsky.embed.images" || len(embed["images"].([]any)) != 1 {
		t.Fatalf("unexpected embed %v", embed)
	}
	image := embed["images"].([]any)[0].(map[string]any)
	link := image["image"].(map[string]any)["ref"].(map[string]any)["$link"]
	if link != newCID || image["aspectRatio"].(map[string]any)["width"] != float64(4) {
		t.Errorf("unexpected image %v", image)
	}

	_, err = client.CreatePost(ctx, NewPost{Text: "hi", Images: []Image{{Image: NewBlob("not-a-cid", "image/png", 1)}}})
	if err == nil {
		t.Error("invalid blob cid should fail before publishing")
	}
}

// --- Chat Tests ---

func TestXRPCClient_SendDMUsesChatProxyAndLeaves(t *testing.T) {
	pds := newFakePDS()
	pds.handlers["chat.bsky.convo.getConvoForMembers"] = func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"convo":{"id":"convo-1","members":[]}}`))
	}
	pds.handlers["chat.bsky.convo.sendMessage"] = func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"m1"}`))
	}
	pds.handlers["chat.bsky.convo.leaveConvo"] = func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"convoId":"convo-1"}`))
	}
	server := httptest.NewServer(pds)
	defer server.Close()

	if err := newTestClient(server).SendDM(context.Background(), "did:plc:u123", "hello"); err != nil {
		t.Fatalf("send dm: %v", err)
	}

	if got := pds.header("chat.bsky.convo.sendMessage", headerProxy); got != DefaultChatProxy {
		t.Errorf("expected chat proxy header, got %q", got)
	}
	msg := pds.body("chat.bsky.convo.sendMessage")
	if msg["convoId"] != "convo-1" || msg["message"].(map[string]any)["text"] != "hello" {
		t.Errorf("unexpected message %v", msg)
	}
	if pds.body("chat.bsky.convo.leaveConvo")["convoId"] != "convo-1" {
		t.Error("conversation should be left")
	}
}

func TestXRPCClient_MessagesSkipDeleted(t *testing.T) {
	pds := newFakePDS()
	pds.handlers["chat.bsky.convo.getMessages"] = func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"messages":[
			{"$type":"chat.bsky.convo.defs#messageView","id":"2","text":"abcd-efgh-ijkl-mnop","sender":{"did":"did:plc:u"},"sentAt":"2025-03-16T11:33:24.416Z"},
			{"$type":"chat.bsky.convo.defs#deletedMessageView","id":"1","sender":{"did":"did:plc:u"}}]}`))
	}
	server := httptest.NewServer(pds)
	defer server.Close()

	msgs, err := newTestClient(server).Messages(context.Background(), "convo-1")
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].SenderDID != "did:plc:u" || msgs[0].SentAt.IsZero() {
		t.Errorf("unexpected messages %+v", msgs)
	}
}

func TestConvo_Partner(t *testing.T) {
	c := Convo{ID: "c", Members: []Actor{{DID: "did:plc:bot", Handle: "bot.bsky.social"}, {DID: "did:plc:u", Handle: "u.bsky.social"}}}

	p, ok := c.Partner("did:plc:bot", "bot.bsky.social")
	if !ok || p.DID != "did:plc:u" {
		t.Errorf("unexpected partner %+v", p)
	}

	if _, ok := (Convo{Members: []Actor{{DID: "did:plc:bot"}}}).Partner("did:plc:bot", ""); ok {
		t.Error("convo with only the bot has no partner")
	}
}
