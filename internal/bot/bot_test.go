package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/shaiso/fooroh/internal/secrets"
	"github.com/shaiso/fooroh/internal/social"
	"github.com/shaiso/fooroh/internal/worker"
)

// --- Key Tests ---

func TestIDOfDID(t *testing.T) {
	tests := []struct {
		did  string
		want string
		ok   bool
	}{
		{"did:plc:abcdefg", "abcdefg", true},
		{"did:web:example123", "example123", true},
		{"did:plc:", "", false},
		{"did:plc:abc/def", "", false},
		{"plc:abc", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, err := IDOfDID(tt.did)
		if tt.ok && (err != nil || got != tt.want) {
			t.Errorf("%q: got %q, %v", tt.did, got, err)
		}
		if !tt.ok && !errors.Is(err, ErrInvalidDID) {
			t.Errorf("%q: expected ErrInvalidDID, got %v", tt.did, err)
		}
	}
}

func TestKeys(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{UserInfoKey("abc"), "abc"},
		{WatermarkImageKey("abc", "image/jpeg"), "images/abc.jpg"},
		{WatermarkImageKey("abc", "image/png"), "images/abc.png"},
		{WatermarkMetadataKey("abc"), "metadatas/abc.json"},
		{OriginalPostKey("bafy", "abc"), "bafy/abc/post.json"},
		{OriginalImageKey("bafy", "abc", 2, "image/webp"), "bafy/abc/2.webp"},
		{WatermarkedKey("bafy/abc/2.webp"), "bafy/abc/2.png"},
		{WatermarkedKey("bafy/abc/0.png"), "bafy/abc/0.png"},
		{RepostMarkerKey("bafy", "abc"), "bafy/abc/repost.json"},
		{Extension("application/x-unknown-fooroh"), ".bin"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("expected %q, got %q", tt.want, tt.got)
		}
	}
}

func TestIsAppPassword(t *testing.T) {
	tests := map[string]bool{
		"abcd-efgh-ijkl-mnop":      true,
		"  AB12-cd34-EF56-gh78\n":  true,
		"abcd-efgh-ijkl":           false,
		"abcd-efgh-ijkl-mnop-q":    false,
		"abcd_efgh_ijkl_mnop":      false,
		"pass abcd-efgh-ijkl-mnop": false,
	}
	for in, want := range tests {
		if got := IsAppPassword(in); got != want {
			t.Errorf("%q: expected %v", in, want)
		}
	}
}

// --- Graph Tests ---

func TestGraph_Discover(t *testing.T) {
	tests := []struct {
		name          string
		graph         Graph
		wantUnfollow  []string
		wantNewFollow []string
	}{
		{
			name: "no changes",
			graph: Graph{
				Follows:   NewSet("a", "b"),
				Followers: NewSet("a", "b"),
			},
		},
		{
			name: "unfollower and new follower",
			graph: Graph{
				Follows:   NewSet("a", "b"),
				Followers: NewSet("b", "c"),
			},
			wantUnfollow:  []string{"a"},
			wantNewFollow: []string{"c"},
		},
		{
			name: "ignored accounts are skipped",
			graph: Graph{
				Follows:   NewSet("a", "b"),
				Followers: NewSet("b", "c"),
				Ignores:   NewSet("a", "c"),
			},
		},
		{
			name: "whitelist ignores everyone else",
			graph: Graph{
				Follows:   NewSet("a", "b"),
				Followers: NewSet("c", "d"),
				Whitelist: NewSet("a", "d"),
			},
			wantUnfollow:  []string{"a"},
			wantNewFollow: []string{"d"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unfollow, newFollow := tt.graph.Discover()
			if strings.Join(unfollow, ",") != strings.Join(tt.wantUnfollow, ",") {
				t.Errorf("unfollowers: expected %v, got %v", tt.wantUnfollow, unfollow)
			}
			if strings.Join(newFollow, ",") != strings.Join(tt.wantNewFollow, ",") {
				t.Errorf("new followers: expected %v, got %v", tt.wantNewFollow, newFollow)
			}
		})
	}
}

func TestGraph_Tracked(t *testing.T) {
	g := Graph{Follows: NewSet("a", "b", "c"), Ignores: NewSet("b")}
	if got := strings.Join(g.Tracked().Sorted(), ","); got != "a,c" {
		t.Errorf("expected a,c, got %s", got)
	}

	g.Whitelist = NewSet("z")
	if got := strings.Join(g.Tracked().Sorted(), ","); got != "z" {
		t.Errorf("whitelist must override follows, got %s", got)
	}
}

// --- Accounts Tests ---

func TestAccounts_ReusesUntilPasswordChanges(t *testing.T) {
	dialer := &fakeDialer{client: newFakeSocial()}
	accounts := NewAccounts(dialer)
	ctx := context.Background()

	accounts.Client(ctx, "bot", "p1")
	accounts.Client(ctx, "bot", "p1")
	if len(dialer.dialed) != 1 {
		t.Fatalf("expected one dial, got %d", len(dialer.dialed))
	}

	accounts.Client(ctx, "bot", "p2")
	if len(dialer.dialed) != 2 {
		t.Errorf("rotated password must redial, got %d dials", len(dialer.dialed))
	}
}

// --- Follow Tests ---

func TestTouchUserFile(t *testing.T) {
	h := newHarness(t)
	input := map[string]any{"did": "did:plc:u123"}

	out, err := h.invoke(TouchUserFile(h.deps), input)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if mustDecode[DIDInput](t, out).DID != "did:plc:u123" {
		t.Errorf("unexpected output %v", out)
	}
	if got := mustGet(t, h.bucket(BucketUserInfo), "u123"); string(got) != "{}" {
		t.Errorf("expected empty user file, got %s", got)
	}

	// Существующий файл не перезаписывается.
	h.bucket(BucketUserInfo).Put(context.Background(), "u123", []byte(`{"did":"did:plc:u123","app_password":"x"}`))
	if _, err := h.invoke(TouchUserFile(h.deps), input); err != nil {
		t.Fatalf("second invoke: %v", err)
	}
	if got := mustGet(t, h.bucket(BucketUserInfo), "u123"); !bytes.Contains(got, []byte("app_password")) {
		t.Errorf("user file must be kept, got %s", got)
	}
}

func TestTouchUserFile_RejectsNonPLC(t *testing.T) {
	h := newHarness(t)

	for _, input := range []any{
		map[string]any{"did": "did:web:example"},
		map[string]any{"followerId": "u123"},
		"not an object",
	} {
		_, err := h.invoke(TouchUserFile(h.deps), input)
		if worker.KindOf(err) != worker.KindInput {
			t.Errorf("%v: expected input error, got %v", input, err)
		}
	}
	if keys, _ := h.bucket(BucketUserInfo).List(context.Background(), ""); len(keys) != 0 {
		t.Errorf("nothing should be written, got %v", keys)
	}
}

func TestFollowBack(t *testing.T) {
	h := newHarness(t)
	h.social.follows = actors("did:plc:old")

	if _, err := h.invoke(FollowBack(h.deps), map[string]any{"did": "did:plc:old"}); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if len(h.social.followed) != 0 {
		t.Errorf("existing follow must be skipped, got %v", h.social.followed)
	}

	if _, err := h.invoke(FollowBack(h.deps), map[string]any{"did": "did:plc:new"}); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if len(h.social.followed) != 1 || h.social.followed[0] != "did:plc:new" {
		t.Errorf("expected follow of did:plc:new, got %v", h.social.followed)
	}
	if len(h.dialer.dialed) != 1 || h.dialer.dialed[0] != botHandle+":bot-pass" {
		t.Errorf("bot client should be dialed once from secrets, got %v", h.dialer.dialed)
	}
}

func TestSendDM(t *testing.T) {
	h := newHarness(t)

	if _, err := h.invoke(SendDM(h.deps), map[string]any{"did": "did:plc:u"}); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if len(h.social.dms["did:plc:u"]) != 1 || !strings.Contains(h.social.dms["did:plc:u"][0], "app password") {
		t.Errorf("unexpected dms %v", h.social.dms)
	}
}

// --- Signup Tests ---

func convo(id string, partner string) social.Convo {
	return social.Convo{ID: id, Members: []social.Actor{{DID: botDID, Handle: botHandle}, {DID: partner}}}
}

func TestSignupExecutor(t *testing.T) {
	h := newHarness(t)
	h.social.followers = actors("did:plc:follower")
	h.social.convos = []social.Convo{
		convo("c1", "did:plc:follower"),
		convo("c2", "did:plc:stranger"),
	}

	out, err := h.invoke(SignupExecutor(h.deps), map[string]any{"pipeline": "signup"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}

	if len(h.starter.inputs) != 1 {
		t.Fatalf("expected one execution, got %d", len(h.starter.inputs))
	}
	if in := h.starter.inputs[0].(ConvoInput); in.ConvoID != "c1" {
		t.Errorf("unexpected input %+v", in)
	}
	if len(h.social.left) != 1 || h.social.left[0] != "c2" {
		t.Errorf("convo with non-follower must be left, got %v", h.social.left)
	}
	if res := out.(map[string]int); res["started"] != 1 || res["left"] != 1 {
		t.Errorf("unexpected result %v", res)
	}
}

func TestSignupExecutor_AtMostFiveConvos(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 8; i++ {
		did := "did:plc:f" + string(rune('a'+i))
		h.social.followers = append(h.social.followers, actor(did))
		h.social.convos = append(h.social.convos, convo("c"+string(rune('a'+i)), did))
	}

	if _, err := h.invoke(SignupExecutor(h.deps), nil); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if len(h.starter.inputs) != 5 {
		t.Errorf("expected 5 executions, got %d", len(h.starter.inputs))
	}
}

func TestSignupExecutor_RequiresStarter(t *testing.T) {
	h := newHarness(t)
	_, err := worker.Bind(SignupExecutor(Deps{Accounts: h.deps.Accounts}), h.catalog, nil)
	if err == nil {
		t.Error("expected error without signup starter")
	}
}

func TestGetPendingSignups(t *testing.T) {
	h := newHarness(t)
	h.social.convos = []social.Convo{convo("c1", "did:plc:user1")}
	h.social.messages["c1"] = []social.ChatMessage{
		{ID: "4", SenderDID: botDID, Text: "aaaa-bbbb-cccc-dddd"},
		{ID: "3", SenderDID: "did:plc:user1", Text: "thanks!"},
		{ID: "2", SenderDID: "did:plc:user1", Text: " " + userPasswd + " "},
		{ID: "1", SenderDID: "did:plc:user1", Text: "zzzz-zzzz-zzzz-zzzz"},
	}

	out, err := h.invoke(GetPendingSignups(h.deps), map[string]any{"convo_id": "c1"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	res := mustDecode[SignupResult](t, out)
	if res.ConvoID != "c1" || res.DID != "did:plc:user1" {
		t.Errorf("unexpected result %+v", res)
	}

	raw := mustGet(t, h.bucket(BucketUserInfo), "user1")
	if bytes.Contains(raw, []byte(userPasswd)) {
		t.Fatal("app password must not be stored in plaintext")
	}
	var info UserInfo
	json.Unmarshal(raw, &info)
	if info.DID != "did:plc:user1" {
		t.Errorf("unexpected user file %s", raw)
	}

	sealer, _ := secrets.NewSealer(testKey)
	plain, err := sealer.Open(info.AppPassword)
	if err != nil || plain != userPasswd {
		t.Errorf("expected latest partner password, got %q, %v", plain, err)
	}
}

func TestGetPendingSignups_NotFound(t *testing.T) {
	h := newHarness(t)
	h.social.convos = []social.Convo{convo("c1", "did:plc:user1")}
	h.social.messages["c1"] = []social.ChatMessage{
		{SenderDID: botDID, Text: "aaaa-bbbb-cccc-dddd"},
		{SenderDID: "did:plc:user1", Text: "hello"},
	}

	_, err := h.invoke(GetPendingSignups(h.deps), map[string]any{"convo_id": "c1"})
	if !errors.Is(err, ErrAppPasswordNotFound) || worker.KindOf(err) != worker.KindInput {
		t.Errorf("expected input error ErrAppPasswordNotFound, got %v", err)
	}
	if exists, _ := h.bucket(BucketUserInfo).Exists(context.Background(), "user1"); exists {
		t.Error("nothing should be stored")
	}
}

func TestNotifySignup(t *testing.T) {
	h := newHarness(t)

	out, err := h.invoke(NotifySignup(h.deps), map[string]any{"convo_id": "c1", "did": "did:plc:user1"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if out.(Status) != statusOK {
		t.Errorf("unexpected output %v", out)
	}
	if len(h.social.convoSent["c1"]) != 1 || len(h.social.left) != 1 {
		t.Errorf("expected message and leave, got %v %v", h.social.convoSent, h.social.left)
	}
}

// --- Set Watermark Image Tests ---

func TestIngestAndStore(t *testing.T) {
	h := newHarness(t)
	uri := "at://did:plc:author1/app.bsky.feed.post/w1"
	mark := testMarkPNG(t)
	h.social.posts[uri] = social.Post{
		URI: uri, CID: "bafyw1", AuthorDID: "did:plc:author1",
		Images: []social.Image{
			{Alt: "cat", Image: social.NewBlob("bafkcat", "image/png", 10)},
			{Alt: "fr", Image: social.NewBlob("bafkmark", "image/png", int64(len(mark))), AspectRatio: &social.AspectRatio{Width: 12, Height: 12}},
		},
	}
	h.social.blobs["bafkmark"] = mark

	out, err := h.invoke(IngestAndStore(h.deps), map[string]any{
		"cid": "bafyw1", "uri": uri, "author_did": "did:plc:author1", "created_at": "2025-03-16T11:33:24.416Z", "is_watermark": true,
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}

	meta := mustDecode[WatermarkMetadata](t, out)
	if meta.Path != "images/author1.png" || meta.DID != "did:plc:author1" || meta.Width != 12 {
		t.Errorf("unexpected metadata %+v", meta)
	}
	if got := mustGet(t, h.bucket(BucketWatermarks), "images/author1.png"); !bytes.Equal(got, mark) {
		t.Error("watermark image must be stored as is")
	}
	mustGet(t, h.bucket(BucketWatermarks), "metadatas/author1.json")
	if len(h.social.liked) != 1 {
		t.Error("post should be liked")
	}
}

func TestIngestAndStore_NoMarkedImage(t *testing.T) {
	h := newHarness(t)
	uri := "at://did:plc:author1/app.bsky.feed.post/w2"
	h.social.posts[uri] = social.Post{URI: uri, CID: "bafyw2", Images: []social.Image{{Alt: "dog"}}}

	_, err := h.invoke(IngestAndStore(h.deps), map[string]any{"uri": uri, "author_did": "did:plc:author1"})
	if !errors.Is(err, ErrNoWatermark) {
		t.Errorf("expected ErrNoWatermark, got %v", err)
	}
}

func TestNotifyWatermarkImage(t *testing.T) {
	h := newHarness(t)
	meta := WatermarkMetadata{DID: "did:plc:author1", Path: "images/author1.png"}

	if _, err := h.invoke(NotifyWatermarkImage(h.deps), meta); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if msgs := h.social.dms["did:plc:author1"]; len(msgs) != 1 || !strings.Contains(msgs[0], AltSkipWatermarking) {
		t.Errorf("unexpected dms %v", h.social.dms)
	}
}

// --- Watermarking Tests ---

const originalURI = "at://did:plc:author1/app.bsky.feed.post/p1"

// seedWatermarking готовит пост, водяной знак и регистрацию автора.
func seedWatermarking(t *testing.T, h *harness) {
	t.Helper()
	ctx := context.Background()

	h.social.posts[originalURI] = social.Post{
		URI: originalURI, CID: "bafypost", AuthorDID: "did:plc:author1", Text: "my art",
		Images: []social.Image{{Image: social.NewBlob("bafkimg0", "image/png", 1)}},
		Record: []byte(`{"uri":"` + originalURI + `","cid":"bafypost","value":{"text":"my art"}}`),
	}
	h.social.blobs["bafkimg0"] = testPNG(t, 60, 40)

	marks := h.bucket(BucketWatermarks)
	marks.Put(ctx, "images/author1.png", testMarkPNG(t))
	meta, _ := json.Marshal(WatermarkMetadata{DID: "did:plc:author1", Path: "images/author1.png"})
	marks.Put(ctx, "metadatas/author1.json", meta)

	sealer, _ := secrets.NewSealer(testKey)
	sealed, _ := sealer.Seal(userPasswd)
	info, _ := json.Marshal(UserInfo{DID: "did:plc:author1", AppPassword: sealed})
	h.bucket(BucketUserInfo).Put(ctx, "author1", info)
}

func postEvent() map[string]any {
	return map[string]any{
		"cid": "bafypost", "uri": originalURI, "author_did": "did:plc:author1", "created_at": "2025-03-12T15:40:40.957Z",
	}
}

func TestWatermarkingSteps(t *testing.T) {
	h := newHarness(t)
	seedWatermarking(t, h)

	out, err := h.invoke(FetchOriginalImage(h.deps), postEvent())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	job := mustDecode[WatermarkJob](t, out)
	if job.Metadata != "bafypost/author1/post.json" || len(job.ImagePaths) != 1 || job.ImagePaths[0] != "bafypost/author1/0.png" {
		t.Fatalf("unexpected job %+v", job)
	}
	if job.Post.Text != "my art" {
		t.Errorf("post text should be carried, got %q", job.Post.Text)
	}
	mustGet(t, h.bucket(BucketOriginals), job.Metadata)

	out, err = h.invoke(ApplyWatermark(h.deps), job)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	job = mustDecode[WatermarkJob](t, out)
	if len(job.OutImagePaths) != 1 || job.OutImagePaths[0] != "bafypost/author1/0.png" {
		t.Fatalf("unexpected out paths %v", job.OutImagePaths)
	}
	img, err := DecodeImage(mustGet(t, h.bucket(BucketWatermarked), job.OutImagePaths[0]))
	if err != nil {
		t.Fatalf("result must be a valid image: %v", err)
	}
	if img.Bounds().Dx() != 60 || img.Bounds().Dy() != 40 {
		t.Errorf("result must keep size, got %v", img.Bounds())
	}

	out, err = h.invoke(PublishResult(h.deps), job)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	job = mustDecode[WatermarkJob](t, out)
	if job.Repost == nil || job.Repost.URI == "" {
		t.Fatalf("expected repost, got %+v", job)
	}
	if len(h.social.created) != 1 || h.social.created[0].Text != "my art" || len(h.social.created[0].Images) != 1 {
		t.Errorf("unexpected created posts %+v", h.social.created)
	}
	if ar := h.social.created[0].Images[0].AspectRatio; ar == nil || ar.Width != 60 {
		t.Errorf("aspect ratio should come from the image, got %+v", ar)
	}
	if !containsString(h.dialer.dialed, "did:plc:author1:"+userPasswd) {
		t.Errorf("result must be published as the author, dialed %v", h.dialer.dialed)
	}

	out, err = h.invoke(DeleteOriginalPost(h.deps), job)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if res := out.(DeleteResult); res.Status != DeleteStatusSuccess || res.URI != originalURI {
		t.Errorf("unexpected result %+v", res)
	}
	if len(h.social.deleted) != 1 || h.social.deleted[0] != originalURI {
		t.Errorf("expected original deleted, got %v", h.social.deleted)
	}
}

func TestApplyWatermark_Idempotent(t *testing.T) {
	h := newHarness(t)
	seedWatermarking(t, h)

	out, _ := h.invoke(FetchOriginalImage(h.deps), postEvent())
	job := mustDecode[WatermarkJob](t, out)

	if _, err := h.invoke(ApplyWatermark(h.deps), job); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	first := mustGet(t, h.bucket(BucketWatermarked), "bafypost/author1/0.png")

	if _, err := h.invoke(ApplyWatermark(h.deps), job); err != nil {
		t.Fatalf("second apply: %v", err)
	}
	second := mustGet(t, h.bucket(BucketWatermarked), "bafypost/author1/0.png")

	if !bytes.Equal(first, second) {
		t.Error("watermarking the same input twice must store identical images")
	}
}

func TestApplyWatermark_AtMostFourImages(t *testing.T) {
	h := newHarness(t)
	seedWatermarking(t, h)
	ctx := context.Background()

	job := WatermarkJob{Post: PostRef{URI: originalURI, CID: "bafypost", AuthorDID: "did:plc:author1"}}
	for i := 0; i < 6; i++ {
		key := OriginalImageKey("bafypost", "author1", i, "image/png")
		h.bucket(BucketOriginals).Put(ctx, key, testPNG(t, 20, 20))
		job.ImagePaths = append(job.ImagePaths, key)
	}

	out, err := h.invoke(ApplyWatermark(h.deps), job)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if n := len(mustDecode[WatermarkJob](t, out).OutImagePaths); n != MaxImages {
		t.Errorf("expected %d images, got %d", MaxImages, n)
	}
}

func TestApplyWatermark_NoWatermark(t *testing.T) {
	h := newHarness(t)
	job := WatermarkJob{
		ImagePaths: []string{"bafy/nobody/0.png"},
		Post:       PostRef{URI: "at://did:plc:nobody/app.bsky.feed.post/x", AuthorDID: "did:plc:nobody"},
	}

	_, err := h.invoke(ApplyWatermark(h.deps), job)
	if !errors.Is(err, ErrNoWatermark) || worker.KindOf(err) != worker.KindInput {
		t.Errorf("expected input error ErrNoWatermark, got %v", err)
	}
}

func TestPublishResult_Idempotent(t *testing.T) {
	h := newHarness(t)
	seedWatermarking(t, h)

	out, _ := h.invoke(FetchOriginalImage(h.deps), postEvent())
	out, _ = h.invoke(ApplyWatermark(h.deps), out)

	first, err := h.invoke(PublishResult(h.deps), out)
	if err != nil {
		t.Fatalf("first publish: %v", err)
	}
	second, err := h.invoke(PublishResult(h.deps), out)
	if err != nil {
		t.Fatalf("second publish: %v", err)
	}

	if len(h.social.created) != 1 {
		t.Errorf("result must be published once, got %d posts", len(h.social.created))
	}
	a, b := mustDecode[WatermarkJob](t, first), mustDecode[WatermarkJob](t, second)
	if a.Repost.URI != b.Repost.URI {
		t.Errorf("expected same repost, got %s and %s", a.Repost.URI, b.Repost.URI)
	}
}

func TestPublishResult_NotRegistered(t *testing.T) {
	h := newHarness(t)
	h.bucket(BucketUserInfo).Put(context.Background(), "author2", []byte("{}"))

	job := WatermarkJob{
		Post:          PostRef{URI: "at://did:plc:author2/app.bsky.feed.post/x", CID: "bafy", AuthorDID: "did:plc:author2"},
		OutImagePaths: []string{"bafy/author2/0.png"},
	}
	_, err := h.invoke(PublishResult(h.deps), job)
	if !errors.Is(err, ErrNotRegistered) {
		t.Errorf("expected ErrNotRegistered, got %v", err)
	}
}

func TestDeleteOriginalPost_RollsBackRepost(t *testing.T) {
	h := newHarness(t)
	seedWatermarking(t, h)
	h.social.deleteErr[originalURI] = errors.New("repository unavailable")

	repost := social.StrongRef{URI: "at://did:plc:author1/app.bsky.feed.post/repost1", CID: "bafyrepost1"}
	job := WatermarkJob{
		Post:   PostRef{URI: originalURI, CID: "bafypost", AuthorDID: "did:plc:author1"},
		Repost: &repost,
	}

	out, err := h.invoke(DeleteOriginalPost(h.deps), job)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if res := out.(DeleteResult); res.Status != DeleteStatusRolledBack || res.URI != repost.URI {
		t.Errorf("unexpected result %+v", res)
	}
	if len(h.social.deleted) != 1 || h.social.deleted[0] != repost.URI {
		t.Errorf("expected repost deleted, got %v", h.social.deleted)
	}
}

func TestDeleteOriginalPost_FailsWithoutRepost(t *testing.T) {
	h := newHarness(t)
	seedWatermarking(t, h)
	h.social.deleteErr[originalURI] = errors.New("repository unavailable")

	job := WatermarkJob{Post: PostRef{URI: originalURI, AuthorDID: "did:plc:author1"}}
	_, err := h.invoke(DeleteOriginalPost(h.deps), job)
	if worker.KindOf(err) != worker.KindDependency || !worker.Retryable(err) {
		t.Errorf("expected retryable dependency error, got %v", err)
	}
}

// --- Signout Tests ---

func TestSignoutDiscovery_NothingPending(t *testing.T) {
	h := newHarness(t)
	h.social.follows = actors("did:plc:a", "did:plc:b")
	h.social.followers = actors("did:plc:a", "did:plc:b")

	out, err := h.invoke(SignoutDiscovery(h.deps), map[string]any{"pipeline": "signout"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if res := out.(DiscoveryResult); res.Unfollowers != 0 || res.NewFollowers != 0 {
		t.Errorf("unexpected result %+v", res)
	}
	if n := h.catalog.queues[QueueSignout].Len(); n != 0 {
		t.Errorf("nothing should be enqueued to signout, got %d", n)
	}
	if n := h.catalog.queues[QueueFollowed].Len(); n != 0 {
		t.Errorf("nothing should be enqueued to followed, got %d", n)
	}
}

func TestSignoutDiscovery_Enqueues(t *testing.T) {
	h := newHarness(t)
	h.catalog.secrets = secrets.NewStatic(secrets.Bundle{
		FernetKey:      testKey,
		BotUserID:      botHandle,
		BotAppPassword: "bot-pass",
		IgnoreListURI:  "at://did:plc:bot/app.bsky.graph.list/ignore",
		WhiteListURI:   "at://did:plc:bot/app.bsky.graph.list/broken",
	})
	h.social.lists["at://did:plc:bot/app.bsky.graph.list/ignore"] = []string{"did:plc:ignored"}
	h.social.follows = actors("did:plc:a", "did:plc:gone")
	h.social.followers = actors("did:plc:a", "did:plc:new", "did:plc:ignored")

	out, err := h.invoke(SignoutDiscovery(h.deps), nil)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if res := out.(DiscoveryResult); res.Unfollowers != 1 || res.NewFollowers != 1 {
		t.Errorf("unexpected result %+v", res)
	}

	ctx := context.Background()
	msgs, _ := h.catalog.queues[QueueSignout].Receive(ctx, 10)
	if len(msgs) != 1 || string(msgs[0].Body) != `{"did":"did:plc:gone"}` {
		t.Errorf("unexpected signout messages %+v", msgs)
	}
	msgs, _ = h.catalog.queues[QueueFollowed].Receive(ctx, 10)
	if len(msgs) != 1 || string(msgs[0].Body) != `{"did":"did:plc:new"}` {
		t.Errorf("unexpected followed messages %+v", msgs)
	}
}

func TestDeleteUserFiles(t *testing.T) {
	h := newHarness(t)
	h.bucket(BucketUserInfo).Put(context.Background(), "gone", []byte("{}"))

	if _, err := h.invoke(DeleteUserFiles(h.deps), map[string]any{"did": "did:plc:gone"}); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if exists, _ := h.bucket(BucketUserInfo).Exists(context.Background(), "gone"); exists {
		t.Error("user file should be deleted")
	}
}

func TestDeleteWatermarks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	marks := h.bucket(BucketWatermarks)

	// Отсутствующий водяной знак — не ошибка.
	if _, err := h.invoke(DeleteWatermarks(h.deps), map[string]any{"did": "did:plc:gone"}); err != nil {
		t.Fatalf("invoke without watermark: %v", err)
	}

	marks.Put(ctx, "images/gone.png", []byte("png"))
	meta, _ := json.Marshal(WatermarkMetadata{DID: "did:plc:gone", Path: "images/gone.png"})
	marks.Put(ctx, "metadatas/gone.json", meta)

	if _, err := h.invoke(DeleteWatermarks(h.deps), map[string]any{"did": "did:plc:gone"}); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if keys, _ := marks.List(ctx, ""); len(keys) != 0 {
		t.Errorf("watermark files should be deleted, left %v", keys)
	}
}

func TestSendUnfollowDM(t *testing.T) {
	h := newHarness(t)
	h.social.follows = actors("did:plc:gone")

	if _, err := h.invoke(SendUnfollowDM(h.deps), map[string]any{"did": "did:plc:gone"}); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if len(h.social.unfollowed) != 1 || len(h.social.dms["did:plc:gone"]) != 1 {
		t.Errorf("expected unfollow and dm, got %v %v", h.social.unfollowed, h.social.dms)
	}

	if _, err := h.invoke(SendUnfollowDM(h.deps), map[string]any{"did": "did:plc:stranger"}); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if len(h.social.unfollowed) != 1 || len(h.social.dms["did:plc:stranger"]) != 0 {
		t.Error("not followed account must be skipped")
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
