package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shaiso/fooroh/internal/domain"
	"github.com/shaiso/fooroh/internal/queue"
	"github.com/shaiso/fooroh/internal/secrets"
	"github.com/shaiso/fooroh/internal/storage"
)

type fakeCatalog struct {
	buckets map[string]storage.Bucket
	queues  map[string]queue.Queue
	secrets secrets.Provider
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		buckets: map[string]storage.Bucket{
			"userinfo-files": storage.NewMemory("userinfo-files"),
			"watermarks":     storage.NewMemory("watermarks"),
		},
		queues: map[string]queue.Queue{
			"signout": queue.NewMemory("signout", queue.DefaultPolicy()),
		},
		secrets: secrets.NewStatic(secrets.Bundle{FernetKey: "k", BotUserID: "bot", BotAppPassword: "p"}),
	}
}

func (c *fakeCatalog) Bucket(name string) (storage.Bucket, bool) {
	b, ok := c.buckets[name]
	return b, ok
}

func (c *fakeCatalog) Queue(name string) (queue.Queue, bool) {
	q, ok := c.queues[name]
	return q, ok
}

func (c *fakeCatalog) Secrets() SecretProvider { return c.secrets }

func echo(env *Env) (Worker, error) {
	return Func(func(ctx context.Context, input any) (any, error) {
		return input, nil
	}), nil
}

// --- Bind Tests ---

func TestBind_ResolvesGrants(t *testing.T) {
	var captured *Env
	spec := Spec{
		Name: "touch-user-file",
		Grants: Grants{
			Buckets: map[string]BucketAccess{"userinfo-files": BucketReadWrite, "watermarks": BucketRead},
			Queues:  map[string]QueueAccess{"signout": QueueSend},
			Secret:  true,
		},
		New: func(env *Env) (Worker, error) {
			captured = env
			return echo(env)
		},
	}

	b, err := Bind(spec, newFakeCatalog(), nil)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	if b.Spec().Timeout != defaultTimeout {
		t.Errorf("expected default timeout, got %v", b.Spec().Timeout)
	}

	ctx := context.Background()

	userinfo, err := captured.Bucket("userinfo-files")
	if err != nil {
		t.Fatalf("bucket: %v", err)
	}
	if err := userinfo.Put(ctx, "abc", []byte("{}")); err != nil {
		t.Errorf("read/write bucket should accept Put: %v", err)
	}

	watermarks, _ := captured.Bucket("watermarks")
	if err := watermarks.Put(ctx, "images/a.png", nil); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("read-only bucket must reject Put, got %v", err)
	}
	if _, err := watermarks.List(ctx, ""); err != nil {
		t.Errorf("read-only bucket should allow List: %v", err)
	}

	if _, err := captured.Sender("signout"); err != nil {
		t.Errorf("sender: %v", err)
	}
	if _, err := captured.Sender("followed"); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("expected ErrAccessDenied for ungranted queue, got %v", err)
	}
	if _, err := captured.Queue("signout"); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("send grant must not allow consume, got %v", err)
	}

	bundle, err := captured.Secret(ctx)
	if err != nil || bundle.BotUserID != "bot" {
		t.Errorf("secret: %v", err)
	}
}

func TestBind_UnknownResource(t *testing.T) {
	tests := []struct {
		name   string
		grants Grants
	}{
		{"bucket", Grants{Buckets: map[string]BucketAccess{"missing": BucketRead}}},
		{"queue", Grants{Queues: map[string]QueueAccess{"missing": QueueSend}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Bind(Spec{Name: "w", Grants: tt.grants, New: echo}, newFakeCatalog(), nil)
			if !errors.Is(err, ErrUnknownResource) {
				t.Errorf("expected ErrUnknownResource, got %v", err)
			}
		})
	}
}

func TestBind_NoSecretGrant(t *testing.T) {
	var captured *Env
	_, err := Bind(Spec{Name: "w", New: func(env *Env) (Worker, error) {
		captured = env
		return echo(env)
	}}, newFakeCatalog(), nil)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	if _, err := captured.Secret(context.Background()); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("expected ErrAccessDenied, got %v", err)
	}
}

func TestBound_InvokeTimeout(t *testing.T) {
	slow := Spec{
		Name:    "slow",
		Timeout: 20 * time.Millisecond,
		New: func(env *Env) (Worker, error) {
			return Func(func(ctx context.Context, input any) (any, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			}), nil
		},
	}

	b, err := Bind(slow, newFakeCatalog(), nil)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}

	_, err = b.Invoke(context.Background(), nil)
	var werr *Error
	if !errors.As(err, &werr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if werr.Kind != KindTimeout || werr.Worker != "slow" {
		t.Errorf("unexpected error %+v", werr)
	}
}

// --- Error Tests ---

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"input", InputError(errors.New("bad did")), KindInput},
		{"dependency", DependencyError(errors.New("503")), KindDependency},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"plain", errors.New("boom"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify("send-dm", tt.err)
			if got.Kind != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got.Kind)
			}
			if got.Worker != "send-dm" {
				t.Errorf("expected worker name, got %q", got.Worker)
			}
		})
	}

	if !errors.Is(Classify("w", context.DeadlineExceeded), context.DeadlineExceeded) {
		t.Error("classified error should wrap original")
	}
	if Classify("w", nil) != nil {
		t.Error("nil error should classify to nil")
	}
}

func TestClassify_KeepsWrappingContext(t *testing.T) {
	base := errors.New("no blob in record")
	err := fmt.Errorf("decode post at://did:plc:a/7: %w", InputError(base))

	got := Classify("get-image-blob", err)
	if got.Kind != KindInput {
		t.Errorf("expected %s, got %s", KindInput, got.Kind)
	}
	if !strings.Contains(got.Error(), "decode post at://did:plc:a/7") {
		t.Errorf("wrapping context lost: %q", got.Error())
	}
	if !errors.Is(got, base) {
		t.Error("classified error should still wrap the original")
	}

	typed := DependencyError(base)
	if same := Classify("w", typed); same.Err != base {
		t.Errorf("typed error should keep its own cause, got %v", same.Err)
	}
}

func TestRetryable(t *testing.T) {
	if Retryable(InputError(errors.New("x"))) {
		t.Error("input errors are not retryable")
	}
	if !Retryable(DependencyError(errors.New("x"))) {
		t.Error("dependency errors are retryable")
	}
	if Retryable(nil) {
		t.Error("nil is not retryable")
	}
}

// --- Registry Tests ---

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a, _ := Bind(Spec{Name: "b-worker", New: echo}, newFakeCatalog(), nil)
	b, _ := Bind(Spec{Name: "a-worker", New: echo}, newFakeCatalog(), nil)

	if err := r.Register(a); err != nil {
		t.Fatalf("register: %v", err)
	}
	r.Register(b)

	if err := r.Register(a); !errors.Is(err, ErrDuplicateWorker) {
		t.Errorf("expected ErrDuplicateWorker, got %v", err)
	}
	if _, err := r.Get("missing"); !errors.Is(err, ErrUnknownWorker) {
		t.Errorf("expected ErrUnknownWorker, got %v", err)
	}

	names := r.Names()
	if len(names) != 2 || names[0] != "a-worker" {
		t.Errorf("unexpected names %v", names)
	}
}

// --- Remote Tests ---

func TestRemote_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get(HeaderWorker) != "follow-back" {
			t.Errorf("expected worker header, got %q", r.Header.Get(HeaderWorker))
		}
		var in map[string]any
		json.NewDecoder(r.Body).Decode(&in)
		json.NewEncoder(w).Encode(map[string]any{"did": in["did"]})
	}))
	defer server.Close()

	out, err := NewRemote("follow-back", server.URL, nil).Invoke(context.Background(), map[string]any{"did": "did:plc:abc"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	m, ok := out.(map[string]any)
	if !ok || m["did"] != "did:plc:abc" {
		t.Errorf("unexpected output %v", out)
	}
}

func TestRemote_ErrorStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{http.StatusBadRequest, KindInput},
		{http.StatusInternalServerError, KindDependency},
	}

	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			w.Write([]byte("nope"))
		}))

		_, err := NewRemote("w", server.URL, nil).Invoke(context.Background(), nil)
		if KindOf(err) != tt.want {
			t.Errorf("status %d: expected %s, got %v", tt.status, tt.want, err)
		}
		if !errors.Is(err, ErrRemoteWorker) {
			t.Errorf("status %d: expected ErrRemoteWorker", tt.status)
		}
		server.Close()
	}
}

func TestBound_Replace(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`"remote"`))
	}))
	defer server.Close()

	b, _ := Bind(Spec{Name: "w", New: echo}, newFakeCatalog(), nil)
	remote := b.Replace(NewRemote("w", server.URL, nil))

	out, err := remote.Invoke(context.Background(), "local")
	if err != nil || out != "remote" {
		t.Errorf("expected remote output, got %v, %v", out, err)
	}
	if remote.Name() != "w" {
		t.Errorf("replace must keep name")
	}
}

func TestParseRemotes(t *testing.T) {
	got, err := ParseRemotes("apply-watermark=http://img:8080/invoke, send-dm=http://dm/invoke")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got["apply-watermark"] != "http://img:8080/invoke" || got["send-dm"] != "http://dm/invoke" {
		t.Errorf("unexpected remotes %v", got)
	}

	if empty, _ := ParseRemotes(""); len(empty) != 0 {
		t.Errorf("expected empty map, got %v", empty)
	}
	if _, err := ParseRemotes("no-url"); err == nil {
		t.Error("expected error for malformed entry")
	}
}

// --- Retry Tests ---

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		name   string
		policy domain.RetryPolicy
		want   time.Duration
	}{
		{"retry once", domain.RetryOnce, time.Second},
		{"explicit delay", domain.RetryPolicy{MaxAttempts: 3, DelayMs: 250}, 250 * time.Millisecond},
		{"zero delay defaults", domain.RetryPolicy{MaxAttempts: 2}, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RetryDelay(tt.policy); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
