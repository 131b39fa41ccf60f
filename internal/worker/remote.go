package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HeaderWorker — заголовок с именем вызываемого worker'а.
const HeaderWorker = "X-Fooroh-Worker"

// Remote — worker, реализованный HTTP endpoint'ом.
//
// Вход сериализуется в JSON и отправляется POST'ом; тело ответа 2xx
// разбирается как JSON результат. 4xx — ошибка входа, 5xx и сетевые
// ошибки — отказ зависимости.
type Remote struct {
	name   string
	url    string
	client *http.Client
}

// NewRemote создаёт удалённый worker. client == nil — http.DefaultClient;
// таймаут задаёт Bound через контекст.
func NewRemote(name, url string, client *http.Client) *Remote {
	if client == nil {
		client = http.DefaultClient
	}
	return &Remote{name: name, url: url, client: client}
}

// Invoke выполняет HTTP-вызов.
func (r *Remote) Invoke(ctx context.Context, input any) (any, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, InputError(fmt.Errorf("marshal input: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrRemoteWorker, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderWorker, r.name)

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, DependencyError(fmt.Errorf("%w: %v", ErrRemoteWorker, err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, DependencyError(fmt.Errorf("%w: read response: %v", ErrRemoteWorker, err))
	}

	if resp.StatusCode >= 400 {
		err := fmt.Errorf("%w: HTTP %d: %s", ErrRemoteWorker, resp.StatusCode, truncate(strings.TrimSpace(string(respBody)), 200))
		if resp.StatusCode < 500 {
			return nil, InputError(err)
		}
		return nil, DependencyError(err)
	}

	if len(bytes.TrimSpace(respBody)) == 0 {
		return nil, nil
	}

	var out any
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, DependencyError(fmt.Errorf("%w: decode response: %v", ErrRemoteWorker, err))
	}
	return out, nil
}

// ParseRemotes разбирает список "name=url,name=url".
func ParseRemotes(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, url, ok := strings.Cut(part, "=")
		name, url = strings.TrimSpace(name), strings.TrimSpace(url)
		if !ok || name == "" || url == "" {
			return nil, fmt.Errorf("invalid remote worker %q: expected name=url", part)
		}
		out[name] = url
	}
	return out, nil
}

// truncate обрезает строку до указанной длины.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
