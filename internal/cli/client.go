package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// PipelineResponse — пайплайн из API.
type PipelineResponse struct {
	Name    string         `json:"name"`
	Queue   string         `json:"queue,omitempty"`
	Timeout string         `json:"timeout"`
	Steps   []string       `json:"steps"`
	Timer   *TimerResponse `json:"timer,omitempty"`
}

// TimerResponse — таймер пайплайна из API.
type TimerResponse struct {
	Worker     string `json:"worker"`
	Schedule   string `json:"schedule"`
	Enabled    bool   `json:"enabled"`
	Ticks      int64  `json:"ticks"`
	LastTickAt string `json:"last_tick_at,omitempty"`
	NextTickAt string `json:"next_tick_at,omitempty"`
	LastError  string `json:"last_error,omitempty"`
}

// ExecutionResponse — execution из API.
type ExecutionResponse struct {
	ID         string          `json:"id"`
	Pipeline   string          `json:"pipeline"`
	Status     string          `json:"status"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	Error      string          `json:"error,omitempty"`
	Steps      []StepResponse  `json:"steps,omitempty"`
	StartedAt  string          `json:"started_at,omitempty"`
	FinishedAt string          `json:"finished_at,omitempty"`
	CreatedAt  string          `json:"created_at"`
}

// StepResponse — шаг execution'а из API.
type StepResponse struct {
	Name       string `json:"name"`
	Worker     string `json:"worker"`
	Status     string `json:"status"`
	Attempts   int    `json:"attempts"`
	Error      string `json:"error,omitempty"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
}

// StartedResponse — ответ на ручной запуск.
type StartedResponse struct {
	ExecutionID string `json:"execution_id"`
	Pipeline    string `json:"pipeline"`
}

// DeadLetterResponse — сообщение dead-letter очереди из API.
type DeadLetterResponse struct {
	ID             string          `json:"id"`
	SourceQueue    string          `json:"source_queue"`
	Body           json.RawMessage `json:"body"`
	ReceiveCount   int             `json:"receive_count"`
	Reason         string          `json:"reason,omitempty"`
	EnqueuedAt     string          `json:"enqueued_at"`
	DeadLetteredAt string          `json:"dead_lettered_at"`
}

// ListExecutionsOpts — параметры фильтрации execution'ов.
type ListExecutionsOpts struct {
	Pipeline string
	Status   string
	Limit    int
}

// envelope — общий вид тела ответа API.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
	Error *APIError       `json:"error"`
}

// APIError — ошибка, которую вернул сервер.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// --- Client ---

// Client — HTTP-клиент для API fooroh.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// --- Pipelines ---

// ListPipelines возвращает пайплайны.
func (c *Client) ListPipelines(ctx context.Context) ([]PipelineResponse, error) {
	var pipelines []PipelineResponse
	err := c.call(ctx, http.MethodGet, "/api/v1/pipelines", nil, nil, &pipelines)
	return pipelines, err
}

// StartExecution запускает execution пайплайна. input может быть nil.
func (c *Client) StartExecution(ctx context.Context, pipeline string, input json.RawMessage) (*StartedResponse, error) {
	body := map[string]json.RawMessage{}
	if len(input) > 0 {
		body["input"] = input
	}
	var started StartedResponse
	err := c.call(ctx, http.MethodPost, "/api/v1/pipelines/"+url.PathEscape(pipeline)+"/executions", nil, body, &started)
	return &started, err
}

// --- Executions ---

// ListExecutions возвращает execution'ы с фильтрацией.
func (c *Client) ListExecutions(ctx context.Context, opts ListExecutionsOpts) ([]ExecutionResponse, error) {
	q := url.Values{}
	if opts.Pipeline != "" {
		q.Set("pipeline", opts.Pipeline)
	}
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}

	var execs []ExecutionResponse
	err := c.call(ctx, http.MethodGet, "/api/v1/executions", q, nil, &execs)
	return execs, err
}

// GetExecution возвращает execution по ID.
func (c *Client) GetExecution(ctx context.Context, id string) (*ExecutionResponse, error) {
	var exec ExecutionResponse
	err := c.call(ctx, http.MethodGet, "/api/v1/executions/"+url.PathEscape(id), nil, nil, &exec)
	return &exec, err
}

// --- Queues ---

// ListDeadLetters возвращает сообщения dead-letter очереди.
func (c *Client) ListDeadLetters(ctx context.Context, queue string, limit int) ([]DeadLetterResponse, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var msgs []DeadLetterResponse
	err := c.call(ctx, http.MethodGet, "/api/v1/queues/"+url.PathEscape(queue)+"/dead-letters", q, nil, &msgs)
	return msgs, err
}

// call выполняет запрос и раскладывает поле data ответа в out.
// Ответ со статусом >= 400 превращается в *APIError.
func (c *Client) call(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	if resp.StatusCode >= http.StatusBadRequest {
		if decodeErr != nil || env.Error == nil {
			return &APIError{Status: resp.StatusCode, Code: "HTTP_" + strconv.Itoa(resp.StatusCode), Message: resp.Status}
		}
		env.Error.Status = resp.StatusCode
		return env.Error
	}
	if decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

// IsNotFound сообщает, что сервер ответил 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
