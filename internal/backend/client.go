// ABOUTME: HTTP client for the conversational backend
// ABOUTME: Thread list/history/delete calls plus opening the chat event stream

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrTransport marks failures where a request could not be sent or its
// connection failed before a usable response arrived.
var ErrTransport = errors.New("transport failure")

// maxErrorBody caps how much of a failed response body is read for the error message.
const maxErrorBody = 4 << 10

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: backend returned status %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: backend returned status %d", e.Op, e.StatusCode)
}

// Client communicates with the backend HTTP API.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	token          string
	requestTimeout time.Duration
	logger         *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithToken sends the token as a bearer credential on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the underlying http.Client. Its Timeout should be zero,
// otherwise long streams are cut off.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRequestTimeout bounds ListThreads, History and DeleteThread. Zero disables it.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) { c.requestTimeout = d }
}

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger.With("component", "backend")
		}
	}
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{},
		logger:     slog.Default().With("component", "backend"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListThreads fetches the known threads in backend order.
func (c *Client) ListThreads(ctx context.Context) ([]Thread, error) {
	var out ThreadsResponse
	if err := c.getJSON(ctx, "list threads", "/threads", &out); err != nil {
		return nil, err
	}
	if out.Threads == nil {
		return []Thread{}, nil
	}
	return out.Threads, nil
}

// History fetches the committed message history of a thread.
func (c *Client) History(ctx context.Context, threadID string) ([]Message, error) {
	var out HistoryResponse
	path := "/thread/" + url.PathEscape(threadID) + "/history"
	if err := c.getJSON(ctx, "load history", path, &out); err != nil {
		return nil, err
	}
	if out.Messages == nil {
		return []Message{}, nil
	}
	return out.Messages, nil
}

// DeleteThread asks the backend to delete a thread. The response body is ignored.
func (c *Client) DeleteThread(ctx context.Context, threadID string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodDelete, "/thread/"+url.PathEscape(threadID), nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete thread: %w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.statusError("delete thread", resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// OpenStream posts a chat message and returns the streamed response body.
// The caller must close the body; cancelling ctx aborts the stream. Any failure
// to establish the stream, including a non-2xx status, wraps ErrTransport.
func (c *Client) OpenStream(ctx context.Context, chat ChatRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(chat)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/chat/stream", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w: %w", ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, fmt.Errorf("%w: %w", ErrTransport, c.statusError("open stream", resp))
	}

	c.logger.Debug("stream opened", "thread_id", chat.ThreadID, "status", resp.StatusCode)
	return resp.Body, nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, out any) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.statusError(op, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: parsing response: %w", op, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.requestTimeout)
}

// statusError extracts an error message from a non-2xx response.
func (c *Client) statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	msg := strings.TrimSpace(string(body))
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var errResp struct {
			Error  string `json:"error"`
			Detail string `json:"detail"`
		}
		if json.Unmarshal(body, &errResp) == nil {
			switch {
			case errResp.Error != "":
				msg = errResp.Error
			case errResp.Detail != "":
				msg = errResp.Detail
			}
		}
	}

	c.logger.Debug("backend error response", "op", op, "status", resp.StatusCode)
	return &StatusError{Op: op, StatusCode: resp.StatusCode, Message: msg}
}
