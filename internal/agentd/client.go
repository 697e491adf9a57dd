// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package agentd

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

	"golang.org/x/time/rate"
)

// Configuration constants for the agentd API.
const (
	// DefaultBaseURL is the address of a locally-running backend.
	DefaultBaseURL = "http://127.0.0.1:8000"

	// DefaultTimeout is the default timeout for non-streaming requests.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the default number of retry attempts for
	// transient errors on non-streaming requests.
	DefaultMaxRetries = 3

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay is the maximum delay for exponential backoff.
	retryMaxDelay = 10 * time.Second

	// MaxResponseSize caps non-streaming response bodies.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB
)

var (
	// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
	// Shared HTTP client for all plain request/response endpoints.
	sharedHTTPClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
		Timeout: DefaultTimeout,
	}

	// sharedStreamingClient is used for the turn stream. No client-level
	// timeout: the stream lives as long as its context.
	sharedStreamingClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
)

// Error variables for common API failures.
var (
	// ErrSessionNotFound indicates the backend has no such session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrServerUnavailable indicates the backend could not be reached.
	ErrServerUnavailable = errors.New("backend unavailable")
)

// APIError represents a non-2xx response from the backend.
type APIError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("agentd error (HTTP %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("agentd error (HTTP %d)", e.Status)
}

// Is allows APIError 404s to be matched with ErrSessionNotFound.
func (e *APIError) Is(target error) bool {
	return target == ErrSessionNotFound && e.Status == http.StatusNotFound
}

// =============================================================================
// WIRE TYPES
// =============================================================================

// SessionInfo is the session metadata returned by the list and create
// endpoints. The transcript is not part of this payload; messages are
// loaded lazily per session.
type SessionInfo struct {
	ID        string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MessageRecord is one persisted message as returned by the per-session
// message endpoint.
type MessageRecord struct {
	ID        string
	Role      string
	Content   string
	Timestamp time.Time
}

type sessionJSON struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type sessionsResponse struct {
	Sessions []sessionJSON `json:"sessions"`
}

type messageJSON struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Role      string `json:"role"`
	Timestamp string `json:"timestamp"`
}

type messagesResponse struct {
	Messages []messageJSON `json:"messages"`
}

type createSessionRequest struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// AgentTask is one saved background task as reported by the backend.
type AgentTask struct {
	ID          string
	Name        string
	Description string
	Task        string
	CreatedAt   time.Time
	LastResult  string
}

type agentTaskJSON struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Task        string `json:"task"`
	CreatedAt   string `json:"created_at"`
	LastResult  string `json:"last_result"`
}

type agentTasksResponse struct {
	Tasks []agentTaskJSON `json:"tasks"`
}

type createAgentTaskRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Task        string `json:"task"`
}

type appendMessageRequest struct {
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// timestampLayouts are tried in order when parsing backend timestamps. The
// backend stores them as text, so both RFC 3339 and the plain sqlite-style
// layout appear in the wild.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
}

// parseTimestamp parses a backend timestamp, returning the zero time for
// values no layout matches.
func parseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (j sessionJSON) toInfo() SessionInfo {
	return SessionInfo{
		ID:        j.ID,
		Title:     j.Title,
		CreatedAt: parseTimestamp(j.CreatedAt),
		UpdatedAt: parseTimestamp(j.UpdatedAt),
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client is a client for the agentd backend API.
type Client struct {
	baseURL    string
	maxRetries int
	logger     *slog.Logger

	// httpClient serves the plain request/response endpoints. It shares
	// the pooled transport; only the timeout varies per client.
	httpClient *http.Client

	// limiter paces turn sends so a stuck key cannot hammer the backend.
	limiter *rate.Limiter
}

// NewClient creates a client for the backend at baseURL. An empty baseURL
// falls back to DefaultBaseURL.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		maxRetries: DefaultMaxRetries,
		logger:     slog.Default(),
		httpClient: sharedHTTPClient,
		limiter:    rate.NewLimiter(rate.Limit(1), 2),
	}
}

// WithTimeout sets the per-request timeout for non-streaming endpoints.
// Non-positive values keep DefaultTimeout. The turn stream is unaffected;
// it is bounded by its context.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	if timeout > 0 {
		c.httpClient = &http.Client{
			Transport: sharedHTTPClient.Transport,
			Timeout:   timeout,
		}
	}
	return c
}

// WithMaxRetries sets the maximum number of retry attempts.
func (c *Client) WithMaxRetries(maxRetries int) *Client {
	c.maxRetries = maxRetries
	return c
}

// WithLogger sets the structured logger used for request logging.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	if logger != nil {
		c.logger = logger.With(slog.String("module", "agentd"))
	}
	return c
}

// WithSendLimit overrides the turn send pacing.
func (c *Client) WithSendLimit(limit rate.Limit, burst int) *Client {
	c.limiter = rate.NewLimiter(limit, burst)
	return c
}

// BaseURL returns the configured backend address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// logRequest logs an API request. Bodies are never logged.
func (c *Client) logRequest(req *http.Request) {
	c.logger.Debug("api request",
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path))
}

// logResponse logs an API response status and duration.
func (c *Client) logResponse(resp *http.Response, duration time.Duration) {
	c.logger.Debug("api response",
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", duration))
}

// =============================================================================
// SESSION ENDPOINTS
// =============================================================================

// ListSessions fetches all session metadata, most recently updated first.
func (c *Client) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	body, err := c.doWithRetry(ctx, http.MethodGet, "/api/chat_sessions", nil, "")
	if err != nil {
		return nil, err
	}

	var listResp sessionsResponse
	if err := json.Unmarshal(body, &listResp); err != nil {
		return nil, fmt.Errorf("failed to parse session list: %w", err)
	}

	infos := make([]SessionInfo, 0, len(listResp.Sessions))
	for _, s := range listResp.Sessions {
		infos = append(infos, s.toInfo())
	}
	return infos, nil
}

// LoadMessages fetches the full transcript of one session.
func (c *Client) LoadMessages(ctx context.Context, sessionID string) ([]MessageRecord, error) {
	path := "/api/chat_sessions/" + url.PathEscape(sessionID)
	body, err := c.doWithRetry(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}

	var msgResp messagesResponse
	if err := json.Unmarshal(body, &msgResp); err != nil {
		return nil, fmt.Errorf("failed to parse messages: %w", err)
	}

	records := make([]MessageRecord, 0, len(msgResp.Messages))
	for _, m := range msgResp.Messages {
		records = append(records, MessageRecord{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: parseTimestamp(m.Timestamp),
		})
	}
	return records, nil
}

// CreateSession registers a locally-created session with the backend.
//
// The body is JSON; if JSON encoding fails the request falls back to a
// URL-encoded form body, which the backend accepts for this endpoint.
func (c *Client) CreateSession(ctx context.Context, id, title string) (*SessionInfo, error) {
	var payload []byte
	contentType := "application/json"

	payload, err := json.Marshal(createSessionRequest{ID: id, Title: title})
	if err != nil {
		form := url.Values{}
		form.Set("id", id)
		form.Set("title", title)
		payload = []byte(form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	body, err := c.doWithRetry(ctx, http.MethodPost, "/api/chat_sessions", payload, contentType)
	if err != nil {
		return nil, err
	}

	var created sessionJSON
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("failed to parse created session: %w", err)
	}
	info := created.toInfo()
	return &info, nil
}

// DeleteSession removes a session and its messages from the backend.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	path := "/api/chat_sessions/" + url.PathEscape(sessionID)
	_, err := c.doWithRetry(ctx, http.MethodDelete, path, nil, "")
	return err
}

// AppendMessage persists one message to a session.
func (c *Client) AppendMessage(ctx context.Context, sessionID, role, content string, ts time.Time) error {
	payload, err := json.Marshal(appendMessageRequest{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Timestamp: ts.Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	_, err = c.doWithRetry(ctx, http.MethodPost, "/api/chat_message", payload, "application/json")
	return err
}

// =============================================================================
// AGENT TASK ENDPOINTS
// =============================================================================

// ListAgentTasks fetches the saved agent tasks, newest first.
func (c *Client) ListAgentTasks(ctx context.Context) ([]AgentTask, error) {
	body, err := c.doWithRetry(ctx, http.MethodGet, "/api/agent_tasks", nil, "")
	if err != nil {
		return nil, err
	}

	var taskResp agentTasksResponse
	if err := json.Unmarshal(body, &taskResp); err != nil {
		return nil, fmt.Errorf("failed to parse agent tasks: %w", err)
	}

	tasks := make([]AgentTask, 0, len(taskResp.Tasks))
	for _, j := range taskResp.Tasks {
		tasks = append(tasks, AgentTask{
			ID:          j.ID,
			Name:        j.Name,
			Description: j.Description,
			Task:        j.Task,
			CreatedAt:   parseTimestamp(j.CreatedAt),
			LastResult:  j.LastResult,
		})
	}
	return tasks, nil
}

// CreateAgentTask saves a new agent task and returns its assigned ID.
func (c *Client) CreateAgentTask(ctx context.Context, name, description, task string) (string, error) {
	payload, err := json.Marshal(createAgentTaskRequest{
		Name:        name,
		Description: description,
		Task:        task,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal task: %w", err)
	}

	body, err := c.doWithRetry(ctx, http.MethodPost, "/api/agent_tasks", payload, "application/json")
	if err != nil {
		return "", err
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("failed to parse created task: %w", err)
	}
	return created.ID, nil
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// doWithRetry performs a non-streaming request with retry and exponential
// backoff. 5xx responses and network errors are retried; 4xx responses and
// context cancellation are not.
func (c *Client) doWithRetry(ctx context.Context, method, path string, payload []byte, contentType string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		body, err := c.doRequest(ctx, method, path, payload, contentType)
		if err == nil {
			return body, nil
		}
		if !isRetryable(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// doRequest performs a single request against the backend.
func (c *Client) doRequest(ctx context.Context, method, path string, payload []byte, contentType string) ([]byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("User-Agent", "agentdeck/0.1.0")

	c.logRequest(req)
	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServerUnavailable, err)
	}
	defer resp.Body.Close()
	c.logResponse(resp, time.Since(startTime))

	body, err := readResponse(resp)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(resp.StatusCode, body)
	}
	return body, nil
}

// readResponse reads a response body with a size cap.
func readResponse(resp *http.Response) ([]byte, error) {
	limited := io.LimitReader(resp.Body, MaxResponseSize)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) == MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// newAPIError converts a non-2xx response into an APIError, pulling the
// FastAPI-style detail field out of the body when present.
func newAPIError(status int, body []byte) error {
	var detail struct {
		Detail string `json:"detail"`
	}
	message := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &detail); err == nil && detail.Detail != "" {
		message = detail.Detail
	}
	return &APIError{Status: status, Message: message}
}

// isRetryable determines if an error should trigger a retry.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 && apiErr.Status < 600
	}

	// Network errors are retryable.
	return errors.Is(err, ErrServerUnavailable)
}

// calculateBackoff returns the delay before the next retry attempt.
func calculateBackoff(attempt int) time.Duration {
	delay := retryBaseDelay * time.Duration(1<<uint(attempt))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}
