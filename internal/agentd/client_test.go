// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package agentd

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewClientDefaults(t *testing.T) {
	c := NewClient("")
	if c.BaseURL() != DefaultBaseURL {
		t.Errorf("BaseURL() = %q, want %q", c.BaseURL(), DefaultBaseURL)
	}

	c = NewClient("http://example.com:9000/")
	if c.BaseURL() != "http://example.com:9000" {
		t.Errorf("trailing slash not stripped: %q", c.BaseURL())
	}
}

func TestListSessions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/chat_sessions" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"sessions": [
			{"id": "sess_a", "title": "First", "created_at": "2025-01-02T10:00:00Z", "updated_at": "2025-01-03T11:30:00Z"},
			{"id": "sess_b", "title": "Second", "created_at": "2025-01-01 09:00:00", "updated_at": "2025-01-02T08:00:00.123456"}
		]}`))
	}))
	defer srv.Close()

	infos, err := NewClient(srv.URL).ListSessions(context.Background())
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("got %d sessions, want 2", len(infos))
	}
	if infos[0].ID != "sess_a" || infos[0].Title != "First" {
		t.Errorf("infos[0] = %+v", infos[0])
	}
	if infos[0].UpdatedAt.IsZero() {
		t.Error("RFC3339 updated_at failed to parse")
	}
	// The backend also emits sqlite-style timestamps.
	if infos[1].CreatedAt.IsZero() || infos[1].UpdatedAt.IsZero() {
		t.Errorf("non-RFC3339 timestamps failed to parse: %+v", infos[1])
	}
}

func TestLoadMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat_sessions/sess_x" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"messages": [
			{"id": "m1", "role": "user", "content": "hi", "timestamp": "2025-01-01T00:00:00Z"},
			{"id": "m2", "role": "assistant", "content": "hello", "timestamp": "2025-01-01T00:00:05Z"}
		]}`))
	}))
	defer srv.Close()

	records, err := NewClient(srv.URL).LoadMessages(context.Background(), "sess_x")
	if err != nil {
		t.Fatalf("LoadMessages: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d messages, want 2", len(records))
	}
	if records[0].Role != "user" || records[0].Content != "hi" {
		t.Errorf("records[0] = %+v", records[0])
	}
	if records[1].Role != "assistant" {
		t.Errorf("records[1] = %+v", records[1])
	}
}

func TestLoadMessagesNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail": "Session not found"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).LoadMessages(context.Background(), "ghost")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T", err)
	}
	if apiErr.Message != "Session not found" {
		t.Errorf("detail not extracted: %q", apiErr.Message)
	}
}

func TestCreateSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/chat_sessions" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		var req createSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if req.ID != "sess_new" || req.Title != "Untitled Chat" {
			t.Errorf("request = %+v", req)
		}
		w.Write([]byte(`{"id": "sess_new", "title": "Untitled Chat", "created_at": "2025-06-01T12:00:00Z", "updated_at": "2025-06-01T12:00:00Z"}`))
	}))
	defer srv.Close()

	info, err := NewClient(srv.URL).CreateSession(context.Background(), "sess_new", "Untitled Chat")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if info.ID != "sess_new" || info.Title != "Untitled Chat" {
		t.Errorf("info = %+v", info)
	}
}

func TestDeleteSession(t *testing.T) {
	var called atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/api/chat_sessions/sess_gone" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		called.Store(true)
		w.Write([]byte(`{"status": "deleted"}`))
	}))
	defer srv.Close()

	if err := NewClient(srv.URL).DeleteSession(context.Background(), "sess_gone"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if !called.Load() {
		t.Error("delete endpoint was not called")
	}
}

func TestAppendMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat_message" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req appendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if req.SessionID != "sess_1" || req.Role != "user" || req.Content != "hello" {
			t.Errorf("request = %+v", req)
		}
		if _, err := time.Parse(time.RFC3339, req.Timestamp); err != nil {
			t.Errorf("timestamp %q is not RFC3339: %v", req.Timestamp, err)
		}
		w.Write([]byte(`{"status": "ok"}`))
	}))
	defer srv.Close()

	err := NewClient(srv.URL).AppendMessage(context.Background(), "sess_1", "user", "hello", time.Now())
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
}

func TestListAgentTasks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/agent_tasks" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"tasks": [
			{"id": "task_1", "name": "digest", "description": null, "task": "summarize inbox", "created_at": "2025-05-01 08:00:00", "last_result": null},
			{"id": "task_2", "name": "report", "description": "weekly", "task": "write report", "created_at": "2025-04-01T08:00:00Z", "last_result": "done"}
		]}`))
	}))
	defer srv.Close()

	tasks, err := NewClient(srv.URL).ListAgentTasks(context.Background())
	if err != nil {
		t.Fatalf("ListAgentTasks: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(tasks))
	}
	if tasks[0].Name != "digest" || tasks[0].Task != "summarize inbox" {
		t.Errorf("tasks[0] = %+v", tasks[0])
	}
	// Null description and last_result decode as empty strings.
	if tasks[0].Description != "" || tasks[0].LastResult != "" {
		t.Errorf("null fields not empty: %+v", tasks[0])
	}
	if tasks[1].LastResult != "done" || tasks[1].CreatedAt.IsZero() {
		t.Errorf("tasks[1] = %+v", tasks[1])
	}
}

func TestCreateAgentTask(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/agent_tasks" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req createAgentTaskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if req.Name != "digest" || req.Task != "summarize inbox" {
			t.Errorf("request = %+v", req)
		}
		w.Write([]byte(`{"id": "task_123", "status": "created"}`))
	}))
	defer srv.Close()

	id, err := NewClient(srv.URL).CreateAgentTask(context.Background(), "digest", "", "summarize inbox")
	if err != nil {
		t.Fatalf("CreateAgentTask: %v", err)
	}
	if id != "task_123" {
		t.Errorf("id = %q", id)
	}
}

func TestWithTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write([]byte(`{"sessions": []}`))
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(srv.URL).WithMaxRetries(1).WithTimeout(50 * time.Millisecond)
	_, err := c.ListSessions(context.Background())
	if !errors.Is(err, ErrServerUnavailable) {
		t.Fatalf("err = %v, want ErrServerUnavailable from timeout", err)
	}
}

func TestRetryOn5xx(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"sessions": []}`))
	}))
	defer srv.Close()

	infos, err := NewClient(srv.URL).ListSessions(context.Background())
	if err != nil {
		t.Fatalf("ListSessions after retries: %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("got %d sessions", len(infos))
	}
	if attempts.Load() != 3 {
		t.Errorf("attempts = %d, want 3", attempts.Load())
	}
}

func TestNoRetryOn4xx(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).ListSessions(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts.Load() != 1 {
		t.Errorf("attempts = %d, want 1 (no retry on client error)", attempts.Load())
	}
}

func TestRetryExhaustion(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).WithMaxRetries(2).ListSessions(context.Background())
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts.Load() != 2 {
		t.Errorf("attempts = %d, want 2", attempts.Load())
	}
}

func TestAPIErrorIs(t *testing.T) {
	notFound := &APIError{Status: http.StatusNotFound, Message: "gone"}
	if !errors.Is(notFound, ErrSessionNotFound) {
		t.Error("404 APIError should match ErrSessionNotFound")
	}

	serverErr := &APIError{Status: http.StatusInternalServerError}
	if errors.Is(serverErr, ErrSessionNotFound) {
		t.Error("500 APIError should not match ErrSessionNotFound")
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		input    string
		wantZero bool
	}{
		{"2025-01-02T10:00:00Z", false},
		{"2025-01-02T10:00:00.123456789Z", false},
		{"2025-01-02T10:00:00.999999", false},
		{"2025-01-02 10:00:00", false},
		{"not a timestamp", true},
		{"", true},
	}
	for _, tt := range tests {
		got := parseTimestamp(tt.input)
		if got.IsZero() != tt.wantZero {
			t.Errorf("parseTimestamp(%q).IsZero() = %v, want %v", tt.input, got.IsZero(), tt.wantZero)
		}
	}
}

func TestCalculateBackoff(t *testing.T) {
	if d := calculateBackoff(1); d != 1*time.Second {
		t.Errorf("attempt 1 backoff = %v", d)
	}
	if d := calculateBackoff(10); d != retryMaxDelay {
		t.Errorf("backoff not capped: %v", d)
	}
}
