// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/chatstream/pkg/chat"
)

// =============================================================================
// Test Helpers
// =============================================================================

func newTestClient(t *testing.T, handler http.Handler, opts ...func(*Config)) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := Config{BaseURL: srv.URL}
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewClient(cfg)
}

func withToken(token string) func(*Config) {
	return func(cfg *Config) { cfg.Tokens = NewStaticTokenSource(token) }
}

// =============================================================================
// Conversation Tests
// =============================================================================

func TestClient_ListConversations(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/conversations", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))

		json.NewEncoder(w).Encode(ConversationListResponse{
			Conversations: []chat.Conversation{{Id: "conv-1", Title: "First"}},
			Total:         1,
			Page:          2,
		})
	}))

	out, err := client.ListConversations(context.Background(), 2, 10)

	require.NoError(t, err)
	require.Len(t, out.Conversations, 1)
	assert.Equal(t, "conv-1", out.Conversations[0].Id)
	assert.Equal(t, 2, out.Page)
}

func TestClient_CreateConversation(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/conversations", r.URL.Path)

		var req CreateConversationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "My chat", req.Title)

		json.NewEncoder(w).Encode(chat.Conversation{Id: "conv-new", Title: req.Title})
	}))

	conv, err := client.CreateConversation(context.Background(), "My chat")

	require.NoError(t, err)
	assert.Equal(t, "conv-new", conv.Id)
}

func TestClient_CreateConversation_TitleTooLong(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not reach the server")
	}))

	_, err := client.CreateConversation(context.Background(), strings.Repeat("x", MaxTitleLength+1))

	require.Error(t, err)
}

func TestClient_CreateConversation_TitleAtLimit(t *testing.T) {
	// The cap counts runes, not bytes.
	title := strings.Repeat("日", MaxTitleLength)
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chat.Conversation{Id: "conv-new", Title: title})
	}))

	conv, err := client.CreateConversation(context.Background(), title)

	require.NoError(t, err)
	assert.Equal(t, title, conv.Title)
}

// =============================================================================
// Message Tests
// =============================================================================

func TestClient_ListMessages_NewestPageOmitsCursor(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/conversations/conv-1/messages", r.URL.Path)
		assert.Equal(t, "20", r.URL.Query().Get("limit"))
		assert.False(t, r.URL.Query().Has("before_message_index"))
		assert.False(t, r.URL.Query().Has("before_created_at"))

		json.NewEncoder(w).Encode(chat.MessagePage{})
	}))

	_, err := client.ListMessages(context.Background(), "conv-1", nil, 20)

	require.NoError(t, err)
}

func TestClient_ListMessages_CursorPairSentTogether(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "41", r.URL.Query().Get("before_message_index"))
		assert.Equal(t, "1700000000000", r.URL.Query().Get("before_created_at"))

		idx := 21
		ts := int64(1699990000000)
		json.NewEncoder(w).Encode(chat.MessagePage{
			Messages:            []chat.Message{{Id: "m21"}},
			NextBeforeIndex:     &idx,
			NextBeforeCreatedAt: &ts,
		})
	}))

	cursor := &chat.Cursor{BeforeMessageIndex: 41, BeforeCreatedAt: 1700000000000}
	page, err := client.ListMessages(context.Background(), "conv-1", cursor, 20)

	require.NoError(t, err)
	require.NotNil(t, page.NextBeforeIndex)
	assert.Equal(t, 21, *page.NextBeforeIndex)
	next := page.NextCursor()
	require.NotNil(t, next)
	assert.Equal(t, 21, next.BeforeMessageIndex)
}

func TestClient_PostMessage(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/conversations/conv-1/messages", r.URL.Path)

		var req PostMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Hello", req.Content)

		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(PostMessageResponse{RequestID: "req-42"})
	}))

	requestID, err := client.PostMessage(context.Background(), "conv-1", "Hello")

	require.NoError(t, err)
	assert.Equal(t, "req-42", requestID)
}

func TestClient_PostMessage_EmptyContentRejectedLocally(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not reach the server")
	}))

	_, err := client.PostMessage(context.Background(), "conv-1", "")

	require.Error(t, err)
}

func TestClient_PostMessage_OversizedContentRejectedLocally(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not reach the server")
	}))

	_, err := client.PostMessage(context.Background(), "conv-1", strings.Repeat("a", MaxMessageContentBytes+1))

	require.Error(t, err)
}

func TestClient_PostMessage_MissingRequestID(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(PostMessageResponse{})
	}))

	_, err := client.PostMessage(context.Background(), "conv-1", "Hello")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "request_id")
}

// =============================================================================
// Stream Tests
// =============================================================================

func TestClient_OpenStream(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/conversations/conv-1/stream", r.URL.Path)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		assert.Equal(t, "no-cache", r.Header.Get("Cache-Control"))

		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"type\":\"done\"}\n\n")
	}), withToken("secret"))

	body, err := client.OpenStream(context.Background(), "conv-1")

	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"done"`)
}

func TestClient_OpenStream_NonSuccessStatus(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "stream unavailable", http.StatusServiceUnavailable)
	}))

	_, err := client.OpenStream(context.Background(), "conv-1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "server error (503)")
	assert.Contains(t, err.Error(), "stream unavailable")
}

// =============================================================================
// Auth and Retry Behavior
// =============================================================================

func TestClient_AttachesBearerToken(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(ConversationListResponse{})
	}), withToken("secret"))

	_, err := client.ListConversations(context.Background(), 1, 10)

	require.NoError(t, err)
}

func TestClient_OmitsAuthorizationWithoutToken(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(ConversationListResponse{})
	}), withToken(""))

	_, err := client.ListConversations(context.Background(), 1, 10)

	require.NoError(t, err)
}

func TestClient_GetRetriesServerErrors(t *testing.T) {
	attempts := 0
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			http.Error(w, "flaky", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(ConversationListResponse{Total: 7})
	}))

	out, err := client.ListConversations(context.Background(), 1, 10)

	require.NoError(t, err)
	assert.Equal(t, 7, out.Total)
	assert.Equal(t, 3, attempts)
}

func TestClient_GetDoesNotRetryClientErrors(t *testing.T) {
	attempts := 0
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "no such conversation", http.StatusNotFound)
	}))

	_, err := client.ListMessages(context.Background(), "conv-missing", nil, 20)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "server error (404)")
	assert.Equal(t, 1, attempts)
}

func TestClient_PostDoesNotRetry(t *testing.T) {
	attempts := 0
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "overloaded", http.StatusInternalServerError)
	}))

	_, err := client.PostMessage(context.Background(), "conv-1", "Hello")

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}
