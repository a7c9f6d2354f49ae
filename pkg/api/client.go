// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api is the HTTP client for the chat service.
//
// This file contains the client itself: REST operations plus the stream
// opener. Idempotent GETs retry with exponential backoff on transport
// and 5xx failures; writes and the stream open are attempted once, since
// a live stream cannot be transparently retried.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/chatstream/pkg/chat"
)

var apiTracer = otel.Tracer("chatstream.api")

const (
	// defaultTimeout bounds every request, including stream reads.
	// Override via Config.Timeout for longer-lived streams.
	defaultTimeout = 5 * time.Minute

	// defaultMaxTries bounds retry attempts for idempotent GETs.
	defaultMaxTries = 3

	// maxErrorBodyBytes caps how much of an error response is read for
	// the error message.
	maxErrorBodyBytes = 8 * 1024
)

// =============================================================================
// HTTP Client Interface
// =============================================================================

// HTTPClient abstracts HTTP operations for testability.
//
// Production code uses the default implementation; tests inject mocks to
// exercise the client without network calls.
type HTTPClient interface {
	// Get performs a GET request with the given headers.
	Get(ctx context.Context, url string, headers map[string]string) (*http.Response, error)

	// Post performs a POST request with the given content type, body,
	// and headers.
	Post(ctx context.Context, url, contentType string, body io.Reader, headers map[string]string) (*http.Response, error)
}

// defaultHTTPClient wraps http.Client with context-aware requests.
type defaultHTTPClient struct {
	client *http.Client
}

func newDefaultHTTPClient(timeout time.Duration) *defaultHTTPClient {
	return &defaultHTTPClient{
		client: &http.Client{Timeout: timeout},
	}
}

func (c *defaultHTTPClient) Get(ctx context.Context, url string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.client.Do(req)
}

func (c *defaultHTTPClient) Post(ctx context.Context, url, contentType string, body io.Reader, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.client.Do(req)
}

// =============================================================================
// Client
// =============================================================================

// Config configures a Client.
//
// # Fields
//
//   - BaseURL: Required. Service root, e.g. "http://localhost:8080".
//   - Tokens: Optional bearer token source; requests go unauthorized
//     when nil or empty (development servers).
//   - HTTPClient: Optional transport override for tests.
//   - Timeout: Per-request bound; defaults to 5 minutes.
//   - RequestsPerSecond: Client-side rate limit for REST calls; zero
//     means unlimited.
//   - MaxTries: Retry attempts for idempotent GETs; defaults to 3.
type Config struct {
	BaseURL           string
	Tokens            TokenSource
	HTTPClient        HTTPClient
	Timeout           time.Duration
	RequestsPerSecond float64
	MaxTries          uint
}

// Client talks to the chat service.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type Client struct {
	baseURL  string
	http     HTTPClient
	tokens   TokenSource
	limiter  *rate.Limiter
	maxTries uint
}

// NewClient creates a client with defaults applied.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = newDefaultHTTPClient(timeout)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	maxTries := cfg.MaxTries
	if maxTries == 0 {
		maxTries = defaultMaxTries
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		http:     httpClient,
		tokens:   cfg.Tokens,
		limiter:  limiter,
		maxTries: maxTries,
	}
}

// =============================================================================
// Conversations
// =============================================================================

// ListConversations fetches one page of the conversation list.
func (c *Client) ListConversations(ctx context.Context, page, limit int) (*ConversationListResponse, error) {
	ctx, span := apiTracer.Start(ctx, "Client.ListConversations", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	endpoint := fmt.Sprintf("%s/v1/conversations?%s", c.baseURL, q.Encode())

	var out ConversationListResponse
	if err := c.getJSON(ctx, endpoint, &out); err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	return &out, nil
}

// CreateConversation creates a new conversation.
func (c *Client) CreateConversation(ctx context.Context, title string) (*chat.Conversation, error) {
	ctx, span := apiTracer.Start(ctx, "Client.CreateConversation", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	reqBody := CreateConversationRequest{Title: title}
	if err := apiValidate.Struct(&reqBody); err != nil {
		return nil, fmt.Errorf("invalid conversation request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/conversations", c.baseURL)

	var out chat.Conversation
	if err := c.postJSON(ctx, endpoint, &reqBody, &out); err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	return &out, nil
}

// =============================================================================
// Messages
// =============================================================================

// ListMessages fetches one history page for a conversation.
//
// # Inputs
//
//   - cursor: nil requests the newest page; otherwise the
//     before_message_index/before_created_at pair is sent as-is.
//   - limit: Page size.
//
// Satisfies chat.HistoryLister.
func (c *Client) ListMessages(ctx context.Context, conversationID string, cursor *chat.Cursor, limit int) (*chat.MessagePage, error) {
	ctx, span := apiTracer.Start(ctx, "Client.ListMessages", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if cursor != nil {
		q.Set("before_message_index", strconv.Itoa(cursor.BeforeMessageIndex))
		q.Set("before_created_at", strconv.FormatInt(cursor.BeforeCreatedAt, 10))
	}
	endpoint := fmt.Sprintf("%s/v1/conversations/%s/messages?%s",
		c.baseURL, url.PathEscape(conversationID), q.Encode())

	var out chat.MessagePage
	if err := c.getJSON(ctx, endpoint, &out); err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return &out, nil
}

// PostMessage posts a user message and returns the correlation id the
// server assigned for the turn.
func (c *Client) PostMessage(ctx context.Context, conversationID, content string) (string, error) {
	ctx, span := apiTracer.Start(ctx, "Client.PostMessage", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	reqBody := PostMessageRequest{Content: content}
	if err := apiValidate.Struct(&reqBody); err != nil {
		return "", fmt.Errorf("invalid message request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/conversations/%s/messages",
		c.baseURL, url.PathEscape(conversationID))

	var out PostMessageResponse
	if err := c.postJSON(ctx, endpoint, &reqBody, &out); err != nil {
		return "", fmt.Errorf("posting message: %w", err)
	}
	if out.RequestID == "" {
		return "", fmt.Errorf("posting message: accepted response carried no request_id")
	}
	return out.RequestID, nil
}

// =============================================================================
// Stream
// =============================================================================

// OpenStream opens the long-lived event stream for a conversation.
//
// # Outputs
//
//   - io.ReadCloser: The stream body; ownership passes to the caller.
//   - error: Non-nil on transport failure, non-success status, or a
//     missing body. Never retried here; a live stream cannot be
//     transparently resumed.
//
// Satisfies chat.StreamOpener.
func (c *Client) OpenStream(ctx context.Context, conversationID string) (io.ReadCloser, error) {
	ctx, span := apiTracer.Start(ctx, "Client.OpenStream", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	headers, err := c.authHeaders()
	if err != nil {
		return nil, err
	}
	headers["Accept"] = "text/event-stream"
	headers["Cache-Control"] = "no-cache"

	endpoint := fmt.Sprintf("%s/v1/conversations/%s/stream",
		c.baseURL, url.PathEscape(conversationID))

	resp, err := c.http.Get(ctx, endpoint, headers)
	if err != nil {
		return nil, fmt.Errorf("opening stream: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := readErrorBody(resp)
		resp.Body.Close()
		return nil, err
	}
	if resp.Body == nil {
		return nil, fmt.Errorf("opening stream: response had no body")
	}
	return resp.Body, nil
}

// =============================================================================
// Internal
// =============================================================================

// authHeaders builds the Authorization header from the token source.
// A missing credential omits the header; any other source error fails
// the request.
func (c *Client) authHeaders() (map[string]string, error) {
	headers := map[string]string{}
	if c.tokens == nil {
		return headers, nil
	}
	token, err := c.tokens.Token()
	if err != nil {
		if err == ErrNoToken {
			return headers, nil
		}
		return nil, fmt.Errorf("resolving bearer token: %w", err)
	}
	headers["Authorization"] = "Bearer " + token
	return headers, nil
}

// getJSON performs a rate-limited GET with retry and decodes the
// response into out.
func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := backoff.Retry(ctx, func() ([]byte, error) {
		headers, err := c.authHeaders()
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		resp, err := c.http.Get(ctx, endpoint, headers)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			err := readErrorBody(resp)
			if resp.StatusCode >= 500 {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		return data, nil
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(c.maxTries))
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// postJSON performs a rate-limited POST (no retry) and decodes the
// response into out.
func (c *Client) postJSON(ctx context.Context, endpoint string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	headers, err := c.authHeaders()
	if err != nil {
		return err
	}

	resp, err := c.http.Post(ctx, endpoint, "application/json", bytes.NewReader(payload), headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readErrorBody(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// readErrorBody turns a non-success response into an error carrying a
// bounded excerpt of the body.
func readErrorBody(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	msg := strings.TrimSpace(string(data))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return fmt.Errorf("server error (%d): %s", resp.StatusCode, msg)
}

// =============================================================================
// Compile-time Interface Checks
// =============================================================================

var (
	_ chat.HistoryLister = (*Client)(nil)
	_ chat.StreamOpener  = (*Client)(nil)
	_ HTTPClient         = (*defaultHTTPClient)(nil)
)
