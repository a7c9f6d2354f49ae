// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api is the HTTP client for the chat service: conversation and
// message CRUD, message posting, and event stream opening.
//
// This file contains request and response types with their validation
// rules.
package api

import (
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/chatstream/pkg/chat"
)

// =============================================================================
// Limits
// =============================================================================

const (
	// MaxMessageContentBytes is the maximum size of a posted message.
	// Mirrors the server-side limit so oversized sends fail fast.
	MaxMessageContentBytes = 32 * 1024 // 32KB

	// MaxTitleLength is the maximum conversation title length in runes.
	MaxTitleLength = 200
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// apiValidate is the validator instance for outbound request bodies.
// Initialized in init() with custom validators.
var apiValidate *validator.Validate

func init() {
	apiValidate = validator.New()
	_ = apiValidate.RegisterValidation("maxbytes", validateMaxBytes)
	_ = apiValidate.RegisterValidation("maxtitle", validateMaxTitle)
}

// validateMaxBytes enforces MaxMessageContentBytes on string fields.
// Checks byte length, not rune count, to match the server limit.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageContentBytes
}

// validateMaxTitle enforces MaxTitleLength in runes.
func validateMaxTitle(fl validator.FieldLevel) bool {
	return utf8.RuneCountInString(fl.Field().String()) <= MaxTitleLength
}

// =============================================================================
// Request Types
// =============================================================================

// CreateConversationRequest is the body for POST /v1/conversations.
type CreateConversationRequest struct {
	Title string `json:"title" validate:"maxtitle"`
}

// PostMessageRequest is the body for posting a user message.
//
// The server assigns the correlation id; the client only sends content.
type PostMessageRequest struct {
	Content string `json:"content" validate:"required,maxbytes"`
}

// =============================================================================
// Response Types
// =============================================================================

// ConversationListResponse is the paged conversation listing.
type ConversationListResponse struct {
	Conversations []chat.Conversation `json:"conversations"`
	Total         int                 `json:"total"`
	Page          int                 `json:"page"`
}

// PostMessageResponse is the accepted response for a posted message.
//
// RequestID is the correlation id used to bind the subsequent stream.
type PostMessageResponse struct {
	RequestID string `json:"request_id"`
}
