// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath     string
	baseURLFlag    string
	verbose        bool
	conversationID string
	messageText    string
	pageFlag       int
	limitFlag      int
	olderFlag      bool

	rootCmd = &cobra.Command{
		Use:   "chatstream",
		Short: "A cli for streaming chat against an Aleutian chat service",
		Long: `chatstream talks to a streaming chat service: it posts messages,
follows the server-pushed event stream for the answer, and pages
backwards through conversation history.`,
	}

	chatCmd = &cobra.Command{
		Use:   "chat",
		Short: "Send a message and stream the assistant's answer",
		RunE:  runChatCommand, // Defined in cmd_chat.go
	}

	conversationsCmd = &cobra.Command{
		Use:     "conversations",
		Short:   "List conversations",
		Aliases: []string{"convs"},
		RunE:    runConversationsCommand, // Defined in cmd_conversations.go
	}

	historyCmd = &cobra.Command{
		Use:   "history [conversation-id]",
		Short: "Show conversation history, newest page first",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryCommand, // Defined in cmd_history.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default ~/.config/chatstream/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&baseURLFlag, "base-url", "", "Chat service base URL (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	chatCmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "Conversation to continue (created when omitted)")
	chatCmd.Flags().StringVarP(&messageText, "message", "m", "", "Message to send (required)")
	_ = chatCmd.MarkFlagRequired("message")

	conversationsCmd.Flags().IntVar(&pageFlag, "page", 1, "Page number")
	conversationsCmd.Flags().IntVar(&limitFlag, "limit", 20, "Page size")

	historyCmd.Flags().IntVar(&limitFlag, "limit", 20, "Page size")
	historyCmd.Flags().BoolVar(&olderFlag, "older", false, "Also fetch one older page after the newest")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(conversationsCmd)
	rootCmd.AddCommand(historyCmd)
}
