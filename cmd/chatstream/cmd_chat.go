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
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/chatstream/pkg/chat"
	"github.com/AleutianAI/chatstream/pkg/stream"
)

// maxDerivedTitleRunes caps conversation titles derived from the first
// message.
const maxDerivedTitleRunes = 60

func runChatCommand(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conv := chat.Conversation{Id: conversationID}
	if conv.Id == "" {
		created, err := client.CreateConversation(ctx, deriveTitle(messageText))
		if err != nil {
			return err
		}
		conv = *created
		fmt.Fprintf(os.Stderr, "Created conversation %s\n", conv.Id)
	}

	transcript := chat.NewTranscript(conv.Id)
	pager := chat.NewPager(client, transcript, cfg.PageLimit)

	// Repopulate from history when continuing an existing conversation.
	if conversationID != "" {
		if err := pager.LoadLatest(ctx); err != nil {
			slog.Warn("could not load history, continuing with empty transcript", "error", err)
		}
	}

	requestID, err := client.PostMessage(ctx, conv.Id, messageText)
	if err != nil {
		return err
	}

	// The optimistic pair must exist before the stream is bound, so the
	// first delta always finds its placeholder.
	transcript.BeginTurn(messageText, requestID)

	spinner := NewSpinner("queued")
	spinner.Start()

	var (
		stopSpinner sync.Once
		printedAny  bool
	)
	haltSpinner := func() { stopSpinner.Do(spinner.Stop) }
	defer haltSpinner()

	dispatcher := chat.NewDispatcher(transcript,
		chat.WithWarningFunc(func(text string) {
			fmt.Fprintf(os.Stderr, "\nwarning: %s\n", text)
		}),
		chat.WithCompletionFunc(func(tc chat.TurnCompletion) {
			// Refresh the list entry so preview and ordering track the
			// finished turn.
			if conv.ApplyCompletion(tc) {
				slog.Debug("conversation updated",
					"conversation_id", conv.Id,
					"preview", conv.LastMessagePreview)
			}
		}),
		chat.WithObserver(func(event stream.Event) {
			if event.RequestID != requestID {
				return
			}
			switch event.Type {
			case stream.EventProgress:
				if chat.StageSuppressesTyping(event.Stage) {
					haltSpinner()
					return
				}
				spinner.UpdateMessage(event.Stage)
			case stream.EventDelta:
				haltSpinner()
				printedAny = true
				fmt.Print(event.Content)
			case stream.EventDone, stream.EventError:
				haltSpinner()
			}
		}))

	controller := chat.NewController(client, stream.NewReader(stream.NewFrameDecoder()),
		chat.WithConnectionErrorFunc(func(err error) {
			fmt.Fprintf(os.Stderr, "\nconnection lost: %v\n", err)
		}))

	if err := controller.Bind(ctx, dispatcher); err != nil {
		return err
	}
	defer controller.Unbind()

	if err := controller.Wait(ctx); err != nil {
		return err
	}

	msg, ok := transcript.MessageByRequestID(requestID)
	if ok {
		// Fallback text is never streamed as deltas; print it here.
		if msg.Status == chat.StatusError && !printedAny {
			fmt.Print(msg.Content)
		}
		fmt.Println()
		printCitations(msg)
	}

	return controller.ConnectionErr()
}

// printCitations writes the citation footnotes for a finished message.
func printCitations(msg chat.Message) {
	if len(msg.Citations) == 0 {
		return
	}
	fmt.Println("\nCitations:")
	for _, c := range msg.Citations {
		label := c.Title
		if label == "" {
			label = c.SourceRef
		}
		if c.Similarity != 0 {
			fmt.Printf("%s %s (similarity: %.4f)\n", c.Key, label, c.Similarity)
			continue
		}
		fmt.Printf("%s %s\n", c.Key, label)
	}
}

// deriveTitle builds a conversation title from the first message.
func deriveTitle(message string) string {
	if utf8.RuneCountInString(message) <= maxDerivedTitleRunes {
		return message
	}
	runes := []rune(message)
	return string(runes[:maxDerivedTitleRunes])
}
