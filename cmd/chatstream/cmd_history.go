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
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/chatstream/pkg/chat"
)

func runHistoryCommand(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	convID := args[0]

	transcript := chat.NewTranscript(convID)
	pager := chat.NewPager(client, transcript, limitFlag)

	if err := pager.LoadLatest(ctx); err != nil {
		return err
	}

	if olderFlag {
		added, err := pager.LoadOlder(ctx)
		if err != nil {
			return fmt.Errorf("loading older page: %w", err)
		}
		fmt.Printf("(fetched %d older messages)\n\n", added)
	}

	msgs := transcript.Messages()
	if len(msgs) == 0 {
		fmt.Println("No messages.")
		return nil
	}

	for _, msg := range msgs {
		ts := time.UnixMilli(msg.CreatedAt).Format("2006-01-02 15:04")
		fmt.Printf("[%s] %s: %s\n", ts, msg.Role, msg.Content)
		for _, c := range msg.Citations {
			fmt.Printf("    %s %s\n", c.Key, c.Title)
		}
	}

	if cursor := pager.Cursor(); cursor != nil {
		fmt.Printf("\n(older history available before index %d)\n", cursor.BeforeMessageIndex)
	}
	return nil
}
