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
)

func runConversationsCommand(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	resp, err := client.ListConversations(ctx, pageFlag, limitFlag)
	if err != nil {
		return err
	}

	if len(resp.Conversations) == 0 {
		fmt.Println("No conversations.")
		return nil
	}

	for _, conv := range resp.Conversations {
		updated := time.UnixMilli(conv.UpdatedAt).Format("2006-01-02 15:04")
		title := conv.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("%s  %s  %s\n", conv.Id, updated, title)
		if conv.LastMessagePreview != "" {
			fmt.Printf("    %s\n", conv.LastMessagePreview)
		}
	}
	fmt.Printf("\nPage %d of %d total conversations.\n", resp.Page, resp.Total)
	return nil
}
