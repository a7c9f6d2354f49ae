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
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/chatstream/pkg/api"
	"github.com/AleutianAI/chatstream/pkg/config"
	"github.com/AleutianAI/chatstream/pkg/logging"
)

// cfg and client are populated by the persistent pre-run before any
// subcommand executes.
var (
	cfg    *config.Config
	client *api.Client

	// tokenSource is closed on exit when file-backed.
	tokenSource api.TokenSource
)

func main() {
	err := rootCmd.Execute()

	// Release the token file watcher on both exit paths.
	if closer, ok := tokenSource.(*api.FileTokenSource); ok {
		closer.Close()
	}

	if err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded

		if baseURLFlag != "" {
			cfg.BaseURL = baseURLFlag
		}
		if v := os.Getenv("CHATSTREAM_BASE_URL"); v != "" && baseURLFlag == "" {
			cfg.BaseURL = v
		}
		if v := os.Getenv("CHATSTREAM_TOKEN"); v != "" {
			cfg.Token = v
		}
		if verbose {
			cfg.LogLevel = "debug"
		}

		logging.Setup(logging.Config{
			Level:  cfg.LogLevel,
			Format: cfg.LogFormat,
		})

		tokenSource, err = buildTokenSource(cfg)
		if err != nil {
			return err
		}

		client = api.NewClient(api.Config{
			BaseURL:           cfg.BaseURL,
			Tokens:            tokenSource,
			Timeout:           cfg.Timeout(),
			RequestsPerSecond: cfg.RequestsPerSecond,
		})
		return nil
	}
}

// buildTokenSource picks the credential source from config. A token file
// wins over a static token so rotation keeps working.
func buildTokenSource(cfg *config.Config) (api.TokenSource, error) {
	if cfg.TokenFile != "" {
		src, err := api.NewFileTokenSource(config.ExpandPath(cfg.TokenFile))
		if err != nil {
			return nil, fmt.Errorf("initializing token file source: %w", err)
		}
		return src, nil
	}
	return api.NewStaticTokenSource(cfg.Token), nil
}
