// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package api

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Static Token Source Tests
// =============================================================================

func TestStaticTokenSource(t *testing.T) {
	token, err := NewStaticTokenSource("secret").Token()

	require.NoError(t, err)
	assert.Equal(t, "secret", token)
}

func TestStaticTokenSource_Empty(t *testing.T) {
	_, err := NewStaticTokenSource("").Token()

	assert.ErrorIs(t, err, ErrNoToken)
}

// =============================================================================
// File Token Source Tests
// =============================================================================

func writeTokenFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestFileTokenSource_InitialRead(t *testing.T) {
	path := writeTokenFile(t, "  file-secret\n")

	src, err := NewFileTokenSource(path)
	require.NoError(t, err)
	defer src.Close()

	token, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "file-secret", token, "surrounding whitespace is trimmed")
}

func TestFileTokenSource_MissingFile(t *testing.T) {
	_, err := NewFileTokenSource(filepath.Join(t.TempDir(), "absent"))

	require.Error(t, err)
}

func TestFileTokenSource_Reload(t *testing.T) {
	path := writeTokenFile(t, "old-secret")

	src, err := NewFileTokenSource(path)
	require.NoError(t, err)
	defer src.Close()

	require.NoError(t, os.WriteFile(path, []byte("new-secret"), 0o600))
	require.NoError(t, src.Reload())

	token, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "new-secret", token)
}

func TestFileTokenSource_PicksUpRotation(t *testing.T) {
	path := writeTokenFile(t, "old-secret")

	src, err := NewFileTokenSource(path)
	require.NoError(t, err)
	defer src.Close()

	require.NoError(t, os.WriteFile(path, []byte("rotated-secret\n"), 0o600))

	assert.Eventually(t, func() bool {
		token, err := src.Token()
		return err == nil && token == "rotated-secret"
	}, 2*time.Second, 10*time.Millisecond, "watcher should pick up the rewrite")
}

func TestFileTokenSource_EmptyFile(t *testing.T) {
	path := writeTokenFile(t, "\n")

	src, err := NewFileTokenSource(path)
	require.NoError(t, err)
	defer src.Close()

	_, err = src.Token()
	assert.ErrorIs(t, err, ErrNoToken)
}
