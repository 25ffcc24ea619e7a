// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth_test

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/auth"
)

func TestNewRefreshToken(t *testing.T) {
	id := ulid.Make()
	principalID := ulid.Make()
	expiresAt := time.Now().Add(time.Hour)

	t.Run("creates valid token record", func(t *testing.T) {
		token, err := auth.NewRefreshToken(id, principalID, "hash", expiresAt)
		require.NoError(t, err)
		assert.Equal(t, id, token.ID)
		assert.Equal(t, principalID, token.PrincipalID)
		assert.Equal(t, "hash", token.TokenHash)
		assert.False(t, token.Revoked)
		assert.Equal(t, expiresAt, token.ExpiresAt)
		assert.False(t, token.CreatedAt.IsZero())
	})

	t.Run("rejects zero token ID", func(t *testing.T) {
		_, err := auth.NewRefreshToken(ulid.ULID{}, principalID, "hash", expiresAt)
		assert.Error(t, err)
	})

	t.Run("rejects zero principal ID", func(t *testing.T) {
		_, err := auth.NewRefreshToken(id, ulid.ULID{}, "hash", expiresAt)
		assert.Error(t, err)
	})

	t.Run("rejects empty token hash", func(t *testing.T) {
		_, err := auth.NewRefreshToken(id, principalID, "", expiresAt)
		assert.Error(t, err)
	})

	t.Run("rejects zero expiry", func(t *testing.T) {
		_, err := auth.NewRefreshToken(id, principalID, "hash", time.Time{})
		assert.Error(t, err)
	})
}

func TestRefreshTokenIsExpiredAt(t *testing.T) {
	expiresAt := time.Now().Add(time.Hour)
	token, err := auth.NewRefreshToken(ulid.Make(), ulid.Make(), "hash", expiresAt)
	require.NoError(t, err)

	assert.False(t, token.IsExpiredAt(expiresAt.Add(-time.Minute)))
	assert.False(t, token.IsExpiredAt(expiresAt))
	assert.True(t, token.IsExpiredAt(expiresAt.Add(time.Second)))
}
