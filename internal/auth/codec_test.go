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

func newTestCodec(t *testing.T, now func() time.Time) *auth.Codec {
	t.Helper()
	codec, err := auth.NewCodec(auth.CodecConfig{
		Secret:     []byte("test-secret"),
		Issuer:     "gatehouse",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		Now:        now,
	})
	require.NoError(t, err)
	return codec
}

func TestNewCodec(t *testing.T) {
	t.Run("rejects missing secret", func(t *testing.T) {
		_, err := auth.NewCodec(auth.CodecConfig{
			AccessTTL:  time.Minute,
			RefreshTTL: time.Hour,
		})
		assert.Error(t, err)
	})

	t.Run("rejects non-positive access TTL", func(t *testing.T) {
		_, err := auth.NewCodec(auth.CodecConfig{
			Secret:     []byte("secret"),
			AccessTTL:  0,
			RefreshTTL: time.Hour,
		})
		assert.Error(t, err)
	})

	t.Run("rejects non-positive refresh TTL", func(t *testing.T) {
		_, err := auth.NewCodec(auth.CodecConfig{
			Secret:     []byte("secret"),
			AccessTTL:  time.Minute,
			RefreshTTL: -time.Hour,
		})
		assert.Error(t, err)
	})
}

func TestCodecAccessRoundTrip(t *testing.T) {
	codec := newTestCodec(t, nil)
	principalID := ulid.Make()

	token, expiresAt, err := codec.IssueAccess(principalID, "alice", auth.RoleManager)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, 5*time.Second)

	result := codec.Verify(token)
	require.Equal(t, auth.StatusValid, result.Status)
	require.NotNil(t, result.Claims)
	assert.Equal(t, auth.TokenTypeAccess, result.Claims.TokenType)
	assert.Equal(t, "alice", result.Claims.Username)
	assert.Equal(t, auth.RoleManager, result.Claims.Role)
	assert.Equal(t, principalID.String(), result.Claims.Subject)
	assert.Equal(t, "gatehouse", result.Claims.Issuer)
}

func TestCodecRefreshRoundTrip(t *testing.T) {
	codec := newTestCodec(t, nil)
	principalID := ulid.Make()

	token, tokenID, expiresAt, err := codec.IssueRefresh(principalID)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), expiresAt, 5*time.Second)
	assert.NotEqual(t, ulid.ULID{}, tokenID)

	result := codec.Verify(token)
	require.Equal(t, auth.StatusValid, result.Status)
	assert.Equal(t, auth.TokenTypeRefresh, result.Claims.TokenType)
	assert.Equal(t, principalID.String(), result.Claims.Subject)
	assert.Equal(t, tokenID.String(), result.Claims.ID)
	assert.Empty(t, result.Claims.Username)
}

func TestCodecRefreshTokenIDsAreUnique(t *testing.T) {
	codec := newTestCodec(t, nil)
	principalID := ulid.Make()

	_, id1, _, err := codec.IssueRefresh(principalID)
	require.NoError(t, err)
	_, id2, _, err := codec.IssueRefresh(principalID)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
}

func TestCodecVerify(t *testing.T) {
	t.Run("missing token", func(t *testing.T) {
		codec := newTestCodec(t, nil)
		result := codec.Verify("")
		assert.Equal(t, auth.StatusMissing, result.Status)
		assert.Nil(t, result.Claims)
	})

	t.Run("garbage token is malformed", func(t *testing.T) {
		codec := newTestCodec(t, nil)
		result := codec.Verify("not.a.jwt")
		assert.Equal(t, auth.StatusMalformed, result.Status)
		assert.Nil(t, result.Claims)
	})

	t.Run("wrong secret is malformed", func(t *testing.T) {
		codec := newTestCodec(t, nil)
		other, err := auth.NewCodec(auth.CodecConfig{
			Secret:     []byte("other-secret"),
			Issuer:     "gatehouse",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
		})
		require.NoError(t, err)

		token, _, err := other.IssueAccess(ulid.Make(), "alice", auth.RoleMember)
		require.NoError(t, err)

		result := codec.Verify(token)
		assert.Equal(t, auth.StatusMalformed, result.Status)
	})

	t.Run("wrong issuer is malformed", func(t *testing.T) {
		codec := newTestCodec(t, nil)
		other, err := auth.NewCodec(auth.CodecConfig{
			Secret:     []byte("test-secret"),
			Issuer:     "someone-else",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
		})
		require.NoError(t, err)

		token, _, err := other.IssueAccess(ulid.Make(), "alice", auth.RoleMember)
		require.NoError(t, err)

		result := codec.Verify(token)
		assert.Equal(t, auth.StatusMalformed, result.Status)
	})

	t.Run("expired strictly after expiry", func(t *testing.T) {
		current := time.Now()
		now := func() time.Time { return current }
		codec := newTestCodec(t, now)

		token, expiresAt, err := codec.IssueAccess(ulid.Make(), "alice", auth.RoleMember)
		require.NoError(t, err)

		current = expiresAt.Add(-time.Second)
		assert.Equal(t, auth.StatusValid, codec.Verify(token).Status)

		current = expiresAt.Add(time.Second)
		assert.Equal(t, auth.StatusExpired, codec.Verify(token).Status)
	})

	t.Run("expired wins over any later claim check", func(t *testing.T) {
		current := time.Now()
		codec := newTestCodec(t, func() time.Time { return current })

		token, _, _, err := codec.IssueRefresh(ulid.Make())
		require.NoError(t, err)

		current = current.Add(8 * 24 * time.Hour)
		assert.Equal(t, auth.StatusExpired, codec.Verify(token).Status)
	})
}

func TestHashToken(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t, auth.HashToken("token-a"), auth.HashToken("token-a"))
	})

	t.Run("distinct inputs produce distinct hashes", func(t *testing.T) {
		assert.NotEqual(t, auth.HashToken("token-a"), auth.HashToken("token-b"))
	})

	t.Run("hex sha256 length", func(t *testing.T) {
		assert.Len(t, auth.HashToken("anything"), 64)
	})
}
