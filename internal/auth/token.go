// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// RefreshToken is the persisted record of an issued refresh credential. The
// ID matches the credential's jti claim; the raw credential string is never
// stored, only its SHA256 hash. Rows are revoked rather than deleted so a
// consumed token can still be recognized when replayed.
type RefreshToken struct {
	ID          ulid.ULID
	PrincipalID ulid.ULID
	TokenHash   string
	Revoked     bool
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// NewRefreshToken creates a validated RefreshToken record.
func NewRefreshToken(id, principalID ulid.ULID, tokenHash string, expiresAt time.Time) (*RefreshToken, error) {
	if id.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("TOKEN_INVALID_ID").Errorf("token ID cannot be zero")
	}
	if principalID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("TOKEN_INVALID_PRINCIPAL").Errorf("principal ID cannot be zero")
	}
	if tokenHash == "" {
		return nil, oops.Code("TOKEN_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if expiresAt.IsZero() {
		return nil, oops.Code("TOKEN_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}

	return &RefreshToken{
		ID:          id,
		PrincipalID: principalID,
		TokenHash:   tokenHash,
		ExpiresAt:   expiresAt,
		CreatedAt:   time.Now(),
	}, nil
}

// IsExpiredAt reports whether the persisted expiry has passed at the given
// time. Deterministic counterpart for tests and store implementations.
func (t *RefreshToken) IsExpiredAt(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// RefreshTokenStore manages refresh token persistence. Implementations own
// the locking that serializes concurrent rotation attempts on the same token:
// two races on one token must resolve to exactly one successful rotation.
type RefreshTokenStore interface {
	// Insert stores a newly issued refresh token row.
	Insert(ctx context.Context, token *RefreshToken) error

	// Rotate atomically consumes the row identified by tokenHash and stores
	// next in its place: the row is looked up under an exclusive lock, marked
	// revoked, and next is inserted before the lock is released. The consumed
	// row is returned on success.
	//
	// Failures wrap ErrNotFound (no such row), ErrTokenRevoked (already
	// consumed — reuse of a rotated token), or ErrTokenExpired (persisted
	// expiry passed). In every failure case no new row is stored.
	Rotate(ctx context.Context, tokenHash string, next *RefreshToken) (*RefreshToken, error)

	// Revoke marks the row identified by tokenHash as revoked and returns the
	// current row. Revoking an already-revoked token is a no-op returning the
	// row. A missing row wraps ErrNotFound.
	Revoke(ctx context.Context, tokenHash string) (*RefreshToken, error)

	// DeleteForPrincipal removes all rows owned by the principal. Used on
	// account deletion; deleting zero rows is not an error.
	DeleteForPrincipal(ctx context.Context, principalID ulid.ULID) error

	// DeleteExpired removes rows whose expiry passed before the cutoff and
	// returns the count. Retention sweep: revoked-but-unexpired rows are kept
	// so replayed tokens stay recognizable.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
