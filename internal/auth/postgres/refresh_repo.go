// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// RefreshTokenRepository implements auth.RefreshTokenStore using PostgreSQL.
// Rotation uses SELECT ... FOR UPDATE inside a transaction: the row lock is
// held from lookup until commit, so two requests racing to rotate the same
// token serialize and the loser observes the row already revoked.
type RefreshTokenRepository struct {
	db  DB
	now func() time.Time
}

// NewRefreshTokenRepository creates a new RefreshTokenRepository.
func NewRefreshTokenRepository(db DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db, now: time.Now}
}

// Insert stores a newly issued refresh token row.
func (r *RefreshTokenRepository) Insert(ctx context.Context, token *auth.RefreshToken) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO refresh_tokens (id, principal_id, token_hash, revoked, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		token.ID.String(),
		token.PrincipalID.String(),
		token.TokenHash,
		token.Revoked,
		token.ExpiresAt,
		token.CreatedAt,
	)
	if err != nil {
		return oops.Code("TOKEN_INSERT_FAILED").
			With("operation", "insert refresh token").
			With("principal_id", token.PrincipalID.String()).
			Wrap(err)
	}
	return nil
}

// Rotate atomically consumes the row for tokenHash and inserts next in the
// same transaction. The FOR UPDATE lock acquired by the lookup is held until
// commit.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, tokenHash string, next *auth.RefreshToken) (*auth.RefreshToken, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, oops.Code("TOKEN_ROTATE_FAILED").
			With("operation", "begin transaction").
			Wrap(err)
	}
	defer func() { _ = tx.Rollback(ctx) }() //nolint:errcheck // no-op after commit

	consumed, err := findForUpdate(ctx, tx, tokenHash)
	if err != nil {
		return nil, err
	}
	if consumed.Revoked {
		return nil, oops.Code("TOKEN_REVOKED").
			With("id", consumed.ID.String()).
			Wrap(auth.ErrTokenRevoked)
	}
	if consumed.IsExpiredAt(r.now()) {
		return nil, oops.Code("TOKEN_EXPIRED").
			With("id", consumed.ID.String()).
			Wrap(auth.ErrTokenExpired)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE WHERE id = $1
	`, consumed.ID.String()); err != nil {
		return nil, oops.Code("TOKEN_ROTATE_FAILED").
			With("operation", "revoke consumed token").
			With("id", consumed.ID.String()).
			Wrap(err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO refresh_tokens (id, principal_id, token_hash, revoked, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		next.ID.String(),
		next.PrincipalID.String(),
		next.TokenHash,
		next.Revoked,
		next.ExpiresAt,
		next.CreatedAt,
	); err != nil {
		return nil, oops.Code("TOKEN_ROTATE_FAILED").
			With("operation", "insert replacement token").
			With("id", next.ID.String()).
			Wrap(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, oops.Code("TOKEN_ROTATE_FAILED").
			With("operation", "commit rotation").
			Wrap(err)
	}

	consumed.Revoked = true
	return consumed, nil
}

// Revoke marks the row for tokenHash as revoked and returns it. Idempotent:
// an already-revoked row is returned unchanged.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, tokenHash string) (*auth.RefreshToken, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE
		WHERE token_hash = $1
		RETURNING id, principal_id, token_hash, revoked, expires_at, created_at
	`, tokenHash)

	token, err := scanRefreshToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("TOKEN_REVOKE_FAILED").
			With("operation", "revoke refresh token").
			Wrap(err)
	}
	return token, nil
}

// DeleteForPrincipal removes all rows owned by the principal.
func (r *RefreshTokenRepository) DeleteForPrincipal(ctx context.Context, principalID ulid.ULID) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM refresh_tokens WHERE principal_id = $1
	`, principalID.String())
	if err != nil {
		return oops.Code("TOKEN_DELETE_BY_PRINCIPAL_FAILED").
			With("operation", "delete refresh tokens by principal").
			With("principal_id", principalID.String()).
			Wrap(err)
	}
	// Deleting zero rows is a valid state.
	return nil
}

// DeleteExpired removes rows whose expiry passed before the cutoff and
// returns the count.
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `
		DELETE FROM refresh_tokens WHERE expires_at < $1
	`, cutoff)
	if err != nil {
		return 0, oops.Code("TOKEN_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired refresh tokens").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// findForUpdate looks up a row by token hash under an exclusive row lock.
// Valid only inside a transaction; the lock is released at commit or
// rollback.
func findForUpdate(ctx context.Context, tx pgx.Tx, tokenHash string) (*auth.RefreshToken, error) {
	row := tx.QueryRow(ctx, `
		SELECT id, principal_id, token_hash, revoked, expires_at, created_at
		FROM refresh_tokens
		WHERE token_hash = $1
		FOR UPDATE
	`, tokenHash)

	token, err := scanRefreshToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("TOKEN_FIND_FOR_UPDATE_FAILED").
			With("operation", "lock refresh token row").
			Wrap(err)
	}
	return token, nil
}

// scanRefreshToken scans a refresh token from a row.
func scanRefreshToken(row pgx.Row) (*auth.RefreshToken, error) {
	var t auth.RefreshToken
	var idStr, principalStr string

	if err := row.Scan(&idStr, &principalStr, &t.TokenHash, &t.Revoked, &t.ExpiresAt, &t.CreatedAt); err != nil {
		return nil, err
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("TOKEN_CORRUPT_ID").
			With("id", idStr).
			Wrap(err)
	}
	t.ID = id

	principalID, err := ulid.Parse(principalStr)
	if err != nil {
		return nil, oops.Code("TOKEN_CORRUPT_PRINCIPAL_ID").
			With("principal_id", principalStr).
			Wrap(err)
	}
	t.PrincipalID = principalID

	return &t, nil
}
