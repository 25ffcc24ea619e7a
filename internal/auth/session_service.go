// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// TokenPair bundles a freshly minted access and refresh credential with their
// expiries. The expiries let the transport layer derive cookie lifetimes.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Session is the result of login or registration: the principal and its
// first credential pair.
type Session struct {
	Principal *Principal
	Pair      TokenPair
}

// dummyPasswordHash is used when a user doesn't exist to prevent timing
// attacks. We still run password verification to make response time
// consistent. This is NOT a real credential - it's a fake hash that will
// never match any password.
//
//nolint:gosec // G101: intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// SessionService orchestrates the session lifecycle: registration, login,
// logout, and the request-time verify-or-silently-renew decision. It is the
// only component that decides to mint, rotate, or revoke credentials.
type SessionService struct {
	principals PrincipalRepository
	tokens     RefreshTokenStore
	hasher     PasswordHasher
	codec      *Codec
	logger     *slog.Logger
}

// NewSessionService creates a SessionService. All dependencies are required;
// a nil logger falls back to slog.Default.
func NewSessionService(principals PrincipalRepository, tokens RefreshTokenStore, hasher PasswordHasher, codec *Codec, logger *slog.Logger) (*SessionService, error) {
	if principals == nil {
		return nil, oops.Errorf("principal repository is required")
	}
	if tokens == nil {
		return nil, oops.Errorf("refresh token store is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if codec == nil {
		return nil, oops.Errorf("credential codec is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionService{
		principals: principals,
		tokens:     tokens,
		hasher:     hasher,
		codec:      codec,
		logger:     logger,
	}, nil
}

// Register creates a principal with a hashed password and issues its first
// session. A username collision wraps ErrDuplicateUsername.
func (s *SessionService) Register(ctx context.Context, username, password string) (*Session, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	principal, err := NewPrincipal(username, hash, RoleMember)
	if err != nil {
		return nil, err
	}

	if err := s.principals.Create(ctx, principal); err != nil {
		return nil, err
	}

	session, err := s.issueSession(ctx, principal)
	if err != nil {
		return nil, err
	}
	s.logger.Info("principal registered", "principal_id", principal.ID.String(), "username", username)
	return session, nil
}

// Login verifies the username and password and issues a fresh session.
// Failure is always ErrInvalidCredentials, without revealing whether the
// username exists. Uses constant-time operations to prevent timing-based
// username enumeration.
func (s *SessionService) Login(ctx context.Context, username, password string) (*Session, error) {
	principal, lookupErr := s.principals.GetByUsername(ctx, username)

	// Verify against a dummy hash when the user is absent to keep response
	// time consistent.
	targetHash := dummyPasswordHash
	exists := false
	if lookupErr == nil {
		targetHash = principal.PasswordHash
		exists = true
	} else if !errors.Is(lookupErr, ErrNotFound) {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get principal by username").
			Wrap(lookupErr)
	}

	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil && exists {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			Wrap(verifyErr)
	}
	if !exists || !valid {
		return nil, oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
	}

	if s.hasher.NeedsUpgrade(principal.PasswordHash) {
		if newHash, hashErr := s.hasher.Hash(password); hashErr == nil {
			// Login succeeds even if the upgrade write fails.
			if err := s.principals.UpdatePassword(ctx, principal.ID, newHash); err == nil {
				principal.PasswordHash = newHash
			}
		}
	}

	return s.issueSession(ctx, principal)
}

// Logout revokes the presented refresh token. It is idempotent: a missing,
// malformed, or already-revoked token is treated as already logged out. The
// caller clears both credentials client-side regardless.
func (s *SessionService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}

	_, err := s.tokens.Revoke(ctx, HashToken(refreshToken))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return nil
	default:
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "revoke refresh token").
			Wrap(err)
	}
}

// Authenticate resolves the per-request authentication state machine for the
// presented credential pair:
//
//   - valid access credential: fast path, identity from claims, no store I/O,
//     renewed pair is nil.
//   - expired or missing access credential with a refresh credential present:
//     silent renewal — the refresh token is rotated and a renewed pair is
//     returned for the caller to propagate to the client.
//   - anything else: ErrUnauthenticated.
//
// A malformed access credential (signature or structure failure, not mere
// expiry) never triggers renewal.
func (s *SessionService) Authenticate(ctx context.Context, accessToken, refreshToken string) (Identity, *TokenPair, error) {
	result := s.codec.Verify(accessToken)
	switch result.Status {
	case StatusValid:
		identity, err := IdentityFromClaims(result.Claims)
		if err != nil {
			// Signed by us but not an access credential.
			return Identity{}, nil, oops.Code("AUTH_UNAUTHENTICATED").Wrap(ErrUnauthenticated)
		}
		return identity, nil, nil

	case StatusExpired, StatusMissing:
		if refreshToken == "" {
			return Identity{}, nil, oops.Code("AUTH_UNAUTHENTICATED").Wrap(ErrUnauthenticated)
		}
		return s.renew(ctx, refreshToken)

	default: // StatusMalformed
		return Identity{}, nil, oops.Code("AUTH_UNAUTHENTICATED").
			With("access_status", result.Status.String()).
			Wrap(ErrUnauthenticated)
	}
}

// renew rotates the presented refresh token and mints a new credential pair.
// The store serializes races on the same token: the loser observes the row
// already revoked and is rejected here as unauthenticated.
func (s *SessionService) renew(ctx context.Context, refreshToken string) (Identity, *TokenPair, error) {
	result := s.codec.Verify(refreshToken)
	if result.Status != StatusValid || result.Claims.TokenType != TokenTypeRefresh {
		return Identity{}, nil, oops.Code("AUTH_UNAUTHENTICATED").
			With("refresh_status", result.Status.String()).
			Wrap(ErrUnauthenticated)
	}

	principalID, err := ulid.Parse(result.Claims.Subject)
	if err != nil {
		return Identity{}, nil, oops.Code("AUTH_UNAUTHENTICATED").Wrap(ErrUnauthenticated)
	}

	principal, err := s.principals.GetByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Identity{}, nil, oops.Code("AUTH_UNAUTHENTICATED").Wrap(ErrUnauthenticated)
		}
		return Identity{}, nil, oops.Code("AUTH_RENEW_FAILED").
			With("operation", "get principal").
			Wrap(err)
	}

	next, newRefresh, refreshExpiry, err := s.mintRefresh(principal.ID)
	if err != nil {
		return Identity{}, nil, err
	}

	consumed, err := s.tokens.Rotate(ctx, HashToken(refreshToken), next)
	switch {
	case errors.Is(err, ErrTokenRevoked):
		// Reuse of an already-rotated token. Never mint a session from it.
		s.logger.Warn("revoked refresh token presented",
			"principal_id", principal.ID.String())
		return Identity{}, nil, oops.Code("AUTH_TOKEN_REUSED").Wrap(ErrUnauthenticated)
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrTokenExpired):
		return Identity{}, nil, oops.Code("AUTH_UNAUTHENTICATED").Wrap(ErrUnauthenticated)
	case err != nil:
		return Identity{}, nil, oops.Code("AUTH_RENEW_FAILED").
			With("operation", "rotate refresh token").
			Wrap(err)
	}

	// The consumed row must belong to the claimed subject.
	if consumed.PrincipalID.Compare(principal.ID) != 0 {
		return Identity{}, nil, oops.Code("AUTH_UNAUTHENTICATED").Wrap(ErrUnauthenticated)
	}

	accessToken, accessExpiry, err := s.codec.IssueAccess(principal.ID, principal.Username, principal.Role)
	if err != nil {
		return Identity{}, nil, err
	}

	identity := Identity{ID: principal.ID, Username: principal.Username, Role: principal.Role}
	pair := &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     newRefresh,
		AccessExpiresAt:  accessExpiry,
		RefreshExpiresAt: refreshExpiry,
	}
	return identity, pair, nil
}

// ChangePassword verifies the current password and stores a hash of the new
// one. A wrong current password wraps ErrInvalidCredentials.
func (s *SessionService) ChangePassword(ctx context.Context, principalID ulid.ULID, current, next string) error {
	principal, err := s.principals.GetByID(ctx, principalID)
	if err != nil {
		return err
	}

	valid, err := s.hasher.Verify(current, principal.PasswordHash)
	if err != nil {
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").
			With("operation", "verify current password").
			Wrap(err)
	}
	if !valid {
		return oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	if err := s.principals.UpdatePassword(ctx, principalID, hash); err != nil {
		return err
	}
	s.logger.Info("password changed", "principal_id", principalID.String())
	return nil
}

// DeleteAccount removes the principal and every refresh token it owns. The
// caller clears both credentials client-side afterwards; outstanding access
// credentials remain valid until expiry.
func (s *SessionService) DeleteAccount(ctx context.Context, principalID ulid.ULID) error {
	if err := s.tokens.DeleteForPrincipal(ctx, principalID); err != nil {
		return oops.Code("AUTH_DELETE_FAILED").
			With("operation", "delete refresh tokens").
			Wrap(err)
	}
	if err := s.principals.Delete(ctx, principalID); err != nil {
		return err
	}
	s.logger.Info("account deleted", "principal_id", principalID.String())
	return nil
}

// issueSession mints and persists a credential pair for the principal. Same
// minted-pair logic as rotation, without a prior token to revoke.
func (s *SessionService) issueSession(ctx context.Context, principal *Principal) (*Session, error) {
	next, refreshToken, refreshExpiry, err := s.mintRefresh(principal.ID)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Insert(ctx, next); err != nil {
		return nil, oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "persist refresh token").
			Wrap(err)
	}

	accessToken, accessExpiry, err := s.codec.IssueAccess(principal.ID, principal.Username, principal.Role)
	if err != nil {
		return nil, err
	}

	return &Session{
		Principal: principal,
		Pair: TokenPair{
			AccessToken:      accessToken,
			RefreshToken:     refreshToken,
			AccessExpiresAt:  accessExpiry,
			RefreshExpiresAt: refreshExpiry,
		},
	}, nil
}

// mintRefresh issues a refresh credential and builds its store row.
func (s *SessionService) mintRefresh(principalID ulid.ULID) (*RefreshToken, string, time.Time, error) {
	token, tokenID, expiresAt, err := s.codec.IssueRefresh(principalID)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	row, err := NewRefreshToken(tokenID, principalID, HashToken(token), expiresAt)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	return row, token, expiresAt, nil
}
