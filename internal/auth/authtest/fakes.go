// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package authtest provides in-memory fakes for auth repositories. The fakes
// uphold the same contracts as the PostgreSQL implementations, including the
// rotation exclusivity guarantee, so service tests can exercise concurrent
// renewal races without a database.
package authtest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// PrincipalStore is an in-memory auth.PrincipalRepository.
type PrincipalStore struct {
	mu         sync.Mutex
	principals map[ulid.ULID]*auth.Principal
}

// NewPrincipalStore creates an empty PrincipalStore.
func NewPrincipalStore() *PrincipalStore {
	return &PrincipalStore{principals: make(map[ulid.ULID]*auth.Principal)}
}

// Create stores a new principal, enforcing username uniqueness.
func (s *PrincipalStore) Create(_ context.Context, principal *auth.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.principals {
		if strings.EqualFold(existing.Username, principal.Username) {
			return oops.Code("PRINCIPAL_DUPLICATE").Wrap(auth.ErrDuplicateUsername)
		}
	}
	clone := *principal
	s.principals[principal.ID] = &clone
	return nil
}

// GetByID retrieves a principal by ID.
func (s *PrincipalStore) GetByID(_ context.Context, id ulid.ULID) (*auth.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	principal, ok := s.principals[id]
	if !ok {
		return nil, oops.Code("PRINCIPAL_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	clone := *principal
	return &clone, nil
}

// GetByUsername retrieves a principal by username (case-insensitive).
func (s *PrincipalStore) GetByUsername(_ context.Context, username string) (*auth.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, principal := range s.principals {
		if strings.EqualFold(principal.Username, username) {
			clone := *principal
			return &clone, nil
		}
	}
	return nil, oops.Code("PRINCIPAL_NOT_FOUND").Wrap(auth.ErrNotFound)
}

// UpdatePassword updates only the password hash.
func (s *PrincipalStore) UpdatePassword(_ context.Context, id ulid.ULID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	principal, ok := s.principals[id]
	if !ok {
		return oops.Code("PRINCIPAL_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	principal.PasswordHash = passwordHash
	principal.UpdatedAt = time.Now()
	return nil
}

// UpdateRole updates only the role.
func (s *PrincipalStore) UpdateRole(_ context.Context, id ulid.ULID, role auth.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	principal, ok := s.principals[id]
	if !ok {
		return oops.Code("PRINCIPAL_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	principal.Role = role
	principal.UpdatedAt = time.Now()
	return nil
}

// Delete removes a principal.
func (s *PrincipalStore) Delete(_ context.Context, id ulid.ULID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.principals[id]; !ok {
		return oops.Code("PRINCIPAL_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	delete(s.principals, id)
	return nil
}

// List returns all principals ordered by creation time.
func (s *PrincipalStore) List(_ context.Context) ([]*auth.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*auth.Principal, 0, len(s.principals))
	for _, principal := range s.principals {
		clone := *principal
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// TokenStore is an in-memory auth.RefreshTokenStore. A single store-wide
// mutex plays the role of the database row lock: Rotate holds it across the
// whole find-check-revoke-insert sequence, so two rotations racing on the
// same token serialize and exactly one succeeds.
type TokenStore struct {
	mu     sync.Mutex
	tokens map[string]*auth.RefreshToken // keyed by token hash
	now    func() time.Time
}

// NewTokenStore creates an empty TokenStore.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		tokens: make(map[string]*auth.RefreshToken),
		now:    time.Now,
	}
}

// SetNow overrides the store's time source for expiry checks.
func (s *TokenStore) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Insert stores a refresh token row.
func (s *TokenStore) Insert(_ context.Context, token *auth.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *token
	s.tokens[token.TokenHash] = &clone
	return nil
}

// Rotate atomically consumes the row for tokenHash and inserts next.
func (s *TokenStore) Rotate(_ context.Context, tokenHash string, next *auth.RefreshToken) (*auth.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.tokens[tokenHash]
	if !ok {
		return nil, oops.Code("TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if row.Revoked {
		return nil, oops.Code("TOKEN_REVOKED").Wrap(auth.ErrTokenRevoked)
	}
	if row.IsExpiredAt(s.now()) {
		return nil, oops.Code("TOKEN_EXPIRED").Wrap(auth.ErrTokenExpired)
	}

	row.Revoked = true
	nextClone := *next
	s.tokens[next.TokenHash] = &nextClone

	consumed := *row
	return &consumed, nil
}

// Revoke marks the row as revoked, idempotently.
func (s *TokenStore) Revoke(_ context.Context, tokenHash string) (*auth.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.tokens[tokenHash]
	if !ok {
		return nil, oops.Code("TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	row.Revoked = true
	clone := *row
	return &clone, nil
}

// DeleteForPrincipal removes all rows owned by the principal.
func (s *TokenStore) DeleteForPrincipal(_ context.Context, principalID ulid.ULID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for hash, row := range s.tokens {
		if row.PrincipalID.Compare(principalID) == 0 {
			delete(s.tokens, hash)
		}
	}
	return nil
}

// DeleteExpired removes rows whose expiry passed before the cutoff.
func (s *TokenStore) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for hash, row := range s.tokens {
		if row.ExpiresAt.Before(cutoff) {
			delete(s.tokens, hash)
			deleted++
		}
	}
	return deleted, nil
}

// Get returns the stored row for a token hash, for test assertions.
func (s *TokenStore) Get(tokenHash string) (*auth.RefreshToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.tokens[tokenHash]
	if !ok {
		return nil, false
	}
	clone := *row
	return &clone, true
}

// Len returns the number of stored rows, for test assertions.
func (s *TokenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}
