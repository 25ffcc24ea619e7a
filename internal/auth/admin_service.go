// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// AdminService exposes principal administration. Mutation goes through typed
// setters for an explicit allow-list of fields (role, password); there is no
// generic set-any-attribute operation.
type AdminService struct {
	principals PrincipalRepository
	tokens     RefreshTokenStore
	hasher     PasswordHasher
	logger     *slog.Logger
}

// NewAdminService creates an AdminService. All dependencies are required; a
// nil logger falls back to slog.Default.
func NewAdminService(principals PrincipalRepository, tokens RefreshTokenStore, hasher PasswordHasher, logger *slog.Logger) (*AdminService, error) {
	if principals == nil {
		return nil, oops.Errorf("principal repository is required")
	}
	if tokens == nil {
		return nil, oops.Errorf("refresh token store is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminService{
		principals: principals,
		tokens:     tokens,
		hasher:     hasher,
		logger:     logger,
	}, nil
}

// ListPrincipals returns all principals ordered by creation time.
func (s *AdminService) ListPrincipals(ctx context.Context) ([]*Principal, error) {
	return s.principals.List(ctx)
}

// ChangeRole sets the principal's role.
func (s *AdminService) ChangeRole(ctx context.Context, principalID ulid.ULID, role Role) error {
	if !role.Valid() {
		return oops.Code("AUTH_INVALID_ROLE").
			With("role", string(role)).
			Errorf("unknown role %q", string(role))
	}
	if err := s.principals.UpdateRole(ctx, principalID, role); err != nil {
		return err
	}
	s.logger.Info("role changed", "principal_id", principalID.String(), "role", string(role))
	return nil
}

// ResetPassword replaces the principal's password without checking the
// current one. Sessions minted before the reset stay valid until their
// refresh tokens are next rotated or revoked.
func (s *AdminService) ResetPassword(ctx context.Context, principalID ulid.ULID, password string) error {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}
	if err := s.principals.UpdatePassword(ctx, principalID, hash); err != nil {
		return err
	}
	s.logger.Info("password reset", "principal_id", principalID.String())
	return nil
}

// RemoveAccount deletes the principal and cascades its refresh tokens.
func (s *AdminService) RemoveAccount(ctx context.Context, principalID ulid.ULID) error {
	if err := s.tokens.DeleteForPrincipal(ctx, principalID); err != nil {
		return oops.Code("AUTH_DELETE_FAILED").
			With("operation", "delete refresh tokens").
			Wrap(err)
	}
	if err := s.principals.Delete(ctx, principalID); err != nil {
		return err
	}
	s.logger.Info("account removed by admin", "principal_id", principalID.String())
	return nil
}
