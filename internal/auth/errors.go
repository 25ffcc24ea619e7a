// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import "errors"

// Sentinel errors for the authentication domain. Store and service
// implementations wrap these with samber/oops for code and context; callers
// classify with errors.Is.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidCredentials is returned for a failed login or a wrong
	// current password. It deliberately does not distinguish an unknown
	// username from a wrong password.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrDuplicateUsername is returned when registration collides with an
	// existing username.
	ErrDuplicateUsername = errors.New("username already taken")

	// ErrUnauthenticated is returned when no presented credential, and no
	// renewal path, yields an authenticated principal.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden is returned when an authenticated principal lacks a
	// required role.
	ErrForbidden = errors.New("forbidden")

	// ErrTokenRevoked is returned by refresh token stores when the presented
	// token row exists but has already been consumed or revoked. Reuse of a
	// rotated token surfaces as this error and must never mint a session.
	ErrTokenRevoked = errors.New("refresh token revoked")

	// ErrTokenExpired is returned by refresh token stores when the persisted
	// expiry of the presented token has passed.
	ErrTokenExpired = errors.New("refresh token expired")
)
