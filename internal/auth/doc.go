// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package auth implements the authentication and session lifecycle for
// Gatehouse: credential issuance, verification, silent renewal, and
// revocation.
//
// # Domain Types
//
// Domain types (Principal, RefreshToken) should be created using their
// respective constructors:
//   - NewPrincipal - creates a Principal with validated username and role
//   - NewRefreshToken - creates a RefreshToken with validated owner and expiry
//
// Direct struct initialization bypasses validation and may create invalid
// state. Repository implementations receive pre-validated types from these
// constructors.
//
// # Services
//
// Service types coordinate domain operations:
//   - SessionService - register, login, logout, request-time authentication
//     with silent refresh rotation
//   - AdminService - principal administration through typed setters
//
// Services are created with New*Service constructors that validate
// dependencies.
//
// # Credentials
//
// The Codec mints and verifies signed JWT credentials. Access credentials are
// stateless and short-lived; refresh credentials are persisted (hashed) and
// revocable. Rotation consumes the presented refresh token and mints a
// replacement pair atomically, so a refresh token reused after rotation is
// always rejected.
package auth
