// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Identity is the authenticated principal derived from a verified access
// credential. It carries everything role checks need without touching the
// identity store.
type Identity struct {
	ID       ulid.ULID
	Username string
	Role     Role
}

// IdentityFromClaims builds an Identity from verified access claims. Claims
// must come from Codec.Verify; nothing else may be trusted.
func IdentityFromClaims(claims *Claims) (Identity, error) {
	if claims == nil || claims.TokenType != TokenTypeAccess {
		return Identity{}, oops.Code("AUTH_BAD_CLAIMS").Errorf("access claims required")
	}
	id, err := ulid.Parse(claims.Subject)
	if err != nil {
		return Identity{}, oops.Code("AUTH_BAD_CLAIMS").
			With("subject", claims.Subject).
			Wrap(err)
	}
	if !claims.Role.Valid() {
		return Identity{}, oops.Code("AUTH_BAD_CLAIMS").
			With("role", string(claims.Role)).
			Errorf("unknown role in claims")
	}
	return Identity{ID: id, Username: claims.Username, Role: claims.Role}, nil
}

// Authorize checks the identity's role against the accepted set. The role set
// is flat: ADMIN passes a manager check only when the caller lists RoleAdmin
// explicitly. Returns nil when authorized, or an error wrapping ErrForbidden.
func Authorize(identity Identity, accepted ...Role) error {
	for _, role := range accepted {
		if identity.Role == role {
			return nil
		}
	}
	names := make([]string, len(accepted))
	for i, role := range accepted {
		names[i] = string(role)
	}
	return oops.Code("AUTH_FORBIDDEN").
		With("role", string(identity.Role)).
		With("accepted", names).
		Wrap(ErrForbidden)
}
