// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Token type claim values. Every minted credential carries exactly one.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims is the claim set carried by Gatehouse credentials. Username and Role
// are populated only on access credentials; refresh credentials identify the
// principal through the registered subject claim and are tied to a persisted
// row through the registered ID (jti) claim.
type Claims struct {
	Username  string `json:"username,omitempty"`
	Role      Role   `json:"role,omitempty"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// VerifyStatus classifies the outcome of credential verification.
type VerifyStatus int

// Verification outcomes. Expired and Malformed are distinguished only to
// decide whether silent renewal is attempted; both surface to clients as
// Unauthenticated.
const (
	StatusValid VerifyStatus = iota
	StatusExpired
	StatusMalformed
	StatusMissing
)

// String returns the status name for logs.
func (s VerifyStatus) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusExpired:
		return "expired"
	case StatusMalformed:
		return "malformed"
	case StatusMissing:
		return "missing"
	}
	return "unknown"
}

// VerifyResult is the tagged result of Verify. Claims is non-nil only when
// Status is StatusValid.
type VerifyResult struct {
	Status VerifyStatus
	Claims *Claims
}

// CodecConfig configures a Codec. The signing secret and TTLs are injected at
// construction; the codec never reads ambient process state.
type CodecConfig struct {
	// Secret is the HMAC-SHA256 signing key. Required.
	Secret []byte

	// Issuer is stamped into and required of every credential. Optional.
	Issuer string

	// AccessTTL is the access credential lifetime. Required.
	AccessTTL time.Duration

	// RefreshTTL is the refresh credential lifetime. Required.
	RefreshTTL time.Duration

	// Now overrides the time source. Defaults to time.Now.
	Now func() time.Time
}

// Codec mints and verifies signed, expiring credentials. Verify is the only
// code path allowed to trust a credential's claims.
type Codec struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewCodec creates a Codec. A missing secret or non-positive TTL is a
// configuration error and fatal at startup.
func NewCodec(cfg CodecConfig) (*Codec, error) {
	if len(cfg.Secret) == 0 {
		return nil, oops.Code("CODEC_CONFIG_INVALID").Errorf("signing secret is required")
	}
	if cfg.AccessTTL <= 0 {
		return nil, oops.Code("CODEC_CONFIG_INVALID").
			With("access_ttl", cfg.AccessTTL).
			Errorf("access TTL must be positive")
	}
	if cfg.RefreshTTL <= 0 {
		return nil, oops.Code("CODEC_CONFIG_INVALID").
			With("refresh_ttl", cfg.RefreshTTL).
			Errorf("refresh TTL must be positive")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Codec{
		secret:     cfg.Secret,
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        now,
	}, nil
}

// IssueAccess mints an access credential for the given principal identity.
// The credential is stateless: it is never persisted and cannot be revoked
// before its expiry.
func (c *Codec) IssueAccess(principalID ulid.ULID, username string, role Role) (token string, expiresAt time.Time, err error) {
	now := c.now()
	expiresAt = now.Add(c.accessTTL)

	claims := Claims{
		Username:  username,
		Role:      role,
		TokenType: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID.String(),
			Issuer:    c.issuer,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, oops.Code("CODEC_SIGN_FAILED").
			With("token_type", TokenTypeAccess).
			Wrap(err)
	}
	return token, expiresAt, nil
}

// IssueRefresh mints a refresh credential for the principal with a fresh
// token ID. The returned token ID keys the persisted row so a consumed token
// can never be replayed ambiguously.
func (c *Codec) IssueRefresh(principalID ulid.ULID) (token string, tokenID ulid.ULID, expiresAt time.Time, err error) {
	now := c.now()
	expiresAt = now.Add(c.refreshTTL)
	tokenID = ulid.Make()

	claims := Claims{
		TokenType: TokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID.String(),
			ID:        tokenID.String(),
			Issuer:    c.issuer,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", ulid.ULID{}, time.Time{}, oops.Code("CODEC_SIGN_FAILED").
			With("token_type", TokenTypeRefresh).
			Wrap(err)
	}
	return token, tokenID, expiresAt, nil
}

// Verify checks a credential's signature, structure, and expiry and returns a
// tagged result. It never panics or returns an error for attacker-controlled
// input: every failure maps to Expired, Malformed, or Missing.
func (c *Codec) Verify(token string) VerifyResult {
	if token == "" {
		return VerifyResult{Status: StatusMissing}
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return VerifyResult{Status: StatusExpired}
	case err != nil, !parsed.Valid:
		return VerifyResult{Status: StatusMalformed}
	}

	if c.issuer != "" && claims.Issuer != c.issuer {
		return VerifyResult{Status: StatusMalformed}
	}
	switch claims.TokenType {
	case TokenTypeAccess, TokenTypeRefresh:
	default:
		return VerifyResult{Status: StatusMalformed}
	}

	return VerifyResult{Status: StatusValid, Claims: claims}
}

// HashToken computes the SHA256 hash of a credential string. Refresh tokens
// are persisted and looked up by this hash; the raw token is only ever held
// by the client.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
