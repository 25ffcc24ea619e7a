// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package web is the HTTP transport adapter for Gatehouse. It moves
// credentials between cookies and the session service; all authentication
// decisions live in internal/auth.
package web

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// Credential cookie names.
const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"
)

// Cookies writes and clears credential cookies. The session service emits
// set/clear instructions; this type performs the I/O.
type Cookies struct {
	// Secure marks issued cookies Secure. Disable only for local
	// development over plain HTTP.
	Secure bool

	// Now overrides the time source for Max-Age computation. Defaults to
	// time.Now.
	Now func() time.Time
}

func (c Cookies) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// ReadAccess returns the access credential from the request, or "".
func ReadAccess(ec echo.Context) string {
	return readCookie(ec, AccessCookie)
}

// ReadRefresh returns the refresh credential from the request, or "".
func ReadRefresh(ec echo.Context) string {
	return readCookie(ec, RefreshCookie)
}

func readCookie(ec echo.Context, name string) string {
	cookie, err := ec.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// WritePair sets both credential cookies from a freshly minted pair.
func (c Cookies) WritePair(ec echo.Context, pair auth.TokenPair) {
	now := c.now()
	ec.SetCookie(c.build(AccessCookie, pair.AccessToken, pair.AccessExpiresAt.Sub(now)))
	ec.SetCookie(c.build(RefreshCookie, pair.RefreshToken, pair.RefreshExpiresAt.Sub(now)))
}

// Clear expires both credential cookies.
func (c Cookies) Clear(ec echo.Context) {
	ec.SetCookie(c.build(AccessCookie, "", -time.Hour))
	ec.SetCookie(c.build(RefreshCookie, "", -time.Hour))
}

func (c Cookies) build(name, value string, maxAge time.Duration) *http.Cookie {
	seconds := int(maxAge / time.Second)
	if value == "" {
		seconds = -1
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   seconds,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
