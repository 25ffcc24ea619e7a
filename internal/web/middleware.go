// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package web

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/observability"
)

// identityKey stores the authenticated identity in the echo context.
const identityKey = "gatehouse.identity"

// IdentityFrom returns the authenticated identity set by the Authenticate
// middleware, if any.
func IdentityFrom(ec echo.Context) (auth.Identity, bool) {
	identity, ok := ec.Get(identityKey).(auth.Identity)
	return identity, ok
}

// Middleware authenticates requests against the session service.
type Middleware struct {
	sessions *auth.SessionService
	cookies  Cookies
	metrics  *observability.Metrics
}

// NewMiddleware creates the authentication middleware. metrics may be nil.
func NewMiddleware(sessions *auth.SessionService, cookies Cookies, metrics *observability.Metrics) *Middleware {
	return &Middleware{sessions: sessions, cookies: cookies, metrics: metrics}
}

// Authenticate resolves the request's credentials. When the access credential
// has expired and the refresh credential is still valid, the session is
// renewed silently and fresh cookies are written to the response — invisible
// to the end user. With required=false, an unauthenticated request proceeds
// anonymously; with required=true it is rejected with 401.
func (m *Middleware) Authenticate(required bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ec echo.Context) error {
			identity, renewed, err := m.sessions.Authenticate(
				ec.Request().Context(),
				ReadAccess(ec),
				ReadRefresh(ec),
			)
			if err != nil {
				if !errors.Is(err, auth.ErrUnauthenticated) {
					return echo.NewHTTPError(http.StatusInternalServerError)
				}
				if m.metrics != nil {
					if oopsErr, ok := oops.AsOops(err); ok && oopsErr.Code() == "AUTH_TOKEN_REUSED" {
						m.metrics.ReuseRejectionsTotal.Inc()
					}
				}
				if required {
					// No diagnostic detail beyond "please log in".
					return echo.NewHTTPError(http.StatusUnauthorized, "please log in")
				}
				return next(ec)
			}

			if renewed != nil {
				m.cookies.WritePair(ec, *renewed)
				if m.metrics != nil {
					m.metrics.RotationsTotal.Inc()
				}
			}

			ec.Set(identityKey, identity)
			return next(ec)
		}
	}
}

// RequireRole rejects authenticated requests whose role is not in the
// accepted set. Must run after Authenticate(true).
func (m *Middleware) RequireRole(accepted ...auth.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ec echo.Context) error {
			identity, ok := IdentityFrom(ec)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "please log in")
			}
			if err := auth.Authorize(identity, accepted...); err != nil {
				return echo.NewHTTPError(http.StatusForbidden, "insufficient role")
			}
			return next(ec)
		}
	}
}
