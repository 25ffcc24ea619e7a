// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/auth/authtest"
	"github.com/gatehouse/gatehouse/internal/observability"
	"github.com/gatehouse/gatehouse/internal/web"
)

// fixture wires the full HTTP stack over in-memory stores with a controllable
// clock, so tests can expire access credentials and watch renewal happen.
type fixture struct {
	t          *testing.T
	e          *echo.Echo
	sessions   *auth.SessionService
	admin      *auth.AdminService
	principals *authtest.PrincipalStore
	tokens     *authtest.TokenStore
	metrics    *observability.Metrics
	mw         *web.Middleware

	mu      sync.Mutex
	current time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		t:          t,
		principals: authtest.NewPrincipalStore(),
		tokens:     authtest.NewTokenStore(),
		current:    time.Now(),
	}
	f.tokens.SetNow(f.now)

	codec, err := auth.NewCodec(auth.CodecConfig{
		Secret:     []byte("test-secret"),
		Issuer:     "gatehouse",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		Now:        f.now,
	})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hasher := auth.NewArgon2idHasher()

	f.sessions, err = auth.NewSessionService(f.principals, f.tokens, hasher, codec, logger)
	require.NoError(t, err)
	f.admin, err = auth.NewAdminService(f.principals, f.tokens, hasher, logger)
	require.NoError(t, err)

	f.metrics = observability.NewMetrics(prometheus.NewRegistry())

	cookies := web.Cookies{Now: f.now}
	f.mw = web.NewMiddleware(f.sessions, cookies, f.metrics)
	handler := web.NewHandler(f.sessions, f.admin, cookies, f.metrics, logger)

	f.e = echo.New()
	f.e.HideBanner = true
	handler.Register(f.e, f.mw)
	return f
}

func (f *fixture) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
}

// do serves one request through the full echo stack. A non-nil body is sent
// as JSON.
func (f *fixture) do(method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	f.t.Helper()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(f.t, err)
		reader = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}

	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

// register creates an account through the HTTP surface and returns the
// credential cookies the response set.
func (f *fixture) register(username, password string) []*http.Cookie {
	f.t.Helper()
	rec := f.do(http.MethodPost, "/auth/register", map[string]string{
		"username": username,
		"password": password,
	})
	require.Equal(f.t, http.StatusCreated, rec.Code, "register response: %s", rec.Body.String())
	return rec.Result().Cookies()
}

// registerAdmin registers an account, promotes it, and logs in again so the
// returned cookies carry an admin access credential.
func (f *fixture) registerAdmin(username, password string) []*http.Cookie {
	f.t.Helper()
	f.register(username, password)

	principal, err := f.principals.GetByUsername(context.Background(), username)
	require.NoError(f.t, err)
	require.NoError(f.t, f.principals.UpdateRole(context.Background(), principal.ID, auth.RoleAdmin))

	rec := f.do(http.MethodPost, "/auth/login", map[string]string{
		"username": username,
		"password": password,
	})
	require.Equal(f.t, http.StatusOK, rec.Code, "login response: %s", rec.Body.String())
	return rec.Result().Cookies()
}

func cookieNamed(t *testing.T, cookies []*http.Cookie, name string) *http.Cookie {
	t.Helper()
	for _, cookie := range cookies {
		if cookie.Name == name {
			return cookie
		}
	}
	t.Fatalf("cookie %q not found", name)
	return nil
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}
