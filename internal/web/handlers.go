// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package web

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/observability"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

// Handler serves the authentication endpoints.
type Handler struct {
	sessions *auth.SessionService
	admin    *auth.AdminService
	cookies  Cookies
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewHandler creates the HTTP handler. metrics may be nil; a nil logger falls
// back to slog.Default.
func NewHandler(sessions *auth.SessionService, admin *auth.AdminService, cookies Cookies, metrics *observability.Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		sessions: sessions,
		admin:    admin,
		cookies:  cookies,
		metrics:  metrics,
		logger:   logger,
	}
}

// Register mounts all routes on the echo instance.
func (h *Handler) Register(e *echo.Echo, mw *Middleware) {
	e.POST("/auth/register", h.handleRegister)
	e.POST("/auth/login", h.handleLogin)
	e.POST("/auth/logout", h.handleLogout)

	authed := e.Group("", mw.Authenticate(true))
	authed.GET("/auth/me", h.handleMe)
	authed.PUT("/auth/password", h.handleChangePassword)
	authed.DELETE("/auth/account", h.handleDeleteAccount)

	admin := e.Group("/admin", mw.Authenticate(true), mw.RequireRole(auth.RoleAdmin))
	admin.GET("/principals", h.handleListPrincipals)
	admin.PUT("/principals/:id/role", h.handleChangeRole)
	admin.PUT("/principals/:id/password", h.handleResetPassword)
	admin.DELETE("/principals/:id", h.handleRemoveAccount)
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type principalResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

func toPrincipalResponse(p *auth.Principal) principalResponse {
	return principalResponse{
		ID:       p.ID.String(),
		Username: p.Username,
		Role:     string(p.Role),
	}
}

func (h *Handler) handleRegister(ec echo.Context) error {
	var req credentialsRequest
	if err := ec.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	session, err := h.sessions.Register(ec.Request().Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrDuplicateUsername) {
			return echo.NewHTTPError(http.StatusConflict, "username already taken")
		}
		if validationError(err) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return h.serviceError("register failed", err)
	}

	h.cookies.WritePair(ec, session.Pair)
	return ec.JSON(http.StatusCreated, toPrincipalResponse(session.Principal))
}

func (h *Handler) handleLogin(ec echo.Context) error {
	var req credentialsRequest
	if err := ec.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	session, err := h.sessions.Login(ec.Request().Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			if h.metrics != nil {
				h.metrics.LoginsTotal.WithLabelValues("failure").Inc()
			}
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid username or password")
		}
		return h.serviceError("login failed", err)
	}

	if h.metrics != nil {
		h.metrics.LoginsTotal.WithLabelValues("success").Inc()
	}
	h.cookies.WritePair(ec, session.Pair)
	return ec.JSON(http.StatusOK, toPrincipalResponse(session.Principal))
}

func (h *Handler) handleLogout(ec echo.Context) error {
	// Revocation is idempotent; logging out while logged out succeeds.
	if err := h.sessions.Logout(ec.Request().Context(), ReadRefresh(ec)); err != nil {
		return h.serviceError("logout failed", err)
	}
	h.cookies.Clear(ec)
	return ec.NoContent(http.StatusNoContent)
}

func (h *Handler) handleMe(ec echo.Context) error {
	identity, ok := IdentityFrom(ec)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "please log in")
	}
	return ec.JSON(http.StatusOK, principalResponse{
		ID:       identity.ID.String(),
		Username: identity.Username,
		Role:     string(identity.Role),
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *Handler) handleChangePassword(ec echo.Context) error {
	identity, ok := IdentityFrom(ec)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "please log in")
	}

	var req changePasswordRequest
	if err := ec.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	err := h.sessions.ChangePassword(ec.Request().Context(), identity.ID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return echo.NewHTTPError(http.StatusBadRequest, "current password is incorrect")
		}
		if validationError(err) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return h.serviceError("change password failed", err)
	}
	return ec.NoContent(http.StatusNoContent)
}

func (h *Handler) handleDeleteAccount(ec echo.Context) error {
	identity, ok := IdentityFrom(ec)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "please log in")
	}

	if err := h.sessions.DeleteAccount(ec.Request().Context(), identity.ID); err != nil {
		return h.serviceError("delete account failed", err)
	}
	h.cookies.Clear(ec)
	return ec.NoContent(http.StatusNoContent)
}

func (h *Handler) handleListPrincipals(ec echo.Context) error {
	principals, err := h.admin.ListPrincipals(ec.Request().Context())
	if err != nil {
		return h.serviceError("list principals failed", err)
	}
	out := make([]principalResponse, len(principals))
	for i, p := range principals {
		out[i] = toPrincipalResponse(p)
	}
	return ec.JSON(http.StatusOK, out)
}

type changeRoleRequest struct {
	Role string `json:"role"`
}

func (h *Handler) handleChangeRole(ec echo.Context) error {
	id, err := ulid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid principal id")
	}

	var req changeRoleRequest
	if err := ec.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown role")
	}

	if err := h.admin.ChangeRole(ec.Request().Context(), id, role); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "principal not found")
		}
		return h.serviceError("change role failed", err)
	}
	return ec.NoContent(http.StatusNoContent)
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

func (h *Handler) handleResetPassword(ec echo.Context) error {
	id, err := ulid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid principal id")
	}

	var req resetPasswordRequest
	if err := ec.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := h.admin.ResetPassword(ec.Request().Context(), id, req.Password); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "principal not found")
		}
		if validationError(err) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return h.serviceError("reset password failed", err)
	}
	return ec.NoContent(http.StatusNoContent)
}

func (h *Handler) handleRemoveAccount(ec echo.Context) error {
	id, err := ulid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid principal id")
	}

	if err := h.admin.RemoveAccount(ec.Request().Context(), id); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "principal not found")
		}
		return h.serviceError("remove account failed", err)
	}
	return ec.NoContent(http.StatusNoContent)
}

// validationError reports whether err is an input validation failure, which
// surfaces as 400 with the validation message rather than a generic 500.
func validationError(err error) bool {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return false
	}
	switch oopsErr.Code() {
	case "AUTH_INVALID_USERNAME", "AUTH_EMPTY_PASSWORD":
		return true
	}
	return false
}

// serviceError logs an unexpected service failure and returns a generic 500.
// Store connectivity failures land here; they are not distinguishable from
// any other internal error at the HTTP boundary.
func (h *Handler) serviceError(msg string, err error) error {
	errutil.LogError(h.logger, msg, err)
	return echo.NewHTTPError(http.StatusInternalServerError)
}
