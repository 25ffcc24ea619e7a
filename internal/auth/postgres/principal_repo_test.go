// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/auth/postgres"
)

// Compile-time interface check.
var _ auth.PrincipalRepository = (*postgres.PrincipalRepository)(nil)

func newPrincipalMock(t *testing.T) (pgxmock.PgxPoolIface, *postgres.PrincipalRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(mock.Close)
	return mock, postgres.NewPrincipalRepository(mock)
}

func testPrincipal(t *testing.T) *auth.Principal {
	t.Helper()
	principal, err := auth.NewPrincipal("alice", "somehash", auth.RoleMember)
	require.NoError(t, err)
	return principal
}

func principalRows(p *auth.Principal) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "username", "password_hash", "role", "created_at", "updated_at"}).
		AddRow(p.ID.String(), p.Username, p.PasswordHash, string(p.Role), p.CreatedAt, p.UpdatedAt)
}

func TestPrincipalRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts principal", func(t *testing.T) {
		mock, repo := newPrincipalMock(t)
		principal := testPrincipal(t)

		mock.ExpectExec(`INSERT INTO principals`).
			WithArgs(
				principal.ID.String(),
				principal.Username,
				principal.PasswordHash,
				string(principal.Role),
				principal.CreatedAt,
				principal.UpdatedAt,
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, repo.Create(ctx, principal))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unique violation maps to duplicate username", func(t *testing.T) {
		mock, repo := newPrincipalMock(t)
		principal := testPrincipal(t)

		mock.ExpectExec(`INSERT INTO principals`).
			WithArgs(
				principal.ID.String(),
				principal.Username,
				principal.PasswordHash,
				string(principal.Role),
				principal.CreatedAt,
				principal.UpdatedAt,
			).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})

		err := repo.Create(ctx, principal)
		assert.ErrorIs(t, err, auth.ErrDuplicateUsername)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("other database errors pass through", func(t *testing.T) {
		mock, repo := newPrincipalMock(t)
		principal := testPrincipal(t)

		mock.ExpectExec(`INSERT INTO principals`).
			WithArgs(
				principal.ID.String(),
				principal.Username,
				principal.PasswordHash,
				string(principal.Role),
				principal.CreatedAt,
				principal.UpdatedAt,
			).
			WillReturnError(errors.New("connection refused"))

		err := repo.Create(ctx, principal)
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrDuplicateUsername)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPrincipalRepository_GetByID(t *testing.T) {
	ctx := context.Background()

	t.Run("returns principal", func(t *testing.T) {
		mock, repo := newPrincipalMock(t)
		principal := testPrincipal(t)

		mock.ExpectQuery(`FROM principals`).
			WithArgs(principal.ID.String()).
			WillReturnRows(principalRows(principal))

		got, err := repo.GetByID(ctx, principal.ID)
		require.NoError(t, err)
		assert.Equal(t, principal.ID, got.ID)
		assert.Equal(t, principal.Username, got.Username)
		assert.Equal(t, principal.Role, got.Role)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing row maps to not found", func(t *testing.T) {
		mock, repo := newPrincipalMock(t)
		id := ulid.Make()

		mock.ExpectQuery(`FROM principals`).
			WithArgs(id.String()).
			WillReturnRows(pgxmock.NewRows([]string{"id", "username", "password_hash", "role", "created_at", "updated_at"}))

		_, err := repo.GetByID(ctx, id)
		assert.ErrorIs(t, err, auth.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("corrupt role is an error", func(t *testing.T) {
		mock, repo := newPrincipalMock(t)
		principal := testPrincipal(t)
		rows := pgxmock.NewRows([]string{"id", "username", "password_hash", "role", "created_at", "updated_at"}).
			AddRow(principal.ID.String(), principal.Username, principal.PasswordHash, "WIZARD", principal.CreatedAt, principal.UpdatedAt)

		mock.ExpectQuery(`FROM principals`).
			WithArgs(principal.ID.String()).
			WillReturnRows(rows)

		_, err := repo.GetByID(ctx, principal.ID)
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPrincipalRepository_GetByUsername(t *testing.T) {
	ctx := context.Background()

	t.Run("returns principal", func(t *testing.T) {
		mock, repo := newPrincipalMock(t)
		principal := testPrincipal(t)

		mock.ExpectQuery(`LOWER\(username\)`).
			WithArgs("ALICE").
			WillReturnRows(principalRows(principal))

		got, err := repo.GetByUsername(ctx, "ALICE")
		require.NoError(t, err)
		assert.Equal(t, principal.Username, got.Username)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing row maps to not found", func(t *testing.T) {
		mock, repo := newPrincipalMock(t)

		mock.ExpectQuery(`LOWER\(username\)`).
			WithArgs("nobody").
			WillReturnRows(pgxmock.NewRows([]string{"id", "username", "password_hash", "role", "created_at", "updated_at"}))

		_, err := repo.GetByUsername(ctx, "nobody")
		assert.ErrorIs(t, err, auth.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPrincipalRepository_UpdatePassword(t *testing.T) {
	ctx := context.Background()

	t.Run("updates the hash", func(t *testing.T) {
		mock, repo := newPrincipalMock(t)
		id := ulid.Make()

		mock.ExpectExec(`UPDATE principals SET password_hash`).
			WithArgs(id.String(), "newhash", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, repo.UpdatePassword(ctx, id, "newhash"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("zero rows maps to not found", func(t *testing.T) {
		mock, repo := newPrincipalMock(t)
		id := ulid.Make()

		mock.ExpectExec(`UPDATE principals SET password_hash`).
			WithArgs(id.String(), "newhash", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.UpdatePassword(ctx, id, "newhash")
		assert.ErrorIs(t, err, auth.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPrincipalRepository_UpdateRole(t *testing.T) {
	ctx := context.Background()

	t.Run("updates the role", func(t *testing.T) {
		mock, repo := newPrincipalMock(t)
		id := ulid.Make()

		mock.ExpectExec(`UPDATE principals SET role`).
			WithArgs(id.String(), "ADMIN", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, repo.UpdateRole(ctx, id, auth.RoleAdmin))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("zero rows maps to not found", func(t *testing.T) {
		mock, repo := newPrincipalMock(t)
		id := ulid.Make()

		mock.ExpectExec(`UPDATE principals SET role`).
			WithArgs(id.String(), "ADMIN", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.UpdateRole(ctx, id, auth.RoleAdmin)
		assert.ErrorIs(t, err, auth.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPrincipalRepository_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes the principal", func(t *testing.T) {
		mock, repo := newPrincipalMock(t)
		id := ulid.Make()

		mock.ExpectExec(`DELETE FROM principals`).
			WithArgs(id.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))

		require.NoError(t, repo.Delete(ctx, id))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("zero rows maps to not found", func(t *testing.T) {
		mock, repo := newPrincipalMock(t)
		id := ulid.Make()

		mock.ExpectExec(`DELETE FROM principals`).
			WithArgs(id.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		err := repo.Delete(ctx, id)
		assert.ErrorIs(t, err, auth.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPrincipalRepository_List(t *testing.T) {
	ctx := context.Background()

	t.Run("returns principals in creation order", func(t *testing.T) {
		mock, repo := newPrincipalMock(t)
		now := time.Now()
		rows := pgxmock.NewRows([]string{"id", "username", "password_hash", "role", "created_at", "updated_at"}).
			AddRow(ulid.Make().String(), "alice", "hash1", "MEMBER", now.Add(-time.Hour), now.Add(-time.Hour)).
			AddRow(ulid.Make().String(), "bob", "hash2", "ADMIN", now, now)

		mock.ExpectQuery(`ORDER BY created_at`).WillReturnRows(rows)

		principals, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, principals, 2)
		assert.Equal(t, "alice", principals[0].Username)
		assert.Equal(t, auth.RoleAdmin, principals[1].Role)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty table returns no principals", func(t *testing.T) {
		mock, repo := newPrincipalMock(t)
		mock.ExpectQuery(`ORDER BY created_at`).
			WillReturnRows(pgxmock.NewRows([]string{"id", "username", "password_hash", "role", "created_at", "updated_at"}))

		principals, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, principals)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query error passes through", func(t *testing.T) {
		mock, repo := newPrincipalMock(t)
		mock.ExpectQuery(`ORDER BY created_at`).
			WillReturnError(errors.New("connection refused"))

		_, err := repo.List(ctx)
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
