// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package postgres implements the auth repositories over PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// DB is the subset of pgxpool.Pool the repositories use. It is satisfied by
// *pgxpool.Pool and by pgxmock pools in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PrincipalRepository implements auth.PrincipalRepository using PostgreSQL.
type PrincipalRepository struct {
	db DB
}

// NewPrincipalRepository creates a new PrincipalRepository.
func NewPrincipalRepository(db DB) *PrincipalRepository {
	return &PrincipalRepository{db: db}
}

// Create stores a new principal. A unique-constraint violation on the
// username maps to auth.ErrDuplicateUsername.
func (r *PrincipalRepository) Create(ctx context.Context, principal *auth.Principal) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO principals (id, username, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		principal.ID.String(),
		principal.Username,
		principal.PasswordHash,
		string(principal.Role),
		principal.CreatedAt,
		principal.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("PRINCIPAL_DUPLICATE").
				With("username", principal.Username).
				Wrap(auth.ErrDuplicateUsername)
		}
		return oops.Code("PRINCIPAL_CREATE_FAILED").
			With("operation", "insert principal").
			With("username", principal.Username).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a principal by ID.
func (r *PrincipalRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Principal, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, username, password_hash, role, created_at, updated_at
		FROM principals
		WHERE id = $1
	`, id.String())

	principal, err := scanPrincipal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("PRINCIPAL_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("PRINCIPAL_GET_BY_ID_FAILED").
			With("operation", "get principal by id").
			With("id", id.String()).
			Wrap(err)
	}
	return principal, nil
}

// GetByUsername retrieves a principal by username (case-insensitive).
func (r *PrincipalRepository) GetByUsername(ctx context.Context, username string) (*auth.Principal, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, username, password_hash, role, created_at, updated_at
		FROM principals
		WHERE LOWER(username) = LOWER($1)
	`, username)

	principal, err := scanPrincipal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("PRINCIPAL_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("PRINCIPAL_GET_BY_USERNAME_FAILED").
			With("operation", "get principal by username").
			Wrap(err)
	}
	return principal, nil
}

// UpdatePassword updates only the password hash for a principal.
func (r *PrincipalRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	result, err := r.db.Exec(ctx, `
		UPDATE principals SET password_hash = $2, updated_at = $3
		WHERE id = $1
	`, id.String(), passwordHash, time.Now())
	if err != nil {
		return oops.Code("PRINCIPAL_UPDATE_PASSWORD_FAILED").
			With("operation", "update password_hash").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("PRINCIPAL_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// UpdateRole updates only the role for a principal.
func (r *PrincipalRepository) UpdateRole(ctx context.Context, id ulid.ULID, role auth.Role) error {
	result, err := r.db.Exec(ctx, `
		UPDATE principals SET role = $2, updated_at = $3
		WHERE id = $1
	`, id.String(), string(role), time.Now())
	if err != nil {
		return oops.Code("PRINCIPAL_UPDATE_ROLE_FAILED").
			With("operation", "update role").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("PRINCIPAL_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// Delete removes a principal. The refresh_tokens foreign key cascades, so
// owned token rows go with it.
func (r *PrincipalRepository) Delete(ctx context.Context, id ulid.ULID) error {
	result, err := r.db.Exec(ctx, `
		DELETE FROM principals WHERE id = $1
	`, id.String())
	if err != nil {
		return oops.Code("PRINCIPAL_DELETE_FAILED").
			With("operation", "delete principal").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("PRINCIPAL_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// List returns all principals ordered by creation time.
func (r *PrincipalRepository) List(ctx context.Context) ([]*auth.Principal, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, username, password_hash, role, created_at, updated_at
		FROM principals
		ORDER BY created_at
	`)
	if err != nil {
		return nil, oops.Code("PRINCIPAL_LIST_FAILED").
			With("operation", "list principals").
			Wrap(err)
	}
	defer rows.Close()

	var principals []*auth.Principal
	for rows.Next() {
		principal, err := scanPrincipal(rows)
		if err != nil {
			return nil, oops.Code("PRINCIPAL_SCAN_FAILED").
				With("operation", "scan principal row").
				Wrap(err)
		}
		principals = append(principals, principal)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("PRINCIPAL_ROWS_ERROR").
			With("operation", "iterate principal rows").
			Wrap(err)
	}
	return principals, nil
}

// scanPrincipal scans a principal from a row.
func scanPrincipal(row pgx.Row) (*auth.Principal, error) {
	var p auth.Principal
	var idStr, roleStr string

	if err := row.Scan(&idStr, &p.Username, &p.PasswordHash, &roleStr, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("PRINCIPAL_CORRUPT_ID").
			With("id", idStr).
			Wrap(err)
	}
	p.ID = id

	role, err := auth.ParseRole(roleStr)
	if err != nil {
		return nil, err
	}
	p.Role = role

	return &p, nil
}
