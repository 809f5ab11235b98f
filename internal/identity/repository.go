package identity

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/confidant-vault/confidant/internal/rbac"
	"github.com/confidant-vault/confidant/internal/shared"
)

// Repository defines persistence operations for the identity directory.
type Repository interface {
	Get(ctx context.Context, username string) (*Identity, error)
	Exists(ctx context.Context, username string) (bool, error)
	ExistsWithRole(ctx context.Context, username string, role rbac.Role) (bool, error)
	RootExists(ctx context.Context) (bool, error)
	Create(ctx context.Context, ident *Identity) error
	UpdatePassword(ctx context.Context, username, hash, salt string) error
	Delete(ctx context.Context, username string) error
	ListByRole(ctx context.Context, role rbac.Role) ([]Identity, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const identityColumns = `username, role, password_hash, password_salt, created_at, updated_at`

// Get fetches one identity by username.
func (r *PGRepository) Get(ctx context.Context, username string) (*Identity, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE username = $1`, username)
	var ident Identity
	var role string
	err := row.Scan(&ident.Username, &role, &ident.PasswordHash, &ident.PasswordSalt, &ident.CreatedAt, &ident.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	if ident.Role, err = rbac.ParseRole(role); err != nil {
		return nil, err
	}
	return &ident, nil
}

// Exists reports whether the username is taken.
func (r *PGRepository) Exists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM identities WHERE username = $1)`, username).Scan(&exists)
	return exists, err
}

// ExistsWithRole reports whether the username exists and currently holds the role.
func (r *PGRepository) ExistsWithRole(ctx context.Context, username string, role rbac.Role) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM identities WHERE username = $1 AND role = $2)`,
		username, role.String()).Scan(&exists)
	return exists, err
}

// RootExists reports whether the singular root identity has been created.
func (r *PGRepository) RootExists(ctx context.Context) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM identities WHERE role = $1)`, rbac.RoleRoot.String()).Scan(&exists)
	return exists, err
}

// Create inserts a new identity row.
func (r *PGRepository) Create(ctx context.Context, ident *Identity) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO identities (username, role, password_hash, password_salt, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, now(), now())`,
		ident.Username, ident.Role.String(), ident.PasswordHash, ident.PasswordSalt)
	if isUniqueViolation(err) {
		return shared.ErrDuplicate
	}
	return err
}

// UpdatePassword replaces the stored credential for an existing identity.
func (r *PGRepository) UpdatePassword(ctx context.Context, username, hash, salt string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE identities SET password_hash = $2, password_salt = $3, updated_at = now() WHERE username = $1`,
		username, hash, salt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes the identity row. Cascades to access rights and secret rows
// are orchestrated one layer up.
func (r *PGRepository) Delete(ctx context.Context, username string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM identities WHERE username = $1`, username)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListByRole returns all identities currently holding the role.
func (r *PGRepository) ListByRole(ctx context.Context, role rbac.Role) ([]Identity, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE role = $1 ORDER BY username`, role.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var idents []Identity
	for rows.Next() {
		var ident Identity
		var roleStr string
		if err := rows.Scan(&ident.Username, &roleStr, &ident.PasswordHash, &ident.PasswordSalt, &ident.CreatedAt, &ident.UpdatedAt); err != nil {
			return nil, err
		}
		if ident.Role, err = rbac.ParseRole(roleStr); err != nil {
			return nil, err
		}
		idents = append(idents, ident)
	}
	return idents, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ Repository = (*PGRepository)(nil)
