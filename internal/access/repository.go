package access

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/confidant-vault/confidant/internal/shared"
)

// Repository defines persistence operations for access rights.
type Repository interface {
	Exists(ctx context.Context, grantee, namespace string) (bool, error)
	Insert(ctx context.Context, grantee, namespace string) error
	Delete(ctx context.Context, grantee, namespace string) error
	ListNamespacesFor(ctx context.Context, grantee string) ([]string, error)
	ListGranteesFor(ctx context.Context, namespace string) ([]string, error)
	DeleteAllForIdentity(ctx context.Context, username string) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Exists reports whether the {grantee, namespace} pair is recorded.
func (r *PGRepository) Exists(ctx context.Context, grantee, namespace string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM access_rights WHERE grantee = $1 AND namespace = $2)`,
		grantee, namespace).Scan(&exists)
	return exists, err
}

// Insert records a new access right.
func (r *PGRepository) Insert(ctx context.Context, grantee, namespace string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO access_rights (grantee, namespace, created_at) VALUES ($1, $2, now())`,
		grantee, namespace)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return shared.ErrDuplicate
	}
	return err
}

// Delete removes an access right.
func (r *PGRepository) Delete(ctx context.Context, grantee, namespace string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM access_rights WHERE grantee = $1 AND namespace = $2`, grantee, namespace)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListNamespacesFor returns every namespace the grantee may read.
func (r *PGRepository) ListNamespacesFor(ctx context.Context, grantee string) ([]string, error) {
	return r.list(ctx,
		`SELECT namespace FROM access_rights WHERE grantee = $1 ORDER BY namespace`, grantee)
}

// ListGranteesFor returns every admin holding a right to the namespace.
func (r *PGRepository) ListGranteesFor(ctx context.Context, namespace string) ([]string, error) {
	return r.list(ctx,
		`SELECT grantee FROM access_rights WHERE namespace = $1 ORDER BY grantee`, namespace)
}

// DeleteAllForIdentity removes every row where the identity appears as grantee
// or namespace. Invoked when an identity is deleted.
func (r *PGRepository) DeleteAllForIdentity(ctx context.Context, username string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM access_rights WHERE grantee = $1 OR namespace = $1`, username)
	return err
}

func (r *PGRepository) list(ctx context.Context, query, arg string) ([]string, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

var _ Repository = (*PGRepository)(nil)
