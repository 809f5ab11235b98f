package secrets

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/confidant-vault/confidant/internal/platform/db"
	"github.com/confidant-vault/confidant/internal/shared"
)

// Repository defines persistence operations for secret rows.
type Repository interface {
	GetCiphertext(ctx context.Context, namespace, key, recipient string) (string, error)
	ExistsForKey(ctx context.Context, namespace, key string) (bool, error)
	CountForKey(ctx context.Context, namespace, key string) (int, error)
	// ReplaceForKey deletes every row for (namespace, key) and inserts the
	// given rows inside one transaction, so a reader never observes a partial
	// recipient set.
	ReplaceForKey(ctx context.Context, namespace, key string, rows []Record) error
	DeleteForKey(ctx context.Context, namespace, key string) error
	DeleteAllForNamespace(ctx context.Context, namespace string) error
	DeleteAllForRecipient(ctx context.Context, recipient string) error
	ListKeys(ctx context.Context, namespace string) ([]string, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// GetCiphertext returns the recipient's own row for (namespace, key). A caller
// without a row gets ErrNotFound regardless of why the row is absent.
func (r *PGRepository) GetCiphertext(ctx context.Context, namespace, key, recipient string) (string, error) {
	var ciphertext string
	err := r.pool.QueryRow(ctx,
		`SELECT ciphertext FROM config_data WHERE namespace = $1 AND key = $2 AND recipient = $3`,
		namespace, key, recipient).Scan(&ciphertext)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", shared.ErrNotFound
	}
	return ciphertext, err
}

// ExistsForKey reports whether any row exists for (namespace, key).
func (r *PGRepository) ExistsForKey(ctx context.Context, namespace, key string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM config_data WHERE namespace = $1 AND key = $2)`,
		namespace, key).Scan(&exists)
	return exists, err
}

// CountForKey returns the number of recipient rows for (namespace, key).
func (r *PGRepository) CountForKey(ctx context.Context, namespace, key string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM config_data WHERE namespace = $1 AND key = $2`,
		namespace, key).Scan(&count)
	return count, err
}

// ReplaceForKey atomically swaps the full row set for (namespace, key).
func (r *PGRepository) ReplaceForKey(ctx context.Context, namespace, key string, rows []Record) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM config_data WHERE namespace = $1 AND key = $2`, namespace, key); err != nil {
			return err
		}
		for _, row := range rows {
			_, err := tx.Exec(ctx,
				`INSERT INTO config_data (namespace, key, recipient, ciphertext, created_at)
				 VALUES ($1, $2, $3, $4, now())`,
				row.Namespace, row.Key, row.Recipient, row.Ciphertext)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteForKey removes every recipient row for (namespace, key).
func (r *PGRepository) DeleteForKey(ctx context.Context, namespace, key string) error {
	return r.exec(ctx,
		`DELETE FROM config_data WHERE namespace = $1 AND key = $2`, namespace, key)
}

// DeleteAllForNamespace removes every row belonging to the app namespace.
func (r *PGRepository) DeleteAllForNamespace(ctx context.Context, namespace string) error {
	return r.exec(ctx, `DELETE FROM config_data WHERE namespace = $1`, namespace)
}

// DeleteAllForRecipient removes every row encrypted for the recipient.
func (r *PGRepository) DeleteAllForRecipient(ctx context.Context, recipient string) error {
	return r.exec(ctx, `DELETE FROM config_data WHERE recipient = $1`, recipient)
}

// ListKeys returns the distinct config keys stored for a namespace.
func (r *PGRepository) ListKeys(ctx context.Context, namespace string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT key FROM config_data WHERE namespace = $1 ORDER BY key`, namespace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (r *PGRepository) exec(ctx context.Context, sql string, args ...any) error {
	_, err := r.pool.Exec(ctx, sql, args...)
	return err
}

var _ Repository = (*PGRepository)(nil)
