// Package bootstrap performs first-run initialization: schema creation,
// data directories, the root key pair, and the root identity.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/confidant-vault/confidant/internal/identity"
	"github.com/confidant-vault/confidant/internal/keys"
	"github.com/confidant-vault/confidant/internal/shared"
)

const schema = `
CREATE TABLE IF NOT EXISTS identities (
    username      TEXT PRIMARY KEY,
    role          TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    password_salt TEXT NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS access_rights (
    grantee    TEXT NOT NULL REFERENCES identities (username) ON DELETE CASCADE,
    namespace  TEXT NOT NULL REFERENCES identities (username) ON DELETE CASCADE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (grantee, namespace)
);

CREATE TABLE IF NOT EXISTS config_data (
    namespace  TEXT NOT NULL,
    key        TEXT NOT NULL,
    recipient  TEXT NOT NULL REFERENCES identities (username) ON DELETE CASCADE,
    ciphertext TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (namespace, key, recipient)
);

CREATE INDEX IF NOT EXISTS config_data_namespace_idx ON config_data (namespace);
`

// Params carries everything Run needs.
type Params struct {
	Logger       *slog.Logger
	Pool         *pgxpool.Pool
	KeyStore     *keys.Store
	Identities   *identity.Service
	RootUsername string
	RootPassword string
}

// Run brings a fresh deployment to a usable state. It is idempotent:
// existing schema, key material, and the root identity are left alone.
func Run(ctx context.Context, p Params) error {
	if err := p.KeyStore.EnsureDirs(); err != nil {
		return fmt.Errorf("bootstrap: ensure data dirs: %w", err)
	}

	if _, err := p.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("bootstrap: create schema: %w", err)
	}

	if !p.KeyStore.RootKeyPairExists() {
		if _, err := p.KeyStore.GenerateRootKeyPair(); err != nil {
			return fmt.Errorf("bootstrap: generate root key pair: %w", err)
		}
		p.Logger.Info("generated root key pair")
	}

	if err := p.Identities.CreateRoot(ctx, p.RootUsername, p.RootPassword); err != nil {
		if errors.Is(err, shared.ErrDuplicate) {
			return nil
		}
		return fmt.Errorf("bootstrap: create root identity: %w", err)
	}
	p.Logger.Info("created root identity", slog.String("username", p.RootUsername))
	return nil
}
