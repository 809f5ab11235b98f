package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/confidant-vault/confidant/internal/rbac"
	"github.com/confidant-vault/confidant/internal/shared"
)

// TokenManager stores opaque bearer tokens in Redis, each mapping to the
// claims of one authenticated identity until the TTL expires.
type TokenManager struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

type tokenPayload struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

// NewTokenManager constructs a TokenManager.
func NewTokenManager(client *redis.Client, prefix string, ttl time.Duration) *TokenManager {
	return &TokenManager{client: client, prefix: prefix, ttl: ttl}
}

// Issue creates a fresh token for the identity.
func (tm *TokenManager) Issue(ctx context.Context, username string, role rbac.Role) (string, error) {
	token := uuid.NewString()
	payload, err := json.Marshal(tokenPayload{Username: username, Role: role.String()})
	if err != nil {
		return "", err
	}
	if err := tm.client.Set(ctx, tm.key(token), payload, tm.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Resolve maps a presented token back to its claims. Unknown and expired
// tokens both come back as ErrWrongCredentials.
func (tm *TokenManager) Resolve(ctx context.Context, token string) (*Claims, error) {
	data, err := tm.client.Get(ctx, tm.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, shared.ErrWrongCredentials
		}
		return nil, err
	}
	var payload tokenPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	role, err := rbac.ParseRole(payload.Role)
	if err != nil {
		return nil, err
	}
	return &Claims{Username: payload.Username, Role: role}, nil
}

// Revoke deletes a token. Revoking an unknown token is a no-op.
func (tm *TokenManager) Revoke(ctx context.Context, token string) error {
	err := tm.client.Del(ctx, tm.key(token)).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

func (tm *TokenManager) key(token string) string {
	return tm.prefix + ":" + token
}
