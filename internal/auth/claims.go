// Package auth turns credentials into bearer tokens and bearer tokens back
// into validated requester claims. The core components only ever see the
// resulting (username, role) pair.
package auth

import (
	"context"

	"github.com/confidant-vault/confidant/internal/rbac"
)

// Claims is the validated requester delivered to every handler.
type Claims struct {
	Username string
	Role     rbac.Role
}

type claimsContextKey struct{}

// ContextWithClaims stores the requester claims in context.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// ClaimsFromContext extracts the requester claims from context, or nil.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsContextKey{}).(*Claims)
	return claims
}
