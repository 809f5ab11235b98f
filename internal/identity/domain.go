// Package identity maintains the durable directory of identities: human
// operators (root, admins) and the automated app consumers that own config
// namespaces.
package identity

import (
	"fmt"
	"time"

	"github.com/confidant-vault/confidant/internal/rbac"
	"github.com/confidant-vault/confidant/internal/shared"
)

// Identity is one account row. Username and role are immutable after creation.
type Identity struct {
	Username     string
	Role         rbac.Role
	PasswordHash string
	PasswordSalt string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

const (
	minIDLen = 4
	maxIDLen = 30
)

// ValidateID enforces the identifier rule shared by usernames and config keys:
// 4-30 characters, leading letter, letters/digits/underscore only.
func ValidateID(field, id string) error {
	if len(id) < minIDLen || len(id) > maxIDLen {
		return shared.InvalidArgument(field, fmt.Sprintf("must be between %d and %d characters", minIDLen, maxIDLen))
	}
	for _, c := range id {
		if !isLetter(c) && !isDigit(c) && c != '_' {
			return shared.InvalidArgument(field, "may only contain letters, digits and underscores")
		}
	}
	if c := rune(id[0]); !isLetter(c) {
		return shared.InvalidArgument(field, "must start with a letter")
	}
	return nil
}

func isLetter(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c rune) bool {
	return c >= '0' && c <= '9'
}
