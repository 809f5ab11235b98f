// Package rbac holds the role enum and the pure role-hierarchy decision
// functions. Nothing here touches storage: entitlement lookups are performed
// by the caller and passed in as booleans, which keeps every rule
// unit-testable without a database.
package rbac

import (
	"github.com/confidant-vault/confidant/internal/shared"
)

// CanCreate reports whether an identity of creatorRole may create an identity
// of targetRole. Root may create any role, admin only apps, apps nothing.
func CanCreate(creatorRole, targetRole Role) bool {
	switch creatorRole {
	case RoleRoot:
		return true
	case RoleAdmin:
		return targetRole == RoleApp
	default:
		return false
	}
}

// CanReadOrWrite reports whether the requester may access a namespace's
// secrets: root always, the namespace identity itself, or an admin holding a
// current access right (hasAccessRight is the oracle's answer).
func CanReadOrWrite(requesterRole Role, requesterUsername, namespace string, hasAccessRight bool) bool {
	if requesterRole == RoleRoot {
		return true
	}
	if requesterUsername == namespace {
		return true
	}
	return requesterRole == RoleAdmin && hasAccessRight
}

// CanGrantOrRevokeAccess reports whether the requester may administer access
// rights. Only admins and root qualify.
func CanGrantOrRevokeAccess(requesterRole Role) bool {
	return requesterRole == RoleAdmin || requesterRole == RoleRoot
}

// IsAdminOrSelf reports whether the requester is an operator or the subject of
// the request itself.
func IsAdminOrSelf(requesterRole Role, requesterUsername, subject string) bool {
	return CanGrantOrRevokeAccess(requesterRole) || requesterUsername == subject
}

// Authorize is the uniform guard: it converts a decision into either success
// or an Unauthorized error carrying actor and action for security logging.
func Authorize(authorized bool, actor, action string) error {
	if authorized {
		return nil
	}
	return shared.Unauthorized(actor, action)
}
