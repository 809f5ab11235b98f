package rbac

import (
	"fmt"
	"strings"

	"github.com/confidant-vault/confidant/internal/shared"
)

// Role is the closed set of identity roles, ordered by creation authority:
// root above admin above app.
type Role int

const (
	// RoleApp is an automated consumer owning one config namespace.
	RoleApp Role = iota
	// RoleAdmin is a human operator who may be granted read access to namespaces.
	RoleAdmin
	// RoleRoot is the singular bootstrap operator. At most one exists.
	RoleRoot
)

// ParseRole converts the serialized role form (claims, DB rows) into the enum.
// Matching is case-insensitive; anything outside the closed set is rejected.
// Every boundary that receives a role string goes through this function; roles
// never travel as bare strings internally.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "root":
		return RoleRoot, nil
	case "admin":
		return RoleAdmin, nil
	case "app":
		return RoleApp, nil
	}
	return 0, shared.InvalidArgument("role", fmt.Sprintf("unknown role %q", s))
}

// String returns the persisted form of the role.
func (r Role) String() string {
	switch r {
	case RoleRoot:
		return "root"
	case RoleAdmin:
		return "admin"
	default:
		return "app"
	}
}
