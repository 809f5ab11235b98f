// Package access maintains the durable relation recording which admin
// identities may read which app namespace. Root and the namespace owner are
// implicit recipients and are never stored here, so they can never be revoked.
package access

import "time"

// Right is one {grantee, namespace} row, unique on the pair. The grantee must
// currently be an admin identity and the namespace an app identity.
type Right struct {
	Grantee   string
	Namespace string
	CreatedAt time.Time
}
