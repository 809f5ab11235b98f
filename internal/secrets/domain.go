// Package secrets is the config-value repository. One logical (namespace, key)
// secret is stored as a set of ciphertext rows, one per identity entitled to
// read it at the time of the last write. Values never touch storage in
// plaintext.
package secrets

import "time"

// Record is one ciphertext row, keyed by (namespace, key, recipient). Every
// row for the same (namespace, key) decrypts to the identical plaintext under
// its recipient's private key.
type Record struct {
	Namespace  string
	Key        string
	Recipient  string
	Ciphertext string
	CreatedAt  time.Time
}
