package keys

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/confidant-vault/confidant/internal/shared"
)

const (
	rootPrivateFilename = "root-key.pem"
	rootPublicFilename  = "root-cert.pem"
)

// Store persists public-key blobs, one PEM file per Admin/App identity keyed by
// username, plus the full root key pair. It is the only component that touches
// key material on disk.
type Store struct {
	userCertDir string
	rootCertDir string
}

// NewStore builds a Store rooted at the given directories.
func NewStore(userCertDir, rootCertDir string) *Store {
	return &Store{userCertDir: userCertDir, rootCertDir: rootCertDir}
}

// EnsureDirs creates the key directories if missing.
func (s *Store) EnsureDirs() error {
	for _, dir := range []string{s.userCertDir, s.rootCertDir} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("keys: create dir %s: %w", dir, err)
		}
	}
	return nil
}

func (s *Store) userCertPath(username string) string {
	return filepath.Join(s.userCertDir, username+"-cert.pem")
}

// WritePublicKey stores an identity's public key PEM. The blob is write-once:
// public keys are immutable after identity creation.
func (s *Store) WritePublicKey(username string, pemData []byte) error {
	if _, err := ParsePublicPEM(pemData); err != nil {
		// The blob comes straight from the request body, so a parse failure
		// is the caller's input, not a server fault.
		return shared.InvalidArgument("public_key", "not a valid PKIX RSA public key PEM")
	}
	return os.WriteFile(s.userCertPath(username), pemData, 0o644)
}

// ReadPublicKey loads an identity's public key.
func (s *Store) ReadPublicKey(username string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(s.userCertPath(username))
	if err != nil {
		return nil, err
	}
	return ParsePublicPEM(data)
}

// DeletePublicKey removes an identity's public key blob. A missing blob is not
// an error so identity deletion stays idempotent across a partial failure.
func (s *Store) DeletePublicKey(username string) error {
	err := os.Remove(s.userCertPath(username))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// RootKeyPairExists reports whether a root key pair has been generated.
func (s *Store) RootKeyPairExists() bool {
	_, err := os.Stat(filepath.Join(s.rootCertDir, rootPrivateFilename))
	return err == nil
}

// GenerateRootKeyPair creates and persists the root key pair. Root is the only
// identity whose private half the server retains.
func (s *Store) GenerateRootKeyPair() (*KeyPair, error) {
	pair, err := Generate()
	if err != nil {
		return nil, err
	}
	err = SaveKeyPair(pair,
		filepath.Join(s.rootCertDir, rootPrivateFilename),
		filepath.Join(s.rootCertDir, rootPublicFilename))
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// LoadRootKeyPair reads the persisted root key pair. It is loaded once at
// startup and read-only for the process lifetime.
func (s *Store) LoadRootKeyPair() (*KeyPair, error) {
	private, err := LoadPrivatePEMFile(filepath.Join(s.rootCertDir, rootPrivateFilename))
	if err != nil {
		return nil, fmt.Errorf("keys: load root key pair: %w", err)
	}
	return &KeyPair{Private: private, Public: &private.PublicKey}, nil
}
