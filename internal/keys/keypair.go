// Package keys owns asymmetric key material: generation, PEM serialization,
// envelope encryption of short secrets, and password credentials.
package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

// KeySize is the RSA modulus size used for every identity key pair.
const KeySize = 2048

const (
	privatePEMType = "RSA PRIVATE KEY"
	publicPEMType  = "PUBLIC KEY"
)

// KeyPair holds an identity's RSA key pair. The server retains the private
// half only for the root identity; all other identities keep it client-side.
type KeyPair struct {
	Private *rsa.PrivateKey
	Public  *rsa.PublicKey
}

// Generate creates a fresh RSA key pair. Failure means the entropy source is
// broken and is fatal for the caller.
func Generate() (*KeyPair, error) {
	private, err := rsa.GenerateKey(rand.Reader, KeySize)
	if err != nil {
		return nil, fmt.Errorf("keys: generate: %w", err)
	}
	return &KeyPair{Private: private, Public: &private.PublicKey}, nil
}

// EncodePrivatePEM serializes the private key as PKCS#1 PEM.
func EncodePrivatePEM(key *rsa.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  privatePEMType,
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
}

// EncodePublicPEM serializes the public key as PKIX PEM.
func EncodePublicPEM(key *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return nil, fmt.Errorf("keys: marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: publicPEMType, Bytes: der}), nil
}

// ParsePrivatePEM reads a PKCS#1 PEM private key.
func ParsePrivatePEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != privatePEMType {
		return nil, fmt.Errorf("keys: no %s PEM block found", privatePEMType)
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("keys: parse private key: %w", err)
	}
	return key, nil
}

// ParsePublicPEM reads a PKIX PEM public key.
func ParsePublicPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != publicPEMType {
		return nil, fmt.Errorf("keys: no %s PEM block found", publicPEMType)
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("keys: parse public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("keys: not an RSA public key")
	}
	return rsaPub, nil
}

// LoadPrivatePEMFile reads a private key from disk.
func LoadPrivatePEMFile(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParsePrivatePEM(data)
}

// SaveKeyPair writes both halves of the pair to the given paths with owner-only
// permissions on the private key.
func SaveKeyPair(pair *KeyPair, privatePath, publicPath string) error {
	if err := os.WriteFile(privatePath, EncodePrivatePEM(pair.Private), 0o600); err != nil {
		return fmt.Errorf("keys: write private key: %w", err)
	}
	publicPEM, err := EncodePublicPEM(pair.Public)
	if err != nil {
		return err
	}
	if err := os.WriteFile(publicPath, publicPEM, 0o644); err != nil {
		return fmt.Errorf("keys: write public key: %w", err)
	}
	return nil
}
