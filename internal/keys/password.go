package keys

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const saltBytes = 32

// Credential is a salted password hash ready for persistence. The salt is
// generated fresh per credential and stored alongside the hash, never reused.
type Credential struct {
	Hash string
	Salt string
}

// NewCredential hashes a password with a fresh random salt at the given bcrypt cost.
func NewCredential(password string, cost int) (*Credential, error) {
	salt, err := generateSalt()
	if err != nil {
		return nil, fmt.Errorf("keys: generate salt: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword(foldPassword(password, salt), cost)
	if err != nil {
		return nil, fmt.Errorf("keys: hash password: %w", err)
	}
	return &Credential{Hash: string(hash), Salt: salt}, nil
}

// VerifyPassword reports whether the password matches the stored hash+salt.
func VerifyPassword(password, hash, salt string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), foldPassword(password, salt)) == nil
}

// foldPassword collapses password+salt into a fixed 32-byte digest. bcrypt
// errors on inputs over 72 bytes and the encoded salt alone takes 43, so the
// salted password must be folded before it reaches bcrypt.
func foldPassword(password, salt string) []byte {
	sum := sha256.Sum256([]byte(password + salt))
	return sum[:]
}

func generateSalt() (string, error) {
	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	return base64.RawStdEncoding.EncodeToString(salt), nil
}
