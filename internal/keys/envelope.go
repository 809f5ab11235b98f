package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
	"unicode/utf8"

	"github.com/confidant-vault/confidant/internal/shared"
)

// pkcs1v15Overhead is the minimum padding PKCS#1 v1.5 adds to every message.
const pkcs1v15Overhead = 11

// challengeLength is the size of the random plaintext used to prove key possession.
const challengeLength = 30

const alphanumerics = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// MaxPlaintextSize returns the payload ceiling for the given public key. Config
// values are short secrets by construction; anything larger must be rejected
// before reaching the cipher.
func MaxPlaintextSize(public *rsa.PublicKey) int {
	return public.Size() - pkcs1v15Overhead
}

// Encrypt encrypts a short plaintext under the recipient's public key and
// returns it base64-encoded (unpadded, standard alphabet).
func Encrypt(public *rsa.PublicKey, plaintext string) (string, error) {
	if max := MaxPlaintextSize(public); len(plaintext) > max {
		return "", shared.InvalidArgument("value", fmt.Sprintf("plaintext exceeds the %d byte ceiling for this key", max))
	}
	ciphertext, err := rsa.EncryptPKCS1v15(rand.Reader, public, []byte(plaintext))
	if err != nil {
		return "", shared.WrapCrypto("encrypt", err)
	}
	return base64.RawStdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt with the recipient's private key. Malformed
// encoding, a wrong key, and corrupted ciphertext are indistinguishable to the
// caller by design.
func Decrypt(private *rsa.PrivateKey, ciphertext string) (string, error) {
	raw, err := base64.RawStdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", shared.WrapCrypto("decode", err)
	}
	plaintext, err := rsa.DecryptPKCS1v15(rand.Reader, private, raw)
	if err != nil {
		return "", shared.WrapCrypto("decrypt", err)
	}
	if !utf8.Valid(plaintext) {
		return "", shared.WrapCrypto("decrypt", fmt.Errorf("plaintext is not valid UTF-8"))
	}
	return string(plaintext), nil
}

// Challenge is a fresh plaintext/ciphertext pair. A client proves possession of
// the matching private key by returning the decrypted plaintext.
type Challenge struct {
	Plaintext  string
	Ciphertext string
}

// NewChallenge derives a validation challenge from the identity's public key.
func NewChallenge(public *rsa.PublicKey) (*Challenge, error) {
	plaintext, err := randomAlphanumeric(challengeLength)
	if err != nil {
		return nil, shared.WrapCrypto("challenge", err)
	}
	ciphertext, err := Encrypt(public, plaintext)
	if err != nil {
		return nil, err
	}
	return &Challenge{Plaintext: plaintext, Ciphertext: ciphertext}, nil
}

func randomAlphanumeric(n int) (string, error) {
	out := make([]byte, n)
	max := big.NewInt(int64(len(alphanumerics)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = alphanumerics[idx.Int64()]
	}
	return string(out), nil
}
