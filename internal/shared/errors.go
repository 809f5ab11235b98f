package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates an update or delete against a record that does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate indicates a create against an existing primary key.
	ErrDuplicate = errors.New("duplicate record")
	// ErrWrongCredentials indicates an authentication failure. Bad password and
	// unknown username both map here so callers cannot enumerate accounts.
	ErrWrongCredentials = errors.New("wrong credentials")
	// ErrServer is the catch-all for persistence and filesystem failures.
	ErrServer = errors.New("server error")
)

// InvalidArgumentError reports a malformed or disallowed request parameter.
type InvalidArgumentError struct {
	Field   string
	Message string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Field, e.Message)
}

// InvalidArgument builds an InvalidArgumentError.
func InvalidArgument(field, message string) error {
	return &InvalidArgumentError{Field: field, Message: message}
}

// UnauthorizedError reports an RBAC denial. Actor and Action are retained for
// security logging at the boundary.
type UnauthorizedError struct {
	Actor  string
	Action string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("user %q is unauthorized to %s", e.Actor, e.Action)
}

// Unauthorized builds an UnauthorizedError.
func Unauthorized(actor, action string) error {
	return &UnauthorizedError{Actor: actor, Action: action}
}

// CryptoError wraps an encryption or decryption failure. The cause is kept for
// logs only; the boundary surfaces it as a plain server error so callers cannot
// distinguish a wrong key from corrupted ciphertext.
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("crypto %s: %v", e.Op, e.Err)
}

func (e *CryptoError) Unwrap() error { return e.Err }

// WrapCrypto builds a CryptoError for the given operation.
func WrapCrypto(op string, err error) error {
	return &CryptoError{Op: op, Err: err}
}

// Serverf wraps a persistence or filesystem failure into ErrServer, keeping the
// cause visible for logging while callers match on ErrServer.
func Serverf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrServer)
}
