// Package httpx maps core errors to RFC7807 problem responses.
package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/confidant-vault/confidant/internal/shared"
)

// ProblemDetail represents RFC7807 problem details.
type ProblemDetail struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Problem sends an RFC7807 problem details response.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	JSON(w, status, ProblemDetail{Title: title, Status: status, Detail: detail})
}

// DecodeJSON decodes a JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}

// RespondError maps the core error taxonomy to HTTP. Crypto failures and
// unexpected errors deliberately collapse into an opaque 500 so the response
// never acts as a decryption oracle.
func RespondError(w http.ResponseWriter, err error) {
	var invalid *shared.InvalidArgumentError
	var unauthorized *shared.UnauthorizedError
	switch {
	case errors.As(err, &invalid):
		Problem(w, http.StatusBadRequest, "Invalid Argument", invalid.Error())
	case errors.As(err, &unauthorized):
		Problem(w, http.StatusForbidden, "Unauthorized", unauthorized.Error())
	case errors.Is(err, shared.ErrWrongCredentials):
		Problem(w, http.StatusUnauthorized, "Wrong Credentials", "wrong credentials")
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", "record not found")
	case errors.Is(err, shared.ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", "duplicate record")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
