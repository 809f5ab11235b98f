package secrets

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/confidant-vault/confidant/internal/auth"
	"github.com/confidant-vault/confidant/internal/keys"
	"github.com/confidant-vault/confidant/internal/rbac"
)

type stubRightChecker struct {
	rights map[[2]string]bool
}

func (c *stubRightChecker) Exists(ctx context.Context, grantee, namespace string) (bool, error) {
	return c.rights[[2]string{grantee, namespace}], nil
}

func asUser(username string, role rbac.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := &auth.Claims{Username: username, Role: role}
			next.ServeHTTP(w, r.WithContext(auth.ContextWithClaims(r.Context(), claims)))
		})
	}
}

func newSecretsRouter(t *testing.T, f *secretsFixture, rights *stubRightChecker, username string, role rbac.Role) chi.Router {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewHandler(logger, f.svc, rights, nil)
	r := chi.NewRouter()
	r.Use(asUser(username, role))
	handler.MountRoutes(r)
	return r
}

func writeSecret(t *testing.T, router chi.Router, namespace, key, value string) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(map[string]string{"key": key, "value": value})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPut, "/"+namespace, bytes.NewReader(payload))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestAppWritesAndReadsOwnNamespace(t *testing.T) {
	f := newSecretsFixture(t)
	rights := &stubRightChecker{rights: map[[2]string]bool{}}
	router := newSecretsRouter(t, f, rights, "billing", rbac.RoleApp)

	rr := writeSecret(t, router, "billing", "db_url", "postgres://db")
	require.Equal(t, http.StatusNoContent, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/billing/db_url", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	plaintext, err := keys.Decrypt(f.pairs["billing"].Private, resp["ciphertext"])
	require.NoError(t, err)
	require.Equal(t, "postgres://db", plaintext)
}

func TestAppCannotTouchForeignNamespace(t *testing.T) {
	f := newSecretsFixture(t)
	rights := &stubRightChecker{rights: map[[2]string]bool{}}
	router := newSecretsRouter(t, f, rights, "billing", rbac.RoleApp)

	rr := writeSecret(t, router, "payments", "db_url", "postgres://db")
	require.Equal(t, http.StatusForbidden, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/payments/db_url", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestAdminAccessGate(t *testing.T) {
	f := newSecretsFixture(t)
	rights := &stubRightChecker{rights: map[[2]string]bool{
		{"alice", "billing"}: true,
	}}
	f.lister.grantees["billing"] = []string{"alice"}
	router := newSecretsRouter(t, f, rights, "alice", rbac.RoleAdmin)

	// granted namespace works
	rr := writeSecret(t, router, "billing", "db_url", "v1")
	require.Equal(t, http.StatusNoContent, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/billing/db_url", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	// ungranted namespace is refused
	rr = writeSecret(t, router, "payments", "db_url", "v1")
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestRootReadsPlaintext(t *testing.T) {
	f := newSecretsFixture(t)
	rights := &stubRightChecker{rights: map[[2]string]bool{}}
	appRouter := newSecretsRouter(t, f, rights, "billing", rbac.RoleApp)
	rootRouter := newSecretsRouter(t, f, rights, "root_user", rbac.RoleRoot)

	rr := writeSecret(t, appRouter, "billing", "db_url", "postgres://db")
	require.Equal(t, http.StatusNoContent, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/billing/db_url", nil)
	rr = httptest.NewRecorder()
	rootRouter.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "postgres://db", resp["value"])
}

func TestDeleteEndpoint(t *testing.T) {
	f := newSecretsFixture(t)
	rights := &stubRightChecker{rights: map[[2]string]bool{}}
	router := newSecretsRouter(t, f, rights, "billing", rbac.RoleApp)

	rr := writeSecret(t, router, "billing", "db_url", "v1")
	require.Equal(t, http.StatusNoContent, rr.Code)

	req := httptest.NewRequest(http.MethodDelete, "/billing/db_url", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)

	// the key is gone now
	req = httptest.NewRequest(http.MethodDelete, "/billing/db_url", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListKeysEndpoint(t *testing.T) {
	f := newSecretsFixture(t)
	rights := &stubRightChecker{rights: map[[2]string]bool{}}
	router := newSecretsRouter(t, f, rights, "billing", rbac.RoleApp)

	require.Equal(t, http.StatusNoContent, writeSecret(t, router, "billing", "db_url", "a").Code)
	require.Equal(t, http.StatusNoContent, writeSecret(t, router, "billing", "api_token", "b").Code)

	req := httptest.NewRequest(http.MethodGet, "/billing", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Namespace string   `json:"namespace"`
		Keys      []string `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, []string{"api_token", "db_url"}, resp.Keys)
}

func TestWriteRejectsBadBody(t *testing.T) {
	f := newSecretsFixture(t)
	rights := &stubRightChecker{rights: map[[2]string]bool{}}
	router := newSecretsRouter(t, f, rights, "billing", rbac.RoleApp)

	req := httptest.NewRequest(http.MethodPut, "/billing", bytes.NewBufferString("{"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	req = httptest.NewRequest(http.MethodPut, "/billing", bytes.NewBufferString(`{"key":"db_url"}`))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
