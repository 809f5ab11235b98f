package access

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/confidant-vault/confidant/internal/auth"
	"github.com/confidant-vault/confidant/internal/rbac"
)

func newAccessRouter(svc *Service, username string, role rbac.Role) chi.Router {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewHandler(logger, svc)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			claims := &auth.Claims{Username: username, Role: role}
			next.ServeHTTP(w, req.WithContext(auth.ContextWithClaims(req.Context(), claims)))
		})
	})
	handler.MountRoutes(r)
	return r
}

func sendRight(t *testing.T, router chi.Router, method, grantee, namespace string) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(map[string]string{"grantee": grantee, "namespace": namespace})
	require.NoError(t, err)
	req := httptest.NewRequest(method, "/", bytes.NewReader(payload))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestGrantRevokeEndpoints(t *testing.T) {
	svc, _ := newTestAccessService()
	router := newAccessRouter(svc, "root_user", rbac.RoleRoot)

	rr := sendRight(t, router, http.MethodPost, "alice", "billing")
	require.Equal(t, http.StatusCreated, rr.Code)

	// duplicate grant conflicts
	rr = sendRight(t, router, http.MethodPost, "alice", "billing")
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = sendRight(t, router, http.MethodDelete, "alice", "billing")
	require.Equal(t, http.StatusNoContent, rr.Code)

	// revoking a right that is not recorded fails
	rr = sendRight(t, router, http.MethodDelete, "alice", "billing")
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGrantRefusedForApps(t *testing.T) {
	svc, _ := newTestAccessService()
	router := newAccessRouter(svc, "billing", rbac.RoleApp)

	rr := sendRight(t, router, http.MethodPost, "alice", "billing")
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = sendRight(t, router, http.MethodDelete, "alice", "billing")
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestGrantValidationSurfacesBadRequest(t *testing.T) {
	svc, _ := newTestAccessService()
	router := newAccessRouter(svc, "alice", rbac.RoleAdmin)

	// unknown namespace
	rr := sendRight(t, router, http.MethodPost, "alice", "ghost")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	// missing fields
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"grantee":"alice"}`))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListGranteesEndpoint(t *testing.T) {
	svc, _ := newTestAccessService()
	admin := newAccessRouter(svc, "alice", rbac.RoleAdmin)

	require.Equal(t, http.StatusCreated, sendRight(t, admin, http.MethodPost, "alice", "billing").Code)
	require.Equal(t, http.StatusCreated, sendRight(t, admin, http.MethodPost, "bob", "billing").Code)

	req := httptest.NewRequest(http.MethodGet, "/namespaces/billing", nil)
	rr := httptest.NewRecorder()
	admin.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Namespace string   `json:"namespace"`
		Grantees  []string `json:"grantees"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, []string{"alice", "bob"}, resp.Grantees)

	// apps may not enumerate grantees
	app := newAccessRouter(svc, "billing", rbac.RoleApp)
	rr = httptest.NewRecorder()
	app.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/namespaces/billing", nil))
	require.Equal(t, http.StatusForbidden, rr.Code)
}
