package secrets

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/confidant-vault/confidant/internal/auth"
	"github.com/confidant-vault/confidant/internal/observability"
	"github.com/confidant-vault/confidant/internal/platform/httpx"
	"github.com/confidant-vault/confidant/internal/rbac"
	"github.com/confidant-vault/confidant/internal/shared"
)

// RightChecker answers whether a grantee holds an access right on a namespace.
type RightChecker interface {
	Exists(ctx context.Context, grantee, namespace string) (bool, error)
}

// Handler serves the secret read/write/delete endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rights   RightChecker
	metrics  *observability.Metrics
	validate *validator.Validate
}

// NewHandler builds a Handler instance. Metrics may be nil.
func NewHandler(logger *slog.Logger, service *Service, rights RightChecker, metrics *observability.Metrics) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		rights:   rights,
		metrics:  metrics,
		validate: validator.New(),
	}
}

// MountRoutes registers secret routes behind the auth middleware.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/{namespace}", func(r chi.Router) {
		r.Get("/", h.listKeys)
		r.Put("/", h.write)
		r.Get("/{key}", h.read)
		r.Delete("/{key}", h.remove)
	})
}

type writeRequest struct {
	Key   string `json:"key" validate:"required"`
	Value string `json:"value" validate:"required"`
}

func (h *Handler) write(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")
	if !h.authorizeData(w, r, namespace, "write "+namespace) {
		return
	}
	var req writeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.InvalidArgument("body", "malformed JSON body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, shared.InvalidArgument("body", err.Error()))
		return
	}
	err := h.service.Write(r.Context(), namespace, req.Key, req.Value)
	h.metrics.ObserveSecretOp("write", err)
	if err != nil {
		h.logger.Error("write secret",
			slog.String("namespace", namespace),
			slog.String("key", req.Key),
			slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) read(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")
	key := chi.URLParam(r, "key")
	claims := auth.ClaimsFromContext(r.Context())
	if !h.authorizeData(w, r, namespace, "read "+namespace+"/"+key) {
		return
	}
	// Root holds the private half of its key pair, so it gets plaintext.
	// Everyone else receives their own ciphertext row and decrypts locally.
	if claims.Role == rbac.RoleRoot {
		plaintext, err := h.service.ReadAsRoot(r.Context(), namespace, key)
		h.metrics.ObserveSecretOp("read", err)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"namespace": namespace, "key": key, "value": plaintext})
		return
	}
	ciphertext, err := h.service.Read(r.Context(), claims.Username, namespace, key)
	h.metrics.ObserveSecretOp("read", err)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"namespace": namespace, "key": key, "ciphertext": ciphertext})
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")
	key := chi.URLParam(r, "key")
	if !h.authorizeData(w, r, namespace, "delete "+namespace+"/"+key) {
		return
	}
	err := h.service.Delete(r.Context(), namespace, key)
	h.metrics.ObserveSecretOp("delete", err)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listKeys(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")
	if !h.authorizeData(w, r, namespace, "list keys in "+namespace) {
		return
	}
	keys, err := h.service.ListKeys(r.Context(), namespace)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"namespace": namespace, "keys": keys})
}

// authorizeData enforces the data-access rule: root always, an app within its
// own namespace, or an admin holding an access right on the namespace.
func (h *Handler) authorizeData(w http.ResponseWriter, r *http.Request, namespace, action string) bool {
	claims := auth.ClaimsFromContext(r.Context())
	hasRight := false
	if claims.Role == rbac.RoleAdmin {
		ok, err := h.rights.Exists(r.Context(), claims.Username, namespace)
		if err != nil {
			h.logger.Error("access right lookup", slog.Any("error", err))
			httpx.RespondError(w, shared.ErrServer)
			return false
		}
		hasRight = ok
	}
	if err := rbac.Authorize(rbac.CanReadOrWrite(claims.Role, claims.Username, namespace, hasRight), claims.Username, action); err != nil {
		var unauthorized *shared.UnauthorizedError
		if errors.As(err, &unauthorized) {
			h.logger.Warn("authorization denied",
				slog.String("actor", unauthorized.Actor),
				slog.String("action", unauthorized.Action))
		}
		httpx.RespondError(w, err)
		return false
	}
	return true
}
