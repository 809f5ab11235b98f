package access

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/confidant-vault/confidant/internal/auth"
	"github.com/confidant-vault/confidant/internal/platform/httpx"
	"github.com/confidant-vault/confidant/internal/rbac"
	"github.com/confidant-vault/confidant/internal/shared"
)

// Handler manages access-right administration endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers access routes behind the auth middleware.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.grant)
	r.Delete("/", h.revoke)
	r.Get("/namespaces/{namespace}", h.listGrantees)
}

type rightRequest struct {
	Grantee   string `json:"grantee" validate:"required"`
	Namespace string `json:"namespace" validate:"required"`
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRight(w, r)
	if !ok {
		return
	}
	claims := auth.ClaimsFromContext(r.Context())
	if err := rbac.Authorize(rbac.CanGrantOrRevokeAccess(claims.Role), claims.Username, "grant access"); err != nil {
		h.deny(w, err)
		return
	}
	if err := h.service.Grant(r.Context(), req.Grantee, req.Namespace); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, req)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRight(w, r)
	if !ok {
		return
	}
	claims := auth.ClaimsFromContext(r.Context())
	if err := rbac.Authorize(rbac.CanGrantOrRevokeAccess(claims.Role), claims.Username, "revoke access"); err != nil {
		h.deny(w, err)
		return
	}
	if err := h.service.Revoke(r.Context(), req.Grantee, req.Namespace); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listGrantees(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	namespace := chi.URLParam(r, "namespace")
	if err := rbac.Authorize(rbac.CanGrantOrRevokeAccess(claims.Role), claims.Username, "list grantees for "+namespace); err != nil {
		h.deny(w, err)
		return
	}
	grantees, err := h.service.ListGranteesFor(r.Context(), namespace)
	if err != nil {
		h.logger.Error("list grantees", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"namespace": namespace, "grantees": grantees})
}

func (h *Handler) decodeRight(w http.ResponseWriter, r *http.Request) (*rightRequest, bool) {
	var req rightRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.InvalidArgument("body", "malformed JSON body"))
		return nil, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, shared.InvalidArgument("body", err.Error()))
		return nil, false
	}
	return &req, true
}

func (h *Handler) deny(w http.ResponseWriter, err error) {
	var unauthorized *shared.UnauthorizedError
	if errors.As(err, &unauthorized) {
		h.logger.Warn("authorization denied",
			slog.String("actor", unauthorized.Actor),
			slog.String("action", unauthorized.Action))
	}
	httpx.RespondError(w, err)
}
