package identity

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

// Handler manages the identity directory endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers identity routes. The router group is already behind
// the auth middleware.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Put("/", h.alterIdentity)
	r.Delete("/{username}", h.deleteIdentity)
	r.Post("/{username}/challenge", h.challenge)
}

type alterIdentityRequest struct {
	Username  string `json:"username" validate:"required"`
	Password  string `json:"password" validate:"required,min=8"`
	Role      string `json:"role,omitempty"`
	PublicKey string `json:"public_key,omitempty"`
}

// alterIdentity creates a new identity or, when the username already exists,
// rotates its password. Role and public key are immutable after creation.
func (h *Handler) alterIdentity(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	var req alterIdentityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.InvalidArgument("body", "malformed JSON body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, shared.InvalidArgument("body", err.Error()))
		return
	}

	exists, err := h.service.Exists(r.Context(), req.Username)
	if err != nil {
		h.fail(w, "check identity exists", err)
		return
	}

	if exists {
		if req.Role != "" {
			httpx.RespondError(w, shared.InvalidArgument("role", "role cannot be changed after creation"))
			return
		}
		if req.PublicKey != "" {
			httpx.RespondError(w, shared.InvalidArgument("public_key", "public key cannot be changed after creation"))
			return
		}
		// Rotating someone else's password takes over their decryption
		// grants, so it demands the same authority as creating them.
		if req.Username != claims.Username {
			targetRole, err := h.service.GetRole(r.Context(), req.Username)
			if err != nil {
				h.fail(w, "resolve identity role", err)
				return
			}
			if err := rbac.Authorize(rbac.CanCreate(claims.Role, targetRole), claims.Username, "rotate password for "+req.Username); err != nil {
				h.deny(w, err)
				return
			}
		}
		if err := h.service.UpdatePassword(r.Context(), req.Username, req.Password); err != nil {
			h.fail(w, "update password", err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"username": req.Username})
		return
	}

	if req.Role == "" {
		httpx.RespondError(w, shared.InvalidArgument("role", "role is required when creating an identity"))
		return
	}
	role, err := rbac.ParseRole(req.Role)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := rbac.Authorize(rbac.CanCreate(claims.Role, role), claims.Username, "create a "+role.String()+" identity"); err != nil {
		h.deny(w, err)
		return
	}

	if role == rbac.RoleRoot {
		err = h.service.CreateRoot(r.Context(), req.Username, req.Password)
	} else {
		err = h.service.Create(r.Context(), req.Username, role, req.Password, []byte(req.PublicKey))
	}
	if err != nil {
		h.fail(w, "create identity", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"username": req.Username, "role": role.String()})
}

func (h *Handler) deleteIdentity(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	username := chi.URLParam(r, "username")

	targetRole, err := h.service.GetRole(r.Context(), username)
	if err != nil {
		h.fail(w, "resolve identity role", err)
		return
	}
	// Deletion authority mirrors creation authority: root may delete anyone
	// but itself, admins may delete apps.
	if err := rbac.Authorize(rbac.CanCreate(claims.Role, targetRole), claims.Username, "delete identity "+username); err != nil {
		h.deny(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), username); err != nil {
		h.fail(w, "delete identity", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) challenge(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	username := chi.URLParam(r, "username")

	if err := rbac.Authorize(rbac.IsAdminOrSelf(claims.Role, claims.Username, username), claims.Username, "challenge identity "+username); err != nil {
		h.deny(w, err)
		return
	}
	challenge, err := h.service.Challenge(r.Context(), username)
	if err != nil {
		h.fail(w, "derive challenge", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{
		"plaintext":  challenge.Plaintext,
		"ciphertext": challenge.Ciphertext,
	})
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

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, shared.ErrServer) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
