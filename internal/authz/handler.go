package authz

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/faultline/faultline/internal/platform/httpx"
	"github.com/faultline/faultline/internal/shared"
)

// Handler exposes the engine over JSON: capability introspection for the
// current actor plus the administrative override and membership surface.
type Handler struct {
	logger   *slog.Logger
	checker  Checker
	admin    *Admin
	mw       Middleware
	validate *validator.Validate
}

// NewHandler builds the HTTP handler.
func NewHandler(logger *slog.Logger, checker Checker, admin *Admin, mw Middleware) *Handler {
	return &Handler{
		logger:   logger,
		checker:  checker,
		admin:    admin,
		mw:       mw,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers the authz routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/capabilities", h.listCapabilities)
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAny(CapMembersManage, CapTeamsManage))
		r.Put("/actors/{actorID}/overrides", h.setActorOverride)
		r.Delete("/actors/{actorID}/overrides", h.removeActorOverride)
		r.Put("/actors/{actorID}/record-overrides", h.setRecordOverride)
		r.Delete("/actors/{actorID}/record-overrides", h.removeRecordOverride)
		r.Put("/teams/{teamID}/members/{actorID}", h.setMembershipRole)
		r.Delete("/teams/{teamID}/members/{actorID}", h.removeMembership)
	})
}

// listCapabilities reports the capabilities the current actor holds in
// the requested scope (optional ?team= query parameter).
func (h *Handler) listCapabilities(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "no session")
		return
	}
	id, superAdmin, ok := sess.Actor()
	if !ok {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "not signed in")
		return
	}
	actor := &Actor{ID: id, SuperAdmin: superAdmin}

	scope := Scope{}
	if raw := r.URL.Query().Get("team"); raw != "" {
		teamID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Team Parameter", "")
			return
		}
		scope = TeamScope(teamID)
	}

	granted, err := h.checker.CapabilitiesFor(r.Context(), actor, scope)
	if err != nil {
		h.logger.Error("list capabilities", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Capability Lookup Failed", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"capabilities": granted})
}

type actorOverrideRequest struct {
	Capability string     `json:"capability" validate:"required"`
	TeamID     *int64     `json:"team_id"`
	GrantType  string     `json:"grant_type" validate:"required,oneof=grant revoke"`
	ExpiresAt  *time.Time `json:"expires_at"`
}

func (h *Handler) setActorOverride(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.pathID(w, r, "actorID")
	if !ok {
		return
	}
	var req actorOverrideRequest
	if !h.decode(w, r, &req) {
		return
	}
	grantedBy := h.currentActorID(r)
	err := h.admin.SetActorOverride(r.Context(), actorID, req.Capability, req.TeamID, GrantType(req.GrantType), grantedBy, req.ExpiresAt)
	if err != nil {
		h.respondAdminError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type actorOverrideKeyRequest struct {
	Capability string `json:"capability" validate:"required"`
	TeamID     *int64 `json:"team_id"`
}

func (h *Handler) removeActorOverride(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.pathID(w, r, "actorID")
	if !ok {
		return
	}
	var req actorOverrideKeyRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.admin.RemoveActorOverride(r.Context(), actorID, req.Capability, req.TeamID); err != nil {
		h.respondAdminError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type recordOverrideRequest struct {
	Capability string     `json:"capability" validate:"required"`
	OwnerType  string     `json:"owner_type" validate:"required"`
	OwnerID    int64      `json:"owner_id" validate:"required"`
	GrantType  string     `json:"grant_type" validate:"required,oneof=grant revoke"`
	ExpiresAt  *time.Time `json:"expires_at"`
}

func (h *Handler) setRecordOverride(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.pathID(w, r, "actorID")
	if !ok {
		return
	}
	var req recordOverrideRequest
	if !h.decode(w, r, &req) {
		return
	}
	record := RecordRef{Type: req.OwnerType, ID: req.OwnerID}
	grantedBy := h.currentActorID(r)
	err := h.admin.SetRecordOverride(r.Context(), actorID, req.Capability, record, GrantType(req.GrantType), grantedBy, req.ExpiresAt)
	if err != nil {
		h.respondAdminError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type recordOverrideKeyRequest struct {
	Capability string `json:"capability" validate:"required"`
	OwnerType  string `json:"owner_type" validate:"required"`
	OwnerID    int64  `json:"owner_id" validate:"required"`
}

func (h *Handler) removeRecordOverride(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.pathID(w, r, "actorID")
	if !ok {
		return
	}
	var req recordOverrideKeyRequest
	if !h.decode(w, r, &req) {
		return
	}
	record := RecordRef{Type: req.OwnerType, ID: req.OwnerID}
	if err := h.admin.RemoveRecordOverride(r.Context(), actorID, req.Capability, record); err != nil {
		h.respondAdminError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type membershipRequest struct {
	Role string `json:"role" validate:"required,oneof=owner admin developer member viewer"`
}

func (h *Handler) setMembershipRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.pathID(w, r, "actorID")
	if !ok {
		return
	}
	teamID, ok := h.pathID(w, r, "teamID")
	if !ok {
		return
	}
	var req membershipRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.admin.SetMembershipRole(r.Context(), actorID, teamID, Role(req.Role)); err != nil {
		h.respondAdminError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeMembership(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.pathID(w, r, "actorID")
	if !ok {
		return
	}
	teamID, ok := h.pathID(w, r, "teamID")
	if !ok {
		return
	}
	if err := h.admin.RemoveMembership(r.Context(), actorID, teamID); err != nil {
		h.respondAdminError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Path Parameter", param)
		return 0, false
	}
	return id, true
}

func (h *Handler) currentActorID(r *http.Request) int64 {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0
	}
	id, _, _ := sess.Actor()
	return id
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(w, r, dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request Body", "")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) respondAdminError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnknownCapability), errors.Is(err, ErrInvalidRole):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Mutation", err.Error())
	case errors.Is(err, ErrConflict):
		httpx.Problem(w, http.StatusConflict, "Conflicting Write", err.Error())
	default:
		h.logger.Error("authz admin mutation", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Mutation Failed", "")
	}
}
