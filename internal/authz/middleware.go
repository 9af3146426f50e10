package authz

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/faultline/faultline/internal/platform/httpx"
	"github.com/faultline/faultline/internal/shared"
)

// Middleware wires authorization checks into HTTP handlers. Store
// failures fail closed: the caller sees 403, the error is logged.
type Middleware struct {
	Checker Checker
	Logger  *slog.Logger
	// TeamParam names the chi URL parameter carrying the team scope for
	// the guarded routes, e.g. "teamID". Empty means unscoped checks.
	TeamParam string
}

// RequireAny allows the request when the current actor holds at least one
// of the capabilities.
func (m Middleware) RequireAny(capabilityKeys ...string) func(http.Handler) http.Handler {
	return m.require(capabilityKeys, func(granted []bool) bool {
		for _, ok := range granted {
			if ok {
				return true
			}
		}
		return false
	})
}

// RequireAll allows the request only when the current actor holds every
// capability.
func (m Middleware) RequireAll(capabilityKeys ...string) func(http.Handler) http.Handler {
	return m.require(capabilityKeys, func(granted []bool) bool {
		for _, ok := range granted {
			if !ok {
				return false
			}
		}
		return true
	})
}

func (m Middleware) require(capabilityKeys []string, allow func([]bool) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(capabilityKeys) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			actor, ok := m.currentActor(r)
			if !ok {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
				return
			}
			scope := m.scopeFromRequest(r)
			granted := make([]bool, len(capabilityKeys))
			for i, key := range capabilityKeys {
				allowed, err := m.Checker.CanPerform(r.Context(), key, actor, scope)
				if err != nil {
					if m.Logger != nil {
						m.Logger.Error("authz check failed", slog.String("capability", key), slog.Any("error", err))
					}
					// Fail closed on store errors.
					httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
					return
				}
				granted[i] = allowed
			}
			if allow(granted) {
				next.ServeHTTP(w, r)
				return
			}
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
		})
	}
}

func (m Middleware) currentActor(r *http.Request) (*Actor, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return nil, false
	}
	id, superAdmin, ok := sess.Actor()
	if !ok {
		return nil, false
	}
	return &Actor{ID: id, SuperAdmin: superAdmin}, true
}

func (m Middleware) scopeFromRequest(r *http.Request) Scope {
	if m.TeamParam == "" {
		return Scope{}
	}
	raw := chi.URLParam(r, m.TeamParam)
	if raw == "" {
		return Scope{}
	}
	teamID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("authz parse team param", slog.String("value", raw))
		}
		return Scope{}
	}
	return TeamScope(teamID)
}
