package authz

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type handlerFixture struct {
	router      *chi.Mux
	writer      *recordingWriter
	invalidator *recordingInvalidator
	memberships *stubMemberships
}

func newHandlerFixture(t *testing.T, actorID int64, superAdmin bool) *handlerFixture {
	t.Helper()
	memberships := newStubMemberships()
	overrides := newStubOverrides()
	resolver := newTestResolver(memberships, overrides)

	writer := &recordingWriter{}
	invalidator := &recordingInvalidator{}
	admin := NewAdmin(resolver.Registry(), writer, writer, invalidator, slog.Default())

	mw := Middleware{Checker: resolver, TeamParam: "teamID"}
	h := NewHandler(slog.Default(), resolver, admin, mw)

	r := chi.NewRouter()
	r.Use(withSessionActor(actorID, superAdmin))
	r.Route("/authz", h.MountRoutes)
	return &handlerFixture{router: r, writer: writer, invalidator: invalidator, memberships: memberships}
}

func (f *handlerFixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestListCapabilities(t *testing.T) {
	f := newHandlerFixture(t, 7, false)
	f.memberships.join(7, 5, RoleViewer)

	rec := f.do(http.MethodGet, "/authz/capabilities?team=5", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Capabilities []string `json:"capabilities"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, []string{CapAppsRead, CapProblemsRead}, body.Capabilities)
}

func TestListCapabilitiesBadTeam(t *testing.T) {
	f := newHandlerFixture(t, 7, false)

	rec := f.do(http.MethodGet, "/authz/capabilities?team=five", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListCapabilitiesAnonymous(t *testing.T) {
	f := newHandlerFixture(t, 0, false)

	rec := f.do(http.MethodGet, "/authz/capabilities", "")
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSetActorOverrideEndpoint(t *testing.T) {
	f := newHandlerFixture(t, 2, true)

	rec := f.do(http.MethodPut, "/authz/actors/7/overrides",
		`{"capability":"apps:write","team_id":5,"grant_type":"grant"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, f.writer.actorOverrides, 1)

	ov := f.writer.actorOverrides[0]
	require.Equal(t, int64(7), ov.ActorID)
	require.Equal(t, int64(5), *ov.TeamID)
	require.Equal(t, Grant, ov.GrantType)
	require.Equal(t, int64(2), ov.GrantedBy)
}

func TestSetActorOverrideValidation(t *testing.T) {
	f := newHandlerFixture(t, 2, true)

	// Unknown grant type fails struct validation.
	rec := f.do(http.MethodPut, "/authz/actors/7/overrides",
		`{"capability":"apps:write","grant_type":"allow"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// Unregistered capability is rejected by the admin surface.
	rec = f.do(http.MethodPut, "/authz/actors/7/overrides",
		`{"capability":"apps:launch","grant_type":"grant"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(http.MethodPut, "/authz/actors/7/overrides", `{not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPut, "/authz/actors/0/overrides",
		`{"capability":"apps:write","grant_type":"grant"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	require.Empty(t, f.writer.actorOverrides)
}

func TestSetRecordOverrideEndpoint(t *testing.T) {
	f := newHandlerFixture(t, 2, true)

	rec := f.do(http.MethodPut, "/authz/actors/7/record-overrides",
		`{"capability":"problems:delete","owner_type":"app","owner_id":3,"grant_type":"revoke"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, f.writer.recordOverrides, 1)
	require.Equal(t, "app", f.writer.recordOverrides[0].OwnerType)
	require.Equal(t, []string{"app"}, f.invalidator.records)
}

func TestSetMembershipRoleEndpoint(t *testing.T) {
	f := newHandlerFixture(t, 2, true)

	rec := f.do(http.MethodPut, "/authz/teams/5/members/7", `{"role":"developer"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, f.writer.memberships, 1)
	require.Equal(t, RoleDeveloper, f.writer.memberships[0].Role)
	require.Equal(t, []int64{7}, f.invalidator.actors)

	rec = f.do(http.MethodPut, "/authz/teams/5/members/7", `{"role":"intern"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRemoveMembershipEndpoint(t *testing.T) {
	f := newHandlerFixture(t, 2, true)

	rec := f.do(http.MethodDelete, "/authz/teams/5/members/7", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, []string{"membership"}, f.writer.removals)
}

func TestAdminRoutesGuarded(t *testing.T) {
	// A viewer holds neither members:manage nor teams:manage.
	f := newHandlerFixture(t, 7, false)
	f.memberships.join(7, 5, RoleViewer)

	rec := f.do(http.MethodPut, "/authz/teams/5/members/8", `{"role":"viewer"}`)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Empty(t, f.writer.memberships)

	// A team admin passes the guard for their team.
	f = newHandlerFixture(t, 7, false)
	f.memberships.join(7, 5, RoleAdmin)
	rec = f.do(http.MethodPut, "/authz/teams/5/members/8", `{"role":"viewer"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
}
