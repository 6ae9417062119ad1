package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/dharsanguruparan/SiteVault/internal/model"
)

// Headers set by the authentication proxy in front of the service.
const (
	headerPrincipalID   = "X-Principal-Id"
	headerRole          = "X-Principal-Role"
	headerOrg           = "X-Principal-Org"
	headerRestrictedOrg = "X-Principal-Restricted-Org"
)

type principalKey struct{}

// devPrincipal is used for requests without identity headers when
// DEV_BYPASS_AUTH is set.
var devPrincipal = model.Principal{ID: "dev", Role: model.RoleSystemAdmin}

func principalFromHeaders(h http.Header) (model.Principal, bool) {
	id := strings.TrimSpace(h.Get(headerPrincipalID))
	role := model.Role(strings.TrimSpace(h.Get(headerRole)))
	if id == "" || !role.Valid() {
		return model.Principal{}, false
	}
	p := model.Principal{
		ID:             id,
		Role:           role,
		OrganizationID: strings.TrimSpace(h.Get(headerOrg)),
	}
	if org := strings.TrimSpace(h.Get(headerRestrictedOrg)); org != "" {
		p.IsRestricted = true
		p.RestrictedOrgID = org
	}
	return p, true
}

// authed rejects requests without a principal and passes the principal to
// fn through the request context.
func (s *Server) authed(fn http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := principalFromHeaders(r.Header)
		if !ok && s.cfg.DevBypassAuth {
			p, ok = devPrincipal, true
		}
		if !ok {
			respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing principal", "code": "unauthenticated"})
			return
		}
		fn(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
	})
}

func principal(r *http.Request) model.Principal {
	p, _ := r.Context().Value(principalKey{}).(model.Principal)
	return p
}
