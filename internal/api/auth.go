package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/AaronLay10/FlowEngine/internal/config"
)

// Role represents an authorization role.
type Role string

const (
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// Auth checks basic-auth credentials against the configured editor and
// viewer accounts. With no editor credentials every request is an editor.
type Auth struct {
	cfg config.AuthConfig
}

func NewAuth(cfg config.AuthConfig) *Auth {
	return &Auth{cfg: cfg}
}

// Enabled returns true if authentication is configured.
func (a *Auth) Enabled() bool {
	return a != nil && a.cfg.Enabled()
}

// authenticate returns the caller's role, or "" for bad credentials.
func (a *Auth) authenticate(r *http.Request) Role {
	if !a.Enabled() {
		return RoleEditor
	}

	user, pass, ok := r.BasicAuth()
	if !ok {
		return ""
	}

	if secureCompare(user, a.cfg.EditorUser) && secureCompare(pass, a.cfg.EditorPass) {
		return RoleEditor
	}
	if a.cfg.ViewerUser != "" && a.cfg.ViewerPass != "" {
		if secureCompare(user, a.cfg.ViewerUser) && secureCompare(pass, a.cfg.ViewerPass) {
			return RoleViewer
		}
	}
	return ""
}

// secureCompare performs constant-time string comparison.
func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func requireAuth(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="FlowEngine"`)
	writeError(w, http.StatusUnauthorized, "unauthorized")
}

// RequireRole wraps a handler and requires one of the specified roles.
func (a *Auth) RequireRole(handler http.HandlerFunc, allowedRoles ...Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := a.authenticate(r)
		if role == "" {
			requireAuth(w)
			return
		}
		for _, allowed := range allowedRoles {
			if role == allowed {
				handler(w, r)
				return
			}
		}
		writeError(w, http.StatusForbidden, "forbidden")
	}
}

// RequireEditor allows editors only.
func (a *Auth) RequireEditor(handler http.HandlerFunc) http.HandlerFunc {
	return a.RequireRole(handler, RoleEditor)
}

// RequireViewer allows editors and viewers.
func (a *Auth) RequireViewer(handler http.HandlerFunc) http.HandlerFunc {
	return a.RequireRole(handler, RoleEditor, RoleViewer)
}
