package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/crewdeck/crewdeck/internal/apperr"
	"github.com/crewdeck/crewdeck/internal/config"
	"github.com/crewdeck/crewdeck/internal/models"
	"github.com/crewdeck/crewdeck/internal/principal"
)

// Middleware gates routes on a resolved principal: RequireUser for the
// human web session, RequireAgent for API-key callers.
type Middleware struct {
	resolver *Resolver
	cfg      config.AuthConfig
}

func NewMiddleware(resolver *Resolver, cfg config.AuthConfig) *Middleware {
	return &Middleware{resolver: resolver, cfg: cfg}
}

func (m *Middleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := m.resolveUser(r)
		if err != nil {
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(principal.WithUser(r.Context(), user)))
	})
}

func (m *Middleware) resolveUser(r *http.Request) (*models.User, error) {
	if m.cfg.TrustedHeader {
		return m.resolver.ResolveTrustedIdentity(r.Context(),
			r.Header.Get(m.cfg.EmailHeader), r.Header.Get(m.cfg.NameHeader))
	}
	return m.resolver.ResolveAccessToken(r.Context(), ExtractBearerToken(r))
}

func (m *Middleware) RequireAgent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent, err := m.resolver.ResolveAPIKey(r.Context(),
			r.Header.Get(m.cfg.APIKeyHeader), r.Header.Get(m.cfg.WorkspaceHeader))
		if err != nil {
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(principal.WithAgent(r.Context(), agent)))
	})
}

func ExtractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperr.HTTPStatus(err))
	json.NewEncoder(w).Encode(map[string]string{"error": apperr.PublicMessage(err)})
}
