package web

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// requireAPIKey guards admin routes with the configured bearer key. With no
// key configured the routes stay closed rather than open.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := s.cfg.Server.APIKey
		if key == "" {
			writeError(w, http.StatusForbidden, "forbidden", "admin API key is not configured")
			return
		}
		got := bearerToken(r)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(h, prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return r.Header.Get("X-API-Key")
}
