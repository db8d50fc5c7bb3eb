package server

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
)

const adminTokenHeader = "X-Admin-Token"

// withAuth enforces the optional bearer token on /v1/ and the optional
// admin token on /v1/admin/.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if !strings.HasPrefix(path, "/v1/") {
			next.ServeHTTP(w, r)
			return
		}

		if s.apiToken != "" {
			token, ok := bearerToken(r)
			if !ok || !tokensEqual(token, s.apiToken) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="blobd"`)
				s.writeServiceError(w, r, unauthorized(fmt.Errorf("missing or invalid bearer token")))
				return
			}
		}

		if strings.HasPrefix(path, "/v1/admin/") && s.adminToken != "" {
			if !tokensEqual(strings.TrimSpace(r.Header.Get(adminTokenHeader)), s.adminToken) {
				s.writeServiceError(w, r, forbidden(fmt.Errorf("admin token required")))
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func tokensEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
