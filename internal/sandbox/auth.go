package sandbox

import (
	"context"
	"net/http"
	"strings"

	"qms/patient-client/internal/models"
)

type authContextKey struct{}

func (s *Server) authenticate(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credential := bearerToken(r.Header.Get("Authorization"))
		if credential == "" {
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "Not authorized, no token")
			return
		}
		user, err := s.backend.Authenticate(credential)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), authContextKey{}, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(authContextKey{}).(models.User)
	return user, ok
}

// credentialFromRequest accepts a bearer header or, for browsers that cannot
// set headers on a websocket, a token query parameter.
func credentialFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func bearerToken(header string) string {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
