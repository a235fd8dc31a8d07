package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/dvillacreses/citasalud/libs/httpx"
)

// AdminAuth guards the admin endpoints with a bearer token. When a bcrypt
// hash is configured it is preferred over the plaintext token; comparisons of
// the plaintext fallback are constant time.
func AdminAuth(token, tokenBcrypt string) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented, ok := bearerToken(r)
			if !ok || !adminTokenValid(presented, token, tokenBcrypt) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
				httpx.Error(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(auth[len(prefix):]), true
}

func adminTokenValid(presented, token, tokenBcrypt string) bool {
	if presented == "" {
		return false
	}
	if tokenBcrypt != "" {
		return bcrypt.CompareHashAndPassword([]byte(tokenBcrypt), []byte(presented)) == nil
	}
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(token)) == 1
}
