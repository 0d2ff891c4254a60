package middleware

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// AdminKey guards operator endpoints with a single shared API key,
// checked against its bcrypt hash. Admin requests also carry a user
// token, so this stacks on top of Auth.
func AdminKey(keyHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-Admin-Key")
			if key == "" {
				// Fall back to the secondary authorization header used by
				// older operator tooling.
				if raw := r.Header.Get("X-Authorization"); raw != "" {
					key = strings.TrimPrefix(raw, "Bearer ")
				}
			}
			if key == "" {
				http.Error(w, "Admin key required", http.StatusUnauthorized)
				return
			}

			if err := bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(key)); err != nil {
				http.Error(w, "Invalid admin key", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
