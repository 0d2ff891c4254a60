package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tilebank/backend/internal/models"
)

type contextKey string

const userContextKey contextKey = "authenticatedUser"

// Auth validates the bearer JWT and puts the authenticated user on the
// request context. Tokens carry the user id in "sub" plus optional
// profile claims.
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
				return
			}

			user, err := validateToken(parts[1], secret)
			if err != nil {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithUser returns a context carrying the user, the same way Auth
// stores it.
func WithUser(ctx context.Context, user *models.AuthenticatedUser) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext returns the user Auth stored on the context.
func UserFromContext(ctx context.Context) (*models.AuthenticatedUser, bool) {
	user, ok := ctx.Value(userContextKey).(*models.AuthenticatedUser)
	return user, ok
}

func validateToken(tokenString, secret string) (*models.AuthenticatedUser, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, jwt.ErrTokenInvalidClaims
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(sub)
	if err != nil {
		return nil, err
	}

	user := &models.AuthenticatedUser{ID: id}
	if email, ok := claims["email"].(string); ok {
		user.Email = email
	}
	if name, ok := claims["given_name"].(string); ok {
		user.FirstName = name
	}
	if name, ok := claims["family_name"].(string); ok {
		user.LastName = name
	}
	return user, nil
}
