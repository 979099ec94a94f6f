package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	userIDCtxKey   contextKey = "userID"
	userRoleCtxKey contextKey = "userRole"
)

// Roles carried in the role claim
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// NewTokenAuth returns the HS256 verifier for identity tokens
func NewTokenAuth(secret string) *jwtauth.JWTAuth {
	return jwtauth.New("HS256", []byte(secret), nil)
}

// IssueToken signs an identity token. The service never logs anyone in;
// this exists for development tooling and tests.
func IssueToken(auth *jwtauth.JWTAuth, userID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
	}
	_, token, err := auth.Encode(claims)
	return token, err
}

func userIDFromClaims(claims jwt.MapClaims) (string, error) {
	id, ok := claims["user_id"].(string)
	if !ok || id == "" {
		return "", errors.New("user_id claim is missing or not a string")
	}
	return id, nil
}

func roleFromClaims(claims jwt.MapClaims) (string, error) {
	role, ok := claims["role"].(string)
	if !ok {
		return "", errors.New("role claim is missing or not a string")
	}
	return role, nil
}

// authenticator rejects requests whose verified token lacks usable claims.
// It must run after jwtauth.Verifier.
func authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, claims, err := jwtauth.FromContext(r.Context())
		if err != nil {
			if errors.Is(err, jwtauth.ErrNoTokenFound) {
				respondError(w, http.StatusUnauthorized, "authorization token required")
				return
			}
			respondError(w, http.StatusUnauthorized, "invalid token: "+err.Error())
			return
		}
		if token == nil {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		userID, err := userIDFromClaims(claims)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "invalid token claims: "+err.Error())
			return
		}
		role, err := roleFromClaims(claims)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "invalid token claims: "+err.Error())
			return
		}

		ctx := context.WithValue(r.Context(), userIDCtxKey, userID)
		ctx = context.WithValue(ctx, userRoleCtxKey, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserIDFromContext returns the authenticated user of a request
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDCtxKey).(string)
	return id, ok
}

// RoleFromContext returns the role claim of the authenticated user
func RoleFromContext(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(userRoleCtxKey).(string)
	return role, ok
}
