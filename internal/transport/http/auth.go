package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"live-quiz-service/internal/domain"
)

type contextKey string

const identityKey contextKey = "identity"

// Identity is the verified subject of a bearer token.
type Identity struct {
	UserID string
	Role   domain.Role
}

var errInvalidToken = errors.New("invalid token")

// JWTAuth verifies HS256 tokens carrying user_id and role claims.
type JWTAuth struct {
	secret []byte
}

func NewJWTAuth(secret string) *JWTAuth {
	return &JWTAuth{secret: []byte(secret)}
}

// Parse validates tokenStr and returns its identity.
func (j *JWTAuth) Parse(tokenStr string) (Identity, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return j.secret, nil
	})
	if err != nil {
		return Identity{}, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Identity{}, errInvalidToken
	}
	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return Identity{}, errInvalidToken
	}
	role, _ := claims["role"].(string)
	return Identity{UserID: userID, Role: domain.Role(role)}, nil
}

// Middleware validates the bearer token and attaches the identity to the context.
func (j *JWTAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Missing authorization header")
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid authorization format")
			return
		}

		identity, err := j.Parse(parts[1])
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				writeError(w, r, http.StatusUnauthorized, "TOKEN_EXPIRED", "Token has expired")
			} else {
				writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token")
			}
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireTeacher rejects identities whose role claim is not teacher.
func RequireTeacher(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IdentityFrom(r.Context()).Role != domain.RoleTeacher {
			writeError(w, r, http.StatusForbidden, "FORBIDDEN", "Teacher role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IdentityFrom extracts the verified identity from a request context.
func IdentityFrom(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey).(Identity)
	return id
}
