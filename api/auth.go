package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/govhr/leave-engine/generic"
	"github.com/govhr/leave-engine/leave"
)

// Claims identify the caller. Tokens are issued by the HR portal; this
// service only verifies them.
type Claims struct {
	EmployeeID string `json:"employee_id"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

var errInvalidToken = errors.New("invalid token")

// GenerateToken signs claims with HS256. Used by tests and the dev token
// command.
func GenerateToken(secret string, claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   claims.EmployeeID,
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseToken(secret, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errInvalidToken
	}
	if claims.EmployeeID == "" || !leave.Role(claims.Role).Valid() {
		return nil, errInvalidToken
	}
	return claims, nil
}

type ctxKey int

const ctxKeyActor ctxKey = iota

// Authenticate rejects requests without a valid bearer token and stores the
// caller as a leave.Actor on the request context.
func Authenticate(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				writeError(w, http.StatusUnauthorized, "Missing bearer token", nil)
				return
			}
			claims, err := ParseToken(secret, parts[1])
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid token", err)
				return
			}
			actor := leave.Actor{ID: generic.EntityID(claims.EmployeeID), Role: leave.Role(claims.Role)}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

func WithActor(ctx context.Context, a leave.Actor) context.Context {
	return context.WithValue(ctx, ctxKeyActor, a)
}

func ActorFrom(ctx context.Context) (leave.Actor, bool) {
	a, ok := ctx.Value(ctxKeyActor).(leave.Actor)
	return a, ok
}

// RequireAdmin restricts a route group to HR administrators.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a, ok := ActorFrom(r.Context())
		if !ok || !a.IsAdmin() {
			writeError(w, http.StatusForbidden, "HR administrator role required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
