package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	adminClaimsKey  contextKey = "adminClaims"
	callerClaimsKey contextKey = "callerClaims"
)

var errMissingBearer = errors.New("missing bearer token")

// AdminJWT enforces an HMAC-signed JWT for admin endpoints. The token's
// subject is recorded as the acting admin.
func AdminJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "admin auth disabled", http.StatusUnauthorized)
				return
			}
			claims, err := bearerClaims(r, secret)
			if errors.Is(err, errMissingBearer) {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), adminClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CallerJWT attaches the signed-in patient or doctor when a bearer token is
// present. Requests without one continue anonymously so guests can book; a
// token that fails verification is rejected.
func CallerJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := bearerClaims(r, secret)
			switch {
			case errors.Is(err, errMissingBearer):
				next.ServeHTTP(w, r)
				return
			case err != nil || secret == "":
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), callerClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireCaller rejects anonymous requests. Mount it after CallerJWT.
func RequireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if CallerIDFromContext(r.Context()) == "" {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AdminClaimsFromContext returns admin JWT claims if present.
func AdminClaimsFromContext(ctx context.Context) (jwt.RegisteredClaims, bool) {
	claims, ok := ctx.Value(adminClaimsKey).(jwt.RegisteredClaims)
	return claims, ok
}

// AdminIDFromContext returns the acting admin's subject, or "".
func AdminIDFromContext(ctx context.Context) string {
	claims, _ := AdminClaimsFromContext(ctx)
	return claims.Subject
}

// CallerIDFromContext returns the signed-in user id, or "" for anonymous
// callers.
func CallerIDFromContext(ctx context.Context) string {
	claims, ok := ctx.Value(callerClaimsKey).(jwt.RegisteredClaims)
	if !ok {
		return ""
	}
	return claims.Subject
}

// WithCallerID returns ctx carrying userID as the caller.
func WithCallerID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, callerClaimsKey, jwt.RegisteredClaims{Subject: userID})
}

// WithAdminID returns ctx carrying adminID as the acting admin.
func WithAdminID(ctx context.Context, adminID string) context.Context {
	return context.WithValue(ctx, adminClaimsKey, jwt.RegisteredClaims{Subject: adminID})
}

func bearerClaims(r *http.Request, secret string) (jwt.RegisteredClaims, error) {
	claims := jwt.RegisteredClaims{}
	auth := r.Header.Get("Authorization")
	if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
		return claims, errMissingBearer
	}
	tokenString := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		return claims, err
	}
	if !token.Valid || claims.Subject == "" {
		return claims, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
