package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const (
	PermissionView   = "mobile-wallet.transactions.view"
	PermissionManage = "mobile-wallet.transactions.manage"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const PrincipalContextKey = ContextKey("adminPrincipal")

// Principal is the admin identity carried by a verified bearer token.
type Principal struct {
	Subject     string
	SuperAdmin  bool
	Permissions []string
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(PrincipalContextKey).(Principal)
	return p, ok
}

// PermissionChecker decides whether a principal may perform an action.
type PermissionChecker interface {
	Allowed(ctx context.Context, p Principal, permission string) bool
}

// ClaimsPermissionChecker trusts the token: super admins may do anything,
// everyone else needs the permission listed in the permissions claim.
type ClaimsPermissionChecker struct{}

func (ClaimsPermissionChecker) Allowed(_ context.Context, p Principal, permission string) bool {
	if p.SuperAdmin {
		return true
	}
	for _, granted := range p.Permissions {
		if granted == permission {
			return true
		}
	}
	return false
}

type authError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func unauthorized(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, authError{Error: "Unauthorized", Message: message})
}

func parsePrincipal(tokenString string, secret []byte) (Principal, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Principal{}, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Principal{}, errors.New("invalid token claims")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return Principal{}, errors.New("token has no subject")
	}
	p := Principal{Subject: sub}
	if v, ok := claims["super_admin"].(bool); ok {
		p.SuperAdmin = v
	}
	if perms, ok := claims["permissions"].([]interface{}); ok {
		for _, perm := range perms {
			if s, ok := perm.(string); ok {
				p.Permissions = append(p.Permissions, s)
			}
		}
	}
	return p, nil
}

// AuthMiddleware verifies an HS256 bearer token and stores its Principal in
// the request context.
func AuthMiddleware(secret []byte, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, tokenString, found := strings.Cut(r.Header.Get("Authorization"), " ")
			if !found || !strings.EqualFold(scheme, "Bearer") || tokenString == "" {
				logger.WarnContext(r.Context(), "Bearer token missing")
				unauthorized(w, http.StatusUnauthorized, "Unauthenticated.")
				return
			}

			principal, err := parsePrincipal(tokenString, secret)
			if err != nil {
				logger.WarnContext(r.Context(), "Token validation failed", "error", err)
				unauthorized(w, http.StatusUnauthorized, "Unauthenticated.")
				return
			}

			ctx := context.WithValue(r.Context(), PrincipalContextKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission rejects principals the checker does not allow.
func RequirePermission(permission string, checker PermissionChecker, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				logger.ErrorContext(r.Context(), "Principal not found in context. AuthMiddleware must run first.")
				unauthorized(w, http.StatusUnauthorized, "Unauthenticated.")
				return
			}
			if !checker.Allowed(r.Context(), principal, permission) {
				logger.WarnContext(r.Context(), "Permission denied",
					"subject", principal.Subject,
					"required_permission", permission)
				unauthorized(w, http.StatusForbidden, "Insufficient permissions to perform this action: "+permission)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
