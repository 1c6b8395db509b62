package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"teamdesk/internal/domain"
	"teamdesk/internal/engine"
	"teamdesk/internal/engine/auth"
	"teamdesk/internal/identity"
)

// TokenVerifier checks session tokens. identity.Provider implements it.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (identity.Claims, error)
}

// Principal is the authenticated caller with the profile loaded for this
// request.
type Principal struct {
	User   domain.User
	Token  string
	Source string
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func callerID(ctx context.Context) (string, huma.StatusError) {
	if p, ok := principalFromContext(ctx); ok && p.User.UID != "" {
		return p.User.UID, nil
	}
	return "", newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

var publicRoutes = []string{"health", "auth/signup", "auth/signin", "openapi.json", "docs"}

func isPublicPath(basePath, p string) bool {
	for _, r := range publicRoutes {
		if p == path.Join(basePath, r) {
			return true
		}
	}
	return false
}

// newAuthMiddleware authenticates every API request except the public
// routes, then loads the caller's profile. Banned or timed-out users are
// refused even with a valid token.
func newAuthMiddleware(basePath string, e engine.Engine, tokens TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !strings.HasPrefix(req.URL.Path, basePath) || isPublicPath(basePath, req.URL.Path) || req.Method == http.MethodOptions {
				next.ServeHTTP(w, req)
				return
			}
			ctx := req.Context()
			var (
				p   Principal
				err error
			)
			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			apiKey := strings.TrimSpace(req.Header.Get("X-Api-Key"))
			switch {
			case authz != "":
				token, ok := bearerToken(authz)
				if !ok {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
					return
				}
				var claims identity.Claims
				if claims, err = tokens.Verify(ctx, token); err == nil {
					p = Principal{Token: token, Source: "jwt"}
					p.User, err = e.Actor(ctx, claims.UID)
				}
			case apiKey != "":
				p = Principal{Source: "api_key"}
				p.User, err = e.AuthenticateAPIKey(ctx, apiKey)
			default:
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
				return
			}
			if err != nil {
				respondStatusError(w, authError(ctx, err))
				return
			}
			next.ServeHTTP(w, req.WithContext(withPrincipal(ctx, p)))
		})
	}
}

func authError(ctx context.Context, err error) huma.StatusError {
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return handleError(ctx, err)
	}
	return newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil)
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.GetStatus())
	_ = json.NewEncoder(w).Encode(err)
}
