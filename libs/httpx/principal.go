package httpx

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/nutricare/nutribook/libs/auth"
)

const (
	RolePatient      = "patient"
	RoleNutritionist = "nutritionist"
)

// Principal is the authenticated caller attached to every request.
// Identity issuance happens upstream; services only verify and trust it.
type Principal struct {
	UserID string
	Name   string
	Role   string
}

const ctxKeyPrincipal ctxKey = iota + 100

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKeyPrincipal).(Principal)
	return p, ok
}

// AuthConfig selects how Bearer tokens are verified. JWKSURL wins over
// JWTSecret; with both empty the middleware runs in dev mode and trusts
// the X-User-Id / X-Role headers injected by the gateway.
type AuthConfig struct {
	JWTSecret string
	JWKSURL   string
}

func WithPrincipal(cfg AuthConfig) Middleware {
	var jwksClient *auth.JWKSClient
	if strings.TrimSpace(cfg.JWKSURL) != "" {
		jwksClient = auth.NewJWKSClient(cfg.JWKSURL, 5*time.Minute)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := resolvePrincipal(r, cfg, jwksClient)
			if !ok {
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyPrincipal, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func resolvePrincipal(r *http.Request, cfg AuthConfig, jwksClient *auth.JWKSClient) (Principal, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if token, found := strings.CutPrefix(header, "Bearer "); found {
		token = strings.TrimSpace(token)

		if jwksClient != nil {
			hdr, err := auth.ParseHeader(token)
			if err != nil {
				return Principal{}, false
			}
			key, err := jwksClient.Get(r.Context(), hdr.Kid)
			if err != nil {
				return Principal{}, false
			}
			claims, err := auth.VerifyRS256(token, key)
			if err != nil {
				return Principal{}, false
			}
			return Principal{UserID: claims.Sub, Name: claims.Name, Role: claims.Role}, true
		}

		if cfg.JWTSecret != "" {
			claims, err := auth.ParseAndVerifyHS256(token, cfg.JWTSecret)
			if err != nil {
				return Principal{}, false
			}
			return Principal{UserID: claims.Sub, Name: claims.Name, Role: claims.Role}, true
		}
	}

	if cfg.JWTSecret == "" && jwksClient == nil {
		userID := strings.TrimSpace(r.Header.Get("X-User-Id"))
		role := strings.TrimSpace(r.Header.Get("X-Role"))
		if userID != "" && (role == RolePatient || role == RoleNutritionist) {
			return Principal{UserID: userID, Role: role}, true
		}
	}
	return Principal{}, false
}
