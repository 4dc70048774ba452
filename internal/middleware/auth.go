package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/radiusdt/storefront-notify/internal/config"
	"go.uber.org/zap"
)

const (
	PrincipalContextKey contextKey = "principal"
	AuthHeaderName                 = "X-API-Key"
	DevUserHeaderName              = "X-User-ID"
	TokenCookieName                = "token"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims are the storefront session token claims.
type Claims struct {
	UserID string `json:"uid"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Role   string
	Admin  bool
}

// PrincipalFrom returns the caller stored by the auth middleware.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(PrincipalContextKey).(*Principal)
	return p, ok && p != nil
}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, PrincipalContextKey, p)
}

// AuthMiddleware validates admin API keys and storefront JWTs.
type AuthMiddleware struct {
	cfg    config.AuthConfig
	logger *zap.Logger
}

func NewAuthMiddleware(cfg config.AuthConfig, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{cfg: cfg, logger: logger}
}

// RequireAdmin accepts the admin API key or a token whose role is the admin role.
func (a *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.cfg.Enabled {
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), &Principal{Role: a.cfg.AdminRole, Admin: true})))
			return
		}

		if key := r.Header.Get(AuthHeaderName); key != "" {
			if !a.validateKey(key) {
				a.logger.Warn("invalid API key attempt",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				a.unauthorized(w, "invalid API key")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), &Principal{Role: a.cfg.AdminRole, Admin: true})))
			return
		}

		p, err := a.authenticate(r)
		if err != nil {
			a.unauthorized(w, err.Error())
			return
		}
		if !p.Admin {
			writeJSONError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// RequireUser accepts any valid storefront token.
func (a *AuthMiddleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.cfg.Enabled {
			uid := r.Header.Get(DevUserHeaderName)
			if uid == "" {
				a.unauthorized(w, "missing credentials")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), &Principal{UserID: uid})))
			return
		}

		p, err := a.authenticate(r)
		if err != nil {
			a.unauthorized(w, err.Error())
			return
		}
		if p.UserID == "" {
			a.unauthorized(w, "token has no user")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

func (a *AuthMiddleware) authenticate(r *http.Request) (*Principal, error) {
	raw := bearerToken(r)
	if raw == "" {
		return nil, errors.New("missing credentials")
	}
	claims, err := a.ParseToken(raw)
	if err != nil {
		a.logger.Debug("rejected token", zap.String("path", r.URL.Path), zap.Error(err))
		return nil, ErrInvalidToken
	}
	return &Principal{
		UserID: claims.UserID,
		Role:   claims.Role,
		Admin:  claims.Role != "" && claims.Role == a.cfg.AdminRole,
	}, nil
}

// ParseToken validates an HS256 token signed with the configured secret.
func (a *AuthMiddleware) ParseToken(raw string) (*Claims, error) {
	if a.cfg.JWTSecret == "" {
		return nil, ErrInvalidToken
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.cfg.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.JWTIssuer))
	}

	claims := new(Claims)
	token, err := jwt.NewParser(opts...).ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(a.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IssueToken signs a token for uid. Used by tooling and tests; the storefront
// issues real session tokens.
func (a *AuthMiddleware) IssueToken(uid, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: uid,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.cfg.JWTIssuer,
			Subject:   uid,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(a.cfg.JWTSecret))
}

func (a *AuthMiddleware) validateKey(key string) bool {
	if a.cfg.AdminAPIKey == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(a.cfg.AdminAPIKey)) == 1
}

func (a *AuthMiddleware) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeJSONError(w, http.StatusUnauthorized, message)
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
	}
	if c, err := r.Cookie(TokenCookieName); err == nil {
		return c.Value
	}
	return ""
}
