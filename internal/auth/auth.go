// Package auth turns bearer tokens into a models.Identity.
// A missing or invalid token yields models.Anonymous; handlers decide what anonymous callers may do.
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BearBump/LiveTrack/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

type contextKey string

const identityContextKey contextKey = "identity"

type Authenticator struct {
	secret []byte
}

func New(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Identify validates an HS256 token. Accepted claims: "id" | "user_id" | "userId" for the user,
// "roles" (array) or "role" (string) for roles.
func (a *Authenticator) Identify(tokenString string) (models.Identity, error) {
	if tokenString == "" {
		return models.Anonymous{}, errors.New("empty token")
	}
	if len(a.secret) == 0 {
		return models.Anonymous{}, errors.New("jwt secret is not configured")
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return models.Anonymous{}, errors.Wrap(err, "parse token")
	}
	if !token.Valid {
		return models.Anonymous{}, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.Anonymous{}, errors.New("invalid claims")
	}

	userID := firstString(claims, "id", "user_id", "userId")
	if userID == "" {
		return models.Anonymous{}, errors.New("user id not found in token")
	}
	return models.Authenticated{UserID: userID, Roles: rolesOf(claims)}, nil
}

// Middleware always calls next; the identity is attached to the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id models.Identity = models.Anonymous{}
		if tok := TokenFromRequest(r); tok != "" {
			got, err := a.Identify(tok)
			if err != nil {
				slog.Debug("token rejected, continuing as anonymous", "path", r.URL.Path, "error", err)
			} else {
				id = got
			}
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// TokenFromRequest reads "Authorization: Bearer <t>", falling back to the ?token= query parameter
// which browsers use for websocket upgrades.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	return r.URL.Query().Get("token")
}

func WithIdentity(ctx context.Context, id models.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// FromContext returns Anonymous when nothing was attached.
func FromContext(ctx context.Context) models.Identity {
	if id, ok := ctx.Value(identityContextKey).(models.Identity); ok && id != nil {
		return id
	}
	return models.Anonymous{}
}

func firstString(claims jwt.MapClaims, keys ...string) string {
	for _, k := range keys {
		if v, ok := claims[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func rolesOf(claims jwt.MapClaims) []string {
	var roles []string
	if raw, ok := claims["roles"].([]interface{}); ok {
		for _, r := range raw {
			if s, ok := r.(string); ok && s != "" {
				roles = append(roles, s)
			}
		}
	}
	if role, ok := claims["role"].(string); ok && role != "" {
		roles = append(roles, role)
	}
	return roles
}
