package middlewares

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/geocoder89/studentportal/internal/actorctx"
	"github.com/geocoder89/studentportal/internal/auth"
	"github.com/geocoder89/studentportal/internal/domain/user"
	"github.com/geocoder89/studentportal/internal/observability"
	"github.com/gin-gonic/gin"
)

// Keep these small so tests can fake them easily.
type TokenVerifier interface {
	Verify(raw string) (*auth.Claims, error)
}

type IdentityLoader interface {
	FindByID(ctx context.Context, id string) (user.User, error)
}

type AuthMiddleware struct {
	jwt      TokenVerifier
	users    IdentityLoader
	denylist auth.Denylist
	cookie   auth.CookieConfig
	prom     *observability.Prom
}

func NewAuthMiddleware(jwt TokenVerifier, users IdentityLoader, denylist auth.Denylist, cookie auth.CookieConfig, prom *observability.Prom) *AuthMiddleware {
	if denylist == nil {
		denylist = auth.NoopDenylist{}
	}
	return &AuthMiddleware{
		jwt:      jwt,
		users:    users,
		denylist: denylist,
		cookie:   cookie,
		prom:     prom,
	}
}

// RequireAuth turns the session cookie into a loaded identity. The record is
// re-read on every request so deleted users lose access immediately.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := m.cookie.Read(c.Request)
		if raw == "" {
			m.prom.AuthEvent("verify", "missing")
			abortUnauthorized(c)
			return
		}

		claims, err := m.jwt.Verify(raw)
		if err != nil {
			m.prom.AuthEvent("verify", "invalid")
			abortUnauthorized(c)
			return
		}

		ctx := c.Request.Context()

		revoked, err := m.denylist.IsRevoked(ctx, claims.TokenID())
		if err != nil {
			slog.ErrorContext(ctx, "denylist lookup failed", "err", err, "request_id", RequestIDFrom(c))
			abortWithError(c, http.StatusInternalServerError, "internal_error", "Could not verify session")
			return
		}
		if revoked {
			m.prom.AuthEvent("verify", "revoked")
			abortUnauthorized(c)
			return
		}

		u, err := m.users.FindByID(ctx, claims.UserID())
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				m.prom.AuthEvent("verify", "unknown_user")
				abortUnauthorized(c)
				return
			}
			slog.ErrorContext(ctx, "identity lookup failed", "err", err, "request_id", RequestIDFrom(c))
			abortWithError(c, http.StatusInternalServerError, "internal_error", "Could not verify session")
			return
		}

		identity := u.Identity()
		c.Set(CtxIdentity, identity)
		c.Request = c.Request.WithContext(actorctx.WithIdentity(ctx, identity))

		c.Next()
	}
}

// helpers so handlers don't need to know the magic keys.

func IdentityFromContext(c *gin.Context) (user.Identity, bool) {
	v, ok := c.Get(CtxIdentity)
	if !ok {
		return user.Identity{}, false
	}
	id, ok := v.(user.Identity)
	return id, ok && id.ID != ""
}

func UserIDFromContext(c *gin.Context) (string, bool) {
	id, ok := IdentityFromContext(c)
	return id.ID, ok
}
