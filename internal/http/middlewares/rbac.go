package middlewares

import (
	"net/http"

	"github.com/geocoder89/studentportal/internal/domain/user"
	"github.com/gin-gonic/gin"
)

// RequireRole must run after RequireAuth.
func RequireRole(required user.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := IdentityFromContext(c)

		if !ok {
			abortUnauthorized(c)
			return
		}
		if identity.Role != required {
			abortWithError(c, http.StatusForbidden, "forbidden", "Access denied")
			return
		}
		c.Next()
	}
}
