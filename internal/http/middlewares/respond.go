package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Every 401 carries the same body so callers cannot tell which check failed.
const unauthorizedMessage = "Not authorized"

func RequestIDFrom(c *gin.Context) string {
	if v, ok := c.Get(CtxRequestID); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}

	// fallback header
	return c.GetHeader(requestIDHeader)
}

func abortWithError(c *gin.Context, status int, code, message string) {
	body := gin.H{
		"code":    code,
		"message": message,
	}
	if id := RequestIDFrom(c); id != "" {
		body["requestId"] = id
	}
	c.AbortWithStatusJSON(status, body)
}

func abortUnauthorized(c *gin.Context) {
	abortWithError(c, http.StatusUnauthorized, "unauthorized", unauthorizedMessage)
}
