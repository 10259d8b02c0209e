package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// DefaultMaxRequestSize bounds generation request bodies. Prompts plus
// context payloads stay well under this; anything larger is abusive.
const DefaultMaxRequestSize = 10 * 1024 * 1024 // 10MB

// RequestSizeLimitMiddleware limits request body size via http.MaxBytesReader,
// which answers 413 and closes the connection past the limit.
func RequestSizeLimitMiddleware(maxBytes int64) gin.HandlerFunc {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxRequestSize
	}
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
