package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// PrivateCache marks responses as cacheable by the browser only. Used for
// uploaded exam photos, which sit behind authentication.
func PrivateCache(maxAgeSeconds int) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", fmt.Sprintf("private, max-age=%d", maxAgeSeconds))
		c.Next()
	}
}
