package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/emissor/backend/internal/interfaces/http/dto"
)

// BodyLimit rejects request bodies larger than the configured maximum
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge,
				dto.ErrorResponse("VALIDATION_ERROR", "Request body too large"))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
