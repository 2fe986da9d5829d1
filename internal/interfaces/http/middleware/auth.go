package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/emissor/backend/internal/infrastructure/auth"
	"github.com/emissor/backend/internal/interfaces/http/dto"
)

// Context keys set by the auth middleware
const (
	ContextUserID    = "user_id"
	ContextCompanyID = "company_id"
)

// Auth validates the bearer token and stores its claims in the context
func Auth(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				dto.ErrorResponse("UNAUTHORIZED", "Missing authorization header"))
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				dto.ErrorResponse("UNAUTHORIZED", "Invalid authorization header"))
			return
		}
		claims, err := jwtService.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				dto.ErrorResponse("UNAUTHORIZED", "Invalid or expired token"))
			return
		}
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextCompanyID, claims.CompanyID)
		c.Next()
	}
}
