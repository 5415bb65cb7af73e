package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/voicevault/backend/internal/auth"
	"github.com/voicevault/backend/pkg/response"
)

const (
	// ContextUserID is the key for user ID in gin context.
	ContextUserID = "user_id"
	// ContextUserEmail is the key for user email in gin context.
	ContextUserEmail = "user_email"
)

// JWT returns a middleware that validates JWT and sets user claims in context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := bearerClaims(c, jwtService)
		if !ok {
			response.Unauthorized(c, "invalid or missing token")
			c.Abort()
			return
		}
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserEmail, claims.Email)
		c.Next()
	}
}

// OptionalJWT sets user claims when a valid token is present but lets
// anonymous requests through. Used by the upload endpoint, where unauthenticated
// recordings are allowed.
func OptionalJWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, ok := bearerClaims(c, jwtService); ok {
			c.Set(ContextUserID, claims.UserID)
			c.Set(ContextUserEmail, claims.Email)
		}
		c.Next()
	}
}

func bearerClaims(c *gin.Context, jwtService *auth.JWTService) (*auth.Claims, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return nil, false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, false
	}
	claims, err := jwtService.Validate(parts[1])
	if err != nil {
		return nil, false
	}
	return claims, true
}
