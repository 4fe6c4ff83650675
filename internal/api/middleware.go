package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tutorcore/internal/auth"
	"tutorcore/internal/config"
)

// sessionAuthMiddleware is internal/auth/middleware.go's AuthMiddleware
// narrowed to this API's single concern: the bearer token must name the
// session the URL path addresses. No roles, no admin flag.
func sessionAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid Authorization header"})
			return
		}
		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := auth.ParseSessionToken(cfg.Server.JWTSecret, tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired session token"})
			return
		}
		if claims.SessionID != c.Param("id") {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "token does not match session"})
			return
		}
		c.Set("learnerId", claims.LearnerID)
		c.Next()
	}
}
