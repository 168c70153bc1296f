package middleware

import (
	"net/http"
	"strings"

	"gpuwatch/pkg/config"
	"gpuwatch/pkg/logger"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware simple token authentication for the query API. Reporting
// hosts are intentionally unauthenticated; this guards only the observer
// surface, and is disabled entirely when no API key is configured.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		expectedAPIKey := config.GlobalConfig.Server.APIKey

		if expectedAPIKey == "" {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		authHeader = strings.TrimPrefix(authHeader, "Bearer ")

		if authHeader != expectedAPIKey {
			logger.WarnCtx(c.Request.Context(), "unauthorized request, invalid API key")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		c.Next()
	}
}
