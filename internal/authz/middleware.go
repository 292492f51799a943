package authz

import (
	"net/http"

	"whatsapp-platform/internal/auth"

	"github.com/gin-gonic/gin"
)

// RequirePermission enforces a capability on the integration named by the
// :integration_id route param. Identity comes from the auth middleware.
//
// Rules:
// - 401 when no authenticated user is in context
// - 403 on any denial (missing integration, missing membership, missing
//   capability) without distinguishing the cases to the caller
// - 500 only for directory infrastructure failures
func RequirePermission(svc *Service, p Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := auth.UserID(c.Request.Context())
		if err != nil || userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		integrationID := c.Param("integration_id")
		if integrationID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "integration_id required"})
			return
		}

		allowed, err := svc.CheckPermission(c.Request.Context(), userID, integrationID, p)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "authorization unavailable"})
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
