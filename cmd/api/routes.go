package main

import (
	"database/sql"
	"net/http"
	"time"

	"whatsapp-platform/internal/authz"
	"whatsapp-platform/internal/httpapi"
	"whatsapp-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to internal
// modules; per-integration authorization is enforced by authz middleware.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, db *sql.DB, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")

	// Token issuance must stay reachable without a token.
	// NOTE: placeholder credential validation; see Handlers.Login.
	v1.POST("/auth/login", h.Login)

	v1.Use(authMW)
	{
		integrations := v1.Group("/integrations/:integration_id")
		{
			// Authorization surface: any authenticated caller may ask about
			// their own capabilities; denials are results, not errors.
			integrations.GET("/permissions", h.GetPermissions)
			integrations.GET("/permissions/:permission", h.CheckPermission)
			integrations.POST("/conversations/filter", h.FilterConversations)
			integrations.POST("/messages/send-as", h.CheckSendAsUser)

			// Mapping administration requires the manage capability.
			integrations.GET("/mappable-users",
				authz.RequirePermission(h.Authz, authz.PermManagePhoneMappings),
				h.GetMappableUsers)
			integrations.GET("/phone-mappings/authorize", h.CheckManageMapping)

			// Quota surface, consumed by the message-dispatch caller.
			integrations.GET("/rate-limits", h.GetRateLimitStatus)
			integrations.GET("/rate-limits/check", h.CheckRateLimit)
			integrations.POST("/rate-limits/track", h.TrackApiCall)

			// Security surface.
			integrations.POST("/messages/screen", h.ScreenMessage)
			integrations.POST("/verification/failures", h.ReportVerificationFailure)
			integrations.GET("/security/events",
				authz.RequirePermission(h.Authz, authz.PermViewAllConversations),
				h.GetSecurityEvents)
			integrations.GET("/security/report",
				authz.RequirePermission(h.Authz, authz.PermViewAllConversations),
				h.GetSecurityReport)
		}
	}
}
