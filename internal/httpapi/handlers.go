package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"whatsapp-platform/internal/audit"
	"whatsapp-platform/internal/auth"
	"whatsapp-platform/internal/authz"
	"whatsapp-platform/internal/integration"
	"whatsapp-platform/internal/quota"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth      *auth.Manager
	Authz     *authz.Service
	Quota     *quota.Service
	Audit     *audit.Service
	Directory integration.Directory
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate
// credentials against the user-management subsystem.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Authorization ---

// GetPermissions returns the caller's capability set on an integration.
func (h Handlers) GetPermissions(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	perms, err := h.Authz.GetUserPermissions(c.Request.Context(), userID, c.Param("integration_id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "authorization unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"permissions": perms})
}

// CheckPermission answers a single capability question for the caller.
func (h Handlers) CheckPermission(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	perm := authz.Permission(c.Param("permission"))
	allowed, err := h.Authz.CheckPermission(c.Request.Context(), userID, c.Param("integration_id"), perm)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "authorization unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"allowed": allowed})
}

// GetMappableUsers lists users that can hold phone mappings on the
// integration.
func (h Handlers) GetMappableUsers(c *gin.Context) {
	integ, ok := h.loadIntegration(c)
	if !ok {
		return
	}
	users, err := h.Authz.GetMappableUsers(c.Request.Context(), integ)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "directory unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

type filterConversationsRequest struct {
	Conversations []authz.Conversation `json:"conversations"`
}

// FilterConversations applies the caller's visibility rules to a
// conversation list supplied by the dispatch layer.
func (h Handlers) FilterConversations(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	integ, ok := h.loadIntegration(c)
	if !ok {
		return
	}
	var req filterConversationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	visible, err := h.Authz.FilterConversations(c.Request.Context(), userID, integ, req.Conversations)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "authorization unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": visible})
}

// CheckManageMapping answers whether the caller may manage the target
// user's phone mapping. An empty or absent target means the caller's own
// mapping, which is always allowed.
func (h Handlers) CheckManageMapping(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	integ, ok := h.loadIntegration(c)
	if !ok {
		return
	}
	allowed, err := h.Authz.CanManagePhoneMappings(c.Request.Context(), userID, integ, c.Query("target_user_id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "authorization unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"allowed": allowed})
}

type sendAsRequest struct {
	TargetUserID string `json:"target_user_id"`
}

// CheckSendAsUser answers whether the caller may send on behalf of another
// user on this integration. The dispatch layer asks before substituting the
// sender identity.
func (h Handlers) CheckSendAsUser(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	integ, ok := h.loadIntegration(c)
	if !ok {
		return
	}
	var req sendAsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.TargetUserID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "target_user_id required"})
		return
	}
	allowed, err := h.Authz.CanSendAsUser(c.Request.Context(), userID, req.TargetUserID, integ)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "authorization unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"allowed": allowed})
}

// --- Quota ---

// CheckRateLimit reports whether one more call to the endpoint is allowed.
func (h Handlers) CheckRateLimit(c *gin.Context) {
	endpoint := c.Query("endpoint")
	if endpoint == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "endpoint required"})
		return
	}
	decision, err := h.Quota.CheckRateLimit(c.Request.Context(), c.Param("integration_id"), endpoint)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "quota unavailable"})
		return
	}
	resp := gin.H{"allowed": decision.Allowed}
	if !decision.Allowed {
		resp["reset_in_ms"] = decision.ResetIn.Milliseconds()
	}
	c.JSON(http.StatusOK, resp)
}

type trackCallRequest struct {
	Endpoint        string            `json:"endpoint"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty"`
}

// TrackApiCall records one upstream call against all granularity tiers.
func (h Handlers) TrackApiCall(c *gin.Context) {
	var req trackCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Endpoint == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "endpoint required"})
		return
	}
	if err := h.Quota.TrackApiCall(c.Request.Context(), c.Param("integration_id"), req.Endpoint, req.ResponseHeaders); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "quota unavailable"})
		return
	}
	c.Status(http.StatusNoContent)
}

// GetRateLimitStatus lists all active windows for an integration.
func (h Handlers) GetRateLimitStatus(c *gin.Context) {
	windows, err := h.Quota.GetRateLimitStatus(c.Request.Context(), c.Param("integration_id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "quota unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"windows": windows})
}

// --- Security ---

type screenMessageRequest struct {
	PhoneNumber string `json:"phone_number"`
	Message     string `json:"message"`
}

// ScreenMessage runs content heuristics and the block check for an inbound
// message. Detection only; the dispatch layer decides what to do with a
// flagged message.
func (h Handlers) ScreenMessage(c *gin.Context) {
	var req screenMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.PhoneNumber == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "phone_number required"})
		return
	}
	integrationID := c.Param("integration_id")

	suspicious := h.Audit.CheckSuspiciousPatterns(c.Request.Context(), req.PhoneNumber, req.Message, integrationID)
	blocked, err := h.Audit.IsPhoneNumberBlocked(c.Request.Context(), req.PhoneNumber, integrationID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "audit unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"suspicious": suspicious, "blocked": blocked})
}

type verificationFailureRequest struct {
	PhoneNumber  string `json:"phone_number"`
	Reason       string `json:"reason"`
	AttemptCount int    `json:"attempt_count"`
}

// ReportVerificationFailure is called by the verification flow on each
// failed attempt; the attempt counter is owned by that flow.
func (h Handlers) ReportVerificationFailure(c *gin.Context) {
	var req verificationFailureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.PhoneNumber == "" || req.AttemptCount <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "phone_number and attempt_count required"})
		return
	}
	h.Audit.TrackFailedVerification(c.Request.Context(), req.PhoneNumber, c.Param("integration_id"), req.Reason, req.AttemptCount)
	c.Status(http.StatusNoContent)
}

// GetSecurityEvents queries the audit log for an integration.
func (h Handlers) GetSecurityEvents(c *gin.Context) {
	f := audit.Filter{}
	if v := c.Query("types"); v != "" {
		for _, t := range strings.Split(v, ",") {
			f.Types = append(f.Types, audit.EventType(t))
		}
	}
	if v := c.Query("severities"); v != "" {
		for _, s := range strings.Split(v, ",") {
			f.Severities = append(f.Severities, audit.Severity(s))
		}
	}
	if v := c.Query("resolved"); v != "" {
		resolved := v == "true"
		f.Resolved = &resolved
	}
	var ok bool
	if f.From, ok = parseTimeQuery(c, "from"); !ok {
		return
	}
	if f.To, ok = parseTimeQuery(c, "to"); !ok {
		return
	}

	events, err := h.Audit.GetSecurityEvents(c.Request.Context(), c.Param("integration_id"), f)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "audit unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// GetSecurityReport aggregates the security posture over a period.
func (h Handlers) GetSecurityReport(c *gin.Context) {
	from, ok := parseTimeQuery(c, "from")
	if !ok {
		return
	}
	to, ok := parseTimeQuery(c, "to")
	if !ok {
		return
	}
	if from.IsZero() || to.IsZero() {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from and to required"})
		return
	}

	report, err := h.Audit.GenerateSecurityReport(c.Request.Context(), c.Param("integration_id"), from, to)
	if err != nil {
		if errors.Is(err, audit.ErrInvalidReportRange) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid report range"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "audit unavailable"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// --- helpers ---

func (h Handlers) loadIntegration(c *gin.Context) (integration.Integration, bool) {
	integ, err := h.Directory.GetIntegration(c.Request.Context(), c.Param("integration_id"))
	if err != nil {
		if errors.Is(err, integration.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "integration not found"})
			return integration.Integration{}, false
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "directory unavailable"})
		return integration.Integration{}, false
	}
	return integ, true
}

func parseTimeQuery(c *gin.Context, key string) (time.Time, bool) {
	v := c.Query(key)
	if v == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": key + " must be RFC3339"})
		return time.Time{}, false
	}
	return t, true
}
