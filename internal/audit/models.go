package audit

import "time"

// Event is an immutable, append-only security audit record.
//
// Invariants:
// - Events are never updated or deleted, except by scheduled retention
//   cleanup.
// - integration_id scopes the event to an integration when one exists;
//   platform-level events (e.g. login failures before any integration is
//   resolved) may leave it empty.
// - Writes are best-effort: an audit gap must never break the primary
//   request path.
//
// Storage recommendation (Postgres):
// - Table security_events with an INSERT-only policy.
// - Indexes on (integration_id, created_at) and (created_at).
// - Metadata as a jsonb column.
type Event struct {
	ID            string `json:"id" db:"id"`
	IntegrationID string `json:"integration_id,omitempty" db:"integration_id"`

	Type     EventType `json:"type" db:"type"`
	Severity Severity  `json:"severity" db:"severity"`

	Metadata Metadata `json:"metadata" db:"metadata"`

	// Resolved is set by the admin review surface, which lives outside this
	// layer; here it only participates in query filters.
	Resolved bool `json:"resolved" db:"resolved"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Metadata is the structured blob attached to an event. Message content is
// never stored here; pattern categories and identifiers only.
type Metadata struct {
	PhoneNumber   string `json:"phone_number,omitempty"`
	UserID        string `json:"user_id,omitempty"`
	IntegrationID string `json:"integration_id,omitempty"`
	Endpoint      string `json:"endpoint,omitempty"`
	AttemptCount  int    `json:"attempt_count,omitempty"`
	Reason        string `json:"reason,omitempty"`
	PatternName   string `json:"pattern_name,omitempty"`
	IPAddress     string `json:"ip_address,omitempty"`
}

type EventType string

// Event types, grouped by category.
const (
	// Authentication / authorization failures
	EventLoginFailed        EventType = "LOGIN_FAILED"
	EventTokenInvalid       EventType = "TOKEN_INVALID"
	EventPermissionDenied   EventType = "PERMISSION_DENIED"
	EventUnauthorizedAccess EventType = "UNAUTHORIZED_ACCESS"

	// Verification abuse
	EventVerificationFailed      EventType = "VERIFICATION_FAILED"
	EventVerificationExpired     EventType = "VERIFICATION_EXPIRED"
	EventVerificationResendAbuse EventType = "VERIFICATION_RESEND_ABUSE"

	// Suspicious content
	EventSuspiciousMessagePattern EventType = "SUSPICIOUS_MESSAGE_PATTERN"
	EventSuspiciousURL            EventType = "SUSPICIOUS_URL"
	EventSpamDetected             EventType = "SPAM_DETECTED"

	// Rate limiting
	EventRateLimitExceeded EventType = "RATE_LIMIT_EXCEEDED"
	EventRateLimitWarning  EventType = "RATE_LIMIT_WARNING"

	// Admin mutations
	EventIntegrationCreated EventType = "INTEGRATION_CREATED"
	EventIntegrationDeleted EventType = "INTEGRATION_DELETED"
	EventMappingChanged     EventType = "PHONE_MAPPING_CHANGED"
	EventTemplateChanged    EventType = "TEMPLATE_CHANGED"
	EventMemberRoleChanged  EventType = "MEMBER_ROLE_CHANGED"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Filter narrows a security event query. Zero fields match everything.
type Filter struct {
	Types      []EventType
	Severities []Severity
	Resolved   *bool
	From       time.Time
	To         time.Time
	Limit      int
}

// Matches applies the filter to one event.
func (f Filter) Matches(e Event) bool {
	if len(f.Types) > 0 && !containsType(f.Types, e.Type) {
		return false
	}
	if len(f.Severities) > 0 && !containsSeverity(f.Severities, e.Severity) {
		return false
	}
	if f.Resolved != nil && e.Resolved != *f.Resolved {
		return false
	}
	if !f.From.IsZero() && e.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.CreatedAt.After(f.To) {
		return false
	}
	return true
}

func containsType(list []EventType, t EventType) bool {
	for _, v := range list {
		if v == t {
			return true
		}
	}
	return false
}

func containsSeverity(list []Severity, s Severity) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
