package audit

import (
	"context"
	"errors"
	"strings"
	"time"

	"whatsapp-platform/pkg/logger"

	"github.com/google/uuid"
)

// Repository is the persistence contract for security events.
//
// It MUST be append-only. No update method is provided by design; the only
// deletion path is retention cleanup.
type Repository interface {
	Append(ctx context.Context, e Event) error
	Query(ctx context.Context, integrationID string, f Filter) ([]Event, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// AlertSink receives critical security events. Delivery transport is owned
// by the implementation; this layer only triggers.
type AlertSink interface {
	SecurityAlert(ctx context.Context, e Event)
}

// LogAlertSink is the default sink: critical events go to the structured log.
type LogAlertSink struct{}

func (LogAlertSink) SecurityAlert(ctx context.Context, e Event) {
	logger.From(ctx).Error("critical security event",
		"event_id", e.ID,
		"type", string(e.Type),
		"integration_id", e.IntegrationID,
		"phone_number", e.Metadata.PhoneNumber,
		"reason", e.Metadata.Reason,
	)
}

// Service records security-relevant events, screens message content, and
// escalates repeated verification failures into a block decision.
//
// IMPORTANT:
// - Writes are best-effort. Persistence errors are logged locally and never
//   propagated; an audit gap must not cause a user-facing outage.
// - Reads (block status, reports) tolerate eventual consistency.
type Service struct {
	repo   Repository
	alerts AlertSink
	clock  func() time.Time

	// retention bounds how long events are kept; blockLookback bounds the
	// phone-block scan.
	retention     time.Duration
	blockLookback time.Duration
}

const (
	defaultRetention     = 30 * 24 * time.Hour
	defaultBlockLookback = 24 * time.Hour

	// Verification escalation thresholds.
	highSeverityAttempts = 5
	blockAfterAttempts   = 10

	// blockReason marks the critical events that IsPhoneNumberBlocked scans
	// for. The audit log stays the single source of truth for blocks.
	blockReason = "phone number blocked after repeated verification failures"
)

var ErrRepoNotConfigured = errors.New("audit: repository not configured")

func NewService(repo Repository, alerts AlertSink) *Service {
	if alerts == nil {
		alerts = LogAlertSink{}
	}
	return &Service{
		repo:          repo,
		alerts:        alerts,
		clock:         time.Now,
		retention:     defaultRetention,
		blockLookback: defaultBlockLookback,
	}
}

// WithRetention overrides how long events are kept before cleanup.
func (s *Service) WithRetention(d time.Duration) *Service {
	if d > 0 {
		s.retention = d
	}
	return s
}

// LogSecurityEvent persists an event. It always succeeds from the caller's
// point of view; failures are surfaced only to the local error sink.
// Critical events additionally trigger the alert fan-out hook.
func (s *Service) LogSecurityEvent(ctx context.Context, t EventType, severity Severity, meta Metadata) {
	e := Event{
		ID:            uuid.NewString(),
		IntegrationID: meta.IntegrationID,
		Type:          t,
		Severity:      severity,
		Metadata:      meta,
		CreatedAt:     s.clock().UTC(),
	}

	if s.repo == nil {
		logger.From(ctx).Error("audit repository not configured, dropping event", "type", string(t))
	} else if err := s.repo.Append(ctx, e); err != nil {
		logger.From(ctx).Error("failed to persist security event",
			"type", string(t), "severity", string(severity), "err", err)
	}
	securityEvents.WithLabelValues(string(t), string(severity)).Inc()

	if severity == SeverityCritical {
		s.alerts.SecurityAlert(ctx, e)
	}
}

// CheckSuspiciousPatterns screens message text against the ordered heuristic
// rule table. The first match is logged as a high-severity event and the
// function reports true. Detection only: rejecting the message is the
// caller's decision.
func (s *Service) CheckSuspiciousPatterns(ctx context.Context, phoneNumber, message, integrationID string) bool {
	rule, ok := matchContentRules(message)
	if !ok {
		return false
	}

	s.LogSecurityEvent(ctx, EventSuspiciousMessagePattern, rule.Severity, Metadata{
		PhoneNumber:   phoneNumber,
		IntegrationID: integrationID,
		PatternName:   rule.Name,
		Reason:        rule.Category,
	})
	return true
}

// TrackFailedVerification records a verification failure. The attempt
// counter is supplied by the caller's verification flow; this service keeps
// no counter state. At blockAfterAttempts the phone number is blocked.
func (s *Service) TrackFailedVerification(ctx context.Context, phoneNumber, integrationID, reason string, attemptCount int) {
	severity := SeverityMedium
	if attemptCount >= highSeverityAttempts {
		severity = SeverityHigh
	}

	s.LogSecurityEvent(ctx, EventVerificationFailed, severity, Metadata{
		PhoneNumber:   phoneNumber,
		IntegrationID: integrationID,
		Reason:        reason,
		AttemptCount:  attemptCount,
	})

	if attemptCount >= blockAfterAttempts {
		s.BlockPhoneNumber(ctx, phoneNumber, integrationID)
	}
}

// BlockPhoneNumber records the block decision as a critical event. The event
// itself is the block; there is no separate block table.
func (s *Service) BlockPhoneNumber(ctx context.Context, phoneNumber, integrationID string) {
	s.LogSecurityEvent(ctx, EventUnauthorizedAccess, SeverityCritical, Metadata{
		PhoneNumber:   phoneNumber,
		IntegrationID: integrationID,
		Reason:        blockReason,
	})
}

// IsPhoneNumberBlocked scans critical unauthorized-access events within the
// lookback window for a block on this (phone, integration). A log scan per
// check is the price of keeping the audit log as the single source of truth.
func (s *Service) IsPhoneNumberBlocked(ctx context.Context, phoneNumber, integrationID string) (bool, error) {
	if s.repo == nil {
		return false, ErrRepoNotConfigured
	}

	now := s.clock().UTC()
	events, err := s.repo.Query(ctx, integrationID, Filter{
		Types:      []EventType{EventUnauthorizedAccess},
		Severities: []Severity{SeverityCritical},
		From:       now.Add(-s.blockLookback),
	})
	if err != nil {
		return false, err
	}
	for _, e := range events {
		if e.Metadata.PhoneNumber == phoneNumber && strings.Contains(e.Metadata.Reason, "blocked") {
			return true, nil
		}
	}
	return false, nil
}

// GetSecurityEvents queries the log for an integration.
func (s *Service) GetSecurityEvents(ctx context.Context, integrationID string, f Filter) ([]Event, error) {
	if s.repo == nil {
		return nil, ErrRepoNotConfigured
	}
	return s.repo.Query(ctx, integrationID, f)
}

// CleanupExpiredEvents prunes events older than the retention period.
// Intended to be run periodically by an external scheduler.
func (s *Service) CleanupExpiredEvents(ctx context.Context) (int64, error) {
	if s.repo == nil {
		return 0, ErrRepoNotConfigured
	}
	cutoff := s.clock().UTC().Add(-s.retention)
	return s.repo.DeleteOlderThan(ctx, cutoff)
}
