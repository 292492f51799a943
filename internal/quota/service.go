package quota

import (
	"context"
	"errors"
	"time"

	"whatsapp-platform/pkg/logger"
)

// Service enforces and records API usage against the upstream Business API
// limits. All mutable state lives in the Store; the service itself is
// stateless and safe for concurrent use.
type Service struct {
	store  Store
	alerts AlertSink
	// clock is injectable for deterministic tests.
	clock func() time.Time

	// retention is how long expired windows are kept before cleanup.
	retention time.Duration
}

const defaultRetention = 24 * time.Hour

var ErrStoreNotConfigured = errors.New("quota: store not configured")

func NewService(store Store, alerts AlertSink) *Service {
	if alerts == nil {
		alerts = LogAlertSink{}
	}
	return &Service{
		store:     store,
		alerts:    alerts,
		clock:     time.Now,
		retention: defaultRetention,
	}
}

// WithRetention overrides the cleanup horizon for expired windows.
func (s *Service) WithRetention(d time.Duration) *Service {
	if d > 0 {
		s.retention = d
	}
	return s
}

// Decision is the outcome of a rate limit check. Exhaustion is a result, not
// an error, so callers can schedule a retry after ResetIn.
type Decision struct {
	Allowed bool          `json:"allowed"`
	ResetIn time.Duration `json:"reset_in,omitempty"`
}

// CheckRateLimit reports whether one more call to the endpoint is allowed.
//
// Fail-closed: if the store is unreachable the check denies rather than
// silently allowing unlimited traffic. The outage is logged and counted; the
// caller sees an ordinary denial with no reset hint.
func (s *Service) CheckRateLimit(ctx context.Context, integrationID, endpoint string) (Decision, error) {
	if s.store == nil {
		return Decision{}, ErrStoreNotConfigured
	}
	if integrationID == "" || endpoint == "" {
		return Decision{Allowed: false}, nil
	}

	now := s.clock().UTC()
	windows, err := s.store.ActiveWindows(ctx, integrationID, endpoint, now)
	if err != nil {
		quotaStoreFailures.Inc()
		logger.From(ctx).Warn("quota store unavailable, failing closed",
			"integration_id", integrationID, "endpoint", endpoint, "err", err)
		return Decision{Allowed: false}, nil
	}

	// The binding window is the exhausted one that resets last.
	var resetIn time.Duration
	exhausted := false
	for _, w := range windows {
		if w.RemainingQuota > 0 {
			continue
		}
		exhausted = true
		if wait := w.ResetsAt.Sub(now); wait > resetIn {
			resetIn = wait
		}
	}
	if exhausted {
		quotaDenials.WithLabelValues(string(CategoryForEndpoint(endpoint))).Inc()
		return Decision{Allowed: false, ResetIn: resetIn}, nil
	}
	return Decision{Allowed: true}, nil
}

// TrackApiCall records one call against every granularity tier of the
// endpoint's category and fires threshold alerts.
//
// Each tier update is a single atomic store operation; concurrent deliveries
// for the same triple each land exactly once. An alert fires only on the
// call whose increment crossed the threshold, so a sustained overload does
// not re-alert on every call.
func (s *Service) TrackApiCall(ctx context.Context, integrationID, endpoint string, responseHeaders map[string]string) error {
	if s.store == nil {
		return ErrStoreNotConfigured
	}
	if integrationID == "" || endpoint == "" {
		return errors.New("quota: integration_id and endpoint required")
	}

	now := s.clock().UTC()
	category := CategoryForEndpoint(endpoint)

	if ra, ok := responseHeaders["Retry-After"]; ok && ra != "" {
		logger.From(ctx).Warn("upstream signaled throttling",
			"integration_id", integrationID, "endpoint", endpoint, "retry_after", ra)
	}

	var firstErr error
	for _, tier := range Tiers(category) {
		updated, err := s.store.IncrementWindow(ctx, newWindow(integrationID, endpoint, tier, now), now)
		if err != nil {
			quotaStoreFailures.Inc()
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.checkThresholds(ctx, category, updated, now)
	}
	return firstErr
}

// checkThresholds fires at most one alert per threshold crossing: the call
// that moved usage from below the threshold to at-or-above it.
func (s *Service) checkThresholds(ctx context.Context, category Category, w Window, now time.Time) {
	level, crossed := crossing(w)
	if !crossed {
		return
	}

	quotaAlerts.WithLabelValues(string(category), string(level)).Inc()
	s.alerts.QuotaAlert(ctx, Alert{
		IntegrationID: w.IntegrationID,
		Endpoint:      w.Endpoint,
		WindowType:    w.WindowType,
		Level:         level,
		CurrentUsage:  w.CurrentUsage,
		LimitValue:    w.LimitValue,
		ResetsAt:      w.ResetsAt,
	})
	if err := s.store.MarkAlerted(ctx, w, now); err != nil {
		logger.From(ctx).Warn("failed to stamp last_alert_at", "err", err)
	}
}

// crossing reports whether this exact increment crossed a threshold, and the
// highest level it crossed. Usage values are unique per call within a
// window, so exactly one concurrent caller observes each crossing.
func crossing(w Window) (AlertLevel, bool) {
	if w.LimitValue <= 0 || w.CurrentUsage <= 0 {
		return "", false
	}
	cur := float64(w.CurrentUsage) / float64(w.LimitValue)
	prev := float64(w.CurrentUsage-1) / float64(w.LimitValue)

	if cur >= w.CriticalThreshold && prev < w.CriticalThreshold {
		return AlertCritical, true
	}
	if cur >= w.WarningThreshold && prev < w.WarningThreshold {
		return AlertWarning, true
	}
	return "", false
}

// GetRateLimitStatus lists all currently active windows for an integration.
func (s *Service) GetRateLimitStatus(ctx context.Context, integrationID string) ([]Window, error) {
	if s.store == nil {
		return nil, ErrStoreNotConfigured
	}
	if integrationID == "" {
		return nil, errors.New("quota: integration_id required")
	}
	return s.store.ListActive(ctx, integrationID, s.clock().UTC())
}

// CleanupOldRecords drops windows that expired more than the retention
// horizon ago. Intended to be run periodically by an external scheduler.
func (s *Service) CleanupOldRecords(ctx context.Context) (int64, error) {
	if s.store == nil {
		return 0, ErrStoreNotConfigured
	}
	cutoff := s.clock().UTC().Add(-s.retention)
	return s.store.DeleteExpiredBefore(ctx, cutoff)
}
