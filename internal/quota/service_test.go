package quota

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type captureSink struct {
	mu     sync.Mutex
	alerts []Alert
}

func (s *captureSink) QuotaAlert(ctx context.Context, a Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
}

func (s *captureSink) byLevel(level AlertLevel) []Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Alert
	for _, a := range s.alerts {
		if a.Level == level {
			out = append(out, a)
		}
	}
	return out
}

// brokenStore fails every operation, standing in for a store outage.
type brokenStore struct{}

var errStoreDown = errors.New("store down")

func (brokenStore) IncrementWindow(ctx context.Context, fresh Window, now time.Time) (Window, error) {
	return Window{}, errStoreDown
}
func (brokenStore) ActiveWindows(ctx context.Context, integrationID, endpoint string, now time.Time) ([]Window, error) {
	return nil, errStoreDown
}
func (brokenStore) ListActive(ctx context.Context, integrationID string, now time.Time) ([]Window, error) {
	return nil, errStoreDown
}
func (brokenStore) MarkAlerted(ctx context.Context, w Window, now time.Time) error {
	return errStoreDown
}
func (brokenStore) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, errStoreDown
}

func newTestService(store Store, sink AlertSink, at time.Time) *Service {
	svc := NewService(store, sink)
	svc.clock = func() time.Time { return at }
	return svc
}

func TestTrackApiCall_CreatesAllTiers(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2025, 6, 1, 12, 30, 15, 0, time.UTC)
	svc := newTestService(store, &captureSink{}, now)
	ctx := context.Background()

	if err := svc.TrackApiCall(ctx, "int-1", "/messages", nil); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	windows, err := svc.GetRateLimitStatus(ctx, "int-1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(windows) != 4 {
		t.Fatalf("expected 4 message tiers, got %d", len(windows))
	}
	for _, w := range windows {
		if w.CurrentUsage != 1 {
			t.Fatalf("fresh %s window should have usage 1, got %d", w.WindowType, w.CurrentUsage)
		}
		if w.RemainingQuota != w.LimitValue-1 {
			t.Fatalf("remaining quota mismatch on %s: %d vs limit %d", w.WindowType, w.RemainingQuota, w.LimitValue)
		}
		if !w.ResetsAt.After(now) {
			t.Fatalf("%s window already expired", w.WindowType)
		}
	}
}

func TestTrackApiCall_TemplatesHaveOnlyHourAndDayTiers(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2025, 6, 1, 12, 30, 15, 0, time.UTC)
	svc := newTestService(store, &captureSink{}, now)

	if err := svc.TrackApiCall(context.Background(), "int-1", "/templates", nil); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	windows, _ := svc.GetRateLimitStatus(context.Background(), "int-1")
	if len(windows) != 2 {
		t.Fatalf("expected 2 template tiers, got %d", len(windows))
	}
	for _, w := range windows {
		if w.WindowType == WindowPerSecond || w.WindowType == WindowPerMinute {
			t.Fatalf("templates must not carry a %s tier", w.WindowType)
		}
	}
}

func TestCheckRateLimit_DeniesAfterSecondTierExhausted(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2025, 6, 1, 12, 30, 15, 250_000_000, time.UTC)
	svc := newTestService(store, &captureSink{}, now)
	ctx := context.Background()

	for i := 0; i < 80; i++ {
		if err := svc.TrackApiCall(ctx, "int-1", "/messages", nil); err != nil {
			t.Fatalf("track %d: %v", i, err)
		}
	}

	d, err := svc.CheckRateLimit(ctx, "int-1", "/messages")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if d.Allowed {
		t.Fatalf("81st call within one second should be denied")
	}
	if d.ResetIn <= 0 || d.ResetIn > time.Second {
		t.Fatalf("expected reset within the second, got %v", d.ResetIn)
	}
}

func TestCheckRateLimit_AllowsAfterWindowRollover(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2025, 6, 1, 12, 30, 15, 0, time.UTC)
	svc := newTestService(store, &captureSink{}, now)
	ctx := context.Background()

	for i := 0; i < 80; i++ {
		if err := svc.TrackApiCall(ctx, "int-1", "/messages", nil); err != nil {
			t.Fatalf("track %d: %v", i, err)
		}
	}
	if d, _ := svc.CheckRateLimit(ctx, "int-1", "/messages"); d.Allowed {
		t.Fatalf("expected denial at the second-tier limit")
	}

	// One second later the per-second window has rolled over.
	later := now.Add(time.Second)
	svc.clock = func() time.Time { return later }

	d, err := svc.CheckRateLimit(ctx, "int-1", "/messages")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("expected the next second to allow traffic again")
	}

	if err := svc.TrackApiCall(ctx, "int-1", "/messages", nil); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	windows, _ := store.ActiveWindows(ctx, "int-1", "/messages", later)
	for _, w := range windows {
		if w.WindowType == WindowPerSecond && w.CurrentUsage != 1 {
			t.Fatalf("rolled-over second window should restart at 1, got %d", w.CurrentUsage)
		}
		if w.WindowType == WindowPerMinute && w.CurrentUsage != 81 {
			t.Fatalf("minute window should keep accumulating, got %d", w.CurrentUsage)
		}
	}
}

func TestCheckRateLimit_FailsClosedOnStoreOutage(t *testing.T) {
	svc := NewService(brokenStore{}, &captureSink{})

	d, err := svc.CheckRateLimit(context.Background(), "int-1", "/messages")
	if err != nil {
		t.Fatalf("store outage must not surface as an error: %v", err)
	}
	if d.Allowed {
		t.Fatalf("store outage must deny, not allow unlimited traffic")
	}
}

func TestTrackApiCall_ReturnsStoreError(t *testing.T) {
	svc := NewService(brokenStore{}, &captureSink{})

	if err := svc.TrackApiCall(context.Background(), "int-1", "/messages", nil); !errors.Is(err, errStoreDown) {
		t.Fatalf("expected store error to propagate, got %v", err)
	}
}

func TestThresholdAlerts_FireOncePerCrossing(t *testing.T) {
	store := NewMemoryStore()
	sink := &captureSink{}
	now := time.Date(2025, 6, 1, 12, 30, 15, 0, time.UTC)
	svc := newTestService(store, sink, now)
	ctx := context.Background()

	// 80 calls within one second walk the per-second window through both
	// thresholds: warning at 64 (80% of 80), critical at 76 (95%).
	for i := 0; i < 80; i++ {
		if err := svc.TrackApiCall(ctx, "int-1", "/messages", nil); err != nil {
			t.Fatalf("track %d: %v", i, err)
		}
	}

	warnings := sink.byLevel(AlertWarning)
	criticals := sink.byLevel(AlertCritical)
	if len(warnings) != 1 {
		t.Fatalf("expected exactly one warning alert, got %d", len(warnings))
	}
	if len(criticals) != 1 {
		t.Fatalf("expected exactly one critical alert, got %d", len(criticals))
	}
	if warnings[0].CurrentUsage != 64 || warnings[0].WindowType != WindowPerSecond {
		t.Fatalf("unexpected warning alert: %+v", warnings[0])
	}
	if criticals[0].CurrentUsage != 76 {
		t.Fatalf("critical alert should fire on the crossing call, got usage %d", criticals[0].CurrentUsage)
	}
}

func TestGetRateLimitStatus_ExcludesExpiredWindows(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2025, 6, 1, 12, 30, 15, 0, time.UTC)
	svc := newTestService(store, &captureSink{}, now)
	ctx := context.Background()

	if err := svc.TrackApiCall(ctx, "int-1", "/messages", nil); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	// Two minutes later both sub-hour windows have expired.
	svc.clock = func() time.Time { return now.Add(2 * time.Minute) }
	windows, err := svc.GetRateLimitStatus(ctx, "int-1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(windows) != 2 {
		t.Fatalf("expected only hour and day windows to remain active, got %d", len(windows))
	}
	for _, w := range windows {
		if w.WindowType == WindowPerSecond || w.WindowType == WindowPerMinute {
			t.Fatalf("expired %s window listed as active", w.WindowType)
		}
	}
}

func TestCleanupOldRecords(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2025, 6, 1, 12, 30, 15, 0, time.UTC)
	svc := newTestService(store, &captureSink{}, now)
	ctx := context.Background()

	if err := svc.TrackApiCall(ctx, "int-1", "/messages", nil); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	// Two days later everything, including the day window, is past the
	// retention horizon.
	svc.clock = func() time.Time { return now.Add(48 * time.Hour) }
	n, err := svc.CleanupOldRecords(ctx)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected all 4 windows pruned, got %d", n)
	}
}

func TestCategoryForEndpoint(t *testing.T) {
	cases := map[string]Category{
		"/messages":       CategoryMessages,
		"/media":          CategoryMedia,
		"/media/upload":   CategoryMedia,
		"/templates":      CategoryTemplates,
		"/anything/else":  CategoryMessages,
		"/contacts/check": CategoryMessages,
	}
	for endpoint, want := range cases {
		if got := CategoryForEndpoint(endpoint); got != want {
			t.Errorf("CategoryForEndpoint(%q) = %s, want %s", endpoint, got, want)
		}
	}
}
