package audit

import (
	"context"
	"sync"
	"testing"
	"time"
)

type memorySink struct {
	mu     sync.Mutex
	events []Event
}

func (s *memorySink) SecurityAlert(ctx context.Context, e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *memorySink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func newTestService(repo Repository, sink AlertSink, at time.Time) *Service {
	svc := NewService(repo, sink)
	svc.clock = func() time.Time { return at }
	return svc
}

func TestLogSecurityEvent_AppendsImmutableEvent(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, nil)

	svc.LogSecurityEvent(context.Background(), EventPermissionDenied, SeverityLow, Metadata{
		UserID:        "u1",
		IntegrationID: "int-1",
		Reason:        "missing capability",
	})

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	if evs[0].ID == "" {
		t.Fatalf("expected generated id")
	}
	if evs[0].IntegrationID != "int-1" {
		t.Fatalf("expected integration scoping, got %q", evs[0].IntegrationID)
	}
	if evs[0].Type != EventPermissionDenied || evs[0].Severity != SeverityLow {
		t.Fatalf("unexpected event: %+v", evs[0])
	}
}

func TestLogSecurityEvent_SwallowsRepoFailure(t *testing.T) {
	svc := NewService(nil, nil)

	// Must not panic or propagate; a broken audit path cannot take down the
	// request path.
	svc.LogSecurityEvent(context.Background(), EventLoginFailed, SeverityMedium, Metadata{UserID: "u"})
}

func TestLogSecurityEvent_CriticalTriggersAlertSink(t *testing.T) {
	repo := NewMemoryRepo()
	sink := &memorySink{}
	svc := NewService(repo, sink)

	svc.LogSecurityEvent(context.Background(), EventUnauthorizedAccess, SeverityCritical, Metadata{PhoneNumber: "+1555"})
	svc.LogSecurityEvent(context.Background(), EventLoginFailed, SeverityHigh, Metadata{UserID: "u"})

	if sink.count() != 1 {
		t.Fatalf("expected exactly the critical event to fan out, got %d", sink.count())
	}
}

func TestCheckSuspiciousPatterns(t *testing.T) {
	cases := []struct {
		name    string
		message string
		want    bool
	}{
		{"password solicitation", "please send your password to verify the account", true},
		{"credential reversed order", "your PIN is required, share it now", true},
		{"api key", "paste the api_key here", true},
		{"credit card shaped", "card 4111 1111 1111 1111 thanks", true},
		{"ssn shaped", "my number is 123-45-6789", true},
		{"shortened url", "click bit.ly/x9f2 to claim", true},
		{"benign", "lunch at noon tomorrow?", false},
		{"password mentioned without transfer verb", "I forgot my password again. Annoying!", false},
		{"plain digits", "order 12345 arrives tuesday", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := NewMemoryRepo()
			svc := NewService(repo, nil)

			got := svc.CheckSuspiciousPatterns(context.Background(), "+15551230000", tc.message, "int-1")
			if got != tc.want {
				t.Fatalf("CheckSuspiciousPatterns(%q) = %v, want %v", tc.message, got, tc.want)
			}

			evs := repo.Events()
			if tc.want {
				if len(evs) != 1 {
					t.Fatalf("expected 1 logged event, got %d", len(evs))
				}
				if evs[0].Type != EventSuspiciousMessagePattern || evs[0].Severity != SeverityHigh {
					t.Fatalf("unexpected event: %+v", evs[0])
				}
				if evs[0].Metadata.PatternName == "" {
					t.Fatalf("expected pattern name in metadata")
				}
			} else if len(evs) != 0 {
				t.Fatalf("expected no events for benign message, got %d", len(evs))
			}
		})
	}
}

func TestTrackFailedVerification_SeverityEscalation(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, nil)

	svc.TrackFailedVerification(context.Background(), "+1555", "int-1", "bad code", 1)
	svc.TrackFailedVerification(context.Background(), "+1555", "int-1", "bad code", 5)

	evs := repo.Events()
	if len(evs) != 2 {
		t.Fatalf("expected 2 events, got %d", len(evs))
	}
	if evs[0].Severity != SeverityMedium {
		t.Fatalf("attempt 1 should be medium, got %s", evs[0].Severity)
	}
	if evs[1].Severity != SeverityHigh {
		t.Fatalf("attempt 5 should be high, got %s", evs[1].Severity)
	}
	if evs[1].Metadata.AttemptCount != 5 {
		t.Fatalf("expected attempt count carried in metadata")
	}
}

func TestTrackFailedVerification_BlocksAtTenAttempts(t *testing.T) {
	repo := NewMemoryRepo()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(repo, nil, now)

	for n := 1; n <= 10; n++ {
		svc.TrackFailedVerification(context.Background(), "+15551230000", "int-x", "bad code", n)
	}

	var criticals []Event
	for _, e := range repo.Events() {
		if e.Type == EventUnauthorizedAccess && e.Severity == SeverityCritical {
			criticals = append(criticals, e)
		}
	}
	if len(criticals) != 1 {
		t.Fatalf("expected exactly one critical block event, got %d", len(criticals))
	}

	blocked, err := svc.IsPhoneNumberBlocked(context.Background(), "+15551230000", "int-x")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !blocked {
		t.Fatalf("expected phone to be blocked")
	}
}

func TestIsPhoneNumberBlocked_ExpiresAfterLookback(t *testing.T) {
	repo := NewMemoryRepo()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(repo, nil, now)

	svc.BlockPhoneNumber(context.Background(), "+1555", "int-1")

	blocked, err := svc.IsPhoneNumberBlocked(context.Background(), "+1555", "int-1")
	if err != nil || !blocked {
		t.Fatalf("expected blocked right after, got %v err=%v", blocked, err)
	}

	// 25 hours later the block has lapsed.
	svc.clock = func() time.Time { return now.Add(25 * time.Hour) }
	blocked, err = svc.IsPhoneNumberBlocked(context.Background(), "+1555", "int-1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if blocked {
		t.Fatalf("expected block to expire after lookback window")
	}
}

func TestIsPhoneNumberBlocked_ScopedToIntegrationAndPhone(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, nil)

	svc.BlockPhoneNumber(context.Background(), "+1555", "int-1")

	if blocked, _ := svc.IsPhoneNumberBlocked(context.Background(), "+1555", "int-2"); blocked {
		t.Fatalf("block must not leak across integrations")
	}
	if blocked, _ := svc.IsPhoneNumberBlocked(context.Background(), "+1666", "int-1"); blocked {
		t.Fatalf("block must not leak across phone numbers")
	}
}

func TestGetSecurityEvents_Filtering(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	svc.LogSecurityEvent(ctx, EventLoginFailed, SeverityLow, Metadata{IntegrationID: "int-1"})
	svc.LogSecurityEvent(ctx, EventRateLimitExceeded, SeverityMedium, Metadata{IntegrationID: "int-1"})
	svc.LogSecurityEvent(ctx, EventLoginFailed, SeverityLow, Metadata{IntegrationID: "int-2"})

	evs, err := svc.GetSecurityEvents(ctx, "int-1", Filter{Types: []EventType{EventLoginFailed}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(evs) != 1 {
		t.Fatalf("expected 1 event after type+integration filter, got %d", len(evs))
	}

	evs, err = svc.GetSecurityEvents(ctx, "int-1", Filter{Severities: []Severity{SeverityMedium}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(evs) != 1 || evs[0].Type != EventRateLimitExceeded {
		t.Fatalf("unexpected severity filter result: %+v", evs)
	}
}

func TestCleanupExpiredEvents(t *testing.T) {
	repo := NewMemoryRepo()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(repo, nil, now.Add(-40*24*time.Hour))

	svc.LogSecurityEvent(context.Background(), EventLoginFailed, SeverityLow, Metadata{})

	svc.clock = func() time.Time { return now }
	svc.LogSecurityEvent(context.Background(), EventLoginFailed, SeverityLow, Metadata{})

	n, err := svc.CleanupExpiredEvents(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 pruned event, got %d", n)
	}
	if len(repo.Events()) != 1 {
		t.Fatalf("expected 1 surviving event")
	}
}
