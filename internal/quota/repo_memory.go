package quota

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a mutex-guarded in-memory Store useful for tests and early
// development. The mutex spans the whole read-increment-write, so it meets
// the exactly-once accounting contract within a single process.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[windowKey]Window
}

type windowKey struct {
	integrationID string
	endpoint      string
	windowType    WindowType
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: map[windowKey]Window{}}
}

func (s *MemoryStore) IncrementWindow(ctx context.Context, fresh Window, now time.Time) (Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := windowKey{fresh.IntegrationID, fresh.Endpoint, fresh.WindowType}
	if cur, ok := s.windows[key]; ok && cur.Active(now) {
		cur.CurrentUsage++
		if cur.RemainingQuota > 0 {
			cur.RemainingQuota--
		}
		s.windows[key] = cur
		return cur, nil
	}
	s.windows[key] = fresh
	return fresh, nil
}

func (s *MemoryStore) ActiveWindows(ctx context.Context, integrationID, endpoint string, now time.Time) ([]Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Window, 0, 4)
	for key, w := range s.windows {
		if key.integrationID != integrationID || key.endpoint != endpoint {
			continue
		}
		if w.Active(now) {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListActive(ctx context.Context, integrationID string, now time.Time) ([]Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Window, 0)
	for key, w := range s.windows {
		if key.integrationID != integrationID {
			continue
		}
		if w.Active(now) {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *MemoryStore) MarkAlerted(ctx context.Context, w Window, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := windowKey{w.IntegrationID, w.Endpoint, w.WindowType}
	if cur, ok := s.windows[key]; ok && cur.WindowStart.Equal(w.WindowStart) {
		t := now
		cur.LastAlertAt = &t
		s.windows[key] = cur
	}
	return nil
}

func (s *MemoryStore) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for key, w := range s.windows {
		if w.ResetsAt.Before(cutoff) {
			delete(s.windows, key)
			n++
		}
	}
	return n, nil
}
