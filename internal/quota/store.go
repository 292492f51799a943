package quota

import (
	"context"
	"time"
)

// Store is the persistence contract for usage windows.
//
// Correctness requirement: IncrementWindow must account exactly once per call
// under concurrent delivery for the same (integration, endpoint, window type)
// triple. Implementations must use an atomic storage operation (a single
// conditional upsert, or an atomic TTL'd counter), never read-then-write.
type Store interface {
	// IncrementWindow adds one call to the counter. fresh describes the
	// window that should exist for the current instant (usage 1); if a live
	// row (resets_at > now) already exists, its usage is incremented instead
	// and the updated row is returned.
	IncrementWindow(ctx context.Context, fresh Window, now time.Time) (Window, error)

	// ActiveWindows returns the live windows for one (integration, endpoint).
	ActiveWindows(ctx context.Context, integrationID, endpoint string, now time.Time) ([]Window, error)

	// ListActive returns all live windows for an integration across
	// endpoints and granularities.
	ListActive(ctx context.Context, integrationID string, now time.Time) ([]Window, error)

	// MarkAlerted stamps last_alert_at on a window after an alert fired.
	// Best-effort: an error here must not fail the tracked call.
	MarkAlerted(ctx context.Context, w Window, now time.Time) error

	// DeleteExpiredBefore drops windows whose resets_at is older than cutoff.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
