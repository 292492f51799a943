package quota

import (
	"context"
	"database/sql"
	"time"
)

// PostgresStore persists usage windows in the rate_limit_windows table.
//
// Assumed schema:
//
//	CREATE TABLE rate_limit_windows (
//	  integration_id     text NOT NULL,
//	  endpoint           text NOT NULL,
//	  window_type        text NOT NULL,
//	  limit_value        int  NOT NULL,
//	  current_usage      int  NOT NULL,
//	  remaining_quota    int  NOT NULL,
//	  window_start       timestamptz NOT NULL,
//	  resets_at          timestamptz NOT NULL,
//	  warning_threshold  double precision NOT NULL,
//	  critical_threshold double precision NOT NULL,
//	  last_alert_at      timestamptz,
//	  PRIMARY KEY (integration_id, endpoint, window_type)
//	);
//	CREATE INDEX ON rate_limit_windows (resets_at);
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// IncrementWindow is a single conditional upsert: if the stored row is still
// live it is incremented, otherwise it is replaced with the fresh window.
// One statement, so concurrent deliveries serialize on the row and each call
// is accounted exactly once.
func (s *PostgresStore) IncrementWindow(ctx context.Context, fresh Window, now time.Time) (Window, error) {
	const q = `
INSERT INTO rate_limit_windows (
  integration_id, endpoint, window_type, limit_value, current_usage,
  remaining_quota, window_start, resets_at, warning_threshold, critical_threshold
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (integration_id, endpoint, window_type)
DO UPDATE SET
  current_usage = CASE WHEN rate_limit_windows.resets_at > $11
                       THEN rate_limit_windows.current_usage + 1
                       ELSE EXCLUDED.current_usage END,
  remaining_quota = CASE WHEN rate_limit_windows.resets_at > $11
                         THEN GREATEST(rate_limit_windows.remaining_quota - 1, 0)
                         ELSE EXCLUDED.remaining_quota END,
  limit_value = EXCLUDED.limit_value,
  window_start = CASE WHEN rate_limit_windows.resets_at > $11
                      THEN rate_limit_windows.window_start
                      ELSE EXCLUDED.window_start END,
  resets_at = CASE WHEN rate_limit_windows.resets_at > $11
                   THEN rate_limit_windows.resets_at
                   ELSE EXCLUDED.resets_at END,
  warning_threshold = EXCLUDED.warning_threshold,
  critical_threshold = EXCLUDED.critical_threshold,
  last_alert_at = CASE WHEN rate_limit_windows.resets_at > $11
                       THEN rate_limit_windows.last_alert_at
                       ELSE NULL END
RETURNING integration_id, endpoint, window_type, limit_value, current_usage,
          remaining_quota, window_start, resets_at, warning_threshold,
          critical_threshold, last_alert_at
`
	row := s.db.QueryRowContext(ctx, q,
		fresh.IntegrationID,
		fresh.Endpoint,
		fresh.WindowType,
		fresh.LimitValue,
		fresh.CurrentUsage,
		fresh.RemainingQuota,
		fresh.WindowStart,
		fresh.ResetsAt,
		fresh.WarningThreshold,
		fresh.CriticalThreshold,
		now,
	)
	return scanWindow(row)
}

func (s *PostgresStore) ActiveWindows(ctx context.Context, integrationID, endpoint string, now time.Time) ([]Window, error) {
	const q = `
SELECT integration_id, endpoint, window_type, limit_value, current_usage,
       remaining_quota, window_start, resets_at, warning_threshold,
       critical_threshold, last_alert_at
FROM rate_limit_windows
WHERE integration_id = $1 AND endpoint = $2 AND resets_at > $3
`
	rows, err := s.db.QueryContext(ctx, q, integrationID, endpoint, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWindows(rows)
}

func (s *PostgresStore) ListActive(ctx context.Context, integrationID string, now time.Time) ([]Window, error) {
	const q = `
SELECT integration_id, endpoint, window_type, limit_value, current_usage,
       remaining_quota, window_start, resets_at, warning_threshold,
       critical_threshold, last_alert_at
FROM rate_limit_windows
WHERE integration_id = $1 AND resets_at > $2
ORDER BY endpoint, window_type
`
	rows, err := s.db.QueryContext(ctx, q, integrationID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWindows(rows)
}

func (s *PostgresStore) MarkAlerted(ctx context.Context, w Window, now time.Time) error {
	const q = `
UPDATE rate_limit_windows
SET last_alert_at = $4
WHERE integration_id = $1 AND endpoint = $2 AND window_type = $3
  AND window_start = $5
`
	_, err := s.db.ExecContext(ctx, q, w.IntegrationID, w.Endpoint, w.WindowType, now, w.WindowStart)
	return err
}

func (s *PostgresStore) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `DELETE FROM rate_limit_windows WHERE resets_at < $1`
	res, err := s.db.ExecContext(ctx, q, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWindow(r rowScanner) (Window, error) {
	var (
		w       Window
		alertAt sql.NullTime
	)
	if err := r.Scan(
		&w.IntegrationID,
		&w.Endpoint,
		&w.WindowType,
		&w.LimitValue,
		&w.CurrentUsage,
		&w.RemainingQuota,
		&w.WindowStart,
		&w.ResetsAt,
		&w.WarningThreshold,
		&w.CriticalThreshold,
		&alertAt,
	); err != nil {
		return Window{}, err
	}
	if alertAt.Valid {
		t := alertAt.Time
		w.LastAlertAt = &t
	}
	return w, nil
}

func collectWindows(rows *sql.Rows) ([]Window, error) {
	out := make([]Window, 0, 4)
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
