package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PostgresRepo persists security events in the security_events table.
//
// Assumed schema:
//
//	CREATE TABLE security_events (
//	  id             text PRIMARY KEY,
//	  integration_id text NOT NULL DEFAULT '',
//	  type           text NOT NULL,
//	  severity       text NOT NULL,
//	  metadata       jsonb NOT NULL DEFAULT '{}',
//	  resolved       boolean NOT NULL DEFAULT false,
//	  created_at     timestamptz NOT NULL
//	);
//	CREATE INDEX ON security_events (integration_id, created_at);
//	CREATE INDEX ON security_events (created_at);
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	const q = `
INSERT INTO security_events (id, integration_id, type, severity, metadata, resolved, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`
	_, err = r.db.ExecContext(ctx, q,
		e.ID,
		e.IntegrationID,
		e.Type,
		e.Severity,
		meta,
		e.Resolved,
		e.CreatedAt,
	)
	return err
}

func (r *PostgresRepo) Query(ctx context.Context, integrationID string, f Filter) ([]Event, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if integrationID != "" {
		add("integration_id = $%d", integrationID)
	}
	if len(f.Types) > 0 {
		vals := make([]string, len(f.Types))
		for i, t := range f.Types {
			vals[i] = string(t)
		}
		add("type = ANY(string_to_array($%d, ','))", strings.Join(vals, ","))
	}
	if len(f.Severities) > 0 {
		vals := make([]string, len(f.Severities))
		for i, s := range f.Severities {
			vals[i] = string(s)
		}
		add("severity = ANY(string_to_array($%d, ','))", strings.Join(vals, ","))
	}
	if f.Resolved != nil {
		add("resolved = $%d", *f.Resolved)
	}
	if !f.From.IsZero() {
		add("created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("created_at <= $%d", f.To)
	}

	q := `
SELECT id, integration_id, type, severity, metadata, resolved, created_at
FROM security_events
`
	if len(conds) > 0 {
		q += "WHERE " + strings.Join(conds, " AND ") + "\n"
	}
	q += "ORDER BY created_at DESC\n"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf("LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Event, 0)
	for rows.Next() {
		var (
			e    Event
			meta []byte
		)
		if err := rows.Scan(&e.ID, &e.IntegrationID, &e.Type, &e.Severity, &meta, &e.Resolved, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `DELETE FROM security_events WHERE created_at < $1`
	res, err := r.db.ExecContext(ctx, q, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
