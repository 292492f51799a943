package integration

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresDirectory reads integration and membership records owned by the
// user-management subsystem. Read-only: no INSERT/UPDATE/DELETE here.
//
// Assumed tables:
// - integrations (id, phone_number, owner_id NULL, team_id NULL, created_at)
//   with CHECK ((owner_id IS NULL) <> (team_id IS NULL))
// - team_memberships (team_id, user_id, role, created_at)
//   with UNIQUE (team_id, user_id)
type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) GetIntegration(ctx context.Context, integrationID string) (Integration, error) {
	const q = `
SELECT id, COALESCE(phone_number, ''), owner_id, team_id, created_at
FROM integrations
WHERE id = $1
`
	var (
		out     Integration
		ownerID sql.NullString
		teamID  sql.NullString
	)
	err := d.db.QueryRowContext(ctx, q, integrationID).Scan(
		&out.ID,
		&out.PhoneNumber,
		&ownerID,
		&teamID,
		&out.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Integration{}, ErrNotFound
		}
		return Integration{}, err
	}

	switch {
	case ownerID.Valid:
		out.Scope = PersonalScope(ownerID.String)
	case teamID.Valid:
		out.Scope = TeamScope(teamID.String)
	default:
		// Unreachable with the CHECK constraint in place; treat as missing
		// rather than inventing a scope.
		return Integration{}, ErrNotFound
	}
	return out, nil
}

func (d *PostgresDirectory) GetMembership(ctx context.Context, teamID, userID string) (TeamMembership, error) {
	const q = `
SELECT team_id, user_id, role, created_at
FROM team_memberships
WHERE team_id = $1 AND user_id = $2
`
	var m TeamMembership
	err := d.db.QueryRowContext(ctx, q, teamID, userID).Scan(
		&m.TeamID,
		&m.UserID,
		&m.Role,
		&m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TeamMembership{}, ErrNotFound
		}
		return TeamMembership{}, err
	}
	return m, nil
}

func (d *PostgresDirectory) ListMembers(ctx context.Context, teamID string) ([]TeamMembership, error) {
	const q = `
SELECT team_id, user_id, role, created_at
FROM team_memberships
WHERE team_id = $1
ORDER BY created_at
`
	rows, err := d.db.QueryContext(ctx, q, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]TeamMembership, 0)
	for rows.Next() {
		var m TeamMembership
		if err := rows.Scan(&m.TeamID, &m.UserID, &m.Role, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
