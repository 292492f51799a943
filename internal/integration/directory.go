package integration

import (
	"context"
	"errors"
)

// Directory is the read-only view of integrations and team memberships owned
// by the user-management subsystem. This layer never mutates these records.
//
// Error contract:
// - ErrNotFound for a missing integration or membership.
// - Any other error is an infrastructure failure and must be propagated;
//   callers making security decisions must not approximate past it.
type Directory interface {
	GetIntegration(ctx context.Context, integrationID string) (Integration, error)
	GetMembership(ctx context.Context, teamID, userID string) (TeamMembership, error)
	ListMembers(ctx context.Context, teamID string) ([]TeamMembership, error)
}

var ErrNotFound = errors.New("integration: not found")
