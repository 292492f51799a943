package integration

import (
	"context"
	"sync"
)

// MemoryDirectory is a simple in-memory Directory useful for tests and early
// development. It is not intended for production use.
type MemoryDirectory struct {
	mu           sync.RWMutex
	integrations map[string]Integration
	members      map[string][]TeamMembership // key: team_id
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		integrations: map[string]Integration{},
		members:      map[string][]TeamMembership{},
	}
}

func (d *MemoryDirectory) AddIntegration(i Integration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.integrations[i.ID] = i
}

func (d *MemoryDirectory) AddMembership(m TeamMembership) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.members[m.TeamID] = append(d.members[m.TeamID], m)
}

func (d *MemoryDirectory) GetIntegration(ctx context.Context, integrationID string) (Integration, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	i, ok := d.integrations[integrationID]
	if !ok {
		return Integration{}, ErrNotFound
	}
	return i, nil
}

func (d *MemoryDirectory) GetMembership(ctx context.Context, teamID, userID string) (TeamMembership, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, m := range d.members[teamID] {
		if m.UserID == userID {
			return m, nil
		}
	}
	return TeamMembership{}, ErrNotFound
}

func (d *MemoryDirectory) ListMembers(ctx context.Context, teamID string) ([]TeamMembership, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]TeamMembership, len(d.members[teamID]))
	copy(out, d.members[teamID])
	return out, nil
}
