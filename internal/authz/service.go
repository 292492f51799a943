package authz

import (
	"context"
	"errors"

	"whatsapp-platform/internal/integration"
)

// Service answers "is this action allowed" questions.
//
// Contract:
// - Every operation is a pure function of current membership state; no side
//   effects, safe under unbounded concurrency, no locking.
// - Denials are false/empty results, never errors. Missing integrations and
//   missing memberships resolve to a denial.
// - Infrastructure failures (directory unreachable) propagate as errors: a
//   security decision must not be silently approximated.
type Service struct {
	dir integration.Directory
}

func NewService(dir integration.Directory) *Service {
	return &Service{dir: dir}
}

var ErrDirectoryNotConfigured = errors.New("authz: directory not configured")

// Conversation is the minimal shape this layer needs for visibility
// filtering. The owning user is whoever the conversation is mapped to.
type Conversation struct {
	ID          string `json:"id"`
	OwnerUserID string `json:"owner_user_id"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// MappableUser is a user that can hold a phone-number mapping on an
// integration, with the role they hold there.
type MappableUser struct {
	UserID string               `json:"user_id"`
	Role   integration.TeamRole `json:"role"`
}

// resolveRole derives the caller's role on an integration.
// Personal scope: only the owner has a role. Team scope: the membership role,
// if any. The second return reports whether the user has any access at all.
func (s *Service) resolveRole(ctx context.Context, userID string, integ integration.Integration) (integration.TeamRole, bool, error) {
	if ownerID, ok := integ.Scope.Owner(); ok {
		if ownerID == userID {
			return integration.RoleOwner, true, nil
		}
		return "", false, nil
	}

	teamID, ok := integ.Scope.Team()
	if !ok {
		return "", false, nil
	}
	m, err := s.dir.GetMembership(ctx, teamID, userID)
	if err != nil {
		if errors.Is(err, integration.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return m.Role, true, nil
}

// CheckPermission reports whether userID holds the permission on the
// integration. A missing integration or membership is a plain denial.
func (s *Service) CheckPermission(ctx context.Context, userID, integrationID string, p Permission) (bool, error) {
	if s.dir == nil {
		return false, ErrDirectoryNotConfigured
	}
	if userID == "" || integrationID == "" {
		return false, nil
	}

	integ, err := s.dir.GetIntegration(ctx, integrationID)
	if err != nil {
		if errors.Is(err, integration.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	role, ok, err := s.resolveRole(ctx, userID, integ)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return roleHas(role, p), nil
}

// GetUserPermissions returns the caller's full capability set on the
// integration. Non-members get an empty set.
func (s *Service) GetUserPermissions(ctx context.Context, userID, integrationID string) ([]Permission, error) {
	if s.dir == nil {
		return nil, ErrDirectoryNotConfigured
	}
	integ, err := s.dir.GetIntegration(ctx, integrationID)
	if err != nil {
		if errors.Is(err, integration.ErrNotFound) {
			return []Permission{}, nil
		}
		return nil, err
	}
	role, ok, err := s.resolveRole(ctx, userID, integ)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []Permission{}, nil
	}
	return RolePermissions(role), nil
}

// CanManagePhoneMappings reports whether actor may manage targetUserID's
// phone mapping on the integration. Self-management is always allowed;
// cross-user management needs the manage capability and both users on the
// integration's team.
func (s *Service) CanManagePhoneMappings(ctx context.Context, actorID string, integ integration.Integration, targetUserID string) (bool, error) {
	if targetUserID == "" || targetUserID == actorID {
		return true, nil
	}

	role, ok, err := s.resolveRole(ctx, actorID, integ)
	if err != nil {
		return false, err
	}
	if !ok || !roleHas(role, PermManagePhoneMappings) {
		return false, nil
	}
	return s.exactPair(ctx, integ, actorID, targetUserID)
}

// CanSendAsUser reports whether sender may send on behalf of targetUserID.
// Self-send is always allowed. Otherwise the sender needs the mapping
// capability and {sender, target} must be exactly the two members resolved
// from the team lookup, so a stale or widened membership set never leaks a
// third party into the decision.
func (s *Service) CanSendAsUser(ctx context.Context, senderID, targetUserID string, integ integration.Integration) (bool, error) {
	if senderID == targetUserID {
		return true, nil
	}

	role, ok, err := s.resolveRole(ctx, senderID, integ)
	if err != nil {
		return false, err
	}
	if !ok || !roleHas(role, PermManagePhoneMappings) {
		return false, nil
	}
	return s.exactPair(ctx, integ, senderID, targetUserID)
}

// exactPair verifies that looking up {a, b} in the integration's team yields
// exactly those two distinct members.
func (s *Service) exactPair(ctx context.Context, integ integration.Integration, a, b string) (bool, error) {
	teamID, ok := integ.Scope.Team()
	if !ok {
		return false, nil
	}
	if a == b {
		return false, nil
	}

	found := 0
	for _, userID := range []string{a, b} {
		_, err := s.dir.GetMembership(ctx, teamID, userID)
		if err != nil {
			if errors.Is(err, integration.ErrNotFound) {
				return false, nil
			}
			return false, err
		}
		found++
	}
	return found == 2, nil
}

// FilterConversations applies visibility rules to a conversation list.
// Precedence: view-all (no filtering) > view-team (team members' threads) >
// default (own threads only).
func (s *Service) FilterConversations(ctx context.Context, userID string, integ integration.Integration, conversations []Conversation) ([]Conversation, error) {
	role, ok, err := s.resolveRole(ctx, userID, integ)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []Conversation{}, nil
	}

	if roleHas(role, PermViewAllConversations) {
		out := make([]Conversation, len(conversations))
		copy(out, conversations)
		return out, nil
	}

	if roleHas(role, PermViewTeamConversations) {
		teamID, isTeam := integ.Scope.Team()
		if isTeam {
			members, err := s.dir.ListMembers(ctx, teamID)
			if err != nil {
				return nil, err
			}
			memberSet := make(map[string]struct{}, len(members))
			for _, m := range members {
				memberSet[m.UserID] = struct{}{}
			}
			out := make([]Conversation, 0, len(conversations))
			for _, c := range conversations {
				if _, in := memberSet[c.OwnerUserID]; in {
					out = append(out, c)
				}
			}
			return out, nil
		}
	}

	out := make([]Conversation, 0, len(conversations))
	for _, c := range conversations {
		if c.OwnerUserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

// GetMappableUsers lists users that can hold a phone mapping on the
// integration: the owner for personal scope, all team members otherwise.
func (s *Service) GetMappableUsers(ctx context.Context, integ integration.Integration) ([]MappableUser, error) {
	if ownerID, ok := integ.Scope.Owner(); ok {
		return []MappableUser{{UserID: ownerID, Role: integration.RoleOwner}}, nil
	}

	teamID, ok := integ.Scope.Team()
	if !ok {
		return []MappableUser{}, nil
	}
	members, err := s.dir.ListMembers(ctx, teamID)
	if err != nil {
		return nil, err
	}
	out := make([]MappableUser, 0, len(members))
	for _, m := range members {
		out = append(out, MappableUser{UserID: m.UserID, Role: m.Role})
	}
	return out, nil
}
