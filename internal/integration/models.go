package integration

import (
	"encoding/json"
	"time"
)

// Integration identifies one WhatsApp Business connection.
//
// Invariants:
// - Scope is exactly one of personal (owner) or team-shared; the tagged
//   Scope type makes the "both set"/"neither set" states unrepresentable.
// - Scope is immutable after creation. Re-scoping is handled by the
//   user-management subsystem, not here.
type Integration struct {
	ID          string    `json:"id" db:"id"`
	PhoneNumber string    `json:"phone_number,omitempty" db:"phone_number"`
	Scope       Scope     `json:"scope"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type scopeKind int

const (
	scopePersonal scopeKind = iota + 1
	scopeTeam
)

// Scope is a tagged variant: either Personal{OwnerID} or Team{TeamID}.
// The zero Scope is invalid; construct via PersonalScope or TeamScope.
type Scope struct {
	kind    scopeKind
	ownerID string
	teamID  string
}

func PersonalScope(ownerID string) Scope {
	return Scope{kind: scopePersonal, ownerID: ownerID}
}

func TeamScope(teamID string) Scope {
	return Scope{kind: scopeTeam, teamID: teamID}
}

// Owner returns the owning user for a personal integration.
func (s Scope) Owner() (string, bool) {
	if s.kind == scopePersonal {
		return s.ownerID, true
	}
	return "", false
}

// Team returns the sharing team for a team integration.
func (s Scope) Team() (string, bool) {
	if s.kind == scopeTeam {
		return s.teamID, true
	}
	return "", false
}

func (s Scope) IsPersonal() bool { return s.kind == scopePersonal }
func (s Scope) IsTeam() bool     { return s.kind == scopeTeam }
func (s Scope) IsZero() bool     { return s.kind == 0 }

// MarshalJSON renders the variant explicitly so API consumers never see the
// ambiguous two-nullable-fields shape.
func (s Scope) MarshalJSON() ([]byte, error) {
	switch s.kind {
	case scopePersonal:
		return json.Marshal(map[string]string{"type": "personal", "owner_id": s.ownerID})
	case scopeTeam:
		return json.Marshal(map[string]string{"type": "team", "team_id": s.teamID})
	default:
		return []byte("null"), nil
	}
}

// TeamRole is the membership role within a team.
// Keep these stable; they are part of the authorization contract.
type TeamRole string

const (
	RoleOwner  TeamRole = "owner"
	RoleAdmin  TeamRole = "admin"
	RoleMember TeamRole = "member"
)

func ValidRole(r TeamRole) bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	default:
		return false
	}
}

// TeamMembership binds a user to a team with a single role.
// Invariant: at most one role per (team_id, user_id).
type TeamMembership struct {
	TeamID    string    `json:"team_id" db:"team_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Role      TeamRole  `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
