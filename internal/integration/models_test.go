package integration

import (
	"context"
	"encoding/json"
	"testing"
)

func TestScopeVariants(t *testing.T) {
	p := PersonalScope("alice")
	if !p.IsPersonal() || p.IsTeam() || p.IsZero() {
		t.Fatalf("personal scope misclassified")
	}
	if owner, ok := p.Owner(); !ok || owner != "alice" {
		t.Fatalf("expected owner alice, got %q ok=%v", owner, ok)
	}
	if _, ok := p.Team(); ok {
		t.Fatalf("personal scope must not report a team")
	}

	tm := TeamScope("team-1")
	if !tm.IsTeam() || tm.IsPersonal() {
		t.Fatalf("team scope misclassified")
	}
	if teamID, ok := tm.Team(); !ok || teamID != "team-1" {
		t.Fatalf("expected team-1, got %q ok=%v", teamID, ok)
	}

	var zero Scope
	if !zero.IsZero() {
		t.Fatalf("zero scope should report IsZero")
	}
}

func TestScopeJSON(t *testing.T) {
	b, err := json.Marshal(PersonalScope("alice"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"owner_id":"alice","type":"personal"}` {
		t.Fatalf("unexpected personal scope JSON: %s", b)
	}

	b, err = json.Marshal(TeamScope("team-1"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"team_id":"team-1","type":"team"}` {
		t.Fatalf("unexpected team scope JSON: %s", b)
	}

	b, err = json.Marshal(Scope{})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != "null" {
		t.Fatalf("zero scope should marshal as null, got %s", b)
	}
}

func TestMemoryDirectory(t *testing.T) {
	dir := NewMemoryDirectory()
	ctx := context.Background()

	if _, err := dir.GetIntegration(ctx, "nope"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	dir.AddIntegration(Integration{ID: "int-1", Scope: TeamScope("team-1")})
	dir.AddMembership(TeamMembership{TeamID: "team-1", UserID: "u1", Role: RoleAdmin})

	i, err := dir.GetIntegration(ctx, "int-1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if teamID, _ := i.Scope.Team(); teamID != "team-1" {
		t.Fatalf("scope lost on round trip: %+v", i.Scope)
	}

	m, err := dir.GetMembership(ctx, "team-1", "u1")
	if err != nil || m.Role != RoleAdmin {
		t.Fatalf("unexpected membership %+v err=%v", m, err)
	}
	if _, err := dir.GetMembership(ctx, "team-1", "u2"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for missing member, got %v", err)
	}

	members, err := dir.ListMembers(ctx, "team-1")
	if err != nil || len(members) != 1 {
		t.Fatalf("expected 1 member, got %v err=%v", members, err)
	}
}
