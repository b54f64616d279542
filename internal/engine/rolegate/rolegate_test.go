package rolegate

import (
	"testing"

	"caseline/internal/config"
	"caseline/internal/domain"
)

func TestGate(t *testing.T) {
	g := New(config.Default())

	if !g.IsAuthorized(domain.RoleInitiator, domain.StateDraft, "submit") {
		t.Fatal("initiator should submit from draft")
	}
	if g.IsAuthorized(domain.RoleReviewer, domain.StateDraft, "submit") {
		t.Fatal("reviewer must not submit")
	}
	if g.IsAuthorized("", domain.StateDraft, "submit") {
		t.Fatal("empty role must fail closed")
	}
	if g.IsAuthorized("wizard", domain.StateDraft, "submit") {
		t.Fatal("unknown role must fail closed")
	}
}

func TestAdministratorNeedsLegalEdge(t *testing.T) {
	g := New(config.Default())

	if !g.IsAuthorized(domain.RoleAdministrator, domain.StateDraft, "submit") {
		t.Fatal("administrator should drive any legal edge")
	}
	// the edge exists but not from this state
	if g.IsAuthorized(domain.RoleAdministrator, domain.StateDraft, "approve") {
		t.Fatal("administrator cannot invent edges")
	}
	if g.IsAuthorized(domain.RoleAdministrator, domain.StateDraft, "teleport") {
		t.Fatal("unknown transition must fail even for administrator")
	}
}
