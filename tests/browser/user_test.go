package browser_test

import (
	"testing"
	"time"

	"yogastudio/internal/application/fixtures"
	"yogastudio/internal/domain/identity"
)

// TestMe_ShowsProfile opens the account page for each role.
func TestMe_ShowsProfile(t *testing.T) {
	tests := []struct {
		role    string
		email   string
		want    []string
		missing string
	}{
		{role: identity.RoleUser, email: "alice.martin@example.org", want: []string{"Name: Alice MARTIN", "Email: alice.martin@example.org", "Delete my account:"}, missing: "You are admin"},
		{role: identity.RoleAdmin, email: "yoga@studio.com", want: []string{"Name: Admin ADMIN", "You are admin"}, missing: "Delete my account:"},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			h := newHarness(t)
			catalogue(h)
			id := h.SeedAsRole(tt.role)
			h.Register(fixtures.UserDetail(h.Config().APIPrefix, fixtures.UserProfile(id, tt.email, time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC))))
			h.Await(fixtures.AliasGetSessions)

			h.ClickText("Account")
			h.WaitThenSee(fixtures.AliasGetUser, tt.want...)
			h.WaitThenMissing("", tt.missing)
			h.ExpectURLContains("/me")
		})
	}
}

// TestMe_DeleteAccountLogsOut deletes the account and checks the session is gone.
func TestMe_DeleteAccountLogsOut(t *testing.T) {
	h := newHarness(t)
	catalogue(h)
	id := h.SeedAsRole(identity.RoleUser)
	prefix := h.Config().APIPrefix
	h.Register(
		fixtures.UserDetail(prefix, fixtures.UserProfile(id, "alice.martin@example.org", time.Now())),
		fixtures.UserDeletion(prefix, id.ID),
	)
	h.Await(fixtures.AliasGetSessions)

	h.ClickText("Account")
	h.Await(fixtures.AliasGetUser)
	h.Click("button[color=warn]")
	h.WaitThenSee(fixtures.AliasDeleteUser, "Your account has been deleted !")
	if _, ok := h.Identity(); ok {
		t.Fatal("identity still stored after account deletion")
	}

	h.Visit("/me")
	h.ExpectURLContains(h.Config().LoginRoute)
}

// TestCreate_ForbiddenForUser sends a non-admin away from the create form.
func TestCreate_ForbiddenForUser(t *testing.T) {
	h := newHarness(t)
	catalogue(h)
	h.SeedAsRole(identity.RoleUser)
	h.Await(fixtures.AliasGetSessions)

	h.Visit("/sessions/create")
	h.ExpectURLContains(h.Config().LoginRoute)
}
