package orchestrators

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"yogastudio/internal/domain/identity"
)

// DefaultLandingRoute is visited after seeding when no route is given.
const DefaultLandingRoute = "/sessions"

// IdentitySeeder stages an identity so it is in client storage before the
// application bootstraps.
type IdentitySeeder interface {
	SeedOnBoot(ctx context.Context, id identity.Identity) error
}

// Navigator loads a page.
type Navigator interface {
	Goto(ctx context.Context, url string) error
}

// SeedAsRoleInput carries input for the seed orchestrator.
type SeedAsRoleInput struct {
	Role         string
	BaseURL      string
	LandingRoute string // defaults to DefaultLandingRoute
}

// SeedAsRoleDeps holds dependencies for SeedAsRole.
type SeedAsRoleDeps struct {
	Store     IdentitySeeder
	Navigator Navigator
	NewToken  func() string // defaults to a random uuid
}

// ExecuteSeedAsRole puts the application in the authenticated state for role
// without going through the login form, then visits the landing route.
// PRE: Role is admin or user; BaseURL is the application origin
// POST: the stored identity is present on first read after navigation
// INVARIANT: the seed is written before any application code runs
func ExecuteSeedAsRole(ctx context.Context, input SeedAsRoleInput, deps SeedAsRoleDeps) (identity.Identity, error) {
	newToken := deps.NewToken
	if newToken == nil {
		newToken = func() string { return uuid.New().String() }
	}
	id, err := identity.ForRole(input.Role, newToken())
	if err != nil {
		return identity.Identity{}, err
	}

	if err := deps.Store.SeedOnBoot(ctx, id); err != nil {
		return identity.Identity{}, fmt.Errorf("failed to seed %s identity: %w", input.Role, err)
	}

	route := input.LandingRoute
	if route == "" {
		route = DefaultLandingRoute
	}
	url := strings.TrimRight(input.BaseURL, "/") + "/" + strings.TrimLeft(route, "/")
	if err := deps.Navigator.Goto(ctx, url); err != nil {
		return identity.Identity{}, fmt.Errorf("failed to open %s: %w", url, err)
	}

	slog.Info("session_event", "event", "seeded", "role", input.Role, "user_id", id.ID, "route", route)
	return id, nil
}
