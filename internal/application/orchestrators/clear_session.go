package orchestrators

import (
	"context"
	"fmt"
	"log/slog"
)

// IdentityClearer removes the stored identity.
type IdentityClearer interface {
	Clear(ctx context.Context) error
}

// ClearSessionDeps holds dependencies for ClearSession.
type ClearSessionDeps struct {
	Store IdentityClearer
}

// ExecuteClearSession returns the application to the anonymous state.
// PRE: none; an already anonymous store is fine
// POST: no identity record is stored
// INVARIANT: idempotent
func ExecuteClearSession(ctx context.Context, deps ClearSessionDeps) error {
	if err := deps.Store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear identity: %w", err)
	}
	slog.Info("session_event", "event", "cleared")
	return nil
}
