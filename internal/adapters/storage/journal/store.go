package journal

import (
	"context"

	domain "yogastudio/internal/domain/journal"
)

// Store persists journal entries.
type Store interface {
	Record(ctx context.Context, e domain.Entry) error
	ListByRun(ctx context.Context, runID string) ([]domain.Entry, error)
	Runs(ctx context.Context, limit int) ([]domain.Run, error)
}
