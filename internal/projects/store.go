// Package projects defines the project storage contract shared by the
// pipeline, the interactive gate and the HTTP layer.
package projects

import (
	"context"
	"time"

	"github.com/appforge-labs/appforge-backend/internal/projects/domain"
)

// Store is the persistence contract for projects. Implementations must make
// Mutate an atomically visible read-modify-write: the project row is locked
// exclusively for the duration of fn, and fn always sees fresh state, never a
// cached snapshot.
type Store interface {
	Create(ctx context.Context, ownerID, name string) (*domain.Project, error)
	Get(ctx context.Context, id string) (*domain.Project, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Project, error)

	// Mutate loads the project under an exclusive lock, applies fn and
	// persists the result. If fn returns an error nothing is written and the
	// error is returned as-is. Returns the project as persisted.
	Mutate(ctx context.Context, id string, fn func(*domain.Project) error) (*domain.Project, error)

	// ListCompletedBetween returns projects whose last mutation falls in
	// [from, to) and whose status is COMPLETED. Used by the follow-up
	// scheduler's time-windowed sweeps.
	ListCompletedBetween(ctx context.Context, from, to time.Time) ([]domain.Project, error)
}
