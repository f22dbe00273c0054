// Package pipeline contains the project lifecycle orchestrator: the stage
// handlers, the unit-of-work queue and the runner that wraps every stage
// execution with locking, retry and notification.
package pipeline

import (
	"context"

	"github.com/appforge-labs/appforge-backend/internal/projects/domain"
)

// Stage names one phase of the pipeline. A unit of work is one (stage,
// project) dispatch.
type Stage string

const (
	StageAnalysis   = Stage("analysis")
	StageDesign     = Stage("design")
	StageCodeGen    = Stage("code_generation")
	StageQA         = Stage("qa")
	StageSecurity   = Stage("security")
	StageDeployment = Stage("deployment")
)

// Result carries a completed stage's output back to the locked commit step.
type Result struct {
	// Summary is the free-text blurb for the stage_completed event.
	Summary string

	// Apply writes the stage's artifact and completion message onto the
	// project. It runs inside the row-locked commit, after the runner has
	// verified the project still sits in the stage's pending state.
	Apply func(p *domain.Project)
}

// Handler is the uniform contract every stage obeys. Handlers hold no
// per-project state; the same instance serves all projects.
type Handler interface {
	Stage() Stage

	// DisplayName is the human-facing stage name used in notifications.
	DisplayName() string

	// Pending and Complete are the two statuses the stage moves a project
	// through on the happy path.
	Pending() domain.Status
	Complete() domain.Status

	// StartMessage becomes status_message while the stage is pending.
	StartMessage() string

	// StartSummary is the free-text blurb for the stage_started event.
	StartSummary() string

	// CheckInput validates the artifacts this stage depends on. A
	// *domain.PreconditionError is fatal: the project fails immediately,
	// bypassing retries, since retrying cannot fix missing input.
	CheckInput(p *domain.Project) error

	// Execute performs the expensive generation work against a fresh
	// project snapshot. No lock is held while it runs; the runner retries
	// it on error within the stage's retry budget.
	Execute(ctx context.Context, p *domain.Project) (*Result, error)

	// Next names the stage to enqueue after this one commits, or "" when
	// the pipeline parks (awaiting the user) or ends.
	Next() Stage
}
