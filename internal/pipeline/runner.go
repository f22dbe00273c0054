package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/appforge-labs/appforge-backend/internal/notify"
	"github.com/appforge-labs/appforge-backend/internal/projects"
	"github.com/appforge-labs/appforge-backend/internal/projects/domain"
)

var (
	// errProjectFailed aborts a unit of work against a FAILED project.
	// FAILED is absorbing; no stage handler runs against it.
	errProjectFailed = errors.New("project is in FAILED state")

	// errAlreadyDone marks a duplicate delivery: the project already
	// reached or passed the stage's completion state.
	errAlreadyDone = errors.New("stage already completed")
)

// Options tune the retry wrapper. The defaults match production policy;
// tests shrink the delay.
type Options struct {
	MaxAttempts int           // total attempts of the generation call
	RetryDelay  time.Duration // fixed delay between attempts
}

// Runner executes stage units of work under the orchestration contract:
// locked begin transition, bounded retry around the generation call only,
// locked commit, notification after commit, enqueue after commit.
type Runner struct {
	store       projects.Store
	queue       Queue
	bus         notify.Bus
	handlers    map[Stage]Handler
	maxAttempts int
	retryDelay  time.Duration
}

func NewRunner(store projects.Store, queue Queue, bus notify.Bus, opts Options, handlers ...Handler) *Runner {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 3
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 60 * time.Second
	}
	hs := make(map[Stage]Handler, len(handlers))
	for _, h := range handlers {
		hs[h.Stage()] = h
	}
	return &Runner{
		store:       store,
		queue:       queue,
		bus:         bus,
		handlers:    hs,
		maxAttempts: opts.MaxAttempts,
		retryDelay:  opts.RetryDelay,
	}
}

// Run executes one (stage, project) unit of work. It is safe to re-invoke
// for the same pair: the begin step's precondition check doubles as a "have
// I already done this" check, so duplicate deliveries no-op on artifacts.
func (r *Runner) Run(ctx context.Context, stage Stage, projectID string) error {
	h, ok := r.handlers[stage]
	if !ok {
		return fmt.Errorf("unknown stage %q", stage)
	}

	p, err := r.begin(ctx, h, projectID)
	if err != nil {
		switch {
		case errors.Is(err, errProjectFailed):
			log.Printf("[warn] operation=run_stage stage=%s project_id=%s message=project already failed, skipping", stage, projectID)
			return nil
		case errors.Is(err, errAlreadyDone):
			// Idempotent no-op on artifacts; re-emit the current snapshot so
			// listeners that missed the original event catch up.
			if snap, gerr := r.store.Get(ctx, projectID); gerr == nil {
				r.bus.PublishStatus(ctx, snap)
			}
			return nil
		default:
			return err
		}
	}

	if p.Status == domain.StatusFailed {
		// begin committed a precondition failure
		r.bus.PublishStatus(ctx, p)
		return fmt.Errorf("stage %s: %s", stage, p.StatusMessage)
	}

	r.bus.PublishStatus(ctx, p)
	r.bus.PublishStageStarted(ctx, projectID, h.DisplayName(), h.StartSummary())

	res, err := r.attempt(ctx, h, projectID)
	if err != nil {
		return r.fail(ctx, h, projectID, err)
	}

	committed, err := r.store.Mutate(ctx, projectID, func(p *domain.Project) error {
		if p.Status != h.Pending() {
			return domain.ErrStaleTransition
		}
		res.Apply(p)
		p.Status = h.Complete()
		return nil
	})
	if err != nil {
		return fmt.Errorf("commit %s for %s: %w", stage, projectID, err)
	}

	// Notifications and the next enqueue happen strictly after the commit.
	r.bus.PublishStatus(ctx, committed)
	r.bus.PublishStageCompleted(ctx, projectID, h.DisplayName(), res.Summary)

	if next := h.Next(); next != "" {
		if err := r.queue.Enqueue(ctx, next, projectID); err != nil {
			return fmt.Errorf("enqueue next stage %s: %w", next, err)
		}
	}
	return nil
}

// begin performs the stage's locked entry transition. It returns the project
// as persisted; a FAILED status on the returned project means the stage's
// precondition check failed and was committed as fatal.
func (r *Runner) begin(ctx context.Context, h Handler, projectID string) (*domain.Project, error) {
	return r.store.Mutate(ctx, projectID, func(p *domain.Project) error {
		if p.Status == domain.StatusFailed {
			return errProjectFailed
		}
		if p.Status.ReachedOrPassed(h.Complete()) {
			return errAlreadyDone
		}

		resumed := p.Status == h.Pending()
		if !resumed && !domain.CanTransition(p.Status, h.Pending()) {
			return domain.ErrStaleTransition
		}

		if err := h.CheckInput(p); err != nil {
			if domain.IsPrecondition(err) {
				// Fatal: retrying cannot fix missing input. Commit the
				// failure so the cause lands in status_message.
				p.Status = domain.StatusFailed
				p.StatusMessage = err.Error()
				return nil
			}
			return err
		}

		if !resumed {
			p.Status = h.Pending()
			p.StatusMessage = h.StartMessage()
		}
		return nil
	})
}

// attempt runs the generation call under the bounded-retry policy. Each
// attempt re-reads the project fresh, and no lock is held while the call or
// the inter-retry delay is in flight.
func (r *Runner) attempt(ctx context.Context, h Handler, projectID string) (*Result, error) {
	var lastErr error
	for i := 1; i <= r.maxAttempts; i++ {
		fresh, err := r.store.Get(ctx, projectID)
		if err != nil {
			return nil, err
		}
		if fresh.Status != h.Pending() {
			return nil, domain.ErrStaleTransition
		}

		res, err := h.Execute(ctx, fresh)
		if err == nil {
			return res, nil
		}
		lastErr = err
		log.Printf("[warn] operation=stage_attempt stage=%s project_id=%s attempt=%d error=%v", h.Stage(), projectID, i, err)

		if i < r.maxAttempts {
			if err := sleepCtx(ctx, r.retryDelay); err != nil {
				return nil, err
			}
		}
	}
	return nil, lastErr
}

// fail terminates the project after exhausted retries. No further work is
// enqueued; the last error's message becomes the user-visible cause.
func (r *Runner) fail(ctx context.Context, h Handler, projectID string, cause error) error {
	p, err := r.store.Mutate(ctx, projectID, func(p *domain.Project) error {
		if p.Status != h.Pending() {
			return domain.ErrStaleTransition
		}
		p.Status = domain.StatusFailed
		p.StatusMessage = fmt.Sprintf("%s failed: %v", h.DisplayName(), cause)
		return nil
	})
	if err != nil {
		return fmt.Errorf("record failure for %s: %w (original: %v)", projectID, err, cause)
	}
	r.bus.PublishStatus(ctx, p)
	return fmt.Errorf("stage %s failed for %s: %w", h.Stage(), projectID, cause)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
