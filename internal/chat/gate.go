// Package chat implements the conversational entry point of the pipeline. A
// single Handle call carries one user message, and the gate decides whether
// that message creates a project, feeds it source input, or approves the
// analysis for design.
package chat

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/appforge-labs/appforge-backend/internal/notify"
	"github.com/appforge-labs/appforge-backend/internal/pipeline"
	"github.com/appforge-labs/appforge-backend/internal/projects"
	"github.com/appforge-labs/appforge-backend/internal/projects/domain"
)

// Gate routes chat messages against the project's current status. It is the
// only component that moves a project across the human approval boundary
// between analysis and design. Gate calls are never retried; a failed call
// surfaces to the user, who simply sends another message.
type Gate struct {
	store projects.Store
	queue pipeline.Queue
	bus   notify.Bus

	// replies maps a status to its handler. Statuses absent from the map
	// get a read-only narration.
	replies map[domain.Status]replyFunc
}

type replyFunc func(g *Gate, ctx context.Context, p *domain.Project, message string) (string, error)

func NewGate(store projects.Store, queue pipeline.Queue, bus notify.Bus) *Gate {
	g := &Gate{store: store, queue: queue, bus: bus}
	g.replies = map[domain.Status]replyFunc{
		domain.StatusPending:          (*Gate).acceptSourceInput,
		domain.StatusAnalysisComplete: (*Gate).resolveApproval,
	}
	return g
}

// Handle processes one chat message. When projectID is empty a new project is
// created for actor and the message is treated as its name. The returned
// project id is always the id the conversation should continue with.
func (g *Gate) Handle(ctx context.Context, message, projectID, actor string) (string, string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", projectID, fmt.Errorf("empty message")
	}

	if projectID == "" {
		p, err := g.store.Create(ctx, actor, projectName(message))
		if err != nil {
			return "", "", fmt.Errorf("create project: %w", err)
		}
		log.Printf("[info] operation=chat_create project_id=%s owner=%s", p.ID, actor)
		return fmt.Sprintf("Project %q created. Describe the app you want to build, or paste a URL to an existing product you want to reimagine.", p.Name), p.ID, nil
	}

	p, err := g.store.Get(ctx, projectID)
	if err != nil {
		return "", projectID, fmt.Errorf("load project: %w", err)
	}

	if fn, ok := g.replies[p.Status]; ok {
		reply, err := fn(g, ctx, p, message)
		return reply, p.ID, err
	}
	return narrate(p), p.ID, nil
}

// acceptSourceInput stores the first substantive message as the project's
// source input and kicks off analysis.
func (g *Gate) acceptSourceInput(ctx context.Context, p *domain.Project, message string) (string, error) {
	updated, err := g.store.Mutate(ctx, p.ID, func(p *domain.Project) error {
		if p.Status != domain.StatusPending {
			return domain.ErrStaleTransition
		}
		p.SourceInput = message
		p.Status = domain.StatusAnalysisPending
		p.StatusMessage = "Source input received. Queued for market analysis."
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("accept source input: %w", err)
	}

	g.bus.PublishStatus(ctx, updated)
	if err := g.queue.Enqueue(ctx, pipeline.StageAnalysis, p.ID); err != nil {
		return "", fmt.Errorf("enqueue analysis: %w", err)
	}
	log.Printf("[info] operation=chat_source_input project_id=%s", p.ID)
	return "Got it. I am analyzing the market fit and building a brand identity for your app. I will let you know the moment it is ready.", nil
}

// resolveApproval implements the three-way branch at the analysis gate:
// an affirmative answer releases the project into design, a negative answer
// parks it, and anything else asks again without touching the project.
func (g *Gate) resolveApproval(ctx context.Context, p *domain.Project, message string) (string, error) {
	switch classify(message) {
	case answerYes:
		updated, err := g.store.Mutate(ctx, p.ID, func(p *domain.Project) error {
			if p.Status != domain.StatusAnalysisComplete {
				return domain.ErrStaleTransition
			}
			p.Status = domain.StatusDesignPending
			p.StatusMessage = "Approved. Queued for UI/UX design."
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("approve analysis: %w", err)
		}
		g.bus.PublishStatus(ctx, updated)
		if err := g.queue.Enqueue(ctx, pipeline.StageDesign, p.ID); err != nil {
			return "", fmt.Errorf("enqueue design: %w", err)
		}
		log.Printf("[info] operation=chat_approve project_id=%s", p.ID)
		return "Great. The design stage has started, and the rest of the pipeline will run through deployment from here. Watch the status feed for progress.", nil
	case answerNo:
		log.Printf("[info] operation=chat_park project_id=%s", p.ID)
		return "Understood, the project is on hold. The analysis stays saved; say \"yes\" whenever you want to continue to design.", nil
	default:
		return "The market analysis and brand palette are ready. Shall I continue to the design stage? Please answer yes or no.", nil
	}
}

// narrate reports the project state for messages that arrive while no input
// is expected.
func narrate(p *domain.Project) string {
	switch {
	case p.Status == domain.StatusCompleted:
		return fmt.Sprintf("This project is finished. %s", p.StatusMessage)
	case p.Status == domain.StatusFailed:
		return fmt.Sprintf("This project failed: %s You can start a new project at any time.", p.StatusMessage)
	case p.Status.IsProcessing():
		return fmt.Sprintf("Work is in progress (%s, %d%% done). I will post here when your input is needed.", p.Status, p.Status.Progress())
	default:
		return fmt.Sprintf("Current status: %s (%d%%). %s", p.Status, p.Status.Progress(), p.StatusMessage)
	}
}

type answer int

const (
	answerOther answer = iota
	answerYes
	answerNo
)

// classify interprets a gate reply. Matching is on the whole trimmed message
// so that "yes, and also change the logo" does not silently approve.
func classify(message string) answer {
	switch strings.ToLower(strings.TrimSpace(strings.TrimRight(message, ".!"))) {
	case "yes", "y", "continue", "proceed", "go ahead", "approve":
		return answerYes
	case "no", "n", "stop", "hold", "not yet":
		return answerNo
	default:
		return answerOther
	}
}

// projectName derives a short project name from the opening message.
func projectName(message string) string {
	name := strings.TrimSpace(message)
	if i := strings.IndexAny(name, "\n.!?"); i > 0 {
		name = name[:i]
	}
	if len(name) > 60 {
		name = strings.TrimSpace(name[:60])
	}
	if name == "" {
		name = "Untitled project"
	}
	return name
}
