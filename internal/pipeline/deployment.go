package pipeline

import (
	"context"
	"fmt"

	"github.com/appforge-labs/appforge-backend/internal/generation"
	"github.com/appforge-labs/appforge-backend/internal/projects/domain"
)

// DeploymentHandler walks the release pipeline for the generated bundle and
// completes the project with its download location.
type DeploymentHandler struct {
	client generation.Client
}

func NewDeploymentHandler(client generation.Client) *DeploymentHandler {
	return &DeploymentHandler{client: client}
}

func (h *DeploymentHandler) Stage() Stage            { return StageDeployment }
func (h *DeploymentHandler) DisplayName() string     { return "Deployment" }
func (h *DeploymentHandler) Pending() domain.Status  { return domain.StatusDeploymentPending }
func (h *DeploymentHandler) Complete() domain.Status { return domain.StatusCompleted }
func (h *DeploymentHandler) StartMessage() string    { return "Deploying application..." }
func (h *DeploymentHandler) StartSummary() string    { return "Packaging and deploying your app" }
func (h *DeploymentHandler) Next() Stage             { return "" } // end of the pipeline

func (h *DeploymentHandler) CheckInput(p *domain.Project) error {
	if p.GeneratedCodeRef == nil {
		return &domain.PreconditionError{Stage: "Deployment", Reason: "generated code reference not found"}
	}
	if p.SecurityReport == nil {
		return &domain.PreconditionError{Stage: "Deployment", Reason: "security report is missing"}
	}
	return nil
}

func (h *DeploymentHandler) Execute(ctx context.Context, p *domain.Project) (*Result, error) {
	report, err := h.client.Generate(ctx, deploymentPrompt(p))
	if err != nil {
		return nil, fmt.Errorf("deployment run: %w", err)
	}

	downloadURL := deref(p.GeneratedCodeRef)
	return &Result{
		Summary: summarize(report, "Deployment pipeline completed"),
		Apply: func(p *domain.Project) {
			p.StatusMessage = fmt.Sprintf("Deployment successful! Your app is now available at: %s", downloadURL)
		},
	}, nil
}

func deploymentPrompt(p *domain.Project) string {
	return fmt.Sprintf(`MISSION: Walk the CI/CD and deployment pipeline for a mobile app.

Input data:
- Project name: %s
- Source input: %s
- Build artifact: %s

Steps, in order: build artifact creation, containerized test run, deployment to staging with a final automated test suite, promotion to production, and a closing confirmation referencing the artifact location above. Return a single clean Markdown report detailing these steps and concluding with the final deployment link.`,
		p.Name, p.SourceInput, deref(p.GeneratedCodeRef))
}
