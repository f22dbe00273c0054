package pipeline

import (
	"context"
	"fmt"

	"github.com/appforge-labs/appforge-backend/internal/generation"
	"github.com/appforge-labs/appforge-backend/internal/projects/domain"
)

// QAHandler runs the automated quality assessment over the generated code
// and persists the report.
type QAHandler struct {
	client generation.Client
}

func NewQAHandler(client generation.Client) *QAHandler {
	return &QAHandler{client: client}
}

func (h *QAHandler) Stage() Stage            { return StageQA }
func (h *QAHandler) DisplayName() string     { return "Quality Assurance" }
func (h *QAHandler) Pending() domain.Status  { return domain.StatusQAPending }
func (h *QAHandler) Complete() domain.Status { return domain.StatusQAComplete }
func (h *QAHandler) StartMessage() string    { return "Performing automated QA checks..." }
func (h *QAHandler) StartSummary() string    { return "Running comprehensive tests and checks" }
func (h *QAHandler) Next() Stage             { return StageSecurity }

func (h *QAHandler) CheckInput(p *domain.Project) error {
	if p.GeneratedCodeRef == nil {
		return &domain.PreconditionError{Stage: "Quality Assurance", Reason: "generated code reference not found"}
	}
	return nil
}

func (h *QAHandler) Execute(ctx context.Context, p *domain.Project) (*Result, error) {
	report, err := h.client.Generate(ctx, qaPrompt(p))
	if err != nil {
		return nil, fmt.Errorf("qa analysis: %w", err)
	}

	return &Result{
		Summary: "All QA checks completed",
		Apply: func(p *domain.Project) {
			p.QAReport = &report
			p.StatusMessage = "QA checks passed. Ready for security scan."
		},
	}, nil
}

func qaPrompt(p *domain.Project) string {
	return fmt.Sprintf(`MISSION: Perform a comprehensive quality assurance analysis of a generated mobile application.

Project context:
- Project name: %s
- Source input: %s
- Generated code bundle: %s

Target user persona:
%s

Framework: static code review (structure, dependencies, potential runtime errors, platform best practices), functional coverage against the persona's goals, performance and usability considerations, and a prioritized list of findings. Return a clean Markdown QA report with a clear pass/fail verdict at the top.`,
		p.Name, p.SourceInput, deref(p.GeneratedCodeRef), deref(p.PersonaDocument))
}
