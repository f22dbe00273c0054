package pipeline

import (
	"context"
	"fmt"

	"github.com/appforge-labs/appforge-backend/internal/generation"
	"github.com/appforge-labs/appforge-backend/internal/projects/domain"
)

// SecurityHandler audits the generated code for vulnerabilities and
// persists the report.
type SecurityHandler struct {
	client generation.Client
}

func NewSecurityHandler(client generation.Client) *SecurityHandler {
	return &SecurityHandler{client: client}
}

func (h *SecurityHandler) Stage() Stage            { return StageSecurity }
func (h *SecurityHandler) DisplayName() string     { return "Security Analysis" }
func (h *SecurityHandler) Pending() domain.Status  { return domain.StatusSecurityScanPending }
func (h *SecurityHandler) Complete() domain.Status { return domain.StatusSecurityScanComplete }
func (h *SecurityHandler) StartMessage() string    { return "Performing security audit..." }
func (h *SecurityHandler) StartSummary() string {
	return "Scanning code for vulnerabilities and security issues"
}
func (h *SecurityHandler) Next() Stage { return StageDeployment }

func (h *SecurityHandler) CheckInput(p *domain.Project) error {
	if p.GeneratedCodeRef == nil {
		return &domain.PreconditionError{Stage: "Security Analysis", Reason: "generated code reference not found"}
	}
	return nil
}

func (h *SecurityHandler) Execute(ctx context.Context, p *domain.Project) (*Result, error) {
	report, err := h.client.Generate(ctx, securityPrompt(p))
	if err != nil {
		return nil, fmt.Errorf("security analysis: %w", err)
	}

	return &Result{
		Summary: "Security audit completed",
		Apply: func(p *domain.Project) {
			p.SecurityReport = &report
			p.StatusMessage = "Security audit passed. Ready for deployment."
		},
	}, nil
}

func securityPrompt(p *domain.Project) string {
	return fmt.Sprintf(`MISSION: Perform a comprehensive security analysis of a generated mobile application.

Project context:
- Project name: %s
- Source input: %s
- Generated code bundle: %s

Framework: static application security testing against the OWASP Top 10 (injection, broken authentication and authorization, insecure data storage, weak cryptography), session management review, dependency risk, and secure-defaults verification. Return a clean Markdown security report listing findings by severity, with a clear verdict at the top.`,
		p.Name, p.SourceInput, deref(p.GeneratedCodeRef))
}
