package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/appforge-labs/appforge-backend/internal/generation"
	"github.com/appforge-labs/appforge-backend/internal/projects/domain"
	"github.com/appforge-labs/appforge-backend/internal/storage/objectstore"
)

// CodeGenHandler generates the application source bundle, uploads it to the
// object store and records the reference on the project.
type CodeGenHandler struct {
	client  generation.Client
	objects objectstore.Store
}

func NewCodeGenHandler(client generation.Client, objects objectstore.Store) *CodeGenHandler {
	return &CodeGenHandler{client: client, objects: objects}
}

func (h *CodeGenHandler) Stage() Stage            { return StageCodeGen }
func (h *CodeGenHandler) DisplayName() string     { return "Code Generation" }
func (h *CodeGenHandler) Pending() domain.Status  { return domain.StatusCodeGeneration }
func (h *CodeGenHandler) Complete() domain.Status { return domain.StatusCodeGenerationComplete }
func (h *CodeGenHandler) StartMessage() string    { return "Generating application source code..." }
func (h *CodeGenHandler) StartSummary() string    { return "Generating your app source code" }
func (h *CodeGenHandler) Next() Stage             { return StageQA }

func (h *CodeGenHandler) CheckInput(p *domain.Project) error {
	if p.PersonaDocument == nil {
		return &domain.PreconditionError{Stage: "Code Generation", Reason: "user persona document is missing"}
	}
	if p.BrandPalette == nil {
		return &domain.PreconditionError{Stage: "Code Generation", Reason: "brand palette is missing"}
	}
	return nil
}

func (h *CodeGenHandler) Execute(ctx context.Context, p *domain.Project) (*Result, error) {
	code, err := h.client.Generate(ctx, codeGenPrompt(p))
	if err != nil {
		return nil, fmt.Errorf("code generation: %w", err)
	}

	key := fmt.Sprintf("%s/%s/source_code.md", p.OwnerID, p.ID)
	ref, err := h.objects.Put(ctx, key, []byte(code), "text/markdown")
	if err != nil {
		return nil, fmt.Errorf("store generated code: %w", err)
	}

	return &Result{
		Summary: "App source code generated and ready for review",
		Apply: func(p *domain.Project) {
			p.GeneratedCodeRef = &ref
			p.StatusMessage = "Code generation finished. Pending QA."
		},
	}, nil
}

func codeGenPrompt(p *domain.Project) string {
	palette, _ := json.Marshal(p.BrandPalette)
	return fmt.Sprintf(`MISSION: Generate complete, production-ready mobile application code.

Project context:
- Project name: %s
- Source input: %s

User persona document:
%s

Brand palette:
%s

Requirements: choose an appropriate cross-platform architecture, implement the screens and navigation the persona needs, apply the brand palette consistently, handle errors and empty states, and include brief setup instructions. Return the full source as a single Markdown document with one fenced code block per file, each preceded by its file path.`,
		p.Name, p.SourceInput, deref(p.PersonaDocument), palette)
}
