package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/appforge-labs/appforge-backend/internal/generation"
	"github.com/appforge-labs/appforge-backend/internal/projects/domain"
)

// DesignHandler turns the persona and palette into a UI/UX design direction.
// The design brief itself is not a persisted artifact; its essence lands in
// the stage_completed summary, and the palette it builds on was written by
// the analysis stage.
type DesignHandler struct {
	client generation.Client
}

func NewDesignHandler(client generation.Client) *DesignHandler {
	return &DesignHandler{client: client}
}

func (h *DesignHandler) Stage() Stage            { return StageDesign }
func (h *DesignHandler) DisplayName() string     { return "UI/UX Design" }
func (h *DesignHandler) Pending() domain.Status  { return domain.StatusDesignPending }
func (h *DesignHandler) Complete() domain.Status { return domain.StatusDesignComplete }
func (h *DesignHandler) StartMessage() string    { return "Creating UI/UX design..." }
func (h *DesignHandler) StartSummary() string    { return "Creating interface designs with your brand colors" }
func (h *DesignHandler) Next() Stage             { return StageCodeGen }

func (h *DesignHandler) CheckInput(p *domain.Project) error {
	if p.PersonaDocument == nil {
		return &domain.PreconditionError{Stage: "UI/UX Design", Reason: "user persona document is missing"}
	}
	if p.BrandPalette == nil {
		return &domain.PreconditionError{Stage: "UI/UX Design", Reason: "brand palette is missing"}
	}
	return nil
}

func (h *DesignHandler) Execute(ctx context.Context, p *domain.Project) (*Result, error) {
	brief, err := h.client.Generate(ctx, designPrompt(p))
	if err != nil {
		return nil, fmt.Errorf("design generation: %w", err)
	}

	return &Result{
		Summary: summarize(brief, "Interface designs created with brand colors"),
		Apply: func(p *domain.Project) {
			p.StatusMessage = "Design complete. Ready for code generation."
		},
	}, nil
}

func designPrompt(p *domain.Project) string {
	return fmt.Sprintf(`You are a digital design specialist with a masterful eye for aesthetics and brand identity.

Project source input: %q

User persona:
%s

Brand palette: primary %s, secondary %s, light text %s, dark text %s, background %s.

Produce a concise UI/UX design direction for this mobile application: screen structure, navigation pattern, how each palette color is applied, and typography guidance that fits the persona. Format as clean Markdown.`,
		p.SourceInput, deref(p.PersonaDocument),
		p.BrandPalette.Primary, p.BrandPalette.Secondary,
		p.BrandPalette.TextLight, p.BrandPalette.TextDark, p.BrandPalette.Background)
}

// summarize returns the first non-heading line of a generated document,
// falling back when the document is unusable as a one-liner.
func summarize(doc, fallback string) string {
	for _, line := range strings.Split(doc, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if len(line) > 200 {
			line = line[:200]
		}
		return line
	}
	return fallback
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
