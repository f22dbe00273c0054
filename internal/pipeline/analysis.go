package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/appforge-labs/appforge-backend/internal/generation"
	"github.com/appforge-labs/appforge-backend/internal/projects/domain"
)

// AnalysisHandler produces the user persona document and the brand color
// palette from the project's source input. It is the only stage whose
// completion parks the pipeline: the user confirms before design starts.
type AnalysisHandler struct {
	client generation.Client
}

func NewAnalysisHandler(client generation.Client) *AnalysisHandler {
	return &AnalysisHandler{client: client}
}

func (h *AnalysisHandler) Stage() Stage             { return StageAnalysis }
func (h *AnalysisHandler) DisplayName() string      { return "Market Analysis" }
func (h *AnalysisHandler) Pending() domain.Status   { return domain.StatusAnalysisPending }
func (h *AnalysisHandler) Complete() domain.Status  { return domain.StatusAnalysisComplete }
func (h *AnalysisHandler) StartMessage() string     { return "Analyzing market and target user..." }
func (h *AnalysisHandler) StartSummary() string {
	return "Analyzing your requirements and creating a user persona"
}
func (h *AnalysisHandler) Next() Stage { return "" } // parks at the confirmation gate

func (h *AnalysisHandler) CheckInput(p *domain.Project) error {
	if strings.TrimSpace(p.SourceInput) == "" {
		return &domain.PreconditionError{Stage: "Market Analysis", Reason: "source input is missing"}
	}
	return nil
}

func (h *AnalysisHandler) Execute(ctx context.Context, p *domain.Project) (*Result, error) {
	persona, err := h.client.Generate(ctx, personaPrompt(p))
	if err != nil {
		return nil, fmt.Errorf("persona generation: %w", err)
	}

	rawPalette, err := h.client.Generate(ctx, palettePrompt(p))
	if err != nil {
		return nil, fmt.Errorf("palette generation: %w", err)
	}
	palette, err := domain.ParseBrandPalette(extractJSONObject(rawPalette))
	if err != nil {
		// Malformed model output is transient: the retry budget covers it.
		return nil, fmt.Errorf("palette parse: %w", err)
	}

	return &Result{
		Summary: "User persona and brand palette created successfully",
		Apply: func(p *domain.Project) {
			p.PersonaDocument = &persona
			p.BrandPalette = palette
			p.StatusMessage = "Market analysis complete. Ready for design."
		},
	}, nil
}

func personaPrompt(p *domain.Project) string {
	if p.HasSourceURL() {
		return fmt.Sprintf(`Conduct an exhaustive market research analysis of the website at %s, driven by the goal of developing a world-class mobile application for its audience.

Analyze the site's core functionality, the target user's journey and pain points, its aesthetic and branding, its content structure, and its value proposition.

Deliverable: a comprehensive, actionable user persona document in clean Markdown, including a memorable name for the persona, their demographics, a brief biography, goals and motivations, frustrations with existing solutions, and their preferred technology platforms. Emphasize how a mobile app can solve their problems beyond the current website.`, p.SourceInput)
	}
	return fmt.Sprintf(`Based on the app description: %q, conduct market research to develop a world-class mobile application that fits this concept.

Infer the target user's journey, goals and pain points for such an app, and the branding that would suit it.

Deliverable: a comprehensive, actionable user persona document in clean Markdown, including a memorable name for the persona, their demographics, a brief biography, goals and motivations, frustrations with existing solutions, and their preferred technology platforms.`, p.SourceInput)
}

func palettePrompt(p *domain.Project) string {
	source := fmt.Sprintf("the website at %s", p.SourceInput)
	if !p.HasSourceURL() {
		source = fmt.Sprintf("the app description %q", p.SourceInput)
	}
	return fmt.Sprintf(`Based on %s, generate a JSON object for a brand color palette.

The JSON object must include the following keys with hex color values:
"primary", "secondary", "text_light", "text_dark", "background".
Example: {"primary": "#0062FF", "secondary": "#FFC107", "text_light": "#FFFFFF", "text_dark": "#212121", "background": "#F5F5F5"}
If a specific color cannot be confidently identified, provide a sensible fallback hex code.
Return ONLY the raw JSON object, with no text before or after it.`, source)
}

// extractJSONObject trims any prose or code fencing the model wrapped around
// the object it was asked to return bare.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}
