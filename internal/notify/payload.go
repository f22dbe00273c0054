package notify

import "github.com/appforge-labs/appforge-backend/internal/projects/domain"

// Event kinds published to a project's channel.
const (
	KindStatusUpdate   = "status_update"
	KindStageStarted   = "stage_started"
	KindStageCompleted = "stage_completed"
)

// Event is the wire envelope for all project notifications.
type Event struct {
	Kind      string `json:"kind"`
	ProjectID string `json:"project_id"`

	// status_update fields. Progress and IsProcessing are always sent so a
	// FAILED snapshot reports progress 0 explicitly rather than dropping the
	// field.
	Status        string       `json:"status,omitempty"`
	StatusMessage string       `json:"status_message,omitempty"`
	Progress      int          `json:"progress"`
	IsProcessing  bool         `json:"is_processing"`
	Project       *ProjectData `json:"project_data,omitempty"`

	// stage_started / stage_completed fields
	Stage   string `json:"stage,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// ProjectData is the subset of project fields useful for display. Large
// artifacts stay out of the notification payload.
type ProjectData struct {
	Name             string               `json:"name"`
	SourceInput      string               `json:"source_input"`
	PersonaDocument  *string              `json:"persona_document,omitempty"`
	BrandPalette     *domain.BrandPalette `json:"brand_palette,omitempty"`
	GeneratedCodeRef *string              `json:"generated_code_reference,omitempty"`
}

// StatusEvent builds a status_update snapshot from a project.
func StatusEvent(p *domain.Project) Event {
	return Event{
		Kind:          KindStatusUpdate,
		ProjectID:     p.ID,
		Status:        string(p.Status),
		StatusMessage: p.StatusMessage,
		Progress:      p.Status.Progress(),
		IsProcessing:  p.Status.IsProcessing(),
		Project: &ProjectData{
			Name:             p.Name,
			SourceInput:      p.SourceInput,
			PersonaDocument:  p.PersonaDocument,
			BrandPalette:     p.BrandPalette,
			GeneratedCodeRef: p.GeneratedCodeRef,
		},
	}
}
