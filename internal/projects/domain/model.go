package domain

import (
	"encoding/json"
	"time"
)

// Project is the unit of orchestration. It is storage-agnostic and shared by
// the repository, pipeline and HTTP layers.
type Project struct {
	ID            string `json:"id"`
	OwnerID       string `json:"owner_id"`
	Name          string `json:"name"`
	Status        Status `json:"status"`
	StatusMessage string `json:"status_message"`
	SourceInput   string `json:"source_input"`

	// Stage artifacts. Each is written exactly once by its owning stage and
	// stays nil until that stage completes.
	PersonaDocument  *string       `json:"persona_document,omitempty"`
	BrandPalette     *BrandPalette `json:"brand_palette,omitempty"`
	GeneratedCodeRef *string       `json:"generated_code_reference,omitempty"`
	QAReport         *string       `json:"qa_report,omitempty"`
	SecurityReport   *string       `json:"security_report,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BrandPalette is the structured color mapping produced by the analysis stage.
type BrandPalette struct {
	Primary    string `json:"primary"`
	Secondary  string `json:"secondary"`
	TextLight  string `json:"text_light"`
	TextDark   string `json:"text_dark"`
	Background string `json:"background"`
}

// ParseBrandPalette decodes raw generation output into a palette. The model
// is asked for a bare JSON object with exactly these keys.
func ParseBrandPalette(raw string) (*BrandPalette, error) {
	var p BrandPalette
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// HasSourceURL reports whether the source input looks like a URL rather than
// a free-text app description.
func (p *Project) HasSourceURL() bool {
	return len(p.SourceInput) > 4 && p.SourceInput[:4] == "http"
}
