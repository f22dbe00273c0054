package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/appforge-labs/appforge-backend/internal/projects/domain"
)

// ProjectRepository provides Postgres persistence for projects. All writes go
// through row-locked transactions so at most one mutator is in flight per
// project at any instant.
type ProjectRepository struct {
	db *pgxpool.Pool
}

// New creates a new project repository.
func New(db *pgxpool.Pool) *ProjectRepository {
	return &ProjectRepository{db: db}
}

const projectColumns = `
id, owner_id, name, status, status_message, source_input,
persona_document, brand_palette, generated_code_ref, qa_report, security_report,
created_at, updated_at`

// Create inserts a new project in state PENDING with no artifacts.
func (r *ProjectRepository) Create(ctx context.Context, ownerID, name string) (*domain.Project, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner id required")
	}
	if name == "" {
		name = "Project_" + time.Now().Format("20060102_150405")
	}

	const q = `
INSERT INTO projects (id, owner_id, name, status, status_message)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + projectColumns + `;`

	row := r.db.QueryRow(ctx, q,
		uuid.New().String(), ownerID, name,
		string(domain.StatusPending), "Project created. Awaiting source input.")
	return scanProject(row)
}

// Get loads a project without locking it.
func (r *ProjectRepository) Get(ctx context.Context, id string) (*domain.Project, error) {
	const q = `SELECT ` + projectColumns + ` FROM projects WHERE id = $1;`

	p, err := scanProject(r.db.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// ListByOwner returns all projects for the given owner, newest first.
func (r *ProjectRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Project, error) {
	const q = `SELECT ` + projectColumns + ` FROM projects WHERE owner_id = $1 ORDER BY created_at DESC;`

	rows, err := r.db.Query(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Project, 0, 16)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// Mutate performs a single atomically visible read-modify-write: the row is
// locked with SELECT ... FOR UPDATE, fn is applied to the fresh state, and
// the full mutable record is written back in the same transaction. If fn
// fails nothing is persisted.
func (r *ProjectRepository) Mutate(ctx context.Context, id string, fn func(*domain.Project) error) (*domain.Project, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const sel = `SELECT ` + projectColumns + ` FROM projects WHERE id = $1 FOR UPDATE;`

	p, err := scanProject(tx.QueryRow(ctx, sel, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	if err := fn(p); err != nil {
		return nil, err
	}

	palette, err := marshalPalette(p.BrandPalette)
	if err != nil {
		return nil, err
	}

	const upd = `
UPDATE projects SET
  name = $2, status = $3, status_message = $4, source_input = $5,
  persona_document = $6, brand_palette = $7, generated_code_ref = $8,
  qa_report = $9, security_report = $10, updated_at = now()
WHERE id = $1
RETURNING updated_at;`

	if err := tx.QueryRow(ctx, upd, p.ID,
		p.Name, string(p.Status), p.StatusMessage, p.SourceInput,
		p.PersonaDocument, palette, p.GeneratedCodeRef, p.QAReport, p.SecurityReport,
	).Scan(&p.UpdatedAt); err != nil {
		return nil, fmt.Errorf("update project: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return p, nil
}

// ListCompletedBetween returns completed projects whose updated_at falls in
// [from, to).
func (r *ProjectRepository) ListCompletedBetween(ctx context.Context, from, to time.Time) ([]domain.Project, error) {
	const q = `
SELECT ` + projectColumns + `
FROM projects
WHERE status = $1 AND updated_at >= $2 AND updated_at < $3
ORDER BY updated_at;`

	rows, err := r.db.Query(ctx, q, string(domain.StatusCompleted), from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*domain.Project, error) {
	var (
		p       domain.Project
		status  string
		palette []byte
	)
	err := row.Scan(
		&p.ID, &p.OwnerID, &p.Name, &status, &p.StatusMessage, &p.SourceInput,
		&p.PersonaDocument, &palette, &p.GeneratedCodeRef, &p.QAReport, &p.SecurityReport,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Status = domain.Status(status)
	if len(palette) > 0 {
		var bp domain.BrandPalette
		if err := json.Unmarshal(palette, &bp); err != nil {
			return nil, fmt.Errorf("decode brand palette: %w", err)
		}
		p.BrandPalette = &bp
	}
	return &p, nil
}

func marshalPalette(p *domain.BrandPalette) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode brand palette: %w", err)
	}
	return b, nil
}
