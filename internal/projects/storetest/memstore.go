// Package storetest provides an in-memory projects.Store used by pipeline,
// gate and scheduler tests.
package storetest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/appforge-labs/appforge-backend/internal/projects/domain"
)

// MemStore keeps projects in a map and serializes Mutate per store, which is
// strictly stronger than the per-row locking the real repository provides.
type MemStore struct {
	mu       sync.Mutex
	projects map[string]*domain.Project
}

func NewMemStore() *MemStore {
	return &MemStore{projects: make(map[string]*domain.Project)}
}

func (s *MemStore) Create(ctx context.Context, ownerID, name string) (*domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name == "" {
		name = "Project_" + time.Now().Format("20060102_150405")
	}
	now := time.Now()
	p := &domain.Project{
		ID:            uuid.New().String(),
		OwnerID:       ownerID,
		Name:          name,
		Status:        domain.StatusPending,
		StatusMessage: "Project created. Awaiting source input.",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.projects[p.ID] = p
	return clone(p), nil
}

func (s *MemStore) Get(ctx context.Context, id string) (*domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clone(p), nil
}

func (s *MemStore) ListByOwner(ctx context.Context, ownerID string) ([]domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Project
	for _, p := range s.projects {
		if p.OwnerID == ownerID {
			out = append(out, *clone(p))
		}
	}
	return out, nil
}

func (s *MemStore) Mutate(ctx context.Context, id string, fn func(*domain.Project) error) (*domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	working := clone(p)
	if err := fn(working); err != nil {
		return nil, err
	}
	working.UpdatedAt = time.Now()
	s.projects[id] = working
	return clone(working), nil
}

func (s *MemStore) ListCompletedBetween(ctx context.Context, from, to time.Time) ([]domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Project
	for _, p := range s.projects {
		if p.Status == domain.StatusCompleted && !p.UpdatedAt.Before(from) && p.UpdatedAt.Before(to) {
			out = append(out, *clone(p))
		}
	}
	return out, nil
}

// Seed inserts a project as-is, for test setup.
func (s *MemStore) Seed(p *domain.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	s.projects[p.ID] = clone(p)
}

func clone(p *domain.Project) *domain.Project {
	cp := *p
	cp.PersonaDocument = cloneStr(p.PersonaDocument)
	if p.BrandPalette != nil {
		bp := *p.BrandPalette
		cp.BrandPalette = &bp
	}
	cp.GeneratedCodeRef = cloneStr(p.GeneratedCodeRef)
	cp.QAReport = cloneStr(p.QAReport)
	cp.SecurityReport = cloneStr(p.SecurityReport)
	return &cp
}

func cloneStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
