package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/appforge-labs/appforge-backend/internal/projects"
	"github.com/appforge-labs/appforge-backend/internal/projects/domain"
)

// ProjectService mediates between the HTTP layer and the store, enforcing
// ownership on every read.
type ProjectService struct {
	store projects.Store
}

func NewProjectService(store projects.Store) *ProjectService {
	return &ProjectService{store: store}
}

func (s *ProjectService) Create(ctx context.Context, ownerID, name string) (*domain.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("project name is required")
	}
	return s.store.Create(ctx, ownerID, name)
}

func (s *ProjectService) List(ctx context.Context, ownerID string) ([]domain.Project, error) {
	return s.store.ListByOwner(ctx, ownerID)
}

// Get loads a project and verifies the caller owns it. A project belonging
// to someone else is reported as not found rather than forbidden, so ids
// cannot be probed.
func (s *ProjectService) Get(ctx context.Context, ownerID, id string) (*domain.Project, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	return p, nil
}
