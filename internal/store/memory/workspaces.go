package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/askanna-io/askanna-core/internal/models"
	"github.com/askanna-io/askanna-core/internal/store"
)

func (s *Store) CreateWorkspace(ctx context.Context, ws *models.Workspace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	store.EnsureIdentity(&ws.Base, s.now())
	cp := *ws
	s.workspaces[ws.UUID] = &cp
	return nil
}

func (s *Store) GetWorkspaceByUUID(ctx context.Context, id uuid.UUID) (*models.Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ws, ok := s.workspaces[id]
	if !ok || ws.IsDeleted() {
		return nil, store.ErrNotFound
	}
	cp := *ws
	return &cp, nil
}

func (s *Store) GetWorkspaceBySUUID(ctx context.Context, suuid string) (*models.Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ws := range s.workspaces {
		if ws.SUUID == suuid && !ws.IsDeleted() {
			cp := *ws
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdateWorkspace(ctx context.Context, ws *models.Workspace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workspaces[ws.UUID]; !ok {
		return store.ErrNotFound
	}
	ws.ModifiedAt = s.now()
	cp := *ws
	s.workspaces[ws.UUID] = &cp
	return nil
}

func (s *Store) SoftDeleteWorkspace(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.workspaces[id]
	if !ok || ws.IsDeleted() {
		return store.ErrNotFound
	}
	now := s.now()
	ws.DeletedAt = &now
	ws.ModifiedAt = now
	return nil
}

func (s *Store) ListWorkspaces(ctx context.Context) ([]*models.Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Workspace
	for _, ws := range s.workspaces {
		if ws.IsDeleted() {
			continue
		}
		cp := *ws
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CreateProject(ctx context.Context, p *models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	store.EnsureIdentity(&p.Base, s.now())
	cp := *p
	s.projects[p.UUID] = &cp
	return nil
}

func (s *Store) GetProjectByUUID(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok || p.IsDeleted() {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) GetProjectBySUUID(ctx context.Context, suuid string) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.projects {
		if p.SUUID == suuid && !p.IsDeleted() {
			cp := *p
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdateProject(ctx context.Context, p *models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[p.UUID]; !ok {
		return store.ErrNotFound
	}
	p.ModifiedAt = s.now()
	cp := *p
	s.projects[p.UUID] = &cp
	return nil
}

func (s *Store) SoftDeleteProject(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok || p.IsDeleted() {
		return store.ErrNotFound
	}
	now := s.now()
	p.DeletedAt = &now
	p.ModifiedAt = now
	return nil
}

func (s *Store) ListProjects(ctx context.Context, workspaceID *uuid.UUID) ([]*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Project
	for _, p := range s.projects {
		if p.IsDeleted() {
			continue
		}
		if workspaceID != nil && p.WorkspaceUUID != *workspaceID {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
